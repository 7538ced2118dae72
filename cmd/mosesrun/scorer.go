package main

import (
	"math"

	"github.com/linas/moseskit/internal/moses"
)

// complexityWeight trades off fit for tree size in the composite score.
const complexityWeight = 0.02

// regressionScorer scores an arithTree by how well it approximates target
// over a fixed sample set (spec.md §4.4's CompositeScorer collaborator).
type regressionScorer struct {
	target  func(float64) float64
	samples []float64
}

func newRegressionScorer(target func(float64) float64, samples []float64) *regressionScorer {
	return &regressionScorer{target: target, samples: samples}
}

func (s *regressionScorer) Score(t moses.Tree) moses.CompositeScore {
	at := t.(*arithTree)
	var sse float64
	for _, x := range s.samples {
		d := at.eval(x) - s.target(x)
		sse += d * d
	}
	if math.IsNaN(sse) || math.IsInf(sse, 0) {
		sse = math.MaxFloat64
	}
	complexity := at.Complexity()
	return moses.CompositeScore{
		Raw:               -sse,
		Complexity:        complexity,
		ComplexityPenalty: complexityWeight * float64(complexity),
	}
}

var _ moses.CompositeScorer = (*regressionScorer)(nil)
