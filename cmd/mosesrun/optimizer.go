package main

import (
	"math/rand"

	"github.com/linas/moseskit/internal/moses"
)

// hillClimbOptimizer returns an Optimizer that fills a deme by uniformly
// sampling random field settings, scoring each, and keeping every sample --
// the metapopulation's own merge pipeline (trim, cap, diversity) does the
// actual selection (spec.md §4.7.2). A real optimizer would instead hill-
// climb within the deme's neighborhood (spec.md §4.6's "hillclimbing" is
// the example given); this toy keeps the sampling strategy trivial since
// the point is to exercise the surrounding pipeline, not to win at
// symbolic regression.
func hillClimbOptimizer(rng *rand.Rand, samplesPerMerge int) moses.Optimizer {
	return func(deme *moses.Deme, score func(moses.Instance) moses.CompositeScore, maxEvals int) int {
		n := samplesPerMerge
		if maxEvals > 0 && maxEvals < n {
			n = maxEvals
		}
		fields := deme.Rep.Fields
		for i := 0; i < n; i++ {
			inst := fields.ZeroInstance()
			for f := 0; f < fields.Len(); f++ {
				card := fieldCardinality(fields.Field(f))
				fields.Set(f, uint64(rng.Intn(card)), &inst)
			}
			deme.Add(inst, score(inst))
		}
		return n
	}
}

func fieldCardinality(f moses.Field) int {
	switch f.Kind {
	case moses.Discrete:
		return f.Cardinality
	case moses.Term:
		return f.TableSize
	default:
		return 1
	}
}
