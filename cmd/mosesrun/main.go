// Command mosesrun is a toy symbolic-regression driver: it searches for a
// small arithmetic expression over a single variable x that approximates a
// fixed target function, using the metapopulation search core.
//
// It exists to exercise internal/moses end to end -- exemplar selection,
// deme expansion, optimization, merge -- the same way the teacher's
// cmd/compare exercises its match-playing core, not as a serious symbolic
// regression tool.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/janpfeifer/must"
	"github.com/linas/moseskit/internal/moses"
	"k8s.io/klog/v2"
)

var (
	flagDepth           = flag.Int("depth", 2, "Depth of the full binary expression tree template.")
	flagEvalsBudget     = flag.Int("evals_budget", 20000, "Total evaluation budget for the search.")
	flagTargetScore     = flag.Float64("target_score", -1e-6, "Stop once the best raw score reaches this value.")
	flagTemperature     = flag.Float64("temperature", 6, "Complexity temperature (tau) for exemplar selection.")
	flagSamplesPerMerge = flag.Int("samples_per_merge", 40, "Instances the optimizer samples into each deme.")
	flagSeed            = flag.Int64("seed", 1, "RNG seed.")
	flagDump            = flag.Int("dump", 10, "Number of population members to print at the end (0 = all).")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	target := func(x float64) float64 { return x*x + x - 2 }
	samples := []float64{-2, -1, -0.5, 0, 0.5, 1, 2, 3}

	scorer := newRegressionScorer(target, samples)
	exemplar := leafNode(termX)
	params := moses.DefaultParams()
	params.ComplexityTemperature = *flagTemperature

	metapop := moses.NewMetapopulation([]moses.Tree{exemplar}, scorer, nil, params, *flagSeed)
	expander := &moses.DemeExpander{
		Build:    arithKnobBuilder(*flagDepth),
		Optimize: hillClimbOptimizer(rand.New(rand.NewSource(*flagSeed+1)), *flagSamplesPerMerge),
		Scorer:   scorer,
	}
	engine := moses.NewEngine(metapop, expander, *flagTemperature)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	start := time.Now()
	var runErr error
	safetyErr := moses.RunSafely(func() {
		_, runErr = engine.Run(ctx, *flagEvalsBudget, *flagTargetScore, true)
	})
	if safetyErr != nil {
		klog.Fatalf("search aborted: %v", safetyErr)
	}
	if runErr != nil && !errors.Is(runErr, moses.ErrExemplarsExhausted) {
		must.M(runErr)
	}
	klog.V(1).Infof("search finished in %s, merges=%d", time.Since(start), metapop.MergeCount())

	fmt.Printf("best score: ")
	if best, ok := engine.BestCompositeScore(); ok {
		fmt.Printf("%g (complexity %d)\n", best.Raw, best.Complexity)
	} else {
		fmt.Println("none found")
	}
	if bestTree := engine.BestTree(); bestTree != nil {
		fmt.Printf("best tree: %s\n", bestTree.String())
	}

	must.M(engine.Ostream(os.Stdout, *flagDump, moses.DumpFlags{Score: true, Penalty: true}))
}
