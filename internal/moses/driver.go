package moses

import (
	"context"
	"fmt"
	"io"
	"time"

	"k8s.io/klog/v2"
)

// SearchContext replaces the process-wide mutable counters the original
// driver kept (evals used, wall clock) with an explicit, per-run struct
// (spec.md §9 "Global mutable state" design note).
type SearchContext struct {
	StartTime    time.Time
	EvalsUsed    int
	EvalsBudget  int
	TargetScore  float64
	HasTarget    bool
	MergesDone   int
}

// Elapsed returns time since the search started.
func (sc *SearchContext) Elapsed() time.Duration { return time.Since(sc.StartTime) }

// Engine is the exposed facade combining the Metapopulation (C7), the
// DemeExpander (C8) and the driver loop (C9) -- the spec.md §6 "Exposed"
// surface: Metapopulation::new / run() / best_* / ostream.
type Engine struct {
	Metapop  *Metapopulation
	Expander *DemeExpander

	// Temperature is tau for Boltzmann exemplar selection (spec.md §4.7.1).
	// The useful-range trims in MergeDeme and resize use the
	// Metapopulation's own Params.ComplexityTemperature instead.
	Temperature float64

	ctx SearchContext
}

// NewEngine wires a Metapopulation and DemeExpander into a runnable engine.
func NewEngine(metapop *Metapopulation, expander *DemeExpander, temperature float64) *Engine {
	return &Engine{Metapop: metapop, Expander: expander, Temperature: temperature}
}

// Run executes the driver loop until termination (spec.md §4.9):
//
//	while not terminated:
//	  e = metapop.select_exemplar()
//	  if e is NONE: stop
//	  if not expander.create_deme(e.tree): continue
//	  evals = expander.optimize_deme(remaining_evals_budget)
//	  halt = metapop.merge_deme(expander.deme, expander.rep, evals)
//	  expander.free_deme()
//	  if halt: stop
//
// Termination conditions: evaluation budget exhausted, target score
// reached, merge callback signals stop, or select_exemplar returns NONE.
// Run returns the best-so-far set collected during the search. Exemplar
// exhaustion is reported as ErrExemplarsExhausted even though it is a
// normal termination (spec.md §7), the same way io.EOF reports a normal
// end of input. The budget, target and callback paths return a nil error;
// a cancelled ctx returns ctx.Err(), and a knob-builder or merge failure
// returns that error.
func (e *Engine) Run(ctx context.Context, evalsBudget int, targetScore float64, hasTarget bool) ([]ScoredTree, error) {
	e.ctx = SearchContext{
		StartTime:   time.Now(),
		EvalsBudget: evalsBudget,
		TargetScore: targetScore,
		HasTarget:   hasTarget,
	}

	for {
		if ctx.Err() != nil {
			return e.Metapop.best.BestCandidates(), ctx.Err()
		}
		if e.ctx.EvalsBudget > 0 && e.ctx.EvalsUsed >= e.ctx.EvalsBudget {
			klog.V(1).Infof("driver: evaluation budget exhausted (%d/%d)", e.ctx.EvalsUsed, e.ctx.EvalsBudget)
			break
		}
		if e.ctx.HasTarget {
			if best, ok := e.Metapop.best.BestCompositeScore(); ok && best.Raw >= e.ctx.TargetScore {
				klog.V(1).Infof("driver: target score reached (%g >= %g)", best.Raw, e.ctx.TargetScore)
				break
			}
		}

		exemplar, ok := e.Metapop.SelectExemplar(e.Temperature)
		if !ok {
			klog.V(1).Infof("driver: no unvisited exemplar remains, stopping")
			return e.Metapop.best.BestCandidates(), ErrExemplarsExhausted
		}

		created, err := e.Expander.CreateDeme(exemplar.Tree)
		if err != nil {
			return e.Metapop.best.BestCandidates(), err
		}
		if !created {
			continue
		}

		remaining := e.ctx.EvalsBudget - e.ctx.EvalsUsed
		if e.ctx.EvalsBudget <= 0 {
			remaining = 0
		}
		evals := e.Expander.OptimizeDeme(remaining)
		e.ctx.EvalsUsed += evals

		halt, err := e.Metapop.MergeDeme(ctx, e.Expander.Deme(), e.Expander.Representation(), evals)
		e.Expander.FreeDeme()
		if err != nil {
			return e.Metapop.best.BestCandidates(), err
		}
		e.ctx.MergesDone++
		if halt {
			klog.V(1).Infof("driver: merge callback requested halt")
			break
		}
	}

	return e.Metapop.best.BestCandidates(), nil
}

// BestCompositeScore returns the best composite score seen so far.
func (e *Engine) BestCompositeScore() (CompositeScore, bool) { return e.Metapop.best.BestCompositeScore() }

// BestCandidates returns the set of candidates achieving the best score.
func (e *Engine) BestCandidates() []ScoredTree { return e.Metapop.best.BestCandidates() }

// BestTree returns the shortest tree among the best set.
func (e *Engine) BestTree() Tree { return e.Metapop.best.BestTree() }

// DumpFlags select what ostream prints per member (spec.md §6).
type DumpFlags struct {
	Score        bool
	Penalty      bool
	BScore       bool
	OnlyBests    bool // selects by raw score, not penalized
	PythonSyntax bool
}

// Ostream streams up to limit members of the metapopulation to out, in the
// metapopulation's total order (spec.md §6). limit <= 0 means unlimited.
// When flags.OnlyBests is set, only members matching the best raw score
// are printed.
func (e *Engine) Ostream(out io.Writer, limit int, flags DumpFlags) error {
	members := e.Metapop.Members()

	var bestRaw float64
	if flags.OnlyBests {
		if best, ok := e.Metapop.best.BestCompositeScore(); ok {
			bestRaw = best.Raw
		}
	}

	printed := 0
	for _, st := range members {
		if limit > 0 && printed >= limit {
			break
		}
		if flags.OnlyBests && st.CScore.Raw != bestRaw {
			continue
		}

		treeStr := st.Tree.String()
		if flags.PythonSyntax {
			treeStr = toPythonSyntax(treeStr)
		}
		if _, err := fmt.Fprint(out, treeStr); err != nil {
			return err
		}
		if flags.Score {
			if _, err := fmt.Fprintf(out, " score=%g", st.CScore.Raw); err != nil {
				return err
			}
		}
		if flags.Penalty {
			if _, err := fmt.Fprintf(out, " complexity_penalty=%g diversity_penalty=%g",
				st.CScore.ComplexityPenalty, st.CScore.DiversityPenalty); err != nil {
				return err
			}
		}
		if flags.BScore {
			if _, err := fmt.Fprintf(out, " bscore=%v", []float64(st.BScore)); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintln(out); err != nil {
			return err
		}
		printed++
	}
	return nil
}

// toPythonSyntax is a placeholder hook for Python-syntax rendering; trees
// in this core are opaque, so it always returns s unchanged, and Python
// syntax appears only if the Tree's own String() already renders it.
func toPythonSyntax(s string) string { return s }
