package moses

import "k8s.io/klog/v2"

// Optimizer searches a deme's instances for high-scoring settings, given a
// complexity-aware scorer closure, and returns how many evaluations it
// actually used. It is an external collaborator (spec.md §6); this package
// only calls it.
type Optimizer func(deme *Deme, scorer func(Instance) CompositeScore, maxEvals int) (evalsUsed int)

// FeatureSelector is the optional "feature selector" side-channel
// (spec.md §4.8): given the exemplar, it returns the set of argument
// indices relevant to that exemplar. Its complement, over the full
// argument arity, is added to the ignore-ops set passed to the
// KnobBuilder, and to the scorer's ignore-index hint
// (SPEC_FULL.md "ignore_idxs propagation").
type FeatureSelector func(exemplar Tree) OpSet

// DemeExpander expands an exemplar tree into a Deme, invokes the
// Optimizer, and returns scored instances (spec.md §4.8, component C8).
// Each DemeExpander owns at most one live Representation/Deme pair at a
// time; create a new DemeExpander per exemplar attempt to keep the
// feature-selector side effects from leaking across expanders, per
// spec.md's "must not mutate scorer state across expanders".
type DemeExpander struct {
	Build       KnobBuilder
	Optimize    Optimizer
	Scorer      CompositeScorer
	TypeSig     TypeSignature
	IgnoreOps   OpSet
	Perceptions OpSet
	Actions     OpSet

	SimplifyCandidate    bool
	SimplifyKnobBuilding bool

	// FeatureSelector, if set, narrows ignore-ops per exemplar.
	FeatureSelector FeatureSelector

	// ExemplarArgIndices reports the argument indices already present in
	// the exemplar tree, used to compute the ignore-ops complement. If
	// nil, the exemplar is treated as using no arguments.
	ExemplarArgIndices func(Tree) []int

	// AllArgIndices reports every argument index in the type signature's
	// arity (0..arity), the full domain the ignore-ops complement is taken
	// over (original's create_deme loop, "for i in 0..arity"). If nil,
	// ExemplarArgIndices's narrower domain is used instead, so indices
	// beyond what the exemplar already references can never be ignored.
	AllArgIndices func(Tree) []int

	rep  *Representation
	deme *Deme
}

// CreateDeme builds a Representation for exemplar via the KnobBuilder and
// seeds an empty Deme from it. Returns false if the exemplar is not
// expandable (empty field set), in which case the driver should pick
// another exemplar (spec.md §4.2, §4.8).
func (e *DemeExpander) CreateDeme(exemplar Tree) (bool, error) {
	ignoreOps := e.ignoreOpsFor(exemplar)

	rep, err := BuildRepresentation(e.Build, exemplar, e.TypeSig, ignoreOps, e.Perceptions, e.Actions,
		e.SimplifyCandidate, e.SimplifyKnobBuilding)
	if err == ErrNotExpandable {
		klog.V(1).Infof("create_deme: exemplar=%x not expandable", exemplar.Hash())
		return false, nil
	}
	if err != nil {
		return false, err
	}
	e.rep = rep
	e.deme = NewDeme(rep)
	return true, nil
}

// ignoreOpsFor computes the ignore-ops set for exemplar: every argument
// index, over the full arity, that the feature selector did not select
// (original's create_deme, "for i in 0..arity: if i not in selected_features
// and i not in exemplar_features, ignore_ops += i"). The domain is every
// index of the type signature, not just the ones already present in the
// exemplar -- an index the exemplar never references is just as much a
// candidate for ignoring as one it references but the selector rejected.
// Narrows the scorer's own ignore-index hint the same way (SPEC_FULL.md
// supplemented feature).
func (e *DemeExpander) ignoreOpsFor(exemplar Tree) OpSet {
	ignoreOps := e.IgnoreOps
	if e.FeatureSelector == nil {
		return ignoreOps
	}

	selected := e.FeatureSelector(exemplar)

	allIndices := e.AllArgIndices
	if allIndices == nil {
		allIndices = e.ExemplarArgIndices
	}
	var all []int
	if allIndices != nil {
		all = allIndices(exemplar)
	}

	merged := make(OpSet, len(ignoreOps))
	for k := range ignoreOps {
		merged.Insert(k)
	}
	var ignoredIdxs []int
	for _, idx := range all {
		if selected.Has(uint64(idx)) {
			continue
		}
		merged.Insert(uint64(idx))
		ignoredIdxs = append(ignoredIdxs, idx)
	}
	if hint, ok := e.Scorer.(IgnoreIndexHint); ok {
		hint.IgnoreIndices(ignoredIdxs)
	}
	return merged
}

// OptimizeDeme hands the deme and a complexity-aware scorer closure to the
// Optimizer, returning the number of evaluations actually used, clamped
// defensively to [0, len(deme)] per spec.md §9 ("evals_used boundary").
func (e *DemeExpander) OptimizeDeme(maxEvals int) int {
	scorer := func(inst Instance) CompositeScore {
		tree := e.rep.Materialize(inst)
		return e.Scorer.Score(tree)
	}
	evalsUsed := e.Optimize(e.deme, scorer, maxEvals)
	if evalsUsed < 0 {
		evalsUsed = 0
	}
	if evalsUsed > e.deme.Len() {
		evalsUsed = e.deme.Len()
	}
	return evalsUsed
}

// Deme returns the expander's current deme, or nil if none is live.
func (e *DemeExpander) Deme() *Deme { return e.deme }

// Representation returns the expander's current representation, or nil.
func (e *DemeExpander) Representation() *Representation { return e.rep }

// FreeDeme releases the expander's Representation and Deme.
func (e *DemeExpander) FreeDeme() {
	e.rep = nil
	e.deme = nil
}
