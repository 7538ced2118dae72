package moses

// CompositeScorer computes the composite score of a tree. Calls may be
// expensive; callers cache results (spec.md §4.4). It is an external
// collaborator, not implemented by this package.
type CompositeScorer interface {
	Score(Tree) CompositeScore
}

// BehavioralScorer computes the behavioral score vector of a tree, whose
// component-wise order defines Pareto dominance (spec.md §4.4).
type BehavioralScorer interface {
	BScore(Tree) BehavioralScore
}

// ComplexityScorer computes a tree's complexity.
type ComplexityScorer interface {
	Complexity(Tree) uint32
}

// IgnoreIndexHint is an optional interface a CompositeScorer/
// BehavioralScorer may additionally implement to accept the complement of
// (selected-features union already-present-in-exemplar) argument indices,
// letting it group or skip redundant input columns before evaluating
// (spec.md §4.8, SPEC_FULL.md "ignore_idxs propagation", grounded on
// original_source's `_cscorer.ignore_idxs(idxs)`). Scorers that don't
// implement it are simply not given the hint.
type IgnoreIndexHint interface {
	IgnoreIndices(idxs []int)
}

// CompositeScorerFunc adapts a plain function to CompositeScorer.
type CompositeScorerFunc func(Tree) CompositeScore

func (f CompositeScorerFunc) Score(t Tree) CompositeScore { return f(t) }

// BehavioralScorerFunc adapts a plain function to BehavioralScorer.
type BehavioralScorerFunc func(Tree) BehavioralScore

func (f BehavioralScorerFunc) BScore(t Tree) BehavioralScore { return f(t) }
