// Package moses implements the metapopulation evolutionary search core of a
// program-synthesis system: an outer loop that selects an exemplar candidate,
// expands it into a parameterized deme of knob instances, optimizes the deme,
// and merges winning instances back into a score-ordered population.
//
// The package does not know how to build, simplify or search trees itself --
// those are the KnobBuilder, Optimizer and Scorer collaborators, supplied by
// the caller at construction time.
package moses

import "math"

// Tree is an opaque symbolic expression. The core only ever needs structural
// equality, a stable hash and a non-negative complexity score from it; it
// never inspects a Tree's internal shape.
type Tree interface {
	// Equal reports whether two trees are structurally identical.
	Equal(other Tree) bool

	// Hash returns a stable hash of the tree's structure. Two structurally
	// equal trees must hash equally.
	Hash() uint64

	// Complexity returns the tree's complexity score (>= 0).
	Complexity() uint32

	// String returns a human-readable rendering, used by ostream dumps.
	String() string
}

// BehavioralScore is a per-example outcome vector. Its length is fixed for
// the scoring function in use during a single run; component-wise order
// defines Pareto dominance (see dominates in dominance.go).
type BehavioralScore []float64

// CompositeScore is the tuple (raw_score, complexity, complexity_penalty,
// diversity_penalty). PenalizedScore derives the value the metapopulation
// orders by.
type CompositeScore struct {
	Raw               float64
	Complexity        uint32
	ComplexityPenalty float64
	DiversityPenalty  float64
}

// PenalizedScore is raw_score - complexity_penalty - diversity_penalty.
func (c CompositeScore) PenalizedScore() float64 {
	return c.Raw - c.ComplexityPenalty - c.DiversityPenalty
}

// Finite reports whether the composite score holds only finite values, the
// invariant required of every non-sentinel score (spec.md §3).
func (c CompositeScore) Finite() bool {
	return isFinite(c.Raw) && isFinite(c.ComplexityPenalty) && isFinite(c.DiversityPenalty)
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// ScoredTree is the canonical population element: a tree with its
// behavioral and composite scores.
type ScoredTree struct {
	Tree   Tree
	BScore BehavioralScore
	CScore CompositeScore
}

// less orders two ScoredTrees by the metapopulation's total order:
// descending penalized score, then ascending complexity, then by a
// deterministic tiebreak on tree hash (standing in for "tree structural
// order", which this package does not otherwise define).
func less(a, b ScoredTree) bool {
	pa, pb := a.CScore.PenalizedScore(), b.CScore.PenalizedScore()
	if pa != pb {
		return pa > pb
	}
	if a.CScore.Complexity != b.CScore.Complexity {
		return a.CScore.Complexity < b.CScore.Complexity
	}
	return a.Tree.Hash() < b.Tree.Hash()
}
