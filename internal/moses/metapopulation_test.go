package moses

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

// constantScorer scores every tree by its testTree id, so trees with a
// higher id always score higher -- just enough structure to drive S1.
type constantScorer struct{}

func (constantScorer) Score(t Tree) CompositeScore {
	tt := t.(*testTree)
	return CompositeScore{Raw: float64(tt.id), Complexity: tt.complexity}
}

func newTestMetapop(exemplars []Tree, params Params) *Metapopulation {
	return NewMetapopulation(exemplars, constantScorer{}, nil, params, 42)
}

// TestMetapopulation_Uniqueness checks I1: no two members share an
// identical tree.
func TestMetapopulation_Uniqueness(t *testing.T) {
	mp := newTestMetapop([]Tree{newTestTree(1, 1), newTestTree(1, 1), newTestTree(2, 1)}, DefaultParams())
	require.Equal(t, 2, mp.Size())
}

// TestMetapopulation_Order checks I2: the entry at position 0 has the
// maximum penalized score.
func TestMetapopulation_Order(t *testing.T) {
	mp := newTestMetapop([]Tree{
		newTestTree(1, 1), newTestTree(5, 1), newTestTree(3, 1), newTestTree(2, 1),
	}, DefaultParams())
	members := mp.Members()
	require.Len(t, members, 4)
	for i := 1; i < len(members); i++ {
		require.GreaterOrEqual(t, members[i-1].CScore.PenalizedScore(), members[i].CScore.PenalizedScore())
	}
	require.Equal(t, uint64(5), members[0].Tree.Hash())
}

// TestMetapopulation_NonFiniteExemplarsSkipped ensures a non-finite
// composite score at construction time never enters the population.
func TestMetapopulation_NonFiniteExemplarsSkipped(t *testing.T) {
	scorer := CompositeScorerFunc(func(tr Tree) CompositeScore {
		tt := tr.(*testTree)
		if tt.id == 0 {
			return CompositeScore{Raw: math.NaN()}
		}
		return CompositeScore{Raw: float64(tt.id)}
	})
	mp := NewMetapopulation([]Tree{newTestTree(0, 1), newTestTree(1, 1)}, scorer, nil, DefaultParams(), 1)
	require.Equal(t, 1, mp.Size())
}

// TestMetapopulation_SelectExemplarVisitsAll checks I4: repeated
// SelectExemplar calls visit every member exactly once and then report
// exhaustion.
func TestMetapopulation_SelectExemplarVisitsAll(t *testing.T) {
	mp := newTestMetapop([]Tree{
		newTestTree(1, 1), newTestTree(2, 1), newTestTree(3, 1),
	}, DefaultParams())

	seen := make(map[uint64]bool)
	for i := 0; i < 3; i++ {
		st, ok := mp.SelectExemplar(6)
		require.True(t, ok)
		require.False(t, seen[st.Tree.Hash()], "exemplar selected twice")
		seen[st.Tree.Hash()] = true
	}
	_, ok := mp.SelectExemplar(6)
	require.False(t, ok, "all members visited, SelectExemplar must report exhaustion")
	require.Len(t, seen, 3)
}

// TestMetapopulation_SelectExemplarSingleMember exercises the Boltzmann
// formula's degenerate case: with exactly one unvisited candidate, weight
// sum is always positive and that candidate is always chosen.
func TestMetapopulation_SelectExemplarSingleMember(t *testing.T) {
	mp := newTestMetapop([]Tree{newTestTree(1, 1)}, DefaultParams())
	st, ok := mp.SelectExemplar(6)
	require.True(t, ok)
	require.Equal(t, uint64(1), st.Tree.Hash())
}

// TestMetapopulation_MergeDeme_EmptyNoOp checks P2: merging an empty deme
// still counts a merge but otherwise changes nothing.
func TestMetapopulation_MergeDeme_EmptyNoOp(t *testing.T) {
	mp := newTestMetapop([]Tree{newTestTree(1, 1)}, DefaultParams())
	before := mp.Members()

	halt, err := mp.MergeDeme(context.Background(), NewDeme(nil), nil, 0)
	require.NoError(t, err)
	require.False(t, halt)
	require.Equal(t, 1, mp.MergeCount())
	require.Equal(t, before, mp.Members())
}

// TestMetapopulation_MergeDeme_AcceptsBetterCandidate checks S1's shape: a
// deme containing one instance scoring higher than the metapopulation's
// worst member is accepted into the population and becomes the new best.
func TestMetapopulation_MergeDeme_AcceptsBetterCandidate(t *testing.T) {
	mp := newTestMetapop([]Tree{newTestTree(1, 1)}, DefaultParams())

	fs := NewFieldSet([]Field{NewDiscreteField(2)})
	rep := &Representation{
		Exemplar: newTestTree(1, 1),
		Fields:   fs,
		Materialize: func(inst Instance) Tree {
			return newTestTree(int(fs.Get(0, inst)) + 100, 1)
		},
	}
	deme := NewDeme(rep)
	inst := fs.ZeroInstance()
	deme.Add(inst, CompositeScore{Raw: 999, Complexity: 1})

	halt, err := mp.MergeDeme(context.Background(), deme, rep, 1)
	require.NoError(t, err)
	require.False(t, halt)
	require.Equal(t, 2, mp.Size())

	best, ok := mp.BestSoFar().BestCompositeScore()
	require.True(t, ok)
	require.Equal(t, 999.0, best.Raw)
}

// TestMetapopulation_MergeDeme_DiversityPressureRecomputes checks S5 through
// the actual MergeDeme path (not just DiversityCache at the raw-cache
// level): with DiversityPressure > 0, merging a deme of candidates that are
// behaviorally close to an existing member must leave a nonzero
// DiversityPenalty on at least one member afterwards.
func TestMetapopulation_MergeDeme_DiversityPressureRecomputes(t *testing.T) {
	params := DefaultParams()
	params.DiversityPressure = 1.0

	scorer := CompositeScorerFunc(func(tr Tree) CompositeScore {
		tt := tr.(*testTree)
		return CompositeScore{Raw: float64(tt.id), Complexity: tt.complexity}
	})
	bscorer := BehavioralScorerFunc(func(tr Tree) BehavioralScore {
		tt := tr.(*testTree)
		// Every candidate's behavioral score is close to the exemplar's, so
		// the diversity penalty is guaranteed nonzero for all but the first
		// member kept into the pool.
		return BehavioralScore{float64(tt.id) * 0.01}
	})

	mp := NewMetapopulation([]Tree{newTestTree(1, 1)}, scorer, bscorer, params, 7)

	fs := NewFieldSet([]Field{NewDiscreteField(4)})
	rep := &Representation{
		Exemplar: newTestTree(1, 1),
		Fields:   fs,
		Materialize: func(inst Instance) Tree {
			return newTestTree(int(fs.Get(0, inst))+10, 1)
		},
	}
	deme := NewDeme(rep)
	for i := 0; i < 4; i++ {
		inst := fs.ZeroInstance()
		fs.Set(0, uint64(i), &inst)
		deme.Add(inst, CompositeScore{Raw: float64(i) + 10, Complexity: 1})
	}

	halt, err := mp.MergeDeme(context.Background(), deme, rep, 4)
	require.NoError(t, err)
	require.False(t, halt)
	require.Greater(t, mp.Size(), 1)

	var anyPenalized bool
	for _, m := range mp.Members() {
		if m.CScore.DiversityPenalty > 0 {
			anyPenalized = true
			break
		}
	}
	require.True(t, anyPenalized, "recomputeDiversity must assign a nonzero penalty to at least one member")
}

// TestMetapopulation_Resize_EnforcesCap checks S4/I8 directly against
// resize(): cap64 is in the tens of thousands even at merge_count=0, so
// driving it through a realistic MergeDeme call is impractical -- this
// seeds the population past cap64(0) directly (every member scored
// identically, so resize's floor-trim phase is a no-op and only the
// dynamic-cap phase acts) and asserts the final size is bounded by it and
// not below MinPoolKeepTop.
func TestMetapopulation_Resize_EnforcesCap(t *testing.T) {
	mp := newTestMetapop(nil, DefaultParams())
	mp.mergeCount = 0
	cap := cap64(0)

	total := int(cap) + 500
	mp.members = make([]ScoredTree, total)
	mp.memberByID = make(map[uint64]int, total)
	for i := 0; i < total; i++ {
		// Identical scores: no member falls below top - usefulRange(tau), so
		// Phase A (floor trim) never fires and only Phase B (cap) can.
		mp.members[i] = ScoredTree{Tree: newTestTree(i, 1), CScore: CompositeScore{Raw: 1}}
	}
	mp.reindexLocked()

	mp.resize()

	require.LessOrEqual(t, float64(mp.Size()), cap)
	require.GreaterOrEqual(t, mp.Size(), MinPoolKeepTop)
}

func TestCap64_GrowsWithMergeCount(t *testing.T) {
	require.Greater(t, cap64(0), 0.0)
	// The decaying exponential term makes the cap dip between roughly
	// mc=180 and mc=1080, so it is not monotone; but from mc=0 to mc=10 the
	// (mc+250) growth dominates and the cap increases (37500 -> ~38485).
	require.Greater(t, cap64(10), cap64(0))
}

func TestUsefulRange(t *testing.T) {
	require.InDelta(t, 1.8, usefulRange(6), 1e-9)
}
