package moses

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestDiversityCache_Symmetric checks I6: pairwise_distortion(a,b) ==
// pairwise_distortion(b,a).
func TestDiversityCache_Symmetric(t *testing.T) {
	c := NewDiversityCache(1, 1, L2)
	a := BehavioralScore{0, 0}
	b := BehavioralScore{1, 1}

	got1 := c.PairwiseDistortion(1, a, 2, b)
	got2 := c.PairwiseDistortion(2, b, 1, a)
	require.InDelta(t, got1, got2, 1e-12)
	require.Equal(t, 1, c.Len(), "symmetric lookup must share a single cache entry")
}

// TestDiversityCache_S5 reproduces spec.md §8 scenario S5's distortion
// value: pressure=1, exponent=1, p-norm=2, bscores [0,0] and [1,1].
func TestDiversityCache_S5(t *testing.T) {
	c := NewDiversityCache(1, 1, L2)
	d := c.PairwiseDistortion(1, BehavioralScore{0, 0}, 2, BehavioralScore{1, 1})
	want := 1.0 / (1 + math.Sqrt(2))
	require.InDelta(t, want, d, 1e-9)
}

func TestDiversityCache_ExponentZero(t *testing.T) {
	c := NewDiversityCache(2, 0, L1)
	d := c.PairwiseDistortion(1, BehavioralScore{0}, 2, BehavioralScore{4})
	// dp = pressure/(1+dist) = 2/5; exponent <= 0 means ddp = dp.
	require.InDelta(t, 2.0/5.0, d, 1e-9)
}

// TestDiversityCache_S6 reproduces spec.md §8 scenario S6: insert 100
// candidates, populate all pairwise entries, remove 30, and check exactly
// 70*69/2 entries remain, none referencing removed trees (I7).
func TestDiversityCache_S6(t *testing.T) {
	c := NewDiversityCache(1, 1, L2)
	const n = 100
	scores := make([]BehavioralScore, n)
	for i := range scores {
		scores[i] = BehavioralScore{float64(i), float64(n - i)}
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			c.PairwiseDistortion(CandidateRef(i), scores[i], CandidateRef(j), scores[j])
		}
	}
	require.Equal(t, n*(n-1)/2, c.Len())

	removed := make([]CandidateRef, 30)
	for i := range removed {
		removed[i] = CandidateRef(i)
	}
	c.EraseRefs(removed)

	remaining := n - 30
	require.Equal(t, remaining*(remaining-1)/2, c.Len())

	removedSet := make(map[CandidateRef]bool, len(removed))
	for _, r := range removed {
		removedSet[r] = true
	}
	for k := range c.cache {
		require.False(t, removedSet[k.a], "cache must not reference removed ref %d", k.a)
		require.False(t, removedSet[k.b], "cache must not reference removed ref %d", k.b)
	}
}

func TestLpDistance(t *testing.T) {
	x := BehavioralScore{1, 2, 3}
	y := BehavioralScore{4, 0, 3}
	require.InDelta(t, 5.0, lpDistance(x, y, L1), 1e-9)
	require.InDelta(t, math.Sqrt(9+4), lpDistance(x, y, L2), 1e-9)
	require.InDelta(t, 3.0, lpDistance(x, y, LInf), 1e-9)
}
