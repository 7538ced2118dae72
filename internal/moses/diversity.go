package moses

import (
	"math"
	"sync"
)

// CandidateRef identifies a population member for the diversity cache.
// Callers must give every live ScoredTree a distinct, stable ref for the
// duration it is a metapopulation member.
type CandidateRef uint64

// PNorm selects the Lp distance used by the distortion function (spec.md
// §4.6, §6: p in {1, 2, inf}).
type PNorm int

const (
	L1 PNorm = iota
	L2
	LInf
)

// pairKey is the symmetric (min, max) identity of an unordered pair,
// matching the "Set<Ref>" idiom spec.md §9 calls out: an unordered pair
// hashes in O(1) by sorting the two refs once.
type pairKey struct{ a, b CandidateRef }

func makePairKey(a, b CandidateRef) pairKey {
	if a > b {
		a, b = b, a
	}
	return pairKey{a, b}
}

// DiversityCache is a symmetric two-key cache of distorted pairwise
// distances (spec.md §4.6). Many concurrent readers, exclusive writers; a
// miss upgrades to writer on insert (spec.md §5).
type DiversityCache struct {
	mu    sync.RWMutex
	cache map[pairKey]float64

	Pressure float64
	Exponent float64
	PNorm    PNorm

	misses, hits int
}

// NewDiversityCache returns an empty cache configured with the given
// pressure, exponent and p-norm (spec.md §6 parameters).
func NewDiversityCache(pressure, exponent float64, pNorm PNorm) *DiversityCache {
	return &DiversityCache{
		cache:    make(map[pairKey]float64),
		Pressure: pressure,
		Exponent: exponent,
		PNorm:    pNorm,
	}
}

// lpDistance computes the Lp distance between two behavioral score vectors
// of equal length.
func lpDistance(x, y BehavioralScore, p PNorm) float64 {
	switch p {
	case LInf:
		var maxAbs float64
		for i := range x {
			d := math.Abs(x[i] - y[i])
			if d > maxAbs {
				maxAbs = d
			}
		}
		return maxAbs
	case L1:
		var sum float64
		for i := range x {
			sum += math.Abs(x[i] - y[i])
		}
		return sum
	default: // L2
		var sum float64
		for i := range x {
			d := x[i] - y[i]
			sum += d * d
		}
		return math.Sqrt(sum)
	}
}

// distortion applies the pressure/exponent distortion formula to an Lp
// distance: dp = pressure / (1 + d); ddp = dp^exponent if exponent > 0,
// else dp (spec.md §4.6).
func (c *DiversityCache) distortion(d float64) float64 {
	dp := c.Pressure / (1 + d)
	if c.Exponent > 0 {
		return math.Pow(dp, c.Exponent)
	}
	return dp
}

// PairwiseDistortion returns the distorted distance between a and b,
// computing and caching it lazily on first query. It is symmetric:
// PairwiseDistortion(a,x,b,y) == PairwiseDistortion(b,y,a,x) (I6).
func (c *DiversityCache) PairwiseDistortion(aRef CandidateRef, aScore BehavioralScore, bRef CandidateRef, bScore BehavioralScore) float64 {
	if aRef == bRef {
		return 0
	}
	key := makePairKey(aRef, bRef)

	c.mu.RLock()
	if v, ok := c.cache[key]; ok {
		c.mu.RUnlock()
		return v
	}
	c.mu.RUnlock()

	d := lpDistance(aScore, bScore, c.PNorm)
	ddp := c.distortion(d)

	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.cache[key]; ok {
		c.hits++
		return v
	}
	c.misses++
	c.cache[key] = ddp
	return ddp
}

// EraseRefs removes every cache entry whose key mentions any ref in the
// given batch. The batch need not be sorted; batches are typically small
// relative to the cache, so a single full pass is used (spec.md §4.7.3,
// I7).
func (c *DiversityCache) EraseRefs(refs []CandidateRef) {
	if len(refs) == 0 {
		return
	}
	removed := make(map[CandidateRef]struct{}, len(refs))
	for _, r := range refs {
		removed[r] = struct{}{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.cache {
		if _, ok := removed[k.a]; ok {
			delete(c.cache, k)
			continue
		}
		if _, ok := removed[k.b]; ok {
			delete(c.cache, k)
		}
	}
}

// Len returns the number of entries currently cached.
func (c *DiversityCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}
