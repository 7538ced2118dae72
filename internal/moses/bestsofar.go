package moses

import (
	"sync"

	"k8s.io/klog/v2"
)

// BestSoFar maintains the best composite score seen so far and the set of
// candidates achieving it (spec.md §4.10, component C10). Updates are
// guarded by the caller's merge-mutex; BestSoFar also carries its own
// mutex, taken exclusively by Update and shared by the readers, so queries
// from outside a merge (e.g. BestTree) are safe to run concurrently with
// the driver.
type BestSoFar struct {
	mu       sync.RWMutex
	best     CompositeScore
	haveBest bool
	set      []ScoredTree
}

// NewBestSoFar returns an empty tracker.
func NewBestSoFar() *BestSoFar { return &BestSoFar{} }

// Update folds candidate c into the tracker per spec.md §4.10:
//   - if c.score > best, or equal score and lower complexity: replace the
//     best and reset the set to {c}, and log;
//   - if equal on both score and complexity: add c to the set.
func (b *BestSoFar) Update(c ScoredTree) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.haveBest {
		b.best = c.CScore
		b.haveBest = true
		b.set = []ScoredTree{c}
		klog.V(1).Infof("best_so_far: new best score=%g complexity=%d", c.CScore.Raw, c.CScore.Complexity)
		return
	}

	switch {
	case c.CScore.Raw > b.best.Raw:
		b.replace(c)
	case c.CScore.Raw == b.best.Raw && c.CScore.Complexity < b.best.Complexity:
		b.replace(c)
	case c.CScore.Raw == b.best.Raw && c.CScore.Complexity == b.best.Complexity:
		b.set = append(b.set, c)
	}
}

func (b *BestSoFar) replace(c ScoredTree) {
	b.best = c.CScore
	b.set = []ScoredTree{c}
	klog.V(1).Infof("best_so_far: new best score=%g complexity=%d", c.CScore.Raw, c.CScore.Complexity)
}

// BestCompositeScore returns the best composite score seen so far.
func (b *BestSoFar) BestCompositeScore() (CompositeScore, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.best, b.haveBest
}

// BestCandidates returns a copy of the set of candidates achieving the
// best composite score.
func (b *BestSoFar) BestCandidates() []ScoredTree {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]ScoredTree, len(b.set))
	copy(out, b.set)
	return out
}

// BestTree returns the shortest (lowest-complexity) tree among the best
// set, or nil if the set is empty (spec.md §6 "best_tree()").
func (b *BestSoFar) BestTree() Tree {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.set) == 0 {
		return nil
	}
	shortest := b.set[0]
	for _, c := range b.set[1:] {
		if c.Tree.Complexity() < shortest.Tree.Complexity() {
			shortest = c
		}
	}
	return shortest.Tree
}
