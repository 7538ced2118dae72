package moses

import (
	"context"
	"math"
	"math/rand"
	"sync"

	"github.com/linas/moseskit/internal/generics"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"
)

// MergeCallback is invoked once per merge with the accepted candidates; it
// may request the driver halt (spec.md §6).
type MergeCallback func(accepted []ScoredTree, userData any) (halt bool)

// Metapopulation is a score-ordered multiset of ScoredTrees (spec.md §3,
// §4.7 / component C7). No two members share an identical tree (I1); the
// entry at position 0 has the maximum penalized score (I2).
//
// All mutating operations (insert, erase, best-so-far update, resize) take
// mergeMutex exclusively; readers of the sorted view may take it in shared
// mode (spec.md §5).
type Metapopulation struct {
	mergeMutex sync.RWMutex

	members    []ScoredTree
	memberByID map[uint64]int // tree hash -> index into members, for uniqueness checks (I1)

	visited  generics.Set[uint64]
	visitedMu sync.RWMutex

	diversity *DiversityCache
	best      *BestSoFar

	scorer  CompositeScorer
	bscorer BehavioralScorer // optional; nil if the run never needs behavioral scores

	params     Params
	mergeCount int

	rngMu sync.Mutex
	rng   *rand.Rand

	// MergeCallback and its opaque user data (spec.md §6). May be nil.
	Callback MergeCallback
	UserData any

	// Simplify is applied to every materialized candidate before scoring
	// (spec.md §4.7.2 step 4's "apply candidate simplification"). A
	// collaborator, like KnobBuilder; may be nil (identity).
	Simplify func(Tree) Tree
}

// NewMetapopulation seeds a Metapopulation from a set of initial exemplar
// trees, scoring each with scorer (and bscorer, if non-nil) and inserting
// it as the initial population (spec.md §4.7, §6 "Metapopulation::new").
func NewMetapopulation(exemplars []Tree, scorer CompositeScorer, bscorer BehavioralScorer, params Params, seed int64) *Metapopulation {
	mp := &Metapopulation{
		memberByID: make(map[uint64]int),
		visited:    generics.MakeSet[uint64](),
		diversity:  NewDiversityCache(params.DiversityPressure, params.DiversityExponent, params.DiversityPNorm),
		best:       NewBestSoFar(),
		scorer:     scorer,
		bscorer:    bscorer,
		params:     params,
		rng:        rand.New(rand.NewSource(seed)),
	}
	for _, t := range exemplars {
		if mp.hasTreeLocked(t) {
			continue
		}
		cscore := scorer.Score(t)
		if !cscore.Finite() {
			continue
		}
		var bscore BehavioralScore
		if bscorer != nil {
			bscore = bscorer.BScore(t)
		}
		st := ScoredTree{Tree: t, BScore: bscore, CScore: cscore}
		mp.insertLocked(st)
		mp.best.Update(st)
	}
	return mp
}

// Size returns the current number of members.
func (mp *Metapopulation) Size() int {
	mp.mergeMutex.RLock()
	defer mp.mergeMutex.RUnlock()
	return len(mp.members)
}

// Members returns a snapshot of the metapopulation in its total order
// (spec.md §3). The returned slice is a copy and safe to retain.
func (mp *Metapopulation) Members() []ScoredTree {
	mp.mergeMutex.RLock()
	defer mp.mergeMutex.RUnlock()
	out := make([]ScoredTree, len(mp.members))
	copy(out, mp.members)
	return out
}

// MergeCount returns the number of completed merges.
func (mp *Metapopulation) MergeCount() int {
	mp.mergeMutex.RLock()
	defer mp.mergeMutex.RUnlock()
	return mp.mergeCount
}

// BestSoFar returns the best-so-far tracker.
func (mp *Metapopulation) BestSoFar() *BestSoFar { return mp.best }

// insertLocked inserts st keeping mp.members sorted by the total order and
// mp.memberByID consistent. Caller must hold mergeMutex.
func (mp *Metapopulation) insertLocked(st ScoredTree) {
	idx := sortSearch(mp.members, st)
	mp.members = append(mp.members, ScoredTree{})
	copy(mp.members[idx+1:], mp.members[idx:])
	mp.members[idx] = st
	mp.reindexLocked()
}

func (mp *Metapopulation) reindexLocked() {
	mp.memberByID = make(map[uint64]int, len(mp.members))
	for i, st := range mp.members {
		mp.memberByID[st.Tree.Hash()] = i
	}
}

// sortSearch returns the insertion point for st in the already-sorted
// members slice.
func sortSearch(members []ScoredTree, st ScoredTree) int {
	lo, hi := 0, len(members)
	for lo < hi {
		mid := (lo + hi) / 2
		if less(members[mid], st) {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// hasTreeLocked reports whether a tree with this hash is already a member.
// Caller must hold mergeMutex (read or write).
func (mp *Metapopulation) hasTreeLocked(t Tree) bool {
	_, ok := mp.memberByID[t.Hash()]
	return ok
}

// --- Visited set (spec.md §3 "Visited set", I4) ---

func (mp *Metapopulation) isVisited(t Tree) bool {
	mp.visitedMu.RLock()
	defer mp.visitedMu.RUnlock()
	return mp.visited.Has(t.Hash())
}

func (mp *Metapopulation) markVisited(t Tree) {
	mp.visitedMu.Lock()
	defer mp.visitedMu.Unlock()
	mp.visited.Insert(t.Hash())
}

// --- §4.7.1 Boltzmann exemplar selection ---

// SelectExemplar draws one non-visited candidate via Boltzmann-weighted
// roulette selection at the given temperature (tau > 0), inserting it into
// the Visited set before returning. Returns (zero, false) if every
// candidate is already visited, signalling outer-loop termination.
func (mp *Metapopulation) SelectExemplar(tau float64) (ScoredTree, bool) {
	mp.mergeMutex.RLock()
	members := make([]ScoredTree, len(mp.members))
	copy(members, mp.members)
	mergeCount := mp.mergeCount
	mp.mergeMutex.RUnlock()

	type candWeight struct {
		st     ScoredTree
		weight float64
	}
	var sStar float64 = math.Inf(-1)
	unvisited := make([]ScoredTree, 0, len(members))
	for _, st := range members {
		if mp.isVisited(st.Tree) {
			continue
		}
		unvisited = append(unvisited, st)
		if p := st.CScore.PenalizedScore(); p > sStar {
			sStar = p
		}
	}
	if len(unvisited) == 0 {
		return ScoredTree{}, false
	}

	weights := make([]candWeight, len(unvisited))
	var sum float64
	for i, st := range unvisited {
		p := st.CScore.PenalizedScore()
		w := math.Exp((p - sStar) * 100 / tau)
		weights[i] = candWeight{st, w}
		sum += w
	}
	if sum <= 0 {
		panicInvariant("select_exemplar", mergeCount, unvisited[0].Tree.Hash(),
			"Boltzmann weight sum is %g while %d candidates remain", sum, len(unvisited))
	}

	r := mp.rollDice() * sum
	var acc float64
	chosen := weights[len(weights)-1].st
	for _, cw := range weights {
		acc += cw.weight
		if r <= acc {
			chosen = cw.st
			break
		}
	}

	mp.markVisited(chosen.Tree)
	if klog.V(1).Enabled() {
		klog.Infof("select_exemplar: merge_count=%d exemplar=%x penalized_score=%g",
			mergeCount, chosen.Tree.Hash(), chosen.CScore.PenalizedScore())
	}
	return chosen, true
}

func (mp *Metapopulation) rollDice() float64 {
	mp.rngMu.Lock()
	defer mp.rngMu.Unlock()
	return mp.rng.Float64()
}

func (mp *Metapopulation) randIntn(n int) int {
	mp.rngMu.Lock()
	defer mp.rngMu.Unlock()
	return mp.rng.Intn(n)
}

// --- §4.7.2 Merge pipeline ---

// MergeDeme runs the full merge pipeline on deme over rep, as produced by
// evalsUsed evaluations, and returns whether the merge callback requested
// termination. mergeCount is incremented exactly once per call, even for
// an empty deme (P2).
func (mp *Metapopulation) MergeDeme(ctx context.Context, deme *Deme, rep *Representation, evalsUsed int) (halt bool, err error) {
	mp.mergeMutex.Lock()
	mp.mergeCount++
	mergeCount := mp.mergeCount
	mp.mergeMutex.Unlock()

	if deme == nil || deme.Len() == 0 {
		return false, nil
	}

	// Step 1: sort deme descending by composite score.
	deme.Sort()

	tau := mp.params.ComplexityTemperature
	top := deme.Instances[0].CScore.PenalizedScore()
	floor := top - usefulRange(tau)

	// Step 2: best-effort trim of the tail below floor, never below MIN_POOL.
	survivorCount := len(deme.Instances)
	minPool := mp.params.MinPoolSize
	if minPool <= 0 {
		minPool = defaultMinPoolSize
	}
	for survivorCount > minPool && deme.Instances[survivorCount-1].CScore.PenalizedScore() < floor {
		survivorCount--
	}
	survivors := deme.Instances[:survivorCount]

	// Step 3: bound the candidate set.
	bound := evalsUsed
	if bound > len(survivors) {
		bound = len(survivors)
	}
	if mp.params.MaxCandidates != Unlimited && mp.params.MaxCandidates < bound {
		bound = mp.params.MaxCandidates
	}
	if bound < 0 {
		bound = 0
	}
	survivors = survivors[:bound]

	worstScore := mp.worstScore()

	// Step 4: materialize, simplify, and filter -- parallel, guarded by a
	// shared "proposed this round" map (spec.md §4.7.2 step 4, §5).
	var proposedMu sync.Mutex
	proposed := make(map[uint64]struct{})
	candidates := make([]*ScoredTree, len(survivors))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(mp.params.jobs())
	for i := range survivors {
		i := i
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			inst := survivors[i]
			tree := rep.Materialize(inst.Instance)
			if mp.Simplify != nil {
				tree = mp.Simplify(tree)
			}
			cscore := inst.CScore
			if !cscore.Finite() || cscore.PenalizedScore() <= worstScore {
				return nil
			}
			if mp.isVisited(tree) {
				return nil
			}
			id := tree.Hash()
			proposedMu.Lock()
			_, dup := proposed[id]
			if !dup {
				proposed[id] = struct{}{}
			}
			proposedMu.Unlock()
			if dup {
				return nil
			}
			candidates[i] = &ScoredTree{Tree: tree, CScore: cscore}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return false, err
	}

	kept := make([]ScoredTree, 0, len(candidates))
	for _, c := range candidates {
		if c != nil {
			kept = append(kept, *c)
		}
	}

	// Step 5: compute behavioral scores in parallel if needed.
	needBScore := !mp.params.IncludeDominated || mp.params.DiversityPressure > 0 || mp.params.KeepBScore
	if needBScore && mp.bscorer != nil {
		g2, gctx2 := errgroup.WithContext(ctx)
		g2.SetLimit(mp.params.jobs())
		for i := range kept {
			i := i
			g2.Go(func() error {
				if gctx2.Err() != nil {
					return nil
				}
				kept[i].BScore = mp.bscorer.BScore(kept[i].Tree)
				return nil
			})
		}
		if err := g2.Wait(); err != nil {
			return false, err
		}
	}

	// Step 6: remove any candidate whose tree is already in the metapopulation.
	mp.mergeMutex.RLock()
	filtered := kept[:0]
	for _, c := range kept {
		if !mp.hasTreeLocked(c.Tree) {
			filtered = append(filtered, c)
		}
	}
	kept = filtered
	mp.mergeMutex.RUnlock()

	// Step 7: non-dominated filtering unless dominated candidates are kept.
	if !mp.params.IncludeDominated && needBScore {
		cands := make([]candidate, len(kept))
		for i, c := range kept {
			cands[i] = candidate{tree: c, bscore: c.BScore}
		}
		nd, err := NonDominatedSet(ctx, cands, mp.params.jobs())
		if err != nil {
			return false, err
		}
		kept = make([]ScoredTree, len(nd))
		for i, c := range nd {
			kept[i] = c.tree
		}
	}

	// Step 8: update best-so-far under the merge-mutex.
	mp.mergeMutex.Lock()
	for _, c := range kept {
		mp.best.Update(c)
	}
	mp.mergeMutex.Unlock()

	// Step 9: merge callback.
	if mp.Callback != nil {
		halt = mp.Callback(kept, mp.UserData)
	}

	// Step 10: insert survivors under the merge-mutex.
	mp.mergeMutex.Lock()
	for _, c := range kept {
		if !mp.hasTreeLocked(c.Tree) {
			mp.insertLocked(c)
		}
	}
	mp.mergeMutex.Unlock()

	if klog.V(1).Enabled() {
		klog.Infof("merge_deme: merge_count=%d evals_used=%d accepted=%d size=%d",
			mergeCount, evalsUsed, len(kept), mp.Size())
	}

	// Step 11: resize.
	mp.resize()

	// Step 12: diversity recompute.
	if mp.params.DiversityPressure > 0 {
		mp.recomputeDiversity()
	}

	return halt, nil
}

// worstScore returns the lowest penalized score currently in the
// metapopulation, or -Inf if empty.
func (mp *Metapopulation) worstScore() float64 {
	mp.mergeMutex.RLock()
	defer mp.mergeMutex.RUnlock()
	if len(mp.members) == 0 {
		return math.Inf(-1)
	}
	return mp.members[len(mp.members)-1].CScore.PenalizedScore()
}

// --- §4.7.3 Resize ---

// cap64 returns the dynamic population cap for the given merge count
// (spec.md §4.7.3).
func cap64(mergeCount int) float64 {
	mc := float64(mergeCount)
	return 50 * (mc + 250) * (1 + 2*math.Exp(-mc/500))
}

func (mp *Metapopulation) resize() {
	mp.mergeMutex.Lock()
	defer mp.mergeMutex.Unlock()

	if len(mp.members) == 0 {
		return
	}
	minPool := mp.params.MinPoolSize
	if minPool <= 0 {
		minPool = defaultMinPoolSize
	}
	tau := mp.params.ComplexityTemperature
	top := mp.members[0].CScore.PenalizedScore()
	floor := top - usefulRange(tau)

	var removed []CandidateRef

	// Phase A: drop the tail prefix below floor, keeping at least MinPool.
	n := len(mp.members)
	for n > minPool && mp.members[n-1].CScore.PenalizedScore() < floor {
		removed = append(removed, CandidateRef(mp.members[n-1].Tree.Hash()))
		n--
	}
	mp.members = mp.members[:n]

	// Phase B: dynamic cap, protecting the top MinPoolKeepTop entries.
	capN := cap64(mp.mergeCount)
	protect := MinPoolKeepTop
	if protect > len(mp.members) {
		protect = len(mp.members)
	}
	for float64(len(mp.members)) > capN && len(mp.members) > protect {
		idx := protect + mp.randIntn(len(mp.members)-protect)
		removed = append(removed, CandidateRef(mp.members[idx].Tree.Hash()))
		mp.members = append(mp.members[:idx], mp.members[idx+1:]...)
	}

	mp.reindexLocked()
	if len(removed) > 0 {
		mp.diversity.EraseRefs(removed)
	}
	if klog.V(1).Enabled() {
		klog.Infof("resize: merge_count=%d size=%d cap=%.1f removed=%d",
			mp.mergeCount, len(mp.members), capN, len(removed))
	}
}

// --- §4.7.4 Diversity penalty recomputation ---

func (mp *Metapopulation) recomputeDiversity() {
	mp.mergeMutex.Lock()
	defer mp.mergeMutex.Unlock()

	remaining := make([]ScoredTree, len(mp.members))
	copy(remaining, mp.members)
	pool := make([]ScoredTree, 0, len(remaining))
	runningSum := make(map[uint64]float64, len(remaining))
	exponent := mp.params.DiversityExponent

	for len(remaining) > 0 {
		if len(pool) > 0 {
			last := pool[len(pool)-1]
			lastRef := CandidateRef(last.Tree.Hash())
			for i := range remaining {
				x := &remaining[i]
				ref := CandidateRef(x.Tree.Hash())
				ddp := mp.diversity.PairwiseDistortion(ref, x.BScore, lastRef, last.BScore)
				var penalty float64
				if exponent > 0 {
					runningSum[uint64(ref)] += ddp
					penalty = math.Pow(runningSum[uint64(ref)]/float64(len(pool)), 1/exponent)
				} else {
					if ddp > runningSum[uint64(ref)] {
						runningSum[uint64(ref)] = ddp
					}
					penalty = runningSum[uint64(ref)]
				}
				x.CScore.DiversityPenalty = penalty
			}
		}

		bestIdx := 0
		for i := 1; i < len(remaining); i++ {
			if less(remaining[i], remaining[bestIdx]) {
				bestIdx = i
			}
		}
		pool = append(pool, remaining[bestIdx])
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}

	mp.members = pool
	mp.reindexLocked()
}
