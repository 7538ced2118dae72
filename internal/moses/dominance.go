package moses

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Dominance is the tri-state result of comparing two behavioral score
// vectors (spec.md §4.5).
type Dominance int

const (
	Incomparable Dominance = iota
	DominatesTrue
	DominatesFalse
)

// dominates reports whether x dominates y: x >= y component-wise with at
// least one strict inequality. Returns Incomparable when neither dominates
// the other, including when both vectors are empty. An empty vector is
// dominated by every non-empty one (spec.md §4.5).
func dominates(x, y BehavioralScore) Dominance {
	if len(x) == 0 && len(y) == 0 {
		return Incomparable
	}
	if len(x) == 0 {
		return DominatesFalse
	}
	if len(y) == 0 {
		return DominatesTrue
	}
	xStrict, yStrict := false, false
	n := len(x)
	if len(y) < n {
		n = len(y)
	}
	for i := 0; i < n; i++ {
		switch {
		case x[i] > y[i]:
			xStrict = true
		case x[i] < y[i]:
			yStrict = true
		}
	}
	switch {
	case xStrict && !yStrict:
		return DominatesTrue
	case yStrict && !xStrict:
		return DominatesFalse
	default:
		return Incomparable
	}
}

// Dominates is the exported boolean form of dominates(x,y) == DominatesTrue,
// used by tests exercising property I5.
func Dominates(x, y BehavioralScore) bool {
	return dominates(x, y) == DominatesTrue
}

// candidate pairs a ScoredTree with its behavioral score for dominance
// comparisons. id is a stable per-extraction identity (its index in the
// slice passed to NonDominatedSet), used instead of tree hashing for the
// set-intersection step so structurally-equal-but-distinct trees in the
// same batch are never conflated.
type candidate struct {
	tree   ScoredTree
	bscore BehavioralScore
	id     int
}

// defaultJobBudget is the job budget NonDominatedSet uses when the caller
// passes none. The budget bounds how many more levels of the
// divide-and-conquer recursion may spawn a goroutine, halving with depth per
// spec.md §4.5/§9.
const defaultJobBudget = 64

// NonDominatedSet extracts the non-dominated subset of candidates (by their
// behavioral scores), using parallel divide-and-conquer recursion bounded
// by jobBudget worker slots (spec.md §4.5). The result's content is
// deterministic; element order is not -- callers must re-sort via the
// metapopulation's total order before use.
func NonDominatedSet(ctx context.Context, candidates []candidate, jobBudget int) ([]candidate, error) {
	if jobBudget <= 0 {
		jobBudget = defaultJobBudget
	}
	withIDs := make([]candidate, len(candidates))
	for i, c := range candidates {
		c.id = i
		withIDs[i] = c
	}
	return nonDominatedSet(ctx, withIDs, jobBudget)
}

func nonDominatedSet(ctx context.Context, s []candidate, budget int) ([]candidate, error) {
	if len(s) <= 1 {
		return s, nil
	}
	mid := len(s) / 2
	a, b := s[:mid], s[mid:]

	var aPrime, bPrime []candidate
	if budget > 1 {
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			aPrime, err = nonDominatedSet(gctx, a, budget/2)
			return err
		})
		g.Go(func() error {
			var err error
			bPrime, err = nonDominatedSet(gctx, b, budget/2)
			return err
		})
		if err := g.Wait(); err != nil {
			return nil, err
		}
	} else {
		var err error
		aPrime, err = nonDominatedSet(ctx, a, 0)
		if err != nil {
			return nil, err
		}
		bPrime, err = nonDominatedSet(ctx, b, 0)
		if err != nil {
			return nil, err
		}
	}

	aSurvivors, bSurvivors, err := ndDisjoint(ctx, aPrime, bPrime, budget)
	if err != nil {
		return nil, err
	}
	return append(aSurvivors, bSurvivors...), nil
}

// ndDisjoint computes the non-dominated members of the union of two
// internally non-dominated, disjoint sets a and b, returning them split as
// (the members of a dominated by no member of b, the members of b dominated
// by no member of a) per spec.md §4.5.
func ndDisjoint(ctx context.Context, a, b []candidate, budget int) (result, bRemaining []candidate, err error) {
	if len(a) == 1 {
		x := a[0]
		keptB := make([]candidate, 0, len(b))
		dominated := false
		for _, y := range b {
			switch dominates(y.bscore, x.bscore) {
			case DominatesTrue:
				dominated = true
				keptB = append(keptB, y)
			case Incomparable:
				keptB = append(keptB, y)
			default:
				// y dominated by x: drop y.
			}
		}
		if dominated {
			return nil, keptB, nil
		}
		return []candidate{x}, keptB, nil
	}

	mid := len(a) / 2
	a1, a2 := a[:mid], a[mid:]

	// Both halves are checked against the same original b, concurrently when
	// budget allows it (original's multithreaded trick, metapopulation.cc's
	// nd_disjoint split): a2 does not need b1Prime to start, since anything
	// a1 drops from b is still present to compare a2 against. The two
	// independently-computed B-remainders are reconciled afterwards by
	// intersection -- a y survives only if neither half dropped it.
	var r1, b1Prime, r2, b2Prime []candidate
	if budget > 1 {
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			r1, b1Prime, err = ndDisjoint(gctx, a1, b, budget/2)
			return err
		})
		g.Go(func() error {
			var err error
			r2, b2Prime, err = ndDisjoint(gctx, a2, b, budget/2)
			return err
		})
		if err := g.Wait(); err != nil {
			return nil, nil, err
		}
	} else {
		r1, b1Prime, err = ndDisjoint(ctx, a1, b, 0)
		if err != nil {
			return nil, nil, err
		}
		r2, b2Prime, err = ndDisjoint(ctx, a2, b, 0)
		if err != nil {
			return nil, nil, err
		}
	}

	result = append(result, r1...)
	result = append(result, r2...)
	bRemaining = intersectByID(b1Prime, b2Prime)
	return result, bRemaining, nil
}

// intersectByID returns the members of x that also appear (by id) in y,
// preserving x's order.
func intersectByID(x, y []candidate) []candidate {
	present := make(map[int]struct{}, len(y))
	for _, c := range y {
		present[c.id] = struct{}{}
	}
	out := make([]candidate, 0, len(x))
	for _, c := range x {
		if _, ok := present[c.id]; ok {
			out = append(out, c)
		}
	}
	return out
}
