package moses

import "sort"

// ScoredInstance pairs a packed Instance with the composite score obtained
// by evaluating it (spec.md §3).
type ScoredInstance struct {
	Instance Instance
	CScore   CompositeScore
}

// Deme is a growable collection of ScoredInstances sharing one
// Representation (spec.md §4.3). It is not safe for concurrent mutation
// once Sort has been called.
type Deme struct {
	Rep       *Representation
	Instances []ScoredInstance
}

// NewDeme returns an empty deme over rep.
func NewDeme(rep *Representation) *Deme {
	return &Deme{Rep: rep}
}

// Add appends a scored instance to the deme.
func (d *Deme) Add(inst Instance, cscore CompositeScore) {
	d.Instances = append(d.Instances, ScoredInstance{Instance: inst, CScore: cscore})
}

// Len returns the number of instances in the deme.
func (d *Deme) Len() int { return len(d.Instances) }

// demeSort implements sort.Interface to order a Deme's instances by
// descending composite score, mirroring the teacher's ScoresToSort
// joint-sort idiom (internal/searchers/searchers.go in the source repo).
type demeSort struct{ instances []ScoredInstance }

func (s demeSort) Len() int { return len(s.instances) }
func (s demeSort) Less(i, j int) bool {
	return s.instances[i].CScore.PenalizedScore() > s.instances[j].CScore.PenalizedScore()
}
func (s demeSort) Swap(i, j int) {
	s.instances[i], s.instances[j] = s.instances[j], s.instances[i]
}

// Sort orders the deme's instances descending by composite score
// (spec.md §4.3, and step 1 of the merge pipeline in §4.7.2).
func (d *Deme) Sort() {
	sort.Sort(demeSort{d.Instances})
}
