package moses

import (
	"fmt"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
)

// ErrExemplarsExhausted signals normal driver termination: every candidate
// in the metapopulation has already been used as an exemplar (spec.md §7).
var ErrExemplarsExhausted = errors.New("moses: no unvisited exemplar remains")

// invariantViolation is raised via exceptions.Panicf for fatal,
// caller-visible bugs (spec.md §7): conditions that should be impossible
// under the documented invariants, e.g. a zero Boltzmann weight sum while
// candidates remain. It carries enough context to reproduce: phase,
// merge count, and the exemplar's hash.
type invariantViolation struct {
	Phase      string
	MergeCount int
	ExemplarID uint64
	Detail     string
}

func (e *invariantViolation) Error() string {
	return fmt.Sprintf("moses: invariant violation in phase %q (merge_count=%d, exemplar=%x): %s",
		e.Phase, e.MergeCount, e.ExemplarID, e.Detail)
}

// panicInvariant raises a fatal, caller-visible invariant violation. It is
// meant to be recovered by RunSafely via exceptions.TryCatch, matching the
// teacher's exceptions.Panicf / TryCatch split between recoverable and
// fatal conditions (internal/searchers/alphabeta's exceptions.Panicf
// precedent).
func panicInvariant(phase string, mergeCount int, exemplarHash uint64, format string, args ...any) {
	v := &invariantViolation{
		Phase:      phase,
		MergeCount: mergeCount,
		ExemplarID: exemplarHash,
		Detail:     fmt.Sprintf(format, args...),
	}
	exceptions.Panicf("%s", v.Error())
}

// RunSafely runs fn, converting any exceptions.Panicf-raised invariant
// violation into a returned error instead of a crash, matching the
// teacher's exceptions.TryCatch precedent
// (cmd/a0trainer/ai.go, cmd/a0-trainer/ai.go).
func RunSafely(fn func()) error {
	return exceptions.TryCatch[error](fn)
}
