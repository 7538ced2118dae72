package moses

import "fmt"

// testTree is a minimal Tree implementation used across this package's
// tests: an opaque identity plus a complexity, nothing more -- exactly the
// surface spec.md §3 requires of a Tree.
type testTree struct {
	id         int
	complexity uint32
}

func newTestTree(id int, complexity uint32) *testTree {
	return &testTree{id: id, complexity: complexity}
}

func (t *testTree) Equal(other Tree) bool {
	o, ok := other.(*testTree)
	return ok && o.id == t.id
}

func (t *testTree) Hash() uint64 { return uint64(t.id) }

func (t *testTree) Complexity() uint32 { return t.complexity }

func (t *testTree) String() string { return fmt.Sprintf("t%d", t.id) }

var _ Tree = (*testTree)(nil)
