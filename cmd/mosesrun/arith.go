package main

import (
	"fmt"

	"github.com/linas/moseskit/internal/moses"
)

// Terminal identifiers for leaf nodes.
const (
	termX = iota
	termOne
	termTwo
	termThree
	numTerms
)

var termNames = [numTerms]string{"x", "1", "2", "3"}
var termValues = [numTerms]float64{0, 1, 2, 3} // termX's entry is unused: eval substitutes the sample x

// Operators for internal nodes.
var ops = [...]byte{'+', '-', '*'}

// arithTree is a full binary expression tree of fixed shape: every internal
// node picks one of ops, every leaf picks one of the terminals. It is the
// Tree implementation exercised by internal/moses in this toy driver.
type arithTree struct {
	op       byte // 0 for a leaf
	term     int  // valid when op == 0
	children [2]*arithTree
}

func leafNode(term int) *arithTree {
	return &arithTree{term: term}
}

func opNode(op byte, left, right *arithTree) *arithTree {
	return &arithTree{op: op, children: [2]*arithTree{left, right}}
}

func (t *arithTree) isLeaf() bool { return t.op == 0 }

func (t *arithTree) eval(x float64) float64 {
	if t.isLeaf() {
		if t.term == termX {
			return x
		}
		return termValues[t.term]
	}
	l, r := t.children[0].eval(x), t.children[1].eval(x)
	switch t.op {
	case '+':
		return l + r
	case '-':
		return l - r
	case '*':
		return l * r
	}
	panic(fmt.Sprintf("moses: unknown operator %q", t.op))
}

func (t *arithTree) Equal(other moses.Tree) bool {
	o, ok := other.(*arithTree)
	if !ok {
		return false
	}
	return t.equal(o)
}

func (t *arithTree) equal(o *arithTree) bool {
	if t.isLeaf() != o.isLeaf() {
		return false
	}
	if t.isLeaf() {
		return t.term == o.term
	}
	return t.op == o.op && t.children[0].equal(o.children[0]) && t.children[1].equal(o.children[1])
}

// Hash folds the tree's shape into a 64-bit FNV-1a stream, walking nodes in
// a fixed pre-order so structurally equal trees always hash equally.
func (t *arithTree) Hash() uint64 {
	const offset64 = 14695981039346656037
	const prime64 = 1099511628211
	h := uint64(offset64)
	var walk func(n *arithTree)
	walk = func(n *arithTree) {
		var b byte
		if n.isLeaf() {
			b = byte(0x80 | n.term)
		} else {
			b = n.op
		}
		h ^= uint64(b)
		h *= prime64
		if !n.isLeaf() {
			walk(n.children[0])
			walk(n.children[1])
		}
	}
	walk(t)
	return h
}

func (t *arithTree) Complexity() uint32 {
	if t.isLeaf() {
		return 1
	}
	return 1 + t.children[0].Complexity() + t.children[1].Complexity()
}

func (t *arithTree) String() string {
	if t.isLeaf() {
		return termNames[t.term]
	}
	return fmt.Sprintf("(%s %c %s)", t.children[0].String(), t.op, t.children[1].String())
}

var _ moses.Tree = (*arithTree)(nil)

// arithKnobBuilder returns a KnobBuilder that ignores the exemplar's actual
// shape and always decorates a full binary tree of the given depth: one
// Discrete(len(ops)) field per internal node, one Term(numTerms) field per
// leaf, walked in the same pre-order Materialize rebuilds from.
//
// A real knob builder would decorate the exemplar's own structure (spec.md
// §4.2); this toy driver keeps a single fixed template so the example stays
// short, and relies on the metapopulation's own exemplar-selection /
// diversity machinery to do the interesting work.
func arithKnobBuilder(depth int) moses.KnobBuilder {
	internalCount, leafCount := treeShape(depth)
	return func(exemplar moses.Tree, _ moses.TypeSignature, _ moses.OpSet, _, _ moses.OpSet, _, _ bool) (*moses.Representation, error) {
		fields := make([]moses.Field, 0, internalCount+leafCount)
		for i := 0; i < internalCount; i++ {
			fields = append(fields, moses.NewDiscreteField(len(ops)))
		}
		for i := 0; i < leafCount; i++ {
			fields = append(fields, moses.NewTermField(numTerms))
		}
		fs := moses.NewFieldSet(fields)
		return &moses.Representation{
			Exemplar: exemplar,
			Fields:   fs,
			Materialize: func(inst moses.Instance) moses.Tree {
				return materialize(fs, inst, depth, internalCount)
			},
		}, nil
	}
}

// treeShape returns the number of internal and leaf nodes in a full binary
// tree of the given depth (depth 0 is a single leaf).
func treeShape(depth int) (internal, leaves int) {
	if depth <= 0 {
		return 0, 1
	}
	li, ll := treeShape(depth - 1)
	ri, rl := treeShape(depth - 1)
	return 1 + li + ri, ll + rl
}

// materialize walks the field set in the same pre-order arithKnobBuilder
// laid fields out in, consuming one internal-node field or leaf field per
// node visited.
func materialize(fs *moses.FieldSet, inst moses.Instance, depth, internalCount int) *arithTree {
	nextInternal, nextLeaf := 0, internalCount
	var build func(d int) *arithTree
	build = func(d int) *arithTree {
		if d <= 0 {
			term := int(fs.Get(nextLeaf, inst))
			nextLeaf++
			return leafNode(term)
		}
		op := ops[fs.Get(nextInternal, inst)%uint64(len(ops))]
		nextInternal++
		left := build(d - 1)
		right := build(d - 1)
		return opNode(op, left, right)
	}
	return build(depth)
}
