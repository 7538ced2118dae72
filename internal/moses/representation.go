package moses

import (
	"github.com/linas/moseskit/internal/generics"
	"github.com/pkg/errors"
)

// TypeSignature is an opaque description of a tree's input/output types,
// passed through to the KnobBuilder without interpretation by this package.
type TypeSignature any

// OpSet is a set of opaque operator/argument identifiers, used for
// ignore-ops, perceptions and actions (spec.md §4.2, §4.8).
type OpSet = generics.Set[uint64]

// KnobBuilder decorates an exemplar tree with knobs, producing a
// Representation. It is an external collaborator (spec.md §6); this
// package only calls it and interprets an empty resulting FieldSet as
// "exemplar not expandable".
type KnobBuilder func(
	exemplar Tree,
	typeSig TypeSignature,
	ignoreOps OpSet,
	perceptions, actions OpSet,
	simplifyCandidate, simplifyKnobBuilding bool,
) (*Representation, error)

// Representation pairs a tree snapshot with the FieldSet of knobs attached
// to it. It owns its FieldSet exclusively; the tree is shared only by
// value (spec.md §4.2).
type Representation struct {
	Exemplar Tree
	Fields   *FieldSet

	// Materialize turns an Instance into a concrete Tree. It must be pure
	// and deterministic. Supplied by the KnobBuilder alongside the
	// FieldSet, since only the knob builder knows how field settings map
	// back onto tree structure.
	Materialize func(Instance) Tree
}

// ErrNotExpandable signals that the knob builder produced an empty
// FieldSet for the given exemplar -- it cannot seed a deme, and the driver
// must pick another exemplar (spec.md §4.2, §7).
var ErrNotExpandable = errors.New("moses: exemplar not expandable (empty field set)")

// BuildRepresentation invokes build and rejects an empty resulting
// FieldSet, translating it into ErrNotExpandable.
func BuildRepresentation(build KnobBuilder, exemplar Tree, typeSig TypeSignature,
	ignoreOps, perceptions, actions OpSet, simplifyCandidate, simplifyKnobBuilding bool) (*Representation, error) {
	rep, err := build(exemplar, typeSig, ignoreOps, perceptions, actions, simplifyCandidate, simplifyKnobBuilding)
	if err != nil {
		return nil, errors.Wrap(err, "moses: knob builder failed")
	}
	if rep == nil || rep.Fields == nil || rep.Fields.Empty() {
		return nil, ErrNotExpandable
	}
	return rep, nil
}
