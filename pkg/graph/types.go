// Package graph implements the pin and link manipulation layer: a set of
// invariant-preserving editing primitives that operate on the host's live
// node graph through the Accessor interface. The package owns no graph
// state itself, only the rules for validating and sequencing mutations
// against it.
package graph

import "fmt"

// Direction is a pin's data-flow direction.
type Direction int

const (
	// DirAny matches either direction in lookups; a pin declared DirAny
	// adopts the opposite role of whatever it is connected to.
	DirAny Direction = iota
	DirInput
	DirOutput
)

// String returns the string representation of a direction.
func (d Direction) String() string {
	switch d {
	case DirInput:
		return "input"
	case DirOutput:
		return "output"
	case DirAny:
		return "any"
	default:
		return "unknown"
	}
}

// ParseDirection converts a wire string to a Direction.
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "input", "INPUT", "in":
		return DirInput, nil
	case "output", "OUTPUT", "out":
		return DirOutput, nil
	case "any", "ANY", "":
		return DirAny, nil
	default:
		return DirAny, fmt.Errorf("invalid pin direction %q", s)
	}
}

// FieldDesc is one field of a composite value type.
type FieldDesc struct {
	Name string
	Type TypeDesc
}

// TypeDesc describes a pin's value type. A non-empty Fields slice marks a
// composite (struct) type that can be split into per-field sub-pins.
type TypeDesc struct {
	Name   string
	Fields []FieldDesc
}

// Composite reports whether the type has a field decomposition.
func (t TypeDesc) Composite() bool {
	return len(t.Fields) > 0
}

// PinRef addresses one pin on one node. Sub-pins created by a split use
// dotted names (parent pin "pos" yields "pos.x", "pos.y", ...).
type PinRef struct {
	Node string `json:"node"`
	Pin  string `json:"pin"`
}

// String returns the node.pin form used in logs and error messages.
func (r PinRef) String() string {
	return r.Node + "." + r.Pin
}

// PinState is a point-in-time snapshot of one pin, read through the
// Accessor under the host's authoritative thread so no partial mutation is
// visible mid-read.
type PinState struct {
	Ref       PinRef
	Direction Direction
	Type      TypeDesc

	// Default holds the unconnected default value, if set. Meaningful only
	// while the pin has no links.
	Default    any
	HasDefault bool

	// Inert is true while the pin is split into sub-pins; an inert pin is
	// not connectable until recombined.
	Inert bool

	// SubPins lists the live sub-pins when Inert, in field order.
	SubPins []PinRef

	// Parent is set on sub-pins and names the split parent.
	Parent *PinRef

	// MultiInput marks host-defined input pins that accept more than one
	// link; all other input pins are single-writer.
	MultiInput bool

	Links []PinRef
}

// Connected reports whether the pin has at least one live link.
func (p *PinState) Connected() bool {
	return len(p.Links) > 0
}
