package graph

// Accessor is the Host Graph Accessor collaborator interface: the surface
// the host exposes for reading and rewiring its live node graph. The editor
// never creates or destroys nodes (that is host territory), it only
// queries and rewires existing structure.
//
// All Accessor calls are made from the host's authoritative thread (see
// pkg/host). Implementations that are also called directly, as MemHost is
// in tests, must carry their own locking.
type Accessor interface {
	// Pins returns snapshots of a node's pins in declaration order,
	// including inert split parents and their live sub-pins.
	Pins(node string) ([]*PinState, error)

	// Pin returns a snapshot of a single pin.
	Pin(ref PinRef) (*PinState, error)

	// CreateLink adds a link between two pins. Validation is the editor's
	// job; the host only records the edge.
	CreateLink(a, b PinRef) error

	// RemoveLink removes the link between two pins if present. Removing an
	// absent link is not an error; the bool reports whether one existed.
	RemoveLink(a, b PinRef) (bool, error)

	// SplitPin decomposes a composite pin into per-field sub-pins and marks
	// the parent inert. Returns the sub-pin refs in field order.
	SplitPin(ref PinRef) ([]PinRef, error)

	// RecombinePin collapses a split group given any of its sub-pins,
	// reactivating the parent with its prior default value. The host drops
	// the sub-pins; the editor is responsible for having already removed or
	// approved removal of their links.
	RecombinePin(sub PinRef) (PinRef, error)

	// SetDefault stores a parsed default value on an unconnected pin.
	SetDefault(ref PinRef, value any) error

	// ClearDefault removes a pin's default value; clearing an absent
	// default is a no-op.
	ClearDefault(ref PinRef) error

	// CanConvert reports whether the host defines an implicit conversion
	// from one value type to another. Exact type matches do not reach this.
	CanConvert(from, to TypeDesc) bool

	// ParseValue parses a raw wire value into the declared type, returning
	// the normalized value or ErrTypeMismatch.
	ParseValue(t TypeDesc, raw any) (any, error)
}

// NodeLister is implemented by accessors that can enumerate their nodes;
// used by query handlers for graph-wide introspection.
type NodeLister interface {
	NodeIDs() []string
}
