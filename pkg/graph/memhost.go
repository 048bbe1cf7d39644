package graph

import (
	"fmt"
	"math"
	"sync"
)

// Built-in value types for the in-memory host. Composite types carry their
// field decomposition and can be split into sub-pins.
var (
	TypeInt    = TypeDesc{Name: "int"}
	TypeFloat  = TypeDesc{Name: "float"}
	TypeBool   = TypeDesc{Name: "bool"}
	TypeString = TypeDesc{Name: "string"}

	TypeVector3 = TypeDesc{Name: "vector3", Fields: []FieldDesc{
		{Name: "x", Type: TypeFloat},
		{Name: "y", Type: TypeFloat},
		{Name: "z", Type: TypeFloat},
	}}

	TypeColor = TypeDesc{Name: "color", Fields: []FieldDesc{
		{Name: "r", Type: TypeFloat},
		{Name: "g", Type: TypeFloat},
		{Name: "b", Type: TypeFloat},
		{Name: "a", Type: TypeFloat},
	}}

	TypeTransform = TypeDesc{Name: "transform", Fields: []FieldDesc{
		{Name: "position", Type: TypeVector3},
		{Name: "rotation", Type: TypeVector3},
		{Name: "scale", Type: TypeVector3},
	}}
)

// PinSpec declares one pin when building a node.
type PinSpec struct {
	Name       string
	Direction  Direction
	Type       TypeDesc
	MultiInput bool
	Default    any
}

type memPin struct {
	name       string
	dir        Direction
	typ        TypeDesc
	multiInput bool
	def        any
	hasDef     bool
	inert      bool
	subs       []string
	parent     string
	links      []PinRef
}

type memNode struct {
	id     string
	pins   []*memPin
	byName map[string]*memPin
}

// MemHost is an in-memory graph satisfying the Accessor interface. It backs
// tests and the demo server; a production deployment would implement
// Accessor against the editor application's live object graph instead.
type MemHost struct {
	mu    sync.RWMutex
	nodes map[string]*memNode
	order []string
}

// NewMemHost creates an empty in-memory host graph.
func NewMemHost() *MemHost {
	return &MemHost{nodes: make(map[string]*memNode)}
}

// AddNode creates a node with the given pins in declaration order.
func (h *MemHost) AddNode(id string, specs ...PinSpec) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.nodes[id]; exists {
		return fmt.Errorf("node %s already exists", id)
	}
	node := &memNode{id: id, byName: make(map[string]*memPin)}
	for _, spec := range specs {
		if _, dup := node.byName[spec.Name]; dup {
			return fmt.Errorf("node %s: duplicate pin %s", id, spec.Name)
		}
		pin := &memPin{
			name:       spec.Name,
			dir:        spec.Direction,
			typ:        spec.Type,
			multiInput: spec.MultiInput,
		}
		if spec.Default != nil {
			parsed, err := h.parseValue(spec.Type, spec.Default)
			if err != nil {
				return fmt.Errorf("node %s pin %s: %w", id, spec.Name, err)
			}
			pin.def = parsed
			pin.hasDef = true
		}
		node.pins = append(node.pins, pin)
		node.byName[spec.Name] = pin
	}
	h.nodes[id] = node
	h.order = append(h.order, id)
	return nil
}

// RemoveNode deletes a node and breaks all links touching its pins.
func (h *MemHost) RemoveNode(id string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	node, ok := h.nodes[id]
	if !ok {
		return ErrNodeNotFound
	}
	for _, pin := range node.pins {
		for _, peer := range pin.links {
			h.removeLinkSide(peer, PinRef{Node: id, Pin: pin.name})
		}
	}
	delete(h.nodes, id)
	for i, n := range h.order {
		if n == id {
			h.order = append(h.order[:i], h.order[i+1:]...)
			break
		}
	}
	return nil
}

// NodeIDs returns the node ids in creation order.
func (h *MemHost) NodeIDs() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, len(h.order))
	copy(out, h.order)
	return out
}

// Pins implements Accessor.
func (h *MemHost) Pins(node string) ([]*PinState, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n, ok := h.nodes[node]
	if !ok {
		return nil, ErrNodeNotFound
	}
	out := make([]*PinState, 0, len(n.pins))
	for _, pin := range n.pins {
		out = append(out, h.snapshot(node, pin))
	}
	return out, nil
}

// Pin implements Accessor.
func (h *MemHost) Pin(ref PinRef) (*PinState, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	pin, err := h.findPin(ref)
	if err != nil {
		return nil, err
	}
	return h.snapshot(ref.Node, pin), nil
}

// CreateLink implements Accessor. Creating a link that already exists is a
// no-op so the editor's rewiring stays idempotent at the storage boundary.
func (h *MemHost) CreateLink(a, b PinRef) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	pa, err := h.findPin(a)
	if err != nil {
		return err
	}
	pb, err := h.findPin(b)
	if err != nil {
		return err
	}
	if hasLink(pa, b) {
		return nil
	}
	pa.links = append(pa.links, b)
	pb.links = append(pb.links, a)
	return nil
}

// RemoveLink implements Accessor.
func (h *MemHost) RemoveLink(a, b PinRef) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, err := h.findPin(a); err != nil {
		return false, err
	}
	if _, err := h.findPin(b); err != nil {
		return false, err
	}
	removedA := h.removeLinkSide(a, b)
	removedB := h.removeLinkSide(b, a)
	return removedA || removedB, nil
}

// SplitPin implements Accessor. Sub-pins take dotted names (pos -> pos.x)
// and inherit the parent's direction; defaults are seeded from the parent's
// composite default when present.
func (h *MemHost) SplitPin(ref PinRef) ([]PinRef, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	node := h.nodes[ref.Node]
	if node == nil {
		return nil, ErrNodeNotFound
	}
	pin, ok := node.byName[ref.Pin]
	if !ok {
		return nil, ErrPinNotFound
	}
	if pin.inert {
		return nil, ErrPinInert
	}
	if !pin.typ.Composite() {
		return nil, ErrNotSplittable
	}

	defFields, _ := pin.def.(map[string]any)

	var subRefs []PinRef
	var subPins []*memPin
	for _, field := range pin.typ.Fields {
		subName := pin.name + "." + field.Name
		sub := &memPin{
			name:   subName,
			dir:    pin.dir,
			typ:    field.Type,
			parent: pin.name,
		}
		if defFields != nil {
			if v, ok := defFields[field.Name]; ok {
				sub.def = v
				sub.hasDef = true
			}
		}
		subPins = append(subPins, sub)
		subRefs = append(subRefs, PinRef{Node: ref.Node, Pin: subName})
		pin.subs = append(pin.subs, subName)
	}
	pin.inert = true

	// Insert sub-pins directly after the parent in declaration order.
	idx := pinIndex(node, pin.name)
	tail := append([]*memPin{}, node.pins[idx+1:]...)
	node.pins = append(node.pins[:idx+1], subPins...)
	node.pins = append(node.pins, tail...)
	for _, sub := range subPins {
		node.byName[sub.name] = sub
	}
	return subRefs, nil
}

// RecombinePin implements Accessor. The editor has already removed (or
// approved dropping) sub-pin links; any stragglers are detached here so the
// graph never holds links to deleted pins.
func (h *MemHost) RecombinePin(subRef PinRef) (PinRef, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	node := h.nodes[subRef.Node]
	if node == nil {
		return PinRef{}, ErrNodeNotFound
	}
	sub, ok := node.byName[subRef.Pin]
	if !ok {
		return PinRef{}, ErrPinNotFound
	}
	if sub.parent == "" {
		return PinRef{}, ErrNotSubPin
	}
	parent := node.byName[sub.parent]
	if parent == nil {
		return PinRef{}, ErrPinNotFound
	}

	for _, subName := range parent.subs {
		subPin := node.byName[subName]
		if subPin == nil {
			continue
		}
		ref := PinRef{Node: subRef.Node, Pin: subName}
		for _, peer := range subPin.links {
			h.removeLinkSide(peer, ref)
		}
		delete(node.byName, subName)
		idx := pinIndex(node, subName)
		if idx >= 0 {
			node.pins = append(node.pins[:idx], node.pins[idx+1:]...)
		}
	}
	parent.subs = nil
	parent.inert = false
	return PinRef{Node: subRef.Node, Pin: parent.name}, nil
}

// SetDefault implements Accessor.
func (h *MemHost) SetDefault(ref PinRef, value any) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	pin, err := h.findPin(ref)
	if err != nil {
		return err
	}
	pin.def = value
	pin.hasDef = true
	return nil
}

// ClearDefault implements Accessor.
func (h *MemHost) ClearDefault(ref PinRef) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	pin, err := h.findPin(ref)
	if err != nil {
		return err
	}
	pin.def = nil
	pin.hasDef = false
	return nil
}

// CanConvert implements Accessor. The in-memory host defines one implicit
// conversion: int widens to float.
func (h *MemHost) CanConvert(from, to TypeDesc) bool {
	return from.Name == TypeInt.Name && to.Name == TypeFloat.Name
}

// ParseValue implements Accessor.
func (h *MemHost) ParseValue(t TypeDesc, raw any) (any, error) {
	return h.parseValue(t, raw)
}

func (h *MemHost) parseValue(t TypeDesc, raw any) (any, error) {
	if t.Composite() {
		fields, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: %s expects an object", ErrTypeMismatch, t.Name)
		}
		parsed := make(map[string]any, len(t.Fields))
		known := make(map[string]bool, len(t.Fields))
		for _, field := range t.Fields {
			known[field.Name] = true
			v, present := fields[field.Name]
			if !present {
				continue
			}
			pv, err := h.parseValue(field.Type, v)
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", field.Name, err)
			}
			parsed[field.Name] = pv
		}
		for k := range fields {
			if !known[k] {
				return nil, fmt.Errorf("%w: %s has no field %s", ErrTypeMismatch, t.Name, k)
			}
		}
		return parsed, nil
	}

	switch t.Name {
	case "int":
		switch v := raw.(type) {
		case int:
			return int64(v), nil
		case int64:
			return v, nil
		case float64:
			if v != math.Trunc(v) {
				return nil, fmt.Errorf("%w: %v is not an integer", ErrTypeMismatch, v)
			}
			return int64(v), nil
		}
	case "float":
		switch v := raw.(type) {
		case float64:
			return v, nil
		case int:
			return float64(v), nil
		case int64:
			return float64(v), nil
		}
	case "bool":
		if v, ok := raw.(bool); ok {
			return v, nil
		}
	case "string":
		if v, ok := raw.(string); ok {
			return v, nil
		}
	default:
		// Host-specific opaque types accept any value as-is.
		return raw, nil
	}
	return nil, fmt.Errorf("%w: cannot parse %T as %s", ErrTypeMismatch, raw, t.Name)
}

func (h *MemHost) findPin(ref PinRef) (*memPin, error) {
	node, ok := h.nodes[ref.Node]
	if !ok {
		return nil, ErrNodeNotFound
	}
	pin, ok := node.byName[ref.Pin]
	if !ok {
		return nil, ErrPinNotFound
	}
	return pin, nil
}

func (h *MemHost) snapshot(nodeID string, pin *memPin) *PinState {
	state := &PinState{
		Ref:        PinRef{Node: nodeID, Pin: pin.name},
		Direction:  pin.dir,
		Type:       pin.typ,
		Default:    pin.def,
		HasDefault: pin.hasDef,
		Inert:      pin.inert,
		MultiInput: pin.multiInput,
	}
	for _, sub := range pin.subs {
		state.SubPins = append(state.SubPins, PinRef{Node: nodeID, Pin: sub})
	}
	if pin.parent != "" {
		parent := PinRef{Node: nodeID, Pin: pin.parent}
		state.Parent = &parent
	}
	state.Links = append(state.Links, pin.links...)
	return state
}

func (h *MemHost) removeLinkSide(from, to PinRef) bool {
	node := h.nodes[from.Node]
	if node == nil {
		return false
	}
	pin := node.byName[from.Pin]
	if pin == nil {
		return false
	}
	for i, peer := range pin.links {
		if peer == to {
			pin.links = append(pin.links[:i], pin.links[i+1:]...)
			return true
		}
	}
	return false
}

func hasLink(pin *memPin, peer PinRef) bool {
	for _, l := range pin.links {
		if l == peer {
			return true
		}
	}
	return false
}

func pinIndex(node *memNode, name string) int {
	for i, pin := range node.pins {
		if pin.name == name {
			return i
		}
	}
	return -1
}
