package graph

import "fmt"

// Editor implements the pin manipulation primitives over a host Accessor.
// Every mutating primitive validates fully before mutating anything: on any
// validation failure the graph is left exactly as it was.
type Editor struct {
	acc Accessor
}

// NewEditor creates an editor over the given host accessor.
func NewEditor(acc Accessor) *Editor {
	return &Editor{acc: acc}
}

// Accessor returns the underlying host accessor.
func (e *Editor) Accessor() Accessor { return e.acc }

// FindPin returns the first pin on the node with an exact name match. When
// dir is DirAny the match is irrespective of direction; duplicate names
// resolve to first-declared order.
func (e *Editor) FindPin(node, name string, dir Direction) (*PinState, error) {
	pins, err := e.acc.Pins(node)
	if err != nil {
		return nil, err
	}
	for _, pin := range pins {
		if pin.Ref.Pin != name {
			continue
		}
		if dir != DirAny && pin.Direction != DirAny && pin.Direction != dir {
			continue
		}
		return pin, nil
	}
	return nil, opErr("FindPin", PinRef{Node: node, Pin: name}, ErrPinNotFound)
}

// FindPinByAlias returns the first pin matching any name in the ordered
// alias list. Semantically identical pins differ in surface name across
// node kinds, so callers probe the known aliases in preference order.
func (e *Editor) FindPinByAlias(node string, names []string, dir Direction) (*PinState, error) {
	for _, name := range names {
		pin, err := e.FindPin(node, name, dir)
		if err == nil {
			return pin, nil
		}
	}
	return nil, opErr("FindPinByAlias", PinRef{Node: node}, ErrPinNotFound)
}

// CanConnect reports whether two pins can be linked, with a human-readable
// reason when they cannot. Read-only; no mutation.
func (e *Editor) CanConnect(a, b PinRef) (bool, string) {
	_, _, err := e.validateConnect(a, b)
	if err != nil {
		return false, err.Error()
	}
	return true, ""
}

// Connect links two pins. If the input side already has a link and does not
// permit multiple inputs, the pre-existing link is broken first: rewiring
// a single input slot replaces, never accumulates. Returns the replaced
// peer, if any.
func (e *Editor) Connect(a, b PinRef) (replaced *PinRef, err error) {
	_, input, err := e.validateConnect(a, b)
	if err != nil {
		return nil, err
	}

	if input.Connected() && !input.MultiInput {
		prev := input.Links[0]
		if _, err := e.acc.RemoveLink(input.Ref, prev); err != nil {
			return nil, opErr("Connect", input.Ref, err)
		}
		replaced = &prev
	}

	if err := e.acc.CreateLink(a, b); err != nil {
		return nil, opErr("Connect", a, err)
	}
	return replaced, nil
}

// Disconnect removes exactly the link between the two pins if present.
// Idempotent: a missing link returns (false, nil), not an error.
func (e *Editor) Disconnect(a, b PinRef) (bool, error) {
	if _, err := e.pin(a, "Disconnect"); err != nil {
		return false, err
	}
	if _, err := e.pin(b, "Disconnect"); err != nil {
		return false, err
	}
	removed, err := e.acc.RemoveLink(a, b)
	if err != nil {
		return false, opErr("Disconnect", a, err)
	}
	return removed, nil
}

// BreakAllLinks removes every link touching the pin and returns the count
// removed. Zero is a valid result.
func (e *Editor) BreakAllLinks(ref PinRef) (int, error) {
	pin, err := e.pin(ref, "BreakAllLinks")
	if err != nil {
		return 0, err
	}
	count := 0
	for _, peer := range pin.Links {
		removed, err := e.acc.RemoveLink(ref, peer)
		if err != nil {
			return count, opErr("BreakAllLinks", ref, err)
		}
		if removed {
			count++
		}
	}
	return count, nil
}

// Split decomposes a composite pin into per-field sub-pins. The parent pin
// becomes inert until recombined. A pin with live links cannot be split.
func (e *Editor) Split(ref PinRef) ([]PinRef, error) {
	pin, err := e.pin(ref, "Split")
	if err != nil {
		return nil, err
	}
	if pin.Inert {
		return nil, opErr("Split", ref, ErrPinInert)
	}
	if !pin.Type.Composite() {
		return nil, opErr("Split", ref, ErrNotSplittable)
	}
	if pin.Connected() {
		return nil, opErr("Split", ref, ErrHasLiveLinks)
	}

	subs, err := e.acc.SplitPin(ref)
	if err != nil {
		return nil, opErr("Split", ref, err)
	}
	return subs, nil
}

// Recombine collapses a split group given any of its sub-pins, restoring
// the parent with its prior default value. If any sibling sub-pin is
// connected the call fails with ErrSubPinsConnected unless force is set, in
// which case those links are dropped. Returns the parent ref and the number
// of links dropped.
func (e *Editor) Recombine(sub PinRef, force bool) (PinRef, int, error) {
	pin, err := e.pin(sub, "Recombine")
	if err != nil {
		return PinRef{}, 0, err
	}
	if pin.Parent == nil {
		return PinRef{}, 0, opErr("Recombine", sub, ErrNotSubPin)
	}

	parent, err := e.pin(*pin.Parent, "Recombine")
	if err != nil {
		return PinRef{}, 0, err
	}

	// Collect connected siblings before mutating anything.
	var connected []*PinState
	for _, subRef := range parent.SubPins {
		sibling, err := e.pin(subRef, "Recombine")
		if err != nil {
			return PinRef{}, 0, err
		}
		if sibling.Connected() {
			connected = append(connected, sibling)
		}
	}
	if len(connected) > 0 && !force {
		return PinRef{}, 0, opErr("Recombine", sub, ErrSubPinsConnected)
	}

	dropped := 0
	for _, sibling := range connected {
		n, err := e.BreakAllLinks(sibling.Ref)
		dropped += n
		if err != nil {
			return PinRef{}, dropped, err
		}
	}

	parentRef, err := e.acc.RecombinePin(sub)
	if err != nil {
		return PinRef{}, dropped, opErr("Recombine", sub, err)
	}
	return parentRef, dropped, nil
}

// SetDefault parses value into the pin's declared type and stores it as the
// pin's default. Defaults are meaningless on a wired pin, so a connected
// pin fails with ErrPinConnected; an inert split parent fails with
// ErrPinInert.
func (e *Editor) SetDefault(ref PinRef, value any) error {
	pin, err := e.pin(ref, "SetDefault")
	if err != nil {
		return err
	}
	if pin.Inert {
		return opErr("SetDefault", ref, ErrPinInert)
	}
	if pin.Connected() {
		return opErr("SetDefault", ref, ErrPinConnected)
	}

	parsed, err := e.acc.ParseValue(pin.Type, value)
	if err != nil {
		return opErr("SetDefault", ref, err)
	}
	if err := e.acc.SetDefault(ref, parsed); err != nil {
		return opErr("SetDefault", ref, err)
	}
	return nil
}

// Default returns the pin's default value and whether one is set.
func (e *Editor) Default(ref PinRef) (any, bool, error) {
	pin, err := e.pin(ref, "Default")
	if err != nil {
		return nil, false, err
	}
	return pin.Default, pin.HasDefault, nil
}

// ClearDefault removes the pin's default value. Clearing an already-empty
// default is a no-op success.
func (e *Editor) ClearDefault(ref PinRef) error {
	if _, err := e.pin(ref, "ClearDefault"); err != nil {
		return err
	}
	if err := e.acc.ClearDefault(ref); err != nil {
		return opErr("ClearDefault", ref, err)
	}
	return nil
}

// validateConnect resolves both pins, assigns input/output roles and checks
// every connection precondition. Returns (output, input) on success.
func (e *Editor) validateConnect(a, b PinRef) (*PinState, *PinState, error) {
	pa, err := e.pin(a, "Connect")
	if err != nil {
		return nil, nil, err
	}
	pb, err := e.pin(b, "Connect")
	if err != nil {
		return nil, nil, err
	}

	if pa.Inert {
		return nil, nil, opErr("Connect", a, ErrPinInert)
	}
	if pb.Inert {
		return nil, nil, opErr("Connect", b, ErrPinInert)
	}
	if pa.Ref.Node == pb.Ref.Node {
		return nil, nil, opErr("Connect", a, fmt.Errorf("%w: both pins on node %s", ErrIncompatiblePins, pa.Ref.Node))
	}

	output, input, ok := resolveRoles(pa, pb)
	if !ok {
		return nil, nil, opErr("Connect", a, fmt.Errorf("%w: directions %s and %s", ErrIncompatiblePins, pa.Direction, pb.Direction))
	}

	if !e.typesCompatible(output.Type, input.Type) {
		return nil, nil, opErr("Connect", a, fmt.Errorf("%w: %s does not convert to %s", ErrIncompatiblePins, output.Type.Name, input.Type.Name))
	}
	return output, input, nil
}

// resolveRoles assigns output/input roles to a pin pair. A DirAny pin
// adopts the role opposite its peer; when both are DirAny the first
// argument is treated as the output (the caller's source).
func resolveRoles(a, b *PinState) (output, input *PinState, ok bool) {
	switch {
	case a.Direction == DirOutput && b.Direction == DirInput:
		return a, b, true
	case a.Direction == DirInput && b.Direction == DirOutput:
		return b, a, true
	case a.Direction == DirAny && b.Direction == DirInput:
		return a, b, true
	case a.Direction == DirAny && b.Direction == DirOutput:
		return b, a, true
	case a.Direction == DirOutput && b.Direction == DirAny:
		return a, b, true
	case a.Direction == DirInput && b.Direction == DirAny:
		return b, a, true
	case a.Direction == DirAny && b.Direction == DirAny:
		return a, b, true
	default:
		return nil, nil, false
	}
}

func (e *Editor) typesCompatible(from, to TypeDesc) bool {
	if from.Name == to.Name {
		return true
	}
	return e.acc.CanConvert(from, to)
}

func (e *Editor) pin(ref PinRef, op string) (*PinState, error) {
	pin, err := e.acc.Pin(ref)
	if err != nil {
		return nil, opErr(op, ref, err)
	}
	return pin, nil
}
