package graph

// DescribePin returns a structural snapshot of one pin. Compact output
// carries name, direction and type; verbose output adds default value,
// split state and connected-pin identities. Snapshots are taken in a single
// accessor read on the host thread, so no interleaved mutation is visible.
func (e *Editor) DescribePin(ref PinRef, verbose bool) (map[string]any, error) {
	pin, err := e.pin(ref, "DescribePin")
	if err != nil {
		return nil, err
	}
	return describe(pin, verbose), nil
}

// DescribeAllPins returns snapshots of every pin on the node in declaration
// order, at the same verbosity rules as DescribePin.
func (e *Editor) DescribeAllPins(node string, verbose bool) ([]map[string]any, error) {
	pins, err := e.acc.Pins(node)
	if err != nil {
		return nil, opErr("DescribeAllPins", PinRef{Node: node}, err)
	}
	out := make([]map[string]any, 0, len(pins))
	for _, pin := range pins {
		out = append(out, describe(pin, verbose))
	}
	return out, nil
}

func describe(pin *PinState, verbose bool) map[string]any {
	snap := map[string]any{
		"name":      pin.Ref.Pin,
		"node":      pin.Ref.Node,
		"direction": pin.Direction.String(),
		"type":      describeType(pin.Type),
	}
	if !verbose {
		return snap
	}

	snap["connected"] = pin.Connected()
	snap["inert"] = pin.Inert
	snap["multi_input"] = pin.MultiInput
	if pin.HasDefault {
		snap["default"] = pin.Default
	}
	if len(pin.Links) > 0 {
		links := make([]map[string]any, 0, len(pin.Links))
		for _, peer := range pin.Links {
			links = append(links, map[string]any{"node": peer.Node, "pin": peer.Pin})
		}
		snap["links"] = links
	}
	if len(pin.SubPins) > 0 {
		subs := make([]string, 0, len(pin.SubPins))
		for _, sub := range pin.SubPins {
			subs = append(subs, sub.Pin)
		}
		snap["sub_pins"] = subs
	}
	if pin.Parent != nil {
		snap["parent"] = pin.Parent.Pin
	}
	return snap
}

func describeType(t TypeDesc) map[string]any {
	desc := map[string]any{"name": t.Name}
	if t.Composite() {
		fields := make([]map[string]any, 0, len(t.Fields))
		for _, f := range t.Fields {
			fields = append(fields, map[string]any{"name": f.Name, "type": f.Type.Name})
		}
		desc["fields"] = fields
	}
	return desc
}
