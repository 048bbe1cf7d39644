package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/nodebridge/nodebridge/pkg/dispatch"
	"github.com/nodebridge/nodebridge/pkg/events"
	"github.com/nodebridge/nodebridge/pkg/graph"
	"github.com/nodebridge/nodebridge/pkg/host"
	"github.com/nodebridge/nodebridge/pkg/metrics"
	"github.com/nodebridge/nodebridge/pkg/protocol"
	"github.com/nodebridge/nodebridge/pkg/risk"
)

// GraphHandlers exposes the pin manipulation primitives as commands. Every
// mutation is marshalled onto the host's authoritative thread; reads take
// the same path so introspection sees a consistent point-in-time view.
type GraphHandlers struct {
	editor  *graph.Editor
	thread  *host.Thread
	hub     *events.Hub
	metrics *metrics.Registry
}

// NewGraphHandlers creates the graph category handler set. hub and metrics
// may be nil in tests.
func NewGraphHandlers(editor *graph.Editor, thread *host.Thread, hub *events.Hub, m *metrics.Registry) *GraphHandlers {
	return &GraphHandlers{editor: editor, thread: thread, hub: hub, metrics: m}
}

// Register adds every graph command to the dispatcher.
func (h *GraphHandlers) Register(d *dispatch.Dispatcher) error {
	regs := []dispatch.Registration{
		{
			Type: "graph_find_pin", Category: "graph", Tier: risk.TierNone,
			Handler: dispatch.HandlerFunc(h.findPin),
		},
		{
			Type: "graph_can_connect_pins", Category: "graph", Tier: risk.TierNone,
			Handler: dispatch.HandlerFunc(h.canConnect),
		},
		{
			Type: "graph_connect_pins", Category: "graph", Tier: risk.TierLow,
			Handler: dispatch.HandlerFunc(h.connect),
		},
		{
			Type: "graph_disconnect_pins", Category: "graph", Tier: risk.TierLow,
			Handler: dispatch.HandlerFunc(h.disconnect),
		},
		{
			Type: "graph_break_all_links", Category: "graph", Tier: risk.TierMedium,
			Preview: func(p map[string]any) string {
				return fmt.Sprintf("break every link on pin %v.%v", p["node"], p["pin"])
			},
			Handler: dispatch.HandlerFunc(h.breakAllLinks),
		},
		{
			Type: "graph_split_pin", Category: "graph", Tier: risk.TierLow,
			Handler: dispatch.HandlerFunc(h.split),
		},
		{
			Type: "graph_recombine_pin", Category: "graph", Tier: risk.TierLow,
			// Forced recombination drops live sub-pin links; that variant
			// must pass the confirmation gate.
			Refiner: func(params map[string]any, base risk.Tier) risk.Tier {
				if force, _ := params["force"].(bool); force {
					return risk.TierMedium
				}
				return base
			},
			Preview: func(p map[string]any) string {
				if force, _ := p["force"].(bool); force {
					return fmt.Sprintf("recombine %v.%v, dropping any sub-pin links", p["node"], p["pin"])
				}
				return ""
			},
			Handler: dispatch.HandlerFunc(h.recombine),
		},
		{
			Type: "graph_set_pin_default", Category: "graph", Tier: risk.TierLow,
			Handler: dispatch.HandlerFunc(h.setDefault),
		},
		{
			Type: "graph_get_pin_default", Category: "graph", Tier: risk.TierNone,
			Handler: dispatch.HandlerFunc(h.getDefault),
		},
		{
			Type: "graph_clear_pin_default", Category: "graph", Tier: risk.TierLow,
			Handler: dispatch.HandlerFunc(h.clearDefault),
		},
	}
	for _, reg := range regs {
		if err := d.Register(reg); err != nil {
			return err
		}
	}
	return nil
}

type pinRequest struct {
	Node string `json:"node" validate:"required"`
	Pin  string `json:"pin" validate:"required"`
}

type pinPairRequest struct {
	SourceNode string `json:"source_node" validate:"required"`
	SourcePin  string `json:"source_pin" validate:"required"`
	TargetNode string `json:"target_node" validate:"required"`
	TargetPin  string `json:"target_pin" validate:"required"`
}

func (r *pinPairRequest) refs() (graph.PinRef, graph.PinRef) {
	return pinRef(r.SourceNode, r.SourcePin), pinRef(r.TargetNode, r.TargetPin)
}

func (h *GraphHandlers) findPin(ctx context.Context, params map[string]any) *protocol.Result {
	var req struct {
		Node      string   `json:"node" validate:"required"`
		Name      string   `json:"name"`
		Names     []string `json:"names"`
		Direction string   `json:"direction"`
	}
	if err := decodeParams(params, &req); err != nil {
		return invalidParams(err)
	}
	if req.Name == "" && len(req.Names) == 0 {
		return invalidParams(errors.New("invalid params: one of name or names is required"))
	}
	dir, err := graph.ParseDirection(req.Direction)
	if err != nil {
		return invalidParams(err)
	}

	var pin *graph.PinState
	invokeErr := h.thread.Invoke(ctx, func() error {
		var err error
		if req.Name != "" {
			pin, err = h.editor.FindPin(req.Node, req.Name, dir)
		} else {
			pin, err = h.editor.FindPinByAlias(req.Node, req.Names, dir)
		}
		return err
	})
	if invokeErr != nil {
		return h.fail(invokeErr)
	}
	return protocol.OK(map[string]any{
		"node":      pin.Ref.Node,
		"pin":       pin.Ref.Pin,
		"direction": pin.Direction.String(),
		"type":      pin.Type.Name,
	})
}

func (h *GraphHandlers) canConnect(ctx context.Context, params map[string]any) *protocol.Result {
	var req pinPairRequest
	if err := decodeParams(params, &req); err != nil {
		return invalidParams(err)
	}
	src, dst := req.refs()

	var ok bool
	var reason string
	invokeErr := h.thread.Invoke(ctx, func() error {
		ok, reason = h.editor.CanConnect(src, dst)
		return nil
	})
	if invokeErr != nil {
		return h.fail(invokeErr)
	}
	data := map[string]any{"can_connect": ok}
	if !ok {
		data["reason"] = reason
	}
	return protocol.OK(data)
}

func (h *GraphHandlers) connect(ctx context.Context, params map[string]any) *protocol.Result {
	var req pinPairRequest
	if err := decodeParams(params, &req); err != nil {
		return invalidParams(err)
	}
	src, dst := req.refs()

	var replaced *graph.PinRef
	invokeErr := h.thread.Invoke(ctx, func() error {
		var err error
		replaced, err = h.editor.Connect(src, dst)
		return err
	})
	if invokeErr != nil {
		return h.fail(invokeErr)
	}

	h.mutated("connect")
	event := events.NewEvent(events.KindPinConnected, src.Node, src.Pin)
	event.PeerNode, event.PeerPin = dst.Node, dst.Pin
	h.publish(event)

	data := map[string]any{"connected": true}
	if replaced != nil {
		data["replaced_link_to"] = map[string]any{"node": replaced.Node, "pin": replaced.Pin}
	}
	return protocol.OK(data)
}

func (h *GraphHandlers) disconnect(ctx context.Context, params map[string]any) *protocol.Result {
	var req pinPairRequest
	if err := decodeParams(params, &req); err != nil {
		return invalidParams(err)
	}
	src, dst := req.refs()

	var removed bool
	invokeErr := h.thread.Invoke(ctx, func() error {
		var err error
		removed, err = h.editor.Disconnect(src, dst)
		return err
	})
	if invokeErr != nil {
		return h.fail(invokeErr)
	}

	if removed {
		h.mutated("disconnect")
		event := events.NewEvent(events.KindPinDisconnected, src.Node, src.Pin)
		event.PeerNode, event.PeerPin = dst.Node, dst.Pin
		h.publish(event)
	}
	return protocol.OK(map[string]any{"removed": removed})
}

func (h *GraphHandlers) breakAllLinks(ctx context.Context, params map[string]any) *protocol.Result {
	var req pinRequest
	if err := decodeParams(params, &req); err != nil {
		return invalidParams(err)
	}
	ref := pinRef(req.Node, req.Pin)

	var count int
	invokeErr := h.thread.Invoke(ctx, func() error {
		var err error
		count, err = h.editor.BreakAllLinks(ref)
		return err
	})
	if invokeErr != nil {
		return h.fail(invokeErr)
	}

	if count > 0 {
		h.mutated("break_all_links")
		event := events.NewEvent(events.KindLinksBroken, ref.Node, ref.Pin)
		event.Count = count
		h.publish(event)
	}
	return protocol.OK(map[string]any{"links_removed": count})
}

func (h *GraphHandlers) split(ctx context.Context, params map[string]any) *protocol.Result {
	var req pinRequest
	if err := decodeParams(params, &req); err != nil {
		return invalidParams(err)
	}
	ref := pinRef(req.Node, req.Pin)

	var subs []graph.PinRef
	invokeErr := h.thread.Invoke(ctx, func() error {
		var err error
		subs, err = h.editor.Split(ref)
		return err
	})
	if invokeErr != nil {
		return h.fail(invokeErr)
	}

	h.mutated("split")
	event := events.NewEvent(events.KindPinSplit, ref.Node, ref.Pin)
	event.Count = len(subs)
	h.publish(event)

	subNames := make([]string, 0, len(subs))
	for _, sub := range subs {
		subNames = append(subNames, sub.Pin)
	}
	return protocol.OK(map[string]any{"sub_pins": subNames})
}

func (h *GraphHandlers) recombine(ctx context.Context, params map[string]any) *protocol.Result {
	var req struct {
		pinRequest
		Force bool `json:"force"`
	}
	if err := decodeParams(params, &req); err != nil {
		return invalidParams(err)
	}
	ref := pinRef(req.Node, req.Pin)

	var parent graph.PinRef
	var dropped int
	invokeErr := h.thread.Invoke(ctx, func() error {
		var err error
		parent, dropped, err = h.editor.Recombine(ref, req.Force)
		return err
	})
	if invokeErr != nil {
		return h.fail(invokeErr)
	}

	h.mutated("recombine")
	event := events.NewEvent(events.KindPinRecombined, parent.Node, parent.Pin)
	event.Count = dropped
	h.publish(event)

	return protocol.OK(map[string]any{
		"parent":        parent.Pin,
		"links_dropped": dropped,
	})
}

func (h *GraphHandlers) setDefault(ctx context.Context, params map[string]any) *protocol.Result {
	var req struct {
		pinRequest
		Value any `json:"value"`
	}
	if err := decodeParams(params, &req); err != nil {
		return invalidParams(err)
	}
	if req.Value == nil {
		return invalidParams(errors.New("invalid params: value is required"))
	}
	ref := pinRef(req.Node, req.Pin)

	invokeErr := h.thread.Invoke(ctx, func() error {
		return h.editor.SetDefault(ref, req.Value)
	})
	if invokeErr != nil {
		return h.fail(invokeErr)
	}

	h.mutated("set_default")
	h.publish(events.NewEvent(events.KindDefaultChanged, ref.Node, ref.Pin))
	return protocol.OK(map[string]any{"set": true})
}

func (h *GraphHandlers) getDefault(ctx context.Context, params map[string]any) *protocol.Result {
	var req pinRequest
	if err := decodeParams(params, &req); err != nil {
		return invalidParams(err)
	}
	ref := pinRef(req.Node, req.Pin)

	var value any
	var hasDefault bool
	invokeErr := h.thread.Invoke(ctx, func() error {
		var err error
		value, hasDefault, err = h.editor.Default(ref)
		return err
	})
	if invokeErr != nil {
		return h.fail(invokeErr)
	}

	data := map[string]any{"has_default": hasDefault}
	if hasDefault {
		data["value"] = value
	}
	return protocol.OK(data)
}

func (h *GraphHandlers) clearDefault(ctx context.Context, params map[string]any) *protocol.Result {
	var req pinRequest
	if err := decodeParams(params, &req); err != nil {
		return invalidParams(err)
	}
	ref := pinRef(req.Node, req.Pin)

	invokeErr := h.thread.Invoke(ctx, func() error {
		return h.editor.ClearDefault(ref)
	})
	if invokeErr != nil {
		return h.fail(invokeErr)
	}

	h.mutated("clear_default")
	h.publish(events.NewEvent(events.KindDefaultChanged, ref.Node, ref.Pin))
	return protocol.OK(map[string]any{"cleared": true})
}

func (h *GraphHandlers) fail(err error) *protocol.Result {
	if h.metrics != nil && errors.Is(err, host.ErrHostTimeout) {
		h.metrics.HostTimeouts.Inc()
	}
	return resultFromError(err)
}

func (h *GraphHandlers) mutated(kind string) {
	if h.metrics != nil {
		h.metrics.GraphMutationsTotal.WithLabelValues(kind).Inc()
	}
}

func (h *GraphHandlers) publish(event *events.Event) {
	if h.hub != nil {
		h.hub.Publish(event)
	}
}
