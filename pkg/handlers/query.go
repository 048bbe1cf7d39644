package handlers

import (
	"context"

	"github.com/nodebridge/nodebridge/pkg/audit"
	"github.com/nodebridge/nodebridge/pkg/dispatch"
	"github.com/nodebridge/nodebridge/pkg/graph"
	"github.com/nodebridge/nodebridge/pkg/host"
	"github.com/nodebridge/nodebridge/pkg/protocol"
	"github.com/nodebridge/nodebridge/pkg/risk"
)

// QueryHandlers exposes read-only introspection: pin and node snapshots,
// the registered command surface, session state and the audit tail.
type QueryHandlers struct {
	editor *graph.Editor
	thread *host.Thread
	trail  *audit.Trail
}

// NewQueryHandlers creates the query category handler set. trail may be nil
// when no audit trail is wired.
func NewQueryHandlers(editor *graph.Editor, thread *host.Thread, trail *audit.Trail) *QueryHandlers {
	return &QueryHandlers{editor: editor, thread: thread, trail: trail}
}

// Register adds every query command to the dispatcher. The dispatcher is
// also the source for list_commands, so registration order matters: call
// this after the other categories.
func (h *QueryHandlers) Register(d *dispatch.Dispatcher) error {
	regs := []dispatch.Registration{
		{
			Type: "query_describe_pin", Category: "query", Tier: risk.TierNone,
			Handler: dispatch.HandlerFunc(h.describePin),
		},
		{
			Type: "query_describe_node", Category: "query", Tier: risk.TierNone,
			Handler: dispatch.HandlerFunc(h.describeNode),
		},
		{
			Type: "query_list_nodes", Category: "query", Tier: risk.TierNone,
			Handler: dispatch.HandlerFunc(h.listNodes),
		},
		{
			Type: "query_list_commands", Category: "query", Tier: risk.TierNone,
			Handler: h.listCommands(d),
		},
		{
			Type: "query_session_info", Category: "query", Tier: risk.TierNone,
			Handler: dispatch.HandlerFunc(h.sessionInfo),
		},
		{
			Type: "query_audit_tail", Category: "query", Tier: risk.TierLow,
			Handler: dispatch.HandlerFunc(h.auditTail),
		},
	}
	for _, reg := range regs {
		if err := d.Register(reg); err != nil {
			return err
		}
	}
	return nil
}

func (h *QueryHandlers) describePin(ctx context.Context, params map[string]any) *protocol.Result {
	var req struct {
		pinRequest
		Verbose bool `json:"verbose"`
	}
	if err := decodeParams(params, &req); err != nil {
		return invalidParams(err)
	}
	ref := pinRef(req.Node, req.Pin)

	var snap map[string]any
	invokeErr := h.thread.Invoke(ctx, func() error {
		var err error
		snap, err = h.editor.DescribePin(ref, req.Verbose)
		return err
	})
	if invokeErr != nil {
		return resultFromError(invokeErr)
	}
	return protocol.OK(map[string]any{"pin": snap})
}

func (h *QueryHandlers) describeNode(ctx context.Context, params map[string]any) *protocol.Result {
	var req struct {
		Node    string `json:"node" validate:"required"`
		Verbose bool   `json:"verbose"`
	}
	if err := decodeParams(params, &req); err != nil {
		return invalidParams(err)
	}

	var snaps []map[string]any
	invokeErr := h.thread.Invoke(ctx, func() error {
		var err error
		snaps, err = h.editor.DescribeAllPins(req.Node, req.Verbose)
		return err
	})
	if invokeErr != nil {
		return resultFromError(invokeErr)
	}
	return protocol.OK(map[string]any{"node": req.Node, "pins": snaps})
}

func (h *QueryHandlers) listNodes(ctx context.Context, params map[string]any) *protocol.Result {
	lister, ok := h.editor.Accessor().(graph.NodeLister)
	if !ok {
		return protocol.Fail(protocol.CodeInvalidParams, "host does not support node enumeration")
	}

	var ids []string
	invokeErr := h.thread.Invoke(ctx, func() error {
		ids = lister.NodeIDs()
		return nil
	})
	if invokeErr != nil {
		return resultFromError(invokeErr)
	}
	return protocol.OK(map[string]any{"nodes": ids, "count": len(ids)})
}

func (h *QueryHandlers) listCommands(d *dispatch.Dispatcher) dispatch.Handler {
	return dispatch.HandlerFunc(func(ctx context.Context, params map[string]any) *protocol.Result {
		return protocol.OK(map[string]any{"commands": d.Registry().Types()})
	})
}

func (h *QueryHandlers) sessionInfo(ctx context.Context, params map[string]any) *protocol.Result {
	session := dispatch.SessionFromContext(ctx)
	if session == nil {
		return protocol.Fail(protocol.CodeFatalInternal, "no session in context")
	}
	tokens, whitelisted := session.Ledger.Stats()
	return protocol.OK(map[string]any{
		"connection_id":      session.ConnID,
		"remote_addr":        session.RemoteAddr,
		"connected_at":       session.ConnectedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		"pending_tokens":     tokens,
		"whitelist_entries":  whitelisted,
	})
}

func (h *QueryHandlers) auditTail(ctx context.Context, params map[string]any) *protocol.Result {
	var req struct {
		Count int `json:"count" validate:"omitempty,min=1,max=1000"`
	}
	if err := decodeParams(params, &req); err != nil {
		return invalidParams(err)
	}
	if h.trail == nil {
		return protocol.OK(map[string]any{"events": []any{}})
	}

	tail := h.trail.Tail(req.Count)
	out := make([]map[string]any, 0, len(tail))
	for _, e := range tail {
		out = append(out, map[string]any{
			"id":            e.ID,
			"timestamp":     e.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
			"connection_id": e.ConnectionID,
			"command_type":  e.CommandType,
			"tier":          e.Tier,
			"outcome":       string(e.Outcome),
			"error_code":    e.ErrorCode,
		})
	}
	return protocol.OK(map[string]any{"events": out})
}
