package handlers

import (
	"context"
	"testing"
	"time"

	"github.com/nodebridge/nodebridge/pkg/confirm"
	"github.com/nodebridge/nodebridge/pkg/dispatch"
	"github.com/nodebridge/nodebridge/pkg/graph"
	"github.com/nodebridge/nodebridge/pkg/host"
	"github.com/nodebridge/nodebridge/pkg/logging"
	"github.com/nodebridge/nodebridge/pkg/protocol"
	"github.com/nodebridge/nodebridge/pkg/risk"
)

// harness wires a dispatcher, a live host thread and an in-memory graph the
// way the server does, minus the socket.
type harness struct {
	dispatcher *dispatch.Dispatcher
	ledger     *confirm.Ledger
	memHost    *graph.MemHost
	thread     *host.Thread
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	memHost := graph.NewMemHost()
	if err := memHost.AddNode("osc",
		graph.PinSpec{Name: "signal", Direction: graph.DirOutput, Type: graph.TypeFloat},
		graph.PinSpec{Name: "count", Direction: graph.DirOutput, Type: graph.TypeInt},
		graph.PinSpec{Name: "name", Direction: graph.DirOutput, Type: graph.TypeString},
	); err != nil {
		t.Fatal(err)
	}
	if err := memHost.AddNode("amp",
		graph.PinSpec{Name: "in", Direction: graph.DirInput, Type: graph.TypeFloat},
		graph.PinSpec{Name: "steps", Direction: graph.DirInput, Type: graph.TypeInt},
		graph.PinSpec{Name: "label", Direction: graph.DirInput, Type: graph.TypeString},
		graph.PinSpec{Name: "pos", Direction: graph.DirInput, Type: graph.TypeVector3,
			Default: map[string]any{"x": 0.0, "y": 0.0, "z": 0.0}},
	); err != nil {
		t.Fatal(err)
	}

	thread := host.NewThread(16, 2*time.Second)
	thread.Start()
	t.Cleanup(thread.Stop)

	d := dispatch.NewDispatcher(dispatch.NewRegistry(), risk.NewClassifier(), nil, nil, logging.Nop())
	if err := NewGraphHandlers(graph.NewEditor(memHost), thread, nil, nil).Register(d); err != nil {
		t.Fatal(err)
	}

	return &harness{
		dispatcher: d,
		ledger:     confirm.NewLedger(confirm.NewSigner(), confirm.DefaultLedgerConfig()),
		memHost:    memHost,
		thread:     thread,
	}
}

func (h *harness) run(t *testing.T, cmdType string, params map[string]any) *protocol.Result {
	t.Helper()
	return h.dispatcher.Dispatch(context.Background(), "conn-test", h.ledger,
		&protocol.Command{Type: cmdType, Params: params})
}

// confirmAndRun resubmits a pending command with its token.
func (h *harness) confirmAndRun(t *testing.T, cmdType string, params map[string]any, token string) *protocol.Result {
	t.Helper()
	withToken := map[string]any{protocol.ParamConfirmationToken: token}
	for k, v := range params {
		withToken[k] = v
	}
	return h.run(t, cmdType, withToken)
}

func pair(sn, sp, tn, tp string) map[string]any {
	return map[string]any{"source_node": sn, "source_pin": sp, "target_node": tn, "target_pin": tp}
}

func TestGraphCommands_ConnectDisconnectRoundTrip(t *testing.T) {
	h := newHarness(t)
	p := pair("osc", "signal", "amp", "in")

	res := h.run(t, "graph_connect_pins", p)
	if !res.Success {
		t.Fatalf("connect = %+v", res)
	}

	res = h.run(t, "graph_disconnect_pins", p)
	if !res.Success {
		t.Fatalf("disconnect = %+v", res)
	}
	data := res.Data
	if data["removed"] != true {
		t.Errorf("removed = %v, want true", data["removed"])
	}

	// Second disconnect: success, removed=false.
	res = h.run(t, "graph_disconnect_pins", p)
	if !res.Success {
		t.Fatalf("idempotent disconnect = %+v", res)
	}
	if res.Data["removed"] != false {
		t.Error("second disconnect reported removed=true")
	}

	// Reconnectable afterwards.
	if res := h.run(t, "graph_connect_pins", p); !res.Success {
		t.Errorf("reconnect = %+v", res)
	}
}

func TestGraphCommands_TypeCompatibility(t *testing.T) {
	h := newHarness(t)

	// int output to int input: fine.
	if res := h.run(t, "graph_connect_pins", pair("osc", "count", "amp", "steps")); !res.Success {
		t.Errorf("int->int = %+v", res)
	}
	// int output to string input: INCOMPATIBLE_PINS.
	res := h.run(t, "graph_connect_pins", pair("osc", "count", "amp", "label"))
	if res.Success || res.ErrorCode != protocol.CodeIncompatiblePins {
		t.Errorf("int->string = %+v, want INCOMPATIBLE_PINS", res)
	}
}

func TestGraphCommands_ErrorCodes(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name     string
		cmdType  string
		params   map[string]any
		wantCode protocol.ErrorCode
	}{
		{"missing node", "graph_find_pin",
			map[string]any{"node": "ghost", "name": "signal"}, protocol.CodeNotFound},
		{"missing pin", "graph_find_pin",
			map[string]any{"node": "osc", "name": "nope"}, protocol.CodeNotFound},
		{"missing params", "graph_connect_pins",
			map[string]any{"source_node": "osc"}, protocol.CodeInvalidParams},
		{"split scalar", "graph_split_pin",
			map[string]any{"node": "amp", "pin": "in"}, protocol.CodeNotSplittable},
		{"recombine non-sub", "graph_recombine_pin",
			map[string]any{"node": "amp", "pin": "in"}, protocol.CodeInvalidParams},
		{"default type mismatch", "graph_set_pin_default",
			map[string]any{"node": "amp", "pin": "steps", "value": "seven"}, protocol.CodeTypeMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := h.run(t, tt.cmdType, tt.params)
			if res.Success {
				t.Fatalf("result = %+v, want failure", res)
			}
			if res.ErrorCode != tt.wantCode {
				t.Errorf("ErrorCode = %q, want %q", res.ErrorCode, tt.wantCode)
			}
		})
	}
}

func TestGraphCommands_BreakAllLinksGated(t *testing.T) {
	h := newHarness(t)

	if res := h.run(t, "graph_connect_pins", pair("osc", "signal", "amp", "in")); !res.Success {
		t.Fatal(res)
	}

	params := map[string]any{"node": "amp", "pin": "in"}
	res := h.run(t, "graph_break_all_links", params)
	if !res.IsPending() {
		t.Fatalf("first submission = %+v, want pending", res)
	}
	if res.Preview == "" {
		t.Error("break_all_links pending without preview")
	}

	res = h.confirmAndRun(t, "graph_break_all_links", params, res.ConfirmationToken)
	if !res.Success {
		t.Fatalf("confirmed = %+v", res)
	}
	if count := res.Data["links_removed"]; count != 1 {
		t.Errorf("links_removed = %v, want 1", count)
	}
}

func TestGraphCommands_SplitRecombineLifecycle(t *testing.T) {
	h := newHarness(t)
	splitParams := map[string]any{"node": "amp", "pin": "pos"}

	res := h.run(t, "graph_split_pin", splitParams)
	if !res.Success {
		t.Fatalf("split = %+v", res)
	}

	// Wire a sub-pin, then unforced recombine must fail SUBPINS_CONNECTED.
	if res := h.run(t, "graph_connect_pins", pair("osc", "signal", "amp", "pos.x")); !res.Success {
		t.Fatalf("connect to sub-pin = %+v", res)
	}
	res = h.run(t, "graph_recombine_pin", map[string]any{"node": "amp", "pin": "pos.x"})
	if res.Success || res.ErrorCode != protocol.CodeSubPinsConnected {
		t.Fatalf("unforced recombine = %+v, want SUBPINS_CONNECTED", res)
	}

	// Forced recombine escalates to the confirmation gate.
	forced := map[string]any{"node": "amp", "pin": "pos.x", "force": true}
	res = h.run(t, "graph_recombine_pin", forced)
	if !res.IsPending() {
		t.Fatalf("forced recombine = %+v, want pending", res)
	}
	res = h.confirmAndRun(t, "graph_recombine_pin", forced, res.ConfirmationToken)
	if !res.Success {
		t.Fatalf("confirmed forced recombine = %+v", res)
	}
	data := res.Data
	if dropped := data["links_dropped"]; dropped != 1 {
		t.Errorf("links_dropped = %v, want 1", dropped)
	}

	// Parent is whole again: splittable.
	if res := h.run(t, "graph_split_pin", splitParams); !res.Success {
		t.Errorf("re-split after recombine = %+v", res)
	}
}

func TestGraphCommands_SplitConnectedPinRejected(t *testing.T) {
	h := newHarness(t)

	// Give pos a peer so it has a live link.
	if err := h.memHost.AddNode("src2",
		graph.PinSpec{Name: "pos", Direction: graph.DirOutput, Type: graph.TypeVector3},
	); err != nil {
		t.Fatal(err)
	}
	if res := h.run(t, "graph_connect_pins", pair("src2", "pos", "amp", "pos")); !res.Success {
		t.Fatal(res)
	}

	res := h.run(t, "graph_split_pin", map[string]any{"node": "amp", "pin": "pos"})
	if res.Success || res.ErrorCode != protocol.CodeHasLiveLinks {
		t.Fatalf("split connected = %+v, want HAS_LIVE_LINKS", res)
	}

	// Link count unchanged by the failed split.
	pin, err := h.memHost.Pin(graph.PinRef{Node: "amp", Pin: "pos"})
	if err != nil {
		t.Fatal(err)
	}
	if len(pin.Links) != 1 {
		t.Errorf("links = %v after failed split", pin.Links)
	}
}

func TestGraphCommands_DefaultsLifecycle(t *testing.T) {
	h := newHarness(t)
	params := map[string]any{"node": "amp", "pin": "in"}

	set := map[string]any{"node": "amp", "pin": "in", "value": 0.75}
	if res := h.run(t, "graph_set_pin_default", set); !res.Success {
		t.Fatalf("set default = %+v", res)
	}

	res := h.run(t, "graph_get_pin_default", params)
	if !res.Success {
		t.Fatalf("get default = %+v", res)
	}
	data := res.Data
	if data["value"] != 0.75 || data["has_default"] != true {
		t.Errorf("default = %+v", data)
	}

	if res := h.run(t, "graph_clear_pin_default", params); !res.Success {
		t.Fatalf("clear default = %+v", res)
	}
	res = h.run(t, "graph_get_pin_default", params)
	if !res.Success || res.Data["has_default"] != false {
		t.Errorf("default after clear = %+v", res)
	}
}

func TestGraphCommands_FindPinByAlias(t *testing.T) {
	h := newHarness(t)

	res := h.run(t, "graph_find_pin", map[string]any{
		"node":      "amp",
		"names":     []any{"input", "value", "in"},
		"direction": "input",
	})
	if !res.Success {
		t.Fatalf("find by alias = %+v", res)
	}
	if res.Data["pin"] != "in" {
		t.Errorf("resolved = %+v", res.Data)
	}
}
