package main

import (
	"context"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/nodebridge/nodebridge/pkg/confirm"
	"github.com/nodebridge/nodebridge/pkg/dispatch"
	"github.com/nodebridge/nodebridge/pkg/graph"
	"github.com/nodebridge/nodebridge/pkg/handlers"
	"github.com/nodebridge/nodebridge/pkg/host"
	"github.com/nodebridge/nodebridge/pkg/logging"
	"github.com/nodebridge/nodebridge/pkg/protocol"
	"github.com/nodebridge/nodebridge/pkg/risk"
)

func TestFindParams(t *testing.T) {
	tests := []struct {
		input string
		want  map[string]any
	}{
		{
			input: "find mixer gain",
			want:  map[string]any{"node": "mixer", "name": "gain"},
		},
		{
			input: "find mixer gain input",
			want:  map[string]any{"node": "mixer", "name": "gain", "direction": "input"},
		},
		{
			input: "find mixer volume,gain,level",
			want:  map[string]any{"node": "mixer", "names": []string{"volume", "gain", "level"}},
		},
		{
			input: "find mixer volume,gain out",
			want:  map[string]any{"node": "mixer", "names": []string{"volume", "gain"}, "direction": "out"},
		},
	}
	for _, tt := range tests {
		got := findParams(strings.Fields(tt.input))
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("findParams(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

// The find verb's params must be accepted by the server's graph_find_pin
// handler, not just shaped plausibly.
func TestFindParamsAcceptedByHandler(t *testing.T) {
	memHost := graph.NewMemHost()
	if err := memHost.AddNode("mixer",
		graph.PinSpec{Name: "gain", Direction: graph.DirInput, Type: graph.TypeFloat},
	); err != nil {
		t.Fatalf("add node: %v", err)
	}
	thread := host.NewThread(4, time.Second)
	thread.Start()
	defer thread.Stop()

	d := dispatch.NewDispatcher(dispatch.NewRegistry(), risk.NewClassifier(), nil, nil, logging.Nop())
	gh := handlers.NewGraphHandlers(graph.NewEditor(memHost), thread, nil, nil)
	if err := gh.Register(d); err != nil {
		t.Fatalf("register: %v", err)
	}
	ledger := confirm.NewLedger(confirm.NewSigner(), confirm.LedgerConfig{})
	defer ledger.Close()

	for _, input := range []string{
		"find mixer gain",
		"find mixer volume,gain input",
	} {
		cmd := &protocol.Command{Type: "graph_find_pin", Params: findParams(strings.Fields(input))}
		res := d.Dispatch(context.Background(), "conn-1", ledger, cmd)
		if !res.Success {
			t.Errorf("%q rejected: [%s] %s", input, res.ErrorCode, res.Error)
			continue
		}
		if res.Data["pin"] != "gain" {
			t.Errorf("%q resolved %v, want gain", input, res.Data["pin"])
		}
	}
}
