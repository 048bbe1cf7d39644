package handlers

import (
	"context"
	"fmt"
	"testing"

	"github.com/nodebridge/nodebridge/pkg/confirm"
	"github.com/nodebridge/nodebridge/pkg/dispatch"
	"github.com/nodebridge/nodebridge/pkg/logging"
	"github.com/nodebridge/nodebridge/pkg/protocol"
	"github.com/nodebridge/nodebridge/pkg/risk"
)

type recordingConsole struct {
	commands []string
	err      error
}

func (r *recordingConsole) RunConsole(_ context.Context, command string) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	r.commands = append(r.commands, command)
	return "ran: " + command, nil
}

func newConsoleHarness(t *testing.T) (*dispatch.Dispatcher, *confirm.Ledger, *recordingConsole) {
	t.Helper()
	runner := &recordingConsole{}
	d := dispatch.NewDispatcher(dispatch.NewRegistry(), risk.NewClassifier(), nil, nil, logging.Nop())
	if err := NewConsoleHandlers(runner).Register(d); err != nil {
		t.Fatal(err)
	}
	return d, confirm.NewLedger(confirm.NewSigner(), confirm.DefaultLedgerConfig()), runner
}

func runConsole(d *dispatch.Dispatcher, ledger *confirm.Ledger, params map[string]any) *protocol.Result {
	return d.Dispatch(context.Background(), "conn-c", ledger, &protocol.Command{Type: "console_execute", Params: params})
}

func TestConsoleExecute_MediumWhitelistFlow(t *testing.T) {
	d, ledger, runner := newConsoleHarness(t)
	params := map[string]any{"command": "slomo 0.5"}

	// Benign command: MEDIUM, pending with whitelist offer.
	res := runConsole(d, ledger, params)
	if !res.IsPending() || !res.CanWhitelist {
		t.Fatalf("first submission = %+v, want whitelistable pending", res)
	}

	confirmed := map[string]any{
		"command":                         "slomo 0.5",
		protocol.ParamConfirmationToken:   res.ConfirmationToken,
		protocol.ParamWhitelistForSession: true,
	}
	if res = runConsole(d, ledger, confirmed); !res.Success {
		t.Fatalf("confirmed = %+v", res)
	}

	// Same payload now runs without confirmation.
	if res = runConsole(d, ledger, params); !res.Success {
		t.Fatalf("whitelisted rerun = %+v", res)
	}
	if len(runner.commands) != 2 {
		t.Errorf("runner saw %d commands, want 2", len(runner.commands))
	}
}

func TestConsoleExecute_DestructivePayloadCriticalFlow(t *testing.T) {
	d, ledger, runner := newConsoleHarness(t)
	params := map[string]any{"command": "quit"}

	// Escalated to CRITICAL: pending without a whitelist offer.
	res := runConsole(d, ledger, params)
	if !res.IsPending() {
		t.Fatalf("first quit = %+v, want pending", res)
	}
	if res.CanWhitelist {
		t.Error("destructive payload offered whitelisting")
	}
	token := res.ConfirmationToken

	confirmed := map[string]any{"command": "quit", protocol.ParamConfirmationToken: token}
	if res = runConsole(d, ledger, confirmed); !res.Success {
		t.Fatalf("confirmed quit = %+v", res)
	}

	// Second quit prompts again; replaying the consumed token fails.
	res = runConsole(d, ledger, params)
	if !res.IsPending() {
		t.Fatalf("second quit = %+v, want pending again", res)
	}
	res = runConsole(d, ledger, confirmed)
	if res.Success || res.ErrorCode != protocol.CodeConfirmationInvalid {
		t.Fatalf("replayed token = %+v, want CONFIRMATION_INVALID", res)
	}
	if len(runner.commands) != 1 {
		t.Errorf("runner saw %d commands, want 1", len(runner.commands))
	}
}

func TestConsoleExecute_ValidatesParams(t *testing.T) {
	d, ledger, _ := newConsoleHarness(t)

	res := runConsole(d, ledger, map[string]any{})
	if res.Success || res.ErrorCode != protocol.CodeInvalidParams {
		t.Errorf("missing command = %+v, want INVALID_PARAMS", res)
	}
}

func TestConsoleExecute_RunnerErrorSurfaces(t *testing.T) {
	d, ledger, runner := newConsoleHarness(t)
	runner.err = fmt.Errorf("console unavailable")
	params := map[string]any{"command": "stat unit"}

	res := runConsole(d, ledger, params)
	if !res.IsPending() {
		t.Fatal("expected pending")
	}
	confirmed := map[string]any{"command": "stat unit", protocol.ParamConfirmationToken: res.ConfirmationToken}
	res = runConsole(d, ledger, confirmed)
	if res.Success {
		t.Fatalf("result = %+v, want failure", res)
	}
}
