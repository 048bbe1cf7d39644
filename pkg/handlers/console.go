package handlers

import (
	"context"
	"fmt"

	"github.com/nodebridge/nodebridge/pkg/dispatch"
	"github.com/nodebridge/nodebridge/pkg/protocol"
	"github.com/nodebridge/nodebridge/pkg/risk"
)

// ConsoleRunner is the host collaborator that executes free-form console
// commands inside the editor application.
type ConsoleRunner interface {
	RunConsole(ctx context.Context, command string) (output string, err error)
}

// ConsoleHandlers exposes console execution. The command text is the
// riskiest surface the bridge carries: base tier MEDIUM, escalated to
// CRITICAL by the destructive-payload denylist.
type ConsoleHandlers struct {
	runner ConsoleRunner
}

// NewConsoleHandlers creates the console category handler set.
func NewConsoleHandlers(runner ConsoleRunner) *ConsoleHandlers {
	return &ConsoleHandlers{runner: runner}
}

// Register adds the console command to the dispatcher.
func (h *ConsoleHandlers) Register(d *dispatch.Dispatcher) error {
	return d.Register(dispatch.Registration{
		Type:     "console_execute",
		Category: "console",
		Tier:     risk.TierMedium,
		Refiner:  risk.ConsoleRefiner("command"),
		Preview: func(p map[string]any) string {
			return fmt.Sprintf("execute console command: %v", p["command"])
		},
		Handler: dispatch.HandlerFunc(h.execute),
	})
}

func (h *ConsoleHandlers) execute(ctx context.Context, params map[string]any) *protocol.Result {
	var req struct {
		Command string `json:"command" validate:"required,max=4096"`
	}
	if err := decodeParams(params, &req); err != nil {
		return invalidParams(err)
	}

	output, err := h.runner.RunConsole(ctx, req.Command)
	if err != nil {
		return resultFromError(err)
	}
	return protocol.OK(map[string]any{"output": output})
}
