// Package dispatch routes command envelopes to registered handlers, gated
// by risk classification and the per-connection confirmation ledger. The
// dispatcher's contract with handlers is narrow: a handler is never invoked
// unless the confirmation gate for its command has been passed.
package dispatch

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/nodebridge/nodebridge/pkg/protocol"
	"github.com/nodebridge/nodebridge/pkg/risk"
)

// Handler executes one command type. Implementations validate their own
// parameter contracts and return domain data or a structured error.
type Handler interface {
	Handle(ctx context.Context, params map[string]any) *protocol.Result
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, params map[string]any) *protocol.Result

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, params map[string]any) *protocol.Result {
	return f(ctx, params)
}

// PreviewFunc renders a human-readable preview of what a risk-bearing
// command will do, shown to the operator before they confirm it.
type PreviewFunc func(params map[string]any) string

// Registration binds one command type to its handler, category, base risk
// tier and optional refiner/preview.
type Registration struct {
	Type     string
	Category string
	Tier     risk.Tier
	Refiner  risk.Refiner
	Preview  PreviewFunc
	Handler  Handler
}

// Registry is the command dispatch table: exact-match lookup from command
// type to exactly one registration.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]*Registration
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]*Registration)}
}

// Register adds a registration. Duplicate types are a programming error.
func (r *Registry) Register(reg Registration) error {
	if reg.Type == "" {
		return fmt.Errorf("registration missing command type")
	}
	if reg.Handler == nil {
		return fmt.Errorf("registration %s missing handler", reg.Type)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.handlers[reg.Type]; dup {
		return fmt.Errorf("command type %s already registered", reg.Type)
	}
	r.handlers[reg.Type] = &reg
	return nil
}

// Resolve returns the registration for a command type.
func (r *Registry) Resolve(cmdType string) (*Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.handlers[cmdType]
	return reg, ok
}

// Types returns all registered command types, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
