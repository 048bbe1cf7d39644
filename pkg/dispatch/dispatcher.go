package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nodebridge/nodebridge/pkg/audit"
	"github.com/nodebridge/nodebridge/pkg/confirm"
	"github.com/nodebridge/nodebridge/pkg/logging"
	"github.com/nodebridge/nodebridge/pkg/metrics"
	"github.com/nodebridge/nodebridge/pkg/protocol"
	"github.com/nodebridge/nodebridge/pkg/risk"
)

// Dispatcher sequences a command through classify, confirmation gate and
// handler execution. One dispatcher serves all connections; per-connection
// state (the ledger) is passed in by the owning session.
type Dispatcher struct {
	registry   *Registry
	classifier *risk.Classifier
	metrics    *metrics.Registry
	trail      *audit.Trail
	logger     logging.Logger
}

// NewDispatcher creates a dispatcher. metrics and trail may be nil in
// tests; logger must not be.
func NewDispatcher(registry *Registry, classifier *risk.Classifier, m *metrics.Registry, trail *audit.Trail, logger logging.Logger) *Dispatcher {
	return &Dispatcher{
		registry:   registry,
		classifier: classifier,
		metrics:    m,
		trail:      trail,
		logger:     logger.With(logging.F("component", "dispatch")),
	}
}

// Register adds a command registration to both the dispatch table and the
// risk table, so a registered command can never be missing a tier.
func (d *Dispatcher) Register(reg Registration) error {
	if err := d.registry.Register(reg); err != nil {
		return err
	}
	d.classifier.Register(reg.Type, reg.Tier)
	if reg.Refiner != nil {
		d.classifier.RegisterRefiner(reg.Type, reg.Refiner)
	}
	return nil
}

// Registry returns the underlying dispatch table.
func (d *Dispatcher) Registry() *Registry { return d.registry }

// Dispatch runs one command for one connection. connID identifies the
// session for audit; ledger is that session's confirmation state.
func (d *Dispatcher) Dispatch(ctx context.Context, connID string, ledger *confirm.Ledger, cmd *protocol.Command) *protocol.Result {
	reg, ok := d.registry.Resolve(cmd.Type)
	if !ok {
		// Unregistered types never mint ledger state; they are still
		// audited at the fail-safe tier so probing shows up in the trail.
		d.audit(connID, cmd.Type, risk.TierHigh, audit.OutcomeRejected, string(protocol.CodeUnknownCommand), false)
		d.record(cmd.Type, "unknown", 0)
		return protocol.Fail(protocol.CodeUnknownCommand, fmt.Sprintf("unknown command type %q", cmd.Type))
	}

	tier := d.classifier.Classify(cmd.Type, cmd.Params)
	signature := ledger.Signature(cmd.Type, cmd.Params)

	if tier.RequiresConfirmation() {
		if res := d.gate(connID, ledger, cmd, tier, reg, signature); res != nil {
			return res
		}
	}

	start := time.Now()
	result := d.execute(ctx, reg, cmd.Params)
	elapsed := time.Since(start)

	status := "ok"
	outcome := audit.OutcomeExecuted
	if !result.Success {
		status = "error"
		outcome = audit.OutcomeFailed
	}
	d.record(cmd.Type, status, elapsed)
	if tier.RequiresConfirmation() {
		d.audit(connID, cmd.Type, tier, outcome, string(result.ErrorCode), ledger.Whitelisted(signature))
	}
	return result
}

// gate enforces the confirmation state machine for MEDIUM+ commands.
// Returns nil when execution may proceed, or the result to send instead.
func (d *Dispatcher) gate(connID string, ledger *confirm.Ledger, cmd *protocol.Command, tier risk.Tier, reg *Registration, signature string) *protocol.Result {
	if tier.AllowsWhitelist() && ledger.Whitelisted(signature) {
		if d.metrics != nil {
			d.metrics.WhitelistHits.Inc()
		}
		return nil
	}

	tokenID, hasToken := cmd.Params[protocol.ParamConfirmationToken].(string)
	if !hasToken || tokenID == "" {
		token := ledger.Issue(signature, tier)
		if d.metrics != nil {
			d.metrics.ConfirmationsIssued.WithLabelValues(tier.String()).Inc()
		}
		d.audit(connID, cmd.Type, tier, audit.OutcomePending, "", false)
		d.logger.Info("confirmation required",
			logging.F("conn_id", connID),
			logging.F("type", cmd.Type),
			logging.F("tier", tier.String()))

		preview := ""
		if reg.Preview != nil {
			preview = reg.Preview(cmd.Params)
		}
		return protocol.Pending(token.ID, tier.AllowsWhitelist(), preview)
	}

	if _, err := ledger.Redeem(tokenID, signature); err != nil {
		reason := redeemReason(err)
		if d.metrics != nil {
			d.metrics.ConfirmationsRejected.WithLabelValues(reason).Inc()
		}
		d.audit(connID, cmd.Type, tier, audit.OutcomeRejected, string(protocol.CodeConfirmationInvalid), false)
		d.logger.Warn("confirmation rejected",
			logging.F("conn_id", connID),
			logging.F("type", cmd.Type),
			logging.F("reason", reason))
		return protocol.Fail(protocol.CodeConfirmationInvalid, err.Error())
	}

	if d.metrics != nil {
		d.metrics.ConfirmationsAccepted.WithLabelValues(tier.String()).Inc()
	}
	if tier.AllowsWhitelist() {
		if wl, _ := cmd.Params[protocol.ParamWhitelistForSession].(bool); wl {
			ledger.AddWhitelist(signature)
			d.logger.Info("signature whitelisted for session",
				logging.F("conn_id", connID),
				logging.F("type", cmd.Type))
		}
	}
	return nil
}

// execute runs the handler with panic containment: a handler panic is an
// invariant violation, logged and surfaced as FATAL_INTERNAL while the
// process keeps serving.
func (d *Dispatcher) execute(ctx context.Context, reg *Registration, params map[string]any) (result *protocol.Result) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("handler panic",
				logging.F("type", reg.Type),
				logging.F("panic", fmt.Sprint(r)))
			result = protocol.Fail(protocol.CodeFatalInternal, "internal invariant violated")
		}
	}()
	result = reg.Handler.Handle(ctx, params)
	if result == nil {
		result = protocol.Fail(protocol.CodeFatalInternal, "handler returned no result")
	}
	return result
}

func (d *Dispatcher) record(cmdType, status string, elapsed time.Duration) {
	if d.metrics != nil {
		d.metrics.RecordCommand(cmdType, status, elapsed)
	}
}

func (d *Dispatcher) audit(connID, cmdType string, tier risk.Tier, outcome audit.Outcome, errorCode string, whitelisted bool) {
	if d.trail == nil {
		return
	}
	d.trail.Log(&audit.Event{
		ConnectionID: connID,
		CommandType:  cmdType,
		Tier:         tier.String(),
		Outcome:      outcome,
		ErrorCode:    errorCode,
		Whitelisted:  whitelisted,
	})
}

func redeemReason(err error) string {
	switch {
	case errors.Is(err, confirm.ErrTokenExpired):
		return "expired"
	case errors.Is(err, confirm.ErrTokenMismatch):
		return "mismatch"
	case errors.Is(err, confirm.ErrTokenReplayed):
		return "replayed"
	default:
		return "unknown_token"
	}
}
