// Package confirm implements the per-connection confirmation ledger: the
// state machine that gates risk-bearing commands behind short-lived,
// signature-bound tokens and session whitelists.
package confirm

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nodebridge/nodebridge/pkg/risk"
)

// Validation failures for token redemption. All of them surface on the wire
// as CONFIRMATION_INVALID; the distinction is for logs and metrics.
var (
	ErrTokenUnknown  = errors.New("confirmation token not found")
	ErrTokenExpired  = errors.New("confirmation token expired")
	ErrTokenMismatch = errors.New("confirmation token bound to a different command")
	ErrTokenReplayed = errors.New("confirmation token already used")
)

// Token is an outstanding confirmation credential bound to one exact
// command signature on one connection. MEDIUM-tier tokens may be redeemed
// repeatedly until expiry; HIGH and CRITICAL tokens are consumed on first
// use.
type Token struct {
	ID        string
	Signature string
	Tier      risk.Tier
	IssuedAt  time.Time
	TTL       time.Duration
	SingleUse bool
	used      bool
}

// ExpiresAt returns the instant after which the token is no longer valid.
func (t *Token) ExpiresAt() time.Time {
	return t.IssuedAt.Add(t.TTL)
}

// LedgerConfig holds token lifetimes per tier band.
type LedgerConfig struct {
	// MediumTTL applies to MEDIUM and HIGH tokens.
	MediumTTL time.Duration
	// CriticalTTL applies to CRITICAL tokens; kept short to minimize the
	// replay window for a stale confirmation.
	CriticalTTL time.Duration
}

// DefaultLedgerConfig returns the default token lifetimes.
func DefaultLedgerConfig() LedgerConfig {
	return LedgerConfig{
		MediumTTL:   5 * time.Minute,
		CriticalTTL: 30 * time.Second,
	}
}

// Ledger tracks outstanding confirmation tokens and session whitelist
// entries for a single connection. It holds no references to other
// connections' state; tokens never transfer across connections. The owning
// session calls Close on connection teardown, which drops everything.
type Ledger struct {
	mu        sync.Mutex
	signer    *Signer
	config    LedgerConfig
	bySig     map[string]*Token // at most one live token per signature
	byID      map[string]*Token
	whitelist map[string]bool // signature -> exempt from confirmation
	now       func() time.Time
}

// NewLedger creates a ledger for one connection.
func NewLedger(signer *Signer, config LedgerConfig) *Ledger {
	if config.MediumTTL <= 0 {
		config.MediumTTL = DefaultLedgerConfig().MediumTTL
	}
	if config.CriticalTTL <= 0 {
		config.CriticalTTL = DefaultLedgerConfig().CriticalTTL
	}
	return &Ledger{
		signer:    signer,
		config:    config,
		bySig:     make(map[string]*Token),
		byID:      make(map[string]*Token),
		whitelist: make(map[string]bool),
		now:       time.Now,
	}
}

// Signature computes the canonical signature for a command.
func (l *Ledger) Signature(cmdType string, params map[string]any) string {
	return l.signer.Signature(cmdType, params)
}

// Whitelisted reports whether the signature was whitelisted for this
// session by an earlier confirmed MEDIUM command.
func (l *Ledger) Whitelisted(signature string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.whitelist[signature]
}

// Issue creates a token bound to the signature. If a token for the same
// signature is already outstanding, it is invalidated first: at most one
// live token exists per signature per connection. Expired tokens are swept
// here so an unconfirmed backlog cannot grow for the connection's lifetime.
func (l *Ledger) Issue(signature string, tier risk.Tier) *Token {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.sweepLocked()
	if prev, ok := l.bySig[signature]; ok {
		delete(l.byID, prev.ID)
		delete(l.bySig, signature)
	}

	ttl := l.config.MediumTTL
	if tier >= risk.TierCritical {
		ttl = l.config.CriticalTTL
	}

	token := &Token{
		ID:        uuid.NewString(),
		Signature: signature,
		Tier:      tier,
		IssuedAt:  l.now(),
		TTL:       ttl,
		SingleUse: tier.SingleUseToken(),
	}
	l.bySig[signature] = token
	l.byID[token.ID] = token
	return token
}

// Redeem validates a token against the signature of the resubmitted
// command. On success, the token's tier is returned; single-use tokens are
// consumed. A mismatched signature does not consume the token (the original
// command can still be confirmed) but a replayed single-use token is gone
// for good.
func (l *Ledger) Redeem(tokenID, signature string) (risk.Tier, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	token, ok := l.byID[tokenID]
	if !ok {
		return risk.TierNone, ErrTokenUnknown
	}
	if token.used {
		return risk.TierNone, ErrTokenReplayed
	}
	if l.now().After(token.ExpiresAt()) {
		l.remove(token)
		return risk.TierNone, ErrTokenExpired
	}
	if token.Signature != signature {
		return risk.TierNone, ErrTokenMismatch
	}

	if token.SingleUse {
		token.used = true
		l.remove(token)
	}
	return token.Tier, nil
}

// AddWhitelist records a session whitelist entry for the signature.
// Only meaningful for MEDIUM-tier commands; the dispatcher enforces that.
func (l *Ledger) AddWhitelist(signature string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.whitelist[signature] = true
}

// Stats returns the current counts of outstanding tokens and whitelist
// entries, for session introspection.
func (l *Ledger) Stats() (tokens, whitelisted int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sweepLocked()
	return len(l.byID), len(l.whitelist)
}

// Close drops all ledger state. Called on connection teardown; no token or
// whitelist entry survives the connection.
func (l *Ledger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.bySig = make(map[string]*Token)
	l.byID = make(map[string]*Token)
	l.whitelist = make(map[string]bool)
}

func (l *Ledger) remove(token *Token) {
	delete(l.byID, token.ID)
	if current, ok := l.bySig[token.Signature]; ok && current.ID == token.ID {
		delete(l.bySig, token.Signature)
	}
}

func (l *Ledger) sweepLocked() {
	now := l.now()
	for _, token := range l.byID {
		if now.After(token.ExpiresAt()) {
			l.remove(token)
		}
	}
}
