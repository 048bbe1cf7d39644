package confirm

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/nodebridge/nodebridge/pkg/risk"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	return NewLedger(NewSigner(), DefaultLedgerConfig())
}

func TestLedger_IssueAndRedeem(t *testing.T) {
	l := newTestLedger(t)
	sig := l.Signature("graph_break_all_links", map[string]any{"node": "mixer", "pin": "inputs"})

	token := l.Issue(sig, risk.TierMedium)
	if token.ID == "" {
		t.Fatal("token ID empty")
	}
	if token.SingleUse {
		t.Error("MEDIUM token must not be single-use")
	}

	tier, err := l.Redeem(token.ID, sig)
	if err != nil {
		t.Fatalf("Redeem() error = %v", err)
	}
	if tier != risk.TierMedium {
		t.Errorf("tier = %v, want %v", tier, risk.TierMedium)
	}

	// MEDIUM tokens survive redemption until expiry.
	if _, err := l.Redeem(token.ID, sig); err != nil {
		t.Errorf("second MEDIUM redemption error = %v", err)
	}
}

func TestLedger_SingleUseConsumedOnRedeem(t *testing.T) {
	l := newTestLedger(t)
	sig := l.Signature("console_execute", map[string]any{"command": "quit"})

	token := l.Issue(sig, risk.TierCritical)
	if !token.SingleUse {
		t.Fatal("CRITICAL token must be single-use")
	}

	if _, err := l.Redeem(token.ID, sig); err != nil {
		t.Fatalf("first redemption error = %v", err)
	}
	if _, err := l.Redeem(token.ID, sig); err == nil {
		t.Error("replayed single-use token accepted")
	}
}

func TestLedger_SignatureMismatchDoesNotConsume(t *testing.T) {
	l := newTestLedger(t)
	sig := l.Signature("console_execute", map[string]any{"command": "quit"})
	otherSig := l.Signature("console_execute", map[string]any{"command": "exit"})

	token := l.Issue(sig, risk.TierCritical)

	_, err := l.Redeem(token.ID, otherSig)
	if !errors.Is(err, ErrTokenMismatch) {
		t.Fatalf("mismatch err = %v, want ErrTokenMismatch", err)
	}

	// The original command is still confirmable.
	if _, err := l.Redeem(token.ID, sig); err != nil {
		t.Errorf("redemption after mismatch error = %v", err)
	}
}

func TestLedger_Expiry(t *testing.T) {
	l := NewLedger(NewSigner(), LedgerConfig{
		MediumTTL:   5 * time.Minute,
		CriticalTTL: 30 * time.Second,
	})
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	current := base
	l.now = func() time.Time { return current }

	sig := l.Signature("graph_break_all_links", map[string]any{"node": "a", "pin": "b"})
	critSig := l.Signature("console_execute", map[string]any{"command": "deleteall"})

	medium := l.Issue(sig, risk.TierMedium)
	critical := l.Issue(critSig, risk.TierCritical)

	if medium.TTL != 5*time.Minute {
		t.Errorf("MEDIUM TTL = %v", medium.TTL)
	}
	if critical.TTL != 30*time.Second {
		t.Errorf("CRITICAL TTL = %v", critical.TTL)
	}

	// Just inside the critical window.
	current = base.Add(29 * time.Second)
	if _, err := l.Redeem(critical.ID, critSig); err != nil {
		t.Errorf("Redeem inside TTL error = %v", err)
	}

	// Past the medium window.
	current = base.Add(5*time.Minute + time.Second)
	if _, err := l.Redeem(medium.ID, sig); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("expired redeem err = %v, want ErrTokenExpired", err)
	}
}

func TestLedger_ReissueInvalidatesPrior(t *testing.T) {
	l := newTestLedger(t)
	sig := l.Signature("graph_break_all_links", map[string]any{"node": "a", "pin": "b"})

	first := l.Issue(sig, risk.TierMedium)
	second := l.Issue(sig, risk.TierMedium)

	if first.ID == second.ID {
		t.Fatal("reissue returned same token ID")
	}
	if _, err := l.Redeem(first.ID, sig); !errors.Is(err, ErrTokenUnknown) {
		t.Errorf("stale token err = %v, want ErrTokenUnknown", err)
	}
	if _, err := l.Redeem(second.ID, sig); err != nil {
		t.Errorf("fresh token redeem error = %v", err)
	}
}

func TestLedger_UnknownToken(t *testing.T) {
	l := newTestLedger(t)
	if _, err := l.Redeem("no-such-token", "sig"); !errors.Is(err, ErrTokenUnknown) {
		t.Errorf("err = %v, want ErrTokenUnknown", err)
	}
}

func TestLedger_Whitelist(t *testing.T) {
	l := newTestLedger(t)
	sig := l.Signature("console_execute", map[string]any{"command": "slomo 0.5"})

	if l.Whitelisted(sig) {
		t.Error("signature whitelisted before AddWhitelist")
	}
	l.AddWhitelist(sig)
	if !l.Whitelisted(sig) {
		t.Error("signature not whitelisted after AddWhitelist")
	}

	// A different payload has a different signature and stays gated.
	other := l.Signature("console_execute", map[string]any{"command": "slomo 1.0"})
	if l.Whitelisted(other) {
		t.Error("different payload unexpectedly whitelisted")
	}
}

func TestLedger_CloseDropsEverything(t *testing.T) {
	l := newTestLedger(t)
	sig := l.Signature("graph_break_all_links", map[string]any{"node": "a", "pin": "b"})
	token := l.Issue(sig, risk.TierMedium)
	l.AddWhitelist(sig)

	l.Close()

	if _, err := l.Redeem(token.ID, sig); !errors.Is(err, ErrTokenUnknown) {
		t.Errorf("token survived Close: err = %v", err)
	}
	if l.Whitelisted(sig) {
		t.Error("whitelist entry survived Close")
	}
	tokens, whitelisted := l.Stats()
	if tokens != 0 || whitelisted != 0 {
		t.Errorf("Stats() = (%d, %d) after Close", tokens, whitelisted)
	}
}

func TestLedger_IssueSweepsExpired(t *testing.T) {
	l := newTestLedger(t)
	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return current }

	// A client pinging many distinct risky commands without ever
	// confirming leaves a trail of pending tokens.
	for i := 0; i < 20; i++ {
		sig := l.Signature("graph_break_all_links", map[string]any{"node": "n", "pin": fmt.Sprintf("p%d", i)})
		l.Issue(sig, risk.TierMedium)
	}
	l.mu.Lock()
	pending := len(l.byID)
	l.mu.Unlock()
	if pending != 20 {
		t.Fatalf("pending tokens = %d, want 20", pending)
	}

	// Once the TTL passes, the next Issue evicts the lot; nothing else
	// has to touch the ledger for the backlog to clear.
	current = current.Add(6 * time.Minute)
	fresh := l.Issue(l.Signature("console_execute", map[string]any{"command": "slomo 0.5"}), risk.TierMedium)

	l.mu.Lock()
	remaining := len(l.byID)
	_, freshLive := l.byID[fresh.ID]
	l.mu.Unlock()
	if remaining != 1 || !freshLive {
		t.Errorf("after sweep: %d tokens remain (fresh live: %v), want just the fresh one", remaining, freshLive)
	}
}

func TestLedger_StatsSweepsExpired(t *testing.T) {
	l := newTestLedger(t)
	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return current }

	sig := l.Signature("console_execute", map[string]any{"command": "quit"})
	l.Issue(sig, risk.TierCritical)

	tokens, _ := l.Stats()
	if tokens != 1 {
		t.Fatalf("tokens = %d, want 1", tokens)
	}

	current = current.Add(time.Minute)
	tokens, _ = l.Stats()
	if tokens != 0 {
		t.Errorf("expired token still counted: tokens = %d", tokens)
	}
}
