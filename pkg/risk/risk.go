// Package risk classifies commands by their potential for destructive or
// irreversible effect on the host. Classification is deterministic and
// side-effect-free: a static per-type table, optionally refined by
// inspecting parameter values for known-dangerous payloads.
package risk

// Tier is the ordered severity classification of a command.
type Tier int

const (
	TierNone Tier = iota
	TierLow
	TierMedium
	TierHigh
	TierCritical
)

// String returns the string representation of a tier.
func (t Tier) String() string {
	switch t {
	case TierNone:
		return "NONE"
	case TierLow:
		return "LOW"
	case TierMedium:
		return "MEDIUM"
	case TierHigh:
		return "HIGH"
	case TierCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// RequiresConfirmation reports whether a command at this tier must be
// confirmed before execution.
func (t Tier) RequiresConfirmation() bool {
	return t >= TierMedium
}

// AllowsWhitelist reports whether a confirmed command at this tier may be
// whitelisted for the remainder of the session. HIGH and CRITICAL commands
// require a fresh token on every invocation.
func (t Tier) AllowsWhitelist() bool {
	return t == TierMedium
}

// SingleUseToken reports whether confirmation tokens at this tier are
// consumed on first use.
func (t Tier) SingleUseToken() bool {
	return t >= TierHigh
}
