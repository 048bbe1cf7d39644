package risk

import (
	"regexp"
	"strings"
	"sync"
)

// Refiner escalates (never downgrades) a command's tier based on its
// parameter values. Refiners must be pure functions.
type Refiner func(params map[string]any, base Tier) Tier

// Classifier maps command types to risk tiers. The zero value is unusable;
// use NewClassifier, which seeds fail-safe defaults.
type Classifier struct {
	mu       sync.RWMutex
	tiers    map[string]Tier
	refiners map[string]Refiner
	unknown  Tier
}

// NewClassifier creates a classifier with no registered types. Types the
// classifier has never seen are classified HIGH, so a command missing from
// the table can never slip past the confirmation gate.
func NewClassifier() *Classifier {
	return &Classifier{
		tiers:    make(map[string]Tier),
		refiners: make(map[string]Refiner),
		unknown:  TierHigh,
	}
}

// Register assigns the base tier for a command type.
func (c *Classifier) Register(cmdType string, tier Tier) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tiers[cmdType] = tier
}

// RegisterRefiner attaches a parameter-based escalation to a command type.
func (c *Classifier) RegisterRefiner(cmdType string, refiner Refiner) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refiners[cmdType] = refiner
}

// Classify returns the tier for a command. Registered refiners may only
// raise the tier above its base, never lower it.
func (c *Classifier) Classify(cmdType string, params map[string]any) Tier {
	c.mu.RLock()
	base, ok := c.tiers[cmdType]
	refiner := c.refiners[cmdType]
	c.mu.RUnlock()

	if !ok {
		return c.unknown
	}
	if refiner == nil {
		return base
	}
	refined := refiner(params, base)
	if refined < base {
		return base
	}
	return refined
}

// Known reports whether a command type has a registered base tier.
func (c *Classifier) Known(cmdType string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.tiers[cmdType]
	return ok
}

// destructiveConsolePatterns flags console payloads that terminate the
// host, wipe state, or touch the filesystem. Matching any of these raises
// the command to CRITICAL regardless of its base tier.
var destructiveConsolePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^\s*(quit|exit)\b`),
	regexp.MustCompile(`(?i)\bshutdown\b`),
	regexp.MustCompile(`(?i)\b(delete|destroy)all\b`),
	regexp.MustCompile(`(?i)\bobliterate\b`),
	regexp.MustCompile(`(?i)\b(rm|del)\s+-`),
	regexp.MustCompile(`(?i)\bformat\b`),
	regexp.MustCompile(`(?i)\bkill(all)?\b`),
}

// ConsoleRefiner escalates free-form console execution based on the command
// text. A payload matching the destructive denylist is CRITICAL even when
// the base type is MEDIUM.
func ConsoleRefiner(paramKey string) Refiner {
	return func(params map[string]any, base Tier) Tier {
		text, _ := params[paramKey].(string)
		if text == "" {
			return base
		}
		trimmed := strings.TrimSpace(text)
		for _, pat := range destructiveConsolePatterns {
			if pat.MatchString(trimmed) {
				return TierCritical
			}
		}
		return base
	}
}
