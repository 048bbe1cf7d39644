package risk

import "testing"

func TestTier_Ordering(t *testing.T) {
	tiers := []Tier{TierNone, TierLow, TierMedium, TierHigh, TierCritical}
	for i := 1; i < len(tiers); i++ {
		if tiers[i-1] >= tiers[i] {
			t.Errorf("%v not below %v", tiers[i-1], tiers[i])
		}
	}
}

func TestTier_Gates(t *testing.T) {
	tests := []struct {
		tier      Tier
		confirm   bool
		whitelist bool
		singleUse bool
	}{
		{TierNone, false, false, false},
		{TierLow, false, false, false},
		{TierMedium, true, true, false},
		{TierHigh, true, false, true},
		{TierCritical, true, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.tier.String(), func(t *testing.T) {
			if got := tt.tier.RequiresConfirmation(); got != tt.confirm {
				t.Errorf("RequiresConfirmation() = %v, want %v", got, tt.confirm)
			}
			if got := tt.tier.AllowsWhitelist(); got != tt.whitelist {
				t.Errorf("AllowsWhitelist() = %v, want %v", got, tt.whitelist)
			}
			if got := tt.tier.SingleUseToken(); got != tt.singleUse {
				t.Errorf("SingleUseToken() = %v, want %v", got, tt.singleUse)
			}
		})
	}
}

func TestClassifier_RegisteredTiers(t *testing.T) {
	c := NewClassifier()
	c.Register("graph_find_pin", TierNone)
	c.Register("graph_connect_pins", TierLow)
	c.Register("graph_break_all_links", TierMedium)

	tests := []struct {
		cmdType string
		want    Tier
	}{
		{"graph_find_pin", TierNone},
		{"graph_connect_pins", TierLow},
		{"graph_break_all_links", TierMedium},
	}
	for _, tt := range tests {
		if got := c.Classify(tt.cmdType, nil); got != tt.want {
			t.Errorf("Classify(%q) = %v, want %v", tt.cmdType, got, tt.want)
		}
	}
}

func TestClassifier_UnknownDefaultsHigh(t *testing.T) {
	c := NewClassifier()
	if got := c.Classify("never_registered", nil); got != TierHigh {
		t.Errorf("Classify(unregistered) = %v, want %v", got, TierHigh)
	}
	if c.Known("never_registered") {
		t.Error("Known(unregistered) = true")
	}
}

func TestClassifier_RefinerOnlyRaises(t *testing.T) {
	c := NewClassifier()
	c.Register("cmd_up", TierLow)
	c.RegisterRefiner("cmd_up", func(params map[string]any, base Tier) Tier {
		return TierHigh
	})
	c.Register("cmd_down", TierHigh)
	c.RegisterRefiner("cmd_down", func(params map[string]any, base Tier) Tier {
		return TierNone
	})

	if got := c.Classify("cmd_up", nil); got != TierHigh {
		t.Errorf("raising refiner: Classify = %v, want %v", got, TierHigh)
	}
	if got := c.Classify("cmd_down", nil); got != TierHigh {
		t.Errorf("lowering refiner must be ignored: Classify = %v, want %v", got, TierHigh)
	}
}

func TestConsoleRefiner_DestructivePayloads(t *testing.T) {
	refiner := ConsoleRefiner("command")

	destructive := []string{
		"quit",
		"QUIT",
		"exit",
		"shutdown now",
		"server shutdown",
		"deleteall actors",
		"obliterate level",
		"rm -rf /saved",
		"format disk",
		"kill 1234",
	}
	for _, payload := range destructive {
		params := map[string]any{"command": payload}
		if got := refiner(params, TierMedium); got != TierCritical {
			t.Errorf("refiner(%q) = %v, want %v", payload, got, TierCritical)
		}
	}

	benign := []string{
		"stat fps",
		"slomo 0.5",
		"show collision",
		"requiteful", // contains "quit" only as substring of a word
	}
	for _, payload := range benign {
		params := map[string]any{"command": payload}
		if got := refiner(params, TierMedium); got != TierMedium {
			t.Errorf("refiner(%q) = %v, want %v", payload, got, TierMedium)
		}
	}
}

func TestConsoleRefiner_MissingParam(t *testing.T) {
	refiner := ConsoleRefiner("command")
	if got := refiner(map[string]any{}, TierMedium); got != TierMedium {
		t.Errorf("refiner(no param) = %v, want base tier", got)
	}
	if got := refiner(map[string]any{"command": 42}, TierMedium); got != TierMedium {
		t.Errorf("refiner(non-string) = %v, want base tier", got)
	}
}
