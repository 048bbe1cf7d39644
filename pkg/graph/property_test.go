package graph

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// newPropertyHost builds a two-node graph whose link topology the
// properties below exercise.
func newPropertyHost() (*MemHost, *Editor) {
	h := NewMemHost()
	_ = h.AddNode("a",
		PinSpec{Name: "out", Direction: DirOutput, Type: TypeFloat},
		PinSpec{Name: "pos", Direction: DirOutput, Type: TypeVector3},
	)
	_ = h.AddNode("b",
		PinSpec{Name: "in", Direction: DirInput, Type: TypeFloat},
		PinSpec{Name: "many", Direction: DirInput, Type: TypeFloat, MultiInput: true},
		PinSpec{Name: "pos", Direction: DirInput, Type: TypeVector3,
			Default: map[string]any{"x": 0.0, "y": 0.0, "z": 0.0}},
	)
	return h, NewEditor(h)
}

func linkCount(h *MemHost, r PinRef) int {
	pin, err := h.Pin(r)
	if err != nil {
		return -1
	}
	return len(pin.Links)
}

// TestEditorProperties verifies invariants that must hold for any sequence
// of pin operations.
func TestEditorProperties(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping property-based test in short mode")
	}

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50

	properties := gopter.NewProperties(parameters)

	// Links are symmetric: whenever one side records a link, the peer
	// records the mirror link.
	properties.Property("links are symmetric", prop.ForAll(
		func(connect, disconnect bool) bool {
			h, e := newPropertyHost()
			a, b := ref("a", "out"), ref("b", "in")
			if connect {
				if _, err := e.Connect(a, b); err != nil {
					return false
				}
			}
			if disconnect {
				if _, err := e.Disconnect(a, b); err != nil {
					return false
				}
			}
			return linkCount(h, a) == linkCount(h, b)
		},
		gen.Bool(),
		gen.Bool(),
	))

	// Connect then disconnect always returns to zero links, regardless of
	// how many times the pair is cycled.
	properties.Property("connect/disconnect round trip is clean", prop.ForAll(
		func(cycles uint8) bool {
			h, e := newPropertyHost()
			a, b := ref("a", "out"), ref("b", "in")
			for i := 0; i < int(cycles%8); i++ {
				if _, err := e.Connect(a, b); err != nil {
					return false
				}
				removed, err := e.Disconnect(a, b)
				if err != nil || !removed {
					return false
				}
			}
			return linkCount(h, a) == 0 && linkCount(h, b) == 0
		},
		gen.UInt8(),
	))

	// A single-input slot never holds more than one link however often it
	// is rewired.
	properties.Property("single input holds at most one link", prop.ForAll(
		func(rewires uint8) bool {
			h, e := newPropertyHost()
			sources := []PinRef{ref("a", "out")}
			in := ref("b", "in")
			for i := 0; i < int(rewires%10); i++ {
				if _, err := e.Connect(sources[0], in); err != nil {
					return false
				}
				if linkCount(h, in) > 1 {
					return false
				}
			}
			return linkCount(h, in) <= 1
		},
		gen.UInt8(),
	))

	// Split then recombine restores the pin to a connectable state with
	// its default intact, for any force flag.
	properties.Property("split/recombine restores the parent", prop.ForAll(
		func(force bool) bool {
			h, e := newPropertyHost()
			pos := ref("b", "pos")
			if _, err := e.Split(pos); err != nil {
				return false
			}
			if _, _, err := e.Recombine(ref("b", "pos.x"), force); err != nil {
				return false
			}
			pin, err := h.Pin(pos)
			if err != nil || pin.Inert || !pin.HasDefault {
				return false
			}
			ok, _ := e.CanConnect(ref("a", "pos"), pos)
			return ok
		},
		gen.Bool(),
	))

	// Setting any float default and reading it back yields the value.
	properties.Property("default round trip", prop.ForAll(
		func(v float64) bool {
			_, e := newPropertyHost()
			in := ref("b", "in")
			if err := e.SetDefault(in, v); err != nil {
				return false
			}
			got, ok, err := e.Default(in)
			return err == nil && ok && got == v
		},
		gen.Float64Range(-1e6, 1e6),
	))

	properties.TestingRun(t)
}
