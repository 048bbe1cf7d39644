package graph

import (
	"errors"
	"fmt"
)

// Validation failures for editing primitives. Every mutating primitive
// validates fully before touching the graph, so any of these errors
// guarantees the graph is unchanged.
var (
	ErrNodeNotFound     = errors.New("node not found")
	ErrPinNotFound      = errors.New("pin not found")
	ErrIncompatiblePins = errors.New("pins are not compatible")
	ErrPinInert         = errors.New("pin is split and not connectable")
	ErrHasLiveLinks     = errors.New("pin has live links")
	ErrSubPinsConnected = errors.New("sub-pins have live links")
	ErrPinConnected     = errors.New("pin is connected")
	ErrTypeMismatch     = errors.New("value does not match pin type")
	ErrNotSplittable    = errors.New("pin type has no field decomposition")
	ErrNotSubPin        = errors.New("pin is not a split sub-pin")
)

// OpError wraps a primitive failure with the operation and pin it applies
// to, mirroring how storage-layer errors carry their operation context.
type OpError struct {
	Op    string
	Ref   PinRef
	Cause error
}

// Error implements the error interface.
func (e *OpError) Error() string {
	if e.Ref.Node != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Ref, e.Cause)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Cause)
}

// Unwrap returns the underlying cause for error chain support.
func (e *OpError) Unwrap() error { return e.Cause }

func opErr(op string, ref PinRef, cause error) error {
	return &OpError{Op: op, Ref: ref, Cause: cause}
}
