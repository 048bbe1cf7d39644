// Package handlers implements the category handler sets registered into the
// dispatch table: graph editing, graph query/introspection, console
// execution and project operations. Handlers validate their own parameter
// contracts and translate primitive errors into wire error codes.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/nodebridge/nodebridge/pkg/graph"
	"github.com/nodebridge/nodebridge/pkg/host"
	"github.com/nodebridge/nodebridge/pkg/protocol"
)

var validate = validator.New()

// decodeParams maps the open params object onto a typed request struct and
// validates it. Unknown keys (including the confirmation control keys the
// dispatcher already consumed) are ignored.
func decodeParams(params map[string]any, v any) error {
	data, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("invalid params: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("invalid params: %w", err)
	}
	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			f := verrs[0]
			return fmt.Errorf("invalid params: field %s failed %s validation", f.Field(), f.Tag())
		}
		return fmt.Errorf("invalid params: %w", err)
	}
	return nil
}

func invalidParams(err error) *protocol.Result {
	return protocol.Fail(protocol.CodeInvalidParams, err.Error())
}

// resultFromError maps primitive and hand-off failures onto stable wire
// error codes. Unrecognized errors are FATAL_INTERNAL: validation should
// have caught everything else, so an unknown failure is an invariant breach
// worth surfacing loudly rather than masking.
func resultFromError(err error) *protocol.Result {
	code := protocol.CodeFatalInternal
	switch {
	case errors.Is(err, graph.ErrNodeNotFound), errors.Is(err, graph.ErrPinNotFound):
		code = protocol.CodeNotFound
	case errors.Is(err, graph.ErrIncompatiblePins):
		code = protocol.CodeIncompatiblePins
	case errors.Is(err, graph.ErrPinInert):
		code = protocol.CodePinInert
	case errors.Is(err, graph.ErrHasLiveLinks):
		code = protocol.CodeHasLiveLinks
	case errors.Is(err, graph.ErrSubPinsConnected):
		code = protocol.CodeSubPinsConnected
	case errors.Is(err, graph.ErrPinConnected):
		code = protocol.CodePinConnected
	case errors.Is(err, graph.ErrTypeMismatch):
		code = protocol.CodeTypeMismatch
	case errors.Is(err, graph.ErrNotSplittable):
		code = protocol.CodeNotSplittable
	case errors.Is(err, graph.ErrNotSubPin):
		code = protocol.CodeInvalidParams
	case errors.Is(err, host.ErrHostTimeout), errors.Is(err, host.ErrStopped):
		code = protocol.CodeHostTimeout
	}
	return protocol.Fail(code, err.Error())
}

// pinRef builds a PinRef from the node/pin pair every graph request carries.
func pinRef(node, pin string) graph.PinRef {
	return graph.PinRef{Node: node, Pin: pin}
}
