package protocol

// ErrorCode identifies a structured failure class carried on the wire.
// Codes are stable identifiers; clients branch on them, not on error text.
type ErrorCode string

const (
	CodeFramingError        ErrorCode = "FRAMING_ERROR"
	CodeUnknownCommand      ErrorCode = "UNKNOWN_COMMAND"
	CodePendingConfirmation ErrorCode = "PENDING_CONFIRMATION"
	CodeConfirmationInvalid ErrorCode = "CONFIRMATION_INVALID"
	CodeIncompatiblePins    ErrorCode = "INCOMPATIBLE_PINS"
	CodePinInert            ErrorCode = "PIN_INERT"
	CodeHasLiveLinks        ErrorCode = "HAS_LIVE_LINKS"
	CodeSubPinsConnected    ErrorCode = "SUBPINS_CONNECTED"
	CodePinConnected        ErrorCode = "PIN_CONNECTED"
	CodeTypeMismatch        ErrorCode = "TYPE_MISMATCH"
	CodeNotSplittable       ErrorCode = "NOT_SPLITTABLE"
	CodeInvalidParams       ErrorCode = "INVALID_PARAMS"
	CodeNotFound            ErrorCode = "NOT_FOUND"
	CodeHostTimeout         ErrorCode = "HOST_TIMEOUT"
	CodeFatalInternal       ErrorCode = "FATAL_INTERNAL"
)

// Reserved parameter keys consumed by the dispatcher before a handler runs.
// They are excluded from command signature canonicalization so that a
// confirmation resubmission matches the original command's signature.
const (
	ParamConfirmationToken   = "confirmation_token"
	ParamWhitelistForSession = "whitelist_for_session"
)

// Command is a single request envelope: a stable type identifier
// (category_verb, e.g. "graph_connect_pins") plus an open key/value
// parameter mapping. Each handler defines its own parameter contract.
type Command struct {
	Type   string         `json:"type"`
	Params map[string]any `json:"params,omitempty"`
}

// Result is a single response envelope. Exactly one of Data/Error is
// meaningful depending on Success. Confirmation-pending results carry the
// token fields in addition to an ErrorCode of PENDING_CONFIRMATION.
type Result struct {
	Success           bool           `json:"success"`
	Data              map[string]any `json:"data,omitempty"`
	Error             string         `json:"error,omitempty"`
	ErrorCode         ErrorCode      `json:"error_code,omitempty"`
	ConfirmationToken string         `json:"confirmation_token,omitempty"`
	CanWhitelist      bool           `json:"can_whitelist,omitempty"`
	Preview           string         `json:"preview,omitempty"`
}

// OK builds a success result with the given data payload.
func OK(data map[string]any) *Result {
	return &Result{Success: true, Data: data}
}

// Fail builds a failure result with a stable error code and message.
func Fail(code ErrorCode, msg string) *Result {
	return &Result{Success: false, Error: msg, ErrorCode: code}
}

// Pending builds the intermediate confirmation-required result. It is not a
// failure: the client is expected to resubmit the identical command with the
// returned token.
func Pending(token string, canWhitelist bool, preview string) *Result {
	return &Result{
		Success:           false,
		Error:             "confirmation required",
		ErrorCode:         CodePendingConfirmation,
		ConfirmationToken: token,
		CanWhitelist:      canWhitelist,
		Preview:           preview,
	}
}

// IsPending reports whether the result is the confirmation-pending
// intermediate step rather than a terminal failure.
func (r *Result) IsPending() bool {
	return r.ErrorCode == CodePendingConfirmation
}
