package domain

import "errors"

// Common domain errors
var (
	ErrEngineUnavailable = errors.New("inference engine unavailable")
	ErrEmptyOutput       = errors.New("inference engine returned no output")
	ErrSessionNotFound   = errors.New("session not found")
	ErrKeyNotFound       = errors.New("storage key not found")
	ErrAddressNotFound   = errors.New("contract address not found")
	ErrActionDenied      = errors.New("action denied")
	ErrInvalidInput      = errors.New("invalid input")
)

// DomainError wraps errors with additional context.
//
//nolint:revive // Name is intentionally verbose to distinguish domain-layer errors
type DomainError struct {
	Err     error
	Code    string
	Message string
	Details map[string]any
}

func (e *DomainError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Err.Error()
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// ErrorResponse defines the standard JSON error model returned by the HTTP API.
// TraceID carries the current OpenTelemetry trace identifier when available.
type ErrorResponse struct {
	Code    string `json:"code"`               // Machine-readable error code (e.g., SESSION_NOT_FOUND)
	Message string `json:"message"`            // Human-readable message (safe for logs)
	TraceID string `json:"trace_id,omitempty"` // Optional trace/correlation ID
}

// ErrorCode maps a domain error to its stable machine-readable code.
func ErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) && de.Code != "" {
		return de.Code
	}
	switch {
	case errors.Is(err, ErrSessionNotFound):
		return "SESSION_NOT_FOUND"
	case errors.Is(err, ErrKeyNotFound):
		return "KEY_NOT_FOUND"
	case errors.Is(err, ErrAddressNotFound):
		return "ADDRESS_NOT_FOUND"
	case errors.Is(err, ErrEngineUnavailable):
		return "ENGINE_UNAVAILABLE"
	case errors.Is(err, ErrActionDenied):
		return "ACTION_DENIED"
	case errors.Is(err, ErrInvalidInput):
		return "INVALID_INPUT"
	default:
		return "INTERNAL"
	}
}
