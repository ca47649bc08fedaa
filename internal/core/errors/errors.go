package errors

import (
	"errors"
	"fmt"
)

// Domain errors - these represent business rule violations
var (
	// Authentication & Authorization
	ErrForbidden        = errors.New("action forbidden")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrPermissionDenied = errors.New("your role does not allow starting calls")

	// Call signaling
	ErrCallInProgress     = errors.New("a call is already in progress")
	ErrCallCancelled      = errors.New("call attempt was cancelled")
	ErrMediaCaptureDenied = errors.New("microphone access denied")
	ErrNegotiationFailed  = errors.New("call negotiation failed")
	ErrRelayRejected      = errors.New("signaling relay rejected the call")
	ErrConnectionLost     = errors.New("call connection lost")

	// Realtime transport
	ErrNotConnected = errors.New("realtime transport is not connected")

	// Live calls
	ErrSessionNotFound = errors.New("live call session not found")

	// Dashboard metrics
	ErrUnknownView = errors.New("unknown dashboard view")

	// Storage
	ErrKeyNotFound = errors.New("key not found")

	// Generic
	ErrNotFound    = errors.New("resource not found")
	ErrBadRequest  = errors.New("bad request")
	ErrRateLimited = errors.New("rate limit exceeded")
)

// RelayError carries the signaling relay's failure body verbatim so it can
// be shown to the operator unchanged.
type RelayError struct {
	StatusCode int
	Message    string
}

func (e *RelayError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("relay returned status %d", e.StatusCode)
}

// Unwrap lets callers match RelayError with errors.Is(err, ErrRelayRejected).
func (e *RelayError) Unwrap() error {
	return ErrRelayRejected
}

// AppError wraps errors with additional context for HTTP responses
type AppError struct {
	Err        error  // The underlying error
	Message    string // User-friendly message
	Code       string // Machine-readable error code
	StatusCode int    // HTTP status code
	Details    map[string]interface{}
}

func (e *AppError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Err.Error()
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewBadRequestError wraps err as a 400 with a user-facing message
func NewBadRequestError(err error, message string) *AppError {
	return &AppError{
		Err:        err,
		Message:    message,
		Code:       "BAD_REQUEST",
		StatusCode: 400,
	}
}

// ValidationErrors holds multiple field validation errors
type ValidationErrors struct {
	Errors map[string][]string `json:"errors"`
}

func NewValidationErrors() *ValidationErrors {
	return &ValidationErrors{
		Errors: make(map[string][]string),
	}
}

func (v *ValidationErrors) Add(field, message string) {
	v.Errors[field] = append(v.Errors[field], message)
}

func (v *ValidationErrors) HasErrors() bool {
	return len(v.Errors) > 0
}

func (v *ValidationErrors) Error() string {
	return fmt.Sprintf("validation failed: %d field(s) have errors", len(v.Errors))
}
