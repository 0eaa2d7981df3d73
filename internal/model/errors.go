package model

import (
	"errors"
	"fmt"
)

// Sentinel errors for the engine's failure taxonomy.
// Use errors.Is() to check against these.
var (
	// ErrValidation marks bad quantities or selections. User-facing, never retried.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound marks an unknown product, category or order reference.
	ErrNotFound = errors.New("not found")

	// ErrRemoteUnavailable marks timeouts, network failures and 5xx responses.
	// Retried by the remote client, then drives local fallback.
	ErrRemoteUnavailable = errors.New("remote unavailable")

	// ErrRemoteRejected marks non-429 4xx responses. Logged, never retried.
	ErrRemoteRejected = errors.New("remote rejected")

	// ErrCacheMiss is not a failure; callers use it to take the fallback path.
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidTransition marks an action the current conversation stage does not accept.
	ErrInvalidTransition = errors.New("invalid transition")

	ErrInternal = errors.New("internal error")
)

// APIError represents a structured error for API responses.
// Implements error interface and supports unwrapping.
type APIError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"` // HTTP status, not serialized
	Err        error  `json:"-"` // Wrapped error, not serialized
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// NewValidationError creates a 400 error for invalid quantities or selections.
func NewValidationError(field, reason string) *APIError {
	return &APIError{
		Code:       "VALIDATION_ERROR",
		Message:    fmt.Sprintf("invalid %s: %s", field, reason),
		StatusCode: 400,
		Err:        ErrValidation,
	}
}

// NewNotFoundError creates a 404 error for unknown references.
func NewNotFoundError(resource string) *APIError {
	return &APIError{
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		StatusCode: 404,
		Err:        ErrNotFound,
	}
}

// NewRemoteUnavailableError creates a 503 error for retryable upstream failures.
// The cause stays in the chain so callers can log it.
func NewRemoteUnavailableError(op string, cause error) *APIError {
	return &APIError{
		Code:       "REMOTE_UNAVAILABLE",
		Message:    fmt.Sprintf("%s: remote commerce API unavailable", op),
		StatusCode: 503,
		Err:        fmt.Errorf("%w: %v", ErrRemoteUnavailable, cause),
	}
}

// NewRemoteRejectedError creates a 502 error for non-retryable upstream responses.
func NewRemoteRejectedError(op string, status int, msg string) *APIError {
	if msg == "" {
		msg = "request rejected"
	}
	return &APIError{
		Code:       "REMOTE_REJECTED",
		Message:    fmt.Sprintf("%s: remote returned %d: %s", op, status, msg),
		StatusCode: 502,
		Err:        ErrRemoteRejected,
	}
}

// NewTransitionError creates a 409 error for actions the current stage rejects.
func NewTransitionError(stage, action string) *APIError {
	return &APIError{
		Code:       "INVALID_TRANSITION",
		Message:    fmt.Sprintf("action %s is not accepted in stage %s", action, stage),
		StatusCode: 409,
		Err:        ErrInvalidTransition,
	}
}

// NewInternalError creates a 500 error for unexpected failures.
func NewInternalError(err error) *APIError {
	return &APIError{
		Code:       "INTERNAL_ERROR",
		Message:    "an internal error occurred",
		StatusCode: 500,
		Err:        err,
	}
}

// IsRetryable reports whether err is worth another attempt against the remote API.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRemoteUnavailable)
}

// IsUserFacing reports whether err should be shown to the customer as-is
// instead of being treated as an infrastructure failure.
func IsUserFacing(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidTransition)
}
