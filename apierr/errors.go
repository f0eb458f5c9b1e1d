// Package apierr defines the typed errors surfaced by the genlab client.
// Every failure that reaches a caller is an *Error carrying a Kind, a
// human-readable message and, when the failure came off the wire, the
// HTTP status code that produced it.
package apierr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure into one of the categories callers can act on.
type Kind string

const (
	// KindAuth covers 401/403 responses and expired cached tokens.
	KindAuth Kind = "auth"
	// KindTimeout covers transport-level timeouts and exhausted polling budgets.
	KindTimeout Kind = "timeout"
	// KindRequest covers connectivity failures below the HTTP layer.
	KindRequest Kind = "request"
	// KindAPI covers any other 4xx/5xx with a service-supplied message.
	KindAPI Kind = "api"
	// KindGeneration covers job-level failures reported by the service and
	// generation-parameter violations raised before any network call.
	KindGeneration Kind = "generation"
	// KindUnexpectedResponse covers payloads matching no recognized schema.
	KindUnexpectedResponse Kind = "unexpected_response"
	// KindValidation covers malformed caller input at the HTTP edge.
	KindValidation Kind = "validation"
	// KindUnknown is the fallback for anything uncategorized.
	KindUnknown Kind = "unknown"
)

// Error is the structured error type returned by all genlab operations.
type Error struct {
	Kind       Kind
	Message    string
	HTTPStatus int
	Cause      error
}

// New creates an Error with the given kind and message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an Error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithStatus records the HTTP status code behind the error.
func (e *Error) WithStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithCause attaches the underlying cause.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// KindOf extracts the Kind from an error chain, or KindUnknown when the
// chain carries no *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// StatusOf extracts the HTTP status from an error chain, or 0 when absent.
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.HTTPStatus
	}
	return 0
}
