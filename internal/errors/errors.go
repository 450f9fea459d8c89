// Package errors defines the coded errors reported to docstore clients.
package errors

import (
	"fmt"
	"time"
)

// ErrorCode identifies an error class on the wire.
type ErrorCode string

const (
	// ErrMalformedRequest is returned when a request cannot be decoded or is
	// structurally invalid.
	ErrMalformedRequest ErrorCode = "MALFORMED_REQUEST"
	// ErrMissingField is returned when a required request field is missing.
	ErrMissingField ErrorCode = "MISSING_FIELD"
	// ErrInvalidFilter is returned when a query cannot be compiled.
	ErrInvalidFilter ErrorCode = "INVALID_FILTER"
	// ErrInvalidName is returned for unusable database or collection names.
	ErrInvalidName ErrorCode = "INVALID_NAME"

	// ErrNotFound is returned when find/delete match nothing or a collection
	// does not exist.
	ErrNotFound ErrorCode = "NOT_FOUND"

	// ErrUnauthorized is returned when a token is required and missing or invalid.
	ErrUnauthorized ErrorCode = "UNAUTHORIZED"
	// ErrForbidden is returned when a token does not grant the operation.
	ErrForbidden ErrorCode = "FORBIDDEN"
	// ErrRateLimited is returned when a client exceeds its request budget.
	ErrRateLimited ErrorCode = "RATE_LIMITED"
	// ErrBusy is returned when the server has no free connection slot.
	ErrBusy ErrorCode = "BUSY"

	// ErrStorage is returned when reading or writing a collection file fails.
	ErrStorage ErrorCode = "STORAGE_ERROR"
	// ErrInternal is returned when an unexpected server error occurs.
	ErrInternal ErrorCode = "INTERNAL_ERROR"
)

// Coded is implemented by errors that carry an [ErrorCode].
type Coded interface {
	Error() string
	Code() ErrorCode
	Details() map[string]any
}

// Error is a concrete error with a code, a message and optional details.
type Error struct {
	code       ErrorCode
	message    string
	details    map[string]any
	wrappedErr error
}

// New creates a new Error.
func New(code ErrorCode, message string) *Error {
	return &Error{code: code, message: message}
}

// WithDetail adds a single detail to the error.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.details == nil {
		e.details = make(map[string]any)
	}
	e.details[key] = value
	return e
}

// Wrap wraps an underlying error.
func (e *Error) Wrap(err error) *Error {
	e.wrappedErr = err
	return e
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.wrappedErr != nil {
		return fmt.Sprintf("%s: %v", e.message, e.wrappedErr)
	}
	return e.message
}

// Code returns the error code.
func (e *Error) Code() ErrorCode {
	return e.code
}

// Details returns additional error details.
func (e *Error) Details() map[string]any {
	return e.details
}

// Unwrap returns the wrapped error if any.
func (e *Error) Unwrap() error {
	return e.wrappedErr
}

// BadRequest creates a malformed request error.
func BadRequest(message string) *Error {
	return New(ErrMalformedRequest, message)
}

// MissingField creates an error for a missing request field.
func MissingField(fieldName string) *Error {
	return New(ErrMissingField, fmt.Sprintf("missing required field: %s", fieldName)).WithDetail("field", fieldName)
}

// InvalidFilter wraps a filter compilation error.
func InvalidFilter(err error) *Error {
	return New(ErrInvalidFilter, "invalid query").Wrap(err)
}

// InvalidName creates an error for an unusable database or collection name.
func InvalidName(kind, name string) *Error {
	return New(ErrInvalidName, fmt.Sprintf("invalid %s name %q", kind, name))
}

// NotFound creates a not found error with a human readable message.
func NotFound(message string) *Error {
	return New(ErrNotFound, message)
}

// Unauthorized creates an authentication error.
func Unauthorized(message string) *Error {
	return New(ErrUnauthorized, message)
}

// Forbidden creates an authorization error.
func Forbidden(message string) *Error {
	return New(ErrForbidden, message)
}

// RateLimited creates a rate limit error.
func RateLimited(retryAfter time.Duration) *Error {
	return New(ErrRateLimited, fmt.Sprintf("rate limit exceeded, retry after %s", retryAfter)).
		WithDetail("retry_after_ms", retryAfter.Milliseconds())
}

// Busy creates a server busy error.
func Busy() *Error {
	return New(ErrBusy, "server busy, too many connections")
}

// Storage creates a storage error wrapping err.
func Storage(message string, err error) *Error {
	return New(ErrStorage, message).Wrap(err)
}

// Internal creates an internal error wrapping err.
func Internal(message string, err error) *Error {
	return New(ErrInternal, message).Wrap(err)
}
