// Package errors provides the structured fault taxonomy shared by the
// pipeline and the HTTP surface.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType represents the category of a fault for logging, metrics and
// response formatting.
type ErrorType string

const (
	// TypeTransport indicates the event stream connection is closed or erroring.
	TypeTransport ErrorType = "transport"
	// TypeStale indicates no event arrived within the staleness window.
	TypeStale ErrorType = "stale"
	// TypeDecode indicates a malformed or unrecognised payload.
	TypeDecode ErrorType = "decode"
	// TypeCapacity indicates a full queue.
	TypeCapacity ErrorType = "capacity"
	// TypeValidation indicates invalid input (HTTP 400)
	TypeValidation ErrorType = "validation"
	// TypeNotFound indicates resource not found (HTTP 404)
	TypeNotFound ErrorType = "not_found"
	// TypeInternal indicates server-side error (HTTP 500)
	TypeInternal ErrorType = "internal"
)

// Error represents a structured error with type, message, and context.
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]any
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Fatal reports whether the fault requires tearing down and reconnecting
// the pipeline. Only transport and stale faults do.
func (e *Error) Fatal() bool {
	return e.Type == TypeTransport || e.Type == TypeStale
}

// HTTPStatus returns the appropriate HTTP status code for this error type.
func (e *Error) HTTPStatus() int {
	switch e.Type {
	case TypeValidation, TypeDecode:
		return http.StatusBadRequest
	case TypeNotFound:
		return http.StatusNotFound
	case TypeCapacity:
		return http.StatusTooManyRequests
	case TypeTransport, TypeStale:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func newError(t ErrorType, message string, cause error) *Error {
	return &Error{
		Type:    t,
		Message: message,
		Cause:   cause,
		Context: make(map[string]any),
	}
}

// TransportError reports a closed or failing event stream connection.
func TransportError(message string, cause error) *Error {
	return newError(TypeTransport, message, cause)
}

// StaleError reports a connection that stopped delivering events.
func StaleError(message string) *Error {
	return newError(TypeStale, message, nil)
}

// DecodeError reports a payload that could not be decoded.
func DecodeError(message string, cause error) *Error {
	return newError(TypeDecode, message, cause)
}

// CapacityError reports a drop caused by a full queue.
func CapacityError(message string) *Error {
	return newError(TypeCapacity, message, nil)
}

// ValidationError creates a new validation error (HTTP 400).
func ValidationError(message string) *Error {
	return newError(TypeValidation, message, nil)
}

// NotFoundError creates a new not-found error (HTTP 404).
func NotFoundError(message string) *Error {
	return newError(TypeNotFound, message, nil)
}

// InternalError creates a new internal error (HTTP 500).
func InternalError(message string, cause error) *Error {
	return newError(TypeInternal, message, cause)
}

// WithContext adds context fields to the error (chainable).
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// ErrorResponse represents the JSON structure sent to clients.
type ErrorResponse struct {
	Error   string         `json:"error"`
	Type    ErrorType      `json:"type"`
	Context map[string]any `json:"context,omitempty"`
}

func (e *Error) ToResponse() ErrorResponse {
	return ErrorResponse{
		Error:   e.Message,
		Type:    e.Type,
		Context: e.Context,
	}
}

// AsStructuredError converts any error into a structured Error.
// If err wraps an *Error, that error is returned; otherwise err is wrapped
// as an internal error.
func AsStructuredError(err error) *Error {
	if err == nil {
		return nil
	}

	var structuredErr *Error
	if errors.As(err, &structuredErr) {
		return structuredErr
	}

	return InternalError("internal server error", err)
}

// IsType reports whether err wraps a structured error of type t.
func IsType(err error, t ErrorType) bool {
	var structuredErr *Error
	return errors.As(err, &structuredErr) && structuredErr.Type == t
}

// IsFatal reports whether err wraps a fault that ends the pipeline.
func IsFatal(err error) bool {
	var structuredErr *Error
	return errors.As(err, &structuredErr) && structuredErr.Fatal()
}
