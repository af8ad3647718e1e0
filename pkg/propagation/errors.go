// Package propagation turns entity changes into per-resource tasks and
// executes them against connectors, honoring priority ordering and
// primary-resource semantics.
package propagation

import (
	"errors"
	"fmt"
)

// ErrorClass classifies a propagation failure for retry and reporting.
type ErrorClass string

const (
	// ErrorClassTransient indicates a temporary connector failure that may
	// succeed on retry. Examples: network timeouts, temporary unavailability.
	ErrorClassTransient ErrorClass = "transient"

	// ErrorClassThrottled indicates rate limiting on the target resource.
	ErrorClassThrottled ErrorClass = "throttled"

	// ErrorClassConflict indicates the external object is in a conflicting
	// state, for example a rename collision.
	ErrorClassConflict ErrorClass = "conflict"

	// ErrorClassPermanent indicates a non-recoverable failure.
	// Examples: unknown connector, schema violation, permission denied.
	ErrorClassPermanent ErrorClass = "permanent"
)

// Error is a classified propagation failure with task context.
type Error struct {
	// Class is the error classification.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Resource is the target resource name, if applicable.
	Resource string `json:"resource,omitempty"`

	// Operation is the task operation being performed.
	Operation string `json:"operation,omitempty"`

	// Err is the underlying error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Resource != "" && e.Operation != "" {
		return fmt.Sprintf("[%s] %s (resource=%s, operation=%s): %s",
			e.Class, e.Message, e.Resource, e.Operation, e.unwrapMessage())
	}
	if e.Resource != "" {
		return fmt.Sprintf("[%s] %s (resource=%s): %s",
			e.Class, e.Message, e.Resource, e.unwrapMessage())
	}
	return fmt.Sprintf("[%s] %s: %s", e.Class, e.Message, e.unwrapMessage())
}

// Unwrap returns the underlying error for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) unwrapMessage() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return ""
}

// Is implements error equality for errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// NewTransientError creates a transient propagation error.
func NewTransientError(message string, err error) *Error {
	return &Error{Class: ErrorClassTransient, Message: message, Err: err}
}

// NewConflictError creates a conflict propagation error.
func NewConflictError(message string, err error) *Error {
	return &Error{Class: ErrorClassConflict, Message: message, Err: err}
}

// NewPermanentError creates a permanent propagation error.
func NewPermanentError(message string, err error) *Error {
	return &Error{Class: ErrorClassPermanent, Message: message, Err: err}
}

// WithResource adds resource context to an error.
func (e *Error) WithResource(resource string) *Error {
	e.Resource = resource
	return e
}

// WithOperation adds operation context to an error.
func (e *Error) WithOperation(operation string) *Error {
	e.Operation = operation
	return e
}

// WithCode adds an error code to an error.
func (e *Error) WithCode(code string) *Error {
	e.Code = code
	return e
}

// IsPermanent reports whether the error is classified as permanent.
func IsPermanent(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Class == ErrorClassPermanent
	}
	return false
}

// IsRetryable reports whether the error may succeed on retry.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Class != ErrorClassPermanent
	}
	return false
}

// Common error codes.
const (
	ErrCodeUnknownConnector = "UNKNOWN_CONNECTOR"
	ErrCodeUnknownResource  = "UNKNOWN_RESOURCE"
	ErrCodeAssembly         = "ASSEMBLY_FAILED"
	ErrCodeConnector        = "CONNECTOR_FAILED"
	ErrCodePrimaryFailed    = "PRIMARY_RESOURCE_FAILED"
)
