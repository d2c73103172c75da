// Package apperr provides standardized domain error types for the application.
// Domain services return these typed errors, and the job layer uses the Kind
// to decide whether a failed task should be retried or dropped.
package apperr

import (
	"fmt"
)

// Kind represents the category of error.
type Kind int

const (
	// KindUnknown is the default error kind when none is specified.
	KindUnknown Kind = iota
	// KindNotFound indicates a resource was not found.
	KindNotFound
	// KindValidation indicates invalid input data.
	KindValidation
	// KindConflict indicates a conflict with existing state (e.g., duplicate).
	KindConflict
	// KindPrecondition indicates a required precondition does not hold.
	KindPrecondition
	// KindUnavailable indicates a dependency was unreachable or overloaded.
	KindUnavailable
	// KindInternal indicates an unexpected internal error.
	KindInternal
)

// Error is a domain error with a typed Kind.
type Error struct {
	Kind    Kind
	Message string
	Op      string // Operation that failed (optional)
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether the error is worth retrying. Validation,
// precondition and not-found failures are permanent; transient dependency
// failures and unclassified errors are retried.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindNotFound, KindValidation, KindConflict, KindPrecondition:
		return false
	default:
		return true
	}
}

// New creates a new domain error with the given kind and message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates a new domain error wrapping an existing error.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// WithOp returns the error with the operation set.
func (e *Error) WithOp(op string) *Error {
	e.Op = op
	return e
}

// Convenience constructors for common error types.

// NotFound creates a not found error.
func NotFound(message string) *Error {
	return New(KindNotFound, message)
}

// Validation creates a validation error.
func Validation(message string) *Error {
	return New(KindValidation, message)
}

// Conflict creates a conflict error (e.g., duplicate resource).
func Conflict(message string) *Error {
	return New(KindConflict, message)
}

// Precondition creates a precondition-failed error.
func Precondition(message string) *Error {
	return New(KindPrecondition, message)
}

// Unavailable creates a dependency-unavailable error.
func Unavailable(message string) *Error {
	return New(KindUnavailable, message)
}

// Internal creates an internal error.
func Internal(message string) *Error {
	return New(KindInternal, message)
}

// GetKind extracts the error kind from an error.
// Returns KindUnknown if the error is not an *Error.
func GetKind(err error) Kind {
	if e, ok := err.(*Error); ok {
		return e.Kind
	}
	return KindUnknown
}

// Retryable reports whether err should be retried by the queue.
// Non-domain errors default to retryable.
func Retryable(err error) bool {
	if e, ok := err.(*Error); ok {
		return e.Retryable()
	}
	return true
}
