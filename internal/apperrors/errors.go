// Package apperrors defines the error kinds shared by the scoring engine, the
// services and the HTTP boundary. Concrete errors wrap one kind so callers can
// branch with errors.Is without knowing every sentinel.
package apperrors

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound marks an absent test, user or result.
	ErrNotFound = errors.New("not found")
	// ErrValidation marks a malformed submission, test definition or AI response.
	ErrValidation = errors.New("validation failed")
	// ErrConflict marks a duplicate submission for an already-taken test.
	ErrConflict = errors.New("conflict")
	// ErrUpstream marks an unavailable store or AI provider.
	ErrUpstream = errors.New("upstream failure")
	// ErrUnauthorized marks a caller that is not entitled to a resource.
	ErrUnauthorized = errors.New("unauthorized")
)

// Error couples a kind with a human readable message and an optional cause.
type Error struct {
	Kind    error
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Is reports whether target is the kind of this error.
func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Validation builds a validation error with the given message.
func Validation(format string, args ...interface{}) error {
	return &Error{Kind: ErrValidation, Message: fmt.Sprintf(format, args...)}
}

// NotFound builds a not-found error for the named entity.
func NotFound(entity string) error {
	return &Error{Kind: ErrNotFound, Message: entity + " not found"}
}

// Conflict builds a conflict error with the given message.
func Conflict(message string) error {
	return &Error{Kind: ErrConflict, Message: message}
}

// Unauthorized builds an authorization error with the given message.
func Unauthorized(message string) error {
	return &Error{Kind: ErrUnauthorized, Message: message}
}

// Upstream wraps a collaborator failure.
func Upstream(message string, cause error) error {
	return &Error{Kind: ErrUpstream, Message: message, Cause: cause}
}

// Message returns the user-facing message of err when it is an *Error.
func Message(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
