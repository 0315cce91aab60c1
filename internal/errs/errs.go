// Package errs defines the stable error-kind taxonomy shared by every
// engine in this module, so a caller can branch on "what kind of failure is
// this" without depending on a specific engine's internal error types.
package errs

import (
	"errors"
	"fmt"
)

// Kind discriminates the category of an Error. It is surfaced to callers and
// is stable across releases; the human-readable Message is not.
type Kind string

const (
	// NotFound means a tenant, offer, export, invitation, or decision id
	// was absent.
	NotFound Kind = "not_found"
	// InvalidState means the operation is illegal in the entity's current
	// state (already-suspended tenant, double-activate, ...).
	InvalidState Kind = "invalid_state"
	// OutOfBudget means a quota or error-budget limit was exceeded.
	OutOfBudget Kind = "out_of_budget"
	// Transient means an upstream failure caught by the Connector Runtime;
	// retried per policy before ever reaching the caller as terminal.
	Transient Kind = "transient"
	// Integrity means audit chain verification found a mismatch.
	Integrity Kind = "integrity"
	// Configuration means an invalid policy was rejected at construction.
	Configuration Kind = "configuration"
)

// Error is the single error type every engine in this module returns. It
// carries a stable Kind discriminator and an optional wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap allows errors.Is/errors.As to see through to the wrapped cause.
func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is an *Error with the same Kind, so callers can
// write errors.Is(err, errs.New(errs.NotFound, "")) — or, more idiomatically,
// compare via the Kind accessor below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New constructs an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an Error of the given kind that wraps cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func notFound(format string, args ...any) *Error {
	return New(NotFound, fmt.Sprintf(format, args...))
}

func invalidState(format string, args ...any) *Error {
	return New(InvalidState, fmt.Sprintf(format, args...))
}

func configuration(format string, args ...any) *Error {
	return New(Configuration, fmt.Sprintf(format, args...))
}

func outOfBudget(format string, args ...any) *Error {
	return New(OutOfBudget, fmt.Sprintf(format, args...))
}

func transient(format string, args ...any) *Error {
	return New(Transient, fmt.Sprintf(format, args...))
}

// NotFoundf builds a NotFound error with a formatted message.
func NotFoundf(format string, args ...any) *Error { return notFound(format, args...) }

// InvalidStatef builds an InvalidState error with a formatted message.
func InvalidStatef(format string, args ...any) *Error { return invalidState(format, args...) }

// Configurationf builds a Configuration error with a formatted message.
func Configurationf(format string, args ...any) *Error { return configuration(format, args...) }

// OutOfBudgetf builds an OutOfBudget error with a formatted message.
func OutOfBudgetf(format string, args ...any) *Error { return outOfBudget(format, args...) }

// Transientf builds a Transient error with a formatted message.
func Transientf(format string, args ...any) *Error { return transient(format, args...) }

// KindOf returns the Kind of err if it is (or wraps) an *Error, and ok=false
// otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
