// Package fault classifies workflow failures and drives retry decisions.
//
// Every failure an agent or store surfaces falls into one of four classes:
//   - Transient: provider/network trouble, retried with backoff
//   - Validation: malformed LLM output, re-prompted a bounded number of times
//   - Fatal: missing input or unrecoverable domain error, stops the graph
//   - Conflict: optimistic-concurrency violation, reload and re-apply
package fault

import (
	"errors"
	"fmt"
)

// Class represents how a failure should be handled.
type Class int

const (
	// Transient indicates retry will likely help.
	// Examples: rate limits, timeouts, provider overload.
	Transient Class = iota

	// Validation indicates the LLM output failed structural parsing.
	// A corrective re-prompt may succeed; bounded by the agent.
	Validation

	// Fatal indicates retry won't help.
	// Examples: missing prerequisite artifact, invalid configuration.
	Fatal

	// Conflict indicates an optimistic-concurrency violation.
	// Callers reload the checkpoint and re-evaluate.
	Conflict
)

// String returns the class name.
func (c Class) String() string {
	switch c {
	case Transient:
		return "transient"
	case Validation:
		return "validation"
	case Fatal:
		return "fatal"
	case Conflict:
		return "conflict"
	default:
		return "unknown"
	}
}

// Error wraps a failure with its class and the operation that produced it.
type Error struct {
	// Err is the underlying error.
	Err error

	// Class indicates how this failure should be handled.
	Class Class

	// Op describes what was being attempted.
	Op string

	// Attempts is the number of attempts already made, if known.
	Attempts int
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %v (class: %s)", e.Op, e.Err, e.Class)
	}
	return fmt.Sprintf("%v (class: %s)", e.Err, e.Class)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a classified failure.
func New(err error, class Class, op string) *Error {
	return &Error{Err: err, Class: class, Op: op}
}

// TransientErr wraps err as a transient failure.
func TransientErr(err error, op string) *Error {
	return New(err, Transient, op)
}

// ValidationErr wraps err as a validation failure.
func ValidationErr(err error, op string) *Error {
	return New(err, Validation, op)
}

// FatalErr wraps err as a fatal failure.
func FatalErr(err error, op string) *Error {
	return New(err, Fatal, op)
}

// ConflictErr wraps err as a concurrency conflict.
func ConflictErr(err error, op string) *Error {
	return New(err, Conflict, op)
}

// Classify determines how a failure should be handled.
// Unknown errors are fatal (fail safe).
func Classify(err error) Class {
	if err == nil {
		return Fatal // shouldn't happen, fail safe
	}

	var fe *Error
	if errors.As(err, &fe) {
		return fe.Class
	}

	return Fatal
}

// IsTransient reports whether the failure should be retried with backoff.
func IsTransient(err error) bool {
	return Classify(err) == Transient
}

// IsValidation reports whether a corrective re-prompt may help.
func IsValidation(err error) bool {
	return Classify(err) == Validation
}

// IsFatal reports whether the failure stops the graph.
func IsFatal(err error) bool {
	return Classify(err) == Fatal
}

// IsConflict reports whether the failure is an optimistic-concurrency
// violation that callers resolve by reloading.
func IsConflict(err error) bool {
	return Classify(err) == Conflict
}
