// Package errs defines the error taxonomy for the Nova pipeline.
// Errors carry a Kind that call sites match on explicitly: per-file
// processing failures are recorded and skipped, configuration and
// pipeline failures abort the run.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error for propagation decisions.
type Kind string

const (
	// KindConfiguration indicates invalid configuration. Fatal, aborts the run.
	KindConfiguration Kind = "configuration"
	// KindResource indicates a filesystem or I/O failure.
	KindResource Kind = "resource"
	// KindValidation indicates a schema or invariant violation. Collected, non-fatal.
	KindValidation Kind = "validation"
	// KindProcessing indicates a handler or phase failure for one file.
	KindProcessing Kind = "processing"
	// KindReference indicates a broken, duplicate, or circular reference.
	KindReference Kind = "reference"
	// KindPipeline indicates an infrastructure failure. Fatal, aborts the run.
	KindPipeline Kind = "pipeline"
)

// Common sentinel errors.
var (
	// ErrNotFound is returned when a snapshot or reference is not found.
	ErrNotFound = errors.New("not found")
	// ErrUnsupported is returned when no handler supports a file.
	ErrUnsupported = errors.New("unsupported file type")
)

// Error is a classified pipeline error.
type Error struct {
	Kind        Kind
	Message     string
	Recoverable bool
	Hint        string
	Err         error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a new Error with the given kind and message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates a new Error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a new Error wrapping a cause.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// WithHint attaches a recovery hint and returns the error.
func (e *Error) WithHint(hint string) *Error {
	e.Hint = hint
	return e
}

// AsRecoverable marks the error as retryable and returns it.
func (e *Error) AsRecoverable() *Error {
	e.Recoverable = true
	return e
}

// KindOf returns the Kind of err, or KindProcessing for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindProcessing
}

// IsFatal reports whether the error must abort the entire run.
func IsFatal(err error) bool {
	switch KindOf(err) {
	case KindConfiguration, KindPipeline:
		return true
	}
	return false
}

// IsRecoverable reports whether the error may be retried.
func IsRecoverable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Recoverable
	}
	return false
}

// truncateLen is the canonical length for error-message content excerpts.
const truncateLen = 100

// Truncate shortens content for inclusion in error messages.
func Truncate(s string) string {
	if len(s) <= truncateLen {
		return s
	}
	return s[:truncateLen] + "..."
}
