// Package chaterr defines the severity-tagged error type used throughout
// the server for session- and server-level failures (section 7). Per-command
// logical failures are not errors of this kind - they are numeric.Reply
// values returned directly to the caller.
package chaterr

import (
	stderrors "errors"

	"github.com/pkg/errors"
)

// Severity classifies an OpError.
type Severity int

const (
	// NonCritical is logged and the session continues.
	NonCritical Severity = iota
	// Critical terminates the affected session (or, for SQUIT, the server).
	Critical
)

func (s Severity) String() string {
	if s == Critical {
		return "critical"
	}
	return "noncritical"
}

// OpError is an error carrying a severity class and a short kind, wrapping
// an underlying cause the way the original ServerError{kind, message}
// carried a string tag, but as a real error value so callers can use
// errors.Cause and errors.Is on the wrapped cause.
type OpError struct {
	Severity Severity
	Kind     string
	cause    error
}

// New builds an OpError wrapping cause with the given severity and kind.
func New(severity Severity, kind string, cause error) *OpError {
	return &OpError{Severity: severity, Kind: kind, cause: errors.WithStack(cause)}
}

// Newf builds a Critical or NonCritical OpError from a formatted message,
// with no pre-existing cause.
func Newf(severity Severity, kind string, format string, args ...interface{}) *OpError {
	return New(severity, kind, errors.Errorf(format, args...))
}

func (e *OpError) Error() string {
	return e.Kind + ": " + e.cause.Error()
}

// Cause implements the github.com/pkg/errors Causer interface.
func (e *OpError) Cause() error {
	return e.cause
}

// Unwrap supports errors.Is/errors.As from the standard library too.
func (e *OpError) Unwrap() error {
	return e.cause
}

// IsCritical reports whether err is a critical OpError. A nil or
// non-OpError err is treated as non-critical (callers should not be
// tearing anything down for a bare error they didn't classify).
func IsCritical(err error) bool {
	var opErr *OpError
	if !stderrors.As(err, &opErr) {
		return false
	}
	return opErr.Severity == Critical
}
