// Package errs classifies the failures the binding runtime reports.
//
// Resolution and synchronization errors are recoverable and are delivered to
// listeners. Configuration errors are returned synchronously when a binding is
// compiled or built. Lifecycle errors are returned when a detached binding or a
// disposed observer is used while strict lifecycle checks are enabled.
package errs

import (
	"errors"
	"fmt"
)

// Code represents an error classification code.
type Code string

const (
	CodeResolution      Code = "RESOLUTION"
	CodeSynchronization Code = "SYNCHRONIZATION"
	CodeConfiguration   Code = "CONFIGURATION"
	CodeLifecycle       Code = "LIFECYCLE"
)

var (
	ErrDetached   = New(CodeLifecycle, "binding is detached")
	ErrDisposed   = New(CodeLifecycle, "observer is disposed")
	ErrTargetDead = New(CodeResolution, "target was collected")
)

// E is a structured error with code, operation, message and cause.
type E struct {
	Code Code   // Error classification code
	Op   string // Operation that failed
	Err  error  // Underlying error (may be nil)
	Msg  string // Human-readable message
}

func (e *E) Error() string {
	switch {
	case e.Op != "" && e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %s: %v", e.Code, e.Op, e.Msg, e.Err)
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Op, e.Err)
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Msg, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Op, e.Msg)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func (e *E) Unwrap() error {
	return e.Err
}

// New creates a new structured error with the given code and message.
func New(code Code, msg string) error {
	return &E{Code: code, Msg: msg}
}

// Newf is New with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &E{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// Wrap creates a structured error wrapping err. The operation name identifies
// where the error occurred.
func Wrap(code Code, op string, err error) error {
	if err == nil {
		return nil
	}
	return &E{Code: code, Op: op, Err: err}
}

// Wrapf wraps err with a formatted message.
func Wrapf(code Code, op string, err error, format string, args ...any) error {
	return &E{Code: code, Op: op, Err: err, Msg: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the outermost error code, or "" when err carries none.
func CodeOf(err error) Code {
	var e *E
	if err != nil && errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}
