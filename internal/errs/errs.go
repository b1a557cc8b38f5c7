// Package errs defines the stable error taxonomy used across daem0nmcp
// components. Every component-local failure surfaces as one of these kinds;
// the MCP layer translates a Kind into a tool-response envelope
// {code, message, remediation} carried by an isError tool result.
package errs

import "fmt"

// Kind is a stable string error code, part of the wire contract — do not
// rename existing values.
type Kind string

const (
	CommunionRequired Kind = "CommunionRequired"
	CounselRequired    Kind = "CounselRequired"
	NotFound           Kind = "NotFound"
	Conflict           Kind = "Conflict"
	InvalidArgument    Kind = "InvalidArgument"
	Overloaded         Kind = "Overloaded"
	RetrievalFailure   Kind = "RetrievalFailure"
	LockHeld           Kind = "LockHeld"
	StorageFailure     Kind = "StorageFailure"
	InternalError      Kind = "InternalError"
)

// Error is the typed error carried through component boundaries.
type Error struct {
	Kind        Kind
	Message     string
	Remediation string
	cause       error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates an Error with no remediation hint.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an Error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error that preserves an underlying cause for %w unwrapping.
func Wrap(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// WithRemediation attaches a remediation hint and returns the same Error for chaining.
func (e *Error) WithRemediation(hint string) *Error {
	e.Remediation = hint
	return e
}

// As extracts an *Error from err, returning (nil, false) if err is not one.
func As(err error) (*Error, bool) {
	var e *Error
	if ok := asError(err, &e); ok {
		return e, true
	}
	return nil, false
}

func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// KindOf returns the Kind of err if it is (or wraps) an *Error, else InternalError.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return InternalError
}
