// Package bridgeerr defines the error taxonomy shared across the transfer
// pipeline: every user-surfaced failure carries a Class so command handlers
// and workers can decide whether to retry, reply in-chat, or trigger a
// login flow, without string-matching error text.
package bridgeerr

import (
	"errors"
	"fmt"
)

// Class categorizes an error for handling and user-facing behavior.
type Class string

const (
	// ClassTransport marks an HTTP or chat-platform invocation failure; may be retried.
	ClassTransport Class = "transport"
	// ClassProtocol marks a response missing a required field; fatal for the operation.
	ClassProtocol Class = "protocol"
	// ClassValidation marks bad user input; fails the single command with a reply.
	ClassValidation Class = "validation"
	// ClassAuthorization marks a missing chat or storage login; triggers the login flow.
	ClassAuthorization Class = "authorization"
	// ClassNotFound marks a missing message, chat, or account.
	ClassNotFound Class = "not_found"
	// ClassInternal marks an impossible state; logged, never surfaced raw, never fatal to the process.
	ClassInternal Class = "internal"
)

// Error is the taxonomy-tagged error type used throughout the bridge.
// It implements Unwrap so errors.Is/errors.As reach the underlying cause.
type Error struct {
	Class Class
	Msg   string
	Err   error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Msg
	}
	return fmt.Sprintf("%s: %s", e.Msg, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newErr(class Class, err error, format string, args ...any) *Error {
	return &Error{Class: class, Msg: fmt.Sprintf(format, args...), Err: err}
}

// Transport wraps a transport-layer failure (HTTP, chat invocation).
func Transport(err error, format string, args ...any) *Error {
	return newErr(ClassTransport, err, format, args...)
}

// Protocol wraps a malformed or incomplete response from an external service.
func Protocol(err error, format string, args ...any) *Error {
	return newErr(ClassProtocol, err, format, args...)
}

// Validation wraps a user-input error.
func Validation(format string, args ...any) *Error {
	return newErr(ClassValidation, nil, format, args...)
}

// Authorization wraps a missing-login condition.
func Authorization(format string, args ...any) *Error {
	return newErr(ClassAuthorization, nil, format, args...)
}

// NotFound wraps a missing resource.
func NotFound(format string, args ...any) *Error {
	return newErr(ClassNotFound, nil, format, args...)
}

// Internal wraps an impossible-state condition.
func Internal(err error, format string, args ...any) *Error {
	return newErr(ClassInternal, err, format, args...)
}

// ClassOf extracts the Class from err if it is (or wraps) a bridgeerr.Error,
// otherwise returns ClassInternal as the conservative default.
func ClassOf(err error) Class {
	var be *Error
	if errors.As(err, &be) {
		return be.Class
	}
	return ClassInternal
}

// UserMessage renders a single-line, user-facing description of err.
// It never exposes a raw stack trace or Go-internal error wrapping syntax
// beyond the bridge's own "failed to X: failed to Y: raw" context chain.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
