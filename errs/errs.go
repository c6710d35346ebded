// Package errs defines the closed set of protocol error codes that cross
// the wire in a BrokerResponse/BrokerOverlayResponse's result field
// (spec.md §7), and the Go error type that wraps them locally.
package errs

import "fmt"

// Code is the numeric result code carried on the wire. 0 means OK.
type Code uint16

const (
	OK Code = iota
	InvalidMessage
	InvalidState
	InvalidBlock
	InvalidSecret
	OverlayNotJoined
	OverlayAlreadyJoined
	UserAlreadyExists
	NotAnAdmin
	SignatureError
	NotFound
	StorageError
	ConnectionLost
	CannotSend
	WriteError
	ActorError
	MissingBlocks

	// EndOfStream is the terminator sentinel for a streamed response; it
	// is never surfaced to a caller as an error (spec.md §7).
	EndOfStream
)

var names = map[Code]string{
	OK:                   "OK",
	InvalidMessage:       "InvalidMessage",
	InvalidState:         "InvalidState",
	InvalidBlock:         "InvalidBlock",
	InvalidSecret:        "InvalidSecret",
	OverlayNotJoined:     "OverlayNotJoined",
	OverlayAlreadyJoined: "OverlayAlreadyJoined",
	UserAlreadyExists:    "UserAlreadyExists",
	NotAnAdmin:           "NotAnAdmin",
	SignatureError:       "SignatureError",
	NotFound:             "NotFound",
	StorageError:         "StorageError",
	ConnectionLost:       "ConnectionLost",
	CannotSend:           "CannotSend",
	WriteError:           "WriteError",
	ActorError:           "ActorError",
	MissingBlocks:        "MissingBlocks",
	EndOfStream:          "EndOfStream",
}

func (c Code) String() string {
	if n, ok := names[c]; ok {
		return n
	}
	return fmt.Sprintf("Code(%d)", uint16(c))
}

// Error is a protocol-level error: a code plus an optional human-readable
// cause captured locally (never serialised — only Code crosses the wire).
type Error struct {
	Code  Code
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Cause)
	}
	return e.Code.String()
}

func (e *Error) Unwrap() error { return e.Cause }

// New wraps a Code with no cause.
func New(code Code) *Error { return &Error{Code: code} }

// Wrap wraps a Code with an underlying cause for local diagnostics.
func Wrap(code Code, cause error) *Error {
	if cause == nil {
		return New(code)
	}
	return &Error{Code: code, Cause: cause}
}

// CodeOf extracts the wire Code from any error, defaulting to
// StorageError for an error that didn't originate as an *Error — a
// broker handler must always have something numeric to send back.
func CodeOf(err error) Code {
	if err == nil {
		return OK
	}
	var pe *Error
	if ok := asError(err, &pe); ok {
		return pe.Code
	}
	return StorageError
}

func asError(err error, target **Error) bool {
	for err != nil {
		if pe, ok := err.(*Error); ok {
			*target = pe
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
