// Package herr defines the error kinds the HAP core engine raises (spec §7)
// and the wrapping conventions every component follows.
package herr

import (
	"errors"
	"fmt"
)

// Kind is the error taxonomy the engine raises. Every failure path in the
// core maps onto exactly one of these.
type Kind uint8

const (
	KindNone Kind = iota
	KindUnknown
	KindInvalidState
	KindInvalidData
	KindOutOfResources
	KindNotAuthorized
	KindBusy
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindUnknown:
		return "unknown"
	case KindInvalidState:
		return "invalid_state"
	case KindInvalidData:
		return "invalid_data"
	case KindOutOfResources:
		return "out_of_resources"
	case KindNotAuthorized:
		return "not_authorized"
	case KindBusy:
		return "busy"
	default:
		return "unknown_kind"
	}
}

// Error carries a Kind plus the operation that failed and an optional cause.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %s: %v", e.Op, e.Kind, e.Msg, e.Err)
	case e.Msg != "":
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is allows errors.Is to compare *Error values by Kind alone, mirroring the
// sentinel-comparison pattern used for ConnectionError in the reference CLI.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New constructs an *Error for the given operation and kind.
func New(op string, kind Kind, msg string) *Error {
	return &Error{Op: op, Kind: kind, Msg: msg}
}

// Wrap constructs an *Error for the given operation and kind, chaining cause.
func Wrap(op string, kind Kind, cause error) *Error {
	return &Error{Op: op, Kind: kind, Err: cause}
}

// Sentinels for errors.Is comparisons against a bare Kind, one per Kind.
var (
	ErrInvalidState   = &Error{Kind: KindInvalidState}
	ErrInvalidData    = &Error{Kind: KindInvalidData}
	ErrOutOfResources = &Error{Kind: KindOutOfResources}
	ErrNotAuthorized  = &Error{Kind: KindNotAuthorized}
	ErrBusy           = &Error{Kind: KindBusy}
	ErrUnknown        = &Error{Kind: KindUnknown}
)

// KindOf extracts the Kind carried by err, or KindUnknown if err does not
// wrap an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
