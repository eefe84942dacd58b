// Package errcode defines the closed result-code taxonomy (spec.md §7)
// shared by every secproc subpackage. It is split out from the top-level
// secproc package so that low-level packages (store, envelope, keycontainer,
// ...) can return typed errors without importing back up into secproc,
// which itself imports them.
package errcode

import (
	"errors"
	"fmt"
)

// Code is the closed taxonomy of result codes every secproc operation
// resolves to (spec.md §7). There is no exceptional control flow beyond
// Go's ordinary error returns — Code exists so callers can switch on a
// stable identity instead of string-matching error text.
type Code int

const (
	// Success is never itself returned as an error — operations that
	// succeed return a nil error. It exists so Code has a recognizable zero
	// analog for logging/metrics call sites.
	Success Code = iota
	Failure
	InvalidHandle
	InvalidParameters
	InvalidInputSize
	InvalidPadding
	BufferTooSmall
	NoSuchItem
	ItemAlreadyProvisioned
	ItemNonRemovable
	VerificationFailed
	UnimplementedFeature
)

func (c Code) String() string {
	switch c {
	case Success:
		return "SUCCESS"
	case Failure:
		return "FAILURE"
	case InvalidHandle:
		return "INVALID_HANDLE"
	case InvalidParameters:
		return "INVALID_PARAMETERS"
	case InvalidInputSize:
		return "INVALID_INPUT_SIZE"
	case InvalidPadding:
		return "INVALID_PADDING"
	case BufferTooSmall:
		return "BUFFER_TOO_SMALL"
	case NoSuchItem:
		return "NO_SUCH_ITEM"
	case ItemAlreadyProvisioned:
		return "ITEM_ALREADY_PROVISIONED"
	case ItemNonRemovable:
		return "ITEM_NON_REMOVABLE"
	case VerificationFailed:
		return "VERIFICATION_FAILED"
	case UnimplementedFeature:
		return "UNIMPLEMENTED_FEATURE"
	default:
		return "UNKNOWN"
	}
}

// Error wraps an underlying cause with the operation that failed and its
// resolved Code.
type Error struct {
	Op   string
	Code Code
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("secproc.%s: %s: %v", e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("secproc.%s: %s", e.Op, e.Code)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is implements errors.Is comparison by Code alone, so callers can compare
// against a bare &Error{Code: X} sentinel without matching Op/Err.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New constructs an *Error for op with the given Code. format/args build the
// wrapped cause via fmt.Errorf; pass an empty format to omit it.
func New(op string, code Code, format string, args ...any) error {
	var inner error
	if format != "" {
		inner = fmt.Errorf(format, args...)
	}
	return &Error{Op: op, Code: code, Err: inner}
}

// Of extracts the Code from err, returning Failure if err is non-nil but
// does not wrap an *Error, and Success if err is nil.
func Of(err error) Code {
	if err == nil {
		return Success
	}
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	return Failure
}

// Sentinels for errors.Is comparisons against a bare code.
var (
	ErrInvalidHandle          = &Error{Code: InvalidHandle}
	ErrNoSuchItem             = &Error{Code: NoSuchItem}
	ErrItemAlreadyProvisioned = &Error{Code: ItemAlreadyProvisioned}
	ErrItemNonRemovable       = &Error{Code: ItemNonRemovable}
	ErrVerificationFailed     = &Error{Code: VerificationFailed}
	ErrUnimplementedFeature   = &Error{Code: UnimplementedFeature}
	ErrInvalidParameters      = &Error{Code: InvalidParameters}
	ErrInvalidInputSize       = &Error{Code: InvalidInputSize}
	ErrInvalidPadding         = &Error{Code: InvalidPadding}
	ErrBufferTooSmall         = &Error{Code: BufferTooSmall}
)
