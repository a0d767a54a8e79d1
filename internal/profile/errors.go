// SPDX-License-Identifier: MIT

package profile

import (
	"errors"
	"fmt"
)

// Kind classifies profile-engine failures for machine consumption.
type Kind string

const (
	KindInvalidArgument Kind = "INVALID_ARGUMENT"
	KindNotFound        Kind = "NOT_FOUND"
	KindConflict        Kind = "CONFLICT"
	KindTransient       Kind = "TRANSIENT"
	KindFatal           Kind = "FATAL"
)

// Error carries a machine-readable kind alongside the human message.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// E wraps err with an operation name and kind.
func E(op string, kind Kind, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Ef is E with a formatted message.
func Ef(op string, kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf extracts the kind from err, or empty when err is untyped.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

// IsInvalidArgument reports whether err is an InvalidArgument failure.
func IsInvalidArgument(err error) bool { return KindOf(err) == KindInvalidArgument }

// IsTransient reports whether err is a retriable failure.
func IsTransient(err error) bool { return KindOf(err) == KindTransient }

// IsFatal reports whether err is a non-retriable corruption or contract failure.
func IsFatal(err error) bool { return KindOf(err) == KindFatal }
