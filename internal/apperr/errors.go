// Package apperr defines the error kinds surfaced by loaders, the popup
// builder and configuration validation.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the API and UI layers.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindInvalidFormat
	KindGeometry
	KindConfiguration
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindInvalidFormat:
		return "invalid_format"
	case KindGeometry:
		return "geometry"
	case KindConfiguration:
		return "configuration"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is checks.
var (
	ErrNotFound      = &Error{Kind: KindNotFound, Msg: "not found"}
	ErrInvalidFormat = &Error{Kind: KindInvalidFormat, Msg: "invalid format"}
	ErrGeometry      = &Error{Kind: KindGeometry, Msg: "geometry error"}
	ErrConfiguration = &Error{Kind: KindConfiguration, Msg: "configuration error"}
)

// Error carries a Kind, a user-facing message and an optional cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same Kind, so wrapped errors compare equal
// to the package sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// NotFound reports a missing file, directory or identifier.
func NotFound(format string, args ...any) error { return newf(KindNotFound, format, args...) }

// InvalidFormat reports a parse failure, a missing column or missing data.
func InvalidFormat(format string, args ...any) error {
	return newf(KindInvalidFormat, format, args...)
}

// Geometry reports an unsupported geometry or a failed reprojection.
func Geometry(format string, args ...any) error { return newf(KindGeometry, format, args...) }

// Configuration reports a required configuration value that is unset.
func Configuration(format string, args ...any) error {
	return newf(KindConfiguration, format, args...)
}

// Wrap attaches a kind and message to cause.
func Wrap(kind Kind, cause error, format string, args ...any) error {
	e := newf(kind, format, args...)
	e.Err = cause
	return e
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
