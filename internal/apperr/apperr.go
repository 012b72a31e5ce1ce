// Package apperr defines the failure kinds surfaced by the core operations.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidRequest    = errors.New("invalid request")
	ErrAuthentication    = errors.New("authentication failure")
	ErrInvalidTransition = errors.New("invalid transition")
)

// Error carries a failure kind and a human readable reason.
// errors.Is(err, ErrNotFound) matches on the kind.
type Error struct {
	Kind   error
	Reason string
}

func (e *Error) Error() string {
	if e.Reason == "" {
		return e.Kind.Error()
	}
	return e.Reason
}

func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func (e *Error) Unwrap() error {
	return e.Kind
}

func newf(kind error, format string, args ...any) error {
	return &Error{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) error {
	return newf(ErrNotFound, format, args...)
}

func InvalidRequest(format string, args ...any) error {
	return newf(ErrInvalidRequest, format, args...)
}

func Authentication(format string, args ...any) error {
	return newf(ErrAuthentication, format, args...)
}

func InvalidTransition(format string, args ...any) error {
	return newf(ErrInvalidTransition, format, args...)
}

// Reason returns the human readable reason of err, falling back to err.Error().
func Reason(err error) string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Error()
	}
	return err.Error()
}
