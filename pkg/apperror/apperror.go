package apperror

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for callers above the service boundary.
type Kind string

const (
	KindUnauthenticated Kind = "unauthenticated"
	KindNotFound        Kind = "not_found"
	KindConflict        Kind = "conflict"
	KindForbidden       Kind = "forbidden"
	KindValidation      Kind = "validation_failed"
	KindUnavailable     Kind = "unavailable"
	KindInternal        Kind = "internal"
)

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrForbidden       = errors.New("forbidden")
	ErrValidation      = errors.New("validation failed")
	ErrUnavailable     = errors.New("storage unavailable")
	ErrInternal        = errors.New("internal error")
)

var sentinels = map[Kind]error{
	KindUnauthenticated: ErrUnauthenticated,
	KindNotFound:        ErrNotFound,
	KindConflict:        ErrConflict,
	KindForbidden:       ErrForbidden,
	KindValidation:      ErrValidation,
	KindUnavailable:     ErrUnavailable,
	KindInternal:        ErrInternal,
}

// Error is a typed failure. Message is safe to show to API clients; Err keeps
// the underlying cause for logs.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	if e.Message == "" {
		return string(e.Kind)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrConflict) match any conflict regardless of message.
func (e *Error) Is(target error) bool {
	return sentinels[e.Kind] == target
}

func newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Unauthenticated(format string, args ...any) *Error {
	return newf(KindUnauthenticated, format, args...)
}

func NotFound(format string, args ...any) *Error   { return newf(KindNotFound, format, args...) }
func Conflict(format string, args ...any) *Error   { return newf(KindConflict, format, args...) }
func Forbidden(format string, args ...any) *Error  { return newf(KindForbidden, format, args...) }
func Validation(format string, args ...any) *Error { return newf(KindValidation, format, args...) }

// Unavailable wraps a transient storage fault. Callers may retry the whole operation.
func Unavailable(cause error) *Error {
	return &Error{Kind: KindUnavailable, Message: "storage temporarily unavailable", Err: cause}
}

// Internal wraps an unexpected failure without exposing its text to clients.
func Internal(cause error) *Error {
	return &Error{Kind: KindInternal, Message: "internal error", Err: cause}
}

// KindOf reports the Kind of err, or KindInternal for untyped errors.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	for kind, sentinel := range sentinels {
		if errors.Is(err, sentinel) {
			return kind
		}
	}
	return KindInternal
}
