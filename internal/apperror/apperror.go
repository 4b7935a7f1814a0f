// Package apperror defines the error taxonomy shared by the trust layer. Every error that
// reaches a caller is reduced to a Kind and a fixed, user-safe message; the underlying cause
// is kept for logging only.
package apperror

import (
	"errors"
	"net/http"
)

// Kind classifies an error for callers and transports.
type Kind string

const (
	KindAuthenticationFailure Kind = "authentication_failure"
	KindConflict              Kind = "conflict"
	KindPermissionDenied      Kind = "permission_denied"
	KindNotFound              Kind = "not_found"
	KindExpired               Kind = "expired"
	KindRateLimited           Kind = "rate_limited"
	KindLocked                Kind = "locked"
	KindInvalidArgument       Kind = "invalid_argument"
	KindInternal              Kind = "internal"
)

// Error is a classified error. Message is safe to show to end users; Cause is not.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return string(e.Kind) + ": " + e.Message + ": " + e.Cause.Error()
	}
	return string(e.Kind) + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is an *Error of the same Kind, so errors.Is(err, apperror.ErrLocked) works
// for any locked error regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

// Kind sentinels for errors.Is checks.
var (
	ErrAuthenticationFailure = &Error{Kind: KindAuthenticationFailure}
	ErrConflict              = &Error{Kind: KindConflict}
	ErrPermissionDenied      = &Error{Kind: KindPermissionDenied}
	ErrNotFound              = &Error{Kind: KindNotFound}
	ErrExpired               = &Error{Kind: KindExpired}
	ErrRateLimited           = &Error{Kind: KindRateLimited}
	ErrLocked                = &Error{Kind: KindLocked}
	ErrInvalidArgument       = &Error{Kind: KindInvalidArgument}
	ErrInternal              = &Error{Kind: KindInternal}
)

// New returns an *Error of the given kind and message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap returns an *Error of the given kind and message that keeps cause for logging.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Internal wraps an unexpected failure. The message never includes the cause.
func Internal(cause error) *Error {
	return &Error{Kind: KindInternal, Message: "internal error", Cause: cause}
}

// KindOf returns the Kind of err, or KindInternal when err is not classified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Public returns the kind and user-safe message for err. Unclassified errors become a generic internal error.
func Public(err error) (Kind, string) {
	var e *Error
	if errors.As(err, &e) {
		if e.Kind == KindInternal {
			return KindInternal, "internal error"
		}
		return e.Kind, e.Message
	}
	return KindInternal, "internal error"
}

// HTTPStatus maps a Kind to an HTTP status code.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindAuthenticationFailure, KindExpired:
		return http.StatusUnauthorized
	case KindConflict:
		return http.StatusConflict
	case KindPermissionDenied:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindLocked:
		return http.StatusLocked
	case KindInvalidArgument:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
