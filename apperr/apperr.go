// Package apperr defines the error taxonomy shared by services and handlers.
//
// Services return *Error for expected failures (bad input, missing records,
// duplicates) and wrap storage failures with Internal. Handlers map the Kind
// to an HTTP status at the route boundary and translate Key through i18n.
package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"sfaptracker/i18n"
)

type Kind int

const (
	KindInternal Kind = iota
	KindAuth
	KindForbidden
	KindValidation
	KindBadRequest
	KindNotFound
	KindConflict
	KindRateLimited
)

func (k Kind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindForbidden:
		return "forbidden"
	case KindValidation:
		return "validation"
	case KindBadRequest:
		return "bad_request"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindRateLimited:
		return "rate_limited"
	default:
		return "internal"
	}
}

// Error carries a kind, an i18n message key with optional format arguments,
// and the underlying cause if any.
type Error struct {
	Kind Kind
	Key  string
	Args []any
	Err  error
}

func (e *Error) Error() string {
	msg := e.Message(i18n.DefaultLang)
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Message renders the user-facing message in the given language.
func (e *Error) Message(lang string) string {
	msg := i18n.T(lang, e.Key)
	if len(e.Args) > 0 {
		msg = fmt.Sprintf(msg, e.Args...)
	}
	return msg
}

// Status maps the kind to an HTTP status code.
func (e *Error) Status() int {
	return StatusOf(e.Kind)
}

func StatusOf(k Kind) int {
	switch k {
	case KindAuth:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindValidation, KindBadRequest:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func newErr(kind Kind, key string, args ...any) *Error {
	return &Error{Kind: kind, Key: key, Args: args}
}

func Auth(key string) *Error { return newErr(KindAuth, key) }
func Forbidden(key string) *Error { return newErr(KindForbidden, key) }
func Validation(key string, args ...any) *Error { return newErr(KindValidation, key, args...) }
func BadRequest(key string, args ...any) *Error { return newErr(KindBadRequest, key, args...) }
func NotFound(key string) *Error { return newErr(KindNotFound, key) }
func Conflict(key string) *Error { return newErr(KindConflict, key) }
func RateLimited(key string) *Error { return newErr(KindRateLimited, key) }

// Internal wraps a storage or infrastructure failure. The cause is kept for
// logging and never shown to clients.
func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Key: "InternalServerError", Err: err}
}

// KindOf reports the kind of err. Errors that are not *Error are internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// From returns err as *Error, wrapping unknown errors as internal.
func From(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal(err)
}
