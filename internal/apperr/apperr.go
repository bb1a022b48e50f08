// Package apperr classifies errors that cross the HTTP boundary. Each error
// carries a Kind that decides the status code and a user-facing message; the
// wrapped cause is reported separately as diagnostic details.
package apperr

import (
	"errors"
	"net/http"
)

type Kind int

const (
	KindInternal Kind = iota
	KindAuthentication
	KindConfiguration
	KindNotFound
	KindValidation
	KindUpstream
	KindForbidden
	KindConflict
	KindRateLimited
)

func (k Kind) String() string {
	switch k {
	case KindAuthentication:
		return "authentication"
	case KindConfiguration:
		return "configuration"
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation"
	case KindUpstream:
		return "upstream"
	case KindForbidden:
		return "forbidden"
	case KindConflict:
		return "conflict"
	case KindRateLimited:
		return "rate_limited"
	default:
		return "internal"
	}
}

// Status maps a Kind to its HTTP status code.
func (k Kind) Status() int {
	switch k {
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindConfiguration:
		return http.StatusInternalServerError
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation:
		return http.StatusBadRequest
	case KindUpstream:
		return http.StatusBadGateway
	case KindForbidden:
		return http.StatusForbidden
	case KindConflict:
		return http.StatusConflict
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified error with a message safe to show to end users.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf reports the Kind of the outermost classified error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Message returns the user-facing message for err.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return "Internal server error"
}

// Details returns the raw cause of err for diagnostics, or "" when there is none.
func Details(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Err == nil {
			return ""
		}
		return e.Err.Error()
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
