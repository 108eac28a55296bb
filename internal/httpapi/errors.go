package httpapi

import "net/http"

// Kind classifies an API failure and decides the HTTP status.
type Kind int

const (
	KindValidation Kind = iota
	KindAuth
	KindForbidden
	KindNotFound
	KindConflict
	KindRateLimited
	KindStore
)

// FieldError carries a per-field validation message.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is the typed failure returned by services and rendered by handlers.
type Error struct {
	Kind    Kind
	Message string
	Fields  []FieldError
	cause   error
}

func (e *Error) Error() string { return e.Message }

// Unwrap exposes the underlying cause for errors.Is checks.
func (e *Error) Unwrap() error { return e.cause }

// Status maps the error kind onto an HTTP status code.
func (e *Error) Status() int {
	switch e.Kind {
	case KindValidation, KindConflict:
		return http.StatusBadRequest
	case KindAuth:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Validationf builds a validation error.
func Validationf(msg string, fields ...FieldError) *Error {
	return &Error{Kind: KindValidation, Message: msg, Fields: fields}
}

// Authf builds an authentication error.
func Authf(msg string) *Error { return &Error{Kind: KindAuth, Message: msg} }

// NotFoundf builds a not-found error.
func NotFoundf(msg string) *Error { return &Error{Kind: KindNotFound, Message: msg} }

// Conflictf builds a duplicate-resource error.
func Conflictf(msg string) *Error { return &Error{Kind: KindConflict, Message: msg} }

// Forbiddenf builds an access-denied error.
func Forbiddenf(msg string) *Error { return &Error{Kind: KindForbidden, Message: msg} }

// Storef wraps a persistence failure.
func Storef(msg string, cause error) *Error {
	return &Error{Kind: KindStore, Message: msg, cause: cause}
}
