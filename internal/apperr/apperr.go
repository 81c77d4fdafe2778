// Package apperr defines the closed set of error kinds every component
// boundary raises. Handlers never panic and never hand a bare error string
// to a caller without first classifying it through a Kind so the HTTP
// frontends can pick a status code without string-matching messages.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error by the action its caller should take.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindAuthorization Kind = "authorization"
	KindNotFound      Kind = "not_found"
	KindSubmission    Kind = "submission"
	KindRemote        Kind = "remote_unreachable"
	KindTimeout       Kind = "timeout"
	KindInternal      Kind = "internal"
)

// httpStatus maps each Kind to the status code the HTTP frontends return.
var httpStatus = map[Kind]int{
	KindValidation:    http.StatusBadRequest,
	KindAuthorization: http.StatusForbidden,
	KindNotFound:      http.StatusNotFound,
	KindSubmission:    http.StatusInternalServerError,
	KindRemote:        http.StatusInternalServerError,
	KindTimeout:       http.StatusInternalServerError,
	KindInternal:      http.StatusInternalServerError,
}

// Error is a Kind-classified error with a short human message.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// HTTPStatus returns the status code the HTTP frontends should send for e.
func (e *Error) HTTPStatus() int {
	if code, ok := httpStatus[e.Kind]; ok {
		return code
	}
	return http.StatusInternalServerError
}

// New builds an Error of the given kind with no underlying cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an Error of the given kind around an underlying cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Validationf builds a KindValidation error with a formatted message.
func Validationf(format string, args ...interface{}) *Error {
	return New(KindValidation, fmt.Sprintf(format, args...))
}

// NotFoundf builds a KindNotFound error with a formatted message.
func NotFoundf(format string, args ...interface{}) *Error {
	return New(KindNotFound, fmt.Sprintf(format, args...))
}

// Forbidden builds a KindAuthorization error.
func Forbidden(message string) *Error {
	return New(KindAuthorization, message)
}

// As extracts an *Error from err, if any wraps one.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the Kind of err if it is (or wraps) an *Error, otherwise
// KindInternal — the safe default for an unclassified failure.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}
