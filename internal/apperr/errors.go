// Package apperr defines the request-terminal error taxonomy shared by the
// authorization core and the HTTP handlers. Each error carries the status it
// maps to; none of them are retryable within a request.
package apperr

import (
	"errors"
	"net/http"
)

// Error is a caller-facing failure with a fixed HTTP status. The message is
// safe to serialize; internal detail stays in logs.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string { return e.Message }

func Unauthenticated(msg string) *Error { return &Error{Status: http.StatusUnauthorized, Message: msg} }
func Forbidden(msg string) *Error       { return &Error{Status: http.StatusForbidden, Message: msg} }
func NotFound(msg string) *Error        { return &Error{Status: http.StatusNotFound, Message: msg} }
func Validation(msg string) *Error      { return &Error{Status: http.StatusBadRequest, Message: msg} }
func Conflict(msg string) *Error        { return &Error{Status: http.StatusConflict, Message: msg} }

// NoTenantContext is returned when a non-super_admin principal has no home
// tenant. Maps to 403, distinct from role denials only by message.
func NoTenantContext() *Error {
	return &Error{Status: http.StatusForbidden, Message: "Tenant context missing"}
}

// QuotaExceeded maps to 403 with a message distinct from generic Forbidden
// so callers can tell a plan ceiling from a policy denial.
func QuotaExceeded(msg string) *Error {
	return &Error{Status: http.StatusForbidden, Message: msg}
}

// As unwraps err into *Error if possible.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
