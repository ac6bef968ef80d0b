// Package apperrors defines the typed error carried across the service.
// Every failure that can reach a caller has an HTTP status, a stable domain
// code and a human-readable detail; the HTTP boundary renders these as
// {"success": false, "code": <domain code>, "message": <detail>}.
package apperrors

import (
	"errors"
	"fmt"
)

// Domain codes. The leading "2" marks errors originating in this service,
// the trailing three digits mirror the closest HTTP status.
const (
	CodeBadRequest   = 20400
	CodeUnauthorized = 20401
	CodeNotFound     = 20404
	CodeInternal     = 20500
	CodeValidation   = 40400
)

type Error struct {
	// HTTPStatus is the status the HTTP boundary responds with.
	HTTPStatus int
	// Code is the stable domain code clients switch on.
	Code int
	// Detail is the human-readable message.
	Detail string
	// Err is the wrapped cause, if any.
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Detail, e.Err)
	}
	return e.Detail
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds a typed error with no wrapped cause.
func New(httpStatus, code int, detail string) *Error {
	return &Error{HTTPStatus: httpStatus, Code: code, Detail: detail}
}

// Wrap builds a typed error around a cause.
func Wrap(httpStatus, code int, detail string, err error) *Error {
	return &Error{HTTPStatus: httpStatus, Code: code, Detail: detail, Err: err}
}

// KeyService marks a failure talking to the external key server.
func KeyService(detail string) *Error {
	return New(404, CodeNotFound, detail)
}

// EngineSubmission marks a failure submitting to or querying the
// transcoding engine.
func EngineSubmission(detail string, err error) *Error {
	return Wrap(500, CodeInternal, detail, err)
}

// Store marks a persistence failure.
func Store(detail string, err error) *Error {
	return Wrap(500, CodeInternal, detail, err)
}

// Validation marks a malformed inbound payload.
func Validation(detail string) *Error {
	return New(400, CodeBadRequest, detail)
}

// NotFound marks a lookup miss surfaced to a synchronous caller.
func NotFound(detail string) *Error {
	return New(404, CodeNotFound, detail)
}

// AsError extracts a typed error from err, or wraps err as an internal one.
func AsError(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return Wrap(500, CodeInternal, "internal error", err)
}
