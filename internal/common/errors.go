package common

import (
	"errors"
	"net/http"
)

// AppError carries the API error code and HTTP status for a failure that
// should reach the client as-is.
type AppError struct {
	Code       string
	Message    string
	HTTPStatus int
	Err        error
	Details    any
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Err }

// NewAppError constructs an AppError.
func NewAppError(code, message string, status int, err error) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

// BadRequest wraps err as a 400 BAD_REQUEST.
func BadRequest(message string, err error) *AppError {
	return NewAppError("BAD_REQUEST", message, http.StatusBadRequest, err)
}

// WriteAppError renders err when it wraps an AppError and reports whether it
// did. Missing status and code default to 400 BAD_REQUEST.
func WriteAppError(w http.ResponseWriter, err error) bool {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return false
	}
	status, code := http.StatusBadRequest, "BAD_REQUEST"
	if appErr.HTTPStatus != 0 {
		status = appErr.HTTPStatus
	}
	if appErr.Code != "" {
		code = appErr.Code
	}
	JSONError(w, status, code, appErr.Message, appErr.Details)
	return true
}
