// Package httpx holds the JSON request/response helpers shared by the HTTP
// endpoints.
package httpx

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	// SystemErrorMessage is the user-facing fallback for internal errors.
	SystemErrorMessage = "internal server error"
	// InvalidBodyMessage is returned when a request body is not valid JSON.
	InvalidBodyMessage = "Invalid JSON body."
)

// AppError wraps an underlying error with an HTTP status and a message safe
// to show the client.
type AppError struct {
	Err     error
	Status  int
	Message string
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As.
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewError creates an AppError.
func NewError(err error, status int, message string) *AppError {
	return &AppError{Err: err, Status: status, Message: message}
}

// BadRequest is a 400 with message.
func BadRequest(err error, message string) *AppError {
	return NewError(err, http.StatusBadRequest, message)
}

// NotFound is a 404 with message.
func NotFound(err error, message string) *AppError {
	return NewError(err, http.StatusNotFound, message)
}

// Internal is a 500 with message.
func Internal(err error, message string) *AppError {
	return NewError(err, http.StatusInternalServerError, message)
}

// StatusOf returns the status carried by err, 500 when err is not an AppError.
func StatusOf(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}
	return http.StatusInternalServerError
}
