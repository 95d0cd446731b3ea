// Package apperror defines the error taxonomy shared by every layer.
//
// Lower layers return an *AppError wrapping one of the sentinels below.
// The HTTP layer maps the sentinel to a status code with errors.Is, and
// uses Message as the client-facing text. Anything that is not an
// *AppError is treated as an internal error.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrValidation         = errors.New("validation error")
	ErrConflict           = errors.New("conflict")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnauthorized       = errors.New("unauthorized")
)

type AppError struct {
	Err     error  // sentinel
	Message string // human-readable error message
	Field   string // optional: input field causing the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

// Conflict reports a uniqueness violation on field.
func Conflict(field, message string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: message,
		Field:   field,
	}
}

// InvalidCredentials is returned by login for both an unknown email and a
// wrong password, so callers cannot tell the two apart.
func InvalidCredentials() *AppError {
	return &AppError{
		Err:     ErrInvalidCredentials,
		Message: "Invalid credentials",
	}
}

// Unauthorized reports a missing, malformed or expired session token.
func Unauthorized(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: message,
	}
}
