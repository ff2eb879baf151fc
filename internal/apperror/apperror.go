// Package apperror defines the domain errors shared by every layer.
//
// Repositories and services return these; only the handler package knows how
// they map to HTTP status codes (see handler.writeError).
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("Validation Error")
	ErrConflict     = errors.New("conflict")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
	ErrLimitReached = errors.New("limit reached")
)

// CodeLimitReached is the machine-readable code the front end keys its
// upgrade prompt on.
const CodeLimitReached = "LIMIT_REACHED"

type AppError struct {
	Err     error  // actual error
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
	Code    string // Optional: machine-readable code surfaced to clients
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

func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// Unauthorized means there is no valid session at all (HTTP 401).
func Unauthorized(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: message,
	}
}

// LimitReached reports that the caller's plan does not allow one more
// resource of the given kind. It carries CodeLimitReached so clients can
// tell it apart from a generic 403.
func LimitReached(resource string, limit int) *AppError {
	return &AppError{
		Err:     ErrLimitReached,
		Message: fmt.Sprintf("%s limit of %d reached, upgrade to create more", resource, limit),
		Code:    CodeLimitReached,
	}
}
