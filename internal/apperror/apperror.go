// Package apperror defines the error kinds the HTTP layer knows how to map.
// Wrap freely with %w: errors.Is still finds the sentinel.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation failed")
	ErrConflict     = errors.New("conflict")
	ErrForbidden    = errors.New("forbidden")
	ErrInvalidToken = errors.New("invalid or expired token")
	ErrUnauthorized = errors.New("unauthorized")
)

type AppError struct {
	Err     error  // one of the sentinels above
	Message string // shown to the client
	Field   string // JSON field at fault, validation only
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

// Conflict reports that a unique value (an email, say) is already taken.
func Conflict(resource, value string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s %q is already in use", resource, value),
	}
}

// Forbidden is for a caller who may see the resource but not change it.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// InvalidToken is returned when a signed link token is malformed, was issued
// for another purpose, or is older than its maximum age.
func InvalidToken(purpose string) *AppError {
	return &AppError{
		Err:     ErrInvalidToken,
		Message: fmt.Sprintf("%s link is invalid or has expired", purpose),
	}
}

// Unauthorized covers bad credentials and unverified accounts. The message is
// shown to the user as-is.
func Unauthorized(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: message,
	}
}
