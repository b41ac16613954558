// Package errors defines the API error vocabulary. Handlers render an AppError's
// code, message and details; the wrapped internal error is only logged.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is an error that carries what an API consumer is allowed to see.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Internal   error  `json:"-"`

	// Details maps request fields to field-specific messages.
	Details map[string]string `json:"details,omitempty"`
}

func (e *AppError) Error() string {
	if e == nil {
		return "<nil>"
	}

	if e.Internal != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Internal)
	}

	return e.Message
}

// Unwrap exposes the internal error for errors.Is / errors.As compatibility.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Internal
}

// Is matches any AppError with the same code, so copies made by the With* helpers
// still satisfy errors.Is against their sentinel.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// WithInternal returns a copy of the AppError with an attached internal error.
func (e *AppError) WithInternal(err error) *AppError {
	return e.derive(func(cpy *AppError) { cpy.Internal = err })
}

// WithMessage returns a copy of the AppError with a different client-facing message.
func (e *AppError) WithMessage(message string) *AppError {
	return e.derive(func(cpy *AppError) { cpy.Message = message })
}

// WithDetails returns a copy of the AppError carrying per-field messages.
func (e *AppError) WithDetails(details map[string]string) *AppError {
	return e.derive(func(cpy *AppError) {
		cpy.Details = make(map[string]string, len(details))
		for field, msg := range details {
			cpy.Details[field] = msg
		}
	})
}

// derive copies e and applies edit to the copy. Sentinels are shared package
// variables and are never mutated in place.
func (e *AppError) derive(edit func(*AppError)) *AppError {
	if e == nil {
		return nil
	}
	cpy := *e
	edit(&cpy)
	return &cpy
}

var (
	ErrUnauthorized       = New("UNAUTHORIZED", "Authentication required", http.StatusUnauthorized)
	ErrInvalidCredentials = New("INVALID_CREDENTIALS", "Invalid identifier or password", http.StatusUnauthorized)
	ErrAccountLocked      = New("ACCOUNT_LOCKED", "Account temporarily locked after repeated failed logins", http.StatusForbidden)
	ErrForbidden          = New("FORBIDDEN", "Permission denied", http.StatusForbidden)
	ErrNotFound           = New("NOT_FOUND", "Resource not found", http.StatusNotFound)
	ErrBadRequest         = New("BAD_REQUEST", "Invalid request", http.StatusBadRequest)
	ErrConflict           = New("CONFLICT", "Resource state conflict", http.StatusConflict)
	ErrRateLimit          = New("RATE_LIMIT_EXCEEDED", "Too many requests, please slow down", http.StatusTooManyRequests)
	ErrInternalServer     = New("INTERNAL_SERVER_ERROR", "Internal server error", http.StatusInternalServerError)
)

// New builds a new application error with the provided metadata.
func New(code, message string, statusCode int) *AppError {
	return &AppError{Code: code, Message: message, StatusCode: statusCode}
}

// FromError converts a generic error into an AppError, defaulting to ErrInternalServer.
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	return ErrInternalServer.WithInternal(err)
}

// NewBadRequest wraps validation errors with a helpful message.
func NewBadRequest(message string) *AppError {
	return ErrBadRequest.WithMessage(message)
}
