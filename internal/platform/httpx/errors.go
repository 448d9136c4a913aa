// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"log/slog"
	"net/http"
)

// Sentinel errors for domain layer.
var (
	ErrNotFound     = errors.New("resource not found")
	ErrDuplicate    = errors.New("duplicate entry")
	ErrValidation   = errors.New("validation failed")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
)

// Error couples a client-facing message with one of the sentinel kinds above.
type Error struct {
	Kind    error
	Message string
}

// NewError builds an Error of the given kind.
func NewError(kind error, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Validation is shorthand for a validation Error carrying message.
func Validation(message string) *Error {
	return NewError(ErrValidation, message)
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Kind }

// StatusFor maps an error onto its HTTP status code.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// RespondError maps domain errors to the response envelope. Internal failures are
// logged and answered with a generic message.
func RespondError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		if logger != nil {
			logger.Error("request failed", slog.Any("error", err))
		}
		Fail(w, status, "Server error")
		return
	}
	message := http.StatusText(status)
	var typed *Error
	if errors.As(err, &typed) && typed.Message != "" {
		message = typed.Message
	}
	Fail(w, status, message)
}
