// Package errors defines the sentinel errors shared across the retrieval
// stack and an AppError wrapper that carries an HTTP status for the serving
// surface.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrCorpusNotFound is returned when the corpus source does not exist.
	ErrCorpusNotFound = errors.New("corpus not found")
	// ErrCorpusMalformed is returned when a corpus entry violates the
	// required structure (missing id/text, duplicate id, bad JSON).
	ErrCorpusMalformed = errors.New("corpus malformed")
	// ErrIndexCorrupt is returned when a persisted index cannot be read or
	// fails its internal consistency checks.
	ErrIndexCorrupt = errors.New("index corrupt")
	// ErrInvalidInput is returned for bad caller-supplied parameters.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInternal is the fallback for unexpected failures.
	ErrInternal = errors.New("internal error")
)

type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

// HTTPStatusCode maps an error to the HTTP status the serving layer should
// return for it.
func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrCorpusNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrCorpusMalformed), errors.Is(err, ErrIndexCorrupt):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
