// Package errors defines the sentinel errors shared by the shop service and
// an AppError type that carries an HTTP status alongside a user-facing
// message.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrPageNotFound     = errors.New("page not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrExtractionFailed = errors.New("term extraction failed")
	ErrUnknownMerchant  = errors.New("unknown merchant")
	ErrFetchFailed      = errors.New("page fetch failed")
	ErrHostNotAllowed   = errors.New("host not allowed")
	ErrRateLimited      = errors.New("rate limit exceeded")
	ErrInternal         = errors.New("internal error")
	ErrTimeout          = errors.New("operation timed out")
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

// Is and As are re-exported so callers importing this package under the
// name "errors" do not also need the standard library package.
func Is(err, target error) bool { return errors.Is(err, target) }

func As(err error, target any) bool { return errors.As(err, target) }

// HTTPStatusCode maps err to the status code a handler should answer with.
func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrPageNotFound), errors.Is(err, ErrUnknownMerchant):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrHostNotAllowed):
		return http.StatusBadRequest
	case errors.Is(err, ErrExtractionFailed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrFetchFailed):
		return http.StatusBadGateway
	case errors.Is(err, ErrTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
