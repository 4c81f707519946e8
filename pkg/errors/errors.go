package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Standard sentinel errors for common cases.
var (
	ErrNotFound       = errors.New("resource not found")
	ErrInvalidInput   = errors.New("invalid input")
	ErrConflict       = errors.New("conflict")
	ErrInternal       = errors.New("internal error")
	ErrServiceUnavail = errors.New("service unavailable")

	// Selection engine error kinds. These are non-fatal to the session:
	// callers retain the previously resolved variant or quote.
	ErrMalformedCatalog   = errors.New("malformed catalog payload")
	ErrVariantUnavailable = errors.New("variant unavailable")
	ErrPriceUnavailable   = errors.New("price unavailable")
)

// AppError represents a structured application error with HTTP status mapping.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NotFound creates a 404 error.
func NotFound(resource, id string) *AppError {
	return &AppError{
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s with id %s not found", resource, id),
		Status:  http.StatusNotFound,
		Err:     ErrNotFound,
	}
}

// InvalidInput creates a 400 error.
func InvalidInput(message string) *AppError {
	return &AppError{
		Code:    "INVALID_INPUT",
		Message: message,
		Status:  http.StatusBadRequest,
		Err:     ErrInvalidInput,
	}
}

// Conflict creates a 409 error.
func Conflict(message string) *AppError {
	return &AppError{
		Code:    "CONFLICT",
		Message: message,
		Status:  http.StatusConflict,
		Err:     ErrConflict,
	}
}

// Internal creates a 500 error.
func Internal(err error) *AppError {
	return &AppError{
		Code:    "INTERNAL_ERROR",
		Message: "an internal error occurred",
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

// ServiceUnavailable creates a 503 error.
func ServiceUnavailable(message string) *AppError {
	return &AppError{
		Code:    "SERVICE_UNAVAILABLE",
		Message: message,
		Status:  http.StatusServiceUnavailable,
		Err:     ErrServiceUnavail,
	}
}

// MalformedCatalog creates a 502 error for an unusable upstream catalog payload.
// This is fatal to the product load and surfaced to the caller.
func MalformedCatalog(err error) *AppError {
	return &AppError{
		Code:    "MALFORMED_CATALOG",
		Message: "catalog payload is not a well-formed object",
		Status:  http.StatusBadGateway,
		Err:     fmt.Errorf("%w: %w", ErrMalformedCatalog, err),
	}
}

// VariantUnavailable creates a 404 error for an attribute pair that no source
// can resolve to a variant.
func VariantUnavailable(color, size string) *AppError {
	return &AppError{
		Code:    "VARIANT_UNAVAILABLE",
		Message: fmt.Sprintf("no variant for color %q size %q", color, size),
		Status:  http.StatusNotFound,
		Err:     ErrVariantUnavailable,
	}
}

// PriceUnavailable creates a 503 error for a variant whose price cannot be
// obtained from the remote service or local tiers.
func PriceUnavailable(variantID string) *AppError {
	return &AppError{
		Code:    "PRICE_UNAVAILABLE",
		Message: fmt.Sprintf("no price obtainable for variant %s", variantID),
		Status:  http.StatusServiceUnavailable,
		Err:     ErrPriceUnavailable,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	return fmt.Errorf("%s: %w", message, err)
}

// HTTPStatus returns the HTTP status code for the given error.
func HTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}

	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrVariantUnavailable):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrMalformedCatalog):
		return http.StatusBadGateway
	case errors.Is(err, ErrPriceUnavailable), errors.Is(err, ErrServiceUnavail):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
