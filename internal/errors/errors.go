// Package errors provides the application error taxonomy for pricewatch.
// Catalog, tracker and collaborator failures are reported as AppError values
// so callers can classify them with errors.Is / errors.As without string matching.
package errors

import (
	"errors"
	"net/http"
)

// AppError represents a structured application error with an error code,
// human-readable message, HTTP status code, and optional internal error.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Internal   error  `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Internal != nil {
		return e.Message + ": " + e.Internal.Error()
	}
	return e.Message
}

// Unwrap returns the internal error for use with errors.Is/As.
func (e *AppError) Unwrap() error { return e.Internal }

// Is reports whether target is an AppError with the same code, so a wrapped
// or re-messaged error still matches its sentinel.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Wrap creates a new AppError with the same code/message/status but wraps an internal error.
func Wrap(sentinel *AppError, internal error) *AppError {
	return &AppError{
		Code:       sentinel.Code,
		Message:    sentinel.Message,
		StatusCode: sentinel.StatusCode,
		Internal:   internal,
	}
}

// WithMessage creates a new AppError with a custom message.
func WithMessage(sentinel *AppError, message string) *AppError {
	return &AppError{
		Code:       sentinel.Code,
		Message:    message,
		StatusCode: sentinel.StatusCode,
		Internal:   sentinel.Internal,
	}
}

// Code returns the AppError code carried by err, or "" when err is not an AppError.
func Code(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// General errors.
var (
	ErrInvalidInput   = &AppError{Code: "INVALID_INPUT", Message: "Invalid input", StatusCode: http.StatusBadRequest}
	ErrNotFound       = &AppError{Code: "NOT_FOUND", Message: "Resource not found", StatusCode: http.StatusNotFound}
	ErrInternalServer = &AppError{Code: "INTERNAL_ERROR", Message: "An internal error occurred", StatusCode: http.StatusInternalServerError}
)

// Configuration errors. These are fatal at startup.
var (
	ErrInvalidConfig           = &AppError{Code: "INVALID_CONFIG", Message: "Invalid product configuration", StatusCode: http.StatusUnprocessableEntity}
	ErrConflictingStoreMapping = &AppError{Code: "CONFLICTING_STORE_MAPPING", Message: "Store URL is already mapped to a different presentation", StatusCode: http.StatusConflict}
)

// Catalog errors.
var (
	ErrProductNotFound   = &AppError{Code: "PRODUCT_NOT_FOUND", Message: "Product not found", StatusCode: http.StatusNotFound}
	ErrProductHasHistory = &AppError{Code: "PRODUCT_HAS_HISTORY", Message: "Product has price history; cascade is required to delete it", StatusCode: http.StatusConflict}
	ErrUnknownStore      = &AppError{Code: "UNKNOWN_STORE", Message: "Store URL is not in the catalog", StatusCode: http.StatusNotFound}
	ErrInvalidPrice      = &AppError{Code: "INVALID_PRICE", Message: "Invalid price observation", StatusCode: http.StatusBadRequest}
	ErrPersistence       = &AppError{Code: "PERSISTENCE_FAILED", Message: "Failed to persist price observation", StatusCode: http.StatusInternalServerError}
)

// Pipeline errors.
var (
	ErrExtraction         = &AppError{Code: "EXTRACTION_FAILED", Message: "Price extraction failed", StatusCode: http.StatusBadGateway}
	ErrInvariantViolation = &AppError{Code: "INVARIANT_VIOLATION", Message: "Extracted prices violate source invariants", StatusCode: http.StatusBadGateway}
	ErrNotification       = &AppError{Code: "NOTIFICATION_FAILED", Message: "Failed to deliver notification", StatusCode: http.StatusBadGateway}
)
