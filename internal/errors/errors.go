package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrorTypeDirectoryNotFound ErrorType = "directory_not_found"
	ErrorTypeImageLoad         ErrorType = "image_load"
	ErrorTypeMetricComputation ErrorType = "metric_computation"
	ErrorTypeMissingMetric     ErrorType = "missing_metric"
	ErrorTypeEmptyBatch        ErrorType = "empty_batch"
	ErrorTypeValidation        ErrorType = "validation"
	ErrorTypeNetwork           ErrorType = "network"
	ErrorTypeTimeout           ErrorType = "timeout"
	ErrorTypeNotFound          ErrorType = "not_found"
	ErrorTypeInternal          ErrorType = "internal"
)

// AppError represents a structured application error
type AppError struct {
	Type       ErrorType `json:"type"`
	Message    string    `json:"message"`
	Details    string    `json:"details,omitempty"`
	StatusCode int       `json:"status_code"`
	Cause      error     `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// NewDirectoryNotFoundError is returned when a base or improved listing cannot be read.
// It is fatal to a batch run.
func NewDirectoryNotFoundError(dir string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeDirectoryNotFound,
		Message:    fmt.Sprintf("directory not found: %s", dir),
		Details:    dir,
		StatusCode: http.StatusNotFound,
		Cause:      cause,
	}
}

// NewImageLoadError is returned when one side of a pair cannot be opened as an image.
// The pair is skipped, the batch continues.
func NewImageLoadError(path string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeImageLoad,
		Message:    fmt.Sprintf("cannot load image %s", path),
		Details:    path,
		StatusCode: http.StatusUnprocessableEntity,
		Cause:      cause,
	}
}

// NewMetricComputationError reports a metric that could not be computed for a pair
func NewMetricComputationError(metric string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeMetricComputation,
		Message:    fmt.Sprintf("failed to compute %s", metric),
		Details:    metric,
		StatusCode: http.StatusUnprocessableEntity,
		Cause:      cause,
	}
}

// NewMissingMetricError reports a metric record lacking a required key
func NewMissingMetricError(metric string) *AppError {
	return &AppError{
		Type:       ErrorTypeMissingMetric,
		Message:    fmt.Sprintf("metric record is missing %q", metric),
		Details:    metric,
		StatusCode: http.StatusBadRequest,
	}
}

// NewEmptyBatchError is returned when averages are requested before any pair was recorded
func NewEmptyBatchError() *AppError {
	return &AppError{
		Type:       ErrorTypeEmptyBatch,
		Message:    "no comparisons recorded",
		StatusCode: http.StatusConflict,
	}
}

// NewValidationError creates a new validation error
func NewValidationError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Cause:      cause,
	}
}

// NewNetworkError creates a new network error
func NewNetworkError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeNetwork,
		Message:    message,
		StatusCode: http.StatusBadGateway,
		Cause:      cause,
	}
}

// NewTimeoutError creates a new timeout error
func NewTimeoutError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeTimeout,
		Message:    message,
		StatusCode: http.StatusGatewayTimeout,
		Cause:      cause,
	}
}

// NewInternalError creates a new internal error
func NewInternalError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Cause:      cause,
	}
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Message:    message,
		StatusCode: http.StatusNotFound,
		Cause:      cause,
	}
}

// As finds the first AppError in err's chain
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsType checks if the error, or any error it wraps, is of a specific type
func IsType(err error, errorType ErrorType) bool {
	if appErr, ok := As(err); ok {
		return appErr.Type == errorType
	}
	return false
}

// TypeOf returns the error type, or ErrorTypeInternal for foreign errors
func TypeOf(err error) ErrorType {
	if appErr, ok := As(err); ok {
		return appErr.Type
	}
	return ErrorTypeInternal
}

// GetStatusCode extracts the HTTP status code from an error
func GetStatusCode(err error) int {
	if appErr, ok := As(err); ok {
		return appErr.StatusCode
	}
	return http.StatusInternalServerError
}
