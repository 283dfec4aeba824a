// LOCATION: internal/errors/errors.go
// VERSION: 2.0 - Consolidated error definitions for the entire project
//
// This file provides:
// - Sentinel errors for all error conditions
// - Error category checking functions
// - HTTP status mapping for the API surface
// - Error wrapping utilities

package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ============================================================================
// Sentinel errors for common conditions
// ============================================================================

var (
	// Not found errors
	ErrNotFound        = errors.New("not found")
	ErrSessionNotFound = errors.New("session not found")
	ErrEventNotFound   = errors.New("event not found")

	// Already exists errors
	ErrAlreadyExists = errors.New("already exists")

	// Validation errors
	ErrInvalidConfig    = errors.New("invalid configuration")
	ErrInvalidComponent = errors.New("invalid component")
	ErrInvalidWindow    = errors.New("invalid time window")
	ErrInvalidLimit     = errors.New("invalid limit")
	ErrInvalidFormat    = errors.New("invalid export format")
	ErrInvalidDuration  = errors.New("invalid duration")
	ErrMissingField     = errors.New("missing required field")

	// Capture errors
	ErrCaptureFailed    = errors.New("capture failed")
	ErrClockUnavailable = errors.New("monotonic clock unavailable")

	// Pipeline state errors
	ErrBufferFull     = errors.New("buffer full")
	ErrNotRunning     = errors.New("not running")
	ErrAlreadyRunning = errors.New("already running")
	ErrShuttingDown   = errors.New("shutting down")
	ErrSessionExpired = errors.New("session expired")
	ErrSessionStopped = errors.New("session already stopped")

	// Storage errors
	ErrStoreClosed      = errors.New("store is closed")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrCommitFailed     = errors.New("batch commit failed")
	ErrRetentionFailed  = errors.New("retention cleanup failed")
	ErrNoWriteConn      = errors.New("write connection not held")

	// Query errors
	ErrQueryFailed = errors.New("query failed")
	ErrTimeout     = errors.New("timeout")

	// Internal errors
	ErrInternal = errors.New("internal error")
	ErrDatabase = errors.New("database error")
)

// ============================================================================
// Helper functions for error checking
// ============================================================================

// Is is a convenience wrapper for errors.Is
var Is = errors.Is

// As is a convenience wrapper for errors.As
var As = errors.As

// New is a convenience wrapper for errors.New
var New = errors.New

// IsNotFound returns true if err is a not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrSessionNotFound) ||
		errors.Is(err, ErrEventNotFound)
}

// IsValidation returns true if err is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrInvalidComponent) ||
		errors.Is(err, ErrInvalidWindow) ||
		errors.Is(err, ErrInvalidLimit) ||
		errors.Is(err, ErrInvalidFormat) ||
		errors.Is(err, ErrInvalidDuration) ||
		errors.Is(err, ErrMissingField)
}

// IsStateError returns true if err is a lifecycle state error.
func IsStateError(err error) bool {
	return errors.Is(err, ErrNotRunning) ||
		errors.Is(err, ErrAlreadyRunning) ||
		errors.Is(err, ErrShuttingDown) ||
		errors.Is(err, ErrSessionExpired) ||
		errors.Is(err, ErrSessionStopped)
}

// IsUnavailable returns true if err indicates the store or pipeline
// cannot serve the request right now.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrStoreClosed) ||
		errors.Is(err, ErrStoreUnavailable) ||
		errors.Is(err, ErrShuttingDown)
}

// IsRetriable returns true if the error is potentially retriable.
func IsRetriable(err error) bool {
	return errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrStoreUnavailable) ||
		errors.Is(err, ErrCommitFailed) ||
		errors.Is(err, ErrBufferFull)
}

// ============================================================================
// Error to HTTP status mapping
// ============================================================================

// HTTPStatus maps a sentinel error to the status code the API returns for it.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case IsNotFound(err):
		return http.StatusNotFound
	case Is(err, ErrAlreadyExists):
		return http.StatusConflict
	case IsValidation(err):
		return http.StatusBadRequest
	case IsStateError(err):
		return http.StatusConflict
	case IsUnavailable(err):
		return http.StatusServiceUnavailable
	case Is(err, ErrTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// ============================================================================
// Error wrapping utilities
// ============================================================================

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// ============================================================================
// Error constructors with context
// ============================================================================

// NewNotFound creates a not-found error with context.
func NewNotFound(entityType, identifier string) error {
	return fmt.Errorf("%s '%s': %w", entityType, identifier, ErrNotFound)
}

// NewValidation creates a validation error with context.
func NewValidation(field, reason string) error {
	return fmt.Errorf("invalid %s: %s: %w", field, reason, ErrInvalidConfig)
}

// NewMissingField creates a missing field error.
func NewMissingField(field string) error {
	return fmt.Errorf("%s: %w", field, ErrMissingField)
}

// NewInvalidValue creates an invalid value error.
func NewInvalidValue(field string, value interface{}, reason string) error {
	return fmt.Errorf("invalid %s '%v': %s: %w", field, value, reason, ErrInvalidConfig)
}

// ============================================================================
// Validation Errors Collection
// ============================================================================

// ValidationErrors collects multiple validation errors.
type ValidationErrors struct {
	Errors []error
}

// NewValidationErrors creates a new ValidationErrors collector.
func NewValidationErrors() *ValidationErrors {
	return &ValidationErrors{}
}

// Add adds an error to the collection.
func (v *ValidationErrors) Add(err error) {
	if err != nil {
		v.Errors = append(v.Errors, err)
	}
}

// Addf adds a formatted validation error.
func (v *ValidationErrors) Addf(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrInvalidConfig))
}

// AddField adds a field validation error.
func (v *ValidationErrors) AddField(field, reason string) {
	v.Errors = append(v.Errors, NewValidation(field, reason))
}

// AddMissing adds a missing field error.
func (v *ValidationErrors) AddMissing(field string) {
	v.Errors = append(v.Errors, NewMissingField(field))
}

// HasErrors returns true if there are any errors.
func (v *ValidationErrors) HasErrors() bool {
	return len(v.Errors) > 0
}

// Error implements the error interface.
func (v *ValidationErrors) Error() string {
	if len(v.Errors) == 0 {
		return ""
	}
	if len(v.Errors) == 1 {
		return v.Errors[0].Error()
	}

	msg := fmt.Sprintf("validation failed with %d errors:", len(v.Errors))
	for _, err := range v.Errors {
		msg += "\n  - " + err.Error()
	}
	return msg
}

// Err returns nil if no errors, otherwise returns the ValidationErrors.
func (v *ValidationErrors) Err() error {
	if len(v.Errors) == 0 {
		return nil
	}
	return v
}

// Unwrap returns the first error for errors.Is/As support.
func (v *ValidationErrors) Unwrap() error {
	if len(v.Errors) == 0 {
		return nil
	}
	return v.Errors[0]
}
