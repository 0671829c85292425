package errors

import (
	"fmt"
	"net/http"

	"github.com/cockroachdb/errors"
)

// Common error types that can be used across the application
var (
	ErrNotFound         = new(ErrCodeNotFound, "resource not found")
	ErrAlreadyExists    = new(ErrCodeAlreadyExists, "resource already exists")
	ErrValidation       = new(ErrCodeValidation, "validation error")
	ErrInvalidOperation = new(ErrCodeInvalidOperation, "invalid operation")
	ErrPermissionDenied = new(ErrCodePermissionDenied, "permission denied")
	ErrDatabase         = new(ErrCodeDatabase, "database error")
	ErrSystem           = new(ErrCodeSystemError, "system error")

	// Numbering engine failures
	ErrScopeNotResolvable   = new(ErrCodeScopeNotResolvable, "numbering scope could not be resolved")
	ErrIncrementFailed      = new(ErrCodeIncrementFailed, "numbering increment failed")
	ErrConfigurationInvalid = new(ErrCodeConfigurationInvalid, "numbering configuration invalid")
	ErrLoggingFailure       = new(ErrCodeLoggingFailure, "numbering error log write failed")

	// maps errors to http status codes, the first match wins so the
	// numbering taxonomy takes precedence over the generic sentinels
	statusCodes = []struct {
		err    error
		status int
	}{
		{ErrConfigurationInvalid, http.StatusBadRequest},
		{ErrScopeNotResolvable, http.StatusServiceUnavailable},
		{ErrIncrementFailed, http.StatusServiceUnavailable},
		{ErrLoggingFailure, http.StatusInternalServerError},
		{ErrNotFound, http.StatusNotFound},
		{ErrAlreadyExists, http.StatusConflict},
		{ErrValidation, http.StatusBadRequest},
		{ErrInvalidOperation, http.StatusBadRequest},
		{ErrPermissionDenied, http.StatusForbidden},
		{ErrDatabase, http.StatusInternalServerError},
		{ErrSystem, http.StatusInternalServerError},
	}
)

const (
	ErrCodeSystemError      = "system_error"
	ErrCodeNotFound         = "not_found"
	ErrCodeAlreadyExists    = "already_exists"
	ErrCodeValidation       = "validation_error"
	ErrCodeInvalidOperation = "invalid_operation"
	ErrCodePermissionDenied = "permission_denied"
	ErrCodeDatabase         = "database_error"

	ErrCodeScopeNotResolvable   = "scope_not_resolvable"
	ErrCodeIncrementFailed      = "increment_failed"
	ErrCodeConfigurationInvalid = "configuration_invalid"
	ErrCodeLoggingFailure       = "logging_failure"
)

// InternalError represents a domain error
type InternalError struct {
	Code    string // Machine-readable error code
	Message string // Human-readable error message
	Op      string // Logical operation name
	Err     error  // Underlying error
}

func (e *InternalError) Error() string {
	if e.Err == nil {
		return e.DisplayError()
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Err.Error())
}

func (e *InternalError) DisplayError() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *InternalError) Unwrap() error {
	return e.Err
}

// Is implements error matching for wrapped errors
func (e *InternalError) Is(target error) bool {
	if target == nil {
		return false
	}

	t, ok := target.(*InternalError)
	if !ok {
		return errors.Is(e.Err, target)
	}

	return e.Code == t.Code
}

// New creates a new InternalError
func new(code string, message string) *InternalError {
	return &InternalError{
		Code:    code,
		Message: message,
	}
}

func As(err error, target any) bool {
	return errors.As(err, target)
}

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if an error is an already exists error
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsValidation checks if an error is a validation error
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsConfigurationInvalid checks if an error is a numbering configuration error
func IsConfigurationInvalid(err error) bool {
	return errors.Is(err, ErrConfigurationInvalid)
}

// IsScopeNotResolvable checks if scope resolution failed at the storage layer
func IsScopeNotResolvable(err error) bool {
	return errors.Is(err, ErrScopeNotResolvable)
}

// IsIncrementFailed checks if the atomic increment itself failed
func IsIncrementFailed(err error) bool {
	return errors.Is(err, ErrIncrementFailed)
}

// IsLoggingFailure checks if an error log write failed
func IsLoggingFailure(err error) bool {
	return errors.Is(err, ErrLoggingFailure)
}

// IsRetryable reports whether the caller may issue a brand-new request after this error.
// It never means the same number can be requested again.
func IsRetryable(err error) bool {
	return IsScopeNotResolvable(err) || IsIncrementFailed(err)
}

func HTTPStatusFromErr(err error) int {
	for _, sc := range statusCodes {
		if errors.Is(err, sc.err) {
			return sc.status
		}
	}
	return http.StatusInternalServerError
}
