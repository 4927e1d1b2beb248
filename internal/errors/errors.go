// Package errors provides structured error types for the stream catalog.
// All errors include a category, code, message, and retryable flag for
// consistent error handling across components. Subsystem failures also
// carry the teardown stage that failed.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by outcome.
type ErrorCategory string

const (
	ErrCategoryNotFound   ErrorCategory = "NOT_FOUND"
	ErrCategoryConflict   ErrorCategory = "CONFLICT"
	ErrCategoryValidation ErrorCategory = "VALIDATION"
	ErrCategorySubsystem  ErrorCategory = "SUBSYSTEM"
	ErrCategoryInternal   ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Not found codes
	CodeStreamNotFound = "STREAM_NOT_FOUND"

	// Conflict codes
	CodeStreamDeleting = "STREAM_DELETING"

	// Validation codes
	CodeMalformedSettings = "MALFORMED_SETTINGS"
	CodeInvalidArgument   = "INVALID_ARGUMENT"

	// Subsystem codes
	CodeStageFailed = "STAGE_FAILED"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// CatalogError is the structured error type used throughout the system.
type CatalogError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Stage     string
	Cause     error
	Retryable bool
}

// Error returns a formatted error string.
func (e *CatalogError) Error() string {
	prefix := fmt.Sprintf("[%s:%s]", e.Category, e.Code)
	if e.Stage != "" {
		prefix = fmt.Sprintf("[%s:%s@%s]", e.Category, e.Code, e.Stage)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s %s: %v", prefix, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s %s", prefix, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *CatalogError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *CatalogError) Is(target error) bool {
	var t *CatalogError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new CatalogError.
func New(category ErrorCategory, code, message string) *CatalogError {
	return &CatalogError{
		Category:  category,
		Code:      code,
		Message:   message,
		Retryable: isRetryable(category),
	}
}

// Wrap creates a new CatalogError wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *CatalogError {
	return &CatalogError{
		Category:  category,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: isRetryable(category),
	}
}

// Sentinels usable with errors.Is.
var (
	ErrNotFound          = New(ErrCategoryNotFound, CodeStreamNotFound, "stream not found")
	ErrConflict          = New(ErrCategoryConflict, CodeStreamDeleting, "stream is being deleted")
	ErrMalformedSettings = New(ErrCategoryValidation, CodeMalformedSettings, "malformed stream settings")
	ErrSubsystemFailure  = New(ErrCategorySubsystem, CodeStageFailed, "subsystem failure")
)

// IsRetryable checks whether an error (or its chain) is retryable.
func IsRetryable(err error) bool {
	var ce *CatalogError
	if errors.As(err, &ce) {
		return ce.Retryable
	}
	return false
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not a CatalogError.
func GetCategory(err error) ErrorCategory {
	var ce *CatalogError
	if errors.As(err, &ce) {
		return ce.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
func GetCode(err error) string {
	var ce *CatalogError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

// GetStage extracts the failed stage from an error chain.
// Returns empty string for errors that are not subsystem failures.
func GetStage(err error) string {
	var ce *CatalogError
	if errors.As(err, &ce) {
		return ce.Stage
	}
	return ""
}

// IsNotFound reports whether err is a not-found outcome.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsConflict reports whether err is a pending-deletion conflict.
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }

// IsMalformedSettings reports whether err is an unparseable settings blob.
func IsMalformedSettings(err error) bool { return errors.Is(err, ErrMalformedSettings) }

// IsSubsystemFailure reports whether err is a failed teardown stage.
func IsSubsystemFailure(err error) bool { return errors.Is(err, ErrSubsystemFailure) }

// isRetryable reports whether an outcome can succeed when the caller repeats it.
// Teardown stages are idempotent so every subsystem failure is retryable.
func isRetryable(category ErrorCategory) bool {
	return category == ErrCategorySubsystem
}

// Convenience constructors for common errors.

func NewNotFound(name string) *CatalogError {
	return New(ErrCategoryNotFound, CodeStreamNotFound, fmt.Sprintf("stream [%s] not found", name))
}

func NewConflict(name string) *CatalogError {
	return New(ErrCategoryConflict, CodeStreamDeleting, fmt.Sprintf("stream [%s] is being deleted", name))
}

func NewMalformedSettings(cause error) *CatalogError {
	return Wrap(ErrCategoryValidation, CodeMalformedSettings, "settings blob is not a JSON object", cause)
}

func NewInvalidArgument(message string) *CatalogError {
	return New(ErrCategoryValidation, CodeInvalidArgument, message)
}

func NewSubsystemFailure(stage, name string, cause error) *CatalogError {
	e := Wrap(ErrCategorySubsystem, CodeStageFailed, fmt.Sprintf("failed to delete stream [%s]", name), cause)
	e.Stage = stage
	return e
}

func NewInternalError(message string, cause error) *CatalogError {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}
