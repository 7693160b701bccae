// Package errors provides structured error types for the pipeline.
// All errors include a category, code, message, and retryable flag so the
// orchestrator and the invoking runtime can apply a consistent policy.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by pipeline concern.
type ErrorCategory string

const (
	ErrCategoryParse      ErrorCategory = "PARSE"
	ErrCategoryValidation ErrorCategory = "VALIDATION"
	ErrCategoryStorage    ErrorCategory = "STORAGE"
	ErrCategoryTable      ErrorCategory = "TABLE"
	ErrCategorySecrets    ErrorCategory = "SECRETS"
	ErrCategoryNotify     ErrorCategory = "NOTIFY"
	ErrCategoryInternal   ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Parse codes
	CodeMalformedInput    = "MALFORMED_INPUT"
	CodeUnsupportedFormat = "UNSUPPORTED_FORMAT"

	// Validation codes
	CodeSchemaViolation = "SCHEMA_VIOLATION"

	// Storage codes
	CodeReadFailed   = "READ_FAILED"
	CodeWriteFailed  = "WRITE_FAILED"
	CodeMoveFailed   = "MOVE_FAILED"
	CodeDeleteFailed = "DELETE_FAILED"
	CodeNotFound     = "NOT_FOUND"

	// Table codes
	CodeTableWriteFailed = "TABLE_WRITE_FAILED"
	CodeTableReadFailed  = "TABLE_READ_FAILED"

	// Secrets codes
	CodeSecretFetchFailed = "SECRET_FETCH_FAILED"

	// Notify codes
	CodePublishFailed = "PUBLISH_FAILED"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// PipelineError is the structured error type used throughout the pipeline.
type PipelineError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Cause     error
	Retryable bool
}

// Error returns a formatted error string.
func (e *PipelineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *PipelineError) Is(target error) bool {
	var t *PipelineError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new PipelineError.
func New(category ErrorCategory, code, message string) *PipelineError {
	return &PipelineError{
		Category:  category,
		Code:      code,
		Message:   message,
		Retryable: isRetryable(category, code),
	}
}

// Wrap creates a new PipelineError wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *PipelineError {
	return &PipelineError{
		Category:  category,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: isRetryable(category, code),
	}
}

// IsRetryable checks whether an error (or its chain) is retryable.
// Infrastructure failures are retryable by the invoking runtime; data errors
// (malformed input, schema violations) never are.
func IsRetryable(err error) bool {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not a PipelineError.
func GetCategory(err error) ErrorCategory {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not a PipelineError.
func GetCode(err error) string {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

func isRetryable(category ErrorCategory, code string) bool {
	switch category {
	case ErrCategoryStorage:
		return code != CodeNotFound
	case ErrCategoryTable, ErrCategorySecrets:
		return true
	default:
		return false
	}
}

// Convenience constructors for common errors.

func NewParseError(code, message string, cause error) *PipelineError {
	return Wrap(ErrCategoryParse, code, message, cause)
}

func NewStorageError(code, message string, cause error) *PipelineError {
	return Wrap(ErrCategoryStorage, code, message, cause)
}

func NewTableError(code, message string, cause error) *PipelineError {
	return Wrap(ErrCategoryTable, code, message, cause)
}

func NewSecretsError(message string, cause error) *PipelineError {
	return Wrap(ErrCategorySecrets, CodeSecretFetchFailed, message, cause)
}

func NewNotifyError(message string, cause error) *PipelineError {
	return Wrap(ErrCategoryNotify, CodePublishFailed, message, cause)
}

func NewInternalError(message string, cause error) *PipelineError {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}
