// Package errors provides structured error types for the pathlens engine.
// Every failure carries a category and code so callers can branch on cause:
// validation errors (malformed arguments), integrity errors (broken lineage
// or graph wiring), and storage errors. Data-quality conditions are not
// errors; they are recovered by dropping rows and reported as warnings.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by failure kind.
type ErrorCategory string

const (
	ErrCategoryValidation ErrorCategory = "VALIDATION"
	ErrCategoryIntegrity  ErrorCategory = "INTEGRITY"
	ErrCategoryStorage    ErrorCategory = "STORAGE"
	ErrCategoryInternal   ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Validation codes
	CodeInvalidSampleSize = "INVALID_SAMPLE_SIZE"
	CodeMissingRawColumn  = "MISSING_RAW_COLUMN"
	CodeSchemaMismatch    = "SCHEMA_MISMATCH"
	CodeInvalidParams     = "INVALID_PARAMS"
	CodeInvalidColumn     = "INVALID_COLUMN"

	// Integrity codes
	CodeRelationNotFound   = "RELATION_NOT_FOUND"
	CodeProcessorNotFound  = "PROCESSOR_NOT_FOUND"
	CodeDuplicateProcessor = "DUPLICATE_PROCESSOR"
	CodeNodeNotFound       = "NODE_NOT_FOUND"
	CodeUnreachableNode    = "UNREACHABLE_NODE"
	CodeGraphCycle         = "GRAPH_CYCLE"

	// Storage codes
	CodeSnapshotFailed = "SNAPSHOT_FAILED"
	CodeUploadFailed   = "UPLOAD_FAILED"
	CodeDownloadFailed = "DOWNLOAD_FAILED"
	CodeObjectNotFound = "OBJECT_NOT_FOUND"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// Error is the structured error type used throughout the engine.
type Error struct {
	Category ErrorCategory
	Code     string
	Message  string
	Details  map[string]interface{}
	Cause    error
}

// Error returns a formatted error string.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new structured error.
func New(category ErrorCategory, code, message string) *Error {
	return &Error{
		Category: category,
		Code:     code,
		Message:  message,
	}
}

// Wrap creates a new structured error wrapping an existing one.
func Wrap(category ErrorCategory, code, message string, cause error) *Error {
	return &Error{
		Category: category,
		Code:     code,
		Message:  message,
		Cause:    cause,
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *Error) WithDetails(details map[string]interface{}) *Error {
	cp := *e
	cp.Details = details
	return &cp
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not a structured Error.
func GetCategory(err error) ErrorCategory {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
func GetCode(err error) string {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// IsValidation reports whether the error chain contains a validation error.
func IsValidation(err error) bool {
	return GetCategory(err) == ErrCategoryValidation
}

// IsIntegrity reports whether the error chain contains an integrity error.
func IsIntegrity(err error) bool {
	return GetCategory(err) == ErrCategoryIntegrity
}

// Convenience constructors for common errors.

func NewValidationError(code, message string) *Error {
	return New(ErrCategoryValidation, code, message)
}

func NewIntegrityError(code, message string) *Error {
	return New(ErrCategoryIntegrity, code, message)
}

func NewStorageError(code, message string, cause error) *Error {
	return Wrap(ErrCategoryStorage, code, message, cause)
}

func NewInternalError(message string, cause error) *Error {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}
