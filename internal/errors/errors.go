// Package errors provides a lightweight structured error type (DocWikiError)
// for category-based classification of pipeline failures.
package errors

import (
	stdErrors "errors"
	"fmt"
)

// ErrorCategory represents the category of a DocWiki error for classification
type ErrorCategory string

const (
	// User-facing configuration and input errors
	CategoryConfig     ErrorCategory = "config"
	CategoryValidation ErrorCategory = "validation"
	CategoryAuth       ErrorCategory = "auth"

	// Pipeline stage errors
	CategoryAcquisition ErrorCategory = "acquisition"
	CategoryGeneration  ErrorCategory = "generation"
	CategoryPersistence ErrorCategory = "persistence"
	CategoryFileSystem  ErrorCategory = "filesystem"

	// Runtime and infrastructure errors
	CategoryDaemon   ErrorCategory = "daemon"
	CategoryInternal ErrorCategory = "internal"
)

// ErrorSeverity indicates how critical an error is
type ErrorSeverity string

const (
	SeverityFatal   ErrorSeverity = "fatal"   // Stops execution
	SeverityError   ErrorSeverity = "error"   // Error, but not fatal
	SeverityWarning ErrorSeverity = "warning" // Continues with degraded functionality
	SeverityInfo    ErrorSeverity = "info"    // Informational, no impact
)

// DocWikiError is a structured error with category, retryability, and context
type DocWikiError struct {
	Category  ErrorCategory `json:"category"`
	Severity  ErrorSeverity `json:"severity"`
	Message   string        `json:"message"`
	Cause     error         `json:"cause,omitempty"`
	Retryable bool          `json:"retryable"`
	Context   ContextFields `json:"context,omitempty"`
}

// ContextFields carries structured context for DocWikiError
type ContextFields map[string]any

// Error implements the error interface
func (e *DocWikiError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s (%s): %s: %v", e.Category, e.Severity, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s (%s): %s", e.Category, e.Severity, e.Message)
}

// Unwrap implements error unwrapping for Go 1.13+ error handling
func (e *DocWikiError) Unwrap() error {
	return e.Cause
}

// WithContext adds context information to the error
func (e *DocWikiError) WithContext(key string, value any) *DocWikiError {
	if e.Context == nil {
		e.Context = make(ContextFields)
	}
	e.Context[key] = value
	return e
}

// New creates a new DocWikiError
func New(category ErrorCategory, severity ErrorSeverity, message string) *DocWikiError {
	return &DocWikiError{
		Category: category,
		Severity: severity,
		Message:  message,
	}
}

// Wrap creates a new DocWikiError that wraps an existing error
func Wrap(err error, category ErrorCategory, severity ErrorSeverity, message string) *DocWikiError {
	return &DocWikiError{
		Category: category,
		Severity: severity,
		Message:  message,
		Cause:    err,
	}
}

// As finds the first DocWikiError in err's chain.
func As(err error) (*DocWikiError, bool) {
	var dwe *DocWikiError
	if stdErrors.As(err, &dwe) {
		return dwe, true
	}
	return nil, false
}

// IsCategory checks if an error (or anything it wraps) belongs to a specific category
func IsCategory(err error, category ErrorCategory) bool {
	if dwe, ok := As(err); ok {
		return dwe.Category == category
	}
	return false
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	if dwe, ok := As(err); ok {
		return dwe.Retryable
	}
	return false
}
