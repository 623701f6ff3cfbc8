package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Error is the structured error type for mosaicwatch.
// It provides rich context for error handling, logging, and user presentation.
type Error struct {
	// Code is the unique error code (e.g., "ERR_501_SOURCE_NOT_FOUND").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, Merge, Watch, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Error implements the error interface. The path detail, when present and
// not already part of the message, is appended.
func (e *Error) Error() string {
	if p := e.Path(); p != "" && !strings.Contains(e.Message, p) {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, p)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with *Error.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *Error) WithDetail(key, value string) *Error {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithPath records the file or directory the error is about.
func (e *Error) WithPath(path string) *Error {
	return e.WithDetail("path", path)
}

// WithSuggestion adds an actionable suggestion for the user.
// Returns the error for method chaining.
func (e *Error) WithSuggestion(suggestion string) *Error {
	e.Suggestion = suggestion
	return e
}

// Path returns the "path" detail, or "" when none was recorded.
func (e *Error) Path() string {
	return e.Details["path"]
}

// New creates a new Error with the given code and message.
// Category and severity are derived from the code.
func New(code string, message string, cause error) *Error {
	return &Error{
		Code:     code,
		Message:  message,
		Category: categoryFromCode(code),
		Severity: severityFromCode(code),
		Cause:    cause,
	}
}

// Wrap creates an Error from an existing error.
// The error's message becomes the Error message.
func Wrap(code string, err error) *Error {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *Error {
	return New(ErrCodeConfigInvalid, message, cause)
}

// ValidationError creates a validation error about path.
func ValidationError(code, message, path string) *Error {
	return New(code, message, nil).WithPath(path)
}

// MergeError creates a merge error about path.
func MergeError(code, message, path string, cause error) *Error {
	return New(code, message, cause).WithPath(path)
}

// LayerError creates a layer error about path.
func LayerError(message, path string, cause error) *Error {
	return New(ErrCodeLayerInvalid, message, cause).WithPath(path)
}

// WatchError creates a watch error about the observed directory.
func WatchError(code, message, dir string, cause error) *Error {
	return New(code, message, cause).WithPath(dir)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *Error {
	return New(ErrCodeInternal, message, cause)
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if stderrors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsFatal checks if an error has fatal severity.
// Fatal errors should abort the current operation.
func IsFatal(err error) bool {
	e, ok := As(err)
	return ok && e.Severity == SeverityFatal
}

// GetCode extracts the error code from an *Error in the chain.
// Returns empty string if there is none.
func GetCode(err error) string {
	if e, ok := As(err); ok {
		return e.Code
	}
	return ""
}

// GetCategory extracts the category from an *Error in the chain.
// Returns empty string if there is none.
func GetCategory(err error) Category {
	if e, ok := As(err); ok {
		return e.Category
	}
	return ""
}

// IsCategory reports whether err carries an *Error of the given category.
func IsCategory(err error, c Category) bool {
	return GetCategory(err) == c
}
