// Package errors provides structured error handling for trainprep.
//
// Every failure raised by the loading pipeline carries an ErrorType so callers
// can tell structural problems with the input container (missing file, missing
// group) apart from per-sample validation failures (type mismatch, invalid
// label) without string matching.
package errors

import (
	"errors"
	"fmt"
	"runtime"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeInternal represents internal system errors
	ErrorTypeInternal ErrorType = "internal"
	// ErrorTypeValidation represents validation errors
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeConfig represents configuration errors
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeData represents data processing errors
	ErrorTypeData ErrorType = "data"
	// ErrorTypeFile represents file operation errors
	ErrorTypeFile ErrorType = "file"
	// ErrorTypeConnection represents remote storage errors
	ErrorTypeConnection ErrorType = "connection"

	// ErrorTypeMissingFile means the input path does not exist or is not a regular file
	ErrorTypeMissingFile ErrorType = "missing_file"
	// ErrorTypeMissingStructure means a required group, table or attribute is absent
	ErrorTypeMissingStructure ErrorType = "missing_structure"
	// ErrorTypeUnknownFeature means scaling parameters were requested for a feature not in the catalog
	ErrorTypeUnknownFeature ErrorType = "unknown_feature"
	// ErrorTypeTypeMismatch means a value or matrix has an element type other than the one required
	ErrorTypeTypeMismatch ErrorType = "type_mismatch"
	// ErrorTypeInvalidLabel means a sample class label is negative
	ErrorTypeInvalidLabel ErrorType = "invalid_label"
	// ErrorTypeSchemaMismatch means scaling statistics and record fields disagree
	ErrorTypeSchemaMismatch ErrorType = "schema_mismatch"
)

// Error represents a structured error with context
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Details map[string]interface{}
	Stack   []StackFrame
}

// StackFrame represents a single frame in the call stack
type StackFrame struct {
	Function string
	File     string
	Line     int
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail adds a key-value detail to the error
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a new error with the given type and message
func New(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Stack:   captureStack(2),
	}
}

// Newf creates a new error with a formatted message
func Newf(errType ErrorType, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
		Stack:   captureStack(2),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, errType ErrorType, message string) *Error {
	if err == nil {
		return nil
	}

	// If already our error type, preserve the stack
	var existingErr *Error
	if errors.As(err, &existingErr) {
		return &Error{
			Type:    errType,
			Message: message,
			Cause:   err,
			Stack:   existingErr.Stack,
		}
	}

	return &Error{
		Type:    errType,
		Message: message,
		Cause:   err,
		Stack:   captureStack(2),
	}
}

// Annotate wraps err with message while keeping its error type, so callers
// further up still see the original kind
func Annotate(err error, message string) *Error {
	if err == nil {
		return nil
	}
	return Wrap(err, TypeOf(err), message)
}

// TypeOf returns the type of the outermost structured error in the chain,
// or ErrorTypeInternal when err carries none.
func TypeOf(err error) ErrorType {
	var e *Error
	if !errors.As(err, &e) {
		return ErrorTypeInternal
	}
	return e.Type
}

// IsType checks if the error is of the given type
func IsType(err error, errType ErrorType) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Type == errType
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// IsStructural returns true if the error describes a malformed or absent
// input container rather than a bad sample.
func IsStructural(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}

	switch e.Type {
	case ErrorTypeMissingFile, ErrorTypeMissingStructure:
		return true
	default:
		return false
	}
}

// captureStack captures the current call stack
func captureStack(skip int) []StackFrame {
	const maxFrames = 32
	frames := make([]StackFrame, 0, maxFrames)

	for i := skip; i < maxFrames+skip; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}

		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}

		frames = append(frames, StackFrame{
			Function: fn.Name(),
			File:     file,
			Line:     line,
		})
	}

	return frames
}
