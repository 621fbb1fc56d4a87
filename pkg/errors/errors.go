// Package errors provides structured error handling for the framework.
// Errors carry a JSON-RPC error code, a category for classification at the
// transport boundary, and optional structured data for programmatic
// handling.
package errors

import (
	"errors"
	"fmt"

	"github.com/conduitmcp/conduit/pkg/protocol"
)

// Category classifies an error for boundary handling: protocol errors become
// JSON-RPC error objects, business errors become isError tool results, auth
// errors become HTTP 401.
type Category string

const (
	CategoryProtocol Category = "protocol"
	CategoryBusiness Category = "business"
	CategoryAuth     Category = "auth"
	CategoryInternal Category = "internal"
)

// Error is the framework error type.
type Error struct {
	code     protocol.ErrorCode
	message  string
	category Category
	data     interface{}
	cause    error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Code returns the JSON-RPC error code.
func (e *Error) Code() protocol.ErrorCode { return e.code }

// Message returns the human-readable message without the cause chain.
func (e *Error) Message() string { return e.message }

// Category returns the error category.
func (e *Error) Category() Category { return e.category }

// Data returns structured error data, if any.
func (e *Error) Data() interface{} { return e.data }

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error { return e.cause }

// WithData returns a copy of the error carrying structured data.
func (e *Error) WithData(data interface{}) *Error {
	n := *e
	n.data = data
	return &n
}

// New creates a framework error.
func New(code protocol.ErrorCode, category Category, message string) *Error {
	return &Error{code: code, message: message, category: category}
}

// Newf creates a framework error with a formatted message.
func Newf(code protocol.ErrorCode, category Category, format string, args ...interface{}) *Error {
	return &Error{code: code, message: fmt.Sprintf(format, args...), category: category}
}

// Wrap attaches a cause to a new framework error.
func Wrap(err error, code protocol.ErrorCode, category Category, message string) *Error {
	return &Error{code: code, message: message, category: category, cause: err}
}

// As extracts a framework *Error from an error chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsCategory reports whether err is a framework error of the given category.
func IsCategory(err error, category Category) bool {
	if e, ok := As(err); ok {
		return e.category == category
	}
	return false
}

// IsCode reports whether err is a framework error with the given code.
func IsCode(err error, code protocol.ErrorCode) bool {
	if e, ok := As(err); ok {
		return e.code == code
	}
	return false
}
