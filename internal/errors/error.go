package errors

import (
	stderrors "errors"
	"fmt"
)

// Category represents the type of error.
type Category string

const (
	CategorySession  Category = "session"
	CategoryUpload   Category = "upload"
	CategoryProtocol Category = "protocol"
	CategoryConfig   Category = "config"
	CategoryCLI      Category = "cli"
)

// TerminalError is a structured error with a catalogue code, a fix hint and
// documentation.
type TerminalError struct {
	// Code is a unique error identifier (e.g., "E101").
	Code string

	// Category is the error type.
	Category Category

	// Message is a short description of the error.
	Message string

	// Detail is a longer explanation of the error.
	Detail string

	// Suggestion is a hint on how to fix the error.
	Suggestion string

	// DocURL is a link to documentation about this error.
	DocURL string

	// Wrapped is the underlying error, if any.
	Wrapped error
}

// Error implements the error interface.
func (e *TerminalError) Error() string {
	msg := e.Message
	if e.Code != "" {
		msg = e.Code + ": " + msg
	}
	if e.Wrapped != nil {
		msg += ": " + e.Wrapped.Error()
	}
	return msg
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *TerminalError) Unwrap() error {
	return e.Wrapped
}

// WithSuggestion adds a fix suggestion to the error.
func (e *TerminalError) WithSuggestion(s string) *TerminalError {
	e.Suggestion = s
	return e
}

// WithDetail adds a detailed explanation to the error.
func (e *TerminalError) WithDetail(d string) *TerminalError {
	e.Detail = d
	return e
}

// Wrap wraps another error.
func (e *TerminalError) Wrap(err error) *TerminalError {
	e.Wrapped = err
	return e
}

// New creates a TerminalError from a registered error code.
func New(code string) *TerminalError {
	template, ok := GetTemplate(code)
	if !ok {
		return &TerminalError{
			Code:    code,
			Message: "Unknown error",
		}
	}
	return &TerminalError{
		Code:     code,
		Category: template.Category,
		Message:  template.Message,
		Detail:   template.Detail,
		DocURL:   template.DocURL,
	}
}

// Newf creates a new TerminalError with a formatted message (no code).
func Newf(category Category, format string, args ...any) *TerminalError {
	return &TerminalError{
		Category: category,
		Message:  fmt.Sprintf(format, args...),
	}
}

// FromError wraps a standard error under code. An error that already
// carries a TerminalError is returned as that error.
func FromError(err error, code string) *TerminalError {
	if err == nil {
		return nil
	}
	var te *TerminalError
	if stderrors.As(err, &te) {
		return te
	}
	return New(code).Wrap(err)
}

// CodeOf returns the catalogue code carried by err, or "".
func CodeOf(err error) string {
	var te *TerminalError
	if stderrors.As(err, &te) {
		return te.Code
	}
	return ""
}
