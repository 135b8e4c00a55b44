// Package fault defines the error taxonomy for document processing.
//
// Only CodeInvalidConfiguration is fatal; it aborts initialization. Every
// other code describes a per-document failure that is caught at the
// document-processing boundary, logged, and (during backfill) counted.
package fault

import (
	"errors"
	"fmt"
)

// Code categorizes processing errors.
type Code string

const (
	// CodeInvalidConfiguration indicates configuration that cannot start the
	// system, such as an unresolvable template source.
	CodeInvalidConfiguration Code = "INVALID_CONFIGURATION"

	// CodeRemoteCallFailed indicates a transport error or non-2xx status from
	// the remote endpoint.
	CodeRemoteCallFailed Code = "REMOTE_CALL_FAILED"

	// CodeTemplateRenderFailed indicates a placeholder that resolves against a
	// missing path, or an absent template body.
	CodeTemplateRenderFailed Code = "TEMPLATE_RENDER_FAILED"

	// CodeCommitFailed indicates a write that could not be applied within the
	// store's retry budget.
	CodeCommitFailed Code = "COMMIT_FAILED"

	// CodeMissingTemplate indicates a configured template that has not
	// materialized (the template document does not exist).
	CodeMissingTemplate Code = "MISSING_TEMPLATE"
)

// Error is a categorized processing error.
type Error struct {
	// Code identifies the error category.
	Code Code

	// Message is a human-readable description.
	Message string

	// Path identifies the affected document, when there is one.
	Path string

	// Err is the underlying cause (optional).
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Path != "" {
		msg = fmt.Sprintf("%s (path=%s)", msg, e.Path)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an Error without a cause.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error around an existing cause.
func Wrap(code Code, err error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// WithPath returns a copy of e annotated with a document path.
func (e *Error) WithPath(path string) *Error {
	cp := *e
	cp.Path = path
	return &cp
}

// CodeOf returns the code of the first Error in err's chain, or "".
// Uses errors.As to handle wrapped errors.
func CodeOf(err error) Code {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return ""
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// Fatal reports whether err must abort initialization.
func Fatal(err error) bool {
	return Is(err, CodeInvalidConfiguration)
}
