package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/docpost/internal/config"
	"github.com/roach88/docpost/internal/fault"
)

// Process exit codes.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // the operation ran and failed, or the config is invalid
	ExitCommandError = 2 // the command could not run: bad arguments, unusable database
)

// ExitError carries the process exit code for a failed command.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

// NewExitError returns an ExitError without a cause.
func NewExitError(code int, message string) *ExitError {
	return WrapExitError(code, message, nil)
}

// WrapExitError attaches an exit code and message to err.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode returns the code of the first ExitError in err's chain, or
// ExitFailure.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter writes command results as text or as a JSON envelope.
type OutputFormatter struct {
	Format  string
	Writer  io.Writer
	Verbose bool
}

// CLIResponse is the JSON envelope of every command's output.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // success payload
	Error  *CLIError `json:"error,omitempty"` // error details
}

// CLIError describes a failed command in JSON output.
type CLIError struct {
	Code    string `json:"code"`              // fault code, or ERROR
	Message string `json:"message"`           // human-readable message
	Details any    `json:"details,omitempty"` // additional context
}

// Success outputs a result. Text output prints data on one line; use
// SuccessText for a pre-rendered text form.
func (f *OutputFormatter) Success(data any) error {
	return f.SuccessText(data, fmt.Sprint(data))
}

// SuccessText outputs data as JSON, or text verbatim in text mode.
func (f *OutputFormatter) SuccessText(data any, text string) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{Status: "ok", Data: data})
	}
	_, err := fmt.Fprintln(f.Writer, text)
	return err
}

// Error writes a failure. Text output includes details only with --verbose.
func (f *OutputFormatter) Error(code, message string, details any) error {
	cliErr := &CLIError{Code: code, Message: message, Details: details}
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{Status: "error", Error: cliErr})
	}
	if _, err := fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message); err != nil {
		return err
	}
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// Fail reports err and returns it as an ExitError. Configuration errors
// carry their schema position as details.
func (f *OutputFormatter) Fail(exitCode int, message string, err error) error {
	code := string(fault.CodeOf(err))
	if code == "" {
		code = "ERROR"
	}
	var details any
	var verr *config.ValidationError
	if errors.As(err, &verr) {
		details = validationDetails(verr)
	}
	if outErr := f.Error(code, fmt.Sprintf("%s: %v", message, err), details); outErr != nil {
		return outErr
	}
	return WrapExitError(exitCode, message, err)
}

func validationDetails(verr *config.ValidationError) map[string]any {
	d := map[string]any{"field": verr.Field, "message": verr.Message}
	if verr.Pos.IsValid() {
		d["line"] = verr.Pos.Line()
		d["column"] = verr.Pos.Column()
	}
	return d
}
