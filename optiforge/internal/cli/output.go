package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // validation failed or the run did not solve
	ExitCommandError = 2 // unreadable input, bad flags, broken configuration
)

// ExitError carries the process exit code for a failed command.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error. Errors that are not an
// ExitError map to ExitFailure.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter writes command results as JSON envelopes or plain text.
type OutputFormatter struct {
	Format string
	Writer io.Writer
}

// Response is the JSON envelope every command prints in json format.
type Response struct {
	Status string         `json:"status"`
	Data   interface{}    `json:"data,omitempty"`
	Error  *ResponseError `json:"error,omitempty"`
}

type ResponseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (f *OutputFormatter) JSON() bool {
	return f.Format == "json"
}

func (f *OutputFormatter) encode(resp Response) error {
	enc := json.NewEncoder(f.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}

// Success prints data; text output is rendered by the caller through text.
func (f *OutputFormatter) Success(data interface{}, text func(w io.Writer)) error {
	if f.JSON() {
		return f.encode(Response{Status: "ok", Data: data})
	}
	text(f.Writer)
	return nil
}

// Failure prints data plus an error block. The returned error carries code.
func (f *OutputFormatter) Failure(exitCode int, code, message string, data interface{}, text func(w io.Writer)) error {
	if f.JSON() {
		if err := f.encode(Response{Status: "error", Data: data, Error: &ResponseError{Code: code, Message: message}}); err != nil {
			return err
		}
	} else if text != nil {
		text(f.Writer)
	} else {
		fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	}
	return NewExitError(exitCode, fmt.Sprintf("%s: %s", code, message))
}
