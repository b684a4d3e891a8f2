package service

import (
	"errors"
	"strings"
)

// Error kinds. A *RunError unwraps to exactly one of these.
var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrSchemaInvalid    = errors.New("schema invalid")
	ErrSemanticInvalid  = errors.New("semantic invalid")
	ErrGeneratorFailure = errors.New("generator failure")
	ErrSolverFailure    = errors.New("solver failure")
	ErrInvalidState     = errors.New("invalid state")
)

var kinds = []error{
	ErrNotFound,
	ErrInvalidInput,
	ErrSchemaInvalid,
	ErrSemanticInvalid,
	ErrGeneratorFailure,
	ErrSolverFailure,
	ErrInvalidState,
}

// RunError is returned by every lifecycle operation that fails.
type RunError struct {
	Kind    error
	RunID   string
	Message string
}

func (e *RunError) Error() string {
	return e.Message
}

func (e *RunError) Unwrap() error {
	return e.Kind
}

func newRunError(kind error, runID, message string) *RunError {
	return &RunError{Kind: kind, RunID: runID, Message: message}
}

// KindName returns the snake_case name of the kind err carries, or
// "internal" when err is not a lifecycle error.
func KindName(err error) string {
	for _, k := range kinds {
		if errors.Is(err, k) {
			return strings.ReplaceAll(k.Error(), " ", "_")
		}
	}
	return "internal"
}

// Code is the stable error code exposed to API clients, e.g.
// OPTIFORGE_SCHEMA_INVALID.
func Code(err error) string {
	return "OPTIFORGE_" + strings.ToUpper(KindName(err))
}
