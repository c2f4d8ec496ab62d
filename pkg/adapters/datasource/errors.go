package datasource

import (
	"fmt"

	"github.com/tessera-data/tessera-engine/pkg/logging"
)

// ErrorKind classifies a driver-reported execution failure.
type ErrorKind string

const (
	ErrorTimeout          ErrorKind = "timeout"
	ErrorSyntax           ErrorKind = "syntax_error"
	ErrorPermissionDenied ErrorKind = "permission_denied"
	ErrorConnection       ErrorKind = "connection_error"
	ErrorUnknown          ErrorKind = "unknown"
)

// ExecutionError is a typed query execution failure. Detail is sanitized
// at construction so it is safe to log and to surface in diagnostics.
type ExecutionError struct {
	Kind   ErrorKind
	Detail string
	Cause  error
}

// NewExecutionError wraps a driver error with a classification. The
// underlying error text is sanitized before it becomes the detail.
func NewExecutionError(kind ErrorKind, cause error) *ExecutionError {
	return &ExecutionError{
		Kind:   kind,
		Detail: logging.SanitizeError(cause),
		Cause:  cause,
	}
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("query execution failed (%s): %s", e.Kind, e.Detail)
}

// Unwrap returns the driver error for errors.Is/As.
func (e *ExecutionError) Unwrap() error {
	return e.Cause
}
