package tools

import (
	"errors"
	"fmt"

	"github.com/dohr-michael/taskchat/internal/taskstore"
)

// ErrUnknownTool is returned when a call names a tool outside the registry.
var ErrUnknownTool = errors.New("unknown tool")

// ValidationError reports parameters that violate a tool's contract.
type ValidationError struct {
	Tool   ToolName
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", e.Tool, e.Reason)
	}
	return fmt.Sprintf("%s: %s %s", e.Tool, e.Field, e.Reason)
}

// NotFoundError reports a task id that does not exist for the caller.
type NotFoundError struct {
	TaskID int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("task %d not found", e.TaskID)
}

func (e *NotFoundError) Unwrap() error { return taskstore.ErrNotFound }

// ExecutionError wraps an unexpected task store failure.
type ExecutionError struct {
	Tool  ToolName
	Cause error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Tool, e.Cause)
}

func (e *ExecutionError) Unwrap() error { return e.Cause }

// ErrorKind classifies err for logs and message metadata.
func ErrorKind(err error) string {
	var (
		verr *ValidationError
		nerr *NotFoundError
		eerr *ExecutionError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &verr), errors.Is(err, ErrUnknownTool):
		return "validation"
	case errors.As(err, &nerr):
		return "not_found"
	case errors.As(err, &eerr):
		return "execution"
	default:
		return "internal"
	}
}
