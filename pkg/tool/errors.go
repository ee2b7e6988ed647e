package tool

import (
	"errors"
	"fmt"
	"strings"
)

// ErrDuplicateTool is returned when registering a tool whose name is
// already taken.
var ErrDuplicateTool = errors.New("duplicate tool name")

// ErrUnknownTool is returned when invoking a tool that is not registered.
var ErrUnknownTool = errors.New("unknown tool")

// ArgumentError reports arguments that do not satisfy a tool's declared
// schema.
type ArgumentError struct {
	Tool   string
	Issues []string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("invalid arguments for tool %s: %s", e.Tool, strings.Join(e.Issues, "; "))
}

// ExecutionError wraps a failure raised by a tool handler during
// invocation. The registry performs no retries; callers decide whether
// to surface the failure or abort.
type ExecutionError struct {
	Tool string
	Err  error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("tool %s failed: %v", e.Tool, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}
