package executor

import (
	"fmt"

	"github.com/objectfs/sharedriver/pkg/errors"
)

// ProcessExecutionError reports a management command that ran and failed,
// or could not be run at all (ExitCode -1). It is the one failure class
// TryExecute recovers from.
type ProcessExecutionError struct {
	Cmd         string
	ExitCode    int
	Stdout      string
	Stderr      string
	Description string
}

// NewProcessExecutionError builds a ProcessExecutionError.
func NewProcessExecutionError(cmd string, exitCode int, stdout, stderr, description string) *ProcessExecutionError {
	if description == "" {
		description = "Unexpected error while running command"
	}
	return &ProcessExecutionError{
		Cmd:         cmd,
		ExitCode:    exitCode,
		Stdout:      stdout,
		Stderr:      stderr,
		Description: description,
	}
}

func (e *ProcessExecutionError) Error() string {
	return fmt.Sprintf("%s. Command: %s, Exit code: %d, Stdout: %q, Stderr: %q",
		e.Description, e.Cmd, e.ExitCode, e.Stdout, e.Stderr)
}

// Unwrap exposes the failure as a retryable PROCESS_EXECUTION DriverError so
// code-based helpers in pkg/errors see it.
func (e *ProcessExecutionError) Unwrap() error {
	return errors.NewError(errors.ErrCodeProcessExecution, e.Description).
		WithComponent("executor").
		WithDetail("cmd", e.Cmd).
		WithDetail("exit_code", e.ExitCode)
}
