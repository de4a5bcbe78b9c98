package dispatch

import (
	"errors"
	"fmt"
	"os/exec"
)

// ExecutionError is reported when a command could not be started or did not
// exit successfully. It never stops watching.
type ExecutionError struct {
	Path    string
	Command string
	// -1 when the process did not exit normally
	ExitCode int
	// name of the terminating signal, if any
	Signal string
	Err    error
}

func newExecutionError(path, command string, err error) *ExecutionError {
	e := &ExecutionError{
		Path:     path,
		Command:  command,
		ExitCode: -1,
		Err:      err,
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ProcessState != nil {
		e.ExitCode = exitErr.ExitCode()
		e.Signal = signalOf(exitErr.ProcessState)
	}
	return e
}

func (e *ExecutionError) Error() string {
	switch {
	case e.Signal != "":
		return fmt.Sprintf("%s: %q killed by %s", e.Path, e.Command, e.Signal)
	case e.ExitCode >= 0:
		return fmt.Sprintf("%s: %q exited with status %d", e.Path, e.Command, e.ExitCode)
	}
	return fmt.Sprintf("%s: %q: %v", e.Path, e.Command, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}
