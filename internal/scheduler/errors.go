package scheduler

import (
	"errors"
	"fmt"
)

// ErrTaskFailed is matched by every TaskError.
var ErrTaskFailed = errors.New("task failed")

// TaskError reports a fragment that exited with a non-zero code.
type TaskError struct {
	Fragment string
	ExitCode int
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("failed to execute '%s' (exit code %d)", e.Fragment, e.ExitCode)
}

// Unwrap makes errors.Is(err, ErrTaskFailed) hold.
func (e *TaskError) Unwrap() error {
	return ErrTaskFailed
}
