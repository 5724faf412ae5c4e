package execution

import (
	"errors"
	"fmt"
)

var (
	// ErrQueueSaturated is the backpressure signal: the executor has no room
	// for another task right now. The task was not run.
	ErrQueueSaturated = errors.New("execution queue saturated")
	ErrStopped        = errors.New("executor stopped")
)

// ExecutionError is the terminal error of a Failed task: the watch's action
// returned an error, timed out, panicked, or the watch could not be resolved.
type ExecutionError struct {
	TaskID  string
	WatchID string
	Cause   error
	// Panic is set when the action panicked.
	Panic bool
}

func (e *ExecutionError) Error() string {
	if e.Panic {
		return fmt.Sprintf("watch %s task %s panicked: %v", e.WatchID, e.TaskID, e.Cause)
	}
	return fmt.Sprintf("watch %s task %s failed: %v", e.WatchID, e.TaskID, e.Cause)
}

func (e *ExecutionError) Unwrap() error { return e.Cause }

// IsExecutionFailure reports whether err came from running a watch (as opposed
// to the executor refusing the task).
func IsExecutionFailure(err error) bool {
	var ee *ExecutionError
	return errors.As(err, &ee)
}
