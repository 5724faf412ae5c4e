package execution

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"watcher/internal/watch"
)

func TestTaskLifecycle(t *testing.T) {
	task := NewTask(fired("w", map[string]any{"k": "v"}), watch.NewMemoryStore())
	assert.NotEmpty(t, task.ID)
	assert.Equal(t, "w", task.WatchID())
	assert.Equal(t, StateQueued, task.State())
	assert.False(t, task.State().Terminal())

	task.queued(t0)
	require.NoError(t, task.start(t0.Add(time.Second)))
	assert.Equal(t, StateRunning, task.State())
	assert.Error(t, task.start(t0), "running task cannot start again")

	task.reject(t0, ErrStopped)
	assert.Equal(t, StateRunning, task.State(), "running task cannot be rejected")

	task.finish(t0.Add(3*time.Second), nil)
	assert.Equal(t, StateCompleted, task.State())
	assert.True(t, task.State().Terminal())
	require.NoError(t, task.Wait(context.Background()))

	task.finish(t0.Add(time.Hour), errors.New("late"))
	assert.Equal(t, StateCompleted, task.State(), "terminal state is final")

	rec := task.Record()
	assert.Equal(t, task.ID, rec.TaskID)
	assert.Equal(t, task.Event.ID, rec.EventID)
	assert.Equal(t, "manual", rec.TriggerType)
	assert.True(t, rec.QueuedAt.Equal(t0))
	assert.Equal(t, 2*time.Second, rec.Duration())
	assert.Empty(t, rec.Error)
}

func TestTaskFailedAndRejected(t *testing.T) {
	failed := NewTask(fired("w", nil), nil)
	require.NoError(t, failed.start(t0))
	cause := &ExecutionError{TaskID: failed.ID, WatchID: "w", Cause: errors.New("boom")}
	failed.finish(t0, cause)
	assert.Equal(t, StateFailed, failed.State())
	assert.True(t, IsExecutionFailure(failed.Err()))
	assert.Equal(t, "failed", failed.Record().State)

	rejected := NewTask(fired("w", nil), nil)
	rejected.reject(t0, ErrQueueSaturated)
	assert.Equal(t, StateRejected, rejected.State())
	assert.ErrorIs(t, rejected.Wait(context.Background()), ErrQueueSaturated)
	rec := rejected.Record()
	assert.True(t, rec.QueuedAt.Equal(t0))
	assert.True(t, rec.StartedAt.IsZero())
	assert.Contains(t, rec.Error, "saturated")
}

func TestTaskWaitHonoursContext(t *testing.T) {
	task := NewTask(fired("w", nil), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, task.Wait(ctx), context.Canceled)
}

func TestStateString(t *testing.T) {
	for s, want := range map[State]string{
		StateQueued:    "queued",
		StateRunning:   "running",
		StateCompleted: "completed",
		StateFailed:    "failed",
		StateRejected:  "rejected",
		State(42):      "state(42)",
	} {
		assert.Equal(t, want, s.String())
	}
}

func TestParseBackpressure(t *testing.T) {
	bp, err := ParseBackpressure("")
	require.NoError(t, err)
	assert.Equal(t, BackpressureReject, bp)
	bp, err = ParseBackpressure(" Block ")
	require.NoError(t, err)
	assert.Equal(t, BackpressureBlock, bp)
	_, err = ParseBackpressure("drop")
	assert.Error(t, err)
}
