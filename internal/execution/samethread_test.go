package execution

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"watcher/internal/history"
	"watcher/internal/watch"
)

func TestSameThreadRunsBeforeReturning(t *testing.T) {
	d, clk, h := testDeps(t)
	st := NewSameThread(Config{}, d)
	store := watch.NewMemoryStore()
	ran := false
	putWatch(t, store, "w", func(context.Context, watch.Context) error {
		clk.FastForward(time.Second)
		ran = true
		return nil
	})

	task := NewTask(fired("w", nil), store)
	require.NoError(t, st.Submit(context.Background(), task))
	assert.True(t, ran)
	assert.Equal(t, StateCompleted, task.State())
	assert.NoError(t, task.Err())

	rec := task.Record()
	assert.Equal(t, "completed", rec.State)
	assert.True(t, rec.StartedAt.Equal(t0))
	assert.True(t, rec.FinishedAt.Equal(t0.Add(time.Second)))

	got, err := h.List(context.Background(), history.Query{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, task.ID, got[0].TaskID)
	assert.Equal(t, 1, st.QueueCapacity())
	assert.Equal(t, 1, st.MaxConcurrency())
}

func TestSameThreadRejectsReentrantSubmit(t *testing.T) {
	d, _, _ := testDeps(t)
	st := NewSameThread(Config{}, d)
	store := watch.NewMemoryStore()
	var inner *Task
	var innerErr error
	putWatch(t, store, "leaf", func(context.Context, watch.Context) error { return nil })
	putWatch(t, store, "outer", func(ctx context.Context, _ watch.Context) error {
		inner = NewTask(fired("leaf", nil), store)
		innerErr = st.Submit(ctx, inner)
		return nil
	})

	outer := NewTask(fired("outer", nil), store)
	require.NoError(t, st.Submit(context.Background(), outer))
	assert.ErrorIs(t, innerErr, ErrQueueSaturated)
	assert.Equal(t, StateRejected, inner.State())
	assert.Equal(t, StateCompleted, outer.State())

	snap := st.Snapshot()
	assert.Equal(t, uint64(1), snap.Rejected)
	assert.Equal(t, uint64(1), snap.Completed)
	assert.Len(t, snap.History, 2)
}

func TestSameThreadFailureIsolation(t *testing.T) {
	d, _, _ := testDeps(t)
	st := NewSameThread(Config{DefaultTimeout: 20 * time.Millisecond}, d)
	store := watch.NewMemoryStore()
	boom := errors.New("boom")
	putWatch(t, store, "err", func(context.Context, watch.Context) error { return boom })
	putWatch(t, store, "panic", func(context.Context, watch.Context) error { panic("bad watch") })
	putWatch(t, store, "slow", func(ctx context.Context, _ watch.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	tests := []struct {
		watch string
		check func(t *testing.T, err error)
	}{
		{"err", func(t *testing.T, err error) { assert.ErrorIs(t, err, boom) }},
		{"panic", func(t *testing.T, err error) {
			var ee *ExecutionError
			require.True(t, errors.As(err, &ee))
			assert.True(t, ee.Panic)
		}},
		{"slow", func(t *testing.T, err error) {
			assert.ErrorIs(t, err, context.DeadlineExceeded)
			assert.ErrorContains(t, err, "timed out")
		}},
		{"missing", func(t *testing.T, err error) { assert.ErrorIs(t, err, watch.ErrNotFound) }},
	}
	for _, tt := range tests {
		t.Run(tt.watch, func(t *testing.T) {
			task := NewTask(fired(tt.watch, nil), store)
			require.NoError(t, st.Submit(context.Background(), task))
			assert.Equal(t, StateFailed, task.State())
			assert.True(t, IsExecutionFailure(task.Err()))
			tt.check(t, task.Err())
		})
	}
	assert.Equal(t, uint64(4), st.Snapshot().Failed)
}

func TestSameThreadStopped(t *testing.T) {
	d, _, _ := testDeps(t)
	st := NewSameThread(Config{}, d)
	st.Stop(context.Background())
	task := NewTask(fired("w", nil), watch.NewMemoryStore())
	assert.ErrorIs(t, st.Submit(context.Background(), task), ErrStopped)
	assert.Equal(t, StateRejected, task.State())

	require.NoError(t, st.Start(context.Background()))
	task = NewTask(fired("w", nil), watch.NewMemoryStore())
	assert.NoError(t, st.Submit(context.Background(), task))
	assert.Equal(t, StateFailed, task.State())
}
