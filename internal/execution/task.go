package execution

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"watcher/internal/history"
	"watcher/internal/trigger"
	"watcher/internal/watch"
)

type State int

const (
	StateQueued State = iota
	StateRunning
	StateCompleted
	StateFailed
	// StateRejected is a task the executor refused (saturated or stopped).
	// It never ran.
	StateRejected
)

func (s State) String() string {
	switch s {
	case StateQueued:
		return "queued"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateRejected:
		return "rejected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateRejected
}

var errBadTransition = errors.New("invalid task state transition")

// Task is one execution of one watch for one fired event.
//
// Created by a listener, owned by the executor from Submit until it reaches
// a terminal state.
type Task struct {
	ID    string
	Event trigger.Event

	store watch.Store

	mu         sync.Mutex
	state      State
	queuedAt   time.Time
	startedAt  time.Time
	finishedAt time.Time
	err        error
	done       chan struct{}
}

// NewTask builds a task for ev. The watch is resolved from store when the
// task starts running.
func NewTask(ev trigger.Event, store watch.Store) *Task {
	return &Task{
		ID:    uuid.NewString(),
		Event: ev,
		store: store,
		state: StateQueued,
		done:  make(chan struct{}),
	}
}

func (t *Task) WatchID() string { return t.Event.WatchID }

func (t *Task) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Err is the terminal error: nil for Completed, an *ExecutionError for
// Failed, the refusal reason for Rejected.
func (t *Task) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Done is closed once the task reaches a terminal state.
func (t *Task) Done() <-chan struct{} { return t.done }

// Wait blocks until the task is terminal or ctx ends. It returns the task's
// terminal error, or ctx.Err() if ctx ended first.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Task) queued(now time.Time) {
	t.mu.Lock()
	t.queuedAt = now
	t.mu.Unlock()
}

func (t *Task) start(now time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StateQueued {
		return fmt.Errorf("%w: %s -> running", errBadTransition, t.state)
	}
	t.state = StateRunning
	t.startedAt = now
	return nil
}

func (t *Task) finish(now time.Time, err error) {
	t.mu.Lock()
	if t.state != StateRunning {
		t.mu.Unlock()
		return
	}
	t.state = StateCompleted
	if err != nil {
		t.state = StateFailed
	}
	t.err = err
	t.finishedAt = now
	t.mu.Unlock()
	close(t.done)
}

func (t *Task) reject(now time.Time, err error) {
	t.mu.Lock()
	if t.state != StateQueued {
		t.mu.Unlock()
		return
	}
	t.state = StateRejected
	t.err = err
	if t.queuedAt.IsZero() {
		t.queuedAt = now
	}
	t.finishedAt = now
	t.mu.Unlock()
	close(t.done)
}

// Record is the history entry for this task.
func (t *Task) Record() history.Record {
	t.mu.Lock()
	defer t.mu.Unlock()
	r := history.Record{
		TaskID:        t.ID,
		EventID:       t.Event.ID,
		WatchID:       t.Event.WatchID,
		TriggerType:   t.Event.Type,
		State:         t.state.String(),
		ScheduledTime: t.Event.ScheduledTime,
		TriggeredTime: t.Event.TriggeredTime,
		QueuedAt:      t.queuedAt,
		StartedAt:     t.startedAt,
		FinishedAt:    t.finishedAt,
	}
	if t.err != nil {
		r.Error = t.err.Error()
	}
	return r
}
