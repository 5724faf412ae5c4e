package execution

import (
	"context"
	"fmt"
	"strings"
	"time"

	"watcher/internal/clock"
	"watcher/internal/eventbus"
	"watcher/internal/history"
	"watcher/internal/metrics"
	logx "watcher/pkg/logx"
)

// Executor runs tasks under a concurrency bound.
//
// Submit either accepts the task (it will reach a terminal state) or returns
// an error and leaves the task Rejected. A task is never dropped silently.
type Executor interface {
	QueueCapacity() int
	MaxConcurrency() int
	Submit(ctx context.Context, t *Task) error
	Start(ctx context.Context) error
	Stop(ctx context.Context)
	Snapshot() Snapshot
}

// Backpressure selects what Pool.Submit does when the queue is full.
type Backpressure string

const (
	// BackpressureReject fails Submit with ErrQueueSaturated.
	BackpressureReject Backpressure = "reject"
	// BackpressureBlock waits for room until the submit context ends.
	BackpressureBlock Backpressure = "block"
)

func ParseBackpressure(s string) (Backpressure, error) {
	switch Backpressure(strings.ToLower(strings.TrimSpace(s))) {
	case "", BackpressureReject:
		return BackpressureReject, nil
	case BackpressureBlock:
		return BackpressureBlock, nil
	default:
		return "", fmt.Errorf("unknown backpressure policy %q (use reject or block)", s)
	}
}

// Config controls the pool executor.
//
// Defaults (when fields are omitted/zero):
//   - workers: 4
//   - queue_size: 256
//   - backpressure: reject
//   - default_timeout: 0 (disabled)
//   - history_size: 200
type Config struct {
	Workers      int
	QueueSize    int
	Backpressure Backpressure

	// ConcurrentPerWatch lets tasks of the same watch run in parallel.
	// When false (default) they run one at a time in firing order.
	ConcurrentPerWatch bool

	// DefaultTimeout is used when the watch has no timeout of its own.
	DefaultTimeout time.Duration

	HistorySize int
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.Backpressure == "" {
		c.Backpressure = BackpressureReject
	}
	if c.HistorySize <= 0 {
		c.HistorySize = 200
	}
	return c
}

// Deps are the collaborators every executor reports to.
type Deps struct {
	Clock   clock.Clock
	Log     logx.Logger
	Bus     eventbus.Bus
	Metrics metrics.Sink
	// History receives every terminal task. Optional.
	History history.Store
}

// Snapshot is a lightweight view for diagnostics.
type Snapshot struct {
	Executor     string
	Workers      int
	QueueLen     int
	QueueCap     int
	InFlight     int
	Backpressure Backpressure

	Submitted uint64
	Completed uint64
	Failed    uint64
	Rejected  uint64

	// History holds the most recent terminal tasks, newest first.
	History []history.Record
}

// TaskEvent is published on the event bus for task lifecycle changes.
type TaskEvent struct {
	TaskID  string `json:"task_id"`
	EventID string `json:"event_id"`
	WatchID string `json:"watch_id"`
	State   string `json:"state"`
	Error   string `json:"error,omitempty"`
}
