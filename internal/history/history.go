// Package history records the terminal outcome of every execution task.
//
// Drivers:
//   - "memory": bounded in-process ring (default)
//   - "file": append-only JSON Lines, replayed into a ring on open
//   - "sqlite": SQLite database file with goose migrations
//   - "none": records are discarded
package history

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "watcher/pkg/logx"
)

var ErrClosed = errors.New("history store closed")

const DefaultCapacity = 1000

// Record is one finished (or refused) task.
type Record struct {
	TaskID        string    `json:"task_id"`
	EventID       string    `json:"event_id"`
	WatchID       string    `json:"watch_id"`
	TriggerType   string    `json:"trigger_type"`
	State         string    `json:"state"`
	Error         string    `json:"error,omitempty"`
	ScheduledTime time.Time `json:"scheduled_time"`
	TriggeredTime time.Time `json:"triggered_time"`
	QueuedAt      time.Time `json:"queued_at"`
	StartedAt     time.Time `json:"started_at,omitzero"`
	FinishedAt    time.Time `json:"finished_at"`
}

// Duration is the run time; zero when the task never started.
func (r Record) Duration() time.Duration {
	if r.StartedAt.IsZero() || r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Query filters List. Zero Limit means the store's capacity.
type Query struct {
	WatchID string
	Limit   int
}

type Store interface {
	Put(ctx context.Context, r Record) error
	// List returns matching records, newest first.
	List(ctx context.Context, q Query) ([]Record, error)
	Close() error
}

// Config configures the history store.
type Config struct {
	Driver string
	Path   string
	// Capacity bounds how many records are kept (all drivers).
	Capacity    int
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	switch driver := strings.ToLower(strings.TrimSpace(cfg.Driver)); driver {
	case "", "memory":
		return NewMemory(cfg.Capacity), nil
	case "none":
		return nopStore{}, nil
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown history driver: " + driver)
	}
}

// ValidDriver reports whether Open accepts driver.
func ValidDriver(driver string) bool {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "memory", "none", "file", "sqlite", "sqlite3":
		return true
	}
	return false
}

type nopStore struct{}

func (nopStore) Put(context.Context, Record) error             { return nil }
func (nopStore) List(context.Context, Query) ([]Record, error) { return nil, nil }
func (nopStore) Close() error                                  { return nil }
