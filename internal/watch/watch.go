// Package watch defines the units of work triggers run.
//
// What a watch checks and does is up to its Action; this package only
// carries the definition from the store to the executor.
package watch

import (
	"context"
	"errors"
	"strings"
	"time"

	"watcher/internal/trigger"
	logx "watcher/pkg/logx"
)

var ErrNotFound = errors.New("watch not found")

// Context is what an Action sees when it runs.
type Context struct {
	WatchID string
	TaskID  string
	Event   trigger.Event
	Log     logx.Logger
}

type Action func(ctx context.Context, wc Context) error

type Watch struct {
	ID      string
	Trigger trigger.Spec
	Action  Action
	// Timeout bounds one run. Zero falls back to the executor default.
	Timeout time.Duration
	// Kind names the builtin action for config-declared watches.
	Kind string
}

func (w Watch) Validate() error {
	if strings.TrimSpace(w.ID) == "" {
		return errors.New("watch id required")
	}
	if w.Action == nil {
		return errors.New("watch action required")
	}
	if w.Timeout < 0 {
		return errors.New("watch timeout must be >= 0")
	}
	return nil
}
