// Package manual fires watches on explicit request.
package manual

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"watcher/internal/clock"
	"watcher/internal/trigger"
	logx "watcher/pkg/logx"
)

// Engine owns manual triggers. A manual trigger never fires on its own; Fire
// delivers exactly one event per call.
type Engine struct {
	clock clock.Clock
	log   logx.Logger
	disp  *trigger.Dispatcher

	mu       sync.Mutex
	watches  map[string]struct{}
	listener trigger.Listener
}

func New(clk clock.Clock, log logx.Logger, disp *trigger.Dispatcher) *Engine {
	if log.IsZero() {
		log = logx.Nop()
	}
	if disp == nil {
		disp = trigger.NewDispatcher(log, nil, nil)
	}
	return &Engine{
		clock:   clk,
		log:     log.With(logx.String("comp", "manual")),
		disp:    disp,
		watches: map[string]struct{}{},
	}
}

func (e *Engine) Type() string { return trigger.TypeManual }

func (e *Engine) Validate(spec trigger.Spec) error {
	if !strings.EqualFold(strings.TrimSpace(spec.Type), trigger.TypeManual) {
		return fmt.Errorf("%w: manual engine cannot take %q", trigger.ErrInvalidSpec, spec.Type)
	}
	if strings.TrimSpace(spec.Schedule) != "" {
		return fmt.Errorf("%w: manual triggers take no schedule", trigger.ErrInvalidSpec)
	}
	return nil
}

func (e *Engine) Add(watchID string, spec trigger.Spec) error {
	if err := e.Validate(spec); err != nil {
		return err
	}
	e.mu.Lock()
	e.watches[watchID] = struct{}{}
	e.mu.Unlock()
	return nil
}

func (e *Engine) Remove(watchID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.watches[watchID]; !ok {
		return false
	}
	delete(e.watches, watchID)
	return true
}

func (e *Engine) Count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.watches)
}

// Registered reports whether watchID carries a manual trigger.
func (e *Engine) Registered(watchID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.watches[watchID]
	return ok
}

func (e *Engine) Start(_ context.Context, l trigger.Listener) error {
	if l == nil {
		return errors.New("manual engine: listener required")
	}
	e.mu.Lock()
	e.listener = l
	e.mu.Unlock()
	return nil
}

func (e *Engine) Stop(context.Context) {
	e.mu.Lock()
	e.listener = nil
	e.mu.Unlock()
}

// Fire delivers one event for watchID at the current clock instant.
//
// The watch does not need a manual trigger: any watch can be executed on
// demand, whatever its regular trigger is. Callers check the watch exists.
func (e *Engine) Fire(ctx context.Context, watchID string, data map[string]any) (trigger.Event, error) {
	watchID = strings.TrimSpace(watchID)
	if watchID == "" {
		return trigger.Event{}, errors.New("watch id required")
	}
	e.mu.Lock()
	l := e.listener
	e.mu.Unlock()
	if l == nil {
		return trigger.Event{}, trigger.ErrNotStarted
	}
	now := e.clock.Now()
	ev := trigger.NewEvent(watchID, trigger.TypeManual, now, now, data)
	e.log.Debug("manual fire", logx.String("watch", watchID), logx.String("event", ev.ID))
	return ev, e.disp.Deliver(ctx, l, ev)
}
