package schedule

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"watcher/internal/clock"
	"watcher/internal/trigger"
	logx "watcher/pkg/logx"
)

// MockEngine is the deterministic schedule engine. It owns no goroutine:
// nothing fires until the caller asks for a pulse or forces a trigger.
type MockEngine struct {
	clock clock.Clock
	log   logx.Logger
	reg   *registry
	disp  *trigger.Dispatcher

	mu       sync.Mutex
	listener trigger.Listener
}

func NewMock(clk clock.Clock, loc *time.Location, log logx.Logger, disp *trigger.Dispatcher) *MockEngine {
	if log.IsZero() {
		log = logx.Nop()
	}
	if disp == nil {
		disp = trigger.NewDispatcher(log, nil, nil)
	}
	log = log.With(logx.String("comp", "schedule.mock"))
	return &MockEngine{clock: clk, log: log, reg: newRegistry(clk, loc, log), disp: disp}
}

func (m *MockEngine) Type() string { return trigger.TypeSchedule }

func (m *MockEngine) Validate(spec trigger.Spec) error {
	_, err := m.reg.validate(spec)
	return err
}

func (m *MockEngine) Add(watchID string, spec trigger.Spec) error { return m.reg.add(watchID, spec) }
func (m *MockEngine) Remove(watchID string) bool                  { return m.reg.remove(watchID) }
func (m *MockEngine) Count() int                                  { return m.reg.count() }
func (m *MockEngine) Triggers() []Info                            { return m.reg.list() }

func (m *MockEngine) Next(watchID string) (time.Time, bool) {
	info, ok := m.reg.info(watchID)
	return info.Next, ok
}

// Start only records the listener; pulses stay caller driven.
func (m *MockEngine) Start(_ context.Context, l trigger.Listener) error {
	if l == nil {
		return errors.New("schedule engine: listener required")
	}
	m.mu.Lock()
	m.listener = l
	m.mu.Unlock()
	return nil
}

func (m *MockEngine) Stop(context.Context) {
	m.mu.Lock()
	m.listener = nil
	m.mu.Unlock()
}

// Evaluate reports what would fire at now. It does not deliver or advance.
func (m *MockEngine) Evaluate(now time.Time) []trigger.Event {
	return m.reg.evaluate(now)
}

// Pulse evaluates at the clock's current instant and delivers every due
// event to the listener before returning. Listener errors are joined; the
// returned events are all the ones that fired.
func (m *MockEngine) Pulse(ctx context.Context) ([]trigger.Event, error) {
	l := m.current()
	if l == nil {
		return nil, trigger.ErrNotStarted
	}
	evs := m.reg.pulse(m.clock.Now())
	var errs []error
	for _, ev := range evs {
		if err := m.disp.Deliver(ctx, l, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return evs, errors.Join(errs...)
}

// Trigger fires watchID once at the current instant regardless of its
// schedule. The schedule's own next due time is left unchanged.
func (m *MockEngine) Trigger(ctx context.Context, watchID string, data map[string]any) (trigger.Event, error) {
	watchID = strings.TrimSpace(watchID)
	if !m.reg.has(watchID) {
		return trigger.Event{}, trigger.ErrNotRegistered
	}
	l := m.current()
	if l == nil {
		return trigger.Event{}, trigger.ErrNotStarted
	}
	now := m.clock.Now()
	payload := map[string]any{"forced": true}
	for k, v := range data {
		payload[k] = v
	}
	ev := trigger.NewEvent(watchID, trigger.TypeSchedule, now, now, payload)
	ev.ID = trigger.EventID(watchID, trigger.TypeSchedule+"!forced", now)
	return ev, m.disp.Deliver(ctx, l, ev)
}

func (m *MockEngine) current() trigger.Listener {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listener
}
