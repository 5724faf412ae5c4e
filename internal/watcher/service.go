package watcher

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"watcher/internal/execution"
	"watcher/internal/trigger"
	"watcher/internal/trigger/schedule"
	"watcher/internal/watch"
	logx "watcher/pkg/logx"
)

// Service owns a component set and keeps the watch store and the trigger
// registrations in step.
type Service struct {
	c   *Components
	log logx.Logger

	mu      sync.Mutex // serializes watch mutations and lifecycle
	started bool
}

func New(c *Components, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{c: c, log: log.With(logx.String("comp", "watcher"))}
}

func (s *Service) Components() *Components { return s.c }
func (s *Service) Mode() Mode              { return s.c.Mode }
func (s *Service) Now() time.Time          { return s.c.Clock.Now() }

// PutWatch registers w's trigger and then stores w. A rejected trigger
// leaves any previous definition of the watch in place.
func (s *Service) PutWatch(_ context.Context, w watch.Watch) error {
	w.ID = strings.TrimSpace(w.ID)
	if err := w.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.c.Triggers.Register(w.ID, w.Trigger); err != nil {
		return fmt.Errorf("watch %s: %w", w.ID, err)
	}
	if err := s.c.Watches.Put(w); err != nil {
		s.c.Triggers.Unregister(w.ID)
		return fmt.Errorf("watch %s: %w", w.ID, err)
	}
	s.log.Info("watch registered", logx.String("watch", w.ID), logx.String("trigger", w.Trigger.String()))
	return nil
}

// DeleteWatch unregisters and forgets id. Tasks already queued for it fail
// with watch.ErrNotFound when they start.
func (s *Service) DeleteWatch(_ context.Context, id string) bool {
	id = strings.TrimSpace(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	unreg := s.c.Triggers.Unregister(id)
	deleted := s.c.Watches.Delete(id)
	if unreg || deleted {
		s.log.Info("watch removed", logx.String("watch", id))
	}
	return unreg || deleted
}

// ExecuteWatch fires a stored watch on demand through the manual engine,
// whatever its own trigger is. In time-warped mode the task has finished
// when this returns.
func (s *Service) ExecuteWatch(ctx context.Context, id string, data map[string]any) (trigger.Event, error) {
	id = strings.TrimSpace(id)
	if _, err := s.c.Watches.Get(ctx, id); err != nil {
		return trigger.Event{}, fmt.Errorf("execute %s: %w", id, err)
	}
	return s.c.Manual.Fire(ctx, id, data)
}

// Watches lists stored watches sorted by id.
func (s *Service) Watches() []watch.Watch {
	ws := s.c.Watches.List()
	sort.Slice(ws, func(i, j int) bool { return ws[i].ID < ws[j].ID })
	return ws
}

// Next is the next due time of id's schedule trigger.
func (s *Service) Next(id string) (time.Time, bool) { return s.c.Schedule.Next(strings.TrimSpace(id)) }

// Start brings up the executor before the triggers so no firing meets a
// stopped executor.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}
	if err := s.c.Executor.Start(ctx); err != nil {
		return fmt.Errorf("start executor: %w", err)
	}
	if err := s.c.Triggers.Start(ctx, s.c.Listener); err != nil {
		s.c.Executor.Stop(ctx)
		return fmt.Errorf("start triggers: %w", err)
	}
	s.started = true
	s.log.Info("watcher started",
		logx.String("mode", string(s.c.Mode)),
		logx.Int("watches", s.c.Watches.Len()),
		logx.Int("workers", s.c.Executor.MaxConcurrency()),
		logx.Int("queue", s.c.Executor.QueueCapacity()),
	)
	return nil
}

// Stop halts the triggers first, then lets the executor drain until ctx
// ends.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	s.c.Triggers.Stop(ctx)
	s.c.Executor.Stop(ctx)
	s.started = false
	s.log.Info("watcher stopped")
}

func (s *Service) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

type Snapshot struct {
	Mode      Mode               `json:"mode"`
	Now       time.Time          `json:"now"`
	Running   bool               `json:"running"`
	Watches   int                `json:"watches"`
	Triggers  map[string]int     `json:"triggers"`
	Schedules []schedule.Info    `json:"schedules"`
	Executor  execution.Snapshot `json:"executor"`
}

func (s *Service) Snapshot() Snapshot {
	return Snapshot{
		Mode:      s.c.Mode,
		Now:       s.c.Clock.Now(),
		Running:   s.Running(),
		Watches:   s.c.Watches.Len(),
		Triggers:  s.c.Triggers.Counts(),
		Schedules: s.c.Schedule.Triggers(),
		Executor:  s.c.Executor.Snapshot(),
	}
}

// ErrNotTimeWarped is returned by TimeWarp in production mode.
var ErrNotTimeWarped = errors.New("watcher is not time-warped")

// TimeWarp returns the controls of a time-warped service.
func (s *Service) TimeWarp() (*TimeWarp, error) {
	if s.c.Mode != ModeTimeWarped || s.c.MockClock == nil || s.c.MockSchedule == nil {
		return nil, ErrNotTimeWarped
	}
	return &TimeWarp{svc: s, clock: s.c.MockClock, sched: s.c.MockSchedule}, nil
}
