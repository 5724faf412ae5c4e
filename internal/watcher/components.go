// Package watcher assembles the trigger and execution components into one of
// two consistent sets and drives watches through them.
//
// Production uses the wall clock, a ticker-driven schedule engine and a
// worker pool. Time-warped mode shares one mock clock among every consumer,
// evaluates schedules only when pulsed and runs tasks on the caller's
// goroutine, so tests and simulations are fully deterministic.
package watcher

import (
	"fmt"
	"strings"
	"time"

	"watcher/internal/clock"
	"watcher/internal/eventbus"
	"watcher/internal/execution"
	"watcher/internal/history"
	"watcher/internal/metrics"
	"watcher/internal/trigger"
	"watcher/internal/trigger/manual"
	"watcher/internal/trigger/schedule"
	"watcher/internal/watch"
	logx "watcher/pkg/logx"
)

type Mode string

const (
	ModeProduction Mode = "production"
	ModeTimeWarped Mode = "time_warped"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeProduction:
		return ModeProduction, nil
	case ModeTimeWarped:
		return ModeTimeWarped, nil
	default:
		return "", fmt.Errorf("unknown watcher mode %q", s)
	}
}

type Config struct {
	// TickInterval of the production schedule engine.
	TickInterval time.Duration
	// Location for cron schedules (UTC when nil).
	Location *time.Location
	// Start is the initial mock clock reading in time-warped mode. Zero
	// means the wall time when the components are built.
	Start time.Time

	Executor execution.Config
}

// Deps are shared by every component. All optional.
type Deps struct {
	Log     logx.Logger
	Bus     eventbus.Bus
	Metrics metrics.Sink
	History history.Store
}

// ScheduleEngine is the surface both schedule engines share.
type ScheduleEngine interface {
	trigger.Engine
	Next(watchID string) (time.Time, bool)
	Triggers() []schedule.Info
}

// Components is one consistent set. Every member reads time from Clock.
type Components struct {
	Mode     Mode
	Clock    clock.Clock
	Triggers *trigger.Service
	Schedule ScheduleEngine
	Manual   *manual.Engine
	Executor execution.Executor
	Listener trigger.Listener
	Watches  *watch.MemoryStore

	// Set in time-warped mode only.
	MockClock    *clock.Mock
	MockSchedule *schedule.MockEngine
}

func (d Deps) normalized() Deps {
	if d.Log.IsZero() {
		d.Log = logx.Nop()
	}
	if d.Bus == nil {
		d.Bus = eventbus.Nop()
	}
	d.Metrics = metrics.OrNoop(d.Metrics)
	return d
}

// NewProduction: real clock, ticker schedule engine, manual engine, worker
// pool, async listener.
func NewProduction(cfg Config, d Deps) *Components {
	d = d.normalized()
	clk := clock.NewReal()
	disp := trigger.NewDispatcher(d.Log, d.Bus, d.Metrics)
	sched := schedule.New(schedule.Config{TickInterval: cfg.TickInterval, Location: cfg.Location}, clk, d.Log, disp, d.Metrics)
	man := manual.New(clk, d.Log, disp)
	store := watch.NewMemoryStore()
	exec := execution.NewPool(cfg.Executor, execution.Deps{
		Clock:   clk,
		Log:     d.Log,
		Bus:     d.Bus,
		Metrics: d.Metrics,
		History: d.History,
	})
	return &Components{
		Mode:     ModeProduction,
		Clock:    clk,
		Triggers: trigger.NewService(d.Log, sched, man),
		Schedule: sched,
		Manual:   man,
		Executor: exec,
		Listener: execution.NewAsyncListener(exec, store),
		Watches:  store,
	}
}

// NewTimeWarped: one mock clock shared by every consumer, pulse-driven
// schedule engine, manual engine, same-thread executor, sync listener.
func NewTimeWarped(cfg Config, d Deps) *Components {
	d = d.normalized()
	start := cfg.Start
	if start.IsZero() {
		start = time.Now()
	}
	clk := clock.NewMock(start)
	disp := trigger.NewDispatcher(d.Log, d.Bus, d.Metrics)
	sched := schedule.NewMock(clk, cfg.Location, d.Log, disp)
	man := manual.New(clk, d.Log, disp)
	store := watch.NewMemoryStore()
	exec := execution.NewSameThread(cfg.Executor, execution.Deps{
		Clock:   clk,
		Log:     d.Log,
		Bus:     d.Bus,
		Metrics: d.Metrics,
		History: d.History,
	})
	return &Components{
		Mode:         ModeTimeWarped,
		Clock:        clk,
		Triggers:     trigger.NewService(d.Log, sched, man),
		Schedule:     sched,
		Manual:       man,
		Executor:     exec,
		Listener:     execution.NewSyncListener(exec, store),
		Watches:      store,
		MockClock:    clk,
		MockSchedule: sched,
	}
}

// Build picks the component set for mode.
func Build(mode Mode, cfg Config, d Deps) (*Components, error) {
	switch mode {
	case ModeProduction:
		return NewProduction(cfg, d), nil
	case ModeTimeWarped:
		return NewTimeWarped(cfg, d), nil
	default:
		return nil, fmt.Errorf("unknown watcher mode %q", mode)
	}
}
