package schedule

import (
	"context"
	"errors"
	"sync"
	"time"

	"watcher/internal/clock"
	"watcher/internal/metrics"
	"watcher/internal/runtime/supervisor"
	"watcher/internal/trigger"
	logx "watcher/pkg/logx"
)

const DefaultTickInterval = 500 * time.Millisecond

type Config struct {
	// TickInterval is how often the loop wakes to evaluate due triggers.
	TickInterval time.Duration
	// Location is the zone cron expressions are evaluated in (UTC when nil).
	Location *time.Location
}

// Engine is the production schedule engine: a supervised goroutine wakes on
// a clock ticker, pulses the registry and delivers due events.
type Engine struct {
	cfg     Config
	clock   clock.Clock
	log     logx.Logger
	reg     *registry
	disp    *trigger.Dispatcher
	metrics metrics.Sink

	mu  sync.Mutex
	sup *supervisor.Supervisor
}

func New(cfg Config, clk clock.Clock, log logx.Logger, disp *trigger.Dispatcher, sink metrics.Sink) *Engine {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if disp == nil {
		disp = trigger.NewDispatcher(log, nil, sink)
	}
	log = log.With(logx.String("comp", "schedule"))
	return &Engine{
		cfg:     cfg,
		clock:   clk,
		log:     log,
		reg:     newRegistry(clk, cfg.Location, log),
		disp:    disp,
		metrics: metrics.OrNoop(sink),
	}
}

func (e *Engine) Type() string { return trigger.TypeSchedule }

func (e *Engine) Validate(spec trigger.Spec) error {
	_, err := e.reg.validate(spec)
	return err
}

func (e *Engine) Add(watchID string, spec trigger.Spec) error {
	if err := e.reg.add(watchID, spec); err != nil {
		return err
	}
	if e.log.Enabled(logx.LevelDebug) {
		if info, ok := e.reg.info(watchID); ok {
			e.log.Debug("schedule added", logx.String("watch", watchID), logx.String("schedule", info.Schedule), logx.Time("next", info.Next))
		}
	}
	return nil
}

func (e *Engine) Remove(watchID string) bool { return e.reg.remove(watchID) }
func (e *Engine) Count() int                 { return e.reg.count() }

// Triggers lists registered triggers with their next due time.
func (e *Engine) Triggers() []Info { return e.reg.list() }

// Next reports the next due time of watchID.
func (e *Engine) Next(watchID string) (time.Time, bool) {
	info, ok := e.reg.info(watchID)
	return info.Next, ok
}

func (e *Engine) Start(ctx context.Context, l trigger.Listener) error {
	if l == nil {
		return errors.New("schedule engine: listener required")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sup != nil {
		return nil
	}
	e.sup = supervisor.New(ctx, supervisor.WithLogger(e.log))
	e.sup.GoRestart("schedule.loop", func(ctx context.Context) error {
		return e.loop(ctx, l)
	}, supervisor.WithRestartBackoff(100*time.Millisecond, 5*time.Second))
	e.log.Info("schedule engine started", logx.Duration("tick", e.cfg.TickInterval), logx.Int("triggers", e.reg.count()))
	return nil
}

func (e *Engine) Stop(ctx context.Context) {
	e.mu.Lock()
	sup := e.sup
	e.sup = nil
	e.mu.Unlock()
	if sup == nil {
		return
	}
	if err := sup.Stop(ctx); err != nil {
		e.log.Warn("schedule engine stop timed out", logx.Err(err))
		return
	}
	e.log.Info("schedule engine stopped")
}

func (e *Engine) loop(ctx context.Context, l trigger.Listener) error {
	tk := e.clock.NewTicker(e.cfg.TickInterval)
	defer tk.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tk.Chan():
			if ctx.Err() != nil {
				return nil
			}
			e.tick(ctx, l)
		}
	}
}

// tick pulses and delivers every due event. The pulse has already moved the
// triggers past these events, so delivery finishes even if ctx ends midway.
func (e *Engine) tick(ctx context.Context, l trigger.Listener) {
	began := time.Now()
	evs := e.reg.pulse(e.clock.Now())
	dctx := context.WithoutCancel(ctx)
	for _, ev := range evs {
		_ = e.disp.Deliver(dctx, l, ev)
	}
	e.metrics.PulseCompleted(time.Since(began), len(evs))
}
