package execution

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"watcher/internal/clock"
	"watcher/internal/eventbus"
	"watcher/internal/history"
	"watcher/internal/metrics"
	"watcher/internal/watch"
	logx "watcher/pkg/logx"
)

const historyWriteTimeout = 2 * time.Second

// runner runs single tasks and reports their outcome. Pool and SameThread
// differ only in how they schedule calls into it.
type runner struct {
	name           string
	clock          clock.Clock
	log            logx.Logger
	bus            eventbus.Bus
	metrics        metrics.Sink
	store          history.Store
	recent         *history.Memory
	throttle       *logx.Throttle
	defaultTimeout time.Duration

	submitted atomic.Uint64
	completed atomic.Uint64
	failed    atomic.Uint64
	rejected  atomic.Uint64
}

func newRunner(name string, d Deps, defaultTimeout time.Duration, historySize int) *runner {
	if d.Clock == nil {
		d.Clock = clock.NewReal()
	}
	if d.Log.IsZero() {
		d.Log = logx.Nop()
	}
	if d.Bus == nil {
		d.Bus = eventbus.Nop()
	}
	return &runner{
		name:           name,
		clock:          d.Clock,
		log:            d.Log.With(logx.String("comp", name)),
		bus:            d.Bus,
		metrics:        metrics.OrNoop(d.Metrics),
		store:          d.History,
		recent:         history.NewMemory(historySize),
		throttle:       logx.NewThrottle(5*time.Second, 1),
		defaultTimeout: defaultTimeout,
	}
}

func (r *runner) accept(t *Task) {
	now := r.clock.Now()
	t.queued(now)
	r.submitted.Add(1)
	r.metrics.TaskSubmitted(r.name)
	r.bus.Publish(eventbus.Event{Type: eventbus.TypeTaskQueued, Time: now, Data: r.taskEvent(t)})
}

// reject finalizes a task the executor will not run.
func (r *runner) reject(t *Task, err error) {
	t.reject(r.clock.Now(), err)
	r.rejected.Add(1)
	r.metrics.TaskRejected(r.name)
	r.bus.Publish(eventbus.Event{Type: eventbus.TypeTaskRejected, Time: r.clock.Now(), Data: r.taskEvent(t)})
	if r.throttle.Allow("reject:" + t.WatchID()) {
		r.log.Warn("task rejected",
			logx.String("watch", t.WatchID()),
			logx.String("task", t.ID),
			logx.Err(err),
		)
	}
	r.record(t)
}

// run executes t on the calling goroutine. It never panics and always leaves
// t terminal.
func (r *runner) run(ctx context.Context, t *Task) {
	if err := t.start(r.clock.Now()); err != nil {
		r.log.Error("task not runnable", logx.String("task", t.ID), logx.Err(err))
		return
	}
	r.bus.Publish(eventbus.Event{Type: eventbus.TypeTaskStarted, Time: r.clock.Now(), Data: r.taskEvent(t)})
	r.log.Debug("task.started", logx.String("watch", t.WatchID()), logx.String("task", t.ID))

	began := time.Now()
	err := r.execute(ctx, t)
	t.finish(r.clock.Now(), err)
	dur := time.Since(began)

	state := t.State()
	r.metrics.TaskFinished(state.String(), dur)
	if err != nil {
		r.failed.Add(1)
		r.log.Warn("task.failed", logx.String("watch", t.WatchID()), logx.String("task", t.ID), logx.Duration("dur", dur), logx.Err(err))
		r.bus.Publish(eventbus.Event{Type: eventbus.TypeTaskFailed, Time: r.clock.Now(), Data: r.taskEvent(t)})
	} else {
		r.completed.Add(1)
		if dur >= 750*time.Millisecond {
			r.log.Info("task.completed", logx.String("watch", t.WatchID()), logx.String("task", t.ID), logx.Duration("dur", dur))
		} else {
			r.log.Debug("task.completed", logx.String("watch", t.WatchID()), logx.String("task", t.ID), logx.Duration("dur", dur))
		}
		r.bus.Publish(eventbus.Event{Type: eventbus.TypeTaskCompleted, Time: r.clock.Now(), Data: r.taskEvent(t)})
	}
	r.record(t)
}

// execute resolves the watch and runs its action. Every failure comes back
// as an *ExecutionError.
func (r *runner) execute(ctx context.Context, t *Task) (err error) {
	fail := func(cause error, panicked bool) error {
		return &ExecutionError{TaskID: t.ID, WatchID: t.WatchID(), Cause: cause, Panic: panicked}
	}
	if t.store == nil {
		return fail(errors.New("no watch store"), false)
	}
	w, err := t.store.Get(ctx, t.WatchID())
	if err != nil {
		return fail(err, false)
	}

	timeout := w.Timeout
	if timeout <= 0 {
		timeout = r.defaultTimeout
	}
	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	// A panicking action must not take the worker (or the caller) down.
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("task.panic",
				logx.String("watch", t.WatchID()),
				logx.String("task", t.ID),
				logx.Any("panic", rec),
				logx.Stack(string(debug.Stack())),
			)
			err = fail(fmt.Errorf("%v", rec), true)
		}
	}()

	wc := watchContext(t, r.log)
	if aerr := w.Action(runCtx, wc); aerr != nil {
		if timeout > 0 && errors.Is(aerr, context.DeadlineExceeded) && runCtx.Err() != nil {
			aerr = fmt.Errorf("timed out after %s: %w", timeout, aerr)
		}
		return fail(aerr, false)
	}
	return nil
}

func watchContext(t *Task, log logx.Logger) watch.Context {
	return watch.Context{
		WatchID: t.WatchID(),
		TaskID:  t.ID,
		Event:   t.Event,
		Log:     log.With(logx.String("watch", t.WatchID()), logx.String("task", t.ID)),
	}
}

func (r *runner) record(t *Task) {
	rec := t.Record()
	_ = r.recent.Put(context.Background(), rec)
	if r.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), historyWriteTimeout)
	defer cancel()
	if err := r.store.Put(ctx, rec); err != nil && r.throttle.Allow("history") {
		r.log.Warn("history write failed", logx.String("task", t.ID), logx.Err(err))
	}
}

func (r *runner) taskEvent(t *Task) TaskEvent {
	rec := t.Record()
	return TaskEvent{TaskID: rec.TaskID, EventID: rec.EventID, WatchID: rec.WatchID, State: rec.State, Error: rec.Error}
}

func (r *runner) fill(s *Snapshot) {
	s.Executor = r.name
	s.Submitted = r.submitted.Load()
	s.Completed = r.completed.Load()
	s.Failed = r.failed.Load()
	s.Rejected = r.rejected.Load()
	s.History, _ = r.recent.List(context.Background(), history.Query{})
}
