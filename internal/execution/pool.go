package execution

import (
	"context"
	"fmt"
	"sync"

	"watcher/internal/runtime/supervisor"
	logx "watcher/pkg/logx"
)

// Pool is the production executor: a bounded queue drained by a fixed set of
// supervised workers.
//
// Unless ConcurrentPerWatch is set, a watch has at most one task queued or
// running at a time. Later tasks for the same watch wait in that watch's
// lane and are released in firing order. Lane backlog counts towards the
// queue capacity.
type Pool struct {
	cfg Config
	r   *runner

	mu       sync.Mutex
	cur      *poolRun
	started  bool
	stopping bool
	changed  chan struct{}
	sup      *supervisor.Supervisor
}

// poolRun is the state of one Start..Stop cycle. Workers of an earlier run
// that outlived its Stop only ever touch their own run.
type poolRun struct {
	q       chan *Task
	lanes   map[string][]*Task
	busy    map[string]bool
	pending int // queued in q or waiting in a lane
	running int
	open    bool
}

func NewPool(cfg Config, d Deps) *Pool {
	cfg = cfg.withDefaults()
	return &Pool{
		cfg:     cfg,
		r:       newRunner("pool", d, cfg.DefaultTimeout, cfg.HistorySize),
		cur:     &poolRun{},
		changed: make(chan struct{}),
	}
}

func (p *Pool) QueueCapacity() int  { return p.cfg.QueueSize }
func (p *Pool) MaxConcurrency() int { return p.cfg.Workers }

// Start is idempotent.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return nil
	}
	run := &poolRun{
		q:     make(chan *Task, p.cfg.QueueSize),
		lanes: map[string][]*Task{},
		busy:  map[string]bool{},
		open:  true,
	}
	p.cur = run
	p.stopping = false
	p.started = true

	// Tasks run to completion even while the pool shuts down; only their own
	// timeout bounds them.
	runCtx := context.WithoutCancel(ctx)
	p.sup = supervisor.New(ctx,
		supervisor.WithLogger(p.r.log),
		supervisor.WithCancelOnError(false),
	)
	for i := 0; i < p.cfg.Workers; i++ {
		p.sup.GoRestart(fmt.Sprintf("worker.%d", i), func(c context.Context) error {
			return p.worker(c, runCtx, run)
		})
	}
	p.r.log.Info("pool started",
		logx.Int("workers", p.cfg.Workers),
		logx.Int("queue", p.cfg.QueueSize),
		logx.String("backpressure", string(p.cfg.Backpressure)),
		logx.Bool("concurrent_per_watch", p.cfg.ConcurrentPerWatch),
	)
	return nil
}

// Submit accepts t or returns why it could not. Under BackpressureBlock it
// waits for room until ctx ends.
func (p *Pool) Submit(ctx context.Context, t *Task) error {
	if t == nil {
		return fmt.Errorf("nil task")
	}
	p.mu.Lock()
	for {
		if !p.started || p.stopping {
			p.mu.Unlock()
			p.r.reject(t, ErrStopped)
			return ErrStopped
		}
		if p.cur.pending < p.cfg.QueueSize {
			break
		}
		if p.cfg.Backpressure != BackpressureBlock {
			p.mu.Unlock()
			p.r.reject(t, ErrQueueSaturated)
			return ErrQueueSaturated
		}
		wait := p.changed
		p.mu.Unlock()
		select {
		case <-wait:
		case <-ctx.Done():
			err := fmt.Errorf("%w: %w", ErrQueueSaturated, ctx.Err())
			p.r.reject(t, err)
			return err
		}
		p.mu.Lock()
	}

	run := p.cur
	run.pending++
	p.r.accept(t)
	key := t.WatchID()
	if !p.cfg.ConcurrentPerWatch {
		if run.busy[key] {
			run.lanes[key] = append(run.lanes[key], t)
			p.reportDepthLocked()
			p.mu.Unlock()
			return nil
		}
		run.busy[key] = true
	}
	// len(q) <= pending <= cap(q): never blocks.
	run.q <- t
	p.reportDepthLocked()
	p.mu.Unlock()
	return nil
}

func (p *Pool) worker(ctx, runCtx context.Context, run *poolRun) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case t := <-run.q:
			p.dequeued(run)
			p.r.run(runCtx, t)
			p.finished(run, t)
		}
	}
}

func (p *Pool) dequeued(run *poolRun) {
	p.mu.Lock()
	run.pending--
	run.running++
	p.reportDepthLocked()
	p.notifyLocked()
	p.mu.Unlock()
}

func (p *Pool) finished(run *poolRun, t *Task) {
	p.mu.Lock()
	defer p.mu.Unlock()
	run.running--
	if !p.cfg.ConcurrentPerWatch {
		key := t.WatchID()
		if lane := run.lanes[key]; len(lane) > 0 {
			next := lane[0]
			if len(lane) == 1 {
				delete(run.lanes, key)
			} else {
				run.lanes[key] = lane[1:]
			}
			if run.open {
				run.q <- next
			} else {
				run.pending--
				p.r.reject(next, ErrStopped)
			}
		} else {
			delete(run.busy, key)
		}
	}
	p.reportDepthLocked()
	p.notifyLocked()
}

// Stop refuses new tasks, waits for queued and running tasks to finish, and
// then stops the workers. Tasks still waiting when ctx ends are Rejected
// with ErrStopped.
func (p *Pool) Stop(ctx context.Context) {
	p.mu.Lock()
	if !p.started || p.stopping {
		p.mu.Unlock()
		return
	}
	p.stopping = true
	run := p.cur
	p.notifyLocked()
	p.mu.Unlock()

	drained := p.waitIdle(ctx, run)

	p.mu.Lock()
	sup := p.sup
	p.started = false
	run.open = false
	var left []*Task
	for {
		select {
		case t := <-run.q:
			left = append(left, t)
			continue
		default:
		}
		break
	}
	for _, lane := range run.lanes {
		left = append(left, lane...)
	}
	run.lanes = map[string][]*Task{}
	run.pending -= len(left)
	p.mu.Unlock()

	for _, t := range left {
		p.r.reject(t, ErrStopped)
	}
	if sup != nil {
		if err := sup.Stop(ctx); err != nil {
			p.r.log.Warn("pool stop timed out", logx.Err(err))
		}
	}
	p.mu.Lock()
	p.stopping = false
	p.mu.Unlock()
	p.r.log.Info("pool stopped", logx.Bool("drained", drained), logx.Int("rejected", len(left)))
}

func (p *Pool) waitIdle(ctx context.Context, run *poolRun) bool {
	for {
		p.mu.Lock()
		if run.pending == 0 && run.running == 0 {
			p.mu.Unlock()
			return true
		}
		wait := p.changed
		p.mu.Unlock()
		select {
		case <-wait:
		case <-ctx.Done():
			return false
		}
	}
}

// notifyLocked wakes everyone waiting for the pool to change.
func (p *Pool) notifyLocked() {
	close(p.changed)
	p.changed = make(chan struct{})
}

func (p *Pool) reportDepthLocked() {
	p.r.metrics.QueueDepth(p.r.name, p.cur.pending)
	p.r.metrics.InFlight(p.r.name, p.cur.running)
}

func (p *Pool) Snapshot() Snapshot {
	p.mu.Lock()
	s := Snapshot{
		Workers:      p.cfg.Workers,
		QueueLen:     p.cur.pending,
		QueueCap:     p.cfg.QueueSize,
		InFlight:     p.cur.running,
		Backpressure: p.cfg.Backpressure,
	}
	p.mu.Unlock()
	p.r.fill(&s)
	return s
}
