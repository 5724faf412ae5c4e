package execution

import (
	"context"
	"fmt"
	"sync/atomic"
)

// SameThread runs each task on the submitting goroutine before Submit
// returns. It holds one task at a time: a submit made while a task is
// running (from inside an action, say) is refused with ErrQueueSaturated.
type SameThread struct {
	r       *runner
	busy    atomic.Bool
	stopped atomic.Bool
}

func NewSameThread(cfg Config, d Deps) *SameThread {
	cfg = cfg.withDefaults()
	return &SameThread{r: newRunner("samethread", d, cfg.DefaultTimeout, cfg.HistorySize)}
}

func (s *SameThread) QueueCapacity() int  { return 1 }
func (s *SameThread) MaxConcurrency() int { return 1 }

func (s *SameThread) Start(context.Context) error {
	s.stopped.Store(false)
	return nil
}

func (s *SameThread) Stop(context.Context) { s.stopped.Store(true) }

// Submit runs t to completion. The returned error only reports refusal; the
// task's own outcome is in t.State() and t.Err().
func (s *SameThread) Submit(ctx context.Context, t *Task) error {
	if t == nil {
		return fmt.Errorf("nil task")
	}
	if s.stopped.Load() {
		s.r.reject(t, ErrStopped)
		return ErrStopped
	}
	if !s.busy.CompareAndSwap(false, true) {
		s.r.reject(t, ErrQueueSaturated)
		return ErrQueueSaturated
	}
	defer s.busy.Store(false)

	s.r.accept(t)
	s.r.run(ctx, t)
	return nil
}

func (s *SameThread) Snapshot() Snapshot {
	snap := Snapshot{Workers: 1, QueueCap: 1, Backpressure: BackpressureReject}
	if s.busy.Load() {
		snap.InFlight = 1
	}
	s.r.fill(&snap)
	return snap
}
