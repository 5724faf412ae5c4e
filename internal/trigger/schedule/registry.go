package schedule

import (
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"time"

	"watcher/internal/clock"
	"watcher/internal/trigger"
	logx "watcher/pkg/logx"
)

// Info describes one registered schedule trigger.
type Info struct {
	WatchID  string    `json:"watch_id"`
	Schedule string    `json:"schedule"`
	Start    time.Time `json:"start"`
	Next     time.Time `json:"next,omitempty"`
}

type entry struct {
	watchID string
	spec    trigger.Spec
	sched   Schedule
	start   time.Time
	next    time.Time // zero once exhausted
}

// registry is the evaluation core shared by Engine and MockEngine.
//
// It never reads time on its own during evaluation: the caller passes the
// instant, so the same instant and trigger set always yield the same events.
type registry struct {
	mu      sync.Mutex
	clock   clock.Clock
	loc     *time.Location
	log     logx.Logger
	entries map[string]*entry
}

func newRegistry(clk clock.Clock, loc *time.Location, log logx.Logger) *registry {
	if loc == nil {
		loc = time.UTC
	}
	return &registry{clock: clk, loc: loc, log: log, entries: map[string]*entry{}}
}

func (r *registry) validate(spec trigger.Spec) (Schedule, error) {
	if !strings.EqualFold(strings.TrimSpace(spec.Type), trigger.TypeSchedule) {
		return nil, fmt.Errorf("%w: schedule engine cannot take %q", trigger.ErrInvalidSpec, spec.Type)
	}
	sched, err := Parse(spec.Schedule, r.loc)
	if err != nil {
		return nil, err
	}
	if now := r.clock.Now(); sched.NextAfter(now, now).IsZero() {
		return nil, fmt.Errorf("%w: schedule %q never fires", trigger.ErrInvalidSpec, spec.Schedule)
	}
	return sched, nil
}

// add registers watchID anchored at the current clock reading. Re-adding a
// live trigger with an equivalent schedule keeps its anchor and due time.
func (r *registry) add(watchID string, spec trigger.Spec) error {
	sched, err := r.validate(spec)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[watchID]; ok && !e.next.IsZero() && e.sched.String() == sched.String() {
		e.spec = spec
		return nil
	}
	now := r.clock.Now()
	next := sched.NextAfter(now, now)
	if next.IsZero() {
		// The clock moved past the last due time since validate.
		return fmt.Errorf("%w: schedule %q never fires", trigger.ErrInvalidSpec, spec.Schedule)
	}
	r.entries[watchID] = &entry{watchID: watchID, spec: spec, sched: sched, start: now, next: next}
	return nil
}

func (r *registry) remove(watchID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[watchID]; !ok {
		return false
	}
	delete(r.entries, watchID)
	return true
}

func (r *registry) has(watchID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[watchID]
	return ok
}

func (r *registry) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (r *registry) info(watchID string) (Info, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[watchID]
	if !ok {
		return Info{}, false
	}
	return e.info(), true
}

func (r *registry) list() []Info {
	r.mu.Lock()
	out := make([]Info, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.info())
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].WatchID < out[j].WatchID })
	return out
}

func (e *entry) info() Info {
	return Info{WatchID: e.watchID, Schedule: e.sched.String(), Start: e.start, Next: e.next}
}

// evaluate returns the events due at now without changing any state.
func (r *registry) evaluate(now time.Time) []trigger.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	evs, _ := r.dueLocked(now)
	return evs
}

// pulse evaluates at now and moves every fired trigger to its first due time
// after now. Periods missed since the last pulse coalesce into one event.
func (r *registry) pulse(now time.Time) []trigger.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	evs, due := r.dueLocked(now)
	for _, e := range due {
		if err := guard(func() {
			e.next = e.sched.NextAfter(e.start, now)
		}); err != nil {
			r.log.Error("schedule advance failed; trigger parked", logx.String("watch", e.watchID), logx.Err(err))
			e.next = time.Time{}
			continue
		}
		if e.next.IsZero() {
			r.log.Warn("schedule exhausted", logx.String("watch", e.watchID), logx.String("schedule", e.sched.String()))
		}
	}
	return evs
}

func (r *registry) dueLocked(now time.Time) ([]trigger.Event, []*entry) {
	var (
		evs []trigger.Event
		due []*entry
	)
	for _, e := range r.entries {
		if e.next.IsZero() || e.next.After(now) {
			continue
		}
		evs = append(evs, trigger.NewEvent(e.watchID, trigger.TypeSchedule, e.next, now, map[string]any{
			"schedule": e.spec.Schedule,
		}))
		due = append(due, e)
	}
	sort.Slice(evs, func(i, j int) bool {
		if !evs[i].ScheduledTime.Equal(evs[j].ScheduledTime) {
			return evs[i].ScheduledTime.Before(evs[j].ScheduledTime)
		}
		return evs[i].WatchID < evs[j].WatchID
	})
	return evs, due
}

var errPanic = errors.New("panic")

// guard runs fn, turning a panic into an error so one trigger cannot take
// down the whole pulse.
func guard(fn func()) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: %v\n%s", errPanic, rec, debug.Stack())
		}
	}()
	fn()
	return nil
}
