package trigger

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"watcher/internal/eventbus"
	"watcher/internal/metrics"
	logx "watcher/pkg/logx"
)

// Dispatcher hands events to a listener and reports the outcome.
//
// It is shared by every engine so a rejected or panicking listener looks the
// same no matter which trigger kind fired.
type Dispatcher struct {
	log      logx.Logger
	bus      eventbus.Bus
	metrics  metrics.Sink
	throttle *logx.Throttle
}

func NewDispatcher(log logx.Logger, bus eventbus.Bus, sink metrics.Sink) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	if bus == nil {
		bus = eventbus.Nop()
	}
	return &Dispatcher{
		log:      log,
		bus:      bus,
		metrics:  metrics.OrNoop(sink),
		throttle: logx.NewThrottle(10*time.Second, 3),
	}
}

// Deliver invokes l for ev. A listener error or panic is reported and
// returned; it never propagates as a panic to the engine loop.
func (d *Dispatcher) Deliver(ctx context.Context, l Listener, ev Event) (err error) {
	if l == nil {
		return ErrNotStarted
	}
	d.metrics.TriggerFired(ev.Type)
	d.metrics.TriggerDrift(ev.Drift())
	d.bus.Publish(eventbus.Event{Type: eventbus.TypeTriggerFired, Time: ev.TriggeredTime, Data: ev})

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("listener panic: %v", r)
			d.log.Error("listener panic",
				logx.String("watch", ev.WatchID),
				logx.String("event", ev.ID),
				logx.Any("panic", r),
				logx.Stack(string(debug.Stack())),
			)
		}
		if err != nil {
			d.reject(ev, err)
		}
	}()
	return l.OnFire(ctx, ev)
}

func (d *Dispatcher) reject(ev Event, err error) {
	d.metrics.TriggerRejected(ev.Type)
	d.bus.Publish(eventbus.Event{Type: eventbus.TypeTriggerRejected, Time: ev.TriggeredTime, Data: ev})
	if d.throttle.Allow(ev.WatchID) {
		d.log.Warn("firing not accepted",
			logx.String("watch", ev.WatchID),
			logx.String("trigger", ev.Type),
			logx.Time("scheduled", ev.ScheduledTime),
			logx.Err(err),
		)
	}
}
