package watcher

import (
	"context"
	"time"

	"watcher/internal/clock"
	"watcher/internal/trigger"
	"watcher/internal/trigger/schedule"
)

// TimeWarp drives a time-warped service. Nothing happens unless the caller
// moves the clock and pulses.
type TimeWarp struct {
	svc   *Service
	clock *clock.Mock
	sched *schedule.MockEngine
}

func (tw *TimeWarp) Now() time.Time { return tw.clock.Now() }

func (tw *TimeWarp) Advance(d time.Duration) { tw.clock.FastForward(d) }
func (tw *TimeWarp) SetTime(t time.Time)     { tw.clock.SetTime(t) }

// Evaluate reports what a pulse would fire right now without firing it.
func (tw *TimeWarp) Evaluate() []trigger.Event { return tw.sched.Evaluate(tw.clock.Now()) }

// Pulse fires every due schedule trigger. Each resulting task has run by the
// time Pulse returns.
func (tw *TimeWarp) Pulse(ctx context.Context) ([]trigger.Event, error) {
	return tw.sched.Pulse(ctx)
}

// AdvanceAndPulse moves the clock by d and pulses once.
func (tw *TimeWarp) AdvanceAndPulse(ctx context.Context, d time.Duration) ([]trigger.Event, error) {
	tw.Advance(d)
	return tw.Pulse(ctx)
}

// Step advances in increments of step until d has elapsed, pulsing after
// each increment. It returns every event fired, in order.
func (tw *TimeWarp) Step(ctx context.Context, d, step time.Duration) ([]trigger.Event, error) {
	if step <= 0 || step > d {
		step = d
	}
	var all []trigger.Event
	for elapsed := time.Duration(0); elapsed < d; {
		inc := min(step, d-elapsed)
		evs, err := tw.AdvanceAndPulse(ctx, inc)
		all = append(all, evs...)
		if err != nil {
			return all, err
		}
		elapsed += inc
	}
	return all, nil
}

// Trigger fires id's schedule trigger once, ignoring its due time.
func (tw *TimeWarp) Trigger(ctx context.Context, id string, data map[string]any) (trigger.Event, error) {
	return tw.sched.Trigger(ctx, id, data)
}
