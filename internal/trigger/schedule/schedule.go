package schedule

import (
	"time"

	"github.com/robfig/cron/v3"
)

// Schedule computes due times.
//
// NextAfter returns the first due time strictly after `after`. start is the
// instant the trigger was registered; interval schedules are anchored to it.
// A zero result means the schedule will never fire again.
type Schedule interface {
	NextAfter(start, after time.Time) time.Time
	String() string
}

// Interval fires at start + k*Every for k >= 1.
type Interval struct {
	Every time.Duration
}

func (s Interval) NextAfter(start, after time.Time) time.Time {
	if s.Every <= 0 {
		return time.Time{}
	}
	if after.Before(start) {
		return start.Add(s.Every)
	}
	k := after.Sub(start)/s.Every + 1
	return start.Add(k * s.Every)
}

func (s Interval) String() string { return "every " + s.Every.String() }

// Cron follows a robfig/cron expression and ignores start.
type Cron struct {
	Expr  string
	sched cron.Schedule
	loc   *time.Location
}

func (s Cron) NextAfter(_ time.Time, after time.Time) time.Time {
	if s.sched == nil {
		return time.Time{}
	}
	if s.loc != nil {
		after = after.In(s.loc)
	}
	return s.sched.Next(after)
}

func (s Cron) String() string { return "cron " + s.Expr }

// Preview lists the next n due times after start.
func Preview(s Schedule, start time.Time, n int) []time.Time {
	if s == nil || n <= 0 {
		return nil
	}
	out := make([]time.Time, 0, n)
	t := start
	for i := 0; i < n; i++ {
		t = s.NextAfter(start, t)
		if t.IsZero() {
			break
		}
		out = append(out, t)
	}
	return out
}
