// Package clock is the only place trigger evaluation reads time from.
//
// Real is bound once per process. Mock is owned by a test (or a time-warped
// process) and only moves when told to.
package clock

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Ticker delivers pulses for the scheduling loop.
type Ticker = clockwork.Ticker

type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
}

// Real reads the system clock.
type Real struct {
	c clockwork.Clock
}

func NewReal() *Real { return &Real{c: clockwork.NewRealClock()} }

func (r *Real) Now() time.Time                   { return r.c.Now() }
func (r *Real) NewTicker(d time.Duration) Ticker { return r.c.NewTicker(d) }

// Mock is a manually driven clock. Tickers created from it fire only when
// the mock is moved past their period.
//
// Mutations are expected from a single test goroutine; reads are safe from any.
type Mock struct {
	mu   sync.Mutex
	fake *clockwork.FakeClock
}

// NewMock returns a mock clock frozen at start (UTC now when zero).
func NewMock(start time.Time) *Mock {
	if start.IsZero() {
		start = time.Now().UTC()
	}
	return &Mock{fake: clockwork.NewFakeClockAt(start)}
}

func (m *Mock) Now() time.Time { return m.fake.Now() }

func (m *Mock) NewTicker(d time.Duration) Ticker { return m.fake.NewTicker(d) }

// SetTime moves the clock to t (forwards or backwards).
func (m *Mock) SetTime(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fake.Advance(t.Sub(m.fake.Now()))
}

// FastForward moves the clock forward by d. Negative durations are ignored.
func (m *Mock) FastForward(d time.Duration) {
	if d <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fake.Advance(d)
}

func (m *Mock) FastForwardSeconds(n int) { m.FastForward(time.Duration(n) * time.Second) }

// Rewind moves the clock backwards by d. Tickers never fire on a rewind.
func (m *Mock) Rewind(d time.Duration) {
	if d <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fake.Advance(-d)
}

// BlockUntilTickers waits until n tickers/timers are registered on the mock.
// Useful before advancing a clock that a background loop is waiting on.
func (m *Mock) BlockUntilTickers(n int) { m.fake.BlockUntil(n) }
