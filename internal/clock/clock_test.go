package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func TestMockDoesNotAdvanceImplicitly(t *testing.T) {
	t.Parallel()
	m := NewMock(t0)
	assert.True(t, m.Now().Equal(t0))
	time.Sleep(5 * time.Millisecond)
	assert.True(t, m.Now().Equal(t0))
}

func TestMockMutations(t *testing.T) {
	t.Parallel()
	m := NewMock(t0)

	m.FastForward(5 * time.Minute)
	assert.True(t, m.Now().Equal(t0.Add(5*time.Minute)))

	m.FastForwardSeconds(30)
	assert.True(t, m.Now().Equal(t0.Add(5*time.Minute+30*time.Second)))

	m.Rewind(30 * time.Second)
	assert.True(t, m.Now().Equal(t0.Add(5*time.Minute)))

	m.SetTime(t0.Add(-time.Hour))
	assert.True(t, m.Now().Equal(t0.Add(-time.Hour)))

	m.FastForward(-time.Hour)
	assert.True(t, m.Now().Equal(t0.Add(-time.Hour)))
}

func TestMockTickerFiresOnAdvance(t *testing.T) {
	t.Parallel()
	m := NewMock(t0)
	tk := m.NewTicker(time.Second)
	defer tk.Stop()

	select {
	case <-tk.Chan():
		t.Fatal("ticker fired without advancing")
	default:
	}

	m.FastForward(time.Second)
	select {
	case <-tk.Chan():
	case <-time.After(time.Second):
		t.Fatal("ticker did not fire after advance")
	}
}

func TestRealClockMovesForward(t *testing.T) {
	t.Parallel()
	var c Clock = NewReal()
	a := c.Now()
	time.Sleep(2 * time.Millisecond)
	assert.True(t, c.Now().After(a))
}
