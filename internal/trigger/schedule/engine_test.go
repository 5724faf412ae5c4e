package schedule

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"watcher/internal/clock"
	"watcher/internal/metrics"
	"watcher/internal/trigger"
	logx "watcher/pkg/logx"
)

var nopLog = logx.Nop()

func TestEngineFiresOnClockTicks(t *testing.T) {
	clk := clock.NewMock(t0)
	eng := New(Config{TickInterval: time.Second}, clk, nopLog, nil, metrics.NewNoopSink())
	require.NoError(t, eng.Add("w", scheduleSpec("2s")))

	got := make(chan trigger.Event, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, eng.Start(ctx, trigger.ListenerFunc(func(_ context.Context, ev trigger.Event) error {
		got <- ev
		return nil
	})))
	defer eng.Stop(context.Background())

	clk.BlockUntilTickers(1)
	clk.FastForward(time.Second)
	select {
	case ev := <-got:
		t.Fatalf("fired early: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}

	clk.FastForward(time.Second)
	select {
	case ev := <-got:
		assert.Equal(t, "w", ev.WatchID)
		assert.True(t, ev.ScheduledTime.Equal(t0.Add(2*time.Second)))
	case <-time.After(2 * time.Second):
		t.Fatal("schedule did not fire")
	}
}

func TestEngineSurvivesListenerErrors(t *testing.T) {
	clk := clock.NewMock(t0)
	eng := New(Config{TickInterval: time.Second}, clk, nopLog, nil, nil)
	require.NoError(t, eng.Add("w", scheduleSpec("1s")))

	calls := make(chan struct{}, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, eng.Start(ctx, trigger.ListenerFunc(func(context.Context, trigger.Event) error {
		calls <- struct{}{}
		return errors.New("queue saturated")
	})))
	defer eng.Stop(context.Background())

	clk.BlockUntilTickers(1)
	for i := 0; i < 2; i++ {
		clk.FastForward(time.Second)
		select {
		case <-calls:
		case <-time.After(2 * time.Second):
			t.Fatalf("tick %d not delivered", i+1)
		}
	}
}

func TestEngineStartRequiresListener(t *testing.T) {
	eng := New(Config{}, clock.NewMock(t0), nopLog, nil, nil)
	assert.Error(t, eng.Start(context.Background(), nil))
	assert.Equal(t, trigger.TypeSchedule, eng.Type())
	eng.Stop(context.Background())
}

func TestTickDeliversWholePulseAfterCancel(t *testing.T) {
	clk := clock.NewMock(t0)
	eng := New(Config{TickInterval: time.Second}, clk, nopLog, nil, nil)
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, eng.Add(id, scheduleSpec("1m")))
	}
	clk.FastForward(time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	var got []string
	eng.tick(ctx, trigger.ListenerFunc(func(lctx context.Context, ev trigger.Event) error {
		// Shutdown begins while the first event is being delivered.
		cancel()
		assert.NoError(t, lctx.Err())
		got = append(got, ev.WatchID)
		return nil
	}))

	assert.Equal(t, []string{"a", "b", "c"}, got)
	assert.Empty(t, eng.reg.evaluate(clk.Now()), "pulse advanced every trigger")
}
