package watcher

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"watcher/internal/eventbus"
	"watcher/internal/execution"
	"watcher/internal/history"
	"watcher/internal/trigger"
	"watcher/internal/watch"
	logx "watcher/pkg/logx"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type harness struct {
	svc  *Service
	tw   *TimeWarp
	hist *history.Memory
	runs map[string]*atomic.Int32
}

func newWarped(t *testing.T) *harness {
	t.Helper()
	h := &harness{hist: history.NewMemory(100), runs: map[string]*atomic.Int32{}}
	c, err := Build(ModeTimeWarped, Config{Start: t0}, Deps{Log: logx.Nop(), Bus: eventbus.New(), History: h.hist})
	require.NoError(t, err)
	h.svc = New(c, logx.Nop())
	h.tw, err = h.svc.TimeWarp()
	require.NoError(t, err)
	require.NoError(t, h.svc.Start(context.Background()))
	t.Cleanup(func() { h.svc.Stop(context.Background()) })
	return h
}

func (h *harness) put(t *testing.T, id string, spec trigger.Spec) {
	t.Helper()
	n := &atomic.Int32{}
	h.runs[id] = n
	require.NoError(t, h.svc.PutWatch(context.Background(), watch.Watch{
		ID:      id,
		Trigger: spec,
		Action: func(context.Context, watch.Context) error {
			n.Add(1)
			return nil
		},
	}))
}

func (h *harness) records(t *testing.T, id string) []history.Record {
	t.Helper()
	recs, err := h.hist.List(context.Background(), history.Query{WatchID: id})
	require.NoError(t, err)
	return recs
}

func every(s string) trigger.Spec { return trigger.Spec{Type: trigger.TypeSchedule, Schedule: s} }

func TestScheduledWatchFiresOncePerPeriod(t *testing.T) {
	h := newWarped(t)
	ctx := context.Background()
	h.put(t, "w1", every("5m"))

	evs, err := h.tw.AdvanceAndPulse(ctx, 5*time.Minute)
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Equal(t, "w1", evs[0].WatchID)
	assert.True(t, evs[0].ScheduledTime.Equal(t0.Add(5*time.Minute)))
	assert.Equal(t, int32(1), h.runs["w1"].Load(), "task ran before Pulse returned")

	// One minute later: not due again, with or without a pulse.
	h.tw.Advance(time.Minute)
	assert.Empty(t, h.tw.Evaluate())
	evs, err = h.tw.Pulse(ctx)
	require.NoError(t, err)
	assert.Empty(t, evs)

	evs, err = h.tw.AdvanceAndPulse(ctx, 4*time.Minute)
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.True(t, evs[0].ScheduledTime.Equal(t0.Add(10*time.Minute)))

	recs := h.records(t, "w1")
	require.Len(t, recs, 2)
	for _, r := range recs {
		assert.Equal(t, "completed", r.State)
	}
}

func TestStepFiresEveryPeriod(t *testing.T) {
	h := newWarped(t)
	h.put(t, "fast", every("1m"))
	h.put(t, "slow", every("5m"))

	evs, err := h.tw.Step(context.Background(), 10*time.Minute, time.Minute)
	require.NoError(t, err)
	assert.Len(t, evs, 12)
	assert.Equal(t, int32(10), h.runs["fast"].Load())
	assert.Equal(t, int32(2), h.runs["slow"].Load())
}

func TestDeletedWatchNeverFiresAgain(t *testing.T) {
	h := newWarped(t)
	ctx := context.Background()
	h.put(t, "w", every("1m"))
	h.put(t, "other", every("1m"))

	_, err := h.tw.AdvanceAndPulse(ctx, time.Minute)
	require.NoError(t, err)
	assert.True(t, h.svc.DeleteWatch(ctx, "w"))
	assert.False(t, h.svc.DeleteWatch(ctx, "w"))

	evs, err := h.tw.Step(ctx, 10*time.Minute, time.Minute)
	require.NoError(t, err)
	for _, ev := range evs {
		assert.NotEqual(t, "w", ev.WatchID)
	}
	assert.Equal(t, int32(1), h.runs["w"].Load())
	assert.Equal(t, int32(11), h.runs["other"].Load())
}

func TestForcedTriggerOfFarFutureSchedule(t *testing.T) {
	h := newWarped(t)
	ctx := context.Background()
	h.put(t, "yearly", every("@yearly"))
	next, ok := h.svc.Next("yearly")
	require.True(t, ok)

	ev, err := h.tw.Trigger(ctx, "yearly", map[string]any{"why": "test"})
	require.NoError(t, err)
	assert.Equal(t, "test", ev.Data["why"])
	assert.Equal(t, int32(1), h.runs["yearly"].Load())
	require.Len(t, h.records(t, "yearly"), 1)

	after, _ := h.svc.Next("yearly")
	assert.True(t, next.Equal(after), "forcing does not move the schedule")

	_, err = h.tw.Trigger(ctx, "ghost", nil)
	assert.ErrorIs(t, err, trigger.ErrNotRegistered)
}

func TestExecuteWatch(t *testing.T) {
	h := newWarped(t)
	ctx := context.Background()
	h.put(t, "sched", every("1h"))

	ev, err := h.svc.ExecuteWatch(ctx, "sched", nil)
	require.NoError(t, err)
	assert.Equal(t, trigger.TypeManual, ev.Type)
	assert.Equal(t, int32(1), h.runs["sched"].Load())

	_, err = h.svc.ExecuteWatch(ctx, "missing", nil)
	assert.ErrorIs(t, err, watch.ErrNotFound)
}

func TestPutWatchRejectsBadTriggerKeepsPrevious(t *testing.T) {
	h := newWarped(t)
	ctx := context.Background()
	h.put(t, "w", every("5m"))

	err := h.svc.PutWatch(ctx, watch.Watch{
		ID:      "w",
		Trigger: every("not a schedule"),
		Action:  func(context.Context, watch.Context) error { return nil },
	})
	assert.ErrorIs(t, err, trigger.ErrInvalidSpec)

	err = h.svc.PutWatch(ctx, watch.Watch{
		ID:      "x",
		Trigger: trigger.Spec{Type: "webhook"},
		Action:  func(context.Context, watch.Context) error { return nil },
	})
	assert.ErrorIs(t, err, trigger.ErrInvalidSpec)
	require.Len(t, h.svc.Watches(), 1)

	evs, err := h.tw.AdvanceAndPulse(ctx, 5*time.Minute)
	require.NoError(t, err)
	assert.Len(t, evs, 1)
	assert.Equal(t, int32(1), h.runs["w"].Load())
}

func TestReplaceAcrossTriggerTypes(t *testing.T) {
	h := newWarped(t)
	ctx := context.Background()
	h.put(t, "w", every("1m"))
	h.put(t, "w", trigger.Spec{Type: trigger.TypeManual})

	typ, ok := h.svc.Components().Triggers.Registered("w")
	require.True(t, ok)
	assert.Equal(t, trigger.TypeManual, typ)

	evs, err := h.tw.AdvanceAndPulse(ctx, 5*time.Minute)
	require.NoError(t, err)
	assert.Empty(t, evs)
}

func TestFailingWatchIsRecordedAndIsolated(t *testing.T) {
	h := newWarped(t)
	ctx := context.Background()
	require.NoError(t, h.svc.PutWatch(ctx, watch.Watch{
		ID:      "boom",
		Trigger: every("1m"),
		Action:  func(context.Context, watch.Context) error { panic("kaboom") },
	}))
	require.NoError(t, h.svc.PutWatch(ctx, watch.Watch{
		ID:      "bad",
		Trigger: every("1m"),
		Action:  func(context.Context, watch.Context) error { return errors.New("nope") },
	}))
	h.put(t, "ok", every("1m"))

	evs, err := h.tw.AdvanceAndPulse(ctx, time.Minute)
	require.NoError(t, err)
	assert.Len(t, evs, 3)
	assert.Equal(t, int32(1), h.runs["ok"].Load())

	assert.Equal(t, "failed", h.records(t, "boom")[0].State)
	assert.Contains(t, h.records(t, "boom")[0].Error, "kaboom")
	assert.Equal(t, "failed", h.records(t, "bad")[0].State)

	snap := h.svc.Snapshot()
	assert.Equal(t, ModeTimeWarped, snap.Mode)
	assert.True(t, snap.Now.Equal(t0.Add(time.Minute)))
	assert.Equal(t, 3, snap.Watches)
	assert.Equal(t, 3, snap.Triggers[trigger.TypeSchedule])
	assert.Equal(t, uint64(2), snap.Executor.Failed)
	assert.Equal(t, uint64(1), snap.Executor.Completed)
}

func TestBuildUnknownMode(t *testing.T) {
	_, err := Build(Mode("fast"), Config{}, Deps{})
	assert.Error(t, err)

	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeProduction, m)
	_, err = ParseMode("sideways")
	assert.Error(t, err)
}

func TestProductionExecutesOnWorkers(t *testing.T) {
	hist := history.NewMemory(10)
	c, err := Build(ModeProduction, Config{
		TickInterval: 10 * time.Millisecond,
		Executor:     execution.Config{Workers: 2, QueueSize: 4},
	}, Deps{History: hist})
	require.NoError(t, err)
	svc := New(c, logx.Nop())

	_, err = svc.TimeWarp()
	assert.ErrorIs(t, err, ErrNotTimeWarped)

	ran := make(chan string, 4)
	require.NoError(t, svc.PutWatch(context.Background(), watch.Watch{
		ID:      "p",
		Trigger: trigger.Spec{Type: trigger.TypeManual},
		Action: func(_ context.Context, wc watch.Context) error {
			ran <- wc.TaskID
			return nil
		},
	}))

	ctx := context.Background()
	_, err = svc.ExecuteWatch(ctx, "p", nil)
	assert.ErrorIs(t, err, trigger.ErrNotStarted)

	require.NoError(t, svc.Start(ctx))
	_, err = svc.ExecuteWatch(ctx, "p", nil)
	require.NoError(t, err)
	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("task never ran")
	}

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	svc.Stop(stopCtx)
	assert.False(t, svc.Running())

	recs, err := hist.List(ctx, history.Query{WatchID: "p"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "completed", recs[0].State)
}

func TestReplacingActionKeepsSchedulePhase(t *testing.T) {
	h := newWarped(t)
	ctx := context.Background()
	h.put(t, "w", every("5m"))
	h.tw.Advance(3 * time.Minute)

	// Same trigger, new action: the next firing stays at T0+5m.
	h.put(t, "w", every("5m"))
	next, ok := h.svc.Next("w")
	require.True(t, ok)
	assert.True(t, next.Equal(t0.Add(5*time.Minute)))

	evs, err := h.tw.AdvanceAndPulse(ctx, 2*time.Minute)
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Equal(t, int32(1), h.runs["w"].Load())
}
