package execution

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"watcher/internal/clock"
	"watcher/internal/history"
	"watcher/internal/trigger"
	"watcher/internal/watch"
	logx "watcher/pkg/logx"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func testDeps(t *testing.T) (Deps, *clock.Mock, *history.Memory) {
	t.Helper()
	clk := clock.NewMock(t0)
	h := history.NewMemory(100)
	return Deps{Clock: clk, Log: logx.Nop(), History: h}, clk, h
}

func putWatch(t *testing.T, s *watch.MemoryStore, id string, fn watch.Action) {
	t.Helper()
	require.NoError(t, s.Put(watch.Watch{ID: id, Trigger: trigger.Spec{Type: trigger.TypeManual}, Action: fn}))
}

func fired(watchID string, data map[string]any) trigger.Event {
	return trigger.NewEvent(watchID, trigger.TypeManual, t0, t0, data)
}

func waitAll(t *testing.T, tasks ...*Task) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, tk := range tasks {
		select {
		case <-tk.Done():
		case <-ctx.Done():
			t.Fatalf("task %s (%s) did not finish", tk.ID, tk.WatchID())
		}
	}
}
