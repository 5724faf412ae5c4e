package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"watcher/internal/config"
	"watcher/internal/execution"
	"watcher/internal/history"
	"watcher/internal/trigger"
	"watcher/internal/watcher"
)

const warpedConfig = `{
  "watcher": {"mode": "time_warped", "start_time": "2024-03-01T12:00:00Z"},
  "logging": {"level": "error"},
  "history": {"driver": "memory", "capacity": 100},
  "watches": [
    {"id": "tick", "trigger": {"type": "schedule", "schedule": "5m"}, "action": "noop"},
    {"id": "broken", "trigger": {"type": "schedule", "schedule": "1m"}, "action": "fail", "params": {"message": "down"}},
    {"id": "button", "trigger": {"type": "manual"}, "action": "log"},
    {"id": "off", "trigger": {"type": "manual"}, "action": "noop", "disabled": true}
  ]
}`

func newTestApp(t *testing.T, body string) *App {
	t.Helper()
	path := filepath.Join(t.TempDir(), "watcher.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	a, err := New(path)
	require.NoError(t, err)
	require.NoError(t, a.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.Stop(ctx, StopAppStop)
	})
	return a
}

func TestAppRegistersDeclaredWatches(t *testing.T) {
	a := newTestApp(t, warpedConfig)
	svc := a.Watcher()
	assert.Equal(t, watcher.ModeTimeWarped, svc.Mode())

	var ids []string
	for _, w := range svc.Watches() {
		ids = append(ids, w.ID)
	}
	assert.Equal(t, []string{"broken", "button", "tick"}, ids)

	tw, err := svc.TimeWarp()
	require.NoError(t, err)
	evs, err := tw.AdvanceAndPulse(context.Background(), 5*time.Minute)
	require.NoError(t, err)
	assert.Len(t, evs, 2, "tick once, broken coalesced into one")

	ctx := context.Background()
	recs, err := a.History().List(ctx, history.Query{WatchID: "broken"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "failed", recs[0].State)
	assert.Contains(t, recs[0].Error, "down")

	_, err = svc.ExecuteWatch(ctx, "button", nil)
	require.NoError(t, err)
	recs, err = a.History().List(ctx, history.Query{WatchID: "button"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "completed", recs[0].State)

	det, err := a.health()
	require.NoError(t, err)
	assert.Equal(t, 3, det["watches"])
}

func TestApplyConfigReconcilesWatches(t *testing.T) {
	a := newTestApp(t, warpedConfig)
	ctx := context.Background()
	oldCfg := a.cfgm.Get()

	newCfg, err := config.Decode("watcher.json", []byte(warpedConfig))
	require.NoError(t, err)
	newCfg.Watches = []config.WatchConfig{
		{ID: "tick", Trigger: config.TriggerConfig{Type: "schedule", Schedule: "1m"}, Action: "noop"},
		{ID: "button", Trigger: config.TriggerConfig{Type: "manual"}, Action: "log"},
		{ID: "fresh", Trigger: config.TriggerConfig{Type: "manual"}, Action: "noop"},
	}
	newCfg.Executor.Workers = 16

	a.applyConfig(ctx, oldCfg, newCfg)

	var ids []string
	for _, w := range a.Watcher().Watches() {
		ids = append(ids, w.ID)
	}
	assert.Equal(t, []string{"button", "fresh", "tick"}, ids)

	tw, err := a.Watcher().TimeWarp()
	require.NoError(t, err)
	evs, err := tw.AdvanceAndPulse(ctx, time.Minute)
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Equal(t, "tick", evs[0].WatchID)

	// Executor settings are fixed for the life of the process.
	assert.Equal(t, 1, a.Watcher().Components().Executor.MaxConcurrency())
}

func TestReloadValidatorUsesLiveEngines(t *testing.T) {
	a := newTestApp(t, warpedConfig)
	cfg, err := config.Decode("watcher.json", []byte(warpedConfig))
	require.NoError(t, err)
	require.NoError(t, a.validateReload(context.Background(), cfg))

	// Feb 30th parses as cron but never comes.
	cfg.Watches = append(cfg.Watches, config.WatchConfig{
		ID:      "never",
		Trigger: config.TriggerConfig{Type: "schedule", Schedule: "0 0 30 2 *"},
		Action:  "noop",
	})
	require.NoError(t, config.Validate(cfg), "structurally valid")
	err = a.validateReload(context.Background(), cfg)
	assert.ErrorIs(t, err, trigger.ErrInvalidSpec)
	assert.ErrorContains(t, err, "never")
}

func TestNewRejectsBadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watcher.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"watcher":{"mode":"warp9"}}`), 0o600))
	_, err := New(path)
	assert.ErrorContains(t, err, "watcher.mode")

	_, err = New(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestMapping(t *testing.T) {
	cfg := &config.Config{
		Executor: config.ExecutorConfig{Workers: 3, Backpressure: "block", DefaultTimeout: "2s"},
		History:  &config.HistoryConfig{Driver: "sqlite"},
		Ops:      config.OpsConfig{Enabled: true, WriteTimeout: "30s"},
	}
	ec, err := mapExecutorConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, execution.Config{Workers: 3, Backpressure: execution.BackpressureBlock, DefaultTimeout: 2 * time.Second}, ec)

	_, err = mapHistoryConfig(cfg)
	assert.ErrorContains(t, err, "history.path is required")
	cfg.History.Path = "x.db"
	hc, err := mapHistoryConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, time.Second, hc.BusyTimeout)

	oc, err := mapOpsConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, oc.WriteTimeout)
	assert.Equal(t, 10*time.Second, oc.ReadTimeout)

	w, err := BuildWatch(config.WatchConfig{ID: " w ", Trigger: config.TriggerConfig{Type: "manual"}, Action: "Sleep", Params: map[string]string{"duration": "1ms"}, Timeout: "5s"})
	require.NoError(t, err)
	assert.Equal(t, "w", w.ID)
	assert.Equal(t, "sleep", w.Kind)
	assert.Equal(t, 5*time.Second, w.Timeout)

	_, err = BuildWatch(config.WatchConfig{ID: "w", Action: "teleport"})
	assert.Error(t, err)
}
