package app

import (
	"fmt"
	"strings"
	"time"

	"watcher/internal/config"
	"watcher/internal/execution"
	"watcher/internal/history"
	"watcher/internal/observability/ops"
	"watcher/internal/trigger"
	"watcher/internal/watch"
	"watcher/internal/watcher"
	logx "watcher/pkg/logx"
)

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapHistoryConfig(cfg *config.Config) (history.Config, error) {
	if cfg.History == nil {
		return history.Config{Driver: "memory"}, nil
	}
	hc := cfg.History
	driver := strings.ToLower(strings.TrimSpace(hc.Driver))
	path := strings.TrimSpace(hc.Path)
	if (driver == "file" || driver == "sqlite" || driver == "sqlite3") && path == "" {
		return history.Config{}, fmt.Errorf("history.path is required when history.driver=%s", driver)
	}
	busy, err := config.ParseDurationOrDefault("history.busy_timeout", hc.BusyTimeout, time.Second)
	if err != nil {
		return history.Config{}, err
	}
	return history.Config{Driver: driver, Path: path, Capacity: hc.Capacity, BusyTimeout: busy}, nil
}

func mapWatcherConfig(cfg *config.Config) (watcher.Mode, watcher.Config, error) {
	mode, err := watcher.ParseMode(cfg.Watcher.Mode)
	if err != nil {
		return "", watcher.Config{}, err
	}
	tick, err := config.ParseDurationField("watcher.tick_interval", cfg.Watcher.TickInterval)
	if err != nil {
		return "", watcher.Config{}, err
	}
	loc, err := cfg.Watcher.Location()
	if err != nil {
		return "", watcher.Config{}, err
	}
	start, err := cfg.Watcher.Start()
	if err != nil {
		return "", watcher.Config{}, err
	}
	exec, err := mapExecutorConfig(cfg)
	if err != nil {
		return "", watcher.Config{}, err
	}
	return mode, watcher.Config{TickInterval: tick, Location: loc, Start: start, Executor: exec}, nil
}

func mapExecutorConfig(cfg *config.Config) (execution.Config, error) {
	e := cfg.Executor
	bp, err := execution.ParseBackpressure(e.Backpressure)
	if err != nil {
		return execution.Config{}, fmt.Errorf("executor.backpressure: %w", err)
	}
	timeout, err := config.ParseDurationField("executor.default_timeout", e.DefaultTimeout)
	if err != nil {
		return execution.Config{}, err
	}
	return execution.Config{
		Workers:            e.Workers,
		QueueSize:          e.QueueSize,
		Backpressure:       bp,
		ConcurrentPerWatch: e.ConcurrentPerWatch,
		DefaultTimeout:     timeout,
		HistorySize:        e.HistorySize,
	}, nil
}

func mapOpsConfig(cfg *config.Config) (ops.Config, error) {
	o := cfg.Ops
	read, err := config.ParseDurationOrDefault("ops.read_timeout", o.ReadTimeout, 10*time.Second)
	if err != nil {
		return ops.Config{}, err
	}
	write, err := config.ParseDurationField("ops.write_timeout", o.WriteTimeout)
	if err != nil {
		return ops.Config{}, err
	}
	idle, err := config.ParseDurationOrDefault("ops.idle_timeout", o.IdleTimeout, time.Minute)
	if err != nil {
		return ops.Config{}, err
	}
	return ops.Config{
		Enabled:              o.Enabled,
		Addr:                 o.Addr,
		Prefix:               o.Prefix,
		Token:                o.Token,
		AllowInsecure:        o.AllowInsecure,
		ReadTimeout:          read,
		WriteTimeout:         write,
		IdleTimeout:          idle,
		MutexProfileFraction: o.MutexProfileFraction,
		BlockProfileRate:     o.BlockProfileRate,
	}, nil
}

// BuildWatch turns a declared watch into a runnable one.
func BuildWatch(wc config.WatchConfig) (watch.Watch, error) {
	action, err := watch.Builtin(wc.Action, wc.Params)
	if err != nil {
		return watch.Watch{}, fmt.Errorf("watch %s: %w", wc.ID, err)
	}
	timeout, err := config.ParseDurationField("watches["+wc.ID+"].timeout", wc.Timeout)
	if err != nil {
		return watch.Watch{}, err
	}
	return watch.Watch{
		ID:      strings.TrimSpace(wc.ID),
		Trigger: trigger.Spec{Type: wc.Trigger.Type, Schedule: wc.Trigger.Schedule},
		Action:  action,
		Timeout: timeout,
		Kind:    strings.ToLower(strings.TrimSpace(wc.Action)),
	}, nil
}
