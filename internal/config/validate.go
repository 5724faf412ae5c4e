package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"watcher/internal/execution"
	"watcher/internal/history"
	"watcher/internal/trigger"
	"watcher/internal/trigger/schedule"
	"watcher/internal/watch"
	logx "watcher/pkg/logx"
)

// EffectiveMode is Mode lower-cased, defaulting to production.
func (c WatcherConfig) EffectiveMode() string {
	m := strings.ToLower(strings.TrimSpace(c.Mode))
	if m == "" {
		return ModeProduction
	}
	return m
}

// Location loads Timezone; empty means UTC.
func (c WatcherConfig) Location() (*time.Location, error) {
	tz := strings.TrimSpace(c.Timezone)
	if tz == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("watcher.timezone: %w", err)
	}
	return loc, nil
}

// Start parses StartTime; the zero time means "now".
func (c WatcherConfig) Start() (time.Time, error) {
	s := strings.TrimSpace(c.StartTime)
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("watcher.start_time: %w", err)
	}
	return t, nil
}

// Validate reports every problem in cfg, not just the first.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	switch cfg.Watcher.EffectiveMode() {
	case ModeProduction, ModeTimeWarped:
	default:
		add(fmt.Errorf("watcher.mode: unknown mode %q (use %s or %s)", cfg.Watcher.Mode, ModeProduction, ModeTimeWarped))
	}
	_, err := ParseDurationField("watcher.tick_interval", cfg.Watcher.TickInterval)
	add(err)
	loc, err := cfg.Watcher.Location()
	add(err)
	_, err = cfg.Watcher.Start()
	add(err)

	e := cfg.Executor
	if e.Workers < 0 {
		add(errors.New("executor.workers must be >= 0"))
	}
	if e.QueueSize < 0 {
		add(errors.New("executor.queue_size must be >= 0"))
	}
	if e.HistorySize < 0 {
		add(errors.New("executor.history_size must be >= 0"))
	}
	if _, err := execution.ParseBackpressure(e.Backpressure); err != nil {
		add(fmt.Errorf("executor.backpressure: %w", err))
	}
	_, err = ParseDurationField("executor.default_timeout", e.DefaultTimeout)
	add(err)

	if lvl := strings.TrimSpace(cfg.Logging.Level); lvl != "" && !logx.ValidLevel(lvl) {
		add(fmt.Errorf("logging.level: unknown level %q", cfg.Logging.Level))
	}
	if cfg.Logging.File.Enabled && strings.TrimSpace(cfg.Logging.File.Path) == "" {
		add(errors.New("logging.file.path required when file logging is enabled"))
	}

	if h := cfg.History; h != nil {
		if !history.ValidDriver(h.Driver) {
			add(fmt.Errorf("history.driver: unknown driver %q", h.Driver))
		}
		if h.Capacity < 0 {
			add(errors.New("history.capacity must be >= 0"))
		}
		_, err = ParseDurationField("history.busy_timeout", h.BusyTimeout)
		add(err)
	}

	for _, f := range []struct{ path, raw string }{
		{"ops.read_timeout", cfg.Ops.ReadTimeout},
		{"ops.write_timeout", cfg.Ops.WriteTimeout},
		{"ops.idle_timeout", cfg.Ops.IdleTimeout},
	} {
		_, err = ParseDurationField(f.path, f.raw)
		add(err)
	}

	if loc == nil {
		loc = time.UTC
	}
	seen := map[string]int{}
	for i, w := range cfg.Watches {
		add(validateWatch(i, w, loc, seen))
	}
	return errors.Join(errs...)
}

func validateWatch(i int, w WatchConfig, loc *time.Location, seen map[string]int) error {
	id := strings.TrimSpace(w.ID)
	path := fmt.Sprintf("watches[%d]", i)
	if id == "" {
		return fmt.Errorf("%s.id required", path)
	}
	path = fmt.Sprintf("watches[%s]", id)
	if prev, dup := seen[id]; dup {
		return fmt.Errorf("%s: duplicate id (first at index %d)", path, prev)
	}
	seen[id] = i

	var errs []error
	switch typ := strings.ToLower(strings.TrimSpace(w.Trigger.Type)); typ {
	case trigger.TypeSchedule:
		if _, err := schedule.Parse(w.Trigger.Schedule, loc); err != nil {
			errs = append(errs, fmt.Errorf("%s.trigger: %w", path, err))
		}
	case trigger.TypeManual:
		if strings.TrimSpace(w.Trigger.Schedule) != "" {
			errs = append(errs, fmt.Errorf("%s.trigger: manual triggers take no schedule", path))
		}
	default:
		errs = append(errs, fmt.Errorf("%s.trigger.type: unknown type %q", path, w.Trigger.Type))
	}
	if _, err := watch.Builtin(w.Action, w.Params); err != nil {
		errs = append(errs, fmt.Errorf("%s.action: %w", path, err))
	}
	if _, err := ParseDurationField(path+".timeout", w.Timeout); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
