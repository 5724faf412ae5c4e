package config

import (
	"reflect"
	"sort"
	"strings"

	logx "watcher/pkg/logx"
)

// Sections that are read once at startup. A reload that changes them is
// reported but not applied.
var restartSections = map[string]bool{
	"watcher":  true,
	"executor": true,
	"history":  true,
}

// RestartRequired reports whether section only takes effect after a restart.
func RestartRequired(section string) bool { return restartSections[section] }

// WatchDiff is the change to the declared watch set, ids sorted.
type WatchDiff struct {
	Added   []string
	Changed []string
	Removed []string
}

func (d WatchDiff) Empty() bool {
	return len(d.Added) == 0 && len(d.Changed) == 0 && len(d.Removed) == 0
}

// SummarizeConfigChange returns (1) a sorted list of changed sections,
// (2) safe structured attrs for logging (never includes the ops token),
// and (3) the watch set diff.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field, WatchDiff) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 16)

	if normWatcher(oldCfg.Watcher) != normWatcher(newCfg.Watcher) {
		changed = append(changed, "watcher")
		attrs = append(attrs,
			logx.String("watcher.mode", newCfg.Watcher.EffectiveMode()),
			logx.String("watcher.tick_interval", strings.TrimSpace(newCfg.Watcher.TickInterval)),
			logx.String("watcher.timezone", strings.TrimSpace(newCfg.Watcher.Timezone)),
		)
	}

	if !reflect.DeepEqual(oldCfg.Executor, newCfg.Executor) {
		changed = append(changed, "executor")
		e := newCfg.Executor
		attrs = append(attrs,
			logx.Int("executor.workers", e.Workers),
			logx.Int("executor.queue_size", e.QueueSize),
			logx.String("executor.backpressure", strings.TrimSpace(e.Backpressure)),
			logx.Bool("executor.concurrent_per_watch", e.ConcurrentPerWatch),
			logx.String("executor.default_timeout", strings.TrimSpace(e.DefaultTimeout)),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	// nil means the in-memory default.
	var oh, nh HistoryConfig
	if oldCfg.History != nil {
		oh = *oldCfg.History
	}
	if newCfg.History != nil {
		nh = *newCfg.History
	}
	if oh != nh {
		changed = append(changed, "history")
		attrs = append(attrs,
			logx.String("history.driver", strings.TrimSpace(nh.Driver)),
			logx.Bool("history.path_set", strings.TrimSpace(nh.Path) != ""),
			logx.Int("history.capacity", nh.Capacity),
		)
	}

	// Ops (never log token)
	if oldCfg.Ops != newCfg.Ops {
		changed = append(changed, "ops")
		attrs = append(attrs,
			logx.Bool("ops.enabled", newCfg.Ops.Enabled),
			logx.String("ops.addr", strings.TrimSpace(newCfg.Ops.Addr)),
			logx.Bool("ops.token_set", strings.TrimSpace(newCfg.Ops.Token) != ""),
			logx.Bool("ops.allow_insecure", newCfg.Ops.AllowInsecure),
		)
	}

	wd := DiffWatches(oldCfg.ActiveWatches(), newCfg.ActiveWatches())
	if !wd.Empty() {
		changed = append(changed, "watches")
		attrs = append(attrs,
			logx.Int("watches.added", len(wd.Added)),
			logx.Int("watches.changed", len(wd.Changed)),
			logx.Int("watches.removed", len(wd.Removed)),
		)
	}

	sort.Strings(changed)
	return changed, attrs, wd
}

func normWatcher(w WatcherConfig) WatcherConfig {
	w.Mode = w.EffectiveMode()
	w.TickInterval = strings.TrimSpace(w.TickInterval)
	w.Timezone = strings.TrimSpace(w.Timezone)
	w.StartTime = strings.TrimSpace(w.StartTime)
	return w
}

// DiffWatches compares two watch lists by id.
func DiffWatches(oldW, newW []WatchConfig) WatchDiff {
	oldM := indexWatches(oldW)
	newM := indexWatches(newW)

	var d WatchDiff
	for id, nh := range newM {
		oh, ok := oldM[id]
		switch {
		case !ok:
			d.Added = append(d.Added, id)
		case oh != nh:
			d.Changed = append(d.Changed, id)
		}
	}
	for id := range oldM {
		if _, ok := newM[id]; !ok {
			d.Removed = append(d.Removed, id)
		}
	}
	sort.Strings(d.Added)
	sort.Strings(d.Changed)
	sort.Strings(d.Removed)
	return d
}

func indexWatches(ws []WatchConfig) map[string]uint64 {
	m := make(map[string]uint64, len(ws))
	for _, w := range ws {
		id := strings.TrimSpace(w.ID)
		if id == "" {
			continue
		}
		m[id] = hashJSON(w)
	}
	return m
}
