package config

// Config is the on-disk configuration, JSON or YAML.
//
// Durations are Go duration strings ("500ms", "10s", "1m").
type Config struct {
	Watcher  WatcherConfig  `json:"watcher"`
	Executor ExecutorConfig `json:"executor"`
	Logging  LoggingConfig  `json:"logging"`

	// History is optional; omitted means an in-memory ring.
	History *HistoryConfig `json:"history,omitempty"`
	Ops     OpsConfig      `json:"ops,omitempty"`

	Watches []WatchConfig `json:"watches"`
}

const (
	ModeProduction = "production"
	ModeTimeWarped = "time_warped"
)

// WatcherConfig selects the component set. It is read once at startup;
// a reload that changes it is logged and ignored.
type WatcherConfig struct {
	// Mode is "production" (default) or "time_warped".
	Mode string `json:"mode,omitempty"`
	// TickInterval is how often the schedule engine wakes (default 500ms).
	TickInterval string `json:"tick_interval,omitempty"`
	// Timezone for cron schedules (IANA name, default UTC).
	Timezone string `json:"timezone,omitempty"`
	// StartTime pins the mock clock in time_warped mode (RFC3339).
	// Empty means the wall time at startup.
	StartTime string `json:"start_time,omitempty"`
}

// ExecutorConfig controls the task executor.
//
// Defaults (when fields are omitted/zero):
//   - workers: 4
//   - queue_size: 256
//   - backpressure: "reject"
//   - default_timeout: "0s" (disabled)
//   - history_size: 200
type ExecutorConfig struct {
	Workers   int `json:"workers,omitempty"`
	QueueSize int `json:"queue_size,omitempty"`
	// Backpressure is "reject" or "block".
	Backpressure       string `json:"backpressure,omitempty"`
	ConcurrentPerWatch bool   `json:"concurrent_per_watch,omitempty"`
	DefaultTimeout     string `json:"default_timeout,omitempty"`
	HistorySize        int    `json:"history_size,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// HistoryConfig controls where task outcomes are recorded.
//
// Example:
//
//	"history": { "driver": "sqlite", "path": "./watcher.db", "capacity": 5000 }
type HistoryConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`
	Capacity    int    `json:"capacity,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite
}

// OpsConfig controls the optional ops HTTP server (/healthz, /metrics, pprof).
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:6060").
//   - If you bind to a non-loopback address, set a token or explicitly allow_insecure.
type OpsConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`   // default: "127.0.0.1:6060"
	Prefix        string `json:"prefix,omitempty"` // default: "/debug/pprof/"
	Token         string `json:"token,omitempty"`  // optional bearer token (do not log)
	AllowInsecure bool   `json:"allow_insecure,omitempty"`

	// WriteTimeout defaults to 0 (disabled) so /profile (30s+) works.
	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`

	// Runtime profiling rates. Leave 0 to keep Go defaults.
	MutexProfileFraction int `json:"mutex_profile_fraction,omitempty"`
	BlockProfileRate     int `json:"block_profile_rate,omitempty"`
}

// WatchConfig declares a watch backed by a builtin action.
type WatchConfig struct {
	ID      string            `json:"id"`
	Trigger TriggerConfig     `json:"trigger"`
	Action  string            `json:"action"`
	Params  map[string]string `json:"params,omitempty"`
	Timeout string            `json:"timeout,omitempty"`
	// Disabled keeps the entry in the file without registering it.
	Disabled bool `json:"disabled,omitempty"`
}

type TriggerConfig struct {
	Type     string `json:"type"`
	Schedule string `json:"schedule,omitempty"`
}

// ActiveWatches returns the watches that are not disabled, in file order.
func (c *Config) ActiveWatches() []WatchConfig {
	if c == nil {
		return nil
	}
	out := make([]WatchConfig, 0, len(c.Watches))
	for _, w := range c.Watches {
		if !w.Disabled {
			out = append(out, w)
		}
	}
	return out
}
