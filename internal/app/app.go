package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	sd "github.com/coreos/go-systemd/v22/daemon"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"watcher/internal/config"
	"watcher/internal/eventbus"
	"watcher/internal/history"
	"watcher/internal/metrics"
	"watcher/internal/observability/ops"
	"watcher/internal/runtime/supervisor"
	"watcher/internal/watcher"
	logx "watcher/pkg/logx"
)

// App wires config, logging, metrics, history, the watcher and the ops
// server into one process.
type App struct {
	cfgPath string
	cfgm    *config.ConfigManager
	sup     *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus
	reg  *prometheus.Registry
	hist history.Store

	watcher *watcher.Service
	ops     *ops.Service
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, root := logx.New(mapLogConfig(cfg))
	log := root.With(logx.String("comp", "app"))

	bus := eventbus.New()
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	sink := metrics.NewPrometheusSink(reg, root.With(logx.String("comp", "metrics")))

	hc, err := mapHistoryConfig(cfg)
	if err != nil {
		return nil, err
	}
	hist, err := history.Open(hc, root.With(logx.String("comp", "history")))
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}

	mode, wcfg, err := mapWatcherConfig(cfg)
	if err != nil {
		_ = hist.Close()
		return nil, err
	}
	comps, err := watcher.Build(mode, wcfg, watcher.Deps{
		Log:     root,
		Bus:     bus,
		Metrics: sink,
		History: hist,
	})
	if err != nil {
		_ = hist.Close()
		return nil, err
	}
	svc := watcher.New(comps, root)

	opsCfg, err := mapOpsConfig(cfg)
	if err != nil {
		_ = hist.Close()
		return nil, err
	}

	a := &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		reg:     reg,
		hist:    hist,
		watcher: svc,
	}
	a.ops = ops.New(opsCfg, root, ops.WithGatherer(reg), ops.WithHealth(a.health))

	if err := a.applyWatches(context.Background(), config.DiffWatches(nil, cfg.ActiveWatches()), cfg); err != nil {
		_ = hist.Close()
		return nil, err
	}
	log.Info("app initialized",
		logx.String("mode", string(mode)),
		logx.String("history", hc.Driver),
		logx.Int("watches", len(svc.Watches())),
	)
	return a, nil
}

func (a *App) Watcher() *watcher.Service      { return a.watcher }
func (a *App) History() history.Store         { return a.hist }
func (a *App) Registry() *prometheus.Registry { return a.reg }

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) health() (map[string]any, error) {
	snap := a.watcher.Snapshot()
	details := map[string]any{
		"mode":      snap.Mode,
		"watches":   snap.Watches,
		"queue_len": snap.Executor.QueueLen,
		"in_flight": snap.Executor.InFlight,
	}
	if !snap.Running {
		return details, errors.New("watcher not running")
	}
	return details, nil
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	runCtx := a.sup.Context()

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(a.validateReload)

	// The watcher is stopped explicitly by Stop so queued tasks can drain
	// after the run context is gone.
	if err := a.watcher.Start(context.WithoutCancel(runCtx)); err != nil {
		return err
	}
	if a.ops.Enabled() {
		a.ops.Start(runCtx)
	}

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go("eventbus.log", func(c context.Context) error {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return nil
			case e, ok := <-events:
				if !ok {
					return nil
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
		return nil
	})
	a.sup.Go("config.watch", a.cfgm.Watch)

	if iv, err := sd.SdWatchdogEnabled(false); err == nil && iv > 0 {
		a.sup.GoRestart("systemd.watchdog", func(c context.Context) error {
			t := time.NewTicker(iv / 2)
			defer t.Stop()
			for {
				select {
				case <-c.Done():
					return nil
				case <-t.C:
					_, _ = sd.SdNotify(false, sd.SdNotifyWatchdog)
				}
			}
		})
	}
	if ok, err := sd.SdNotify(false, sd.SdNotifyReady); err != nil {
		a.log.Warn("sd_notify ready failed", logx.Err(err))
	} else if ok {
		a.log.Debug("sd_notify ready sent")
	}

	a.log.Info("app started")
	return nil
}

// validateReload makes reload transactional: every declared trigger must
// pass the live engine's own check before the config is committed.
func (a *App) validateReload(_ context.Context, cfg *config.Config) error {
	var errs []error
	for _, wc := range cfg.ActiveWatches() {
		w, err := BuildWatch(wc)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := a.watcher.Components().Triggers.Validate(w.Trigger); err != nil {
			errs = append(errs, fmt.Errorf("watch %s: %w", w.ID, err))
		}
	}
	return errors.Join(errs...)
}

// reloadLoop applies config updates until ctx ends. Bursts coalesce into
// the newest config.
func (a *App) reloadLoop(ctx context.Context, sub <-chan *config.Config) {
	lastApplied := a.cfgm.Get()
	for {
		var newCfg *config.Config
		select {
		case <-ctx.Done():
			return
		case c, ok := <-sub:
			if !ok {
				return
			}
			newCfg = c
		}
	drain:
		for {
			select {
			case newer := <-sub:
				if newer != nil {
					newCfg = newer
				}
			default:
				break drain
			}
		}
		a.applyConfig(ctx, lastApplied, newCfg)
		lastApplied = newCfg
	}
}

func (a *App) applyConfig(ctx context.Context, oldCfg, newCfg *config.Config) {
	sections, attrs, wd := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Debug("config change summary", fields...)

	for _, s := range sections {
		switch {
		case config.RestartRequired(s):
			a.log.Warn("config section changed; restart required for changes to take effect", logx.String("section", s))
		case s == "logging":
			a.logs.Apply(mapLogConfig(newCfg))
		case s == "ops":
			oc, err := mapOpsConfig(newCfg)
			if err != nil {
				a.log.Warn("invalid ops config; keeping previous", logx.Err(err))
				continue
			}
			a.ops.Reconfigure(ctx, oc)
		case s == "watches":
			if err := a.applyWatches(ctx, wd, newCfg); err != nil {
				a.log.Warn("watch reload incomplete", logx.Err(err))
			}
		}
	}
	a.log.Info("config reloaded", fields...)
}

// applyWatches puts added and changed watches, then removes the dropped
// ones. A failing watch does not stop the rest.
func (a *App) applyWatches(ctx context.Context, wd config.WatchDiff, cfg *config.Config) error {
	byID := map[string]config.WatchConfig{}
	for _, wc := range cfg.ActiveWatches() {
		byID[strings.TrimSpace(wc.ID)] = wc
	}
	var errs []error
	for _, id := range append(append([]string{}, wd.Added...), wd.Changed...) {
		w, err := BuildWatch(byID[id])
		if err == nil {
			err = a.watcher.PutWatch(ctx, w)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	for _, id := range wd.Removed {
		a.watcher.DeleteWatch(ctx, id)
	}
	if len(wd.Added)+len(wd.Changed)+len(wd.Removed) > 0 {
		a.log.Info("watches applied",
			logx.Int("added", len(wd.Added)),
			logx.Int("changed", len(wd.Changed)),
			logx.Int("removed", len(wd.Removed)),
			logx.Int("failed", len(errs)),
		)
	}
	return errors.Join(errs...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	_, _ = sd.SdNotify(false, sd.SdNotifyStopping)

	// Background loops unwind first; the watcher drains on its own deadline.
	a.sup.Cancel()

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx, cancel := boundedCtx(ctx, max)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)),
			)
		}
	}

	step("watcher", 10*time.Second, func(c context.Context) error { a.watcher.Stop(c); return nil })
	step("ops", time.Second, func(c context.Context) error { a.ops.Stop(c); return nil })
	step("history", time.Second, func(context.Context) error { return a.hist.Close() })
	step("supervisor", 2*time.Second, a.sup.Wait)

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}

// boundedCtx caps ctx at max without ever extending the caller's deadline.
func boundedCtx(ctx context.Context, max time.Duration) (context.Context, context.CancelFunc) {
	if max <= 0 {
		return context.WithCancel(ctx)
	}
	if dl, ok := ctx.Deadline(); ok && time.Until(dl) < max {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, max)
}
