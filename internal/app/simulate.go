package app

import (
	"context"
	"errors"
	"time"

	"watcher/internal/config"
	"watcher/internal/history"
	"watcher/internal/watcher"
	logx "watcher/pkg/logx"
)

// Simulation is a time-warped copy of a configured watcher. It records task
// outcomes in memory and touches nothing outside the process.
type Simulation struct {
	Watcher *watcher.Service
	Warp    *watcher.TimeWarp
	History *history.Memory
}

// NewSimulation builds cfg's active watches on a time-warped watcher
// starting at start (the config's start_time when zero). The returned
// simulation is already running; call Close when done.
func NewSimulation(ctx context.Context, cfg *config.Config, start time.Time, log logx.Logger) (*Simulation, error) {
	_, wcfg, err := mapWatcherConfig(cfg)
	if err != nil {
		return nil, err
	}
	if !start.IsZero() {
		wcfg.Start = start
	}
	hist := history.NewMemory(history.DefaultCapacity)
	comps, err := watcher.Build(watcher.ModeTimeWarped, wcfg, watcher.Deps{Log: log, History: hist})
	if err != nil {
		return nil, err
	}
	svc := watcher.New(comps, log)

	var errs []error
	for _, wc := range cfg.ActiveWatches() {
		w, err := BuildWatch(wc)
		if err == nil {
			err = svc.PutWatch(ctx, w)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	if err := svc.Start(ctx); err != nil {
		return nil, err
	}
	tw, err := svc.TimeWarp()
	if err != nil {
		return nil, err
	}
	return &Simulation{Watcher: svc, Warp: tw, History: hist}, nil
}

func (s *Simulation) Close(ctx context.Context) {
	s.Watcher.Stop(ctx)
	_ = s.History.Close()
}
