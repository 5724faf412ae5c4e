package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"watcher/internal/app"
	"watcher/internal/config"
	"watcher/internal/history"
	logx "watcher/pkg/logx"
)

type simulateResult struct {
	Start   time.Time        `json:"start"`
	End     time.Time        `json:"end"`
	Fired   int              `json:"fired"`
	Records []history.Record `json:"records"`
}

func NewSimulateCommand(opts *RootOptions) *cobra.Command {
	var (
		span time.Duration
		step time.Duration
		from string
	)
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Replay the configured watches on a time-warped clock",
		Long: `Simulate builds the configured watches on a mock clock, advances it by
--for in increments of --step and pulses after each increment. Actions
run for real, so prefer noop/log watches when exploring schedules.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if span <= 0 {
				return fmt.Errorf("--for must be > 0")
			}
			cfg, err := config.Load(opts.Config)
			if err != nil {
				return err
			}
			var start time.Time
			if from != "" {
				if start, err = time.Parse(time.RFC3339, from); err != nil {
					return fmt.Errorf("--from: %w", err)
				}
			}

			ctx := cmd.Context()
			sim, err := app.NewSimulation(ctx, cfg, start, logx.Nop())
			if err != nil {
				return err
			}
			defer sim.Close(ctx)

			res := simulateResult{Start: sim.Warp.Now()}
			evs, err := sim.Warp.Step(ctx, span, step)
			res.Fired = len(evs)
			res.End = sim.Warp.Now()
			if err != nil {
				return err
			}
			recs, err := sim.History.List(ctx, history.Query{})
			if err != nil {
				return err
			}
			// Oldest first reads better as a timeline.
			for i, j := 0, len(recs)-1; i < j; i, j = i+1, j-1 {
				recs[i], recs[j] = recs[j], recs[i]
			}
			res.Records = recs

			out := newOutput(opts, cmd.OutOrStdout())
			if out.json() {
				return out.emit(res)
			}
			fmt.Fprintf(out.w, "%s -> %s: %d firings\n", res.Start.Format(time.RFC3339), res.End.Format(time.RFC3339), res.Fired)
			rows := make([][]string, 0, len(recs))
			for i, r := range recs {
				rows = append(rows, []string{strconv.Itoa(i + 1), r.ScheduledTime.Format(time.RFC3339), r.WatchID, r.State, r.Error})
			}
			return out.table([]string{"#", "SCHEDULED", "WATCH", "STATE", "ERROR"}, rows)
		},
	}
	cmd.Flags().DurationVar(&span, "for", time.Hour, "how much mock time to cover")
	cmd.Flags().DurationVar(&step, "step", time.Minute, "clock increment between pulses")
	cmd.Flags().StringVar(&from, "from", "", "mock start instant (RFC3339); default watcher.start_time or now")
	return cmd
}
