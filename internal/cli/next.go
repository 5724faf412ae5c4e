package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"watcher/internal/config"
	"watcher/internal/trigger"
	"watcher/internal/trigger/schedule"
)

type nextResult struct {
	Watch    string      `json:"watch"`
	Schedule string      `json:"schedule"`
	Next     []time.Time `json:"next"`
}

func NewNextCommand(opts *RootOptions) *cobra.Command {
	var (
		count int
		from  string
	)
	cmd := &cobra.Command{
		Use:   "next <watch>",
		Short: "Preview upcoming fire times of a scheduled watch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.Config)
			if err != nil {
				return err
			}
			start := time.Now()
			if from != "" {
				if start, err = time.Parse(time.RFC3339, from); err != nil {
					return fmt.Errorf("--from: %w", err)
				}
			}
			res, err := previewWatch(cfg, args[0], start, count)
			if err != nil {
				return err
			}
			out := newOutput(opts, cmd.OutOrStdout())
			if out.json() {
				return out.emit(res)
			}
			rows := make([][]string, 0, len(res.Next))
			for i, t := range res.Next {
				rows = append(rows, []string{strconv.Itoa(i + 1), t.Format(time.RFC3339), t.Sub(start).Round(time.Second).String()})
			}
			fmt.Fprintf(out.w, "%s: %s\n", res.Watch, res.Schedule)
			return out.table([]string{"#", "AT", "IN"}, rows)
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 5, "how many fire times to show")
	cmd.Flags().StringVar(&from, "from", "", "anchor instant (RFC3339); default now")
	return cmd
}

// previewWatch lists the next n due times of id as if it were registered
// at start.
func previewWatch(cfg *config.Config, id string, start time.Time, n int) (nextResult, error) {
	for _, wc := range cfg.Watches {
		if strings.TrimSpace(wc.ID) != id {
			continue
		}
		if !strings.EqualFold(strings.TrimSpace(wc.Trigger.Type), trigger.TypeSchedule) {
			return nextResult{}, fmt.Errorf("watch %s has a %s trigger; only schedules have fire times", id, wc.Trigger.Type)
		}
		loc, err := cfg.Watcher.Location()
		if err != nil {
			return nextResult{}, err
		}
		sched, err := schedule.Parse(wc.Trigger.Schedule, loc)
		if err != nil {
			return nextResult{}, err
		}
		return nextResult{Watch: id, Schedule: sched.String(), Next: schedule.Preview(sched, start, n)}, nil
	}
	return nextResult{}, fmt.Errorf("watch %s not found in config", id)
}
