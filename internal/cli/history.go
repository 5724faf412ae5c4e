package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"watcher/internal/config"
	"watcher/internal/history"
	logx "watcher/pkg/logx"
)

func NewHistoryCommand(opts *RootOptions) *cobra.Command {
	var (
		watchID string
		limit   int
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded task outcomes, newest first",
		Long: `List task outcomes from the configured history store.

Only the file and sqlite drivers outlive the process; with the memory
driver there is nothing to show.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.Config)
			if err != nil {
				return err
			}
			hc := history.Config{Driver: "memory"}
			if h := cfg.History; h != nil {
				hc = history.Config{Driver: h.Driver, Path: h.Path, Capacity: h.Capacity}
			}
			st, err := history.Open(hc, logx.Nop())
			if err != nil {
				return err
			}
			defer st.Close()

			recs, err := st.List(cmd.Context(), history.Query{WatchID: strings.TrimSpace(watchID), Limit: limit})
			if err != nil {
				return err
			}
			out := newOutput(opts, cmd.OutOrStdout())
			if out.json() {
				return out.emit(recs)
			}
			rows := make([][]string, 0, len(recs))
			for _, r := range recs {
				rows = append(rows, []string{
					r.FinishedAt.Format(time.RFC3339),
					r.WatchID,
					r.TriggerType,
					r.State,
					r.Duration().String(),
					r.Error,
				})
			}
			if len(rows) == 0 {
				_, err := fmt.Fprintln(out.w, "no records")
				return err
			}
			return out.table([]string{"FINISHED", "WATCH", "TRIGGER", "STATE", "DURATION", "ERROR"}, rows)
		},
	}
	cmd.Flags().StringVarP(&watchID, "watch", "w", "", "only this watch")
	cmd.Flags().IntVarP(&limit, "limit", "l", 20, "max records")
	return cmd
}
