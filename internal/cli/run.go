package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"watcher/internal/app"
	logx "watcher/pkg/logx"
)

func NewRunCommand(opts *RootOptions) *cobra.Command {
	var stopTimeout time.Duration
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the watcher until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			// The app logger only exists once the config loaded.
			boot := logx.NewConsole("info")
			a, err := app.New(opts.Config)
			if err != nil {
				boot.Error("init failed", logx.String("config", opts.Config), logx.Err(err))
				return fmt.Errorf("init: %w", err)
			}
			if err := a.Start(ctx); err != nil {
				boot.Error("start failed", logx.Err(err))
				stopCtx, c := context.WithTimeout(context.Background(), stopTimeout)
				defer c()
				_ = a.Stop(stopCtx, app.StopFatalError)
				return fmt.Errorf("start: %w", err)
			}

			select {
			case <-ctx.Done():
			case <-a.Done():
			}
			// Done also closes on a signal since the app runs under ctx.
			reason := app.StopSignal
			if ctx.Err() == nil {
				reason = app.StopFatalError
			}
			stopCtx, c := context.WithTimeout(context.Background(), stopTimeout)
			defer c()
			if err := a.Stop(stopCtx, reason); err != nil {
				return err
			}
			return a.Err()
		},
	}
	cmd.Flags().DurationVar(&stopTimeout, "stop-timeout", 15*time.Second, "how long queued tasks may drain on shutdown")
	return cmd
}
