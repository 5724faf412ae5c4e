package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"watcher/internal/config"
)

type validateResult struct {
	Valid   bool   `json:"valid"`
	Mode    string `json:"mode,omitempty"`
	Watches int    `json:"watches"`
	Error   string `json:"error,omitempty"`
}

func NewValidateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the config file without starting anything",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := newOutput(opts, cmd.OutOrStdout())
			cfg, err := config.Load(opts.Config)
			if err != nil {
				if out.json() {
					_ = out.emit(validateResult{Error: err.Error()})
				}
				return fmt.Errorf("%s: %w", opts.Config, err)
			}
			res := validateResult{Valid: true, Mode: cfg.Watcher.EffectiveMode(), Watches: len(cfg.ActiveWatches())}
			if out.json() {
				return out.emit(res)
			}
			_, err = fmt.Fprintf(out.w, "%s: ok (mode %s, %d active watches)\n", opts.Config, res.Mode, res.Watches)
			return err
		},
	}
}
