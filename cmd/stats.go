package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/akhundov/arenda-harvester/internal/clock/system"
	"github.com/akhundov/arenda-harvester/internal/config"
	"github.com/akhundov/arenda-harvester/internal/ledger"
	"github.com/akhundov/arenda-harvester/internal/logging"
	"github.com/akhundov/arenda-harvester/internal/report"
)

// newStatsCmd creates the 'show-stats' subcommand, a read-only view over the
// state file and the CSV output.
func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show-stats",
		Short: "Print harvest statistics",

		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(cfg.Logging.Development)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			defer logger.Sync() //nolint:errcheck

			led := ledger.New(cfg.Storage.StateFile, system.New(), logger)
			rows, err := report.ReadOutput(cfg.Storage.OutputFile)
			if err != nil {
				return err
			}

			report.Render(cmd.OutOrStdout(), led.Snapshot(), rows)
			return nil
		},
	}
}
