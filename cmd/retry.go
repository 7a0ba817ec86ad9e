package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/akhundov/arenda-harvester/internal/harvest"
)

// retryConcurrency keeps the replay pass gentler than the main harvest.
const retryConcurrency = 3

// newRetryCmd creates the 'retry-failed' subcommand.
func newRetryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "retry-failed",
		Short: "Replay listings recorded as failed",
		Long: `Reads the failure list from the state file and re-runs each entry through
the harvest pipeline. Entries are removed only when their listing succeeds;
failures recorded during this pass wait for the next one.`,

		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := buildApp(retryConcurrency)
			if err != nil {
				return err
			}
			defer a.Close()

			requeue := harvest.NewRequeue(a.pipeline, a.ledger, a.cfg.RetryDelay(), a.logger)
			retried, succeeded := requeue.RetryAllFailed(cmd.Context())
			a.logger.Info("Retry command finished",
				zap.Int("retried", retried), zap.Int("succeeded", succeeded))
			return nil
		},
	}
}
