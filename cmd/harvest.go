package cmd

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/akhundov/arenda-harvester/internal/harvest"
	"github.com/akhundov/arenda-harvester/internal/telemetry"
)

// newHarvestCmd creates the 'run-harvest' subcommand. It starts or resumes
// the page traversal from the persisted boundary.
func newHarvestCmd() *cobra.Command {
	var startPage, endPage int

	cmd := &cobra.Command{
		Use:   "run-harvest",
		Short: "Start or resume the catalog harvest",
		Long: `Walks the catalog page by page from the persisted boundary (or page 1 on
a first run), harvesting every listing not yet recorded as processed. The end
page is detected from the catalog's pagination unless --end-page is given.
Partial failures are tracked in the state file, not fatal.`,

		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := buildApp(0)
			if err != nil {
				return err
			}
			defer a.Close()

			go telemetry.Serve(cmd.Context(), a.cfg.Metrics.ListenAddr, a.logger)

			orch := harvest.NewOrchestrator(
				a.pipeline,
				a.fetcher,
				a.adapter,
				a.ledger,
				harvest.OrchestratorConfig{
					StartPage:       startPage,
					EndPage:         endPage,
					DefaultMaxPages: a.cfg.Harvester.DefaultMaxPages,
					PageDelay:       a.cfg.PageDelay(),
				},
				a.logger,
			)

			// A signal-driven stop is a normal completion path.
			if err := orch.Run(cmd.Context()); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&startPage, "start-page", 0, "first page to harvest (overrides the persisted boundary)")
	cmd.Flags().IntVar(&endPage, "end-page", 0, "last page to harvest (0 = detect from pagination)")
	return cmd
}
