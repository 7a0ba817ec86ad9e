// Package cmd defines and implements the CLI commands for the harvester
// executable.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/akhundov/arenda-harvester/internal/clock/system"
	"github.com/akhundov/arenda-harvester/internal/config"
	"github.com/akhundov/arenda-harvester/internal/fetch"
	"github.com/akhundov/arenda-harvester/internal/harvest"
	"github.com/akhundov/arenda-harvester/internal/ledger"
	"github.com/akhundov/arenda-harvester/internal/logging"
	"github.com/akhundov/arenda-harvester/internal/sink"
	"github.com/akhundov/arenda-harvester/internal/site"
)

var cfgFile string

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "harvester",
		Short: "A resilient harvester for the arenda.az listing catalog.",
		Long: `harvester walks the paginated arenda.az catalog, extracts listing
records, and appends them to a CSV output. Progress is persisted after every
state change, so an interrupted run resumes where it left off and failed
listings can be replayed later.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (defaults plus HARVESTER_* env vars when omitted)")

	cmd.AddCommand(newHarvestCmd(), newRetryCmd(), newStatsCmd())
	return cmd
}

// Execute is the main entry point. A first interrupt cancels the run
// cooperatively; a second one terminates the process.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// app bundles the wired components shared by the harvest and retry commands.
type app struct {
	cfg      config.Config
	logger   *zap.Logger
	ledger   *ledger.Ledger
	fetcher  *fetch.Executor
	sink     *sink.CSV
	adapter  *site.Arenda
	pipeline *harvest.Pipeline
}

// buildApp loads config and wires the engine. concurrency overrides the
// configured fetch limit when > 0; the retry pass uses a gentler one.
func buildApp(concurrency int) (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	if concurrency <= 0 {
		concurrency = cfg.Harvester.Concurrency
	}

	clk := system.New()
	led := ledger.New(cfg.Storage.StateFile, clk, logger)

	out, err := sink.NewCSV(cfg.Storage.OutputFile, logger)
	if err != nil {
		return nil, fmt.Errorf("init sink: %w", err)
	}

	fetcher := fetch.NewExecutor(fetch.Config{
		UserAgent:         cfg.Harvester.UserAgent,
		Timeout:           cfg.Timeout(),
		MaxRetries:        cfg.HTTP.MaxRetries,
		BaseDelay:         cfg.BackoffBase(),
		Concurrency:       concurrency,
		RequestsPerSecond: cfg.Harvester.RequestsPerSecond,
	}, logger)

	adapter := site.New(cfg.Harvester.BaseURL, clk)
	pipeline := harvest.NewPipeline(fetcher, adapter, led, out, logger)

	return &app{
		cfg:      cfg,
		logger:   logger,
		ledger:   led,
		fetcher:  fetcher,
		sink:     out,
		adapter:  adapter,
		pipeline: pipeline,
	}, nil
}

// Close releases network resources and flushes buffered log entries.
func (a *app) Close() {
	a.fetcher.Close()
	_ = a.logger.Sync()
}
