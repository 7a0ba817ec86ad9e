package harvest

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/akhundov/arenda-harvester/internal/telemetry"
)

// OrchestratorConfig controls the page traversal.
type OrchestratorConfig struct {
	// StartPage overrides the resume boundary when > 0.
	StartPage int
	// EndPage stops traversal after that page; 0 means detect from the
	// catalog's pagination widget.
	EndPage int
	// DefaultMaxPages is the end page used when detection fails.
	DefaultMaxPages int
	// PageDelay is the politeness pause between pages.
	PageDelay time.Duration
}

// Orchestrator drives the page-by-page harvest. Cancellation is cooperative:
// the context is polled at page boundaries only, so in-flight item tasks
// always run to a recorded outcome.
type Orchestrator struct {
	pipeline   *Pipeline
	fetcher    Fetcher
	discoverer LinkDiscoverer
	ledger     Ledger
	cfg        OrchestratorConfig
	logger     *zap.Logger
}

// NewOrchestrator wires the harvest loop.
func NewOrchestrator(
	pipeline *Pipeline,
	fetcher Fetcher,
	discoverer LinkDiscoverer,
	ledger Ledger,
	cfg OrchestratorConfig,
	logger *zap.Logger,
) *Orchestrator {
	if cfg.DefaultMaxPages <= 0 {
		cfg.DefaultMaxPages = 10
	}
	return &Orchestrator{
		pipeline:   pipeline,
		fetcher:    fetcher,
		discoverer: discoverer,
		ledger:     ledger,
		cfg:        cfg,
		logger:     logger,
	}
}

// Run executes the harvest from the resume boundary to the end page. It
// returns ctx.Err() when interrupted and nil otherwise; per-item failures
// are recorded in the ledger, never returned.
func (o *Orchestrator) Run(ctx context.Context) error {
	logger := o.logger.With(zap.String("run_id", uuid.NewString()))

	// Item work finishes even after a shutdown signal; only the page loop
	// observes cancellation.
	itemCtx := context.WithoutCancel(ctx)

	start := o.cfg.StartPage
	if start <= 0 {
		start = 1
	}
	if boundary := o.ledger.Snapshot().LastPage; o.cfg.StartPage <= 0 && boundary > 0 {
		start = boundary
		logger.Info("Resuming from persisted boundary", zap.Int("page", start))
	}

	end := o.cfg.EndPage
	if end <= 0 {
		end = o.detectEndPage(itemCtx, logger)
	}

	logger.Info("Starting harvest", zap.Int("start_page", start), zap.Int("end_page", end))

	for page := start; page <= end; page++ {
		if err := ctx.Err(); err != nil {
			logger.Info("Shutdown observed; stopping at page boundary", zap.Int("page", page))
			return err
		}
		o.harvestPage(itemCtx, page, logger)
		if page < end {
			pause(ctx, o.cfg.PageDelay)
		}
	}

	logger.Info("Harvest completed", zap.Int("total_scraped", o.ledger.Snapshot().TotalScraped))
	return nil
}

// detectEndPage fetches page 1 and reads the pagination widget, falling back
// to the configured default when the catalog is unreachable.
func (o *Orchestrator) detectEndPage(ctx context.Context, logger *zap.Logger) int {
	doc, err := o.fetcher.Fetch(ctx, o.discoverer.SearchPageURL(1))
	if err != nil {
		logger.Warn("Could not detect page count; using default",
			zap.Int("default", o.cfg.DefaultMaxPages), zap.Error(err))
		return o.cfg.DefaultMaxPages
	}
	end := o.discoverer.MaxPage(doc)
	logger.Info("Detected total pages", zap.Int("pages", end))
	return end
}

// harvestPage fetches one listing page and runs every unprocessed item on it
// to completion. Partial failures never abort the page; the boundary is
// advanced only after all of the page's tasks finished.
func (o *Orchestrator) harvestPage(ctx context.Context, page int, logger *zap.Logger) {
	logger.Info("Harvesting page", zap.Int("page", page))

	doc, err := o.fetcher.Fetch(ctx, o.discoverer.SearchPageURL(page))
	if err != nil {
		logger.Warn("Page fetch failed", zap.Int("page", page), zap.Error(err))
		return
	}

	refs := o.discoverer.ListingLinks(doc)
	if len(refs) == 0 {
		logger.Warn("No listings found on page", zap.Int("page", page))
		return
	}
	logger.Info("Found listings", zap.Int("page", page), zap.Int("count", len(refs)))

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for _, ref := range refs {
		if o.ledger.IsProcessed(ref.ID) {
			telemetry.ItemsTotal.WithLabelValues(telemetry.OutcomeSkipped).Inc()
			continue
		}
		wg.Add(1)
		go func(ref ListingRef) {
			defer wg.Done()
			if o.pipeline.Process(ctx, ref) {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}(ref)
	}
	wg.Wait()

	o.ledger.SetBoundary(page)
	telemetry.PagesTotal.Inc()
	logger.Info("Page done",
		zap.Int("page", page), zap.Int("succeeded", succeeded), zap.Int("found", len(refs)))
}

func pause(ctx context.Context, delay time.Duration) {
	if delay <= 0 {
		return
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
