package harvest

import (
	"context"

	"go.uber.org/zap"

	"github.com/akhundov/arenda-harvester/internal/telemetry"
)

// Pipeline runs one item through the fetch, extract, append, record chain.
// It is shared by the page-driven harvest loop and the failure requeue so
// both record outcomes identically.
type Pipeline struct {
	fetcher   Fetcher
	extractor Extractor
	ledger    Ledger
	sink      Sink
	logger    *zap.Logger
}

// NewPipeline wires the per-item processing chain.
func NewPipeline(fetcher Fetcher, extractor Extractor, ledger Ledger, sink Sink, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		fetcher:   fetcher,
		extractor: extractor,
		ledger:    ledger,
		sink:      sink,
		logger:    logger,
	}
}

// Process handles a single item and reports whether it was newly recorded as
// processed. Every failure along the chain is recorded in the ledger and
// never propagates; the one ordering rule is that the sink append must
// succeed before the item is marked processed.
func (p *Pipeline) Process(ctx context.Context, ref ListingRef) (processed bool) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Item task panicked",
				zap.String("listing_id", ref.ID), zap.Any("panic", r))
			p.ledger.RecordFailure(ref.ID, ref.URL)
			processed = false
		}
	}()

	if p.ledger.IsProcessed(ref.ID) {
		telemetry.ItemsTotal.WithLabelValues(telemetry.OutcomeSkipped).Inc()
		p.logger.Debug("Skipping already processed listing", zap.String("listing_id", ref.ID))
		return false
	}

	doc, err := p.fetcher.Fetch(ctx, ref.URL)
	if err != nil {
		telemetry.ItemsTotal.WithLabelValues(telemetry.OutcomeFetchFail).Inc()
		p.logger.Warn("Fetch failed",
			zap.String("listing_id", ref.ID), zap.String("url", ref.URL), zap.Error(err))
		p.ledger.RecordFailure(ref.ID, ref.URL)
		return false
	}

	listing, err := p.extractor.Extract(doc, ref.URL)
	if err != nil {
		telemetry.ItemsTotal.WithLabelValues(telemetry.OutcomeExtractFail).Inc()
		p.logger.Warn("Extraction failed",
			zap.String("listing_id", ref.ID), zap.String("url", ref.URL), zap.Error(err))
		p.ledger.RecordFailure(ref.ID, ref.URL)
		return false
	}

	if err := p.sink.Append(listing); err != nil {
		telemetry.ItemsTotal.WithLabelValues(telemetry.OutcomeSinkFail).Inc()
		p.logger.Error("Sink append failed; listing stays unprocessed",
			zap.String("listing_id", ref.ID), zap.Error(err))
		p.ledger.RecordFailure(ref.ID, ref.URL)
		return false
	}

	p.ledger.RecordSuccess(ref.ID)
	telemetry.ItemsTotal.WithLabelValues(telemetry.OutcomeScraped).Inc()
	p.logger.Info("Scraped listing", zap.String("listing_id", ref.ID))
	return true
}
