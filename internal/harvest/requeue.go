package harvest

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Requeue replays recorded failures through the per-item pipeline.
type Requeue struct {
	pipeline *Pipeline
	ledger   Ledger
	delay    time.Duration
	logger   *zap.Logger
}

// NewRequeue builds the failure replay pass. delay is the politeness pause
// between items, distinct from the harvest's page delay.
func NewRequeue(pipeline *Pipeline, ledger Ledger, delay time.Duration, logger *zap.Logger) *Requeue {
	return &Requeue{
		pipeline: pipeline,
		ledger:   ledger,
		delay:    delay,
		logger:   logger,
	}
}

// RetryAllFailed replays the failure list as it stood when the call started;
// failures recorded during the pass wait for the next one. An entry is
// removed only after its item succeeds. Items that became processed through
// another path keep their durable record; the stale entries are cleared
// without a re-fetch.
func (r *Requeue) RetryAllFailed(ctx context.Context) (retried, succeeded int) {
	failed := r.ledger.Snapshot().Failed
	if len(failed) == 0 {
		r.logger.Info("No failed listings to retry")
		return 0, 0
	}
	r.logger.Info("Retrying failed listings", zap.Int("count", len(failed)))

	itemCtx := context.WithoutCancel(ctx)
	for _, entry := range failed {
		if ctx.Err() != nil {
			r.logger.Info("Shutdown observed; stopping retry pass")
			break
		}
		if r.ledger.IsProcessed(entry.ID) {
			r.ledger.ClearFailure(entry.ID)
			continue
		}
		retried++
		if r.pipeline.Process(itemCtx, ListingRef{ID: entry.ID, URL: entry.URL}) {
			r.ledger.ClearFailure(entry.ID)
			succeeded++
		}
		pause(ctx, r.delay)
	}

	r.logger.Info("Retry pass completed",
		zap.Int("retried", retried), zap.Int("succeeded", succeeded))
	return retried, succeeded
}
