package harvest_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/akhundov/arenda-harvester/internal/harvest"
)

func newRequeue(e *env) *harvest.Requeue {
	p := harvest.NewPipeline(e.fetcher, fakeExtractor{}, e.ledger, e.sink, zap.NewNop())
	return harvest.NewRequeue(p, e.ledger, 0, zap.NewNop())
}

func TestRetrySuccessRemovesFailure(t *testing.T) {
	t.Parallel()

	e := newEnv(t, t.TempDir())
	url := "https://catalog.test/item-B"
	e.ledger.RecordFailure("B", url)
	// The item is reachable now.
	e.fetcher.docs[url] = "item:B"

	retried, succeeded := newRequeue(e).RetryAllFailed(context.Background())
	require.Equal(t, 1, retried)
	require.Equal(t, 1, succeeded)

	snap := e.ledger.Snapshot()
	require.Equal(t, []string{"B"}, snap.Processed)
	require.Empty(t, snap.Failed)

	rows := dataRows(t, e.csvPath)
	require.Len(t, rows, 1)
	require.Equal(t, "B", rows[0][0])
}

func TestRetryKeepsEntryOnFailure(t *testing.T) {
	t.Parallel()

	e := newEnv(t, t.TempDir())
	url := "https://catalog.test/item-B"
	e.ledger.RecordFailure("B", url)
	e.fetcher.fail[url] = errors.New("still down")

	retried, succeeded := newRequeue(e).RetryAllFailed(context.Background())
	require.Equal(t, 1, retried)
	require.Zero(t, succeeded)

	snap := e.ledger.Snapshot()
	require.Empty(t, snap.Processed)
	// The original entry stays and the failed retry appended another.
	require.Len(t, snap.Failed, 2)
}

func TestRetrySkipsProcessedAndClearsStaleEntries(t *testing.T) {
	t.Parallel()

	e := newEnv(t, t.TempDir())
	url := "https://catalog.test/item-B"
	e.ledger.RecordFailure("B", url)
	e.ledger.RecordSuccess("B")

	retried, succeeded := newRequeue(e).RetryAllFailed(context.Background())
	require.Zero(t, retried)
	require.Zero(t, succeeded)
	require.Zero(t, e.fetcher.callCount(url), "processed item must not be re-fetched")
	require.Empty(t, e.ledger.Snapshot().Failed, "stale failure entries are cleanup debt")
}

func TestRetrySnapshotIsNotALiveQueue(t *testing.T) {
	t.Parallel()

	e := newEnv(t, t.TempDir())
	require.Empty(t, e.ledger.Snapshot().Failed)

	retried, succeeded := newRequeue(e).RetryAllFailed(context.Background())
	require.Zero(t, retried)
	require.Zero(t, succeeded)
}

func TestRetryStopsOnShutdown(t *testing.T) {
	t.Parallel()

	e := newEnv(t, t.TempDir())
	e.ledger.RecordFailure("B", "https://catalog.test/item-B")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	retried, _ := newRequeue(e).RetryAllFailed(ctx)
	require.Zero(t, retried)
}
