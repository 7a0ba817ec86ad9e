package harvest_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/akhundov/arenda-harvester/internal/harvest"
)

type failingSink struct{ err error }

func (s failingSink) Append(_ *harvest.Listing) error { return s.err }

type panickingExtractor struct{}

func (panickingExtractor) Extract(_ *harvest.Document, _ string) (*harvest.Listing, error) {
	panic("selector blew up")
}

func TestSinkFailureKeepsItemUnprocessed(t *testing.T) {
	t.Parallel()

	e := newEnv(t, t.TempDir())
	url := "https://catalog.test/item-A"
	e.fetcher.docs[url] = "item:A"

	p := harvest.NewPipeline(e.fetcher, fakeExtractor{}, e.ledger, failingSink{err: errors.New("disk full")}, zap.NewNop())
	require.False(t, p.Process(context.Background(), harvest.ListingRef{ID: "A", URL: url}))

	snap := e.ledger.Snapshot()
	require.Empty(t, snap.Processed, "sink failure must not mark the item processed")
	require.Len(t, snap.Failed, 1)
}

func TestPanicBecomesRecordedFailure(t *testing.T) {
	t.Parallel()

	e := newEnv(t, t.TempDir())
	url := "https://catalog.test/item-A"
	e.fetcher.docs[url] = "item:A"

	p := harvest.NewPipeline(e.fetcher, panickingExtractor{}, e.ledger, e.sink, zap.NewNop())
	require.NotPanics(t, func() {
		require.False(t, p.Process(context.Background(), harvest.ListingRef{ID: "A", URL: url}))
	})

	snap := e.ledger.Snapshot()
	require.Empty(t, snap.Processed)
	require.Len(t, snap.Failed, 1)
	require.Equal(t, "A", snap.Failed[0].ID)
}

func TestProcessedItemIsNoOp(t *testing.T) {
	t.Parallel()

	e := newEnv(t, t.TempDir())
	e.ledger.RecordSuccess("A")

	p := harvest.NewPipeline(e.fetcher, fakeExtractor{}, e.ledger, e.sink, zap.NewNop())
	require.False(t, p.Process(context.Background(), harvest.ListingRef{ID: "A", URL: "https://catalog.test/item-A"}))

	require.Zero(t, e.fetcher.callCount("https://catalog.test/item-A"))
	require.Empty(t, dataRows(t, e.csvPath))
	require.Equal(t, 1, e.ledger.Snapshot().TotalScraped, "no duplicate count increment")
}
