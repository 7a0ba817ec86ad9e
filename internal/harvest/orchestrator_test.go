package harvest_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/akhundov/arenda-harvester/internal/harvest"
	"github.com/akhundov/arenda-harvester/internal/ledger"
	"github.com/akhundov/arenda-harvester/internal/sink"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

// fakeFetcher serves canned documents and errors keyed by URL.
type fakeFetcher struct {
	mu    sync.Mutex
	docs  map[string]string
	fail  map[string]error
	calls map[string]int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		docs:  make(map[string]string),
		fail:  make(map[string]error),
		calls: make(map[string]int),
	}
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (*harvest.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[url]++
	if err, ok := f.fail[url]; ok {
		return nil, err
	}
	body, ok := f.docs[url]
	if !ok {
		return nil, fmt.Errorf("fetch %s: no such document", url)
	}
	return &harvest.Document{URL: url, Body: body}, nil
}

func (f *fakeFetcher) callCount(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

// fakeCatalog is a deterministic paginated catalog.
type fakeCatalog struct {
	pages map[int][]harvest.ListingRef
}

func (c *fakeCatalog) SearchPageURL(page int) string {
	return fmt.Sprintf("https://catalog.test/page/%d", page)
}

func (c *fakeCatalog) ListingLinks(doc *harvest.Document) []harvest.ListingRef {
	for page, refs := range c.pages {
		if doc.URL == c.SearchPageURL(page) {
			return refs
		}
	}
	return nil
}

func (c *fakeCatalog) MaxPage(_ *harvest.Document) int {
	return len(c.pages)
}

// fakeExtractor turns "item:<id>" bodies into listings and fails otherwise.
type fakeExtractor struct{}

func (fakeExtractor) Extract(doc *harvest.Document, url string) (*harvest.Listing, error) {
	id, ok := strings.CutPrefix(doc.Body, "item:")
	if !ok {
		return nil, errors.New("unrecognized document")
	}
	return &harvest.Listing{ListingID: id, URL: url}, nil
}

type env struct {
	fetcher *fakeFetcher
	catalog *fakeCatalog
	ledger  *ledger.Ledger
	sink    *sink.CSV
	csvPath string
}

func newEnv(t *testing.T, dir string) *env {
	t.Helper()
	clk := &fakeClock{now: time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)}
	led := ledger.New(filepath.Join(dir, "state.json"), clk, zap.NewNop())
	csvPath := filepath.Join(dir, "listings.csv")
	s, err := sink.NewCSV(csvPath, zap.NewNop())
	require.NoError(t, err)
	return &env{
		fetcher: newFakeFetcher(),
		catalog: &fakeCatalog{pages: make(map[int][]harvest.ListingRef)},
		ledger:  led,
		sink:    s,
		csvPath: csvPath,
	}
}

// addItem registers one healthy item on a page.
func (e *env) addItem(page int, id string) {
	url := "https://catalog.test/item-" + id
	e.catalog.pages[page] = append(e.catalog.pages[page], harvest.ListingRef{ID: id, URL: url})
	e.fetcher.docs[url] = "item:" + id
	e.fetcher.docs[e.catalog.SearchPageURL(page)] = "page"
}

// addBrokenItem registers an item whose fetch fails.
func (e *env) addBrokenItem(page int, id string, err error) {
	url := "https://catalog.test/item-" + id
	e.catalog.pages[page] = append(e.catalog.pages[page], harvest.ListingRef{ID: id, URL: url})
	e.fetcher.fail[url] = err
	e.fetcher.docs[e.catalog.SearchPageURL(page)] = "page"
}

func (e *env) orchestrator(cfg harvest.OrchestratorConfig) *harvest.Orchestrator {
	p := harvest.NewPipeline(e.fetcher, fakeExtractor{}, e.ledger, e.sink, zap.NewNop())
	return harvest.NewOrchestrator(p, e.fetcher, e.catalog, e.ledger, cfg, zap.NewNop())
}

func dataRows(t *testing.T, path string) [][]string {
	t.Helper()
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	raw = bytes.TrimPrefix(raw, []byte{0xEF, 0xBB, 0xBF})
	rows, err := csv.NewReader(strings.NewReader(string(raw))).ReadAll()
	require.NoError(t, err)
	return rows[1:]
}

func TestHarvestScenario(t *testing.T) {
	t.Parallel()

	// Page 1: A succeeds, B is permanently missing. Page 2: C never fetches.
	e := newEnv(t, t.TempDir())
	e.addItem(1, "A")
	e.addBrokenItem(1, "B", errors.New("resource not found"))
	e.addBrokenItem(2, "C", errors.New("timeout after 3 attempts"))

	o := e.orchestrator(harvest.OrchestratorConfig{})
	require.NoError(t, o.Run(context.Background()))

	snap := e.ledger.Snapshot()
	require.Equal(t, []string{"A"}, snap.Processed)
	require.Equal(t, 2, snap.LastPage)
	require.Len(t, snap.Failed, 2)
	failedIDs := []string{snap.Failed[0].ID, snap.Failed[1].ID}
	require.ElementsMatch(t, []string{"B", "C"}, failedIDs)

	rows := dataRows(t, e.csvPath)
	require.Len(t, rows, 1)
	require.Equal(t, "A", rows[0][0])
}

func TestIdempotentSkip(t *testing.T) {
	t.Parallel()

	e := newEnv(t, t.TempDir())
	e.addItem(1, "A")
	e.addItem(1, "B")
	e.ledger.RecordSuccess("A")

	o := e.orchestrator(harvest.OrchestratorConfig{})
	require.NoError(t, o.Run(context.Background()))

	require.Zero(t, e.fetcher.callCount("https://catalog.test/item-A"), "processed item must not be fetched")
	require.Equal(t, 1, e.fetcher.callCount("https://catalog.test/item-B"))

	snap := e.ledger.Snapshot()
	require.Equal(t, 2, snap.TotalScraped)
	// A was marked processed out of band, so only B reached the sink.
	require.Len(t, dataRows(t, e.csvPath), 1)
}

func TestRerunIsNoOp(t *testing.T) {
	t.Parallel()

	e := newEnv(t, t.TempDir())
	e.addItem(1, "A")
	// Re-run the same catalog twice; the second run must be a no-op.
	o := e.orchestrator(harvest.OrchestratorConfig{})
	require.NoError(t, o.Run(context.Background()))
	require.NoError(t, o.Run(context.Background()))

	require.Len(t, dataRows(t, e.csvPath), 1)
	require.Equal(t, 1, e.ledger.Snapshot().TotalScraped)
}

func TestCrashResumeEquivalence(t *testing.T) {
	t.Parallel()

	build := func(dir string) *env {
		e := newEnv(t, dir)
		for page := 1; page <= 3; page++ {
			for i := 0; i < 3; i++ {
				e.addItem(page, fmt.Sprintf("p%d-i%d", page, i))
			}
		}
		return e
	}

	// Uninterrupted reference run.
	ref := build(t.TempDir())
	require.NoError(t, ref.orchestrator(harvest.OrchestratorConfig{}).Run(context.Background()))

	// Interrupted run: stop after page 2, then resume with fresh components
	// over the same state directory, as a restarted process would.
	dir := t.TempDir()
	first := build(dir)
	require.NoError(t, first.orchestrator(harvest.OrchestratorConfig{EndPage: 2}).Run(context.Background()))
	require.Equal(t, 2, first.ledger.Snapshot().LastPage)

	second := build(dir)
	require.NoError(t, second.orchestrator(harvest.OrchestratorConfig{}).Run(context.Background()))

	want := ref.ledger.Snapshot()
	got := second.ledger.Snapshot()
	require.ElementsMatch(t, want.Processed, got.Processed)
	require.Equal(t, want.TotalScraped, got.TotalScraped)
	require.Equal(t, want.LastPage, got.LastPage)

	// Sink/ledger consistency holds on both paths.
	require.Len(t, dataRows(t, ref.csvPath), len(want.Processed))
	require.Len(t, dataRows(t, second.csvPath), len(got.Processed))
}

func TestShutdownStopsAtPageBoundary(t *testing.T) {
	t.Parallel()

	e := newEnv(t, t.TempDir())
	e.addItem(1, "A")
	e.addItem(2, "B")
	e.addItem(3, "C")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	o := e.orchestrator(harvest.OrchestratorConfig{})
	err := o.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, e.ledger.Snapshot().Processed, "no page work after shutdown")
}

func TestExtractionFailureRecorded(t *testing.T) {
	t.Parallel()

	e := newEnv(t, t.TempDir())
	url := "https://catalog.test/item-X"
	e.catalog.pages[1] = []harvest.ListingRef{{ID: "X", URL: url}}
	e.fetcher.docs[url] = "garbage"
	e.fetcher.docs[e.catalog.SearchPageURL(1)] = "page"

	o := e.orchestrator(harvest.OrchestratorConfig{})
	require.NoError(t, o.Run(context.Background()))

	snap := e.ledger.Snapshot()
	require.Empty(t, snap.Processed)
	require.Len(t, snap.Failed, 1)
	require.Equal(t, "X", snap.Failed[0].ID)
	require.Empty(t, dataRows(t, e.csvPath))
}

func TestEndPageDetectionFallback(t *testing.T) {
	t.Parallel()

	e := newEnv(t, t.TempDir())
	// Page 1 unreachable: detection falls back to the configured default,
	// and every page fetch fails without aborting the run.
	o := e.orchestrator(harvest.OrchestratorConfig{DefaultMaxPages: 2, PageDelay: time.Millisecond})
	require.NoError(t, o.Run(context.Background()))
	require.Zero(t, e.ledger.Snapshot().LastPage, "boundary not advanced past failed pages")
}
