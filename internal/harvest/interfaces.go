package harvest

import (
	"context"
	"time"
)

// Fetcher retrieves a URL and returns the decoded document. Implementations
// own retry and concurrency-limiting behavior; a returned error means the
// fetch is not going to succeed in this run.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Document, error)
}

// Extractor maps a fetched item page to a Listing. It is site-specific and
// deliberately outside the engine; a nil listing with an error means the
// document could not be understood.
type Extractor interface {
	Extract(doc *Document, url string) (*Listing, error)
}

// LinkDiscoverer maps listing pages to item references and page-count hints.
type LinkDiscoverer interface {
	// SearchPageURL builds the URL of the numbered catalog page.
	SearchPageURL(page int) string
	// ListingLinks returns the (id, url) pairs found on a listing page.
	ListingLinks(doc *Document) []ListingRef
	// MaxPage reads the pagination widget and returns the highest page
	// number it advertises, or 1 when the widget is missing.
	MaxPage(doc *Document) int
}

// Ledger is the durable record of harvest progress. It is the single source
// of truth for resumability and the idempotency gate for item work.
type Ledger interface {
	IsProcessed(id string) bool
	RecordSuccess(id string)
	RecordFailure(id, url string)
	ClearFailure(id string)
	SetBoundary(page int)
	Snapshot() Snapshot
}

// Sink is the durable append-only destination for completed listings.
// Append either fully writes the record or returns an error; callers must
// not mark an item processed when Append fails.
type Sink interface {
	Append(l *Listing) error
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}
