// Package harvest defines the core types shared across the harvesting engine.
package harvest

import "time"

// Listing is the fixed-schema record produced for one catalog item.
// Fields are plain strings because the catalog renders everything as text;
// semantic validation is out of scope for the engine.
type Listing struct {
	ListingID         string
	URL               string
	Title             string
	PropertyType      string
	Price             string
	PriceAZN          string
	Location          string
	Address           string
	Rooms             string
	Area              string
	Floor             string
	TotalFloors       string
	Description       string
	Features          string
	AgentName         string
	Phone             string
	DatePosted        string
	ListingCode       string
	ViewCount         string
	HasDocument       string
	IsCreditAvailable string
	Latitude          string
	Longitude         string
	ScrapedAt         string
}

// Columns is the declared output column order. The sink writes this header
// exactly once and Values must stay aligned with it.
var Columns = []string{
	"listing_id",
	"url",
	"title",
	"property_type",
	"price",
	"price_azn",
	"location",
	"address",
	"rooms",
	"area",
	"floor",
	"total_floors",
	"description",
	"features",
	"agent_name",
	"phone",
	"date_posted",
	"listing_code",
	"view_count",
	"has_document",
	"is_credit_available",
	"latitude",
	"longitude",
	"scraped_at",
}

// Values returns the listing fields in Columns order.
func (l *Listing) Values() []string {
	return []string{
		l.ListingID,
		l.URL,
		l.Title,
		l.PropertyType,
		l.Price,
		l.PriceAZN,
		l.Location,
		l.Address,
		l.Rooms,
		l.Area,
		l.Floor,
		l.TotalFloors,
		l.Description,
		l.Features,
		l.AgentName,
		l.Phone,
		l.DatePosted,
		l.ListingCode,
		l.ViewCount,
		l.HasDocument,
		l.IsCreditAvailable,
		l.Latitude,
		l.Longitude,
		l.ScrapedAt,
	}
}

// Document is the decoded body of one fetched page.
type Document struct {
	URL  string
	Body string
}

// ListingRef identifies one catalog item discovered on a listing page.
type ListingRef struct {
	ID  string
	URL string
}

// FailureEntry records one failed harvest attempt. Entries accumulate per
// item so the failure history stays auditable; the requeue pass removes them
// on success.
type FailureEntry struct {
	ID   string `json:"id"`
	URL  string `json:"url"`
	Time string `json:"time"`
}

// Snapshot is the ledger state as persisted between runs.
type Snapshot struct {
	LastPage     int            `json:"last_page"`
	Processed    []string       `json:"processed_listings"`
	Failed       []FailureEntry `json:"failed_listings"`
	TotalScraped int            `json:"total_scraped"`
	LastUpdate   string         `json:"last_update"`
}

// TimeFormat is the timestamp layout used in the ledger and listing records.
const TimeFormat = time.RFC3339
