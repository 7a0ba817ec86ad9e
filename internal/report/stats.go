// Package report renders a read-only summary over the ledger and the CSV
// output. It never mutates either.
package report

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/akhundov/arenda-harvester/internal/harvest"
)

// Row is one parsed output record keyed by column name.
type Row map[string]string

// ReadOutput parses the sink's CSV file into rows. A missing file yields no
// rows and no error so stats can run before the first harvest.
func ReadOutput(path string) ([]Row, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read output %s: %w", path, err)
	}
	raw = bytes.TrimPrefix(raw, []byte{0xEF, 0xBB, 0xBF})

	records, err := csv.NewReader(bytes.NewReader(raw)).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse output %s: %w", path, err)
	}
	if len(records) < 2 {
		return nil, nil
	}

	header := records[0]
	rows := make([]Row, 0, len(records)-1)
	for _, rec := range records[1:] {
		row := make(Row, len(header))
		for i, col := range header {
			if i < len(rec) {
				row[col] = rec[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Render writes the statistics summary for the given ledger snapshot and
// output rows.
func Render(w io.Writer, snap harvest.Snapshot, rows []Row) {
	line := strings.Repeat("=", 72)
	rule := strings.Repeat("-", 72)

	fmt.Fprintln(w, line)
	fmt.Fprintln(w, "HARVESTER STATISTICS")
	fmt.Fprintln(w, line)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "STATE")
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "Last page:       %d\n", snap.LastPage)
	fmt.Fprintf(w, "Total scraped:   %d\n", snap.TotalScraped)
	fmt.Fprintf(w, "Failed:          %d\n", len(snap.Failed))
	fmt.Fprintf(w, "Output rows:     %d\n", len(rows))

	if len(rows) == 0 {
		return
	}

	renderPropertyTypes(w, rule, rows)
	renderPrices(w, rule, rows)
	renderRooms(w, rule, rows)
	renderLocations(w, rule, rows)
	fmt.Fprintln(w)
	fmt.Fprintln(w, line)
}

type countEntry struct {
	key   string
	count int
}

// countBy tallies non-empty values of a column, most frequent first.
func countBy(rows []Row, column string) []countEntry {
	counts := make(map[string]int)
	for _, row := range rows {
		if v := row[column]; v != "" {
			counts[v]++
		}
	}
	entries := make([]countEntry, 0, len(counts))
	for k, c := range counts {
		entries = append(entries, countEntry{key: k, count: c})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].count != entries[j].count {
			return entries[i].count > entries[j].count
		}
		return entries[i].key < entries[j].key
	})
	return entries
}

func renderPropertyTypes(w io.Writer, rule string, rows []Row) {
	entries := countBy(rows, "property_type")
	if len(entries) == 0 {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "PROPERTY TYPES")
	fmt.Fprintln(w, rule)
	for i, e := range entries {
		if i == 5 {
			break
		}
		fmt.Fprintf(w, "%-30s %6d (%.1f%%)\n", e.key, e.count, float64(e.count)/float64(len(rows))*100)
	}
}

func renderPrices(w io.Writer, rule string, rows []Row) {
	var prices []float64
	for _, row := range rows {
		raw := strings.ReplaceAll(row["price_azn"], " ", "")
		if raw == "" {
			continue
		}
		if p, err := strconv.ParseFloat(raw, 64); err == nil && p > 0 {
			prices = append(prices, p)
		}
	}
	if len(prices) == 0 {
		return
	}
	sort.Float64s(prices)
	sum := 0.0
	for _, p := range prices {
		sum += p
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "PRICES (AZN)")
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "Average:         %.0f\n", sum/float64(len(prices)))
	fmt.Fprintf(w, "Min:             %.0f\n", prices[0])
	fmt.Fprintf(w, "Max:             %.0f\n", prices[len(prices)-1])
	fmt.Fprintf(w, "Median:          %.0f\n", prices[len(prices)/2])
}

func renderRooms(w io.Writer, rule string, rows []Row) {
	entries := countBy(rows, "rooms")
	if len(entries) == 0 {
		return
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].key < entries[j].key })
	fmt.Fprintln(w)
	fmt.Fprintln(w, "ROOMS")
	fmt.Fprintln(w, rule)
	for i, e := range entries {
		if i == 5 {
			break
		}
		fmt.Fprintf(w, "%-20s %6d\n", e.key+" otaq:", e.count)
	}
}

func renderLocations(w io.Writer, rule string, rows []Row) {
	entries := countBy(rows, "location")
	if len(entries) == 0 {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "TOP LOCATIONS")
	fmt.Fprintln(w, rule)
	for i, e := range entries {
		if i == 10 {
			break
		}
		key := e.key
		if len(key) > 50 {
			key = key[:50]
		}
		fmt.Fprintf(w, "%-50s %6d\n", key, e.count)
	}
}
