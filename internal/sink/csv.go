// Package sink persists completed listings to an append-only CSV file.
package sink

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/akhundov/arenda-harvester/internal/harvest"
)

// utf8BOM keeps the output readable by spreadsheet tools that sniff the
// byte order mark to pick an encoding.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CSV is a concurrency-safe append-only listing writer. The header row is
// written exactly once, when the file is first created; later runs append
// rows without touching it.
type CSV struct {
	mu     sync.Mutex
	path   string
	logger *zap.Logger
}

// NewCSV ensures the output file exists with its header and returns the sink.
func NewCSV(path string, logger *zap.Logger) (*CSV, error) {
	s := &CSV{path: path, logger: logger}
	if err := s.initialize(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *CSV) initialize() error {
	if _, err := os.Stat(s.path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat output file %s: %w", s.path, err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o750); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("create output file %s: %w", s.path, err)
	}
	defer f.Close() //nolint:errcheck

	if _, err := f.Write(utf8BOM); err != nil {
		return fmt.Errorf("write BOM: %w", err)
	}
	w := csv.NewWriter(f)
	if err := w.Write(harvest.Columns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush header: %w", err)
	}
	return f.Close()
}

// Append writes one listing row. The write either fully succeeds or returns
// an error; callers rely on that to keep the ledger and the output in step.
func (s *CSV) Append(l *harvest.Listing) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open output file %s: %w", s.path, err)
	}
	defer f.Close() //nolint:errcheck

	w := csv.NewWriter(f)
	if err := w.Write(l.Values()); err != nil {
		return fmt.Errorf("write row for %s: %w", l.ListingID, err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush row for %s: %w", l.ListingID, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close output file: %w", err)
	}
	return nil
}
