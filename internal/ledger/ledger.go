// Package ledger persists harvest progress between runs.
//
// The ledger is the single writer of its state file. Every mutating call
// rewrites the file in full so a crash loses at most the in-flight
// operation, never committed history.
package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/akhundov/arenda-harvester/internal/harvest"
)

// Ledger is a mutex-guarded harvest.Ledger backed by a JSON state file.
type Ledger struct {
	mu        sync.Mutex
	path      string
	snap      harvest.Snapshot
	processed map[string]struct{}
	clock     harvest.Clock
	logger    *zap.Logger
}

// New loads the state file at path, falling back to a zero snapshot when the
// file is absent or unreadable. A corrupted ledger never blocks startup; the
// worst case is redundant re-processing.
func New(path string, clock harvest.Clock, logger *zap.Logger) *Ledger {
	l := &Ledger{
		path:      path,
		processed: make(map[string]struct{}),
		clock:     clock,
		logger:    logger,
	}
	l.load()
	return l
}

func (l *Ledger) load() {
	raw, err := os.ReadFile(l.path)
	if err != nil {
		if !os.IsNotExist(err) {
			l.logger.Warn("Failed to read state file; starting fresh",
				zap.String("path", l.path), zap.Error(err))
		}
		return
	}
	var snap harvest.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		l.logger.Warn("Corrupt state file; starting fresh",
			zap.String("path", l.path), zap.Error(err))
		return
	}
	l.snap = snap
	for _, id := range snap.Processed {
		l.processed[id] = struct{}{}
	}
}

// IsProcessed reports whether the item has already been harvested.
func (l *Ledger) IsProcessed(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.processed[id]
	return ok
}

// RecordSuccess adds the item to the processed set and persists. Calling it
// twice for the same id has no additional effect.
func (l *Ledger) RecordSuccess(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.processed[id]; ok {
		return
	}
	l.processed[id] = struct{}{}
	l.snap.Processed = append(l.snap.Processed, id)
	l.snap.TotalScraped++
	l.persist()
}

// RecordFailure appends a failure entry and persists. Entries are not
// deduplicated; the failure history is kept auditable.
func (l *Ledger) RecordFailure(id, url string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.snap.Failed = append(l.snap.Failed, harvest.FailureEntry{
		ID:   id,
		URL:  url,
		Time: l.clock.Now().Format(harvest.TimeFormat),
	})
	l.persist()
}

// ClearFailure removes every failure entry for the item and persists.
func (l *Ledger) ClearFailure(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kept := l.snap.Failed[:0]
	for _, f := range l.snap.Failed {
		if f.ID != id {
			kept = append(kept, f)
		}
	}
	if len(kept) == len(l.snap.Failed) {
		return
	}
	l.snap.Failed = kept
	l.persist()
}

// SetBoundary records the highest page reached and persists.
func (l *Ledger) SetBoundary(page int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.snap.LastPage = page
	l.persist()
}

// Snapshot returns a copy of the current state.
func (l *Ledger) Snapshot() harvest.Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := l.snap
	out.Processed = append([]string(nil), l.snap.Processed...)
	out.Failed = append([]harvest.FailureEntry(nil), l.snap.Failed...)
	return out
}

// persist rewrites the state file. I/O errors are logged and swallowed: the
// in-memory snapshot stays authoritative for the rest of the process even
// when a single write fails. Callers must hold l.mu.
func (l *Ledger) persist() {
	l.snap.LastUpdate = l.clock.Now().Format(harvest.TimeFormat)
	if err := l.write(); err != nil {
		l.logger.Error("Failed to persist state", zap.String("path", l.path), zap.Error(err))
	}
}

func (l *Ledger) write() error {
	payload, err := json.MarshalIndent(l.snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	tmp := l.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(l.path), 0o750); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	if err := os.WriteFile(tmp, payload, 0o600); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	if err := os.Rename(tmp, l.path); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}
