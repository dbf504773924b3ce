package storage

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"grail-oracle/models"
)

// OfferLog appends raw offers to a CSV audit file, one row per observation.
// Rows are never rewritten: the file is the flat-file mirror of the
// append-only offers table. Safe for concurrent use.
type OfferLog struct {
	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
}

// NewOfferLog opens (or creates) the CSV file at path in append mode,
// writing the header row only when the file is new. Intermediate
// directories are created automatically.
func NewOfferLog(path string) (*OfferLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("offerlog: create output dir: %w", err)
	}

	info, statErr := os.Stat(path)
	isNew := statErr != nil || info.Size() == 0

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("offerlog: open file %q: %w", path, err)
	}

	w := csv.NewWriter(f)
	if isNew {
		if err := w.Write([]string{
			"item_id", "source", "region", "local_price", "local_currency",
			"landed_usd", "url", "condition", "title", "observed_at",
		}); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("offerlog: write header: %w", err)
		}
		w.Flush()
	}

	return &OfferLog{file: f, writer: w}, nil
}

// Append writes the offers as new audit rows.
func (l *OfferLog) Append(offers []*models.Offer) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, o := range offers {
		row := []string{
			o.ItemID,
			o.Source,
			o.Region,
			strconv.FormatFloat(o.LocalPrice, 'f', 2, 64),
			o.LocalCurrency,
			strconv.FormatFloat(o.LandedUSD, 'f', 2, 64),
			o.URL,
			o.Condition,
			o.Title,
			o.ObservedAt.Format(time.RFC3339),
		}
		if err := l.writer.Write(row); err != nil {
			return fmt.Errorf("offerlog: write row: %w", err)
		}
	}

	l.writer.Flush()
	return l.writer.Error()
}

// Close flushes and closes the underlying file.
func (l *OfferLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writer.Flush()
	return l.file.Close()
}
