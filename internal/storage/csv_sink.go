package storage

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/autovista-hq/autovista-harvester/internal/domain"
)

// RecordSink is the append-only destination for normalized records.
type RecordSink interface {
	Append(records []domain.Record) error
	Close() error
}

// CSVSink appends records to a tabular file whose header row is the canonical
// schema in order. The header is written once, when the file is created or
// empty; later runs only append rows, never rewrite.
type CSVSink struct {
	mu   sync.Mutex
	file *os.File
}

// NewCSVSink opens (creating if needed) the CSV output at path.
func NewCSVSink(path string) (*CSVSink, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create output directory: %w", err)
		}
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open records file: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("stat records file: %w", err)
	}
	if info.Size() == 0 {
		w := csv.NewWriter(file)
		if err := w.Write(domain.Schema); err != nil {
			file.Close()
			return nil, fmt.Errorf("write csv header: %w", err)
		}
		w.Flush()
		if err := w.Error(); err != nil {
			file.Close()
			return nil, fmt.Errorf("write csv header: %w", err)
		}
		if err := file.Sync(); err != nil {
			file.Close()
			return nil, fmt.Errorf("sync csv header: %w", err)
		}
	}

	return &CSVSink{file: file}, nil
}

// Append writes the records as CSV rows in schema order.
func (s *CSVSink) Append(records []domain.Record) error {
	if s == nil || len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	w := csv.NewWriter(s.file)
	for _, rec := range records {
		if err := w.Write(rec.Row()); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush csv rows: %w", err)
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("sync records file: %w", err)
	}
	return nil
}

// Close closes the underlying file.
func (s *CSVSink) Close() error {
	if s == nil || s.file == nil {
		return nil
	}
	return s.file.Close()
}
