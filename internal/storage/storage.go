package storage

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/lehigh-university-libraries/img2pdf/internal/models"
	"github.com/parquet-go/parquet-go"
)

// DefaultLimit bounds how many conversions are kept in memory.
const DefaultLimit = 1000

// HistoryStore keeps recent conversion records, evicting the oldest once
// the limit is reached.
type HistoryStore struct {
	records map[string]models.ConversionRecord
	order   []string
	limit   int
	mu      sync.RWMutex
}

func New(limit int) *HistoryStore {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &HistoryStore{
		records: make(map[string]models.ConversionRecord),
		limit:   limit,
	}
}

func (s *HistoryStore) Get(id string) (models.ConversionRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, exists := s.records[id]
	return rec, exists
}

func (s *HistoryStore) Add(rec models.ConversionRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[rec.ID]; !exists {
		s.order = append(s.order, rec.ID)
	}
	s.records[rec.ID] = rec
	for len(s.order) > s.limit {
		delete(s.records, s.order[0])
		s.order = s.order[1:]
	}
}

// All returns every record, newest first.
func (s *HistoryStore) All() []models.ConversionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]models.ConversionRecord, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		result = append(result, s.records[s.order[i]])
	}
	return result
}

func (s *HistoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// WriteParquet exports the history in insertion order.
func (s *HistoryStore) WriteParquet(path string) error {
	records := s.All()
	sort.SliceStable(records, func(i, j int) bool { return records[i].CreatedAt.Before(records[j].CreatedAt) })

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create history directory: %w", err)
		}
	}
	if err := parquet.WriteFile(path, records); err != nil {
		return fmt.Errorf("failed to write parquet: %w", err)
	}
	slog.Info("Conversion history written", "path", path, "records", len(records))
	return nil
}

// ReadParquet loads records previously written by WriteParquet.
func ReadParquet(path string) ([]models.ConversionRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	pf, err := parquet.OpenFile(file, info.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet: %w", err)
	}

	reader := parquet.NewGenericReader[models.ConversionRecord](pf)
	defer reader.Close()

	var records []models.ConversionRecord
	for {
		// fresh buffer per batch; the reader reuses slice fields of the rows it fills
		rows := make([]models.ConversionRecord, 128)
		n, err := reader.Read(rows)
		records = append(records, rows[:n]...)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read parquet rows: %w", err)
		}
	}
	slog.Debug("Read conversion history", "path", path, "records", len(records))
	return records, nil
}
