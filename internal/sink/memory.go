package sink

import (
	"errors"
	"sync"

	"github.com/shelfbase/catalog-harvester/internal/catalog"
)

// MemorySink collects records in memory. Intended for tests and dry
// runs.
type MemorySink struct {
	mu      sync.Mutex
	records map[string][]catalog.ProductRecord
}

// NewMemorySink returns an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{records: make(map[string][]catalog.ProductRecord)}
}

// Open truncates any previously collected records for the slug.
func (s *MemorySink) Open(slug string) (Writer, error) {
	if slug == "" {
		return nil, errors.New("slug is required")
	}
	s.mu.Lock()
	s.records[slug] = nil
	s.mu.Unlock()
	return &memoryWriter{sink: s, slug: slug}, nil
}

// HasOutput reports whether the slug was opened before.
func (s *MemorySink) HasOutput(slug string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.records[slug]
	return ok, nil
}

// Written returns a copy of the records collected for the slug.
func (s *MemorySink) Written(slug string) []catalog.ProductRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]catalog.ProductRecord(nil), s.records[slug]...)
}

type memoryWriter struct {
	sink   *MemorySink
	slug   string
	closed bool
}

func (w *memoryWriter) Write(rec catalog.ProductRecord) error {
	if w.closed {
		return errors.New("output unit already closed")
	}
	w.sink.mu.Lock()
	defer w.sink.mu.Unlock()
	w.sink.records[w.slug] = append(w.sink.records[w.slug], rec)
	return nil
}

func (w *memoryWriter) Close() error {
	w.closed = true
	return nil
}
