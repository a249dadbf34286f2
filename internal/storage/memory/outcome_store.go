package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shelfbase/catalog-harvester/internal/store"
)

// OutcomeStore provides an in-memory store.OutcomeRepository for
// development and testing.
type OutcomeStore struct {
	mu       sync.RWMutex
	runs     map[uuid.UUID]store.RunRecord
	outcomes map[uuid.UUID][]store.CategoryOutcomeRecord
}

// NewOutcomeStore constructs an empty OutcomeStore.
func NewOutcomeStore() *OutcomeStore {
	return &OutcomeStore{
		runs:     make(map[uuid.UUID]store.RunRecord),
		outcomes: make(map[uuid.UUID][]store.CategoryOutcomeRecord),
	}
}

// StartRun stores a new run in running status.
func (s *OutcomeStore) StartRun(_ context.Context, id uuid.UUID, market string, startedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[id] = store.RunRecord{
		ID:        id,
		Market:    market,
		StartedAt: startedAt,
		Status:    store.RunRunning,
	}
	return nil
}

// CompleteRun finalizes the run's status and tallies.
func (s *OutcomeStore) CompleteRun(
	_ context.Context,
	id uuid.UUID,
	finishedAt time.Time,
	status store.RunStatus,
	categoriesTotal, categoriesClean, productsWritten int,
	errMsg *string,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return store.ErrNotFound
	}
	run.FinishedAt = pointerTime(finishedAt)
	run.Status = status
	run.CategoriesTotal = categoriesTotal
	run.CategoriesClean = categoriesClean
	run.ProductsWritten = productsWritten
	run.ErrorMessage = errMsg
	s.runs[id] = run
	return nil
}

// RecordCategoryOutcome appends, or replaces, one category's row.
func (s *OutcomeStore) RecordCategoryOutcome(_ context.Context, rec store.CategoryOutcomeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := s.outcomes[rec.RunID]
	for i, existing := range rows {
		if existing.Slug == rec.Slug {
			rows[i] = rec
			return nil
		}
	}
	s.outcomes[rec.RunID] = append(rows, rec)
	return nil
}

// GetRun fetches a run by ID.
func (s *OutcomeStore) GetRun(_ context.Context, id uuid.UUID) (store.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return store.RunRecord{}, store.ErrNotFound
	}
	return run, nil
}

// ListRuns returns runs newest first with optional status filtering.
func (s *OutcomeStore) ListRuns(_ context.Context, status *store.RunStatus, limit, offset int) ([]store.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var runs []store.RunRecord
	for _, run := range s.runs {
		if status != nil && run.Status != *status {
			continue
		}
		runs = append(runs, run)
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
	return window(runs, limit, offset), nil
}

// ListRunCategories returns category outcomes for a run in completion order.
func (s *OutcomeStore) ListRunCategories(_ context.Context, runID uuid.UUID, limit, offset int) ([]store.CategoryOutcomeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := append([]store.CategoryOutcomeRecord(nil), s.outcomes[runID]...)
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].FinishedAt.Before(rows[j].FinishedAt)
	})
	return window(rows, limit, offset), nil
}

func window[T any](rows []T, limit, offset int) []T {
	if offset >= len(rows) {
		return nil
	}
	rows = rows[offset:]
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	return rows
}

func pointerTime(t time.Time) *time.Time {
	ts := t
	return &ts
}
