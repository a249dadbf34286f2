package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// NoOpRepository discards every write and answers reads with
// ErrNotFound. Used when no database is configured.
type NoOpRepository struct{}

// NewNoOpRepository returns the do-nothing repository.
func NewNoOpRepository() *NoOpRepository {
	return &NoOpRepository{}
}

func (*NoOpRepository) StartRun(context.Context, uuid.UUID, string, time.Time) error {
	return nil
}

func (*NoOpRepository) CompleteRun(context.Context, uuid.UUID, time.Time, RunStatus, int, int, int, *string) error {
	return nil
}

func (*NoOpRepository) RecordCategoryOutcome(context.Context, CategoryOutcomeRecord) error {
	return nil
}

func (*NoOpRepository) GetRun(context.Context, uuid.UUID) (RunRecord, error) {
	return RunRecord{}, ErrNotFound
}

func (*NoOpRepository) ListRuns(context.Context, *RunStatus, int, int) ([]RunRecord, error) {
	return nil, nil
}

func (*NoOpRepository) ListRunCategories(context.Context, uuid.UUID, int, int) ([]CategoryOutcomeRecord, error) {
	return nil, nil
}
