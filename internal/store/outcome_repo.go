// Package store declares interfaces for persisting harvest run outcomes.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("harvest record not found")

// RunStatus mirrors the harvest_runs status column.
type RunStatus string

// Run statuses persisted in harvest_runs.status.
const (
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// RunRecord models the harvest_runs table for API responses.
type RunRecord struct {
	// ID is the run identifier shared with progress events and artifacts.
	ID uuid.UUID
	// Market is the storefront the run targeted.
	Market string
	// StartedAt captures when the run was first marked running.
	StartedAt time.Time
	// FinishedAt is nil until the run is marked succeeded/failed.
	FinishedAt *time.Time
	// Status is running/succeeded/failed.
	Status RunStatus
	// CategoriesTotal counts the categories the taxonomy yielded.
	CategoriesTotal int
	// CategoriesClean counts categories that finished without residue.
	CategoriesClean int
	// ProductsWritten totals records flushed across all categories.
	ProductsWritten int
	// ErrorMessage optionally stores the final failure reason.
	ErrorMessage *string
}

// CategoryOutcomeRecord models one row of harvest_category_outcomes.
type CategoryOutcomeRecord struct {
	// RunID is the owning run.
	RunID uuid.UUID
	// Slug is the category's output unit key.
	Slug string
	// DisplayName is the human-readable category name.
	DisplayName string
	// State is the terminal state label.
	State string
	// Enumerated counts identifiers gathered from listing pages.
	Enumerated int
	// Written counts records flushed to the output unit.
	Written int
	// Unresolved counts identifiers that stayed unresolved.
	Unresolved int
	// FailureText optionally stores the category's failure reason.
	FailureText *string
	// ElapsedMS is the category's wall time in milliseconds.
	ElapsedMS int64
	// FinishedAt captures when the category reached its terminal state.
	FinishedAt time.Time
}

// OutcomeRepository persists run lifecycles and per-category outcomes.
type OutcomeRepository interface {
	// StartRun inserts (or idempotently refreshes) the running row.
	StartRun(ctx context.Context, id uuid.UUID, market string, startedAt time.Time) error
	// CompleteRun marks the run finished with its final tallies.
	CompleteRun(
		ctx context.Context,
		id uuid.UUID,
		finishedAt time.Time,
		status RunStatus,
		categoriesTotal, categoriesClean, productsWritten int,
		errMsg *string,
	) error
	// RecordCategoryOutcome appends one category's terminal row.
	RecordCategoryOutcome(ctx context.Context, rec CategoryOutcomeRecord) error

	// GetRun loads a single run or returns ErrNotFound.
	GetRun(ctx context.Context, id uuid.UUID) (RunRecord, error)
	// ListRuns returns runs filtered by optional status plus limit/offset.
	ListRuns(ctx context.Context, status *RunStatus, limit, offset int) ([]RunRecord, error)
	// ListRunCategories returns category outcomes for one run.
	ListRunCategories(ctx context.Context, runID uuid.UUID, limit, offset int) ([]CategoryOutcomeRecord, error)
}
