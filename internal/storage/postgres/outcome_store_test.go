package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/shelfbase/catalog-harvester/internal/store"
)

func TestStartRunUpsertsRunningRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s, err := NewOutcomeStoreWithDB(mock)
	require.NoError(t, err)

	runID := uuid.New()
	startedAt := time.Unix(1700000000, 0).UTC()

	mock.ExpectExec("INSERT INTO harvest_runs").
		WithArgs(runID, "uk", startedAt, store.RunRunning).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.StartRun(context.Background(), runID, "uk", startedAt))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteRunUpdatesTallies(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s, err := NewOutcomeStoreWithDB(mock)
	require.NoError(t, err)

	runID := uuid.New()
	finishedAt := time.Unix(1700000500, 0).UTC()
	errMsg := "2 categories failed"

	mock.ExpectExec("UPDATE harvest_runs").
		WithArgs(finishedAt, store.RunFailed, 42, 40, 31250, &errMsg, runID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, s.CompleteRun(context.Background(), runID, finishedAt, store.RunFailed, 42, 40, 31250, &errMsg))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordCategoryOutcomeInsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s, err := NewOutcomeStoreWithDB(mock)
	require.NoError(t, err)

	runID := uuid.New()
	finishedAt := time.Unix(1700000400, 0).UTC()

	rec := store.CategoryOutcomeRecord{
		RunID:       runID,
		Slug:        "food-dairy",
		DisplayName: "Dairy",
		State:       "completed",
		Enumerated:  950,
		Written:     948,
		Unresolved:  2,
		ElapsedMS:   41500,
		FinishedAt:  finishedAt,
	}

	mock.ExpectExec("INSERT INTO harvest_category_outcomes").
		WithArgs(
			rec.RunID,
			rec.Slug,
			rec.DisplayName,
			rec.State,
			rec.Enumerated,
			rec.Written,
			rec.Unresolved,
			rec.FailureText,
			rec.ElapsedMS,
			rec.FinishedAt,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.RecordCategoryOutcome(context.Background(), rec))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordCategoryOutcomeRequiresSlug(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s, err := NewOutcomeStoreWithDB(mock)
	require.NoError(t, err)

	err = s.RecordCategoryOutcome(context.Background(), store.CategoryOutcomeRecord{RunID: uuid.New()})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRunMapsNoRowsToNotFound(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s, err := NewOutcomeStoreWithDB(mock)
	require.NoError(t, err)

	runID := uuid.New()
	mock.ExpectQuery("SELECT id, market, started_at").
		WithArgs(runID).
		WillReturnError(pgx.ErrNoRows)

	_, err = s.GetRun(context.Background(), runID)
	require.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRunScansRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s, err := NewOutcomeStoreWithDB(mock)
	require.NoError(t, err)

	runID := uuid.New()
	startedAt := time.Unix(1700000000, 0).UTC()
	finishedAt := time.Unix(1700000500, 0).UTC()

	rows := pgxmock.NewRows([]string{
		"id", "market", "started_at", "finished_at", "status",
		"categories_total", "categories_clean", "products_written", "error_message",
	}).AddRow(runID, "cz", startedAt, &finishedAt, store.RunSucceeded, 42, 42, 31250, (*string)(nil))

	mock.ExpectQuery("SELECT id, market, started_at").
		WithArgs(runID).
		WillReturnRows(rows)

	run, err := s.GetRun(context.Background(), runID)
	require.NoError(t, err)
	require.Equal(t, runID, run.ID)
	require.Equal(t, "cz", run.Market)
	require.Equal(t, store.RunSucceeded, run.Status)
	require.Equal(t, 42, run.CategoriesClean)
	require.NotNil(t, run.FinishedAt)
	require.Nil(t, run.ErrorMessage)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListRunsAppliesStatusFilter(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s, err := NewOutcomeStoreWithDB(mock)
	require.NoError(t, err)

	status := store.RunFailed
	runID := uuid.New()
	startedAt := time.Unix(1700000000, 0).UTC()

	rows := pgxmock.NewRows([]string{
		"id", "market", "started_at", "finished_at", "status",
		"categories_total", "categories_clean", "products_written", "error_message",
	}).AddRow(runID, "uk", startedAt, (*time.Time)(nil), store.RunFailed, 10, 8, 900, (*string)(nil))

	mock.ExpectQuery("SELECT id, market, started_at").
		WithArgs(&status, 20, 0).
		WillReturnRows(rows)

	runs, err := s.ListRuns(context.Background(), &status, 20, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, store.RunFailed, runs[0].Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListRunCategoriesScansRows(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s, err := NewOutcomeStoreWithDB(mock)
	require.NoError(t, err)

	runID := uuid.New()
	finishedAt := time.Unix(1700000400, 0).UTC()
	failure := "enumeration incomplete: category dairy page 3: storefront melted"

	rows := pgxmock.NewRows([]string{
		"run_id", "slug", "display_name", "state", "enumerated", "written",
		"unresolved", "failure_text", "elapsed_ms", "finished_at",
	}).
		AddRow(runID, "food-dairy", "Dairy", "completed", 950, 948, 2, (*string)(nil), int64(41500), finishedAt).
		AddRow(runID, "bakery", "Bakery", "failed", 240, 240, 0, &failure, int64(12000), finishedAt)

	mock.ExpectQuery("SELECT run_id, slug").
		WithArgs(runID, 50, 0).
		WillReturnRows(rows)

	outcomes, err := s.ListRunCategories(context.Background(), runID, 50, 0)
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	require.Equal(t, "food-dairy", outcomes[0].Slug)
	require.Equal(t, "failed", outcomes[1].State)
	require.NotNil(t, outcomes[1].FailureText)
	require.NoError(t, mock.ExpectationsWereMet())
}
