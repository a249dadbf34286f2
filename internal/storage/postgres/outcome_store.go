// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shelfbase/catalog-harvester/internal/store"
)

// OutcomeStoreConfig controls the Postgres connection pool used for
// harvest run persistence.
type OutcomeStoreConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pgxDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// OutcomeStore implements store.OutcomeRepository using Postgres.
type OutcomeStore struct {
	db pgxDB
}

// NewOutcomeStore creates a Postgres-backed OutcomeStore using the
// provided config.
func NewOutcomeStore(ctx context.Context, cfg OutcomeStoreConfig) (*OutcomeStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("store.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &OutcomeStore{db: pool}, nil
}

// NewOutcomeStoreWithDB constructs a store from an existing pool
// (primarily for testing).
func NewOutcomeStoreWithDB(db pgxDB) (*OutcomeStore, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	return &OutcomeStore{db: db}, nil
}

// Close releases the underlying pool resources.
func (s *OutcomeStore) Close() {
	if s == nil || s.db == nil {
		return
	}
	s.db.Close()
}

// StartRun inserts the running row; replaying the same run refreshes it.
func (s *OutcomeStore) StartRun(ctx context.Context, id uuid.UUID, market string, startedAt time.Time) error {
	query := `
		INSERT INTO harvest_runs (id, market, started_at, status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET market = EXCLUDED.market, started_at = EXCLUDED.started_at, status = EXCLUDED.status;
	`
	if _, err := s.db.Exec(ctx, query, id, market, startedAt, store.RunRunning); err != nil {
		return fmt.Errorf("failed to start run: %w", err)
	}
	return nil
}

// CompleteRun marks a run finished with its final tallies.
func (s *OutcomeStore) CompleteRun(
	ctx context.Context,
	id uuid.UUID,
	finishedAt time.Time,
	status store.RunStatus,
	categoriesTotal, categoriesClean, productsWritten int,
	errMsg *string,
) error {
	query := `
		UPDATE harvest_runs
		SET finished_at = $1, status = $2, categories_total = $3,
			categories_clean = $4, products_written = $5, error_message = $6
		WHERE id = $7;
	`
	_, err := s.db.Exec(ctx, query, finishedAt, status, categoriesTotal, categoriesClean, productsWritten, errMsg, id)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	return nil
}

// RecordCategoryOutcome stores one category's terminal row.
func (s *OutcomeStore) RecordCategoryOutcome(ctx context.Context, rec store.CategoryOutcomeRecord) error {
	if rec.Slug == "" {
		return fmt.Errorf("category slug is required")
	}
	query := `
		INSERT INTO harvest_category_outcomes
			(run_id, slug, display_name, state, enumerated, written, unresolved, failure_text, elapsed_ms, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (run_id, slug) DO UPDATE
		SET state = EXCLUDED.state, enumerated = EXCLUDED.enumerated, written = EXCLUDED.written,
			unresolved = EXCLUDED.unresolved, failure_text = EXCLUDED.failure_text,
			elapsed_ms = EXCLUDED.elapsed_ms, finished_at = EXCLUDED.finished_at;
	`
	args := []any{
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
	}
	if _, err := s.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to record category outcome: %w", err)
	}
	return nil
}

// GetRun retrieves a single run by its ID.
func (s *OutcomeStore) GetRun(ctx context.Context, id uuid.UUID) (store.RunRecord, error) {
	query := `
		SELECT id, market, started_at, finished_at, status,
			categories_total, categories_clean, products_written, error_message
		FROM harvest_runs
		WHERE id = $1;
	`
	var run store.RunRecord
	err := s.db.QueryRow(ctx, query, id).Scan(
		&run.ID,
		&run.Market,
		&run.StartedAt,
		&run.FinishedAt,
		&run.Status,
		&run.CategoriesTotal,
		&run.CategoriesClean,
		&run.ProductsWritten,
		&run.ErrorMessage,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.RunRecord{}, store.ErrNotFound
		}
		return store.RunRecord{}, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns retrieves runs, newest first, with optional status filtering.
func (s *OutcomeStore) ListRuns(
	ctx context.Context,
	status *store.RunStatus,
	limit,
	offset int,
) ([]store.RunRecord, error) {
	query := `
		SELECT id, market, started_at, finished_at, status,
			categories_total, categories_clean, products_written, error_message
		FROM harvest_runs
		WHERE ($1::text IS NULL OR status = $1)
		ORDER BY started_at DESC
		LIMIT $2 OFFSET $3;
	`
	rows, err := s.db.Query(ctx, query, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []store.RunRecord
	for rows.Next() {
		var run store.RunRecord
		err := rows.Scan(
			&run.ID,
			&run.Market,
			&run.StartedAt,
			&run.FinishedAt,
			&run.Status,
			&run.CategoriesTotal,
			&run.CategoriesClean,
			&run.ProductsWritten,
			&run.ErrorMessage,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, nil
}

// ListRunCategories retrieves category outcomes for a given run.
func (s *OutcomeStore) ListRunCategories(
	ctx context.Context,
	runID uuid.UUID,
	limit,
	offset int,
) ([]store.CategoryOutcomeRecord, error) {
	query := `
		SELECT run_id, slug, display_name, state, enumerated, written, unresolved, failure_text, elapsed_ms, finished_at
		FROM harvest_category_outcomes
		WHERE run_id = $1
		ORDER BY finished_at ASC
		LIMIT $2 OFFSET $3;
	`
	rows, err := s.db.Query(ctx, query, runID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list run categories: %w", err)
	}
	defer rows.Close()

	var outcomes []store.CategoryOutcomeRecord
	for rows.Next() {
		var rec store.CategoryOutcomeRecord
		err := rows.Scan(
			&rec.RunID,
			&rec.Slug,
			&rec.DisplayName,
			&rec.State,
			&rec.Enumerated,
			&rec.Written,
			&rec.Unresolved,
			&rec.FailureText,
			&rec.ElapsedMS,
			&rec.FinishedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan category outcome row: %w", err)
		}
		outcomes = append(outcomes, rec)
	}
	return outcomes, nil
}
