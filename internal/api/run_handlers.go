package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shelfbase/catalog-harvester/internal/store"
)

const (
	defaultRunLimit      = 50
	maxRunLimit          = 500
	defaultCategoryLimit = 100
	maxCategoryLimit     = 1000
	outcomeTimeout       = 3 * time.Second
)

// RunsHandler exposes read-only harvest run endpoints.
type RunsHandler struct {
	repo    store.OutcomeRepository
	timeout time.Duration
	logger  *zap.Logger
}

// NewRunsHandler wires the repository and logger.
func NewRunsHandler(repo store.OutcomeRepository, logger *zap.Logger) *RunsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RunsHandler{
		repo:    repo,
		timeout: outcomeTimeout,
		logger:  logger,
	}
}

// ListRuns handles GET /v1/runs?status=&limit=&offset=. It returns a JSON
// object {"runs": [...]} on success, 400 for invalid filters, 503 when the
// repository is unavailable, or 500 if the repository call fails.
func (h *RunsHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "outcome repository unavailable")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	limit, offset, err := parseLimitOffset(r, defaultRunLimit, maxRunLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	statusParam := strings.TrimSpace(r.URL.Query().Get("status"))
	var status *store.RunStatus
	if statusParam != "" {
		statusVal, parseErr := parseStatus(statusParam)
		if parseErr != nil {
			writeError(w, http.StatusBadRequest, parseErr.Error())
			return
		}
		status = &statusVal
	}
	runs, err := h.repo.ListRuns(ctx, status, limit, offset)
	if err != nil {
		h.logger.Error("list runs failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"runs": toRunDTOs(runs),
	})
}

// GetRun handles GET /v1/runs/{run_id}. It returns {"run": {...}} on success,
// 400 for malformed IDs, 404 when the repository reports store.ErrNotFound,
// 503 if the repository is not initialized, or 500 otherwise.
func (h *RunsHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "outcome repository unavailable")
		return
	}
	runID, err := parseRunID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	run, err := h.repo.GetRun(ctx, runID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		h.logger.Error("get run failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load run")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run": toRunDTO(run)})
}

// ListRunCategories handles GET /v1/runs/{run_id}/categories?limit=&offset=.
// It returns {"categories": [...]} on success, 400 for invalid query
// parameters, 503 when the repository is missing, or 500 for repository
// errors.
func (h *RunsHandler) ListRunCategories(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "outcome repository unavailable")
		return
	}
	runID, err := parseRunID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, offset, err := parseLimitOffset(r, defaultCategoryLimit, maxCategoryLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	categories, err := h.repo.ListRunCategories(ctx, runID, limit, offset)
	if err != nil {
		h.logger.Error("list run categories failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list run categories")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"categories": toCategoryDTOs(categories),
	})
}

func parseRunID(r *http.Request) (uuid.UUID, error) {
	runIDStr := chi.URLParam(r, "run_id")
	if runIDStr == "" {
		return uuid.UUID{}, errors.New("run_id is required")
	}
	runID, err := uuid.Parse(runIDStr)
	if err != nil {
		return uuid.UUID{}, errors.New("invalid run_id")
	}
	return runID, nil
}

func parseLimitOffset(r *http.Request, def, maxLimit int) (int, int, error) {
	q := r.URL.Query()
	limit := def
	if limStr := q.Get("limit"); limStr != "" {
		val, err := strconv.Atoi(limStr)
		if err != nil || val <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
		if val > maxLimit {
			val = maxLimit
		}
		limit = val
	}
	offset := 0
	if offStr := q.Get("offset"); offStr != "" {
		val, err := strconv.Atoi(offStr)
		if err != nil || val < 0 {
			return 0, 0, errors.New("invalid offset")
		}
		offset = val
	}
	return limit, offset, nil
}

func parseStatus(input string) (store.RunStatus, error) {
	switch strings.ToLower(input) {
	case "running":
		return store.RunRunning, nil
	case "succeeded", "success":
		return store.RunSucceeded, nil
	case "failed", "failure", "error":
		return store.RunFailed, nil
	default:
		return "", errors.New("invalid status")
	}
}

func toRunDTOs(in []store.RunRecord) []runDTO {
	out := make([]runDTO, 0, len(in))
	for _, run := range in {
		out = append(out, toRunDTO(run))
	}
	return out
}

func toRunDTO(run store.RunRecord) runDTO {
	return runDTO{
		ID:              run.ID.String(),
		Market:          run.Market,
		StartedAt:       run.StartedAt,
		FinishedAt:      run.FinishedAt,
		Status:          string(run.Status),
		CategoriesTotal: run.CategoriesTotal,
		CategoriesClean: run.CategoriesClean,
		ProductsWritten: run.ProductsWritten,
		Error:           run.ErrorMessage,
	}
}

func toCategoryDTOs(in []store.CategoryOutcomeRecord) []categoryDTO {
	out := make([]categoryDTO, 0, len(in))
	for _, rec := range in {
		out = append(out, categoryDTO{
			Slug:        rec.Slug,
			DisplayName: rec.DisplayName,
			State:       rec.State,
			Enumerated:  rec.Enumerated,
			Written:     rec.Written,
			Unresolved:  rec.Unresolved,
			Failure:     rec.FailureText,
			ElapsedMS:   rec.ElapsedMS,
			FinishedAt:  rec.FinishedAt,
		})
	}
	return out
}

type runDTO struct {
	ID              string     `json:"id"`
	Market          string     `json:"market"`
	StartedAt       time.Time  `json:"started_at"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
	Status          string     `json:"status"`
	CategoriesTotal int        `json:"categories_total"`
	CategoriesClean int        `json:"categories_clean"`
	ProductsWritten int        `json:"products_written"`
	Error           *string    `json:"error,omitempty"`
}

type categoryDTO struct {
	Slug        string    `json:"slug"`
	DisplayName string    `json:"display_name"`
	State       string    `json:"state"`
	Enumerated  int       `json:"enumerated"`
	Written     int       `json:"written"`
	Unresolved  int       `json:"unresolved"`
	Failure     *string   `json:"failure,omitempty"`
	ElapsedMS   int64     `json:"elapsed_ms"`
	FinishedAt  time.Time `json:"finished_at"`
}
