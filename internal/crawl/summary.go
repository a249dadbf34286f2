package crawl

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/shelfbase/catalog-harvester/internal/catalog"
	"github.com/shelfbase/catalog-harvester/internal/store"
)

// Exit codes for the crawl command.
const (
	// ExitClean means every category completed with zero unresolved
	// identifiers.
	ExitClean = 0
	// ExitPartial means at least one category carried residue: failed,
	// cancelled, or completed with unresolved identifiers.
	ExitPartial = 3
	// ExitFatal means the run aborted before working the taxonomy.
	ExitFatal = 4
)

// RunSummary aggregates one run's category outcomes plus identity and
// timing. Fatal carries the aborting error when the run did not finish.
type RunSummary struct {
	RunID     uuid.UUID
	Market    string
	StartedAt time.Time
	Elapsed   time.Duration
	Outcomes  []catalog.CategoryRunOutcome
	Fatal     error
}

// CategoriesAttempted counts every category the taxonomy yielded,
// including skipped ones.
func (s *RunSummary) CategoriesAttempted() int {
	return len(s.Outcomes)
}

// CategoriesClean counts categories that finished with nothing to warn
// about.
func (s *RunSummary) CategoriesClean() int {
	clean := 0
	for _, outcome := range s.Outcomes {
		if outcome.Clean() {
			clean++
		}
	}
	return clean
}

// ProductsWritten totals records flushed across all categories.
func (s *RunSummary) ProductsWritten() int {
	total := 0
	for _, outcome := range s.Outcomes {
		total += outcome.ProductsWritten
	}
	return total
}

// Clean reports whether the run finished with every category clean.
func (s *RunSummary) Clean() bool {
	if s.Fatal != nil {
		return false
	}
	for _, outcome := range s.Outcomes {
		if !outcome.Clean() {
			return false
		}
	}
	return true
}

// Status labels the run for persistence and messages. Partial category
// residue still counts as succeeded; only a fatal abort fails the run.
func (s *RunSummary) Status() store.RunStatus {
	if s.Fatal != nil {
		return store.RunFailed
	}
	return store.RunSucceeded
}

// ExitCode maps the run onto the process exit contract.
func (s *RunSummary) ExitCode() int {
	if s.Fatal != nil {
		return ExitFatal
	}
	if s.Clean() {
		return ExitClean
	}
	return ExitPartial
}

func (s *RunSummary) runMessage(ts time.Time) RunMessage {
	msg := RunMessage{
		RunID:           s.RunID.String(),
		Market:          s.Market,
		Status:          string(s.Status()),
		CategoriesTotal: s.CategoriesAttempted(),
		CategoriesClean: s.CategoriesClean(),
		ProductsWritten: s.ProductsWritten(),
		ElapsedMS:       s.Elapsed.Milliseconds(),
		Timestamp:       ts.UTC().Format(time.RFC3339),
	}
	if s.Fatal != nil {
		msg.Failure = s.Fatal.Error()
	}
	return msg
}

type summaryArtifact struct {
	RunID               string             `json:"run_id"`
	Market              string             `json:"market"`
	Status              string             `json:"status"`
	StartedAt           time.Time          `json:"started_at"`
	ElapsedMS           int64              `json:"elapsed_ms"`
	CategoriesAttempted int                `json:"categories_attempted"`
	CategoriesClean     int                `json:"categories_clean"`
	ProductsWritten     int                `json:"products_written"`
	Failure             string             `json:"failure,omitempty"`
	Categories          []categoryArtifact `json:"categories"`
}

type categoryArtifact struct {
	Slug        string                         `json:"slug"`
	DisplayName string                         `json:"display_name,omitempty"`
	State       string                         `json:"state"`
	Enumerated  int                            `json:"enumerated"`
	Written     int                            `json:"written"`
	Unresolved  []catalog.UnresolvedIdentifier `json:"unresolved,omitempty"`
	ElapsedMS   int64                          `json:"elapsed_ms"`
	Failure     string                         `json:"failure,omitempty"`
}

// WriteArtifact renders summary.json next to the run's output units.
func (s *RunSummary) WriteArtifact(dir string) error {
	artifact := summaryArtifact{
		RunID:               s.RunID.String(),
		Market:              s.Market,
		Status:              string(s.Status()),
		StartedAt:           s.StartedAt.UTC(),
		ElapsedMS:           s.Elapsed.Milliseconds(),
		CategoriesAttempted: s.CategoriesAttempted(),
		CategoriesClean:     s.CategoriesClean(),
		ProductsWritten:     s.ProductsWritten(),
		Categories:          make([]categoryArtifact, 0, len(s.Outcomes)),
	}
	if s.Fatal != nil {
		artifact.Failure = s.Fatal.Error()
	}
	for _, outcome := range s.Outcomes {
		artifact.Categories = append(artifact.Categories, categoryArtifact{
			Slug:        outcome.Category.Slug(),
			DisplayName: outcome.Category.DisplayName,
			State:       string(outcome.State),
			Enumerated:  outcome.Enumerated,
			Written:     outcome.ProductsWritten,
			Unresolved:  outcome.Unresolved,
			ElapsedMS:   outcome.Elapsed.Milliseconds(),
			Failure:     outcome.FailureText(),
		})
	}

	data, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding summary: %w", err)
	}
	path := filepath.Join(dir, "summary.json")
	if err := os.WriteFile(path, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
