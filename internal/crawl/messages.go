package crawl

import (
	"time"

	"github.com/google/uuid"

	"github.com/shelfbase/catalog-harvester/internal/catalog"
)

// CategoryMessage is the JSON payload published when a category reaches
// a terminal state.
type CategoryMessage struct {
	RunID       string `json:"run_id"`
	Market      string `json:"market"`
	Slug        string `json:"slug"`
	DisplayName string `json:"display_name,omitempty"`
	State       string `json:"state"`
	Enumerated  int    `json:"enumerated"`
	Written     int    `json:"written"`
	Unresolved  int    `json:"unresolved"`
	Failure     string `json:"failure,omitempty"`
	ElapsedMS   int64  `json:"elapsed_ms"`
	Timestamp   string `json:"timestamp"`
}

// MessageAttributes lets subscriptions filter category messages without
// decoding bodies.
func (m CategoryMessage) MessageAttributes() map[string]string {
	return map[string]string{"kind": "category", "market": m.Market, "state": m.State}
}

func newCategoryMessage(runID uuid.UUID, market string, outcome catalog.CategoryRunOutcome, ts time.Time) CategoryMessage {
	return CategoryMessage{
		RunID:       runID.String(),
		Market:      market,
		Slug:        outcome.Category.Slug(),
		DisplayName: outcome.Category.DisplayName,
		State:       string(outcome.State),
		Enumerated:  outcome.Enumerated,
		Written:     outcome.ProductsWritten,
		Unresolved:  len(outcome.Unresolved),
		Failure:     outcome.FailureText(),
		ElapsedMS:   outcome.Elapsed.Milliseconds(),
		Timestamp:   ts.UTC().Format(time.RFC3339),
	}
}

// RunMessage is the JSON payload published once per finished run.
type RunMessage struct {
	RunID           string `json:"run_id"`
	Market          string `json:"market"`
	Status          string `json:"status"`
	CategoriesTotal int    `json:"categories_total"`
	CategoriesClean int    `json:"categories_clean"`
	ProductsWritten int    `json:"products_written"`
	Failure         string `json:"failure,omitempty"`
	ElapsedMS       int64  `json:"elapsed_ms"`
	Timestamp       string `json:"timestamp"`
}

// MessageAttributes lets subscriptions filter run messages without
// decoding bodies.
func (m RunMessage) MessageAttributes() map[string]string {
	return map[string]string{"kind": "run", "market": m.Market, "status": m.Status}
}
