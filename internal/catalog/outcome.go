package catalog

import "time"

// CategoryState tracks a category through the per-category state machine.
type CategoryState string

// Category lifecycle states. Failed, Cancelled, and Skipped are terminal for
// the category only; they never halt the run.
const (
	StatePending         CategoryState = "pending"
	StateEnumerating     CategoryState = "enumerating"
	StateFetchingDetails CategoryState = "fetching_details"
	StateWriting         CategoryState = "writing"
	StateCompleted       CategoryState = "completed"
	StateFailed          CategoryState = "failed"
	StateCancelled       CategoryState = "cancelled"
	StateSkipped         CategoryState = "skipped"
)

// Terminal reports whether the state ends the category's processing.
func (s CategoryState) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCancelled, StateSkipped:
		return true
	default:
		return false
	}
}

// CategoryRunOutcome is produced once per category and is immutable after
// creation. The orchestrator aggregates outcomes into the run summary.
type CategoryRunOutcome struct {
	// Category is the resolved taxonomy node the outcome describes.
	Category Category
	// State is the terminal state the category reached.
	State CategoryState
	// Enumerated counts the identifiers gathered before detail fetching.
	Enumerated int
	// ProductsWritten counts records durably written to the output unit.
	ProductsWritten int
	// Unresolved lists identifiers that produced no record, with reasons.
	Unresolved []UnresolvedIdentifier
	// Elapsed is the wall time spent on the category.
	Elapsed time.Duration
	// Failure carries the category-scoped error, nil on success.
	Failure error
}

// Clean reports whether the category finished with nothing to warn about:
// either completed with zero unresolved identifiers, or skipped before start.
func (o CategoryRunOutcome) Clean() bool {
	if o.State == StateSkipped {
		return o.Failure == nil
	}
	return o.State == StateCompleted && len(o.Unresolved) == 0 && o.Failure == nil
}

// FailureText renders the failure for summaries and persistence; empty when
// the category succeeded.
func (o CategoryRunOutcome) FailureText() string {
	if o.Failure == nil {
		return ""
	}
	return o.Failure.Error()
}
