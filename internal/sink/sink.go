// Package sink persists resolved product records, one output unit per
// category, as JSON Lines.
package sink

import (
	"github.com/shelfbase/catalog-harvester/internal/catalog"
)

// Writer appends records to one category's output unit. Writers are
// not safe for concurrent use; the orchestrator serializes writes.
type Writer interface {
	Write(rec catalog.ProductRecord) error
	Close() error
}

// Sink opens per-category output units keyed by category slug.
type Sink interface {
	// Open creates or truncates the output unit for slug. Rerunning a
	// category replaces its previous output wholesale.
	Open(slug string) (Writer, error)
	// HasOutput reports whether a previous run left an output unit for
	// slug behind.
	HasOutput(slug string) (bool, error)
}
