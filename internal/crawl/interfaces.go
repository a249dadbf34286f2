package crawl

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/shelfbase/catalog-harvester/internal/catalog"
	"github.com/shelfbase/catalog-harvester/internal/details"
)

// TaxonomyResolver produces the run's immutable category snapshot.
type TaxonomyResolver interface {
	Resolve(ctx context.Context) ([]catalog.Category, error)
}

// Enumerator gathers every product identifier within one category. A
// non-nil error may still return the identifiers gathered before the
// failure.
type Enumerator interface {
	Enumerate(ctx context.Context, runID uuid.UUID, category catalog.Category) ([]catalog.ProductIdentifier, error)
}

// DetailFetcher settles identifier batches into records, handing each
// batch outcome to deliver in completion order.
type DetailFetcher interface {
	Stream(
		ctx context.Context,
		runID uuid.UUID,
		category catalog.Category,
		ids []catalog.ProductIdentifier,
		deliver func(details.BatchOutcome) error,
	) error
}

// Publisher pushes completion messages to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewRunID() (uuid.UUID, error)
}
