// Package enumerate walks a category's listing pages and gathers the
// product identifiers a detail fetch will resolve.
package enumerate

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shelfbase/catalog-harvester/internal/catalog"
	"github.com/shelfbase/catalog-harvester/internal/policy/retry"
	"github.com/shelfbase/catalog-harvester/internal/progress"
)

// Source fetches one listing page of a category.
type Source interface {
	FetchCategoryPage(ctx context.Context, categoryID, cursor string, size int) (catalog.ListingPage, error)
}

const defaultPageSize = 120

// Enumerator pages through category listings until the cursor chain is
// exhausted. Each page fetch is retried under the configured policy; a
// page that still fails ends enumeration for that category.
type Enumerator struct {
	source   Source
	policy   retry.Policy
	pageSize int
	market   string
	emitter  progress.Emitter
	logger   *zap.Logger
}

// NewEnumerator builds an enumerator. A nil policy disables retries and
// a nil emitter disables progress events.
func NewEnumerator(source Source, policy retry.Policy, pageSize int, market string, emitter progress.Emitter, logger *zap.Logger) *Enumerator {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Enumerator{
		source:   source,
		policy:   policy,
		pageSize: pageSize,
		market:   market,
		emitter:  emitter,
		logger:   logger.Named("enumerate"),
	}
}

// Enumerate gathers every product identifier listed under the category,
// in page order. Identifiers collected before a page failure are
// returned alongside the error so callers can still resolve them.
// Enumeration stops once a page comes back empty, without a cursor, or
// shorter than the requested size.
func (e *Enumerator) Enumerate(ctx context.Context, runID uuid.UUID, category catalog.Category) ([]catalog.ProductIdentifier, error) {
	var ids []catalog.ProductIdentifier
	cursor := ""
	for page := 1; ; page++ {
		var listing catalog.ListingPage
		start := time.Now()
		err := retry.Do(ctx, e.policy, func() error {
			var fetchErr error
			listing, fetchErr = e.source.FetchCategoryPage(ctx, category.ID, cursor, e.pageSize)
			return fetchErr
		})
		if err != nil {
			e.logger.Warn("listing page failed",
				zap.String("category", category.Slug()),
				zap.Int("page", page),
				zap.Error(err))
			return ids, fmt.Errorf("category %s page %d: %w", category.ID, page, err)
		}

		ids = append(ids, listing.Identifiers...)
		e.emit(progress.Event{
			RunID:       progress.UUIDToBytes(runID),
			Stage:       progress.StagePageFetched,
			Category:    category.Slug(),
			Identifiers: len(listing.Identifiers),
			Dur:         time.Since(start),
		})
		e.logger.Debug("listing page fetched",
			zap.String("category", category.Slug()),
			zap.Int("page", page),
			zap.Int("identifiers", len(listing.Identifiers)))

		if len(listing.Identifiers) == 0 || listing.NextCursor == "" || len(listing.Identifiers) < e.pageSize {
			return ids, nil
		}
		cursor = listing.NextCursor
	}
}

func (e *Enumerator) emit(evt progress.Event) {
	if e.emitter == nil {
		return
	}
	evt.TS = time.Now().UTC()
	evt.Market = e.market
	e.emitter.Emit(evt)
}
