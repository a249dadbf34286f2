// Package taxonomy turns the retailer's category tree into the flat,
// ordered list of categories a crawl run works through.
package taxonomy

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/shelfbase/catalog-harvester/internal/catalog"
)

// Source fetches the raw category tree from the storefront.
type Source interface {
	FetchTaxonomy(ctx context.Context, depth int) ([]catalog.TaxonomyNode, error)
}

// Resolver resolves the taxonomy once per run and flattens it into
// crawlable categories in document order.
type Resolver struct {
	source Source
	depth  int
	logger *zap.Logger
}

// NewResolver builds a resolver. depth selects which tree level is
// harvested as categories; zero harvests the leaves.
func NewResolver(source Source, depth int, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{source: source, depth: depth, logger: logger.Named("taxonomy")}
}

// Resolve fetches the tree and flattens it. Any failure to obtain a
// usable category list, including an empty or ID-less tree, reports
// catalog.ErrTaxonomyUnavailable so callers can abort the whole run.
func (r *Resolver) Resolve(ctx context.Context) ([]catalog.Category, error) {
	nodes, err := r.source.FetchTaxonomy(ctx, r.depth)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", catalog.ErrTaxonomyUnavailable, err)
	}

	seen := make(map[string]bool)
	var categories []catalog.Category
	var walk func(node catalog.TaxonomyNode, path []string, level int)
	walk = func(node catalog.TaxonomyNode, path []string, level int) {
		path = append(path, node.Name)
		leaf := len(node.Children) == 0
		take := leaf
		if r.depth > 0 {
			take = level == r.depth || (leaf && level < r.depth)
		}
		if take {
			if node.ID == "" {
				r.logger.Debug("skipping taxonomy node without id", zap.String("name", node.Name))
				return
			}
			if seen[node.ID] {
				r.logger.Debug("skipping duplicate taxonomy node", zap.String("id", node.ID))
				return
			}
			seen[node.ID] = true
			categories = append(categories, catalog.Category{
				ID:           node.ID,
				DisplayName:  node.Name,
				PathSegments: append([]string(nil), path...),
			})
			return
		}
		for _, child := range node.Children {
			walk(child, path, level+1)
		}
	}
	for _, node := range nodes {
		walk(node, nil, 1)
	}

	if len(categories) == 0 {
		return nil, fmt.Errorf("%w: tree has no usable categories", catalog.ErrTaxonomyUnavailable)
	}
	r.logger.Info("taxonomy resolved", zap.Int("categories", len(categories)))
	return categories, nil
}
