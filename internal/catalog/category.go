package catalog

import (
	"regexp"
	"strings"
)

// TaxonomyNode is one raw node of the upstream category tree, before
// flattening. Children are nested in document order.
type TaxonomyNode struct {
	// ID is the upstream identifier used to query the node's listing.
	ID string
	// Name is the human-readable label shown by the retailer.
	Name string
	// Children holds the sub-categories, empty for leaves.
	Children []TaxonomyNode
}

// Category is one queryable node of the resolved taxonomy. Immutable once
// resolved; a run treats the resolved list as a snapshot.
type Category struct {
	// ID is the upstream identifier used for listing requests.
	ID string
	// DisplayName is the retailer's label for the node.
	DisplayName string
	// PathSegments is the root-to-node label path; it determines the slug.
	PathSegments []string
}

var slugInvalidChars = regexp.MustCompile(`[^a-z0-9._-]+`)

// Slug derives the stable, filesystem-safe name for the category's output
// unit. Path segments are lower-cased, sanitized, and joined with dashes; the
// category ID is the fallback when no segment survives sanitization.
func (c Category) Slug() string {
	parts := make([]string, 0, len(c.PathSegments))
	for _, seg := range c.PathSegments {
		if cleaned := sanitizeSegment(seg); cleaned != "" {
			parts = append(parts, cleaned)
		}
	}
	if len(parts) > 0 {
		return strings.Join(parts, "-")
	}
	if cleaned := sanitizeSegment(c.ID); cleaned != "" {
		return cleaned
	}
	return "uncategorized"
}

func sanitizeSegment(seg string) string {
	seg = strings.ToLower(strings.TrimSpace(seg))
	seg = slugInvalidChars.ReplaceAllString(seg, "-")
	return strings.Trim(seg, "-.")
}
