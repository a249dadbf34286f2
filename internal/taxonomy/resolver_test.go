package taxonomy

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shelfbase/catalog-harvester/internal/catalog"
)

type fakeSource struct {
	nodes []catalog.TaxonomyNode
	err   error
}

func (f *fakeSource) FetchTaxonomy(context.Context, int) ([]catalog.TaxonomyNode, error) {
	return f.nodes, f.err
}

func sampleTree() []catalog.TaxonomyNode {
	return []catalog.TaxonomyNode{
		{
			ID: "food", Name: "Food",
			Children: []catalog.TaxonomyNode{
				{ID: "dairy", Name: "Dairy"},
				{ID: "bakery", Name: "Bakery"},
			},
		},
		{ID: "household", Name: "Household"},
	}
}

func TestResolveFlattensLeavesInDocumentOrder(t *testing.T) {
	t.Parallel()

	r := NewResolver(&fakeSource{nodes: sampleTree()}, 0, zap.NewNop())
	categories, err := r.Resolve(context.Background())
	require.NoError(t, err)

	require.Len(t, categories, 3)
	require.Equal(t, "dairy", categories[0].ID)
	require.Equal(t, []string{"Food", "Dairy"}, categories[0].PathSegments)
	require.Equal(t, "bakery", categories[1].ID)
	require.Equal(t, "household", categories[2].ID)
	require.Equal(t, []string{"Household"}, categories[2].PathSegments)
}

func TestResolveDepthSelectsLevel(t *testing.T) {
	t.Parallel()

	r := NewResolver(&fakeSource{nodes: sampleTree()}, 1, zap.NewNop())
	categories, err := r.Resolve(context.Background())
	require.NoError(t, err)

	require.Len(t, categories, 2)
	require.Equal(t, "food", categories[0].ID)
	require.Equal(t, "household", categories[1].ID)
}

func TestResolveKeepsShallowLeavesWhenDepthExceedsThem(t *testing.T) {
	t.Parallel()

	r := NewResolver(&fakeSource{nodes: sampleTree()}, 2, zap.NewNop())
	categories, err := r.Resolve(context.Background())
	require.NoError(t, err)

	require.Len(t, categories, 3)
	require.Equal(t, "dairy", categories[0].ID)
	require.Equal(t, "household", categories[2].ID)
}

func TestResolveWrapsSourceFailure(t *testing.T) {
	t.Parallel()

	boom := errors.New("storefront down")
	r := NewResolver(&fakeSource{err: boom}, 0, zap.NewNop())

	_, err := r.Resolve(context.Background())
	require.ErrorIs(t, err, catalog.ErrTaxonomyUnavailable)
	require.ErrorIs(t, err, boom)
}

func TestResolveRejectsEmptyTree(t *testing.T) {
	t.Parallel()

	r := NewResolver(&fakeSource{}, 0, zap.NewNop())
	_, err := r.Resolve(context.Background())
	require.ErrorIs(t, err, catalog.ErrTaxonomyUnavailable)
}

func TestResolveSkipsMalformedAndDuplicateNodes(t *testing.T) {
	t.Parallel()

	nodes := []catalog.TaxonomyNode{
		{ID: "", Name: "Nameless"},
		{ID: "dairy", Name: "Dairy"},
		{ID: "dairy", Name: "Dairy Again"},
	}
	r := NewResolver(&fakeSource{nodes: nodes}, 0, zap.NewNop())

	categories, err := r.Resolve(context.Background())
	require.NoError(t, err)
	require.Len(t, categories, 1)
	require.Equal(t, "Dairy", categories[0].DisplayName)
}

func TestResolveRejectsTreeOfOnlyMalformedNodes(t *testing.T) {
	t.Parallel()

	r := NewResolver(&fakeSource{nodes: []catalog.TaxonomyNode{{Name: "Nameless"}}}, 0, zap.NewNop())
	_, err := r.Resolve(context.Background())
	require.ErrorIs(t, err, catalog.ErrTaxonomyUnavailable)
}
