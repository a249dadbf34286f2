package catalog

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCategorySlug(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		cat  Category
		want string
	}{
		{
			name: "joins lowered segments",
			cat:  Category{ID: "42", PathSegments: []string{"Fresh Food", "Dairy & Eggs"}},
			want: "fresh-food-dairy-eggs",
		},
		{
			name: "strips non ascii",
			cat:  Category{ID: "7", PathSegments: []string{"Mléčné výrobky"}},
			want: "ml-n-v-robky",
		},
		{
			name: "keeps digits dots dashes",
			cat:  Category{ID: "9", PathSegments: []string{"Top 10", "ready-meals v2.1"}},
			want: "top-10-ready-meals-v2.1",
		},
		{
			name: "falls back to id",
			cat:  Category{ID: "CAT-12", PathSegments: []string{"***"}},
			want: "cat-12",
		},
		{
			name: "falls back to constant when nothing survives",
			cat:  Category{ID: "##", PathSegments: nil},
			want: "uncategorized",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, tc.cat.Slug())
		})
	}
}

func TestCategorySlugIsStable(t *testing.T) {
	t.Parallel()

	cat := Category{ID: "1", PathSegments: []string{"Bakery", "Bread & Rolls"}}
	first := cat.Slug()
	require.Equal(t, first, cat.Slug())
	require.Equal(t, []string{"Bakery", "Bread & Rolls"}, cat.PathSegments)
}
