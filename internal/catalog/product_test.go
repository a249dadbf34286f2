package catalog

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

// Absent optional fields must stay absent on the wire so downstream readers
// can tell "no brand" from "empty brand".
func TestProductRecordOmitsAbsentOptionals(t *testing.T) {
	t.Parallel()

	rec := ProductRecord{
		Identifier: "p-1",
		Title:      "Semi Skimmed Milk",
		Price:      1.15,
	}
	data, err := json.Marshal(rec)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	require.NotContains(t, raw, "brand")
	require.NotContains(t, raw, "unit_price")
	require.NotContains(t, raw, "alcohol")
	require.Contains(t, raw, "price")

	alcohol := false
	rec.Alcohol = &alcohol
	rec.UnitPrice = &UnitPrice{Price: 0.23, PerQuantity: "100ml"}
	data, err = json.Marshal(rec)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &raw))
	require.Contains(t, raw, "alcohol")
	require.Equal(t, false, raw["alcohol"])
	require.Contains(t, raw, "unit_price")
}

func TestBatchResultMerge(t *testing.T) {
	t.Parallel()

	var total BatchResult
	total.Merge(BatchResult{
		Resolved:   map[ProductIdentifier]ProductRecord{"a": {Identifier: "a"}},
		Unresolved: []UnresolvedIdentifier{{Identifier: "b", Reason: ReasonNotFound}},
	})
	total.Merge(BatchResult{
		Resolved: map[ProductIdentifier]ProductRecord{"c": {Identifier: "c"}},
	})

	require.Len(t, total.Resolved, 2)
	require.Len(t, total.Unresolved, 1)
	require.Equal(t, ProductIdentifier("b"), total.Unresolved[0].Identifier)
}
