package catalog

// UnresolvedReason explains why an identifier produced no record.
type UnresolvedReason string

// Reasons attached to unresolved identifiers and category failures.
const (
	// ReasonNotFound marks identifiers the upstream reported missing.
	ReasonNotFound UnresolvedReason = "not found"
	// ReasonFetchFailed marks identifiers lost to a batch-level transport
	// failure that survived retries.
	ReasonFetchFailed UnresolvedReason = "fetch failed"
	// ReasonEnumerationIncomplete annotates category failures where paging
	// stopped before exhaustion; it never appears on individual identifiers.
	ReasonEnumerationIncomplete UnresolvedReason = "enumeration incomplete"
)

// UnresolvedIdentifier pairs an identifier with the reason it stayed
// unresolved.
type UnresolvedIdentifier struct {
	Identifier ProductIdentifier `json:"identifier"`
	Reason     UnresolvedReason  `json:"reason"`
}

// ListingPage is one page of a category listing as returned by the upstream.
// An empty NextCursor or an empty identifier list signals exhaustion.
type ListingPage struct {
	Identifiers []ProductIdentifier
	NextCursor  string
}

// BatchReply is the upstream response for one detail batch: records for the
// identifiers it recognized plus the identifiers it explicitly reported
// missing.
type BatchReply struct {
	Found    map[ProductIdentifier]ProductRecord
	NotFound []ProductIdentifier
}

// BatchResult partitions a fetch input: every submitted identifier appears in
// exactly one of Resolved or Unresolved, never both, never neither.
type BatchResult struct {
	Resolved   map[ProductIdentifier]ProductRecord
	Unresolved []UnresolvedIdentifier
}

// NewBatchResult returns an empty result ready to accumulate into.
func NewBatchResult() BatchResult {
	return BatchResult{Resolved: make(map[ProductIdentifier]ProductRecord)}
}

// Merge folds other into r. Used when per-batch results are combined into a
// category-level partition.
func (r *BatchResult) Merge(other BatchResult) {
	if r.Resolved == nil {
		r.Resolved = make(map[ProductIdentifier]ProductRecord, len(other.Resolved))
	}
	for id, rec := range other.Resolved {
		r.Resolved[id] = rec
	}
	r.Unresolved = append(r.Unresolved, other.Unresolved...)
}
