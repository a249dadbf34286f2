package catalog

import "errors"

// Sentinel errors for the pipeline's contract-level failure modes. Callers
// branch with errors.Is; wrapped causes carry the detail.
var (
	// ErrTaxonomyUnavailable aborts the run: the upstream returned no usable
	// category tree.
	ErrTaxonomyUnavailable = errors.New("taxonomy unavailable")

	// ErrAuthRevoked aborts the run: repeated authentication failures signal
	// upstream access has been revoked rather than a transient problem.
	ErrAuthRevoked = errors.New("authentication revoked")

	// ErrAuthDenied marks a single denied request (401/403). It is never
	// retried; the detail fetcher escalates repeats to ErrAuthRevoked.
	ErrAuthDenied = errors.New("authentication denied")
)
