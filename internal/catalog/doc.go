// Package catalog holds the domain types shared across the harvest pipeline:
// taxonomy categories, product identifiers and records, batch partitions, and
// the per-category outcomes the orchestrator aggregates into a run summary.
// Values here are immutable once constructed and carry no behavior beyond
// derivation helpers such as slug building.
package catalog
