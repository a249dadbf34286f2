package crawl

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Config carries the operator-facing knobs for one harvest run.
type Config struct {
	// Market selects the storefront the run targets. Required.
	Market string
	// OutputDir hosts the summary artifact. Empty disables the artifact;
	// the sink carries its own output root.
	OutputDir string
	// Parallelism caps how many categories are in flight at once.
	Parallelism int
	// FailureThreshold is the unresolved fraction in (0, 1] at which a
	// category is marked failed. 1.0 fails only fully unresolved
	// categories.
	FailureThreshold float64
	// OrderedWrites reorders batch completions back to enumeration order
	// before writing. Off by default; completion order favors throughput.
	OrderedWrites bool
	// SkipExisting records categories whose output unit already exists as
	// skipped instead of replacing them.
	SkipExisting bool
	// DrainTimeout bounds per-outcome bookkeeping (rows, messages) once
	// the run context is gone.
	DrainTimeout time.Duration
	// RunDeadline caps the run's wall clock. Zero means no deadline.
	RunDeadline time.Duration
	// Topic names the completion message topic. Empty disables
	// publishing.
	Topic string
	// RunID presets the run identity; a zero value generates one.
	RunID uuid.UUID
	// Cache optionally seeds the run's enumeration memo. A fresh cache is
	// created per run when nil.
	Cache *RunCache
}

const (
	defaultParallelism      = 6
	defaultFailureThreshold = 1.0
	defaultDrainTimeout     = 10 * time.Second
)

func (c Config) withDefaults() Config {
	if c.Parallelism <= 0 {
		c.Parallelism = defaultParallelism
	}
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = defaultFailureThreshold
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = defaultDrainTimeout
	}
	return c
}

// Validate enforces required values and reasonable limits. Zero values
// that have defaults are allowed through.
func (c Config) Validate() error {
	if c.Market == "" {
		return fmt.Errorf("market is required")
	}
	if c.FailureThreshold < 0 || c.FailureThreshold > 1 {
		return fmt.Errorf("failure threshold must be within (0, 1], got %g", c.FailureThreshold)
	}
	if c.Parallelism < 0 {
		return fmt.Errorf("parallelism must be >= 0")
	}
	if c.DrainTimeout < 0 {
		return fmt.Errorf("drain timeout must be >= 0")
	}
	if c.RunDeadline < 0 {
		return fmt.Errorf("run deadline must be >= 0")
	}
	return nil
}
