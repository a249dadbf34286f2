// Package progress defines the event structures emitted while a
// harvest run works through its categories.
package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStart      Stage = "RUN_START"
	StageRunDone       Stage = "RUN_DONE"
	StageCategoryStart Stage = "CATEGORY_START"
	StageCategoryDone  Stage = "CATEGORY_DONE"
	StagePageFetched   Stage = "PAGE_FETCHED"
	StageBatchDone     Stage = "BATCH_DONE"
)

// Event captures a single milestone of harvest progress.
type Event struct {
	// RunID uniquely identifies a harvest run using the 16-byte UUID form.
	RunID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which lifecycle milestone occurred.
	Stage Stage
	// Market labels the storefront the run targets.
	Market string
	// Category scopes category and fetch events to a category slug.
	Category string
	// State carries the terminal state label for CATEGORY_DONE and the
	// run result for RUN_DONE.
	State string
	// Identifiers counts product identifiers touched by the milestone:
	// page size for PAGE_FETCHED, batch size for BATCH_DONE.
	Identifiers int
	// Written counts records flushed to the output unit.
	Written int
	// Unresolved counts identifiers that stayed unresolved.
	Unresolved int
	// Reason labels unresolved counts ("not found", "fetch failed").
	Reason string
	// Attempts reports how many tries a batch needed before settling.
	Attempts int
	// Dur captures latency for page fetches, batches and completions.
	Dur time.Duration
	// Note lets emitters attach low-volume debug context (e.g. error text).
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart:
	case StageRunDone:
		if e.State == "" {
			return errors.New("run done requires state")
		}
	case StageCategoryStart, StagePageFetched, StageBatchDone:
		if e.Category == "" {
			return fmt.Errorf("%s requires category", e.Stage)
		}
	case StageCategoryDone:
		if e.Category == "" {
			return errors.New("category done requires category")
		}
		if e.State == "" {
			return errors.New("category done requires state")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// RunUUID converts the binary run ID to uuid.UUID for repositories.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}
