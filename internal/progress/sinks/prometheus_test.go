package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/shelfbase/catalog-harvester/internal/progress"
)

// TestPrometheusSinkRecordsMetrics ensures counters and histograms are incremented from events.
func TestPrometheusSinkRecordsMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	runID := progress.UUIDToBytes(uuid.New())
	batch := []progress.Event{
		{RunID: runID, TS: time.Now(), Stage: progress.StageRunStart, Market: "uk"},
		{RunID: runID, TS: time.Now(), Stage: progress.StageCategoryStart, Category: "food-dairy"},
		{
			RunID:       runID,
			TS:          time.Now(),
			Stage:       progress.StagePageFetched,
			Category:    "food-dairy",
			Identifiers: 120,
			Dur:         80 * time.Millisecond,
		},
		{
			RunID:       runID,
			TS:          time.Now(),
			Stage:       progress.StageBatchDone,
			Category:    "food-dairy",
			Identifiers: 100,
			Unresolved:  2,
			Reason:      "not found",
			Attempts:    3,
			Dur:         400 * time.Millisecond,
		},
		{
			RunID:    runID,
			TS:       time.Now().Add(10 * time.Second),
			Stage:    progress.StageCategoryDone,
			Category: "food-dairy",
			State:    "completed",
			Written:  118,
			Dur:      10 * time.Second,
		},
		{RunID: runID, TS: time.Now().Add(15 * time.Second), Stage: progress.StageRunDone, State: "succeeded", Dur: 15 * time.Second},
	}

	require.NoError(t, sink.Consume(context.Background(), batch))

	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsStarted))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsCompleted.WithLabelValues("succeeded")))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.runsCompleted.WithLabelValues("failed")))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.runsRunning))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.categoriesRunning))

	require.Equal(t, 1.0, testutil.ToFloat64(sink.categoriesDone.WithLabelValues("completed")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.pagesFetched))
	require.InDelta(t, 120.0, testutil.ToFloat64(sink.identifiersSeen), 1e-9)
	require.InDelta(t, 118.0, testutil.ToFloat64(sink.productsWritten), 1e-9)
	require.InDelta(t, 2.0, testutil.ToFloat64(sink.unresolvedTotal.WithLabelValues("not found")), 1e-9)
	require.Equal(t, 1.0, testutil.ToFloat64(sink.batchesTotal))
	require.Equal(t, 2.0, testutil.ToFloat64(sink.batchRetries))
	require.Equal(t, 1, testutil.CollectAndCount(sink.batchDuration, "harvest_batch_duration_seconds"))
	require.Equal(t, 1, testutil.CollectAndCount(sink.categoryDuration, "harvest_category_duration_seconds"))
}

// TestPrometheusSinkGaugeSurvivesDuplicates ensures repeated lifecycle events cannot drive gauges negative.
func TestPrometheusSinkGaugeSurvivesDuplicates(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	runID := progress.UUIDToBytes(uuid.New())
	start := progress.Event{RunID: runID, TS: time.Now(), Stage: progress.StageCategoryStart, Category: "bakery"}
	done := progress.Event{RunID: runID, TS: time.Now(), Stage: progress.StageCategoryDone, Category: "bakery", State: "failed"}

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{start, start, done, done}))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.categoriesRunning))
	require.Equal(t, 2.0, testutil.ToFloat64(sink.categoriesDone.WithLabelValues("failed")))
}
