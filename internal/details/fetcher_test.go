package details

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shelfbase/catalog-harvester/internal/catalog"
	"github.com/shelfbase/catalog-harvester/internal/policy/retry"
	"github.com/shelfbase/catalog-harvester/internal/progress"
)

// scriptedSource replies per call index; out-of-script calls resolve
// everything they are asked for.
type scriptedSource struct {
	mu      sync.Mutex
	calls   [][]catalog.ProductIdentifier
	scripts []func(ids []catalog.ProductIdentifier) (catalog.BatchReply, error)
}

func (s *scriptedSource) FetchProductBatch(_ context.Context, ids []catalog.ProductIdentifier) (catalog.BatchReply, error) {
	s.mu.Lock()
	call := len(s.calls)
	s.calls = append(s.calls, append([]catalog.ProductIdentifier(nil), ids...))
	var script func([]catalog.ProductIdentifier) (catalog.BatchReply, error)
	if call < len(s.scripts) {
		script = s.scripts[call]
	}
	s.mu.Unlock()
	if script != nil {
		return script(ids)
	}
	return resolveAll(ids)
}

func (s *scriptedSource) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func resolveAll(ids []catalog.ProductIdentifier) (catalog.BatchReply, error) {
	reply := catalog.BatchReply{Found: make(map[catalog.ProductIdentifier]catalog.ProductRecord, len(ids))}
	for _, id := range ids {
		reply.Found[id] = catalog.ProductRecord{Identifier: id, Title: "item " + string(id)}
	}
	return reply, nil
}

// authRejection mimics the transport's 403 mapping.
type authRejection struct{}

func (authRejection) Error() string   { return "status 403" }
func (authRejection) Temporary() bool { return false }
func (authRejection) Unwrap() error   { return catalog.ErrAuthDenied }

type captureEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (c *captureEmitter) Emit(evt progress.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
}

func (c *captureEmitter) Events() []progress.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]progress.Event(nil), c.events...)
}

func identifiers(n int) []catalog.ProductIdentifier {
	ids := make([]catalog.ProductIdentifier, 0, n)
	for i := 0; i < n; i++ {
		ids = append(ids, catalog.ProductIdentifier(fmt.Sprintf("p%03d", i)))
	}
	return ids
}

var testCategory = catalog.Category{ID: "dairy", DisplayName: "Dairy", PathSegments: []string{"Food", "Dairy"}}

func TestFetchDetailsPartitionsEveryIdentifier(t *testing.T) {
	t.Parallel()

	ids := identifiers(250)
	source := &scriptedSource{scripts: []func([]catalog.ProductIdentifier) (catalog.BatchReply, error){
		func(batch []catalog.ProductIdentifier) (catalog.BatchReply, error) {
			// First batch: resolve all but two, one declared unknown,
			// one silently missing.
			reply, _ := resolveAll(batch[:len(batch)-2])
			reply.NotFound = []catalog.ProductIdentifier{batch[len(batch)-2]}
			return reply, nil
		},
	}}
	f := NewFetcher(source, nil, Config{BatchSize: 100, InFlight: 2}, nil, zap.NewNop())

	result, err := f.FetchDetails(context.Background(), ids)
	require.NoError(t, err)

	require.Len(t, result.Resolved, 248)
	require.Len(t, result.Unresolved, 2)
	for _, u := range result.Unresolved {
		require.Equal(t, catalog.ReasonNotFound, u.Reason)
		require.NotContains(t, result.Resolved, u.Identifier)
	}
	require.Equal(t, 3, source.callCount())
}

func TestStreamCollapsesDuplicates(t *testing.T) {
	t.Parallel()

	source := &scriptedSource{}
	f := NewFetcher(source, nil, Config{BatchSize: 10, InFlight: 1}, nil, zap.NewNop())

	ids := []catalog.ProductIdentifier{"p1", "p2", "p1", "", "p3", "p2"}
	result, err := f.FetchDetails(context.Background(), ids)
	require.NoError(t, err)
	require.Len(t, result.Resolved, 3)
	require.Empty(t, result.Unresolved)

	require.Equal(t, 1, source.callCount())
	require.Equal(t, []catalog.ProductIdentifier{"p1", "p2", "p3"}, source.calls[0])
}

func TestStreamRetriesAndReportsAttempts(t *testing.T) {
	t.Parallel()

	transient := errors.New("connection reset")
	source := &scriptedSource{scripts: []func([]catalog.ProductIdentifier) (catalog.BatchReply, error){
		func([]catalog.ProductIdentifier) (catalog.BatchReply, error) { return catalog.BatchReply{}, transient },
		func([]catalog.ProductIdentifier) (catalog.BatchReply, error) { return catalog.BatchReply{}, transient },
	}}
	policy := retry.NewExponential(3, time.Millisecond, 2*time.Millisecond)
	f := NewFetcher(source, policy, Config{BatchSize: 10, InFlight: 1}, nil, zap.NewNop())

	var outcomes []BatchOutcome
	err := f.Stream(context.Background(), uuid.New(), testCategory, identifiers(5), func(out BatchOutcome) error {
		outcomes = append(outcomes, out)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	require.Equal(t, 3, outcomes[0].Attempts)
	require.Len(t, outcomes[0].Result.Resolved, 5)
}

func TestTransportFailureFoldsBatchToUnresolved(t *testing.T) {
	t.Parallel()

	boom := errors.New("upstream melted")
	source := &scriptedSource{scripts: []func([]catalog.ProductIdentifier) (catalog.BatchReply, error){
		func([]catalog.ProductIdentifier) (catalog.BatchReply, error) { return catalog.BatchReply{}, boom },
		func([]catalog.ProductIdentifier) (catalog.BatchReply, error) { return catalog.BatchReply{}, boom },
	}}
	policy := retry.NewExponential(2, time.Millisecond, 2*time.Millisecond)
	f := NewFetcher(source, policy, Config{BatchSize: 3, InFlight: 1}, nil, zap.NewNop())

	result, err := f.FetchDetails(context.Background(), identifiers(6))
	require.NoError(t, err)

	require.Len(t, result.Resolved, 3)
	require.Len(t, result.Unresolved, 3)
	for _, u := range result.Unresolved {
		require.Equal(t, catalog.ReasonFetchFailed, u.Reason)
	}
}

func TestRepeatedAuthRejectionIsFatal(t *testing.T) {
	t.Parallel()

	reject := func([]catalog.ProductIdentifier) (catalog.BatchReply, error) {
		return catalog.BatchReply{}, authRejection{}
	}
	source := &scriptedSource{scripts: []func([]catalog.ProductIdentifier) (catalog.BatchReply, error){reject, reject}}
	policy := retry.NewExponential(3, time.Millisecond, 2*time.Millisecond)
	f := NewFetcher(source, policy, Config{BatchSize: 2, InFlight: 1, AuthFailureLimit: 2}, nil, zap.NewNop())

	var delivered int
	err := f.Stream(context.Background(), uuid.New(), testCategory, identifiers(6), func(BatchOutcome) error {
		delivered++
		return nil
	})
	require.ErrorIs(t, err, catalog.ErrAuthRevoked)
	require.Equal(t, 1, delivered)
	// Auth rejections must not burn retry attempts.
	require.Equal(t, 2, source.callCount())
}

func TestAuthCounterResetsOnSuccess(t *testing.T) {
	t.Parallel()

	reject := func([]catalog.ProductIdentifier) (catalog.BatchReply, error) {
		return catalog.BatchReply{}, authRejection{}
	}
	source := &scriptedSource{scripts: []func([]catalog.ProductIdentifier) (catalog.BatchReply, error){
		reject,
		nil,
		reject,
	}}
	f := NewFetcher(source, nil, Config{BatchSize: 1, InFlight: 1, AuthFailureLimit: 2}, nil, zap.NewNop())

	result, err := f.FetchDetails(context.Background(), identifiers(3))
	require.NoError(t, err)
	require.Len(t, result.Resolved, 1)
	require.Len(t, result.Unresolved, 2)
}

func TestStreamHonorsInFlightLimit(t *testing.T) {
	t.Parallel()

	var current, peak atomic.Int32
	source := &scriptedSource{}
	blocking := func(ids []catalog.ProductIdentifier) (catalog.BatchReply, error) {
		now := current.Add(1)
		for {
			seen := peak.Load()
			if now <= seen || peak.CompareAndSwap(seen, now) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		current.Add(-1)
		return resolveAll(ids)
	}
	for i := 0; i < 8; i++ {
		source.scripts = append(source.scripts, blocking)
	}
	f := NewFetcher(source, nil, Config{BatchSize: 1, InFlight: 2}, nil, zap.NewNop())

	_, err := f.FetchDetails(context.Background(), identifiers(8))
	require.NoError(t, err)
	require.LessOrEqual(t, peak.Load(), int32(2))
	require.Equal(t, 8, source.callCount())
}

func TestDeliverErrorAbortsStream(t *testing.T) {
	t.Parallel()

	source := &scriptedSource{}
	f := NewFetcher(source, nil, Config{BatchSize: 1, InFlight: 1}, nil, zap.NewNop())

	sinkErr := errors.New("disk full")
	err := f.Stream(context.Background(), uuid.New(), testCategory, identifiers(5), func(BatchOutcome) error {
		return sinkErr
	})
	require.ErrorIs(t, err, sinkErr)
	require.Less(t, source.callCount(), 5)
}

func TestStreamStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	source := &scriptedSource{scripts: []func([]catalog.ProductIdentifier) (catalog.BatchReply, error){
		func(ids []catalog.ProductIdentifier) (catalog.BatchReply, error) {
			cancel()
			return catalog.BatchReply{}, ctx.Err()
		},
	}}
	f := NewFetcher(source, nil, Config{BatchSize: 1, InFlight: 1}, nil, zap.NewNop())

	var delivered int
	err := f.Stream(ctx, uuid.New(), testCategory, identifiers(4), func(BatchOutcome) error {
		delivered++
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, delivered)
}

func TestStreamEmitsBatchEvents(t *testing.T) {
	t.Parallel()

	source := &scriptedSource{scripts: []func([]catalog.ProductIdentifier) (catalog.BatchReply, error){
		func(batch []catalog.ProductIdentifier) (catalog.BatchReply, error) {
			reply, _ := resolveAll(batch[:1])
			reply.NotFound = batch[1:]
			return reply, nil
		},
	}}
	emitter := &captureEmitter{}
	f := NewFetcher(source, nil, Config{BatchSize: 2, InFlight: 1, Market: "uk"}, emitter, zap.NewNop())

	runID := uuid.New()
	err := f.Stream(context.Background(), runID, testCategory, identifiers(2), func(BatchOutcome) error { return nil })
	require.NoError(t, err)

	events := emitter.Events()
	require.Len(t, events, 1)
	evt := events[0]
	require.Equal(t, progress.StageBatchDone, evt.Stage)
	require.Equal(t, progress.UUIDToBytes(runID), evt.RunID)
	require.Equal(t, "food-dairy", evt.Category)
	require.Equal(t, "uk", evt.Market)
	require.Equal(t, 2, evt.Identifiers)
	require.Equal(t, 1, evt.Unresolved)
	require.Equal(t, string(catalog.ReasonNotFound), evt.Reason)
	require.Equal(t, 1, evt.Attempts)
}

func TestFetchDetailsEmitsNothingWithoutRun(t *testing.T) {
	t.Parallel()

	emitter := &captureEmitter{}
	f := NewFetcher(&scriptedSource{}, nil, Config{BatchSize: 5, InFlight: 1}, emitter, zap.NewNop())

	_, err := f.FetchDetails(context.Background(), identifiers(3))
	require.NoError(t, err)
	require.Empty(t, emitter.Events())
}
