// Package details resolves enumerated product identifiers into full
// records through the batch lookup endpoint, a bounded number of
// batches at a time.
package details

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/shelfbase/catalog-harvester/internal/catalog"
	"github.com/shelfbase/catalog-harvester/internal/policy/retry"
	"github.com/shelfbase/catalog-harvester/internal/progress"
)

// Source resolves one batch of identifiers against the storefront.
type Source interface {
	FetchProductBatch(ctx context.Context, ids []catalog.ProductIdentifier) (catalog.BatchReply, error)
}

// Config carries the fetcher knobs.
type Config struct {
	// BatchSize caps identifiers per lookup call.
	BatchSize int
	// InFlight caps concurrently outstanding lookup calls.
	InFlight int
	// AuthFailureLimit is the number of consecutive auth rejections
	// tolerated before the session is declared revoked.
	AuthFailureLimit int
	// Market labels emitted progress events.
	Market string
}

const (
	defaultBatchSize = 100
	defaultInFlight  = 3
	defaultAuthLimit = 2
)

// BatchOutcome is the settled result of one batch. Seq preserves the
// batch's position in the input so callers can reorder deliveries.
type BatchOutcome struct {
	Seq         int
	Identifiers []catalog.ProductIdentifier
	Result      catalog.BatchResult
	Attempts    int
	Elapsed     time.Duration
}

// Fetcher chunks identifier lists into batches and settles each one:
// every identifier handed in ends up either resolved to a record or
// unresolved with a reason. Transport trouble never aborts the stream;
// only a revoked session does.
type Fetcher struct {
	source    Source
	policy    retry.Policy
	cfg       Config
	emitter   progress.Emitter
	logger    *zap.Logger
	authFails atomic.Int32
}

// NewFetcher builds a fetcher. A nil policy disables retries and a nil
// emitter disables progress events.
func NewFetcher(source Source, policy retry.Policy, cfg Config, emitter progress.Emitter, logger *zap.Logger) *Fetcher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.InFlight <= 0 {
		cfg.InFlight = defaultInFlight
	}
	if cfg.AuthFailureLimit <= 0 {
		cfg.AuthFailureLimit = defaultAuthLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		source:  source,
		policy:  policy,
		cfg:     cfg,
		emitter: emitter,
		logger:  logger.Named("details"),
	}
}

// Stream settles the identifiers batch by batch and hands each outcome
// to deliver. Duplicate identifiers are collapsed to their first
// occurrence. deliver is never called concurrently; outcomes arrive in
// completion order, with Seq available for reordering. A deliver error
// aborts the stream, as does a revoked session or context end.
func (f *Fetcher) Stream(ctx context.Context, runID uuid.UUID, category catalog.Category, ids []catalog.ProductIdentifier, deliver func(BatchOutcome) error) error {
	unique := dedupe(ids)
	if len(unique) == 0 {
		return nil
	}
	batches := chunk(unique, f.cfg.BatchSize)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.cfg.InFlight)
	var deliverMu sync.Mutex

	for seq, batch := range batches {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			outcome, err := f.settle(gctx, runID, category, seq, batch)
			if err != nil {
				return err
			}
			deliverMu.Lock()
			defer deliverMu.Unlock()
			return deliver(outcome)
		})
	}
	return g.Wait()
}

// FetchDetails settles the identifiers and merges every batch outcome
// into one result. Each input identifier appears exactly once, either
// resolved or unresolved, unless the returned error is non-nil.
func (f *Fetcher) FetchDetails(ctx context.Context, ids []catalog.ProductIdentifier) (catalog.BatchResult, error) {
	result := catalog.NewBatchResult()
	err := f.Stream(ctx, uuid.Nil, catalog.Category{}, ids, func(out BatchOutcome) error {
		result.Merge(out.Result)
		return nil
	})
	return result, err
}

// settle resolves one batch. Transport failure after retries folds the
// whole batch into unresolved identifiers; context end and session
// revocation surface as errors instead.
func (f *Fetcher) settle(ctx context.Context, runID uuid.UUID, category catalog.Category, seq int, batch []catalog.ProductIdentifier) (BatchOutcome, error) {
	start := time.Now()
	reply, attempts, err := f.fetch(ctx, batch)
	outcome := BatchOutcome{
		Seq:         seq,
		Identifiers: batch,
		Attempts:    attempts,
		Elapsed:     time.Since(start),
	}

	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return outcome, err
		}
		if errors.Is(err, catalog.ErrAuthDenied) {
			fails := f.authFails.Add(1)
			if int(fails) >= f.cfg.AuthFailureLimit {
				return outcome, fmt.Errorf("%w after %d consecutive rejections: %w", catalog.ErrAuthRevoked, fails, err)
			}
		}
		f.logger.Warn("batch unresolved after retries",
			zap.String("category", category.Slug()),
			zap.Int("seq", seq),
			zap.Int("identifiers", len(batch)),
			zap.Int("attempts", attempts),
			zap.Error(err))
		outcome.Result = allFetchFailed(batch)
		f.emitBatch(runID, category, outcome, string(catalog.ReasonFetchFailed))
		return outcome, nil
	}

	f.authFails.Store(0)
	outcome.Result = f.partition(batch, reply)
	reason := ""
	if len(outcome.Result.Unresolved) > 0 {
		reason = string(catalog.ReasonNotFound)
	}
	f.emitBatch(runID, category, outcome, reason)
	return outcome, nil
}

// fetch retries the lookup under the policy, reporting how many
// attempts it took.
func (f *Fetcher) fetch(ctx context.Context, batch []catalog.ProductIdentifier) (catalog.BatchReply, int, error) {
	attempts := 0
	for {
		attempts++
		reply, err := f.source.FetchProductBatch(ctx, batch)
		if err == nil {
			return reply, attempts, nil
		}
		if f.policy == nil || !f.policy.ShouldRetry(err, attempts) {
			return catalog.BatchReply{}, attempts, err
		}
		f.logger.Debug("batch fetch attempt failed",
			zap.Int("attempt", attempts),
			zap.Error(err))
		timer := time.NewTimer(f.policy.Backoff(attempts))
		select {
		case <-ctx.Done():
			timer.Stop()
			return catalog.BatchReply{}, attempts, ctx.Err()
		case <-timer.C:
		}
	}
}

// partition assigns every requested identifier to resolved or
// unresolved. Identifiers the reply omits without listing them as
// unknown are treated as not found.
func (f *Fetcher) partition(batch []catalog.ProductIdentifier, reply catalog.BatchReply) catalog.BatchResult {
	notFound := make(map[catalog.ProductIdentifier]bool, len(reply.NotFound))
	for _, id := range reply.NotFound {
		notFound[id] = true
	}
	result := catalog.NewBatchResult()
	for _, id := range batch {
		if rec, ok := reply.Found[id]; ok {
			result.Resolved[id] = rec
			continue
		}
		if !notFound[id] {
			f.logger.Debug("identifier missing from batch reply", zap.String("identifier", string(id)))
		}
		result.Unresolved = append(result.Unresolved, catalog.UnresolvedIdentifier{
			Identifier: id,
			Reason:     catalog.ReasonNotFound,
		})
	}
	return result
}

func (f *Fetcher) emitBatch(runID uuid.UUID, category catalog.Category, outcome BatchOutcome, reason string) {
	if f.emitter == nil || runID == uuid.Nil {
		return
	}
	f.emitter.Emit(progress.Event{
		RunID:       progress.UUIDToBytes(runID),
		TS:          time.Now().UTC(),
		Stage:       progress.StageBatchDone,
		Market:      f.cfg.Market,
		Category:    category.Slug(),
		Identifiers: len(outcome.Identifiers),
		Unresolved:  len(outcome.Result.Unresolved),
		Reason:      reason,
		Attempts:    outcome.Attempts,
		Dur:         outcome.Elapsed,
	})
}

func allFetchFailed(batch []catalog.ProductIdentifier) catalog.BatchResult {
	result := catalog.NewBatchResult()
	for _, id := range batch {
		result.Unresolved = append(result.Unresolved, catalog.UnresolvedIdentifier{
			Identifier: id,
			Reason:     catalog.ReasonFetchFailed,
		})
	}
	return result
}

func dedupe(ids []catalog.ProductIdentifier) []catalog.ProductIdentifier {
	seen := make(map[catalog.ProductIdentifier]bool, len(ids))
	out := make([]catalog.ProductIdentifier, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func chunk(ids []catalog.ProductIdentifier, size int) [][]catalog.ProductIdentifier {
	var batches [][]catalog.ProductIdentifier
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		batches = append(batches, ids[start:end])
	}
	return batches
}
