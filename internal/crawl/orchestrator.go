// Package crawl drives the harvest pipeline: resolve the taxonomy once,
// then for each category enumerate identifiers, settle detail batches,
// and write records to the category's output unit. Failures stay scoped
// to their category; only taxonomy loss or a revoked session aborts the
// run.
package crawl

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/shelfbase/catalog-harvester/internal/catalog"
	"github.com/shelfbase/catalog-harvester/internal/details"
	"github.com/shelfbase/catalog-harvester/internal/progress"
	"github.com/shelfbase/catalog-harvester/internal/sink"
	"github.com/shelfbase/catalog-harvester/internal/store"
)

// Orchestrator runs the category pipeline over a resolved taxonomy with
// bounded parallelism.
type Orchestrator struct {
	cfg       Config
	resolver  TaxonomyResolver
	enum      Enumerator
	fetcher   DetailFetcher
	sink      sink.Sink
	repo      store.OutcomeRepository
	publisher Publisher
	emitter   progress.Emitter
	clock     Clock
	ids       IDGenerator
	logger    *zap.Logger
}

// New constructs an Orchestrator. A nil repo skips persistence, a nil
// publisher skips messages, and a nil emitter skips progress events.
// Resolver, enumerator, fetcher, sink, and clock are required.
func New(
	cfg Config,
	resolver TaxonomyResolver,
	enumerator Enumerator,
	fetcher DetailFetcher,
	out sink.Sink,
	repo store.OutcomeRepository,
	publisher Publisher,
	emitter progress.Emitter,
	clock Clock,
	ids IDGenerator,
	logger *zap.Logger,
) *Orchestrator {
	if repo == nil {
		repo = store.NewNoOpRepository()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		cfg:       cfg.withDefaults(),
		resolver:  resolver,
		enum:      enumerator,
		fetcher:   fetcher,
		sink:      out,
		repo:      repo,
		publisher: publisher,
		emitter:   emitter,
		clock:     clock,
		ids:       ids,
		logger:    logger.Named("crawl"),
	}
}

// Run executes one harvest across the resolved taxonomy. The returned
// summary always describes what happened; the error is non-nil only for
// fatal conditions that aborted the run.
func (o *Orchestrator) Run(ctx context.Context) (*RunSummary, error) {
	runID := o.cfg.RunID
	if runID == uuid.Nil {
		if o.ids == nil {
			return nil, errors.New("run id generator is required when no run id is preset")
		}
		generated, err := o.ids.NewRunID()
		if err != nil {
			return nil, fmt.Errorf("assign run id: %w", err)
		}
		runID = generated
	}

	if o.cfg.RunDeadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.RunDeadline)
		defer cancel()
	}

	startedAt := o.clock.Now()
	logger := o.logger.With(zap.String("run_id", runID.String()), zap.String("market", o.cfg.Market))
	logger.Info("run starting",
		zap.Int("parallelism", o.cfg.Parallelism),
		zap.Bool("ordered_writes", o.cfg.OrderedWrites),
		zap.Bool("skip_existing", o.cfg.SkipExisting),
	)

	o.emit(runID, progress.Event{Stage: progress.StageRunStart, TS: startedAt})
	if err := o.repo.StartRun(ctx, runID, o.cfg.Market, startedAt); err != nil {
		logger.Warn("recording run start", zap.Error(err))
	}

	summary := &RunSummary{RunID: runID, Market: o.cfg.Market, StartedAt: startedAt}

	categories, err := o.resolver.Resolve(ctx)
	if err != nil {
		summary.Fatal = err
		o.finishRun(ctx, logger, summary)
		return summary, err
	}
	logger.Info("taxonomy resolved", zap.Int("categories", len(categories)))

	cache := o.cfg.Cache
	if cache == nil {
		cache = NewRunCache()
	}

	outcomes := make([]catalog.CategoryRunOutcome, len(categories))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Parallelism)

	for i, category := range categories {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				outcomes[i] = neverStarted(category, err)
				o.recordOutcome(ctx, runID, outcomes[i])
				return nil
			}
			outcome, fatal := o.processCategory(gctx, runID, cache, category)
			outcomes[i] = outcome
			o.recordOutcome(ctx, runID, outcome)
			return fatal
		})
	}

	fatal := g.Wait()

	// Categories the scheduler never reached.
	for i, category := range categories {
		if outcomes[i].State != "" {
			continue
		}
		cause := fatal
		if cause == nil {
			cause = context.Cause(ctx)
		}
		if cause == nil {
			cause = errors.New("scheduling stopped")
		}
		outcomes[i] = neverStarted(category, cause)
		o.recordOutcome(ctx, runID, outcomes[i])
	}

	summary.Outcomes = outcomes
	summary.Fatal = fatal
	o.finishRun(ctx, logger, summary)
	return summary, fatal
}

// processCategory walks one category through its state machine. The
// returned error is non-nil only for fatal conditions that must abort
// the whole run.
func (o *Orchestrator) processCategory(ctx context.Context, runID uuid.UUID, cache *RunCache, category catalog.Category) (catalog.CategoryRunOutcome, error) {
	slug := category.Slug()
	logger := o.logger.With(zap.String("run_id", runID.String()), zap.String("slug", slug))
	start := o.clock.Now()

	outcome := catalog.CategoryRunOutcome{Category: category}
	settle := func(state catalog.CategoryState, failure error) catalog.CategoryRunOutcome {
		outcome.State = state
		outcome.Failure = failure
		outcome.Elapsed = o.clock.Now().Sub(start)
		return outcome
	}

	if o.cfg.SkipExisting {
		exists, err := o.sink.HasOutput(slug)
		if err != nil {
			return settle(catalog.StateFailed, fmt.Errorf("probing output unit %s: %w", slug, err)), nil
		}
		if exists {
			logger.Info("output unit exists, skipping category")
			return settle(catalog.StateSkipped, nil), nil
		}
	}

	o.emit(runID, progress.Event{Stage: progress.StageCategoryStart, TS: start, Category: slug})
	logger.Debug("category enumerating")

	identifiers, enumErr := o.enumerate(ctx, runID, cache, category, slug)
	outcome.Enumerated = len(identifiers)
	if enumErr != nil {
		if isCancellation(enumErr) {
			return settle(catalog.StateCancelled, enumErr), nil
		}
		logger.Warn("enumeration incomplete, continuing with gathered identifiers",
			zap.Int("gathered", len(identifiers)), zap.Error(enumErr))
		if len(identifiers) == 0 {
			return settle(catalog.StateFailed, fmt.Errorf("enumeration incomplete: %w", enumErr)), nil
		}
	}

	logger.Debug("category fetching details", zap.Int("identifiers", len(identifiers)))

	written, unresolved, streamErr := o.fetchAndWrite(ctx, runID, category, slug, identifiers)
	outcome.ProductsWritten = written
	outcome.Unresolved = unresolved

	switch {
	case streamErr != nil && errors.Is(streamErr, catalog.ErrAuthRevoked):
		return settle(catalog.StateFailed, streamErr), streamErr
	case streamErr != nil && isCancellation(streamErr):
		return settle(catalog.StateCancelled, streamErr), nil
	case streamErr != nil:
		return settle(catalog.StateFailed, streamErr), nil
	case enumErr != nil:
		return settle(catalog.StateFailed, fmt.Errorf("enumeration incomplete: %w", enumErr)), nil
	}

	if o.thresholdReached(len(identifiers), len(unresolved)) {
		return settle(catalog.StateFailed,
			fmt.Errorf("unresolved %d of %d identifiers", len(unresolved), len(identifiers))), nil
	}
	return settle(catalog.StateCompleted, nil), nil
}

// enumerate consults the run cache before paging the upstream. Partial
// enumerations are not memoized.
func (o *Orchestrator) enumerate(ctx context.Context, runID uuid.UUID, cache *RunCache, category catalog.Category, slug string) ([]catalog.ProductIdentifier, error) {
	if hit, ok := cache.Get(o.cfg.Market, slug); ok {
		o.logger.Debug("enumeration cache hit",
			zap.String("slug", slug), zap.Int("identifiers", len(hit)))
		return hit, nil
	}
	identifiers, err := o.enum.Enumerate(ctx, runID, category)
	if err == nil {
		cache.Put(o.cfg.Market, slug, identifiers)
	}
	return identifiers, err
}

// fetchAndWrite settles the category's batches and writes resolved
// records to the output unit. The writer is always closed; a close
// failure surfaces unless an earlier error already did.
func (o *Orchestrator) fetchAndWrite(ctx context.Context, runID uuid.UUID, category catalog.Category, slug string, identifiers []catalog.ProductIdentifier) (int, []catalog.UnresolvedIdentifier, error) {
	writer, err := o.sink.Open(slug)
	if err != nil {
		return 0, nil, fmt.Errorf("opening output unit %s: %w", slug, err)
	}

	var (
		written    int
		unresolved []catalog.UnresolvedIdentifier
	)
	writeBatch := func(out details.BatchOutcome) error {
		unresolved = append(unresolved, out.Result.Unresolved...)
		for _, id := range out.Identifiers {
			record, ok := out.Result.Resolved[id]
			if !ok {
				continue
			}
			if err := writer.Write(record); err != nil {
				return fmt.Errorf("writing record %s to %s: %w", id, slug, err)
			}
			written++
		}
		return nil
	}

	deliver := writeBatch
	var flushPending func() error
	if o.cfg.OrderedWrites {
		deliver, flushPending = reorderBySeq(writeBatch)
	}

	streamErr := o.fetcher.Stream(ctx, runID, category, identifiers, deliver)
	if flushPending != nil {
		if err := flushPending(); err != nil && streamErr == nil {
			streamErr = err
		}
	}
	closeErr := writer.Close()

	switch {
	case streamErr != nil:
		return written, unresolved, streamErr
	case closeErr != nil:
		return written, unresolved, fmt.Errorf("closing output unit %s: %w", slug, closeErr)
	default:
		return written, unresolved, nil
	}
}

// reorderBySeq buffers out-of-order batch outcomes and releases them in
// sequence so the output unit follows enumeration order. flush releases
// whatever settled when the stream ended early, still in sequence order,
// so gathered records are not lost.
func reorderBySeq(write func(details.BatchOutcome) error) (deliver func(details.BatchOutcome) error, flush func() error) {
	pending := make(map[int]details.BatchOutcome)
	next := 0
	deliver = func(out details.BatchOutcome) error {
		pending[out.Seq] = out
		for {
			buffered, ok := pending[next]
			if !ok {
				return nil
			}
			delete(pending, next)
			if err := write(buffered); err != nil {
				return err
			}
			next++
		}
	}
	flush = func() error {
		seqs := make([]int, 0, len(pending))
		for seq := range pending {
			seqs = append(seqs, seq)
		}
		sort.Ints(seqs)
		for _, seq := range seqs {
			if err := write(pending[seq]); err != nil {
				return err
			}
		}
		return nil
	}
	return deliver, flush
}

// recordOutcome emits, logs, persists, and publishes one category's
// terminal outcome. Bookkeeping runs on a drain context so results
// survive run cancellation.
func (o *Orchestrator) recordOutcome(ctx context.Context, runID uuid.UUID, outcome catalog.CategoryRunOutcome) {
	slug := outcome.Category.Slug()
	finishedAt := o.clock.Now()

	o.emit(runID, progress.Event{
		Stage:       progress.StageCategoryDone,
		TS:          finishedAt,
		Category:    slug,
		State:       string(outcome.State),
		Identifiers: outcome.Enumerated,
		Written:     outcome.ProductsWritten,
		Unresolved:  len(outcome.Unresolved),
		Dur:         outcome.Elapsed,
		Note:        outcome.FailureText(),
	})

	logger := o.logger.With(
		zap.String("run_id", runID.String()),
		zap.String("slug", slug),
		zap.String("state", string(outcome.State)),
		zap.Int("written", outcome.ProductsWritten),
		zap.Int("unresolved", len(outcome.Unresolved)),
		zap.Duration("elapsed", outcome.Elapsed),
	)
	switch outcome.State {
	case catalog.StateFailed:
		logger.Error("category failed", zap.Error(outcome.Failure))
	case catalog.StateCancelled:
		logger.Warn("category cancelled", zap.Error(outcome.Failure))
	default:
		logger.Info("category finished")
	}

	dctx, cancel := o.drainContext(ctx)
	defer cancel()

	record := store.CategoryOutcomeRecord{
		RunID:       runID,
		Slug:        slug,
		DisplayName: outcome.Category.DisplayName,
		State:       string(outcome.State),
		Enumerated:  outcome.Enumerated,
		Written:     outcome.ProductsWritten,
		Unresolved:  len(outcome.Unresolved),
		ElapsedMS:   outcome.Elapsed.Milliseconds(),
		FinishedAt:  finishedAt,
	}
	if text := outcome.FailureText(); text != "" {
		record.FailureText = &text
	}
	if err := o.repo.RecordCategoryOutcome(dctx, record); err != nil {
		logger.Warn("persisting category outcome", zap.Error(err))
	}

	if o.cfg.Topic != "" && o.publisher != nil {
		message := newCategoryMessage(runID, o.cfg.Market, outcome, finishedAt)
		if _, err := o.publisher.Publish(dctx, o.cfg.Topic, message); err != nil {
			logger.Warn("publishing category message", zap.Error(err))
		}
	}
}

// finishRun stamps the summary, records the run row, publishes the run
// message, and writes the summary artifact.
func (o *Orchestrator) finishRun(ctx context.Context, logger *zap.Logger, summary *RunSummary) {
	summary.Elapsed = o.clock.Now().Sub(summary.StartedAt)
	status := summary.Status()
	finishedAt := o.clock.Now()

	o.emit(summary.RunID, progress.Event{
		Stage:   progress.StageRunDone,
		TS:      finishedAt,
		State:   string(status),
		Written: summary.ProductsWritten(),
		Dur:     summary.Elapsed,
	})

	dctx, cancel := o.drainContext(ctx)
	defer cancel()

	var errMsg *string
	if summary.Fatal != nil {
		text := summary.Fatal.Error()
		errMsg = &text
	}
	if err := o.repo.CompleteRun(dctx, summary.RunID, finishedAt, status,
		summary.CategoriesAttempted(), summary.CategoriesClean(), summary.ProductsWritten(), errMsg); err != nil {
		logger.Warn("recording run completion", zap.Error(err))
	}

	if o.cfg.Topic != "" && o.publisher != nil {
		if _, err := o.publisher.Publish(dctx, o.cfg.Topic, summary.runMessage(finishedAt)); err != nil {
			logger.Warn("publishing run message", zap.Error(err))
		}
	}

	if o.cfg.OutputDir != "" {
		if err := summary.WriteArtifact(o.cfg.OutputDir); err != nil {
			logger.Warn("writing summary artifact", zap.Error(err))
		}
	}

	logger.Info("run finished",
		zap.String("status", string(status)),
		zap.Int("categories", summary.CategoriesAttempted()),
		zap.Int("categories_clean", summary.CategoriesClean()),
		zap.Int("products_written", summary.ProductsWritten()),
		zap.Duration("elapsed", summary.Elapsed),
	)
}

func (o *Orchestrator) emit(runID uuid.UUID, evt progress.Event) {
	if o.emitter == nil {
		return
	}
	evt.RunID = progress.UUIDToBytes(runID)
	evt.Market = o.cfg.Market
	if evt.TS.IsZero() {
		evt.TS = o.clock.Now()
	}
	o.emitter.Emit(evt)
}

// drainContext detaches bookkeeping from run cancellation while keeping
// it bounded.
func (o *Orchestrator) drainContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), o.cfg.DrainTimeout)
}

func (o *Orchestrator) thresholdReached(enumerated, unresolved int) bool {
	if enumerated == 0 || unresolved == 0 {
		return false
	}
	return float64(unresolved)/float64(enumerated) >= o.cfg.FailureThreshold
}

func neverStarted(category catalog.Category, cause error) catalog.CategoryRunOutcome {
	return catalog.CategoryRunOutcome{
		Category: category,
		State:    catalog.StateSkipped,
		Failure:  fmt.Errorf("never started: %w", cause),
	}
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
