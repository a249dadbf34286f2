package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"path"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/shelfbase/catalog-harvester/internal/clock/system"
	"github.com/shelfbase/catalog-harvester/internal/crawl"
	"github.com/shelfbase/catalog-harvester/internal/details"
	"github.com/shelfbase/catalog-harvester/internal/enumerate"
	idgen "github.com/shelfbase/catalog-harvester/internal/id/uuid"
	"github.com/shelfbase/catalog-harvester/internal/policy/retry"
	"github.com/shelfbase/catalog-harvester/internal/retail"
	"github.com/shelfbase/catalog-harvester/internal/sink"
	"github.com/shelfbase/catalog-harvester/internal/taxonomy"
)

// newCrawlCmd creates and configures the 'crawl' subcommand. It runs
// the full pipeline for one market: taxonomy, enumeration, detail
// batches, and one JSONL output unit per category.
func newCrawlCmd() *cobra.Command {
	var runIDFlag string

	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Harvests one market's full catalog",
		Long: `Resolves the market's category taxonomy and harvests every category into
a JSONL output unit. The process exits 0 only when every category completed
with zero unresolved identifiers, 3 when any category carried residue, and 4
when the run aborted before working the taxonomy.`,

		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCrawlCommand(cmd, runIDFlag)
		},
	}

	flags := cmd.Flags()
	flags.String("market", "uk", "storefront market code")
	flags.String("output", "data/harvest", "directory for output units and the summary artifact")
	flags.Int("parallelism", 6, "categories harvested concurrently")
	flags.Int("depth", 0, "taxonomy depth to harvest at (0 = leaves)")
	flags.Int("page-size", 120, "identifiers requested per listing page")
	flags.Int("batch-size", 100, "identifiers per detail batch")
	flags.Int("in-flight", 3, "detail batches outstanding per category")
	flags.Bool("skip-existing", false, "skip categories whose output unit already exists")
	flags.Bool("ordered", false, "write batches in enumeration order")
	flags.Float64("failure-threshold", 1.0, "unresolved fraction at which a category fails")
	flags.Int("drain-timeout", 10, "seconds granted to bookkeeping after cancellation")
	flags.Int("run-deadline", 0, "run wall-clock budget in minutes (0 = none)")
	flags.Int("retry-attempts", 3, "attempts per upstream call")
	flags.Int("retry-base-ms", 250, "base retry backoff in milliseconds")
	flags.Int("retry-cap-ms", 5000, "maximum retry backoff in milliseconds")
	flags.Float64("rate-rps", 4, "storefront requests per second")
	flags.Int("rate-burst", 8, "storefront request burst")
	flags.String("db-provider", "", "outcome store provider (postgres, memory, noop)")
	flags.String("storage-provider", "", "output mirror provider (gcs, local, memory, noop)")
	flags.String("pubsub-provider", "", "completion publisher provider (pubsub, memory, noop)")
	flags.String("metrics-addr", "", "address for the standalone metrics endpoint")
	flags.StringVar(&runIDFlag, "run-id", "", "preset run ID (UUID, generated when empty)")

	return cmd
}

func runCrawlCommand(cmd *cobra.Command, runIDFlag string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	defer appInstance.Close()
	cfg := appInstance.GetConfig()
	logger := appInstance.GetLogger()

	runID, err := resolveRunID(runIDFlag)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := newMarketClient(ctx, appInstance, cfg.Harvest.Market)
	if err != nil {
		return err
	}

	out, err := sink.NewFileSystemSink(cfg.Harvest.OutputDir)
	if err != nil {
		return fmt.Errorf("initialize output sink: %w", err)
	}
	var runSink sink.Sink = out
	if blobs := appInstance.GetBlobStore(); blobs != nil {
		prefix := path.Join(cfg.Storage.Prefix, runID.String())
		runSink = sink.NewMirrorSink(out, blobs, prefix, logger)
	}

	policy := retry.NewExponential(cfg.Harvest.RetryAttempts, cfg.Harvest.RetryBase(), cfg.Harvest.RetryCap())
	resolver := taxonomy.NewResolver(client, cfg.Harvest.TaxonomyDepth, logger)
	enumerator := enumerate.NewEnumerator(client, policy, cfg.Harvest.PageSize, cfg.Harvest.Market, appInstance.GetHub(), logger)
	fetcher := details.NewFetcher(client, policy, details.Config{
		BatchSize:        cfg.Harvest.BatchSize,
		InFlight:         cfg.Harvest.InFlight,
		AuthFailureLimit: cfg.Harvest.AuthFailureLimit,
		Market:           cfg.Harvest.Market,
	}, appInstance.GetHub(), logger)

	orch := crawl.New(
		crawl.Config{
			Market:           cfg.Harvest.Market,
			OutputDir:        cfg.Harvest.OutputDir,
			Parallelism:      cfg.Harvest.Parallelism,
			FailureThreshold: cfg.Harvest.FailureThreshold,
			OrderedWrites:    cfg.Harvest.OrderedWrites,
			SkipExisting:     cfg.Harvest.SkipExisting,
			DrainTimeout:     cfg.Harvest.DrainTimeout(),
			RunDeadline:      cfg.Harvest.RunDeadline(),
			Topic:            cfg.PubSub.TopicName,
			RunID:            runID,
		},
		resolver,
		enumerator,
		fetcher,
		runSink,
		appInstance.GetRepository(),
		appInstance.GetPublisher(),
		appInstance.GetHub(),
		system.New(),
		idgen.New(),
		logger,
	)

	summary, runErr := orch.Run(ctx)
	code := summary.ExitCode()
	if code == crawl.ExitClean {
		return nil
	}
	if runErr != nil {
		return &ExitError{Code: code, Err: fmt.Errorf("harvest aborted: %w", runErr)}
	}
	return &ExitError{
		Code: code,
		Err: fmt.Errorf("harvest finished with residue: %d of %d categories clean",
			summary.CategoriesClean(), summary.CategoriesAttempted()),
	}
}

// resolveRunID parses an operator-supplied run ID or mints a fresh one.
// The ID is fixed before the pipeline starts because the mirror prefix
// embeds it.
func resolveRunID(flag string) (uuid.UUID, error) {
	if flag == "" {
		id, err := idgen.New().NewRunID()
		if err != nil {
			return uuid.Nil, fmt.Errorf("generate run id: %w", err)
		}
		return id, nil
	}
	id, err := uuid.Parse(flag)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid --run-id: %w", err)
	}
	return id, nil
}

// newMarketClient builds a session-ready storefront client for one
// market, applying any configured base URL override.
func newMarketClient(ctx context.Context, a App, code string) (*retail.Client, error) {
	cfg := a.GetConfig()
	market, err := retail.MarketByCode(code)
	if err != nil {
		return nil, err
	}
	if override := cfg.Retail.BaseURLs[market.Code]; override != "" {
		market.BaseURL = override
	}
	client, err := retail.NewClient(retail.Config{
		Market:     market,
		UserAgent:  cfg.Retail.UserAgent,
		Timeout:    cfg.Retail.Timeout(),
		Attributes: cfg.Retail.Attributes,
	}, a.GetLimiter(), a.GetLogger())
	if err != nil {
		return nil, fmt.Errorf("initialize storefront client: %w", err)
	}
	if err := client.Bootstrap(ctx); err != nil {
		return nil, fmt.Errorf("bootstrap storefront session: %w", err)
	}
	return client, nil
}
