// Package app initializes and holds long-lived application services, acting as a dependency injection container.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/shelfbase/catalog-harvester/internal/logging"
	"github.com/shelfbase/catalog-harvester/internal/policy/ratelimit"
	"github.com/shelfbase/catalog-harvester/internal/progress"
	"github.com/shelfbase/catalog-harvester/internal/progress/sinks"
	"github.com/shelfbase/catalog-harvester/internal/publisher"
	mempub "github.com/shelfbase/catalog-harvester/internal/publisher/memory"
	"github.com/shelfbase/catalog-harvester/internal/publisher/pubsub"
	"github.com/shelfbase/catalog-harvester/internal/sink"
	"github.com/shelfbase/catalog-harvester/internal/storage/gcs"
	"github.com/shelfbase/catalog-harvester/internal/storage/local"
	memstore "github.com/shelfbase/catalog-harvester/internal/storage/memory"
	"github.com/shelfbase/catalog-harvester/internal/storage/postgres"
	"github.com/shelfbase/catalog-harvester/internal/store"
	"github.com/shelfbase/catalog-harvester/pkg/config"
)

// App holds all the shared, long-lived services for the application.
// It acts as a dependency injection (DI) container, holding instances of
// services like the logger, outcome repository, blob mirror, and message
// publisher. This struct is initialized once at startup and passed to the
// components that need it.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	repo      store.OutcomeRepository
	repoClose func()
	blobs     sink.BlobStore
	gcsClient *storage.Client
	publisher publisher.Publisher
	limiter   *ratelimit.Limiter
	registry  *prometheus.Registry
	hub       *progress.Hub
	metrics   *http.Server
	closeOnce sync.Once
}

// GetConfig returns the loaded configuration.
func (a *App) GetConfig() config.Config {
	return a.cfg
}

// GetLogger returns the shared zap logger instance for request-scoped logging.
func (a *App) GetLogger() *zap.Logger {
	return a.logger
}

// GetRepository exposes the configured outcome repository.
func (a *App) GetRepository() store.OutcomeRepository {
	return a.repo
}

// GetBlobStore returns the blob mirror, nil when mirroring is disabled.
func (a *App) GetBlobStore() sink.BlobStore {
	return a.blobs
}

// GetPublisher returns the completion publisher, nil when publishing is
// disabled.
func (a *App) GetPublisher() publisher.Publisher {
	return a.publisher
}

// GetLimiter returns the process-wide request limiter shared by all
// storefront clients.
func (a *App) GetLimiter() *ratelimit.Limiter {
	return a.limiter
}

// GetRegistry returns the Prometheus registry backing /metrics.
func (a *App) GetRegistry() *prometheus.Registry {
	return a.registry
}

// GetHub returns the progress hub used as the pipeline's event emitter.
func (a *App) GetHub() *progress.Hub {
	return a.hub
}

// NewApp creates and initializes a new App struct based on the application's
// configuration. It is the central point for service initialization and is
// designed to fail fast if any critical service cannot be initialized.
func NewApp(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("initialize logging: %w", err)
	}
	zap.ReplaceGlobals(logger)
	logger.Info("Initializing application services...")

	a := &App{cfg: cfg, logger: logger}

	// 1. Outcome repository. Stores run and category rows for the runs
	// API and post-run analysis.
	switch cfg.DB.Provider {
	case "postgres":
		logger.Info("Connecting to PostgreSQL...")
		repo, err := postgres.NewOutcomeStore(ctx, postgres.OutcomeStoreConfig{
			DSN:      cfg.DB.DSN,
			MaxConns: cfg.DB.MaxConns,
			MinConns: cfg.DB.MinConns,
		})
		if err != nil {
			return nil, fmt.Errorf("initialize outcome store: %w", err)
		}
		a.repo = repo
		a.repoClose = repo.Close
	case "memory":
		logger.Info("Using in-memory outcome repository. Rows are lost on exit.")
		a.repo = memstore.NewOutcomeStore()
	case "noop", "":
		logger.Info("Using No-Op outcome repository. Run metadata will be discarded.")
		a.repo = store.NewNoOpRepository()
	default:
		return nil, fmt.Errorf("unknown db provider: %s", cfg.DB.Provider)
	}

	// 2. Blob mirror. Uploads finished output units next to the local
	// copies; nil leaves mirroring off.
	switch cfg.Storage.Provider {
	case "gcs":
		logger.Info("Using GCS blob mirror", zap.String("bucket", cfg.Storage.Bucket))
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("initialize gcs client: %w", err)
		}
		blobs, err := gcs.New(ctx, client, gcs.Config{Bucket: cfg.Storage.Bucket})
		if err != nil {
			return nil, fmt.Errorf("initialize blob mirror: %w", err)
		}
		a.blobs = blobs
		a.gcsClient = client
	case "local":
		logger.Info("Using local blob mirror", zap.String("dir", cfg.Storage.LocalDir))
		blobs, err := local.New(local.Config{BaseDir: cfg.Storage.LocalDir})
		if err != nil {
			return nil, fmt.Errorf("initialize blob mirror: %w", err)
		}
		a.blobs = blobs
	case "memory":
		logger.Info("Using in-memory blob mirror.")
		a.blobs = memstore.NewBlobStore()
	case "noop", "":
		logger.Info("Blob mirroring disabled.")
	default:
		return nil, fmt.Errorf("unknown storage provider: %s", cfg.Storage.Provider)
	}

	// 3. Completion publisher.
	switch cfg.PubSub.Provider {
	case "pubsub":
		logger.Info("Connecting to GCP Pub/Sub", zap.String("topic", cfg.PubSub.TopicName))
		pub, err := pubsub.New(ctx, cfg.PubSub.ProjectID, cfg.PubSub.TopicName, logger)
		if err != nil {
			return nil, fmt.Errorf("initialize publisher: %w", err)
		}
		a.publisher = pub
	case "memory":
		logger.Info("Using in-memory publisher.")
		a.publisher = mempub.New()
	case "noop", "":
		logger.Info("Completion publishing disabled.")
	default:
		return nil, fmt.Errorf("unknown pubsub provider: %s", cfg.PubSub.Provider)
	}

	// 4. Progress instrumentation: every pipeline event reaches the log
	// sink and the Prometheus collectors through the hub.
	a.registry = prometheus.NewRegistry()
	promSink, err := sinks.NewPrometheusSink(a.registry)
	if err != nil {
		return nil, fmt.Errorf("initialize metrics sink: %w", err)
	}
	a.hub = progress.NewHub(
		progress.Config{Logger: logger, BaseContext: ctx},
		sinks.NewLogSink(logger),
		promSink,
	)

	// 5. Shared request limiter. One bucket for the whole process keeps
	// the combined request rate inside the storefront quota.
	a.limiter = ratelimit.New(ratelimit.Config{
		RequestsPerSecond: cfg.Retail.RateRPS,
		Burst:             cfg.Retail.RateBurst,
	})

	// 6. Standalone metrics endpoint for batch runs. The API server
	// exposes /metrics on its own router.
	if cfg.Metrics.Addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
		a.metrics = &http.Server{
			Addr:              cfg.Metrics.Addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("Starting metrics server", zap.String("addr", cfg.Metrics.Addr))
			if err := a.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Metrics server failed", zap.Error(err))
			}
		}()
	}

	logger.Info("Application services initialized successfully.")
	return a, nil
}

// Close gracefully shuts down all services in the App container. It is
// called by a Cobra hook after the command finishes execution and by
// commands themselves on error exits; extra calls are no-ops.
func (a *App) Close() {
	a.closeOnce.Do(a.close)
}

func (a *App) close() {
	a.GetLogger().Info("Shutting down application services...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if a.metrics != nil {
		if err := a.metrics.Shutdown(ctx); err != nil {
			a.GetLogger().Warn("Error shutting down metrics server", zap.Error(err))
		}
	}
	// Drain buffered progress events before the sinks go away.
	if err := a.hub.Close(ctx); err != nil {
		a.GetLogger().Warn("Error draining progress hub", zap.Error(err))
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.GetLogger().Warn("Error closing publisher", zap.Error(err))
		}
	}
	if a.repoClose != nil {
		a.repoClose()
	}
	if a.gcsClient != nil {
		if err := a.gcsClient.Close(); err != nil {
			a.GetLogger().Warn("Error closing storage client", zap.Error(err))
		}
	}

	// Flushing the logger buffer is important to ensure all logs are
	// written before the application exits.
	if err := a.GetLogger().Sync(); err != nil {
		// We can't do much here, as logging itself might be failing.
		// This is a best-effort attempt.
		a.GetLogger().Warn("Error syncing logger on shutdown", zap.Error(err))
	}
}
