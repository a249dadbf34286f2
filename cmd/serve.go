package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/shelfbase/catalog-harvester/internal/api"
	"github.com/shelfbase/catalog-harvester/internal/details"
	"github.com/shelfbase/catalog-harvester/internal/policy/retry"
	"github.com/shelfbase/catalog-harvester/internal/retail"
)

// newServeCmd creates the 'serve' subcommand hosting the lookup and run
// inspection API.
func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serves the product lookup and run inspection API",
		Long: `Starts an HTTP server exposing on-demand product lookups against the
live storefront plus read access to recorded harvest runs. The server
runs until it receives SIGINT or SIGTERM, then shuts down gracefully.`,

		RunE: runServeCommand,
	}

	flags := cmd.Flags()
	flags.Int("port", 8080, "HTTP listen port")
	flags.Int("batch-size", 100, "identifiers per storefront detail request")
	flags.Int("in-flight", 3, "detail requests outstanding per lookup")
	flags.Int("retry-attempts", 3, "attempts per storefront request")
	flags.Int("retry-base-ms", 250, "base retry backoff in milliseconds")
	flags.Int("retry-cap-ms", 5000, "maximum retry backoff in milliseconds")
	flags.Float64("rate-rps", 4, "storefront requests per second")
	flags.Int("rate-burst", 8, "storefront request burst allowance")
	flags.String("db-provider", "", "outcome store provider (postgres, memory, none)")

	return cmd
}

func runServeCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	defer appInstance.Close()
	cfg := appInstance.GetConfig()
	logger := appInstance.GetLogger()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := api.NewServer(
		appInstance.GetRepository(),
		newLookupFactory(appInstance),
		appInstance.GetRegistry(),
		cfg,
		logger,
	)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", zap.Error(err))
		return fmt.Errorf("shutdown http server: %w", err)
	}
	logger.Info("http server stopped")
	return nil
}

// newLookupFactory returns a LookupFactory that bootstraps one storefront
// session per market on first use and reuses it for the life of the process.
// A failed bootstrap is not cached, so the next request retries it.
func newLookupFactory(a App) api.LookupFactory {
	cfg := a.GetConfig()
	policy := retry.NewExponential(
		cfg.Harvest.RetryAttempts,
		cfg.Harvest.RetryBase(),
		cfg.Harvest.RetryCap(),
	)

	var mu sync.Mutex
	fetchers := make(map[string]api.Lookuper)

	return func(ctx context.Context, code string) (api.Lookuper, error) {
		mu.Lock()
		defer mu.Unlock()

		if fetcher, ok := fetchers[code]; ok {
			return fetcher, nil
		}
		if _, err := retail.MarketByCode(code); err != nil {
			return nil, fmt.Errorf("%w %q (served: %s)",
				api.ErrUnknownMarket, code, strings.Join(retail.MarketCodes(), ", "))
		}
		client, err := newMarketClient(ctx, a, code)
		if err != nil {
			return nil, err
		}
		fetcher := details.NewFetcher(client, policy, details.Config{
			BatchSize:        cfg.Harvest.BatchSize,
			InFlight:         cfg.Harvest.InFlight,
			AuthFailureLimit: cfg.Harvest.AuthFailureLimit,
			Market:           code,
		}, a.GetHub(), a.GetLogger())
		fetchers[code] = fetcher
		return fetcher, nil
	}
}
