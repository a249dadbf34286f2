// Package cmd defines and implements the CLI commands for the shelfbase
// executable.
package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/shelfbase/catalog-harvester/internal/app"
	"github.com/shelfbase/catalog-harvester/internal/policy/ratelimit"
	"github.com/shelfbase/catalog-harvester/internal/progress"
	"github.com/shelfbase/catalog-harvester/internal/publisher"
	"github.com/shelfbase/catalog-harvester/internal/sink"
	"github.com/shelfbase/catalog-harvester/internal/store"
	"github.com/shelfbase/catalog-harvester/pkg/config"
)

var cfgFile string

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App defines the application interface that commands use. This allows
// us to inject a mock app during tests.
type App interface {
	Close()
	GetConfig() config.Config
	GetLogger() *zap.Logger
	GetRepository() store.OutcomeRepository
	GetBlobStore() sink.BlobStore
	GetPublisher() publisher.Publisher
	GetLimiter() *ratelimit.Limiter
	GetRegistry() *prometheus.Registry
	GetHub() *progress.Hub
}

// newApp is the application factory. It's a variable so we can replace
// it with a mock factory in our tests.
var newApp func(ctx context.Context, cfg config.Config) (App, error) = func(ctx context.Context, cfg config.Config) (App, error) {
	return app.NewApp(ctx, cfg)
}

// ExitError carries the process exit code a subcommand chose for a run
// that completed but not cleanly.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit code %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shelfbase",
		Short: "Harvests retailer catalogs into JSONL output units.",
		Long: `shelfbase walks a retailer storefront market by market: it resolves the
category taxonomy, enumerates every product identifier per category, resolves
identifiers to full records through the batch lookup endpoint, and writes one
JSONL output unit per category. Outcomes are persisted, published, and served
back over a small HTTP API.`,
		SilenceUsage: true,

		// This hook runs for every subcommand. Config is loaded with the
		// subcommand's flags bound, then the app container is built and
		// injected through the context.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile, cmd.Flags())
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			appInstance, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("initialize application services: %w", err)
			}
			ctx := context.WithValue(cmd.Context(), appKey, appInstance)
			cmd.SetContext(ctx)
			return nil
		},

		// This hook ensures services are shut down gracefully.
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				appInstance.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default searches ., /etc/catalog-harvester, $HOME/.catalog-harvester)")

	cmd.AddCommand(newCrawlCmd())
	cmd.AddCommand(newTaxonomyCmd())
	cmd.AddCommand(newServeCmd())

	return cmd
}

// resolveApp pulls the injected App out of the command context.
func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute runs the root command and maps the outcome onto the process
// exit contract: 0 clean, 3 residue, 4 fatal abort, 2 usage or
// configuration errors.
func Execute() int {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			return exitErr.Code
		}
		return 2
	}
	return 0
}
