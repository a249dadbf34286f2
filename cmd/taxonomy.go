package cmd

import (
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/shelfbase/catalog-harvester/internal/crawl"
	"github.com/shelfbase/catalog-harvester/internal/taxonomy"
)

// newTaxonomyCmd creates the 'taxonomy' subcommand. Operators use it to
// inspect what a harvest at the configured depth would cover.
func newTaxonomyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "taxonomy",
		Short: "Resolves and prints the market's category list",
		Long: `Fetches the market's category tree, flattens it at the configured depth,
and prints one line per category the crawl command would harvest.`,

		RunE: runTaxonomyCommand,
	}

	flags := cmd.Flags()
	flags.String("market", "uk", "storefront market code")
	flags.Int("depth", 0, "taxonomy depth to list (0 = leaves)")

	return cmd
}

func runTaxonomyCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	defer appInstance.Close()
	cfg := appInstance.GetConfig()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := newMarketClient(ctx, appInstance, cfg.Harvest.Market)
	if err != nil {
		return err
	}
	resolver := taxonomy.NewResolver(client, cfg.Harvest.TaxonomyDepth, appInstance.GetLogger())
	categories, err := resolver.Resolve(ctx)
	if err != nil {
		return &ExitError{Code: crawl.ExitFatal, Err: fmt.Errorf("resolve taxonomy: %w", err)}
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SLUG\tNAME\tPATH")
	for _, category := range categories {
		fmt.Fprintf(w, "%s\t%s\t%s\n",
			category.Slug(),
			category.DisplayName,
			strings.Join(category.PathSegments, " > "),
		)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("print taxonomy: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "\n%d categories\n", len(categories))
	return nil
}
