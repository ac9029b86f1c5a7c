// Package cmd defines the moltgraph CLI commands.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/moltgraph/moltgraph/internal/app"
	"github.com/moltgraph/moltgraph/internal/config"
	"github.com/moltgraph/moltgraph/internal/graph"
	"github.com/moltgraph/moltgraph/internal/moltbook"
	"github.com/moltgraph/moltgraph/internal/scrape"
	pkgconfig "github.com/moltgraph/moltgraph/pkg/config"
)

var cfgFile string

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App is the slice of the service container commands use. An interface so
// tests can inject a stub through the same context plumbing.
type App interface {
	Close(ctx context.Context)
	Config() config.Config
	Logger() *zap.Logger
	Store() *graph.Store
	Client() *moltbook.Client
	Scraper() *scrape.Scraper
}

// newApp is the application factory, a variable so tests can replace it.
var newApp = func(ctx context.Context) (App, error) {
	return app.NewApp(ctx)
}

// resolveApp retrieves the App injected by the root PersistentPreRunE.
func resolveApp(ctx context.Context) (App, error) {
	a, ok := ctx.Value(appKey).(App)
	if !ok || a == nil {
		return nil, fmt.Errorf("application not initialized")
	}
	return a, nil
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "moltgraph",
		Short: "Mirrors the Moltbook platform into a temporal property graph",
		Long: `moltgraph incrementally crawls the Moltbook REST API and mirrors
agents, submolts, posts, comments and feeds into a bitemporal Neo4j
property graph. Runs are resumable: every view's pagination offset is
checkpointed after each processed page.`,

		// Runs after config is loaded, before the subcommand's RunE: the
		// right place to build and inject the service container.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := newApp(cmd.Context())
			if err != nil {
				return fmt.Errorf("initializing application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				appInstance.Close(cmd.Context())
			}
		},
	}

	cobra.OnInitialize(func() { pkgconfig.InitConfig(cfgFile) })

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default searches ., /etc/moltgraph, $HOME/.moltgraph)")

	cmd.AddCommand(newCrawlCmd())
	cmd.AddCommand(newSchemaCmd())

	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
