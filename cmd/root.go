// Package cmd defines the upctracker command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/upc-citation-tracker/internal/app"
	"github.com/JakeFAU/upc-citation-tracker/internal/config"
	"github.com/JakeFAU/upc-citation-tracker/internal/pipeline"
	"github.com/JakeFAU/upc-citation-tracker/internal/publish"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// Runner executes tracker passes.
type Runner interface {
	Scrape(ctx context.Context) (pipeline.Result, error)
	Reports(ctx context.Context) (pipeline.Result, error)
}

// Publisher ships the artifacts of the last run.
type Publisher interface {
	Run(ctx context.Context) (publish.Result, error)
}

// App is what commands need from the service container. Tests swap in a
// mock through newApp.
type App interface {
	Config() config.Config
	Logger() *zap.Logger
	Runner(withSource bool) Runner
	Publisher(ctx context.Context, dryRun bool) (Publisher, error)
	Handler() http.Handler
	Close()
}

// newApp is the application factory.
var newApp = func(cfg config.Config) (App, error) {
	a, err := app.New(cfg, nil)
	if err != nil {
		return nil, err
	}
	return container{a}, nil
}

type options struct {
	configPath string
	maxPages   int
	app        App
}

func newRootCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upctracker",
		Short: "Tracks Unified Patent Court decisions and how often they are cited.",
		Long: `upctracker scrapes the Unified Patent Court decision listing, keeps every
decision in an embedded database, counts how often each decision is cited
by the others and renders top-N and statistics reports.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		// Runs after flag parsing and before the subcommand's RunE.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if f := cmd.Flags().Lookup("max-pages"); f != nil && f.Changed {
				cfg.Source.MaxPages = opts.maxPages
				if err := cfg.Validate(); err != nil {
					return err
				}
			}
			appInstance, err := newApp(cfg)
			if err != nil {
				return fmt.Errorf("initialize application services: %w", err)
			}
			opts.app = appInstance
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (YAML); UPC_* environment variables override it")

	cmd.AddCommand(
		newScrapeCmd(opts),
		newStatsCmd(),
		newPublishCmd(),
		newServeCmd(),
	)
	return cmd
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// run executes root and closes the App whether or not the command failed;
// cobra skips post-run hooks after an error.
func run(ctx context.Context, root *cobra.Command, opts *options) error {
	err := root.ExecuteContext(ctx)
	if opts.app != nil {
		opts.app.Close()
		opts.app = nil
	}
	return err
}

// Execute runs the command line and exits non-zero on failure.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	opts := &options{}
	err := run(ctx, newRootCmd(opts), opts)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "upctracker: %v\n", err)
		os.Exit(1)
	}
}
