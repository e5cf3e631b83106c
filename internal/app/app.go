// Package app builds and holds the long-lived services a command needs,
// acting as the dependency injection container between config and commands.
package app

import (
	"context"
	"fmt"

	gcsstorage "cloud.google.com/go/storage"
	gpubsub "cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/JakeFAU/upc-citation-tracker/internal/api"
	"github.com/JakeFAU/upc-citation-tracker/internal/clock/system"
	"github.com/JakeFAU/upc-citation-tracker/internal/config"
	"github.com/JakeFAU/upc-citation-tracker/internal/fetcher"
	"github.com/JakeFAU/upc-citation-tracker/internal/hash/sha256"
	"github.com/JakeFAU/upc-citation-tracker/internal/id/uuid"
	"github.com/JakeFAU/upc-citation-tracker/internal/logging"
	"github.com/JakeFAU/upc-citation-tracker/internal/merge"
	"github.com/JakeFAU/upc-citation-tracker/internal/metrics"
	"github.com/JakeFAU/upc-citation-tracker/internal/parser"
	"github.com/JakeFAU/upc-citation-tracker/internal/pipeline"
	"github.com/JakeFAU/upc-citation-tracker/internal/policy/ratelimit"
	"github.com/JakeFAU/upc-citation-tracker/internal/publish"
	pubmemory "github.com/JakeFAU/upc-citation-tracker/internal/publisher/memory"
	pubsubpublisher "github.com/JakeFAU/upc-citation-tracker/internal/publisher/pubsub"
	"github.com/JakeFAU/upc-citation-tracker/internal/report"
	"github.com/JakeFAU/upc-citation-tracker/internal/source"
	"github.com/JakeFAU/upc-citation-tracker/internal/stats"
	"github.com/JakeFAU/upc-citation-tracker/internal/storage/gcs"
	"github.com/JakeFAU/upc-citation-tracker/internal/storage/local"
	"github.com/JakeFAU/upc-citation-tracker/internal/storage/memory"
	"github.com/JakeFAU/upc-citation-tracker/internal/storage/postgres"
	"github.com/JakeFAU/upc-citation-tracker/internal/store"
)

// App holds the shared services for one command invocation.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	metrics  *metrics.Metrics
	store    *store.Store
	renderer *report.Renderer
	clock    *system.Clock
	ids      *uuid.Generator
	closers  []func()
}

// New builds the container. When logger is nil one is built from the
// logging and output sections of cfg.
func New(cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		var err error
		logger, err = logging.New(logging.Options{
			Development: cfg.Logging.Development,
			FilePath:    cfg.Output.LogPath,
		})
		if err != nil {
			return nil, fmt.Errorf("init logger: %w", err)
		}
	}
	renderer, err := report.New()
	if err != nil {
		return nil, fmt.Errorf("init renderer: %w", err)
	}
	return &App{
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics.New(),
		store:    store.New(cfg.Store.Path, logger.Named("store")),
		renderer: renderer,
		clock:    system.New(),
		ids:      uuid.New(),
	}, nil
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config {
	return a.cfg
}

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Store returns the decision store.
func (a *App) Store() *store.Store {
	return a.store
}

// Metrics returns the per-process metrics registry.
func (a *App) Metrics() *metrics.Metrics {
	return a.metrics
}

// StatsOptions maps the report section onto stats.Options.
func (a *App) StatsOptions() stats.Options {
	return stats.Options{
		Months:     a.cfg.Report.Months,
		TopCited:   a.cfg.Report.TopCited,
		TopParties: a.cfg.Report.TopParties,
	}
}

// Source builds the website collector.
func (a *App) Source() *source.Source {
	cfg := a.cfg
	limiter := ratelimit.New(ratelimit.Config{Delay: cfg.Delay(), Burst: cfg.Fetch.Burst}, a.metrics)
	client := fetcher.New(
		fetcher.Config{
			UserAgent:     cfg.Source.UserAgent,
			RespectRobots: cfg.Source.RespectRobots,
			Timeout:       cfg.RequestTimeout(),
			MaxBodyBytes:  cfg.HTTP.MaxBodyBytes,
		},
		limiter,
		fetcher.NewRetryPolicy(cfg.MaxAttempts(), cfg.BackoffInitial(), cfg.BackoffMax()),
		a.metrics,
		a.logger.Named("fetcher"),
	)
	return source.New(
		source.Config{
			BaseURL:            cfg.Source.BaseURL,
			ListingPath:        cfg.Source.ListingPath,
			Query:              cfg.ListingQuery(),
			MaxPages:           cfg.Source.MaxPages,
			StopAfterKnownPage: cfg.Source.StopAfterKnownPage,
			Concurrency:        cfg.Fetch.Concurrency,
		},
		client,
		parser.NewListingParser(),
		parser.NewDocumentParser(),
		sha256.New(),
		a.clock,
		a.metrics,
		a.logger.Named("source"),
	)
}

// Pipeline builds the run orchestrator. Pass withSource=false for
// report-only commands.
func (a *App) Pipeline(withSource bool) *pipeline.Pipeline {
	var src pipeline.Collector
	if withSource {
		src = a.Source()
	}
	return pipeline.New(
		pipeline.Options{
			TopN:  a.cfg.Report.TopN,
			Stats: a.StatsOptions(),
			Outputs: pipeline.Outputs{
				TopNPath:       a.cfg.Output.TopNPath,
				StatisticsPath: a.cfg.Output.StatisticsPath,
				StatsJSONPath:  a.cfg.Output.StatsJSONPath,
				MetricsPath:    a.cfg.Output.MetricsPath,
			},
		},
		a.store,
		src,
		merge.New(a.clock, a.metrics, a.logger.Named("merge")),
		a.renderer,
		a.metrics,
		a.clock,
		a.ids,
		a.logger.Named("pipeline"),
	)
}

// Publisher builds the publish stage from the publish section. Clients it
// opens are released by Close. A dry run keeps uploads and the notification
// in memory and skips the mirror.
func (a *App) Publisher(ctx context.Context, dryRun bool) (*publish.Publisher, error) {
	if dryRun {
		return a.newPublisher(memory.NewBlobStore(), nil, pubmemory.New()), nil
	}
	cfg := a.cfg.Publish

	var blobs publish.BlobStore
	switch cfg.Blob.Provider {
	case "gcs":
		client, err := gcsstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("init gcs client: %w", err)
		}
		bs, err := gcs.New(client, gcs.Config{Bucket: cfg.Blob.Bucket, CacheControl: cfg.Blob.CacheControl})
		if err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("init gcs blob store: %w", err)
		}
		a.onClose(func() { _ = bs.Close() })
		blobs = bs
	default:
		bs, err := local.New(local.Config{BaseDir: cfg.Blob.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("init local blob store: %w", err)
		}
		blobs = bs
	}

	var mirror publish.Mirror
	if cfg.Postgres.DSN != "" {
		m, err := postgres.NewDecisionMirror(ctx, postgres.Config{
			DSN:      cfg.Postgres.DSN,
			Table:    cfg.Postgres.Table,
			MaxConns: int32(cfg.Postgres.MaxConns), // #nosec G115 -- validated small value
		})
		if err != nil {
			return nil, fmt.Errorf("init postgres mirror: %w", err)
		}
		a.onClose(m.Close)
		mirror = m
	}

	var notifier publish.Notifier
	if cfg.PubSub.Topic != "" {
		client, err := gpubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("init pubsub client: %w", err)
		}
		pub := pubsubpublisher.New(client.Topic(cfg.PubSub.Topic))
		a.onClose(func() {
			pub.Stop()
			_ = client.Close()
		})
		notifier = pub
	}

	return a.newPublisher(blobs, mirror, notifier), nil
}

func (a *App) newPublisher(blobs publish.BlobStore, mirror publish.Mirror, notifier publish.Notifier) *publish.Publisher {
	return publish.New(
		publish.Options{Prefix: a.cfg.Publish.Blob.Prefix, Artifacts: a.Artifacts()},
		a.store,
		blobs,
		mirror,
		notifier,
		a.clock,
		a.ids,
		a.logger.Named("publish"),
	)
}

// Artifacts lists the files a publish uploads. Only the store is required.
func (a *App) Artifacts() []publish.Artifact {
	out := a.cfg.Output
	artifacts := []publish.Artifact{
		{Name: "store", Path: a.cfg.Store.Path, ContentType: "application/vnd.sqlite3"},
	}
	optional := []publish.Artifact{
		{Name: "top_n", Path: out.TopNPath, ContentType: "text/html; charset=utf-8"},
		{Name: "statistics", Path: out.StatisticsPath, ContentType: "text/html; charset=utf-8"},
		{Name: "stats_json", Path: out.StatsJSONPath, ContentType: "application/json"},
		{Name: "metrics", Path: out.MetricsPath, ContentType: "text/plain; version=0.0.4"},
	}
	for _, art := range optional {
		if art.Path == "" {
			continue
		}
		art.Optional = true
		artifacts = append(artifacts, art)
	}
	return artifacts
}

// Server builds the report HTTP server.
func (a *App) Server() *api.Server {
	return api.NewServer(
		api.Options{
			SiteDir:        a.cfg.Server.SiteDir,
			DefaultTopN:    a.cfg.Report.TopN,
			MaxTopN:        max(a.cfg.Report.TopN, 1000),
			Stats:          a.StatsOptions(),
			RequestTimeout: a.cfg.RequestTimeout(),
		},
		a.store,
		a.renderer,
		a.metrics,
		a.clock,
		a.logger.Named("api"),
	)
}

func (a *App) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}

// Close releases every client in reverse order and flushes the logger.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
	// stderr cannot be synced on some platforms.
	_ = a.logger.Sync()
}
