// Package pipeline runs one tracker pass: restore the snapshot, collect
// from the court website, reconcile, recount citations, persist and render.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/upc-citation-tracker/internal/citation"
	"github.com/JakeFAU/upc-citation-tracker/internal/decision"
	"github.com/JakeFAU/upc-citation-tracker/internal/merge"
	"github.com/JakeFAU/upc-citation-tracker/internal/ranking"
	"github.com/JakeFAU/upc-citation-tracker/internal/report"
	"github.com/JakeFAU/upc-citation-tracker/internal/source"
	"github.com/JakeFAU/upc-citation-tracker/internal/stats"
)

// Store loads and persists the snapshot.
type Store interface {
	LoadOrEmpty(ctx context.Context) (*decision.Snapshot, error)
	Persist(ctx context.Context, snap *decision.Snapshot) error
}

// Collector produces candidates from the website.
type Collector interface {
	Collect(ctx context.Context, known source.Known) (source.Batch, error)
}

// Recorder receives run-level metrics.
type Recorder interface {
	SetDecisions(n int)
	MarkRunFinished(t time.Time)
	WriteTextfile(path string) error
}

// IDGenerator issues run identifiers.
type IDGenerator interface {
	NewID() (string, error)
}

// Outputs names the files a run writes. Empty paths are skipped.
type Outputs struct {
	TopNPath       string
	StatisticsPath string
	StatsJSONPath  string
	MetricsPath    string
}

// Options sizes the reports.
type Options struct {
	TopN    int
	Stats   stats.Options
	Outputs Outputs
}

// Result summarizes a finished run.
type Result struct {
	RunID     string
	Decisions int
	Pages     int
	Documents int
	Merge     merge.Report
	Citations merge.Report
	Failures  []source.Failure
}

// Pipeline wires the tracker components together.
type Pipeline struct {
	opts     Options
	store    Store
	source   Collector
	merger   *merge.Merger
	renderer *report.Renderer
	recorder Recorder
	clock    decision.Clock
	ids      IDGenerator
	logger   *zap.Logger
}

// New constructs a Pipeline. source may be nil for report-only use and
// recorder may be nil.
func New(
	opts Options,
	store Store,
	src Collector,
	merger *merge.Merger,
	renderer *report.Renderer,
	recorder Recorder,
	clock decision.Clock,
	ids IDGenerator,
	logger *zap.Logger,
) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		opts:     opts,
		store:    store,
		source:   src,
		merger:   merger,
		renderer: renderer,
		recorder: recorder,
		clock:    clock,
		ids:      ids,
		logger:   logger,
	}
}

// Scrape runs a full pass. Per-unit failures are reported in Result; only a
// failed persist or report write returns an error.
func (p *Pipeline) Scrape(ctx context.Context) (Result, error) {
	if p.source == nil {
		return Result{}, fmt.Errorf("scrape: no source configured")
	}
	res, log, err := p.begin()
	if err != nil {
		return res, err
	}
	log.Info("run started")

	snap, err := p.store.LoadOrEmpty(ctx)
	if err != nil {
		return res, fmt.Errorf("load store: %w", err)
	}
	log.Info("snapshot restored", zap.String("stage", "load"), zap.Int("decisions", snap.Len()))

	batch, err := p.source.Collect(ctx, snap)
	res.Pages, res.Documents, res.Failures = batch.Pages, batch.Documents, batch.Failures
	if err != nil {
		return res, fmt.Errorf("collect: %w", err)
	}

	res.Merge = p.merger.Reconcile(snap, batch.Candidates)
	log.Info("candidates merged",
		zap.String("stage", "merge"),
		zap.Int("inserted", res.Merge.Inserted),
		zap.Int("updated", res.Merge.Updated),
		zap.Int("unchanged", res.Merge.Unchanged),
		zap.Int("rejected", res.Merge.Rejected),
	)

	res.Citations = p.merger.Reconcile(snap, citation.Count(snap))
	log.Info("citations recounted", zap.String("stage", "citations"), zap.Int("changed", res.Citations.Updated))

	if err := p.store.Persist(ctx, snap); err != nil {
		log.Error("persist failed", zap.String("stage", "persist"), zap.Error(err))
		return res, fmt.Errorf("persist: %w", err)
	}
	res.Decisions = snap.Len()

	now := p.clock.Now()
	if err := p.writeTopN(snap, now); err != nil {
		return res, err
	}
	p.finish(log, res, now)
	return res, nil
}

// Reports renders every report from the stored snapshot without fetching.
func (p *Pipeline) Reports(ctx context.Context) (Result, error) {
	res, log, err := p.begin()
	if err != nil {
		return res, err
	}
	snap, err := p.store.LoadOrEmpty(ctx)
	if err != nil {
		return res, fmt.Errorf("load store: %w", err)
	}
	res.Decisions = snap.Len()

	now := p.clock.Now()
	if err := p.writeTopN(snap, now); err != nil {
		return res, err
	}
	page := report.StatisticsPage{GeneratedAt: now, Summary: stats.Summarize(snap, p.opts.Stats)}
	if err := p.write(p.opts.Outputs.StatisticsPath, func(w io.Writer) error {
		return p.renderer.RenderStatistics(w, page)
	}); err != nil {
		return res, err
	}
	if err := p.write(p.opts.Outputs.StatsJSONPath, func(w io.Writer) error {
		return p.renderer.RenderStatisticsJSON(w, page)
	}); err != nil {
		return res, err
	}
	log.Info("reports rendered", zap.String("stage", "report"), zap.Int("decisions", res.Decisions))
	return res, nil
}

func (p *Pipeline) begin() (Result, *zap.Logger, error) {
	runID, err := p.ids.NewID()
	if err != nil {
		return Result{}, p.logger, fmt.Errorf("generate run id: %w", err)
	}
	return Result{RunID: runID}, p.logger.With(zap.String("run_id", runID)), nil
}

func (p *Pipeline) writeTopN(snap *decision.Snapshot, now time.Time) error {
	entries, err := ranking.Rank(snap, p.opts.TopN)
	if err != nil {
		return fmt.Errorf("rank: %w", err)
	}
	summary := stats.Summarize(snap, stats.Options{})
	page := report.TopNPage{GeneratedAt: now, Totals: report.TotalsOf(summary), Limit: p.opts.TopN, Entries: entries}
	return p.write(p.opts.Outputs.TopNPath, func(w io.Writer) error {
		return p.renderer.RenderTopN(w, page)
	})
}

func (p *Pipeline) write(path string, render func(io.Writer) error) error {
	if path == "" {
		return nil
	}
	if err := report.WriteFile(path, render); err != nil {
		p.logger.Error("report write failed", zap.String("stage", "report"), zap.String("path", path), zap.Error(err))
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func (p *Pipeline) finish(log *zap.Logger, res Result, now time.Time) {
	if p.recorder != nil {
		p.recorder.SetDecisions(res.Decisions)
		p.recorder.MarkRunFinished(now)
		if path := p.opts.Outputs.MetricsPath; path != "" {
			if err := p.recorder.WriteTextfile(path); err != nil {
				log.Warn("metrics textfile not written", zap.String("path", path), zap.Error(err))
			}
		}
	}
	log.Info("run finished",
		zap.Int("decisions", res.Decisions),
		zap.Int("pages", res.Pages),
		zap.Int("documents", res.Documents),
		zap.Int("failures", len(res.Failures)),
	)
}
