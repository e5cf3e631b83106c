// Package source walks the UPC "decisions and orders" listing and turns its
// rows and linked PDFs into decision candidates.
package source

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/upc-citation-tracker/internal/decision"
	"github.com/JakeFAU/upc-citation-tracker/internal/parser"
)

// Stage names used in failures, logs and metrics.
const (
	StageListing  = "listing"
	StageDocument = "document"
	StageParse    = "parse"
)

// Getter fetches raw bytes for a URL.
type Getter interface {
	Get(ctx context.Context, kind, rawURL string) ([]byte, error)
}

// ListingParser parses one listing page.
type ListingParser interface {
	Parse(body []byte, pageURL string) (parser.ListingPage, error)
}

// DocumentParser parses one decision PDF.
type DocumentParser interface {
	Parse(body []byte) (parser.Document, error)
}

// Hasher fingerprints document bytes.
type Hasher interface {
	Sum(data []byte) string
}

// Known answers whether a decision is already stored.
type Known interface {
	Get(id string) (decision.Decision, bool)
}

// FailureObserver counts skipped units.
type FailureObserver interface {
	ObserveFailure(stage string)
}

// Config describes the listing endpoint and paging behavior.
type Config struct {
	BaseURL            string
	ListingPath        string
	Query              url.Values
	MaxPages           int
	StopAfterKnownPage bool
	Concurrency        int
}

// Failure is one skipped unit of work.
type Failure struct {
	Stage      string
	URL        string
	DecisionID string
	Err        error
}

// Batch is the output of one Collect pass, in fetch order.
type Batch struct {
	Candidates []decision.Candidate
	Failures   []Failure
	Pages      int
	Documents  int
}

// Source collects candidates from the court website.
type Source struct {
	cfg      Config
	getter   Getter
	listing  ListingParser
	document DocumentParser
	hasher   Hasher
	clock    decision.Clock
	observer FailureObserver
	logger   *zap.Logger
}

// New constructs a Source. observer may be nil.
func New(
	cfg Config,
	getter Getter,
	listing ListingParser,
	document DocumentParser,
	hasher Hasher,
	clock decision.Clock,
	observer FailureObserver,
	logger *zap.Logger,
) *Source {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Source{
		cfg:      cfg,
		getter:   getter,
		listing:  listing,
		document: document,
		hasher:   hasher,
		clock:    clock,
		observer: observer,
		logger:   logger,
	}
}

// PageURL builds the listing URL for a zero-based page number.
func (s *Source) PageURL(page int) string {
	q := url.Values{}
	for k, v := range s.cfg.Query {
		q[k] = append([]string(nil), v...)
	}
	q.Set("page", strconv.Itoa(page))
	return strings.TrimRight(s.cfg.BaseURL, "/") + "/" + strings.TrimLeft(s.cfg.ListingPath, "/") + "?" + q.Encode()
}

// Collect walks listing pages in order. A page or document that fails is
// recorded in Batch.Failures and skipped; only ctx cancellation aborts.
func (s *Source) Collect(ctx context.Context, known Known) (Batch, error) {
	var batch Batch
	seen := make(map[string]struct{})

	for page := 0; page < s.cfg.MaxPages; page++ {
		if err := ctx.Err(); err != nil {
			return batch, fmt.Errorf("collect canceled: %w", err)
		}
		pageURL := s.PageURL(page)
		log := s.logger.With(zap.String("stage", StageListing), zap.Int("page", page), zap.String("url", pageURL))

		body, err := s.getter.Get(ctx, StageListing, pageURL)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return batch, fmt.Errorf("collect canceled: %w", ctxErr)
			}
			s.fail(&batch, Failure{Stage: StageListing, URL: pageURL, Err: err})
			log.Error("listing page skipped", zap.Error(err))
			continue
		}
		listing, err := s.listing.Parse(body, pageURL)
		if err != nil {
			s.fail(&batch, Failure{Stage: StageParse, URL: pageURL, Err: err})
			log.Error("listing page unparseable", zap.Error(err))
			continue
		}
		batch.Pages++
		for _, problem := range listing.Problems {
			s.fail(&batch, Failure{Stage: StageParse, URL: pageURL, Err: problem})
			log.Warn("listing row skipped", zap.Error(problem))
		}
		if listing.Exhausted() {
			log.Info("listing exhausted")
			break
		}
		if len(listing.Rows) == 0 {
			log.Warn("listing page has no usable rows", zap.Int("problems", len(listing.Problems)))
			continue
		}

		candidates, fresh := s.rowsToCandidates(listing.Rows, known, seen)
		docs := s.fetchDocuments(ctx, candidates, known, &batch)
		batch.Documents += docs
		batch.Candidates = append(batch.Candidates, candidates...)
		log.Info("listing page collected",
			zap.Int("rows", len(listing.Rows)),
			zap.Int("new", fresh),
			zap.Int("documents", docs),
		)

		if s.cfg.StopAfterKnownPage && fresh == 0 {
			log.Info("no new decisions on page, stopping")
			break
		}
	}
	return batch, nil
}

func (s *Source) rowsToCandidates(rows []parser.Row, known Known, seen map[string]struct{}) ([]decision.Candidate, int) {
	now := s.clock.Now()
	fresh := 0
	out := make([]decision.Candidate, 0, len(rows))
	for _, r := range rows {
		c := decision.Candidate{
			Number:     r.Number,
			Node:       r.Node,
			Date:       decision.NormalizeDate(r.Date),
			Court:      r.Court,
			ActionType: r.ActionType,
			Parties:    r.Parties,
			SourceURL:  r.PDFURL,
			FetchedAt:  now,
		}
		if id, ok := c.Identifier(); ok {
			c.ID = id
			if _, stored := known.Get(id); !stored {
				if _, dup := seen[id]; !dup {
					fresh++
				}
			}
			seen[id] = struct{}{}
		}
		out = append(out, c)
	}
	return out, fresh
}

// needsDocument is true for new decisions, decisions whose text is missing
// and decisions whose PDF link changed. Rows without an identifier are
// never fetched.
func needsDocument(c decision.Candidate, known Known) bool {
	if c.SourceURL == "" || c.ID == "" {
		return false
	}
	stored, ok := known.Get(c.ID)
	if !ok {
		return true
	}
	return stored.FullText == "" || stored.SourceURL != c.SourceURL
}

// fetchDocuments downloads and parses PDFs in a bounded pool, writing
// results into candidates in place. It returns the number of documents fetched.
func (s *Source) fetchDocuments(ctx context.Context, candidates []decision.Candidate, known Known, batch *Batch) int {
	failures := make([]*Failure, len(candidates))
	fetched := make([]bool, len(candidates))

	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)
	for i := range candidates {
		if !needsDocument(candidates[i], known) {
			continue
		}
		g.Go(func() error {
			failures[i] = s.fetchDocument(ctx, &candidates[i])
			fetched[i] = failures[i] == nil || failures[i].Stage == StageParse
			return nil
		})
	}
	_ = g.Wait()

	n := 0
	for i := range candidates {
		if fetched[i] {
			n++
		}
		if f := failures[i]; f != nil {
			if ctx.Err() != nil && errors.Is(f.Err, ctx.Err()) {
				continue
			}
			s.fail(batch, *f)
			s.logger.Warn("decision document skipped",
				zap.String("stage", f.Stage),
				zap.String("decision_id", f.DecisionID),
				zap.String("url", f.URL),
				zap.Error(f.Err),
			)
		}
	}
	return n
}

func (s *Source) fetchDocument(ctx context.Context, c *decision.Candidate) *Failure {
	body, err := s.getter.Get(ctx, StageDocument, c.SourceURL)
	if err != nil {
		return &Failure{Stage: StageDocument, URL: c.SourceURL, DecisionID: c.ID, Err: err}
	}
	c.ContentHash = s.hasher.Sum(body)

	doc, err := s.document.Parse(body)
	if err != nil {
		msg := err.Error()
		c.ParseError = &msg
		return &Failure{Stage: StageParse, URL: c.SourceURL, DecisionID: c.ID, Err: err}
	}
	c.FullText = doc.Text
	c.Reference = doc.Reference
	if doc.Reference == "" {
		perr := &parser.ParseError{Kind: "document", URL: c.SourceURL, Reason: "no decision reference found"}
		msg := perr.Error()
		c.ParseError = &msg
		return &Failure{Stage: StageParse, URL: c.SourceURL, DecisionID: c.ID, Err: perr}
	}
	cleared := ""
	c.ParseError = &cleared
	return nil
}

func (s *Source) fail(batch *Batch, f Failure) {
	batch.Failures = append(batch.Failures, f)
	if s.observer != nil {
		s.observer.ObserveFailure(f.Stage)
	}
}
