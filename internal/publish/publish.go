// Package publish ships the artifacts of a finished run: it uploads the store
// file and rendered reports to a blob store, mirrors decisions into an
// external database and announces the run on a notification topic.
package publish

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/upc-citation-tracker/internal/decision"
)

// KindRunPublished tags the notification sent after a successful publish.
const KindRunPublished = "run.published"

// BlobStore receives artifact uploads.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Mirror receives every decision of the snapshot.
type Mirror interface {
	EnsureSchema(ctx context.Context) error
	UpsertDecisions(ctx context.Context, decisions []decision.Decision) (int, error)
}

// Notifier announces a published run.
type Notifier interface {
	Publish(ctx context.Context, kind string, payload any) (string, error)
}

// Loader reads the snapshot being published.
type Loader interface {
	Load(ctx context.Context) (*decision.Snapshot, error)
}

// IDGenerator issues run identifiers.
type IDGenerator interface {
	NewID() (string, error)
}

// Artifact is one local file to upload.
type Artifact struct {
	Name        string
	Path        string
	ContentType string
	// Optional artifacts are skipped when the file does not exist.
	Optional bool
}

// Uploaded records where an artifact ended up.
type Uploaded struct {
	Name string `json:"name"`
	URI  string `json:"uri"`
}

// Notification is the JSON payload sent to the Notifier.
type Notification struct {
	RunID       string     `json:"run_id"`
	PublishedAt time.Time  `json:"published_at"`
	Decisions   int        `json:"decisions"`
	Artifacts   []Uploaded `json:"artifacts"`
}

// Options configures a Publisher.
type Options struct {
	// Prefix is prepended to every object path.
	Prefix    string
	Artifacts []Artifact
}

// Result summarizes a publish.
type Result struct {
	RunID     string
	Decisions int
	Mirrored  int
	Uploaded  []Uploaded
	MessageID string
}

// Publisher uploads, mirrors and notifies. Mirror and Notifier are optional.
type Publisher struct {
	opts     Options
	loader   Loader
	blobs    BlobStore
	mirror   Mirror
	notifier Notifier
	clock    decision.Clock
	ids      IDGenerator
	logger   *zap.Logger
}

// New constructs a Publisher.
func New(
	opts Options,
	loader Loader,
	blobs BlobStore,
	mirror Mirror,
	notifier Notifier,
	clock decision.Clock,
	ids IDGenerator,
	logger *zap.Logger,
) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{
		opts:     opts,
		loader:   loader,
		blobs:    blobs,
		mirror:   mirror,
		notifier: notifier,
		clock:    clock,
		ids:      ids,
		logger:   logger,
	}
}

// Run publishes the current store. Any failure aborts the publish.
func (p *Publisher) Run(ctx context.Context) (Result, error) {
	if p.blobs == nil {
		return Result{}, errors.New("publish: no blob store configured")
	}
	runID, err := p.ids.NewID()
	if err != nil {
		return Result{}, fmt.Errorf("generate run id: %w", err)
	}
	res := Result{RunID: runID}
	log := p.logger.With(zap.String("run_id", runID), zap.String("stage", "publish"))

	snap, err := p.loader.Load(ctx)
	if err != nil {
		return res, fmt.Errorf("load store: %w", err)
	}
	res.Decisions = snap.Len()

	for _, a := range p.opts.Artifacts {
		uri, err := p.upload(ctx, a)
		if errors.Is(err, fs.ErrNotExist) && a.Optional {
			log.Warn("artifact missing, skipped", zap.String("artifact", a.Name), zap.String("path", a.Path))
			continue
		}
		if err != nil {
			return res, fmt.Errorf("upload %s: %w", a.Name, err)
		}
		log.Info("artifact uploaded", zap.String("artifact", a.Name), zap.String("uri", uri))
		res.Uploaded = append(res.Uploaded, Uploaded{Name: a.Name, URI: uri})
	}

	if p.mirror != nil {
		if err := p.mirror.EnsureSchema(ctx); err != nil {
			return res, fmt.Errorf("mirror schema: %w", err)
		}
		res.Mirrored, err = p.mirror.UpsertDecisions(ctx, snap.Decisions())
		if err != nil {
			return res, fmt.Errorf("mirror decisions: %w", err)
		}
		log.Info("decisions mirrored", zap.Int("decisions", res.Mirrored))
	}

	if p.notifier != nil {
		note := Notification{
			RunID:       runID,
			PublishedAt: p.clock.Now().UTC(),
			Decisions:   res.Decisions,
			Artifacts:   res.Uploaded,
		}
		res.MessageID, err = p.notifier.Publish(ctx, KindRunPublished, note)
		if err != nil {
			return res, fmt.Errorf("notify: %w", err)
		}
		log.Info("run announced", zap.String("message_id", res.MessageID))
	}
	return res, nil
}

func (p *Publisher) upload(ctx context.Context, a Artifact) (string, error) {
	f, err := os.Open(a.Path) // #nosec G304 -- configured artifact path
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()
	return p.blobs.PutObject(ctx, ObjectPath(p.opts.Prefix, a.Path), a.ContentType, f)
}

// ObjectPath joins the prefix and the artifact's base name with forward
// slashes.
func ObjectPath(prefix, localPath string) string {
	return path.Join(prefix, filepath.Base(localPath))
}
