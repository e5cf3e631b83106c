package publish

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/upc-citation-tracker/internal/decision"
	pubmemory "github.com/JakeFAU/upc-citation-tracker/internal/publisher/memory"
	"github.com/JakeFAU/upc-citation-tracker/internal/storage/memory"
	"github.com/JakeFAU/upc-citation-tracker/internal/store"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type staticID string

func (s staticID) NewID() (string, error) { return string(s), nil }

type recordingMirror struct {
	ensured   bool
	decisions []decision.Decision
	err       error
}

func (m *recordingMirror) EnsureSchema(context.Context) error {
	m.ensured = true
	return nil
}

func (m *recordingMirror) UpsertDecisions(_ context.Context, ds []decision.Decision) (int, error) {
	if m.err != nil {
		return 0, m.err
	}
	m.decisions = append(m.decisions, ds...)
	return len(ds), nil
}

var publishedAt = time.Date(2025, 6, 1, 7, 0, 0, 0, time.UTC)

func persistedStore(t *testing.T, dir string) *store.Store {
	t.Helper()
	s := store.New(filepath.Join(dir, "upc_decisions.db"), zap.NewNop())
	snap := decision.NewSnapshot()
	snap.Upsert(decision.Decision{ID: "ACT_1/2025", Court: "LD Munich", Date: "2025-05-01", Reference: "UPC_CFI_1/2025"})
	snap.Upsert(decision.Decision{ID: "ACT_2/2025", Court: "CoA", Date: "2025-05-02", Reference: "UPC_CoA_2/2025", Citations: 1})
	require.NoError(t, s.Persist(context.Background(), snap))
	return s
}

func TestRunUploadsMirrorsAndNotifies(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s := persistedStore(t, dir)
	topN := filepath.Join(dir, "upc_top_100.html")
	require.NoError(t, os.WriteFile(topN, []byte("<html>top</html>"), 0o600))

	blobs := memory.NewBlobStore()
	mirror := &recordingMirror{}
	notifier := pubmemory.New()
	opts := Options{
		Prefix: "runs/latest",
		Artifacts: []Artifact{
			{Name: "store", Path: s.Path(), ContentType: "application/vnd.sqlite3"},
			{Name: "top_n", Path: topN, ContentType: "text/html; charset=utf-8", Optional: true},
			{Name: "statistics", Path: filepath.Join(dir, "upc_statistics.html"), ContentType: "text/html; charset=utf-8", Optional: true},
		},
	}
	p := New(opts, s, blobs, mirror, notifier, fixedClock{now: publishedAt}, staticID("run-1"), nil)

	res, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "run-1", res.RunID)
	assert.Equal(t, 2, res.Decisions)
	assert.Equal(t, 2, res.Mirrored)
	assert.Equal(t, "memory-1", res.MessageID)
	assert.Equal(t, []Uploaded{
		{Name: "store", URI: "memory://runs/latest/upc_decisions.db"},
		{Name: "top_n", URI: "memory://runs/latest/upc_top_100.html"},
	}, res.Uploaded)

	body, contentType, ok := blobs.Object("runs/latest/upc_top_100.html")
	require.True(t, ok)
	assert.Equal(t, "<html>top</html>", string(body))
	assert.Equal(t, "text/html; charset=utf-8", contentType)

	assert.True(t, mirror.ensured)
	require.Len(t, mirror.decisions, 2)
	assert.Equal(t, "ACT_1/2025", mirror.decisions[0].ID)

	require.Len(t, notifier.Messages(), 1)
	msg, ok := notifier.Last(KindRunPublished)
	require.True(t, ok)
	note, ok := msg.Payload.(Notification)
	require.True(t, ok)
	assert.Equal(t, "run-1", note.RunID)
	assert.Equal(t, publishedAt, note.PublishedAt)
	assert.Equal(t, 2, note.Decisions)
	assert.Len(t, note.Artifacts, 2)
}

func TestRunFailsOnMissingRequiredArtifact(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s := persistedStore(t, dir)
	notifier := pubmemory.New()
	opts := Options{Artifacts: []Artifact{{Name: "stats_json", Path: filepath.Join(dir, "upc_stats.json")}}}
	p := New(opts, s, memory.NewBlobStore(), nil, notifier, fixedClock{now: publishedAt}, staticID("run-2"), nil)

	_, err := p.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Empty(t, notifier.Messages(), "failed publishes are not announced")
}

func TestRunFailsOnMirrorError(t *testing.T) {
	t.Parallel()

	s := persistedStore(t, t.TempDir())
	notifier := pubmemory.New()
	mirror := &recordingMirror{err: errors.New("connection refused")}
	p := New(Options{}, s, memory.NewBlobStore(), mirror, notifier, fixedClock{now: publishedAt}, staticID("run-3"), nil)

	_, err := p.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mirror decisions")
	assert.Empty(t, notifier.Messages())
}

func TestRunFailsOnNotifyError(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s := persistedStore(t, dir)
	blobs := memory.NewBlobStore()
	notifier := pubmemory.New()
	notifier.FailWith(errors.New("topic not found"))
	opts := Options{Artifacts: []Artifact{{Name: "store", Path: s.Path(), ContentType: "application/vnd.sqlite3"}}}
	p := New(opts, s, blobs, nil, notifier, fixedClock{now: publishedAt}, staticID("run-5"), nil)

	res, err := p.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "notify: topic not found")
	assert.Empty(t, res.MessageID)
	assert.Equal(t, []string{"upc_decisions.db"}, blobs.Paths(), "uploads happen before the notification")
}

func TestRunRefusesCorruptStore(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "upc_decisions.db")
	require.NoError(t, os.WriteFile(path, []byte("not a database, not even close, padding padding padding padding padding"), 0o600))
	p := New(Options{}, store.New(path, nil), memory.NewBlobStore(), nil, nil, fixedClock{now: publishedAt}, staticID("run-4"), nil)

	_, err := p.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrStorageCorrupt)
}

func TestRunRequiresBlobStore(t *testing.T) {
	t.Parallel()

	_, err := New(Options{}, nil, nil, nil, nil, nil, staticID("x"), nil).Run(context.Background())
	assert.Error(t, err)
}

func TestObjectPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		prefix, local, want string
	}{
		{"", "out/upc_stats.json", "upc_stats.json"},
		{"runs/latest", "/tmp/x/upc_decisions.db", "runs/latest/upc_decisions.db"},
		{"site/", "upc_top_100.html", "site/upc_top_100.html"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ObjectPath(tt.prefix, tt.local))
	}
}
