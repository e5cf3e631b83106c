package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "https://www.unified-patent-court.org", cfg.Source.BaseURL)
	assert.Equal(t, []int{125, 126, 139, 223}, cfg.Source.Divisions)
	assert.Equal(t, 5, cfg.Source.MaxPages)
	assert.Equal(t, 3*time.Second, cfg.Delay())
	assert.Equal(t, "upc_decisions.db", cfg.Store.Path)
	assert.Equal(t, "upc_scraper.log", cfg.Output.LogPath)
	assert.Equal(t, "upc_top_100.html", cfg.Output.TopNPath)
	assert.Equal(t, "upc_statistics.html", cfg.Output.StatisticsPath)
	assert.Equal(t, "upc_stats.json", cfg.Output.StatsJSONPath)
	assert.Equal(t, 100, cfg.Report.TopN)
	assert.Equal(t, "local", cfg.Publish.Blob.Provider)
	assert.Equal(t, "public, max-age=300", cfg.Publish.Blob.CacheControl)
	assert.Equal(t, 3, cfg.HTTP.MaxRetries)
	assert.Equal(t, 4, cfg.MaxAttempts(), "three retries after the first request")
}

func TestZeroRetriesMeansSingleAttempt(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	require.NoError(t, err)
	cfg.HTTP.MaxRetries = 0
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 1, cfg.MaxAttempts())
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
source:
  base_url: https://upc.example
  divisions: [125]
  max_pages: 2
  delay_seconds: 0
  stop_after_known_page: true
http:
  timeout_seconds: 45
  max_retries: 4
  backoff_initial_ms: 100
  backoff_max_ms: 500
fetch:
  concurrency: 6
store:
  path: /data/upc.db
report:
  top_n: 10
publish:
  blob:
    provider: gcs
    bucket: upc-site
    prefix: daily
  pubsub:
    project_id: proj
    topic: upc-runs
logging:
  development: true
`
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://upc.example", cfg.Source.BaseURL)
	assert.Equal(t, []int{125}, cfg.Source.Divisions)
	assert.True(t, cfg.Source.StopAfterKnownPage)
	assert.Zero(t, cfg.Delay())
	assert.Equal(t, 45*time.Second, cfg.RequestTimeout())
	assert.Equal(t, 100*time.Millisecond, cfg.BackoffInitial())
	assert.Equal(t, 500*time.Millisecond, cfg.BackoffMax())
	assert.Equal(t, 6, cfg.Fetch.Concurrency)
	assert.Equal(t, "/data/upc.db", cfg.Store.Path)
	assert.Equal(t, 10, cfg.Report.TopN)
	assert.Equal(t, "upc-site", cfg.Publish.Blob.Bucket)
	assert.Equal(t, "upc-runs", cfg.Publish.PubSub.Topic)
	assert.True(t, cfg.Logging.Development)
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

func TestListingQuery(t *testing.T) {
	t.Parallel()

	cfg := Config{Source: SourceConfig{Divisions: []int{125, 126}}}
	q := cfg.ListingQuery()

	assert.Equal(t, "125", q.Get("division_1"))
	assert.Equal(t, "126", q.Get("division_2"))
	assert.Empty(t, q.Get("division_3"))
	assert.Equal(t, "All", q.Get("judgement_type"))
	assert.False(t, q.Has("page"))
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Source:  SourceConfig{BaseURL: "https://upc.example", MaxPages: 1},
		HTTP:    HTTPConfig{TimeoutSeconds: 10, MaxRetries: 1},
		Fetch:   FetchConfig{Concurrency: 1},
		Store:   StoreConfig{Path: "upc.db"},
		Report:  ReportConfig{TopN: 100},
		Publish: PublishConfig{Blob: BlobConfig{Provider: "local"}},
		Server:  ServerConfig{Port: 8080},
	}
	require.NoError(t, base.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"relative base url", func(c *Config) { c.Source.BaseURL = "/en" }, "source.base_url"},
		{"no pages", func(c *Config) { c.Source.MaxPages = 0 }, "source.max_pages"},
		{"negative delay", func(c *Config) { c.Source.DelaySeconds = -1 }, "source.delay_seconds"},
		{"invalid timeout", func(c *Config) { c.HTTP.TimeoutSeconds = 0 }, "http.timeout_seconds"},
		{"negative retries", func(c *Config) { c.HTTP.MaxRetries = -1 }, "http.max_retries"},
		{"invalid concurrency", func(c *Config) { c.Fetch.Concurrency = 0 }, "fetch.concurrency"},
		{"empty store path", func(c *Config) { c.Store.Path = " " }, "store.path"},
		{"invalid top n", func(c *Config) { c.Report.TopN = 0 }, "report.top_n"},
		{"gcs without bucket", func(c *Config) { c.Publish.Blob.Provider = "gcs" }, "publish.blob.bucket"},
		{"unknown provider", func(c *Config) { c.Publish.Blob.Provider = "s3" }, "publish.blob.provider"},
		{"topic without project", func(c *Config) { c.Publish.PubSub.Topic = "runs" }, "publish.pubsub.project_id"},
		{"invalid port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
