// Package config loads and validates tracker configuration via Viper.
package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all tracker configuration knobs loaded via Viper.
type Config struct {
	Source  SourceConfig  `mapstructure:"source"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Fetch   FetchConfig   `mapstructure:"fetch"`
	Store   StoreConfig   `mapstructure:"store"`
	Output  OutputConfig  `mapstructure:"output"`
	Report  ReportConfig  `mapstructure:"report"`
	Logging LoggingConfig `mapstructure:"logging"`
	Publish PublishConfig `mapstructure:"publish"`
	Server  ServerConfig  `mapstructure:"server"`
}

// SourceConfig points at the court listing and controls paging.
type SourceConfig struct {
	BaseURL            string `mapstructure:"base_url"`
	ListingPath        string `mapstructure:"listing_path"`
	Divisions          []int  `mapstructure:"divisions"`
	MaxPages           int    `mapstructure:"max_pages"`
	DelaySeconds       int    `mapstructure:"delay_seconds"`
	StopAfterKnownPage bool   `mapstructure:"stop_after_known_page"`
	UserAgent          string `mapstructure:"user_agent"`
	RespectRobots      bool   `mapstructure:"respect_robots"`
}

// HTTPConfig configures HTTP client timeouts and retry behavior.
type HTTPConfig struct {
	TimeoutSeconds   int `mapstructure:"timeout_seconds"`
	MaxRetries       int `mapstructure:"max_retries"`
	BackoffInitialMs int `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int `mapstructure:"backoff_max_ms"`
	MaxBodyBytes     int `mapstructure:"max_body_bytes"`
}

// FetchConfig bounds document fetch parallelism.
type FetchConfig struct {
	Concurrency int `mapstructure:"concurrency"`
	Burst       int `mapstructure:"burst"`
}

// StoreConfig locates the decision database.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// OutputConfig names every artifact a run writes.
type OutputConfig struct {
	LogPath        string `mapstructure:"log_path"`
	TopNPath       string `mapstructure:"top_n_path"`
	StatisticsPath string `mapstructure:"statistics_path"`
	StatsJSONPath  string `mapstructure:"stats_json_path"`
	MetricsPath    string `mapstructure:"metrics_path"`
}

// ReportConfig sizes the rendered reports.
type ReportConfig struct {
	TopN       int `mapstructure:"top_n"`
	TopCited   int `mapstructure:"top_cited"`
	TopParties int `mapstructure:"top_parties"`
	Months     int `mapstructure:"months"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// PublishConfig wires the optional publish targets.
type PublishConfig struct {
	Blob     BlobConfig     `mapstructure:"blob"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
}

// BlobConfig selects where artifacts are uploaded.
type BlobConfig struct {
	Provider     string `mapstructure:"provider"`
	BaseDir      string `mapstructure:"base_dir"`
	Bucket       string `mapstructure:"bucket"`
	Prefix       string `mapstructure:"prefix"`
	CacheControl string `mapstructure:"cache_control"`
}

// PostgresConfig controls the decision mirror.
type PostgresConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int    `mapstructure:"max_conns"`
}

// PubSubConfig holds metadata for run notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// ServerConfig controls the report server.
type ServerConfig struct {
	Port    int    `mapstructure:"port"`
	SiteDir string `mapstructure:"site_dir"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("UPC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("source.base_url", "https://www.unified-patent-court.org")
	v.SetDefault("source.listing_path", "/en/decisions-and-orders")
	v.SetDefault("source.divisions", []int{125, 126, 139, 223})
	v.SetDefault("source.max_pages", 5)
	v.SetDefault("source.delay_seconds", 3)
	v.SetDefault("source.stop_after_known_page", false)
	v.SetDefault("source.user_agent", "upc-citation-tracker/1.0 (+https://github.com/JakeFAU/upc-citation-tracker)")
	v.SetDefault("source.respect_robots", true)
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("http.max_retries", 3)
	v.SetDefault("http.backoff_initial_ms", 500)
	v.SetDefault("http.backoff_max_ms", 8000)
	v.SetDefault("http.max_body_bytes", 50<<20)
	v.SetDefault("fetch.concurrency", 2)
	v.SetDefault("fetch.burst", 1)
	v.SetDefault("store.path", "upc_decisions.db")
	v.SetDefault("output.log_path", "upc_scraper.log")
	v.SetDefault("output.top_n_path", "upc_top_100.html")
	v.SetDefault("output.statistics_path", "upc_statistics.html")
	v.SetDefault("output.stats_json_path", "upc_stats.json")
	v.SetDefault("output.metrics_path", "")
	v.SetDefault("report.top_n", 100)
	v.SetDefault("report.top_cited", 20)
	v.SetDefault("report.top_parties", 10)
	v.SetDefault("report.months", 12)
	v.SetDefault("logging.development", false)
	v.SetDefault("publish.blob.provider", "local")
	v.SetDefault("publish.blob.base_dir", "site")
	v.SetDefault("publish.blob.prefix", "")
	v.SetDefault("publish.blob.cache_control", "public, max-age=300")
	v.SetDefault("publish.postgres.table", "upc_decisions")
	v.SetDefault("publish.postgres.max_conns", 4)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.site_dir", ".")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	u, err := url.Parse(c.Source.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("source.base_url must be an absolute URL")
	}
	if c.Source.MaxPages <= 0 {
		return fmt.Errorf("source.max_pages must be > 0")
	}
	if c.Source.DelaySeconds < 0 {
		return fmt.Errorf("source.delay_seconds must be >= 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.MaxRetries < 0 {
		return fmt.Errorf("http.max_retries must be >= 0")
	}
	if c.Fetch.Concurrency <= 0 {
		return fmt.Errorf("fetch.concurrency must be > 0")
	}
	if strings.TrimSpace(c.Store.Path) == "" {
		return fmt.Errorf("store.path must be set")
	}
	if c.Report.TopN <= 0 {
		return fmt.Errorf("report.top_n must be > 0")
	}
	switch c.Publish.Blob.Provider {
	case "local":
	case "gcs":
		if c.Publish.Blob.Bucket == "" {
			return fmt.Errorf("publish.blob.bucket must be set when provider is gcs")
		}
	default:
		return fmt.Errorf("publish.blob.provider must be local or gcs")
	}
	if c.Publish.PubSub.Topic != "" && c.Publish.PubSub.ProjectID == "" {
		return fmt.Errorf("publish.pubsub.project_id must be set when a topic is configured")
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	return nil
}

// ListingQuery returns the listing search form with the configured
// division filters applied. The page parameter is added per request.
func (c Config) ListingQuery() url.Values {
	q := url.Values{
		"registry_number":           {""},
		"judgemet_reference":        {""},
		"judgement_type":            {"All"},
		"party_name":                {""},
		"court_type":                {"All"},
		"keywords":                  {""},
		"headnotes":                 {""},
		"proceedings_lang":          {"All"},
		"judgement_date_from[date]": {""},
		"judgement_date_to[date]":   {""},
		"location_id":               {"All"},
	}
	for i, division := range c.Source.Divisions {
		q.Set("division_"+strconv.Itoa(i+1), strconv.Itoa(division))
	}
	return q
}

// Delay converts source.delay_seconds into a duration.
func (c Config) Delay() time.Duration {
	return time.Duration(c.Source.DelaySeconds) * time.Second
}

// RequestTimeout converts http.timeout_seconds into a duration.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// MaxAttempts is the first request plus http.max_retries retries.
func (c Config) MaxAttempts() int {
	return c.HTTP.MaxRetries + 1
}

// BackoffInitial converts http.backoff_initial_ms into a duration.
func (c Config) BackoffInitial() time.Duration {
	return time.Duration(c.HTTP.BackoffInitialMs) * time.Millisecond
}

// BackoffMax converts http.backoff_max_ms into a duration.
func (c Config) BackoffMax() time.Duration {
	return time.Duration(c.HTTP.BackoffMaxMs) * time.Millisecond
}
