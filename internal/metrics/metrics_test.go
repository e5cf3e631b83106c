package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func contains(s, sub string) bool {
	return strings.Contains(s, sub)
}

func TestSanitizeSite(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard https", "https://www.Unified-Patent-Court.org/en", "www.unified-patent-court.org"},
		{"no scheme", "example.com/path", "example.com"},
		{"just host", "example.com", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestRunCounters(t *testing.T) {
	t.Parallel()

	m := New()
	m.ObserveRequest("listing", "ok")
	m.ObserveRequest("listing", "ok")
	m.ObserveRetry("document")
	m.ObserveFailure("document")
	m.ObserveMerge("inserted")
	m.ObserveRateLimitDelay("www.unified-patent-court.org", 2*time.Second)

	if val := testutil.ToFloat64(m.requestsTotal.WithLabelValues("listing", "ok")); val != 2 {
		t.Errorf("expected 2 listing requests, got %f", val)
	}
	if val := testutil.ToFloat64(m.retriesTotal.WithLabelValues("document")); val != 1 {
		t.Errorf("expected 1 retry, got %f", val)
	}
	if val := testutil.ToFloat64(m.failuresTotal.WithLabelValues("document")); val != 1 {
		t.Errorf("expected 1 failure, got %f", val)
	}
	if val := testutil.ToFloat64(m.mergeTotal.WithLabelValues("inserted")); val != 1 {
		t.Errorf("expected 1 insert, got %f", val)
	}
	if val := testutil.CollectAndCount(m.rateLimitDelaySeconds); val != 1 {
		t.Errorf("expected one rate limit series, got %d", val)
	}
}

func TestWriteTextfile(t *testing.T) {
	t.Parallel()

	m := New()
	m.SetDecisions(3)
	m.MarkRunFinished(time.Unix(1700000000, 0))
	path := filepath.Join(t.TempDir(), "upc.prom")

	if err := m.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile() error = %v", err)
	}
	// #nosec G304 -- test reads from the controlled temp directory.
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read textfile: %v", err)
	}
	if !contains(string(data), "upc_decisions 3") {
		t.Fatalf("expected decisions gauge, got %s", data)
	}
	if !contains(string(data), "upc_last_run_timestamp_seconds 1.7e+09") {
		t.Fatalf("expected run timestamp, got %s", data)
	}
}

func TestWriteTextfileBadPath(t *testing.T) {
	t.Parallel()

	if err := New().WriteTextfile(filepath.Join(t.TempDir(), "missing", "x.prom")); err == nil {
		t.Fatal("expected error for missing directory")
	}
}

// Fuzz test for SanitizeSite.
func FuzzSanitizeSite(f *testing.F) {
	for _, tc := range []string{"http://example.com", "https://google.com", "ftp://example.com"} {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		if SanitizeSite(orig) == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
