// Package api serves the rendered reports and a small JSON API over HTTP.
// Routes:
//   - GET /healthz and /readyz for probes; readiness requires a readable store.
//   - GET /metrics for Prometheus scraping.
//   - GET /api/top?n= for the current top-N ranking.
//   - GET /api/stats for the statistics document.
//   - everything else is served from the site directory.
package api
