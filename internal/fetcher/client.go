// Package fetcher downloads listing pages and decision documents over HTTP
// using colly, with rate limiting, bounded retries and error classification.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
)

// Config controls collector behavior.
type Config struct {
	UserAgent     string
	RespectRobots bool
	Timeout       time.Duration
	MaxBodyBytes  int
}

// Limiter paces requests per host.
type Limiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Observer receives request outcomes, typically a metrics sink.
type Observer interface {
	ObserveRequest(kind string, status string)
	ObserveRetry(kind string)
}

// Client issues GET requests through a cloned colly collector per request.
type Client struct {
	cfg           Config
	baseCollector *colly.Collector
	limiter       Limiter
	retry         *RetryPolicy
	observer      Observer
	logger        *zap.Logger
	pause         func(context.Context, time.Duration)
}

type collectorHooks interface {
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// outcome is what the collector callbacks capture for one visit.
type outcome struct {
	body   []byte
	status int
	err    error
}

// New builds a Client. limiter and observer may be nil.
func New(cfg Config, limiter Limiter, retry *RetryPolicy, observer Observer, logger *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if retry == nil {
		retry = NewRetryPolicy(0, 0, 0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.MaxBodySize(cfg.MaxBodyBytes),
	)
	c.WithTransport(newHTTPTransport())
	c.SetRequestTimeout(cfg.Timeout)
	return &Client{
		cfg:           cfg,
		baseCollector: c,
		limiter:       limiter,
		retry:         retry,
		observer:      observer,
		logger:        logger,
		pause:         pause,
	}
}

// Get fetches rawURL, retrying transient failures. kind labels the request
// ("listing" or "document") in logs and metrics. Exhausted or permanent
// failures are returned as *FetchError; context cancellation is returned as is.
func (c *Client) Get(ctx context.Context, kind, rawURL string) ([]byte, error) {
	if _, err := url.ParseRequestURI(rawURL); err != nil {
		return nil, &FetchError{URL: rawURL, Err: fmt.Errorf("malformed url: %w", err)}
	}
	for attempt := 1; ; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx, rawURL); err != nil {
				return nil, err
			}
		}
		body, err := c.fetchOnce(ctx, rawURL)
		if err == nil {
			c.observeRequest(kind, "ok")
			return body, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		class := c.retry.Classify(err)
		c.observeRequest(kind, class.String())
		if !c.retry.ShouldRetry(err, attempt) {
			return nil, err
		}
		delay := c.retry.Backoff(attempt - 1)
		c.logger.Warn("retrying fetch",
			zap.String("stage", kind),
			zap.String("url", rawURL),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		if c.observer != nil {
			c.observer.ObserveRetry(kind)
		}
		c.pause(ctx, delay)
	}
}

func (c *Client) fetchOnce(ctx context.Context, rawURL string) ([]byte, error) {
	var res outcome
	collector := c.buildCollector(&res)

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(rawURL)
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if res.err == nil {
			res.err = err
		}
	}
	if res.err != nil {
		return nil, classify(rawURL, res.status, res.err)
	}
	if res.status >= http.StatusBadRequest {
		return nil, classify(rawURL, res.status, errors.New(http.StatusText(res.status)))
	}
	return res.body, nil
}

func (c *Client) buildCollector(res *outcome) *colly.Collector {
	collector := c.baseCollector.Clone()
	if c.cfg.UserAgent != "" {
		collector.UserAgent = c.cfg.UserAgent
	}
	collector.IgnoreRobotsTxt = !c.cfg.RespectRobots
	configureCollectorHooks(collector, res)
	return collector
}

func configureCollectorHooks(hooks collectorHooks, res *outcome) {
	hooks.OnResponse(func(r *colly.Response) {
		res.status = r.StatusCode
		res.body = append([]byte(nil), r.Body...)
	})
	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil {
			res.status = r.StatusCode
		}
		res.err = err
	})
}

// classify wraps a raw collector error into a *FetchError.
func classify(rawURL string, status int, err error) *FetchError {
	fe := &FetchError{URL: rawURL, StatusCode: status, Err: err}
	switch {
	case status > 0:
		fe.Transient = TransientStatus(status)
	case errors.Is(err, colly.ErrRobotsTxtBlocked),
		errors.Is(err, colly.ErrForbiddenURL),
		errors.Is(err, colly.ErrMissingURL):
		fe.Transient = false
	default:
		var netErr net.Error
		fe.Transient = errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded)
	}
	return fe
}

func (c *Client) observeRequest(kind, status string) {
	if c.observer != nil {
		c.observer.ObserveRequest(kind, status)
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
