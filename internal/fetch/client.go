// Package fetch implements polite HTTP retrieval on top of gocolly: bounded
// retries with jittered backoff, a per-host courtesy interval, and a long
// cooldown circuit breaker for hosts that signal active blocking.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/emblem-crawler/internal/emblem"
	"github.com/JakeFAU/emblem-crawler/internal/metrics"
)

// Config controls client behavior.
type Config struct {
	UserAgent     string
	Timeout       time.Duration
	RespectRobots bool
	MaxAttempts   int
	BackoffBase   time.Duration
	BackoffMax    time.Duration
	HostInterval  time.Duration
	Cooldown      time.Duration
}

// Client implements emblem.Fetcher using a Colly collector.
type Client struct {
	cfg     Config
	base    *colly.Collector
	limiter *HostLimiter
	retry   *RetryPolicy
	logger  *zap.Logger
}

// Tokens that mark an interstitial/blocking page served with a 200.
var blockedMarkers = []string{"captcha", "unusual traffic", "access denied"}

// New builds a Client sharing one transport and one host limiter across
// every call site (search, page fetch, validation fetch).
func New(cfg Config, logger *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "emblem-crawler/1.0"
	}
	base := colly.NewCollector(colly.UserAgent(cfg.UserAgent))
	base.IgnoreRobotsTxt = !cfg.RespectRobots
	base.AllowURLRevisit = true
	base.SetRequestTimeout(cfg.Timeout)
	base.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConns:          64,
		IdleConnTimeout:       90 * time.Second,
		ResponseHeaderTimeout: cfg.Timeout,
	})

	return &Client{
		cfg:     cfg,
		base:    base,
		limiter: NewHostLimiter(cfg.HostInterval, cfg.Cooldown),
		retry:   NewRetryPolicy(cfg.MaxAttempts, cfg.BackoffBase, cfg.BackoffMax),
		logger:  logger,
	}
}

// Limiter exposes the shared host limiter to collaborators that need to
// consult cooldown state.
func (c *Client) Limiter() *HostLimiter {
	return c.limiter
}

// Fetch retrieves one URL, applying throttle, retry, and cooldown policy.
func (c *Client) Fetch(ctx context.Context, rawURL string) (emblem.FetchResult, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return emblem.FetchResult{}, fmt.Errorf("parse url %q: %w", rawURL, err)
	}
	host := parsed.Hostname()

	var lastErr error
	for attempt := 0; ; attempt++ {
		if err := c.limiter.Acquire(ctx, host); err != nil {
			return emblem.FetchResult{}, err
		}

		res, err := c.visit(ctx, rawURL)
		if err == nil {
			if looksBlocked(res.Body) {
				c.limiter.Block(host)
				metrics.IncFetch("blocked")
				return emblem.FetchResult{}, &RateLimitedError{Host: host}
			}
			metrics.IncFetch("ok")
			metrics.ObserveFetchDuration(host, res.Duration)
			return res, nil
		}

		var httpErr *HTTPError
		if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusTooManyRequests {
			c.limiter.Block(host)
			metrics.IncFetch("rate_limited")
			return emblem.FetchResult{}, &RateLimitedError{Host: host}
		}

		lastErr = err
		if errors.Is(err, colly.ErrRobotsTxtBlocked) || !c.retry.ShouldRetry(err, attempt) {
			metrics.IncFetch("error")
			return emblem.FetchResult{}, lastErr
		}

		metrics.IncFetchRetry()
		c.logger.Debug("retrying fetch",
			zap.String("url", rawURL),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
		if err := sleepUntil(ctx, time.Now().Add(c.retry.Backoff(attempt)), time.Now); err != nil {
			return emblem.FetchResult{}, err
		}
	}
}

// visit executes a single GET via a cloned collector.
func (c *Client) visit(ctx context.Context, rawURL string) (emblem.FetchResult, error) {
	collector := c.base.Clone()

	var (
		result   emblem.FetchResult
		fetchErr error
	)
	start := time.Now()

	collector.OnResponse(func(r *colly.Response) {
		contentType := ""
		if r.Headers != nil {
			contentType = r.Headers.Get("Content-Type")
		}
		result = emblem.FetchResult{
			URL:         rawURL,
			FinalURL:    r.Request.URL.String(),
			StatusCode:  r.StatusCode,
			ContentType: contentType,
			Body:        append([]byte(nil), r.Body...),
			FetchedAt:   start.UTC(),
			Duration:    time.Since(start),
		}
	})

	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode > 0 {
			fetchErr = &HTTPError{StatusCode: r.StatusCode, URL: rawURL}
			return
		}
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(rawURL)
	}()

	select {
	case <-ctx.Done():
		return emblem.FetchResult{}, fmt.Errorf("fetch canceled: %w", ctx.Err())
	case err := <-done:
		if fetchErr != nil {
			return emblem.FetchResult{}, fetchErr
		}
		if err != nil {
			return emblem.FetchResult{}, fmt.Errorf("visit %s: %w", rawURL, err)
		}
		if result.StatusCode == 0 {
			return emblem.FetchResult{}, fmt.Errorf("visit %s produced no response", rawURL)
		}
		return result, nil
	}
}

func looksBlocked(body []byte) bool {
	if len(body) == 0 || len(body) > 64*1024 {
		return false
	}
	lower := strings.ToLower(string(body))
	for _, marker := range blockedMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
