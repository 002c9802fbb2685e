// Package client provides the resilient HTTP fetch layer: rate-limited JSON
// GETs with bounded exponential-backoff retry for transient failures.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/airtoncarneiro/databricks-youtube-etl-pipeline/pkg/ratelimit"
)

// Prometheus metrics for fetch operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "yt_requests_total",
		Help: "Total requests by endpoint and outcome",
	}, []string{"endpoint", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "yt_request_duration_seconds",
		Help:    "Request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"endpoint"})

	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "yt_request_retries_total",
		Help: "Total retry attempts by failure kind",
	}, []string{"reason"})

	retryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "yt_request_backoff_seconds",
		Help:    "Backoff duration before retries by failure kind",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"reason"})

	retryExhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "yt_request_retry_exhausted_total",
		Help: "Total requests that used up all retry attempts",
	})
)

// Config holds the fetch client configuration.
type Config struct {
	// Timeout bounds each individual request attempt.
	Timeout time.Duration

	// MaxRetries is the total number of attempts per request.
	MaxRetries int

	// UserAgent header value, empty to omit.
	UserAgent string
}

// DefaultConfig returns the default fetch configuration.
func DefaultConfig() Config {
	return Config{
		Timeout:    30 * time.Second,
		MaxRetries: 5,
		UserAgent:  "yt-ingest/1.0",
	}
}

// Client performs rate-limited JSON GETs against the remote API. All
// callers of one run share a single Client so they share one connection
// pool and one rate limiter.
type Client struct {
	httpClient *http.Client
	limiter    *ratelimit.Limiter
	config     Config
	logger     zerolog.Logger
}

// New creates a fetch client gated by limiter. A nil limiter disables
// gating (tests only).
func New(cfg Config, limiter *ratelimit.Limiter) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}

	transport := &http.Transport{
		MaxIdleConns:        60,
		MaxIdleConnsPerHost: 60,
		IdleConnTimeout:     90 * time.Second,
	}

	return &Client{
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		limiter: limiter,
		config:  cfg,
		logger:  log.With().Str("component", "client").Logger(),
	}
}

// GetJSON performs an HTTP GET with the given query parameters and decodes
// the JSON object response. Transient failures (status 429/500/502/503/504
// or a transport error) are retried with exponential backoff up to
// MaxRetries attempts; exhaustion returns ErrRetryExhausted wrapping the
// last failure. Any other non-2xx status fails immediately with *APIError.
//
// The rate limiter is acquired before every attempt, retries included.
func (c *Client) GetJSON(ctx context.Context, rawURL string, params url.Values) (map[string]any, error) {
	endpoint := endpointLabel(rawURL)

	var lastErr error
	for attempt := 0; attempt < c.config.MaxRetries; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Acquire(ctx); err != nil {
				return nil, err
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		if params != nil {
			req.URL.RawQuery = params.Encode()
		}
		req.Header.Set("Accept", "application/json")
		if c.config.UserAgent != "" {
			req.Header.Set("User-Agent", c.config.UserAgent)
		}

		start := time.Now()
		resp, err := c.httpClient.Do(req)
		requestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())

		if err != nil {
			// Transport-level failure (connect error, timeout).
			lastErr = err
			requestsTotal.WithLabelValues(endpoint, "transport_error").Inc()
			c.logger.Warn().
				Err(err).
				Str("endpoint", endpoint).
				Int("attempt", attempt).
				Msg("Request failed")

			if attempt+1 < c.config.MaxRetries {
				if err := c.backoff(ctx, transportBackoff(attempt), "transport"); err != nil {
					return nil, err
				}
			}
			continue
		}

		requestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

		if retryableStatus(resp.StatusCode) {
			resp.Body.Close()
			lastErr = &APIError{
				StatusCode: resp.StatusCode,
				Status:     resp.Status,
				Endpoint:   endpoint,
			}
			c.logger.Warn().
				Str("endpoint", endpoint).
				Int("status", resp.StatusCode).
				Int("attempt", attempt).
				Msg("Transient remote error")

			if attempt+1 < c.config.MaxRetries {
				if err := c.backoff(ctx, statusBackoff(attempt), "status"); err != nil {
					return nil, err
				}
			}
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			resp.Body.Close()
			apiErr := &APIError{
				StatusCode: resp.StatusCode,
				Status:     resp.Status,
				Endpoint:   endpoint,
			}
			c.logger.Error().
				Str("endpoint", endpoint).
				Int("status", resp.StatusCode).
				Msg("Permanent remote error")
			return nil, apiErr
		}

		dec := json.NewDecoder(resp.Body)
		dec.UseNumber()
		var out map[string]any
		if err := dec.Decode(&out); err != nil {
			resp.Body.Close()
			return nil, fmt.Errorf("decode response from %s: %w", endpoint, err)
		}
		resp.Body.Close()
		return out, nil
	}

	retryExhaustedTotal.Inc()
	c.logger.Error().
		Str("endpoint", endpoint).
		Int("max_retries", c.config.MaxRetries).
		Msg("Retry attempts exhausted")

	return nil, fmt.Errorf("%w after %d attempts: %v", ErrRetryExhausted, c.config.MaxRetries, lastErr)
}

// backoff sleeps for d with context cancellation support.
func (c *Client) backoff(ctx context.Context, d time.Duration, reason string) error {
	retriesTotal.WithLabelValues(reason).Inc()
	retryBackoffSeconds.WithLabelValues(reason).Observe(d.Seconds())
	c.logger.Debug().
		Dur("backoff", d).
		Str("reason", reason).
		Msg("Retrying request after backoff")

	timer := time.NewTimer(d)
	select {
	case <-ctx.Done():
		timer.Stop()
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// statusBackoff is the sleep before retrying a retryable status:
// 2^attempt + 0.1*attempt seconds, attempt zero-based.
func statusBackoff(attempt int) time.Duration {
	return time.Duration((math.Pow(2, float64(attempt)) + 0.1*float64(attempt)) * float64(time.Second))
}

// transportBackoff is the sleep before retrying a transport failure:
// 2^attempt + 0.2*attempt seconds, attempt zero-based.
func transportBackoff(attempt int) time.Duration {
	return time.Duration((math.Pow(2, float64(attempt)) + 0.2*float64(attempt)) * float64(time.Second))
}

// endpointLabel reduces a URL to its path for metric labels and logs. Query
// parameters are dropped, they carry the API key.
func endpointLabel(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Path == "" {
		return rawURL
	}
	return u.Path
}
