// Package gong implements the Gong API client used by the sync pipeline:
// rate-limited, retried request execution, cursor pagination over the call
// listing endpoints, and batched transcript fetching.
package gong

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/salesops/gongsync/pkg/logging"
	"github.com/salesops/gongsync/pkg/ratelimit"
)

// Prometheus metrics for API operations.
var (
	gongRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gong_requests_total",
		Help: "Total Gong API requests by endpoint and status",
	}, []string{"endpoint", "status"})

	gongRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gong_request_duration_seconds",
		Help:    "Gong API request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"endpoint"})

	gongErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gong_errors_total",
		Help: "Total Gong API errors by class",
	}, []string{"class"})

	gongRetryAfterWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gong_retry_after_wait_seconds",
		Help:    "Server-requested Retry-After waits honored before retrying",
		Buckets: []float64{1, 5, 15, 30, 60, 120},
	})
)

// retryAfterFallback is the wait applied to a 429 response that carries
// no Retry-After header.
const retryAfterFallback = 60 * time.Second

// Config holds the client configuration.
type Config struct {
	// BaseURL of the Gong API, e.g. "https://acme.api.gong.io".
	BaseURL string

	// API credentials, sent as HTTP basic auth.
	AccessKey       string
	AccessKeySecret string

	// RateLimit is the request budget in calls per second.
	RateLimit float64

	// Timeout per HTTP request.
	Timeout time.Duration

	// Retry controls the backoff behavior for transient failures.
	Retry RetryConfig

	// MaxPages caps cursor pagination. The API terminates pagination by
	// returning no cursor; the ceiling bounds the damage if it never does.
	MaxPages int
}

// DefaultConfig returns a safe default configuration for the given
// credentials and API base URL.
func DefaultConfig(baseURL, accessKey, accessKeySecret string) Config {
	return Config{
		BaseURL:         baseURL,
		AccessKey:       accessKey,
		AccessKeySecret: accessKeySecret,
		RateLimit:       ratelimit.DefaultRate,
		Timeout:         60 * time.Second,
		Retry:           DefaultRetryConfig(),
		MaxPages:        1000,
	}
}

// Client is the Gong API client. All requests pass through the rate
// limiter first, so retries also respect the spacing discipline; requests
// are issued strictly in program order with at most one in flight.
type Client struct {
	httpClient *http.Client
	limiter    *ratelimit.Limiter
	config     Config
	authHeader string
	logger     zerolog.Logger
}

// New creates a new Gong client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if cfg.AccessKey == "" || cfg.AccessKeySecret == "" {
		return nil, fmt.Errorf("access key and secret are required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = DefaultRetryConfig()
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 1000
	}

	creds := base64.StdEncoding.EncodeToString(
		[]byte(cfg.AccessKey + ":" + cfg.AccessKeySecret))

	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    ratelimit.New(cfg.RateLimit),
		config:     cfg,
		authHeader: "Basic " + creds,
		logger:     logging.NewLogger("gong-client"),
	}, nil
}

// do executes one API call with rate limiting, retry, and JSON decoding.
// body (if non-nil) is marshalled as the JSON request body; out (if
// non-nil) receives the decoded response.
func (c *Client) do(ctx context.Context, method, endpoint string, query url.Values, body, out any) error {
	start := time.Now()
	defer func() {
		gongRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	}()

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
	}

	return retryWithBackoff(ctx, c.config.Retry, c.logger, func() error {
		if err := c.limiter.Acquire(ctx); err != nil {
			return &APIError{ErrorClass: ErrorClassFatal, Message: "rate limiter wait aborted", Err: err}
		}
		return c.doOnce(ctx, method, endpoint, query, payload, out)
	})
}

// doOnce issues a single HTTP attempt and classifies its outcome.
func (c *Client) doOnce(ctx context.Context, method, endpoint string, query url.Values, payload []byte, out any) error {
	u := c.config.BaseURL + endpoint
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return &APIError{ErrorClass: ErrorClassFatal, Message: "create request", Err: err}
	}
	req.Header.Set("Authorization", c.authHeader)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error().Err(err).Str("endpoint", endpoint).Msg("HTTP request failed")
		gongErrorsTotal.WithLabelValues(string(ErrorClassTransient)).Inc()
		gongRequestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		return err
	}
	defer resp.Body.Close()

	gongRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode == http.StatusTooManyRequests {
		gongErrorsTotal.WithLabelValues(string(ErrorClassRateLimit)).Inc()
		if err := c.waitRetryAfter(ctx, resp, endpoint); err != nil {
			return err
		}
		return &APIError{
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassRateLimit,
			Message:    "rate limited by server",
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		gongErrorsTotal.WithLabelValues(string(ErrorClassFatal)).Inc()
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Warn().
			Str("endpoint", endpoint).
			Int("status", resp.StatusCode).
			Str("body", string(excerpt)).
			Msg("Gong API request error")
		return &APIError{
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassFatal,
			Message:    string(excerpt),
		}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &APIError{
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassFatal,
			Message:    "decode response",
			Err:        err,
		}
	}
	return nil
}

// waitRetryAfter honors the server-specified Retry-After delay on a 429
// response before the attempt is counted as transient and retried.
func (c *Client) waitRetryAfter(ctx context.Context, resp *http.Response, endpoint string) error {
	wait := retryAfterFallback
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			wait = time.Duration(secs) * time.Second
		}
	}
	if wait <= 0 {
		return nil
	}

	gongRetryAfterWaitSeconds.Observe(wait.Seconds())
	c.logger.Warn().
		Str("endpoint", endpoint).
		Dur("retry_after", wait).
		Msg("Rate limited, honoring server wait")

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
	case <-timer.C:
		return nil
	}
}

// CheckConnection issues a single listing request to verify credentials
// and reachability.
func (c *Client) CheckConnection(ctx context.Context, r DateRange) error {
	query := url.Values{}
	query.Set("fromDateTime", r.FromDateTime())
	query.Set("toDateTime", r.ToDateTime())

	var resp listResponse
	if err := c.do(ctx, http.MethodGet, "/v2/calls", query, nil, &resp); err != nil {
		return fmt.Errorf("connection check: %w", err)
	}
	return nil
}
