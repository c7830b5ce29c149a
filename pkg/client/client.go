// Package client provides the HTTP client that page sources fetch through,
// with rate limiting, page caching and retries, and an HTTP implementation
// of pagination.PageSource for offset/limit collection endpoints.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Sternrassler/pagestream/pkg/cache"
	"github.com/Sternrassler/pagestream/pkg/logging"
	"github.com/Sternrassler/pagestream/pkg/ratelimit"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Client performs requests against one collection API. It is safe for
// concurrent use, so sibling cursors of a sequence can share it.
type Client struct {
	httpClient  *http.Client
	baseURL     *url.URL
	rateLimiter *ratelimit.Tracker
	cache       *cache.Manager
	config      Config
	logger      zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// Redis backs the page cache and the shared rate limit state. Without it
	// both are disabled.
	Redis *redis.Client

	// BaseURL is the API root endpoints are resolved against,
	// e.g. "https://api.example.com".
	BaseURL string

	// UserAgent is sent with every request.
	UserAgent string

	// RateLimit decides when requests are throttled or blocked.
	RateLimit ratelimit.Thresholds

	// Retry configures retries of server, rate limit and network errors.
	Retry RetryConfig

	// Timeout bounds a single HTTP attempt.
	Timeout time.Duration
}

// DefaultConfig returns a default configuration.
func DefaultConfig(redisClient *redis.Client, baseURL, userAgent string) Config {
	return Config{
		Redis:     redisClient,
		BaseURL:   baseURL,
		UserAgent: userAgent,
		RateLimit: ratelimit.DefaultThresholds(),
		Retry:     DefaultRetryConfig(),
		Timeout:   30 * time.Second,
	}
}

// New creates a client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	baseURL, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if (baseURL.Scheme != "http" && baseURL.Scheme != "https") || baseURL.Host == "" {
		return nil, fmt.Errorf("base url must be an absolute http(s) url (got %q)", cfg.BaseURL)
	}

	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}

	if err := cfg.RateLimit.Validate(); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	if cfg.Retry.MaxAttempts < 1 {
		return nil, fmt.Errorf("retry max_attempts must be >= 1 (got %d)", cfg.Retry.MaxAttempts)
	}
	if cfg.Retry.BackoffMultiplier < 1 {
		return nil, fmt.Errorf("retry backoff_multiplier must be >= 1 (got %g)", cfg.Retry.BackoffMultiplier)
	}

	logger := logging.NewLogger("http-client")

	c := &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    baseURL,
		config:     cfg,
		logger:     logger,
	}
	if cfg.Redis != nil {
		c.rateLimiter = ratelimit.NewTracker(cfg.Redis, baseURL.Host, cfg.RateLimit, logging.NewLogger("ratelimit"))
		c.cache = cache.NewManager(cfg.Redis)
	}

	return c, nil
}

// Do performs req with rate limiting, caching and retries.
//
// Responses with a 4xx status other than 429 are returned as they are for the
// caller to handle. Server, rate limit and network errors are retried and
// surface as an error once retries are exhausted.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	endpoint := req.URL.Path

	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	if c.rateLimiter != nil {
		allowed, err := c.rateLimiter.ShouldAllowRequest(ctx)
		if err != nil {
			return nil, fmt.Errorf("rate limit check: %w", err)
		}
		if !allowed {
			c.logger.Warn().
				Str("endpoint", endpoint).
				Msg("Request blocked by rate limiter")
			requestsTotal.WithLabelValues(endpoint, "rate_limited").Inc()
			return nil, ErrRateLimited
		}
	}

	var (
		cacheKey cache.Key
		cached   *cache.Entry
	)
	if c.cache != nil && req.Method == http.MethodGet {
		cacheKey = cache.Key{
			Scope:    c.baseURL.Host,
			Endpoint: endpoint,
			Query:    req.URL.Query(),
		}

		entry, err := c.cache.Get(ctx, cacheKey)
		switch {
		case err == nil:
			cached = entry
		case !errors.Is(err, cache.ErrCacheMiss):
			c.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("Cache get error")
		}

		if cached != nil && !cached.IsExpired() {
			c.logger.Debug().Str("endpoint", endpoint).Msg("Serving page from cache")
			requestsTotal.WithLabelValues(endpoint, "cache_hit").Inc()
			return cache.EntryToResponse(cached), nil
		}

		if cache.ShouldMakeConditionalRequest(cached) {
			cache.AddConditionalHeaders(req, cached)
			cache.ConditionalRequestsSent.Inc()
			c.logger.Debug().
				Str("endpoint", endpoint).
				Str("etag", cached.ETag).
				Msg("Making conditional request")
		}
	}

	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	c.logger.Debug().
		Str("endpoint", endpoint).
		Str("method", req.Method).
		Str("query", req.URL.RawQuery).
		Msg("Executing request")

	var resp *http.Response
	err := retryWithBackoff(ctx, c.config.Retry, c.logger, func() (ErrorClass, error) {
		r, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return "", err
			}
			errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
			requestsTotal.WithLabelValues(endpoint, "network_error").Inc()
			return ErrorClassNetwork, &APIError{
				ErrorClass: ErrorClassNetwork,
				Message:    "request failed",
				Err:        err,
			}
		}

		if c.rateLimiter != nil {
			if err := c.rateLimiter.UpdateFromHeaders(ctx, r.Header); err != nil {
				c.logger.Warn().Err(err).Msg("Failed to update rate limit from headers")
			}
		}

		class := classifyStatus(r.StatusCode)
		if class == "" {
			resp = r
			return "", nil
		}

		errorsTotal.WithLabelValues(string(class)).Inc()
		requestsTotal.WithLabelValues(endpoint, strconv.Itoa(r.StatusCode)).Inc()
		c.logger.Warn().
			Str("endpoint", endpoint).
			Int("status_code", r.StatusCode).
			Str("error_class", string(class)).
			Msg("Request error")

		if !shouldRetry(class) {
			resp = r
			return "", nil
		}

		apiErr := newAPIError(r)
		io.Copy(io.Discard, r.Body)
		r.Body.Close()
		return class, apiErr
	})
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusNotModified && cached != nil:
		requestsTotal.WithLabelValues(endpoint, "304").Inc()
		cache.NotModifiedResponses.Inc()
		resp.Body.Close()

		expires := cache.ExpiresFromHeader(resp.Header)
		if err := c.cache.UpdateTTL(ctx, cacheKey, expires); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to update cache TTL")
		}
		c.logger.Debug().Str("endpoint", endpoint).Msg("304 Not Modified - using cache")
		return cache.EntryToResponse(cached), nil

	case resp.StatusCode < 400:
		requestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()
	}

	if c.cache != nil && resp.StatusCode == http.StatusOK && req.Method == http.MethodGet {
		c.storePage(ctx, cacheKey, resp)
	}

	return resp, nil
}

func (c *Client) storePage(ctx context.Context, key cache.Key, resp *http.Response) {
	entry, err := cache.ResponseToEntry(resp)
	if err != nil {
		if !errors.Is(err, cache.ErrNotCacheable) {
			c.logger.Warn().Err(err).Msg("Failed to create cache entry")
		}
		return
	}
	if entry.TTL() <= 0 {
		return
	}
	if err := c.cache.Set(ctx, key, entry); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to cache response")
		return
	}
	c.logger.Debug().
		Str("endpoint", key.Endpoint).
		Dur("ttl", entry.TTL()).
		Msg("Cached response")
}

// Get performs a GET request to endpoint, resolved against the base URL.
func (c *Client) Get(ctx context.Context, endpoint string, query url.Values) (*http.Response, error) {
	u := c.baseURL.JoinPath(endpoint)
	u.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	return c.Do(req)
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// RateLimiter returns the rate limit tracker, or nil without Redis.
func (c *Client) RateLimiter() *ratelimit.Tracker {
	return c.rateLimiter
}

// Cache returns the page cache, or nil without Redis.
func (c *Client) Cache() *cache.Manager {
	return c.cache
}
