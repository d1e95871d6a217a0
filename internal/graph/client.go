package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"tokenlens/internal/cache"
	"tokenlens/internal/metrics"
	"tokenlens/internal/ratelimit"
	"tokenlens/pkg/logger"
)

// Options configures a Client. Zero values fall back to defaults.
type Options struct {
	Endpoint   string
	RateLimit  float64       // outbound requests per second
	MaxRetries int           // total attempts per query
	Timeout    time.Duration // per-request HTTP timeout
	DefaultTTL time.Duration // cache TTL when no query-type override applies
}

// Client executes GraphQL queries against a single endpoint with caching,
// rate limiting and retry. The rate limiter and statistics belong to the
// instance, so independent endpoints get independent clients. Safe for
// concurrent use; one caller waiting out the rate limiter does not block
// another's cache hit.
type Client struct {
	endpoint   string
	httpClient *http.Client
	limiter    *ratelimit.Limiter
	store      cache.Store // nil disables caching
	defaultTTL time.Duration
	maxRetries int
	logger     *logger.Logger

	totalQueries  atomic.Uint64
	failedQueries atomic.Uint64
	retryCount    atomic.Uint64
	cacheHits     atomic.Uint64
	cacheMisses   atomic.Uint64

	backoffFn func(attempt int) time.Duration
}

// ClientStats is a point-in-time snapshot of a client's counters. Rates are
// percentages; SuccessRate is 100 when nothing has been queried yet.
type ClientStats struct {
	TotalQueries  uint64  `json:"total_queries"`
	FailedQueries uint64  `json:"failed_queries"`
	RetryCount    uint64  `json:"retry_count"`
	CacheHits     uint64  `json:"cache_hits"`
	CacheMisses   uint64  `json:"cache_misses"`
	CacheHitRate  float64 `json:"cache_hit_rate"`
	SuccessRate   float64 `json:"success_rate"`
}

// NewClient creates a Client. A nil store disables caching; QueryWithTTL then
// behaves exactly like Query.
func NewClient(opts Options, store cache.Store, log *logger.Logger) *Client {
	if opts.RateLimit <= 0 {
		opts.RateLimit = 1.0
	}
	if opts.MaxRetries < 1 {
		opts.MaxRetries = 3
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.DefaultTTL <= 0 {
		opts.DefaultTTL = 5 * time.Minute
	}

	return &Client{
		endpoint:   opts.Endpoint,
		httpClient: &http.Client{Timeout: opts.Timeout},
		limiter:    ratelimit.NewLimiter(opts.RateLimit, 1, opts.Endpoint),
		store:      store,
		defaultTTL: opts.DefaultTTL,
		maxRetries: opts.MaxRetries,
		logger:     log,
		backoffFn: func(attempt int) time.Duration {
			return time.Duration(1<<uint(attempt)) * time.Second
		},
	}
}

type queryOpts struct {
	useCache bool
	retry    bool
	ttl      time.Duration
}

// Query executes a GraphQL query and returns the raw contents of the data
// field. Results are cached under the client's default TTL.
func (c *Client) Query(ctx context.Context, query string, variables map[string]any) (json.RawMessage, error) {
	return c.run(ctx, query, variables, queryOpts{useCache: true, retry: true, ttl: c.defaultTTL})
}

// QueryWithTTL executes a query whose cache lifetime follows the query type
// instead of the client default.
func (c *Client) QueryWithTTL(ctx context.Context, query string, variables map[string]any, queryType string) (json.RawMessage, error) {
	return c.run(ctx, query, variables, queryOpts{useCache: true, retry: true, ttl: TTLFor(queryType, c.defaultTTL)})
}

func (c *Client) run(ctx context.Context, query string, variables map[string]any, opts queryOpts) (json.RawMessage, error) {
	c.totalQueries.Add(1)

	useCache := c.store != nil && opts.useCache
	if useCache {
		if payload, ok := c.store.Get(ctx, query, variables, opts.ttl); ok {
			c.cacheHits.Add(1)
			return json.RawMessage(payload), nil
		}
		c.cacheMisses.Add(1)
	}

	attempts := c.maxRetries
	if !opts.retry {
		attempts = 1
	}

	var lastErr error
	made := 0
	for attempt := 0; attempt < attempts; attempt++ {
		// Throttle every outbound call; cache hits never get here
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		data, err := c.post(ctx, query, variables)
		made = attempt + 1
		if err == nil {
			if useCache {
				if cacheErr := c.store.Set(ctx, query, variables, data, opts.ttl); cacheErr != nil {
					c.logger.Warn("Failed to cache query result: %v", cacheErr)
				}
			}
			metrics.SubgraphQueriesTotal.WithLabelValues("ok").Inc()
			return data, nil
		}

		// 429 goes straight to the caller: retrying into an already
		// throttled endpoint only digs the hole deeper
		var rateLimited *RateLimitError
		if errors.As(err, &rateLimited) {
			metrics.SubgraphQueriesTotal.WithLabelValues("rate_limited").Inc()
			return nil, err
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		lastErr = err

		var terminal *terminalError
		if errors.As(err, &terminal) {
			lastErr = terminal.err
			c.logger.Error("Query failed: %v", err)
			break
		}

		if attempt < attempts-1 {
			c.retryCount.Add(1)
			wait := c.backoffFn(attempt)
			c.logger.Warn("Query failed (attempt %d/%d), retrying in %s: %v", attempt+1, attempts, wait, err)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		} else {
			c.logger.Error("Query failed after %d attempts: %v", attempts, err)
		}
	}

	c.failedQueries.Add(1)
	metrics.SubgraphQueriesTotal.WithLabelValues("failed").Inc()
	return nil, &ClientError{Endpoint: c.endpoint, Attempts: made, Err: lastErr}
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

func (c *Client) post(ctx context.Context, query string, variables map[string]any) (json.RawMessage, error) {
	if variables == nil {
		variables = map[string]any{}
	}

	body, err := json.Marshal(graphQLRequest{Query: query, Variables: variables})
	if err != nil {
		return nil, &terminalError{fmt.Errorf("failed to encode request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &terminalError{fmt.Errorf("failed to build request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.SubgraphQueryDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		io.Copy(io.Discard, resp.Body)
		return nil, &RateLimitError{Endpoint: c.endpoint}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var decoded graphQLResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, &terminalError{fmt.Errorf("invalid JSON response: %w", err)}
	}

	if len(decoded.Errors) > 0 {
		msgs := make([]string, 0, len(decoded.Errors))
		for _, e := range decoded.Errors {
			msgs = append(msgs, e.Message)
		}
		return nil, &terminalError{fmt.Errorf("graphql errors: %s", strings.Join(msgs, "; "))}
	}

	return decoded.Data, nil
}

// BatchRequest is one entry of a BatchQuery call.
type BatchRequest struct {
	Query     string
	Variables map[string]any
}

// BatchResult carries the outcome for one batch entry; exactly one of Data
// and Err is set.
type BatchResult struct {
	Data json.RawMessage
	Err  error
}

// BatchQuery executes requests sequentially, pausing delay between outbound
// calls. One failure never aborts the batch: results line up with requests
// and each carries its own outcome. If ctx ends mid-batch the remaining
// entries are marked with the context error.
func (c *Client) BatchQuery(ctx context.Context, requests []BatchRequest, delay time.Duration) []BatchResult {
	results := make([]BatchResult, 0, len(requests))

	for i, req := range requests {
		if ctx.Err() != nil {
			results = append(results, BatchResult{Err: ctx.Err()})
			continue
		}

		c.logger.Debug("Executing batch query %d/%d", i+1, len(requests))
		data, err := c.Query(ctx, req.Query, req.Variables)
		if err != nil {
			c.logger.Error("Batch query %d failed: %v", i+1, err)
		}
		results = append(results, BatchResult{Data: data, Err: err})

		if delay > 0 && i < len(requests)-1 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
			}
		}
	}

	return results
}

const healthQuery = `{ __schema { queryType { name } } }`

// HealthCheck probes the endpoint with a schema introspection query, cache
// and retry off. Healthy means a data payload came back.
func (c *Client) HealthCheck(ctx context.Context) bool {
	data, err := c.run(ctx, healthQuery, nil, queryOpts{})
	if err != nil {
		c.logger.Error("Health check failed: %v", err)
		return false
	}
	return len(data) > 0 && string(data) != "null"
}

// ClearCache drops the cached entry for one query, or everything when query
// is empty. A nil store makes this a no-op.
func (c *Client) ClearCache(ctx context.Context, query string, variables map[string]any) error {
	if c.store == nil {
		return nil
	}
	if query == "" {
		return c.store.Clear(ctx)
	}
	c.store.Delete(ctx, query, variables)
	return nil
}

// Stats returns a snapshot of the client's counters with derived rates.
func (c *Client) Stats() ClientStats {
	st := ClientStats{
		TotalQueries:  c.totalQueries.Load(),
		FailedQueries: c.failedQueries.Load(),
		RetryCount:    c.retryCount.Load(),
		CacheHits:     c.cacheHits.Load(),
		CacheMisses:   c.cacheMisses.Load(),
	}

	if cacheable := st.CacheHits + st.CacheMisses; cacheable > 0 {
		st.CacheHitRate = float64(st.CacheHits) / float64(cacheable) * 100
	}

	st.SuccessRate = 100.0
	if st.TotalQueries > 0 {
		st.SuccessRate = float64(st.TotalQueries-st.FailedQueries) / float64(st.TotalQueries) * 100
	}

	return st
}

// ResetStats zeroes all counters.
func (c *Client) ResetStats() {
	c.totalQueries.Store(0)
	c.failedQueries.Store(0)
	c.retryCount.Store(0)
	c.cacheHits.Store(0)
	c.cacheMisses.Store(0)
	c.logger.Info("Statistics reset")
}

// CacheStats exposes the underlying store's statistics; zero value when
// caching is off.
func (c *Client) CacheStats(ctx context.Context) cache.Stats {
	if c.store == nil {
		return cache.Stats{}
	}
	return c.store.Stats(ctx)
}

// Endpoint returns the endpoint URL this client talks to.
func (c *Client) Endpoint() string {
	return c.endpoint
}
