// Package fetch provides the caching fetch client: a drop-in wrapper around
// an HTTP transport that serves repeat requests from a cache store and
// refreshes stale entries in the background.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/fetchcache/fetchcache/pkg/events"
	"github.com/fetchcache/fetchcache/pkg/policy"
	"github.com/fetchcache/fetchcache/pkg/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// Prometheus metrics for the caching client.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fetchcache_requests_total",
		Help: "Total requests by cache state",
	}, []string{"state"}) // "fresh", "stale", "miss", "uncacheable", "bypass", "passthrough"

	revalidationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fetchcache_revalidations_total",
		Help: "Total background revalidations by outcome",
	}, []string{"outcome"}) // "unchanged", "modified", "error"

	storeWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fetchcache_store_write_failures_total",
		Help: "Total cache store writes that failed and were ignored",
	})
)

// Transport executes HTTP requests. *http.Client satisfies it.
type Transport interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config holds the caching client configuration.
type Config struct {
	// Transport executes origin requests. Required.
	Transport Transport

	// Store persists cached entries. Required.
	Store store.Store

	// Notifier receives lifecycle events. Defaults to a logging notifier.
	Notifier events.Notifier

	// NoStorePatterns lists URL substrings that bypass the cache entirely.
	// Matching requests skip the store and carry explicit no-cache
	// directives to the origin.
	NoStorePatterns []string

	// Shared selects shared-cache semantics. This client is a private,
	// per-client cache; Shared MUST be false.
	Shared bool
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(transport Transport, st store.Store) Config {
	return Config{
		Transport: transport,
		Store:     st,
		Shared:    false,
	}
}

// Client is the caching fetch client. It has the same call shape as the
// transport it wraps, so cached and live responses are indistinguishable to
// the caller.
type Client struct {
	transport Transport
	store     store.Store
	notifier  events.Notifier
	noStore   []string
	logger    zerolog.Logger

	// revalidations deduplicates concurrent background refreshes per key
	revalidations singleflight.Group
	pending       sync.WaitGroup
}

// New creates a caching client.
func New(cfg Config) (*Client, error) {
	if cfg.Transport == nil {
		return nil, fmt.Errorf("transport is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Shared {
		return nil, fmt.Errorf("shared mode is not supported (private cache only)")
	}

	logger := log.With().Str("component", "fetch-cache").Logger()

	notifier := cfg.Notifier
	if notifier == nil {
		notifier = events.LogNotifier{Logger: logger}
	}

	return &Client{
		transport: cfg.Transport,
		store:     cfg.Store,
		notifier:  notifier,
		noStore:   cfg.NoStorePatterns,
		logger:    logger,
	}, nil
}

// Do executes a request through the cache. Fresh entries are served without
// network access; stale entries are served immediately while a background
// revalidation refreshes them; misses go to the origin and are stored when
// the response allows it.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	// normalize locally, the caller's request is never mutated
	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}
	key := req.URL.String()

	if c.bypassed(key) {
		requestsTotal.WithLabelValues("bypass").Inc()
		return c.fetchBypass(req)
	}

	// only GET and HEAD responses are ever cached; everything else goes
	// straight through so an unsafe method never hits a stored entry
	if method != http.MethodGet && method != http.MethodHead {
		requestsTotal.WithLabelValues("passthrough").Inc()
		return c.transport.Do(req)
	}

	entry, err := c.store.Get(req.Context(), key)
	if err != nil {
		if !errors.Is(err, store.ErrCacheMiss) {
			c.logger.Warn().Err(err).Str("url", key).Msg("Store read failed, treating as miss")
		}
		return c.fetchMiss(req, key)
	}

	// a request selecting a different representation than the stored one
	// is a miss: the stored body must never be served to it, stale or fresh
	if !entry.Policy.Matches(req) {
		c.logger.Debug().Str("url", key).Msg("Stored variant does not match request, fetching")
		return c.fetchMiss(req, key)
	}

	if entry.Policy.Fresh(req) {
		requestsTotal.WithLabelValues("fresh").Inc()
		c.logger.Debug().Str("url", key).Msg("Serving fresh cached response")
		return c.responseFromEntry(req, entry), nil
	}

	requestsTotal.WithLabelValues("stale").Inc()
	c.logger.Debug().Str("url", key).Msg("Serving stale cached response, revalidating in background")
	c.Revalidate(req, entry)
	return c.responseFromEntry(req, entry), nil
}

// Get performs a GET request through the cache.
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return c.Do(req)
}

// fetchMiss fetches live on a cache miss, stores the response when it is
// storable, and returns the live response either way. Store failures never
// surface to the caller.
func (c *Client) fetchMiss(req *http.Request, key string) (*http.Response, error) {
	reqTime := time.Now()
	res, err := c.transport.Do(req)
	if err != nil {
		return nil, err
	}
	resTime := time.Now()

	state := policy.Compute(req, res, reqTime, resTime, policy.Options{})
	if !state.Storable() {
		requestsTotal.WithLabelValues("uncacheable").Inc()
		c.logger.Debug().Str("url", key).Msg("Response not storable")
		return res, nil
	}
	requestsTotal.WithLabelValues("miss").Inc()

	body, err := captureBody(res)
	if err != nil {
		// the stream is already half-drained, so the response cannot be
		// handed to the caller either
		c.logger.Warn().Err(err).Str("url", key).Msg("Could not read response body")
		return nil, err
	}

	entry := store.NewEntry(key, body, res.Header, state)
	if err := c.store.Set(req.Context(), key, entry, state.TimeToLive()); err != nil {
		storeWriteFailures.Inc()
		c.logger.Warn().Err(err).Str("url", key).Msg("Store write failed")
	} else {
		c.logger.Debug().
			Str("url", key).
			Dur("ttl", state.TimeToLive()).
			Msg("Stored response")
	}
	return res, nil
}

// fetchBypass forwards the request with explicit no-cache directives and
// never touches the store.
func (c *Client) fetchBypass(req *http.Request) (*http.Response, error) {
	out := req.Clone(req.Context())
	out.Header.Set("Cache-Control", "no-cache, no-store")
	out.Header.Set("Pragma", "no-cache")
	return c.transport.Do(out)
}

func (c *Client) bypassed(url string) bool {
	for _, pattern := range c.noStore {
		if pattern != "" && strings.Contains(url, pattern) {
			return true
		}
	}
	return false
}

// Close waits for all outstanding background revalidations to settle.
func (c *Client) Close() error {
	c.pending.Wait()
	return nil
}
