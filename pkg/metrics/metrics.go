// Package metrics provides the centralized Prometheus metrics registry for
// the caching client. All metrics are defined in their respective packages
// (fetch, store) to maintain modularity and avoid circular dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the caching client.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Request Metrics (pkg/fetch):
//   - fetchcache_requests_total{state} (Counter): Requests by cache state
//     (fresh, stale, miss, uncacheable, bypass, passthrough)
//   - fetchcache_revalidations_total{outcome} (Counter): Background
//     revalidations by outcome (unchanged, modified, error)
//   - fetchcache_store_write_failures_total (Counter): Store writes that
//     failed and were ignored
//
// Store Metrics (pkg/store):
//   - fetchcache_store_hits_total{backend} (Counter): Store hits by backend
//   - fetchcache_store_misses_total{backend} (Counter): Store misses
//   - fetchcache_store_errors_total{backend,operation} (Counter): Operation errors
//   - fetchcache_store_written_bytes_total{backend} (Counter): Bytes written
//   - fetchcache_store_evictions_total{backend} (Counter): Capacity evictions
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate (fresh + stale served from store)
//   sum(rate(fetchcache_requests_total{state=~"fresh|stale"}[5m])) /
//   sum(rate(fetchcache_requests_total[5m]))
//
//   # Revalidation Churn (how often polled resources actually change)
//   rate(fetchcache_revalidations_total{outcome="modified"}[5m]) /
//   rate(fetchcache_revalidations_total[5m])
//
//   # Store Health
//   rate(fetchcache_store_errors_total[5m])
