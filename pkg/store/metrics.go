package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// storeHits tracks cache hits by backend.
	storeHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetchcache_store_hits_total",
			Help: "Total number of cache store hits",
		},
		[]string{"backend"},
	)

	// storeMisses tracks cache misses by backend.
	storeMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetchcache_store_misses_total",
			Help: "Total number of cache store misses",
		},
		[]string{"backend"},
	)

	// storeErrors tracks store operation errors.
	storeErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetchcache_store_errors_total",
			Help: "Total number of cache store operation errors",
		},
		[]string{"backend", "operation"}, // "get", "set", "delete", "clear"
	)

	// storeWrittenBytes tracks bytes written to the store by backend.
	storeWrittenBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetchcache_store_written_bytes_total",
			Help: "Total bytes written to the cache store",
		},
		[]string{"backend"},
	)

	// storeEvictions tracks capacity evictions by backend.
	storeEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetchcache_store_evictions_total",
			Help: "Total number of entries evicted for capacity",
		},
		[]string{"backend"},
	)
)
