package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits counts responses served from the cache, either fresh or
	// after a 304 revalidation.
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowzz_cache_hits_total",
			Help: "Total number of flowzz responses served from cache",
		},
		[]string{"state"}, // "fresh", "revalidated"
	)

	// CacheMisses counts lookups that found no usable entry.
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "flowzz_cache_misses_total",
			Help: "Total number of flowzz cache misses",
		},
	)

	// EntryBytes tracks the size of stored entries.
	EntryBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "flowzz_cache_entry_bytes",
			Help:    "Size of stored flowzz cache entries in bytes",
			Buckets: prometheus.ExponentialBuckets(512, 4, 8),
		},
	)

	// CacheErrors tracks cache operation errors.
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowzz_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete"
	)
)
