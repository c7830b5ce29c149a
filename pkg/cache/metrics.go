package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits counts page cache hits.
	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pagestream_cache_hits_total",
		Help: "Total number of page cache hits",
	})

	// CacheMisses counts page cache misses, including expired entries.
	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pagestream_cache_misses_total",
		Help: "Total number of page cache misses",
	})

	// CacheSize counts bytes written to the page cache.
	CacheSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pagestream_cache_size_bytes",
		Help: "Bytes written to the page cache",
	})

	// NotModifiedResponses counts 304 responses answered from the cache.
	NotModifiedResponses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pagestream_not_modified_total",
		Help: "Total number of 304 Not Modified responses served from the page cache",
	})

	// ConditionalRequestsSent counts requests sent with If-None-Match or
	// If-Modified-Since.
	ConditionalRequestsSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pagestream_conditional_requests_total",
		Help: "Total number of conditional page requests sent",
	})

	// CacheErrors counts failed cache operations by operation (get, set, delete).
	CacheErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pagestream_cache_errors_total",
		Help: "Total number of page cache operation errors",
	}, []string{"operation"})
)
