// Package metrics documents the Prometheus metrics exported by pagestream.
// Collectors are defined in their own packages (pagination, client, cache,
// ratelimit) and registered via promauto, so importing a package is enough to
// export its metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the Prometheus registry all pagestream collectors register with.
var Registry = prometheus.DefaultRegisterer

// Handler returns an HTTP handler exposing the registered metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Metrics Documentation
//
// Pagination Metrics (pkg/pagination):
//   - pagestream_pages_fetched_total (Counter): Pages fetched from page sources
//   - pagestream_page_fetch_duration_seconds (Histogram): Page fetch duration
//   - pagestream_page_fetch_errors_total (Counter): Failed or contract-violating fetches
//   - pagestream_total_shrinks_total (Counter): Reported totals that lowered a cursor's bound
//   - pagestream_splits_total{kind} (Counter): Cursor splits (first_page, page, range)
//
// Request Metrics (pkg/client):
//   - pagestream_requests_total{endpoint, status} (Counter): Requests by endpoint and HTTP status
//   - pagestream_request_duration_seconds{endpoint} (Histogram): Request duration by endpoint
//   - pagestream_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network)
//   - pagestream_retries_total{error_class} (Counter): Retry attempts by error class
//   - pagestream_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - pagestream_retry_exhausted_total{error_class} (Counter): Requests that exhausted max retries
//
// Cache Metrics (pkg/cache):
//   - pagestream_cache_hits_total (Counter): Page cache hits
//   - pagestream_cache_misses_total (Counter): Page cache misses
//   - pagestream_cache_size_bytes (Gauge): Bytes written to the page cache
//   - pagestream_not_modified_total (Counter): 304 Not Modified responses served from cache
//   - pagestream_conditional_requests_total (Counter): Requests sent with validators
//   - pagestream_cache_errors_total{operation} (Counter): Cache operation errors
//
// Rate Limit Metrics (pkg/ratelimit):
//   - pagestream_rate_limit_remaining{scope} (Gauge): Requests remaining in the current window
//   - pagestream_rate_limit_blocks_total{scope} (Counter): Requests blocked at the critical threshold
//   - pagestream_rate_limit_throttles_total{scope} (Counter): Requests throttled at the warning threshold
//
// Example Prometheus Queries:
//
//   # Pages per second
//   rate(pagestream_pages_fetched_total[5m])
//
//   # P95 page fetch latency
//   histogram_quantile(0.95, rate(pagestream_page_fetch_duration_seconds_bucket[5m]))
//
//   # Collections shrinking under traversal
//   rate(pagestream_total_shrinks_total[5m])
