package pagination

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Split kinds, in the order a paged cursor tries them.
const (
	splitKindFirstPage = "first_page"
	splitKindPage      = "page"
	splitKindRange     = "range"
)

// Prometheus metrics for page traversal.
var (
	pagesFetchedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pagestream_pages_fetched_total",
		Help: "Total number of pages fetched from page sources",
	})

	pageFetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pagestream_page_fetch_duration_seconds",
		Help:    "Page fetch duration in seconds",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
	})

	pageFetchErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pagestream_page_fetch_errors_total",
		Help: "Total number of failed or invalid page fetches",
	})

	totalShrinksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pagestream_total_shrinks_total",
		Help: "Total number of times a reported total lowered a cursor's upper bound",
	})

	splitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pagestream_splits_total",
		Help: "Total number of successful cursor splits by kind",
	}, []string{"kind"})
)
