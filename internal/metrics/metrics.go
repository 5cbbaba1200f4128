package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Retrieval Prometheus metrics.
var (
	QueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coursebot",
			Name:      "queries_total",
			Help:      "Total number of processed queries",
		},
		[]string{"mode", "outcome"},
	)

	QueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "coursebot",
			Name:      "query_duration_seconds",
			Help:      "End-to-end query duration in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40},
		},
		[]string{"mode"},
	)

	RetrievedDocuments = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "coursebot",
			Name:      "retrieved_documents",
			Help:      "Number of documents returned by a retrieval stage",
			Buckets:   []float64{0, 1, 2, 3, 5, 10, 20},
		},
		[]string{"mode"},
	)

	ExpansionVariants = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "coursebot",
			Name:      "expansion_variants",
			Help:      "Number of query variants produced by query expansion",
			Buckets:   []float64{0, 1, 2, 3, 4, 5, 6, 8},
		},
	)

	UpstreamRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coursebot",
			Name:      "upstream_requests_total",
			Help:      "Total number of LLM and embedding calls",
		},
		[]string{"operation", "status"},
	)

	UpstreamRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "coursebot",
			Name:      "upstream_request_duration_seconds",
			Help:      "LLM and embedding call duration in seconds, retries included",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"operation"},
	)
)

var registerOnce sync.Once

// Register registers every collector with the default registry. Safe to
// call more than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			QueriesTotal,
			QueryDuration,
			RetrievedDocuments,
			ExpansionVariants,
			UpstreamRequestsTotal,
			UpstreamRequestDuration,
		)
	})
}
