package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Match pipeline metrics, exposed on /metrics.
var (
	matchRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "match_requests_total",
			Help: "Total number of match requests by outcome",
		},
		[]string{"status"},
	)

	// extract-then-rank latency, including remote fetch of the query image
	matchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "match_duration_seconds",
			Help:    "Match pipeline duration in seconds",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
	)

	embeddingExtractTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "embedding_extract_total",
			Help: "Total number of embedding extractions by strategy and outcome",
		},
		[]string{"strategy", "status"},
	)

	catalogFallbackTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_fallback_embeddings_total",
			Help: "Catalog embeddings computed on demand during matching",
		},
		[]string{"status"},
	)
)

const (
	statusSuccess = "success"
	statusFailure = "failure"
)

func outcome(err error) string {
	if err != nil {
		return statusFailure
	}
	return statusSuccess
}
