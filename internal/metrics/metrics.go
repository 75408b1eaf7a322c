// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Recommendation pipeline.
	RecommendationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cinesense_recommendations_total",
			Help: "Recommendation requests by operation and the source tier that produced the result",
		},
		[]string{"operation", "source"},
	)

	RecommendationResults = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cinesense_recommendation_results",
			Help:    "Number of movies returned per recommendation request",
			Buckets: []float64{0, 1, 2, 5, 8, 10, 15, 20},
		},
		[]string{"operation"},
	)

	RecommendationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cinesense_recommendation_duration_seconds",
			Help:    "End-to-end recommendation latency",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25, 60},
		},
		[]string{"operation"},
	)

	// Upstream collaborators (metadata catalogue, oracle, embeddings).
	UpstreamRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cinesense_upstream_requests_total",
			Help: "Outbound upstream requests by upstream and outcome",
		},
		[]string{"upstream", "outcome"},
	)

	UpstreamRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cinesense_upstream_retries_total",
			Help: "Retried upstream attempts by upstream and reason",
		},
		[]string{"upstream", "reason"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cinesense_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	// Metadata cache.
	CacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cinesense_metadata_cache_lookups_total",
			Help: "Metadata cache lookups by kind and result",
		},
		[]string{"kind", "result"},
	)

	// Taste profile side effects.
	TasteUpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cinesense_taste_updates_total",
			Help: "Taste profile updates by outcome",
		},
		[]string{"outcome"},
	)

	ReviewEmbeddingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cinesense_review_embeddings_total",
			Help: "Review embeddings written by path and outcome",
		},
		[]string{"path", "outcome"},
	)

	// HTTP API.
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cinesense_api_requests_total",
			Help: "API requests by method, route and status",
		},
		[]string{"method", "route", "status"},
	)

	APIRateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cinesense_api_rate_limit_hits_total",
			Help: "Requests rejected by the per-user rate limiter",
		},
		[]string{"route"},
	)
)
