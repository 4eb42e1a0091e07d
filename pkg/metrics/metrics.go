package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Generations counts voice generation attempts by engine and result
	// (success|cache_hit|error|quota|insufficient_credits).
	Generations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parakeet_generations_total",
			Help: "Total number of voice generation requests",
		},
		[]string{"engine", "result"},
	)

	// EngineFallbacks counts within-request model fallbacks per engine.
	EngineFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parakeet_engine_fallbacks_total",
			Help: "Total number of secondary-model fallback attempts",
		},
		[]string{"engine"},
	)

	// CreditsDebited accumulates credits settled through the outbox.
	CreditsDebited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "parakeet_credits_debited_total",
			Help: "Total credits debited from user ledgers",
		},
	)

	// OutboxPending tracks settlement entries awaiting dispatch.
	OutboxPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "parakeet_outbox_pending",
			Help: "Number of outbox entries awaiting dispatch",
		},
	)

	// SynthesisDuration measures end-to-end engine synthesis latency.
	SynthesisDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "parakeet_synthesis_duration_seconds",
			Help:    "Engine synthesis latency",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 160},
		},
		[]string{"engine"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "parakeet_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
