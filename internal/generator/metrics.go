package generator

import "github.com/prometheus/client_golang/prometheus"

var (
	attemptCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "recommendation_service",
		Subsystem: "generator",
		Name:      "attempts_total",
		Help:      "Generator HTTP attempts grouped by outcome.",
	}, []string{"outcome"})

	attemptDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "recommendation_service",
		Subsystem: "generator",
		Name:      "attempt_duration_seconds",
		Help:      "Latency of individual generator HTTP attempts.",
		Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
	})

	promptTokens = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "recommendation_service",
		Subsystem: "generator",
		Name:      "prompt_tokens",
		Help:      "Approximate prompt size in cl100k tokens.",
		Buckets:   prometheus.ExponentialBuckets(64, 2, 8),
	})
)

func init() {
	prometheus.MustRegister(attemptCounter, attemptDuration, promptTokens)
}

const (
	outcomeSuccess   = "success"
	outcomeEmpty     = "empty"
	outcomeHTTPError = "http_error"
	outcomeTransport = "transport_error"
)
