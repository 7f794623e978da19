// Package observability wires logging, tracing and the shared persistence watermarks.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	activityPersistGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "activity_service",
		Subsystem: "persistence",
		Name:      "last_activity_persisted_timestamp_seconds",
		Help:      "Unix timestamp of the most recent activity write.",
	})
	recommendationPersistGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "recommendation_service",
		Subsystem: "persistence",
		Name:      "last_recommendation_persisted_timestamp_seconds",
		Help:      "Unix timestamp of the most recent recommendation write.",
	})
)

func init() {
	prometheus.MustRegister(activityPersistGauge, recommendationPersistGauge)
}

// RecordActivityPersisted updates the activity watermark gauge.
func RecordActivityPersisted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	activityPersistGauge.Set(float64(ts.Unix()))
}

// RecordRecommendationPersisted updates the recommendation watermark gauge.
func RecordRecommendationPersisted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	recommendationPersistGauge.Set(float64(ts.Unix()))
}
