package broker

import "github.com/prometheus/client_golang/prometheus"

var (
	publishedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "activity_service",
		Subsystem: "broker",
		Name:      "events_published_total",
		Help:      "Activity events written to their bound queue.",
	}, []string{"queue", "event_kind"})

	publishErrorCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "activity_service",
		Subsystem: "broker",
		Name:      "publish_errors_total",
		Help:      "Activity events that could not be written to their bound queue.",
	}, []string{"queue", "event_kind"})
)

func init() {
	prometheus.MustRegister(publishedCounter, publishErrorCounter)
}

func recordPublished(queue, kind string) {
	publishedCounter.WithLabelValues(queue, kind).Inc()
}

func recordPublishError(queue, kind string) {
	publishErrorCounter.WithLabelValues(queue, kind).Inc()
}
