package deadletter

import "github.com/prometheus/client_golang/prometheus"

var (
	processedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "recommendation_service",
		Subsystem: "dlq",
		Name:      "messages_processed_total",
		Help:      "Number of dead letters picked up for replay.",
	}, []string{"queue", "event_kind"})

	replayedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "recommendation_service",
		Subsystem: "dlq",
		Name:      "messages_replayed_total",
		Help:      "Number of dead letters republished to their original queue.",
	}, []string{"queue", "event_kind"})

	quarantinedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "recommendation_service",
		Subsystem: "dlq",
		Name:      "messages_quarantined_total",
		Help:      "Number of dead letters quarantined after exhausting retries.",
	}, []string{"queue", "event_kind"})

	retryCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "recommendation_service",
		Subsystem: "dlq",
		Name:      "retry_scheduled_total",
		Help:      "Number of times a dead letter was scheduled for a future replay.",
	}, []string{"queue", "event_kind"})

	backlogGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "recommendation_service",
		Subsystem: "dlq",
		Name:      "queued_messages",
		Help:      "Current number of dead letters awaiting replay.",
	})
)

func init() {
	prometheus.MustRegister(processedCounter, replayedCounter, quarantinedCounter, retryCounter, backlogGauge)
}

func recordProcessed(entry Entry) {
	processedCounter.WithLabelValues(entry.Queue, entry.Kind).Inc()
}

func recordReplayed(entry Entry) {
	replayedCounter.WithLabelValues(entry.Queue, entry.Kind).Inc()
}

func recordQuarantined(entry Entry) {
	quarantinedCounter.WithLabelValues(entry.Queue, entry.Kind).Inc()
}

func recordRetry(entry Entry) {
	retryCounter.WithLabelValues(entry.Queue, entry.Kind).Inc()
}
