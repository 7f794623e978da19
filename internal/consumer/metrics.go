package consumer

import (
	"github.com/prometheus/client_golang/prometheus"

	"example.com/recommendation/internal/extract"
)

const (
	outcomeDropped      = "dropped"
	outcomeDeadLettered = "dead_lettered"
	outcomeSinkFailed   = "sink_failed"
)

var (
	processedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "recommendation_service",
		Subsystem: "consumer",
		Name:      "messages_processed_total",
		Help:      "Number of messages successfully handled.",
	}, []string{"queue", "event_kind"})

	handlerErrorCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "recommendation_service",
		Subsystem: "consumer",
		Name:      "handler_errors_total",
		Help:      "Number of messages whose handler failed after all redeliveries.",
	}, []string{"queue", "event_kind"})

	redeliveryCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "recommendation_service",
		Subsystem: "consumer",
		Name:      "redeliveries_total",
		Help:      "Number of in-place handler retries.",
	}, []string{"queue", "event_kind"})

	failureOutcomeCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "recommendation_service",
		Subsystem: "consumer",
		Name:      "failure_outcomes_total",
		Help:      "What happened to failed messages, by outcome.",
	}, []string{"queue", "outcome"})

	decodeErrorCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "recommendation_service",
		Subsystem: "consumer",
		Name:      "decode_errors_total",
		Help:      "Number of decode failures per queue.",
	}, []string{"queue"})

	lastMessageGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "recommendation_service",
		Subsystem: "consumer",
		Name:      "last_message_timestamp_seconds",
		Help:      "Unix timestamp of the most recent successfully processed message per queue.",
	}, []string{"queue"})

	extractOutcomeCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "recommendation_service",
		Subsystem: "extract",
		Name:      "outcomes_total",
		Help:      "Generator responses by extraction outcome.",
	}, []string{"kind"})

	skippedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "recommendation_service",
		Subsystem: "consumer",
		Name:      "events_skipped_total",
		Help:      "Events acknowledged without generating a recommendation.",
	}, []string{"event_kind"})
)

func init() {
	prometheus.MustRegister(processedCounter, handlerErrorCounter, redeliveryCounter, failureOutcomeCounter,
		decodeErrorCounter, lastMessageGauge, extractOutcomeCounter, skippedCounter)
}

func recordProcessed(msg Message) {
	processedCounter.WithLabelValues(msg.Queue, string(msg.Event.Kind)).Inc()
	if !msg.Timestamp.IsZero() {
		lastMessageGauge.WithLabelValues(msg.Queue).Set(float64(msg.Timestamp.Unix()))
	}
}

func recordHandlerError(msg Message) {
	handlerErrorCounter.WithLabelValues(msg.Queue, string(msg.Event.Kind)).Inc()
}

func recordRedelivery(msg Message) {
	redeliveryCounter.WithLabelValues(msg.Queue, string(msg.Event.Kind)).Inc()
}

func recordOutcome(msg Message, outcome string) {
	failureOutcomeCounter.WithLabelValues(msg.Queue, outcome).Inc()
}

func recordDecodeError(queue string) {
	decodeErrorCounter.WithLabelValues(queue).Inc()
}

func recordExtract(kind extract.Kind) {
	extractOutcomeCounter.WithLabelValues(kind.String()).Inc()
}

func recordSkipped(msg Message) {
	skippedCounter.WithLabelValues(string(msg.Event.Kind)).Inc()
}
