package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"example.com/recommendation/internal/events"
)

// Message headers stamped on every published event.
const (
	HeaderExchange    = "exchange"
	HeaderRoutingKey  = "routing_key"
	HeaderEventKind   = "event_kind"
	HeaderContentType = "content_type"
	HeaderReplayCount = "replay_count"
)

const contentTypeJSON = "application/json"

// MessageWriter is satisfied by KafkaProducer.
type MessageWriter interface {
	WriteMessages(ctx context.Context, queue string, msgs ...kafka.Message) error
}

// Publisher routes activity events through the topology.
type Publisher struct {
	topo   Topology
	writer MessageWriter
}

// NewPublisher constructs a Publisher.
func NewPublisher(topo Topology, writer MessageWriter) *Publisher {
	return &Publisher{topo: topo, writer: writer}
}

// Publish sends evt to the queue bound to its kind. It does not retry.
func (p *Publisher) Publish(ctx context.Context, evt events.ActivityEvent) error {
	binding, err := p.topo.Route(evt.Kind)
	if err != nil {
		return err
	}
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode activity event: %w", err)
	}

	ts := evt.OccurredAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	msg := kafka.Message{
		Key:   []byte(evt.ActivityID),
		Value: body,
		Time:  ts,
		Headers: []kafka.Header{
			{Key: HeaderExchange, Value: []byte(p.topo.Exchange)},
			{Key: HeaderRoutingKey, Value: []byte(binding.RoutingKey)},
			{Key: HeaderEventKind, Value: []byte(evt.Kind)},
			{Key: HeaderContentType, Value: []byte(contentTypeJSON)},
		},
	}
	if err := p.writer.WriteMessages(ctx, binding.Queue, msg); err != nil {
		recordPublishError(binding.Queue, string(evt.Kind))
		return fmt.Errorf("publish %s event to %s: %w", evt.Kind, binding.Queue, err)
	}
	recordPublished(binding.Queue, string(evt.Kind))
	return nil
}

// Replay re-sends a previously consumed payload to queue, tagging it with the replay attempt.
func (p *Publisher) Replay(ctx context.Context, queue, key string, payload []byte, attempt int) error {
	kind, ok := p.topo.KindForQueue(queue)
	if !ok {
		return fmt.Errorf("queue %q is not bound to the %s exchange", queue, p.topo.Exchange)
	}
	binding, _ := p.topo.Route(kind)
	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Time:  time.Now().UTC(),
		Headers: []kafka.Header{
			{Key: HeaderExchange, Value: []byte(p.topo.Exchange)},
			{Key: HeaderRoutingKey, Value: []byte(binding.RoutingKey)},
			{Key: HeaderEventKind, Value: []byte(kind)},
			{Key: HeaderContentType, Value: []byte(contentTypeJSON)},
			{Key: HeaderReplayCount, Value: []byte(fmt.Sprint(attempt))},
		},
	}
	if err := p.writer.WriteMessages(ctx, queue, msg); err != nil {
		recordPublishError(queue, string(kind))
		return fmt.Errorf("replay to %s: %w", queue, err)
	}
	recordPublished(queue, string(kind))
	return nil
}
