package broker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"example.com/recommendation/internal/events"
)

func testTopology() Topology {
	return Topology{
		Exchange: "fitness.exchange",
		Bindings: map[events.EventKind]Binding{
			events.KindCreate: {RoutingKey: "activity.create", Queue: "activity-queue"},
			events.KindUpdate: {RoutingKey: "activity.update", Queue: "activity-update-queue"},
			events.KindDelete: {RoutingKey: "activity.delete", Queue: "activity-delete-queue"},
		},
		Partitions:        1,
		ReplicationFactor: 1,
	}
}

func TestTopologyValidate(t *testing.T) {
	require.NoError(t, testTopology().Validate())

	dup := testTopology()
	dup.Bindings[events.KindDelete] = Binding{RoutingKey: "activity.update", Queue: "activity-queue"}
	err := dup.Validate()
	require.ErrorContains(t, err, `routing key "activity.update"`)
	require.ErrorContains(t, err, `queue "activity-queue"`)

	missing := testTopology()
	delete(missing.Bindings, events.KindUpdate)
	missing.Exchange = ""
	err = missing.Validate()
	require.ErrorContains(t, err, "missing binding for update")
	require.ErrorContains(t, err, "exchange name is required")
}

func TestTopologyQueuesAndReverseLookup(t *testing.T) {
	topo := testTopology()
	require.Equal(t, []string{"activity-queue", "activity-update-queue", "activity-delete-queue"}, topo.Queues())

	kind, ok := topo.KindForQueue("activity-delete-queue")
	require.True(t, ok)
	require.Equal(t, events.KindDelete, kind)

	_, err := topo.Route("archive")
	require.Error(t, err)
}

func TestDeclareCreatesOneTopicPerQueue(t *testing.T) {
	creator := &stubCreator{err: kafka.TopicAlreadyExists}
	require.NoError(t, declareOn(creator, testTopology()))
	require.Len(t, creator.topics, 3)
	for _, cfg := range creator.topics {
		require.Equal(t, 1, cfg.NumPartitions)
		require.Equal(t, 1, cfg.ReplicationFactor)
	}

	failing := &stubCreator{err: errors.New("not controller")}
	require.Error(t, declareOn(failing, testTopology()))
}

func TestPublisherRoutesByEventKind(t *testing.T) {
	writer := &stubWriter{}
	pub := NewPublisher(testTopology(), writer)

	evt := events.ActivityEvent{
		EventID:          "evt-1",
		Kind:             events.KindUpdate,
		ActivityID:       "act-1",
		TargetActivityID: "act-1",
		UserID:           "user-1",
		ActivityType:     events.ActivitySwimming,
		DurationMin:      40,
		OccurredAt:       time.Date(2025, time.March, 1, 9, 0, 0, 0, time.UTC),
	}
	before := testutil.ToFloat64(publishedCounter.WithLabelValues("activity-update-queue", "update"))

	require.NoError(t, pub.Publish(context.Background(), evt))
	require.Equal(t, "activity-update-queue", writer.queue)
	require.Len(t, writer.msgs, 1)

	msg := writer.msgs[0]
	require.Equal(t, "act-1", string(msg.Key))
	require.Equal(t, "activity.update", header(msg, HeaderRoutingKey))
	require.Equal(t, "fitness.exchange", header(msg, HeaderExchange))
	require.Equal(t, "update", header(msg, HeaderEventKind))

	var decoded events.ActivityEvent
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	require.Equal(t, evt.TargetActivityID, decoded.TargetActivityID)
	require.Equal(t, before+1, testutil.ToFloat64(publishedCounter.WithLabelValues("activity-update-queue", "update")))
}

func TestPublisherSurfacesWriteErrors(t *testing.T) {
	writer := &stubWriter{err: errors.New("leader not available")}
	pub := NewPublisher(testTopology(), writer)

	err := pub.Publish(context.Background(), events.ActivityEvent{Kind: events.KindCreate, ActivityID: "a"})
	require.ErrorContains(t, err, "leader not available")
	require.ErrorContains(t, err, "activity-queue")
}

func TestReplayTagsAttempt(t *testing.T) {
	writer := &stubWriter{}
	pub := NewPublisher(testTopology(), writer)

	require.NoError(t, pub.Replay(context.Background(), "activity-queue", "act-9", []byte(`{}`), 2))
	require.Equal(t, "2", header(writer.msgs[0], HeaderReplayCount))
	require.Equal(t, "activity.create", header(writer.msgs[0], HeaderRoutingKey))

	require.Error(t, pub.Replay(context.Background(), "unknown-queue", "k", nil, 1))
}

func header(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

type stubCreator struct {
	topics []kafka.TopicConfig
	err    error
}

func (s *stubCreator) CreateTopics(topics ...kafka.TopicConfig) error {
	s.topics = append(s.topics, topics...)
	return s.err
}

type stubWriter struct {
	queue string
	msgs  []kafka.Message
	err   error
}

func (w *stubWriter) WriteMessages(_ context.Context, queue string, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.queue = queue
	w.msgs = append(w.msgs, msgs...)
	return nil
}
