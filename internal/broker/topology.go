// Package broker maps the activity exchange topology onto Kafka and publishes activity events.
//
// The exchange is a logical namespace stamped on every message; each binding routes one event kind,
// by routing key, to a durable queue backed by its own topic.
package broker

import (
	"errors"
	"fmt"
	"strings"

	"example.com/recommendation/internal/events"
)

// Binding routes one event kind to a queue.
type Binding struct {
	RoutingKey string
	Queue      string
}

// Topology describes the exchange, its bindings and how queues are provisioned.
type Topology struct {
	Exchange          string
	Bindings          map[events.EventKind]Binding
	Partitions        int
	ReplicationFactor int
}

// Route returns the binding for kind.
func (t Topology) Route(kind events.EventKind) (Binding, error) {
	b, ok := t.Bindings[kind]
	if !ok {
		return Binding{}, fmt.Errorf("no binding for event kind %q", kind)
	}
	return b, nil
}

// Queues lists the bound queues in create, update, delete order.
func (t Topology) Queues() []string {
	out := make([]string, 0, len(t.Bindings))
	for _, kind := range events.Kinds {
		if b, ok := t.Bindings[kind]; ok {
			out = append(out, b.Queue)
		}
	}
	return out
}

// KindForQueue reverses the binding table.
func (t Topology) KindForQueue(queue string) (events.EventKind, bool) {
	for kind, b := range t.Bindings {
		if b.Queue == queue {
			return kind, true
		}
	}
	return "", false
}

// Validate requires one binding per event kind with distinct routing keys and queues.
func (t Topology) Validate() error {
	var errs []error
	if strings.TrimSpace(t.Exchange) == "" {
		errs = append(errs, errors.New("exchange name is required"))
	}
	keys := make(map[string]events.EventKind)
	queues := make(map[string]events.EventKind)
	for _, kind := range events.Kinds {
		b, ok := t.Bindings[kind]
		if !ok {
			errs = append(errs, fmt.Errorf("missing binding for %s events", kind))
			continue
		}
		if b.RoutingKey == "" || b.Queue == "" {
			errs = append(errs, fmt.Errorf("binding for %s events needs a routing key and a queue", kind))
			continue
		}
		if other, dup := keys[b.RoutingKey]; dup {
			errs = append(errs, fmt.Errorf("routing key %q bound to both %s and %s", b.RoutingKey, other, kind))
		}
		if other, dup := queues[b.Queue]; dup {
			errs = append(errs, fmt.Errorf("queue %q bound to both %s and %s", b.Queue, other, kind))
		}
		keys[b.RoutingKey] = kind
		queues[b.Queue] = kind
	}
	if t.Partitions < 1 {
		errs = append(errs, errors.New("partitions must be >= 1"))
	}
	if t.ReplicationFactor < 1 {
		errs = append(errs, errors.New("replication factor must be >= 1"))
	}
	return errors.Join(errs...)
}
