package broker

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/segmentio/kafka-go"
)

type topicCreator interface {
	CreateTopics(topics ...kafka.TopicConfig) error
}

// Declare provisions one durable topic per bound queue through the cluster controller.
// Queues that already exist are left untouched.
func Declare(ctx context.Context, brokers []string, topo Topology) error {
	if len(brokers) == 0 {
		return errors.New("declare topology: no brokers configured")
	}
	if err := topo.Validate(); err != nil {
		return fmt.Errorf("declare topology: %w", err)
	}

	conn, err := kafka.DialContext(ctx, "tcp", brokers[0])
	if err != nil {
		return fmt.Errorf("dial broker: %w", err)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("lookup controller: %w", err)
	}
	ctrl, err := kafka.DialContext(ctx, "tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return fmt.Errorf("dial controller: %w", err)
	}
	defer ctrl.Close()

	return declareOn(ctrl, topo)
}

func declareOn(c topicCreator, topo Topology) error {
	queues := topo.Queues()
	configs := make([]kafka.TopicConfig, 0, len(queues))
	for _, q := range queues {
		configs = append(configs, kafka.TopicConfig{
			Topic:             q,
			NumPartitions:     topo.Partitions,
			ReplicationFactor: topo.ReplicationFactor,
		})
	}
	if err := c.CreateTopics(configs...); err != nil && !errors.Is(err, kafka.TopicAlreadyExists) {
		return fmt.Errorf("create queues: %w", err)
	}
	return nil
}
