package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/recommendation/internal/consumer"
	"example.com/recommendation/internal/events"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, ":8080", cfg.HTTPAddress)
	require.Equal(t, StorePostgres, cfg.StoreDriver)
	require.Equal(t, []string{"kafka:9092"}, cfg.BrokerList())
	require.False(t, cfg.RecommendationDedupe)
	require.Equal(t, 30*time.Second, cfg.GeneratorRequestTimeout)
	require.Equal(t, time.Minute, cfg.DLQBaseDelay)

	topo := cfg.Topology()
	require.Equal(t, "fitness.exchange", topo.Exchange)
	require.Equal(t, []string{"activity-queue", "activity-update-queue", "activity-delete-queue"}, topo.Queues())
	create, err := topo.Route(events.KindCreate)
	require.NoError(t, err)
	require.Equal(t, "activity.create", create.RoutingKey)

	disposition, err := cfg.Disposition()
	require.NoError(t, err)
	require.Equal(t, consumer.ModeAck, disposition.Mode)

	gen := cfg.GeneratorConfig()
	require.Equal(t, 3, gen.Retry.MaxAttempts)
	require.Equal(t, 500*time.Millisecond, gen.Retry.BaseDelay)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("RECOMMENDATION_DEDUPE", "true")
	t.Setenv("CONSUMER_DISPOSITION", "retry")
	t.Setenv("CONSUMER_RETRY_BASE_DELAY", "250ms")
	t.Setenv("BROKER_CREATE_QUEUE", "activities.created")
	t.Setenv("STORE_DRIVER", "sqlite")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.BrokerList())
	require.True(t, cfg.RecommendationDedupe)
	require.Equal(t, StoreSQLite, cfg.StoreDriver)

	disposition, err := cfg.Disposition()
	require.NoError(t, err)
	require.Equal(t, consumer.ModeRetry, disposition.Mode)
	require.Equal(t, 250*time.Millisecond, disposition.BaseDelay)

	create, err := cfg.Topology().Route(events.KindCreate)
	require.NoError(t, err)
	require.Equal(t, "activities.created", create.Queue)
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	cases := map[string]map[string]string{
		"unknown driver":            {"STORE_DRIVER": "mongo"},
		"unknown disposition":       {"CONSUMER_DISPOSITION": "requeue"},
		"dead letter without pg":    {"CONSUMER_DISPOSITION": "dead_letter", "STORE_DRIVER": "memory"},
		"shared queue":              {"BROKER_UPDATE_QUEUE": "activity-queue"},
		"no brokers":                {"KAFKA_BROKERS": " , "},
		"zero concurrency":          {"CONSUMER_CONCURRENCY": "0"},
		"zero generator attempts":   {"GENERATOR_MAX_ATTEMPTS": "0"},
		"inverted redelivery delay": {"CONSUMER_DISPOSITION": "retry", "CONSUMER_RETRY_MAX_DELAY": "1ms"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
		})
	}
}
