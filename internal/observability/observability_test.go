package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(LogConfig{Level: "warn", Format: "json"}, "consumer", &buf)
	require.NoError(t, err)

	logger.Info("dropped")
	logger.Warn("kept", "queue", "activity-queue")

	var record map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	require.Equal(t, "kept", record["msg"])
	require.Equal(t, "consumer", record["service"])
	require.Equal(t, "activity-queue", record["queue"])
}

func TestNewLoggerRejectsUnknownSettings(t *testing.T) {
	_, err := NewLogger(LogConfig{Level: "loud", Format: "json"}, "api", &bytes.Buffer{})
	require.Error(t, err)

	_, err = NewLogger(LogConfig{Level: "info", Format: "xml"}, "api", &bytes.Buffer{})
	require.ErrorContains(t, err, "xml")
}

func TestInitTracerNoneIsNoop(t *testing.T) {
	shutdown, err := InitTracer("api", ExporterNone, slog.Default())
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))

	_, err = InitTracer("api", "jaeger", slog.Default())
	require.Error(t, err)
}

func TestRecordRecommendationPersisted(t *testing.T) {
	ts := time.Unix(1_700_000_000, 0)
	RecordRecommendationPersisted(ts)
	require.Equal(t, float64(ts.Unix()), testutil.ToFloat64(recommendationPersistGauge))

	RecordRecommendationPersisted(time.Time{})
	require.Equal(t, float64(ts.Unix()), testutil.ToFloat64(recommendationPersistGauge))
}

func TestRecordActivityPersisted(t *testing.T) {
	ts := time.Unix(1_710_000_000, 0)
	RecordActivityPersisted(ts)

	var metric dto.Metric
	require.NoError(t, activityPersistGauge.Write(&metric))
	require.Equal(t, float64(ts.Unix()), metric.GetGauge().GetValue())
}
