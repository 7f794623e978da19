package consumer

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"example.com/recommendation/internal/domain"
	"example.com/recommendation/internal/events"
	"example.com/recommendation/internal/extract"
	"example.com/recommendation/internal/observability"
	"example.com/recommendation/internal/prompt"
)

// Generator returns the raw generator response for a prompt. *generator.Client satisfies it.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Recorder persists extracted fields. *domain.RecommendationService satisfies it.
type Recorder interface {
	Record(ctx context.Context, evt events.ActivityEvent, fields extract.Fields) (domain.Recommendation, error)
}

// RecommendationHandler turns create events into stored recommendations.
type RecommendationHandler struct {
	generator Generator
	recorder  Recorder
	logger    *slog.Logger
	tracer    trace.Tracer
}

// NewRecommendationHandler constructs a handler around the generator and recorder.
func NewRecommendationHandler(gen Generator, recorder Recorder, logger *slog.Logger) *RecommendationHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RecommendationHandler{
		generator: gen,
		recorder:  recorder,
		logger:    logger.With("component", "recommendation_handler"),
		tracer:    otel.Tracer("example.com/recommendation/internal/consumer"),
	}
}

// Handle runs prompt, generate, extract and persist for create events. Update and delete
// events are logged and acknowledged without touching stored recommendations.
func (h *RecommendationHandler) Handle(ctx context.Context, msg Message) error {
	evt := msg.Event
	if evt.Kind != events.KindCreate {
		h.logger.Info("activity event acknowledged without recommendation",
			"event_kind", evt.Kind, "activity_id", evt.ActivityID, "target_activity_id", evt.TargetActivityID)
		recordSkipped(msg)
		return nil
	}

	ctx, span := h.tracer.Start(ctx, "recommendation.process", trace.WithAttributes(
		attribute.String("activity.id", evt.ActivityID),
		attribute.String("activity.type", string(evt.ActivityType)),
		attribute.String("messaging.destination", msg.Queue),
		attribute.Int("messaging.replay_count", msg.ReplayCount),
	))
	defer span.End()

	rec, err := h.process(ctx, evt)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	span.SetAttributes(attribute.String("recommendation.id", rec.ID))
	observability.RecordRecommendationPersisted(rec.CreatedAt)
	h.logger.Info("recommendation stored",
		"recommendation_id", rec.ID, "activity_id", evt.ActivityID, "user_id", evt.UserID,
		"improvements", len(rec.Improvements), "suggestions", len(rec.Suggestions), "safety", len(rec.Safety))
	return nil
}

func (h *RecommendationHandler) process(ctx context.Context, evt events.ActivityEvent) (domain.Recommendation, error) {
	text := prompt.Build(prompt.FromEvent(evt))

	raw, err := h.generator.Generate(ctx, text)
	if err != nil {
		return domain.Recommendation{}, fmt.Errorf("generate recommendation for activity %s: %w", evt.ActivityID, err)
	}

	out := extract.Parse(raw)
	recordExtract(out.Kind)
	if !out.OK() {
		h.logger.Warn("generator response rejected", "activity_id", evt.ActivityID, "kind", out.Kind, "reason", out.Reason)
		return domain.Recommendation{}, Permanent(fmt.Errorf("extract recommendation for activity %s: %w", evt.ActivityID, out.Err()))
	}

	rec, err := h.recorder.Record(ctx, evt, out.Fields)
	if err != nil {
		return domain.Recommendation{}, err
	}
	return rec, nil
}
