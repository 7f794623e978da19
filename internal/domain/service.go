// Package domain defines the business logic for activities and their recommendations.
package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"example.com/recommendation/internal/events"
)

var (
	// ErrActivityNotFound is returned when an activity cannot be located.
	ErrActivityNotFound = errors.New("activity not found")
	// ErrForbidden is returned when the caller does not own the resource.
	ErrForbidden = errors.New("not the owner of this resource")
	// ErrInvalidActivity wraps validation failures.
	ErrInvalidActivity = errors.New("invalid activity")
	// ErrPublish is returned when the state change was stored but its event could not be published.
	ErrPublish = errors.New("activity event not published")
)

// ActivityService orchestrates activity workflows and publishes one event per successful change.
type ActivityService struct {
	repo      ActivityRepository
	publisher EventPublisher
	now       func() time.Time
}

// NewActivityService constructs an ActivityService.
func NewActivityService(repo ActivityRepository, publisher EventPublisher) *ActivityService {
	return &ActivityService{
		repo:      repo,
		publisher: publisher,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// CreateActivity stores a new activity and publishes a create event. When publishing fails the
// stored activity is returned together with an error wrapping ErrPublish.
func (s *ActivityService) CreateActivity(ctx context.Context, userID string, input ActivityInput) (*Activity, error) {
	activityType, err := input.Validate()
	if err != nil {
		return nil, err
	}

	now := s.now()
	activity := Activity{
		ID:                uuid.NewString(),
		UserID:            userID,
		Type:              activityType,
		DurationMin:       input.DurationMin,
		CaloriesBurned:    input.CaloriesBurned,
		StartedAt:         input.StartedAt.UTC(),
		AdditionalMetrics: input.AdditionalMetrics,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.repo.Create(ctx, activity); err != nil {
		return nil, fmt.Errorf("store activity: %w", err)
	}
	return &activity, s.publish(ctx, activity, events.KindCreate)
}

// UpdateActivity replaces the mutable fields of an owned activity and publishes an update event.
func (s *ActivityService) UpdateActivity(ctx context.Context, userID, activityID string, input ActivityInput) (*Activity, error) {
	activityType, err := input.Validate()
	if err != nil {
		return nil, err
	}
	activity, err := s.owned(ctx, userID, activityID)
	if err != nil {
		return nil, err
	}

	activity.Type = activityType
	activity.DurationMin = input.DurationMin
	activity.CaloriesBurned = input.CaloriesBurned
	activity.StartedAt = input.StartedAt.UTC()
	activity.AdditionalMetrics = input.AdditionalMetrics
	activity.UpdatedAt = s.now()

	if err := s.repo.Update(ctx, *activity); err != nil {
		return nil, fmt.Errorf("update activity: %w", err)
	}
	return activity, s.publish(ctx, *activity, events.KindUpdate)
}

// DeleteActivity removes an owned activity and publishes a delete event carrying its last snapshot.
func (s *ActivityService) DeleteActivity(ctx context.Context, userID, activityID string) error {
	activity, err := s.owned(ctx, userID, activityID)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, activityID); err != nil {
		return fmt.Errorf("delete activity: %w", err)
	}
	return s.publish(ctx, *activity, events.KindDelete)
}

// GetActivity fetches an owned activity by ID.
func (s *ActivityService) GetActivity(ctx context.Context, userID, activityID string) (*Activity, error) {
	return s.owned(ctx, userID, activityID)
}

// ListActivities fetches the caller's activities with cursor pagination.
func (s *ActivityService) ListActivities(ctx context.Context, userID string, cursor *Cursor, limit int) ([]Activity, *Cursor, error) {
	return s.repo.ListByUser(ctx, userID, cursor, limit)
}

func (s *ActivityService) owned(ctx context.Context, userID, activityID string) (*Activity, error) {
	activity, err := s.repo.Get(ctx, activityID)
	if err != nil {
		return nil, err
	}
	if activity == nil {
		return nil, ErrActivityNotFound
	}
	if activity.UserID != userID {
		return nil, ErrForbidden
	}
	return activity, nil
}

func (s *ActivityService) publish(ctx context.Context, activity Activity, kind events.EventKind) error {
	evt := activity.Event(kind, uuid.NewString(), s.now())
	if err := s.publisher.Publish(ctx, evt); err != nil {
		return fmt.Errorf("%w: %w", ErrPublish, err)
	}
	return nil
}
