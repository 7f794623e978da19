package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"example.com/recommendation/internal/events"
)

// Activity is the canonical workout record owned by the activity service.
type Activity struct {
	ID                string
	UserID            string
	Type              events.ActivityType
	DurationMin       int
	CaloriesBurned    int
	StartedAt         time.Time
	AdditionalMetrics map[string]interface{}
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Cursor models the pagination token: the sort timestamp and ID of the last item returned.
type Cursor struct {
	At time.Time
	ID string
}

// ActivityRepository captures persistence operations. Get returns nil, nil when the activity does not exist.
type ActivityRepository interface {
	Create(ctx context.Context, activity Activity) error
	Update(ctx context.Context, activity Activity) error
	Delete(ctx context.Context, activityID string) error
	Get(ctx context.Context, activityID string) (*Activity, error)
	ListByUser(ctx context.Context, userID string, cursor *Cursor, limit int) ([]Activity, *Cursor, error)
}

// EventPublisher publishes activity events after a local state change.
type EventPublisher interface {
	Publish(ctx context.Context, evt events.ActivityEvent) error
}

// ActivityInput is the caller-supplied part of an activity.
type ActivityInput struct {
	Type              string
	DurationMin       int
	CaloriesBurned    int
	StartedAt         time.Time
	AdditionalMetrics map[string]interface{}
}

// Validate checks the input and returns the parsed activity type.
func (in ActivityInput) Validate() (events.ActivityType, error) {
	var errs []error
	activityType, err := events.ParseActivityType(in.Type)
	if strings.TrimSpace(in.Type) == "" {
		errs = append(errs, errors.New("activity type is required"))
	} else if err != nil {
		errs = append(errs, err)
	}
	if in.DurationMin <= 0 {
		errs = append(errs, errors.New("duration must be greater than 0"))
	}
	if in.CaloriesBurned < 0 {
		errs = append(errs, errors.New("calories burned must be 0 or more"))
	}
	if in.StartedAt.IsZero() {
		errs = append(errs, errors.New("start time is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidActivity, err)
	}
	return activityType, nil
}

// Event builds the wire snapshot for a state change of a.
func (a Activity) Event(kind events.EventKind, eventID string, at time.Time) events.ActivityEvent {
	evt := events.ActivityEvent{
		EventID:           eventID,
		Kind:              kind,
		ActivityID:        a.ID,
		UserID:            a.UserID,
		ActivityType:      a.Type,
		DurationMin:       a.DurationMin,
		CaloriesBurned:    a.CaloriesBurned,
		StartedAt:         a.StartedAt,
		AdditionalMetrics: a.AdditionalMetrics,
		OccurredAt:        at,
	}
	if kind != events.KindCreate {
		evt.TargetActivityID = a.ID
	}
	return evt
}
