// Package events defines the activity event payload carried between the activity service and the
// recommendation consumer.
package events

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// EventKind identifies the state change an ActivityEvent describes.
type EventKind string

const (
	KindCreate EventKind = "create"
	KindUpdate EventKind = "update"
	KindDelete EventKind = "delete"
)

// Kinds lists every event kind in binding order.
var Kinds = []EventKind{KindCreate, KindUpdate, KindDelete}

// Valid reports whether k is one of the known kinds.
func (k EventKind) Valid() bool {
	switch k {
	case KindCreate, KindUpdate, KindDelete:
		return true
	}
	return false
}

// ActivityType enumerates the supported workout categories.
type ActivityType string

const (
	ActivityRunning        ActivityType = "RUNNING"
	ActivityWalking        ActivityType = "WALKING"
	ActivityCycling        ActivityType = "CYCLING"
	ActivitySwimming       ActivityType = "SWIMMING"
	ActivityWeightTraining ActivityType = "WEIGHT_TRAINING"
	ActivityYoga           ActivityType = "YOGA"
	ActivityHIIT           ActivityType = "HIIT"
	ActivityCardio         ActivityType = "CARDIO"
	ActivityStretching     ActivityType = "STRETCHING"
	ActivityOther          ActivityType = "OTHER"
)

var activityTypes = map[ActivityType]struct{}{
	ActivityRunning:        {},
	ActivityWalking:        {},
	ActivityCycling:        {},
	ActivitySwimming:       {},
	ActivityWeightTraining: {},
	ActivityYoga:           {},
	ActivityHIIT:           {},
	ActivityCardio:         {},
	ActivityStretching:     {},
	ActivityOther:          {},
}

// ParseActivityType normalises raw into a known ActivityType.
func ParseActivityType(raw string) (ActivityType, error) {
	t := ActivityType(strings.ToUpper(strings.TrimSpace(raw)))
	if _, ok := activityTypes[t]; !ok {
		return "", fmt.Errorf("unknown activity type %q", raw)
	}
	return t, nil
}

// Valid reports whether t is a known activity type.
func (t ActivityType) Valid() bool {
	_, ok := activityTypes[t]
	return ok
}

// ActivityEvent is the JSON snapshot published after an activity state change.
type ActivityEvent struct {
	EventID           string                 `json:"event_id"`
	Kind              EventKind              `json:"event_kind"`
	ActivityID        string                 `json:"activity_id"`
	TargetActivityID  string                 `json:"target_activity_id,omitempty"`
	UserID            string                 `json:"user_id"`
	ActivityType      ActivityType           `json:"activity_type"`
	DurationMin       int                    `json:"duration_min"`
	CaloriesBurned    int                    `json:"calories_burned"`
	StartedAt         time.Time              `json:"started_at"`
	AdditionalMetrics map[string]interface{} `json:"additional_metrics,omitempty"`
	OccurredAt        time.Time              `json:"occurred_at"`
}

// Validate checks the fields a consumer relies on.
func (e ActivityEvent) Validate() error {
	var errs []error
	if !e.Kind.Valid() {
		errs = append(errs, fmt.Errorf("unknown event kind %q", e.Kind))
	}
	if strings.TrimSpace(e.ActivityID) == "" {
		errs = append(errs, errors.New("activity_id is required"))
	}
	if strings.TrimSpace(e.UserID) == "" {
		errs = append(errs, errors.New("user_id is required"))
	}
	if e.Kind == KindUpdate || e.Kind == KindDelete {
		if strings.TrimSpace(e.TargetActivityID) == "" {
			errs = append(errs, errors.New("target_activity_id is required for update and delete"))
		}
		return errors.Join(errs...)
	}
	if !e.ActivityType.Valid() {
		errs = append(errs, fmt.Errorf("unknown activity type %q", e.ActivityType))
	}
	if e.DurationMin < 1 {
		errs = append(errs, errors.New("duration_min must be >= 1"))
	}
	if e.CaloriesBurned < 0 {
		errs = append(errs, errors.New("calories_burned must be >= 0"))
	}
	return errors.Join(errs...)
}
