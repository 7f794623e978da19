package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseActivityTypeNormalises(t *testing.T) {
	got, err := ParseActivityType(" running ")
	require.NoError(t, err)
	require.Equal(t, ActivityRunning, got)

	_, err = ParseActivityType("skydiving")
	require.Error(t, err)
}

func TestActivityEventValidate(t *testing.T) {
	valid := ActivityEvent{
		Kind:           KindCreate,
		ActivityID:     "act-1",
		UserID:         "user-1",
		ActivityType:   ActivityCycling,
		DurationMin:    45,
		CaloriesBurned: 0,
		StartedAt:      time.Now().UTC(),
	}
	require.NoError(t, valid.Validate())

	bad := valid
	bad.DurationMin = 0
	bad.CaloriesBurned = -5
	err := bad.Validate()
	require.ErrorContains(t, err, "duration_min")
	require.ErrorContains(t, err, "calories_burned")

	del := ActivityEvent{Kind: KindDelete, ActivityID: "act-1", UserID: "user-1"}
	require.ErrorContains(t, del.Validate(), "target_activity_id")
	del.TargetActivityID = "act-1"
	require.NoError(t, del.Validate())
}
