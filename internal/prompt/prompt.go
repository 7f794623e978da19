// Package prompt renders the generation request for an activity.
package prompt

import (
	"encoding/json"
	"fmt"

	"example.com/recommendation/internal/events"
)

// schema is the output contract the generator is asked to follow. Activity fields are rendered after
// it and never inside it.
const schema = `{
  "analysis": {
    "overall": "Overall analysis here",
    "pace": "Pace analysis here",
    "heartRate": "Heart rate analysis here",
    "caloriesBurned": "Calories analysis here"
  },
  "improvements": [
    {
      "area": "Area name",
      "recommendation": "Detailed recommendation"
    }
  ],
  "suggestions": [
    {
      "workout": "Workout name",
      "description": "Detailed workout description"
    }
  ],
  "safety": [
    "Safety point 1",
    "Safety point 2"
  ]
}`

const template = `Analyze this fitness activity and provide detailed recommendations in the following EXACT JSON format:
%s

Analyze this activity:
Activity Type: %s
Duration: %d minutes
Calories Burned: %d
Additional Metrics: %s
Provide detailed analysis focusing on performance, improvements, next workout suggestions, and safety guidelines.
Ensure the response follows the EXACT JSON format shown above.
`

// Input is the activity snapshot the prompt is built from.
type Input struct {
	ActivityType      events.ActivityType
	DurationMin       int
	CaloriesBurned    int
	AdditionalMetrics map[string]interface{}
}

// FromEvent projects the prompt input out of an activity event.
func FromEvent(evt events.ActivityEvent) Input {
	return Input{
		ActivityType:      evt.ActivityType,
		DurationMin:       evt.DurationMin,
		CaloriesBurned:    evt.CaloriesBurned,
		AdditionalMetrics: evt.AdditionalMetrics,
	}
}

// Build renders the prompt text.
func Build(in Input) string {
	return fmt.Sprintf(template, schema, in.ActivityType, in.DurationMin, in.CaloriesBurned, renderMetrics(in.AdditionalMetrics))
}

// renderMetrics emits the metrics as compact JSON; encoding/json sorts map keys.
func renderMetrics(metrics map[string]interface{}) string {
	if len(metrics) == 0 {
		return "{}"
	}
	body, err := json.Marshal(metrics)
	if err != nil {
		return fmt.Sprintf("%v", metrics)
	}
	return string(body)
}
