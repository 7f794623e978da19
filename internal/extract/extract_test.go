package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const schemaPayload = `{
  "analysis": {
    "overall": "Solid tempo effort",
    "pace": "Consistent 5:30/km",
    "heartRate": "Mostly zone 3",
    "caloriesBurned": "250 kcal is on target"
  },
  "improvements": [
    {"area": "Cadence", "recommendation": "Aim for 170 spm"},
    {"area": "Warm-up", "recommendation": "Add 10 minutes of easy jogging"}
  ],
  "suggestions": [
    {"workout": "Interval run", "description": "6 x 400m at 5k pace"}
  ],
  "safety": ["Stay hydrated", "Stop if you feel chest pain"]
}`

func envelope(text string) string {
	body, err := json.Marshal(map[string]interface{}{
		"candidates": []interface{}{
			map[string]interface{}{
				"content": map[string]interface{}{
					"parts": []interface{}{map[string]interface{}{"text": text}},
				},
			},
		},
	})
	if err != nil {
		panic(err)
	}
	return string(body)
}

func TestParseExactSchema(t *testing.T) {
	out := Parse(envelope(schemaPayload))
	require.True(t, out.OK(), out.Reason)
	require.NoError(t, out.Err())

	require.Equal(t, "Overall: Solid tempo effort\nPace: Consistent 5:30/km\nHeart Rate: Mostly zone 3\nCalories Burned: 250 kcal is on target", out.Fields.Analysis)
	require.Equal(t, []string{"Cadence: Aim for 170 spm", "Warm-up: Add 10 minutes of easy jogging"}, out.Fields.Improvements)
	require.Equal(t, []string{"Interval run: 6 x 400m at 5k pace"}, out.Fields.Suggestions)
	require.Equal(t, []string{"Stay hydrated", "Stop if you feel chest pain"}, out.Fields.Safety)
}

func TestParseIgnoresSurroundingProseAndFences(t *testing.T) {
	want := Parse(envelope(schemaPayload))
	require.True(t, want.OK())

	cases := map[string]string{
		"prose":          "Here is your analysis.\n" + schemaPayload + "\nLet me know if you need more.",
		"fence":          "```\n" + schemaPayload + "\n```",
		"language fence": "```json\n" + schemaPayload + "\n```",
		"padded fence":   "  \n```\n" + schemaPayload + "\n```\n  ",
	}
	for name, text := range cases {
		t.Run(name, func(t *testing.T) {
			got := Parse(envelope(text))
			require.Equal(t, want, got)
		})
	}
}

func TestParseEnvelopeFailures(t *testing.T) {
	cases := []struct {
		name   string
		raw    string
		reason string
	}{
		{"empty body", "   ", ReasonEmptyResponse},
		{"empty candidates", `{"candidates": []}`, ReasonNoCandidates},
		{"missing candidates", `{"promptFeedback": {}}`, ReasonNoCandidates},
		{"candidates not array", `{"candidates": {"content": {}}}`, ReasonNoCandidates},
		{"missing content", `{"candidates": [{}]}`, ReasonNoParts},
		{"empty parts", `{"candidates": [{"content": {"parts": []}}]}`, ReasonNoParts},
		{"missing text", `{"candidates": [{"content": {"parts": [{"inlineData": {}}]}}]}`, ReasonNoText},
		{"empty text", envelope(""), ReasonNoText},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out := Parse(tc.raw)
			require.Equal(t, EnvelopeError, out.Kind)
			require.Equal(t, tc.reason, out.Reason)
			require.Empty(t, out.Fields.Improvements)
		})
	}

	out := Parse("No response from generator API")
	require.Equal(t, EnvelopeError, out.Kind)
	require.True(t, strings.HasPrefix(out.Reason, "envelope is not valid JSON"))
}

func TestParseSchemaFailures(t *testing.T) {
	cases := map[string]string{
		"trailing comma":       `{"analysis": {"overall": "ok"},}`,
		"analysis not object":  `{"analysis": "great run"}`,
		"improvements scalars": `{"improvements": ["run more"]}`,
		"no known fields":      `{"summary": "nothing useful"}`,
		"not json":             "I could not analyse this activity.",
		"two objects":          `{"safety": ["a"]} then {"safety": ["b"]}`,
	}
	for name, text := range cases {
		t.Run(name, func(t *testing.T) {
			out := Parse(envelope(text))
			require.Equal(t, SchemaError, out.Kind, out.Reason)

			var extractErr *Error
			require.True(t, errors.As(out.Err(), &extractErr))
			require.Equal(t, SchemaError, extractErr.Kind)
		})
	}

	out := Parse(envelope("```\n\n```"))
	require.Equal(t, SchemaError, out.Kind)
	require.Equal(t, ReasonNoActivityData, out.Reason)
}

func TestParseTreatsBlankTextAsEnvelopeError(t *testing.T) {
	out := Parse(envelope("   \n  "))
	require.Equal(t, EnvelopeError, out.Kind)
	require.Equal(t, ReasonNoActivityData, out.Reason)
	require.Empty(t, out.Fields.Safety)
}

func TestParseKeepsEntriesVerbatim(t *testing.T) {
	text := `{
	  "improvements": [{"area": " Cadence ", "recommendation": "Shorten stride "}],
	  "suggestions": [{"workout": "Tempo", "description": " 20 min "}],
	  "safety": [" Hydrate ", "   "]
	}`
	out := Parse(envelope(text))
	require.True(t, out.OK(), out.Reason)
	require.Equal(t, []string{" Cadence : Shorten stride "}, out.Fields.Improvements)
	require.Equal(t, []string{"Tempo:  20 min "}, out.Fields.Suggestions)
	require.Equal(t, []string{" Hydrate "}, out.Fields.Safety)
}

func TestParseOmitsAbsentAnalysisFieldsAndBlankEntries(t *testing.T) {
	text := `{
	  "analysis": {"pace": "steady", "heartRate": 152},
	  "improvements": [{"area": "", "recommendation": ""}, {"area": "Form"}, null],
	  "suggestions": [{"workout": "  ", "description": " "}],
	  "safety": ["", "  ", "Wear reflective gear", 42, {"nested": true}]
	}`
	out := Parse(envelope(text))
	require.True(t, out.OK(), out.Reason)
	require.Equal(t, "Pace: steady\nHeart Rate: 152", out.Fields.Analysis)
	require.Equal(t, []string{"Form: "}, out.Fields.Improvements)
	require.NotNil(t, out.Fields.Suggestions)
	require.Empty(t, out.Fields.Suggestions)
	require.Equal(t, []string{"Wear reflective gear", "42"}, out.Fields.Safety)
}

func TestParseCapsLists(t *testing.T) {
	items := make([]string, 0, 15)
	safety := make([]string, 0, 15)
	for i := 0; i < 15; i++ {
		items = append(items, fmt.Sprintf(`{"area": "a%d", "recommendation": "r%d"}`, i, i))
		safety = append(safety, fmt.Sprintf(`"s%d"`, i))
	}
	text := fmt.Sprintf(`{"improvements": [%s], "safety": [%s]}`, strings.Join(items, ","), strings.Join(safety, ","))

	out := Parse(envelope(text))
	require.True(t, out.OK())
	require.Len(t, out.Fields.Improvements, MaxListEntries)
	require.Equal(t, "a9: r9", out.Fields.Improvements[9])
	require.Len(t, out.Fields.Safety, MaxListEntries)
	require.Empty(t, out.Fields.Analysis)
}
