// Package extract turns raw text-generation responses into structured recommendation fields.
//
// The generator wraps its answer in an envelope (candidates/content/parts/text) and the inner text is
// only nominally JSON: it may be fenced in markdown or surrounded by prose. Parse is permissive at the
// envelope and formatting stages and strict at the final schema stage.
package extract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// MaxListEntries caps each recommendation list.
const MaxListEntries = 10

// Diagnostics reported for anticipated malformations.
const (
	ReasonEmptyResponse  = "empty response"
	ReasonNoCandidates   = "no candidates found in response"
	ReasonNoParts        = "no parts found in response"
	ReasonNoText         = "no text found in generator response"
	ReasonNoActivityData = "no activity data found in response"
	ReasonNoFields       = "no recommendation fields in payload"
)

// Kind tags the variant held by an Outcome.
type Kind int

const (
	Success Kind = iota
	EnvelopeError
	SchemaError
)

func (k Kind) String() string {
	switch k {
	case Success:
		return "success"
	case EnvelopeError:
		return "envelope_error"
	case SchemaError:
		return "schema_error"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Fields holds the flattened recommendation content.
type Fields struct {
	Analysis     string
	Improvements []string
	Suggestions  []string
	Safety       []string
}

// Outcome is the result of Parse. Fields is populated only for Success; Reason only for failures.
type Outcome struct {
	Kind   Kind
	Fields Fields
	Reason string
}

// OK reports whether the outcome is a Success.
func (o Outcome) OK() bool { return o.Kind == Success }

// Err converts a failed outcome into an *Error. It returns nil for Success.
func (o Outcome) Err() error {
	if o.Kind == Success {
		return nil
	}
	return &Error{Kind: o.Kind, Reason: o.Reason}
}

// Error describes a stage failure.
type Error struct {
	Kind   Kind
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("extract %s: %s", e.Kind, e.Reason)
}

func envelopeErr(reason string) Outcome { return Outcome{Kind: EnvelopeError, Reason: reason} }
func schemaErr(reason string) Outcome   { return Outcome{Kind: SchemaError, Reason: reason} }

// Parse runs the staged extraction over a raw generator response body.
func Parse(raw string) Outcome {
	text, failed := envelopeText(raw)
	if failed != nil {
		return *failed
	}

	// Blank text is an envelope failure; a fence around nothing reaches the schema stage.
	if strings.TrimSpace(text) == "" {
		return envelopeErr(ReasonNoActivityData)
	}
	cleaned := sliceBraces(stripFence(strings.TrimSpace(text)))
	if cleaned == "" {
		return schemaErr(ReasonNoActivityData)
	}

	var p payload
	dec := json.NewDecoder(strings.NewReader(cleaned))
	if err := dec.Decode(&p); err != nil {
		return schemaErr("invalid recommendation payload: " + err.Error())
	}
	if dec.More() {
		return schemaErr("invalid recommendation payload: trailing data after object")
	}
	if p.Analysis == nil && p.Improvements == nil && p.Suggestions == nil && p.Safety == nil {
		return schemaErr(ReasonNoFields)
	}

	return Outcome{Kind: Success, Fields: Fields{
		Analysis:     flattenAnalysis(p.Analysis),
		Improvements: pairs(p.Improvements, "area", "recommendation"),
		Suggestions:  pairs(p.Suggestions, "workout", "description"),
		Safety:       scalars(p.Safety),
	}}
}

// envelopeText walks candidates[0].content.parts[0].text.
func envelopeText(raw string) (string, *Outcome) {
	fail := func(reason string) (string, *Outcome) {
		o := envelopeErr(reason)
		return "", &o
	}

	if strings.TrimSpace(raw) == "" {
		return fail(ReasonEmptyResponse)
	}

	var root map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &root); err != nil {
		return fail("envelope is not valid JSON: " + err.Error())
	}

	var candidates []json.RawMessage
	if err := json.Unmarshal(root["candidates"], &candidates); err != nil || len(candidates) == 0 {
		return fail(ReasonNoCandidates)
	}

	var parts []json.RawMessage
	if err := json.Unmarshal(field(field(candidates[0], "content"), "parts"), &parts); err != nil || len(parts) == 0 {
		return fail(ReasonNoParts)
	}

	text := scalarText(field(parts[0], "text"))
	if text == "" {
		return fail(ReasonNoText)
	}
	return text, nil
}

// field returns the named member of a JSON object, or nil when raw is not an object or lacks it.
func field(raw json.RawMessage, name string) json.RawMessage {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil
	}
	return obj[name]
}

func stripFence(text string) string {
	const fence = "```"
	if len(text) > 2*len(fence) && strings.HasPrefix(text, fence) && strings.HasSuffix(text, fence) {
		return strings.TrimSpace(text[len(fence) : len(text)-len(fence)])
	}
	return text
}

func sliceBraces(text string) string {
	first := strings.IndexByte(text, '{')
	last := strings.LastIndexByte(text, '}')
	if first != -1 && last != -1 && last > first {
		return text[first : last+1]
	}
	return text
}

type payload struct {
	Analysis     map[string]json.RawMessage   `json:"analysis"`
	Improvements []map[string]json.RawMessage `json:"improvements"`
	Suggestions  []map[string]json.RawMessage `json:"suggestions"`
	Safety       []json.RawMessage            `json:"safety"`
}

var analysisLabels = []struct{ key, label string }{
	{"overall", "Overall"},
	{"pace", "Pace"},
	{"heartRate", "Heart Rate"},
	{"caloriesBurned", "Calories Burned"},
}

func flattenAnalysis(analysis map[string]json.RawMessage) string {
	var b strings.Builder
	for _, l := range analysisLabels {
		value, ok := analysis[l.key]
		if !ok {
			continue
		}
		b.WriteString(l.label)
		b.WriteString(": ")
		b.WriteString(scalarText(value))
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}

func pairs(items []map[string]json.RawMessage, left, right string) []string {
	out := make([]string, 0, min(len(items), MaxListEntries))
	for _, item := range items {
		if len(out) == MaxListEntries {
			break
		}
		l, r := scalarText(item[left]), scalarText(item[right])
		if strings.TrimSpace(l) == "" && strings.TrimSpace(r) == "" {
			continue
		}
		out = append(out, l+": "+r)
	}
	return out
}

func scalars(items []json.RawMessage) []string {
	out := make([]string, 0, min(len(items), MaxListEntries))
	for _, item := range items {
		if len(out) == MaxListEntries {
			break
		}
		if text := scalarText(item); strings.TrimSpace(text) != "" {
			out = append(out, text)
		}
	}
	return out
}

// scalarText renders a JSON scalar as text: strings unquoted, numbers and booleans verbatim.
// Null, missing values, objects and arrays render as "".
func scalarText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return s
	case '{', '[', 'n':
		return ""
	default:
		return string(raw)
	}
}
