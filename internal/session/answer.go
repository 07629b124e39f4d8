// Package session defines the guest-session data model consumed by the
// transform pipeline: step answers, media references, outcome configuration,
// and the frozen job snapshot. The admin product writes these records; the
// pipeline only reads them, so every type here is tolerant of legacy shapes.
package session

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"
)

// Step type discriminators for guest answers.
const (
	StepScale       = "input.scale"
	StepYesNo       = "input.yesNo"
	StepShortText   = "input.shortText"
	StepLongText    = "input.longText"
	StepMultiSelect = "input.multiSelect"
	StepCapture     = "capture.photo"
)

// AnswerValue holds a guest response value: either a single string or an
// ordered list of strings. Numeric scales and yes/no choices are stored as
// their string representation ("3", "yes"), never as numbers or booleans.
type AnswerValue struct {
	str  string
	list []string
	many bool
}

// StringValue creates a single-string answer value.
func StringValue(s string) AnswerValue {
	return AnswerValue{str: s}
}

// ListValue creates an ordered multi-string answer value.
func ListValue(items []string) AnswerValue {
	return AnswerValue{list: items, many: true}
}

// IsList reports whether the value is a list of strings.
func (v AnswerValue) IsList() bool { return v.many }

// String returns the single-string form. For list values it returns the
// empty string; callers that expect a list use List instead.
func (v AnswerValue) String() string { return v.str }

// List returns the ordered list form. For single values it returns nil.
func (v AnswerValue) List() []string { return v.list }

// UnmarshalJSON accepts either a JSON string or an array of strings. Any
// other shape is logged and treated as the empty string; a malformed answer
// must never abort prompt resolution.
func (v *AnswerValue) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*v = StringValue(s)
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*v = ListValue(list)
		return nil
	}
	log.Warn().
		Str("raw", truncate(string(data), 120)).
		Msg("Answer value is neither string nor string list, treating as empty")
	*v = StringValue("")
	return nil
}

// MarshalJSON writes the list form when the value is a list, else the string form.
func (v AnswerValue) MarshalJSON() ([]byte, error) {
	if v.many {
		return json.Marshal(v.list)
	}
	return json.Marshal(v.str)
}

// SelectedOption is one chosen option of a multi-select step. Options may
// carry an author-supplied prompt fragment and/or an attached media reference
// that takes precedence over the raw value during prompt resolution.
type SelectedOption struct {
	Value          string          `json:"value" dynamodbav:"value"`
	PromptFragment string          `json:"promptFragment,omitempty" dynamodbav:"promptFragment,omitempty"`
	PromptMedia    *MediaReference `json:"promptMedia,omitempty" dynamodbav:"promptMedia,omitempty"`
}

// AnswerContext is opaque step-specific structured data attached to an answer.
// Only multi-select options are interpreted by the pipeline today.
type AnswerContext struct {
	SelectedOptions []SelectedOption `json:"selectedOptions,omitempty" dynamodbav:"selectedOptions,omitempty"`
}

// Answer is one guest response to a configured step.
type Answer struct {
	StepID   string         `json:"stepId" dynamodbav:"stepId"`
	StepName string         `json:"stepName,omitempty" dynamodbav:"stepName,omitempty"`
	StepType string         `json:"stepType" dynamodbav:"stepType"`
	Value    AnswerValue    `json:"value" dynamodbav:"value"`
	Context  *AnswerContext `json:"context,omitempty" dynamodbav:"context,omitempty"`

	// CapturedMedia holds the uploaded items for capture steps.
	CapturedMedia []MediaReference `json:"capturedMedia,omitempty" dynamodbav:"capturedMedia,omitempty"`
}

// Matches reports whether the answer belongs to the given step name or id.
// Prompt templates address steps by name; older templates used the raw id.
func (a *Answer) Matches(nameOrID string) bool {
	return a.StepName == nameOrID || a.StepID == nameOrID
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// String implements fmt.Stringer for debug logging.
func (a *Answer) String() string {
	if a.Value.IsList() {
		return fmt.Sprintf("%s(%s)=%v", a.StepType, a.StepID, a.Value.List())
	}
	return fmt.Sprintf("%s(%s)=%q", a.StepType, a.StepID, a.Value.String())
}
