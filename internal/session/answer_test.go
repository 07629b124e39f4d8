package session

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestAnswerValueUnmarshal(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		wantList bool
		wantStr  string
		wantVals []string
	}{
		{"string", `"Alice"`, false, "Alice", nil},
		{"empty string", `""`, false, "", nil},
		{"list", `["red","blue"]`, true, "", []string{"red", "blue"}},
		{"empty list", `[]`, true, "", []string{}},
		{"number treated as empty", `3`, false, "", nil},
		{"object treated as empty", `{"nested":true}`, false, "", nil},
		{"bool treated as empty", `true`, false, "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var v AnswerValue
			if err := json.Unmarshal([]byte(tt.raw), &v); err != nil {
				t.Fatalf("Unmarshal(%s): %v", tt.raw, err)
			}
			if v.IsList() != tt.wantList {
				t.Errorf("IsList() = %v, want %v", v.IsList(), tt.wantList)
			}
			if v.String() != tt.wantStr {
				t.Errorf("String() = %q, want %q", v.String(), tt.wantStr)
			}
			if !reflect.DeepEqual(v.List(), tt.wantVals) {
				t.Errorf("List() = %v, want %v", v.List(), tt.wantVals)
			}
		})
	}
}

func TestAnswerValueMarshalRoundTrip(t *testing.T) {
	for _, v := range []AnswerValue{StringValue("yes"), ListValue([]string{"a", "b"})} {
		data, err := json.Marshal(v)
		if err != nil {
			t.Fatal(err)
		}
		var back AnswerValue
		if err := json.Unmarshal(data, &back); err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(v, back) {
			t.Errorf("round trip %v -> %s -> %v", v, data, back)
		}
	}
}

func TestAnswerMatches(t *testing.T) {
	a := Answer{StepID: "step-1", StepName: "Guest name"}
	if !a.Matches("step-1") || !a.Matches("Guest name") {
		t.Error("should match by id and by name")
	}
	if a.Matches("other") {
		t.Error("should not match unrelated name")
	}
}

func TestSetActivePreservesSlots(t *testing.T) {
	cfg := OutcomeConfig{
		Active: OutcomePhoto,
		Photo:  &PhotoConfig{CaptureStepID: "cap"},
		AIImage: &AIImageConfig{
			CaptureStepID:  "cap",
			Model:          "gemini-2.5-flash-image",
			PromptTemplate: "hello",
		},
		GIF: map[string]any{"frameCount": float64(8)},
	}

	cfg.SetActive(OutcomeAIImage)
	cfg.SetActive(OutcomePhoto)

	if cfg.Photo == nil || cfg.Photo.CaptureStepID != "cap" {
		t.Errorf("photo slot lost: %+v", cfg.Photo)
	}
	if cfg.AIImage == nil || cfg.AIImage.Model != "gemini-2.5-flash-image" {
		t.Errorf("ai image slot lost: %+v", cfg.AIImage)
	}
	if cfg.GIF == nil {
		t.Error("gif slot lost")
	}
	if cfg.Active != OutcomePhoto {
		t.Errorf("active = %s", cfg.Active)
	}
}
