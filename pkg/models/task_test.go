package models

import (
	"encoding/json"
	"testing"
)

func TestTaskStatus_Valid(t *testing.T) {
	tests := []struct {
		name   string
		status TaskStatus
		want   bool
	}{
		{"pending is valid", TaskStatusPending, true},
		{"in_progress is valid", TaskStatusInProgress, true},
		{"blocked is valid", TaskStatusBlocked, true},
		{"done is valid", TaskStatusDone, true},
		{"failed is valid", TaskStatusFailed, true},
		{"empty string is invalid", TaskStatus(""), false},
		{"unknown status is invalid", TaskStatus("unknown"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.status.Valid(); got != tt.want {
				t.Errorf("TaskStatus(%q).Valid() = %v, want %v", tt.status, got, tt.want)
			}
		})
	}
}

func TestComplexity_Valid(t *testing.T) {
	tests := []struct {
		c    Complexity
		want bool
	}{
		{ComplexityLow, true},
		{ComplexityMedium, true},
		{ComplexityHigh, true},
		{Complexity(""), false},
		{Complexity("extreme"), false},
	}

	for _, tt := range tests {
		if got := tt.c.Valid(); got != tt.want {
			t.Errorf("Complexity(%q).Valid() = %v, want %v", tt.c, got, tt.want)
		}
	}
}

func TestSubTaskID(t *testing.T) {
	if got := SubTaskID("TASK-7", SpecialistBugfix); got != "TASK-7-bugfix" {
		t.Errorf("SubTaskID = %q, want %q", got, "TASK-7-bugfix")
	}
}

func TestTaskAnalysis_JSONFieldNames(t *testing.T) {
	a := TaskAnalysis{
		Challenges:             []string{"c"},
		RecommendedSpecialists: []string{"bugfix"},
		SubtaskBreakdown:       []string{"s"},
		RiskFactors:            []string{"r"},
		Complexity:             ComplexityMedium,
	}

	data, err := json.Marshal(a)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"challenges", "recommended_specialists", "subtask_breakdown", "risk_factors", "complexity"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("missing JSON key %q in %s", key, data)
		}
	}
	if _, ok := raw["source"]; ok {
		t.Errorf("empty source should be omitted, got %s", data)
	}
}
