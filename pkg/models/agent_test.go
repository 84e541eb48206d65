package models

import "testing"

func TestSpecialistType_Selectable(t *testing.T) {
	tests := []struct {
		st         SpecialistType
		selectable bool
		known      bool
	}{
		{SpecialistBugfix, true, true},
		{SpecialistFeatureBuilder, true, true},
		{SpecialistTestWriter, true, true},
		{SpecialistCodeQuality, true, true},
		{SpecialistAdvisor, true, true},
		{SpecialistDeployment, false, true},
		{SpecialistMigration, false, true},
		{SpecialistType("wizard"), false, false},
		{SpecialistType(""), false, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.st), func(t *testing.T) {
			if got := tt.st.Selectable(); got != tt.selectable {
				t.Errorf("Selectable() = %v, want %v", got, tt.selectable)
			}
			if got := tt.st.Known(); got != tt.known {
				t.Errorf("Known() = %v, want %v", got, tt.known)
			}
		})
	}
}

func TestResultStatus_Valid(t *testing.T) {
	for _, s := range []ResultStatus{ResultCompleted, ResultBlocked, ResultTimeout, ResultFailed} {
		if !s.Valid() {
			t.Errorf("ResultStatus(%q).Valid() = false, want true", s)
		}
	}
	if ResultStatus("done").Valid() {
		t.Error(`ResultStatus("done").Valid() = true, want false`)
	}
}

func TestSpecialistResult_Predicates(t *testing.T) {
	out := "patched"
	pass := SpecialistResult{Status: ResultCompleted, Verdict: &Verdict{Type: VerdictPass}, Output: &out}
	blocked := SpecialistResult{Status: ResultBlocked, Verdict: BlockedVerdict("no access")}
	failed := SpecialistResult{Status: ResultFailed}

	if !pass.Passed() || pass.Blocked() {
		t.Errorf("pass result: Passed=%v Blocked=%v", pass.Passed(), pass.Blocked())
	}
	if blocked.Passed() || !blocked.Blocked() {
		t.Errorf("blocked result: Passed=%v Blocked=%v", blocked.Passed(), blocked.Blocked())
	}
	if failed.Passed() || failed.Blocked() {
		t.Errorf("result without verdict should be neither passed nor blocked")
	}
	if pass.OutputText() != "patched" {
		t.Errorf("OutputText() = %q, want %q", pass.OutputText(), "patched")
	}
	if failed.OutputText() != "" {
		t.Errorf("OutputText() on nil output = %q, want empty", failed.OutputText())
	}
}

func TestVerdictType_Valid(t *testing.T) {
	tests := []struct {
		v    VerdictType
		want bool
	}{
		{VerdictPass, true},
		{VerdictFail, true},
		{VerdictBlocked, true},
		{VerdictFailed, true},
		{VerdictType("pass"), false},
		{VerdictType(""), false},
	}
	for _, tt := range tests {
		if got := tt.v.Valid(); got != tt.want {
			t.Errorf("VerdictType(%q).Valid() = %v, want %v", tt.v, got, tt.want)
		}
	}
}

func TestUsage(t *testing.T) {
	u := Usage{InputTokens: 10, OutputTokens: 5}.Add(Usage{InputTokens: 1, OutputTokens: 2, Model: "m"})
	if u.InputTokens != 11 || u.OutputTokens != 7 {
		t.Errorf("Add = %+v", u)
	}
	if u.Total() != 18 {
		t.Errorf("Total() = %d, want 18", u.Total())
	}
	if u.Model != "m" {
		t.Errorf("Model = %q, want m", u.Model)
	}
}
