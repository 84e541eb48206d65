package state

import (
	"testing"
	"time"
)

func newTestRun(id string, status RunStatus, startedAt time.Time) *Run {
	return &Run{
		ID:          id,
		TaskID:      "TASK-" + id,
		Project:     "demo",
		Description: "fix the login redirect",
		Status:      status,
		PID:         0,
		StartedAt:   startedAt,
	}
}

func TestCreateRun(t *testing.T) {
	db := setupTestDB(t)

	r := newTestRun("run-1", RunRunning, time.Now())
	if err := db.CreateRun(r); err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}

	got, err := db.GetRun("run-1")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got == nil {
		t.Fatal("GetRun returned nil")
	}
	if got.TaskID != "TASK-run-1" {
		t.Errorf("TaskID = %q, want %q", got.TaskID, "TASK-run-1")
	}
	if got.Status != RunRunning {
		t.Errorf("Status = %q, want %q", got.Status, RunRunning)
	}
	if got.CompletedAt != nil {
		t.Errorf("CompletedAt = %v, want nil", got.CompletedAt)
	}
}

func TestRun_BaselineRoundTrip(t *testing.T) {
	db := setupTestDB(t)

	r := newTestRun("run-1", RunRunning, time.Now())
	r.Baseline = "4b825dc642cb6eb9a060e54bf8d69288fbee4904"
	if err := db.CreateRun(r); err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}
	got, err := db.GetRun("run-1")
	if err != nil || got == nil {
		t.Fatalf("GetRun = %v, %v", got, err)
	}
	if got.Baseline != r.Baseline {
		t.Errorf("Baseline = %q, want %q", got.Baseline, r.Baseline)
	}

	got.Baseline = ""
	got.Status = RunInterrupted
	if err := db.UpdateRun(got); err != nil {
		t.Fatalf("UpdateRun failed: %v", err)
	}
	runs, err := db.ListRuns(nil)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 1 || runs[0].Baseline != "" {
		t.Errorf("ListRuns = %+v, want one run with an empty baseline", runs)
	}
}

func TestCreateRun_Duplicate(t *testing.T) {
	db := setupTestDB(t)

	if err := db.CreateRun(newTestRun("dup", RunRunning, time.Now())); err != nil {
		t.Fatalf("first CreateRun failed: %v", err)
	}
	if err := db.CreateRun(newTestRun("dup", RunRunning, time.Now())); err == nil {
		t.Error("expected error creating duplicate run")
	}
}

func TestGetRun_NotFound(t *testing.T) {
	db := setupTestDB(t)

	got, err := db.GetRun("missing")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for missing run, got %+v", got)
	}
}

func TestUpdateRun_TerminalStampsCompletion(t *testing.T) {
	db := setupTestDB(t)

	r := newTestRun("run-1", RunRunning, time.Now())
	if err := db.CreateRun(r); err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}

	r.Status = RunBlocked
	r.Reason = "validation rejected"
	r.TotalCost = 1.25
	if err := db.UpdateRun(r); err != nil {
		t.Fatalf("UpdateRun failed: %v", err)
	}

	got, err := db.GetRun("run-1")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got.Status != RunBlocked {
		t.Errorf("Status = %q, want %q", got.Status, RunBlocked)
	}
	if got.Reason != "validation rejected" {
		t.Errorf("Reason = %q", got.Reason)
	}
	if got.TotalCost != 1.25 {
		t.Errorf("TotalCost = %v, want 1.25", got.TotalCost)
	}
	if got.CompletedAt == nil {
		t.Error("terminal status should set CompletedAt")
	}
}

func TestListRuns(t *testing.T) {
	db := setupTestDB(t)

	base := time.Now().Add(-time.Hour)
	runs := []*Run{
		newTestRun("a", RunCompleted, base),
		newTestRun("b", RunRunning, base.Add(time.Minute)),
		newTestRun("c", RunRunning, base.Add(2*time.Minute)),
	}
	for _, r := range runs {
		if err := db.CreateRun(r); err != nil {
			t.Fatalf("CreateRun(%s) failed: %v", r.ID, err)
		}
	}

	all, err := db.ListRuns(nil)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("len(all) = %d, want 3", len(all))
	}
	if all[0].ID != "c" {
		t.Errorf("newest run first: got %q, want %q", all[0].ID, "c")
	}

	running := RunRunning
	filtered, err := db.ListRuns(&running)
	if err != nil {
		t.Fatalf("ListRuns(running) failed: %v", err)
	}
	if len(filtered) != 2 {
		t.Errorf("len(filtered) = %d, want 2", len(filtered))
	}
}

func TestPurgeOldRuns(t *testing.T) {
	db := setupTestDB(t)

	old := time.Now().Add(-48 * time.Hour)
	for _, r := range []*Run{
		newTestRun("old-done", RunCompleted, old),
		newTestRun("old-running", RunRunning, old),
		newTestRun("new-done", RunCompleted, time.Now()),
	} {
		if err := db.CreateRun(r); err != nil {
			t.Fatalf("CreateRun(%s) failed: %v", r.ID, err)
		}
	}

	n, err := db.PurgeOldRuns(24 * time.Hour)
	if err != nil {
		t.Fatalf("PurgeOldRuns failed: %v", err)
	}
	if n != 1 {
		t.Errorf("purged %d runs, want 1", n)
	}

	if got, _ := db.GetRun("old-running"); got == nil {
		t.Error("unfinished run should survive a purge")
	}
}

func TestRunStatus_Terminal(t *testing.T) {
	tests := []struct {
		status RunStatus
		want   bool
	}{
		{RunRunning, false},
		{RunInterrupted, false},
		{RunCompleted, true},
		{RunBlocked, true},
		{RunFailed, true},
		{RunResumed, true},
	}
	for _, tt := range tests {
		if got := tt.status.Terminal(); got != tt.want {
			t.Errorf("RunStatus(%q).Terminal() = %v, want %v", tt.status, got, tt.want)
		}
	}
}
