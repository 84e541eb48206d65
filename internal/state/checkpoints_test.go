package state

import (
	"testing"
	"time"
)

func entry(taskID string, n, iter int) CheckpointEntry {
	return CheckpointEntry{
		TaskID:         taskID,
		Project:        "demo",
		Number:         n,
		Path:           "/tmp/" + taskID,
		SessionID:      "SESSION-1",
		IterationCount: iter,
		Phase:          "iterating",
		Status:         "in_progress",
		AgentType:      "bugfix",
		CreatedAt:      time.Now(),
	}
}

func TestRecordCheckpoint_LatestAndMax(t *testing.T) {
	db := setupTestDB(t)

	for i := 1; i <= 3; i++ {
		if err := db.RecordCheckpoint(entry("T-1", i, i-1)); err != nil {
			t.Fatalf("RecordCheckpoint(%d) failed: %v", i, err)
		}
	}

	latest, err := db.LatestCheckpoint("T-1", "demo")
	if err != nil {
		t.Fatalf("LatestCheckpoint failed: %v", err)
	}
	if latest == nil || latest.Number != 3 {
		t.Fatalf("latest = %+v, want number 3", latest)
	}
	if latest.AgentType != "bugfix" {
		t.Errorf("AgentType = %q, want bugfix", latest.AgentType)
	}

	max, err := db.MaxCheckpointNumber("T-1", "demo")
	if err != nil {
		t.Fatalf("MaxCheckpointNumber failed: %v", err)
	}
	if max != 3 {
		t.Errorf("max = %d, want 3", max)
	}
}

func TestRecordCheckpoint_DuplicateNumberRejected(t *testing.T) {
	db := setupTestDB(t)

	if err := db.RecordCheckpoint(entry("T-1", 1, 0)); err != nil {
		t.Fatalf("RecordCheckpoint failed: %v", err)
	}
	if err := db.RecordCheckpoint(entry("T-1", 1, 0)); err == nil {
		t.Error("expected error for duplicate checkpoint number")
	}
}

func TestLatestCheckpoint_None(t *testing.T) {
	db := setupTestDB(t)

	latest, err := db.LatestCheckpoint("nope", "demo")
	if err != nil {
		t.Fatalf("LatestCheckpoint failed: %v", err)
	}
	if latest != nil {
		t.Errorf("expected nil, got %+v", latest)
	}

	max, err := db.MaxCheckpointNumber("nope", "demo")
	if err != nil {
		t.Fatalf("MaxCheckpointNumber failed: %v", err)
	}
	if max != 0 {
		t.Errorf("max = %d, want 0", max)
	}
}

func TestArchiveCheckpoint(t *testing.T) {
	db := setupTestDB(t)

	for i := 1; i <= 2; i++ {
		if err := db.RecordCheckpoint(entry("T-1", i, i)); err != nil {
			t.Fatalf("RecordCheckpoint failed: %v", err)
		}
	}

	if err := db.ArchiveCheckpoint("T-1", "demo", 2, "/tmp/archive/T-1"); err != nil {
		t.Fatalf("ArchiveCheckpoint failed: %v", err)
	}

	latest, err := db.LatestCheckpoint("T-1", "demo")
	if err != nil {
		t.Fatalf("LatestCheckpoint failed: %v", err)
	}
	if latest == nil || latest.Number != 1 {
		t.Errorf("latest active = %+v, want number 1", latest)
	}

	max, _ := db.MaxCheckpointNumber("T-1", "demo")
	if max != 2 {
		t.Errorf("archived numbers still count toward max: got %d, want 2", max)
	}

	all, err := db.ListCheckpoints("T-1", "demo")
	if err != nil {
		t.Fatalf("ListCheckpoints failed: %v", err)
	}
	if len(all) != 2 || !all[1].Archived || all[1].Path != "/tmp/archive/T-1" {
		t.Errorf("unexpected list after archive: %+v", all)
	}
}

func TestDeleteCheckpoints(t *testing.T) {
	db := setupTestDB(t)

	if err := db.RecordCheckpoint(entry("T-1", 1, 0)); err != nil {
		t.Fatalf("RecordCheckpoint failed: %v", err)
	}
	if err := db.RecordCheckpoint(entry("T-2", 1, 0)); err != nil {
		t.Fatalf("RecordCheckpoint failed: %v", err)
	}

	if err := db.DeleteCheckpoints("T-1", "demo"); err != nil {
		t.Fatalf("DeleteCheckpoints failed: %v", err)
	}

	all, _ := db.ListCheckpoints("T-1", "demo")
	if len(all) != 0 {
		t.Errorf("expected no checkpoints for T-1, got %d", len(all))
	}

	tasks, err := db.ListCheckpointTasks("demo")
	if err != nil {
		t.Fatalf("ListCheckpointTasks failed: %v", err)
	}
	if len(tasks) != 1 || tasks[0] != "T-2" {
		t.Errorf("tasks = %v, want [T-2]", tasks)
	}
}
