package state

import (
	"testing"
	"time"

	"github.com/ShayCichocki/squadron/pkg/models"
)

func TestCreateAndGetTask(t *testing.T) {
	db := setupTestDB(t)

	task := &models.Task{ID: "T-1", Project: "demo", Title: "Fix login", Description: "users bounce back to /login"}
	if err := db.CreateTask(task); err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	if task.Status != models.TaskStatusPending {
		t.Errorf("default status = %q, want pending", task.Status)
	}

	got, err := db.GetTask("T-1")
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if got == nil || got.Description != "users bounce back to /login" {
		t.Fatalf("GetTask = %+v", got)
	}

	missing, err := db.GetTask("T-404")
	if err != nil {
		t.Fatalf("GetTask(missing) failed: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for missing task")
	}
}

func TestGetNextReady_PriorityAndClaim(t *testing.T) {
	db := setupTestDB(t)

	now := time.Now()
	for _, task := range []*models.Task{
		{ID: "low", Project: "demo", Title: "low", Priority: 1, CreatedAt: now},
		{ID: "high", Project: "demo", Title: "high", Priority: 5, CreatedAt: now.Add(time.Second)},
		{ID: "other", Project: "elsewhere", Title: "other", Priority: 9, CreatedAt: now},
	} {
		if err := db.CreateTask(task); err != nil {
			t.Fatalf("CreateTask(%s) failed: %v", task.ID, err)
		}
	}

	first, err := db.GetNextReady("demo")
	if err != nil {
		t.Fatalf("GetNextReady failed: %v", err)
	}
	if first == nil || first.ID != "high" {
		t.Fatalf("first = %+v, want high", first)
	}
	if first.Status != models.TaskStatusInProgress {
		t.Errorf("claimed status = %q, want in_progress", first.Status)
	}

	second, err := db.GetNextReady("demo")
	if err != nil {
		t.Fatalf("GetNextReady failed: %v", err)
	}
	if second == nil || second.ID != "low" {
		t.Fatalf("second = %+v, want low", second)
	}

	third, err := db.GetNextReady("demo")
	if err != nil {
		t.Fatalf("GetNextReady failed: %v", err)
	}
	if third != nil {
		t.Errorf("expected empty queue for demo, got %+v", third)
	}

	anyProject, err := db.GetNextReady("")
	if err != nil {
		t.Fatalf("GetNextReady(any) failed: %v", err)
	}
	if anyProject == nil || anyProject.ID != "other" {
		t.Errorf("any-project claim = %+v, want other", anyProject)
	}
}

func TestCheckpointWithSession(t *testing.T) {
	db := setupTestDB(t)

	if err := db.CreateTask(&models.Task{ID: "T-1", Project: "demo", Title: "t"}); err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}

	id1, err := db.CheckpointWithSession("T-1", 1, models.VerdictFail, "SESSION-1", []byte(`{"phase":"iterating"}`))
	if err != nil {
		t.Fatalf("CheckpointWithSession failed: %v", err)
	}
	id2, err := db.CheckpointWithSession("T-1", 2, models.VerdictPass, "SESSION-1", nil)
	if err != nil {
		t.Fatalf("CheckpointWithSession failed: %v", err)
	}
	if id1 == id2 {
		t.Errorf("checkpoint IDs should differ, both %q", id1)
	}

	got, _ := db.GetTask("T-1")
	if got.Iteration != 2 || got.LastVerdict != models.VerdictPass || got.SessionID != "SESSION-1" {
		t.Errorf("task after checkpoint = %+v", got)
	}
}

func TestCheckpointWithSession_UnknownTask(t *testing.T) {
	db := setupTestDB(t)

	if _, err := db.CheckpointWithSession("ghost", 1, models.VerdictFail, "", nil); err == nil {
		t.Error("expected error for unknown task")
	}
}

func TestMarkCompleted(t *testing.T) {
	db := setupTestDB(t)

	if err := db.CreateTask(&models.Task{ID: "T-1", Project: "demo", Title: "t"}); err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	if err := db.MarkCompleted("T-1"); err != nil {
		t.Fatalf("MarkCompleted failed: %v", err)
	}

	got, _ := db.GetTask("T-1")
	if got.Status != models.TaskStatusDone {
		t.Errorf("status = %q, want done", got.Status)
	}
	if got.CompletedAt == nil {
		t.Error("CompletedAt should be set")
	}

	if err := db.MarkCompleted("ghost"); err == nil {
		t.Error("expected error completing unknown task")
	}
}

func TestSetTaskStatus(t *testing.T) {
	db := setupTestDB(t)

	if err := db.CreateTask(&models.Task{ID: "T-1", Project: "demo", Title: "t"}); err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	if err := db.SetTaskStatus("T-1", models.TaskStatusBlocked); err != nil {
		t.Fatalf("SetTaskStatus failed: %v", err)
	}
	if err := db.SetTaskStatus("T-1", models.TaskStatus("bogus")); err == nil {
		t.Error("expected error for invalid status")
	}

	blocked := models.TaskStatusBlocked
	tasks, err := db.ListTasks(&blocked)
	if err != nil {
		t.Fatalf("ListTasks failed: %v", err)
	}
	if len(tasks) != 1 {
		t.Errorf("len(blocked tasks) = %d, want 1", len(tasks))
	}
}
