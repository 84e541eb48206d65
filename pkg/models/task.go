package models

import "time"

// TaskStatus represents the current state of a queued task.
type TaskStatus string

const (
	// TaskStatusPending indicates the task has not started.
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusInProgress indicates the task is being worked on.
	TaskStatusInProgress TaskStatus = "in_progress"
	// TaskStatusBlocked indicates the task cannot proceed.
	TaskStatusBlocked TaskStatus = "blocked"
	// TaskStatusDone indicates the task completed successfully.
	TaskStatusDone TaskStatus = "done"
	// TaskStatusFailed indicates the task failed.
	TaskStatusFailed TaskStatus = "failed"
)

// Valid returns true if the status is a known value.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusInProgress, TaskStatusBlocked, TaskStatusDone, TaskStatusFailed:
		return true
	default:
		return false
	}
}

// Task represents a unit of work pulled from the work queue.
type Task struct {
	// ID is the unique identifier for this task.
	ID string `json:"id"`
	// Project is the project the task belongs to.
	Project string `json:"project"`
	// Title is the short description of the task.
	Title string `json:"title"`
	// Description is the full task text handed to the team lead.
	Description string `json:"description,omitempty"`
	// Status is the current state of the task.
	Status TaskStatus `json:"status"`
	// Priority orders ready tasks; higher runs first.
	Priority int `json:"priority,omitempty"`
	// Iteration is the last iteration checkpointed against this task.
	Iteration int `json:"iteration,omitempty"`
	// LastVerdict is the verdict recorded with the last checkpoint.
	LastVerdict VerdictType `json:"last_verdict,omitempty"`
	// SessionID links the task to its latest session checkpoint.
	SessionID string `json:"session_id,omitempty"`
	// CreatedAt is when the task was created.
	CreatedAt time.Time `json:"created_at"`
	// CompletedAt is when the task was completed, if applicable.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Complexity is the team lead's estimate of how hard a task is.
type Complexity string

const (
	ComplexityLow    Complexity = "low"
	ComplexityMedium Complexity = "medium"
	ComplexityHigh   Complexity = "high"
)

// Valid returns true if the complexity is a known value.
func (c Complexity) Valid() bool {
	switch c {
	case ComplexityLow, ComplexityMedium, ComplexityHigh:
		return true
	default:
		return false
	}
}

// AnalysisSource records which strategy produced a TaskAnalysis.
type AnalysisSource string

const (
	AnalysisSourceHeuristic AnalysisSource = "heuristic"
	AnalysisSourceProvider  AnalysisSource = "provider"
)

// TaskAnalysis is produced once per orchestration run and never mutated.
type TaskAnalysis struct {
	// Challenges are the notable difficulties spotted in the task text.
	Challenges []string `json:"challenges"`
	// RecommendedSpecialists are specialist type names, unfiltered.
	RecommendedSpecialists []string `json:"recommended_specialists"`
	// SubtaskBreakdown is a short list of work items.
	SubtaskBreakdown []string `json:"subtask_breakdown"`
	// RiskFactors lists things that could go wrong.
	RiskFactors []string `json:"risk_factors"`
	// Complexity is low, medium or high.
	Complexity Complexity `json:"complexity"`
	// Source is the strategy that produced this analysis.
	Source AnalysisSource `json:"source,omitempty"`
}

// SubTask is the unit of work handed to exactly one specialist.
type SubTask struct {
	// ID is deterministic per task and specialist type so restarts find prior checkpoints.
	ID string `json:"id"`
	// TaskID is the parent task.
	TaskID string `json:"task_id"`
	// Project is the project the parent task belongs to.
	Project string `json:"project"`
	// SpecialistType selects the specialist that executes this subtask.
	SpecialistType SpecialistType `json:"specialist_type"`
	// Title is the specialist-specific short description.
	Title string `json:"title"`
	// Description is what the specialist should do.
	Description string `json:"description"`
	// Context is the full original task text.
	Context string `json:"context"`
	// Dependencies lists subtask IDs this one waits on.
	Dependencies []string `json:"dependencies,omitempty"`
	// Priority orders subtasks; lower runs first.
	Priority int `json:"priority"`
	// Resume marks a subtask dispatched by a resumed run. Its specialist may
	// stand on a result settled before the interruption.
	Resume bool `json:"resume,omitempty"`
}

// SubTaskID returns the deterministic subtask ID for a task and specialist type.
func SubTaskID(taskID string, t SpecialistType) string {
	return taskID + "-" + string(t)
}
