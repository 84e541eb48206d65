// Package monitor publishes run lifecycle notifications to subscribers such
// as the TUI and to Prometheus. Delivery is best effort.
package monitor

import (
	"time"

	"github.com/ShayCichocki/squadron/pkg/models"
)

// EventType represents the type of lifecycle event.
type EventType string

const (
	// EventTaskStart indicates an orchestration has started.
	EventTaskStart EventType = "task_start"
	// EventAnalysisStarted indicates task analysis has begun.
	EventAnalysisStarted EventType = "analysis_started"
	// EventSpecialistStarted indicates a specialist was dispatched.
	EventSpecialistStarted EventType = "specialist_started"
	// EventSpecialistIteration reports one checkpointed specialist iteration.
	EventSpecialistIteration EventType = "specialist_iteration"
	// EventSpecialistCompleted indicates a specialist settled.
	EventSpecialistCompleted EventType = "specialist_completed"
	// EventSynthesisStarted indicates synthesis has begun.
	EventSynthesisStarted EventType = "synthesis_started"
	// EventVerificationDone carries the final verdict.
	EventVerificationDone EventType = "verification_done"
	// EventTaskComplete indicates the orchestration reached a terminal status.
	EventTaskComplete EventType = "task_complete"
)

// Event is one lifecycle notification.
type Event struct {
	Type      EventType
	TaskID    string
	SubTaskID string
	// Specialist is set for specialist events.
	Specialist models.SpecialistType
	Iteration  int
	Budget     int
	// Status is the result or run status, when there is one.
	Status  string
	Verdict models.VerdictType
	Message string
	// TokensUsed and Cost are running totals for the subject of the event.
	TokensUsed int64
	Cost       float64
	Timestamp  time.Time
}
