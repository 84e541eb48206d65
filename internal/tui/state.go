package tui

import (
	"fmt"
	"time"

	"github.com/ShayCichocki/squadron/internal/monitor"
	"github.com/ShayCichocki/squadron/pkg/models"
)

// Stage labels shown while the run is in flight.
const (
	StageStarting   = "starting"
	StageAnalyzing  = "analyzing"
	StageDispatched = "specialists running"
	StageSynthesis  = "synthesizing"
	StageVerified   = "verified"
	StageDone       = "done"
)

// SpecialistRow is the live state of one dispatched specialist.
type SpecialistRow struct {
	Type      models.SpecialistType
	SubTaskID string
	Title     string
	Iteration int
	Budget    int
	// Status is empty while the specialist is running.
	Status     string
	Verdict    models.VerdictType
	TokensUsed int64
	Cost       float64
	Error      string
}

// Running reports whether the specialist has not settled yet.
func (r *SpecialistRow) Running() bool {
	return r.Status == ""
}

// RunState aggregates monitor events for one task.
type RunState struct {
	TaskID      string
	Description string
	Stage       string
	Specialists []*SpecialistRow
	Verdict     models.VerdictType
	// Status and Reason are set by task_complete.
	Status     string
	Reason     string
	TokensUsed int64
	Cost       float64
	StartedAt  time.Time
}

// Counts returns how many specialists are running, passed and settled
// without passing.
func (s *RunState) Counts() (running, passed, other int) {
	for _, r := range s.Specialists {
		switch {
		case r.Running():
			running++
		case r.Status == string(models.ResultCompleted) && r.Verdict == models.VerdictPass:
			passed++
		default:
			other++
		}
	}
	return running, passed, other
}

// Apply folds ev into the state and returns the log line describing it.
// Events for other tasks are ignored and yield an empty line.
func (s *RunState) Apply(ev monitor.Event) string {
	if s.TaskID != "" && ev.TaskID != "" && ev.TaskID != s.TaskID {
		return ""
	}

	switch ev.Type {
	case monitor.EventTaskStart:
		s.TaskID = ev.TaskID
		s.Description = ev.Message
		s.Stage = StageStarting
		s.StartedAt = ev.Timestamp
		return "run started"

	case monitor.EventAnalysisStarted:
		s.Stage = StageAnalyzing
		return "analyzing task"

	case monitor.EventSpecialistStarted:
		s.Stage = StageDispatched
		row := s.row(ev.Specialist)
		row.SubTaskID = ev.SubTaskID
		row.Title = ev.Message
		row.Budget = ev.Budget
		return fmt.Sprintf("dispatched %s (budget %d)", ev.Specialist, ev.Budget)

	case monitor.EventSpecialistIteration:
		row := s.row(ev.Specialist)
		row.Iteration = ev.Iteration
		if ev.Budget > 0 {
			row.Budget = ev.Budget
		}
		row.Verdict = ev.Verdict
		s.addSpend(row, ev.TokensUsed, ev.Cost)
		return fmt.Sprintf("%s iteration %d/%d: %s", ev.Specialist, ev.Iteration, row.Budget, verdictLabel(ev.Verdict))

	case monitor.EventSpecialistCompleted:
		row := s.row(ev.Specialist)
		row.Status = ev.Status
		row.Verdict = ev.Verdict
		row.Iteration = ev.Iteration
		row.Error = ev.Message
		s.addSpend(row, ev.TokensUsed, ev.Cost)
		if ev.Message != "" {
			return fmt.Sprintf("%s %s: %s", ev.Specialist, ev.Status, ev.Message)
		}
		return fmt.Sprintf("%s %s", ev.Specialist, ev.Status)

	case monitor.EventSynthesisStarted:
		s.Stage = StageSynthesis
		return "synthesizing results"

	case monitor.EventVerificationDone:
		s.Stage = StageVerified
		s.Verdict = ev.Verdict
		return fmt.Sprintf("verification %s: %s", verdictLabel(ev.Verdict), ev.Message)

	case monitor.EventTaskComplete:
		s.Stage = StageDone
		s.Status = ev.Status
		s.Reason = ev.Message
		s.TokensUsed = ev.TokensUsed
		s.Cost = ev.Cost
		return fmt.Sprintf("run %s", ev.Status)
	}
	return ""
}

// addSpend replaces the row's running totals and recomputes the run totals,
// which are the sum of the rows until task_complete reports the ledger total.
func (s *RunState) addSpend(row *SpecialistRow, tokens int64, cost float64) {
	if tokens > row.TokensUsed {
		row.TokensUsed = tokens
	}
	if cost > row.Cost {
		row.Cost = cost
	}
	if s.Status != "" {
		return
	}
	s.TokensUsed, s.Cost = 0, 0
	for _, r := range s.Specialists {
		s.TokensUsed += r.TokensUsed
		s.Cost += r.Cost
	}
}

func (s *RunState) row(t models.SpecialistType) *SpecialistRow {
	for _, r := range s.Specialists {
		if r.Type == t {
			return r
		}
	}
	r := &SpecialistRow{Type: t}
	s.Specialists = append(s.Specialists, r)
	return r
}

func verdictLabel(v models.VerdictType) string {
	if v == "" {
		return "pending"
	}
	return string(v)
}
