package agent

import (
	"errors"
	"strings"

	"github.com/ShayCichocki/squadron/internal/checkpoint"
	"github.com/ShayCichocki/squadron/pkg/models"
)

// ErrInvalidTransition indicates an invalid state transition was attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

// Phase is where a specialist is in its loop. It is written to every
// checkpoint the specialist saves.
type Phase string

const (
	PhaseStartup   Phase = "startup"
	PhaseIterating Phase = "iterating"
	PhaseCompleted Phase = "completed"
	PhaseBlocked   Phase = "blocked"
	PhaseTimeout   Phase = "timeout"
	PhaseFailed    Phase = "failed"
)

// validTransitions defines the allowed phase transitions.
// Key is the current phase, value is the set of valid target phases.
var validTransitions = map[Phase]map[Phase]bool{
	PhaseStartup: {
		PhaseIterating: true,
		PhaseBlocked:   true,
		PhaseTimeout:   true,
		PhaseFailed:    true,
	},
	PhaseIterating: {
		PhaseIterating: true,
		PhaseCompleted: true,
		PhaseBlocked:   true,
		PhaseTimeout:   true,
		PhaseFailed:    true,
	},
	// Terminal phases cannot transition to anything else
	PhaseCompleted: {},
	PhaseBlocked:   {},
	PhaseTimeout:   {},
	PhaseFailed:    {},
}

// CanTransition checks if a phase transition is valid.
func CanTransition(from, to Phase) bool {
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// Terminal reports whether the phase ends the loop.
func (p Phase) Terminal() bool {
	targets, ok := validTransitions[p]
	return ok && len(targets) == 0
}

// phaseFor maps a terminal result status to its phase.
func phaseFor(s models.ResultStatus) Phase {
	switch s {
	case models.ResultCompleted:
		return PhaseCompleted
	case models.ResultBlocked:
		return PhaseBlocked
	case models.ResultTimeout:
		return PhaseTimeout
	default:
		return PhaseFailed
	}
}

// checkpointStatus maps a terminal result status to the stored status.
func checkpointStatus(s models.ResultStatus) checkpoint.Status {
	switch s {
	case models.ResultCompleted:
		return checkpoint.StatusCompleted
	case models.ResultBlocked:
		return checkpoint.StatusBlocked
	case models.ResultTimeout:
		return checkpoint.StatusTimeout
	default:
		return checkpoint.StatusFailed
	}
}

// resultStatus maps a settled checkpoint status back to a result status.
func resultStatus(s checkpoint.Status) models.ResultStatus {
	switch s {
	case checkpoint.StatusCompleted:
		return models.ResultCompleted
	case checkpoint.StatusBlocked:
		return models.ResultBlocked
	case checkpoint.StatusTimeout:
		return models.ResultTimeout
	default:
		return models.ResultFailed
	}
}

// verdictFor reconstructs a verdict from a settled checkpoint when the
// side-file has none.
func verdictFor(rec *checkpoint.Record) *models.Verdict {
	reason := strings.Join(rec.NextSteps, "\n")
	switch rec.Status {
	case checkpoint.StatusCompleted:
		return &models.Verdict{Type: models.VerdictPass, Reason: reason}
	case checkpoint.StatusBlocked:
		return models.BlockedVerdict(reason)
	case checkpoint.StatusTimeout:
		return &models.Verdict{Type: models.VerdictFail, Reason: reason}
	default:
		return models.FailedVerdict(rec.Error)
	}
}
