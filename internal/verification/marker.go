package verification

import (
	"strings"

	"github.com/ShayCichocki/squadron/pkg/models"
)

// Default completion markers.
const (
	DefaultCompletionMarker = "TASK_COMPLETE"
	DefaultBlockedMarker    = "TASK_BLOCKED:"
)

// Markers reads explicit completion tokens from agent output.
type Markers struct {
	Completion string
	Blocked    string
}

// DefaultMarkers returns the standard marker pair.
func DefaultMarkers() Markers {
	return Markers{Completion: DefaultCompletionMarker, Blocked: DefaultBlockedMarker}
}

func (m Markers) withDefaults() Markers {
	if m.Completion == "" {
		m.Completion = DefaultCompletionMarker
	}
	if m.Blocked == "" {
		m.Blocked = DefaultBlockedMarker
	}
	return m
}

// Evaluate is the fallback verifier. A blocked marker wins over a completion
// marker; neither is FAIL.
func (m Markers) Evaluate(output string) *models.Verdict {
	m = m.withDefaults()

	if reason, ok := m.BlockReason(output); ok {
		return models.BlockedVerdict(reason)
	}
	if m.Complete(output) {
		return &models.Verdict{
			Type:   models.VerdictPass,
			Reason: "completion marker present",
			Steps:  []models.VerdictStep{{Step: "completion marker", Passed: true}},
		}
	}
	return &models.Verdict{
		Type:   models.VerdictFail,
		Reason: "completion marker not found",
		Steps:  []models.VerdictStep{{Step: "completion marker", Passed: false}},
	}
}

// Complete reports whether output declares completion.
func (m Markers) Complete(output string) bool {
	m = m.withDefaults()
	return strings.Contains(output, m.Completion)
}

// BlockReason returns the text after the blocked marker up to the end of
// its line.
func (m Markers) BlockReason(output string) (string, bool) {
	m = m.withDefaults()
	idx := strings.Index(output, m.Blocked)
	if idx < 0 {
		return "", false
	}
	rest := output[idx+len(m.Blocked):]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[:nl]
	}
	reason := strings.TrimSpace(rest)
	if reason == "" {
		reason = "specialist reported blocked"
	}
	return reason, true
}
