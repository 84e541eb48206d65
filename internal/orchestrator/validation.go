package orchestrator

import (
	"fmt"
	"strings"

	"github.com/ShayCichocki/squadron/pkg/models"
)

// DefaultQuorum is the minimum pass rate accepted by Validate.
const DefaultQuorum = 0.5

// Validate decides whether the specialist results justify synthesis. Checks
// run in order: a result claiming completion without verification rejects
// outright, all-blocked rejects, and a pass rate below quorum rejects. A
// quorum of zero or less uses DefaultQuorum.
func Validate(results []models.SpecialistResult, quorum float64) models.Validation {
	if quorum <= 0 {
		quorum = DefaultQuorum
	}

	v := models.Validation{Total: len(results)}
	for _, r := range results {
		switch {
		case r.Passed():
			v.Passed++
		case r.Blocked() || r.Status == models.ResultBlocked:
			v.Blocked++
		default:
			v.Failed++
		}
		if r.VerificationMissing {
			v.BypassDetected = true
			v.Bypassers = append(v.Bypassers, r.SpecialistType)
		}
	}
	if v.Total > 0 {
		v.PassRate = float64(v.Passed) / float64(v.Total)
	}

	switch {
	case v.BypassDetected:
		v.Reason = "verification bypass detected: " + joinTypes(v.Bypassers)
	case v.Total == 0:
		v.Reason = "no specialist results"
	case v.Blocked == v.Total:
		v.Reason = fmt.Sprintf("all %d specialists blocked", v.Total)
	case v.PassRate < quorum:
		v.Reason = fmt.Sprintf("pass rate %.2f below quorum %.2f: %d passed, %d blocked, %d failed of %d",
			v.PassRate, quorum, v.Passed, v.Blocked, v.Failed, v.Total)
	default:
		v.Accepted = true
		v.Reason = fmt.Sprintf("%d of %d specialists passed (pass rate %.2f)", v.Passed, v.Total, v.PassRate)
	}
	return v
}

func joinTypes(types []models.SpecialistType) string {
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}
	return strings.Join(names, ", ")
}
