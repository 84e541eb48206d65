package models

// VerdictType is the outcome of one verification pass.
type VerdictType string

const (
	VerdictPass    VerdictType = "PASS"
	VerdictFail    VerdictType = "FAIL"
	VerdictBlocked VerdictType = "BLOCKED"
	VerdictFailed  VerdictType = "FAILED"
)

// Valid returns true if the verdict type is one of the four known values.
func (v VerdictType) Valid() bool {
	switch v {
	case VerdictPass, VerdictFail, VerdictBlocked, VerdictFailed:
		return true
	default:
		return false
	}
}

// VerdictStep is one check performed during verification.
type VerdictStep struct {
	Step   string `json:"step"`
	Passed bool   `json:"passed"`
	Output string `json:"output,omitempty"`
}

// Verdict is the result of a verification pass plus supporting detail.
type Verdict struct {
	// Type is PASS, FAIL, BLOCKED or FAILED.
	Type VerdictType `json:"type"`
	// Reason is a human-readable explanation.
	Reason string `json:"reason"`
	// SafeToMerge is set by verifiers that assess merge safety.
	SafeToMerge bool `json:"safe_to_merge"`
	// RegressionDetected is set when previously passing checks now fail.
	RegressionDetected bool `json:"regression_detected"`
	// Steps are the individual checks that were run.
	Steps []VerdictStep `json:"steps,omitempty"`
}

// BlockedVerdict returns a BLOCKED verdict with the given reason.
func BlockedVerdict(reason string) *Verdict {
	return &Verdict{Type: VerdictBlocked, Reason: reason}
}

// FailedVerdict returns a FAILED verdict with the given reason.
func FailedVerdict(reason string) *Verdict {
	return &Verdict{Type: VerdictFailed, Reason: reason}
}
