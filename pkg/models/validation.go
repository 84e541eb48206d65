package models

// Validation is the outcome of the admission check run on specialist
// results before synthesis.
type Validation struct {
	Accepted bool    `json:"accepted"`
	Reason   string  `json:"reason"`
	PassRate float64 `json:"pass_rate"`
	Total    int     `json:"total"`
	Passed   int     `json:"passed_count"`
	Blocked  int     `json:"blocked_count"`
	Failed   int     `json:"failed_count"`
	// BypassDetected is set when a result claimed completion without verification.
	BypassDetected bool `json:"bypass_detected,omitempty"`
	// Bypassers lists the specialists whose results tripped the bypass check.
	Bypassers []SpecialistType `json:"bypassers,omitempty"`
}
