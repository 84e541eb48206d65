package models

// SpecialistType names a kind of specialist agent.
type SpecialistType string

const (
	SpecialistBugfix         SpecialistType = "bugfix"
	SpecialistFeatureBuilder SpecialistType = "featurebuilder"
	SpecialistTestWriter     SpecialistType = "testwriter"
	SpecialistCodeQuality    SpecialistType = "codequality"
	SpecialistAdvisor        SpecialistType = "advisor"
	SpecialistDeployment     SpecialistType = "deployment"
	SpecialistMigration      SpecialistType = "migration"
)

// Selectable returns true if the team lead may dispatch this type.
// Deployment and migration specialists are only run directly.
func (t SpecialistType) Selectable() bool {
	switch t {
	case SpecialistBugfix, SpecialistFeatureBuilder, SpecialistTestWriter,
		SpecialistCodeQuality, SpecialistAdvisor:
		return true
	default:
		return false
	}
}

// Known returns true if the type is any recognised specialist.
func (t SpecialistType) Known() bool {
	return t.Selectable() || t == SpecialistDeployment || t == SpecialistMigration
}

// ResultStatus is the terminal state of one specialist run.
type ResultStatus string

const (
	// ResultCompleted means the specialist received a PASS verdict.
	ResultCompleted ResultStatus = "completed"
	// ResultBlocked means the specialist received a BLOCKED verdict or was stopped.
	ResultBlocked ResultStatus = "blocked"
	// ResultTimeout means the iteration budget ran out.
	ResultTimeout ResultStatus = "timeout"
	// ResultFailed means the run errored or panicked.
	ResultFailed ResultStatus = "failed"
)

// Valid returns true if the status is a known value.
func (s ResultStatus) Valid() bool {
	switch s {
	case ResultCompleted, ResultBlocked, ResultTimeout, ResultFailed:
		return true
	default:
		return false
	}
}

// SpecialistResult is what a specialist hands back to the team lead.
// It is not modified after it is returned.
type SpecialistResult struct {
	// SpecialistType is the specialist that produced this result.
	SpecialistType SpecialistType `json:"specialist_type"`
	// SubTaskID is the subtask the specialist executed.
	SubTaskID string `json:"subtask_id"`
	// Status is the terminal state.
	Status ResultStatus `json:"status"`
	// Verdict is the last verdict seen, if any.
	Verdict *Verdict `json:"verdict,omitempty"`
	// IterationsUsed never exceeds the specialist's budget.
	IterationsUsed int `json:"iterations_used"`
	// Output is the last raw output, nil if the specialist never produced one.
	Output *string `json:"output,omitempty"`
	// Error is set for failed results.
	Error string `json:"error,omitempty"`
	// VerificationMissing marks a result that claims completion without verification.
	VerificationMissing bool `json:"verification_missing,omitempty"`
	// TokensUsed is the total tokens consumed by this specialist.
	TokensUsed int64 `json:"tokens_used"`
	// Cost is the total spend in dollars.
	Cost float64 `json:"cost"`
}

// Passed reports whether the result carries a PASS verdict.
func (r SpecialistResult) Passed() bool {
	return r.Verdict != nil && r.Verdict.Type == VerdictPass
}

// Blocked reports whether the result carries a BLOCKED verdict.
func (r SpecialistResult) Blocked() bool {
	return r.Verdict != nil && r.Verdict.Type == VerdictBlocked
}

// OutputText returns the output or the empty string.
func (r SpecialistResult) OutputText() string {
	if r.Output == nil {
		return ""
	}
	return *r.Output
}

// Usage is the token consumption reported by one or more provider calls.
type Usage struct {
	InputTokens  int64  `json:"input_tokens"`
	OutputTokens int64  `json:"output_tokens"`
	Model        string `json:"model,omitempty"`
}

// Total returns input plus output tokens.
func (u Usage) Total() int64 {
	return u.InputTokens + u.OutputTokens
}

// Add returns the sum of two usages. The model of u wins unless it is empty.
func (u Usage) Add(o Usage) Usage {
	model := u.Model
	if model == "" {
		model = o.Model
	}
	return Usage{
		InputTokens:  u.InputTokens + o.InputTokens,
		OutputTokens: u.OutputTokens + o.OutputTokens,
		Model:        model,
	}
}
