package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ShayCichocki/squadron/pkg/models"
)

func result(t models.SpecialistType, verdict models.VerdictType) models.SpecialistResult {
	status := models.ResultCompleted
	switch verdict {
	case models.VerdictBlocked:
		status = models.ResultBlocked
	case models.VerdictFail:
		status = models.ResultTimeout
	case models.VerdictFailed:
		status = models.ResultFailed
	}
	return models.SpecialistResult{
		SpecialistType: t,
		SubTaskID:      models.SubTaskID("T-1", t),
		Status:         status,
		Verdict:        &models.Verdict{Type: verdict, Reason: string(verdict)},
	}
}

func TestValidate(t *testing.T) {
	pass := models.VerdictPass
	fail := models.VerdictFail
	blocked := models.VerdictBlocked

	tests := []struct {
		name     string
		verdicts []models.VerdictType
		accepted bool
		passed   int
		blocked  int
		failed   int
		rate     float64
	}{
		{"two pass one fail accepts", []models.VerdictType{pass, pass, fail}, true, 2, 0, 1, 2.0 / 3},
		{"one pass two blocked rejects", []models.VerdictType{pass, blocked, blocked}, false, 1, 2, 0, 1.0 / 3},
		{"exactly half accepts", []models.VerdictType{pass, fail}, true, 1, 0, 1, 0.5},
		{"below half rejects", []models.VerdictType{pass, fail, fail}, false, 1, 0, 2, 1.0 / 3},
		{"all blocked rejects", []models.VerdictType{blocked, blocked}, false, 0, 2, 0, 0},
		{"single pass accepts", []models.VerdictType{pass}, true, 1, 0, 0, 1},
	}
	types := []models.SpecialistType{models.SpecialistBugfix, models.SpecialistTestWriter, models.SpecialistAdvisor}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var results []models.SpecialistResult
			for i, v := range tt.verdicts {
				results = append(results, result(types[i], v))
			}
			got := Validate(results, 0)
			assert.Equal(t, tt.accepted, got.Accepted, got.Reason)
			assert.Equal(t, tt.passed, got.Passed)
			assert.Equal(t, tt.blocked, got.Blocked)
			assert.Equal(t, tt.failed, got.Failed)
			assert.Equal(t, len(tt.verdicts), got.Total)
			assert.InDelta(t, tt.rate, got.PassRate, 1e-9)
			assert.NotEmpty(t, got.Reason)
		})
	}
}

func TestValidate_AllBlockedReasonWinsOverRate(t *testing.T) {
	got := Validate([]models.SpecialistResult{result(models.SpecialistBugfix, models.VerdictBlocked)}, 0)
	assert.False(t, got.Accepted)
	assert.Equal(t, "all 1 specialists blocked", got.Reason)
}

func TestValidate_BypassAlwaysRejects(t *testing.T) {
	results := []models.SpecialistResult{
		result(models.SpecialistBugfix, models.VerdictPass),
		result(models.SpecialistTestWriter, models.VerdictPass),
	}
	results[1].VerificationMissing = true

	got := Validate(results, 0)
	assert.False(t, got.Accepted)
	assert.True(t, got.BypassDetected)
	assert.Equal(t, []models.SpecialistType{models.SpecialistTestWriter}, got.Bypassers)
	assert.Contains(t, got.Reason, "verification bypass detected")
	assert.Equal(t, 1.0, got.PassRate)
}

func TestValidate_EmptyAndCustomQuorum(t *testing.T) {
	assert.False(t, Validate(nil, 0).Accepted)

	results := []models.SpecialistResult{
		result(models.SpecialistBugfix, models.VerdictPass),
		result(models.SpecialistTestWriter, models.VerdictFail),
	}
	assert.False(t, Validate(results, 0.75).Accepted)
}
