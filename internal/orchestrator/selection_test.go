package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/squadron/internal/specialist"
	"github.com/ShayCichocki/squadron/pkg/models"
)

func TestSelectSpecialists(t *testing.T) {
	analysis := func(names ...string) *models.TaskAnalysis {
		return &models.TaskAnalysis{RecommendedSpecialists: names}
	}

	tests := []struct {
		name     string
		analysis *models.TaskAnalysis
		limit    int
		want     []models.SpecialistType
	}{
		{"filters unknown and non-selectable", analysis("bugfix", "wizard", "deployment", "advisor"), 4,
			[]models.SpecialistType{models.SpecialistBugfix, models.SpecialistAdvisor}},
		{"de-duplicates case-insensitively", analysis("TestWriter", "testwriter", " testwriter "), 4,
			[]models.SpecialistType{models.SpecialistTestWriter}},
		{"caps at limit", analysis("bugfix", "featurebuilder", "testwriter", "codequality", "advisor"), 4,
			[]models.SpecialistType{models.SpecialistBugfix, models.SpecialistFeatureBuilder, models.SpecialistTestWriter, models.SpecialistCodeQuality}},
		{"defaults to bugfix", analysis("wizard"), 4, []models.SpecialistType{models.SpecialistBugfix}},
		{"nil analysis defaults to bugfix", nil, 2, []models.SpecialistType{models.SpecialistBugfix}},
		{"zero limit disables team mode", analysis("bugfix"), 0, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SelectSpecialists(tt.analysis, tt.limit))
		})
	}
}

func TestBuildSubTasks(t *testing.T) {
	types := []models.SpecialistType{models.SpecialistBugfix, models.SpecialistTestWriter}
	got := BuildSubTasks("T-7", "demo", "Login loops forever", types, specialist.Builtin())

	require.Len(t, got, 2)
	assert.Equal(t, "T-7-bugfix", got[0].ID)
	assert.Equal(t, "T-7", got[0].TaskID)
	assert.Equal(t, "demo", got[0].Project)
	assert.Equal(t, "Find and fix root cause", got[0].Title)
	assert.Equal(t, "Login loops forever", got[0].Context)
	assert.NotEmpty(t, got[0].Description)
	assert.Equal(t, 0, got[0].Priority)

	assert.Equal(t, "T-7-testwriter", got[1].ID)
	assert.Equal(t, "Write comprehensive tests", got[1].Title)
	assert.Equal(t, 1, got[1].Priority)
}
