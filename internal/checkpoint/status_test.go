package checkpoint

import (
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/squadron/pkg/models"
)

func newTestStatusStore(t *testing.T) *StatusStore {
	t.Helper()
	s, err := NewStatusStore(t.TempDir(), "demo")
	require.NoError(t, err)
	return s
}

func TestStatusStore_Lifecycle(t *testing.T) {
	s := newTestStatusStore(t)

	require.NoError(t, s.Launch("T-1", models.SpecialistBugfix, "T-1-bugfix"))
	require.NoError(t, s.Launch("T-1", models.SpecialistBugfix, "T-1-bugfix"))

	doc, err := s.Get("T-1")
	require.NoError(t, err)
	st := doc.Specialists["bugfix"]
	require.NotNil(t, st)
	assert.Equal(t, SpecialistLaunched, st.Status)
	assert.Equal(t, []string{"T-1-bugfix"}, st.SubtaskIDs)
	assert.False(t, st.Settled())

	for i := 1; i <= 5; i++ {
		e := IterationEntry{Iteration: i, Verdict: "FAIL", Summary: "attempt"}
		require.NoError(t, s.RecordIteration("T-1", models.SpecialistBugfix, e, int64(i*100), float64(i)*0.01))
	}

	doc, err = s.Get("T-1")
	require.NoError(t, err)
	st = doc.Specialists["bugfix"]
	assert.Equal(t, SpecialistInProgress, st.Status)
	assert.Equal(t, 5, st.Iterations)
	assert.Equal(t, int64(500), st.TokensUsed)
	require.Len(t, st.IterationHistory, historyLimit)
	assert.Equal(t, 3, st.IterationHistory[0].Iteration)
	assert.Equal(t, 5, st.IterationHistory[2].Iteration)
	assert.False(t, st.IterationHistory[0].At.IsZero())

	long := strings.Repeat("é", finalOutputLimit+10)
	require.NoError(t, s.Complete("T-1", models.SpecialistBugfix, Completion{
		Status:      models.ResultCompleted,
		Verdict:     models.VerdictPass,
		Iterations:  5,
		TokensUsed:  600,
		Cost:        0.06,
		FinalOutput: long,
	}))

	doc, err = s.Get("T-1")
	require.NoError(t, err)
	st = doc.Specialists["bugfix"]
	assert.True(t, st.Settled())
	assert.Equal(t, "PASS", st.Verdict)
	require.NotNil(t, st.EndTime)
	assert.Equal(t, finalOutputLimit+3, len([]rune(st.FinalOutput)))
}

func TestStatusStore_AllSettled(t *testing.T) {
	s := newTestStatusStore(t)
	expected := []models.SpecialistType{models.SpecialistBugfix, models.SpecialistTestWriter}

	ok, err := s.AllSettled("T-1", expected)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Complete("T-1", models.SpecialistBugfix, Completion{Status: models.ResultCompleted, Verdict: models.VerdictPass}))
	require.NoError(t, s.Launch("T-1", models.SpecialistTestWriter, "T-1-testwriter"))
	ok, err = s.AllSettled("T-1", expected)
	require.NoError(t, err)
	assert.False(t, ok)
	pending, err := s.Unsettled("T-1", expected)
	require.NoError(t, err)
	assert.Equal(t, []models.SpecialistType{models.SpecialistTestWriter}, pending)

	require.NoError(t, s.Complete("T-1", models.SpecialistTestWriter, Completion{Status: models.ResultBlocked, Verdict: models.VerdictBlocked, Reason: "needs credentials", VerificationMissing: true}))
	ok, err = s.AllSettled("T-1", expected)
	require.NoError(t, err)
	assert.True(t, ok)

	doc, err := s.Get("T-1")
	require.NoError(t, err)
	assert.Equal(t, "needs credentials", doc.Specialists["testwriter"].Reason)
	assert.True(t, doc.Specialists["testwriter"].VerificationMissing)
}

func TestStatusStore_FileShape(t *testing.T) {
	s := newTestStatusStore(t)

	require.NoError(t, s.Launch("T-1", models.SpecialistCodeQuality, "T-1-codequality"))
	require.NoError(t, s.SetAnalysis("T-1", &models.TaskAnalysis{
		Complexity:             models.ComplexityLow,
		RecommendedSpecialists: []string{"codequality"},
	}))

	data, err := os.ReadFile(s.Path("T-1"))
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Contains(t, raw, "codequality")
	assert.Contains(t, raw, "team_lead")

	doc, err := s.Get("T-1")
	require.NoError(t, err)
	require.NotNil(t, doc.TeamLead)
	assert.Equal(t, models.ComplexityLow, doc.TeamLead.Analysis.Complexity)
	assert.Len(t, doc.Specialists, 1)
}

func TestStatusStore_CorruptAndDelete(t *testing.T) {
	s := newTestStatusStore(t)

	require.NoError(t, os.WriteFile(s.Path("T-1"), []byte("{"), 0644))
	_, err := s.Get("T-1")
	assert.ErrorIs(t, err, ErrCorrupt)

	require.NoError(t, s.Delete("T-1"))
	require.NoError(t, s.Delete("T-1"))

	doc, err := s.Get("T-1")
	require.NoError(t, err)
	assert.Empty(t, doc.Specialists)
}

func TestStatusStore_RejectsUnsafeTaskIDs(t *testing.T) {
	s := newTestStatusStore(t)
	for _, id := range []string{"PROJ/12", "../../escaped"} {
		assert.ErrorIs(t, s.Launch(id, models.SpecialistBugfix, "x"), ErrInvalidTaskID, id)
		_, err := s.Get(id)
		assert.ErrorIs(t, err, ErrInvalidTaskID, id)
		assert.ErrorIs(t, s.Delete(id), ErrInvalidTaskID, id)
	}
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "abc", truncateRunes("abc", 3))
	assert.Equal(t, "ab...", truncateRunes("abc", 2))
	assert.Equal(t, "日本...", truncateRunes("日本語", 2))
}
