package checkpoint

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode_PreservesBody(t *testing.T) {
	bodies := []string{
		"",
		"plain",
		"trailing newline\n",
		"\n---\nlooks like a fence\n---\n",
		"emoji 🚀 and CJK 中文\r\nwindows line",
	}
	for _, body := range bodies {
		rec := &Record{
			ID:        "SESSION-1",
			TaskID:    "T-1",
			Phase:     "iterating",
			Status:    StatusInProgress,
			CreatedAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
			Body:      body,
		}
		data, err := encode(rec)
		require.NoError(t, err)

		got, err := decode(data)
		require.NoError(t, err)
		assert.Equal(t, body, got.Body)
		assert.Equal(t, rec.CreatedAt, got.CreatedAt)
		assert.Equal(t, []string{}, got.NextSteps)
	}
}

func TestDecode_Corrupt(t *testing.T) {
	tests := map[string]string{
		"no fence":       "{}\n---\nbody",
		"unterminated":   "---\n{\"phase\":\"x\"}",
		"bad json":       "---\n{nope}\n---\n",
		"missing phase":  "---\n{\"status\":\"pending\"}\n---\n",
		"unknown status": "---\n{\"phase\":\"x\",\"status\":\"weird\"}\n---\n",
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := decode([]byte(data))
			assert.ErrorIs(t, err, ErrCorrupt)
		})
	}
}

func TestPatchApply(t *testing.T) {
	r := &Record{Phase: "a", Status: StatusPending, NextSteps: []string{"x"}}
	steps := []string{"y"}
	body := "new"
	Patch{NextSteps: steps, Body: &body}.apply(r)

	assert.Equal(t, "a", r.Phase)
	assert.Equal(t, []string{"y"}, r.NextSteps)
	assert.Equal(t, "new", r.Body)

	steps[0] = "mutated"
	assert.Equal(t, "y", r.NextSteps[0])
}

func TestStatus(t *testing.T) {
	assert.True(t, StatusPending.Open())
	assert.True(t, StatusInProgress.Open())
	assert.False(t, StatusCompleted.Open())
	assert.False(t, StatusTimeout.Open())
	assert.True(t, StatusFailed.Valid())
	assert.False(t, Status("").Valid())
}
