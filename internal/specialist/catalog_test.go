package specialist

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/squadron/pkg/models"
)

func TestBuiltinBudgets(t *testing.T) {
	c := Builtin()
	want := map[models.SpecialistType]int{
		models.SpecialistBugfix:         15,
		models.SpecialistFeatureBuilder: 50,
		models.SpecialistTestWriter:     15,
		models.SpecialistCodeQuality:    20,
		models.SpecialistAdvisor:        10,
		models.SpecialistDeployment:     10,
		models.SpecialistMigration:      15,
		"mystery":                       15,
	}
	for typ, budget := range want {
		assert.Equal(t, budget, c.Budget(typ), typ)
	}
}

func TestGet(t *testing.T) {
	c := Builtin()
	d, ok := c.Get(models.SpecialistBugfix)
	require.True(t, ok)
	assert.Equal(t, "Find and fix root cause", d.Title)

	d, ok = c.Get("mystery")
	assert.False(t, ok)
	assert.Equal(t, DefaultBudget, d.Budget)
	assert.Equal(t, models.SpecialistType("mystery"), d.Type)
}

func TestLoadOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	data := `
specialists:
  - type: bugfix
    budget: 4
  - type: security
    title: Audit for vulnerabilities
    prompt: You are a security specialist.
    budget: 8
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	c, err := Load(path)
	require.NoError(t, err)

	bug, _ := c.Get(models.SpecialistBugfix)
	assert.Equal(t, 4, bug.Budget)
	assert.Equal(t, "Find and fix root cause", bug.Title, "unset fields keep builtin values")

	sec, ok := c.Get("security")
	require.True(t, ok)
	assert.Equal(t, 8, sec.Budget)
	assert.Contains(t, c.Types(), models.SpecialistType("security"))
}

func TestParseErrors(t *testing.T) {
	_, err := Parse([]byte("specialists: [{title: x}]"))
	assert.Error(t, err)

	_, err = Parse([]byte("specialists: [{type: bugfix, budget: -1}]"))
	assert.Error(t, err)

	_, err = Parse([]byte("specialists: {"))
	assert.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestWithBudgets(t *testing.T) {
	base := Builtin()
	c := base.WithBudgets(map[string]int{"bugfix": 3, "advisor": 0})

	assert.Equal(t, 3, c.Budget(models.SpecialistBugfix))
	assert.Equal(t, 10, c.Budget(models.SpecialistAdvisor))
	assert.Equal(t, 15, base.Budget(models.SpecialistBugfix), "original untouched")
}

func TestSystemPrompt(t *testing.T) {
	d, _ := Builtin().Get(models.SpecialistTestWriter)
	p := d.SystemPrompt("TASK_COMPLETE", "TASK_BLOCKED:")
	assert.Contains(t, p, "testing specialist")
	assert.Contains(t, p, "TASK_COMPLETE")
	assert.Contains(t, p, "TASK_BLOCKED:")
}
