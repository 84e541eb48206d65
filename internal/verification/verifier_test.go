package verification

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/squadron/internal/exec"
	"github.com/ShayCichocki/squadron/pkg/models"
)

// scriptedRunner answers shell commands with fixed exit codes.
type scriptedRunner struct {
	exits map[string]int
	err   map[string]error
	ran   []string
}

func (s *scriptedRunner) Run(ctx context.Context, c exec.Command) (*exec.Result, error) {
	return s.RunShell(ctx, c.Dir, c.Name)
}

func (s *scriptedRunner) RunShell(_ context.Context, _ string, command string) (*exec.Result, error) {
	s.ran = append(s.ran, command)
	if err := s.err[command]; err != nil {
		return &exec.Result{ExitCode: -1}, err
	}
	code := s.exits[command]
	return &exec.Result{ExitCode: code, Stdout: []byte("ran " + command)}, nil
}

func (s *scriptedRunner) LookPath(name string) (string, error) {
	return "", errors.New("not installed")
}

func goProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "go.mod"), []byte("module demo\n"), 0644))
	return dir
}

func TestCommandVerifier_Pass(t *testing.T) {
	r := &scriptedRunner{}
	v := NewCommandVerifier(r)

	verdict, err := v.Verify(context.Background(), Request{Project: goProject(t), ChangedFiles: []string{"main.go"}})
	require.NoError(t, err)

	assert.Equal(t, models.VerdictPass, verdict.Type)
	assert.True(t, verdict.SafeToMerge)
	assert.Len(t, verdict.Steps, 3)
	assert.Equal(t, []string{"go build ./...", "go test ./...", "go vet ./..."}, r.ran)
	assert.Contains(t, verdict.Reason, "1 changed files")
}

func TestCommandVerifier_OptionalFailure(t *testing.T) {
	r := &scriptedRunner{exits: map[string]int{"go vet ./...": 1}}
	v := NewCommandVerifier(r)

	verdict, err := v.Verify(context.Background(), Request{Project: goProject(t)})
	require.NoError(t, err)
	assert.Equal(t, models.VerdictPass, verdict.Type)
	assert.False(t, verdict.SafeToMerge)
}

func TestCommandVerifier_RequiredFailureAndRegression(t *testing.T) {
	dir := goProject(t)
	r := &scriptedRunner{}
	v := NewCommandVerifier(r)

	first, err := v.Verify(context.Background(), Request{Project: dir, SessionID: "S1"})
	require.NoError(t, err)
	require.Equal(t, models.VerdictPass, first.Type)

	r.exits = map[string]int{"go test ./...": 1}
	second, err := v.Verify(context.Background(), Request{Project: dir, SessionID: "S1"})
	require.NoError(t, err)
	assert.Equal(t, models.VerdictFail, second.Type)
	assert.Equal(t, "failed: test", second.Reason)
	assert.True(t, second.RegressionDetected)

	other, err := v.Verify(context.Background(), Request{Project: dir, SessionID: "S2"})
	require.NoError(t, err)
	assert.False(t, other.RegressionDetected)
}

func TestCommandVerifier_ExplicitCommands(t *testing.T) {
	r := &scriptedRunner{err: map[string]error{"make check": errors.New("boom")}}
	v := NewCommandVerifier(r, WithCommands([]string{"make check"}))

	verdict, err := v.Verify(context.Background(), Request{Project: t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, models.VerdictFail, verdict.Type)
	require.Len(t, verdict.Steps, 1)
	assert.Contains(t, verdict.Steps[0].Output, "boom")
}

func TestCommandVerifier_NoContext(t *testing.T) {
	v := NewCommandVerifier(&scriptedRunner{})

	_, err := v.Verify(context.Background(), Request{Project: t.TempDir()})
	assert.ErrorIs(t, err, ErrNoProjectContext)

	_, err = v.Verify(context.Background(), Request{Project: filepath.Join(t.TempDir(), "missing")})
	assert.ErrorIs(t, err, ErrNoProjectContext)
}

func TestCommandVerifier_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewCommandVerifier(&scriptedRunner{}).Verify(ctx, Request{Project: goProject(t)})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDetectProjectContext(t *testing.T) {
	tests := []struct {
		name  string
		files map[string]string
		want  string
		test  []string
	}{
		{"go", map[string]string{"go.mod": "module x"}, "go", []string{"go", "test", "./..."}},
		{"rust", map[string]string{"Cargo.toml": ""}, "rust", []string{"cargo", "test"}},
		{"python", map[string]string{"pyproject.toml": "", "pytest.ini": ""}, "python", []string{"pytest"}},
		{"node", map[string]string{"package.json": `{"scripts":{"test":"jest"}}`}, "node", []string{"npm", "test"}},
		{"make", map[string]string{"Makefile": "test:\n"}, "make", []string{"make", "test"}},
		{"unknown", nil, "unknown", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			for name, content := range tt.files {
				require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
			}
			pc := DetectProjectContext(dir, nil)
			assert.Equal(t, tt.want, pc.Type)
			assert.Equal(t, tt.test, pc.TestCommand)
		})
	}
}
