package api

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, e *ToolExecutor, name string, params map[string]any) ToolResult {
	t.Helper()
	input, err := json.Marshal(params)
	require.NoError(t, err)
	return e.Execute(context.Background(), name, input)
}

func TestToolExecutor_UnknownTool(t *testing.T) {
	res := NewToolExecutor(t.TempDir(), nil).Execute(context.Background(), "Grep", json.RawMessage(`{}`))
	assert.True(t, res.IsError)
	assert.Contains(t, res.Content, "Unknown tool")
}

func TestToolExecutor_ReadWriteEdit(t *testing.T) {
	dir := t.TempDir()
	e := NewToolExecutor(dir, nil)

	res := run(t, e, ToolWrite, map[string]any{"file_path": "pkg/a.go", "content": "line1\nline2\nline2\n"})
	require.False(t, res.IsError, res.Content)

	res = run(t, e, ToolRead, map[string]any{"file_path": "pkg/a.go", "offset": 2, "limit": 1})
	require.False(t, res.IsError)
	assert.Equal(t, "     2\tline2\n", res.Content)

	res = run(t, e, ToolEdit, map[string]any{"file_path": "pkg/a.go", "old_string": "line2", "new_string": "x"})
	assert.True(t, res.IsError, "ambiguous edit must fail")

	res = run(t, e, ToolEdit, map[string]any{"file_path": "pkg/a.go", "old_string": "line2", "new_string": "x", "replace_all": true})
	require.False(t, res.IsError)
	assert.Equal(t, "Replaced 2 occurrences", res.Content)

	data, err := os.ReadFile(filepath.Join(dir, "pkg", "a.go"))
	require.NoError(t, err)
	assert.Equal(t, "line1\nx\nx\n", string(data))

	res = run(t, e, ToolEdit, map[string]any{"file_path": "pkg/a.go", "old_string": "missing", "new_string": "y"})
	assert.True(t, res.IsError)
}

func TestToolExecutor_PathConfinement(t *testing.T) {
	dir := t.TempDir()
	e := NewToolExecutor(dir, nil)

	for _, p := range []string{"../escape.txt", "/etc/passwd", "a/../../b"} {
		res := run(t, e, ToolRead, map[string]any{"file_path": p})
		assert.True(t, res.IsError, p)
		assert.Contains(t, res.Content, "outside the working directory")
	}

	res := run(t, e, ToolWrite, map[string]any{"file_path": filepath.Join(dir, "ok.txt"), "content": "x"})
	assert.False(t, res.IsError, "absolute paths inside the root are allowed")
}

func TestToolExecutor_Bash(t *testing.T) {
	dir := t.TempDir()
	e := NewToolExecutor(dir, nil)

	res := run(t, e, ToolBash, map[string]any{"command": "pwd"})
	require.False(t, res.IsError, res.Content)
	resolved, _ := filepath.EvalSymlinks(dir)
	assert.Contains(t, strings.TrimSpace(res.Content), filepath.Base(resolved))

	res = run(t, e, ToolBash, map[string]any{"command": "echo boom; exit 2"})
	assert.True(t, res.IsError)
	assert.Contains(t, res.Content, "Exit code: 2")

	res = run(t, e, ToolBash, map[string]any{"command": "sleep 5", "timeout": 50})
	assert.True(t, res.IsError)
	assert.Contains(t, res.Content, "timed out")
}

func TestToolExecutor_GlobAndListDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub", ".hidden"), 0755))
	for _, f := range []string{"a.go", "sub/b.go", "sub/c.txt", "sub/.hidden/d.go"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, f), []byte("x"), 0644))
	}
	e := NewToolExecutor(dir, nil)

	res := run(t, e, ToolGlob, map[string]any{"pattern": "**/*.go"})
	require.False(t, res.IsError)
	assert.ElementsMatch(t, []string{"a.go", filepath.Join("sub", "b.go")}, strings.Split(res.Content, "\n"))

	res = run(t, e, ToolListDir, map[string]any{"path": "sub"})
	require.False(t, res.IsError)
	assert.Contains(t, res.Content, "d .hidden/")
	assert.Contains(t, res.Content, "- b.go (1 bytes)")
}

func TestToolDefinitions(t *testing.T) {
	var names []string
	for _, tool := range ToolDefinitions() {
		require.NotNil(t, tool.OfTool)
		names = append(names, tool.OfTool.Name)
	}
	assert.Equal(t, []string{ToolRead, ToolWrite, ToolEdit, ToolBash, ToolGlob, ToolListDir}, names)

	edit := ToolDefinitions()[2].OfTool
	assert.Equal(t, []string{"file_path", "old_string", "new_string"}, edit.InputSchema.Required)
	assert.Contains(t, edit.InputSchema.Properties, "replace_all")
}

func TestFormatToolAction(t *testing.T) {
	assert.Equal(t, "Reading main.go", FormatToolAction(ToolRead, json.RawMessage(`{"file_path":"/x/main.go"}`)))
	assert.Equal(t, "Running go", FormatToolAction(ToolBash, json.RawMessage(`{"command":"go test ./..."}`)))
	assert.Equal(t, "Other", FormatToolAction("Other", nil))
}
