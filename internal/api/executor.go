package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ShayCichocki/squadron/internal/exec"
)

// maxToolOutput caps what a single tool call hands back to the model.
const maxToolOutput = 30000

// defaultBashTimeout applies when the model does not ask for one.
const defaultBashTimeout = 2 * time.Minute

// ToolExecutor executes tool calls from the Claude API inside one working directory.
type ToolExecutor struct {
	workDir string
	runner  exec.CommandRunner
}

// NewToolExecutor creates a tool executor rooted at workDir.
func NewToolExecutor(workDir string, runner exec.CommandRunner) *ToolExecutor {
	if runner == nil {
		runner = exec.NewRunner()
	}
	return &ToolExecutor{workDir: workDir, runner: runner}
}

// ToolResult represents the result of a tool execution.
type ToolResult struct {
	Content string
	IsError bool
}

func toolError(format string, args ...any) ToolResult {
	return ToolResult{Content: fmt.Sprintf(format, args...), IsError: true}
}

// Execute runs a tool by name with the given JSON input. Failures are reported
// to the model as error results, never returned.
func (e *ToolExecutor) Execute(ctx context.Context, name string, input json.RawMessage) ToolResult {
	switch name {
	case ToolRead:
		return e.execRead(input)
	case ToolWrite:
		return e.execWrite(input)
	case ToolEdit:
		return e.execEdit(input)
	case ToolBash:
		return e.execBash(ctx, input)
	case ToolGlob:
		return e.execGlob(input)
	case ToolListDir:
		return e.execListDir(input)
	default:
		return toolError("Unknown tool: %s", name)
	}
}

func (e *ToolExecutor) execRead(input json.RawMessage) ToolResult {
	var params struct {
		FilePath string `json:"file_path"`
		Offset   int    `json:"offset"`
		Limit    int    `json:"limit"`
	}
	if err := json.Unmarshal(input, &params); err != nil {
		return toolError("Invalid parameters: %v", err)
	}
	path, err := e.resolvePath(params.FilePath)
	if err != nil {
		return toolError("%v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return toolError("Failed to read file: %v", err)
	}
	lines := strings.Split(string(content), "\n")

	start := 0
	if params.Offset > 0 {
		start = params.Offset - 1
		if start >= len(lines) {
			return toolError("Offset beyond end of file")
		}
	}
	end := len(lines)
	if params.Limit > 0 {
		end = min(start+params.Limit, len(lines))
	}

	var b strings.Builder
	for i := start; i < end; i++ {
		fmt.Fprintf(&b, "%6d\t%s\n", i+1, lines[i])
	}
	return ToolResult{Content: clip(b.String())}
}

func (e *ToolExecutor) execWrite(input json.RawMessage) ToolResult {
	var params struct {
		FilePath string `json:"file_path"`
		Content  string `json:"content"`
	}
	if err := json.Unmarshal(input, &params); err != nil {
		return toolError("Invalid parameters: %v", err)
	}
	path, err := e.resolvePath(params.FilePath)
	if err != nil {
		return toolError("%v", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return toolError("Failed to create directory: %v", err)
	}
	if err := os.WriteFile(path, []byte(params.Content), 0644); err != nil {
		return toolError("Failed to write file: %v", err)
	}
	return ToolResult{Content: fmt.Sprintf("Wrote %d bytes to %s", len(params.Content), params.FilePath)}
}

func (e *ToolExecutor) execEdit(input json.RawMessage) ToolResult {
	var params struct {
		FilePath   string `json:"file_path"`
		OldString  string `json:"old_string"`
		NewString  string `json:"new_string"`
		ReplaceAll bool   `json:"replace_all"`
	}
	if err := json.Unmarshal(input, &params); err != nil {
		return toolError("Invalid parameters: %v", err)
	}
	if params.OldString == "" {
		return toolError("old_string must not be empty")
	}
	path, err := e.resolvePath(params.FilePath)
	if err != nil {
		return toolError("%v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return toolError("Failed to read file: %v", err)
	}
	text := string(content)

	count := strings.Count(text, params.OldString)
	switch {
	case count == 0:
		return toolError("old_string not found in file")
	case count > 1 && !params.ReplaceAll:
		return toolError("old_string found %d times; must be unique or use replace_all=true", count)
	}

	n := 1
	if params.ReplaceAll {
		n = -1
	}
	if err := os.WriteFile(path, []byte(strings.Replace(text, params.OldString, params.NewString, n)), 0644); err != nil {
		return toolError("Failed to write file: %v", err)
	}
	if params.ReplaceAll {
		return ToolResult{Content: fmt.Sprintf("Replaced %d occurrences", count)}
	}
	return ToolResult{Content: "Edit successful"}
}

func (e *ToolExecutor) execBash(ctx context.Context, input json.RawMessage) ToolResult {
	var params struct {
		Command string `json:"command"`
		Timeout int    `json:"timeout"`
	}
	if err := json.Unmarshal(input, &params); err != nil {
		return toolError("Invalid parameters: %v", err)
	}

	timeout := defaultBashTimeout
	if params.Timeout > 0 {
		timeout = time.Duration(params.Timeout) * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res, err := e.runner.RunShell(ctx, e.workDir, params.Command)
	if errors.Is(err, context.DeadlineExceeded) {
		return toolError("Command timed out after %v:\n%s", timeout, clip(res.Combined()))
	}
	if err != nil {
		return toolError("Command failed to start: %v", err)
	}
	if res.ExitCode != 0 {
		return toolError("%s\nExit code: %d", clip(res.Combined()), res.ExitCode)
	}
	return ToolResult{Content: clip(res.Combined())}
}

func (e *ToolExecutor) execGlob(input json.RawMessage) ToolResult {
	var params struct {
		Pattern string `json:"pattern"`
		Path    string `json:"path"`
	}
	if err := json.Unmarshal(input, &params); err != nil {
		return toolError("Invalid parameters: %v", err)
	}
	root, err := e.resolvePath(params.Path)
	if err != nil {
		return toolError("%v", err)
	}
	pattern := filepath.Base(params.Pattern)

	var matches []string
	err = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if ok, _ := filepath.Match(pattern, d.Name()); ok {
			rel, _ := filepath.Rel(e.workDir, path)
			matches = append(matches, rel)
		}
		return nil
	})
	if err != nil {
		return toolError("Glob error: %v", err)
	}
	if len(matches) == 0 {
		return ToolResult{Content: "No files matched the pattern"}
	}
	return ToolResult{Content: clip(strings.Join(matches, "\n"))}
}

func (e *ToolExecutor) execListDir(input json.RawMessage) ToolResult {
	var params struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(input, &params); err != nil {
		return toolError("Invalid parameters: %v", err)
	}
	path, err := e.resolvePath(params.Path)
	if err != nil {
		return toolError("%v", err)
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return toolError("Failed to read directory: %v", err)
	}
	var b strings.Builder
	for _, entry := range entries {
		if entry.IsDir() {
			fmt.Fprintf(&b, "d %s/\n", entry.Name())
			continue
		}
		if info, err := entry.Info(); err == nil {
			fmt.Fprintf(&b, "- %s (%d bytes)\n", entry.Name(), info.Size())
		} else {
			fmt.Fprintf(&b, "? %s\n", entry.Name())
		}
	}
	return ToolResult{Content: b.String()}
}

// resolvePath maps a tool path onto the working directory. Paths that escape
// it are rejected.
func (e *ToolExecutor) resolvePath(path string) (string, error) {
	root := filepath.Clean(e.workDir)
	var full string
	if filepath.IsAbs(path) {
		full = filepath.Clean(path)
	} else {
		full = filepath.Join(root, path)
	}
	rel, err := filepath.Rel(root, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q is outside the working directory", path)
	}
	return full, nil
}

func clip(s string) string {
	if len(s) > maxToolOutput {
		return s[:maxToolOutput] + "\n... (output truncated)"
	}
	return s
}

// FormatToolAction returns a human-readable description of a tool call.
func FormatToolAction(name string, input json.RawMessage) string {
	var p struct {
		FilePath string `json:"file_path"`
		Command  string `json:"command"`
		Pattern  string `json:"pattern"`
	}
	_ = json.Unmarshal(input, &p)

	switch name {
	case ToolRead:
		return "Reading " + filepath.Base(p.FilePath)
	case ToolWrite:
		return "Writing " + filepath.Base(p.FilePath)
	case ToolEdit:
		return "Editing " + filepath.Base(p.FilePath)
	case ToolBash:
		cmd, _, _ := strings.Cut(p.Command, " ")
		if len(cmd) > 20 {
			cmd = cmd[:17] + "..."
		}
		return "Running " + cmd
	case ToolGlob:
		return "Searching " + p.Pattern
	case ToolListDir:
		return "Listing directory"
	default:
		return name
	}
}
