package git

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ShayCichocki/squadron/internal/exec"
)

// CLIDetector detects changes by shelling out to the git binary.
type CLIDetector struct {
	runner exec.CommandRunner
	opts   Options

	mu        sync.Mutex
	baselines map[string]string
}

// NewCLIDetector creates a git CLI backed detector.
func NewCLIDetector(runner exec.CommandRunner, opts Options) *CLIDetector {
	return &CLIDetector{runner: runner, opts: opts, baselines: make(map[string]string)}
}

// run executes a git command and returns its raw stdout.
func (d *CLIDetector) run(workingDir string, args ...string) (string, error) {
	res, err := d.runner.Run(context.Background(), exec.Command{Dir: workingDir, Name: "git", Args: args})
	if err != nil {
		return "", fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}
	if res.ExitCode != 0 {
		return "", fmt.Errorf("git %s: exit %d: %s", strings.Join(args, " "), res.ExitCode, strings.TrimSpace(string(res.Stderr)))
	}
	return string(res.Stdout), nil
}

// Snapshot records HEAD as the baseline for workingDir.
func (d *CLIDetector) Snapshot(workingDir string) (string, error) {
	out, err := d.run(workingDir, "rev-parse", "--verify", "--quiet", "HEAD")
	if err != nil {
		// No commits yet.
		out = ""
	}
	head := strings.TrimSpace(out)

	d.mu.Lock()
	d.baselines[key(workingDir)] = head
	d.mu.Unlock()
	return head, nil
}

// SetBaseline restores a baseline returned by Snapshot. An empty baseline
// means the repository had no commits.
func (d *CLIDetector) SetBaseline(workingDir, baseline string) error {
	if baseline != "" {
		if _, err := d.run(workingDir, "rev-parse", "--verify", "--quiet", baseline+"^{commit}"); err != nil {
			return fmt.Errorf("resolve baseline %s: %w", baseline, err)
		}
	}

	d.mu.Lock()
	d.baselines[key(workingDir)] = baseline
	d.mu.Unlock()
	return nil
}

// ChangedFiles returns uncommitted changes plus files changed since the baseline commit.
func (d *CLIDetector) ChangedFiles(workingDir string) ([]string, error) {
	status, err := d.run(workingDir, "status", "--porcelain", "--untracked-files=all")
	if err != nil {
		return nil, err
	}

	paths := make(map[string]struct{})
	for _, p := range parsePorcelain(status) {
		paths[p] = struct{}{}
	}

	d.mu.Lock()
	base, ok := d.baselines[key(workingDir)]
	d.mu.Unlock()
	if ok && base != "" {
		out, err := d.run(workingDir, "diff", "--name-only", base, "HEAD")
		if err != nil {
			return nil, err
		}
		for _, line := range strings.Split(out, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				paths[line] = struct{}{}
			}
		}
	}

	return d.opts.collect(paths), nil
}

// parsePorcelain extracts paths from `git status --porcelain` output.
// Renames contribute both the old and the new path.
func parsePorcelain(out string) []string {
	var paths []string
	for _, line := range strings.Split(out, "\n") {
		if len(line) < 4 {
			continue
		}
		entry := line[3:]
		if i := strings.Index(entry, " -> "); i >= 0 {
			paths = append(paths, unquote(entry[:i]), unquote(entry[i+4:]))
			continue
		}
		paths = append(paths, unquote(entry))
	}
	return paths
}

func unquote(p string) string {
	if len(p) >= 2 && p[0] == '"' && p[len(p)-1] == '"' {
		return p[1 : len(p)-1]
	}
	return p
}

var _ ChangeDetector = (*CLIDetector)(nil)
