// Package verification decides whether a change-set is done. It provides a
// command gate that builds and tests the project and a completion-marker
// fallback for when no gate is configured.
package verification

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ShayCichocki/squadron/internal/exec"
	"github.com/ShayCichocki/squadron/pkg/models"
)

// ErrNoProjectContext is returned when the project cannot be resolved to
// anything runnable.
var ErrNoProjectContext = errors.New("no verification context for project")

// defaultStepTimeout bounds one verification command.
const defaultStepTimeout = 5 * time.Minute

// maxStepOutput caps the output kept per step.
const maxStepOutput = 4000

// Request is one verification call.
type Request struct {
	// Project is the working directory to verify.
	Project string
	// ChangedFiles is the change-set under review.
	ChangedFiles []string
	// SessionID ties successive calls together for regression tracking.
	SessionID string
	// Context is the task text the change-set is meant to satisfy.
	Context string
}

// Verifier judges a change-set.
type Verifier interface {
	Verify(ctx context.Context, req Request) (*models.Verdict, error)
}

var _ Verifier = (*CommandVerifier)(nil)

// Step is one command the verifier runs.
type Step struct {
	Name     string
	Command  string
	Required bool
}

// CommandVerifier runs the project's build and test commands and turns the
// outcome into a verdict.
type CommandVerifier struct {
	runner      exec.CommandRunner
	commands    []string
	stepTimeout time.Duration
	logger      *zap.Logger

	mu      sync.Mutex
	history map[string]map[string]bool
}

// Option configures a CommandVerifier.
type Option func(*CommandVerifier)

// WithCommands replaces the detected steps with explicit shell commands.
func WithCommands(commands []string) Option {
	return func(v *CommandVerifier) { v.commands = commands }
}

// WithStepTimeout bounds each command.
func WithStepTimeout(d time.Duration) Option {
	return func(v *CommandVerifier) {
		if d > 0 {
			v.stepTimeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(v *CommandVerifier) {
		if l != nil {
			v.logger = l
		}
	}
}

// NewCommandVerifier creates a verifier running commands through runner.
func NewCommandVerifier(runner exec.CommandRunner, opts ...Option) *CommandVerifier {
	if runner == nil {
		runner = exec.NewRunner()
	}
	v := &CommandVerifier{
		runner:      runner,
		stepTimeout: defaultStepTimeout,
		logger:      zap.NewNop(),
		history:     make(map[string]map[string]bool),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Steps resolves what would be run against project.
func (v *CommandVerifier) Steps(project string) ([]Step, error) {
	info, err := os.Stat(project)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrNoProjectContext, project)
	}

	if len(v.commands) > 0 {
		steps := make([]Step, 0, len(v.commands))
		for i, c := range v.commands {
			steps = append(steps, Step{Name: fmt.Sprintf("command %d", i+1), Command: c, Required: true})
		}
		return steps, nil
	}

	pc := DetectProjectContext(project, v.runner.LookPath)
	if !pc.HasCommands() {
		return nil, fmt.Errorf("%w: %s project has no build or test command", ErrNoProjectContext, pc.Type)
	}

	var steps []Step
	if len(pc.BuildCommand) > 0 {
		steps = append(steps, Step{Name: "build", Command: strings.Join(pc.BuildCommand, " "), Required: true})
	}
	if len(pc.TestCommand) > 0 {
		steps = append(steps, Step{Name: "test", Command: strings.Join(pc.TestCommand, " "), Required: true})
	}
	if len(pc.LintCommand) > 0 {
		steps = append(steps, Step{Name: "lint", Command: strings.Join(pc.LintCommand, " ")})
	}
	return steps, nil
}

// Verify runs every step. All required steps passing is PASS, any required
// failure is FAIL. SafeToMerge additionally needs the optional steps.
// A required step that passed on the previous call for the same session and
// fails now sets RegressionDetected.
func (v *CommandVerifier) Verify(ctx context.Context, req Request) (*models.Verdict, error) {
	steps, err := v.Steps(req.Project)
	if err != nil {
		return nil, err
	}

	verdict := &models.Verdict{Type: models.VerdictPass, SafeToMerge: true}
	current := make(map[string]bool, len(steps))
	var failed []string

	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("verify %s: %w", req.Project, err)
		}
		passed, output := v.runStep(ctx, req.Project, step)
		current[step.Name] = passed
		verdict.Steps = append(verdict.Steps, models.VerdictStep{Step: step.Name, Passed: passed, Output: output})

		if passed {
			continue
		}
		verdict.SafeToMerge = false
		if step.Required {
			verdict.Type = models.VerdictFail
			failed = append(failed, step.Name)
		}
	}

	v.mu.Lock()
	if prev, ok := v.history[req.SessionID]; ok && req.SessionID != "" {
		for name, was := range prev {
			if was && !current[name] {
				verdict.RegressionDetected = true
			}
		}
	}
	if req.SessionID != "" {
		v.history[req.SessionID] = current
	}
	v.mu.Unlock()

	if verdict.Type == models.VerdictPass {
		verdict.Reason = fmt.Sprintf("%d verification steps passed over %d changed files", len(steps), len(req.ChangedFiles))
	} else {
		verdict.Reason = "failed: " + strings.Join(failed, ", ")
	}

	v.logger.Debug("verification finished",
		zap.String("project", req.Project),
		zap.String("verdict", string(verdict.Type)),
		zap.Bool("regression", verdict.RegressionDetected),
	)
	return verdict, nil
}

func (v *CommandVerifier) runStep(ctx context.Context, dir string, step Step) (bool, string) {
	ctx, cancel := context.WithTimeout(ctx, v.stepTimeout)
	defer cancel()

	res, err := v.runner.RunShell(ctx, dir, step.Command)
	if err != nil {
		out := err.Error()
		if res != nil {
			out = clip(res.Combined()) + "\n" + out
		}
		return false, out
	}
	return res.ExitCode == 0, clip(res.Combined())
}

func clip(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxStepOutput {
		return "..." + s[len(s)-maxStepOutput:]
	}
	return s
}
