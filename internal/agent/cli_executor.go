package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/ShayCichocki/squadron/internal/api"
	"github.com/ShayCichocki/squadron/internal/exec"
	"github.com/ShayCichocki/squadron/pkg/models"
)

// allowedTools are pre-approved for the claude subprocess.
const allowedTools = "Read,Write,Edit,Bash,Glob,Grep"

// CLIExecutor runs attempts through the claude CLI in print mode.
type CLIExecutor struct {
	runner  exec.CommandRunner
	binary  string
	model   string
	system  string
	workDir string
}

// CLIExecutorConfig configures a CLIExecutor.
type CLIExecutorConfig struct {
	Runner exec.CommandRunner
	// Binary is the claude executable; empty means "claude".
	Binary       string
	Model        string
	SystemPrompt string
	WorkDir      string
}

// NewCLIExecutor creates an executor that shells out to claude.
func NewCLIExecutor(cfg CLIExecutorConfig) *CLIExecutor {
	if cfg.Runner == nil {
		cfg.Runner = exec.NewRunner()
	}
	if cfg.Binary == "" {
		cfg.Binary = "claude"
	}
	return &CLIExecutor{
		runner:  cfg.Runner,
		binary:  cfg.Binary,
		model:   cfg.Model,
		system:  cfg.SystemPrompt,
		workDir: cfg.WorkDir,
	}
}

// cliResult is the JSON document printed by --output-format json.
type cliResult struct {
	Type         string  `json:"type"`
	Subtype      string  `json:"subtype"`
	IsError      bool    `json:"is_error"`
	Result       string  `json:"result"`
	NumTurns     int     `json:"num_turns"`
	SessionID    string  `json:"session_id"`
	TotalCostUSD float64 `json:"total_cost_usd"`
	Usage        struct {
		InputTokens              int64 `json:"input_tokens"`
		OutputTokens             int64 `json:"output_tokens"`
		CacheReadInputTokens     int64 `json:"cache_read_input_tokens"`
		CacheCreationInputTokens int64 `json:"cache_creation_input_tokens"`
	} `json:"usage"`
}

// Args returns the command line used for one attempt. The prompt goes on stdin.
func (e *CLIExecutor) Args() []string {
	args := []string{
		"--print",
		"--output-format", "json",
		"--allowedTools", allowedTools,
	}
	if e.model != "" {
		args = append(args, "--model", e.model)
	}
	if e.system != "" {
		args = append(args, "--append-system-prompt", e.system)
	}
	return args
}

// Execute runs claude once and parses its JSON result.
func (e *CLIExecutor) Execute(ctx context.Context, a Attempt) (*Execution, error) {
	res, err := e.runner.Run(ctx, exec.Command{
		Dir:   e.workDir,
		Name:  e.binary,
		Args:  e.Args(),
		Stdin: BuildPrompt(a),
	})
	if err != nil {
		return &Execution{Status: ExecutionError}, fmt.Errorf("run %s: %w", e.binary, err)
	}
	if res.ExitCode != 0 && len(strings.TrimSpace(string(res.Stdout))) == 0 {
		return &Execution{Status: ExecutionError}, fmt.Errorf("%s exited with code %d: %s", e.binary, res.ExitCode, strings.TrimSpace(string(res.Stderr)))
	}

	var out cliResult
	if err := api.DecodeJSON(string(res.Stdout), &out); err != nil {
		return &Execution{Status: ExecutionError}, fmt.Errorf("parse %s output: %w", e.binary, err)
	}

	execution := &Execution{
		Output: out.Result,
		Status: ExecutionCompleted,
		Usage: models.Usage{
			InputTokens:  out.Usage.InputTokens + out.Usage.CacheReadInputTokens + out.Usage.CacheCreationInputTokens,
			OutputTokens: out.Usage.OutputTokens,
			Model:        e.model,
		},
		Cost: out.TotalCostUSD,
	}
	if out.SessionID != "" {
		execution.Evidence = append(execution.Evidence, "claude session "+out.SessionID)
	}
	if out.IsError {
		execution.Status = ExecutionError
		return execution, fmt.Errorf("%s reported an error (%s): %s", e.binary, out.Subtype, out.Result)
	}
	return execution, nil
}

var _ Executor = (*CLIExecutor)(nil)
