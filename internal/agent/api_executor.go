package agent

import (
	"context"
	"errors"

	"github.com/ShayCichocki/squadron/internal/api"
	"github.com/ShayCichocki/squadron/internal/exec"
)

// APIExecutor runs attempts through the Messages API tool loop.
type APIExecutor struct {
	client   *api.Client
	system   string
	workDir  string
	runner   exec.CommandRunner
	stopper  api.Stopper
	maxTurns int
	onStream func(api.StreamEvent)
}

// APIExecutorConfig configures an APIExecutor.
type APIExecutorConfig struct {
	Client       *api.Client
	SystemPrompt string
	WorkDir      string
	Runner       exec.CommandRunner
	Stopper      api.Stopper
	MaxTurns     int
	OnStream     func(api.StreamEvent)
}

// NewAPIExecutor creates an executor calling the API directly.
func NewAPIExecutor(cfg APIExecutorConfig) *APIExecutor {
	return &APIExecutor{
		client:   cfg.Client,
		system:   cfg.SystemPrompt,
		workDir:  cfg.WorkDir,
		runner:   cfg.Runner,
		stopper:  cfg.Stopper,
		maxTurns: cfg.MaxTurns,
		onStream: cfg.OnStream,
	}
}

// Execute runs one tool loop. Usage is returned even when the loop fails.
func (e *APIExecutor) Execute(ctx context.Context, a Attempt) (*Execution, error) {
	loop := api.NewAgentLoop(api.AgentLoopConfig{
		Client:   e.client,
		WorkDir:  e.workDir,
		Runner:   e.runner,
		Stopper:  e.stopper,
		MaxTurns: e.maxTurns,
		OnStream: e.onStream,
	})

	res, err := loop.Run(ctx, e.system, BuildPrompt(a))
	out := &Execution{Status: ExecutionCompleted}
	if res != nil {
		out.Output = res.Output
		out.Usage = res.Usage
		out.Evidence = res.Actions
	}
	switch {
	case errors.Is(err, api.ErrStopped):
		out.Status = ExecutionStopped
		return out, err
	case err != nil:
		out.Status = ExecutionError
		return out, err
	}
	return out, nil
}

var _ Executor = (*APIExecutor)(nil)
