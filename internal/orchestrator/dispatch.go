package orchestrator

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ShayCichocki/squadron/internal/agent"
	"github.com/ShayCichocki/squadron/internal/ledger"
	"github.com/ShayCichocki/squadron/internal/monitor"
	"github.com/ShayCichocki/squadron/internal/specialist"
	"github.com/ShayCichocki/squadron/pkg/models"
)

// SpecialistRunner runs one subtask to a terminal result. ldg is the
// orchestration's cost ledger.
type SpecialistRunner interface {
	Run(ctx context.Context, st models.SubTask, ldg *ledger.Ledger) models.SpecialistResult
}

// RunnerFunc adapts a function to SpecialistRunner.
type RunnerFunc func(ctx context.Context, st models.SubTask, ldg *ledger.Ledger) models.SpecialistResult

// Run calls f.
func (f RunnerFunc) Run(ctx context.Context, st models.SubTask, ldg *ledger.Ledger) models.SpecialistResult {
	return f(ctx, st, ldg)
}

// AgentRunner builds a SpecialistAgent for each subtask from a provider
// factory and the catalog budgets.
type AgentRunner struct {
	providers agent.ProviderFactory
	catalog   *specialist.Catalog
	base      agent.Config
	monitor   monitor.Monitor
	logger    *zap.Logger
}

// NewAgentRunner creates an AgentRunner. base carries the collaborators
// shared by every specialist; its Executor, Budget, Ledger and OnIteration
// are replaced per subtask.
func NewAgentRunner(providers agent.ProviderFactory, catalog *specialist.Catalog, base agent.Config, mon monitor.Monitor) *AgentRunner {
	if catalog == nil {
		catalog = specialist.Builtin()
	}
	if mon == nil {
		mon = monitor.Nop{}
	}
	logger := base.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AgentRunner{providers: providers, catalog: catalog, base: base, monitor: mon, logger: logger}
}

// Run executes st with a fresh SpecialistAgent.
func (r *AgentRunner) Run(ctx context.Context, st models.SubTask, ldg *ledger.Ledger) models.SpecialistResult {
	executor, err := r.providers.ForType(st.SpecialistType)
	if err != nil {
		return failedResult(st, fmt.Sprintf("resolve executor: %v", err))
	}

	cfg := r.base
	cfg.Executor = executor
	cfg.Budget = r.catalog.Budget(st.SpecialistType)
	cfg.Ledger = ldg
	cfg.Logger = r.logger.Named(string(st.SpecialistType))
	cfg.OnIteration = func(ev agent.IterationEvent) {
		monitor.Safe(r.monitor, monitor.Event{
			Type:       monitor.EventSpecialistIteration,
			TaskID:     st.TaskID,
			SubTaskID:  ev.SubTaskID,
			Specialist: ev.SpecialistType,
			Iteration:  ev.Iteration,
			Budget:     ev.Budget,
			Verdict:    ev.Verdict,
			TokensUsed: ev.TokensUsed,
			Cost:       ev.Cost,
		}, r.logger)
	}

	a, err := agent.New(cfg)
	if err != nil {
		return failedResult(st, err.Error())
	}
	return a.Execute(ctx, st)
}

// failedResult is the result recorded for a specialist that could not run.
func failedResult(st models.SubTask, msg string) models.SpecialistResult {
	return models.SpecialistResult{
		SpecialistType: st.SpecialistType,
		SubTaskID:      st.ID,
		Status:         models.ResultFailed,
		Verdict:        models.FailedVerdict(msg),
		Error:          msg,
	}
}
