package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/ShayCichocki/squadron/internal/agent"
	"github.com/ShayCichocki/squadron/internal/api"
	"github.com/ShayCichocki/squadron/internal/audit"
	"github.com/ShayCichocki/squadron/internal/checkpoint"
	"github.com/ShayCichocki/squadron/internal/config"
	"github.com/ShayCichocki/squadron/internal/exec"
	"github.com/ShayCichocki/squadron/internal/git"
	"github.com/ShayCichocki/squadron/internal/ledger"
	"github.com/ShayCichocki/squadron/internal/logging"
	"github.com/ShayCichocki/squadron/internal/monitor"
	"github.com/ShayCichocki/squadron/internal/orchestrator"
	"github.com/ShayCichocki/squadron/internal/signals"
	"github.com/ShayCichocki/squadron/internal/specialist"
	"github.com/ShayCichocki/squadron/internal/state"
	"github.com/ShayCichocki/squadron/internal/verification"
)

// Selector values for orchestrator.analyzer and orchestrator.synthesizer.
const (
	selectProvider  = "provider"
	selectHeuristic = "heuristic"
	selectTemplate  = "template"
)

// env holds everything a command needs from the project state directory.
type env struct {
	cfg         *config.Config
	workDir     string
	project     string
	logger      *zap.Logger
	closeLog    func() error
	db          *state.DB
	checkpoints *checkpoint.Store
	status      *checkpoint.StatusStore
}

// openEnv loads config, builds the logger and opens the state database and
// checkpoint stores. quiet keeps the logger off stderr.
func openEnv(quiet bool) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	workDir, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("get working directory: %w", err)
	}
	if !filepath.IsAbs(cfg.Paths.StateDir) {
		cfg.Paths.StateDir = filepath.Join(workDir, cfg.Paths.StateDir)
	}

	debugFile := ""
	if cfg.Logging.DebugFile {
		debugFile = filepath.Join(cfg.LogDir(), "squadron.log")
	}
	logger, closeLog, err := logging.New(logging.Options{Level: cfg.Logging.Level, DebugFile: debugFile, Quiet: quiet})
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	e := &env{
		cfg:      cfg,
		workDir:  workDir,
		project:  filepath.Base(workDir),
		logger:   logger,
		closeLog: closeLog,
	}

	e.db, err = state.OpenMigrated(cfg.DBPath())
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("open state database: %w", err)
	}
	e.checkpoints, err = checkpoint.NewStore(cfg.SessionsDir(), e.project,
		checkpoint.WithIndex(e.db),
		checkpoint.WithLogger(logger.Named("checkpoint")))
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("open checkpoint store: %w", err)
	}
	e.status, err = checkpoint.NewStatusStore(cfg.SessionsDir(), e.project)
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("open status store: %w", err)
	}
	return e, nil
}

// Close releases the database and flushes the logger.
func (e *env) Close() {
	if e.db != nil {
		_ = e.db.Close()
	}
	if e.closeLog != nil {
		_ = e.closeLog()
	}
}

// runtime is the wired team lead plus what must be released after a run.
type runtime struct {
	lead    *orchestrator.TeamLead
	emitter *monitor.Emitter
	watcher *signals.Watcher
	logger  *zap.Logger
}

// Close stops the signal watcher and the event stream.
func (r *runtime) Close() {
	if r.watcher != nil {
		_ = r.watcher.Close()
	}
	if r.emitter != nil {
		r.emitter.Close()
	}
}

// buildTeamLead wires the team lead from config. When withEvents is set the
// returned runtime carries an emitter for the TUI.
func (e *env) buildTeamLead(withEvents bool) (*runtime, error) {
	cfg := e.cfg
	logger := e.logger
	rt := &runtime{logger: logger}

	catalog := specialist.Builtin()
	if cfg.Paths.CatalogFile != "" {
		c, err := specialist.Load(cfg.Paths.CatalogFile)
		if err != nil {
			return nil, err
		}
		catalog = c
	}
	catalog = catalog.WithBudgets(cfg.Budgets)

	watcher, err := signals.New(cfg.SignalsDir(), logger.Named("signals"))
	if err != nil {
		return nil, fmt.Errorf("watch signals: %w", err)
	}
	rt.watcher = watcher
	if err := watcher.Clear(); err != nil {
		logger.Warn("clear stale stop signal", zap.Error(err))
	}

	trail, err := audit.NewFileTrail(cfg.AuditPath(), logger.Named("audit"))
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("open audit trail: %w", err)
	}

	monitors := monitor.Multi{monitor.Func(func(ev monitor.Event) {
		logger.Debug("event", zap.String("type", string(ev.Type)), zap.String("task_id", ev.TaskID),
			zap.String("specialist", string(ev.Specialist)), zap.String("status", ev.Status))
	})}
	if withEvents {
		rt.emitter = monitor.NewEmitter(256, monitor.NewMetrics(), logger.Named("monitor"))
		monitors = append(monitors, rt.emitter)
	}

	runner := exec.NewRunner()
	markers := verification.Markers{
		Completion: cfg.Execution.CompletionMarker,
		Blocked:    cfg.Execution.BlockedMarker,
	}

	var client *api.Client
	if cfg.Execution.Mode == config.ModeAPI || cfg.Orchestrator.Analyzer == selectProvider || cfg.Orchestrator.Synthesizer == selectProvider {
		client, err = newAPIClient(cfg)
		if err != nil {
			rt.Close()
			return nil, err
		}
	}

	var build agent.Builder
	switch cfg.Execution.Mode {
	case config.ModeCLI:
		if _, err := runner.LookPath(cfg.Execution.ClaudePath); err != nil {
			rt.Close()
			return nil, claudeNotFound(cfg.Execution.ClaudePath)
		}
		build = func(def specialist.Definition) agent.Executor {
			return agent.NewCLIExecutor(agent.CLIExecutorConfig{
				Runner:       runner,
				Binary:       cfg.Execution.ClaudePath,
				Model:        cfg.Anthropic.Model,
				SystemPrompt: def.SystemPrompt(markers.Completion, markers.Blocked),
				WorkDir:      e.workDir,
			})
		}
	default:
		build = func(def specialist.Definition) agent.Executor {
			return agent.NewAPIExecutor(agent.APIExecutorConfig{
				Client:       client,
				SystemPrompt: def.SystemPrompt(markers.Completion, markers.Blocked),
				WorkDir:      e.workDir,
				Runner:       runner,
				Stopper:      watcher,
			})
		}
	}

	var verifier verification.Verifier
	if cfg.Verification.Enabled {
		verifier = verification.NewCommandVerifier(runner,
			verification.WithCommands(cfg.Verification.Commands),
			verification.WithStepTimeout(cfg.Verification.StepTimeout),
			verification.WithLogger(logger.Named("verify")))
	}

	changes := newChangeDetector(cfg, e.workDir, runner)

	specialists := orchestrator.NewAgentRunner(agent.NewFactory(catalog, build), catalog, agent.Config{
		Checkpoints: e.checkpoints,
		Status:      e.status,
		Verifier:    verifier,
		Markers:     markers,
		Changes:     changes,
		Stopper:     watcher,
		WorkDir:     e.workDir,
		CallTimeout: cfg.Execution.CallTimeout,
		Logger:      logger.Named("specialist"),
	}, monitors)

	var analyzer orchestrator.Analyzer
	var synthesizer orchestrator.Synthesizer
	if client != nil {
		completer := api.NewRunner(client)
		if cfg.Orchestrator.Analyzer == selectProvider {
			analyzer = orchestrator.NewProviderAnalyzer(completer, logger.Named("analyzer"))
		}
		if cfg.Orchestrator.Synthesizer == selectProvider {
			synthesizer = orchestrator.NewProviderSynthesizer(completer, logger.Named("synthesizer"))
		}
	}

	rt.lead, err = orchestrator.New(orchestrator.Config{
		Project:        e.project,
		WorkDir:        e.workDir,
		Specialists:    specialists,
		Analyzer:       analyzer,
		Synthesizer:    synthesizer,
		Catalog:        catalog,
		MaxSpecialists: maxSpecialists(cfg.Orchestrator.MaxSpecialists),
		MaxParallel:    cfg.Orchestrator.MaxParallel,
		Quorum:         cfg.Orchestrator.Quorum,
		Verifier:       verifier,
		Changes:        changes,
		Checkpoints:    e.checkpoints,
		Status:         e.status,
		Runs:           e.db,
		Audit:          trail,
		Monitor:        monitors,
		LedgerOptions:  []ledger.Option{ledger.WithMetrics(ledger.NewMetrics())},
		Logger:         logger.Named("teamlead"),
	})
	if err != nil {
		rt.Close()
		return nil, err
	}
	return rt, nil
}

func newAPIClient(cfg *config.Config) (*api.Client, error) {
	key := ""
	if !cfg.Anthropic.UseBedrock {
		var err error
		key, err = config.GetAPIKey(cfg)
		if err != nil {
			return nil, err
		}
	}
	client, err := api.NewClient(api.ClientConfig{
		Model:         cfg.Anthropic.Model,
		APIKey:        key,
		MaxTokens:     int64(cfg.Anthropic.MaxTokens),
		UseAWSBedrock: cfg.Anthropic.UseBedrock,
		AWSRegion:     os.Getenv("AWS_REGION"),
		AWSProfile:    os.Getenv("AWS_PROFILE"),
	})
	if err != nil {
		return nil, fmt.Errorf("create API client: %w", err)
	}
	return client, nil
}

func newChangeDetector(cfg *config.Config, workDir string, runner exec.CommandRunner) git.ChangeDetector {
	opts := git.Options{Exclude: []string{stateDirRel(cfg, workDir)}}
	if cfg.Verification.ChangeDetector == "cli" {
		return git.NewCLIDetector(runner, opts)
	}
	return git.NewGoGitDetector(opts)
}

// stateDirRel is the state directory relative to the working tree, the form
// change detectors exclude.
// maxSpecialists maps the configured cap onto the team lead's: a configured
// zero turns team mode off.
func maxSpecialists(configured int) int {
	if configured == 0 {
		return -1
	}
	return configured
}

func stateDirRel(cfg *config.Config, workDir string) string {
	rel, err := filepath.Rel(workDir, cfg.Paths.StateDir)
	if err != nil {
		return ".squadron"
	}
	return filepath.ToSlash(rel)
}

func claudeNotFound(binary string) error {
	return errors.New(binary + " CLI not found in PATH\n\n" +
		"execution.mode=cli requires the Claude Code CLI.\n\n" +
		"Install it with:\n" +
		"  npm install -g @anthropic-ai/claude-code\n\n" +
		"or switch to direct API calls:\n" +
		"  squadron config execution.mode api")
}
