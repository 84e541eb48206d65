package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ShayCichocki/squadron/internal/audit"
	"github.com/ShayCichocki/squadron/internal/checkpoint"
	"github.com/ShayCichocki/squadron/internal/git"
	"github.com/ShayCichocki/squadron/internal/ledger"
	"github.com/ShayCichocki/squadron/internal/monitor"
	"github.com/ShayCichocki/squadron/internal/specialist"
	"github.com/ShayCichocki/squadron/internal/state"
	"github.com/ShayCichocki/squadron/internal/verification"
	"github.com/ShayCichocki/squadron/pkg/models"
)

// Stage is a step of the team lead state machine.
type Stage string

const (
	StageInit          Stage = "init"
	StageAnalyze       Stage = "analyze"
	StageSelect        Stage = "select"
	StageBuildSubtasks Stage = "build_subtasks"
	StageDispatch      Stage = "dispatch"
	StageValidate      Stage = "validate"
	StageSynthesize    Stage = "synthesize"
	StageVerify        Stage = "verify"
)

// Status is the terminal state of an orchestration.
type Status string

const (
	StatusCompleted   Status = "completed"
	StatusBlocked     Status = "blocked"
	StatusFailed      Status = "failed"
	StatusSingleAgent Status = "single_agent_sufficient"
)

// teamLeadAgent is the agent type written on team lead checkpoints.
const teamLeadAgent = "team_lead"

// Result is everything an orchestration produced, including partial work
// when it failed.
type Result struct {
	TaskID            string                    `json:"task_id"`
	RunID             string                    `json:"run_id"`
	Status            Status                    `json:"status"`
	Reason            string                    `json:"reason,omitempty"`
	Stage             Stage                     `json:"stage"`
	Analysis          *models.TaskAnalysis      `json:"analysis,omitempty"`
	Selected          []models.SpecialistType   `json:"selected,omitempty"`
	SpecialistResults []models.SpecialistResult `json:"specialist_results,omitempty"`
	Unsettled         []models.SpecialistType   `json:"unsettled,omitempty"`
	Validation        *models.Validation        `json:"validation,omitempty"`
	Synthesis         *Synthesis                `json:"synthesis,omitempty"`
	Verdict           *models.Verdict           `json:"verdict,omitempty"`
	ChangedFiles      []string                  `json:"changed_files,omitempty"`
	Cost              ledger.Breakdown          `json:"cost"`
	StartedAt         time.Time                 `json:"started_at"`
	FinishedAt        time.Time                 `json:"finished_at"`
	ResumedFrom       string                    `json:"resumed_from,omitempty"`
}

// Iterations returns the iterations used across all specialists.
func (r *Result) Iterations() int {
	n := 0
	for _, sr := range r.SpecialistResults {
		n += sr.IterationsUsed
	}
	return n
}

// Config wires a TeamLead.
type Config struct {
	Project string
	WorkDir string
	// Specialists runs each subtask. Required.
	Specialists SpecialistRunner
	// Analyzer defaults to the heuristic analyzer.
	Analyzer Analyzer
	// Synthesizer defaults to the template synthesizer.
	Synthesizer Synthesizer
	Catalog     *specialist.Catalog
	// MaxSpecialists caps selection. Zero means DefaultMaxSpecialists and a
	// negative value disables team mode.
	MaxSpecialists int
	// MaxParallel bounds concurrent specialists. Zero runs all at once.
	MaxParallel int
	Quorum      float64
	// Verifier checks the synthesized change-set. Without one the run blocks.
	Verifier verification.Verifier
	Changes  git.ChangeDetector
	// Checkpoints, Status and Runs are optional persistence.
	Checkpoints   *checkpoint.Store
	Status        *checkpoint.StatusStore
	Runs          state.RunStore
	Audit         audit.Trail
	Monitor       monitor.Monitor
	LedgerOptions []ledger.Option
	Logger        *zap.Logger
}

// TeamLead coordinates specialists on one task at a time per Orchestrate call.
// Concurrent Orchestrate calls must use different task IDs.
type TeamLead struct {
	cfg      Config
	fallback *HeuristicAnalyzer
	logger   *zap.Logger
}

// New creates a TeamLead.
func New(cfg Config) (*TeamLead, error) {
	if cfg.Specialists == nil {
		return nil, errors.New("new team lead: specialist runner is required")
	}
	if cfg.Analyzer == nil {
		cfg.Analyzer = NewHeuristicAnalyzer()
	}
	if cfg.Synthesizer == nil {
		cfg.Synthesizer = TemplateSynthesizer{}
	}
	if cfg.Catalog == nil {
		cfg.Catalog = specialist.Builtin()
	}
	if cfg.MaxSpecialists == 0 {
		cfg.MaxSpecialists = DefaultMaxSpecialists
	}
	if cfg.Monitor == nil {
		cfg.Monitor = monitor.Nop{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	cfg.Audit = audit.Safe(cfg.Audit, cfg.Logger)
	return &TeamLead{cfg: cfg, fallback: NewHeuristicAnalyzer(), logger: cfg.Logger}, nil
}

// orchestration is the mutable state of one Orchestrate call.
type orchestration struct {
	taskID      string
	description string
	ledger      *ledger.Ledger
	result      *Result
	run         *state.Run
	resume      *state.Run
	baseline    string
	logger      *zap.Logger
	body        strings.Builder
}

// Orchestrate runs the full pipeline for one task. Blocked and
// single-agent outcomes are successful returns; any error that escapes a
// stage ends the run as failed and is returned with the partial Result.
func (l *TeamLead) Orchestrate(ctx context.Context, taskID, description string) (*Result, error) {
	if err := checkpoint.ValidateTaskID(taskID); err != nil {
		return nil, fmt.Errorf("orchestrate: %w", err)
	}
	return l.orchestrate(ctx, taskID, description, nil)
}

// Resume runs an interrupted run's task again. Specialists continue their
// open attempts and keep results they settled before the interruption.
// Change detection diffs against the baseline prev started from.
func (l *TeamLead) Resume(ctx context.Context, prev *state.Run) (*Result, error) {
	if prev == nil {
		return nil, errors.New("resume: run is required")
	}
	if err := checkpoint.ValidateTaskID(prev.TaskID); err != nil {
		return nil, fmt.Errorf("resume %s: %w", prev.ID, err)
	}
	return l.orchestrate(ctx, prev.TaskID, prev.Description, prev)
}

func (l *TeamLead) orchestrate(ctx context.Context, taskID, description string, prev *state.Run) (result *Result, err error) {

	o := &orchestration{
		taskID:      taskID,
		description: description,
		ledger:      ledger.New(l.cfg.LedgerOptions...),
		result: &Result{
			TaskID:    taskID,
			RunID:     uuid.New().String(),
			Stage:     StageInit,
			StartedAt: time.Now(),
		},
		resume: prev,
		logger: l.logger.With(zap.String("task_id", taskID)),
	}
	fmt.Fprintf(&o.body, "# Team lead: %s\n\n%s\n", taskID, description)
	if prev != nil {
		o.result.ResumedFrom = prev.ID
		fmt.Fprintf(&o.body, "\nResumed from run %s.\n", prev.ID)
	}

	l.setBaseline(o)
	l.startRun(o)
	l.notify(monitor.Event{Type: monitor.EventTaskStart, TaskID: taskID, Message: description})

	defer func() {
		if p := recover(); p != nil {
			o.logger.Error("orchestration panicked", zap.Any("panic", p), zap.ByteString("stack", debug.Stack()))
			err = fmt.Errorf("orchestrate %s: panic in %s: %v", taskID, o.result.Stage, p)
		}
		if err != nil {
			o.result.Status = StatusFailed
			o.result.Reason = err.Error()
		}
		l.finish(o, err)
		result = o.result
	}()

	if err := l.run(ctx, o); err != nil {
		return nil, fmt.Errorf("orchestrate %s at %s: %w", taskID, o.result.Stage, err)
	}
	return o.result, nil
}

func (l *TeamLead) run(ctx context.Context, o *orchestration) error {
	if err := l.enter(ctx, o, StageAnalyze); err != nil {
		return err
	}
	l.analyze(ctx, o)

	if err := l.enter(ctx, o, StageSelect); err != nil {
		return err
	}
	selected := SelectSpecialists(o.result.Analysis, l.cfg.MaxSpecialists)
	o.result.Selected = selected
	if len(selected) == 0 {
		o.result.Status = StatusSingleAgent
		o.result.Reason = "no specialists selected; a single agent is sufficient"
		return nil
	}

	if err := l.enter(ctx, o, StageBuildSubtasks); err != nil {
		return err
	}
	subtasks := BuildSubTasks(o.taskID, l.cfg.Project, o.description, selected, l.cfg.Catalog)
	if o.resume != nil {
		for i := range subtasks {
			subtasks[i].Resume = true
		}
	}

	if err := l.enter(ctx, o, StageDispatch); err != nil {
		return err
	}
	o.result.SpecialistResults = l.dispatch(ctx, o, subtasks)
	for _, r := range o.result.SpecialistResults {
		fmt.Fprintf(&o.body, "- %s: %s (%d iterations)\n", r.SpecialistType, r.Status, r.IterationsUsed)
	}
	l.checkSettled(ctx, o, selected)

	if err := l.enter(ctx, o, StageValidate); err != nil {
		return err
	}
	validation := Validate(o.result.SpecialistResults, l.cfg.Quorum)
	o.result.Validation = &validation
	if validation.BypassDetected {
		o.logger.Warn("verification bypass detected", zap.Any("specialists", validation.Bypassers))
		l.cfg.Audit.LogBypassAttempt(o.taskID, validation)
	}
	l.cfg.Audit.LogValidationResult(o.taskID, validation)
	if !validation.Accepted {
		o.result.Status = StatusBlocked
		o.result.Reason = validation.Reason
		return nil
	}

	if err := l.enter(ctx, o, StageSynthesize); err != nil {
		return err
	}
	l.synthesize(ctx, o)

	if err := l.enter(ctx, o, StageVerify); err != nil {
		return err
	}
	verdict, err := l.verifySynthesis(ctx, o)
	if err != nil {
		return err
	}
	o.result.Verdict = verdict
	l.notify(monitor.Event{Type: monitor.EventVerificationDone, TaskID: o.taskID, Verdict: verdict.Type, Message: verdict.Reason})

	if verdict.Type == models.VerdictPass {
		o.result.Status = StatusCompleted
		o.result.Reason = verdict.Reason
		return nil
	}
	o.result.Status = StatusBlocked
	o.result.Reason = fmt.Sprintf("verification %s: %s", verdict.Type, verdict.Reason)
	return nil
}

// setBaseline fixes the commit change detection diffs against. A resumed run
// restores its predecessor's baseline; otherwise HEAD is snapshotted.
func (l *TeamLead) setBaseline(o *orchestration) {
	if l.cfg.Changes == nil {
		return
	}
	if o.resume != nil && o.resume.Baseline != "" {
		err := l.cfg.Changes.SetBaseline(l.cfg.WorkDir, o.resume.Baseline)
		if err == nil {
			o.baseline = o.resume.Baseline
			return
		}
		o.logger.Warn("stored change baseline unusable, snapshotting HEAD",
			zap.String("baseline", o.resume.Baseline), zap.Error(err))
	}
	base, err := l.cfg.Changes.Snapshot(l.cfg.WorkDir)
	if err != nil {
		o.logger.Warn("change baseline failed", zap.Error(err))
		return
	}
	o.baseline = base
}

// checkSettled compares the side-file with the dispatched specialists. A
// specialist that returned without settling there is recorded on the result.
func (l *TeamLead) checkSettled(ctx context.Context, o *orchestration, selected []models.SpecialistType) {
	if l.cfg.Status == nil || ctx.Err() != nil {
		return
	}
	pending, err := l.cfg.Status.Unsettled(o.taskID, selected)
	if err != nil {
		o.logger.Warn("status settle check failed", zap.Error(err))
		return
	}
	if len(pending) > 0 {
		o.logger.Warn("specialists returned without settling", zap.Any("specialists", pending))
		o.result.Unsettled = pending
	}
}

// enter moves to the next stage and checkpoints it.
func (l *TeamLead) enter(ctx context.Context, o *orchestration, stage Stage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	o.result.Stage = stage
	o.logger.Debug("stage", zap.String("stage", string(stage)))
	l.checkpoint(o, checkpoint.StatusInProgress, "")
	return nil
}

func (l *TeamLead) analyze(ctx context.Context, o *orchestration) {
	l.notify(monitor.Event{Type: monitor.EventAnalysisStarted, TaskID: o.taskID})

	analysis, usage, err := l.cfg.Analyzer.Analyze(ctx, o.description)
	l.spend(o, ledger.PhaseAnalysis, usage)
	if err != nil || analysis == nil {
		o.logger.Warn("analysis failed, using heuristics", zap.Error(err))
		analysis, _, _ = l.fallback.Analyze(ctx, o.description)
	}
	o.result.Analysis = analysis
	fmt.Fprintf(&o.body, "\n## Analysis (%s)\n\ncomplexity: %s\nrecommended: %s\n",
		analysis.Source, analysis.Complexity, strings.Join(analysis.RecommendedSpecialists, ", "))

	if l.cfg.Status != nil {
		if err := l.cfg.Status.SetAnalysis(o.taskID, analysis); err != nil {
			o.logger.Warn("status analysis update failed", zap.Error(err))
		}
	}
}

// dispatch runs every subtask concurrently and waits for all of them. A
// panicking specialist becomes a failed result.
func (l *TeamLead) dispatch(ctx context.Context, o *orchestration, subtasks []models.SubTask) []models.SpecialistResult {
	results := make([]models.SpecialistResult, len(subtasks))

	var g errgroup.Group
	if l.cfg.MaxParallel > 0 {
		g.SetLimit(l.cfg.MaxParallel)
	}
	for i, st := range subtasks {
		g.Go(func() error {
			l.notify(monitor.Event{
				Type:       monitor.EventSpecialistStarted,
				TaskID:     o.taskID,
				SubTaskID:  st.ID,
				Specialist: st.SpecialistType,
				Budget:     l.cfg.Catalog.Budget(st.SpecialistType),
				Message:    st.Title,
			})

			res := l.runSpecialist(ctx, o, st)
			results[i] = res

			ev := monitor.Event{
				Type:       monitor.EventSpecialistCompleted,
				TaskID:     o.taskID,
				SubTaskID:  st.ID,
				Specialist: st.SpecialistType,
				Iteration:  res.IterationsUsed,
				Status:     string(res.Status),
				Message:    res.Error,
				TokensUsed: res.TokensUsed,
				Cost:       res.Cost,
			}
			if res.Verdict != nil {
				ev.Verdict = res.Verdict.Type
				if ev.Message == "" {
					ev.Message = res.Verdict.Reason
				}
			}
			l.notify(ev)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (l *TeamLead) runSpecialist(ctx context.Context, o *orchestration, st models.SubTask) (res models.SpecialistResult) {
	defer func() {
		if p := recover(); p != nil {
			o.logger.Error("specialist panicked", zap.String("subtask_id", st.ID), zap.Any("panic", p))
			res = failedResult(st, fmt.Sprintf("panic: %v", p))
		}
	}()
	return l.cfg.Specialists.Run(ctx, st, o.ledger)
}

func (l *TeamLead) synthesize(ctx context.Context, o *orchestration) {
	l.notify(monitor.Event{Type: monitor.EventSynthesisStarted, TaskID: o.taskID})

	in := SynthesisInput{
		TaskID:      o.taskID,
		Description: o.description,
		Analysis:    o.result.Analysis,
		Results:     o.result.SpecialistResults,
	}
	synthesis, err := l.cfg.Synthesizer.Synthesize(ctx, in)
	if err != nil || synthesis == nil {
		o.logger.Warn("synthesis failed, using template", zap.Error(err))
		synthesis, _ = TemplateSynthesizer{}.Synthesize(ctx, in)
	}
	l.spend(o, ledger.PhaseSynthesis, synthesis.Usage)
	o.result.Synthesis = synthesis
	l.cfg.Audit.LogSynthesisResult(o.taskID, synthesis.Source, len(o.result.SpecialistResults), len(synthesis.Text))
}

// verifySynthesis checks the change-set made during the task. An empty
// change-set, a missing verifier or an unresolvable project all block.
func (l *TeamLead) verifySynthesis(ctx context.Context, o *orchestration) (*models.Verdict, error) {
	var changed []string
	if l.cfg.Changes != nil {
		files, err := l.cfg.Changes.ChangedFiles(l.cfg.WorkDir)
		if err != nil {
			return nil, fmt.Errorf("detect changes: %w", err)
		}
		changed = files
	}
	o.result.ChangedFiles = changed

	var verdict *models.Verdict
	switch {
	case len(changed) == 0:
		verdict = models.BlockedVerdict("no work detected: the change-set is empty")
	case l.cfg.Verifier == nil:
		verdict = models.BlockedVerdict("cannot verify: no verification provider configured")
	default:
		v, err := l.cfg.Verifier.Verify(ctx, verification.Request{
			Project:      l.cfg.WorkDir,
			ChangedFiles: changed,
			SessionID:    o.taskID,
			Context:      o.description,
		})
		switch {
		case errors.Is(err, verification.ErrNoProjectContext):
			verdict = models.BlockedVerdict("cannot verify: " + err.Error())
		case err != nil:
			return nil, fmt.Errorf("verify synthesis: %w", err)
		case v == nil || !v.Type.Valid():
			return nil, errors.New("verify synthesis: verifier returned no usable verdict")
		default:
			verdict = v
		}
	}

	l.cfg.Audit.LogVerification(o.taskID, verdict, changed)
	fmt.Fprintf(&o.body, "\n## Verification: %s\n\n%s\n", verdict.Type, verdict.Reason)
	return verdict, nil
}

func (l *TeamLead) spend(o *orchestration, phase ledger.Phase, usage models.Usage) {
	if usage.Total() == 0 {
		return
	}
	if _, err := o.ledger.Record(phase, "", usage); err != nil {
		o.logger.Warn("ledger record failed", zap.String("phase", string(phase)), zap.Error(err))
	}
}

// finish records the terminal state everywhere it is tracked.
func (l *TeamLead) finish(o *orchestration, runErr error) {
	r := o.result
	r.Cost = o.ledger.Breakdown()
	r.FinishedAt = time.Now()

	fmt.Fprintf(&o.body, "\n## Result: %s\n\n%s\n", r.Status, r.Reason)
	l.checkpoint(o, checkpointStatus(r.Status), errString(runErr))
	if r.Status == StatusCompleted {
		l.archive(o)
	}
	l.finishRun(o, runErr)

	o.logger.Info("orchestration finished",
		zap.String("status", string(r.Status)),
		zap.String("reason", r.Reason),
		zap.Float64("cost", r.Cost.Total))
	l.notify(monitor.Event{
		Type:       monitor.EventTaskComplete,
		TaskID:     o.taskID,
		Status:     string(r.Status),
		Message:    r.Reason,
		TokensUsed: r.Cost.Tokens,
		Cost:       r.Cost.Total,
	})
}

func (l *TeamLead) checkpoint(o *orchestration, status checkpoint.Status, errMsg string) {
	if l.cfg.Checkpoints == nil {
		return
	}
	phase := string(o.result.Stage)
	if !status.Open() && o.result.Status != "" {
		phase = string(o.result.Status)
	}
	last := ""
	if o.result.Synthesis != nil {
		last = truncate(o.result.Synthesis.Text, 1000)
	}
	_, err := l.cfg.Checkpoints.Save(&checkpoint.Record{
		TaskID:     o.taskID,
		Phase:      phase,
		Status:     status,
		LastOutput: last,
		NextSteps:  nextSteps(o.result),
		TokensUsed: o.ledger.Breakdown().Tokens,
		AgentType:  teamLeadAgent,
		Error:      errMsg,
		Body:       o.body.String(),
	})
	if err != nil {
		o.logger.Warn("team lead checkpoint failed", zap.String("phase", phase), zap.Error(err))
	}
}

// archive moves the team lead's and the specialists' checkpoints into the
// archive so the next run of the task starts fresh.
func (l *TeamLead) archive(o *orchestration) {
	if l.cfg.Checkpoints == nil {
		return
	}
	ids := []string{o.taskID}
	for _, r := range o.result.SpecialistResults {
		ids = append(ids, r.SubTaskID)
	}
	for _, id := range ids {
		if _, err := l.cfg.Checkpoints.ArchiveAll(id); err != nil {
			o.logger.Warn("archive checkpoints failed", zap.String("id", id), zap.Error(err))
		}
	}
}

func (l *TeamLead) startRun(o *orchestration) {
	if l.cfg.Runs == nil {
		return
	}
	o.run = &state.Run{
		ID:          o.result.RunID,
		TaskID:      o.taskID,
		Project:     l.cfg.Project,
		Description: o.description,
		Status:      state.RunRunning,
		Baseline:    o.baseline,
		PID:         os.Getpid(),
		StartedAt:   o.result.StartedAt,
	}
	if err := l.cfg.Runs.CreateRun(o.run); err != nil {
		o.logger.Warn("record run failed", zap.Error(err))
		o.run = nil
	}
}

func (l *TeamLead) finishRun(o *orchestration, runErr error) {
	if o.run == nil {
		return
	}
	now := time.Now()
	o.run.Status = runStatus(o.result.Status, runErr)
	o.run.Reason = o.result.Reason
	o.run.TotalCost = o.result.Cost.Total
	o.run.UpdatedAt = now
	if o.run.Status.Terminal() {
		o.run.CompletedAt = &now
	}
	if err := l.cfg.Runs.UpdateRun(o.run); err != nil {
		o.logger.Warn("update run failed", zap.Error(err))
	}
}

func (l *TeamLead) notify(ev monitor.Event) {
	monitor.Safe(l.cfg.Monitor, ev, l.logger)
}

// runStatus maps an outcome to the run table. A cancelled run stays
// resumable.
func runStatus(s Status, err error) state.RunStatus {
	switch {
	case errors.Is(err, context.Canceled):
		return state.RunInterrupted
	case s == StatusCompleted || s == StatusSingleAgent:
		return state.RunCompleted
	case s == StatusBlocked:
		return state.RunBlocked
	default:
		return state.RunFailed
	}
}

func checkpointStatus(s Status) checkpoint.Status {
	switch s {
	case StatusCompleted, StatusSingleAgent:
		return checkpoint.StatusCompleted
	case StatusBlocked:
		return checkpoint.StatusBlocked
	default:
		return checkpoint.StatusFailed
	}
}

// nextSteps lists what an operator should look at after the run.
func nextSteps(r *Result) []string {
	steps := []string{}
	switch r.Status {
	case StatusBlocked:
		steps = append(steps, r.Reason)
		for _, sr := range r.SpecialistResults {
			if !sr.Passed() && sr.Verdict != nil {
				steps = append(steps, fmt.Sprintf("%s: %s", sr.SpecialistType, sr.Verdict.Reason))
			}
		}
	case StatusFailed:
		steps = append(steps, "inspect the failure and run squadron resume")
	}
	return steps
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
