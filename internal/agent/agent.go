package agent

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ShayCichocki/squadron/internal/api"
	"github.com/ShayCichocki/squadron/internal/checkpoint"
	"github.com/ShayCichocki/squadron/internal/git"
	"github.com/ShayCichocki/squadron/internal/ledger"
	"github.com/ShayCichocki/squadron/internal/verification"
	"github.com/ShayCichocki/squadron/pkg/models"
)

// StoppedReason is the block reason recorded when the operator stops a run.
const StoppedReason = "stopped by operator"

// maxCheckpointOutput bounds the output stored in each checkpoint header.
const maxCheckpointOutput = 1000

// IterationEvent is reported after every checkpointed iteration.
type IterationEvent struct {
	SubTaskID      string
	SpecialistType models.SpecialistType
	Iteration      int
	Budget         int
	Verdict        models.VerdictType
	TokensUsed     int64
	Cost           float64
}

// Config wires a SpecialistAgent to its collaborators.
type Config struct {
	// Executor runs each attempt. Required.
	Executor Executor
	// Checkpoints receives one record per iteration. Required.
	Checkpoints *checkpoint.Store
	// Status is the per-task side-file; optional.
	Status *checkpoint.StatusStore
	// Verifier judges completed attempts; nil falls back to Markers alone.
	Verifier verification.Verifier
	Markers  verification.Markers
	// Changes supplies the change-set handed to Verifier.
	Changes git.ChangeDetector
	// Ledger records every provider call; optional.
	Ledger *ledger.Ledger
	// Stopper is consulted at every iteration boundary; optional.
	Stopper api.Stopper
	// Budget is the iteration budget. Zero or less yields an immediate timeout.
	Budget int
	// WorkDir is the shared working tree.
	WorkDir string
	// CallTimeout bounds one executor call. Zero means no deadline.
	CallTimeout time.Duration
	// OnIteration is called after each iteration checkpoint.
	OnIteration func(IterationEvent)
	Logger      *zap.Logger
}

// SpecialistAgent executes one subtask with a bounded run/verify loop.
// Each Execute call is independent; an agent may be reused sequentially.
type SpecialistAgent struct {
	cfg    Config
	logger *zap.Logger
}

// New creates a SpecialistAgent.
func New(cfg Config) (*SpecialistAgent, error) {
	if cfg.Executor == nil {
		return nil, errors.New("new specialist agent: executor is required")
	}
	if cfg.Checkpoints == nil {
		return nil, errors.New("new specialist agent: checkpoint store is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SpecialistAgent{cfg: cfg, logger: logger}, nil
}

// run is the mutable state of one Execute call.
type run struct {
	st        models.SubTask
	phase     Phase
	iteration int
	output    string
	hasOutput bool
	verdict   *models.Verdict
	feedback  string
	tokens    int64
	cost      float64
	resumed   bool
	// saved is the iteration count of the latest checkpoint written.
	saved   int
	settled *models.SpecialistResult
	body    strings.Builder
}

func (r *run) transition(to Phase) error {
	if !CanTransition(r.phase, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.phase, to)
	}
	r.phase = to
	return nil
}

// Execute runs the subtask to a terminal status. It never returns an error:
// failures and panics become failed results so a sibling specialist is never
// affected. A cancelled ctx leaves the attempt open at its last completed
// iteration so a later Execute continues it.
func (a *SpecialistAgent) Execute(ctx context.Context, st models.SubTask) (result models.SpecialistResult) {
	r := &run{st: st, phase: PhaseStartup}
	logger := a.logger.With(zap.String("subtask_id", st.ID), zap.String("specialist", string(st.SpecialistType)))

	defer func() {
		if p := recover(); p != nil {
			logger.Error("specialist panicked", zap.Any("panic", p), zap.ByteString("stack", debug.Stack()))
			result = a.finish(r, models.ResultFailed, models.FailedVerdict(fmt.Sprintf("panic: %v", p)), fmt.Sprintf("panic: %v", p))
		}
	}()

	if err := a.start(r); err != nil {
		logger.Error("specialist startup failed", zap.Error(err))
		return a.finish(r, models.ResultFailed, models.FailedVerdict(err.Error()), err.Error())
	}
	if r.settled != nil {
		logger.Info("specialist already settled", zap.String("status", string(r.settled.Status)))
		return *r.settled
	}
	logger.Info("specialist started", zap.Int("budget", a.cfg.Budget), zap.Int("iteration", r.iteration), zap.Bool("resumed", r.resumed))

	for r.iteration < a.cfg.Budget {
		if a.cfg.Stopper != nil && a.cfg.Stopper.ShouldStop() {
			return a.finish(r, models.ResultBlocked, models.BlockedVerdict(StoppedReason), "")
		}
		if err := ctx.Err(); err != nil {
			return a.interrupt(r, err)
		}

		verdict, err := a.iterate(ctx, r)
		switch {
		case err != nil && ctx.Err() != nil:
			logger.Info("specialist interrupted", zap.Int("iteration", r.iteration), zap.Error(err))
			return a.interrupt(r, ctx.Err())
		case errors.Is(err, api.ErrStopped):
			return a.finish(r, models.ResultBlocked, models.BlockedVerdict(StoppedReason), "")
		case err != nil:
			logger.Warn("iteration failed", zap.Int("iteration", r.iteration), zap.Error(err))
			return a.finish(r, models.ResultFailed, models.FailedVerdict(err.Error()), err.Error())
		}

		logger.Debug("iteration verified", zap.Int("iteration", r.iteration), zap.String("verdict", string(verdict.Type)))
		switch verdict.Type {
		case models.VerdictPass:
			return a.finish(r, models.ResultCompleted, verdict, "")
		case models.VerdictBlocked:
			return a.finish(r, models.ResultBlocked, verdict, "")
		}
		r.feedback = feedbackFor(verdict)
	}

	return a.finish(r, models.ResultTimeout, r.verdict, "")
}

// start resumes an open attempt by the same specialist type, then writes the
// startup checkpoint and marks the specialist launched. When the subtask is
// resumed and its latest attempt already settled, the settled result is
// rebuilt instead.
func (a *SpecialistAgent) start(r *run) error {
	prev, err := a.cfg.Checkpoints.Load(r.st.ID)
	switch {
	case err == nil && r.st.Resume && reusable(prev, r.st.SpecialistType):
		r.settled = a.settledResult(r.st, prev)
		return nil
	case err == nil && prev.Status.Open() && prev.AgentType == string(r.st.SpecialistType):
		r.resumed = true
		r.iteration = prev.IterationCount
		r.output = prev.LastOutput
		r.hasOutput = prev.LastOutput != ""
		r.tokens = prev.TokensUsed
		r.saved = prev.IterationCount
		r.feedback = strings.Join(prev.NextSteps, "\n")
		r.body.WriteString(prev.Body)
	case err == nil && prev.Status.Open():
		// Another specialist type left an open attempt under this ID. Close it
		// so the fresh attempt starts its own session.
		abandoned := prev.IterationCount
		_, err := a.cfg.Checkpoints.Save(&checkpoint.Record{
			TaskID:         r.st.ID,
			IterationCount: abandoned,
			Phase:          string(PhaseFailed),
			Status:         checkpoint.StatusFailed,
			LastOutput:     prev.LastOutput,
			AgentType:      prev.AgentType,
			MaxIterations:  prev.MaxIterations,
			Error:          "superseded by " + string(r.st.SpecialistType),
			Body:           prev.Body,
		})
		if err != nil {
			return fmt.Errorf("close previous attempt: %w", err)
		}
	case err != nil && !errors.Is(err, checkpoint.ErrNotFound):
		a.logger.Warn("ignoring unreadable checkpoint", zap.String("subtask_id", r.st.ID), zap.Error(err))
	}

	if r.resumed {
		fmt.Fprintf(&r.body, "\n## Resumed at iteration %d\n", r.iteration)
	} else {
		fmt.Fprintf(&r.body, "# %s: %s\n\n%s\n", r.st.SpecialistType, r.st.Title, r.st.Description)
	}

	if err := a.checkpoint(r, checkpoint.StatusInProgress, ""); err != nil {
		return err
	}
	if a.cfg.Status != nil {
		if err := a.cfg.Status.Launch(r.st.TaskID, r.st.SpecialistType, r.st.ID); err != nil {
			a.logger.Warn("status launch failed", zap.String("subtask_id", r.st.ID), zap.Error(err))
		}
	}
	return nil
}

// iterate performs run, verify and checkpoint for one iteration.
func (a *SpecialistAgent) iterate(ctx context.Context, r *run) (*models.Verdict, error) {
	if err := r.transition(PhaseIterating); err != nil {
		return nil, err
	}
	r.iteration++

	attempt := Attempt{
		SubTask:   r.st,
		Iteration: r.iteration,
		Budget:    a.cfg.Budget,
		Feedback:  r.feedback,
	}
	if r.resumed && r.hasOutput {
		attempt.PreviousOutput = r.output
	}

	execution, err := a.execute(ctx, attempt)
	if execution != nil {
		a.account(r, execution)
	}
	if err != nil {
		return nil, fmt.Errorf("execute iteration %d: %w", r.iteration, err)
	}
	r.output = execution.Output
	r.hasOutput = true

	verdict, err := a.verify(ctx, r, execution)
	if err != nil {
		return nil, fmt.Errorf("verify iteration %d: %w", r.iteration, err)
	}
	if !verdict.Type.Valid() {
		return nil, fmt.Errorf("verify iteration %d: unknown verdict %q", r.iteration, verdict.Type)
	}
	r.verdict = verdict

	fmt.Fprintf(&r.body, "\n## Iteration %d: %s\n\n%s\n", r.iteration, verdict.Type, verdict.Reason)
	if err := a.checkpoint(r, checkpoint.StatusInProgress, ""); err != nil {
		return nil, err
	}
	if a.cfg.Status != nil {
		entry := checkpoint.IterationEntry{Iteration: r.iteration, Verdict: string(verdict.Type), Summary: verdict.Reason}
		if err := a.cfg.Status.RecordIteration(r.st.TaskID, r.st.SpecialistType, entry, r.tokens, r.cost); err != nil {
			a.logger.Warn("status update failed", zap.String("subtask_id", r.st.ID), zap.Error(err))
		}
	}
	if a.cfg.OnIteration != nil {
		a.cfg.OnIteration(IterationEvent{
			SubTaskID:      r.st.ID,
			SpecialistType: r.st.SpecialistType,
			Iteration:      r.iteration,
			Budget:         a.cfg.Budget,
			Verdict:        verdict.Type,
			TokensUsed:     r.tokens,
			Cost:           r.cost,
		})
	}
	return verdict, nil
}

func (a *SpecialistAgent) execute(ctx context.Context, attempt Attempt) (*Execution, error) {
	if a.cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.CallTimeout)
		defer cancel()
	}
	execution, err := a.cfg.Executor.Execute(ctx, attempt)
	if err == nil && execution == nil {
		return nil, errors.New("executor returned no result")
	}
	return execution, err
}

// account records the call's spend against the specialist.
func (a *SpecialistAgent) account(r *run, e *Execution) {
	r.tokens += e.Usage.Total()
	name := string(r.st.SpecialistType)

	if a.cfg.Ledger == nil {
		r.cost += e.Cost
		return
	}
	if e.Cost > 0 {
		if err := a.cfg.Ledger.RecordCost(ledger.PhaseSpecialist, name, e.Usage, e.Cost); err != nil {
			a.logger.Warn("ledger record failed", zap.Error(err))
			return
		}
		r.cost += e.Cost
		return
	}
	cost, err := a.cfg.Ledger.Record(ledger.PhaseSpecialist, name, e.Usage)
	if err != nil {
		a.logger.Warn("ledger record failed", zap.Error(err))
		return
	}
	r.cost += cost
}

// verify turns an execution into a verdict. An explicit block always wins.
// Without a verifier the completion marker decides. With one, the change-set
// is only verified once the specialist declares completion.
func (a *SpecialistAgent) verify(ctx context.Context, r *run, e *Execution) (*models.Verdict, error) {
	markers := a.cfg.Markers
	if reason, ok := markers.BlockReason(e.Output); ok {
		return models.BlockedVerdict(reason), nil
	}
	if a.cfg.Verifier == nil {
		return markers.Evaluate(e.Output), nil
	}
	if !markers.Complete(e.Output) {
		return &models.Verdict{Type: models.VerdictFail, Reason: "specialist has not declared completion"}, nil
	}

	var changed []string
	if a.cfg.Changes != nil {
		files, err := a.cfg.Changes.ChangedFiles(a.cfg.WorkDir)
		if err != nil {
			a.logger.Warn("change detection failed", zap.String("subtask_id", r.st.ID), zap.Error(err))
		}
		changed = files
	}

	verdict, err := a.cfg.Verifier.Verify(ctx, verification.Request{
		Project:      a.cfg.WorkDir,
		ChangedFiles: changed,
		SessionID:    r.st.ID,
		Context:      r.st.Context,
	})
	if errors.Is(err, verification.ErrNoProjectContext) {
		return models.BlockedVerdict("cannot verify: " + err.Error()), nil
	}
	if err != nil {
		return nil, err
	}
	if verdict == nil {
		return nil, errors.New("verifier returned no verdict")
	}
	return verdict, nil
}

// reusable reports whether prev is a settled attempt by specialist t whose
// result can stand for a resumed subtask. Failed attempts run again.
func reusable(prev *checkpoint.Record, t models.SpecialistType) bool {
	if prev.AgentType != string(t) {
		return false
	}
	switch prev.Status {
	case checkpoint.StatusCompleted, checkpoint.StatusBlocked, checkpoint.StatusTimeout:
		return true
	}
	return false
}

// settledResult rebuilds the result of a settled attempt from its terminal
// checkpoint and the status side-file.
func (a *SpecialistAgent) settledResult(st models.SubTask, rec *checkpoint.Record) *models.SpecialistResult {
	result := &models.SpecialistResult{
		SpecialistType: st.SpecialistType,
		SubTaskID:      st.ID,
		Status:         resultStatus(rec.Status),
		IterationsUsed: min(rec.IterationCount, max(a.cfg.Budget, 0)),
		TokensUsed:     rec.TokensUsed,
	}
	output := rec.LastOutput

	var verdict *models.Verdict
	if a.cfg.Status != nil {
		doc, err := a.cfg.Status.Get(st.TaskID)
		if err != nil {
			a.logger.Warn("status read failed", zap.String("subtask_id", st.ID), zap.Error(err))
		} else if s, ok := doc.Specialists[string(st.SpecialistType)]; ok && s.Settled() {
			if s.Verdict != "" {
				verdict = &models.Verdict{Type: models.VerdictType(s.Verdict), Reason: s.Reason}
			}
			result.Cost = s.Cost
			result.VerificationMissing = s.VerificationMissing
			if output == "" {
				output = s.FinalOutput
			}
		}
	}
	if verdict == nil {
		verdict = verdictFor(rec)
	}
	result.Verdict = verdict
	if output != "" {
		result.Output = &output
	}
	return result
}

// interrupt ends a cancelled attempt without a terminal checkpoint. The
// latest checkpoint stays open at the last completed iteration.
func (a *SpecialistAgent) interrupt(r *run, cause error) models.SpecialistResult {
	msg := "interrupted: " + cause.Error()
	result := models.SpecialistResult{
		SpecialistType: r.st.SpecialistType,
		SubTaskID:      r.st.ID,
		Status:         models.ResultFailed,
		Verdict:        models.FailedVerdict(msg),
		IterationsUsed: min(r.saved, max(a.cfg.Budget, 0)),
		Error:          msg,
		TokensUsed:     r.tokens,
		Cost:           r.cost,
	}
	if r.hasOutput {
		out := r.output
		result.Output = &out
	}
	return result
}

// finish writes the terminal checkpoint and builds the result.
func (a *SpecialistAgent) finish(r *run, status models.ResultStatus, verdict *models.Verdict, errMsg string) models.SpecialistResult {
	r.phase = phaseFor(status)
	if verdict != nil {
		r.verdict = verdict
	}

	result := models.SpecialistResult{
		SpecialistType: r.st.SpecialistType,
		SubTaskID:      r.st.ID,
		Status:         status,
		Verdict:        r.verdict,
		IterationsUsed: min(r.iteration, max(a.cfg.Budget, 0)),
		Error:          errMsg,
		TokensUsed:     r.tokens,
		Cost:           r.cost,
	}
	if r.hasOutput {
		out := r.output
		result.Output = &out
	}
	if status == models.ResultCompleted && (r.verdict == nil || len(r.verdict.Steps) == 0) {
		result.VerificationMissing = true
	}

	reason := ""
	if r.verdict != nil {
		reason = r.verdict.Reason
	}
	fmt.Fprintf(&r.body, "\n## Result: %s\n\n%s\n", status, reason)

	if err := a.checkpoint(r, checkpointStatus(status), errMsg); err != nil {
		a.logger.Error("terminal checkpoint failed", zap.String("subtask_id", r.st.ID), zap.Error(err))
		if result.Error == "" && status == models.ResultFailed {
			result.Error = err.Error()
		}
	}
	if a.cfg.Status != nil {
		c := checkpoint.Completion{
			Status:              status,
			Reason:              reason,
			Iterations:          r.iteration,
			TokensUsed:          r.tokens,
			Cost:                r.cost,
			FinalOutput:         r.output,
			VerificationMissing: result.VerificationMissing,
		}
		if r.verdict != nil {
			c.Verdict = r.verdict.Type
		}
		err := a.cfg.Status.Complete(r.st.TaskID, r.st.SpecialistType, c)
		if err != nil {
			a.logger.Warn("status completion failed", zap.String("subtask_id", r.st.ID), zap.Error(err))
		}
	}
	return result
}

func (a *SpecialistAgent) checkpoint(r *run, status checkpoint.Status, errMsg string) error {
	_, err := a.cfg.Checkpoints.Save(&checkpoint.Record{
		TaskID:         r.st.ID,
		IterationCount: r.iteration,
		Phase:          string(r.phase),
		Status:         status,
		LastOutput:     truncate(r.output, maxCheckpointOutput),
		NextSteps:      nextSteps(r.verdict),
		TokensUsed:     r.tokens,
		AgentType:      string(r.st.SpecialistType),
		MaxIterations:  a.cfg.Budget,
		Error:          errMsg,
		Body:           r.body.String(),
	})
	if err != nil {
		return fmt.Errorf("checkpoint %s: %w", r.st.ID, err)
	}
	r.saved = r.iteration
	return nil
}

// feedbackFor turns a non-terminal verdict into guidance for the next attempt.
func feedbackFor(v *models.Verdict) string {
	return strings.Join(nextSteps(v), "\n")
}

func nextSteps(v *models.Verdict) []string {
	if v == nil || v.Type == models.VerdictPass {
		return []string{}
	}
	steps := []string{}
	if v.Reason != "" {
		steps = append(steps, v.Reason)
	}
	for _, s := range v.Steps {
		if s.Passed {
			continue
		}
		line := "Fix failing step: " + s.Step
		if s.Output != "" {
			line += "\n" + truncate(s.Output, 500)
		}
		steps = append(steps, line)
	}
	return steps
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
