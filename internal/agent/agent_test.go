package agent

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/squadron/internal/api"
	"github.com/ShayCichocki/squadron/internal/checkpoint"
	"github.com/ShayCichocki/squadron/internal/ledger"
	"github.com/ShayCichocki/squadron/internal/verification"
	"github.com/ShayCichocki/squadron/pkg/models"
)

func testSubTask() models.SubTask {
	return models.SubTask{
		ID:             models.SubTaskID("T-1", models.SpecialistBugfix),
		TaskID:         "T-1",
		SpecialistType: models.SpecialistBugfix,
		Title:          "Find and fix root cause",
		Description:    "login fails",
		Context:        "login fails for users with a plus in their email",
	}
}

type harness struct {
	store  *checkpoint.Store
	status *checkpoint.StatusStore
	ledger *ledger.Ledger
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	root := t.TempDir()
	store, err := checkpoint.NewStore(root, "demo")
	require.NoError(t, err)
	status, err := checkpoint.NewStatusStore(root, "demo")
	require.NoError(t, err)
	return &harness{store: store, status: status, ledger: ledger.New()}
}

func (h *harness) agent(t *testing.T, cfg Config) *SpecialistAgent {
	t.Helper()
	cfg.Checkpoints = h.store
	cfg.Status = h.status
	cfg.Ledger = h.ledger
	a, err := New(cfg)
	require.NoError(t, err)
	return a
}

// outputs returns an executor that replays outputs, repeating the last one.
func outputs(calls *int32, outs ...string) Executor {
	return ExecutorFunc(func(_ context.Context, a Attempt) (*Execution, error) {
		n := int(atomic.AddInt32(calls, 1))
		out := outs[min(n, len(outs))-1]
		return &Execution{
			Output: out,
			Status: ExecutionCompleted,
			Usage:  models.Usage{InputTokens: 1000, OutputTokens: 100, Model: "claude-sonnet-4-20250514"},
		}, nil
	})
}

func TestExecute_BudgetExhaustedIsTimeout(t *testing.T) {
	h := newHarness(t)
	var calls int32
	a := h.agent(t, Config{Executor: outputs(&calls, "still working"), Budget: 3})

	res := a.Execute(context.Background(), testSubTask())

	assert.Equal(t, models.ResultTimeout, res.Status)
	assert.Equal(t, 3, res.IterationsUsed)
	assert.EqualValues(t, 3, calls)
	require.NotNil(t, res.Output)
	assert.Equal(t, "still working", *res.Output)
	require.NotNil(t, res.Verdict)
	assert.Equal(t, models.VerdictFail, res.Verdict.Type)
	assert.Equal(t, int64(3300), res.TokensUsed)
	assert.Greater(t, res.Cost, 0.0)

	history, err := h.store.List(res.SubTaskID)
	require.NoError(t, err)
	require.Len(t, history, 5, "startup, three iterations, terminal")
	for i, sum := range history {
		assert.Equal(t, i+1, sum.Number)
	}

	latest, err := h.store.Load(res.SubTaskID)
	require.NoError(t, err)
	assert.Equal(t, checkpoint.StatusTimeout, latest.Status)
	assert.Equal(t, string(PhaseTimeout), latest.Phase)
	assert.Equal(t, 3, latest.IterationCount)
	assert.Contains(t, latest.Body, "## Iteration 3: FAIL")

	settled, err := h.status.AllSettled("T-1", []models.SpecialistType{models.SpecialistBugfix})
	require.NoError(t, err)
	assert.True(t, settled)

	assert.InDelta(t, res.Cost, h.ledger.Breakdown().Specialists["bugfix"], 1e-9)
}

func TestExecute_IterationsNeverExceedBudget(t *testing.T) {
	for typ, budget := range map[models.SpecialistType]int{
		models.SpecialistAdvisor:     10,
		models.SpecialistCodeQuality: 20,
		models.SpecialistTestWriter:  1,
	} {
		h := newHarness(t)
		var calls int32
		st := testSubTask()
		st.SpecialistType = typ
		st.ID = models.SubTaskID("T-1", typ)

		res := h.agent(t, Config{Executor: outputs(&calls, "nope"), Budget: budget}).Execute(context.Background(), st)
		assert.Equal(t, models.ResultTimeout, res.Status, typ)
		assert.LessOrEqual(t, res.IterationsUsed, budget, typ)
		assert.EqualValues(t, budget, calls, typ)
	}
}

func TestExecute_PassOnSecondIteration(t *testing.T) {
	h := newHarness(t)
	var calls int32
	var feedback []string
	exec := ExecutorFunc(func(ctx context.Context, a Attempt) (*Execution, error) {
		feedback = append(feedback, a.Feedback)
		return outputs(&calls, "working", "fixed\nTASK_COMPLETE").Execute(ctx, a)
	})

	res := h.agent(t, Config{Executor: exec, Budget: 15}).Execute(context.Background(), testSubTask())

	assert.Equal(t, models.ResultCompleted, res.Status)
	assert.Equal(t, 2, res.IterationsUsed)
	assert.True(t, res.Passed())
	assert.False(t, res.VerificationMissing)
	assert.Equal(t, []string{"", "completion marker not found\nFix failing step: completion marker"}, feedback)

	latest, err := h.store.Load(res.SubTaskID)
	require.NoError(t, err)
	assert.Equal(t, checkpoint.StatusCompleted, latest.Status)
	assert.Empty(t, latest.NextSteps)
}

func TestExecute_BlockedMarker(t *testing.T) {
	h := newHarness(t)
	var calls int32
	a := h.agent(t, Config{Executor: outputs(&calls, "TASK_BLOCKED: database is down"), Budget: 5})

	res := a.Execute(context.Background(), testSubTask())
	assert.Equal(t, models.ResultBlocked, res.Status)
	assert.Equal(t, 1, res.IterationsUsed)
	assert.Equal(t, "database is down", res.Verdict.Reason)
}

func TestExecute_PanicIsContained(t *testing.T) {
	h := newHarness(t)
	exec := ExecutorFunc(func(context.Context, Attempt) (*Execution, error) {
		panic("provider exploded")
	})

	res := h.agent(t, Config{Executor: exec, Budget: 5}).Execute(context.Background(), testSubTask())

	assert.Equal(t, models.ResultFailed, res.Status)
	assert.Contains(t, res.Error, "provider exploded")
	assert.Equal(t, models.VerdictFailed, res.Verdict.Type)

	latest, err := h.store.Load(res.SubTaskID)
	require.NoError(t, err)
	assert.Equal(t, checkpoint.StatusFailed, latest.Status)
}

func TestExecute_ExecutorError(t *testing.T) {
	h := newHarness(t)
	exec := ExecutorFunc(func(context.Context, Attempt) (*Execution, error) {
		return &Execution{Usage: models.Usage{InputTokens: 50}}, errors.New("rate limited")
	})

	res := h.agent(t, Config{Executor: exec, Budget: 5}).Execute(context.Background(), testSubTask())
	assert.Equal(t, models.ResultFailed, res.Status)
	assert.Contains(t, res.Error, "rate limited")
	assert.Equal(t, int64(50), res.TokensUsed, "usage of a failed call still counts")
	assert.Nil(t, res.Output)
}

type stopAfter struct{ n, calls int }

func (s *stopAfter) ShouldStop() bool {
	s.calls++
	return s.calls > s.n
}

func TestExecute_OperatorStop(t *testing.T) {
	h := newHarness(t)
	var calls int32
	a := h.agent(t, Config{Executor: outputs(&calls, "working"), Budget: 10, Stopper: &stopAfter{n: 2}})

	res := a.Execute(context.Background(), testSubTask())
	assert.Equal(t, models.ResultBlocked, res.Status)
	assert.Equal(t, StoppedReason, res.Verdict.Reason)
	assert.Equal(t, 2, res.IterationsUsed)
}

func TestExecute_StopInsideCall(t *testing.T) {
	h := newHarness(t)
	exec := ExecutorFunc(func(context.Context, Attempt) (*Execution, error) {
		return &Execution{Status: ExecutionStopped}, api.ErrStopped
	})

	res := h.agent(t, Config{Executor: exec, Budget: 10}).Execute(context.Background(), testSubTask())
	assert.Equal(t, models.ResultBlocked, res.Status)
	assert.Equal(t, StoppedReason, res.Verdict.Reason)
}

func TestExecute_CancelledContext(t *testing.T) {
	h := newHarness(t)
	var calls int32
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := h.agent(t, Config{Executor: outputs(&calls, "x"), Budget: 3}).Execute(ctx, testSubTask())
	assert.Equal(t, models.ResultFailed, res.Status)
	assert.Zero(t, calls)
}

func TestExecute_InterruptKeepsAttemptOpen(t *testing.T) {
	h := newHarness(t)
	st := testSubTask()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	exec := ExecutorFunc(func(ctx context.Context, a Attempt) (*Execution, error) {
		if a.Iteration == 4 {
			cancel()
			return nil, ctx.Err()
		}
		return &Execution{Output: "working", Usage: models.Usage{InputTokens: 10}}, nil
	})
	res := h.agent(t, Config{Executor: exec, Budget: 10}).Execute(ctx, st)

	assert.Equal(t, models.ResultFailed, res.Status)
	assert.Equal(t, 3, res.IterationsUsed, "the aborted call is not a used iteration")
	assert.Contains(t, res.Error, "interrupted")

	latest, err := h.store.Load(st.ID)
	require.NoError(t, err)
	assert.Equal(t, checkpoint.StatusInProgress, latest.Status)
	assert.Equal(t, 3, latest.IterationCount)

	doc, err := h.status.Get(st.TaskID)
	require.NoError(t, err)
	assert.False(t, doc.Specialists[string(st.SpecialistType)].Settled())

	var got []int
	again := ExecutorFunc(func(_ context.Context, a Attempt) (*Execution, error) {
		got = append(got, a.Iteration)
		return &Execution{Output: "TASK_COMPLETE"}, nil
	})
	res = h.agent(t, Config{Executor: again, Budget: 10}).Execute(context.Background(), st)

	assert.Equal(t, models.ResultCompleted, res.Status)
	assert.Equal(t, []int{4}, got)
	assert.Equal(t, 4, res.IterationsUsed)
}

func TestExecute_ResumeReusesSettledResult(t *testing.T) {
	h := newHarness(t)
	st := testSubTask()
	var calls int32
	first := h.agent(t, Config{Executor: outputs(&calls, "still going", "fixed it TASK_COMPLETE"), Budget: 5}).Execute(context.Background(), st)
	require.Equal(t, models.ResultCompleted, first.Status)
	require.EqualValues(t, 2, calls)

	st.Resume = true
	var again int32
	res := h.agent(t, Config{Executor: outputs(&again, "TASK_COMPLETE"), Budget: 5}).Execute(context.Background(), st)

	assert.Zero(t, again, "a settled specialist does not run again")
	assert.Equal(t, models.ResultCompleted, res.Status)
	assert.Equal(t, 2, res.IterationsUsed)
	assert.True(t, res.Passed())
	assert.Equal(t, first.VerificationMissing, res.VerificationMissing)
	assert.Equal(t, first.TokensUsed, res.TokensUsed)
	assert.InDelta(t, first.Cost, res.Cost, 1e-9)
	require.NotNil(t, res.Output)
	assert.Equal(t, "fixed it TASK_COMPLETE", *res.Output)
}

func TestExecute_ResumeRerunsFailedAttempt(t *testing.T) {
	h := newHarness(t)
	st := testSubTask()
	failing := ExecutorFunc(func(context.Context, Attempt) (*Execution, error) {
		return nil, errors.New("provider down")
	})
	require.Equal(t, models.ResultFailed, h.agent(t, Config{Executor: failing, Budget: 5}).Execute(context.Background(), st).Status)

	st.Resume = true
	var calls int32
	res := h.agent(t, Config{Executor: outputs(&calls, "TASK_COMPLETE"), Budget: 5}).Execute(context.Background(), st)
	assert.EqualValues(t, 1, calls)
	assert.Equal(t, models.ResultCompleted, res.Status)
}

func TestExecute_FreshRunIgnoresSettledResult(t *testing.T) {
	h := newHarness(t)
	st := testSubTask()
	var calls int32
	a := h.agent(t, Config{Executor: outputs(&calls, "TASK_BLOCKED: missing credentials"), Budget: 5})
	require.Equal(t, models.ResultBlocked, a.Execute(context.Background(), st).Status)

	a.Execute(context.Background(), st)
	assert.EqualValues(t, 2, calls)
}

func TestExecute_ZeroBudget(t *testing.T) {
	h := newHarness(t)
	var calls int32
	res := h.agent(t, Config{Executor: outputs(&calls, "x")}).Execute(context.Background(), testSubTask())
	assert.Equal(t, models.ResultTimeout, res.Status)
	assert.Zero(t, res.IterationsUsed)
	assert.Zero(t, calls)
}

func TestExecute_ResumesOpenAttempt(t *testing.T) {
	h := newHarness(t)
	st := testSubTask()
	_, err := h.store.Save(&checkpoint.Record{
		TaskID:         st.ID,
		IterationCount: 2,
		Phase:          string(PhaseIterating),
		Status:         checkpoint.StatusInProgress,
		LastOutput:     "half done",
		NextSteps:      []string{"tests still fail"},
		TokensUsed:     500,
		AgentType:      string(models.SpecialistBugfix),
		Body:           "earlier narrative\n",
	})
	require.NoError(t, err)

	var got []Attempt
	exec := ExecutorFunc(func(_ context.Context, a Attempt) (*Execution, error) {
		got = append(got, a)
		return &Execution{Output: "nope"}, nil
	})
	res := h.agent(t, Config{Executor: exec, Budget: 3}).Execute(context.Background(), st)

	assert.Equal(t, models.ResultTimeout, res.Status)
	assert.Equal(t, 3, res.IterationsUsed)
	require.Len(t, got, 1)
	assert.Equal(t, 3, got[0].Iteration)
	assert.Equal(t, "half done", got[0].PreviousOutput)
	assert.Equal(t, "tests still fail", got[0].Feedback)
	assert.Equal(t, int64(500), res.TokensUsed)

	latest, err := h.store.Load(st.ID)
	require.NoError(t, err)
	assert.Contains(t, latest.Body, "earlier narrative")
	assert.Contains(t, latest.Body, "Resumed at iteration 2")
}

func TestExecute_OpenAttemptOfOtherTypeIsClosed(t *testing.T) {
	h := newHarness(t)
	st := testSubTask()
	_, err := h.store.Save(&checkpoint.Record{
		TaskID:         st.ID,
		IterationCount: 4,
		Phase:          string(PhaseIterating),
		Status:         checkpoint.StatusInProgress,
		AgentType:      "advisor",
	})
	require.NoError(t, err)

	var calls int32
	res := h.agent(t, Config{Executor: outputs(&calls, "TASK_COMPLETE"), Budget: 3}).Execute(context.Background(), st)
	assert.Equal(t, models.ResultCompleted, res.Status)
	assert.Equal(t, 1, res.IterationsUsed)

	history, err := h.store.List(st.ID)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(history), 2)
	assert.Equal(t, checkpoint.StatusFailed, history[1].Record.Status)
	assert.Contains(t, history[1].Record.Error, "superseded")
}

type fakeVerifier struct {
	verdict *models.Verdict
	err     error
	reqs    []verification.Request
}

func (f *fakeVerifier) Verify(_ context.Context, req verification.Request) (*models.Verdict, error) {
	f.reqs = append(f.reqs, req)
	return f.verdict, f.err
}

type fakeChanges struct{ files []string }

func (f fakeChanges) Snapshot(string) (string, error)       { return "base", nil }
func (f fakeChanges) SetBaseline(string, string) error      { return nil }
func (f fakeChanges) ChangedFiles(string) ([]string, error) { return f.files, nil }

func TestExecute_VerifierGatesCompletion(t *testing.T) {
	h := newHarness(t)
	v := &fakeVerifier{verdict: &models.Verdict{
		Type:  models.VerdictPass,
		Steps: []models.VerdictStep{{Step: "test", Passed: true}},
	}}
	var calls int32
	a := h.agent(t, Config{
		Executor: outputs(&calls, "editing", "TASK_COMPLETE"),
		Verifier: v,
		Changes:  fakeChanges{files: []string{"auth.go"}},
		WorkDir:  "/repo",
		Budget:   5,
	})

	res := a.Execute(context.Background(), testSubTask())
	assert.Equal(t, models.ResultCompleted, res.Status)
	assert.Equal(t, 2, res.IterationsUsed)
	require.Len(t, v.reqs, 1, "verifier runs only once completion is declared")
	assert.Equal(t, []string{"auth.go"}, v.reqs[0].ChangedFiles)
	assert.Equal(t, "/repo", v.reqs[0].Project)
	assert.Equal(t, "T-1-bugfix", v.reqs[0].SessionID)
}

func TestExecute_VerifierWithoutEvidenceFlagsMissingVerification(t *testing.T) {
	h := newHarness(t)
	var calls int32
	a := h.agent(t, Config{
		Executor: outputs(&calls, "TASK_COMPLETE"),
		Verifier: &fakeVerifier{verdict: &models.Verdict{Type: models.VerdictPass}},
		Budget:   5,
	})

	res := a.Execute(context.Background(), testSubTask())
	assert.Equal(t, models.ResultCompleted, res.Status)
	assert.True(t, res.VerificationMissing)
}

func TestExecute_UnverifiableProjectBlocks(t *testing.T) {
	h := newHarness(t)
	var calls int32
	a := h.agent(t, Config{
		Executor: outputs(&calls, "TASK_COMPLETE"),
		Verifier: &fakeVerifier{err: verification.ErrNoProjectContext},
		Budget:   5,
	})

	res := a.Execute(context.Background(), testSubTask())
	assert.Equal(t, models.ResultBlocked, res.Status)
	assert.Contains(t, res.Verdict.Reason, "cannot verify")
}

func TestExecute_VerifierError(t *testing.T) {
	h := newHarness(t)
	var calls int32
	a := h.agent(t, Config{
		Executor: outputs(&calls, "TASK_COMPLETE"),
		Verifier: &fakeVerifier{err: errors.New("runner crashed")},
		Budget:   5,
	})

	res := a.Execute(context.Background(), testSubTask())
	assert.Equal(t, models.ResultFailed, res.Status)
	assert.Contains(t, res.Error, "runner crashed")
}

func TestExecute_ReportedCostIsUsed(t *testing.T) {
	h := newHarness(t)
	exec := ExecutorFunc(func(context.Context, Attempt) (*Execution, error) {
		return &Execution{Output: "TASK_COMPLETE", Cost: 0.25, Usage: models.Usage{InputTokens: 10}}, nil
	})

	res := h.agent(t, Config{Executor: exec, Budget: 2}).Execute(context.Background(), testSubTask())
	assert.InDelta(t, 0.25, res.Cost, 1e-9)
	assert.InDelta(t, 0.25, h.ledger.Breakdown().Specialists["bugfix"], 1e-9)
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)

	_, err = New(Config{Executor: ExecutorFunc(nil)})
	assert.Error(t, err)
}
