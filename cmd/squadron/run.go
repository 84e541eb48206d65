package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ShayCichocki/squadron/internal/checkpoint"
	"github.com/ShayCichocki/squadron/internal/orchestrator"
)

var (
	runTaskID   string
	runNext     bool
	runHeadless bool
	runJSON     bool
)

// errNotCompleted makes the exit status non-zero for blocked and failed runs.
var errNotCompleted = errors.New("run did not complete")

var runCmd = &cobra.Command{
	Use:   "run [task]",
	Short: "Run a task with a team of specialists",
	Long: `Run a task through the team lead.

The team lead analyzes the task, selects up to orchestrator.max_specialists
specialists, runs them in parallel on the working tree, validates their
results against orchestrator.quorum, synthesizes one outcome and verifies
the change-set with the project's build and test commands.

A task the analysis judges too small for a team ends with status
single_agent_sufficient and no specialists are run.

Examples:
  squadron run "Fix the nil pointer in the session refresh handler"
  squadron run --task-id AUTH-12 "Add rate limiting to the login endpoint"
  squadron run --next          # claim the next ready task from the queue
  squadron run --headless --json "..." | jq .status`,
	RunE: runTask,
}

func init() {
	runCmd.Flags().StringVar(&runTaskID, "task-id", "", "Task ID used for checkpoints (default: generated)")
	runCmd.Flags().BoolVar(&runNext, "next", false, "Claim the next ready task from the queue")
	runCmd.Flags().BoolVar(&runHeadless, "headless", false, "Run without TUI (headless mode)")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "Print the result as JSON (implies --headless)")
}

func runTask(cmd *cobra.Command, args []string) error {
	description := strings.TrimSpace(strings.Join(args, " "))
	if runNext && description != "" {
		return errors.New("--next takes its task from the queue; drop the task argument")
	}
	if !runNext && description == "" {
		return errors.New("a task description is required (or use --next)")
	}
	if runTaskID != "" {
		if err := checkpoint.ValidateTaskID(runTaskID); err != nil {
			return fmt.Errorf("--task-id: %w", err)
		}
	}
	headless := runHeadless || runJSON

	e, err := openEnv(!headless)
	if err != nil {
		return err
	}
	defer e.Close()

	rt, err := e.buildTeamLead(!headless)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, cancel := signalContext(cmd.ErrOrStderr())
	defer cancel()

	taskID := runTaskID
	if !runNext && taskID == "" {
		taskID = newTaskID()
	}
	orchestrate := func(ctx context.Context) (*orchestrator.Result, error) {
		if runNext {
			return rt.lead.RunNext(ctx, e.db)
		}
		return rt.lead.Orchestrate(ctx, taskID, description)
	}
	return execute(ctx, cancel, cmd.OutOrStdout(), rt, taskID, headless, orchestrate)
}

// execute runs fn headless or under the TUI and reports the result.
func execute(ctx context.Context, cancel context.CancelFunc, out io.Writer, rt *runtime, taskID string, headless bool,
	fn func(context.Context) (*orchestrator.Result, error)) error {
	logger := zap.NewNop()
	if rt != nil && rt.logger != nil {
		logger = rt.logger
	}
	stopMetrics := serveMetrics(metricsAddr, logger)
	defer stopMetrics()
	defer func() {
		if err := writeMetrics(metricsFile, prometheus.DefaultGatherer); err != nil {
			logger.Warn("metrics dump failed", zap.String("path", metricsFile), zap.Error(err))
		}
	}()

	var result *orchestrator.Result
	var err error
	if headless {
		result, err = fn(ctx)
	} else {
		result, err = runWithTUI(ctx, cancel, rt, taskID, fn)
	}

	if result == nil {
		if err == nil {
			fmt.Fprintln(out, "No ready tasks in the queue.")
		}
		return err
	}
	if runJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(result); encErr != nil {
			return encErr
		}
	} else {
		printResult(out, result)
	}
	if err != nil {
		return err
	}
	if result.Status == orchestrator.StatusBlocked || result.Status == orchestrator.StatusFailed {
		return fmt.Errorf("%w: %s", errNotCompleted, result.Status)
	}
	return nil
}

// signalContext cancels on SIGINT or SIGTERM. A cancelled run is left
// interrupted and can be resumed.
func signalContext(w io.Writer) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(w, "\nReceived interrupt, checkpointing and shutting down...")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

func newTaskID() string {
	return "task-" + uuid.NewString()[:8]
}
