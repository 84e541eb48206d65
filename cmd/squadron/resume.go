package main

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/squadron/internal/orchestrator"
	"github.com/ShayCichocki/squadron/internal/state"
)

var (
	resumeList     bool
	resumeClean    bool
	resumeHeadless bool
)

var resumeCmd = &cobra.Command{
	Use:   "resume [run-id]",
	Short: "Resume an interrupted run",
	Long: `Resume a run whose process went away before it finished.

The team lead is started again under the same task ID. Specialists with an
in-progress checkpoint continue from their last iteration, and specialists
that had already completed, blocked or timed out keep their result. Change
detection diffs against the commit the interrupted run started from.

With no run ID the most recent interrupted run is resumed.

Examples:
  squadron resume --list        # show interrupted runs
  squadron resume               # resume the latest one
  squadron resume 3f2a...       # resume a specific run
  squadron resume --clean 3f2a  # give up on a run`,
	Args: cobra.MaximumNArgs(1),
	RunE: runResume,
}

func init() {
	resumeCmd.Flags().BoolVar(&resumeList, "list", false, "List interrupted runs and exit")
	resumeCmd.Flags().BoolVar(&resumeClean, "clean", false, "Mark the run failed instead of resuming it")
	resumeCmd.Flags().BoolVar(&resumeHeadless, "headless", false, "Run without TUI (headless mode)")
}

func runResume(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	quiet := !resumeHeadless && !resumeList && !resumeClean
	e, err := openEnv(quiet)
	if err != nil {
		return err
	}
	defer e.Close()

	rm := state.NewRecoveryManager(e.db)
	interrupted, err := rm.CheckForInterrupted()
	if err != nil {
		return err
	}

	if resumeList {
		if len(interrupted) == 0 {
			fmt.Fprintln(out, "No interrupted runs.")
			return nil
		}
		rows := make([][]string, 0, len(interrupted))
		for _, ir := range interrupted {
			rows = append(rows, []string{
				ir.Run.ID,
				ir.Run.TaskID,
				string(ir.Run.Status),
				formatDuration(time.Since(ir.LastActivity)) + " ago",
				truncateText(ir.Run.Description, 50),
			})
		}
		fmt.Fprintln(out, renderTable([]string{"RUN", "TASK", "STATUS", "LAST ACTIVITY", "DESCRIPTION"}, rows))
		return nil
	}

	runID, err := pickRun(interrupted, args)
	if err != nil {
		return err
	}

	if resumeClean {
		if err := rm.Clean(runID); err != nil {
			return err
		}
		printStatus(out, "✓", fmt.Sprintf("Run %s marked failed", runID), color.FgGreen)
		return nil
	}

	run, err := rm.Resume(runID)
	if err != nil {
		return err
	}
	if resumeHeadless {
		printStatus(out, "↻", fmt.Sprintf("Resuming %s (run %s)", run.TaskID, run.ID), color.FgCyan)
	}

	rt, err := e.buildTeamLead(!resumeHeadless)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, cancel := signalContext(cmd.ErrOrStderr())
	defer cancel()
	return execute(ctx, cancel, out, rt, run.TaskID, resumeHeadless, func(ctx context.Context) (*orchestrator.Result, error) {
		return rt.lead.Resume(ctx, run)
	})
}

// pickRun returns the requested run, or the newest interrupted one.
func pickRun(interrupted []state.InterruptedRun, args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	if len(interrupted) == 0 {
		return "", fmt.Errorf("no interrupted runs to resume")
	}
	return interrupted[0].Run.ID, nil
}

func truncateText(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
