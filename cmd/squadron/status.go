package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/squadron/internal/checkpoint"
	"github.com/ShayCichocki/squadron/pkg/models"
)

var statusLimit int

var statusCmd = &cobra.Command{
	Use:   "status [task-id]",
	Short: "Show recent runs or one task's specialists",
	Long: `Display squadron state for the current project.

Without arguments, lists recent runs and the tasks that still have open
checkpoints. With a task ID, shows the team lead's analysis and each
specialist's progress from the task's status file.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().IntVar(&statusLimit, "limit", 10, "Number of recent runs to show")
}

func runStatus(cmd *cobra.Command, args []string) error {
	e, err := openEnv(false)
	if err != nil {
		return err
	}
	defer e.Close()

	out := cmd.OutOrStdout()
	if len(args) == 1 {
		return displayTask(out, e, args[0])
	}
	return displayRuns(out, e)
}

func displayRuns(out io.Writer, e *env) error {
	runs, err := e.db.ListRuns(nil)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs yet. Run 'squadron run <task>' to start.")
		return nil
	}
	if statusLimit > 0 && len(runs) > statusLimit {
		runs = runs[:statusLimit]
	}

	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, []string{
			shortID(r.ID),
			r.TaskID,
			string(r.Status),
			fmt.Sprintf("$%.4f", r.TotalCost),
			formatDuration(time.Since(r.StartedAt)) + " ago",
			truncateText(r.Reason, 60),
		})
	}
	fmt.Fprintln(out, renderTable([]string{"RUN", "TASK", "STATUS", "COST", "STARTED", "REASON"}, rows))

	open, err := e.checkpoints.Tasks()
	if err != nil {
		return err
	}
	if len(open) > 0 {
		fmt.Fprintf(out, "\nTasks with active checkpoints: %d\n", len(open))
		for _, id := range open {
			fmt.Fprintf(out, "  %s\n", id)
		}
	}
	return nil
}

func displayTask(out io.Writer, e *env, taskID string) error {
	doc, err := e.status.Get(taskID)
	if err != nil {
		return err
	}
	if len(doc.Specialists) == 0 && doc.TeamLead == nil {
		fmt.Fprintf(out, "No status recorded for %s.\n", taskID)
		return nil
	}

	fmt.Fprintf(out, "Task: %s\n", taskID)
	if doc.TeamLead != nil && doc.TeamLead.Analysis != nil {
		a := doc.TeamLead.Analysis
		fmt.Fprintf(out, "  Complexity: %s (%s)\n", a.Complexity, a.Source)
		fmt.Fprintf(out, "  Recommended: %v\n", a.RecommendedSpecialists)
		for _, c := range a.Challenges {
			fmt.Fprintf(out, "  Challenge: %s\n", c)
		}
		for _, r := range a.RiskFactors {
			fmt.Fprintf(out, "  Risk: %s\n", r)
		}
	}

	types := make([]string, 0, len(doc.Specialists))
	for t := range doc.Specialists {
		types = append(types, t)
	}
	sort.Strings(types)

	rows := make([][]string, 0, len(types))
	for _, t := range types {
		s := doc.Specialists[t]
		rows = append(rows, []string{
			t,
			s.Status,
			fmt.Sprintf("%d", s.Iterations),
			orDash(s.Verdict),
			fmt.Sprintf("%d", s.TokensUsed),
			fmt.Sprintf("$%.4f", s.Cost),
			specialistElapsed(s),
		})
	}
	fmt.Fprintln(out, renderTable([]string{"SPECIALIST", "STATUS", "ITER", "VERDICT", "TOKENS", "COST", "ELAPSED"}, rows))

	expected := make([]models.SpecialistType, 0, len(types))
	for _, t := range types {
		expected = append(expected, models.SpecialistType(t))
	}
	pending, err := e.status.Unsettled(taskID, expected)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		fmt.Fprintln(out, "All specialists settled.")
		return nil
	}
	names := make([]string, 0, len(pending))
	for _, t := range pending {
		names = append(names, string(t))
	}
	fmt.Fprintf(out, "Not settled: %s (running, or resumable with 'squadron resume')\n", strings.Join(names, ", "))
	return nil
}

func specialistElapsed(s *checkpoint.SpecialistStatus) string {
	if s.StartTime.IsZero() {
		return "-"
	}
	end := time.Now()
	if s.EndTime != nil {
		end = *s.EndTime
	}
	return formatDuration(end.Sub(s.StartTime))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
