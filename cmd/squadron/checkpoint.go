package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/squadron/internal/checkpoint"
)

var checkpointCmd = &cobra.Command{
	Use:     "checkpoint",
	Aliases: []string{"cp"},
	Short:   "Inspect and manage task checkpoints",
}

var checkpointListCmd = &cobra.Command{
	Use:   "list [task-id]",
	Short: "List tasks with checkpoints, or one task's checkpoint history",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv(false)
		if err != nil {
			return err
		}
		defer e.Close()

		out := cmd.OutOrStdout()
		if len(args) == 0 {
			return listCheckpointTasks(out, e.checkpoints)
		}
		return listCheckpointHistory(out, e.checkpoints, args[0])
	},
}

var checkpointShowCmd = &cobra.Command{
	Use:   "show <task-id>",
	Short: "Print the latest checkpoint of a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv(false)
		if err != nil {
			return err
		}
		defer e.Close()

		rec, err := e.checkpoints.Load(args[0])
		if errors.Is(err, checkpoint.ErrNotFound) {
			return fmt.Errorf("no active checkpoint for %s", args[0])
		}
		if err != nil {
			return err
		}
		showRecord(cmd.OutOrStdout(), rec)
		return nil
	},
}

var checkpointArchiveCmd = &cobra.Command{
	Use:   "archive <task-id>",
	Short: "Move every active checkpoint of a task into the archive",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv(false)
		if err != nil {
			return err
		}
		defer e.Close()

		n, err := e.checkpoints.ArchiveAll(args[0])
		if err != nil {
			return err
		}
		printStatus(cmd.OutOrStdout(), "✓", fmt.Sprintf("Archived %d checkpoint(s) for %s", n, args[0]), color.FgGreen)
		return nil
	},
}

var checkpointDeleteCmd = &cobra.Command{
	Use:   "delete <task-id>",
	Short: "Delete every checkpoint and the status file of a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv(false)
		if err != nil {
			return err
		}
		defer e.Close()

		n, err := e.checkpoints.DeleteAll(args[0])
		if err != nil {
			return err
		}
		if err := e.status.Delete(args[0]); err != nil {
			return err
		}
		printStatus(cmd.OutOrStdout(), "✓", fmt.Sprintf("Deleted %d checkpoint(s) for %s", n, args[0]), color.FgGreen)
		return nil
	},
}

func init() {
	checkpointCmd.AddCommand(checkpointListCmd, checkpointShowCmd, checkpointArchiveCmd, checkpointDeleteCmd)
}

func listCheckpointTasks(out io.Writer, store *checkpoint.Store) error {
	ids, err := store.Tasks()
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		fmt.Fprintln(out, "No active checkpoints.")
		return nil
	}
	rows := make([][]string, 0, len(ids))
	for _, id := range ids {
		rec, err := store.Load(id)
		if err != nil {
			rows = append(rows, []string{id, "-", "-", "-", err.Error()})
			continue
		}
		rows = append(rows, []string{
			id,
			orDash(rec.AgentType),
			string(rec.Status),
			fmt.Sprintf("%d/%d", rec.IterationCount, rec.MaxIterations),
			rec.UpdatedAt.Format("2006-01-02 15:04:05"),
		})
	}
	fmt.Fprintln(out, renderTable([]string{"TASK", "AGENT", "STATUS", "ITER", "UPDATED"}, rows))
	return nil
}

func listCheckpointHistory(out io.Writer, store *checkpoint.Store, taskID string) error {
	sums, err := store.List(taskID)
	if err != nil {
		return err
	}
	if len(sums) == 0 {
		fmt.Fprintf(out, "No checkpoints for %s.\n", taskID)
		return nil
	}
	rows := make([][]string, 0, len(sums))
	for _, s := range sums {
		where := "active"
		if s.Archived {
			where = "archived"
		}
		if s.ParseErr != nil {
			rows = append(rows, []string{fmt.Sprintf("%d", s.Number), where, "unreadable", "-", truncateText(s.ParseErr.Error(), 50)})
			continue
		}
		rows = append(rows, []string{
			fmt.Sprintf("%d", s.Number),
			where,
			string(s.Record.Status),
			fmt.Sprintf("%d", s.Record.IterationCount),
			truncateText(s.Record.Phase, 50),
		})
	}
	fmt.Fprintln(out, renderTable([]string{"#", "WHERE", "STATUS", "ITER", "PHASE"}, rows))
	return nil
}

func showRecord(out io.Writer, rec *checkpoint.Record) {
	fmt.Fprintf(out, "Task:       %s\n", rec.TaskID)
	fmt.Fprintf(out, "Checkpoint: %d\n", rec.CheckpointNumber)
	fmt.Fprintf(out, "Agent:      %s\n", orDash(rec.AgentType))
	fmt.Fprintf(out, "Status:     %s\n", rec.Status)
	fmt.Fprintf(out, "Phase:      %s\n", rec.Phase)
	fmt.Fprintf(out, "Iteration:  %d/%d\n", rec.IterationCount, rec.MaxIterations)
	fmt.Fprintf(out, "Tokens:     %d\n", rec.TokensUsed)
	fmt.Fprintf(out, "Updated:    %s\n", rec.UpdatedAt.Format("2006-01-02 15:04:05"))
	if rec.Error != "" {
		fmt.Fprintf(out, "Error:      %s\n", rec.Error)
	}
	if len(rec.NextSteps) > 0 {
		fmt.Fprintln(out, "Next steps:")
		for _, s := range rec.NextSteps {
			fmt.Fprintf(out, "  - %s\n", s)
		}
	}
	if rec.LastOutput != "" {
		fmt.Fprintln(out, "Last output:")
		for _, line := range strings.Split(strings.TrimRight(rec.LastOutput, "\n"), "\n") {
			fmt.Fprintf(out, "  %s\n", line)
		}
	}
}
