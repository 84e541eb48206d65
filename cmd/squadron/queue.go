package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/squadron/pkg/models"
)

var (
	queueTitle    string
	queuePriority int
	queueStatus   string
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Manage the task queue consumed by 'run --next'",
}

var queueAddCmd = &cobra.Command{
	Use:   "add <description>",
	Short: "Add a task to the queue",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		description := strings.TrimSpace(strings.Join(args, " "))
		if description == "" {
			return fmt.Errorf("a task description is required")
		}
		e, err := openEnv(false)
		if err != nil {
			return err
		}
		defer e.Close()

		title := queueTitle
		if title == "" {
			title = truncateText(firstLine(description), 60)
		}
		task := &models.Task{
			ID:          "task-" + uuid.NewString()[:8],
			Project:     e.project,
			Title:       title,
			Description: description,
			Priority:    queuePriority,
		}
		if err := e.db.CreateTask(task); err != nil {
			return err
		}
		printStatus(cmd.OutOrStdout(), "✓", fmt.Sprintf("Queued %s: %s", task.ID, task.Title), color.FgGreen)
		return nil
	},
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List queued tasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		var filter *models.TaskStatus
		if queueStatus != "" {
			s := models.TaskStatus(queueStatus)
			if !s.Valid() {
				return fmt.Errorf("unknown task status %q", queueStatus)
			}
			filter = &s
		}

		e, err := openEnv(false)
		if err != nil {
			return err
		}
		defer e.Close()

		tasks, err := e.db.ListTasks(filter)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(tasks) == 0 {
			fmt.Fprintln(out, "Queue is empty.")
			return nil
		}
		rows := make([][]string, 0, len(tasks))
		for _, t := range tasks {
			rows = append(rows, []string{
				t.ID,
				string(t.Status),
				fmt.Sprintf("%d", t.Priority),
				orDash(string(t.LastVerdict)),
				truncateText(t.Title, 50),
			})
		}
		fmt.Fprintln(out, renderTable([]string{"TASK", "STATUS", "PRIORITY", "VERDICT", "TITLE"}, rows))
		return nil
	},
}

func init() {
	queueAddCmd.Flags().StringVar(&queueTitle, "title", "", "Short title (default: first line of the description)")
	queueAddCmd.Flags().IntVar(&queuePriority, "priority", 0, "Priority; higher runs first")
	queueListCmd.Flags().StringVar(&queueStatus, "status", "", "Only show tasks with this status")
	queueCmd.AddCommand(queueAddCmd, queueListCmd)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}
