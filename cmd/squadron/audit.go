package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/squadron/internal/audit"
	"github.com/ShayCichocki/squadron/internal/config"
)

var auditTaskID string

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect the hash-chained audit trail",
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check every hash link in the audit trail",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := auditPath()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		n, err := audit.Verify(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			fmt.Fprintln(out, "No audit trail yet.")
			return nil
		case errors.Is(err, audit.ErrTampered):
			printStatus(out, "✗", fmt.Sprintf("Audit trail broken after %d valid event(s)", n), color.FgRed)
			return err
		case err != nil:
			return err
		}
		printStatus(out, "✓", fmt.Sprintf("Audit trail intact (%d events)", n), color.FgGreen)
		return nil
	},
}

var auditShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print audit events",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := auditPath()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		events, err := audit.Read(path)
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintln(out, "No audit trail yet.")
			return nil
		}
		if err != nil {
			return err
		}

		rows := make([][]string, 0, len(events))
		for _, ev := range events {
			if auditTaskID != "" && ev.TaskID != auditTaskID {
				continue
			}
			rows = append(rows, []string{
				fmt.Sprintf("%d", ev.Seq),
				ev.Time.Format("2006-01-02 15:04:05"),
				ev.Severity,
				ev.Type,
				ev.TaskID,
				truncateText(fmt.Sprint(ev.Data), 60),
			})
		}
		if len(rows) == 0 {
			fmt.Fprintln(out, "No matching audit events.")
			return nil
		}
		fmt.Fprintln(out, renderTable([]string{"SEQ", "TIME", "SEVERITY", "TYPE", "TASK", "DATA"}, rows))
		return nil
	},
}

func init() {
	auditShowCmd.Flags().StringVar(&auditTaskID, "task-id", "", "Only show events for this task")
	auditCmd.AddCommand(auditVerifyCmd, auditShowCmd)
}

func auditPath() (string, error) {
	cfg, err := config.Load()
	if err != nil {
		return "", fmt.Errorf("load config: %w", err)
	}
	return cfg.AuditPath(), nil
}
