package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/fatih/color"

	"github.com/ShayCichocki/squadron/internal/orchestrator"
)

// printStatus prints a status line with a colored symbol.
func printStatus(w io.Writer, symbol, message string, c color.Attribute) {
	fmt.Fprintf(w, "%s %s\n", color.New(c).Sprint(symbol), message)
}

var headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252")).Padding(0, 1)
var cellStyle = lipgloss.NewStyle().Padding(0, 1)

// renderTable lays out rows under headers with a rounded border.
func renderTable(headers []string, rows [][]string) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("240"))).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	return t.String()
}

// printResult summarizes an orchestration for headless runs.
func printResult(w io.Writer, r *orchestrator.Result) {
	symbol, c := "✓", color.FgGreen
	switch r.Status {
	case orchestrator.StatusBlocked, orchestrator.StatusSingleAgent:
		symbol, c = "⚠", color.FgYellow
	case orchestrator.StatusFailed:
		symbol, c = "✗", color.FgRed
	}
	printStatus(w, symbol, fmt.Sprintf("%s %s (run %s)", r.TaskID, r.Status, r.RunID), c)
	if r.Reason != "" {
		fmt.Fprintf(w, "  %s\n", r.Reason)
	}

	if len(r.SpecialistResults) > 0 {
		rows := make([][]string, 0, len(r.SpecialistResults))
		for _, sr := range r.SpecialistResults {
			verdict := "-"
			if sr.Verdict != nil {
				verdict = string(sr.Verdict.Type)
			}
			rows = append(rows, []string{
				string(sr.SpecialistType),
				string(sr.Status),
				verdict,
				fmt.Sprintf("%d", sr.IterationsUsed),
				fmt.Sprintf("$%.4f", sr.Cost),
			})
		}
		fmt.Fprintln(w, renderTable([]string{"SPECIALIST", "STATUS", "VERDICT", "ITER", "COST"}, rows))
	}
	if r.Validation != nil {
		fmt.Fprintf(w, "  validation: %s\n", r.Validation.Reason)
	}
	if len(r.ChangedFiles) > 0 {
		fmt.Fprintf(w, "  changed: %s\n", strings.Join(r.ChangedFiles, ", "))
	}
	fmt.Fprintf(w, "  cost: $%.4f (analysis $%.4f, synthesis $%.4f), %d tokens, %s\n",
		r.Cost.Total, r.Cost.Analysis, r.Cost.Synthesis, r.Cost.Tokens,
		formatDuration(r.FinishedAt.Sub(r.StartedAt)))
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}
