package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/ShayCichocki/squadron/pkg/models"
)

// barWidth is the width of a specialist's budget bar.
const barWidth = 20

// SpecialistsPanel renders the run summary and one row per specialist.
type SpecialistsPanel struct {
	labelStyle    lipgloss.Style
	valueStyle    lipgloss.Style
	stageStyle    lipgloss.Style
	progressFull  lipgloss.Style
	progressEmpty lipgloss.Style
	passStyle     lipgloss.Style
	blockedStyle  lipgloss.Style
	failStyle     lipgloss.Style
	mutedStyle    lipgloss.Style
}

// NewSpecialistsPanel creates a SpecialistsPanel.
func NewSpecialistsPanel() *SpecialistsPanel {
	return &SpecialistsPanel{
		labelStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Width(12),

		valueStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")).
			Bold(true),

		stageStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true),

		progressFull: lipgloss.NewStyle().
			Foreground(lipgloss.Color("34")),

		progressEmpty: lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")),

		passStyle:    lipgloss.NewStyle().Foreground(lipgloss.Color("34")),
		blockedStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		failStyle:    lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		mutedStyle:   lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
	}
}

// View renders s. spin is drawn in front of rows that are still running.
func (p *SpecialistsPanel) View(s *RunState, spin string) string {
	var b strings.Builder

	stage := s.Stage
	if stage == "" {
		stage = "waiting"
	}
	b.WriteString(p.labelStyle.Render("Task:"))
	b.WriteString(p.valueStyle.Render(s.TaskID))
	b.WriteString("\n")
	b.WriteString(p.labelStyle.Render("Stage:"))
	b.WriteString(p.stageStyle.Render(stage))
	b.WriteString("\n")
	b.WriteString(p.labelStyle.Render("Spend:"))
	b.WriteString(p.valueStyle.Render(fmt.Sprintf("$%.4f  %s tokens", s.Cost, formatTokens(s.TokensUsed))))
	b.WriteString("\n")
	if s.Verdict != "" {
		b.WriteString(p.labelStyle.Render("Verdict:"))
		b.WriteString(p.verdictStyle(s.Verdict).Render(string(s.Verdict)))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	if len(s.Specialists) == 0 {
		b.WriteString(p.mutedStyle.Italic(true).Render("  No specialists dispatched"))
		b.WriteString("\n")
		return b.String()
	}

	for _, r := range s.Specialists {
		marker := "  "
		status := p.mutedStyle.Render("running")
		if r.Running() {
			marker = spin + " "
		} else {
			status = p.statusStyle(r).Render(r.Status)
		}
		fmt.Fprintf(&b, "%s%-16s %s %d/%d  %s  $%.4f\n",
			marker,
			r.Type,
			p.renderBar(r.Iteration, r.Budget),
			r.Iteration, r.Budget,
			status,
			r.Cost)
		if r.Error != "" {
			b.WriteString(p.failStyle.Render("    " + truncate(r.Error, 100)))
			b.WriteString("\n")
		}
	}
	return b.String()
}

func (p *SpecialistsPanel) renderBar(used, budget int) string {
	filled := 0
	if budget > 0 {
		filled = min(used*barWidth/budget, barWidth)
	}
	return p.progressFull.Render(strings.Repeat("█", filled)) +
		p.progressEmpty.Render(strings.Repeat("░", barWidth-filled))
}

func (p *SpecialistsPanel) statusStyle(r *SpecialistRow) lipgloss.Style {
	switch models.ResultStatus(r.Status) {
	case models.ResultCompleted:
		return p.passStyle
	case models.ResultBlocked:
		return p.blockedStyle
	default:
		return p.failStyle
	}
}

func (p *SpecialistsPanel) verdictStyle(v models.VerdictType) lipgloss.Style {
	switch v {
	case models.VerdictPass:
		return p.passStyle
	case models.VerdictBlocked:
		return p.blockedStyle
	default:
		return p.failStyle
	}
}

func formatTokens(n int64) string {
	switch {
	case n >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	case n >= 1_000:
		return fmt.Sprintf("%.1fk", float64(n)/1_000)
	default:
		return fmt.Sprintf("%d", n)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
