package tui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

// Footer renders the status bar and keyboard hints.
type Footer struct {
	running int
	passed  int
	other   int
	done    bool
	success bool
	message string

	successStyle   lipgloss.Style
	errorStyle     lipgloss.Style
	hintStyle      lipgloss.Style
	separatorStyle lipgloss.Style
}

// NewFooter creates a Footer.
func NewFooter() *Footer {
	return &Footer{
		successStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("28")).
			Bold(true),

		errorStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true),

		hintStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")),

		separatorStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("236")),
	}
}

// SetCounts updates the specialist counts.
func (f *Footer) SetCounts(running, passed, other int) {
	f.running, f.passed, f.other = running, passed, other
}

// SetDone marks the run as finished.
func (f *Footer) SetDone(success bool, message string) {
	f.done = true
	f.success = success
	f.message = message
}

// View renders the footer.
func (f *Footer) View() string {
	var left string
	if f.running+f.passed+f.other > 0 {
		left = fmt.Sprintf("✓%d", f.passed)
		if f.other > 0 {
			left += f.errorStyle.Render(fmt.Sprintf(" ✗%d", f.other))
		}
		if f.running > 0 {
			left += fmt.Sprintf(" ⏳%d", f.running)
		}
	}

	if f.done {
		if f.success {
			left = f.successStyle.Render("✓ " + f.message)
		} else {
			left = f.errorStyle.Render("✗ " + f.message)
		}
	}

	right := f.hintStyle.Render("↑/↓ scroll  f filter  q quit")
	if f.done {
		right = f.hintStyle.Render("Press q to exit")
	}
	if left == "" {
		return right
	}
	return left + f.separatorStyle.Render(" │ ") + right
}
