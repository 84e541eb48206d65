package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/ShayCichocki/squadron/internal/monitor"
)

// NewProgram creates a bubbletea program for the run view of taskID.
func NewProgram(taskID string) (*tea.Program, *App) {
	app := NewApp(taskID)
	p := tea.NewProgram(app, tea.WithAltScreen())
	return p, app
}

// Sender is the subset of *tea.Program used by Forward.
type Sender interface {
	Send(msg tea.Msg)
}

// Forward sends every event to the program until events is closed.
func Forward(p Sender, events <-chan monitor.Event) {
	for ev := range events {
		p.Send(EventMsg{Event: ev})
	}
}
