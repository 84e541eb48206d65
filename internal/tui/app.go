package tui

import (
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ShayCichocki/squadron/internal/monitor"
	"github.com/ShayCichocki/squadron/pkg/models"
)

// EventMsg wraps a monitor event for the program.
type EventMsg struct {
	Event monitor.Event
}

// DoneMsg is sent when the orchestration returns.
type DoneMsg struct {
	Status string
	Reason string
	Err    error
}

// LogMsg adds a free-form line to the activity log.
type LogMsg struct {
	Level   LogLevel
	Message string
}

// App is the bubbletea model for one squadron run.
type App struct {
	state       RunState
	specialists *SpecialistsPanel
	logs        *LogsPanel
	footer      *Footer
	spinner     spinner.Model
	width       int
	height      int
	quitting    bool
	done        bool
	err         error

	titleStyle lipgloss.Style
	errorStyle lipgloss.Style
}

// NewApp creates the model for taskID.
func NewApp(taskID string) *App {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	return &App{
		state:       RunState{TaskID: taskID},
		specialists: NewSpecialistsPanel(),
		logs:        NewLogsPanel(500),
		footer:      NewFooter(),
		spinner:     s,

		titleStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")),
		errorStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")),
	}
}

// State returns a copy of the aggregated run state.
func (a *App) State() RunState {
	return a.state
}

// Done reports whether the run has finished.
func (a *App) Done() bool {
	return a.done
}

// Init implements tea.Model.
func (a *App) Init() tea.Cmd {
	return a.spinner.Tick
}

// Update implements tea.Model.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			a.quitting = true
			return a, tea.Quit
		}
		a.logs.Update(msg)

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.logs.SetHeight(a.logHeight())

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd

	case EventMsg:
		ev := msg.Event
		if line := a.state.Apply(ev); line != "" {
			a.logs.AddLog(LogEntry{
				Timestamp: timestamp(ev.Timestamp),
				Level:     levelFor(ev),
				Source:    string(ev.Specialist),
				Message:   line,
			})
		}
		a.footer.SetCounts(a.state.Counts())

	case LogMsg:
		a.logs.AddLog(LogEntry{Timestamp: time.Now(), Level: msg.Level, Message: msg.Message})

	case DoneMsg:
		a.done = true
		a.err = msg.Err
		if msg.Status != "" {
			a.state.Status = msg.Status
		}
		if msg.Reason != "" {
			a.state.Reason = msg.Reason
		}
		message := a.state.Status
		if a.state.Reason != "" {
			message += ": " + a.state.Reason
		}
		if msg.Err != nil {
			message = msg.Err.Error()
		}
		a.footer.SetDone(msg.Err == nil && a.state.Status == "completed", truncate(message, 120))
	}
	return a, nil
}

// View implements tea.Model.
func (a *App) View() string {
	if a.quitting && !a.done {
		return "Interrupting run; resume it with 'squadron resume'.\n"
	}

	var b strings.Builder
	b.WriteString(a.titleStyle.Render("=== squadron ==="))
	b.WriteString("\n")
	if a.state.Description != "" {
		b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("243")).Italic(true).
			Render(truncate(firstLine(a.state.Description), 100)))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(a.specialists.View(&a.state, a.spinner.View()))
	b.WriteString("\n")
	b.WriteString(a.logs.View())
	b.WriteString("\n")
	if a.err != nil {
		b.WriteString(a.errorStyle.Render("Error: " + truncate(a.err.Error(), max(a.width-8, 40))))
		b.WriteString("\n")
	}
	b.WriteString(a.footer.View())
	b.WriteString("\n")
	return b.String()
}

// logHeight leaves room for the summary block and one row per specialist.
func (a *App) logHeight() int {
	reserved := 12 + len(a.state.Specialists)
	return max(a.height-reserved, 3)
}

func levelFor(ev monitor.Event) LogLevel {
	switch {
	case ev.Type == monitor.EventSpecialistCompleted && ev.Status != string(models.ResultCompleted):
		return LogLevelWarn
	case ev.Type == monitor.EventTaskComplete && ev.Status == "failed":
		return LogLevelError
	case ev.Type == monitor.EventVerificationDone && ev.Verdict != models.VerdictPass:
		return LogLevelWarn
	default:
		return LogLevelInfo
	}
}

func timestamp(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return line
}
