package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// LogLevel represents the severity of a log message.
type LogLevel string

const (
	LogLevelInfo  LogLevel = "INFO"
	LogLevelWarn  LogLevel = "WARN"
	LogLevelError LogLevel = "ERROR"
)

// LogEntry is one line of the activity log.
type LogEntry struct {
	Timestamp time.Time
	Level     LogLevel
	// Source is the specialist type, empty for team lead lines.
	Source  string
	Message string
}

// LogsPanel displays a filterable, scrollable activity log.
type LogsPanel struct {
	logs          []LogEntry
	filter        string
	filterOptions []string
	filterIndex   int
	scrollOffset  int
	autoScroll    bool
	height        int
	maxLogs       int

	titleStyle  lipgloss.Style
	filterStyle lipgloss.Style
	timeStyle   lipgloss.Style
	sourceStyle lipgloss.Style
	levelStyles map[LogLevel]lipgloss.Style
}

// NewLogsPanel creates a LogsPanel keeping at most maxLogs entries.
func NewLogsPanel(maxLogs int) *LogsPanel {
	if maxLogs <= 0 {
		maxLogs = 1000
	}
	return &LogsPanel{
		filter:        "all",
		filterOptions: []string{"all"},
		autoScroll:    true,
		height:        10,
		maxLogs:       maxLogs,

		titleStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("252")),

		filterStyle: lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("252")).
			Padding(0, 1),

		timeStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")),

		sourceStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("63")).
			Width(16),

		levelStyles: map[LogLevel]lipgloss.Style{
			LogLevelInfo:  lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
			LogLevelWarn:  lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
			LogLevelError: lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		},
	}
}

// AddLog appends an entry, dropping the oldest beyond the cap.
func (p *LogsPanel) AddLog(entry LogEntry) {
	p.logs = append(p.logs, entry)
	if len(p.logs) > p.maxLogs {
		p.logs = p.logs[len(p.logs)-p.maxLogs:]
	}
	if entry.Source != "" {
		p.addFilterOption(entry.Source)
	}
	if p.autoScroll {
		p.scrollToBottom()
	}
}

// Len returns the number of retained entries.
func (p *LogsPanel) Len() int {
	return len(p.logs)
}

func (p *LogsPanel) addFilterOption(source string) {
	for _, opt := range p.filterOptions {
		if opt == source {
			return
		}
	}
	p.filterOptions = append(p.filterOptions, source)
}

// SetHeight sets how many log lines are visible.
func (p *LogsPanel) SetHeight(height int) {
	if height < 1 {
		height = 1
	}
	p.height = height
	if p.autoScroll {
		p.scrollToBottom()
	}
}

// Update handles scroll and filter keys.
func (p *LogsPanel) Update(msg tea.Msg) *LogsPanel {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return p
	}
	switch key.String() {
	case "up", "k":
		if p.scrollOffset > 0 {
			p.scrollOffset--
			p.autoScroll = false
		}
	case "down", "j":
		if p.scrollOffset < len(p.filteredLogs())-p.height {
			p.scrollOffset++
		}
	case "f":
		p.filterIndex = (p.filterIndex + 1) % len(p.filterOptions)
		p.filter = p.filterOptions[p.filterIndex]
		p.scrollToBottom()
	case "g":
		p.scrollOffset = 0
		p.autoScroll = false
	case "G":
		p.scrollToBottom()
		p.autoScroll = true
	}
	return p
}

func (p *LogsPanel) scrollToBottom() {
	p.scrollOffset = max(len(p.filteredLogs())-p.height, 0)
}

func (p *LogsPanel) filteredLogs() []LogEntry {
	if p.filter == "all" {
		return p.logs
	}
	var filtered []LogEntry
	for _, l := range p.logs {
		if l.Source == p.filter {
			filtered = append(filtered, l)
		}
	}
	return filtered
}

// View renders the visible window of the log.
func (p *LogsPanel) View() string {
	var b strings.Builder

	filterText := fmt.Sprintf("[%s]", p.filter)
	if p.autoScroll {
		filterText += " (auto)"
	}
	b.WriteString(p.titleStyle.Render("Activity"))
	b.WriteString(" ")
	b.WriteString(p.filterStyle.Render(filterText))
	b.WriteString("\n")

	filtered := p.filteredLogs()
	if len(filtered) == 0 {
		b.WriteString(p.timeStyle.Italic(true).Render("  No activity yet"))
		b.WriteString("\n")
		return b.String()
	}

	start := min(p.scrollOffset, len(filtered))
	end := min(start+p.height, len(filtered))
	for _, entry := range filtered[start:end] {
		source := entry.Source
		if source == "" {
			source = "team_lead"
		}
		style, ok := p.levelStyles[entry.Level]
		if !ok {
			style = p.levelStyles[LogLevelInfo]
		}
		fmt.Fprintf(&b, "  %s %s %s\n",
			p.timeStyle.Render(entry.Timestamp.Format("15:04:05")),
			p.sourceStyle.Render(source),
			style.Render(entry.Message))
	}
	return b.String()
}
