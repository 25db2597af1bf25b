package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/aristath/assetpipe/internal/events"
)

const maxLogLines = 1000

// LogPaneModel shows sequence progress and a scrollback of notifications.
type LogPaneModel struct {
	total     int
	completed int
	running   int
	failed    int
	pending   int
	lines     []string
	viewport  viewport.Model
	width     int
	height    int
	focused   bool
}

// NewLogPaneModel creates a new log pane model.
func NewLogPaneModel() LogPaneModel {
	return LogPaneModel{viewport: viewport.New(0, 0)}
}

// Update handles messages for the log pane.
func (m LogPaneModel) Update(msg tea.Msg) (LogPaneModel, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.focused {
			m.viewport, cmd = m.viewport.Update(msg)
		}

	case events.ProgressEvent:
		m.total = msg.Total
		m.completed = msg.Completed
		m.running = msg.Running
		m.failed = msg.Failed
		m.pending = msg.Pending

	case events.TaskFailedEvent:
		m.Append(msg.Timestamp, StyleStatusFailed.Render(msg.ID+" failed")+" "+failureText(msg))

	case events.TaskCompletedEvent:
		if msg.Notice != "" {
			m.Append(msg.Timestamp, StyleStatusComplete.Render(msg.ID)+" "+msg.Notice)
		}

	case events.ReloadEvent:
		m.Append(msg.Timestamp, fmt.Sprintf("reload (%s) sent to %d client(s)", msg.Reason, msg.Clients))

	case events.PhaseEvent:
		line := "phase " + string(msg.Phase)
		if msg.Addr != "" {
			line += ", serving http://" + msg.Addr
		}
		m.Append(msg.Timestamp, line)
	}

	return m, cmd
}

// Append adds a line to the scrollback.
func (m *LogPaneModel) Append(at time.Time, line string) {
	if at.IsZero() {
		at = time.Now()
	}
	m.lines = append(m.lines, StyleTimestamp.Render(at.Format(time.TimeOnly))+" "+line)
	if over := len(m.lines) - maxLogLines; over > 0 {
		m.lines = m.lines[over:]
	}
	m.viewport.SetContent(strings.Join(m.lines, "\n"))
	m.viewport.GotoBottom()
}

// Lines returns the scrollback.
func (m LogPaneModel) Lines() []string {
	return m.lines
}

// View renders the log pane.
func (m LogPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	var b strings.Builder
	title := StyleTitle.Render("Log")
	b.WriteString(title)
	b.WriteString("  ")
	b.WriteString(m.progressBar())
	b.WriteString("\n")
	b.WriteString(m.viewport.View())

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}
	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(b.String())
}

func (m LogPaneModel) progressBar() string {
	if m.total == 0 {
		return StyleStatusPending.Render("idle")
	}

	barWidth := min(m.width-24, 30)
	if barWidth < 4 {
		return fmt.Sprintf("%d/%d", m.completed, m.total)
	}
	completedWidth := (m.completed * barWidth) / m.total
	failedWidth := (m.failed * barWidth) / m.total
	runningWidth := (m.running * barWidth) / m.total
	pendingWidth := barWidth - completedWidth - failedWidth - runningWidth

	bar := StyleStatusComplete.Render(strings.Repeat("=", max(0, completedWidth)))
	bar += StyleStatusFailed.Render(strings.Repeat("!", max(0, failedWidth)))
	bar += StyleStatusRunning.Render(strings.Repeat("-", max(0, runningWidth)))
	bar += StyleStatusPending.Render(strings.Repeat(".", max(0, pendingWidth)))

	return fmt.Sprintf("[%s] %d/%d", bar, m.completed+m.failed, m.total)
}

// SetSize updates the pane dimensions.
func (m *LogPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	m.viewport.Width = max(w-4, 10)
	m.viewport.Height = max(h-3, 3)
	m.viewport.GotoBottom()
}

// SetFocused updates the focus state.
func (m *LogPaneModel) SetFocused(focused bool) {
	m.focused = focused
}
