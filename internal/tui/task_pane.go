package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/assetpipe/internal/events"
)

// maxTaskLines caps the output kept per task.
const maxTaskLines = 500

// Task display states.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// TaskState is what the dashboard knows about one task.
type TaskState struct {
	ID       string
	Name     string
	Status   string
	Trigger  events.Trigger
	Output   []string
	Started  time.Time
	Duration time.Duration
	Runs     int
}

// TaskPaneModel shows the task list and the selected task's output.
type TaskPaneModel struct {
	tasks       map[string]*TaskState
	order       []string
	selectedIdx int
	viewport    viewport.Model
	spinner     spinner.Model
	width       int
	height      int
	focused     bool
	updateTag   int // for debouncing
}

// NewTaskPaneModel creates a task pane with the given tasks listed as pending.
func NewTaskPaneModel(taskIDs []string) TaskPaneModel {
	m := TaskPaneModel{
		tasks:    make(map[string]*TaskState),
		viewport: viewport.New(0, 0),
		spinner:  spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(StyleStatusRunning)),
	}
	for _, id := range taskIDs {
		m.add(id, id)
	}
	m.updateViewportContent()
	return m
}

func (m *TaskPaneModel) add(id, name string) *TaskState {
	if t, ok := m.tasks[id]; ok {
		return t
	}
	t := &TaskState{ID: id, Name: name, Status: StatusPending}
	m.tasks[id] = t
	m.order = append(m.order, id)
	return t
}

// tickMsg is used for debouncing viewport updates.
type tickMsg struct {
	tag int
}

// Update handles messages for the task pane.
func (m TaskPaneModel) Update(msg tea.Msg) (TaskPaneModel, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if !m.focused {
			break
		}
		switch msg.String() {
		case KeyJ, KeyDown:
			if m.selectedIdx < len(m.order)-1 {
				m.selectedIdx++
				m.updateViewportContent()
			}
		case KeyK, KeyUp:
			if m.selectedIdx > 0 {
				m.selectedIdx--
				m.updateViewportContent()
			}
		default:
			m.viewport, cmd = m.viewport.Update(msg)
		}

	case spinner.TickMsg:
		m.spinner, cmd = m.spinner.Update(msg)

	case events.TaskStartedEvent:
		t := m.add(msg.ID, msg.Name)
		t.Name = msg.Name
		t.Status = StatusRunning
		t.Trigger = msg.Trigger
		t.Started = msg.Timestamp
		t.Runs++
		m.appendLine(t, fmt.Sprintf("--- run %d (%s) %s ---", t.Runs, msg.Trigger, msg.Timestamp.Format(time.TimeOnly)))
		if m.selected() == msg.ID {
			m.updateViewportContent()
		}

	case events.TaskOutputEvent:
		if t, ok := m.tasks[msg.ID]; ok {
			m.appendLine(t, msg.Line)
			if m.selected() == msg.ID {
				m.updateTag++
				tag := m.updateTag
				return m, tea.Tick(50*time.Millisecond, func(time.Time) tea.Msg {
					return tickMsg{tag: tag}
				})
			}
		}

	case events.TaskCompletedEvent:
		if t, ok := m.tasks[msg.ID]; ok {
			t.Status = StatusCompleted
			t.Duration = msg.Duration
			line := fmt.Sprintf("[completed in %s]", msg.Duration.Round(time.Millisecond))
			if msg.Notice != "" {
				line += " " + msg.Notice
			}
			m.appendLine(t, line)
			if m.selected() == msg.ID {
				m.updateViewportContent()
			}
		}

	case events.TaskFailedEvent:
		if t, ok := m.tasks[msg.ID]; ok {
			t.Status = StatusFailed
			t.Duration = msg.Duration
			m.appendLine(t, StyleStatusFailed.Render("[failed] ")+failureText(msg))
			if m.selected() == msg.ID {
				m.updateViewportContent()
			}
		}

	case tickMsg:
		if msg.tag == m.updateTag {
			m.updateViewportContent()
		}
	}

	return m, cmd
}

func (m *TaskPaneModel) appendLine(t *TaskState, line string) {
	t.Output = append(t.Output, line)
	if over := len(t.Output) - maxTaskLines; over > 0 {
		t.Output = t.Output[over:]
	}
}

func failureText(e events.TaskFailedEvent) string {
	if e.File == "" || strings.Contains(e.Message, e.File) {
		return e.Message
	}
	return e.File + ": " + e.Message
}

// View renders the task pane.
func (m TaskPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	listWidth := 26
	viewportWidth := m.width - listWidth - 4

	content := lipgloss.JoinHorizontal(
		lipgloss.Top,
		m.renderTaskList(listWidth),
		lipgloss.NewStyle().
			Width(viewportWidth).
			Height(m.height-2).
			Render(m.viewport.View()),
	)

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}
	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(content)
}

func (m TaskPaneModel) renderTaskList(width int) string {
	var b strings.Builder

	title := StyleTitle.Render("Tasks")
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", min(width, lipgloss.Width(title))))
	b.WriteString("\n\n")

	for i, id := range m.order {
		t := m.tasks[id]
		line := fmt.Sprintf("%s %-8s", m.StatusIcon(t.Status), t.Name)
		if t.Duration > 0 && t.Status != StatusRunning {
			line += " " + StyleTimestamp.Render(t.Duration.Round(time.Millisecond).String())
		}
		if i == m.selectedIdx {
			line = StyleSelected.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	return lipgloss.NewStyle().
		Width(width).
		Height(m.height - 2).
		Render(b.String())
}

// StatusIcon returns a styled status indicator. Running tasks show the spinner.
func (m TaskPaneModel) StatusIcon(status string) string {
	switch status {
	case StatusRunning:
		return m.spinner.View()
	case StatusCompleted:
		return StyleStatusComplete.Render("✓")
	case StatusFailed:
		return StyleStatusFailed.Render("✗")
	default:
		return StyleStatusPending.Render("○")
	}
}

// Task returns the state of a task.
func (m TaskPaneModel) Task(id string) (TaskState, bool) {
	t, ok := m.tasks[id]
	if !ok {
		return TaskState{}, false
	}
	return *t, true
}

func (m TaskPaneModel) selected() string {
	if m.selectedIdx >= 0 && m.selectedIdx < len(m.order) {
		return m.order[m.selectedIdx]
	}
	return ""
}

func (m *TaskPaneModel) updateViewportContent() {
	t, ok := m.tasks[m.selected()]
	if !ok || len(t.Output) == 0 {
		m.viewport.SetContent("Waiting for output...")
		return
	}
	m.viewport.SetContent(strings.Join(t.Output, "\n"))
	m.viewport.GotoBottom()
}

func (m *TaskPaneModel) resizeViewport() {
	m.viewport.Width = max(m.width-26-4, 10)
	m.viewport.Height = max(m.height-4, 5)
}

// SetSize updates the pane dimensions.
func (m *TaskPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	m.resizeViewport()
}

// SetFocused updates the focus state.
func (m *TaskPaneModel) SetFocused(focused bool) {
	m.focused = focused
}

// SpinnerTick starts the spinner animation.
func (m TaskPaneModel) SpinnerTick() tea.Cmd {
	return m.spinner.Tick
}
