// Package tui is the terminal dashboard shown with --tui.
package tui

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/assetpipe/internal/config"
	"github.com/aristath/assetpipe/internal/events"
)

// PaneID identifies which pane is focused.
type PaneID int

const (
	PaneTasks PaneID = iota
	PaneLog
)

// RebuildFunc asks the pipeline to rebuild every category.
type RebuildFunc func(ctx context.Context) error

// Options configures the dashboard.
type Options struct {
	Config      *config.Config
	TaskIDs     []string // listed before any task starts
	Rebuild     RebuildFunc
	GlobalPath  string
	ProjectPath string
}

// busClosedMsg is delivered once the event bus is closed.
type busClosedMsg struct{}

// rebuildDoneMsg reports the outcome of a manual rebuild.
type rebuildDoneMsg struct{ err error }

// Model is the root Bubble Tea model for the TUI.
type Model struct {
	taskPane     TaskPaneModel
	logPane      LogPaneModel
	settingsPane SettingsPaneModel
	focusedPane  PaneID
	eventSub     <-chan events.Event
	rebuild      RebuildFunc
	phase        events.Phase
	addr         string
	reloads      int
	width        int
	height       int
	quitting     bool
	showSettings bool
}

// New creates a new TUI model.
// It subscribes to all events from the event bus using SubscribeAll.
func New(eventBus *events.EventBus, opts Options) Model {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	m := Model{
		taskPane:     NewTaskPaneModel(opts.TaskIDs),
		logPane:      NewLogPaneModel(),
		settingsPane: NewSettingsPaneModel(cfg, opts.GlobalPath, opts.ProjectPath),
		eventSub:     eventBus.SubscribeAll(1024),
		rebuild:      opts.Rebuild,
	}
	m.updateFocusStates()
	return m
}

// Init initializes the model and returns the initial command.
func (m Model) Init() tea.Cmd {
	return tea.Batch(waitForEvent(m.eventSub), m.taskPane.SpinnerTick())
}

// waitForEvent returns a command that waits for the next event from the event bus.
func waitForEvent(sub <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-sub
		if !ok {
			return busClosedMsg{}
		}
		return event
	}
}

func (m Model) runRebuild() tea.Cmd {
	if m.rebuild == nil {
		return nil
	}
	fn := m.rebuild
	return func() tea.Msg {
		return rebuildDoneMsg{err: fn(context.Background())}
	}
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		// The settings form is modal.
		if m.showSettings {
			var cmd tea.Cmd
			m.settingsPane, cmd = m.settingsPane.Update(msg)
			cmds = append(cmds, cmd)
			if !m.settingsPane.IsVisible() {
				m.showSettings = false
				if m.settingsPane.Saved() {
					m.logPane.Append(time.Now(), "settings saved, restart to apply")
				}
			}
			return m, tea.Batch(cmds...)
		}

		switch msg.String() {
		case KeyQuit, KeyCtrlC:
			m.quitting = true
			return m, tea.Quit

		case KeySettings:
			m.showSettings = true
			m.settingsPane.SetVisible(true)
			cmds = append(cmds, m.settingsPane.Init())

		case KeyRebuild:
			if m.rebuild != nil {
				m.logPane.Append(time.Now(), "manual rebuild requested")
				cmds = append(cmds, m.runRebuild())
			}

		case KeyTab, KeyShiftTab:
			m.focusedPane = (m.focusedPane + 1) % 2
			m.updateFocusStates()

		default:
			var cmd tea.Cmd
			switch m.focusedPane {
			case PaneTasks:
				m.taskPane, cmd = m.taskPane.Update(msg)
			case PaneLog:
				m.logPane, cmd = m.logPane.Update(msg)
			}
			cmds = append(cmds, cmd)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.computeLayout()
		m.settingsPane.SetSize(msg.Width, msg.Height)

	case busClosedMsg:
		m.quitting = true
		return m, tea.Quit

	case rebuildDoneMsg:
		if msg.err != nil {
			m.logPane.Append(time.Now(), StyleStatusFailed.Render("rebuild: ")+msg.err.Error())
		}

	case events.TaskStartedEvent, events.TaskOutputEvent, events.TaskCompletedEvent, events.TaskFailedEvent:
		var cmd tea.Cmd
		m.taskPane, cmd = m.taskPane.Update(msg)
		cmds = append(cmds, cmd)
		m.logPane, cmd = m.logPane.Update(msg)
		cmds = append(cmds, cmd, waitForEvent(m.eventSub))

	case events.PhaseEvent:
		m.phase = msg.Phase
		if msg.Addr != "" {
			m.addr = msg.Addr
		}
		var cmd tea.Cmd
		m.logPane, cmd = m.logPane.Update(msg)
		cmds = append(cmds, cmd, waitForEvent(m.eventSub))

	case events.ReloadEvent:
		m.reloads++
		var cmd tea.Cmd
		m.logPane, cmd = m.logPane.Update(msg)
		cmds = append(cmds, cmd, waitForEvent(m.eventSub))

	case events.ProgressEvent:
		var cmd tea.Cmd
		m.logPane, cmd = m.logPane.Update(msg)
		cmds = append(cmds, cmd, waitForEvent(m.eventSub))

	case events.Event:
		// Unknown event types are consumed.
		cmds = append(cmds, waitForEvent(m.eventSub))

	default:
		// Spinner ticks and debounced viewport refreshes.
		var cmd tea.Cmd
		m.taskPane, cmd = m.taskPane.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return "Stopping...\n"
	}
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}
	if m.showSettings {
		return m.settingsPane.View()
	}

	body := lipgloss.JoinHorizontal(lipgloss.Top, m.taskPane.View(), m.logPane.View())
	return lipgloss.JoinVertical(lipgloss.Left, m.headerView(), body, HelpView())
}

func (m Model) headerView() string {
	phase := string(m.phase)
	if phase == "" {
		phase = "starting"
	}
	parts := []string{
		StyleHeader.Render("assetpipe"),
		StyleHeaderField.Render("phase: " + phase),
	}
	if m.addr != "" {
		parts = append(parts, StyleHeaderField.Render("http://"+m.addr))
	}
	parts = append(parts, StyleHeaderField.Render(fmt.Sprintf("reloads: %d", m.reloads)))
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

// computeLayout calculates pane dimensions and updates all child models.
func (m *Model) computeLayout() {
	leftWidth := (m.width * 55) / 100
	rightWidth := m.width - leftWidth
	availableHeight := m.height - 2 // header and help bar

	m.taskPane.SetSize(leftWidth, availableHeight)
	m.logPane.SetSize(rightWidth, availableHeight)
	m.updateFocusStates()
}

func (m *Model) updateFocusStates() {
	m.taskPane.SetFocused(m.focusedPane == PaneTasks)
	m.logPane.SetFocused(m.focusedPane == PaneLog)
}

// Phase returns the last phase seen on the bus.
func (m Model) Phase() events.Phase { return m.phase }

// Reloads returns how many reload events were seen.
func (m Model) Reloads() int { return m.reloads }
