// Package notify turns task results published on the event bus into
// user-visible notifications.
package notify

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

// Level is the severity of a notification.
type Level int

const (
	LevelInfo Level = iota
	LevelError
)

// Notification is one message for the user.
type Notification struct {
	Level   Level
	Title   string
	Message string
}

// Sink delivers notifications.
type Sink interface {
	Notify(ctx context.Context, n Notification) error
}

var (
	styleInfoTitle  = lipgloss.NewStyle().Foreground(lipgloss.Color("green")).Bold(true)
	styleErrorTitle = lipgloss.NewStyle().Foreground(lipgloss.Color("red")).Bold(true)
	styleMessage    = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
)

// ConsoleSink writes styled one-line notifications to a writer.
type ConsoleSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewConsoleSink creates a console sink writing to w.
func NewConsoleSink(w io.Writer) *ConsoleSink {
	return &ConsoleSink{w: w}
}

// Notify writes n as "title  message".
func (c *ConsoleSink) Notify(_ context.Context, n Notification) error {
	title := styleInfoTitle
	if n.Level == LevelError {
		title = styleErrorTitle
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintf(c.w, "%s  %s\n", title.Render(n.Title), styleMessage.Render(n.Message))
	return err
}

var _ Sink = (*ConsoleSink)(nil)
