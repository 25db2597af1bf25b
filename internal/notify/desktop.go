package notify

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"github.com/sony/gobreaker"
)

// ErrNoNotifier is returned when no desktop notifier command is available.
var ErrNoNotifier = errors.New("no desktop notifier available")

// DesktopSink shows notifications through the platform notifier command
// (notify-send on Linux, osascript on macOS). Calls go through a circuit
// breaker; while it is open Notify fails fast with gobreaker.ErrOpenState.
type DesktopSink struct {
	command string
	breaker *gobreaker.CircuitBreaker
	timeout time.Duration

	// run executes the notifier; replaced in tests.
	run func(ctx context.Context, name string, args ...string) error
}

// NewDesktopSink creates a desktop sink. command overrides the platform
// default; cb may be shared with other callers of the same notifier.
func NewDesktopSink(command string, cb *gobreaker.CircuitBreaker) (*DesktopSink, error) {
	if command == "" {
		command = defaultCommand()
	}
	if command == "" {
		return nil, ErrNoNotifier
	}
	path, err := exec.LookPath(command)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNoNotifier, command)
	}

	return &DesktopSink{
		command: path,
		breaker: cb,
		timeout: 5 * time.Second,
		run:     runCommand,
	}, nil
}

func defaultCommand() string {
	switch runtime.GOOS {
	case "linux", "freebsd", "openbsd", "netbsd":
		return "notify-send"
	case "darwin":
		return "osascript"
	default:
		return ""
	}
}

// Notify shows n on the desktop.
func (d *DesktopSink) Notify(ctx context.Context, n Notification) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	_, err := d.breaker.Execute(func() (interface{}, error) {
		return nil, d.run(ctx, d.command, desktopArgs(d.command, n)...)
	})
	return err
}

func desktopArgs(command string, n Notification) []string {
	if isOSAScript(command) {
		script := "display notification " + strconv.Quote(n.Message) + " with title " + strconv.Quote(n.Title)
		return []string{"-e", script}
	}

	urgency := "normal"
	if n.Level == LevelError {
		urgency = "critical"
	}
	return []string{"--app-name=assetpipe", "--urgency=" + urgency, n.Title, n.Message}
}

func isOSAScript(command string) bool {
	return filepath.Base(command) == "osascript"
}

func runCommand(ctx context.Context, name string, args ...string) error {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		if len(out) > 0 {
			return fmt.Errorf("%s: %w: %s", name, err, out)
		}
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

var _ Sink = (*DesktopSink)(nil)
