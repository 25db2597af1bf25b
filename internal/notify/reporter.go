package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/aristath/assetpipe/internal/events"
)

// Reporter renders task events as notifications. Failures and "done"
// notices go to the console sink and, when configured, the desktop sink.
type Reporter struct {
	console Sink
	desktop Sink
	logger  zerolog.Logger
}

// NewReporter creates a reporter. desktop may be nil.
func NewReporter(console, desktop Sink, logger zerolog.Logger) *Reporter {
	return &Reporter{console: console, desktop: desktop, logger: logger}
}

// Run consumes events until ctx is done or the channel is closed.
func (r *Reporter) Run(ctx context.Context, ch <-chan events.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if n, ok := notificationFor(ev); ok {
				r.deliver(ctx, n)
			}
		}
	}
}

func notificationFor(ev events.Event) (Notification, bool) {
	switch e := ev.(type) {
	case events.TaskFailedEvent:
		msg := e.Message
		if e.File != "" && !strings.Contains(msg, e.File) {
			msg = e.File + ": " + msg
		}
		return Notification{
			Level:   LevelError,
			Title:   fmt.Sprintf("%s failed", e.ID),
			Message: msg,
		}, true
	case events.TaskCompletedEvent:
		if e.Notice == "" {
			return Notification{}, false
		}
		return Notification{
			Level:   LevelInfo,
			Title:   e.ID,
			Message: e.Notice,
		}, true
	}
	return Notification{}, false
}

func (r *Reporter) deliver(ctx context.Context, n Notification) {
	if r.console != nil {
		if err := r.console.Notify(ctx, n); err != nil {
			r.logger.Warn().Err(err).Msg("console notification failed")
		}
	}
	if r.desktop == nil {
		return
	}
	if err := r.desktop.Notify(ctx, n); err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			r.logger.Debug().Err(err).Msg("desktop notifications paused")
			return
		}
		r.logger.Warn().Err(err).Msg("desktop notification failed")
	}
}
