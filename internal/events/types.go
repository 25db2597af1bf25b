package events

import (
	"time"
)

// Event is the base interface for all events.
type Event interface {
	EventType() string
	TaskID() string
}

// Topic constants
const (
	TopicTask   = "task"   // started, completed, failed
	TopicOutput = "output" // per-file task output
	TopicBuild  = "build"
	TopicReload = "reload"
)

// Event type constants
const (
	EventTypeTaskStarted   = "task.started"
	EventTypeTaskOutput    = "task.output"
	EventTypeTaskCompleted = "task.completed"
	EventTypeTaskFailed    = "task.failed"
	EventTypePhase         = "build.phase"
	EventTypeProgress      = "build.progress"
	EventTypeReload        = "reload.sent"
)

// Trigger says why a task ran.
type Trigger string

const (
	TriggerBootstrap Trigger = "bootstrap"
	TriggerWatch     Trigger = "watch"
	TriggerManual    Trigger = "manual"
)

// TaskStartedEvent is published when a task begins execution.
type TaskStartedEvent struct {
	ID        string
	Name      string
	Trigger   Trigger
	Timestamp time.Time
}

func (e TaskStartedEvent) EventType() string { return EventTypeTaskStarted }
func (e TaskStartedEvent) TaskID() string    { return e.ID }

// TaskOutputEvent carries one line of verbose task output.
type TaskOutputEvent struct {
	ID        string
	Line      string
	Timestamp time.Time
}

func (e TaskOutputEvent) EventType() string { return EventTypeTaskOutput }
func (e TaskOutputEvent) TaskID() string    { return e.ID }

// TaskCompletedEvent is published when a task finishes without failures.
// Notice is the user-facing "done" message; empty means no notification.
type TaskCompletedEvent struct {
	ID        string
	Notice    string
	Artifacts []string
	Duration  time.Duration
	Timestamp time.Time
}

func (e TaskCompletedEvent) EventType() string { return EventTypeTaskCompleted }
func (e TaskCompletedEvent) TaskID() string    { return e.ID }

// TaskFailedEvent is published once per failure a task reports.
type TaskFailedEvent struct {
	ID        string
	File      string
	Message   string
	Duration  time.Duration
	Timestamp time.Time
}

func (e TaskFailedEvent) EventType() string { return EventTypeTaskFailed }
func (e TaskFailedEvent) TaskID() string    { return e.ID }

// Phase is an orchestrator phase.
type Phase string

const (
	PhaseBootstrap Phase = "bootstrap"
	PhaseServe     Phase = "serve"
	PhaseStopped   Phase = "stopped"
)

// PhaseEvent is published when the orchestrator changes phase.
type PhaseEvent struct {
	Phase     Phase
	Addr      string // dev server address, set on PhaseServe
	Timestamp time.Time
}

func (e PhaseEvent) EventType() string { return EventTypePhase }
func (e PhaseEvent) TaskID() string    { return "" }

// ProgressEvent is published when bootstrap progress changes.
type ProgressEvent struct {
	Total     int
	Completed int
	Running   int
	Failed    int
	Pending   int
	Timestamp time.Time
}

func (e ProgressEvent) EventType() string { return EventTypeProgress }
func (e ProgressEvent) TaskID() string    { return "" }

// ReloadEvent is published after connected clients were told to refresh.
type ReloadEvent struct {
	Reason    string // binding or task that caused the reload
	Clients   int
	Timestamp time.Time
}

func (e ReloadEvent) EventType() string { return EventTypeReload }
func (e ReloadEvent) TaskID() string    { return "" }
