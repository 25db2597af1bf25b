// Package tasks implements the build tasks: clean, images, styles and
// scripts. Each task rebuilds every matching source of its category on every
// run and reports per-file problems in its Result instead of returning them
// as errors.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/aristath/assetpipe/internal/config"
	"github.com/aristath/assetpipe/internal/resilience"
	"github.com/aristath/assetpipe/internal/toolchain"
)

// Task IDs. A task is identified by the category it operates on.
const (
	IDClean   = "clean"
	IDImages  = "images"
	IDStyles  = "styles"
	IDScripts = "scripts"
)

// ErrTaskFailed is wrapped by Result.Err when a run reported failures.
var ErrTaskFailed = errors.New("task reported failures")

// Failure is one problem a task reported, usually tied to a source file.
type Failure struct {
	TaskID  string
	File    string
	Message string
}

func (f Failure) String() string {
	if f.File == "" {
		return fmt.Sprintf("%s: %s", f.TaskID, f.Message)
	}
	return fmt.Sprintf("%s: %s: %s", f.TaskID, f.File, f.Message)
}

// Result is the outcome of one task run. A run with no failures succeeded.
type Result struct {
	Failures  []Failure
	Notice    string   // "done" message for the notifier; empty means none
	Artifacts []string // files written, absolute paths
}

// OK reports whether the run succeeded.
func (r Result) OK() bool { return len(r.Failures) == 0 }

// Err returns nil on success, otherwise an error wrapping ErrTaskFailed that
// lists every failure.
func (r Result) Err() error {
	if r.OK() {
		return nil
	}
	msgs := make([]string, len(r.Failures))
	for i, f := range r.Failures {
		msgs[i] = f.String()
	}
	return fmt.Errorf("%w: %s", ErrTaskFailed, strings.Join(msgs, "; "))
}

func (r *Result) fail(taskID, file string, err error) {
	f := Failure{TaskID: taskID, File: file, Message: err.Error()}
	var ce *toolchain.CompileError
	if errors.As(err, &ce) {
		if ce.File != "" {
			f.File = ce.File
		}
		f.Message = ce.Error()
	}
	r.Failures = append(r.Failures, f)
}

// Task is a named, idempotent unit of build work.
type Task interface {
	ID() string
	Name() string
	// Outputs lists the destination paths the task writes or removes.
	Outputs() []string
	// Run rebuilds the task's artifacts. The error is reserved for conditions
	// that stop the task as a whole (cancellation, an unreadable source
	// directory); per-file problems go into Result.Failures.
	Run(ctx context.Context) (Result, error)
}

// Env is what every task needs from its surroundings.
type Env struct {
	Config *config.Config
	Tools  *toolchain.Toolchain
	Logger zerolog.Logger
	Retry  resilience.RetryConfig
	// Output receives verbose per-file lines. Optional.
	Output func(taskID, line string)
}

func (e *Env) output(taskID, format string, args ...any) {
	if e.Output != nil {
		e.Output(taskID, fmt.Sprintf(format, args...))
	}
}

// New returns the task for id.
func New(id string, env *Env) (Task, error) {
	switch id {
	case IDClean:
		return NewCleanTask(env), nil
	case IDImages:
		return NewImageTask(env)
	case IDStyles:
		return NewStyleTask(env)
	case IDScripts:
		return NewScriptTask(env)
	default:
		return nil, fmt.Errorf("unknown task %q", id)
	}
}

// BuildOrder is the bootstrap sequence.
var BuildOrder = []string{IDClean, IDImages, IDStyles, IDScripts}
