package scheduler

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// ErrNoAction is returned when a task names an action nobody registered.
var ErrNoAction = errors.New("no action registered")

// ErrDependencyFailed marks tasks skipped because a hard dependency failed.
var ErrDependencyFailed = errors.New("dependency failed")

// Action runs one task. A returned error marks the task failed; the DAG's
// failure mode decides whether dependents still run.
type Action func(ctx context.Context, task *Task) error

// Hooks observe task transitions. Any field may be nil.
type Hooks struct {
	OnStart  func(task *Task)
	OnFinish func(task *Task, err error)
}

// Executor runs the tasks of a DAG in dependency order with resource locking.
type Executor struct {
	dag         *DAG
	lockMgr     *ResourceLockManager
	actions     map[string]Action
	hooks       Hooks
	concurrency int
}

// NewExecutor creates a new Executor. concurrency <= 0 means 1, which runs
// tasks strictly one after another.
func NewExecutor(dag *DAG, lockMgr *ResourceLockManager, concurrency int) *Executor {
	if concurrency <= 0 {
		concurrency = 1
	}
	if lockMgr == nil {
		lockMgr = NewResourceLockManager()
	}
	return &Executor{
		dag:         dag,
		lockMgr:     lockMgr,
		actions:     make(map[string]Action),
		concurrency: concurrency,
	}
}

// Register maps an action name to its implementation.
func (e *Executor) Register(action string, fn Action) {
	e.actions[action] = fn
}

// SetHooks installs transition observers.
func (e *Executor) SetHooks(h Hooks) {
	e.hooks = h
}

// ExecuteTask runs a single eligible task.
func (e *Executor) ExecuteTask(ctx context.Context, taskID string) error {
	task, exists := e.dag.Get(taskID)
	if !exists {
		return fmt.Errorf("task %q not found", taskID)
	}

	if task.Status != TaskPending && task.Status != TaskEligible {
		return fmt.Errorf("task %q is not eligible (status: %s)", taskID, task.Status)
	}

	for _, depID := range task.DependsOn {
		dep, ok := e.dag.Get(depID)
		if !ok || !isDependencyResolved(dep) {
			return fmt.Errorf("task %q has unresolved dependency %q", taskID, depID)
		}
	}

	if err := e.dag.MarkRunning(taskID); err != nil {
		return err
	}
	if e.hooks.OnStart != nil {
		e.hooks.OnStart(task)
	}

	fn, ok := e.actions[task.Action]
	if !ok {
		err := fmt.Errorf("%w for %q", ErrNoAction, task.Action)
		e.finish(task, err)
		return err
	}

	e.lockMgr.LockAll(task.WritesPaths)
	defer e.lockMgr.UnlockAll(task.WritesPaths)

	if err := ctx.Err(); err != nil {
		markErr := fmt.Errorf("context cancelled before execution: %w", err)
		e.finish(task, markErr)
		return markErr
	}

	// Task failures live in the DAG, not in the return value.
	e.finish(task, fn(ctx, task))
	return nil
}

func (e *Executor) finish(task *Task, err error) {
	if err != nil {
		_ = e.dag.MarkFailed(task.ID, err)
	} else {
		_ = e.dag.MarkCompleted(task.ID)
	}
	if e.hooks.OnFinish != nil {
		if updated, ok := e.dag.Get(task.ID); ok {
			task = updated
		}
		e.hooks.OnFinish(task, err)
	}
}

// Run executes waves of eligible tasks until none remain. Tasks blocked by a
// hard failure are marked skipped. Only context cancellation is returned as
// an error; per-task errors are recorded in the DAG.
func (e *Executor) Run(ctx context.Context) error {
	if _, err := e.dag.Validate(); err != nil {
		return err
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		eligible := e.dag.Eligible()
		if len(eligible) == 0 {
			break
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(e.concurrency)

		for _, task := range eligible {
			t := task
			g.Go(func() error {
				// Errors are recorded on the task; the wave keeps going.
				_ = e.ExecuteTask(gctx, t.ID)
				return nil
			})
		}
		_ = g.Wait()
	}

	// Skips cascade: a task behind a skipped task is also blocked.
	for blocked := e.dag.Blocked(); len(blocked) > 0; blocked = e.dag.Blocked() {
		for _, task := range blocked {
			_ = e.dag.MarkSkipped(task.ID, ErrDependencyFailed)
		}
	}

	return ctx.Err()
}
