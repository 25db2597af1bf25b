// Package orchestrator drives the pipeline: a one-time Bootstrap build
// followed by the Serve phase, in which the watch registrar and the dev
// server run until the context is cancelled.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/aristath/assetpipe/internal/config"
	"github.com/aristath/assetpipe/internal/devserver"
	"github.com/aristath/assetpipe/internal/events"
	"github.com/aristath/assetpipe/internal/notify"
	"github.com/aristath/assetpipe/internal/persistence"
	"github.com/aristath/assetpipe/internal/scheduler"
	"github.com/aristath/assetpipe/internal/tasks"
	"github.com/aristath/assetpipe/internal/watch"
)

// ErrAlreadyServing is returned when Serve is called a second time.
var ErrAlreadyServing = errors.New("serve phase already started")

// RebuildOrder is the sequence a manual rebuild runs when no tasks are named.
// Clean is left out so the dev server never sees a half-empty dist tree.
var RebuildOrder = []string{tasks.IDImages, tasks.IDStyles, tasks.IDScripts}

// TaskResult represents the outcome of one task in a sequence.
type TaskResult struct {
	TaskID   string
	Status   scheduler.TaskStatus
	Result   tasks.Result
	Err      error
	Duration time.Duration
}

// Failed reports whether the task did not complete cleanly.
func (r TaskResult) Failed() bool { return r.Status != scheduler.TaskCompleted }

// AnyFailed reports whether any result failed.
func AnyFailed(results []TaskResult) bool {
	for _, r := range results {
		if r.Failed() {
			return true
		}
	}
	return false
}

// Config configures the runner.
type Config struct {
	Config   *config.Config
	Tasks    []tasks.Task      // one per task ID
	Bus      *events.EventBus  // created when nil
	Store    persistence.Store // nil disables build history
	Reporter *notify.Reporter  // optional, fed from the bus by Run and Build
	Server   *devserver.Server // required by Serve
	Source   watch.Source      // required by Serve
	Bindings []watch.Binding   // nil means watch.DefaultBindings
	Logger   zerolog.Logger
}

// Runner sequences tasks and owns the two orchestration phases.
type Runner struct {
	cfg         Config
	tasks       map[string]tasks.Task
	lockMgr     *scheduler.ResourceLockManager
	fingerprint string
	queue       *RequestQueue
	serving     atomic.Bool

	mu        sync.Mutex
	phase     events.Phase
	reloads   int
	registrar *watch.Registrar
}

// NewRunner creates a runner.
func NewRunner(cfg Config) (*Runner, error) {
	if cfg.Config == nil {
		return nil, errors.New("orchestrator: nil config")
	}
	if cfg.Bus == nil {
		cfg.Bus = events.NewEventBus()
	}

	byID := make(map[string]tasks.Task, len(cfg.Tasks))
	for _, t := range cfg.Tasks {
		if _, dup := byID[t.ID()]; dup {
			return nil, fmt.Errorf("orchestrator: duplicate task %q", t.ID())
		}
		byID[t.ID()] = t
	}

	fp, err := cfg.Config.Fingerprint()
	if err != nil {
		return nil, fmt.Errorf("fingerprinting config: %w", err)
	}

	r := &Runner{
		cfg:         cfg,
		tasks:       byID,
		lockMgr:     scheduler.NewResourceLockManager(),
		fingerprint: fmt.Sprintf("%016x", fp),
	}
	r.queue = NewRequestQueue(8, r.handleRebuild)
	return r, nil
}

// Bus returns the event bus the runner publishes to.
func (r *Runner) Bus() *events.EventBus { return r.cfg.Bus }

// Phase returns the current phase; empty before Bootstrap.
func (r *Runner) Phase() events.Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.phase
}

// Reloads returns how many reloads were broadcast.
func (r *Runner) Reloads() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reloads
}

// Run is the default entry point: Bootstrap, then Serve until ctx is done.
// Bootstrap failures are reported and do not prevent serving. The bus is
// closed on return.
func (r *Runner) Run(ctx context.Context) error {
	return r.withReporter(ctx, func() error {
		if _, err := r.Bootstrap(ctx); err != nil {
			return err
		}
		return r.Serve(ctx)
	})
}

// Build runs Bootstrap alone with reporting. The bus is closed on return.
func (r *Runner) Build(ctx context.Context) ([]TaskResult, error) {
	var results []TaskResult
	err := r.withReporter(ctx, func() error {
		var err error
		results, err = r.Bootstrap(ctx)
		return err
	})
	return results, err
}

// withReporter feeds the reporter task lifecycle events while fn runs and
// lets it drain the rest once fn returns. The subscription is reliable so a
// burst of output never costs a failure notification.
func (r *Runner) withReporter(ctx context.Context, fn func() error) error {
	defer r.cfg.Bus.Close()
	if r.cfg.Reporter == nil {
		return fn()
	}

	ch := r.cfg.Bus.SubscribeReliable(events.TopicTask, 64)
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.cfg.Reporter.Run(context.WithoutCancel(ctx), ch)
	}()

	err := fn()
	r.cfg.Bus.Close()
	<-done
	return err
}

// Bootstrap runs clean, images, styles and scripts strictly in order. Every
// task runs even when an earlier one failed. The error is non-nil only when
// the sequence could not be built or ctx was cancelled.
func (r *Runner) Bootstrap(ctx context.Context) ([]TaskResult, error) {
	r.setPhase(events.PhaseBootstrap, "")
	return r.RunSequence(ctx, events.PhaseBootstrap, events.TriggerBootstrap, tasks.BuildOrder...)
}

// RunSequence runs the named tasks one after another. A failed task never
// stops the tasks after it.
func (r *Runner) RunSequence(ctx context.Context, phase events.Phase, trigger events.Trigger, ids ...string) ([]TaskResult, error) {
	steps := make([]scheduler.Step, 0, len(ids))
	for _, id := range ids {
		t, ok := r.tasks[id]
		if !ok {
			return nil, fmt.Errorf("unknown task %q", id)
		}
		steps = append(steps, scheduler.Step{Action: id, Name: t.Name(), WritesPaths: t.Outputs()})
	}

	dag, err := scheduler.NewSequence(scheduler.FailSoft, steps...)
	if err != nil {
		return nil, err
	}

	runID := r.startRun(ctx, phase, trigger)
	log := r.cfg.Logger.With().Str("phase", string(phase)).Str("trigger", string(trigger)).Logger()

	var (
		mu      sync.Mutex
		results = make(map[string]*TaskResult, len(ids))
		started = make(map[string]time.Time, len(ids))
	)

	exec := scheduler.NewExecutor(dag, r.lockMgr, 1)
	for _, id := range ids {
		task := r.tasks[id]
		exec.Register(id, func(ctx context.Context, st *scheduler.Task) error {
			res, err := task.Run(ctx)
			if err == nil {
				err = res.Err()
			}
			mu.Lock()
			results[st.ID] = &TaskResult{TaskID: st.ID, Result: res, Err: err}
			mu.Unlock()
			return err
		})
	}

	exec.SetHooks(scheduler.Hooks{
		OnStart: func(st *scheduler.Task) {
			mu.Lock()
			started[st.ID] = time.Now()
			mu.Unlock()
			log.Debug().Str("task", st.ID).Msg("task started")
			r.cfg.Bus.Publish(events.TopicTask, events.TaskStartedEvent{
				ID:        st.ID,
				Name:      st.Name,
				Trigger:   trigger,
				Timestamp: time.Now(),
			})
			r.publishProgress(dag)
		},
		OnFinish: func(st *scheduler.Task, err error) {
			mu.Lock()
			tr, ok := results[st.ID]
			if !ok {
				tr = &TaskResult{TaskID: st.ID, Err: err}
				results[st.ID] = tr
			}
			tr.Status = st.Status
			startedAt, ran := started[st.ID]
			if ran {
				tr.Duration = time.Since(startedAt)
			}
			snapshot := *tr
			mu.Unlock()

			r.publishResult(ctx, log, snapshot)
			r.recordTask(ctx, runID, startedAt, snapshot)
			r.publishProgress(dag)
		},
	})

	runErr := exec.Run(ctx)

	out := make([]TaskResult, 0, len(ids))
	for _, id := range ids {
		mu.Lock()
		tr, ok := results[id]
		mu.Unlock()
		if ok {
			out = append(out, *tr)
			continue
		}
		// Never started: cancelled before its turn, or skipped.
		st, _ := dag.Get(id)
		res := TaskResult{TaskID: id, Status: st.Status, Err: st.Error}
		if res.Err == nil && runErr != nil {
			res.Err = runErr
		}
		out = append(out, res)
	}
	return out, runErr
}

func (r *Runner) publishResult(ctx context.Context, log zerolog.Logger, tr TaskResult) {
	now := time.Now()
	log = log.With().Str("task", tr.TaskID).Dur("duration", tr.Duration).Logger()

	switch {
	case tr.Err == nil:
		log.Info().Int("artifacts", len(tr.Result.Artifacts)).Msg("task completed")
		r.cfg.Bus.Publish(events.TopicTask, events.TaskCompletedEvent{
			ID:        tr.TaskID,
			Notice:    tr.Result.Notice,
			Artifacts: tr.Result.Artifacts,
			Duration:  tr.Duration,
			Timestamp: now,
		})
	case ctx.Err() != nil && errors.Is(tr.Err, ctx.Err()):
		log.Debug().Err(tr.Err).Msg("task cancelled")
	case len(tr.Result.Failures) > 0:
		for _, f := range tr.Result.Failures {
			log.Error().Str("file", f.File).Msg(f.Message)
			r.cfg.Bus.Publish(events.TopicTask, events.TaskFailedEvent{
				ID:        tr.TaskID,
				File:      f.File,
				Message:   f.Message,
				Duration:  tr.Duration,
				Timestamp: now,
			})
		}
	default:
		log.Error().Err(tr.Err).Msg("task failed")
		r.cfg.Bus.Publish(events.TopicTask, events.TaskFailedEvent{
			ID:        tr.TaskID,
			Message:   tr.Err.Error(),
			Duration:  tr.Duration,
			Timestamp: now,
		})
	}
}

func (r *Runner) publishProgress(dag *scheduler.DAG) {
	counts := dag.Counts()
	r.cfg.Bus.Publish(events.TopicBuild, events.ProgressEvent{
		Total:     dag.Len(),
		Completed: counts[scheduler.TaskCompleted],
		Running:   counts[scheduler.TaskRunning],
		Failed:    counts[scheduler.TaskFailed] + counts[scheduler.TaskSkipped],
		Pending:   counts[scheduler.TaskPending] + counts[scheduler.TaskEligible],
		Timestamp: time.Now(),
	})
}

// startRun opens a history record. History is best effort: a store error is
// logged and the run continues unrecorded.
func (r *Runner) startRun(ctx context.Context, phase events.Phase, trigger events.Trigger) string {
	if r.cfg.Store == nil {
		return ""
	}
	id, err := r.cfg.Store.StartRun(ctx, string(phase), string(trigger), r.fingerprint)
	if err != nil {
		r.cfg.Logger.Warn().Err(err).Msg("failed to record run")
		return ""
	}
	return id
}

func (r *Runner) recordTask(ctx context.Context, runID string, started time.Time, tr TaskResult) {
	if r.cfg.Store == nil || runID == "" {
		return
	}
	var msg string
	if tr.Err != nil {
		if len(tr.Result.Failures) > 0 {
			parts := make([]string, len(tr.Result.Failures))
			for i, f := range tr.Result.Failures {
				parts[i] = f.String()
			}
			msg = strings.Join(parts, "; ")
		} else {
			msg = tr.Err.Error()
		}
	}
	err := r.cfg.Store.RecordTask(context.WithoutCancel(ctx), persistence.TaskRun{
		RunID:     runID,
		TaskID:    tr.TaskID,
		Status:    tr.Status.String(),
		Message:   msg,
		StartedAt: started,
		Duration:  tr.Duration,
		Artifacts: tr.Result.Artifacts,
	})
	if err != nil {
		r.cfg.Logger.Warn().Err(err).Str("task", tr.TaskID).Msg("failed to record task")
	}
}

// Serve runs the watch registrar, the dev server and the manual rebuild
// queue until ctx is cancelled. It may be called once. Cancellation is a
// clean shutdown and returns nil.
func (r *Runner) Serve(ctx context.Context) error {
	if r.cfg.Server == nil || r.cfg.Source == nil {
		return errors.New("orchestrator: serve needs a dev server and a watch source")
	}
	if !r.serving.CompareAndSwap(false, true) {
		return ErrAlreadyServing
	}

	bindings := r.cfg.Bindings
	if bindings == nil {
		var err error
		if bindings, err = watch.DefaultBindings(r.cfg.Config); err != nil {
			return err
		}
	}

	reg, err := watch.NewRegistrar(bindings, watch.Options{
		Source:   r.cfg.Source,
		Run:      r.runBinding,
		Reload:   r.reload,
		Debounce: time.Duration(r.cfg.Config.Watch.DebounceMillis) * time.Millisecond,
		Suppress: time.Duration(r.cfg.Config.Watch.SuppressMillis) * time.Millisecond,
		Logger:   r.cfg.Logger,
		CleanID:  tasks.IDClean,
	})
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.registrar = reg
	r.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return r.cfg.Server.ListenAndServe(gctx)
	})
	g.Go(func() error {
		return r.ignoreCancel(reg.Run(gctx))
	})
	g.Go(func() error {
		select {
		case <-r.cfg.Server.Ready():
			r.setPhase(events.PhaseServe, r.cfg.Server.Addr())
		case <-gctx.Done():
		}
		return nil
	})
	r.queue.Start(gctx)

	err = g.Wait()
	r.queue.Stop()
	r.setPhase(events.PhaseStopped, "")
	return r.ignoreCancel(err)
}

func (r *Runner) ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// runBinding is the registrar's RunFunc. Task failures were already
// reported as events, so only sequencing errors are returned.
func (r *Runner) runBinding(ctx context.Context, b watch.Binding) error {
	_, err := r.RunSequence(ctx, events.PhaseServe, events.TriggerWatch, b.Tasks...)
	return err
}

func (r *Runner) reload(reason string) {
	n := r.cfg.Server.Reload(reason)

	r.mu.Lock()
	r.reloads++
	r.mu.Unlock()

	r.cfg.Logger.Info().Str("reason", reason).Int("clients", n).Msg("reload")
	r.cfg.Bus.Publish(events.TopicReload, events.ReloadEvent{
		Reason:    reason,
		Clients:   n,
		Timestamp: time.Now(),
	})
}

// Rebuild asks the Serve loop to run the named tasks, or RebuildOrder when
// none are named, and reload afterwards. It blocks until the sequence is done.
func (r *Runner) Rebuild(ctx context.Context, taskIDs ...string) ([]TaskResult, error) {
	if len(taskIDs) == 0 {
		taskIDs = RebuildOrder
	}
	for _, id := range taskIDs {
		if id == tasks.IDClean {
			return nil, watch.ErrCleanInBinding
		}
	}
	return r.queue.Submit(ctx, taskIDs)
}

func (r *Runner) handleRebuild(ctx context.Context, taskIDs []string) ([]TaskResult, error) {
	var writes []string
	for _, id := range taskIDs {
		if t, ok := r.tasks[id]; ok {
			writes = append(writes, t.Outputs()...)
		}
	}
	r.mu.Lock()
	reg := r.registrar
	r.mu.Unlock()

	done := func() {}
	if reg != nil {
		done = reg.TrackWrites(writes)
	}
	results, err := r.RunSequence(ctx, events.PhaseServe, events.TriggerManual, taskIDs...)
	done()
	if err != nil {
		return results, err
	}
	r.reload("manual")
	return results, nil
}

func (r *Runner) setPhase(p events.Phase, addr string) {
	r.mu.Lock()
	r.phase = p
	r.mu.Unlock()

	r.cfg.Logger.Info().Str("phase", string(p)).Msg("phase changed")
	r.cfg.Bus.Publish(events.TopicBuild, events.PhaseEvent{
		Phase:     p,
		Addr:      addr,
		Timestamp: time.Now(),
	})
}

// OutputTo returns a tasks.Env Output function that publishes each line as a
// TaskOutputEvent.
func OutputTo(bus *events.EventBus) func(taskID, line string) {
	return func(taskID, line string) {
		bus.Publish(events.TopicOutput, events.TaskOutputEvent{
			ID:        taskID,
			Line:      line,
			Timestamp: time.Now(),
		})
	}
}
