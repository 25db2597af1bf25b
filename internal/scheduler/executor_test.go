package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// recorder is an Action factory that logs invocation order.
type recorder struct {
	mu    sync.Mutex
	order []string
}

func (r *recorder) action(err error) Action {
	return func(ctx context.Context, task *Task) error {
		r.mu.Lock()
		r.order = append(r.order, task.ID)
		r.mu.Unlock()
		return err
	}
}

func (r *recorder) got() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

func bootstrapDAG(t *testing.T, mode FailureMode) *DAG {
	t.Helper()
	dag, err := NewSequence(mode,
		Step{Action: "clean"}, Step{Action: "images"}, Step{Action: "styles"}, Step{Action: "scripts"})
	if err != nil {
		t.Fatalf("NewSequence: %v", err)
	}
	return dag
}

func TestExecutor_RunsSequenceInOrder(t *testing.T) {
	dag := bootstrapDAG(t, FailSoft)
	rec := &recorder{}

	exec := NewExecutor(dag, nil, 1)
	for _, id := range []string{"clean", "images", "styles", "scripts"} {
		exec.Register(id, rec.action(nil))
	}

	if err := exec.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []string{"clean", "images", "styles", "scripts"}
	got := rec.got()
	if len(got) != len(want) {
		t.Fatalf("ran %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("step %d = %s, want %s", i, got[i], want[i])
		}
	}
	if counts := dag.Counts(); counts[TaskCompleted] != 4 {
		t.Errorf("completed = %d, want 4", counts[TaskCompleted])
	}
}

func TestExecutor_SoftFailureDoesNotAbortSequence(t *testing.T) {
	dag := bootstrapDAG(t, FailSoft)
	rec := &recorder{}

	exec := NewExecutor(dag, nil, 1)
	exec.Register("clean", rec.action(nil))
	exec.Register("images", rec.action(nil))
	exec.Register("styles", rec.action(errors.New("expected \";\"")))
	exec.Register("scripts", rec.action(nil))

	if err := exec.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := rec.got(); len(got) != 4 {
		t.Fatalf("expected all 4 tasks to run, got %v", got)
	}
	styles, _ := dag.Get("styles")
	if styles.Status != TaskFailed || styles.Error == nil {
		t.Errorf("styles status = %s, err = %v", styles.Status, styles.Error)
	}
	scripts, _ := dag.Get("scripts")
	if scripts.Status != TaskCompleted {
		t.Errorf("scripts status = %s, want completed", scripts.Status)
	}
}

func TestExecutor_HardFailureSkipsRest(t *testing.T) {
	dag := bootstrapDAG(t, FailHard)
	rec := &recorder{}

	exec := NewExecutor(dag, nil, 1)
	exec.Register("clean", rec.action(nil))
	exec.Register("images", rec.action(errors.New("disk full")))
	exec.Register("styles", rec.action(nil))
	exec.Register("scripts", rec.action(nil))

	if err := exec.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := rec.got(); len(got) != 2 {
		t.Fatalf("expected 2 tasks to run, got %v", got)
	}
	for _, id := range []string{"styles", "scripts"} {
		task, _ := dag.Get(id)
		if task.Status != TaskSkipped || !errors.Is(task.Error, ErrDependencyFailed) {
			t.Errorf("%s status = %s err = %v, want skipped", id, task.Status, task.Error)
		}
	}
}

func TestExecutor_UnregisteredAction(t *testing.T) {
	dag := NewDAG()
	dag.AddTask(&Task{ID: "styles", Action: "styles"})

	exec := NewExecutor(dag, nil, 1)
	err := exec.ExecuteTask(context.Background(), "styles")
	if !errors.Is(err, ErrNoAction) {
		t.Fatalf("expected ErrNoAction, got %v", err)
	}
	task, _ := dag.Get("styles")
	if task.Status != TaskFailed {
		t.Errorf("status = %s, want failed", task.Status)
	}
}

func TestExecutor_HooksObserveTransitions(t *testing.T) {
	dag := bootstrapDAG(t, FailSoft)
	exec := NewExecutor(dag, nil, 1)
	for _, id := range []string{"clean", "images", "styles", "scripts"} {
		exec.Register(id, func(ctx context.Context, task *Task) error { return nil })
	}

	var started, finished atomic.Int32
	exec.SetHooks(Hooks{
		OnStart: func(task *Task) { started.Add(1) },
		OnFinish: func(task *Task, err error) {
			if task.Status != TaskCompleted {
				t.Errorf("OnFinish saw status %s", task.Status)
			}
			finished.Add(1)
		},
	})

	if err := exec.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if started.Load() != 4 || finished.Load() != 4 {
		t.Errorf("started=%d finished=%d, want 4/4", started.Load(), finished.Load())
	}
}

func TestExecutor_ContextCancelled(t *testing.T) {
	dag := bootstrapDAG(t, FailSoft)
	ctx, cancel := context.WithCancel(context.Background())

	exec := NewExecutor(dag, nil, 1)
	exec.Register("clean", func(ctx context.Context, task *Task) error {
		cancel()
		return nil
	})
	for _, id := range []string{"images", "styles", "scripts"} {
		exec.Register(id, func(ctx context.Context, task *Task) error {
			t.Errorf("%s ran after cancellation", task.ID)
			return nil
		})
	}

	if err := exec.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run error = %v, want context.Canceled", err)
	}
}

func TestExecutor_LocksSerializeSamePath(t *testing.T) {
	dag := NewDAG()
	dag.AddTask(&Task{ID: "a", Action: "work", WritesPaths: []string{"dist/css"}})
	dag.AddTask(&Task{ID: "b", Action: "work", WritesPaths: []string{"dist/css"}})

	var active, maxActive atomic.Int32
	exec := NewExecutor(dag, nil, 2)
	exec.Register("work", func(ctx context.Context, task *Task) error {
		n := active.Add(1)
		for {
			m := maxActive.Load()
			if n <= m || maxActive.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		active.Add(-1)
		return nil
	})

	if err := exec.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if maxActive.Load() != 1 {
		t.Errorf("max concurrent writers = %d, want 1", maxActive.Load())
	}
}
