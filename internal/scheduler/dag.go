package scheduler

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/gammazero/toposort"
)

// DAG is a directed acyclic graph of build tasks.
type DAG struct {
	mu         sync.RWMutex
	tasks      map[string]*Task
	order      []string            // insertion order, used to break ties deterministically
	dependents map[string][]string // taskID -> tasks that depend on it
}

// NewDAG creates an empty DAG.
func NewDAG() *DAG {
	return &DAG{
		tasks:      make(map[string]*Task),
		dependents: make(map[string][]string),
	}
}

// AddTask adds a task to the DAG. Returns error if task ID already exists.
func (d *DAG) AddTask(task *Task) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if task.ID == "" {
		return fmt.Errorf("task has empty ID")
	}
	if _, exists := d.tasks[task.ID]; exists {
		return fmt.Errorf("task with ID %q already exists", task.ID)
	}

	d.tasks[task.ID] = task
	d.order = append(d.order, task.ID)

	for _, depID := range task.DependsOn {
		d.dependents[depID] = append(d.dependents[depID], task.ID)
	}

	return nil
}

// Validate runs a topological sort with gammazero/toposort.
// Returns ordered task IDs, or an error on a cycle or a dangling dependency.
func (d *DAG) Validate() ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, taskID := range d.order {
		for _, depID := range d.tasks[taskID].DependsOn {
			if _, exists := d.tasks[depID]; !exists {
				return nil, fmt.Errorf("task %q depends on non-existent task %q", taskID, depID)
			}
		}
	}

	var edges []toposort.Edge
	for _, taskID := range d.order {
		task := d.tasks[taskID]
		if len(task.DependsOn) == 0 {
			// Edge from nil keeps isolated tasks in the result.
			edges = append(edges, toposort.Edge{nil, taskID})
			continue
		}
		for _, depID := range task.DependsOn {
			edges = append(edges, toposort.Edge{depID, taskID})
		}
	}

	sorted, err := toposort.Toposort(edges)
	if err != nil {
		return nil, fmt.Errorf("DAG contains cycle: %w", err)
	}

	order := make([]string, 0, len(sorted))
	for _, id := range sorted {
		if id != nil {
			order = append(order, id.(string))
		}
	}

	if len(order) != len(d.tasks) {
		found := make(map[string]bool, len(order))
		for _, id := range order {
			found[id] = true
		}
		var missing []string
		for taskID := range d.tasks {
			if !found[taskID] {
				missing = append(missing, taskID)
			}
		}
		sort.Strings(missing)
		return nil, fmt.Errorf("topological sort lost %d tasks: %s", len(missing), strings.Join(missing, ", "))
	}

	return order, nil
}

// Eligible returns pending tasks whose dependencies are all resolved, in
// insertion order.
func (d *DAG) Eligible() []*Task {
	d.mu.RLock()
	defer d.mu.RUnlock()

	eligible := []*Task{}
	for _, taskID := range d.order {
		task := d.tasks[taskID]
		if task.Status != TaskPending {
			continue
		}

		allResolved := true
		for _, depID := range task.DependsOn {
			dep, exists := d.tasks[depID]
			if !exists || !isDependencyResolved(dep) {
				allResolved = false
				break
			}
		}

		if allResolved {
			eligible = append(eligible, cloneTask(task))
		}
	}

	return eligible
}

// Blocked returns pending tasks that can never run because a FailHard
// dependency failed or was skipped.
func (d *DAG) Blocked() []*Task {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var blocked []*Task
	for _, taskID := range d.order {
		task := d.tasks[taskID]
		if task.Status != TaskPending {
			continue
		}
		for _, depID := range task.DependsOn {
			dep := d.tasks[depID]
			if dep == nil {
				continue
			}
			hardFail := dep.Status == TaskFailed && dep.FailureMode == FailHard
			if hardFail || dep.Status == TaskSkipped {
				blocked = append(blocked, cloneTask(task))
				break
			}
		}
	}
	return blocked
}

func isDependencyResolved(dep *Task) bool {
	switch dep.Status {
	case TaskCompleted:
		return true
	case TaskFailed:
		return dep.FailureMode == FailSoft || dep.FailureMode == FailSkip
	}
	return false
}

// MarkRunning sets task status to TaskRunning.
func (d *DAG) MarkRunning(taskID string) error {
	return d.setStatus(taskID, TaskRunning, nil)
}

// MarkCompleted sets task status to TaskCompleted.
func (d *DAG) MarkCompleted(taskID string) error {
	return d.setStatus(taskID, TaskCompleted, nil)
}

// MarkFailed sets task status to TaskFailed and stores the error.
// What happens to dependents depends on the task's FailureMode.
func (d *DAG) MarkFailed(taskID string, err error) error {
	return d.setStatus(taskID, TaskFailed, err)
}

// MarkSkipped sets task status to TaskSkipped.
func (d *DAG) MarkSkipped(taskID string, reason error) error {
	return d.setStatus(taskID, TaskSkipped, reason)
}

func (d *DAG) setStatus(taskID string, status TaskStatus, err error) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	task, exists := d.tasks[taskID]
	if !exists {
		return fmt.Errorf("task %q not found", taskID)
	}
	task.Status = status
	task.Error = err
	return nil
}

// Get returns a copy of the task with the given ID.
func (d *DAG) Get(taskID string) (*Task, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	task, exists := d.tasks[taskID]
	if !exists {
		return nil, false
	}
	return cloneTask(task), true
}

// Tasks returns copies of all tasks in insertion order.
func (d *DAG) Tasks() []*Task {
	d.mu.RLock()
	defer d.mu.RUnlock()

	tasks := make([]*Task, 0, len(d.order))
	for _, taskID := range d.order {
		tasks = append(tasks, cloneTask(d.tasks[taskID]))
	}
	return tasks
}

// Counts tallies tasks by status.
func (d *DAG) Counts() map[TaskStatus]int {
	d.mu.RLock()
	defer d.mu.RUnlock()

	counts := make(map[TaskStatus]int)
	for _, task := range d.tasks {
		counts[task.Status]++
	}
	return counts
}

// Len returns the number of tasks.
func (d *DAG) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.tasks)
}

func cloneTask(task *Task) *Task {
	if task == nil {
		return nil
	}

	cp := *task
	if task.DependsOn != nil {
		cp.DependsOn = append([]string(nil), task.DependsOn...)
	}
	if task.WritesPaths != nil {
		cp.WritesPaths = append([]string(nil), task.WritesPaths...)
	}
	return &cp
}
