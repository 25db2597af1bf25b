package scheduler

import (
	"fmt"
)

// Step is one entry of a sequence: an action plus the paths it writes.
type Step struct {
	Action      string
	Name        string
	WritesPaths []string
}

// NewSequence builds a DAG in which every step depends on the previous one,
// so the executor runs them strictly in order. Task IDs equal the action
// names; an action may appear only once per sequence.
func NewSequence(mode FailureMode, steps ...Step) (*DAG, error) {
	dag := NewDAG()

	prev := ""
	for _, step := range steps {
		task := &Task{
			ID:          step.Action,
			Name:        step.Name,
			Action:      step.Action,
			WritesPaths: step.WritesPaths,
			Status:      TaskPending,
			FailureMode: mode,
		}
		if task.Name == "" {
			task.Name = step.Action
		}
		if prev != "" {
			task.DependsOn = []string{prev}
		}
		if err := dag.AddTask(task); err != nil {
			return nil, fmt.Errorf("building sequence: %w", err)
		}
		prev = task.ID
	}

	if _, err := dag.Validate(); err != nil {
		return nil, err
	}
	return dag, nil
}
