package scheduler

// TaskStatus represents the current state of a task.
type TaskStatus int

const (
	TaskPending   TaskStatus = iota // Waiting for dependencies
	TaskEligible                    // All dependencies resolved, ready to run
	TaskRunning                     // Currently executing
	TaskCompleted                   // Finished successfully
	TaskFailed                      // Finished with error
	TaskSkipped                     // Never ran because a hard dependency failed
)

// String returns the lowercase status name.
func (s TaskStatus) String() string {
	switch s {
	case TaskPending:
		return "pending"
	case TaskEligible:
		return "eligible"
	case TaskRunning:
		return "running"
	case TaskCompleted:
		return "completed"
	case TaskFailed:
		return "failed"
	case TaskSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// FailureMode determines how a task's failure affects dependents.
type FailureMode int

const (
	FailHard FailureMode = iota // Block ALL dependents
	FailSoft                    // Dependents CAN still run
	FailSkip                    // Treat as success for dependency purposes
)

// Task is a node in the build graph.
type Task struct {
	ID          string   // Unique identifier within the DAG
	Name        string   // Human-readable name
	Action      string   // Key into the executor's registered actions
	DependsOn   []string // Task IDs that must finish first
	WritesPaths []string // Paths this task writes (for resource locking)
	Status      TaskStatus
	FailureMode FailureMode
	Error       error
}
