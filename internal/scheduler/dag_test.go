package scheduler

import (
	"errors"
	"strings"
	"testing"
)

// TestDAGValidate tests DAG validation with various graph structures.
func TestDAGValidate(t *testing.T) {
	tests := []struct {
		name        string
		setup       func() *DAG
		wantErr     bool
		errContains string
	}{
		{
			name: "bootstrap chain",
			setup: func() *DAG {
				dag := NewDAG()
				dag.AddTask(&Task{ID: "clean"})
				dag.AddTask(&Task{ID: "images", DependsOn: []string{"clean"}})
				dag.AddTask(&Task{ID: "styles", DependsOn: []string{"images"}})
				dag.AddTask(&Task{ID: "scripts", DependsOn: []string{"styles"}})
				return dag
			},
		},
		{
			name: "parallel group joined",
			setup: func() *DAG {
				dag := NewDAG()
				dag.AddTask(&Task{ID: "A"})
				dag.AddTask(&Task{ID: "B"})
				dag.AddTask(&Task{ID: "C", DependsOn: []string{"A", "B"}})
				return dag
			},
		},
		{
			name: "direct cycle",
			setup: func() *DAG {
				dag := NewDAG()
				dag.AddTask(&Task{ID: "A", DependsOn: []string{"B"}})
				dag.AddTask(&Task{ID: "B", DependsOn: []string{"A"}})
				return dag
			},
			wantErr:     true,
			errContains: "cycle",
		},
		{
			name: "self-loop",
			setup: func() *DAG {
				dag := NewDAG()
				dag.AddTask(&Task{ID: "A", DependsOn: []string{"A"}})
				return dag
			},
			wantErr:     true,
			errContains: "cycle",
		},
		{
			name: "missing dependency",
			setup: func() *DAG {
				dag := NewDAG()
				dag.AddTask(&Task{ID: "styles", DependsOn: []string{"nonexistent"}})
				return dag
			},
			wantErr:     true,
			errContains: "nonexistent",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dag := tt.setup()
			order, err := dag.Validate()

			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got order %v", order)
				}
				if !strings.Contains(err.Error(), tt.errContains) {
					t.Errorf("error %q does not contain %q", err, tt.errContains)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(order) != dag.Len() {
				t.Errorf("order has %d tasks, want %d", len(order), dag.Len())
			}
		})
	}
}

func TestDAGValidate_OrderRespectsEdges(t *testing.T) {
	dag, err := NewSequence(FailSoft,
		Step{Action: "clean"}, Step{Action: "images"}, Step{Action: "styles"}, Step{Action: "scripts"})
	if err != nil {
		t.Fatalf("NewSequence: %v", err)
	}

	order, err := dag.Validate()
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	want := []string{"clean", "images", "styles", "scripts"}
	if strings.Join(order, ",") != strings.Join(want, ",") {
		t.Errorf("order = %v, want %v", order, want)
	}
}

func TestDAGAddTask_Duplicate(t *testing.T) {
	dag := NewDAG()
	if err := dag.AddTask(&Task{ID: "styles"}); err != nil {
		t.Fatalf("first AddTask: %v", err)
	}
	if err := dag.AddTask(&Task{ID: "styles"}); err == nil {
		t.Fatal("expected error adding duplicate task ID")
	}
	if err := dag.AddTask(&Task{}); err == nil {
		t.Fatal("expected error adding task with empty ID")
	}
}

func TestDAGEligible_FailureModes(t *testing.T) {
	tests := []struct {
		name         string
		mode         FailureMode
		wantEligible bool
	}{
		{"hard failure blocks dependents", FailHard, false},
		{"soft failure lets dependents run", FailSoft, true},
		{"skip failure counts as success", FailSkip, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dag := NewDAG()
			dag.AddTask(&Task{ID: "styles", FailureMode: tt.mode})
			dag.AddTask(&Task{ID: "scripts", DependsOn: []string{"styles"}})

			_ = dag.MarkFailed("styles", errors.New("Undefined variable"))

			eligible := dag.Eligible()
			got := len(eligible) == 1 && eligible[0].ID == "scripts"
			if got != tt.wantEligible {
				t.Errorf("scripts eligible = %v, want %v", got, tt.wantEligible)
			}
		})
	}
}

func TestDAGGet_ReturnsCopy(t *testing.T) {
	dag := NewDAG()
	dag.AddTask(&Task{ID: "images", WritesPaths: []string{"dist/images"}})

	task, ok := dag.Get("images")
	if !ok {
		t.Fatal("task not found")
	}
	task.WritesPaths[0] = "mutated"
	task.Status = TaskCompleted

	again, _ := dag.Get("images")
	if again.WritesPaths[0] != "dist/images" || again.Status != TaskPending {
		t.Error("Get must return an independent copy")
	}
}

func TestTaskStatusString(t *testing.T) {
	if TaskFailed.String() != "failed" || TaskSkipped.String() != "skipped" {
		t.Errorf("unexpected status strings: %s %s", TaskFailed, TaskSkipped)
	}
	if TaskStatus(99).String() != "unknown" {
		t.Error("out-of-range status should be unknown")
	}
}
