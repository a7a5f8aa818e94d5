package scheduler

import (
	"context"
	"testing"

	"github.com/amelia-orch/amelia/internal/state"
)

func mustDAG(t *testing.T, tasks []state.Task) state.TaskDAG {
	t.Helper()
	dag, err := state.NewTaskDAG("issue-1", tasks)
	if err != nil {
		t.Fatalf("NewTaskDAG: %v", err)
	}
	return dag
}

func TestReadyTasks_OnlySatisfiedDependencies(t *testing.T) {
	dag := mustDAG(t, []state.Task{
		{ID: "a"},
		{ID: "b", Dependencies: map[state.TaskID]bool{"a": true}},
		{ID: "c", Dependencies: map[state.TaskID]bool{"b": true}},
	})
	s := state.NewExecutionState("wf", "p", state.Issue{})

	ready := ReadyTasks(dag, s)
	if len(ready) != 1 || ready[0].ID != "a" {
		t.Fatalf("expected only task a ready, got %v", ready)
	}

	s.TaskResults["a"] = state.TaskResult{TaskID: "a", Status: state.StatusCompleted}
	ready = ReadyTasks(dag, s)
	if len(ready) != 1 || ready[0].ID != "b" {
		t.Fatalf("expected only task b ready, got %v", ready)
	}
}

func TestProgress_CountsCompletedOnly(t *testing.T) {
	dag := mustDAG(t, []state.Task{{ID: "a"}, {ID: "b"}, {ID: "c"}})
	s := state.NewExecutionState("wf", "p", state.Issue{})
	s.TaskResults["a"] = state.TaskResult{TaskID: "a", Status: state.StatusCompleted}
	s.TaskResults["b"] = state.TaskResult{TaskID: "b", Status: state.StatusFailed}

	completed, total := Progress(dag, s)
	if completed != 1 || total != 3 {
		t.Fatalf("Progress() = %d/%d, want 1/3", completed, total)
	}
}

func TestDone_TrueOnlyWhenAllTerminal(t *testing.T) {
	dag := mustDAG(t, []state.Task{{ID: "a"}, {ID: "b"}})
	s := state.NewExecutionState("wf", "p", state.Issue{})
	if Done(dag, s) {
		t.Fatal("expected Done() false with no results")
	}
	s.TaskResults["a"] = state.TaskResult{TaskID: "a", Status: state.StatusCompleted}
	s.TaskResults["b"] = state.TaskResult{TaskID: "b", Status: state.StatusSkipped}
	if !Done(dag, s) {
		t.Fatal("expected Done() true once all tasks terminal")
	}
}

type fakeExecutor struct {
	statusFor map[state.TaskID]state.Status
}

func (f fakeExecutor) ExecuteTask(_ context.Context, t state.Task, _ state.ExecutionState) state.TaskResult {
	status := f.statusFor[t.ID]
	if status == "" {
		status = state.StatusCompleted
	}
	return state.TaskResult{TaskID: t.ID, Status: status}
}

func TestStep_MergesResultsForEveryReadyTask(t *testing.T) {
	dag := mustDAG(t, []state.Task{{ID: "a"}, {ID: "b"}, {ID: "c"}})
	s := state.NewExecutionState("wf", "p", state.Issue{})

	partial := Step(context.Background(), dag, s, fakeExecutor{}, 2, ModeLenient)
	if len(partial.TaskResults) != 3 {
		t.Fatalf("expected 3 results, got %d", len(partial.TaskResults))
	}
	for _, id := range []state.TaskID{"a", "b", "c"} {
		if partial.TaskResults[id].Status != state.StatusCompleted {
			t.Errorf("task %s status = %s, want completed", id, partial.TaskResults[id].Status)
		}
	}
	if len(partial.History) != 3 {
		t.Fatalf("expected 3 history entries, got %d", len(partial.History))
	}
}

func TestStep_AgenticModeSetsWorkflowFailedOnAnyFailure(t *testing.T) {
	dag := mustDAG(t, []state.Task{{ID: "a"}, {ID: "b"}})
	s := state.NewExecutionState("wf", "p", state.Issue{})
	exec := fakeExecutor{statusFor: map[state.TaskID]state.Status{"b": state.StatusFailed}}

	partial := Step(context.Background(), dag, s, exec, 2, ModeAgentic)
	if partial.WorkflowStatus != state.WorkflowFailed {
		t.Fatalf("WorkflowStatus = %q, want failed", partial.WorkflowStatus)
	}
}

func TestStep_LenientModeLeavesWorkflowStatusUnset(t *testing.T) {
	dag := mustDAG(t, []state.Task{{ID: "a"}, {ID: "b"}})
	s := state.NewExecutionState("wf", "p", state.Issue{})
	exec := fakeExecutor{statusFor: map[state.TaskID]state.Status{"b": state.StatusFailed}}

	partial := Step(context.Background(), dag, s, exec, 2, ModeLenient)
	if partial.WorkflowStatus != "" {
		t.Fatalf("WorkflowStatus = %q, want empty (single-writer untouched)", partial.WorkflowStatus)
	}
}

func TestStep_NoReadyTasksReturnsEmptyPartial(t *testing.T) {
	dag := mustDAG(t, []state.Task{{ID: "a", Dependencies: map[state.TaskID]bool{"missing-not-real": false}}})
	s := state.NewExecutionState("wf", "p", state.Issue{})
	s.TaskResults["a"] = state.TaskResult{TaskID: "a", Status: state.StatusCompleted}

	partial := Step(context.Background(), dag, s, fakeExecutor{}, 2, ModeLenient)
	if len(partial.TaskResults) != 0 {
		t.Fatalf("expected empty partial, got %v", partial.TaskResults)
	}
}
