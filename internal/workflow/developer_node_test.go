package workflow

import (
	"context"
	"testing"

	"github.com/amelia-orch/amelia/internal/driver"
	"github.com/amelia-orch/amelia/internal/state"
)

func devState(tasks ...state.Task) State {
	s := state.NewExecutionState("wf-1", "default", state.Issue{ID: "I-1", Title: "fix bug"})
	dag, err := state.NewTaskDAG("fix bug", tasks)
	if err != nil {
		panic(err)
	}
	s.Plan = &dag
	return s
}

func TestDeveloperNode_RoutesToReviewerWhenTasksRemain(t *testing.T) {
	mock := &driver.MockDriver{
		AgenticResponses: [][]driver.AgenticMessage{{{Kind: driver.AgenticResult, Result: "done"}}},
	}
	cfg := Config{Profile: testProfile(), Drivers: map[state.Role]driver.Driver{state.RoleDeveloper: mock}}
	node := DeveloperNode(cfg)

	s := devState(
		state.Task{ID: "1"},
		state.Task{ID: "2", Dependencies: map[state.TaskID]bool{"1": true}},
	)
	result := node.Run(context.Background(), s)

	if result.Err != nil {
		t.Fatalf("unexpected error: %v", result.Err)
	}
	if len(result.Delta.TaskResults) != 1 {
		t.Fatalf("expected exactly one ready task executed, got %d", len(result.Delta.TaskResults))
	}
	if result.Route.To != NodeReviewer {
		t.Errorf("expected route to %s, got %q", NodeReviewer, result.Route.To)
	}
}

func TestDeveloperNode_RoutesToReviewerEvenWhenAllTasksDone(t *testing.T) {
	mock := &driver.MockDriver{
		AgenticResponses: [][]driver.AgenticMessage{{{Kind: driver.AgenticResult, Result: "done"}}},
	}
	cfg := Config{Profile: testProfile(), Drivers: map[state.Role]driver.Driver{state.RoleDeveloper: mock}}
	node := DeveloperNode(cfg)

	s := devState(state.Task{ID: "1"})
	result := node.Run(context.Background(), s)

	if result.Err != nil {
		t.Fatalf("unexpected error: %v", result.Err)
	}
	if result.Route.To != NodeReviewer {
		t.Errorf("expected route to %s even when this batch finishes the plan, got %q", NodeReviewer, result.Route.To)
	}
}

func TestDeveloperNode_FailedTaskInAgenticModeStopsWorkflow(t *testing.T) {
	mock := &driver.MockDriver{Err: errTransient{}}
	p := testProfile()
	p.ExecutionMode = "agentic"
	cfg := Config{Profile: p, Drivers: map[state.Role]driver.Driver{state.RoleDeveloper: mock}}
	node := DeveloperNode(cfg)

	s := devState(state.Task{ID: "1"})
	result := node.Run(context.Background(), s)

	if result.Delta.WorkflowStatus != state.WorkflowFailed {
		t.Errorf("expected workflow_failed, got %q", result.Delta.WorkflowStatus)
	}
	if !result.Route.Terminal {
		t.Error("expected agentic mode to stop the workflow on first failure")
	}
}

func TestDeveloperNode_NoPlanErrors(t *testing.T) {
	cfg := Config{Profile: testProfile(), Drivers: map[state.Role]driver.Driver{}}
	node := DeveloperNode(cfg)
	s := state.NewExecutionState("wf-1", "default", state.Issue{ID: "I-1"})

	result := node.Run(context.Background(), s)
	if result.Err == nil {
		t.Fatal("expected error when state has no plan")
	}
}

type errTransient struct{}

func (errTransient) Error() string { return "transient failure" }
