package orchestrator

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/amelia-orch/amelia/internal/driver"
	"github.com/amelia-orch/amelia/internal/events"
	"github.com/amelia-orch/amelia/internal/httpapi"
	"github.com/amelia-orch/amelia/internal/persistence"
	"github.com/amelia-orch/amelia/internal/state"
	"github.com/amelia-orch/amelia/internal/tracker"
)

const planMarkdown = `# Plan

Goal: ship the feature end to end with tests and docs so it is reviewable.

### Task 1: implement the feature

Write the code, add tests, and update the documentation describing the
new behavior so reviewers have enough context to approve quickly.
`

func testProfile(autoApprove bool) state.Profile {
	return state.Profile{
		Name: "default",
		Agents: map[state.Role]state.AgentConfig{
			state.RoleArchitect: {Driver: state.DriverAPI, Model: "mock-architect"},
			state.RoleDeveloper: {Driver: state.DriverAPI, Model: "mock-developer"},
			state.RoleReviewer:  {Driver: state.DriverAPI, Model: "mock-reviewer"},
		},
		WorkingDir:         "/tmp/amelia-test",
		AutoApproveReviews: autoApprove,
		Tracker:            state.TrackerNoop,
	}
}

func newTestService(p state.Profile) (*Service, *persistence.MemStore) {
	architect := &driver.MockDriver{GenerateResponses: []driver.GenerateOutput{
		{Structured: map[string]interface{}{
			"goal":          "ship the feature",
			"plan_markdown": planMarkdown,
			"tasks": []interface{}{
				map[string]interface{}{"id": "1", "description": "implement the feature"},
			},
		}},
		{Structured: map[string]interface{}{}},
	}}
	developer := &driver.MockDriver{AgenticResponses: [][]driver.AgenticMessage{
		{{Kind: driver.AgenticResult, Result: "implemented"}},
	}}
	reviewer := &driver.MockDriver{GenerateResponses: []driver.GenerateOutput{
		{Structured: map[string]interface{}{"approved": true}},
	}}

	factory := byModelFactory{
		"mock-architect": architect,
		"mock-developer": developer,
		"mock-reviewer":  reviewer,
	}

	store := persistence.NewMemStore()
	bus := events.NewBus(store)
	svc := New(map[string]state.Profile{p.Name: p}, store, bus, factory, tracker.Config{}, time.Second, nil, nil)
	return svc, store
}

// byModelFactory resolves a fixed Driver by AgentConfig.Model, the same way
// driver.Factory's real ProviderModels.forModel disambiguates by model
// string rather than by role.
type byModelFactory map[string]driver.Driver

func (f byModelFactory) Build(cfg state.AgentConfig) (driver.Driver, error) {
	d, ok := f[cfg.Model]
	if !ok {
		return nil, errors.New("byModelFactory: no driver for model " + cfg.Model)
	}
	return d, nil
}

func waitForStatus(t *testing.T, svc *Service, workflowID string, want state.WorkflowStatus, timeout time.Duration) state.ExecutionState {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		s, err := svc.Snapshot(context.Background(), workflowID)
		if err == nil && s.WorkflowStatus == want {
			return s
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("workflow %s did not reach status %s in time", workflowID, want)
	return state.ExecutionState{}
}

func TestService_StartRunsToCompletionWithAutoApprove(t *testing.T) {
	svc, _ := newTestService(testProfile(true))

	workflowID, err := svc.Start(context.Background(), state.Issue{ID: "I-1", Title: "do it"}, "default")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	final := waitForStatus(t, svc, workflowID, state.WorkflowCompleted, time.Second)
	if final.TaskResults["1"].Status != state.StatusCompleted {
		t.Errorf("expected task 1 completed, got %+v", final.TaskResults["1"])
	}
}

func TestService_StartUnknownProfileErrors(t *testing.T) {
	svc, _ := newTestService(testProfile(true))

	_, err := svc.Start(context.Background(), state.Issue{ID: "I-1"}, "nonexistent")
	if !errors.Is(err, ErrProfileNotFound) {
		t.Errorf("expected ErrProfileNotFound, got %v", err)
	}
}

func TestService_SuspendsForApprovalThenApproveCompletes(t *testing.T) {
	svc, _ := newTestService(testProfile(false))

	workflowID, err := svc.Start(context.Background(), state.Issue{ID: "I-1", Title: "do it"}, "default")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	waitForStatus(t, svc, workflowID, state.WorkflowAwaitingApproval, time.Second)

	if err := svc.Approve(context.Background(), workflowID); err != nil {
		t.Fatalf("unexpected error approving: %v", err)
	}

	waitForStatus(t, svc, workflowID, state.WorkflowCompleted, time.Second)
}

func TestService_RejectFailsTheWorkflow(t *testing.T) {
	svc, _ := newTestService(testProfile(false))

	workflowID, err := svc.Start(context.Background(), state.Issue{ID: "I-1", Title: "do it"}, "default")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	waitForStatus(t, svc, workflowID, state.WorkflowAwaitingApproval, time.Second)

	if err := svc.Reject(context.Background(), workflowID, "not ready"); err != nil {
		t.Fatalf("unexpected error rejecting: %v", err)
	}

	final := waitForStatus(t, svc, workflowID, state.WorkflowFailed, time.Second)
	found := false
	for _, h := range final.History {
		if h.Event == "rejected" {
			found = true
		}
	}
	if !found {
		t.Error("expected a rejected history entry")
	}
}

func TestService_ApproveWhenNotAwaitingApprovalIsConflict(t *testing.T) {
	svc, _ := newTestService(testProfile(true))

	workflowID, err := svc.Start(context.Background(), state.Issue{ID: "I-1", Title: "do it"}, "default")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	waitForStatus(t, svc, workflowID, state.WorkflowCompleted, time.Second)

	err = svc.Approve(context.Background(), workflowID)
	if !errors.Is(err, httpapi.ErrConflict) {
		t.Errorf("expected httpapi.ErrConflict, got %v", err)
	}
}

func TestService_SnapshotUnknownWorkflowIsNotFound(t *testing.T) {
	svc, _ := newTestService(testProfile(true))

	_, err := svc.Snapshot(context.Background(), "does-not-exist")
	if !errors.Is(err, persistence.ErrNotFound) {
		t.Errorf("expected persistence.ErrNotFound, got %v", err)
	}
}

func TestService_SnapshotFallsBackToCheckpointStoreWhenNotTracked(t *testing.T) {
	svc, store := newTestService(testProfile(true))

	ctx := context.Background()
	want := state.NewExecutionState("wf-external", "default", state.Issue{ID: "I-2"})
	want.Goal = "external checkpoint"
	if err := store.SaveCheckpoint(ctx, "wf-external", 1, want); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := svc.Snapshot(ctx, "wf-external")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Goal != "external checkpoint" {
		t.Errorf("expected snapshot from checkpoint store, got %q", got.Goal)
	}
	if !strings.Contains(got.Issue.ID, "I-2") {
		t.Errorf("expected issue id I-2, got %q", got.Issue.ID)
	}
}
