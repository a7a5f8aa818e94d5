package workflow

import (
	"context"
	"testing"

	"github.com/amelia-orch/amelia/internal/driver"
	"github.com/amelia-orch/amelia/internal/state"
)

func testProfile() state.Profile {
	return state.Profile{
		Name: "default",
		Agents: map[state.Role]state.AgentConfig{
			state.RoleArchitect: {Driver: state.DriverAPI, Model: "claude-x"},
			state.RoleDeveloper: {Driver: state.DriverAPI, Model: "claude-x"},
			state.RoleReviewer:  {Driver: state.DriverAPI, Model: "claude-x"},
		},
		PlanPathPattern: "{workflow_id}.md",
		PlanOutputDir:   "/plans",
		WorkingDir:      "/work",
	}
}

func TestArchitectNode_ProducesValidTaskDAG(t *testing.T) {
	mock := &driver.MockDriver{
		GenerateResponses: []driver.GenerateOutput{{
			Structured: map[string]interface{}{
				"goal":          "ship the thing",
				"plan_markdown": "### Task 1:\ndo it\n",
				"tasks": []interface{}{
					map[string]interface{}{"id": "1", "description": "do it"},
				},
			},
		}},
	}
	cfg := Config{Profile: testProfile(), Drivers: map[state.Role]driver.Driver{state.RoleArchitect: mock}}
	node := ArchitectNode(cfg)

	s := state.NewExecutionState("wf-1", "default", state.Issue{ID: "I-1", Title: "fix bug"})
	result := node.Run(context.Background(), s)

	if result.Err != nil {
		t.Fatalf("unexpected error: %v", result.Err)
	}
	if result.Delta.Plan == nil || len(result.Delta.Plan.Tasks) != 1 {
		t.Fatalf("expected a plan with one task, got %+v", result.Delta.Plan)
	}
	if result.Delta.Goal != "ship the thing" {
		t.Errorf("expected goal to be set, got %q", result.Delta.Goal)
	}
	if result.Route.To != NodePlanValidator {
		t.Errorf("expected route to %s, got %q", NodePlanValidator, result.Route.To)
	}
}

func TestArchitectNode_RejectsCyclicPlan(t *testing.T) {
	mock := &driver.MockDriver{
		GenerateResponses: []driver.GenerateOutput{{
			Structured: map[string]interface{}{
				"goal":          "ship it",
				"plan_markdown": "### Task 1:\n",
				"tasks": []interface{}{
					map[string]interface{}{"id": "1", "dependencies": []interface{}{"2"}},
					map[string]interface{}{"id": "2", "dependencies": []interface{}{"1"}},
				},
			},
		}},
	}
	cfg := Config{Profile: testProfile(), Drivers: map[state.Role]driver.Driver{state.RoleArchitect: mock}}
	node := ArchitectNode(cfg)

	s := state.NewExecutionState("wf-1", "default", state.Issue{ID: "I-1", Title: "fix bug"})
	result := node.Run(context.Background(), s)

	if result.Err == nil {
		t.Fatal("expected cyclic plan to be rejected")
	}
}

func TestArchitectNode_MissingDriverErrors(t *testing.T) {
	cfg := Config{Profile: testProfile(), Drivers: map[state.Role]driver.Driver{}}
	node := ArchitectNode(cfg)

	s := state.NewExecutionState("wf-1", "default", state.Issue{ID: "I-1"})
	result := node.Run(context.Background(), s)
	if result.Err == nil {
		t.Fatal("expected error when no architect driver is configured")
	}
}
