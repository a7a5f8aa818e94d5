package workflow

import (
	"context"
	"testing"

	"github.com/amelia-orch/amelia/internal/driver"
	"github.com/amelia-orch/amelia/internal/state"
)

func reviewState(reviewIteration int) State {
	s := state.NewExecutionState("wf-1", "default", state.Issue{ID: "I-1"})
	s.Goal = "ship it"
	dag, err := state.NewTaskDAG("I-1", []state.Task{{ID: "1", Description: "implement the fix"}})
	if err != nil {
		panic(err)
	}
	s.Plan = &dag
	s.TaskResults = map[state.TaskID]state.TaskResult{
		"1": {TaskID: "1", Status: state.StatusCompleted, Output: "implemented"},
	}
	s.ReviewIteration = reviewIteration
	return s
}

func TestReviewerNode_ApprovedRoutesToEvaluator(t *testing.T) {
	mock := &driver.MockDriver{
		GenerateResponses: []driver.GenerateOutput{{Structured: map[string]interface{}{"approved": true}}},
	}
	cfg := Config{Profile: testProfile(), Drivers: map[state.Role]driver.Driver{state.RoleReviewer: mock}}
	node := ReviewerNode(cfg)

	result := node.Run(context.Background(), reviewState(0))
	if result.Err != nil {
		t.Fatalf("unexpected error: %v", result.Err)
	}
	if !result.Delta.LastReview.Approved {
		t.Fatal("expected review to be approved")
	}
	if result.Route.To != NodeEvaluator {
		t.Errorf("expected route to %s, got %q", NodeEvaluator, result.Route.To)
	}
}

func TestReviewerNode_ApprovedWithRemainingTasksRoutesToDeveloper(t *testing.T) {
	mock := &driver.MockDriver{
		GenerateResponses: []driver.GenerateOutput{{Structured: map[string]interface{}{"approved": true}}},
	}
	cfg := Config{Profile: testProfile(), Drivers: map[state.Role]driver.Driver{state.RoleReviewer: mock}}
	node := ReviewerNode(cfg)

	s := reviewState(0)
	dag, err := state.NewTaskDAG("I-1", []state.Task{
		{ID: "1", Description: "implement the fix"},
		{ID: "2", Description: "write tests"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s.Plan = &dag

	result := node.Run(context.Background(), s)
	if result.Err != nil {
		t.Fatalf("unexpected error: %v", result.Err)
	}
	if !result.Delta.LastReview.Approved {
		t.Fatal("expected review to be approved")
	}
	if result.Route.To != NodeDeveloper {
		t.Errorf("expected route back to %s while task 2 is still pending, got %q", NodeDeveloper, result.Route.To)
	}
}

func TestReviewerNode_RejectedRoutesBackToDeveloper(t *testing.T) {
	mock := &driver.MockDriver{
		GenerateResponses: []driver.GenerateOutput{{Structured: map[string]interface{}{
			"approved": false,
			"severity": "major",
			"comments": []interface{}{"missing error handling"},
		}}},
	}
	cfg := Config{Profile: testProfile(), Drivers: map[state.Role]driver.Driver{state.RoleReviewer: mock}}
	node := ReviewerNode(cfg)

	result := node.Run(context.Background(), reviewState(0))
	if result.Err != nil {
		t.Fatalf("unexpected error: %v", result.Err)
	}
	if result.Delta.LastReview.Approved {
		t.Fatal("expected review to be rejected")
	}
	if result.Delta.LastReview.Severity != state.SeverityMajor {
		t.Errorf("expected major severity, got %v", result.Delta.LastReview.Severity)
	}
	if result.Route.To != NodeDeveloper {
		t.Errorf("expected route back to %s, got %q", NodeDeveloper, result.Route.To)
	}
}

func TestReviewerNode_RejectionPostsTrackerComment(t *testing.T) {
	mock := &driver.MockDriver{
		GenerateResponses: []driver.GenerateOutput{{Structured: map[string]interface{}{
			"approved": false,
			"severity": "critical",
			"comments": []interface{}{"tests fail"},
		}}},
	}
	ft := &fakeTracker{}
	cfg := Config{Profile: testProfile(), Drivers: map[state.Role]driver.Driver{state.RoleReviewer: mock}, Tracker: ft}
	node := ReviewerNode(cfg)

	node.Run(context.Background(), reviewState(0))

	if len(ft.comments) != 1 {
		t.Fatalf("expected 1 tracker comment, got %d", len(ft.comments))
	}
	if ft.comments[0].IssueID != "I-1" {
		t.Errorf("expected comment for issue I-1, got %q", ft.comments[0].IssueID)
	}
}

func TestReviewerNode_ApprovalDoesNotPostTrackerComment(t *testing.T) {
	mock := &driver.MockDriver{
		GenerateResponses: []driver.GenerateOutput{{Structured: map[string]interface{}{"approved": true}}},
	}
	ft := &fakeTracker{}
	cfg := Config{Profile: testProfile(), Drivers: map[state.Role]driver.Driver{state.RoleReviewer: mock}, Tracker: ft}
	node := ReviewerNode(cfg)

	node.Run(context.Background(), reviewState(0))

	if len(ft.comments) != 0 {
		t.Fatalf("expected no tracker comments on approval, got %d", len(ft.comments))
	}
}

func TestReviewerNode_ExhaustedIterationsRoutesToEvaluatorAnyway(t *testing.T) {
	mock := &driver.MockDriver{
		GenerateResponses: []driver.GenerateOutput{{Structured: map[string]interface{}{"approved": false}}},
	}
	p := testProfile()
	p.MaxTaskReviewIterations = 2
	cfg := Config{Profile: p, Drivers: map[state.Role]driver.Driver{state.RoleReviewer: mock}}
	node := ReviewerNode(cfg)

	result := node.Run(context.Background(), reviewState(1))
	if result.Route.To != NodeEvaluator {
		t.Errorf("expected escalation to %s once review iterations are exhausted, got %q", NodeEvaluator, result.Route.To)
	}
}
