package workflow

import (
	"context"
	"testing"
	"time"
)

func TestRunNodeWithTimeout_ZeroMeansUnlimited(t *testing.T) {
	node := NodeFunc(func(_ context.Context, s State) NodeResult {
		return NodeResult{Delta: s, Route: Stop()}
	})
	result := runNodeWithTimeout(context.Background(), node, State{}, 0)
	if result.Err != nil {
		t.Fatalf("unexpected error: %v", result.Err)
	}
}

func TestRunNodeWithTimeout_DeadlineExceededSurfacesAsNodeError(t *testing.T) {
	node := NodeFunc(func(ctx context.Context, s State) NodeResult {
		<-ctx.Done()
		return NodeResult{Delta: s, Route: Stop()}
	})
	result := runNodeWithTimeout(context.Background(), node, State{}, 10*time.Millisecond)
	if result.Err == nil {
		t.Fatal("expected a timeout error")
	}
}

func TestRunNodeWithTimeout_FastNodeUnaffected(t *testing.T) {
	node := NodeFunc(func(_ context.Context, s State) NodeResult {
		return NodeResult{Delta: s, Route: Goto(NodeEvaluator)}
	})
	result := runNodeWithTimeout(context.Background(), node, State{}, time.Second)
	if result.Err != nil {
		t.Fatalf("unexpected error: %v", result.Err)
	}
	if result.Route.To != NodeEvaluator {
		t.Errorf("expected route preserved, got %q", result.Route.To)
	}
}
