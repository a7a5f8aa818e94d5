package events

import (
	"testing"
	"time"

	"github.com/amelia-orch/amelia/internal/state"
)

func TestNewEngineSink_EmitsOneEventPerStep(t *testing.T) {
	bus := NewBus(nil)
	sub := &recordingSubscriber{}
	bus.Subscribe(sub)

	sink := NewEngineSink(bus, "wf-1")
	s := state.NewExecutionState("wf-1", "default", state.Issue{})
	sink("architect", 1, s)
	sink("plan_validator", 2, s)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && sub.count() != 2 {
		time.Sleep(time.Millisecond)
	}
	if sub.count() != 2 {
		t.Fatalf("expected 2 events emitted, got %d", sub.count())
	}

	sub.mu.Lock()
	defer sub.mu.Unlock()
	if sub.events[0].Agent != "architect" || sub.events[1].Agent != "plan_validator" {
		t.Errorf("expected agent fields to carry the node id, got %+v", sub.events)
	}
	if sub.events[0].WorkflowID != "wf-1" {
		t.Errorf("expected the workflow id threaded through, got %q", sub.events[0].WorkflowID)
	}
}
