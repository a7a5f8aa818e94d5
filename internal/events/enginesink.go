package events

import (
	"context"
	"fmt"
	"time"

	"github.com/amelia-orch/amelia/internal/workflow"
)

// NewEngineSink adapts a Bus into the workflow.EventSink the graph engine
// calls once per completed step, turning each step into a WorkflowEvent
// (spec.md §4.6). The engine itself never imports internal/events — this
// adapter is the one place the two packages meet, keeping the dependency
// direction events → workflow rather than the reverse.
func NewEngineSink(bus *Bus, workflowID string) workflow.EventSink {
	return func(nodeID string, step int, s workflow.State) {
		_, _ = bus.Emit(context.Background(), WorkflowEvent{
			Domain:     DomainWorkflow,
			WorkflowID: workflowID,
			Timestamp:  time.Now().UnixMilli(),
			Agent:      nodeID,
			EventType:  "node_completed",
			Message:    fmt.Sprintf("%s completed (step %d)", nodeID, step),
			Data: map[string]interface{}{
				"step":            step,
				"workflow_status": string(s.WorkflowStatus),
			},
		})
	}
}
