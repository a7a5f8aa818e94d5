package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/amelia-orch/amelia/internal/state"
)

const defaultMaxSteps = 500

// Checkpointer persists each step's merged state so a workflow can resume
// without re-executing prior nodes (spec.md §4.7 "Resume contract").
type Checkpointer interface {
	SaveStep(ctx context.Context, workflowID string, step int, nodeID string, s State) error
}

// EventSink receives one notification per completed step, for the event
// bus (spec.md §4.6) to turn into a WorkflowEvent. Nil is a valid no-op
// sink.
type EventSink func(nodeID string, step int, s State)

// Engine advances one workflow at a time, node by node, applying
// state.Reduce to merge each node's delta and routing via the table in
// spec.md §4.5. It is the de-genericized equivalent of the teacher's
// Engine[S any] (see DESIGN.md): exactly one state type, so no type
// parameter, but the same run-to-suspension-or-completion loop.
type Engine struct {
	nodes        map[string]Node
	checkpointer Checkpointer
	sink         EventSink
	retry        state.RetryConfig
	nodeTimeout  time.Duration
	maxSteps     int
}

// NewEngine builds the standard six-node Amelia graph from cfg. nodeTimeout
// bounds each node's execution (spec.md §5 "each LLM call has a
// profile-supplied timeout"); zero means unlimited.
func NewEngine(cfg Config, checkpointer Checkpointer, sink EventSink, nodeTimeout time.Duration) *Engine {
	return &Engine{
		nodes: map[string]Node{
			NodeArchitect:     ArchitectNode(cfg),
			NodePlanValidator: PlanValidatorNode(cfg),
			NodeHumanApproval: HumanApprovalNode(cfg),
			NodeDeveloper:     DeveloperNode(cfg),
			NodeReviewer:      ReviewerNode(cfg),
			NodeEvaluator:     EvaluatorNode(cfg),
		},
		checkpointer: checkpointer,
		sink:         sink,
		retry:        cfg.Profile.Retry,
		nodeTimeout:  nodeTimeout,
		maxSteps:     defaultMaxSteps,
	}
}

// Run advances the workflow starting at startNode until a node routes to
// Stop(), a node errors, or maxSteps is exceeded. The returned state is the
// fully reduced state at the point execution stopped.
func (e *Engine) Run(ctx context.Context, workflowID, startNode string, s State) (State, error) {
	current := s
	nodeID := startNode

	for step := 1; step <= e.maxSteps; step++ {
		node, ok := e.nodes[nodeID]
		if !ok {
			return current, fmt.Errorf("workflow engine: unknown node %q", nodeID)
		}

		result := e.runNode(ctx, node, current)
		if result.Err != nil {
			failed := current
			failed.WorkflowStatus = state.WorkflowFailed
			return failed, &NodeError{NodeID: nodeID, Message: "node failed", Cause: result.Err}
		}

		merged := state.Reduce(current, result.Delta)

		if e.checkpointer != nil {
			if err := e.checkpointer.SaveStep(ctx, workflowID, step, nodeID, merged); err != nil {
				return merged, fmt.Errorf("workflow engine: checkpoint step %d: %w", step, err)
			}
		}
		if e.sink != nil {
			e.sink(nodeID, step, merged)
		}

		current = merged
		if result.Route.Terminal {
			return current, nil
		}
		if result.Route.To == "" {
			return current, fmt.Errorf("workflow engine: node %q returned neither a route nor Stop()", nodeID)
		}
		nodeID = result.Route.To
	}

	failed := current
	failed.WorkflowStatus = state.WorkflowFailed
	return failed, fmt.Errorf("workflow engine: exceeded max steps (%d)", e.maxSteps)
}

// runNode applies the node timeout, then retries transient failures per
// the profile's RetryConfig.
func (e *Engine) runNode(ctx context.Context, node Node, s State) NodeResult {
	return runNodeWithRetry(ctx, NodeFunc(func(ctx context.Context, s State) NodeResult {
		return runNodeWithTimeout(ctx, node, s, e.nodeTimeout)
	}), s, e.retry)
}
