// Package workflow implements the Graph Engine component (spec.md §4.5):
// the architect → plan_validator → human_approval → developer → reviewer
// → evaluator node chain, its routing table, and the engine loop that
// advances one workflow a step at a time. Grounded on the teacher's
// graph/node.go Node/NodeResult/Next shapes, de-genericized to the single
// concrete state.ExecutionState type (see DESIGN.md).
package workflow

import "context"

// Node is one processing unit in the workflow graph. Unlike the teacher's
// Node[S any], Amelia has exactly one state type, so the type parameter is
// gone; everything else about the shape is unchanged.
type Node interface {
	Run(ctx context.Context, s State) NodeResult
}

// NodeFunc adapts a plain function to Node.
type NodeFunc func(ctx context.Context, s State) NodeResult

func (f NodeFunc) Run(ctx context.Context, s State) NodeResult { return f(ctx, s) }

// NodeResult is a node's output: a partial state to merge via state.Reduce,
// a routing decision, and an optional terminal error.
type NodeResult struct {
	Delta State
	Route Next
	Err   error
}

// Next specifies where the engine goes after a node completes.
type Next struct {
	To       string
	Terminal bool
}

// Goto routes to the named node.
func Goto(id string) Next { return Next{To: id} }

// Stop terminates the workflow.
func Stop() Next { return Next{Terminal: true} }

// NodeError reports a node-level failure, distinct from the err a routing
// guard might see in state (e.g. a SchemaValidationError caught locally).
type NodeError struct {
	NodeID  string
	Message string
	Cause   error
}

func (e *NodeError) Error() string {
	if e.NodeID != "" {
		return "node " + e.NodeID + ": " + e.Message
	}
	return e.Message
}

func (e *NodeError) Unwrap() error { return e.Cause }
