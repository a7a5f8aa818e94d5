package workflow

import (
	"context"

	"github.com/amelia-orch/amelia/internal/state"
	"github.com/amelia-orch/amelia/internal/tracker"
)

// HumanApprovalNode suspends the graph pending an external resume decision
// (spec.md §4.5 item 3), unless the profile is configured to auto-approve.
// Resume itself happens out-of-band: the httpapi layer calls Reduce with a
// partial carrying HumanApproved, then re-enters the engine at this node's
// routing step.
func HumanApprovalNode(cfg Config) Node {
	return NodeFunc(func(ctx context.Context, s State) NodeResult {
		if cfg.Profile.AutoApproveReviews {
			approved := true
			return NodeResult{
				Delta: State{HumanApproved: &approved, WorkflowStatus: state.WorkflowRunning},
				Route: Goto(NodeDeveloper),
			}
		}

		if s.HumanApproved == nil {
			_ = cfg.trackerOrNoop().PostComment(ctx, tracker.Comment{
				IssueID: s.Issue.ID,
				Body:    "Plan awaiting human approval before development begins.",
			})
			return NodeResult{
				Delta: State{WorkflowStatus: state.WorkflowAwaitingApproval},
				Route: Stop(),
			}
		}

		if *s.HumanApproved {
			return NodeResult{Delta: State{WorkflowStatus: state.WorkflowRunning}, Route: Goto(NodeDeveloper)}
		}
		return NodeResult{Delta: State{WorkflowStatus: state.WorkflowFailed}, Route: Stop()}
	})
}
