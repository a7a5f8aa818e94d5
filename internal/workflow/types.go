package workflow

import "github.com/amelia-orch/amelia/internal/state"

// State is an alias for the canonical reducer record, kept local to this
// package so node signatures read the way the teacher's Node[S] read
// without carrying the generic type parameter (spec.md §3.2, §4.5).
type State = state.ExecutionState

const (
	NodeArchitect      = "architect"
	NodePlanValidator  = "plan_validator"
	NodeHumanApproval  = "human_approval"
	NodeDeveloper      = "developer"
	NodeReviewer       = "reviewer"
	NodeEvaluator      = "evaluator"
)
