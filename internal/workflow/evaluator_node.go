package workflow

import (
	"context"
	"time"

	"github.com/amelia-orch/amelia/internal/state"
)

const evaluatorSystemPrompt = "You are the evaluator agent. Give a final pass/fail assessment of the completed workflow using the reviewer's driver configuration."

// EvaluatorNode is an optional end-of-workflow pass reusing the reviewer's
// driver config (spec.md §4.5 item 6). It always terminates the graph.
func EvaluatorNode(cfg Config) Node {
	return NodeFunc(func(ctx context.Context, s State) NodeResult {
		d, err := cfg.driverFor(state.RoleReviewer)
		if err != nil {
			// Evaluator is optional; skip gracefully rather than failing the
			// whole workflow over a missing reviewer driver.
			return NodeResult{Delta: State{WorkflowStatus: state.WorkflowCompleted}, Route: Stop()}
		}

		prompt := buildReviewPrompt(s)
		session := cfg.sessionFor(s, state.RoleReviewer)
		out, genErr := d.Generate(ctx, prompt, evaluatorSystemPrompt, nil, session)
		if genErr != nil {
			return NodeResult{Err: genErr}
		}

		delta := State{
			WorkflowStatus: state.WorkflowCompleted,
			History: []state.HistoryEntry{{
				Timestamp: time.Now(), Actor: "evaluator", Event: "final_assessment",
				Detail: map[string]interface{}{"content": out.Content},
			}},
		}
		return NodeResult{Delta: delta, Route: Stop()}
	})
}
