package workflow

import (
	"context"
	"errors"
	"regexp"

	"github.com/amelia-orch/amelia/internal/driver"
	"github.com/amelia-orch/amelia/internal/errs"
	"github.com/amelia-orch/amelia/internal/state"
)

var metadataSchema = driver.Schema{
	"title": "plan_metadata",
	"type":  "object",
	"properties": map[string]interface{}{
		"estimated_complexity": map[string]interface{}{"type": "string"},
		"risk_notes":           map[string]interface{}{"type": "string"},
	},
}

var complexityRE = regexp.MustCompile(`(?i)complexity[:\s]+(\w+)`)

// PlanValidatorNode runs the deterministic structural checks, then attempts
// a best-effort LLM metadata extraction that falls back to a regex scan on
// SchemaValidationError rather than restarting the workflow (spec.md §4.5
// item 2).
func PlanValidatorNode(cfg Config) Node {
	return NodeFunc(func(ctx context.Context, s State) NodeResult {
		if s.Plan == nil {
			return NodeResult{Err: &NodeError{NodeID: NodePlanValidator, Message: "no plan to validate"}}
		}

		result := validatePlanStructure(s.Goal, s.PlanMarkdown)

		delta := State{PlanValidationResult: &result}
		if !result.Valid {
			delta.PlanRevisionCount = s.PlanRevisionCount + 1
		}

		extractPlanMetadata(ctx, cfg, s) // best-effort; errors never fail the node

		max := maxPlanRevisions(cfg.Profile)
		switch {
		case result.Valid:
			return NodeResult{Delta: delta, Route: Goto(NodeHumanApproval)}
		case s.PlanRevisionCount+1 < max:
			return NodeResult{Delta: delta, Route: Goto(NodeArchitect)}
		default:
			return NodeResult{Delta: delta, Route: Goto(NodeHumanApproval)}
		}
	})
}

func maxPlanRevisions(p state.Profile) int {
	if cfg, ok := p.Agents[state.RoleArchitect]; ok && cfg.Options.MaxIterations > 0 {
		return cfg.Options.MaxIterations
	}
	return 3
}

// extractPlanMetadata is a side observation only (not yet threaded into
// ExecutionState); it demonstrates the SchemaValidationError-triggers-
// fallback contract spec.md §4.5 item 2 requires. A regex fallback parses
// "complexity: <word>" out of the raw plan text when the LLM's structured
// output fails schema validation.
func extractPlanMetadata(ctx context.Context, cfg Config, s State) (map[string]interface{}, error) {
	d, err := cfg.driverFor(state.RoleArchitect)
	if err != nil {
		return nil, err
	}
	session := cfg.sessionFor(s, state.RoleArchitect)
	out, err := d.Generate(ctx, "Summarize plan complexity and risks as JSON.", "", metadataSchema, session)
	if err == nil {
		return out.Structured, nil
	}

	var schemaErr *errs.SchemaValidationError
	if !errors.As(err, &schemaErr) {
		return nil, err
	}

	match := complexityRE.FindStringSubmatch(s.PlanMarkdown)
	fallback := map[string]interface{}{}
	if len(match) == 2 {
		fallback["estimated_complexity"] = match[1]
	}
	return fallback, nil
}
