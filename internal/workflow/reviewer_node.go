package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/amelia-orch/amelia/internal/driver"
	"github.com/amelia-orch/amelia/internal/scheduler"
	"github.com/amelia-orch/amelia/internal/state"
	"github.com/amelia-orch/amelia/internal/tracker"
)

var reviewSchema = driver.Schema{
	"title": "review_result",
	"type":  "object",
	"properties": map[string]interface{}{
		"approved": map[string]interface{}{"type": "boolean"},
		"severity": map[string]interface{}{"type": "string"},
		"comments": map[string]interface{}{"type": "array"},
	},
	"required": []string{"approved"},
}

const reviewerSystemPrompt = "You are the reviewer agent. Evaluate the completed task outputs against the plan and return a structured verdict."

// ReviewerNode builds a review prompt from the last developer batch,
// parses the structured verdict, and bumps review_iteration (spec.md §4.5
// item 5). The node also picks the next hop itself: developer for another
// batch or review round, evaluator once every task is done or the review
// iterations are used up.
func ReviewerNode(cfg Config) Node {
	return NodeFunc(func(ctx context.Context, s State) NodeResult {
		d, err := cfg.driverFor(state.RoleReviewer)
		if err != nil {
			return NodeResult{Err: err}
		}

		prompt := buildReviewPrompt(s)
		session := cfg.sessionFor(s, state.RoleReviewer)
		out, err := d.Generate(ctx, prompt, reviewerSystemPrompt, reviewSchema, session)
		if err != nil {
			return NodeResult{Err: err}
		}

		result := parseReviewResult(out.Structured)
		delta := State{
			LastReview:      &result,
			ReviewIteration: s.ReviewIteration + 1,
			DriverSessions:  map[state.Role]state.DriverSession{state.RoleReviewer: out.Session},
		}

		if !result.Approved {
			postReviewComment(ctx, cfg, s, result)
		}

		// An approved batch only ends the loop once every task is done; with
		// ready_tasks left, approval just clears this batch and developer
		// runs the next one (spec.md §4.5 item 5, §8 scenario 1). s already
		// has this batch's TaskResults merged in by the engine's reducer.
		if result.Approved {
			if scheduler.Done(*s.Plan, s) {
				return NodeResult{Delta: delta, Route: Goto(NodeEvaluator)}
			}
			return NodeResult{Delta: delta, Route: Goto(NodeDeveloper)}
		}

		max := maxReviewIterations(cfg.Profile)
		if s.ReviewIteration+1 >= max {
			return NodeResult{Delta: delta, Route: Goto(NodeEvaluator)}
		}
		return NodeResult{Delta: delta, Route: Goto(NodeDeveloper)}
	})
}

// postReviewComment reports a rejected review to the profile's tracker
// (spec.md §3 TrackerKind, reviewer_node comment-post hook). Best-effort:
// a tracker failure never fails the review itself.
func postReviewComment(ctx context.Context, cfg Config, s State, result state.ReviewResult) {
	body := fmt.Sprintf("Review changes requested (severity: %s)", result.Severity)
	if len(result.Comments) > 0 {
		body += "\n\n" + strings.Join(result.Comments, "\n")
	}
	_ = cfg.trackerOrNoop().PostComment(ctx, tracker.Comment{IssueID: s.Issue.ID, Body: body})
}

func maxReviewIterations(p state.Profile) int {
	if p.MaxTaskReviewIterations > 0 {
		return p.MaxTaskReviewIterations
	}
	return 3
}

func buildReviewPrompt(s State) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Goal: %s\n\nTask results:\n", s.Goal)
	for id, r := range s.TaskResults {
		fmt.Fprintf(&b, "- %s: %s\n%s\n", id, r.Status, r.Output)
	}
	return b.String()
}

func parseReviewResult(structured map[string]interface{}) state.ReviewResult {
	var r state.ReviewResult
	if approved, ok := structured["approved"].(bool); ok {
		r.Approved = approved
	}
	r.Severity = parseSeverity(structured["severity"])
	if comments, ok := structured["comments"].([]interface{}); ok {
		for _, c := range comments {
			if s, ok := c.(string); ok {
				r.Comments = append(r.Comments, s)
			}
		}
	}
	return r
}

func parseSeverity(v interface{}) state.Severity {
	s, _ := v.(string)
	switch strings.ToLower(s) {
	case "minor":
		return state.SeverityMinor
	case "major":
		return state.SeverityMajor
	case "critical":
		return state.SeverityCritical
	default:
		return state.SeverityNone
	}
}
