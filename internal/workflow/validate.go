package workflow

import (
	"regexp"
	"strings"

	"github.com/amelia-orch/amelia/internal/state"
)

const minPlanMarkdownLength = 200

var taskHeadingCountRE = regexp.MustCompile(`(?m)^### Task \S+:`)

// validatePlanStructure runs the deterministic structural checks spec.md
// §4.5 item 2 requires before any LLM call: at least one "### Task N:"
// heading, a non-placeholder goal, and a minimum content length.
func validatePlanStructure(goal, planMarkdown string) state.PlanValidationResult {
	var issues []string

	if n := len(taskHeadingCountRE.FindAllString(planMarkdown, -1)); n == 0 {
		issues = append(issues, "plan has no \"### Task N:\" headings")
	}
	if isPlaceholderGoal(goal) {
		issues = append(issues, "goal is missing or a placeholder")
	}
	if len(strings.TrimSpace(planMarkdown)) < minPlanMarkdownLength {
		issues = append(issues, "plan content is shorter than the minimum required length")
	}

	if len(issues) == 0 {
		return state.PlanValidationResult{Valid: true}
	}

	severity := state.SeverityMajor
	if len(issues) >= 2 {
		severity = state.SeverityCritical
	}
	return state.PlanValidationResult{Valid: false, Issues: issues, Severity: severity}
}

func isPlaceholderGoal(goal string) bool {
	g := strings.TrimSpace(strings.ToLower(goal))
	if g == "" {
		return true
	}
	switch g {
	case "todo", "tbd", "goal", "placeholder", "n/a":
		return true
	}
	return false
}
