package workflow

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/amelia-orch/amelia/internal/state"
)

var taskHeadingRE = regexp.MustCompile(`(?m)^### Task (\S+):`)

// currentTaskSection extracts the markdown section for taskID out of the
// full plan markdown, per spec.md §9 Open Question (b): the full plan is
// always preserved in ExecutionState.PlanMarkdown; only the prompt builder
// narrows to the current task's section, and only at prompt-build time.
func currentTaskSection(planMarkdown string, taskID state.TaskID) string {
	locs := taskHeadingRE.FindAllStringSubmatchIndex(planMarkdown, -1)
	for i, loc := range locs {
		id := planMarkdown[loc[2]:loc[3]]
		if id != taskID {
			continue
		}
		start := loc[0]
		end := len(planMarkdown)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		return strings.TrimSpace(planMarkdown[start:end])
	}
	return ""
}

// buildDeveloperPrompt composes the task instructions, the current task's
// plan section, and prior reviewer feedback (when present and not yet
// approved), per spec.md §4.5 item 4.
func buildDeveloperPrompt(s State, t state.Task) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Issue: %s\n%s\n\n", s.Issue.Title, s.Issue.Description)
	if section := currentTaskSection(s.PlanMarkdown, t.ID); section != "" {
		b.WriteString(section)
		b.WriteString("\n\n")
	} else {
		fmt.Fprintf(&b, "Task %s: %s\n\n", t.ID, t.Description)
	}
	if s.LastReview != nil && !s.LastReview.Approved && len(s.LastReview.Comments) > 0 {
		b.WriteString("Address this prior review feedback:\n")
		for _, c := range s.LastReview.Comments {
			fmt.Fprintf(&b, "- %s\n", c)
		}
	}
	return b.String()
}

// buildArchitectPrompt injects the prior validation issues on a revision
// trip so the agent fixes the specific structural faults rather than
// regenerating blind (spec.md §4.5 item 1).
func buildArchitectPrompt(s State) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Issue: %s\n%s\n", s.Issue.Title, s.Issue.Description)
	if s.Design != nil {
		fmt.Fprintf(&b, "\nDesign:\n%s\n", s.Design.RawContent)
	}
	if s.PlanValidationResult != nil && !s.PlanValidationResult.Valid {
		b.WriteString("\nThe previous plan failed structural validation. Fix these issues:\n")
		for _, issue := range s.PlanValidationResult.Issues {
			fmt.Fprintf(&b, "- %s\n", issue)
		}
	}
	return b.String()
}
