package workflow

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/amelia-orch/amelia/internal/driver"
	"github.com/amelia-orch/amelia/internal/state"
)

// planSchema is the JSON-Schema handed to the driver for architect_node's
// structured output: goal, the task list, and the human-readable plan
// markdown the validator and developer prompts both read from.
var planSchema = driver.Schema{
	"title": "architect_plan",
	"type":  "object",
	"properties": map[string]interface{}{
		"goal":          map[string]interface{}{"type": "string"},
		"plan_markdown": map[string]interface{}{"type": "string"},
		"tasks":         map[string]interface{}{"type": "array"},
	},
	"required": []string{"goal", "plan_markdown", "tasks"},
}

// ArchitectNode invokes the architect agent with the issue (and prior
// design/validation feedback, if any), producing a TaskDAG, its rendered
// markdown, and the plan's on-disk path (spec.md §4.5 item 1).
func ArchitectNode(cfg Config) Node {
	return NodeFunc(func(ctx context.Context, s State) NodeResult {
		d, err := cfg.driverFor(state.RoleArchitect)
		if err != nil {
			return NodeResult{Err: err}
		}

		prompt := buildArchitectPrompt(s)
		session := cfg.sessionFor(s, state.RoleArchitect)
		out, err := d.Generate(ctx, prompt, architectSystemPrompt, planSchema, session)
		if err != nil {
			return NodeResult{Err: err}
		}

		tasks, err := parseTasks(out.Structured["tasks"])
		if err != nil {
			return NodeResult{Err: &NodeError{NodeID: NodeArchitect, Message: "parsing architect task list", Cause: err}}
		}
		originalIssue := s.Issue.Title + "\n" + s.Issue.Description
		dag, err := state.NewTaskDAG(originalIssue, tasks)
		if err != nil {
			return NodeResult{Err: &NodeError{NodeID: NodeArchitect, Message: "architect plan rejected", Cause: err}}
		}

		goal, _ := out.Structured["goal"].(string)
		planMarkdown, _ := out.Structured["plan_markdown"].(string)
		planPath := renderPlanPath(cfg.Profile, s)

		delta := State{
			Plan:           &dag,
			PlanMarkdown:   planMarkdown,
			PlanPath:       planPath,
			Goal:           goal,
			TotalTasks:     len(dag.Tasks),
			DriverSessions: map[state.Role]state.DriverSession{state.RoleArchitect: out.Session},
		}
		return NodeResult{Delta: delta, Route: Goto(NodePlanValidator)}
	})
}

const architectSystemPrompt = "You are the architect agent. Produce a task plan as structured JSON matching the given schema, plus a human-readable markdown rendering with one \"### Task N:\" heading per task."

func renderPlanPath(p state.Profile, s State) string {
	pattern := p.PlanPathPattern
	if pattern == "" {
		pattern = "{workflow_id}.md"
	}
	name := pattern
	name = strings.ReplaceAll(name, "{workflow_id}", s.WorkflowID)
	name = strings.ReplaceAll(name, "{issue_id}", s.Issue.ID)
	return filepath.Join(p.PlanOutputDir, name)
}

// parseTasks converts the loosely-typed []interface{} the driver handed
// back (decoded from JSON) into []state.Task.
func parseTasks(raw interface{}) ([]state.Task, error) {
	items, ok := raw.([]interface{})
	if !ok {
		return nil, fmt.Errorf("tasks field is not an array")
	}
	tasks := make([]state.Task, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("task entry is not an object")
		}
		id, _ := m["id"].(string)
		if id == "" {
			return nil, fmt.Errorf("task entry missing id")
		}
		desc, _ := m["description"].(string)
		commitMsg, _ := m["commit_message"].(string)

		deps := map[state.TaskID]bool{}
		if rawDeps, ok := m["dependencies"].([]interface{}); ok {
			for _, d := range rawDeps {
				if depID, ok := d.(string); ok {
					deps[depID] = true
				}
			}
		}

		tasks = append(tasks, state.Task{
			ID:            id,
			Description:   desc,
			Dependencies:  deps,
			CommitMessage: commitMsg,
		})
	}
	return tasks, nil
}
