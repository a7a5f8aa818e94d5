package state

// Reduce merges a node's partial output into the current accumulated state,
// per spec.md §4.1. The partial carries only the keys a node actually wrote;
// zero-valued fields are treated as "not written" and left untouched in the
// result. Reducer selection is by field, exactly as declared in spec.md §3.2:
//
//   - TaskResults, DriverSessions: dict_merge (right-wins key-by-key)
//   - History: list_append (current then partial, preserving order)
//   - CompletedSteps: set_union
//   - everything else: single-writer replace
//
// Reduce never mutates current or partial; it returns a new value.
func Reduce(current, partial ExecutionState) ExecutionState {
	next := current

	// dict_merge fields.
	next.TaskResults = dictMerge(current.TaskResults, partial.TaskResults)
	next.DriverSessions = dictMergeSessions(current.DriverSessions, partial.DriverSessions)

	// list_append fields.
	if len(partial.History) > 0 {
		merged := make([]HistoryEntry, 0, len(current.History)+len(partial.History))
		merged = append(merged, current.History...)
		merged = append(merged, partial.History...)
		next.History = merged
	}

	// set_union fields.
	next.CompletedSteps = setUnion(current.CompletedSteps, partial.CompletedSteps)

	// single-writer fields: replace only when the partial actually set them.
	if partial.ProfileID != "" {
		next.ProfileID = partial.ProfileID
	}
	if partial.WorkflowID != "" {
		next.WorkflowID = partial.WorkflowID
	}
	if partial.Issue.ID != "" {
		next.Issue = partial.Issue
	}
	if partial.Design != nil {
		next.Design = partial.Design
	}
	if partial.Plan != nil {
		next.Plan = partial.Plan
	}
	if partial.PlanMarkdown != "" {
		next.PlanMarkdown = partial.PlanMarkdown
	}
	if partial.PlanPath != "" {
		next.PlanPath = partial.PlanPath
	}
	if partial.Goal != "" {
		next.Goal = partial.Goal
	}
	if partial.LastReview != nil {
		next.LastReview = partial.LastReview
	}
	if partial.ReviewIteration != 0 {
		next.ReviewIteration = partial.ReviewIteration
	}
	if partial.PlanValidationResult != nil {
		next.PlanValidationResult = partial.PlanValidationResult
	}
	if partial.PlanRevisionCount != 0 {
		next.PlanRevisionCount = partial.PlanRevisionCount
	}
	if partial.CurrentTaskID != "" {
		next.CurrentTaskID = partial.CurrentTaskID
	}
	if partial.TotalTasks != 0 {
		next.TotalTasks = partial.TotalTasks
	}
	if partial.CurrentTaskIndex != 0 {
		next.CurrentTaskIndex = partial.CurrentTaskIndex
	}
	if partial.WorkflowStatus != "" {
		next.WorkflowStatus = partial.WorkflowStatus
	}
	if partial.HumanApproved != nil {
		next.HumanApproved = partial.HumanApproved
	}

	return next
}

// MergePartials combines two partial outputs produced concurrently (e.g. two
// tasks in the same developer_node batch) before they are folded into
// current via Reduce. Annotated fields merge per their reducer; any
// single-writer field set on both sides is a ConcurrentWriteError, per
// spec.md §4.1/§7 — a design bug, not a retryable condition.
func MergePartials(a, b ExecutionState) (ExecutionState, error) {
	merged := ExecutionState{
		TaskResults:    dictMerge(a.TaskResults, b.TaskResults),
		DriverSessions: dictMergeSessions(a.DriverSessions, b.DriverSessions),
		CompletedSteps: setUnion(a.CompletedSteps, b.CompletedSteps),
	}
	if len(a.History) > 0 || len(b.History) > 0 {
		merged.History = append(append([]HistoryEntry{}, a.History...), b.History...)
	}

	type check struct {
		field    string
		aSet, bSet bool
		pick     func(dst *ExecutionState)
	}
	checks := []check{
		{"profile_id", a.ProfileID != "", b.ProfileID != "", func(d *ExecutionState) {
			if a.ProfileID != "" {
				d.ProfileID = a.ProfileID
			} else {
				d.ProfileID = b.ProfileID
			}
		}},
		{"workflow_id", a.WorkflowID != "", b.WorkflowID != "", func(d *ExecutionState) {
			if a.WorkflowID != "" {
				d.WorkflowID = a.WorkflowID
			} else {
				d.WorkflowID = b.WorkflowID
			}
		}},
		{"issue", a.Issue.ID != "", b.Issue.ID != "", func(d *ExecutionState) {
			if a.Issue.ID != "" {
				d.Issue = a.Issue
			} else {
				d.Issue = b.Issue
			}
		}},
		{"design", a.Design != nil, b.Design != nil, func(d *ExecutionState) {
			if a.Design != nil {
				d.Design = a.Design
			} else {
				d.Design = b.Design
			}
		}},
		{"plan", a.Plan != nil, b.Plan != nil, func(d *ExecutionState) {
			if a.Plan != nil {
				d.Plan = a.Plan
			} else {
				d.Plan = b.Plan
			}
		}},
		{"plan_markdown", a.PlanMarkdown != "", b.PlanMarkdown != "", func(d *ExecutionState) {
			if a.PlanMarkdown != "" {
				d.PlanMarkdown = a.PlanMarkdown
			} else {
				d.PlanMarkdown = b.PlanMarkdown
			}
		}},
		{"plan_path", a.PlanPath != "", b.PlanPath != "", func(d *ExecutionState) {
			if a.PlanPath != "" {
				d.PlanPath = a.PlanPath
			} else {
				d.PlanPath = b.PlanPath
			}
		}},
		{"goal", a.Goal != "", b.Goal != "", func(d *ExecutionState) {
			if a.Goal != "" {
				d.Goal = a.Goal
			} else {
				d.Goal = b.Goal
			}
		}},
		{"last_review", a.LastReview != nil, b.LastReview != nil, func(d *ExecutionState) {
			if a.LastReview != nil {
				d.LastReview = a.LastReview
			} else {
				d.LastReview = b.LastReview
			}
		}},
		{"review_iteration", a.ReviewIteration != 0, b.ReviewIteration != 0, func(d *ExecutionState) {
			if a.ReviewIteration != 0 {
				d.ReviewIteration = a.ReviewIteration
			} else {
				d.ReviewIteration = b.ReviewIteration
			}
		}},
		{"plan_validation_result", a.PlanValidationResult != nil, b.PlanValidationResult != nil, func(d *ExecutionState) {
			if a.PlanValidationResult != nil {
				d.PlanValidationResult = a.PlanValidationResult
			} else {
				d.PlanValidationResult = b.PlanValidationResult
			}
		}},
		{"plan_revision_count", a.PlanRevisionCount != 0, b.PlanRevisionCount != 0, func(d *ExecutionState) {
			if a.PlanRevisionCount != 0 {
				d.PlanRevisionCount = a.PlanRevisionCount
			} else {
				d.PlanRevisionCount = b.PlanRevisionCount
			}
		}},
		{"current_task_id", a.CurrentTaskID != "", b.CurrentTaskID != "", func(d *ExecutionState) {
			if a.CurrentTaskID != "" {
				d.CurrentTaskID = a.CurrentTaskID
			} else {
				d.CurrentTaskID = b.CurrentTaskID
			}
		}},
		{"total_tasks", a.TotalTasks != 0, b.TotalTasks != 0, func(d *ExecutionState) {
			if a.TotalTasks != 0 {
				d.TotalTasks = a.TotalTasks
			} else {
				d.TotalTasks = b.TotalTasks
			}
		}},
		{"current_task_index", a.CurrentTaskIndex != 0, b.CurrentTaskIndex != 0, func(d *ExecutionState) {
			if a.CurrentTaskIndex != 0 {
				d.CurrentTaskIndex = a.CurrentTaskIndex
			} else {
				d.CurrentTaskIndex = b.CurrentTaskIndex
			}
		}},
		{"workflow_status", a.WorkflowStatus != "", b.WorkflowStatus != "", func(d *ExecutionState) {
			if a.WorkflowStatus != "" {
				d.WorkflowStatus = a.WorkflowStatus
			} else {
				d.WorkflowStatus = b.WorkflowStatus
			}
		}},
		{"human_approved", a.HumanApproved != nil, b.HumanApproved != nil, func(d *ExecutionState) {
			if a.HumanApproved != nil {
				d.HumanApproved = a.HumanApproved
			} else {
				d.HumanApproved = b.HumanApproved
			}
		}},
	}

	for _, c := range checks {
		if c.aSet && c.bSet {
			return ExecutionState{}, &ConcurrentWriteError{Field: c.field}
		}
		c.pick(&merged)
	}

	return merged, nil
}

func dictMerge(current, partial map[TaskID]TaskResult) map[TaskID]TaskResult {
	if len(current) == 0 && len(partial) == 0 {
		return current
	}
	merged := make(map[TaskID]TaskResult, len(current)+len(partial))
	for k, v := range current {
		merged[k] = v
	}
	for k, v := range partial {
		merged[k] = v
	}
	return merged
}

func dictMergeSessions(current, partial map[Role]DriverSession) map[Role]DriverSession {
	if len(current) == 0 && len(partial) == 0 {
		return current
	}
	merged := make(map[Role]DriverSession, len(current)+len(partial))
	for k, v := range current {
		merged[k] = v
	}
	for k, v := range partial {
		merged[k] = v
	}
	return merged
}

func setUnion(current, partial map[string]bool) map[string]bool {
	if len(current) == 0 && len(partial) == 0 {
		return current
	}
	merged := make(map[string]bool, len(current)+len(partial))
	for k := range current {
		merged[k] = true
	}
	for k := range partial {
		merged[k] = true
	}
	return merged
}
