package state

// ExecutionState is the canonical reducer record threaded through every
// graph node (spec.md §3.2). Fields carrying a reducer annotation are
// merged by Reduce using that reducer's semantics; fields without one are
// single-writer and a concurrent write to them is rejected as a design
// error (ConcurrentWriteError).
type ExecutionState struct {
	ProfileID  string `json:"profile_id"`
	WorkflowID string `json:"workflow_id"`

	Issue        Issue                 `json:"issue"`
	Design       *Design               `json:"design,omitempty"`
	Plan         *TaskDAG              `json:"plan,omitempty"`
	PlanMarkdown string                `json:"plan_markdown,omitempty"`
	PlanPath     string                `json:"plan_path,omitempty"`
	Goal         string                `json:"goal,omitempty"`

	// TaskResults: reducer = dict_merge (right-wins key-by-key).
	TaskResults map[TaskID]TaskResult `json:"task_results"`

	// DriverSessions: reducer = dict_merge, keyed by Role.
	DriverSessions map[Role]DriverSession `json:"driver_sessions"`

	// History: reducer = list_append (concat, left then right).
	History []HistoryEntry `json:"history"`

	// CompletedSteps: reducer = set_union.
	CompletedSteps map[string]bool `json:"completed_steps"`

	LastReview            *ReviewResult         `json:"last_review,omitempty"`
	ReviewIteration        int                   `json:"review_iteration"`
	PlanValidationResult   *PlanValidationResult `json:"plan_validation_result,omitempty"`
	PlanRevisionCount      int                   `json:"plan_revision_count"`

	CurrentTaskID      string `json:"current_task_id,omitempty"`
	TotalTasks         int    `json:"total_tasks"`
	CurrentTaskIndex   int    `json:"current_task_index"`

	WorkflowStatus WorkflowStatus `json:"workflow_status"`
	HumanApproved  *bool          `json:"human_approved,omitempty"`
}

// NewExecutionState returns a fresh ExecutionState for a workflow start,
// with all map/slice reducer fields initialized to their zero-value-but-
// non-nil form so Reduce never has to special-case a nil receiver.
func NewExecutionState(workflowID, profileID string, issue Issue) ExecutionState {
	return ExecutionState{
		ProfileID:      profileID,
		WorkflowID:     workflowID,
		Issue:          issue,
		TaskResults:    map[TaskID]TaskResult{},
		DriverSessions: map[Role]DriverSession{},
		History:        nil,
		CompletedSteps: map[string]bool{},
		WorkflowStatus: WorkflowRunning,
	}
}

// GetTaskStatus derives a task's status from TaskResults, since Task itself
// never stores status (spec.md §3.2).
func (s ExecutionState) GetTaskStatus(id TaskID) Status {
	if r, ok := s.TaskResults[id]; ok {
		return r.Status
	}
	return StatusPending
}
