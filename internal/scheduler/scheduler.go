// Package scheduler implements the Task DAG & Scheduler component (spec.md
// §4.4): ready_tasks, step, and progress as pure operations over an
// immutable TaskDAG + ExecutionState pair, plus the bounded-concurrency
// worker pool that drives step. Grounded on the teacher's scheduler.go
// frontier, simplified because spec.md requires only dict_merge ordering
// insensitivity, not deterministic replay order (see DESIGN.md).
package scheduler

import (
	"sort"

	"github.com/amelia-orch/amelia/internal/state"
)

// ReadyTasks returns every task whose status is pending and whose
// dependencies are all completed, sorted by task ID for deterministic
// iteration (spec.md §4.4).
func ReadyTasks(dag state.TaskDAG, s state.ExecutionState) []state.Task {
	var ready []state.Task
	for _, t := range dag.Tasks {
		if s.GetTaskStatus(t.ID) != state.StatusPending {
			continue
		}
		if allDepsCompleted(t, s) {
			ready = append(ready, t)
		}
	}
	sort.Slice(ready, func(i, j int) bool { return ready[i].ID < ready[j].ID })
	return ready
}

func allDepsCompleted(t state.Task, s state.ExecutionState) bool {
	for _, dep := range t.DependencySet() {
		if s.GetTaskStatus(dep) != state.StatusCompleted {
			return false
		}
	}
	return true
}

// Progress reports how many of the DAG's tasks have a terminal completed
// status against the total task count (spec.md §4.4).
func Progress(dag state.TaskDAG, s state.ExecutionState) (completed, total int) {
	total = len(dag.Tasks)
	for _, t := range dag.Tasks {
		if s.GetTaskStatus(t.ID) == state.StatusCompleted {
			completed++
		}
	}
	return completed, total
}

// Done reports whether every task in the DAG has reached a terminal status
// (completed, failed, or skipped).
func Done(dag state.TaskDAG, s state.ExecutionState) bool {
	for _, t := range dag.Tasks {
		switch s.GetTaskStatus(t.ID) {
		case state.StatusCompleted, state.StatusFailed, state.StatusSkipped:
			continue
		default:
			return false
		}
	}
	return true
}

// AnyFailed reports whether any task in the DAG reached StatusFailed.
func AnyFailed(dag state.TaskDAG, s state.ExecutionState) bool {
	for _, t := range dag.Tasks {
		if s.GetTaskStatus(t.ID) == state.StatusFailed {
			return true
		}
	}
	return false
}
