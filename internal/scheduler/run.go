package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/amelia-orch/amelia/internal/state"
)

// ExecutionMode selects fail-fast vs continue-on-failure batch semantics
// (spec.md §4.4).
type ExecutionMode string

const (
	ModeAgentic ExecutionMode = "agentic"
	ModeLenient ExecutionMode = "lenient"
)

// Executor runs a single task to completion. Implementations live in
// internal/workflow (the developer/reviewer node pair) and must be safe for
// concurrent use across tasks in the same batch.
type Executor interface {
	ExecuteTask(ctx context.Context, t state.Task, s state.ExecutionState) state.TaskResult
}

// Step runs ReadyTasks(dag, s) in parallel, bounded by concurrency, and
// returns a partial ExecutionState whose TaskResults and History are ready
// to merge via state.Reduce (spec.md §4.4). Under ModeAgentic, any task that
// finishes StatusFailed causes the remaining in-flight results to still be
// collected (their goroutines are already running) but stops nothing new
// from being scheduled beyond this batch — fail-fast is enforced by the
// caller not invoking Step again once workflow_status=failed.
func Step(ctx context.Context, dag state.TaskDAG, s state.ExecutionState, exec Executor, concurrency int, mode ExecutionMode) state.ExecutionState {
	ready := ReadyTasks(dag, s)
	if len(ready) == 0 {
		return state.ExecutionState{}
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	results := make(map[state.TaskID]state.TaskResult, len(ready))
	history := make([]state.HistoryEntry, 0, len(ready))
	var mu sync.Mutex

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for _, t := range ready {
		t := t
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			result := exec.ExecuteTask(ctx, t, s)

			mu.Lock()
			results[t.ID] = result
			history = append(history, state.HistoryEntry{
				Timestamp: time.Now(),
				Actor:     "scheduler",
				Event:     "task_" + string(result.Status),
				Detail:    map[string]interface{}{"task_id": t.ID},
			})
			mu.Unlock()
		}()
	}
	wg.Wait()

	partial := state.ExecutionState{TaskResults: results, History: history}

	failed := false
	for _, r := range results {
		if r.Status == state.StatusFailed {
			failed = true
			break
		}
	}
	if failed && mode == ModeAgentic {
		partial.WorkflowStatus = state.WorkflowFailed
	}
	return partial
}
