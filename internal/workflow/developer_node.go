package workflow

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/amelia-orch/amelia/internal/driver"
	"github.com/amelia-orch/amelia/internal/scheduler"
	"github.com/amelia-orch/amelia/internal/state"
)

const developerInstructions = "You are the developer agent. Implement the described task against the working directory, running tests as needed."

// DeveloperNode runs one batch of ready_tasks in parallel against the
// developer agent, merging results via scheduler.Step (spec.md §4.5 item 4,
// §4.4). Prior, un-addressed reviewer feedback is threaded into every
// task's prompt.
func DeveloperNode(cfg Config) Node {
	return NodeFunc(func(ctx context.Context, s State) NodeResult {
		if s.Plan == nil {
			return NodeResult{Err: &NodeError{NodeID: NodeDeveloper, Message: "no plan to execute"}}
		}
		d, err := cfg.driverFor(state.RoleDeveloper)
		if err != nil {
			return NodeResult{Err: err}
		}

		cwd := cfg.Profile.WorkingDir
		devCfg, _ := cfg.Profile.ResolveAgent(state.RoleDeveloper)
		exec := &taskExecutor{driver: d, cwd: cwd, allowedTools: devCfg.Options.AllowedTools, sessions: map[state.Role]state.DriverSession{}}
		concurrency := cfg.Profile.MaxConcurrentTasks
		mode := scheduler.ModeLenient
		if scheduler.ExecutionMode(cfg.Profile.ExecutionMode) == scheduler.ModeAgentic {
			mode = scheduler.ModeAgentic
		}

		partial := scheduler.Step(ctx, *s.Plan, s, exec, concurrency, mode)
		if len(exec.sessions) > 0 {
			partial.DriverSessions = exec.sessions
		}

		if partial.WorkflowStatus == state.WorkflowFailed {
			return NodeResult{Delta: partial, Route: Stop()}
		}
		// Every completed batch goes through the reviewer, including the one
		// that finishes the plan (spec.md §8 scenario 1) — scheduler.Done only
		// tells the reviewer whether this was the last batch, it never lets
		// developer skip review itself.
		return NodeResult{Delta: partial, Route: Goto(NodeReviewer)}
	})
}

// taskExecutor adapts a Driver into scheduler.Executor, running the
// developer agent's agentic loop per task and collecting the session it
// returns. Concurrent tasks share one developer session per spec.md §3.2's
// "DriverSession: dict_merge by role" — last writer among this batch wins,
// which dict_merge accepts (only single-writer fields reject concurrency).
type taskExecutor struct {
	driver       driver.Driver
	cwd          string
	allowedTools []string

	mu       sync.Mutex
	sessions map[state.Role]state.DriverSession
}

func (e *taskExecutor) ExecuteTask(ctx context.Context, t state.Task, s state.ExecutionState) state.TaskResult {
	prompt := buildDeveloperPrompt(s, t)
	session := s.DriverSessions[state.RoleDeveloper]

	var result strings.Builder
	newSession, err := e.driver.ExecuteAgentic(ctx, prompt, e.cwd, developerInstructions, e.allowedTools, session, func(m driver.AgenticMessage) {
		if m.Kind == driver.AgenticResult {
			result.WriteString(m.Result)
		} else if m.Kind == driver.AgenticText {
			result.WriteString(m.Text)
		}
	})

	now := time.Now()
	if err != nil {
		return state.TaskResult{TaskID: t.ID, Status: state.StatusFailed, Error: err.Error(), CompletedAt: &now}
	}

	e.mu.Lock()
	e.sessions[state.RoleDeveloper] = newSession
	e.mu.Unlock()

	return state.TaskResult{TaskID: t.ID, Status: state.StatusCompleted, Output: result.String(), CompletedAt: &now}
}
