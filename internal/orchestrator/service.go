// Package orchestrator assembles the engine, scheduler, driver factory,
// persistence, event bus, and tracker packages into the single
// httpapi.WorkflowService implementation spec.md §6.1 drives, and tracks
// each in-flight workflow's current state so Snapshot/Approve/Reject never
// have to wait on a running engine.Run call.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/amelia-orch/amelia/internal/driver"
	"github.com/amelia-orch/amelia/internal/events"
	"github.com/amelia-orch/amelia/internal/httpapi"
	"github.com/amelia-orch/amelia/internal/persistence"
	"github.com/amelia-orch/amelia/internal/state"
	"github.com/amelia-orch/amelia/internal/telemetry"
	"github.com/amelia-orch/amelia/internal/tracker"
	"github.com/amelia-orch/amelia/internal/workflow"
)

// ErrProfileNotFound is returned by Start when no profile is registered
// under the requested id.
var ErrProfileNotFound = errors.New("orchestrator: profile not found")

// ErrNotAwaitingApproval is returned by Approve/Reject when the workflow
// named isn't currently suspended at human_approval. Wraps
// httpapi.ErrConflict so the HTTP boundary maps it to 409 without this
// package importing any net/http types.
var ErrNotAwaitingApproval = fmt.Errorf("orchestrator: workflow is not awaiting approval: %w", httpapi.ErrConflict)

// run tracks one in-flight or finished workflow: its engine (so Approve can
// resume it at human_approval) and the most recently merged state (so
// Snapshot never blocks on the background goroutine driving it).
type run struct {
	mu      sync.Mutex
	engine  *workflow.Engine
	current state.ExecutionState
	done    bool

	// driverModels maps each role's driver to the model string its
	// AgentConfig named, so cost can be priced per model once a step
	// completes. Nil when no cost tracker is configured.
	driverModels map[driver.Driver]string
}

// DriverFactory builds the Driver for one agent role's configuration.
// driver.Factory satisfies this; tests substitute a fake that returns
// driver.MockDriver without needing real provider credentials.
type DriverFactory interface {
	Build(cfg state.AgentConfig) (driver.Driver, error)
}

// Service builds a fresh driver.Config per workflow from the active
// profile set and the shared DriverFactory/tracker.Config, then drives
// the graph engine in a background goroutine per workflow (spec.md §4.5's
// "one workflow advances at a time" is per-workflow, not global: concurrent
// workflows run concurrently).
type Service struct {
	mu       sync.RWMutex
	profiles map[string]state.Profile

	store      persistence.CheckpointStore
	bus        *events.Bus
	factory    DriverFactory
	trackerCfg tracker.Config
	logger     *zap.Logger
	cost       *telemetry.CostTracker

	nodeTimeout time.Duration

	runsMu sync.Mutex
	runs   map[string]*run
}

// New builds a Service. nodeTimeout bounds every node's driver call
// (spec.md §5); zero means unlimited. cost may be nil, in which case spend
// is never computed or published.
func New(profiles map[string]state.Profile, store persistence.CheckpointStore, bus *events.Bus, factory DriverFactory, trackerCfg tracker.Config, nodeTimeout time.Duration, logger *zap.Logger, cost *telemetry.CostTracker) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		profiles:    profiles,
		store:       store,
		bus:         bus,
		factory:     factory,
		trackerCfg:  trackerCfg,
		logger:      logger,
		cost:        cost,
		nodeTimeout: nodeTimeout,
		runs:        map[string]*run{},
	}
}

// SetProfiles replaces the active profile set, called by the config
// watcher on every hot reload (spec.md §6.3 "profiles reload without
// restart"). In-flight workflows keep the Config captured at Start time.
func (s *Service) SetProfiles(profiles map[string]state.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles = profiles
}

func (s *Service) profile(id string) (state.Profile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[id]
	return p, ok
}

// buildConfig resolves one driver per role the profile configures, builds
// the tracker that role's reviewer/human-approval comment hooks post to,
// and records which model each driver was built for so cost can be priced
// per model once a step completes.
func (s *Service) buildConfig(p state.Profile) (workflow.Config, map[driver.Driver]string, error) {
	drivers := make(map[state.Role]driver.Driver, len(p.Agents))
	models := make(map[driver.Driver]string, len(p.Agents))
	for role := range p.Agents {
		cfg, _ := p.ResolveAgent(role)
		d, err := s.factory.Build(cfg)
		if err != nil {
			return workflow.Config{}, nil, fmt.Errorf("orchestrator: building driver for role %s: %w", role, err)
		}
		drivers[role] = d
		models[d] = cfg.Model
	}
	return workflow.Config{
		Profile: p,
		Drivers: drivers,
		Tracker: tracker.New(string(p.Tracker), s.trackerCfg),
	}, models, nil
}

// Start builds the per-workflow engine and launches it at architect in a
// background goroutine, returning the new workflow id immediately (spec.md
// §6.1 POST /api/workflows).
func (s *Service) Start(ctx context.Context, issue state.Issue, profileID string) (string, error) {
	p, ok := s.profile(profileID)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrProfileNotFound, profileID)
	}
	cfg, models, err := s.buildConfig(p)
	if err != nil {
		return "", err
	}

	workflowID := uuid.NewString()
	r := &run{current: state.NewExecutionState(workflowID, profileID, issue), driverModels: models}

	sink := events.NewEngineSink(s.bus, workflowID)
	r.engine = workflow.NewEngine(cfg, checkpointAdapter{s.store}, s.trackingSink(r, sink, workflowID), s.nodeTimeout)

	s.runsMu.Lock()
	s.runs[workflowID] = r
	s.runsMu.Unlock()

	go s.drive(r, workflowID, workflow.NodeArchitect, r.current)

	return workflowID, nil
}

// trackingSink wraps bus into an EventSink that also updates r.current, so
// Snapshot reflects every completed step without reading from the
// checkpoint store, and recomputes estimated spend for workflowID.
func (s *Service) trackingSink(r *run, bus workflow.EventSink, workflowID string) workflow.EventSink {
	return func(nodeID string, step int, st workflow.State) {
		r.mu.Lock()
		r.current = st
		r.mu.Unlock()

		if s.cost != nil {
			byModel := make(map[string]telemetry.TokenUsage, len(r.driverModels))
			for d, model := range r.driverModels {
				u := d.GetUsage()
				acc := byModel[model]
				acc.InputTokens += u.InputTokens
				acc.OutputTokens += u.OutputTokens
				byModel[model] = acc
			}
			s.cost.Recompute(workflowID, byModel)
		}

		if bus != nil {
			bus(nodeID, step, st)
		}
	}
}

// drive runs the engine to suspension, completion, or error, logging
// failures since nothing else observes a background goroutine's error.
func (s *Service) drive(r *run, workflowID, startNode string, st state.ExecutionState) {
	final, err := r.engine.Run(context.Background(), workflowID, startNode, st)

	r.mu.Lock()
	r.current = final
	r.done = final.WorkflowStatus == state.WorkflowCompleted || final.WorkflowStatus == state.WorkflowFailed
	r.mu.Unlock()

	if r.done && s.cost != nil {
		// Final spend was already published by the last trackingSink call;
		// nothing further accrues once a workflow reaches a terminal state.
		s.logger.Info("workflow finished", zap.String("workflow_id", workflowID), zap.Float64("estimated_cost_usd", s.cost.Spend(workflowID)))
	}

	if err != nil {
		s.logger.Error("workflow run ended with error", zap.String("workflow_id", workflowID), zap.Error(err))
	}
}

// Snapshot returns the most recently merged ExecutionState for workflowID,
// falling back to the latest durable checkpoint for a workflow this process
// didn't start (spec.md §6.1 GET /api/workflows/{id}).
func (s *Service) Snapshot(ctx context.Context, workflowID string) (state.ExecutionState, error) {
	s.runsMu.Lock()
	r, ok := s.runs[workflowID]
	s.runsMu.Unlock()
	if ok {
		r.mu.Lock()
		defer r.mu.Unlock()
		return r.current, nil
	}

	cp, err := s.store.LoadLatestCheckpoint(ctx, workflowID)
	if err != nil {
		return state.ExecutionState{}, err
	}
	return cp.State, nil
}

// Approve resumes a workflow suspended at human_approval with
// HumanApproved = true (spec.md §6.1 POST /api/workflows/{id}/approve).
func (s *Service) Approve(ctx context.Context, workflowID string) error {
	approved := true
	return s.resume(workflowID, state.ExecutionState{HumanApproved: &approved})
}

// Reject resumes a workflow suspended at human_approval with
// HumanApproved = false, failing it (spec.md §6.1 POST
// /api/workflows/{id}/reject). reason is recorded in history for audit.
func (s *Service) Reject(ctx context.Context, workflowID string, reason string) error {
	approved := false
	delta := state.ExecutionState{HumanApproved: &approved}
	if reason != "" {
		delta.History = []state.HistoryEntry{{
			Actor: "human", Event: "rejected", Detail: map[string]interface{}{"reason": reason},
		}}
	}
	return s.resume(workflowID, delta)
}

func (s *Service) resume(workflowID string, delta state.ExecutionState) error {
	s.runsMu.Lock()
	r, ok := s.runs[workflowID]
	s.runsMu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", persistence.ErrNotFound, workflowID)
	}

	r.mu.Lock()
	if r.current.WorkflowStatus != state.WorkflowAwaitingApproval {
		r.mu.Unlock()
		return fmt.Errorf("%s: %w", workflowID, ErrNotAwaitingApproval)
	}
	merged := state.Reduce(r.current, delta)
	r.current = merged
	r.mu.Unlock()

	go s.drive(r, workflowID, workflow.NodeHumanApproval, merged)
	return nil
}

// checkpointAdapter satisfies workflow.Checkpointer over
// persistence.CheckpointStore, whose SaveCheckpoint has no nodeID
// parameter; Amelia's checkpoint table keys on (workflow_id, step) only,
// per spec.md §4.7, so nodeID is intentionally dropped here rather than
// added to the store's schema.
type checkpointAdapter struct {
	store persistence.CheckpointStore
}

func (c checkpointAdapter) SaveStep(ctx context.Context, workflowID string, step int, _ string, s workflow.State) error {
	return c.store.SaveCheckpoint(ctx, workflowID, step, s)
}

var _ httpapi.WorkflowService = (*Service)(nil)
