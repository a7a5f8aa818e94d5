package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/amelia-orch/amelia/internal/events"
)

func TestSweeper_Run_SweepsBothTickersBeforeCancellation(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()

	if err := store.Append(ctx, events.WorkflowEvent{ID: "old", WorkflowID: "wf-1", Sequence: 1, Timestamp: 1}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := store.IssuePairingToken(ctx, "expired", time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cfg := RetentionConfig{
		EventMaxAge:          0,
		EventPerWorkflowCap:  0,
		EventSweepInterval:   5 * time.Millisecond,
		PairingSweepInterval: 5 * time.Millisecond,
	}
	sweeper := NewSweeper(store, cfg, nil)

	runCtx, cancel := context.WithTimeout(ctx, 60*time.Millisecond)
	defer cancel()
	sweeper.Run(runCtx)

	remaining, err := store.After(ctx, "wf-1", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(remaining) != 0 {
		t.Errorf("expected the aged-out event swept, got %d remaining", len(remaining))
	}

	pruned, err := store.PruneExpiredPairingTokens(ctx, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pruned != 0 {
		t.Errorf("expected the sweeper to have already pruned the expired token, got %d left to prune", pruned)
	}
}

func TestDefaultRetentionConfig_SetsHourlyPairingSweep(t *testing.T) {
	cfg := DefaultRetentionConfig()
	if cfg.PairingSweepInterval != time.Hour {
		t.Errorf("expected hourly pairing token sweep per spec, got %v", cfg.PairingSweepInterval)
	}
}
