package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/amelia-orch/amelia/internal/events"
	"github.com/amelia-orch/amelia/internal/state"
)

func TestMemStore_EventLog_LookupAndAfter(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	if err := s.Append(ctx, events.WorkflowEvent{ID: "e1", WorkflowID: "wf-1", Sequence: 1, Timestamp: 100}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Append(ctx, events.WorkflowEvent{ID: "e2", WorkflowID: "wf-1", Sequence: 2, Timestamp: 200}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, ok, err := s.Lookup(ctx, "e1")
	if err != nil || !ok || got.ID != "e1" {
		t.Fatalf("expected to find e1, got %+v ok=%v err=%v", got, ok, err)
	}

	_, ok, err = s.Lookup(ctx, "missing")
	if err != nil || ok {
		t.Fatalf("expected missing lookup to report not-found, got ok=%v err=%v", ok, err)
	}

	after, err := s.After(ctx, "wf-1", 1)
	if err != nil || len(after) != 1 || after[0].ID != "e2" {
		t.Fatalf("expected only e2 after sequence 1, got %+v (err=%v)", after, err)
	}
}

func TestMemStore_Checkpoint_SaveLoadLatestAndHistoryNewestFirst(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	base := state.NewExecutionState("wf-1", "default", state.Issue{ID: "I-1"})

	for step := 1; step <= 3; step++ {
		st := base
		st.TotalTasks = step
		if err := s.SaveCheckpoint(ctx, "wf-1", step, st); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	latest, err := s.LoadLatestCheckpoint(ctx, "wf-1")
	if err != nil || latest.Step != 3 {
		t.Fatalf("expected latest checkpoint at step 3, got %+v (err=%v)", latest, err)
	}

	history, err := s.LoadHistory(ctx, "wf-1")
	if err != nil || len(history) != 3 {
		t.Fatalf("expected 3 checkpoints in history, got %d (err=%v)", len(history), err)
	}
	if history[0].Step != 3 || history[1].Step != 2 || history[2].Step != 1 {
		t.Fatalf("expected history newest-first, got steps %d,%d,%d", history[0].Step, history[1].Step, history[2].Step)
	}

	if _, err := s.LoadLatestCheckpoint(ctx, "wf-unknown"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown workflow, got %v", err)
	}
}

func TestMemStore_Checkpoint_SaveOverwritesSameStep(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	st1 := state.NewExecutionState("wf-1", "default", state.Issue{})
	st1.TotalTasks = 1
	st2 := st1
	st2.TotalTasks = 99

	if err := s.SaveCheckpoint(ctx, "wf-1", 1, st1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.SaveCheckpoint(ctx, "wf-1", 1, st2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	history, err := s.LoadHistory(ctx, "wf-1")
	if err != nil || len(history) != 1 {
		t.Fatalf("expected a single checkpoint row after overwrite, got %d (err=%v)", len(history), err)
	}
	if history[0].State.TotalTasks != 99 {
		t.Errorf("expected the overwrite to win, got TotalTasks=%d", history[0].State.TotalTasks)
	}
}

func TestMemStore_Profile_SaveLoadList(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	if err := s.SaveProfile(ctx, Profile{ID: "default", Raw: []byte("driver: api")}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.SaveProfile(ctx, Profile{ID: "staging"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	p, err := s.LoadProfile(ctx, "default")
	if err != nil || string(p.Raw) != "driver: api" {
		t.Fatalf("expected to load the saved profile, got %+v (err=%v)", p, err)
	}

	all, err := s.ListProfiles(ctx)
	if err != nil || len(all) != 2 {
		t.Fatalf("expected 2 profiles listed, got %d (err=%v)", len(all), err)
	}

	if _, err := s.LoadProfile(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemStore_Pairing_ExchangeIsSingleUse(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	if err := s.IssuePairingToken(ctx, "hash-1", time.Now().Add(time.Minute)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	device, err := s.ExchangePairingToken(ctx, "hash-1", PairedDevice{DeviceTokenHash: "devhash-1", DeviceName: "phone"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if device.ID == "" {
		t.Error("expected an assigned device id")
	}

	if _, err := s.ExchangePairingToken(ctx, "hash-1", PairedDevice{DeviceTokenHash: "devhash-2"}); !errors.Is(err, ErrTokenUsed) {
		t.Errorf("expected ErrTokenUsed on reuse, got %v", err)
	}

	devices, err := s.ListDevices(ctx)
	if err != nil || len(devices) != 1 {
		t.Fatalf("expected 1 paired device, got %d (err=%v)", len(devices), err)
	}

	found, err := s.LookupDeviceByTokenHash(ctx, "devhash-1")
	if err != nil || found.ID != device.ID {
		t.Fatalf("expected to find device by token hash, got %+v (err=%v)", found, err)
	}
}

func TestMemStore_Pairing_ExchangeRejectsExpiredToken(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	if err := s.IssuePairingToken(ctx, "hash-1", time.Now().Add(-time.Second)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := s.ExchangePairingToken(ctx, "hash-1", PairedDevice{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected an expired token to behave as not found, got %v", err)
	}
}

func TestMemStore_RevokeDevice_SetsRevokedAt(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	if err := s.IssuePairingToken(ctx, "hash-1", time.Now().Add(time.Minute)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	device, err := s.ExchangePairingToken(ctx, "hash-1", PairedDevice{DeviceTokenHash: "devhash-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := s.RevokeDevice(ctx, device.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	devices, err := s.ListDevices(ctx)
	if err != nil || len(devices) != 1 || devices[0].RevokedAt == nil {
		t.Fatalf("expected the device to carry a revoked_at timestamp, got %+v (err=%v)", devices, err)
	}

	if err := s.RevokeDevice(ctx, "does-not-exist"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound revoking an unknown device, got %v", err)
	}
}

func TestMemStore_PruneEvents_AppliesTimeCutoffAndPerWorkflowCap(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	old := events.WorkflowEvent{ID: "old", WorkflowID: "wf-1", Sequence: 1, Timestamp: 1000}
	recent1 := events.WorkflowEvent{ID: "r1", WorkflowID: "wf-1", Sequence: 2, Timestamp: 5000}
	recent2 := events.WorkflowEvent{ID: "r2", WorkflowID: "wf-1", Sequence: 3, Timestamp: 6000}
	recent3 := events.WorkflowEvent{ID: "r3", WorkflowID: "wf-1", Sequence: 4, Timestamp: 7000}
	for _, e := range []events.WorkflowEvent{old, recent1, recent2, recent3} {
		if err := s.Append(ctx, e); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	pruned, err := s.PruneEvents(ctx, time.UnixMilli(2000), 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// old (timestamp cutoff) + recent1 (exceeds per-workflow cap of 2) = 2 pruned.
	if pruned != 2 {
		t.Fatalf("expected 2 events pruned, got %d", pruned)
	}

	remaining, err := s.After(ctx, "wf-1", 0)
	if err != nil || len(remaining) != 2 {
		t.Fatalf("expected 2 events remaining, got %d (err=%v)", len(remaining), err)
	}
}

func TestMemStore_PruneExpiredPairingTokens(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	if err := s.IssuePairingToken(ctx, "expired", time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.IssuePairingToken(ctx, "fresh", time.Now().Add(time.Minute)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	pruned, err := s.PruneExpiredPairingTokens(ctx, time.Now())
	if err != nil || pruned != 1 {
		t.Fatalf("expected 1 token pruned, got %d (err=%v)", pruned, err)
	}

	if _, err := s.ExchangePairingToken(ctx, "fresh", PairedDevice{DeviceTokenHash: "d"}); err != nil {
		t.Fatalf("expected the fresh token to survive, got %v", err)
	}
}
