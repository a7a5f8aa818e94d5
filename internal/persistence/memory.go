package persistence

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/amelia-orch/amelia/internal/events"
	"github.com/amelia-orch/amelia/internal/state"
	"github.com/google/uuid"
)

// MemStore is an in-memory Store for tests and single-process development
// (adapted from the teacher's graph/store.MemStore, despecialized from a
// generic state type to the concrete ExecutionState and extended with the
// profile/pairing facets SPEC_FULL.md adds).
type MemStore struct {
	mu sync.RWMutex

	events      []events.WorkflowEvent
	checkpoints map[string][]Checkpoint // workflowID -> steps, insertion order

	profiles map[string]Profile

	devices       map[string]PairedDevice // deviceID -> device
	devicesByHash map[string]string       // tokenHash -> deviceID
	pairingTokens map[string]PairingToken // tokenHash -> token
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		checkpoints:   make(map[string][]Checkpoint),
		profiles:      make(map[string]Profile),
		devices:       make(map[string]PairedDevice),
		devicesByHash: make(map[string]string),
		pairingTokens: make(map[string]PairingToken),
	}
}

func (m *MemStore) Append(_ context.Context, e events.WorkflowEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

func (m *MemStore) Lookup(_ context.Context, eventID string) (events.WorkflowEvent, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.events {
		if e.ID == eventID {
			return e, true, nil
		}
	}
	return events.WorkflowEvent{}, false, nil
}

func (m *MemStore) After(_ context.Context, workflowID string, sequence int64) ([]events.WorkflowEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []events.WorkflowEvent
	for _, e := range m.events {
		if e.WorkflowID == workflowID && e.Sequence > sequence {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *MemStore) SaveCheckpoint(_ context.Context, workflowID string, step int, s state.ExecutionState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := Checkpoint{WorkflowID: workflowID, Step: step, CreatedAt: time.Now(), State: s}
	for i, existing := range m.checkpoints[workflowID] {
		if existing.Step == step {
			m.checkpoints[workflowID][i] = cp
			return nil
		}
	}
	m.checkpoints[workflowID] = append(m.checkpoints[workflowID], cp)
	return nil
}

func (m *MemStore) LoadLatestCheckpoint(_ context.Context, workflowID string) (Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rows := m.checkpoints[workflowID]
	if len(rows) == 0 {
		return Checkpoint{}, ErrNotFound
	}
	latest := rows[0]
	for _, cp := range rows[1:] {
		if cp.Step > latest.Step {
			latest = cp
		}
	}
	return latest, nil
}

func (m *MemStore) LoadCheckpoint(_ context.Context, workflowID string, step int) (Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, cp := range m.checkpoints[workflowID] {
		if cp.Step == step {
			return cp, nil
		}
	}
	return Checkpoint{}, ErrNotFound
}

func (m *MemStore) LoadHistory(_ context.Context, workflowID string) ([]Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rows := append([]Checkpoint(nil), m.checkpoints[workflowID]...)
	sort.Slice(rows, func(i, j int) bool { return rows[i].Step > rows[j].Step })
	return rows, nil
}

func (m *MemStore) SaveProfile(_ context.Context, p Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[p.ID] = p
	return nil
}

func (m *MemStore) LoadProfile(_ context.Context, id string) (Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[id]
	if !ok {
		return Profile{}, ErrNotFound
	}
	return p, nil
}

func (m *MemStore) ListProfiles(_ context.Context) ([]Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Profile, 0, len(m.profiles))
	for _, p := range m.profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemStore) IssuePairingToken(_ context.Context, tokenHash string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pairingTokens[tokenHash] = PairingToken{TokenHash: tokenHash, ExpiresAt: expiresAt}
	return nil
}

func (m *MemStore) ExchangePairingToken(_ context.Context, tokenHash string, device PairedDevice) (PairedDevice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tok, ok := m.pairingTokens[tokenHash]
	if !ok {
		return PairedDevice{}, ErrNotFound
	}
	if tok.UsedAt != nil {
		return PairedDevice{}, ErrTokenUsed
	}
	if time.Now().After(tok.ExpiresAt) {
		return PairedDevice{}, ErrNotFound
	}

	if device.ID == "" {
		device.ID = uuid.NewString()
	}
	device.PairedAt = time.Now()
	device.LastSeen = device.PairedAt

	now := device.PairedAt
	tok.UsedAt = &now
	tok.UsedByDeviceID = device.ID
	m.pairingTokens[tokenHash] = tok

	m.devices[device.ID] = device
	m.devicesByHash[device.DeviceTokenHash] = device.ID

	return device, nil
}

func (m *MemStore) ListDevices(_ context.Context) ([]PairedDevice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]PairedDevice, 0, len(m.devices))
	for _, d := range m.devices {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemStore) RevokeDevice(_ context.Context, deviceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[deviceID]
	if !ok {
		return ErrNotFound
	}
	now := time.Now()
	d.RevokedAt = &now
	m.devices[deviceID] = d
	return nil
}

func (m *MemStore) LookupDeviceByTokenHash(_ context.Context, tokenHash string) (PairedDevice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.devicesByHash[tokenHash]
	if !ok {
		return PairedDevice{}, ErrNotFound
	}
	return m.devices[id], nil
}

func (m *MemStore) PruneEvents(_ context.Context, olderThan time.Time, perWorkflowCap int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoffMillis := olderThan.UnixMilli()
	kept := m.events[:0:0]
	var pruned int64

	byWorkflow := make(map[string][]events.WorkflowEvent)
	for _, e := range m.events {
		byWorkflow[e.WorkflowID] = append(byWorkflow[e.WorkflowID], e)
	}

	for wf, rows := range byWorkflow {
		sort.Slice(rows, func(i, j int) bool { return rows[i].Sequence < rows[j].Sequence })
		survivors := rows
		if e := survivors; len(e) > 0 {
			filtered := make([]events.WorkflowEvent, 0, len(e))
			for _, ev := range e {
				if ev.Timestamp < cutoffMillis {
					pruned++
					continue
				}
				filtered = append(filtered, ev)
			}
			survivors = filtered
		}
		if perWorkflowCap > 0 && len(survivors) > perWorkflowCap {
			excess := len(survivors) - perWorkflowCap
			pruned += int64(excess)
			survivors = survivors[excess:]
		}
		_ = wf
		kept = append(kept, survivors...)
	}

	sort.Slice(kept, func(i, j int) bool {
		if kept[i].WorkflowID != kept[j].WorkflowID {
			return kept[i].WorkflowID < kept[j].WorkflowID
		}
		return kept[i].Sequence < kept[j].Sequence
	})
	m.events = kept
	return pruned, nil
}

func (m *MemStore) PruneExpiredPairingTokens(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var pruned int64
	for hash, tok := range m.pairingTokens {
		if now.After(tok.ExpiresAt) {
			delete(m.pairingTokens, hash)
			pruned++
		}
	}
	return pruned, nil
}

func (m *MemStore) Close() error { return nil }
