// Package persistence implements the three stores behind Amelia's database
// (spec.md §4.7): the append-only event log, per-step state checkpoints for
// resume and time-travel, and the profile/paired-device/pairing-token
// stores backing the pairing flow (spec.md §6.1, §6.4).
package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/amelia-orch/amelia/internal/events"
	"github.com/amelia-orch/amelia/internal/state"
)

// ErrNotFound is returned by every lookup method when the requested row
// does not exist. Callers branch on it with errors.Is.
var ErrNotFound = errors.New("persistence: not found")

// ErrTokenUsed is returned by ExchangePairingToken when the token has
// already been consumed (HTTP 410 per spec.md §6.1).
var ErrTokenUsed = errors.New("persistence: pairing token already used")

// Checkpoint is one saved step of a workflow's ExecutionState.
type Checkpoint struct {
	WorkflowID string
	Step       int
	CreatedAt  time.Time
	State      state.ExecutionState
}

// Profile is the persisted form of a YAML profile (spec.md §6.3/§6.4). The
// raw JSON blobs are stored alongside parsed identity fields so the config
// loader can round-trip a profile exactly as authored.
type Profile struct {
	ID         string
	SandboxRaw []byte
	AgentsRaw  []byte
	Raw        []byte
}

// PairedDevice is a device that completed the pairing exchange.
type PairedDevice struct {
	ID              string
	DeviceTokenHash string
	DeviceName      string
	DeviceModel     string
	PairedAt        time.Time
	LastSeen        time.Time
	RevokedAt       *time.Time
}

// PairingToken is a one-time, 60s-TTL token issued by /api/pair/generate.
type PairingToken struct {
	TokenHash      string
	ExpiresAt      time.Time
	UsedAt         *time.Time
	UsedByDeviceID string
}

// EventLog is the append-only event store. It satisfies
// internal/events.EventLog structurally, so a Store can be handed directly
// to events.NewBus without either package importing the other's concrete
// type.
type EventLog interface {
	Append(ctx context.Context, e events.WorkflowEvent) error
	Lookup(ctx context.Context, eventID string) (events.WorkflowEvent, bool, error)
	After(ctx context.Context, workflowID string, sequence int64) ([]events.WorkflowEvent, error)
}

// CheckpointStore persists one ExecutionState snapshot per (workflow_id,
// step). LoadHistory returns every checkpoint for a workflow newest-first,
// satisfying the time-travel requirement of spec.md §4.7.
type CheckpointStore interface {
	SaveCheckpoint(ctx context.Context, workflowID string, step int, s state.ExecutionState) error
	LoadLatestCheckpoint(ctx context.Context, workflowID string) (Checkpoint, error)
	LoadCheckpoint(ctx context.Context, workflowID string, step int) (Checkpoint, error)
	LoadHistory(ctx context.Context, workflowID string) ([]Checkpoint, error)
}

// ProfileStore persists parsed YAML profiles so the HTTP API and CLI can
// look one up by id without re-reading the config file.
type ProfileStore interface {
	SaveProfile(ctx context.Context, p Profile) error
	LoadProfile(ctx context.Context, id string) (Profile, error)
	ListProfiles(ctx context.Context) ([]Profile, error)
}

// PairingStore backs the device-pairing flow (spec.md §6.1): issuing
// short-lived pairing tokens, exchanging them exactly once for a device
// token, listing paired devices, and revoking them.
type PairingStore interface {
	IssuePairingToken(ctx context.Context, tokenHash string, expiresAt time.Time) error
	ExchangePairingToken(ctx context.Context, tokenHash string, device PairedDevice) (PairedDevice, error)
	ListDevices(ctx context.Context) ([]PairedDevice, error)
	RevokeDevice(ctx context.Context, deviceID string) error
	LookupDeviceByTokenHash(ctx context.Context, tokenHash string) (PairedDevice, error)
}

// Retention sweeps expired rows out of the event log and pairing-token
// table (spec.md §4.7: "expired pairing tokens are swept hourly"; event log
// retention is time-based plus an optional per-workflow count cap).
type Retention interface {
	PruneEvents(ctx context.Context, olderThan time.Time, perWorkflowCap int) (int64, error)
	PruneExpiredPairingTokens(ctx context.Context, now time.Time) (int64, error)
}

// Store is the full persistence surface a server wires at startup. Each
// backend (memory, SQLite, Postgres, MySQL) implements all five facets
// against one underlying connection.
type Store interface {
	EventLog
	CheckpointStore
	ProfileStore
	PairingStore
	Retention

	Close() error
}
