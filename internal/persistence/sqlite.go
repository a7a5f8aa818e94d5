package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/amelia-orch/amelia/internal/events"
	"github.com/amelia-orch/amelia/internal/state"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore is the default Store backend (grounded on the teacher's
// graph/store.SQLiteStore): a single-file database with WAL mode for
// concurrent reads, good for development, single-node deployments, and the
// CLI's zero-config default.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore opens (and migrates) a SQLite-backed Store. Pass ":memory:"
// for an ephemeral database, as the teacher's constructor also supports.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	s := &SQLiteStore{db: db, path: path}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY,
			workflow_id TEXT NOT NULL,
			sequence INTEGER NOT NULL,
			timestamp INTEGER NOT NULL,
			agent TEXT NOT NULL,
			event_type TEXT NOT NULL,
			level TEXT NOT NULL,
			message TEXT NOT NULL,
			data_json TEXT NOT NULL,
			correlation_id TEXT
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_events_workflow_sequence ON events(workflow_id, sequence)`,
		`CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp)`,
		`CREATE TABLE IF NOT EXISTS checkpoints (
			workflow_id TEXT NOT NULL,
			step INTEGER NOT NULL,
			created_at INTEGER NOT NULL,
			state_json TEXT NOT NULL,
			PRIMARY KEY (workflow_id, step)
		)`,
		`CREATE TABLE IF NOT EXISTS profiles (
			id TEXT PRIMARY KEY,
			sandbox_json TEXT NOT NULL DEFAULT '',
			agents_json TEXT NOT NULL DEFAULT '',
			raw_yaml TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS paired_devices (
			id TEXT PRIMARY KEY,
			device_token_hash TEXT NOT NULL UNIQUE,
			device_name TEXT NOT NULL,
			device_model TEXT NOT NULL DEFAULT '',
			paired_at INTEGER NOT NULL,
			last_seen INTEGER NOT NULL,
			revoked_at INTEGER
		)`,
		`CREATE TABLE IF NOT EXISTS pairing_tokens (
			token_hash TEXT PRIMARY KEY,
			expires_at INTEGER NOT NULL,
			used_at INTEGER,
			used_by_device_id TEXT NOT NULL DEFAULT ''
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) Append(ctx context.Context, e events.WorkflowEvent) error {
	dataJSON, err := json.Marshal(e.Data)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO events (id, workflow_id, sequence, timestamp, agent, event_type, level, message, data_json, correlation_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.WorkflowID, e.Sequence, e.Timestamp, e.Agent, e.EventType, string(e.Level), e.Message, string(dataJSON), e.CorrelationID,
	)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

func scanEvent(row interface {
	Scan(dest ...interface{}) error
}) (events.WorkflowEvent, error) {
	var (
		e             events.WorkflowEvent
		level         string
		dataJSON      string
		correlationID sql.NullString
	)
	if err := row.Scan(&e.ID, &e.WorkflowID, &e.Sequence, &e.Timestamp, &e.Agent, &e.EventType, &level, &e.Message, &dataJSON, &correlationID); err != nil {
		return events.WorkflowEvent{}, err
	}
	e.Level = events.Level(level)
	if correlationID.Valid {
		e.CorrelationID = correlationID.String
	}
	if dataJSON != "" && dataJSON != "null" {
		if err := json.Unmarshal([]byte(dataJSON), &e.Data); err != nil {
			return events.WorkflowEvent{}, fmt.Errorf("unmarshal event data: %w", err)
		}
	}
	return e, nil
}

func (s *SQLiteStore) Lookup(ctx context.Context, eventID string) (events.WorkflowEvent, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, workflow_id, sequence, timestamp, agent, event_type, level, message, data_json, correlation_id
		FROM events WHERE id = ?`, eventID)
	e, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return events.WorkflowEvent{}, false, nil
	}
	if err != nil {
		return events.WorkflowEvent{}, false, fmt.Errorf("lookup event: %w", err)
	}
	return e, true, nil
}

func (s *SQLiteStore) After(ctx context.Context, workflowID string, sequence int64) ([]events.WorkflowEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, workflow_id, sequence, timestamp, agent, event_type, level, message, data_json, correlation_id
		FROM events WHERE workflow_id = ? AND sequence > ? ORDER BY sequence ASC`, workflowID, sequence)
	if err != nil {
		return nil, fmt.Errorf("query events after sequence: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []events.WorkflowEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SaveCheckpoint(ctx context.Context, workflowID string, step int, st state.ExecutionState) error {
	stateJSON, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (workflow_id, step, created_at, state_json)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(workflow_id, step) DO UPDATE SET state_json = excluded.state_json, created_at = excluded.created_at`,
		workflowID, step, time.Now().UnixMilli(), string(stateJSON),
	)
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

func scanCheckpoint(row interface {
	Scan(dest ...interface{}) error
}) (Checkpoint, error) {
	var (
		cp           Checkpoint
		createdMilli int64
		stateJSON    string
	)
	if err := row.Scan(&cp.WorkflowID, &cp.Step, &createdMilli, &stateJSON); err != nil {
		return Checkpoint{}, err
	}
	cp.CreatedAt = time.UnixMilli(createdMilli)
	if err := json.Unmarshal([]byte(stateJSON), &cp.State); err != nil {
		return Checkpoint{}, fmt.Errorf("unmarshal state: %w", err)
	}
	return cp, nil
}

func (s *SQLiteStore) LoadLatestCheckpoint(ctx context.Context, workflowID string) (Checkpoint, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT workflow_id, step, created_at, state_json FROM checkpoints
		WHERE workflow_id = ? ORDER BY step DESC LIMIT 1`, workflowID)
	cp, err := scanCheckpoint(row)
	if err == sql.ErrNoRows {
		return Checkpoint{}, ErrNotFound
	}
	if err != nil {
		return Checkpoint{}, fmt.Errorf("load latest checkpoint: %w", err)
	}
	return cp, nil
}

func (s *SQLiteStore) LoadCheckpoint(ctx context.Context, workflowID string, step int) (Checkpoint, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT workflow_id, step, created_at, state_json FROM checkpoints
		WHERE workflow_id = ? AND step = ?`, workflowID, step)
	cp, err := scanCheckpoint(row)
	if err == sql.ErrNoRows {
		return Checkpoint{}, ErrNotFound
	}
	if err != nil {
		return Checkpoint{}, fmt.Errorf("load checkpoint: %w", err)
	}
	return cp, nil
}

func (s *SQLiteStore) LoadHistory(ctx context.Context, workflowID string) ([]Checkpoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT workflow_id, step, created_at, state_json FROM checkpoints
		WHERE workflow_id = ? ORDER BY step DESC`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Checkpoint
	for rows.Next() {
		cp, err := scanCheckpoint(rows)
		if err != nil {
			return nil, fmt.Errorf("scan checkpoint: %w", err)
		}
		out = append(out, cp)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SaveProfile(ctx context.Context, p Profile) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (id, sandbox_json, agents_json, raw_yaml)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET sandbox_json = excluded.sandbox_json, agents_json = excluded.agents_json, raw_yaml = excluded.raw_yaml`,
		p.ID, string(p.SandboxRaw), string(p.AgentsRaw), string(p.Raw),
	)
	if err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	return nil
}

func (s *SQLiteStore) LoadProfile(ctx context.Context, id string) (Profile, error) {
	var p Profile
	var sandboxJSON, agentsJSON, rawYAML string
	err := s.db.QueryRowContext(ctx, `SELECT id, sandbox_json, agents_json, raw_yaml FROM profiles WHERE id = ?`, id).
		Scan(&p.ID, &sandboxJSON, &agentsJSON, &rawYAML)
	if err == sql.ErrNoRows {
		return Profile{}, ErrNotFound
	}
	if err != nil {
		return Profile{}, fmt.Errorf("load profile: %w", err)
	}
	p.SandboxRaw, p.AgentsRaw, p.Raw = []byte(sandboxJSON), []byte(agentsJSON), []byte(rawYAML)
	return p, nil
}

func (s *SQLiteStore) ListProfiles(ctx context.Context) ([]Profile, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, sandbox_json, agents_json, raw_yaml FROM profiles ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Profile
	for rows.Next() {
		var p Profile
		var sandboxJSON, agentsJSON, rawYAML string
		if err := rows.Scan(&p.ID, &sandboxJSON, &agentsJSON, &rawYAML); err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		p.SandboxRaw, p.AgentsRaw, p.Raw = []byte(sandboxJSON), []byte(agentsJSON), []byte(rawYAML)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) IssuePairingToken(ctx context.Context, tokenHash string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pairing_tokens (token_hash, expires_at) VALUES (?, ?)`,
		tokenHash, expiresAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("issue pairing token: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ExchangePairingToken(ctx context.Context, tokenHash string, device PairedDevice) (PairedDevice, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return PairedDevice{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var expiresAtMilli int64
	var usedAtMilli sql.NullInt64
	err = tx.QueryRowContext(ctx, `SELECT expires_at, used_at FROM pairing_tokens WHERE token_hash = ?`, tokenHash).
		Scan(&expiresAtMilli, &usedAtMilli)
	if err == sql.ErrNoRows {
		return PairedDevice{}, ErrNotFound
	}
	if err != nil {
		return PairedDevice{}, fmt.Errorf("load pairing token: %w", err)
	}
	if usedAtMilli.Valid {
		return PairedDevice{}, ErrTokenUsed
	}
	if time.Now().After(time.UnixMilli(expiresAtMilli)) {
		return PairedDevice{}, ErrNotFound
	}

	if device.ID == "" {
		device.ID = uuid.NewString()
	}
	now := time.Now()
	device.PairedAt, device.LastSeen = now, now

	_, err = tx.ExecContext(ctx, `
		INSERT INTO paired_devices (id, device_token_hash, device_name, device_model, paired_at, last_seen, revoked_at)
		VALUES (?, ?, ?, ?, ?, ?, NULL)`,
		device.ID, device.DeviceTokenHash, device.DeviceName, device.DeviceModel, now.UnixMilli(), now.UnixMilli(),
	)
	if err != nil {
		return PairedDevice{}, fmt.Errorf("insert device: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE pairing_tokens SET used_at = ?, used_by_device_id = ? WHERE token_hash = ?`,
		now.UnixMilli(), device.ID, tokenHash,
	)
	if err != nil {
		return PairedDevice{}, fmt.Errorf("mark pairing token used: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return PairedDevice{}, fmt.Errorf("commit: %w", err)
	}
	return device, nil
}

func scanDevice(row interface {
	Scan(dest ...interface{}) error
}) (PairedDevice, error) {
	var (
		d                     PairedDevice
		pairedMilli, lastSeen int64
		revokedMilli          sql.NullInt64
	)
	if err := row.Scan(&d.ID, &d.DeviceTokenHash, &d.DeviceName, &d.DeviceModel, &pairedMilli, &lastSeen, &revokedMilli); err != nil {
		return PairedDevice{}, err
	}
	d.PairedAt = time.UnixMilli(pairedMilli)
	d.LastSeen = time.UnixMilli(lastSeen)
	if revokedMilli.Valid {
		t := time.UnixMilli(revokedMilli.Int64)
		d.RevokedAt = &t
	}
	return d, nil
}

func (s *SQLiteStore) ListDevices(ctx context.Context) ([]PairedDevice, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, device_token_hash, device_name, device_model, paired_at, last_seen, revoked_at
		FROM paired_devices ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []PairedDevice
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scan device: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) RevokeDevice(ctx context.Context, deviceID string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE paired_devices SET revoked_at = ? WHERE id = ?`, time.Now().UnixMilli(), deviceID)
	if err != nil {
		return fmt.Errorf("revoke device: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("revoke device: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) LookupDeviceByTokenHash(ctx context.Context, tokenHash string) (PairedDevice, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, device_token_hash, device_name, device_model, paired_at, last_seen, revoked_at
		FROM paired_devices WHERE device_token_hash = ?`, tokenHash)
	d, err := scanDevice(row)
	if err == sql.ErrNoRows {
		return PairedDevice{}, ErrNotFound
	}
	if err != nil {
		return PairedDevice{}, fmt.Errorf("lookup device by token hash: %w", err)
	}
	return d, nil
}

func (s *SQLiteStore) PruneEvents(ctx context.Context, olderThan time.Time, perWorkflowCap int) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE timestamp < ?`, olderThan.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("prune events by age: %w", err)
	}
	pruned, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune events by age: %w", err)
	}

	if perWorkflowCap > 0 {
		rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT workflow_id FROM events`)
		if err != nil {
			return pruned, fmt.Errorf("list workflow ids: %w", err)
		}
		var workflowIDs []string
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				_ = rows.Close()
				return pruned, fmt.Errorf("scan workflow id: %w", err)
			}
			workflowIDs = append(workflowIDs, id)
		}
		_ = rows.Close()

		for _, wf := range workflowIDs {
			res, err := s.db.ExecContext(ctx, `
				DELETE FROM events WHERE workflow_id = ? AND sequence NOT IN (
					SELECT sequence FROM events WHERE workflow_id = ? ORDER BY sequence DESC LIMIT ?
				)`, wf, wf, perWorkflowCap)
			if err != nil {
				return pruned, fmt.Errorf("prune events over cap: %w", err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return pruned, fmt.Errorf("prune events over cap: %w", err)
			}
			pruned += n
		}
	}

	return pruned, nil
}

func (s *SQLiteStore) PruneExpiredPairingTokens(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM pairing_tokens WHERE expires_at < ?`, now.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("prune expired pairing tokens: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune expired pairing tokens: %w", err)
	}
	return n, nil
}
