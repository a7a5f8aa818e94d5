package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/amelia-orch/amelia/internal/events"
	"github.com/amelia-orch/amelia/internal/state"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is a Postgres-backed Store, for multi-node deployments that
// already run Postgres for other services. None of the pack's example
// repos shipped a Postgres store to imitate directly (the teacher's
// graph/store only covers SQLite/MySQL/memory), so this follows the same
// query shape as SQLiteStore/MySQLStore, adapted to pgx's pool and
// numbered placeholders.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to dsn (a standard "postgres://" URL) and
// migrates the schema.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &PostgresStore{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY,
			workflow_id TEXT NOT NULL,
			sequence BIGINT NOT NULL,
			timestamp BIGINT NOT NULL,
			agent TEXT NOT NULL,
			event_type TEXT NOT NULL,
			level TEXT NOT NULL,
			message TEXT NOT NULL,
			data_json JSONB NOT NULL,
			correlation_id TEXT
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_events_workflow_sequence ON events(workflow_id, sequence)`,
		`CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp)`,
		`CREATE TABLE IF NOT EXISTS checkpoints (
			workflow_id TEXT NOT NULL,
			step INT NOT NULL,
			created_at BIGINT NOT NULL,
			state_json JSONB NOT NULL,
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
			paired_at BIGINT NOT NULL,
			last_seen BIGINT NOT NULL,
			revoked_at BIGINT
		)`,
		`CREATE TABLE IF NOT EXISTS pairing_tokens (
			token_hash TEXT PRIMARY KEY,
			expires_at BIGINT NOT NULL,
			used_at BIGINT,
			used_by_device_id TEXT NOT NULL DEFAULT ''
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) Append(ctx context.Context, e events.WorkflowEvent) error {
	dataJSON, err := json.Marshal(e.Data)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO events (id, workflow_id, sequence, timestamp, agent, event_type, level, message, data_json, correlation_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		e.ID, e.WorkflowID, e.Sequence, e.Timestamp, e.Agent, e.EventType, string(e.Level), e.Message, dataJSON, e.CorrelationID,
	)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

func pgScanEvent(row pgx.Row) (events.WorkflowEvent, error) {
	var (
		e             events.WorkflowEvent
		level         string
		dataJSON      []byte
		correlationID *string
	)
	if err := row.Scan(&e.ID, &e.WorkflowID, &e.Sequence, &e.Timestamp, &e.Agent, &e.EventType, &level, &e.Message, &dataJSON, &correlationID); err != nil {
		return events.WorkflowEvent{}, err
	}
	e.Level = events.Level(level)
	if correlationID != nil {
		e.CorrelationID = *correlationID
	}
	if len(dataJSON) > 0 {
		if err := json.Unmarshal(dataJSON, &e.Data); err != nil {
			return events.WorkflowEvent{}, fmt.Errorf("unmarshal event data: %w", err)
		}
	}
	return e, nil
}

func (s *PostgresStore) Lookup(ctx context.Context, eventID string) (events.WorkflowEvent, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, workflow_id, sequence, timestamp, agent, event_type, level, message, data_json, correlation_id
		FROM events WHERE id = $1`, eventID)
	e, err := pgScanEvent(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return events.WorkflowEvent{}, false, nil
	}
	if err != nil {
		return events.WorkflowEvent{}, false, fmt.Errorf("lookup event: %w", err)
	}
	return e, true, nil
}

func (s *PostgresStore) After(ctx context.Context, workflowID string, sequence int64) ([]events.WorkflowEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, workflow_id, sequence, timestamp, agent, event_type, level, message, data_json, correlation_id
		FROM events WHERE workflow_id = $1 AND sequence > $2 ORDER BY sequence ASC`, workflowID, sequence)
	if err != nil {
		return nil, fmt.Errorf("query events after sequence: %w", err)
	}
	defer rows.Close()

	var out []events.WorkflowEvent
	for rows.Next() {
		e, err := pgScanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *PostgresStore) SaveCheckpoint(ctx context.Context, workflowID string, step int, st state.ExecutionState) error {
	stateJSON, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO checkpoints (workflow_id, step, created_at, state_json)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (workflow_id, step) DO UPDATE SET state_json = excluded.state_json, created_at = excluded.created_at`,
		workflowID, step, time.Now().UnixMilli(), stateJSON,
	)
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

func pgScanCheckpoint(row pgx.Row) (Checkpoint, error) {
	var (
		cp           Checkpoint
		createdMilli int64
		stateJSON    []byte
	)
	if err := row.Scan(&cp.WorkflowID, &cp.Step, &createdMilli, &stateJSON); err != nil {
		return Checkpoint{}, err
	}
	cp.CreatedAt = time.UnixMilli(createdMilli)
	if err := json.Unmarshal(stateJSON, &cp.State); err != nil {
		return Checkpoint{}, fmt.Errorf("unmarshal state: %w", err)
	}
	return cp, nil
}

func (s *PostgresStore) LoadLatestCheckpoint(ctx context.Context, workflowID string) (Checkpoint, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT workflow_id, step, created_at, state_json FROM checkpoints
		WHERE workflow_id = $1 ORDER BY step DESC LIMIT 1`, workflowID)
	cp, err := pgScanCheckpoint(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Checkpoint{}, ErrNotFound
	}
	if err != nil {
		return Checkpoint{}, fmt.Errorf("load latest checkpoint: %w", err)
	}
	return cp, nil
}

func (s *PostgresStore) LoadCheckpoint(ctx context.Context, workflowID string, step int) (Checkpoint, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT workflow_id, step, created_at, state_json FROM checkpoints
		WHERE workflow_id = $1 AND step = $2`, workflowID, step)
	cp, err := pgScanCheckpoint(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Checkpoint{}, ErrNotFound
	}
	if err != nil {
		return Checkpoint{}, fmt.Errorf("load checkpoint: %w", err)
	}
	return cp, nil
}

func (s *PostgresStore) LoadHistory(ctx context.Context, workflowID string) ([]Checkpoint, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT workflow_id, step, created_at, state_json FROM checkpoints
		WHERE workflow_id = $1 ORDER BY step DESC`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	defer rows.Close()

	var out []Checkpoint
	for rows.Next() {
		cp, err := pgScanCheckpoint(rows)
		if err != nil {
			return nil, fmt.Errorf("scan checkpoint: %w", err)
		}
		out = append(out, cp)
	}
	return out, rows.Err()
}

func (s *PostgresStore) SaveProfile(ctx context.Context, p Profile) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO profiles (id, sandbox_json, agents_json, raw_yaml)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET sandbox_json = excluded.sandbox_json, agents_json = excluded.agents_json, raw_yaml = excluded.raw_yaml`,
		p.ID, string(p.SandboxRaw), string(p.AgentsRaw), string(p.Raw),
	)
	if err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	return nil
}

func (s *PostgresStore) LoadProfile(ctx context.Context, id string) (Profile, error) {
	var p Profile
	var sandboxJSON, agentsJSON, rawYAML string
	err := s.pool.QueryRow(ctx, `SELECT id, sandbox_json, agents_json, raw_yaml FROM profiles WHERE id = $1`, id).
		Scan(&p.ID, &sandboxJSON, &agentsJSON, &rawYAML)
	if errors.Is(err, pgx.ErrNoRows) {
		return Profile{}, ErrNotFound
	}
	if err != nil {
		return Profile{}, fmt.Errorf("load profile: %w", err)
	}
	p.SandboxRaw, p.AgentsRaw, p.Raw = []byte(sandboxJSON), []byte(agentsJSON), []byte(rawYAML)
	return p, nil
}

func (s *PostgresStore) ListProfiles(ctx context.Context) ([]Profile, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, sandbox_json, agents_json, raw_yaml FROM profiles ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()

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

func (s *PostgresStore) IssuePairingToken(ctx context.Context, tokenHash string, expiresAt time.Time) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO pairing_tokens (token_hash, expires_at) VALUES ($1, $2)`, tokenHash, expiresAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("issue pairing token: %w", err)
	}
	return nil
}

func (s *PostgresStore) ExchangePairingToken(ctx context.Context, tokenHash string, device PairedDevice) (PairedDevice, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return PairedDevice{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var expiresAtMilli int64
	var usedAtMilli *int64
	err = tx.QueryRow(ctx, `SELECT expires_at, used_at FROM pairing_tokens WHERE token_hash = $1 FOR UPDATE`, tokenHash).
		Scan(&expiresAtMilli, &usedAtMilli)
	if errors.Is(err, pgx.ErrNoRows) {
		return PairedDevice{}, ErrNotFound
	}
	if err != nil {
		return PairedDevice{}, fmt.Errorf("load pairing token: %w", err)
	}
	if usedAtMilli != nil {
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

	_, err = tx.Exec(ctx, `
		INSERT INTO paired_devices (id, device_token_hash, device_name, device_model, paired_at, last_seen, revoked_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULL)`,
		device.ID, device.DeviceTokenHash, device.DeviceName, device.DeviceModel, now.UnixMilli(), now.UnixMilli(),
	)
	if err != nil {
		return PairedDevice{}, fmt.Errorf("insert device: %w", err)
	}

	_, err = tx.Exec(ctx, `UPDATE pairing_tokens SET used_at = $1, used_by_device_id = $2 WHERE token_hash = $3`, now.UnixMilli(), device.ID, tokenHash)
	if err != nil {
		return PairedDevice{}, fmt.Errorf("mark pairing token used: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return PairedDevice{}, fmt.Errorf("commit: %w", err)
	}
	return device, nil
}

func pgScanDevice(row pgx.Row) (PairedDevice, error) {
	var (
		d                     PairedDevice
		pairedMilli, lastSeen int64
		revokedMilli          *int64
	)
	if err := row.Scan(&d.ID, &d.DeviceTokenHash, &d.DeviceName, &d.DeviceModel, &pairedMilli, &lastSeen, &revokedMilli); err != nil {
		return PairedDevice{}, err
	}
	d.PairedAt = time.UnixMilli(pairedMilli)
	d.LastSeen = time.UnixMilli(lastSeen)
	if revokedMilli != nil {
		t := time.UnixMilli(*revokedMilli)
		d.RevokedAt = &t
	}
	return d, nil
}

func (s *PostgresStore) ListDevices(ctx context.Context) ([]PairedDevice, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, device_token_hash, device_name, device_model, paired_at, last_seen, revoked_at
		FROM paired_devices ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	defer rows.Close()

	var out []PairedDevice
	for rows.Next() {
		d, err := pgScanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scan device: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *PostgresStore) RevokeDevice(ctx context.Context, deviceID string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE paired_devices SET revoked_at = $1 WHERE id = $2`, time.Now().UnixMilli(), deviceID)
	if err != nil {
		return fmt.Errorf("revoke device: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) LookupDeviceByTokenHash(ctx context.Context, tokenHash string) (PairedDevice, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, device_token_hash, device_name, device_model, paired_at, last_seen, revoked_at
		FROM paired_devices WHERE device_token_hash = $1`, tokenHash)
	d, err := pgScanDevice(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return PairedDevice{}, ErrNotFound
	}
	if err != nil {
		return PairedDevice{}, fmt.Errorf("lookup device by token hash: %w", err)
	}
	return d, nil
}

func (s *PostgresStore) PruneEvents(ctx context.Context, olderThan time.Time, perWorkflowCap int) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM events WHERE timestamp < $1`, olderThan.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("prune events by age: %w", err)
	}
	pruned := tag.RowsAffected()

	if perWorkflowCap > 0 {
		capTag, err := s.pool.Exec(ctx, `
			DELETE FROM events WHERE id IN (
				SELECT id FROM (
					SELECT id, ROW_NUMBER() OVER (PARTITION BY workflow_id ORDER BY sequence DESC) AS rn
					FROM events
				) ranked WHERE rn > $1
			)`, perWorkflowCap)
		if err != nil {
			return pruned, fmt.Errorf("prune events over cap: %w", err)
		}
		pruned += capTag.RowsAffected()
	}

	return pruned, nil
}

func (s *PostgresStore) PruneExpiredPairingTokens(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM pairing_tokens WHERE expires_at < $1`, now.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("prune expired pairing tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}
