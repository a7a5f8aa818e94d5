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

	_ "github.com/go-sql-driver/mysql"
)

// MySQLStore is a MySQL/MariaDB-backed Store (grounded on the teacher's
// graph/store.MySQLStore), for production deployments sharing a database
// server with other services. The DSN format matches
// go-sql-driver/mysql's: "user:pass@tcp(host:3306)/dbname?parseTime=true".
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore opens a connection pool against dsn and migrates the schema.
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}

	s := &MySQLStore{db: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *MySQLStore) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS events (
			id VARCHAR(64) PRIMARY KEY,
			workflow_id VARCHAR(255) NOT NULL,
			sequence BIGINT NOT NULL,
			timestamp BIGINT NOT NULL,
			agent VARCHAR(255) NOT NULL,
			event_type VARCHAR(64) NOT NULL,
			level VARCHAR(16) NOT NULL,
			message TEXT NOT NULL,
			data_json JSON NOT NULL,
			correlation_id VARCHAR(255),
			UNIQUE KEY uq_workflow_sequence (workflow_id, sequence),
			INDEX idx_events_timestamp (timestamp)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
		`CREATE TABLE IF NOT EXISTS checkpoints (
			workflow_id VARCHAR(255) NOT NULL,
			step INT NOT NULL,
			created_at BIGINT NOT NULL,
			state_json JSON NOT NULL,
			PRIMARY KEY (workflow_id, step)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
		`CREATE TABLE IF NOT EXISTS profiles (
			id VARCHAR(255) PRIMARY KEY,
			sandbox_json TEXT NOT NULL,
			agents_json TEXT NOT NULL,
			raw_yaml TEXT NOT NULL
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
		`CREATE TABLE IF NOT EXISTS paired_devices (
			id VARCHAR(64) PRIMARY KEY,
			device_token_hash VARCHAR(255) NOT NULL UNIQUE,
			device_name VARCHAR(255) NOT NULL,
			device_model VARCHAR(255) NOT NULL DEFAULT '',
			paired_at BIGINT NOT NULL,
			last_seen BIGINT NOT NULL,
			revoked_at BIGINT
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
		`CREATE TABLE IF NOT EXISTS pairing_tokens (
			token_hash VARCHAR(255) PRIMARY KEY,
			expires_at BIGINT NOT NULL,
			used_at BIGINT,
			used_by_device_id VARCHAR(64) NOT NULL DEFAULT ''
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (s *MySQLStore) Close() error { return s.db.Close() }

func (s *MySQLStore) Append(ctx context.Context, e events.WorkflowEvent) error {
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

func (s *MySQLStore) Lookup(ctx context.Context, eventID string) (events.WorkflowEvent, bool, error) {
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

func (s *MySQLStore) After(ctx context.Context, workflowID string, sequence int64) ([]events.WorkflowEvent, error) {
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

func (s *MySQLStore) SaveCheckpoint(ctx context.Context, workflowID string, step int, st state.ExecutionState) error {
	stateJSON, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (workflow_id, step, created_at, state_json)
		VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE state_json = VALUES(state_json), created_at = VALUES(created_at)`,
		workflowID, step, time.Now().UnixMilli(), string(stateJSON),
	)
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

func (s *MySQLStore) LoadLatestCheckpoint(ctx context.Context, workflowID string) (Checkpoint, error) {
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

func (s *MySQLStore) LoadCheckpoint(ctx context.Context, workflowID string, step int) (Checkpoint, error) {
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

func (s *MySQLStore) LoadHistory(ctx context.Context, workflowID string) ([]Checkpoint, error) {
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

func (s *MySQLStore) SaveProfile(ctx context.Context, p Profile) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (id, sandbox_json, agents_json, raw_yaml)
		VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE sandbox_json = VALUES(sandbox_json), agents_json = VALUES(agents_json), raw_yaml = VALUES(raw_yaml)`,
		p.ID, string(p.SandboxRaw), string(p.AgentsRaw), string(p.Raw),
	)
	if err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	return nil
}

func (s *MySQLStore) LoadProfile(ctx context.Context, id string) (Profile, error) {
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

func (s *MySQLStore) ListProfiles(ctx context.Context) ([]Profile, error) {
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

func (s *MySQLStore) IssuePairingToken(ctx context.Context, tokenHash string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO pairing_tokens (token_hash, expires_at) VALUES (?, ?)`, tokenHash, expiresAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("issue pairing token: %w", err)
	}
	return nil
}

func (s *MySQLStore) ExchangePairingToken(ctx context.Context, tokenHash string, device PairedDevice) (PairedDevice, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return PairedDevice{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var expiresAtMilli int64
	var usedAtMilli sql.NullInt64
	err = tx.QueryRowContext(ctx, `SELECT expires_at, used_at FROM pairing_tokens WHERE token_hash = ? FOR UPDATE`, tokenHash).
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

	_, err = tx.ExecContext(ctx, `UPDATE pairing_tokens SET used_at = ?, used_by_device_id = ? WHERE token_hash = ?`, now.UnixMilli(), device.ID, tokenHash)
	if err != nil {
		return PairedDevice{}, fmt.Errorf("mark pairing token used: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return PairedDevice{}, fmt.Errorf("commit: %w", err)
	}
	return device, nil
}

func (s *MySQLStore) ListDevices(ctx context.Context) ([]PairedDevice, error) {
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

func (s *MySQLStore) RevokeDevice(ctx context.Context, deviceID string) error {
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

func (s *MySQLStore) LookupDeviceByTokenHash(ctx context.Context, tokenHash string) (PairedDevice, error) {
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

func (s *MySQLStore) PruneEvents(ctx context.Context, olderThan time.Time, perWorkflowCap int) (int64, error) {
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
				DELETE e FROM events e
				JOIN (
					SELECT sequence FROM events WHERE workflow_id = ? ORDER BY sequence DESC LIMIT 18446744073709551615 OFFSET ?
				) overflow ON e.sequence = overflow.sequence AND e.workflow_id = ?`,
				wf, perWorkflowCap, wf)
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

func (s *MySQLStore) PruneExpiredPairingTokens(ctx context.Context, now time.Time) (int64, error) {
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
