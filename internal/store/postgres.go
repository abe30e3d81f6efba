// Package store — PostgreSQL Store implementation backed by pgx.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pressmill/pressmill/copilot-core/pkg/models"
	"github.com/rs/zerolog/log"
)

// schemaSQL bootstraps the copilot schema. Idempotent; ran on every Open.
const schemaSQL = `
CREATE SCHEMA IF NOT EXISTS copilot;

CREATE TABLE IF NOT EXISTS copilot.activities (
	id                    TEXT PRIMARY KEY,
	tool_name             TEXT NOT NULL,
	arguments             JSONB NOT NULL DEFAULT '{}'::jsonb,
	status                TEXT NOT NULL,
	requires_confirmation BOOLEAN NOT NULL DEFAULT FALSE,
	confirmed             BOOLEAN NOT NULL DEFAULT FALSE,
	actor                 TEXT,
	result                JSONB,
	confirmed_at          TIMESTAMPTZ,
	created_at            TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_activities_status ON copilot.activities (status);
CREATE INDEX IF NOT EXISTS idx_activities_actor ON copilot.activities (actor);

CREATE TABLE IF NOT EXISTS copilot.audit_events (
	id          TEXT PRIMARY KEY,
	ts          TIMESTAMPTZ NOT NULL DEFAULT now(),
	actor       TEXT NOT NULL,
	role        TEXT,
	tool_name   TEXT NOT NULL,
	activity_id TEXT,
	success     BOOLEAN NOT NULL,
	error       TEXT,
	details     JSONB
);
CREATE INDEX IF NOT EXISTS idx_audit_events_ts ON copilot.audit_events (ts DESC);

CREATE TABLE IF NOT EXISTS copilot.task_runs (
	task_name   TEXT PRIMARY KEY,
	status      TEXT NOT NULL,
	result      TEXT,
	error       TEXT,
	duration_ms BIGINT NOT NULL DEFAULT 0,
	run_count   INTEGER NOT NULL DEFAULT 0,
	last_run_at TIMESTAMPTZ,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS copilot.channels (
	name       TEXT PRIMARY KEY,
	kind       TEXT NOT NULL,
	url        TEXT,
	secret     TEXT,
	address    TEXT,
	filter     TEXT,
	config     JSONB,
	enabled    BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// PostgresStore implements Store on a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to the database, verifies connectivity, and
// bootstraps the schema.
func OpenPostgres(ctx context.Context, dsn string, maxConns int) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = int32(maxConns)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctxPing); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("bootstrap schema: %w", err)
	}

	log.Info().Msg("Postgres store connected")
	return &PostgresStore{pool: pool}, nil
}

// ── Activity Store ──────────────────────────────────────────

func (s *PostgresStore) CreateActivity(ctx context.Context, a *models.PendingActivity) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO copilot.activities
			(id, tool_name, arguments, status, requires_confirmation, confirmed, actor, result, confirmed_at, created_at)
		VALUES ($1,$2,$3::jsonb,$4,$5,$6,$7,NULLIF($8,'')::jsonb,$9,$10)
	`, a.ID, a.ToolName, jsonOrEmpty(a.Arguments), a.Status, a.RequiresConfirmation,
		a.Confirmed, a.Actor, a.Result, a.ConfirmedAt, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetActivity(ctx context.Context, id string) (*models.PendingActivity, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, tool_name, arguments, status, requires_confirmation, confirmed,
		       COALESCE(actor,''), COALESCE(result::text,''), confirmed_at, created_at
		FROM copilot.activities WHERE id = $1
	`, id)
	a, err := scanActivity(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &ErrNotFound{Entity: "activity", Key: id}
		}
		return nil, fmt.Errorf("get activity: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) UpdateActivityStatus(ctx context.Context, id string, status models.ActivityStatus, confirmed bool, result string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE copilot.activities
		SET status = $2,
		    confirmed = confirmed OR $3,
		    confirmed_at = CASE WHEN $3 AND confirmed_at IS NULL THEN now() ELSE confirmed_at END,
		    result = CASE WHEN $4 <> '' THEN $4::jsonb ELSE result END
		WHERE id = $1
	`, id, status, confirmed, result)
	if err != nil {
		return fmt.Errorf("update activity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &ErrNotFound{Entity: "activity", Key: id}
	}
	return nil
}

func (s *PostgresStore) ListActivities(ctx context.Context, status models.ActivityStatus, limit int) ([]models.PendingActivity, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, tool_name, arguments, status, requires_confirmation, confirmed,
		       COALESCE(actor,''), COALESCE(result::text,''), confirmed_at, created_at
		FROM copilot.activities
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC
		LIMIT $2
	`, string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	defer rows.Close()
	return collectActivities(rows)
}

func (s *PostgresStore) ListActivitiesByActor(ctx context.Context, actor string, limit int) ([]models.PendingActivity, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, tool_name, arguments, status, requires_confirmation, confirmed,
		       COALESCE(actor,''), COALESCE(result::text,''), confirmed_at, created_at
		FROM copilot.activities
		WHERE actor = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, actor, limit)
	if err != nil {
		return nil, fmt.Errorf("list activities by actor: %w", err)
	}
	defer rows.Close()
	return collectActivities(rows)
}

func (s *PostgresStore) PruneTerminalActivities(ctx context.Context, before time.Time) ([]models.PendingActivity, error) {
	rows, err := s.pool.Query(ctx, `
		DELETE FROM copilot.activities
		WHERE status IN ('executed','failed','rejected') AND created_at < $1
		RETURNING id, tool_name, arguments, status, requires_confirmation, confirmed,
		          COALESCE(actor,''), COALESCE(result::text,''), confirmed_at, created_at
	`, before)
	if err != nil {
		return nil, fmt.Errorf("prune activities: %w", err)
	}
	defer rows.Close()
	return collectActivities(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanActivity(row rowScanner) (*models.PendingActivity, error) {
	var a models.PendingActivity
	err := row.Scan(&a.ID, &a.ToolName, &a.Arguments, &a.Status, &a.RequiresConfirmation,
		&a.Confirmed, &a.Actor, &a.Result, &a.ConfirmedAt, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func collectActivities(rows pgx.Rows) ([]models.PendingActivity, error) {
	out := make([]models.PendingActivity, 0)
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// ── Audit Store ─────────────────────────────────────────────

func (s *PostgresStore) CreateAuditEvent(ctx context.Context, event *models.AuditEvent) error {
	details, _ := json.Marshal(event.Details)
	_, err := s.pool.Exec(ctx, `
		INSERT INTO copilot.audit_events (id, ts, actor, role, tool_name, activity_id, success, error, details)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9::jsonb)
	`, event.ID, event.Timestamp, event.Actor, event.Role, event.ToolName,
		event.ActivityID, event.Success, event.Error, details)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAuditEvents(ctx context.Context, filter models.AuditFilter) ([]models.AuditEvent, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, ts, actor, COALESCE(role,''), tool_name, COALESCE(activity_id,''),
		       success, COALESCE(error,''), COALESCE(details,'{}'::jsonb)
		FROM copilot.audit_events
		WHERE ($1 = '' OR actor = $1)
		  AND ($2 = '' OR tool_name = $2)
		  AND ($3::timestamptz IS NULL OR ts >= $3)
		  AND ($4::timestamptz IS NULL OR ts <= $4)
		ORDER BY ts DESC
		LIMIT $5 OFFSET $6
	`, filter.Actor, filter.ToolName, filter.Since, filter.Until, limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	out := make([]models.AuditEvent, 0)
	for rows.Next() {
		var e models.AuditEvent
		var details []byte
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.Actor, &e.Role, &e.ToolName,
			&e.ActivityID, &e.Success, &e.Error, &details); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		if len(details) > 0 {
			_ = json.Unmarshal(details, &e.Details)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *PostgresStore) PruneAuditEvents(ctx context.Context, before time.Time) ([]models.AuditEvent, error) {
	rows, err := s.pool.Query(ctx, `
		DELETE FROM copilot.audit_events
		WHERE ts < $1
		RETURNING id, ts, actor, COALESCE(role,''), tool_name, COALESCE(activity_id,''),
		          success, COALESCE(error,''), COALESCE(details,'{}'::jsonb)
	`, before)
	if err != nil {
		return nil, fmt.Errorf("prune audit events: %w", err)
	}
	defer rows.Close()

	out := make([]models.AuditEvent, 0)
	for rows.Next() {
		var e models.AuditEvent
		var details []byte
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.Actor, &e.Role, &e.ToolName,
			&e.ActivityID, &e.Success, &e.Error, &details); err != nil {
			return nil, fmt.Errorf("scan pruned audit event: %w", err)
		}
		if len(details) > 0 {
			_ = json.Unmarshal(details, &e.Details)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ── Task Run Store ──────────────────────────────────────────

func (s *PostgresStore) RecordTaskRun(ctx context.Context, run *models.TaskRun) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO copilot.task_runs (task_name, status, result, error, duration_ms, run_count, last_run_at, created_at)
		VALUES ($1,$2,$3,$4,$5,1,$6,now())
		ON CONFLICT (task_name) DO UPDATE SET
			status = EXCLUDED.status,
			result = EXCLUDED.result,
			error = EXCLUDED.error,
			duration_ms = EXCLUDED.duration_ms,
			run_count = copilot.task_runs.run_count + 1,
			last_run_at = EXCLUDED.last_run_at
	`, run.TaskName, run.Status, run.Result, run.Error, run.DurationMs, run.LastRunAt)
	if err != nil {
		return fmt.Errorf("record task run: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetTaskRun(ctx context.Context, taskName string) (*models.TaskRun, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT task_name, status, COALESCE(result,''), COALESCE(error,''),
		       duration_ms, run_count, COALESCE(last_run_at, created_at), created_at
		FROM copilot.task_runs WHERE task_name = $1
	`, taskName)
	var r models.TaskRun
	err := row.Scan(&r.TaskName, &r.Status, &r.Result, &r.Error,
		&r.DurationMs, &r.RunCount, &r.LastRunAt, &r.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &ErrNotFound{Entity: "task run", Key: taskName}
		}
		return nil, fmt.Errorf("get task run: %w", err)
	}
	return &r, nil
}

func (s *PostgresStore) ListTaskRuns(ctx context.Context) ([]models.TaskRun, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT task_name, status, COALESCE(result,''), COALESCE(error,''),
		       duration_ms, run_count, COALESCE(last_run_at, created_at), created_at
		FROM copilot.task_runs ORDER BY task_name
	`)
	if err != nil {
		return nil, fmt.Errorf("list task runs: %w", err)
	}
	defer rows.Close()

	out := make([]models.TaskRun, 0)
	for rows.Next() {
		var r models.TaskRun
		if err := rows.Scan(&r.TaskName, &r.Status, &r.Result, &r.Error,
			&r.DurationMs, &r.RunCount, &r.LastRunAt, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan task run: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ── Channel Store ───────────────────────────────────────────

func (s *PostgresStore) ListChannels(ctx context.Context) ([]models.NotificationChannel, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT name, kind, COALESCE(url,''), COALESCE(secret,''), COALESCE(address,''),
		       COALESCE(filter,''), COALESCE(config,'{}'::jsonb), enabled, created_at, updated_at
		FROM copilot.channels ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	defer rows.Close()

	out := make([]models.NotificationChannel, 0)
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *ch)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetChannel(ctx context.Context, name string) (*models.NotificationChannel, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT name, kind, COALESCE(url,''), COALESCE(secret,''), COALESCE(address,''),
		       COALESCE(filter,''), COALESCE(config,'{}'::jsonb), enabled, created_at, updated_at
		FROM copilot.channels WHERE name = $1
	`, name)
	ch, err := scanChannel(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &ErrNotFound{Entity: "channel", Key: name}
		}
		return nil, err
	}
	return ch, nil
}

func (s *PostgresStore) UpsertChannel(ctx context.Context, channel *models.NotificationChannel) error {
	config, _ := json.Marshal(channel.Config)
	_, err := s.pool.Exec(ctx, `
		INSERT INTO copilot.channels (name, kind, url, secret, address, filter, config, enabled, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7::jsonb,$8,now(),now())
		ON CONFLICT (name) DO UPDATE SET
			kind = EXCLUDED.kind,
			url = EXCLUDED.url,
			secret = EXCLUDED.secret,
			address = EXCLUDED.address,
			filter = EXCLUDED.filter,
			config = EXCLUDED.config,
			enabled = EXCLUDED.enabled,
			updated_at = now()
	`, channel.Name, channel.Kind, channel.URL, channel.Secret, channel.Address,
		channel.Filter, config, channel.Enabled)
	if err != nil {
		return fmt.Errorf("upsert channel: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteChannel(ctx context.Context, name string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM copilot.channels WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("delete channel: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &ErrNotFound{Entity: "channel", Key: name}
	}
	return nil
}

func scanChannel(row rowScanner) (*models.NotificationChannel, error) {
	var ch models.NotificationChannel
	var config []byte
	err := row.Scan(&ch.Name, &ch.Kind, &ch.URL, &ch.Secret, &ch.Address,
		&ch.Filter, &config, &ch.Enabled, &ch.CreatedAt, &ch.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(config) > 0 {
		_ = json.Unmarshal(config, &ch.Config)
	}
	return &ch, nil
}

// ── Lifecycle ───────────────────────────────────────────────

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func jsonOrEmpty(raw string) string {
	if raw == "" {
		return "{}"
	}
	return raw
}
