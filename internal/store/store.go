// Package store provides the storage interface and implementations for the
// copilot core. The in-memory store (snapshot-persisted JSON) is the
// zero-config default; the Postgres store backs production deployments.
package store

import (
	"context"
	"time"

	"github.com/pressmill/pressmill/copilot-core/pkg/models"
)

// Store is the primary storage interface for the copilot core.
// Everything that must survive a process restart lives behind it:
// pending activities, audit events, task run outcomes, and notification
// channel configuration.
type Store interface {
	ActivityStore
	AuditStore
	TaskRunStore
	ChannelStore

	// Ping checks if the backing store is reachable.
	Ping(ctx context.Context) error

	// Close releases all resources held by the store.
	Close() error
}

// ── Activity Store ──────────────────────────────────────────

// ActivityStore persists pending activities — the durable half of the
// two-phase invoke/resume confirmation workflow.
type ActivityStore interface {
	// CreateActivity persists a new activity record.
	CreateActivity(ctx context.Context, a *models.PendingActivity) error

	// GetActivity returns an activity by id.
	GetActivity(ctx context.Context, id string) (*models.PendingActivity, error)

	// UpdateActivityStatus transitions an activity, stamping confirmation
	// fields and the serialized result. Implementations apply the update
	// atomically with respect to concurrent transitions on the same id.
	UpdateActivityStatus(ctx context.Context, id string, status models.ActivityStatus, confirmed bool, result string) error

	// ListActivities returns activities filtered by status (empty = all),
	// newest first.
	ListActivities(ctx context.Context, status models.ActivityStatus, limit int) ([]models.PendingActivity, error)

	// ListActivitiesByActor returns activities created by one caller.
	ListActivitiesByActor(ctx context.Context, actor string, limit int) ([]models.PendingActivity, error)

	// PruneTerminalActivities deletes terminal-status activities created
	// before the cutoff and returns the deleted records. Pending and
	// executing activities are never pruned.
	PruneTerminalActivities(ctx context.Context, before time.Time) ([]models.PendingActivity, error)
}

// ── Audit Store ─────────────────────────────────────────────

type AuditStore interface {
	// CreateAuditEvent persists an audit event.
	CreateAuditEvent(ctx context.Context, event *models.AuditEvent) error

	// ListAuditEvents returns filtered audit events, newest first.
	ListAuditEvents(ctx context.Context, filter models.AuditFilter) ([]models.AuditEvent, error)

	// PruneAuditEvents deletes audit events recorded before the cutoff
	// and returns the deleted records.
	PruneAuditEvents(ctx context.Context, before time.Time) ([]models.AuditEvent, error)
}

// ── Task Run Store ──────────────────────────────────────────

// TaskRunStore persists per-task run outcomes keyed by task name.
type TaskRunStore interface {
	// RecordTaskRun upserts the run record for a task: first run creates
	// it, later runs bump RunCount and overwrite the last outcome.
	RecordTaskRun(ctx context.Context, run *models.TaskRun) error

	// GetTaskRun returns the run record for a task name.
	GetTaskRun(ctx context.Context, taskName string) (*models.TaskRun, error)

	// ListTaskRuns returns all task run records.
	ListTaskRuns(ctx context.Context) ([]models.TaskRun, error)
}

// ── Channel Store ───────────────────────────────────────────

type ChannelStore interface {
	ListChannels(ctx context.Context) ([]models.NotificationChannel, error)
	GetChannel(ctx context.Context, name string) (*models.NotificationChannel, error)
	UpsertChannel(ctx context.Context, channel *models.NotificationChannel) error
	DeleteChannel(ctx context.Context, name string) error
}

// ── Errors ──────────────────────────────────────────────────

// ErrNotFound is returned when a requested entity does not exist.
type ErrNotFound struct {
	Entity string
	Key    string
}

func (e *ErrNotFound) Error() string {
	return e.Entity + " not found: " + e.Key
}
