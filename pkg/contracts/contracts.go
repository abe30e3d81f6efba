// Package contracts defines the service interfaces for the copilot core.
//
// These interfaces form the boundary between the automation core and the
// rest of the Pressmill platform. The core ships concrete implementations
// for everything it owns (execution engine, scheduler, health engine,
// dispatcher); collaborators it consumes but does not own — the content
// store and the LLM agent — appear here as interfaces only.
package contracts

import (
	"context"
	"time"

	"github.com/pressmill/pressmill/copilot-core/pkg/models"
)

// ── Tool Execution ──────────────────────────────────────────

// ToolHandler is the single async function type every tool implements.
// Handlers receive deserialized arguments plus the caller context and
// return a result; they never see the permission machinery.
type ToolHandler func(ctx context.Context, args map[string]interface{}, ec models.ExecutionContext) models.ToolResult

// ToolExecutor gates and runs registered tools. Implemented by the
// execution engine; consumed by the HTTP API and the scheduler.
type ToolExecutor interface {
	// Invoke executes an AUTO tool immediately or creates a pending
	// activity for CONFIRM/CONFIRM_TWICE tools.
	Invoke(ctx context.Context, toolName string, args map[string]interface{}, ec models.ExecutionContext) models.ToolResult

	// Resume runs a previously gated invocation after caller approval.
	Resume(ctx context.Context, activityID string, ec models.ExecutionContext) models.ToolResult

	// Reject marks a pending activity rejected without running anything.
	Reject(ctx context.Context, activityID string, ec models.ExecutionContext) models.ToolResult
}

// ── Content Store (external collaborator) ───────────────────

// ContentStore is the read/write surface the copilot core needs from the
// platform's content layer. Health checks use the read-only count queries;
// tool handlers use the command methods. The core never sees a schema.
type ContentStore interface {
	// Read-only queries backing health checks.
	CountLowQualityArticles(ctx context.Context, maxScore float64) (int, error)
	CountArticlesNotUpdatedSince(ctx context.Context, cutoff time.Time) (int, error)
	CountArticlesMissingMedia(ctx context.Context) (int, error)
	GetStorageUsage(ctx context.Context) (models.StorageUsage, error)
	Ping(ctx context.Context) error

	// Queries and commands backing tool handlers.
	SearchArticles(ctx context.Context, query string, limit int) ([]models.Article, error)
	GetArticle(ctx context.Context, id string) (*models.Article, error)
	UpdateArticleStatus(ctx context.Context, id string, status models.ArticleStatus) error
	DeleteArticle(ctx context.Context, id string) error
	ArchiveArticlesNotUpdatedSince(ctx context.Context, cutoff time.Time) (int, error)
	PurgeUnusedMedia(ctx context.Context) (int, error)
	RefreshTrendingTopics(ctx context.Context) ([]string, error)
	GetContentStats(ctx context.Context) (models.ContentStats, error)
}

// ── Notification Channels ───────────────────────────────────

// ChannelDriver delivers alert notifications to one kind of sink.
// Drivers are registered on the dispatcher; each delivery is independent
// and best-effort.
type ChannelDriver interface {
	// Kind returns the channel kind this driver serves.
	Kind() models.ChannelKind

	// Send delivers the entries to the channel. Errors are isolated per
	// channel by the dispatcher and never abort the fan-out.
	Send(ctx context.Context, channel *models.NotificationChannel, entries []models.AlertHistoryEntry) error
}

// ── Retention ───────────────────────────────────────────────

// ArchiveDriver writes pruned records to durable cold storage before the
// retention sweep discards them from the hot store.
type ArchiveDriver interface {
	// Kind identifies the archive backend.
	Kind() string

	// ArchiveActivities writes pruned activities and returns the archive
	// location.
	ArchiveActivities(ctx context.Context, activities []models.PendingActivity) (string, error)

	// ArchiveAuditEvents writes pruned audit events and returns the
	// archive location.
	ArchiveAuditEvents(ctx context.Context, events []models.AuditEvent) (string, error)
}

// ── Health Checks ───────────────────────────────────────────

// HealthChecker produces one structured report per run. Implemented by
// the health engine; invoked by the scheduler and the admin API.
type HealthChecker interface {
	RunHealthCheck(ctx context.Context) *models.HealthReport
}
