// Package models defines the shared domain types for the Pressmill copilot
// automation core: permission tiers, pending activities, scheduled task
// state, health-check reports, alerts, and notification channels. Types here
// are storage- and transport-agnostic; they carry both json and db tags so
// the same structs flow through the HTTP API and the Postgres store.
package models

import (
	"time"
)

// ── Permission Tiers ─────────────────────────────────────────

// PermissionTier classifies how much confirmation a tool needs before
// its handler may run.
type PermissionTier string

const (
	// TierAuto executes immediately with no confirmation.
	TierAuto PermissionTier = "auto"

	// TierConfirm defers execution until the caller confirms once.
	TierConfirm PermissionTier = "confirm"

	// TierConfirmTwice is reserved for destructive, irreversible actions.
	// The caller-facing confirmation message carries an explicit
	// irreversibility warning.
	TierConfirmTwice PermissionTier = "confirm_twice"
)

// RequiresConfirmation reports whether the tier gates execution behind
// a caller decision.
func (t PermissionTier) RequiresConfirmation() bool {
	return t == TierConfirm || t == TierConfirmTwice
}

// Human returns the tier name in human terms, used verbatim in
// confirmation messages.
func (t PermissionTier) Human() string {
	switch t {
	case TierAuto:
		return "automatic"
	case TierConfirm:
		return "requires confirmation"
	case TierConfirmTwice:
		return "requires double confirmation (destructive)"
	default:
		return string(t)
	}
}

// ── Tool Execution ───────────────────────────────────────────

// ExecutionContext carries per-invocation caller identity. It is passed
// by value into every handler; handlers must not retain it beyond the call.
type ExecutionContext struct {
	Actor     string    `json:"actor"`
	Role      string    `json:"role"`
	SessionID string    `json:"session_id,omitempty"`
	InvokedAt time.Time `json:"invoked_at"`
}

// ToolResult is the outcome of a tool invocation. The engine (not the
// handler) sets RequiresConfirmation when it gates a CONFIRM-tier call.
type ToolResult struct {
	Success              bool                   `json:"success"`
	Data                 map[string]interface{} `json:"data,omitempty"`
	Error                string                 `json:"error,omitempty"`
	Message              string                 `json:"message,omitempty"`
	RequiresConfirmation bool                   `json:"requires_confirmation,omitempty"`
	ConfirmationMessage  string                 `json:"confirmation_message,omitempty"`
}

// ── Pending Activities ───────────────────────────────────────

// ActivityStatus tracks a gated invocation through its lifecycle.
type ActivityStatus string

const (
	ActivityPending   ActivityStatus = "pending"
	ActivityApproved  ActivityStatus = "approved"
	ActivityRejected  ActivityStatus = "rejected"
	ActivityExecuting ActivityStatus = "executing"
	ActivityExecuted  ActivityStatus = "executed"
	ActivityFailed    ActivityStatus = "failed"
)

// Terminal reports whether the status is final. Resuming or rejecting a
// terminal activity is a clean error, never a double execution.
func (s ActivityStatus) Terminal() bool {
	return s == ActivityRejected || s == ActivityExecuted || s == ActivityFailed
}

// PendingActivity is the durable record of a gated tool invocation.
// It outlives a process restart so a human decision can arrive later.
// The execution engine is the sole writer.
type PendingActivity struct {
	ID                   string         `json:"id" db:"id"`
	ToolName             string         `json:"tool_name" db:"tool_name"`
	Arguments            string         `json:"arguments" db:"arguments"` // serialized JSON
	Status               ActivityStatus `json:"status" db:"status"`
	RequiresConfirmation bool           `json:"requires_confirmation" db:"requires_confirmation"`
	Confirmed            bool           `json:"confirmed" db:"confirmed"`
	Actor                string         `json:"actor,omitempty" db:"actor"`
	Result               string         `json:"result,omitempty" db:"result"` // serialized ToolResult
	ConfirmedAt          *time.Time     `json:"confirmed_at,omitempty" db:"confirmed_at"`
	CreatedAt            time.Time      `json:"created_at" db:"created_at"`
}

// ── Audit Events ─────────────────────────────────────────────

// AuditEvent records an executed (or failed) tool call for compliance.
type AuditEvent struct {
	ID         string                 `json:"id" db:"id"`
	Timestamp  time.Time              `json:"timestamp" db:"timestamp"`
	Actor      string                 `json:"actor" db:"actor"`
	Role       string                 `json:"role,omitempty" db:"role"`
	ToolName   string                 `json:"tool_name" db:"tool_name"`
	ActivityID string                 `json:"activity_id,omitempty" db:"activity_id"`
	Success    bool                   `json:"success" db:"success"`
	Error      string                 `json:"error,omitempty" db:"error"`
	Details    map[string]interface{} `json:"details,omitempty"`
}

// AuditFilter provides query options for listing audit events.
type AuditFilter struct {
	Actor    string
	ToolName string
	Since    *time.Time
	Until    *time.Time
	Limit    int
	Offset   int
}

// ── Scheduled Tasks ──────────────────────────────────────────

// TaskRun is the persisted per-task run outcome, keyed by task name and
// updated after every fire.
type TaskRun struct {
	TaskName   string    `json:"task_name" db:"task_name"`
	Status     string    `json:"status" db:"status"` // success, failure
	Result     string    `json:"result,omitempty" db:"result"`
	Error      string    `json:"error,omitempty" db:"error"`
	DurationMs int64     `json:"duration_ms" db:"duration_ms"`
	RunCount   int       `json:"run_count" db:"run_count"`
	LastRunAt  time.Time `json:"last_run_at" db:"last_run_at"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

const (
	TaskRunSuccess = "success"
	TaskRunFailure = "failure"
)

// ── Health Checks ────────────────────────────────────────────

// CheckStatus is the outcome of a single health dimension.
type CheckStatus string

const (
	CheckPass    CheckStatus = "pass"
	CheckWarning CheckStatus = "warning"
	CheckFail    CheckStatus = "fail"
)

// CheckResult is one health dimension's outcome.
type CheckResult struct {
	Status    CheckStatus `json:"status"`
	Count     int         `json:"count,omitempty"`
	Threshold int         `json:"threshold,omitempty"`
	Message   string      `json:"message"`
}

// HealthStatus is the aggregate status derived from all checks.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthWarning  HealthStatus = "warning"
	HealthCritical HealthStatus = "critical"
)

// HealthReport is the full output of one health-check run: the fixed set
// of named check results, the alerts derived from them, and a
// human-readable one-line summary.
type HealthReport struct {
	Timestamp time.Time              `json:"timestamp"`
	Status    HealthStatus           `json:"status"`
	Checks    map[string]CheckResult `json:"checks"`
	Alerts    []Alert                `json:"alerts"`
	Summary   string                 `json:"summary"`
}

// ── Alerts ───────────────────────────────────────────────────

// AlertPriority orders alerts low < medium < high < critical.
type AlertPriority string

const (
	PriorityLow      AlertPriority = "low"
	PriorityMedium   AlertPriority = "medium"
	PriorityHigh     AlertPriority = "high"
	PriorityCritical AlertPriority = "critical"
)

// Rank returns the total order of the priority. Unknown priorities rank
// lowest so they never sneak past a min-priority floor.
func (p AlertPriority) Rank() int {
	switch p {
	case PriorityLow:
		return 0
	case PriorityMedium:
		return 1
	case PriorityHigh:
		return 2
	case PriorityCritical:
		return 3
	default:
		return -1
	}
}

// AtLeast reports whether p is at or above the floor.
func (p AlertPriority) AtLeast(floor AlertPriority) bool {
	return p.Rank() >= floor.Rank()
}

// AlertType tags the domain a health alert came from.
type AlertType string

const (
	AlertQuality   AlertType = "quality"
	AlertFreshness AlertType = "freshness"
	AlertMedia     AlertType = "media"
	AlertQuota     AlertType = "quota"
	AlertDatabase  AlertType = "database"
)

// Alert is a structured, prioritized notice derived from a failing or
// warning health-check dimension.
type Alert struct {
	Type     AlertType              `json:"type"`
	Priority AlertPriority          `json:"priority"`
	Message  string                 `json:"message"`
	Details  map[string]interface{} `json:"details,omitempty"`
	Action   string                 `json:"action,omitempty"` // recommended remediation
}

// AlertHistoryEntry is a deduplicated alert tracked by the lifecycle
// manager until acknowledged and pruned.
type AlertHistoryEntry struct {
	ID             string     `json:"id"`
	Alert          Alert      `json:"alert"`
	Timestamp      time.Time  `json:"timestamp"`
	Acknowledged   bool       `json:"acknowledged"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	AcknowledgedBy string     `json:"acknowledged_by,omitempty"`
}

// ── Notification Channels ────────────────────────────────────

// ChannelKind identifies a notification channel type.
type ChannelKind string

const (
	ChannelConsole ChannelKind = "console"
	ChannelWebhook ChannelKind = "webhook"
	ChannelEmail   ChannelKind = "email"
)

// NotificationChannel is a configured delivery sink. Filter, when set, is
// an expression evaluated per alert (env: type, priority, message, count);
// an alert is delivered only when the expression returns true.
type NotificationChannel struct {
	Name      string                 `json:"name" db:"name"`
	Kind      ChannelKind            `json:"kind" db:"kind"`
	URL       string                 `json:"url,omitempty" db:"url"`         // webhook URL
	Secret    string                 `json:"secret,omitempty" db:"secret"`   // HMAC signing secret (webhook)
	Address   string                 `json:"address,omitempty" db:"address"` // email recipient
	Filter    string                 `json:"filter,omitempty" db:"filter"`
	Config    map[string]interface{} `json:"config,omitempty"`
	Enabled   bool                   `json:"enabled" db:"enabled"`
	CreatedAt time.Time              `json:"created_at" db:"created_at"`
	UpdatedAt time.Time              `json:"updated_at" db:"updated_at"`
}

// NotificationConfig is the process-wide dispatcher configuration,
// mutable at runtime through the admin API.
type NotificationConfig struct {
	Enabled     bool          `json:"enabled"`
	MinPriority AlertPriority `json:"min_priority"`
}

// ── Content Entities ─────────────────────────────────────────
//
// The content store itself is an external collaborator; these are the
// minimal shapes the copilot core reads and writes through it.

// ArticleStatus is the editorial state of an article.
type ArticleStatus string

const (
	ArticleDraft     ArticleStatus = "draft"
	ArticlePublished ArticleStatus = "published"
	ArticleArchived  ArticleStatus = "archived"
)

// Article is the content entity tool handlers and health checks touch.
type Article struct {
	ID           string        `json:"id"`
	Title        string        `json:"title"`
	Status       ArticleStatus `json:"status"`
	QualityScore float64       `json:"quality_score"`
	MediaID      string        `json:"media_id,omitempty"`
	UpdatedAt    time.Time     `json:"updated_at"`
	CreatedAt    time.Time     `json:"created_at"`
}

// ContentStats is the aggregate snapshot returned by the stats tool.
type ContentStats struct {
	TotalArticles     int `json:"total_articles"`
	PublishedArticles int `json:"published_articles"`
	DraftArticles     int `json:"draft_articles"`
	ArchivedArticles  int `json:"archived_articles"`
	TotalUsers        int `json:"total_users"`
	TotalMedia        int `json:"total_media"`
}

// StorageUsage reports media storage consumption against quota.
type StorageUsage struct {
	UsedBytes  int64 `json:"used_bytes"`
	LimitBytes int64 `json:"limit_bytes"`
}

// PercentUsed returns quota consumption in percent, 0 when no limit is set.
func (u StorageUsage) PercentUsed() float64 {
	if u.LimitBytes <= 0 {
		return 0
	}
	return float64(u.UsedBytes) / float64(u.LimitBytes) * 100
}
