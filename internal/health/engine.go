// Package health implements the copilot's operational health checks and
// the alert lifecycle (deduplication, acknowledgment, retention).
//
// A health-check run is a pure read: five independent dimensions are
// evaluated against the content store and the copilot's own database,
// each produces a pass/warning/fail result, and failing or warning
// dimensions derive at most one alert apiece.
package health

import (
	"context"
	"fmt"
	"time"

	"github.com/pressmill/pressmill/copilot-core/internal/config"
	"github.com/pressmill/pressmill/copilot-core/internal/store"
	"github.com/pressmill/pressmill/copilot-core/pkg/contracts"
	"github.com/pressmill/pressmill/copilot-core/pkg/models"
	"github.com/rs/zerolog/log"
)

// Check names, fixed across runs.
const (
	CheckQuality      = "quality"
	CheckFreshness    = "freshness"
	CheckMissingMedia = "missing_media"
	CheckQuota        = "quota"
	CheckConnectivity = "connectivity"
)

// Count-based escalation thresholds: a check passes below the warning
// threshold, warns at or above it, and fails at or above the fail
// threshold.
const (
	qualityWarnAt   = 5
	qualityFailAt   = 20
	freshnessWarnAt = 5
	freshnessFailAt = 10
	mediaWarnAt     = 1
	mediaFailAt     = 10
	quotaWarnPct    = 80
	quotaFailPct    = 95
)

// Engine runs the fixed set of health checks.
type Engine struct {
	content contracts.ContentStore
	db      store.Store
	cfg     config.HealthConfig
}

// NewEngine creates a health-check engine reading from the content store
// and the copilot database.
func NewEngine(content contracts.ContentStore, db store.Store, cfg config.HealthConfig) *Engine {
	return &Engine{content: content, db: db, cfg: cfg}
}

// RunHealthCheck executes all checks and derives the report. Individual
// query failures degrade that one dimension to fail rather than aborting
// the run.
func (e *Engine) RunHealthCheck(ctx context.Context) *models.HealthReport {
	report := &models.HealthReport{
		Timestamp: time.Now().UTC(),
		Checks:    make(map[string]models.CheckResult),
	}

	e.checkQuality(ctx, report)
	e.checkFreshness(ctx, report)
	e.checkMissingMedia(ctx, report)
	e.checkQuota(ctx, report)
	e.checkConnectivity(ctx, report)

	report.Status = aggregateStatus(report.Alerts)
	report.Summary = summarize(report)

	log.Info().
		Str("status", string(report.Status)).
		Int("alerts", len(report.Alerts)).
		Msg("Health check complete")
	return report
}

func (e *Engine) checkQuality(ctx context.Context, report *models.HealthReport) {
	count, err := e.content.CountLowQualityArticles(ctx, e.cfg.QualityScoreFloor)
	if err != nil {
		e.queryFailed(report, CheckQuality, models.AlertQuality, err)
		return
	}

	result := escalate(count, qualityWarnAt, qualityFailAt,
		fmt.Sprintf("%d published articles below quality score %.2f", count, e.cfg.QualityScoreFloor))
	report.Checks[CheckQuality] = result
	deriveAlert(report, result, models.AlertQuality,
		models.PriorityHigh, models.PriorityMedium,
		"Review and improve flagged articles or unpublish them")
}

func (e *Engine) checkFreshness(ctx context.Context, report *models.HealthReport) {
	cutoff := time.Now().AddDate(0, 0, -e.cfg.FreshnessMaxAgeDays)
	count, err := e.content.CountArticlesNotUpdatedSince(ctx, cutoff)
	if err != nil {
		e.queryFailed(report, CheckFreshness, models.AlertFreshness, err)
		return
	}

	result := escalate(count, freshnessWarnAt, freshnessFailAt,
		fmt.Sprintf("%d published articles not updated in %d days", count, e.cfg.FreshnessMaxAgeDays))
	report.Checks[CheckFreshness] = result
	deriveAlert(report, result, models.AlertFreshness,
		models.PriorityHigh, models.PriorityMedium,
		"Refresh outdated articles or archive them")
}

func (e *Engine) checkMissingMedia(ctx context.Context, report *models.HealthReport) {
	count, err := e.content.CountArticlesMissingMedia(ctx)
	if err != nil {
		e.queryFailed(report, CheckMissingMedia, models.AlertMedia, err)
		return
	}

	result := escalate(count, mediaWarnAt, mediaFailAt,
		fmt.Sprintf("%d published articles missing media", count))
	report.Checks[CheckMissingMedia] = result
	deriveAlert(report, result, models.AlertMedia,
		models.PriorityHigh, models.PriorityLow,
		"Attach media to the affected articles")
}

func (e *Engine) checkQuota(ctx context.Context, report *models.HealthReport) {
	usage, err := e.content.GetStorageUsage(ctx)
	if err != nil {
		e.queryFailed(report, CheckQuota, models.AlertQuota, err)
		return
	}

	pct := int(usage.PercentUsed())
	result := escalate(pct, quotaWarnPct, quotaFailPct,
		fmt.Sprintf("media storage at %d%% of quota", pct))
	result.Threshold = quotaFailPct
	report.Checks[CheckQuota] = result
	deriveAlert(report, result, models.AlertQuota,
		models.PriorityCritical, models.PriorityMedium,
		"Purge unused media or raise the storage quota")
}

func (e *Engine) checkConnectivity(ctx context.Context, report *models.HealthReport) {
	var errs []string
	if err := e.content.Ping(ctx); err != nil {
		errs = append(errs, fmt.Sprintf("content store: %v", err))
	}
	if e.db != nil {
		if err := e.db.Ping(ctx); err != nil {
			errs = append(errs, fmt.Sprintf("copilot database: %v", err))
		}
	}

	if len(errs) == 0 {
		report.Checks[CheckConnectivity] = models.CheckResult{
			Status:  models.CheckPass,
			Message: "all data stores reachable",
		}
		return
	}

	result := models.CheckResult{
		Status:  models.CheckFail,
		Message: fmt.Sprintf("connectivity degraded: %v", errs),
	}
	report.Checks[CheckConnectivity] = result
	report.Alerts = append(report.Alerts, models.Alert{
		Type:     models.AlertDatabase,
		Priority: models.PriorityCritical,
		Message:  result.Message,
		Action:   "Check database and content-store availability",
	})
}

// queryFailed degrades one dimension to fail when its backing query errors.
func (e *Engine) queryFailed(report *models.HealthReport, check string, alertType models.AlertType, err error) {
	log.Warn().Err(err).Str("check", check).Msg("Health-check query failed")
	result := models.CheckResult{
		Status:  models.CheckFail,
		Message: fmt.Sprintf("%s check query failed: %v", check, err),
	}
	report.Checks[check] = result
	report.Alerts = append(report.Alerts, models.Alert{
		Type:     alertType,
		Priority: models.PriorityHigh,
		Message:  result.Message,
		Action:   "Investigate the failing health-check query",
	})
}

// escalate maps a count onto pass/warning/fail using two thresholds.
func escalate(count, warnAt, failAt int, message string) models.CheckResult {
	result := models.CheckResult{
		Count:     count,
		Threshold: failAt,
		Message:   message,
	}
	switch {
	case count >= failAt:
		result.Status = models.CheckFail
	case count >= warnAt:
		result.Status = models.CheckWarning
	default:
		result.Status = models.CheckPass
	}
	return result
}

// deriveAlert appends zero or one alert for a check result: fail and
// warning map to the check's fixed priorities, pass derives nothing.
func deriveAlert(report *models.HealthReport, result models.CheckResult, alertType models.AlertType, failPriority, warnPriority models.AlertPriority, action string) {
	var priority models.AlertPriority
	switch result.Status {
	case models.CheckFail:
		priority = failPriority
	case models.CheckWarning:
		priority = warnPriority
	default:
		return
	}

	report.Alerts = append(report.Alerts, models.Alert{
		Type:     alertType,
		Priority: priority,
		Message:  result.Message,
		Details: map[string]interface{}{
			"count":     result.Count,
			"threshold": result.Threshold,
		},
		Action: action,
	})
}

// aggregateStatus derives the report status: critical when any alert is
// high or critical, warning when any alert exists at all, healthy
// otherwise.
func aggregateStatus(alerts []models.Alert) models.HealthStatus {
	if len(alerts) == 0 {
		return models.HealthHealthy
	}
	for _, a := range alerts {
		if a.Priority.AtLeast(models.PriorityHigh) {
			return models.HealthCritical
		}
	}
	return models.HealthWarning
}

func summarize(report *models.HealthReport) string {
	var pass, warn, fail int
	for _, c := range report.Checks {
		switch c.Status {
		case models.CheckPass:
			pass++
		case models.CheckWarning:
			warn++
		case models.CheckFail:
			fail++
		}
	}
	return fmt.Sprintf("%s: %d checks (%d pass, %d warning, %d fail), %d alerts",
		report.Status, len(report.Checks), pass, warn, fail, len(report.Alerts))
}
