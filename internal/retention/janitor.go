// Package retention implements the data retention sweep for the copilot
// store. Audit events and terminal activities older than their retention
// windows are pruned; when an archiver is configured the pruned records
// are written to cold storage as JSONL. The archive copy is best-effort:
// an archive failure is logged but does not resurrect the pruned rows.
package retention

import (
	"context"
	"time"

	"github.com/pressmill/pressmill/copilot-core/internal/store"
	"github.com/pressmill/pressmill/copilot-core/pkg/contracts"
	"github.com/rs/zerolog/log"
)

// CycleStats tracks what happened in a single retention cycle.
type CycleStats struct {
	AuditPruned      int      `json:"audit_pruned"`
	ActivitiesPruned int      `json:"activities_pruned"`
	ArchivePaths     []string `json:"archive_paths,omitempty"`
	Errors           []string `json:"errors,omitempty"`
}

// Janitor prunes expired audit events and terminal activities.
type Janitor struct {
	store             store.Store
	auditRetention    time.Duration
	activityRetention time.Duration
	archiver          contracts.ArchiveDriver
}

// NewJanitor creates a retention janitor. Non-positive retention windows
// disable the corresponding sweep; a nil archiver skips archiving.
func NewJanitor(s store.Store, auditDays, activityDays int, archiver contracts.ArchiveDriver) *Janitor {
	return &Janitor{
		store:             s,
		auditRetention:    time.Duration(auditDays) * 24 * time.Hour,
		activityRetention: time.Duration(activityDays) * 24 * time.Hour,
		archiver:          archiver,
	}
}

// RunCycle performs one retention sweep and returns what was pruned.
// Errors in one half of the sweep do not abort the other.
func (j *Janitor) RunCycle(ctx context.Context) CycleStats {
	var stats CycleStats
	now := time.Now().UTC()

	if j.auditRetention > 0 {
		j.sweepAudit(ctx, now.Add(-j.auditRetention), &stats)
	}
	if j.activityRetention > 0 {
		j.sweepActivities(ctx, now.Add(-j.activityRetention), &stats)
	}

	if stats.AuditPruned > 0 || stats.ActivitiesPruned > 0 {
		log.Info().
			Int("audit_pruned", stats.AuditPruned).
			Int("activities_pruned", stats.ActivitiesPruned).
			Strs("archives", stats.ArchivePaths).
			Msg("Retention cycle complete")
	}
	return stats
}

func (j *Janitor) sweepAudit(ctx context.Context, cutoff time.Time, stats *CycleStats) {
	events, err := j.store.PruneAuditEvents(ctx, cutoff)
	if err != nil {
		log.Warn().Err(err).Msg("Audit retention sweep failed")
		stats.Errors = append(stats.Errors, "audit: "+err.Error())
		return
	}
	stats.AuditPruned = len(events)

	if j.archiver == nil || len(events) == 0 {
		return
	}
	path, err := j.archiver.ArchiveAuditEvents(ctx, events)
	if err != nil {
		log.Warn().Err(err).Int("count", len(events)).Msg("Audit archive write failed")
		stats.Errors = append(stats.Errors, "audit archive: "+err.Error())
		return
	}
	stats.ArchivePaths = append(stats.ArchivePaths, path)
}

func (j *Janitor) sweepActivities(ctx context.Context, cutoff time.Time, stats *CycleStats) {
	activities, err := j.store.PruneTerminalActivities(ctx, cutoff)
	if err != nil {
		log.Warn().Err(err).Msg("Activity retention sweep failed")
		stats.Errors = append(stats.Errors, "activities: "+err.Error())
		return
	}
	stats.ActivitiesPruned = len(activities)

	if j.archiver == nil || len(activities) == 0 {
		return
	}
	path, err := j.archiver.ArchiveActivities(ctx, activities)
	if err != nil {
		log.Warn().Err(err).Int("count", len(activities)).Msg("Activity archive write failed")
		stats.Errors = append(stats.Errors, "activity archive: "+err.Error())
		return
	}
	stats.ArchivePaths = append(stats.ArchivePaths, path)
}
