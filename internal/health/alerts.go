package health

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pressmill/pressmill/copilot-core/pkg/models"
	"github.com/rs/zerolog/log"
)

// AlertManager owns the alert history: deduplication of incoming alerts
// against unacknowledged entries, acknowledgment, and bounded retention.
// All methods are safe for concurrent use.
type AlertManager struct {
	mu        sync.Mutex
	entries   []*models.AlertHistoryEntry
	retention int
}

// NewAlertManager creates a manager keeping at most retention entries
// after acknowledged history is pruned. A non-positive retention keeps
// everything.
func NewAlertManager(retention int) *AlertManager {
	return &AlertManager{retention: retention}
}

// Record folds a batch of freshly derived alerts into the history. An
// alert matching an unacknowledged entry on (type, priority, message) is
// a duplicate and refreshes nothing; acknowledged entries never suppress
// a new alert. Returns the entries created for the new alerts.
func (m *AlertManager) Record(alerts []models.Alert) []models.AlertHistoryEntry {
	if len(alerts) == 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var created []models.AlertHistoryEntry
	for _, a := range alerts {
		if m.hasActiveDuplicate(a) {
			continue
		}
		entry := &models.AlertHistoryEntry{
			ID:        uuid.New().String(),
			Alert:     a,
			Timestamp: time.Now().UTC(),
		}
		m.entries = append(m.entries, entry)
		created = append(created, *entry)
		log.Info().
			Str("alert_id", entry.ID).
			Str("type", string(a.Type)).
			Str("priority", string(a.Priority)).
			Msg("Alert recorded")
	}

	m.pruneLocked()
	return created
}

func (m *AlertManager) hasActiveDuplicate(a models.Alert) bool {
	for _, e := range m.entries {
		if e.Acknowledged {
			continue
		}
		if e.Alert.Type == a.Type && e.Alert.Priority == a.Priority && e.Alert.Message == a.Message {
			return true
		}
	}
	return false
}

// Acknowledge marks one entry acknowledged. Acknowledging an already
// acknowledged entry is a no-op that still reports success; an unknown
// id reports false.
func (m *AlertManager) Acknowledge(id, by string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range m.entries {
		if e.ID != id {
			continue
		}
		m.ackLocked(e, by)
		return true
	}
	return false
}

// AcknowledgeByType acknowledges every unacknowledged entry of the given
// type and returns how many were newly acknowledged.
func (m *AlertManager) AcknowledgeByType(alertType models.AlertType, by string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int
	for _, e := range m.entries {
		if e.Acknowledged || e.Alert.Type != alertType {
			continue
		}
		m.ackLocked(e, by)
		n++
	}
	return n
}

// AcknowledgeAll acknowledges every unacknowledged entry and returns how
// many were newly acknowledged.
func (m *AlertManager) AcknowledgeAll(by string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int
	for _, e := range m.entries {
		if e.Acknowledged {
			continue
		}
		m.ackLocked(e, by)
		n++
	}
	return n
}

func (m *AlertManager) ackLocked(e *models.AlertHistoryEntry, by string) {
	if e.Acknowledged {
		return
	}
	now := time.Now().UTC()
	e.Acknowledged = true
	e.AcknowledgedAt = &now
	e.AcknowledgedBy = by
}

// ActiveAlerts returns the unacknowledged entries, newest first.
func (m *AlertManager) ActiveAlerts() []models.AlertHistoryEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.AlertHistoryEntry
	for _, e := range m.entries {
		if !e.Acknowledged {
			out = append(out, *e)
		}
	}
	sortNewestFirst(out)
	return out
}

// History returns up to limit entries, newest first, acknowledged ones
// included. A non-positive limit returns everything retained.
func (m *AlertManager) History(limit int) []models.AlertHistoryEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.AlertHistoryEntry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, *e)
	}
	sortNewestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Clear drops the whole history.
func (m *AlertManager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = nil
}

// pruneLocked enforces the retention cap. Unacknowledged entries are
// never pruned; acknowledged ones are dropped oldest first until the
// total fits the cap.
func (m *AlertManager) pruneLocked() {
	if m.retention <= 0 || len(m.entries) <= m.retention {
		return
	}

	over := len(m.entries) - m.retention
	kept := m.entries[:0]
	for _, e := range m.entries {
		if over > 0 && e.Acknowledged {
			over--
			continue
		}
		kept = append(kept, e)
	}
	if dropped := len(m.entries) - len(kept); dropped > 0 {
		log.Debug().Int("dropped", dropped).Msg("Pruned acknowledged alert history")
	}
	m.entries = kept
}

func sortNewestFirst(entries []models.AlertHistoryEntry) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})
}
