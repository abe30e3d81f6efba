package health_test

import (
	"fmt"
	"testing"

	"github.com/pressmill/pressmill/copilot-core/internal/health"
	"github.com/pressmill/pressmill/copilot-core/pkg/models"
)

func staleAlert() models.Alert {
	return models.Alert{
		Type:     models.AlertFreshness,
		Priority: models.PriorityHigh,
		Message:  "12 published articles not updated in 30 days",
		Action:   "Refresh outdated articles or archive them",
	}
}

func TestRecord_CreatesEntries(t *testing.T) {
	m := health.NewAlertManager(100)

	created := m.Record([]models.Alert{staleAlert()})
	if len(created) != 1 {
		t.Fatalf("Record() created %d entries, want 1", len(created))
	}
	if created[0].ID == "" {
		t.Error("created entry has empty id")
	}
	if created[0].Acknowledged {
		t.Error("new entry is acknowledged")
	}
	if got := len(m.ActiveAlerts()); got != 1 {
		t.Errorf("ActiveAlerts() = %d, want 1", got)
	}
}

func TestRecord_DeduplicatesActiveAlerts(t *testing.T) {
	m := health.NewAlertManager(100)
	m.Record([]models.Alert{staleAlert()})

	// Same (type, priority, message) while unacknowledged: no new entry.
	created := m.Record([]models.Alert{staleAlert()})
	if len(created) != 0 {
		t.Errorf("duplicate Record() created %d entries, want 0", len(created))
	}
	if got := len(m.ActiveAlerts()); got != 1 {
		t.Errorf("ActiveAlerts() = %d, want 1", got)
	}

	// A different message is not a duplicate.
	other := staleAlert()
	other.Message = "20 published articles not updated in 30 days"
	if created := m.Record([]models.Alert{other}); len(created) != 1 {
		t.Errorf("distinct Record() created %d entries, want 1", len(created))
	}
}

func TestRecord_AcknowledgedEntriesDoNotSuppress(t *testing.T) {
	m := health.NewAlertManager(100)
	created := m.Record([]models.Alert{staleAlert()})
	if !m.Acknowledge(created[0].ID, "editor@example.com") {
		t.Fatal("Acknowledge() = false, want true")
	}

	// The condition recurring after an ack is a fresh alert.
	again := m.Record([]models.Alert{staleAlert()})
	if len(again) != 1 {
		t.Fatalf("Record() after ack created %d entries, want 1", len(again))
	}
	if got := len(m.ActiveAlerts()); got != 1 {
		t.Errorf("ActiveAlerts() = %d, want 1", got)
	}
	if got := len(m.History(0)); got != 2 {
		t.Errorf("History() = %d, want 2", got)
	}
}

func TestAcknowledge(t *testing.T) {
	m := health.NewAlertManager(100)
	created := m.Record([]models.Alert{staleAlert()})
	id := created[0].ID

	if !m.Acknowledge(id, "editor@example.com") {
		t.Fatal("Acknowledge() = false, want true")
	}
	// Idempotent on a known id.
	if !m.Acknowledge(id, "someone-else") {
		t.Error("second Acknowledge() = false, want true")
	}
	if m.Acknowledge("no-such-id", "editor@example.com") {
		t.Error("Acknowledge(unknown) = true, want false")
	}

	hist := m.History(0)
	if len(hist) != 1 {
		t.Fatalf("History() = %d, want 1", len(hist))
	}
	e := hist[0]
	if !e.Acknowledged || e.AcknowledgedAt == nil {
		t.Error("entry not stamped acknowledged")
	}
	if e.AcknowledgedBy != "editor@example.com" {
		t.Errorf("AcknowledgedBy = %q, want first acknowledger", e.AcknowledgedBy)
	}
	if got := len(m.ActiveAlerts()); got != 0 {
		t.Errorf("ActiveAlerts() after ack = %d, want 0", got)
	}
}

func TestAcknowledgeAll_ThenRecurrenceCreatesNewEntry(t *testing.T) {
	m := health.NewAlertManager(100)
	alerts := make([]models.Alert, 0, 5)
	for i := 0; i < 5; i++ {
		a := staleAlert()
		a.Message = fmt.Sprintf("variant %d", i)
		alerts = append(alerts, a)
	}
	m.Record(alerts)

	if n := m.AcknowledgeAll("admin"); n != 5 {
		t.Errorf("AcknowledgeAll() = %d, want 5", n)
	}
	if got := len(m.ActiveAlerts()); got != 0 {
		t.Errorf("ActiveAlerts() = %d, want 0", got)
	}
	if n := m.AcknowledgeAll("admin"); n != 0 {
		t.Errorf("second AcknowledgeAll() = %d, want 0", n)
	}

	recurrence := staleAlert()
	recurrence.Message = "variant 2"
	created := m.Record([]models.Alert{recurrence})
	if len(created) != 1 {
		t.Errorf("recurrence after ack-all created %d entries, want 1", len(created))
	}
}

func TestAcknowledgeByType(t *testing.T) {
	m := health.NewAlertManager(100)
	quota := models.Alert{Type: models.AlertQuota, Priority: models.PriorityCritical, Message: "media storage at 96% of quota"}
	m.Record([]models.Alert{staleAlert(), quota})

	if n := m.AcknowledgeByType(models.AlertQuota, "admin"); n != 1 {
		t.Errorf("AcknowledgeByType(quota) = %d, want 1", n)
	}

	active := m.ActiveAlerts()
	if len(active) != 1 {
		t.Fatalf("ActiveAlerts() = %d, want 1", len(active))
	}
	if active[0].Alert.Type != models.AlertFreshness {
		t.Errorf("remaining active type = %q, want freshness", active[0].Alert.Type)
	}
}

func TestRetention_KeepsUnacknowledged(t *testing.T) {
	m := health.NewAlertManager(3)

	// Two acked entries, then enough unacked ones to blow the cap.
	first := m.Record([]models.Alert{
		{Type: models.AlertQuality, Priority: models.PriorityMedium, Message: "acked one"},
		{Type: models.AlertQuality, Priority: models.PriorityMedium, Message: "acked two"},
	})
	for _, e := range first {
		m.Acknowledge(e.ID, "admin")
	}
	for i := 0; i < 3; i++ {
		m.Record([]models.Alert{{
			Type:     models.AlertMedia,
			Priority: models.PriorityLow,
			Message:  fmt.Sprintf("open %d", i),
		}})
	}

	hist := m.History(0)
	if len(hist) > 3 {
		t.Errorf("History() = %d entries, want at most 3", len(hist))
	}
	if got := len(m.ActiveAlerts()); got != 3 {
		t.Errorf("ActiveAlerts() = %d, want all 3 unacked kept", got)
	}
	for _, e := range hist {
		if e.Acknowledged {
			t.Errorf("acked entry %q survived prune over unacked ones", e.Alert.Message)
		}
	}
}

func TestHistory_Limit(t *testing.T) {
	m := health.NewAlertManager(100)
	for i := 0; i < 10; i++ {
		m.Record([]models.Alert{{
			Type:     models.AlertQuality,
			Priority: models.PriorityMedium,
			Message:  fmt.Sprintf("entry %d", i),
		}})
	}

	if got := len(m.History(4)); got != 4 {
		t.Errorf("History(4) = %d, want 4", got)
	}
	if got := len(m.History(0)); got != 10 {
		t.Errorf("History(0) = %d, want 10", got)
	}
}

func TestClear(t *testing.T) {
	m := health.NewAlertManager(100)
	m.Record([]models.Alert{staleAlert()})
	m.Clear()

	if got := len(m.History(0)); got != 0 {
		t.Errorf("History() after Clear = %d, want 0", got)
	}
}
