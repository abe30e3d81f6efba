package notify_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pressmill/pressmill/copilot-core/internal/config"
	"github.com/pressmill/pressmill/copilot-core/internal/notify"
	"github.com/pressmill/pressmill/copilot-core/internal/store"
	"github.com/pressmill/pressmill/copilot-core/pkg/models"
)

const fakeKind = models.ChannelKind("fake")

// fakeChannelDriver records every Send and optionally fails.
type fakeChannelDriver struct {
	mu    sync.Mutex
	sends []sendCall
	fail  bool
}

type sendCall struct {
	channel string
	entries []models.AlertHistoryEntry
}

func (d *fakeChannelDriver) Kind() models.ChannelKind { return fakeKind }

func (d *fakeChannelDriver) Send(ctx context.Context, ch *models.NotificationChannel, entries []models.AlertHistoryEntry) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail {
		return errors.New("sink unavailable")
	}
	d.sends = append(d.sends, sendCall{channel: ch.Name, entries: entries})
	return nil
}

func (d *fakeChannelDriver) calls() []sendCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]sendCall(nil), d.sends...)
}

func (d *fakeChannelDriver) delivered() []models.AlertHistoryEntry {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []models.AlertHistoryEntry
	for _, c := range d.sends {
		out = append(out, c.entries...)
	}
	return out
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	t.Setenv("COPILOT_DATA_DIR", t.TempDir())
	s := store.NewMemoryStore()
	t.Cleanup(func() { s.Close() })
	return s
}

// newTestService wires a dispatcher with one enabled fake channel.
func newTestService(t *testing.T, cfg config.NotifyConfig, filter string) (*notify.Service, *fakeChannelDriver) {
	t.Helper()
	s := newTestStore(t)
	svc := notify.NewService(context.Background(), cfg, s)

	driver := &fakeChannelDriver{}
	svc.RegisterDriver(driver)
	err := s.UpsertChannel(context.Background(), &models.NotificationChannel{
		Name:    "test-sink",
		Kind:    fakeKind,
		Filter:  filter,
		Enabled: true,
	})
	require.NoError(t, err)
	return svc, driver
}

func entry(alertType models.AlertType, priority models.AlertPriority, message string) models.AlertHistoryEntry {
	return models.AlertHistoryEntry{
		ID:        "e-" + message,
		Alert:     models.Alert{Type: alertType, Priority: priority, Message: message},
		Timestamp: time.Now().UTC(),
	}
}

func TestNotify_MinPriorityFloor(t *testing.T) {
	svc, driver := newTestService(t, config.NotifyConfig{Enabled: true, MinPriority: "high"}, "")

	svc.Notify(context.Background(), []models.AlertHistoryEntry{
		entry(models.AlertMedia, models.PriorityLow, "low"),
		entry(models.AlertQuality, models.PriorityMedium, "medium"),
		entry(models.AlertFreshness, models.PriorityHigh, "high"),
		entry(models.AlertQuota, models.PriorityCritical, "critical"),
	})

	got := driver.delivered()
	require.Len(t, got, 2)
	messages := []string{got[0].Alert.Message, got[1].Alert.Message}
	assert.ElementsMatch(t, []string{"high", "critical"}, messages)
}

func TestNotify_DisabledIsNoOp(t *testing.T) {
	svc, driver := newTestService(t, config.NotifyConfig{Enabled: false, MinPriority: "low"}, "")

	svc.Notify(context.Background(), []models.AlertHistoryEntry{
		entry(models.AlertQuota, models.PriorityCritical, "critical"),
	})

	assert.Empty(t, driver.calls())
}

func TestNotify_FailingChannelDoesNotBlockOthers(t *testing.T) {
	s := newTestStore(t)
	svc := notify.NewService(context.Background(), config.NotifyConfig{Enabled: true, MinPriority: "low"}, s)

	broken := &fakeChannelDriver{fail: true}
	healthy := &fakeChannelDriver{}
	brokenKind := models.ChannelKind("broken")
	svc.RegisterDriver(&kindOverride{driver: broken, kind: brokenKind})
	svc.RegisterDriver(healthy)

	ctx := context.Background()
	require.NoError(t, s.UpsertChannel(ctx, &models.NotificationChannel{Name: "down", Kind: brokenKind, Enabled: true}))
	require.NoError(t, s.UpsertChannel(ctx, &models.NotificationChannel{Name: "up", Kind: fakeKind, Enabled: true}))

	svc.Notify(ctx, []models.AlertHistoryEntry{
		entry(models.AlertDatabase, models.PriorityCritical, "db down"),
	})

	require.Len(t, healthy.calls(), 1)
	assert.Equal(t, "up", healthy.calls()[0].channel)
}

// kindOverride reuses fakeChannelDriver under a different kind.
type kindOverride struct {
	driver *fakeChannelDriver
	kind   models.ChannelKind
}

func (k *kindOverride) Kind() models.ChannelKind { return k.kind }
func (k *kindOverride) Send(ctx context.Context, ch *models.NotificationChannel, entries []models.AlertHistoryEntry) error {
	return k.driver.Send(ctx, ch, entries)
}

func TestNotify_DisabledChannelSkipped(t *testing.T) {
	s := newTestStore(t)
	svc := notify.NewService(context.Background(), config.NotifyConfig{Enabled: true, MinPriority: "low"}, s)
	driver := &fakeChannelDriver{}
	svc.RegisterDriver(driver)
	require.NoError(t, s.UpsertChannel(context.Background(), &models.NotificationChannel{
		Name:    "muted",
		Kind:    fakeKind,
		Enabled: false,
	}))

	svc.Notify(context.Background(), []models.AlertHistoryEntry{
		entry(models.AlertQuota, models.PriorityCritical, "critical"),
	})

	assert.Empty(t, driver.calls())
}

func TestNotify_ChannelFilterExpression(t *testing.T) {
	svc, driver := newTestService(t,
		config.NotifyConfig{Enabled: true, MinPriority: "low"},
		`type == "quota" || priority == "critical"`)

	svc.Notify(context.Background(), []models.AlertHistoryEntry{
		entry(models.AlertQuota, models.PriorityMedium, "quota warn"),
		entry(models.AlertDatabase, models.PriorityCritical, "db down"),
		entry(models.AlertMedia, models.PriorityLow, "missing media"),
	})

	got := driver.delivered()
	require.Len(t, got, 2)
	for _, e := range got {
		assert.NotEqual(t, "missing media", e.Alert.Message)
	}
}

func TestNotify_BrokenFilterDeliversEverything(t *testing.T) {
	svc, driver := newTestService(t,
		config.NotifyConfig{Enabled: true, MinPriority: "low"},
		`this is (not an expression`)

	svc.Notify(context.Background(), []models.AlertHistoryEntry{
		entry(models.AlertQuality, models.PriorityMedium, "thin content"),
	})

	assert.Len(t, driver.delivered(), 1, "broken filter should over-deliver, not silence")
}

func TestNotifyHealthCheck(t *testing.T) {
	svc, driver := newTestService(t, config.NotifyConfig{Enabled: true, MinPriority: "critical"}, "")

	report := &models.HealthReport{
		Timestamp: time.Now().UTC(),
		Status:    models.HealthCritical,
		Summary:   "critical: 5 checks (3 pass, 0 warning, 2 fail), 2 alerts",
	}
	svc.NotifyHealthCheck(context.Background(), report)

	// The summary bypasses the min-priority floor.
	got := driver.delivered()
	require.Len(t, got, 1)
	assert.Equal(t, models.AlertType("health_summary"), got[0].Alert.Type)
	assert.Equal(t, models.PriorityHigh, got[0].Alert.Priority)
	assert.Equal(t, report.Summary, got[0].Alert.Message)
}

func TestNotifyHealthCheck_HealthySilent(t *testing.T) {
	svc, driver := newTestService(t, config.NotifyConfig{Enabled: true, MinPriority: "low"}, "")

	svc.NotifyHealthCheck(context.Background(), &models.HealthReport{
		Timestamp: time.Now().UTC(),
		Status:    models.HealthHealthy,
		Summary:   "healthy: 5 checks (5 pass, 0 warning, 0 fail), 0 alerts",
	})

	assert.Empty(t, driver.calls())
}

func TestNotifyTaskCompletion(t *testing.T) {
	svc, driver := newTestService(t, config.NotifyConfig{Enabled: true, MinPriority: "low"}, "")
	ctx := context.Background()

	svc.NotifyTaskCompletion(ctx, "trending_refresh", models.TaskRunSuccess, nil)
	assert.Empty(t, driver.calls(), "successes are log-only")

	svc.NotifyTaskCompletion(ctx, "stale_content_sweep", models.TaskRunFailure,
		map[string]interface{}{"error": "store offline"})
	got := driver.delivered()
	require.Len(t, got, 1)
	assert.Equal(t, models.AlertType("task_failure"), got[0].Alert.Type)
	assert.Equal(t, models.PriorityHigh, got[0].Alert.Priority)
	assert.Contains(t, got[0].Alert.Message, "stale_content_sweep")
}

func TestUpdateConfig(t *testing.T) {
	svc, _ := newTestService(t, config.NotifyConfig{Enabled: true, MinPriority: "low"}, "")

	err := svc.UpdateConfig(models.NotificationConfig{Enabled: false, MinPriority: models.PriorityHigh})
	require.NoError(t, err)
	cfg := svc.Config()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, models.PriorityHigh, cfg.MinPriority)

	err = svc.UpdateConfig(models.NotificationConfig{Enabled: true, MinPriority: "urgent"})
	assert.Error(t, err, "unknown min priority must be rejected")
}

func TestNewService_NormalizesUnknownMinPriority(t *testing.T) {
	svc, _ := newTestService(t, config.NotifyConfig{Enabled: true, MinPriority: "whatever"}, "")
	assert.Equal(t, models.PriorityLow, svc.Config().MinPriority)
}
