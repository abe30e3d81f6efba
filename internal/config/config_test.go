package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pressmill/pressmill/copilot-core/internal/config"
)

// clearCopilotEnv blanks every variable Load reads so tests see defaults.
func clearCopilotEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"COPILOT_PORT", "COPILOT_VERSION", "COPILOT_API_KEYS", "COPILOT_CONFIG_FILE",
		"DATABASE_URL", "DATABASE_MAX_CONNECTIONS",
		"COPILOT_SCHEDULER_TZ", "COPILOT_QUALITY_FLOOR", "COPILOT_FRESHNESS_MAX_AGE_DAYS",
		"COPILOT_ALERT_RETENTION", "COPILOT_AUDIT_RETENTION_DAYS",
		"COPILOT_ACTIVITY_RETENTION_DAYS", "COPILOT_ARCHIVE_DIR",
		"COPILOT_NOTIFY_ENABLED", "COPILOT_NOTIFY_MIN_PRIORITY",
		"OTEL_ENABLED", "OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_SERVICE_NAME",
	} {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearCopilotEnv(t)

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Port != 8085 {
		t.Errorf("Port = %d, want 8085", cfg.Port)
	}
	if cfg.Scheduler.Timezone != "UTC" {
		t.Errorf("Timezone = %q, want UTC", cfg.Scheduler.Timezone)
	}
	if cfg.Health.FreshnessMaxAgeDays != 90 {
		t.Errorf("FreshnessMaxAgeDays = %d, want 90", cfg.Health.FreshnessMaxAgeDays)
	}
	if cfg.Health.AlertRetention != 100 {
		t.Errorf("AlertRetention = %d, want 100", cfg.Health.AlertRetention)
	}
	if cfg.Retention.AuditDays != 30 {
		t.Errorf("Retention.AuditDays = %d, want 30", cfg.Retention.AuditDays)
	}
	if !cfg.Notify.Enabled {
		t.Error("Notify.Enabled = false, want true")
	}
	if cfg.Notify.MinPriority != "low" {
		t.Errorf("Notify.MinPriority = %q, want low", cfg.Notify.MinPriority)
	}
	if len(cfg.APIKeys) != 0 {
		t.Errorf("APIKeys = %v, want empty", cfg.APIKeys)
	}
	if cfg.Telemetry.Enabled {
		t.Error("Telemetry.Enabled = true, want false by default")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearCopilotEnv(t)
	t.Setenv("COPILOT_PORT", "9090")
	t.Setenv("COPILOT_API_KEYS", "key-one, key-two,,")
	t.Setenv("COPILOT_SCHEDULER_TZ", "Europe/Berlin")
	t.Setenv("COPILOT_QUALITY_FLOOR", "0.7")
	t.Setenv("COPILOT_NOTIFY_ENABLED", "false")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Port)
	}
	if len(cfg.APIKeys) != 2 || cfg.APIKeys[0] != "key-one" || cfg.APIKeys[1] != "key-two" {
		t.Errorf("APIKeys = %v, want [key-one key-two]", cfg.APIKeys)
	}
	if cfg.Scheduler.Timezone != "Europe/Berlin" {
		t.Errorf("Timezone = %q, want Europe/Berlin", cfg.Scheduler.Timezone)
	}
	if cfg.Health.QualityScoreFloor != 0.7 {
		t.Errorf("QualityScoreFloor = %v, want 0.7", cfg.Health.QualityScoreFloor)
	}
	if cfg.Notify.Enabled {
		t.Error("Notify.Enabled = true, want false")
	}
}

func TestLoad_FileOverlay(t *testing.T) {
	clearCopilotEnv(t)

	path := filepath.Join(t.TempDir(), "copilot.yaml")
	overlay := `
port: 7070
scheduler:
  timezone: America/New_York
  disabled_tasks: [trending_refresh]
health:
  freshness_max_age_days: 45
retention:
  audit_days: 7
  archive_dir: /var/lib/copilot/archive
notify:
  enabled: true
  min_priority: high
  channels:
    - name: ops
      kind: webhook
      url: https://hooks.example.com/ops
      enabled: true
`
	if err := os.WriteFile(path, []byte(overlay), 0644); err != nil {
		t.Fatalf("write overlay: %v", err)
	}
	t.Setenv("COPILOT_CONFIG_FILE", path)

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Port != 7070 {
		t.Errorf("Port = %d, want 7070", cfg.Port)
	}
	if cfg.Scheduler.Timezone != "America/New_York" {
		t.Errorf("Timezone = %q, want America/New_York", cfg.Scheduler.Timezone)
	}
	if len(cfg.Scheduler.DisabledTasks) != 1 || cfg.Scheduler.DisabledTasks[0] != "trending_refresh" {
		t.Errorf("DisabledTasks = %v, want [trending_refresh]", cfg.Scheduler.DisabledTasks)
	}
	if cfg.Health.FreshnessMaxAgeDays != 45 {
		t.Errorf("FreshnessMaxAgeDays = %d, want 45", cfg.Health.FreshnessMaxAgeDays)
	}
	// Unset overlay fields keep env/default values.
	if cfg.Health.AlertRetention != 100 {
		t.Errorf("AlertRetention = %d, want default 100", cfg.Health.AlertRetention)
	}
	if cfg.Retention.AuditDays != 7 {
		t.Errorf("Retention.AuditDays = %d, want 7", cfg.Retention.AuditDays)
	}
	if cfg.Retention.ActivityDays != 30 {
		t.Errorf("Retention.ActivityDays = %d, want default 30", cfg.Retention.ActivityDays)
	}
	if cfg.Notify.MinPriority != "high" {
		t.Errorf("Notify.MinPriority = %q, want high", cfg.Notify.MinPriority)
	}
	if len(cfg.Notify.Channels) != 1 || cfg.Notify.Channels[0].Name != "ops" {
		t.Errorf("Notify.Channels = %+v, want seeded ops channel", cfg.Notify.Channels)
	}
}

func TestLoad_MissingConfigFile(t *testing.T) {
	clearCopilotEnv(t)
	t.Setenv("COPILOT_CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yaml"))

	if _, err := config.Load(); err == nil {
		t.Error("Load() with missing config file error = nil, want error")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	clearCopilotEnv(t)
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("port: [not an int"), 0644); err != nil {
		t.Fatalf("write overlay: %v", err)
	}
	t.Setenv("COPILOT_CONFIG_FILE", path)

	if _, err := config.Load(); err == nil {
		t.Error("Load() with invalid yaml error = nil, want error")
	}
}
