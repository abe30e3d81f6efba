package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the copilot automation core.
type Config struct {
	Port      int
	Version   string
	APIKeys   []string // admin API keys; empty disables auth
	Database  DatabaseConfig
	Scheduler SchedulerConfig
	Health    HealthConfig
	Retention RetentionConfig
	Notify    NotifyConfig
	Telemetry TelemetryConfig
}

type DatabaseConfig struct {
	// URL selects the Postgres store when set; empty falls back to the
	// snapshot-persisted in-memory store.
	URL            string
	MaxConnections int
}

type SchedulerConfig struct {
	// Timezone is the single fixed timezone all cron expressions are
	// evaluated against (IANA name, e.g. "Europe/Berlin").
	Timezone string

	// DisabledTasks lists task names registered but not armed.
	DisabledTasks []string `yaml:"disabled_tasks"`
}

type HealthConfig struct {
	// QualityScoreFloor is the score below which an article counts as
	// low quality.
	QualityScoreFloor float64 `yaml:"quality_score_floor"`

	// FreshnessMaxAgeDays is the age after which an article counts as
	// outdated.
	FreshnessMaxAgeDays int `yaml:"freshness_max_age_days"`

	// AlertRetention caps the alert history size.
	AlertRetention int `yaml:"alert_retention"`
}

type RetentionConfig struct {
	// AuditDays is how long audit events are kept before the retention
	// sweep prunes them.
	AuditDays int `yaml:"audit_days"`

	// ActivityDays is how long terminal activities are kept.
	ActivityDays int `yaml:"activity_days"`

	// ArchiveDir, when set, receives JSONL archives of pruned records.
	ArchiveDir string `yaml:"archive_dir"`
}

type NotifyConfig struct {
	Enabled     bool   `yaml:"enabled"`
	MinPriority string `yaml:"min_priority"`

	// Channels seeds the dispatcher at startup. Runtime changes through
	// the admin API are persisted to the store, not written back here.
	Channels []ChannelConfig `yaml:"channels"`
}

// ChannelConfig is the YAML shape of one notification channel.
type ChannelConfig struct {
	Name    string `yaml:"name"`
	Kind    string `yaml:"kind"`
	URL     string `yaml:"url"`
	Secret  string `yaml:"secret"`
	Address string `yaml:"address"`
	Filter  string `yaml:"filter"`
	Enabled bool   `yaml:"enabled"`
}

type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string
	ServiceName  string
}

// Load reads configuration from environment variables with sensible
// defaults, then applies the optional YAML overlay file pointed to by
// COPILOT_CONFIG_FILE.
func Load() (*Config, error) {
	cfg := &Config{
		Port:    envInt("COPILOT_PORT", 8085),
		Version: envStr("COPILOT_VERSION", "0.4.0"),
		APIKeys: envList("COPILOT_API_KEYS"),
		Database: DatabaseConfig{
			URL:            envStr("DATABASE_URL", ""),
			MaxConnections: envInt("DATABASE_MAX_CONNECTIONS", 10),
		},
		Scheduler: SchedulerConfig{
			Timezone: envStr("COPILOT_SCHEDULER_TZ", "UTC"),
		},
		Health: HealthConfig{
			QualityScoreFloor:   envFloat("COPILOT_QUALITY_FLOOR", 0.5),
			FreshnessMaxAgeDays: envInt("COPILOT_FRESHNESS_MAX_AGE_DAYS", 90),
			AlertRetention:      envInt("COPILOT_ALERT_RETENTION", 100),
		},
		Retention: RetentionConfig{
			AuditDays:    envInt("COPILOT_AUDIT_RETENTION_DAYS", 30),
			ActivityDays: envInt("COPILOT_ACTIVITY_RETENTION_DAYS", 30),
			ArchiveDir:   envStr("COPILOT_ARCHIVE_DIR", ""),
		},
		Notify: NotifyConfig{
			Enabled:     envBool("COPILOT_NOTIFY_ENABLED", true),
			MinPriority: envStr("COPILOT_NOTIFY_MIN_PRIORITY", "low"),
		},
		Telemetry: TelemetryConfig{
			Enabled:      envBool("OTEL_ENABLED", false),
			OTLPEndpoint: envStr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			ServiceName:  envStr("OTEL_SERVICE_NAME", "pressmill-copilot-core"),
		},
	}

	if path := os.Getenv("COPILOT_CONFIG_FILE"); path != "" {
		if err := applyFile(cfg, path); err != nil {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
	}
	return cfg, nil
}

// fileOverlay mirrors the subset of Config settable via YAML.
type fileOverlay struct {
	Port      int              `yaml:"port"`
	Scheduler SchedulerConfig  `yaml:"scheduler"`
	Health    HealthConfig     `yaml:"health"`
	Retention *RetentionConfig `yaml:"retention"`
	Notify    *NotifyConfig    `yaml:"notify"`
}

func applyFile(cfg *Config, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var overlay fileOverlay
	if err := yaml.Unmarshal(raw, &overlay); err != nil {
		return fmt.Errorf("parse yaml: %w", err)
	}

	if overlay.Port > 0 {
		cfg.Port = overlay.Port
	}
	if overlay.Scheduler.Timezone != "" {
		cfg.Scheduler.Timezone = overlay.Scheduler.Timezone
	}
	if len(overlay.Scheduler.DisabledTasks) > 0 {
		cfg.Scheduler.DisabledTasks = overlay.Scheduler.DisabledTasks
	}
	if overlay.Health.QualityScoreFloor > 0 {
		cfg.Health.QualityScoreFloor = overlay.Health.QualityScoreFloor
	}
	if overlay.Health.FreshnessMaxAgeDays > 0 {
		cfg.Health.FreshnessMaxAgeDays = overlay.Health.FreshnessMaxAgeDays
	}
	if overlay.Health.AlertRetention > 0 {
		cfg.Health.AlertRetention = overlay.Health.AlertRetention
	}
	if overlay.Retention != nil {
		if overlay.Retention.AuditDays > 0 {
			cfg.Retention.AuditDays = overlay.Retention.AuditDays
		}
		if overlay.Retention.ActivityDays > 0 {
			cfg.Retention.ActivityDays = overlay.Retention.ActivityDays
		}
		if overlay.Retention.ArchiveDir != "" {
			cfg.Retention.ArchiveDir = overlay.Retention.ArchiveDir
		}
	}
	if overlay.Notify != nil {
		cfg.Notify = *overlay.Notify
		if cfg.Notify.MinPriority == "" {
			cfg.Notify.MinPriority = "low"
		}
	}
	return nil
}

// envList splits a comma-separated variable, dropping empty items.
func envList(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
