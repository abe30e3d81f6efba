// Package notify fans alert history entries out to configured
// notification channels (console, webhook, email).
//
// Dispatch is best-effort: a failing channel never blocks delivery to
// the others and never surfaces an error to the caller. Channels are
// driven by pluggable ChannelDriver implementations registered per
// channel kind.
package notify

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/expr-lang/expr"
	"github.com/pressmill/pressmill/copilot-core/internal/config"
	"github.com/pressmill/pressmill/copilot-core/internal/store"
	"github.com/pressmill/pressmill/copilot-core/pkg/contracts"
	"github.com/pressmill/pressmill/copilot-core/pkg/models"
	"github.com/rs/zerolog/log"
)

// Service dispatches alert entries to registered notification channels.
type Service struct {
	channels store.ChannelStore
	client   *http.Client

	cfgMu sync.RWMutex
	cfg   models.NotificationConfig

	drvMu   sync.RWMutex
	drivers map[models.ChannelKind]contracts.ChannelDriver
}

// NewService creates a dispatcher with the built-in console, webhook and
// email drivers and seeds any channels from cfg into the store.
func NewService(ctx context.Context, cfg config.NotifyConfig, channels store.ChannelStore) *Service {
	svc := &Service{
		channels: channels,
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
		cfg: models.NotificationConfig{
			Enabled:     cfg.Enabled,
			MinPriority: models.AlertPriority(cfg.MinPriority),
		},
		drivers: make(map[models.ChannelKind]contracts.ChannelDriver),
	}
	if svc.cfg.MinPriority.Rank() < 0 {
		svc.cfg.MinPriority = models.PriorityLow
	}

	svc.RegisterDriver(&ConsoleChannelDriver{})
	svc.RegisterDriver(&WebhookChannelDriver{client: svc.client})
	svc.RegisterDriver(&EmailChannelDriver{})

	svc.seedChannels(ctx, cfg.Channels)
	return svc
}

// RegisterDriver adds or replaces the driver for a channel kind.
func (s *Service) RegisterDriver(driver contracts.ChannelDriver) {
	s.drvMu.Lock()
	defer s.drvMu.Unlock()
	s.drivers[driver.Kind()] = driver
	log.Info().Str("kind", string(driver.Kind())).Msg("Registered notification channel driver")
}

// GetDriver returns the driver for a channel kind, or nil.
func (s *Service) GetDriver(kind models.ChannelKind) contracts.ChannelDriver {
	s.drvMu.RLock()
	defer s.drvMu.RUnlock()
	return s.drivers[kind]
}

// Config returns the current dispatcher configuration.
func (s *Service) Config() models.NotificationConfig {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return s.cfg
}

// UpdateConfig replaces the dispatcher configuration at runtime. An
// unknown min priority is rejected.
func (s *Service) UpdateConfig(cfg models.NotificationConfig) error {
	if cfg.MinPriority.Rank() < 0 {
		return fmt.Errorf("unknown min priority: %q", cfg.MinPriority)
	}
	s.cfgMu.Lock()
	defer s.cfgMu.Unlock()
	s.cfg = cfg
	log.Info().
		Bool("enabled", cfg.Enabled).
		Str("min_priority", string(cfg.MinPriority)).
		Msg("Notification config updated")
	return nil
}

// seedChannels upserts config-file channels into the store at startup so
// runtime edits and file-declared channels share one source of truth.
func (s *Service) seedChannels(ctx context.Context, seeds []config.ChannelConfig) {
	for _, c := range seeds {
		ch := &models.NotificationChannel{
			Name:    c.Name,
			Kind:    models.ChannelKind(c.Kind),
			URL:     c.URL,
			Secret:  c.Secret,
			Address: c.Address,
			Filter:  c.Filter,
			Enabled: c.Enabled,
		}
		if err := s.channels.UpsertChannel(ctx, ch); err != nil {
			log.Warn().Err(err).Str("channel", c.Name).Msg("Failed to seed notification channel")
		}
	}
}

// Notify delivers new alert entries to every enabled channel. Entries
// below the configured minimum priority are filtered out first; a
// disabled dispatcher or an empty batch is a no-op. Channel failures are
// logged and isolated.
func (s *Service) Notify(ctx context.Context, entries []models.AlertHistoryEntry) {
	cfg := s.Config()
	if !cfg.Enabled || len(entries) == 0 {
		return
	}

	eligible := entries[:0:0]
	for _, e := range entries {
		if e.Alert.Priority.AtLeast(cfg.MinPriority) {
			eligible = append(eligible, e)
		}
	}
	if len(eligible) == 0 {
		return
	}

	s.deliver(ctx, eligible)
}

// NotifyHealthCheck emits a summary notice for a completed health-check
// run. The summary bypasses the per-alert priority floor but still
// respects the dispatcher enabled flag and per-channel filters.
func (s *Service) NotifyHealthCheck(ctx context.Context, report *models.HealthReport) {
	log.Info().
		Str("status", string(report.Status)).
		Str("summary", report.Summary).
		Msg("Health check summary")

	if !s.Config().Enabled || report.Status == models.HealthHealthy {
		return
	}

	s.deliver(ctx, []models.AlertHistoryEntry{{
		ID: fmt.Sprintf("health-summary-%d", report.Timestamp.Unix()),
		Alert: models.Alert{
			Type:     "health_summary",
			Priority: summaryPriority(report.Status),
			Message:  report.Summary,
		},
		Timestamp: report.Timestamp,
	}})
}

// NotifyTaskCompletion reports a scheduled-task outcome. Failures are
// dispatched as high-priority notices; successes only as a debug log.
func (s *Service) NotifyTaskCompletion(ctx context.Context, taskName, status string, details map[string]interface{}) {
	if status != models.TaskRunFailure {
		log.Debug().Str("task", taskName).Str("status", status).Msg("Scheduled task completed")
		return
	}

	log.Warn().Str("task", taskName).Fields(details).Msg("Scheduled task failed")
	if !s.Config().Enabled {
		return
	}

	s.deliver(ctx, []models.AlertHistoryEntry{{
		ID: fmt.Sprintf("task-%s-%d", taskName, time.Now().Unix()),
		Alert: models.Alert{
			Type:     "task_failure",
			Priority: models.PriorityHigh,
			Message:  fmt.Sprintf("scheduled task %q failed", taskName),
			Details:  details,
			Action:   "Check the task run history and logs",
		},
		Timestamp: time.Now().UTC(),
	}})
}

// deliver fans entries out to all enabled channels concurrently.
func (s *Service) deliver(ctx context.Context, entries []models.AlertHistoryEntry) {
	channels, err := s.channels.ListChannels(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to list notification channels")
		return
	}

	var wg sync.WaitGroup
	for i := range channels {
		ch := channels[i]
		if !ch.Enabled {
			continue
		}
		matched := filterForChannel(&ch, entries)
		if len(matched) == 0 {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.sendToChannel(ctx, &ch, matched)
		}()
	}
	wg.Wait()
}

func (s *Service) sendToChannel(ctx context.Context, ch *models.NotificationChannel, entries []models.AlertHistoryEntry) {
	driver := s.GetDriver(ch.Kind)
	if driver == nil {
		log.Warn().Str("kind", string(ch.Kind)).Str("channel", ch.Name).Msg("No channel driver")
		return
	}
	if err := driver.Send(ctx, ch, entries); err != nil {
		log.Warn().Err(err).
			Str("channel", ch.Name).
			Str("kind", string(ch.Kind)).
			Int("alerts", len(entries)).
			Msg("Channel notification failed")
		return
	}
	log.Info().
		Str("channel", ch.Name).
		Str("kind", string(ch.Kind)).
		Int("alerts", len(entries)).
		Msg("Channel notification dispatched")
}

// filterForChannel applies the channel's filter expression to each
// entry. An empty filter matches everything; an expression that fails to
// compile or evaluate is treated as matching, so a typo degrades to
// over-delivery rather than silence.
func filterForChannel(ch *models.NotificationChannel, entries []models.AlertHistoryEntry) []models.AlertHistoryEntry {
	if ch.Filter == "" {
		return entries
	}

	program, err := expr.Compile(ch.Filter, expr.AsBool())
	if err != nil {
		log.Warn().Err(err).Str("channel", ch.Name).Str("filter", ch.Filter).Msg("Invalid channel filter expression")
		return entries
	}

	matched := entries[:0:0]
	for _, e := range entries {
		env := map[string]interface{}{
			"type":     string(e.Alert.Type),
			"priority": string(e.Alert.Priority),
			"message":  e.Alert.Message,
			"action":   e.Alert.Action,
			"details":  e.Alert.Details,
		}
		out, err := expr.Run(program, env)
		if err != nil {
			log.Warn().Err(err).Str("channel", ch.Name).Msg("Channel filter evaluation failed")
			matched = append(matched, e)
			continue
		}
		if pass, ok := out.(bool); ok && pass {
			matched = append(matched, e)
		}
	}
	return matched
}

func summaryPriority(status models.HealthStatus) models.AlertPriority {
	if status == models.HealthCritical {
		return models.PriorityHigh
	}
	return models.PriorityMedium
}
