package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/smtp"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pressmill/pressmill/copilot-core/pkg/models"
	"github.com/rs/zerolog/log"
)

// ── Console ──────────────────────────────────────────────────

// ConsoleChannelDriver writes each alert to the process log. It is the
// always-available sink and never fails.
type ConsoleChannelDriver struct{}

func (d *ConsoleChannelDriver) Kind() models.ChannelKind {
	return models.ChannelConsole
}

func (d *ConsoleChannelDriver) Send(_ context.Context, channel *models.NotificationChannel, entries []models.AlertHistoryEntry) error {
	for _, e := range entries {
		log.Info().
			Str("channel", channel.Name).
			Str("alert_id", e.ID).
			Str("type", string(e.Alert.Type)).
			Str("priority", string(e.Alert.Priority)).
			Str("action", e.Alert.Action).
			Msg(e.Alert.Message)
	}
	return nil
}

// ── Webhook ──────────────────────────────────────────────────

// WebhookChannelDriver posts the alert batch as JSON to the channel URL
// with optional HMAC-SHA256 signing. Transient failures are retried with
// exponential backoff, capped at three attempts.
type WebhookChannelDriver struct {
	client *http.Client
}

// webhookPayload is the wire shape posted to webhook channels.
type webhookPayload struct {
	Source    string                     `json:"source"`
	Timestamp time.Time                  `json:"timestamp"`
	Count     int                        `json:"count"`
	Alerts    []models.AlertHistoryEntry `json:"alerts"`
}

func (d *WebhookChannelDriver) Kind() models.ChannelKind {
	return models.ChannelWebhook
}

func (d *WebhookChannelDriver) Send(ctx context.Context, channel *models.NotificationChannel, entries []models.AlertHistoryEntry) error {
	if channel.URL == "" {
		return fmt.Errorf("channel %s has no webhook URL", channel.Name)
	}

	body, err := json.Marshal(webhookPayload{
		Source:    "pressmill-copilot",
		Timestamp: time.Now().UTC(),
		Count:     len(entries),
		Alerts:    entries,
	})
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	post := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, channel.URL, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("build webhook request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "Pressmill-Copilot-Webhook/1.0")
		if channel.Secret != "" {
			mac := hmac.New(sha256.New, []byte(channel.Secret))
			mac.Write(body)
			req.Header.Set("X-Pressmill-Signature", "sha256="+hex.EncodeToString(mac.Sum(nil)))
		}

		resp, err := d.client.Do(req)
		if err != nil {
			return err
		}
		resp.Body.Close()
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		err = fmt.Errorf("webhook HTTP %d from %s", resp.StatusCode, channel.URL)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return backoff.Permanent(err)
		}
		return err
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2),
		ctx,
	)
	if err := backoff.Retry(post, policy); err != nil {
		return fmt.Errorf("webhook delivery to %s: %w", channel.Name, err)
	}
	return nil
}

// ── Email ────────────────────────────────────────────────────

// EmailChannelDriver renders the alert batch as a plain-text summary and
// sends it over SMTP. The SMTP endpoint comes from the channel Config
// ("smtp_host", "smtp_port", optional "smtp_user"/"smtp_password",
// "from"); without an smtp_host the rendered summary is logged instead
// of sent, which keeps the channel usable in development.
type EmailChannelDriver struct{}

func (d *EmailChannelDriver) Kind() models.ChannelKind {
	return models.ChannelEmail
}

func (d *EmailChannelDriver) Send(_ context.Context, channel *models.NotificationChannel, entries []models.AlertHistoryEntry) error {
	if channel.Address == "" {
		return fmt.Errorf("channel %s has no recipient address", channel.Name)
	}

	subject := fmt.Sprintf("[Pressmill Copilot] %d alert(s)", len(entries))
	body := renderEmailBody(entries)

	host, _ := channel.Config["smtp_host"].(string)
	if host == "" {
		log.Info().
			Str("channel", channel.Name).
			Str("to", channel.Address).
			Str("subject", subject).
			Msg("SMTP not configured, logging email summary\n" + body)
		return nil
	}

	port, _ := channel.Config["smtp_port"].(string)
	if port == "" {
		port = "587"
	}
	from, _ := channel.Config["from"].(string)
	if from == "" {
		from = "copilot@pressmill.local"
	}

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n",
		from, channel.Address, subject, body)

	var auth smtp.Auth
	if user, ok := channel.Config["smtp_user"].(string); ok && user != "" {
		pass, _ := channel.Config["smtp_password"].(string)
		auth = smtp.PlainAuth("", user, pass, host)
	}

	if err := smtp.SendMail(host+":"+port, auth, from, []string{channel.Address}, []byte(msg)); err != nil {
		return fmt.Errorf("send alert email to %s: %w", channel.Address, err)
	}
	return nil
}

func renderEmailBody(entries []models.AlertHistoryEntry) string {
	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, "[%s] %s: %s\n", strings.ToUpper(string(e.Alert.Priority)), e.Alert.Type, e.Alert.Message)
		if e.Alert.Action != "" {
			fmt.Fprintf(&b, "  recommended: %s\n", e.Alert.Action)
		}
	}
	return b.String()
}
