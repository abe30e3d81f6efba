// Package handlers implements the HTTP handlers for the copilot admin API.
// Every handler goes through the same components the scheduler uses: the
// execution engine for tool calls, the alert manager for the alert
// lifecycle, and the store for durable records.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pressmill/pressmill/copilot-core/internal/health"
	"github.com/pressmill/pressmill/copilot-core/internal/notify"
	"github.com/pressmill/pressmill/copilot-core/internal/scheduler"
	"github.com/pressmill/pressmill/copilot-core/internal/store"
	"github.com/pressmill/pressmill/copilot-core/internal/tools"
	"github.com/pressmill/pressmill/copilot-core/pkg/models"
	"github.com/rs/zerolog/log"
)

// Handlers holds all handler dependencies.
type Handlers struct {
	Store     store.Store
	Registry  *tools.Registry
	Engine    *tools.Engine
	Health    *health.Engine
	Alerts    *health.AlertManager
	Scheduler *scheduler.Scheduler
	Notify    *notify.Service
}

// New creates a Handlers instance with all dependencies.
func New(s store.Store, reg *tools.Registry, eng *tools.Engine, he *health.Engine, am *health.AlertManager, sch *scheduler.Scheduler, ns *notify.Service) *Handlers {
	return &Handlers{
		Store:     s,
		Registry:  reg,
		Engine:    eng,
		Health:    he,
		Alerts:    am,
		Scheduler: sch,
		Notify:    ns,
	}
}

// ── Tool Handlers ────────────────────────────────────────────

// ListTools returns the registered tool declarations in the shape an
// external agent consumes.
func (h *Handlers) ListTools(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"tools": h.Registry.Declarations(),
	})
}

type invokeRequest struct {
	Arguments map[string]interface{} `json:"arguments"`
}

// InvokeTool runs a tool through the permission engine. Gated tools
// return 202 with the pending activity; AUTO tools return the handler's
// result directly.
func (h *Handlers) InvokeTool(w http.ResponseWriter, r *http.Request) {
	toolName := chi.URLParam(r, "toolName")

	var req invokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	result := h.Engine.Invoke(r.Context(), toolName, req.Arguments, callerContext(r))
	respondJSON(w, invokeStatus(result), result)
}

// invokeStatus maps a tool result onto an HTTP status: pending
// confirmation is 202, a failure 422, success 200.
func invokeStatus(res models.ToolResult) int {
	switch {
	case res.RequiresConfirmation:
		return http.StatusAccepted
	case !res.Success:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusOK
	}
}

// ── Activity Handlers ────────────────────────────────────────

func (h *Handlers) ListActivities(w http.ResponseWriter, r *http.Request) {
	status := models.ActivityStatus(r.URL.Query().Get("status"))
	limit := queryInt(r, "limit", 50)

	var (
		activities []models.PendingActivity
		err        error
	)
	if actor := r.URL.Query().Get("actor"); actor != "" {
		activities, err = h.Store.ListActivitiesByActor(r.Context(), actor, limit)
	} else {
		activities, err = h.Store.ListActivities(r.Context(), status, limit)
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if activities == nil {
		activities = []models.PendingActivity{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"activities": activities,
		"count":      len(activities),
	})
}

func (h *Handlers) GetActivity(w http.ResponseWriter, r *http.Request) {
	activity, err := h.Store.GetActivity(r.Context(), chi.URLParam(r, "activityID"))
	if err != nil {
		var nf *store.ErrNotFound
		if errors.As(err, &nf) {
			respondError(w, http.StatusNotFound, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, activity)
}

// ConfirmActivity resumes a pending activity, running its tool handler.
func (h *Handlers) ConfirmActivity(w http.ResponseWriter, r *http.Request) {
	result := h.Engine.Resume(r.Context(), chi.URLParam(r, "activityID"), callerContext(r))
	status := http.StatusOK
	if !result.Success {
		status = http.StatusConflict
	}
	respondJSON(w, status, result)
}

// RejectActivity marks a pending activity rejected without executing it.
func (h *Handlers) RejectActivity(w http.ResponseWriter, r *http.Request) {
	result := h.Engine.Reject(r.Context(), chi.URLParam(r, "activityID"), callerContext(r))
	status := http.StatusOK
	if !result.Success {
		status = http.StatusConflict
	}
	respondJSON(w, status, result)
}

// ── Audit Handlers ───────────────────────────────────────────

func (h *Handlers) ListAuditEvents(w http.ResponseWriter, r *http.Request) {
	filter := models.AuditFilter{
		Actor:    r.URL.Query().Get("actor"),
		ToolName: r.URL.Query().Get("tool"),
		Limit:    queryInt(r, "limit", 100),
		Offset:   queryInt(r, "offset", 0),
	}
	if since := r.URL.Query().Get("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid since timestamp: "+err.Error())
			return
		}
		filter.Since = &t
	}

	events, err := h.Store.ListAuditEvents(r.Context(), filter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if events == nil {
		events = []models.AuditEvent{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"count":  len(events),
	})
}

// ── Health & Alert Handlers ──────────────────────────────────

// RunHealthCheck executes a health-check run on demand, folds the
// derived alerts into the history and dispatches the new ones.
func (h *Handlers) RunHealthCheck(w http.ResponseWriter, r *http.Request) {
	report := h.Health.RunHealthCheck(r.Context())
	created := h.Alerts.Record(report.Alerts)
	h.Notify.Notify(r.Context(), created)
	h.Notify.NotifyHealthCheck(r.Context(), report)
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"report":     report,
		"new_alerts": len(created),
	})
}

func (h *Handlers) ListAlerts(w http.ResponseWriter, r *http.Request) {
	var entries []models.AlertHistoryEntry
	if r.URL.Query().Get("all") == "true" {
		entries = h.Alerts.History(queryInt(r, "limit", 0))
	} else {
		entries = h.Alerts.ActiveAlerts()
	}
	if entries == nil {
		entries = []models.AlertHistoryEntry{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"alerts": entries,
		"count":  len(entries),
	})
}

func (h *Handlers) AcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "alertID")
	if !h.Alerts.Acknowledge(id, callerContext(r).Actor) {
		respondError(w, http.StatusNotFound, "alert not found: "+id)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"acknowledged": id})
}

// AcknowledgeAllAlerts acknowledges every active alert, or only those of
// one type when ?type= is given.
func (h *Handlers) AcknowledgeAllAlerts(w http.ResponseWriter, r *http.Request) {
	by := callerContext(r).Actor
	var n int
	if alertType := r.URL.Query().Get("type"); alertType != "" {
		n = h.Alerts.AcknowledgeByType(models.AlertType(alertType), by)
	} else {
		n = h.Alerts.AcknowledgeAll(by)
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"acknowledged": n})
}

// ── Task Handlers ────────────────────────────────────────────

func (h *Handlers) ListTasks(w http.ResponseWriter, r *http.Request) {
	runs, err := h.Store.ListTaskRuns(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"tasks": h.Scheduler.Tasks(),
		"runs":  runs,
	})
}

// RunTask triggers a scheduled task outside its cron schedule.
func (h *Handlers) RunTask(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "taskName")
	result, err := h.Scheduler.ExecuteManually(name)
	if err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	log.Info().Str("task", name).Str("actor", callerContext(r).Actor).Msg("Task run triggered manually")
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"task":   name,
		"result": result,
	})
}

// ── Notification Handlers ────────────────────────────────────

func (h *Handlers) GetNotificationConfig(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.Notify.Config())
}

func (h *Handlers) UpdateNotificationConfig(w http.ResponseWriter, r *http.Request) {
	var cfg models.NotificationConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if err := h.Notify.UpdateConfig(cfg); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, h.Notify.Config())
}

func (h *Handlers) ListChannels(w http.ResponseWriter, r *http.Request) {
	channels, err := h.Store.ListChannels(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if channels == nil {
		channels = []models.NotificationChannel{}
	}
	for i := range channels {
		channels[i].Secret = mask(channels[i].Secret)
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"channels": channels,
		"count":    len(channels),
	})
}

func (h *Handlers) UpsertChannel(w http.ResponseWriter, r *http.Request) {
	var ch models.NotificationChannel
	if err := json.NewDecoder(r.Body).Decode(&ch); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	ch.Name = chi.URLParam(r, "channelName")
	if err := h.Store.UpsertChannel(r.Context(), &ch); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, ch)
}

func (h *Handlers) DeleteChannel(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "channelName")
	if err := h.Store.DeleteChannel(r.Context(), name); err != nil {
		var nf *store.ErrNotFound
		if errors.As(err, &nf) {
			respondError(w, http.StatusNotFound, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"deleted": name})
}

// ── Helpers ──────────────────────────────────────────────────

// callerContext builds the execution context from request headers. An
// unidentified caller defaults to "anonymous".
func callerContext(r *http.Request) models.ExecutionContext {
	actor := r.Header.Get("X-Actor")
	if actor == "" {
		actor = "anonymous"
	}
	return models.ExecutionContext{
		Actor:     actor,
		Role:      r.Header.Get("X-Role"),
		SessionID: r.Header.Get("X-Session-Id"),
		InvokedAt: time.Now().UTC(),
	}
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

// mask redacts a secret for API output, keeping a short prefix.
func mask(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) > 4 {
		return secret[:4] + "****"
	}
	return "****"
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
