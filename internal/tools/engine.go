package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pressmill/pressmill/copilot-core/internal/store"
	"github.com/pressmill/pressmill/copilot-core/pkg/models"
	"github.com/rs/zerolog/log"
)

// Engine gates and executes registered tools.
//
// AUTO tools run immediately and are logged for audit. CONFIRM and
// CONFIRM_TWICE tools never run on Invoke: the engine persists a pending
// activity and returns a confirmation message; Resume runs the handler
// once the caller approves; Reject closes the activity without running
// anything. Handler failures and panics become failed results — an
// activity is never left stuck in executing.
type Engine struct {
	registry *Registry
	store    store.Store

	// claimMu serializes pending→executing transitions so a Resume
	// racing a Reject (or another Resume) can never double-execute.
	claimMu sync.Mutex
}

// NewEngine creates a tool execution engine.
func NewEngine(registry *Registry, s store.Store) *Engine {
	return &Engine{registry: registry, store: s}
}

// Invoke executes an AUTO tool immediately, or creates a pending
// confirmation activity for gated tools. It never returns an error:
// every failure mode is a structured result.
func (e *Engine) Invoke(ctx context.Context, toolName string, args map[string]interface{}, ec models.ExecutionContext) models.ToolResult {
	d, ok := e.registry.Get(toolName)
	if !ok {
		return models.ToolResult{Success: false, Error: fmt.Sprintf("tool not found: %s", toolName)}
	}

	if err := e.registry.ValidateArgs(toolName, args); err != nil {
		return models.ToolResult{Success: false, Error: err.Error()}
	}

	if d.Tier.RequiresConfirmation() {
		return e.gate(ctx, d, args, ec)
	}

	// AUTO tier: execute now, log directly as executed/failed for audit.
	activityID := uuid.New().String()
	result := e.runHandler(ctx, d, args, ec)
	e.recordExecution(ctx, activityID, d, args, ec, result, true)
	return result
}

// gate persists a pending activity and returns the gated result.
func (e *Engine) gate(ctx context.Context, d *Descriptor, args map[string]interface{}, ec models.ExecutionContext) models.ToolResult {
	serialized, err := json.Marshal(args)
	if err != nil {
		return models.ToolResult{Success: false, Error: fmt.Sprintf("serialize arguments: %v", err)}
	}

	activity := &models.PendingActivity{
		ID:                   uuid.New().String(),
		ToolName:             d.Name,
		Arguments:            string(serialized),
		Status:               models.ActivityPending,
		RequiresConfirmation: true,
		Actor:                ec.Actor,
		CreatedAt:            time.Now().UTC(),
	}
	if err := e.store.CreateActivity(ctx, activity); err != nil {
		log.Error().Err(err).Str("tool", d.Name).Msg("Failed to persist pending activity")
		return models.ToolResult{Success: false, Error: fmt.Sprintf("persist pending activity: %v", err)}
	}

	log.Info().
		Str("tool", d.Name).
		Str("activity", activity.ID).
		Str("tier", string(d.Tier)).
		Str("actor", ec.Actor).
		Msg("Tool invocation gated, awaiting confirmation")

	return models.ToolResult{
		Success:              false,
		RequiresConfirmation: true,
		ConfirmationMessage:  ConfirmationMessage(d, args),
		Data: map[string]interface{}{
			"activity_id":     activity.ID,
			"tool_name":       d.Name,
			"parameters":      args,
			"permission_tier": string(d.Tier),
		},
	}
}

// Resume runs a previously gated invocation after caller approval. The
// stored arguments are authoritative: the caller approved exactly what
// the confirmation message rendered.
func (e *Engine) Resume(ctx context.Context, activityID string, ec models.ExecutionContext) models.ToolResult {
	activity, result := e.claim(ctx, activityID)
	if activity == nil {
		return result
	}

	d, ok := e.registry.Get(activity.ToolName)
	if !ok {
		res := models.ToolResult{Success: false, Error: fmt.Sprintf("tool not found: %s", activity.ToolName)}
		e.finish(ctx, activity, ec, res)
		return res
	}

	var args map[string]interface{}
	if err := json.Unmarshal([]byte(activity.Arguments), &args); err != nil {
		res := models.ToolResult{Success: false, Error: fmt.Sprintf("deserialize arguments: %v", err)}
		e.finish(ctx, activity, ec, res)
		return res
	}

	// Handler may block on I/O; no store lock is held here.
	res := e.runHandler(ctx, d, args, ec)
	e.finish(ctx, activity, ec, res)
	return res
}

// claim transitions a pending activity to executing, or explains why it
// cannot. Terminal statuses fail cleanly — no double execution.
func (e *Engine) claim(ctx context.Context, activityID string) (*models.PendingActivity, models.ToolResult) {
	e.claimMu.Lock()
	defer e.claimMu.Unlock()

	activity, err := e.store.GetActivity(ctx, activityID)
	if err != nil {
		return nil, models.ToolResult{Success: false, Error: fmt.Sprintf("pending activity not found: %s", activityID)}
	}
	if activity.Status.Terminal() {
		return nil, models.ToolResult{Success: false, Error: fmt.Sprintf("activity %s is already %s", activityID, activity.Status)}
	}
	if activity.Status == models.ActivityExecuting {
		return nil, models.ToolResult{Success: false, Error: fmt.Sprintf("activity %s is already executing", activityID)}
	}

	if err := e.store.UpdateActivityStatus(ctx, activityID, models.ActivityExecuting, true, ""); err != nil {
		return nil, models.ToolResult{Success: false, Error: fmt.Sprintf("claim activity: %v", err)}
	}
	return activity, models.ToolResult{}
}

// finish records the terminal status, serialized result, and audit event
// for a resumed activity.
func (e *Engine) finish(ctx context.Context, activity *models.PendingActivity, ec models.ExecutionContext, res models.ToolResult) {
	status := models.ActivityExecuted
	if !res.Success {
		status = models.ActivityFailed
	}
	serialized, _ := json.Marshal(res)

	if err := e.store.UpdateActivityStatus(ctx, activity.ID, status, true, string(serialized)); err != nil {
		log.Error().Err(err).Str("activity", activity.ID).Msg("Failed to finalize activity status")
	}
	e.audit(ctx, activity.ID, activity.ToolName, ec, res)

	log.Info().
		Str("tool", activity.ToolName).
		Str("activity", activity.ID).
		Str("status", string(status)).
		Str("actor", ec.Actor).
		Msg("Gated tool invocation resumed")
}

// Reject marks a pending activity rejected without running the handler.
// Rejecting an already-rejected activity is a no-op, not an error.
func (e *Engine) Reject(ctx context.Context, activityID string, ec models.ExecutionContext) models.ToolResult {
	e.claimMu.Lock()
	defer e.claimMu.Unlock()

	activity, err := e.store.GetActivity(ctx, activityID)
	if err != nil {
		return models.ToolResult{Success: false, Error: fmt.Sprintf("pending activity not found: %s", activityID)}
	}
	if activity.Status == models.ActivityRejected {
		return models.ToolResult{Success: true, Message: fmt.Sprintf("activity %s already rejected", activityID)}
	}
	if activity.Status.Terminal() || activity.Status == models.ActivityExecuting {
		return models.ToolResult{Success: false, Error: fmt.Sprintf("activity %s is already %s", activityID, activity.Status)}
	}

	if err := e.store.UpdateActivityStatus(ctx, activityID, models.ActivityRejected, false, ""); err != nil {
		return models.ToolResult{Success: false, Error: fmt.Sprintf("reject activity: %v", err)}
	}

	log.Info().
		Str("tool", activity.ToolName).
		Str("activity", activityID).
		Str("actor", ec.Actor).
		Msg("Gated tool invocation rejected")

	return models.ToolResult{Success: true, Message: fmt.Sprintf("activity %s rejected", activityID)}
}

// runHandler invokes the handler, converting panics into failed results.
func (e *Engine) runHandler(ctx context.Context, d *Descriptor, args map[string]interface{}, ec models.ExecutionContext) (res models.ToolResult) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("tool", d.Name).Interface("panic", r).Msg("Tool handler panicked")
			res = models.ToolResult{Success: false, Error: fmt.Sprintf("handler panic: %v", r)}
		}
	}()
	return d.Handler(ctx, args, ec)
}

// recordExecution logs an AUTO-tier run as an executed/failed activity
// (confirmed implicitly) plus an audit event.
func (e *Engine) recordExecution(ctx context.Context, activityID string, d *Descriptor, args map[string]interface{}, ec models.ExecutionContext, res models.ToolResult, confirmed bool) {
	serializedArgs, _ := json.Marshal(args)
	serializedRes, _ := json.Marshal(res)

	status := models.ActivityExecuted
	if !res.Success {
		status = models.ActivityFailed
	}
	now := time.Now().UTC()
	activity := &models.PendingActivity{
		ID:        activityID,
		ToolName:  d.Name,
		Arguments: string(serializedArgs),
		Status:    status,
		Confirmed: confirmed,
		Actor:     ec.Actor,
		Result:    string(serializedRes),
		CreatedAt: now,
	}
	if confirmed {
		activity.ConfirmedAt = &now
	}
	if err := e.store.CreateActivity(ctx, activity); err != nil {
		log.Error().Err(err).Str("tool", d.Name).Msg("Failed to record execution activity")
	}
	e.audit(ctx, activityID, d.Name, ec, res)
}

// audit writes one audit event per handler execution.
func (e *Engine) audit(ctx context.Context, activityID, toolName string, ec models.ExecutionContext, res models.ToolResult) {
	event := &models.AuditEvent{
		ID:         uuid.New().String(),
		Timestamp:  time.Now().UTC(),
		Actor:      ec.Actor,
		Role:       ec.Role,
		ToolName:   toolName,
		ActivityID: activityID,
		Success:    res.Success,
		Error:      res.Error,
	}
	if err := e.store.CreateAuditEvent(ctx, event); err != nil {
		log.Error().Err(err).Str("tool", toolName).Msg("Failed to write audit event")
	}
}
