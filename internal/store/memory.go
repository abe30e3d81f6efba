// Package store — in-memory Store implementation.
// Used as a fallback when PostgreSQL is not configured (local dev, tests).
// Supports file-based snapshot persistence so pending activities survive
// restarts, which the confirmation workflow depends on.
package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/pressmill/pressmill/copilot-core/pkg/models"
	"github.com/rs/zerolog/log"
)

// snapshot is the JSON-serializable shape written to disk.
type snapshot struct {
	Activities  map[string]*models.PendingActivity    `json:"activities"`
	AuditEvents []*models.AuditEvent                  `json:"audit_events"`
	TaskRuns    map[string]*models.TaskRun            `json:"task_runs"`
	Channels    map[string]*models.NotificationChannel `json:"channels"`
}

// MemoryStore implements Store with in-memory maps.
type MemoryStore struct {
	mu          sync.RWMutex
	activities  map[string]*models.PendingActivity     // key: id
	auditEvents []*models.AuditEvent                   // append-only log
	taskRuns    map[string]*models.TaskRun             // key: task name
	channels    map[string]*models.NotificationChannel // key: name

	// Persistence
	snapshotPath string        // empty = no persistence
	saveMu       sync.Mutex    // guards file writes
	saveCh       chan struct{} // debounce channel
	doneCh       chan struct{} // signals the save goroutine to stop
	closeOnce    sync.Once
}

// NewMemoryStore creates a new in-memory store.
// If COPILOT_DATA_DIR is set, data is persisted to a JSON file in that
// directory. Otherwise defaults to ~/.pressmill/copilot.json.
func NewMemoryStore() *MemoryStore {
	m := &MemoryStore{
		activities:  make(map[string]*models.PendingActivity),
		auditEvents: make([]*models.AuditEvent, 0),
		taskRuns:    make(map[string]*models.TaskRun),
		channels:    make(map[string]*models.NotificationChannel),
		saveCh:      make(chan struct{}, 1),
		doneCh:      make(chan struct{}),
	}

	dataDir := os.Getenv("COPILOT_DATA_DIR")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			dataDir = filepath.Join(home, ".pressmill")
		}
	}
	if dataDir != "" {
		m.snapshotPath = filepath.Join(dataDir, "copilot.json")
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			log.Warn().Err(err).Str("dir", dataDir).Msg("Cannot create data dir, persistence disabled")
			m.snapshotPath = ""
		}
	}

	if m.snapshotPath != "" {
		m.loadSnapshot()
		go m.saveLoop()
	}

	log.Info().Str("snapshot", m.snapshotPath).Msg("Memory store configured")
	return m
}

// requestSave signals the background goroutine to persist data.
// Non-blocking: coalesces multiple rapid writes into one disk flush.
func (m *MemoryStore) requestSave() {
	if m.snapshotPath == "" {
		return
	}
	select {
	case m.saveCh <- struct{}{}:
	default:
		// Already pending
	}
}

// saveLoop runs in a goroutine, debouncing save requests (max 1 write per 500ms).
func (m *MemoryStore) saveLoop() {
	for {
		select {
		case <-m.doneCh:
			return
		case <-m.saveCh:
			time.Sleep(500 * time.Millisecond) // debounce
			m.saveSnapshot()
		}
	}
}

// saveSnapshot persists all data to disk as JSON.
func (m *MemoryStore) saveSnapshot() {
	m.mu.RLock()
	snap := snapshot{
		Activities:  m.activities,
		AuditEvents: m.auditEvents,
		TaskRuns:    m.taskRuns,
		Channels:    m.channels,
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	m.mu.RUnlock()

	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal snapshot")
		return
	}

	m.saveMu.Lock()
	defer m.saveMu.Unlock()

	// Write to temp file then rename for atomicity
	tmp := m.snapshotPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		log.Error().Err(err).Str("path", tmp).Msg("Failed to write snapshot tmp")
		return
	}
	if err := os.Rename(tmp, m.snapshotPath); err != nil {
		log.Error().Err(err).Str("path", m.snapshotPath).Msg("Failed to rename snapshot")
		return
	}

	log.Debug().Str("path", m.snapshotPath).Msg("Snapshot saved")
}

// loadSnapshot reads data from disk on startup.
func (m *MemoryStore) loadSnapshot() {
	data, err := os.ReadFile(m.snapshotPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info().Str("path", m.snapshotPath).Msg("No snapshot file found, starting fresh")
			return
		}
		log.Warn().Err(err).Str("path", m.snapshotPath).Msg("Failed to read snapshot")
		return
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		log.Error().Err(err).Str("path", m.snapshotPath).Msg("Failed to parse snapshot, starting fresh")
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if snap.Activities != nil {
		m.activities = snap.Activities
	}
	if snap.AuditEvents != nil {
		m.auditEvents = snap.AuditEvents
	}
	if snap.TaskRuns != nil {
		m.taskRuns = snap.TaskRuns
	}
	if snap.Channels != nil {
		m.channels = snap.Channels
	}

	log.Info().
		Int("activities", len(m.activities)).
		Int("audit_events", len(m.auditEvents)).
		Int("task_runs", len(m.taskRuns)).
		Int("channels", len(m.channels)).
		Str("path", m.snapshotPath).
		Msg("Snapshot loaded")
}

// ── Activity Store ──────────────────────────────────────────

func (m *MemoryStore) CreateActivity(ctx context.Context, a *models.PendingActivity) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *a
	m.activities[a.ID] = &cp
	m.requestSave()
	return nil
}

func (m *MemoryStore) GetActivity(ctx context.Context, id string) (*models.PendingActivity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.activities[id]
	if !ok {
		return nil, &ErrNotFound{Entity: "activity", Key: id}
	}
	cp := *a
	return &cp, nil
}

func (m *MemoryStore) UpdateActivityStatus(ctx context.Context, id string, status models.ActivityStatus, confirmed bool, result string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.activities[id]
	if !ok {
		return &ErrNotFound{Entity: "activity", Key: id}
	}

	a.Status = status
	if confirmed && !a.Confirmed {
		a.Confirmed = true
		now := time.Now().UTC()
		a.ConfirmedAt = &now
	}
	if result != "" {
		a.Result = result
	}
	m.requestSave()
	return nil
}

func (m *MemoryStore) ListActivities(ctx context.Context, status models.ActivityStatus, limit int) ([]models.PendingActivity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.PendingActivity, 0, len(m.activities))
	for _, a := range m.activities {
		if status != "" && a.Status != status {
			continue
		}
		out = append(out, *a)
	}
	sortActivitiesNewestFirst(out)
	return capActivities(out, limit), nil
}

func (m *MemoryStore) ListActivitiesByActor(ctx context.Context, actor string, limit int) ([]models.PendingActivity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.PendingActivity, 0)
	for _, a := range m.activities {
		if a.Actor == actor {
			out = append(out, *a)
		}
	}
	sortActivitiesNewestFirst(out)
	return capActivities(out, limit), nil
}

func (m *MemoryStore) PruneTerminalActivities(ctx context.Context, before time.Time) ([]models.PendingActivity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var pruned []models.PendingActivity
	for id, a := range m.activities {
		if !a.Status.Terminal() || !a.CreatedAt.Before(before) {
			continue
		}
		pruned = append(pruned, *a)
		delete(m.activities, id)
	}
	if len(pruned) > 0 {
		m.requestSave()
	}
	return pruned, nil
}

func sortActivitiesNewestFirst(list []models.PendingActivity) {
	sort.Slice(list, func(i, j int) bool {
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
}

func capActivities(list []models.PendingActivity, limit int) []models.PendingActivity {
	if limit > 0 && len(list) > limit {
		return list[:limit]
	}
	return list
}

// ── Audit Store ─────────────────────────────────────────────

func (m *MemoryStore) CreateAuditEvent(ctx context.Context, event *models.AuditEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *event
	m.auditEvents = append(m.auditEvents, &cp)
	m.requestSave()
	return nil
}

func (m *MemoryStore) ListAuditEvents(ctx context.Context, filter models.AuditFilter) ([]models.AuditEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.AuditEvent, 0)
	skip := filter.Offset
	// Append-only log is oldest-first; walk backwards for newest-first.
	for i := len(m.auditEvents) - 1; i >= 0; i-- {
		e := m.auditEvents[i]
		if filter.Actor != "" && e.Actor != filter.Actor {
			continue
		}
		if filter.ToolName != "" && e.ToolName != filter.ToolName {
			continue
		}
		if filter.Since != nil && e.Timestamp.Before(*filter.Since) {
			continue
		}
		if filter.Until != nil && e.Timestamp.After(*filter.Until) {
			continue
		}
		if skip > 0 {
			skip--
			continue
		}
		out = append(out, *e)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryStore) PruneAuditEvents(ctx context.Context, before time.Time) ([]models.AuditEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var pruned []models.AuditEvent
	kept := m.auditEvents[:0]
	for _, e := range m.auditEvents {
		if e.Timestamp.Before(before) {
			pruned = append(pruned, *e)
			continue
		}
		kept = append(kept, e)
	}
	m.auditEvents = kept
	if len(pruned) > 0 {
		m.requestSave()
	}
	return pruned, nil
}

// ── Task Run Store ──────────────────────────────────────────

func (m *MemoryStore) RecordTaskRun(ctx context.Context, run *models.TaskRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.taskRuns[run.TaskName]
	if !ok {
		cp := *run
		if cp.RunCount == 0 {
			cp.RunCount = 1
		}
		if cp.CreatedAt.IsZero() {
			cp.CreatedAt = time.Now().UTC()
		}
		m.taskRuns[run.TaskName] = &cp
		m.requestSave()
		return nil
	}

	existing.Status = run.Status
	existing.Result = run.Result
	existing.Error = run.Error
	existing.DurationMs = run.DurationMs
	existing.LastRunAt = run.LastRunAt
	existing.RunCount++
	m.requestSave()
	return nil
}

func (m *MemoryStore) GetTaskRun(ctx context.Context, taskName string) (*models.TaskRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	run, ok := m.taskRuns[taskName]
	if !ok {
		return nil, &ErrNotFound{Entity: "task run", Key: taskName}
	}
	cp := *run
	return &cp, nil
}

func (m *MemoryStore) ListTaskRuns(ctx context.Context) ([]models.TaskRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.TaskRun, 0, len(m.taskRuns))
	for _, run := range m.taskRuns {
		out = append(out, *run)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TaskName < out[j].TaskName })
	return out, nil
}

// ── Channel Store ───────────────────────────────────────────

func (m *MemoryStore) ListChannels(ctx context.Context) ([]models.NotificationChannel, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.NotificationChannel, 0, len(m.channels))
	for _, ch := range m.channels {
		out = append(out, *ch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemoryStore) GetChannel(ctx context.Context, name string) (*models.NotificationChannel, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ch, ok := m.channels[name]
	if !ok {
		return nil, &ErrNotFound{Entity: "channel", Key: name}
	}
	cp := *ch
	return &cp, nil
}

func (m *MemoryStore) UpsertChannel(ctx context.Context, channel *models.NotificationChannel) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *channel
	now := time.Now().UTC()
	if existing, ok := m.channels[channel.Name]; ok {
		cp.CreatedAt = existing.CreatedAt
	} else if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	m.channels[channel.Name] = &cp
	m.requestSave()
	return nil
}

func (m *MemoryStore) DeleteChannel(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.channels[name]; !ok {
		return &ErrNotFound{Entity: "channel", Key: name}
	}
	delete(m.channels, name)
	m.requestSave()
	return nil
}

// ── Lifecycle ───────────────────────────────────────────────

func (m *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// Close flushes a final snapshot and stops background goroutines.
func (m *MemoryStore) Close() error {
	m.closeOnce.Do(func() {
		close(m.doneCh)
		if m.snapshotPath != "" {
			m.saveSnapshot()
		}
	})
	return nil
}
