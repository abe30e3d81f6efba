// Package scheduler owns the copilot's recurring background jobs. Tasks
// are registered with five-field cron expressions and fired against one
// fixed timezone; every run's outcome is persisted so operators can see
// when a job last ran and how it went.
//
// Overlap semantics: the scheduler does not serialize fires of the same
// task. A slow handler can overlap its next fire; handlers touching
// shared resources must be idempotent or synchronize internally.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/pressmill/pressmill/copilot-core/internal/store"
	"github.com/pressmill/pressmill/copilot-core/pkg/models"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Task is the immutable definition of one scheduled job.
type Task struct {
	Name         string
	Description  string
	Schedule     string // five-field cron expression
	Handler      func(ctx context.Context) (interface{}, error)
	Enabled      bool
	RunOnStartup bool
}

// CompletionNotifier receives task-completion notices. Satisfied by the
// notification dispatcher; a nil notifier disables notices.
type CompletionNotifier interface {
	NotifyTaskCompletion(ctx context.Context, taskName, status string, details map[string]interface{})
}

// handle is the runtime state paired with one armed task.
type handle struct {
	entryID  cron.EntryID
	runCount int
	lastRun  time.Time
}

// TaskStatus is the introspection shape returned by Tasks().
type TaskStatus struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Schedule    string     `json:"schedule"`
	Enabled     bool       `json:"enabled"`
	RunCount    int        `json:"run_count"`
	LastRun     *time.Time `json:"last_run,omitempty"`
	NextRun     *time.Time `json:"next_run,omitempty"`
}

// Scheduler fires registered tasks at their cron times.
type Scheduler struct {
	runs     store.TaskRunStore
	notifier CompletionNotifier
	loc      *time.Location
	parser   cron.Parser

	mu      sync.Mutex
	cron    *cron.Cron
	tasks   map[string]Task
	handles map[string]*handle
	running bool
}

// New creates a scheduler evaluating all cron expressions in loc.
func New(runs store.TaskRunStore, loc *time.Location, notifier CompletionNotifier) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{
		runs:     runs,
		notifier: notifier,
		loc:      loc,
		parser:   cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		tasks:    make(map[string]Task),
		handles:  make(map[string]*handle),
	}
}

// Start arms the given tasks and begins firing. Tasks with invalid cron
// expressions are logged and skipped; run-on-startup tasks execute once
// synchronously before Start returns, and a startup failure does not
// prevent the cron schedule from being armed.
func (s *Scheduler) Start(tasks []Task) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		log.Warn().Msg("Scheduler already running")
		return
	}
	s.cron = cron.New(cron.WithLocation(s.loc), cron.WithParser(s.parser))
	s.running = true
	s.mu.Unlock()

	for _, t := range tasks {
		if err := s.ScheduleTask(t); err != nil {
			log.Error().Err(err).Str("task", t.Name).Msg("Failed to schedule task")
		}
	}

	s.cron.Start()
	log.Info().
		Int("tasks", len(tasks)).
		Str("timezone", s.loc.String()).
		Msg("Task scheduler started")
}

// ScheduleTask validates and arms one task. Re-scheduling an existing
// name first removes the old handle so no duplicate timers fire. The
// task's startup run (if any) happens synchronously.
func (s *Scheduler) ScheduleTask(t Task) error {
	if t.Name == "" {
		return fmt.Errorf("schedule task: empty name")
	}
	if t.Handler == nil {
		return fmt.Errorf("schedule task %s: nil handler", t.Name)
	}
	if !t.Enabled {
		log.Info().Str("task", t.Name).Msg("Task disabled, not scheduled")
		return nil
	}
	if _, err := s.parser.Parse(t.Schedule); err != nil {
		return fmt.Errorf("schedule task %s: invalid cron expression %q: %w", t.Name, t.Schedule, err)
	}

	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return fmt.Errorf("schedule task %s: scheduler not running", t.Name)
	}
	// No duplicate timers for one name.
	if old, ok := s.handles[t.Name]; ok {
		s.cron.Remove(old.entryID)
		delete(s.handles, t.Name)
	}

	name := t.Name
	entryID, err := s.cron.AddFunc(t.Schedule, func() {
		s.execute(context.Background(), name)
	})
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("schedule task %s: %w", t.Name, err)
	}
	s.tasks[t.Name] = t
	s.handles[t.Name] = &handle{entryID: entryID}
	s.mu.Unlock()

	log.Info().
		Str("task", t.Name).
		Str("schedule", t.Schedule).
		Bool("run_on_startup", t.RunOnStartup).
		Msg("Task scheduled")

	if t.RunOnStartup {
		s.execute(context.Background(), t.Name)
	}
	return nil
}

// UnscheduleTask removes a task's timer. Returns false when no task with
// that name is armed.
func (s *Scheduler) UnscheduleTask(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.handles[name]
	if !ok {
		return false
	}
	s.cron.Remove(h.entryID)
	delete(s.handles, name)
	delete(s.tasks, name)
	log.Info().Str("task", name).Msg("Task unscheduled")
	return true
}

// ExecuteManually fires a task immediately, outside its cron schedule.
func (s *Scheduler) ExecuteManually(name string) (interface{}, error) {
	s.mu.Lock()
	t, ok := s.tasks[name]
	s.mu.Unlock()
	if !ok {
		return nil, &store.ErrNotFound{Entity: "task", Key: name}
	}

	result, err := s.run(context.Background(), t)
	return result, err
}

// Stop halts all timers. In-flight task handlers run to completion;
// there is no cancellation primitive for them.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.cron.Stop()
	s.handles = make(map[string]*handle)
	s.tasks = make(map[string]Task)
	s.running = false
	log.Info().Msg("Task scheduler stopped")
}

// RunCount returns how many times the named task has fired since it was
// scheduled.
func (s *Scheduler) RunCount(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.handles[name]; ok {
		return h.runCount
	}
	return 0
}

// Tasks returns the status of every armed task.
func (s *Scheduler) Tasks() []TaskStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]TaskStatus, 0, len(s.tasks))
	for name, t := range s.tasks {
		st := TaskStatus{
			Name:        name,
			Description: t.Description,
			Schedule:    t.Schedule,
			Enabled:     t.Enabled,
		}
		if h, ok := s.handles[name]; ok {
			st.RunCount = h.runCount
			if !h.lastRun.IsZero() {
				lr := h.lastRun
				st.LastRun = &lr
			}
			entry := s.cron.Entry(h.entryID)
			if !entry.Next.IsZero() {
				next := entry.Next
				st.NextRun = &next
			}
		}
		out = append(out, st)
	}
	return out
}

// execute looks up the task and runs it, swallowing the error: one
// task's failure never stops the scheduler or other tasks.
func (s *Scheduler) execute(ctx context.Context, name string) {
	s.mu.Lock()
	t, ok := s.tasks[name]
	s.mu.Unlock()
	if !ok {
		return
	}
	if _, err := s.run(ctx, t); err != nil {
		log.Warn().Err(err).Str("task", name).Msg("Scheduled task failed")
	}
}

// run invokes the handler, measures duration, bumps the handle state,
// persists the run outcome, and notifies completion.
func (s *Scheduler) run(ctx context.Context, t Task) (result interface{}, err error) {
	start := time.Now()
	log.Debug().Str("task", t.Name).Msg("Task firing")

	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("task panic: %v", r)
			}
		}()
		result, err = t.Handler(ctx)
	}()

	duration := time.Since(start)
	now := time.Now().UTC()

	s.mu.Lock()
	if h, ok := s.handles[t.Name]; ok {
		h.runCount++
		h.lastRun = now
	}
	s.mu.Unlock()

	run := &models.TaskRun{
		TaskName:   t.Name,
		DurationMs: duration.Milliseconds(),
		LastRunAt:  now,
	}
	status := models.TaskRunSuccess
	details := map[string]interface{}{"duration_ms": duration.Milliseconds()}
	if err != nil {
		status = models.TaskRunFailure
		run.Status = models.TaskRunFailure
		run.Error = err.Error()
		details["error"] = err.Error()
		log.Warn().Err(err).Str("task", t.Name).Dur("duration", duration).Msg("Task run failed")
	} else {
		run.Status = models.TaskRunSuccess
		if result != nil {
			if serialized, jerr := json.Marshal(result); jerr == nil {
				run.Result = string(serialized)
			}
		}
		log.Info().Str("task", t.Name).Dur("duration", duration).Msg("Task run complete")
	}

	if s.runs != nil {
		if rerr := s.runs.RecordTaskRun(ctx, run); rerr != nil {
			log.Error().Err(rerr).Str("task", t.Name).Msg("Failed to persist task run")
		}
	}
	if s.notifier != nil {
		s.notifier.NotifyTaskCompletion(ctx, t.Name, status, details)
	}
	return result, err
}
