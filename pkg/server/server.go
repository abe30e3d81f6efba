// Package server provides the public entry point for initializing the
// Pressmill copilot core.
//
// This package exists in pkg/ (not internal/) so that the hosted
// platform can import it and compose the copilot with its own content
// store and extra notification drivers.
//
// Usage:
//
//	srv, err := server.New(ctx)
//	http.ListenAndServe(":8085", srv.Handler)
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/pressmill/pressmill/copilot-core/internal/api"
	"github.com/pressmill/pressmill/copilot-core/internal/api/handlers"
	"github.com/pressmill/pressmill/copilot-core/internal/config"
	"github.com/pressmill/pressmill/copilot-core/internal/content"
	"github.com/pressmill/pressmill/copilot-core/internal/health"
	"github.com/pressmill/pressmill/copilot-core/internal/notify"
	"github.com/pressmill/pressmill/copilot-core/internal/retention"
	"github.com/pressmill/pressmill/copilot-core/internal/scheduler"
	"github.com/pressmill/pressmill/copilot-core/internal/store"
	"github.com/pressmill/pressmill/copilot-core/internal/telemetry"
	"github.com/pressmill/pressmill/copilot-core/internal/tools"
	"github.com/pressmill/pressmill/copilot-core/pkg/contracts"
	"github.com/pressmill/pressmill/copilot-core/pkg/models"

	"github.com/rs/zerolog/log"
)

// Default task names.
const (
	TaskHealthCheck     = "health_check"
	TaskTrendingRefresh = "trending_refresh"
	TaskStaleSweep      = "stale_content_sweep"
	TaskRetentionSweep  = "retention_sweep"
)

// defaultStorageQuota is the media quota assumed when no content store
// is supplied by the embedding platform.
const defaultStorageQuota = 10 << 30 // 10 GiB

// Server holds the initialized copilot core.
type Server struct {
	// Handler is the HTTP handler with all routes and middleware.
	Handler http.Handler

	// Store is the copilot's own durable store (activities, audit,
	// task runs, channels).
	Store store.Store

	// Content is the content-store collaborator tool handlers and
	// health checks read from.
	Content contracts.ContentStore

	Registry  *tools.Registry
	Engine    *tools.Engine
	Health    *health.Engine
	Alerts    *health.AlertManager
	Scheduler *scheduler.Scheduler
	Notify    *notify.Service

	Config *config.Config
	Port   int

	// ShutdownFunc should be called on graceful shutdown to flush
	// telemetry.
	ShutdownFunc func(context.Context) error
}

// New initializes the copilot with environment configuration and the
// in-memory content store.
func New(ctx context.Context) (*Server, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return NewWithContent(ctx, cfg, nil)
}

// NewWithContent initializes the copilot against an explicit content
// store; a nil store falls back to the in-memory implementation.
func NewWithContent(ctx context.Context, cfg *config.Config, cs contracts.ContentStore) (*Server, error) {
	shutdown, err := telemetry.Init(cfg.Telemetry, cfg.Version)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	dataStore, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if cs == nil {
		cs = content.NewMemoryContentStore(defaultStorageQuota)
		log.Info().Msg("In-memory content store initialized")
	}

	registry := tools.NewRegistry()
	if err := tools.RegisterBuiltins(registry, cs); err != nil {
		return nil, fmt.Errorf("register builtin tools: %w", err)
	}
	engine := tools.NewEngine(registry, dataStore)

	healthEngine := health.NewEngine(cs, dataStore, cfg.Health)
	alerts := health.NewAlertManager(cfg.Health.AlertRetention)
	notifier := notify.NewService(ctx, cfg.Notify, dataStore)

	loc, err := time.LoadLocation(cfg.Scheduler.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load scheduler timezone %q: %w", cfg.Scheduler.Timezone, err)
	}
	var archiver contracts.ArchiveDriver
	if cfg.Retention.ArchiveDir != "" {
		archiver = retention.NewLocalFileArchiver(cfg.Retention.ArchiveDir)
	}
	janitor := retention.NewJanitor(dataStore, cfg.Retention.AuditDays, cfg.Retention.ActivityDays, archiver)

	sched := scheduler.New(dataStore, loc, notifier)
	sched.Start(defaultTasks(cfg, engine, healthEngine, alerts, notifier, cs, janitor))

	h := handlers.New(dataStore, registry, engine, healthEngine, alerts, sched, notifier)
	router := api.NewRouter(cfg, h)

	return &Server{
		Handler:      router,
		Store:        dataStore,
		Content:      cs,
		Registry:     registry,
		Engine:       engine,
		Health:       healthEngine,
		Alerts:       alerts,
		Scheduler:    sched,
		Notify:       notifier,
		Config:       cfg,
		Port:         cfg.Port,
		ShutdownFunc: shutdown,
	}, nil
}

// openStore selects Postgres when a database URL is configured and the
// snapshot-persisted in-memory store otherwise.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	if cfg.Database.URL != "" {
		s, err := store.OpenPostgres(ctx, cfg.Database.URL, cfg.Database.MaxConnections)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		log.Info().Msg("Postgres store initialized")
		return s, nil
	}
	log.Info().Msg("In-memory store initialized")
	return store.NewMemoryStore(), nil
}

// defaultTasks wires the standing automation: the hourly health check
// feeding the alert lifecycle and dispatcher, the trending-cache
// refresh, and the daily stale-content sweep routed through the
// permission engine so the archive stays gated on human approval.
func defaultTasks(cfg *config.Config, engine *tools.Engine, he *health.Engine, am *health.AlertManager, ns *notify.Service, cs contracts.ContentStore, janitor *retention.Janitor) []scheduler.Task {
	disabled := make(map[string]bool, len(cfg.Scheduler.DisabledTasks))
	for _, name := range cfg.Scheduler.DisabledTasks {
		disabled[name] = true
	}

	schedulerContext := func() models.ExecutionContext {
		return models.ExecutionContext{
			Actor:     "scheduler",
			Role:      "system",
			InvokedAt: time.Now().UTC(),
		}
	}

	return []scheduler.Task{
		{
			Name:         TaskHealthCheck,
			Description:  "Run all health checks, record new alerts, dispatch notifications",
			Schedule:     "0 * * * *",
			Enabled:      !disabled[TaskHealthCheck],
			RunOnStartup: true,
			Handler: func(ctx context.Context) (interface{}, error) {
				report := he.RunHealthCheck(ctx)
				created := am.Record(report.Alerts)
				ns.Notify(ctx, created)
				ns.NotifyHealthCheck(ctx, report)
				return map[string]interface{}{
					"status":     report.Status,
					"new_alerts": len(created),
				}, nil
			},
		},
		{
			Name:        TaskTrendingRefresh,
			Description: "Recompute the trending-topics cache from recent published articles",
			Schedule:    "*/30 * * * *",
			Enabled:     !disabled[TaskTrendingRefresh],
			Handler: func(ctx context.Context) (interface{}, error) {
				topics, err := cs.RefreshTrendingTopics(ctx)
				if err != nil {
					return nil, err
				}
				return map[string]interface{}{"topics": topics}, nil
			},
		},
		{
			Name:        TaskStaleSweep,
			Description: "Queue a gated archive of stale published articles for approval",
			Schedule:    "0 3 * * *",
			Enabled:     !disabled[TaskStaleSweep],
			Handler: func(ctx context.Context) (interface{}, error) {
				res := engine.Invoke(ctx, "archive_stale_articles", map[string]interface{}{
					"older_than_days": cfg.Health.FreshnessMaxAgeDays,
				}, schedulerContext())
				if !res.Success && !res.RequiresConfirmation {
					return nil, fmt.Errorf("stale sweep invoke failed: %s", res.Error)
				}
				return res.Data, nil
			},
		},
		{
			Name:        TaskRetentionSweep,
			Description: "Prune expired audit events and terminal activities",
			Schedule:    "30 3 * * *",
			Enabled:     !disabled[TaskRetentionSweep],
			Handler: func(ctx context.Context) (interface{}, error) {
				return janitor.RunCycle(ctx), nil
			},
		},
	}
}
