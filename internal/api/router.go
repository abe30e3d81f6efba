package api

import (
	"encoding/json"
	"net/http"

	"github.com/pressmill/pressmill/copilot-core/internal/api/handlers"
	"github.com/pressmill/pressmill/copilot-core/internal/api/middleware"
	"github.com/pressmill/pressmill/copilot-core/internal/config"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates the HTTP router with all admin API routes.
func NewRouter(cfg *config.Config, h *handlers.Handlers) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Compress(5))
	r.Use(middleware.Logger)
	r.Use(middleware.Telemetry)
	r.Use(middleware.NewAPIKeyAuth(cfg.APIKeys).Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Actor", "X-Role", "X-Session-Id", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health & info
	r.Get("/health", healthHandler)
	r.Get("/version", versionHandler(cfg))

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		// Tool registry and gated execution
		r.Route("/tools", func(r chi.Router) {
			r.Get("/", h.ListTools)
			r.Post("/{toolName}/invoke", h.InvokeTool)
		})

		// Pending activities (confirmation workflow)
		r.Route("/activities", func(r chi.Router) {
			r.Get("/", h.ListActivities)
			r.Route("/{activityID}", func(r chi.Router) {
				r.Get("/", h.GetActivity)
				r.Post("/confirm", h.ConfirmActivity)
				r.Post("/reject", h.RejectActivity)
			})
		})

		// Audit trail
		r.Get("/audit", h.ListAuditEvents)

		// Health checks & alert lifecycle
		r.Get("/health/run", h.RunHealthCheck)
		r.Route("/alerts", func(r chi.Router) {
			r.Get("/", h.ListAlerts)
			r.Post("/ack-all", h.AcknowledgeAllAlerts)
			r.Post("/{alertID}/ack", h.AcknowledgeAlert)
		})

		// Scheduled tasks
		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", h.ListTasks)
			r.Post("/{taskName}/run", h.RunTask)
		})

		// Notification dispatcher
		r.Route("/notifications", func(r chi.Router) {
			r.Get("/config", h.GetNotificationConfig)
			r.Put("/config", h.UpdateNotificationConfig)
			r.Get("/channels", h.ListChannels)
			r.Put("/channels/{channelName}", h.UpsertChannel)
			r.Delete("/channels/{channelName}", h.DeleteChannel)
		})
	})

	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"service": "pressmill-copilot-core",
	})
}

func versionHandler(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"version": cfg.Version,
			"service": "pressmill-copilot-core",
		})
	}
}
