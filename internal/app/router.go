package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-cmms/meridian-cmms/internal/auth"
	"github.com/meridian-cmms/meridian-cmms/internal/equipment"
	"github.com/meridian-cmms/meridian-cmms/internal/inventory"
	"github.com/meridian-cmms/meridian-cmms/internal/maintenance"
	"github.com/meridian-cmms/meridian-cmms/internal/observability"
	"github.com/meridian-cmms/meridian-cmms/internal/workorders"
	"github.com/meridian-cmms/meridian-cmms/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	Pool               *pgxpool.Pool
	AuthService        *auth.Service
	KeysHandler        *auth.Handler
	InventoryHandler   *inventory.Handler
	EquipmentHandler   *equipment.Handler
	WorkOrdersHandler  *workorders.Handler
	MaintenanceHandler *maintenance.Handler
	JobsHandler        *jobs.Handler
	Metrics            *observability.Metrics
}

// NewRouter constructs the chi.Router with Meridian defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Readiness gates on Postgres; Redis outages degrade alerts and the
	// job queue but leave the ledger serviceable.
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if params.Pool != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := params.Pool.Ping(ctx); err != nil {
				params.Logger.Warn("readiness probe", slog.Any("error", err))
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"status":"unavailable","reason":"database"}`))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		if params.AuthService != nil && (params.Config == nil || !params.Config.AuthDisabled) {
			r.Use(auth.RequireAPIKey(params.AuthService))
		}
		if params.InventoryHandler != nil {
			r.Route("/inventory", params.InventoryHandler.MountRoutes)
		}
		if params.EquipmentHandler != nil {
			r.Route("/equipment", params.EquipmentHandler.MountRoutes)
		}
		if params.WorkOrdersHandler != nil {
			r.Route("/work-orders", params.WorkOrdersHandler.MountRoutes)
		}
		if params.MaintenanceHandler != nil {
			r.Route("/maintenance", params.MaintenanceHandler.MountRoutes)
		}
		if params.KeysHandler != nil {
			r.Route("/keys", params.KeysHandler.MountRoutes)
		}
		if params.JobsHandler != nil {
			r.Route("/jobs", params.JobsHandler.MountRoutes)
		}
	})

	return r
}
