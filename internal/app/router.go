package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-pharmacy/internal/audit"
	"github.com/odyssey-erp/odyssey-pharmacy/internal/auth"
	"github.com/odyssey-erp/odyssey-pharmacy/internal/catalog"
	"github.com/odyssey-erp/odyssey-pharmacy/internal/inventory"
	"github.com/odyssey-erp/odyssey-pharmacy/internal/observability"
	"github.com/odyssey-erp/odyssey-pharmacy/internal/prescriptions"
	"github.com/odyssey-erp/odyssey-pharmacy/internal/reorder"
	"github.com/odyssey-erp/odyssey-pharmacy/internal/supply"
	"github.com/odyssey-erp/odyssey-pharmacy/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger   *slog.Logger
	Config   *Config
	Verifier auth.Verifier
	Metrics  *observability.Metrics

	JobHandler *jobs.Handler

	CatalogHandler      *catalog.Handler
	InventoryHandler    *inventory.Handler
	PrescriptionHandler *prescriptions.Handler
	SupplyHandler       *supply.Handler
	ReorderHandler      *reorder.Handler
	AuditHandler        *audit.Handler
}

// NewRouter constructs the chi.Router with pharmacy defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	limit := 0
	if params.Config != nil {
		limit = params.Config.RateLimitPerMinute
	}
	r.Route("/api/v1", func(api chi.Router) {
		api.Use(rateLimit(limit))
		api.Use(auth.Middleware(params.Verifier, params.Logger))
		if params.CatalogHandler != nil {
			params.CatalogHandler.MountRoutes(api)
		}
		if params.InventoryHandler != nil {
			params.InventoryHandler.MountRoutes(api)
		}
		if params.PrescriptionHandler != nil {
			params.PrescriptionHandler.MountRoutes(api)
		}
		if params.SupplyHandler != nil {
			params.SupplyHandler.MountRoutes(api)
		}
		if params.ReorderHandler != nil {
			params.ReorderHandler.MountRoutes(api)
		}
		if params.AuditHandler != nil {
			params.AuditHandler.MountRoutes(api)
		}
	})

	return r
}
