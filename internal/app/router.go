package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/threadline-retail/threadline/internal/alerts"
	"github.com/threadline-retail/threadline/internal/billing"
	"github.com/threadline-retail/threadline/internal/catalog"
	"github.com/threadline-retail/threadline/internal/ledger"
	"github.com/threadline-retail/threadline/internal/returns"
	"github.com/threadline-retail/threadline/internal/trash"
	"github.com/threadline-retail/threadline/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger *slog.Logger
	Config *Config

	CatalogHandler *catalog.Handler
	LedgerHandler  *ledger.Handler
	BillingHandler *billing.Handler
	ReturnsHandler *returns.Handler
	AlertsHandler  *alerts.Handler
	TrashHandler   *trash.Handler

	JobsHandler *jobs.Handler
}

// NewRouter constructs the chi.Router with Threadline defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api", func(r chi.Router) {
		params.CatalogHandler.MountRoutes(r)
		params.LedgerHandler.MountRoutes(r)
		params.BillingHandler.MountRoutes(r)
		params.ReturnsHandler.MountRoutes(r)
		params.AlertsHandler.MountRoutes(r)
		params.TrashHandler.MountRoutes(r)
	})

	if params.JobsHandler != nil {
		r.Route("/jobs", params.JobsHandler.MountRoutes)
	}

	return r
}
