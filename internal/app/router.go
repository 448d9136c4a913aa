package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mannybatth/carrier-nest-web-sub010/internal/auth"
	"github.com/mannybatth/carrier-nest-web-sub010/internal/driverinvoices"
	"github.com/mannybatth/carrier-nest-web-sub010/internal/invoices"
	"github.com/mannybatth/carrier-nest-web-sub010/internal/observability"
	"github.com/mannybatth/carrier-nest-web-sub010/internal/platform/httpx"
	"github.com/mannybatth/carrier-nest-web-sub010/internal/shared"
	"github.com/mannybatth/carrier-nest-web-sub010/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger                *slog.Logger
	Config                *Config
	SessionManager        *shared.SessionManager
	AuthHandler           *auth.Handler
	InvoicesHandler       *invoices.Handler
	DriverInvoicesHandler *driverinvoices.Handler
	JobHandler            *jobs.Handler
	Metrics               *observability.Metrics
}

// NewRouter constructs the chi.Router with the API defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		Metrics:        params.Metrics,
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

	r.Route("/api", func(r chi.Router) {
		if params.AuthHandler != nil {
			r.Route("/auth", params.AuthHandler.MountRoutes)
		}
		r.Group(func(r chi.Router) {
			r.Use(shared.RequireTenant(params.Logger))
			if params.InvoicesHandler != nil {
				r.Route("/invoices", params.InvoicesHandler.MountRoutes)
			}
			if params.DriverInvoicesHandler != nil {
				r.Route("/driverinvoices", params.DriverInvoicesHandler.MountRoutes)
			}
		})
		if params.DriverInvoicesHandler != nil {
			r.Route("/driver-portal", func(r chi.Router) {
				params.DriverInvoicesHandler.MountPortalRoutes(r, params.Config.PortalRateLimit)
			})
		}
	})

	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.Fail(w, http.StatusNotFound, "Not found")
	})
	return r
}
