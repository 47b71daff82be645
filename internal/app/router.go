package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/sojourn-loans/sojourn/internal/auth"
	"github.com/sojourn-loans/sojourn/internal/loan"
	"github.com/sojourn-loans/sojourn/internal/observability"
	"github.com/sojourn-loans/sojourn/internal/portal"
	"github.com/sojourn-loans/sojourn/internal/shared"
	"github.com/sojourn-loans/sojourn/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger        *slog.Logger
	Config        *Config
	AuthHandler   *auth.Handler
	AuthMW        auth.Middleware
	LoanHandler   *loan.Handler
	PortalHandler *portal.Handler
	JobHandler    *jobs.Handler
	Metrics       *observability.Metrics
}

// NewRouter constructs the chi.Router.
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

	r.Route("/auth", func(r chi.Router) {
		params.AuthHandler.MountRoutes(r)
		r.Group(func(gr chi.Router) {
			gr.Use(params.AuthMW.Authenticate)
			params.AuthHandler.MountProtectedRoutes(gr)
		})
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(params.AuthMW.Authenticate)
		r.Use(params.AuthMW.RequireRole(shared.RoleAdmin))
		params.LoanHandler.MountRoutes(r)
	})

	r.Route("/borrower", func(r chi.Router) {
		r.Use(params.AuthMW.Authenticate)
		r.Use(params.AuthMW.RequireRole(shared.RoleBorrower))
		params.PortalHandler.MountRoutes(r)
	})

	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
