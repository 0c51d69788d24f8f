package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/meridian-club/meridian/internal/auth"
	"github.com/meridian-club/meridian/internal/content"
	"github.com/meridian-club/meridian/internal/grants"
	"github.com/meridian-club/meridian/internal/initiations"
	"github.com/meridian-club/meridian/internal/observability"
	"github.com/meridian-club/meridian/internal/orders"
	"github.com/meridian-club/meridian/internal/shared"
	"github.com/meridian-club/meridian/internal/subroles"
	"github.com/meridian-club/meridian/internal/users"
	"github.com/meridian-club/meridian/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager

	AuthHandler       *auth.Handler
	SubRoleHandler    *subroles.Handler
	GrantHandler      *grants.Handler
	ContentHandler    *content.Handler
	OrderHandler      *orders.Handler
	InitiationHandler *initiations.Handler
	UserHandler       *users.Handler
	JobHandler        *jobs.Handler

	Metrics *observability.Metrics
}

// NewRouter constructs the chi.Router with Meridian defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
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
		r.Route("/auth", params.AuthHandler.MountRoutes)
		if params.SubRoleHandler != nil {
			r.Route("/subroles", params.SubRoleHandler.MountRoutes)
		}
		if params.GrantHandler != nil {
			r.Route("/grants", params.GrantHandler.MountRoutes)
		}
		if params.ContentHandler != nil {
			params.ContentHandler.MountRoutes(r)
		}
		if params.OrderHandler != nil {
			r.Route("/orders", params.OrderHandler.MountRoutes)
		}
		if params.InitiationHandler != nil {
			r.Route("/initiations", params.InitiationHandler.MountRoutes)
		}
		if params.UserHandler != nil {
			r.Route("/users", params.UserHandler.MountRoutes)
		}
	})

	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
