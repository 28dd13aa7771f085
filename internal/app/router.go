package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/odyssey-erp/odyssey-console/internal/auth"
	"github.com/odyssey-erp/odyssey-console/internal/calendar"
	"github.com/odyssey-erp/odyssey-console/internal/observability"
	"github.com/odyssey-erp/odyssey-console/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-console/internal/rbac"
	"github.com/odyssey-erp/odyssey-console/internal/roles"
	"github.com/odyssey-erp/odyssey-console/internal/shared"
	"github.com/odyssey-erp/odyssey-console/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger          *slog.Logger
	Config          *Config
	AuthHandler     *auth.Handler
	RolesHandler    *roles.Handler
	CalendarHandler *calendar.Handler
	RBACHandler     *rbac.Handler
	JobHandler      *jobs.Handler
	Metrics         *observability.Metrics
}

// NewRouter constructs the chi.Router with Odyssey defaults.
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
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	r.Group(func(r chi.Router) {
		if params.AuthHandler != nil {
			r.Use(params.AuthHandler.Middleware)
			r.Route("/auth", params.AuthHandler.MountRoutes)
		}
		r.Route("/api", func(r chi.Router) {
			r.Use(auth.RequirePrincipal)
			r.Get("/me", func(w http.ResponseWriter, r *http.Request) {
				principal, _ := shared.PrincipalFromContext(r.Context())
				httpx.JSON(w, http.StatusOK, map[string]any{"user_id": principal.UserID, "token_id": principal.TokenID})
			})
			if params.RolesHandler != nil {
				r.Route("/roles", params.RolesHandler.MountRoutes)
				r.Route("/permissions", params.RolesHandler.MountPermissionRoutes)
			}
			if params.CalendarHandler != nil {
				r.Route("/calendar", params.CalendarHandler.MountRoutes)
			}
			if params.RBACHandler != nil {
				r.Route("/rbac", params.RBACHandler.MountRoutes)
			}
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "no route for "+r.URL.Path)
	})
	return r
}
