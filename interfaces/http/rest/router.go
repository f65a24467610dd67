package rest

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"stash-backend/application/commands/bus"
	querybus "stash-backend/application/queries/bus"
	"stash-backend/domain/versioning"
	"stash-backend/interfaces/http/rest/handlers"
	"stash-backend/interfaces/http/rest/middleware"
	"stash-backend/pkg/auth"
	"stash-backend/pkg/observability"
	"stash-backend/pkg/utils"
)

// Router creates and configures the HTTP router
type Router struct {
	deps Deps
}

// Deps carries everything the router mounts. All fields are required except
// JWTValidator (nil switches auth to the X-User-ID development fallback) and
// RateLimiter (nil disables throttling).
type Deps struct {
	CommandBus   *bus.CommandBus
	QueryBus     *querybus.QueryBus
	Metrics      *observability.Metrics
	JWTValidator *auth.JWTValidator
	RateLimiter  *auth.UserRateLimiter
	IPLimiter    *auth.IPRateLimiter
	Logger       *zap.Logger

	RequestTimeout time.Duration
	EnableCORS     bool
	EnableMetrics  bool
}

// NewRouter creates a new router instance
func NewRouter(deps Deps) *Router {
	return &Router{deps: deps}
}

// Setup configures all routes and middleware
func (rt *Router) Setup() http.Handler {
	router := chi.NewRouter()

	// Global middleware
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Use(middleware.Logger(rt.deps.Logger))
	router.Use(middleware.Metrics(rt.deps.Metrics))
	if rt.deps.RequestTimeout > 0 {
		router.Use(chimiddleware.Timeout(rt.deps.RequestTimeout))
	}

	if rt.deps.EnableCORS {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"http://localhost:3000", "https://*.stash.app"},
			AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "X-Client-Source"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	// Health check
	router.Get("/health", rt.healthCheck)
	router.Get("/ready", rt.readinessCheck)
	if rt.deps.EnableMetrics {
		router.Handle("/metrics", promhttp.Handler())
	}

	// API v1 routes
	router.Route("/api/v1", func(r chi.Router) {
		if rt.deps.IPLimiter != nil {
			r.Use(middleware.RateLimitByIP(rt.deps.IPLimiter, rt.deps.Logger))
		}
		r.Use(middleware.Authenticate(rt.deps.JWTValidator, rt.deps.Logger))
		if rt.deps.RateLimiter != nil {
			r.Use(middleware.RateLimit(rt.deps.RateLimiter, rt.deps.Logger))
		}

		entityHandler := handlers.NewEntityHandler(rt.deps.CommandBus, rt.deps.QueryBus, rt.deps.Metrics, rt.deps.Logger)
		historyHandler := handlers.NewHistoryHandler(rt.deps.QueryBus, rt.deps.Logger)
		relationshipHandler := handlers.NewRelationshipHandler(rt.deps.CommandBus, rt.deps.QueryBus, rt.deps.Logger)

		// Entity endpoints. The {type}s pattern serves /bookmarks, /notes
		// and /prompts from one route tree; {type} binds the singular form.
		r.Route("/{type}s", func(r chi.Router) {
			r.Post("/", entityHandler.Create)
			r.Get("/", entityHandler.List)
			r.Get("/{id}", entityHandler.Get)
			r.Patch("/{id}", entityHandler.Update)
			r.Delete("/{id}", entityHandler.Lifecycle(versioning.ActionDelete))
			r.Post("/{id}/undelete", entityHandler.Lifecycle(versioning.ActionUndelete))
			r.Post("/{id}/archive", entityHandler.Lifecycle(versioning.ActionArchive))
			r.Post("/{id}/unarchive", entityHandler.Lifecycle(versioning.ActionUnarchive))
			r.Get("/{id}/staleness", entityHandler.Staleness)
		})

		// Version log endpoints
		r.Route("/history", func(r chi.Router) {
			r.Get("/", historyHandler.ListForUser)
			r.Get("/{type}/{id}", historyHandler.ListForEntity)
			r.Get("/{type}/{id}/diff", historyHandler.Diff)
			r.Post("/{type}/{id}/restore/{version}", entityHandler.Restore)
		})

		// Relationship endpoints
		r.Route("/relationships", func(r chi.Router) {
			r.Get("/", relationshipHandler.List)
			r.Post("/", relationshipHandler.Link)
			r.Delete("/{id}", relationshipHandler.Unlink)
		})
	})

	return router
}

// healthCheck handles health check requests
func (rt *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy","time":"` + utils.NowRFC3339() + `"}`))
}

// readinessCheck handles readiness check requests
func (rt *Router) readinessCheck(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ready","time":"` + utils.NowRFC3339() + `"}`))
}
