// Package router assembles the chi.Mux exposing the HTTP surface named in
// spec §6, mounted under Config.BasePath. All routes share one middleware
// chain; only the chat endpoint opts out of the blanket request timeout
// since it may stream.
package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/connexus-ai/smartrag-orchestrator/internal/config"
	"github.com/connexus-ai/smartrag-orchestrator/internal/handler"
	"github.com/connexus-ai/smartrag-orchestrator/internal/middleware"
	"github.com/connexus-ai/smartrag-orchestrator/internal/repository"
	"github.com/connexus-ai/smartrag-orchestrator/internal/schema"
)

// Dependencies bundles every handler group and cross-cutting collaborator
// the router needs to wire. Built once in main.go after every component
// graph has been constructed.
type Dependencies struct {
	Config  *config.Config
	Metrics *middleware.Metrics
	Reg     *prometheus.Registry

	Documents      *handler.Documents
	Chat           *handler.Chat
	QueryAnalysis  *handler.QueryAnalysis
	AiPinger       handler.AiPinger
	StoragePinger  handler.StoragePinger
	Conversation   repository.ConversationRepository
	Catalog        *schema.Catalog

	Version string
}

// New builds the full API mux: security headers, logging, metrics, CORS,
// internal-auth and rate-limiting apply to every route; the query-timeout
// bound from Config.QueryTimeoutSeconds applies to every route except the
// chat endpoint, which may stream its response.
func New(deps *Dependencies) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.Recoverer)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.Logging)
	if deps.Metrics != nil {
		r.Use(middleware.Monitoring(deps.Metrics))
	}
	r.Use(middleware.CORS(deps.Config.FrontendURL))
	r.Use(middleware.InternalAuth(deps.Config.InternalAuthSecret))

	rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		MaxRequests: 60,
		Window:      time.Minute,
	})
	r.Use(middleware.RateLimit(rateLimiter))

	if deps.Reg != nil {
		r.Handle("/metrics", middleware.MetricsHandler(deps.Reg))
	}

	queryTimeout := time.Duration(deps.Config.QueryTimeoutSeconds) * time.Second
	if queryTimeout <= 0 {
		queryTimeout = 30 * time.Second
	}

	r.Route(deps.Config.BasePath, func(api chi.Router) {
		api.Get("/api/health", handler.Health(deps.AiPinger, deps.StoragePinger, deps.Conversation, deps.Catalog, deps.Version))

		api.Route("/api/documents", func(docs chi.Router) {
			docs.Use(middleware.Timeout(queryTimeout))
			docs.Get("/", deps.Documents.List)
			docs.Get("/schemas", deps.Documents.ListSchemas)
			docs.Post("/", deps.Documents.Upload)
			docs.Delete("/", deps.Documents.DeleteAll)
			docs.Get("/{id}", deps.Documents.Get)
			docs.Get("/{id}/chunks", deps.Documents.GetChunks)
			docs.Delete("/{id}", deps.Documents.Delete)
		})

		api.With(middleware.Timeout(queryTimeout)).Get("/api/upload/supported-types", handler.SupportedTypes)

		// The chat endpoint's database work is bounded by the
		// coordinator-wide deadline (§4.8 item 4, set in the database
		// coordinator's executeAll) and it may stream a response, so it
		// does not get the blanket route timeout.
		api.Post("/api/chat/messages", deps.Chat.PostMessage)
		api.Route("/api/chat/sessions", func(sessions chi.Router) {
			sessions.Use(middleware.Timeout(queryTimeout))
			sessions.Get("/", deps.Chat.ListSessions)
			sessions.Delete("/", deps.Chat.DeleteAllSessions)
			sessions.Get("/{id}", deps.Chat.GetSession)
			sessions.Delete("/{id}", deps.Chat.DeleteSession)
		})

		api.With(middleware.Timeout(queryTimeout)).Get("/api/settings", handler.Settings(deps.Config))
		api.With(middleware.Timeout(queryTimeout)).Get("/api/connections", handler.Connections(deps.Catalog))
		api.With(middleware.Timeout(queryTimeout)).Get("/api/schemas", handler.Schemas(deps.Catalog))
		api.With(middleware.Timeout(queryTimeout)).Post("/api/query-analysis", deps.QueryAnalysis.Handle)
	})

	return r
}

// NotFoundHandler is a small JSON 404, used in tests exercising an
// unmounted route.
func NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	w.Write([]byte(`{"success":false,"error":"not found"}`))
}
