package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/contexttree/canvas-api/internal/middleware"
	"github.com/contexttree/canvas-api/internal/service"
	"github.com/contexttree/canvas-api/pkg/logger"
)

// RouterConfig carries what NewRouter needs.
type RouterConfig struct {
	JWTSecret         string
	CORSOrigins       []string
	RateLimitRequests int
	RateLimitWindow   time.Duration

	Store    Pinger
	Canvases *service.CanvasService
	Messages *service.MessageService
	Contexts *service.ContextService
	Versions *service.VersionService
	LLM      *service.LLMService
	Logger   *logger.Logger
}

// NewRouter builds the HTTP routes.
func NewRouter(cfg RouterConfig) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = logger.Global()
	}
	healthHandler := NewHealthHandler(cfg.Store)
	canvasHandler := NewCanvasHandler(cfg.Canvases, log)
	messageHandler := NewMessageHandler(cfg.Messages, log)
	contextHandler := NewContextHandler(cfg.Contexts, log)
	versionHandler := NewVersionHandler(cfg.Versions, log)
	llmHandler := NewLLMHandler(cfg.LLM, log)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.CORSOrigins))

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		if cfg.RateLimitRequests > 0 {
			r.Use(middleware.UserRateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))
		}

		r.Post("/llm", llmHandler.Complete)
		r.Get("/prompts/templates", llmHandler.Templates)

		r.Route("/canvases", func(r chi.Router) {
			r.Post("/", canvasHandler.Create)
			r.Get("/", canvasHandler.List)

			r.Route("/{canvasId}", func(r chi.Router) {
				r.Get("/", canvasHandler.Get)

				r.Post("/nodes", canvasHandler.CreateNode)
				r.Route("/nodes/{nodeId}", func(r chi.Router) {
					r.Get("/", canvasHandler.GetNode)
					r.Delete("/", canvasHandler.DeleteNode)
					r.Put("/content", canvasHandler.UpdateNodeContent)

					r.Get("/messages", messageHandler.List)
					r.Post("/messages", messageHandler.Append)

					r.Get("/connections", contextHandler.Connections)
					r.Get("/context", contextHandler.Assemble)
					r.Post("/prompt", llmHandler.Preview)
				})

				r.Post("/connections", contextHandler.Connect)
				r.Delete("/connections/{contextNodeId}/{llmCallNodeId}", contextHandler.Disconnect)

				r.Post("/versions", versionHandler.Create)
				r.Get("/versions", versionHandler.List)
				r.Get("/versions/compare", versionHandler.Compare)
				r.Get("/versions/{versionId}", versionHandler.Get)
				r.Post("/versions/{versionId}/revert", versionHandler.Revert)

				r.Post("/branches", versionHandler.CreateBranch)
				r.Get("/branches", versionHandler.Branches)
				r.Post("/branches/{branch}/switch", versionHandler.SwitchBranch)
				r.Delete("/branches/{branch}", versionHandler.DeleteBranch)
			})
		})
	})

	return r
}
