package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/straye-as/device-importer/internal/config"
	"github.com/straye-as/device-importer/internal/http/handler"
	"github.com/straye-as/device-importer/internal/http/middleware"
	"go.uber.org/zap"
)

type Router struct {
	cfg           *config.Config
	logger        *zap.Logger
	rateLimiter   *middleware.RateLimiter
	importHandler *handler.ImportHandler
	jobHandler    *handler.JobHandler
}

func NewRouter(
	cfg *config.Config,
	logger *zap.Logger,
	rateLimiter *middleware.RateLimiter,
	importHandler *handler.ImportHandler,
	jobHandler *handler.JobHandler,
) *Router {
	return &Router{
		cfg:           cfg,
		logger:        logger,
		rateLimiter:   rateLimiter,
		importHandler: importHandler,
		jobHandler:    jobHandler,
	}
}

func (rt *Router) Setup() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(rt.logger))
	r.Use(middleware.Logging(rt.logger))
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORS(&rt.cfg.CORS, rt.cfg.App.Environment, rt.logger))
	r.Use(rt.rateLimiter.LimitByIP)

	// Health check (basic liveness probe)
	r.Get("/health", handler.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.APIKey(rt.cfg.ApiKey.Value, rt.logger))

		r.Post("/imports", rt.importHandler.Create)

		r.Route("/jobs", func(r chi.Router) {
			r.Get("/", rt.jobHandler.List)
			r.Get("/{jobId}", rt.jobHandler.GetByID)
			r.Delete("/{jobId}", rt.jobHandler.Cancel)
		})
	})

	return r
}
