// Package api provides the HTTP API for PrintPush.
package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/printpush/printpush/internal/api/handler"
	"github.com/printpush/printpush/internal/api/middleware"
	"github.com/printpush/printpush/internal/provider/resilience"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	Logger      zerolog.Logger
	ServiceName string
	Metrics     *middleware.Metrics
	RequireTLS  bool

	// TokenValidator authenticates bearer tokens on /v1/apps and /v1/events.
	TokenValidator middleware.TokenValidator

	Apps      handler.AppRegistry
	Config    handler.RemoteConfig
	Host      handler.EventHost
	Store     handler.Pinger
	Engine    handler.InFlightReporter
	Status    handler.ConfigStatus
	Sweeper   handler.SweeperStatus
	Providers *resilience.Registry
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Set default service name if not provided
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "printpush-api"
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)            // Generate/propagate request ID first
	r.Use(middleware.Tracing(serviceName)) // Distributed tracing
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware()) // HTTP metrics
	}
	r.Use(middleware.Logger(cfg.Logger))         // Structured logging
	r.Use(middleware.Recovery(cfg.Logger))       // Panic recovery
	r.Use(chimiddleware.RealIP)                  // Real IP extraction
	r.Use(middleware.SecurityHeaders)            // Security headers (HSTS, CSP, etc.)
	r.Use(middleware.RequireTLS(cfg.RequireTLS)) // TLS enforcement
	r.Use(middleware.ContentTypeJSON)            // JSON content type

	opsHandler := handler.NewOpsHandler(handler.OpsConfig{
		Version:   cfg.Version,
		BuildTime: cfg.BuildTime,
		Store:     cfg.Store,
		Apps:      cfg.Apps,
		Engine:    cfg.Engine,
		Config:    cfg.Status,
		Sweeper:   cfg.Sweeper,
		Providers: cfg.Providers,
		Logger:    cfg.Logger,
	})

	authMiddleware := middleware.Auth(cfg.TokenValidator)
	standardRateLimit := middleware.RateLimitByIP(middleware.StandardRateLimit) // 100 req/min

	r.Route("/v1", func(r chi.Router) {
		// Ops endpoints (public)
		r.Route("/ops", func(r chi.Router) {
			r.Use(standardRateLimit)
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			// Status endpoint requires authentication
			r.With(authMiddleware).Get("/status", opsHandler.SystemStatus)
		})

		if cfg.Apps != nil {
			appsHandler := handler.NewAppsHandler(cfg.Apps, cfg.Config, cfg.Logger)
			r.Route("/apps", func(r chi.Router) {
				r.Use(authMiddleware)
				r.Use(middleware.RateLimitBySubject(middleware.RegistrationRateLimit))
				r.Use(middleware.RequireJSON)
				r.Get("/", appsHandler.ListApps)
				r.Post("/", appsHandler.RegisterApp)
				r.Delete("/{token}", appsHandler.UnregisterApp)
			})
		}

		if cfg.Host != nil {
			eventsHandler := handler.NewEventsHandler(cfg.Host, cfg.Logger)
			r.Route("/events", func(r chi.Router) {
				r.Use(authMiddleware)
				r.Use(middleware.RateLimitBySubject(middleware.EventRateLimit))
				r.Use(middleware.RequireJSON)
				r.Post("/", eventsHandler.PostEvent)
			})
		}
	})

	return r
}
