// Package server provides HTTP server management and lifecycle handling for the pharmacy price API.
// It includes server setup, middleware configuration, route management, and graceful shutdown.
package server

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/giygas/pharmaprice-api/config"
	"github.com/giygas/pharmaprice-api/interfaces"
	"github.com/giygas/pharmaprice-api/logging"
	"github.com/giygas/pharmaprice-api/metrics"
)

// Server represents the HTTP server
type Server struct {
	server  *http.Server
	router  chi.Router
	handler interfaces.HTTPHandler
	events  http.Handler
	limiter *RateLimiter
	config  *config.Config
}

// NewServer creates a new server instance. events serves the websocket stream
// and may be nil.
func NewServer(cfg *config.Config, handler interfaces.HTTPHandler, events http.Handler) *Server {
	router := chi.NewRouter()

	server := &Server{
		server: &http.Server{
			Handler:     router,
			Addr:        cfg.Address + ":" + cfg.Port,
			ReadTimeout: 30 * time.Second,
			// Analyses wait on the oracle
			WriteTimeout: cfg.OracleTimeout + 15*time.Second,
			IdleTimeout:  60 * time.Second,
		},
		router:  router,
		handler: handler,
		events:  events,
		limiter: NewRateLimiter(5 * time.Minute),
		config:  cfg,
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server
}

// setupMiddleware configures all middleware
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(RealIPMiddleware)
	s.router.Use(logging.LoggingMiddleware(logging.With("component", "http")))
	s.router.Use(middleware.Recoverer)
	s.router.Use(metrics.Metrics)
	s.router.Use(middleware.Compress(5, "application/json"))
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.config.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-RateLimit-Remaining", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	s.router.Use(RequestSizeMiddleware(s.config))
	s.router.Use(s.limiter.Middleware)
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	h := s.handler

	s.router.Route("/v1", func(r chi.Router) {
		r.Post("/analysis", h.Analyze)
		r.Post("/analysis/generic", h.SwitchToGeneric)
		r.Get("/analysis/latest", h.LatestAnalysis)

		r.Get("/history", h.ServeHistory)
		r.Delete("/history", h.ClearHistory)

		r.Get("/saved", h.ServeSaved)
		r.Post("/saved/toggle", h.ToggleSaved)

		r.Get("/basket", h.ServeBasket)
		r.Post("/basket", h.AddToBasket)
		r.Delete("/basket", h.ClearBasket)
		r.Post("/basket/saved", h.AddSavedToBasket)
		r.Get("/basket/summary", h.BasketSummary)
		r.Get("/basket/total", h.BasketTotal)
		r.Delete("/basket/{medicationName}", h.RemoveFromBasket)

		r.Get("/checkout", h.ServeCheckout)
		r.Post("/checkout/pharmacy", h.SelectPharmacy)
		r.Post("/checkout/items/{medicationName}/toggle", h.ToggleCheckoutItem)
		r.Post("/checkout/select-all", h.ToggleSelectAll)
		r.Post("/checkout/cancel", h.CancelCheckout)
		r.Post("/checkout/confirm", h.ConfirmCheckout)

		if s.events != nil {
			r.Get("/events", s.events.ServeHTTP)
		}
	})

	s.router.Get("/health", h.HealthCheck)
	s.router.Handle("/metrics", promhttp.Handler())
}

// Router exposes the configured router, used by tests
func (s *Server) Router() http.Handler {
	return s.router
}

// Start starts the server
func (s *Server) Start() error {
	// Start profiling server if in development mode
	if s.config.Env == config.EnvDevelopment {
		s.startProfilingServer()
	}

	logging.Info(fmt.Sprintf("Starting server at: %s:%s", s.config.Address, s.config.Port))
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info("Shutting down server...")
	defer s.limiter.Stop()

	if err := s.server.Shutdown(ctx); err != nil {
		logging.Error("Server forced to shutdown", "error", err)
		// If graceful shutdown fails, force close
		if err := s.server.Close(); err != nil {
			logging.Error("Server close error", "error", err)
			return err
		}
	}

	logging.Info("Server shutdown complete")
	return nil
}

// startProfilingServer starts the pprof profiling server in development mode
func (s *Server) startProfilingServer() {
	go func() {
		logging.Info("Profiling server started at http://localhost:6060/debug/pprof/")
		if err := http.ListenAndServe("localhost:6060", nil); err != nil {
			logging.Warn("Profiling server failed", "error", err)
		}
	}()
}
