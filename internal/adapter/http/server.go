package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RateLimit bounds API requests per client IP.
type RateLimit struct {
	Requests int
	Window   time.Duration
}

// Server exposes the discovery API plus health, readiness, and metrics routes.
type Server struct {
	httpServer *http.Server
	api        Discovery
	validate   *validator.Validate
	logger     *slog.Logger
}

// NewServer creates an HTTP server. The /v1 routes are rate limited per IP;
// /healthz, /readyz and /metrics are not.
func NewServer(addr string, api Discovery, ready sharedobs.ReadinessChecker, limit RateLimit, logger *slog.Logger) *Server {
	s := &Server{
		api:      api,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", sharedobs.LivenessHandler())
	r.Get("/readyz", sharedobs.ReadinessHandler(ready))
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		if limit.Requests > 0 && limit.Window > 0 {
			r.Use(httprate.Limit(limit.Requests, limit.Window, httprate.WithKeyFuncs(httprate.KeyByIP)))
		}

		r.Get("/venues/{venueID}/next-service", s.handleNextService)

		r.Route("/users/{userID}", func(r chi.Router) {
			r.Get("/venues", s.handleRank)
			r.Get("/venues/{venueID}/reminder", s.handleReminder)
			r.Get("/suggestions", s.handleSuggest)
			r.Get("/insights", s.handleInsights)
			r.Post("/visits", s.handleRecordVisit)
			r.Post("/checkins", s.handleCheckIn)
			r.Put("/preferences", s.handleUpdatePreferences)
			r.Post("/saved", s.handleSaveVenue)
		})
	})

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}
