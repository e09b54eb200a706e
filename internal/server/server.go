// Package server exposes the chat turn pipeline over HTTP.
package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/concierge-ai/concierge/internal/orchestrator"
	"github.com/concierge-ai/concierge/internal/usage"
)

// Server routes chat requests to the orchestrator.
type Server struct {
	Router *chi.Mux
	Port   int
	logger *slog.Logger
}

// New builds the router and middleware stack.
func New(port int, requestTimeout time.Duration, orch *orchestrator.Orchestrator, stats usage.Recorder, logger *slog.Logger) *Server {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))
	r.Use(TimeoutMiddleware(requestTimeout))
	r.Use(middleware.Recoverer)
	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "concierge")
	})

	h := &handlers{orch: orch, stats: stats, logger: logger}
	r.Post("/v1/chat", h.chat)
	r.Get("/v1/usage/stats", h.usageStats)
	r.Get("/healthz", h.healthz)

	return &Server{Router: r, Port: port, logger: logger}
}

// Start blocks serving HTTP.
func (s *Server) Start() error {
	s.logger.Info("starting server", slog.Int("port", s.Port))
	return http.ListenAndServe(fmt.Sprintf(":%d", s.Port), s.Router)
}
