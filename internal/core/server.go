// Package core is the HTTP chassis for the occasions API. It builds a chi
// router that serves both a plain net/http listener (local) and API Gateway
// proxy events (via chiadapter), and applies the cross-cutting middleware
// before requests reach the subject handlers.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"occasions/internal/config"
)

// MetricsCollector records API telemetry.
type MetricsCollector interface {
	RecordRequest(ctx context.Context, method, endpoint, status string, duration time.Duration)
}

// RouteRegistrar mounts a group of routes under /v1. Handler packages supply
// these so core never imports them.
type RouteRegistrar func(r chi.Router)

// Server holds the API dependencies so tests can inject their own.
type Server struct {
	Config    *config.Config
	Logger    *slog.Logger
	Validator *Validator
	Metrics   MetricsCollector

	// HealthProbes are run concurrently by GET /health.
	HealthProbes []HealthProbe

	// V1RouteRegistrars are applied in order inside the /v1 group.
	V1RouteRegistrars []RouteRegistrar

	// Closers run on Shutdown, in order.
	Closers []func()

	router *chi.Mux
}

// NewServer validates the required dependencies and prepares an empty
// router. The caller mounts routes afterwards with MountRoutes.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	return &Server{
		Config:    cfg,
		Logger:    logger,
		Validator: NewValidator(logger),
		router:    chi.NewRouter(),
	}, nil
}

// Handler returns the router for http.ListenAndServe or chiadapter.New.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router exposes the underlying mux for chiadapter and tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Shutdown releases resources registered in Closers.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.InfoContext(ctx, "server shutdown initiated")
	for _, closeFn := range s.Closers {
		closeFn()
	}
	s.Logger.InfoContext(ctx, "server shutdown complete")
	return nil
}
