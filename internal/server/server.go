// Package server provides the HTTP server of the distribution API.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/eu-digital-green-certificates/dgca-revocation-distribution-service-sub000/internal/config"
	"github.com/eu-digital-green-certificates/dgca-revocation-distribution-service-sub000/internal/handler"
	"github.com/eu-digital-green-certificates/dgca-revocation-distribution-service-sub000/internal/metrics"
	"github.com/eu-digital-green-certificates/dgca-revocation-distribution-service-sub000/internal/middleware"
)

// Server represents the distribution HTTP server.
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	handler    *handler.DistributionHandler
	logger     *zap.Logger
	cfg        *config.Config
	m          *metrics.Metrics
}

// NewServer creates a new HTTP server.
func NewServer(cfg *config.Config, distribution *handler.DistributionHandler, m *metrics.Metrics, logger *zap.Logger) *Server {
	router := mux.NewRouter()

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return &Server{
		router:     router,
		httpServer: httpServer,
		handler:    distribution,
		logger:     logger,
		cfg:        cfg,
		m:          m,
	}
}

// SetupRoutes configures all HTTP routes.
func (s *Server) SetupRoutes() {
	s.router.Use(mux.MiddlewareFunc(middleware.Recovery(s.logger)))
	s.router.Use(middleware.RequestID)
	s.router.Use(mux.MiddlewareFunc(middleware.Logging(s.logger, s.m)))

	if s.cfg.RateLimiter.Enabled {
		limiter := middleware.NewRateLimiter(s.cfg.RateLimiter.RequestsPerSecond, s.cfg.RateLimiter.BurstSize, s.logger)
		s.router.Use(mux.MiddlewareFunc(limiter.Limit))
	}

	s.router.HandleFunc("/lists", s.handler.GetList).
		Methods(http.MethodGet)
	s.router.HandleFunc("/lists/{kid}/partitions", s.handler.GetPartitions).
		Methods(http.MethodGet)
	s.router.HandleFunc("/lists/{kid}/partitions/{id}", s.handler.GetPartition).
		Methods(http.MethodGet, http.MethodPost)
	s.router.HandleFunc("/lists/{kid}/partitions/{id}/slices", s.handler.GetPartitionSlices).
		Methods(http.MethodPost)
	s.router.HandleFunc("/lists/{kid}/partitions/{id}/chunks/{cid}/slices", s.handler.GetChunkSlices).
		Methods(http.MethodGet, http.MethodPost)
	s.router.HandleFunc("/lists/{kid}/partitions/{id}/chunks/{cid}/slices/{sid}", s.handler.GetChunkSlice).
		Methods(http.MethodGet, http.MethodPost)

	s.router.HandleFunc("/lookup", s.handler.Lookup).
		Methods(http.MethodPost)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.Int("port", s.cfg.Server.Port))

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// GetRouter returns the router for testing purposes.
func (s *Server) GetRouter() *mux.Router {
	return s.router
}
