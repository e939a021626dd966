// Package caseserver exposes the case-opening API over HTTP.
package caseserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/dropforge/dropforge/internal/config"
	"github.com/dropforge/dropforge/internal/game/session"
)

// HealthChecker reports whether the backing store is reachable.
type HealthChecker interface {
	Health(ctx context.Context, timeout time.Duration) error
}

// Service serves the case-opening HTTP API. It implements server.Service.
type Service struct {
	manager *session.Manager
	health  HealthChecker
	logger  *zap.Logger
	cfg     config.ServerConfig
	httpSrv *http.Server
}

// NewService creates the HTTP service.
//
// Precondition: manager, health, and logger must be non-nil.
func NewService(manager *session.Manager, health HealthChecker, logger *zap.Logger, cfg config.ServerConfig) *Service {
	s := &Service{
		manager: manager,
		health:  health,
		logger:  logger,
		cfg:     cfg,
	}
	s.httpSrv = &http.Server{
		Addr:         cfg.Addr(),
		Handler:      s.Router(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Router builds the service's route table.
func (s *Service) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/v1/cases/{caseID}/open", s.handleOpenCase).Methods(http.MethodPost)
	r.HandleFunc("/v1/sessions/{sessionID}", s.handleGetSession).Methods(http.MethodGet)
	r.HandleFunc("/v1/sessions/{sessionID}/spins", s.handleGetSpins).Methods(http.MethodGet)
	r.HandleFunc("/v1/sessions/{sessionID}/outcomes/{index}/decision", s.handleDecision).Methods(http.MethodPost)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	return r
}

// Start begins serving HTTP requests and blocks until Stop is called.
func (s *Service) Start() error {
	s.logger.Info("http server listening", zap.String("addr", s.cfg.Addr()))
	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully drains in-flight requests.
func (s *Service) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Warn("http server shutdown", zap.Error(err))
	}
}
