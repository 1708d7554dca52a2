package main

import (
	"context"
	"fmt"
	"net/http"

	"whatsbot/internal/config"
	"whatsbot/internal/dashboard"
	"whatsbot/internal/errors"
	"whatsbot/internal/metrics"
	"whatsbot/internal/middleware"
	"whatsbot/internal/models"
	"whatsbot/internal/preferences"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

type Server struct {
	router    *mux.Router
	logger    *logrus.Logger
	errLog    *errors.Logger
	cfg       *models.Config
	dashboard *dashboard.Service
	prefs     *preferences.Store
	hub       *Hub
	metrics   *metrics.Registry
	verbose   bool
	server    *http.Server
}

func NewServer(cfg *models.Config, svc *dashboard.Service, prefs *preferences.Store, hub *Hub, logger *logrus.Logger, registry *metrics.Registry, verbose bool) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		logger:    logger,
		errLog:    errors.WrapLogger(logger),
		cfg:       cfg,
		dashboard: svc,
		prefs:     prefs,
		hub:       hub,
		metrics:   registry,
		verbose:   verbose,
	}

	s.setupRoutes()
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  config.Seconds(cfg.Server.ReadTimeoutSec),
		WriteTimeout: config.Seconds(cfg.Server.WriteTimeoutSec),
		IdleTimeout:  config.Seconds(cfg.Server.IdleTimeoutSec),
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Observability(s.logger, s.metrics))
	if s.verbose {
		s.router.Use(middleware.DetailedLogging(s.logger, middleware.DefaultDetailedLoggingConfig()))
	}

	s.router.HandleFunc("/health", s.handleHealth()).Methods(http.MethodGet)
	s.router.HandleFunc("/metrics", s.handleMetrics()).Methods(http.MethodGet)
	s.router.Handle("/ws/dashboard", s.hub).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/dashboard", s.handleSnapshot()).Methods(http.MethodGet)
	api.HandleFunc("/dashboard/{panel}", s.handlePanel()).Methods(http.MethodGet)
	api.HandleFunc("/contacts", s.handleContacts()).Methods(http.MethodGet)
	api.HandleFunc("/contacts/{id}", s.handleUpdateContact()).Methods(http.MethodPatch)
	api.HandleFunc("/contacts/{id}/messages", s.handleSendMessage()).Methods(http.MethodPost)
	api.HandleFunc("/broadcast", s.handleBroadcast()).Methods(http.MethodPost)
	api.HandleFunc("/training", s.handleTraining()).Methods(http.MethodGet)
	api.HandleFunc("/preferences/{key}", s.handleGetPreference()).Methods(http.MethodGet)
	api.HandleFunc("/preferences/{key}", s.handlePutPreference()).Methods(http.MethodPut)
	api.HandleFunc("/refresh", s.handleRefresh()).Methods(http.MethodPost)

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, r, errors.NewNotFoundError("route", r.URL.Path))
	})
}

func (s *Server) Start() error {
	s.logger.WithField("port", s.cfg.Server.Port).Info("Starting dashboard server")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
