package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	api "github.com/GriffinCanCode/lifescope/internal/api/http"
	"github.com/GriffinCanCode/lifescope/internal/api/middleware"
	"github.com/GriffinCanCode/lifescope/internal/domain/profile"
	"github.com/GriffinCanCode/lifescope/internal/domain/scope"
	"github.com/GriffinCanCode/lifescope/internal/domain/session"
	"github.com/GriffinCanCode/lifescope/internal/domain/tracker"
	"github.com/GriffinCanCode/lifescope/internal/domain/view"
	"github.com/GriffinCanCode/lifescope/internal/infrastructure/config"
	"github.com/GriffinCanCode/lifescope/internal/infrastructure/logging"
	"github.com/GriffinCanCode/lifescope/internal/infrastructure/monitoring"
)

// Server wraps the HTTP server and dependencies
type Server struct {
	router  *gin.Engine
	http    *http.Server
	root    *scope.Container
	manager *session.Manager
	logger  *logging.Logger
	config  *config.Config
	metrics *monitoring.Metrics
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config) (*Server, error) {
	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return New(cfg, logger, prometheus.NewRegistry())
}

// New creates a server with an explicit logger and metrics registry.
func New(cfg *config.Config, logger *logging.Logger, reg *prometheus.Registry) (*Server, error) {
	logger = logging.OrNop(logger)
	logger.Info("Initializing lifescope server",
		zap.String("host", cfg.Server.Host),
		zap.String("port", cfg.Server.Port),
		zap.String("profiles", cfg.Sessions.ProfilesPath),
	)

	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := monitoring.NewMetrics(reg)

	profiles := profile.Empty()
	if cfg.Sessions.ProfilesPath != "" {
		loaded, err := profile.Load(cfg.Sessions.ProfilesPath)
		if err != nil {
			return nil, err
		}
		profiles = loaded
		logger.Info("Session profiles loaded", zap.Strings("profiles", profiles.Names()))
	}

	root, err := scope.NewRoot(logger, Modules())
	if err != nil {
		return nil, fmt.Errorf("failed to build root scope: %w", err)
	}
	tr := tracker.New(logger).WithMetrics(metrics)
	manager := session.NewManager(root, tr, view.NewHeadlessFactory(), logger).WithMetrics(metrics)

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.AccessLog(logger))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		rl := middleware.DefaultRateLimitConfig()
		rl.RequestsPerSecond = cfg.RateLimit.RequestsPerSecond
		rl.Burst = cfg.RateLimit.Burst
		router.Use(middleware.RateLimit(rl))
	}

	handlers := api.NewHandlers(api.Options{
		Manager:  manager,
		Profiles: profiles,
		Catalog:  Catalog(logger),
		Openers:  Openers(),
		Metrics:  metrics,
		Gatherer: reg,
		Logger:   logger,
	})
	handlers.Register(router)

	logger.Info("Server initialized successfully")

	return &Server{
		router: router,
		http: &http.Server{
			Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		root:    root,
		manager: manager,
		logger:  logger,
		config:  cfg,
		metrics: metrics,
	}, nil
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler { return s.router }

// Manager returns the session manager
func (s *Server) Manager() *session.Manager { return s.manager }

// Run starts the HTTP server and blocks until Shutdown.
func (s *Server) Run() error {
	s.logger.Info("Starting HTTP server", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, then disposes every session and the
// root scope. Session disposal is bounded by the configured close timeout;
// when it runs out the root scope is left alone, since sessions still
// disposing may resolve shared services from it.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")

	var errs error
	if err := s.http.Shutdown(ctx); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("http shutdown: %w", err))
	}

	closeCtx, cancel := context.WithTimeout(ctx, s.config.Sessions.CloseTimeout)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- s.manager.CloseAllSessions(closeCtx) }()
	select {
	case err := <-done:
		errs = multierr.Append(errs, err)
		errs = multierr.Append(errs, s.root.Dispose())
	case <-closeCtx.Done():
		errs = multierr.Append(errs, fmt.Errorf("closing sessions: %w", closeCtx.Err()))
		s.logger.Warn("Sessions still closing, root scope not disposed",
			zap.Duration("timeout", s.config.Sessions.CloseTimeout))
	}

	if errs != nil {
		s.logger.Error("Shutdown completed with errors", zap.Error(errs))
	} else {
		s.logger.Info("Shutdown complete")
	}
	_ = s.logger.Sync()
	return errs
}
