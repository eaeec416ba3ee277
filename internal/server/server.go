package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/aman-churiwal/loadmon/internal/config"
	"github.com/aman-churiwal/loadmon/internal/envelope"
	"github.com/aman-churiwal/loadmon/internal/handler"
	"github.com/aman-churiwal/loadmon/internal/healthcheck"
	"github.com/aman-churiwal/loadmon/internal/middleware"
	"github.com/aman-churiwal/loadmon/internal/ratelimit"
	"github.com/aman-churiwal/loadmon/internal/repository"
	"github.com/aman-churiwal/loadmon/internal/scheduler"
	"github.com/aman-churiwal/loadmon/internal/service"
	"github.com/aman-churiwal/loadmon/internal/storage"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Server struct {
	router     *gin.Engine
	config     *config.Config
	logger     *zap.Logger
	db         *storage.Database
	redis      *storage.RedisClient
	limiter    *ratelimit.Limiter
	checker    *healthcheck.Checker
	scheduler  *scheduler.Scheduler
	httpServer *http.Server

	telemetryHandler    *handler.TelemetryHandler
	registrationHandler *handler.RegistrationHandler
	healthHandler       *handler.HealthHandler
	nodeHandler         *handler.NodeHandler
}

// New wires the collector. redis may be nil when the quota backend is the
// database.
func New(cfg *config.Config, db *storage.Database, redis *storage.RedisClient, logger *zap.Logger) (*Server, error) {
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	keys, err := envelope.NewSharedSecret(cfg.Envelope.Secret)
	if err != nil {
		return nil, err
	}
	cipher, err := envelope.New(keys)
	if err != nil {
		return nil, err
	}

	var quotaStore ratelimit.Store
	if cfg.Registration.UsesRedis() {
		if redis == nil {
			return nil, errors.New("redis quota backend selected but no redis client configured")
		}
		quotaStore = ratelimit.NewRedisStore(redis)
	} else {
		quotaStore = repository.NewQuotaRepository(db)
	}

	limiter := ratelimit.New(quotaStore, ratelimit.Config{
		MaxPerDay:           cfg.Registration.MaxRequestsPerDay,
		Window:              cfg.Registration.Window,
		ResetExpiredWindows: cfg.Registration.ResetExpiredWindows,
	})

	nodeRepo := repository.NewNodeRepository(db)
	collector := service.NewCollector(cipher, repository.NewHistoryRepository(db), service.CollectorConfig{
		MaxClockSkew: cfg.Telemetry.MaxClockSkew,
	}, logger.Named("collector"))
	registrations := service.NewRegistrationService(limiter, nodeRepo,
		repository.NewRegistrationRepository(db), logger.Named("registration"))

	probes := []healthcheck.Probe{
		healthcheck.ProbeFunc{ProbeName: "database", Fn: db.Ping},
	}
	if redis != nil {
		probes = append(probes, healthcheck.ProbeFunc{ProbeName: "redis", Fn: redis.Ping})
	}
	checker := healthcheck.NewChecker(healthcheck.Config{}, logger.Named("watchdog"), probes...)

	router := gin.New()
	if err := router.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		return nil, fmt.Errorf("invalid trusted proxies: %w", err)
	}

	s := &Server{
		router:              router,
		config:              cfg,
		logger:              logger,
		db:                  db,
		redis:               redis,
		limiter:             limiter,
		checker:             checker,
		scheduler:           scheduler.New(logger.Named("scheduler")),
		telemetryHandler:    handler.NewTelemetryHandler(collector),
		registrationHandler: handler.NewRegistrationHandler(registrations),
		healthHandler:       handler.NewHealthHandler(checker),
		nodeHandler:         handler.NewNodeHandler(nodeRepo),
	}

	if err := s.setupTasks(); err != nil {
		return nil, err
	}

	// Setup middleware
	s.setupMiddleware()

	// Setup routes
	s.setupRoutes()

	return s, nil
}

func (s *Server) setupTasks() error {
	err := s.scheduler.Add(scheduler.Task{
		Name:       "quota-sweep",
		Interval:   s.config.Scheduler.SweepInterval,
		RunOnStart: true,
		Fn:         s.sweepQuotas,
	})
	if err != nil {
		return err
	}

	return s.scheduler.Add(scheduler.Task{
		Name:       "watchdog",
		Interval:   s.config.Scheduler.WatchdogInterval,
		RunOnStart: true,
		Fn:         s.checker.CheckAll,
	})
}

func (s *Server) sweepQuotas(ctx context.Context) error {
	removed, err := s.limiter.Sweep(ctx)
	if err != nil {
		return fmt.Errorf("failed to sweep quota records: %w", err)
	}

	s.logger.Info("Quota records swept", zap.Int64("removed", removed))
	return nil
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID())
	s.router.Use(middleware.Recovery(s.logger))
	s.router.Use(middleware.Logger(s.logger.Named("http")))
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthHandler.Health)

	api := s.router.Group("/api")
	{
		api.POST("/update_load", s.telemetryHandler.UpdateLoad)
		api.GET("/nodes", s.nodeHandler.List)
		api.GET("/nodes/:id/history", s.telemetryHandler.History)
	}

	s.router.POST("/register",
		middleware.SuspiciousBlock(s.limiter, s.logger.Named("gate")),
		s.registrationHandler.Register,
	)
}

// Starts background tasks. Run does not call it so tests can drive the
// router without them.
func (s *Server) Start(ctx context.Context) {
	s.scheduler.Start(ctx)
}

func (s *Server) Run(addr string) error {
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.Server.ReadTimeout,
		WriteTimeout: s.config.Server.WriteTimeout,
		IdleTimeout:  s.config.Server.IdleTimeout,
	}

	s.logger.Info("Starting collector",
		zap.String("addr", addr),
		zap.String("environment", s.config.Server.Environment),
	)

	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")

	s.scheduler.Stop()

	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}

	return nil
}

func (s *Server) GetRouter() *gin.Engine {
	return s.router
}
