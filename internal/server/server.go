package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/aman-churiwal/x402-gateway/internal/backend"
	"github.com/aman-churiwal/x402-gateway/internal/catalog"
	"github.com/aman-churiwal/x402-gateway/internal/config"
	"github.com/aman-churiwal/x402-gateway/internal/handler"
	"github.com/aman-churiwal/x402-gateway/internal/ledger"
	"github.com/aman-churiwal/x402-gateway/internal/middleware"
	"github.com/aman-churiwal/x402-gateway/internal/registry"
	"github.com/aman-churiwal/x402-gateway/internal/repository"
	"github.com/aman-churiwal/x402-gateway/internal/service"
	"github.com/aman-churiwal/x402-gateway/internal/storage"
	"github.com/aman-churiwal/x402-gateway/internal/verifier"
)

type Server struct {
	router   *gin.Engine
	config   *config.Config
	log      *zap.Logger
	redis    *storage.RedisClient
	postgres *storage.Postgres

	catalog  *catalog.Catalog
	registry *registry.Registry
	ledger   *ledger.Ledger

	subscriptionHandler *handler.SubscriptionHandler
	forwardHandler      *handler.ForwardHandler
	adminHandler        *handler.AdminHandler
	authService         *service.AuthService
	auditTrail          *middleware.AuditTrail

	httpServer *http.Server
}

// New wires the gateway. Redis and postgres are optional: without them
// the in-memory stores carry the same atomicity contracts for a
// single-process deployment.
func New(cfg *config.Config, log *zap.Logger, redis *storage.RedisClient, postgres *storage.Postgres) (*Server, error) {
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	defs, err := cfg.TierDefinitions()
	if err != nil {
		return nil, err
	}
	var cat *catalog.Catalog
	if len(defs) > 0 {
		if cat, err = catalog.New(defs); err != nil {
			return nil, err
		}
	} else {
		cat = catalog.Default()
	}

	var seen verifier.ReplayCache
	var ledgerStore ledger.Store
	if redis != nil {
		seen = verifier.NewRedisReplayCache(redis)
		ledgerStore = ledger.NewRedisStore(redis)
	} else {
		seen = verifier.NewMemoryReplayCache()
		ledgerStore = ledger.NewMemoryStore()
	}

	var registryStore registry.Store
	if postgres != nil {
		registryStore = repository.NewSubscriberRepository(postgres)
	} else {
		registryStore = registry.NewMemoryStore()
	}

	ver := verifier.New(cfg.Payment.TrustSecret, cat, seen)
	reg := registry.New(ver, cat, registryStore)
	led := ledger.New(ledgerStore)

	client := backend.NewClient(cfg.Backend.Targets, cfg.Backend.Timeout(), cfg.Backend.MaxRetries, log)

	s := &Server{
		router:              gin.New(),
		config:              cfg,
		log:                 log,
		redis:               redis,
		postgres:            postgres,
		catalog:             cat,
		registry:            reg,
		ledger:              led,
		subscriptionHandler: handler.NewSubscriptionHandler(reg, led, cat),
		forwardHandler:      handler.NewForwardHandler(client),
	}

	if postgres != nil {
		auditRepo := repository.NewAuditLogRepository(postgres)
		s.auditTrail = middleware.NewAuditTrail(auditRepo, 1024, log)

		userRepo := repository.NewUserRepository(postgres)
		s.authService = service.NewAuthService(userRepo, cfg.Admin.JWTSecret, 12)
		s.adminHandler = handler.NewAdminHandler(s.authService, reg, auditRepo)
		s.bootstrapAdmin(s.authService)
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s, nil
}

// bootstrapAdmin creates the first operator account from env config.
func (s *Server) bootstrapAdmin(auth *service.AuthService) {
	email, password := s.config.Admin.Email, s.config.Admin.Password
	if email == "" || password == "" {
		return
	}
	if err := auth.Register(context.Background(), email, password, "bootstrap"); err != nil {
		s.log.Debug("admin bootstrap skipped", zap.Error(err))
	}
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recovery(s.log))
	s.router.Use(middleware.RequestID())
	s.router.Use(middleware.Logger(s.log))
	s.router.Use(middleware.CORS())
	s.router.Use(middleware.BurstLimit(s.config.RateLimit.RequestsPerSecond, s.config.RateLimit.Burst))
	s.router.Use(middleware.Subscriber())
}

func (s *Server) setupRoutes() {
	s.router.GET("/", s.root)
	s.router.GET("/health", s.healthCheck)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.router.GET("/.well-known/x402", s.discovery)

	api := s.router.Group("/api")
	{
		api.POST("/subscription/subscribe", s.subscriptionHandler.Subscribe)
		api.GET("/subscription/status", s.subscriptionHandler.Status)

		// Free passthrough: no quota charge.
		api.GET("/languages", s.forwardHandler.Forward)

		metered := api.Group("")
		metered.Use(middleware.Admission(s.registry, s.ledger, s.catalog, s.log))
		if s.auditTrail != nil {
			metered.Use(s.auditTrail.Middleware())
		}
		metered.POST("/translate", s.forwardHandler.Forward)
	}

	if s.adminHandler != nil {
		admin := s.router.Group("/admin")
		admin.POST("/login", s.adminHandler.Login)

		authorized := admin.Group("")
		authorized.Use(middleware.RequireAuth(s.authService))
		{
			authorized.GET("/subscribers", s.adminHandler.ListSubscribers)
			authorized.GET("/subscribers/:id", s.adminHandler.GetSubscriber)
			authorized.GET("/denials", s.adminHandler.DenialStats)
		}
	}
}

func (s *Server) root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":    "Translation Gateway with x402",
		"version": "1.0.0",
		"payment": gin.H{
			"wallet":  s.config.Payment.Wallet,
			"network": s.config.Payment.Network,
			"token":   s.config.Payment.Token,
		},
		"subscriptions": s.catalog.Pricing(),
		"discovery":     "/.well-known/x402",
	})
}

func (s *Server) discovery(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"version":     "1.0",
		"name":        "Translation Gateway",
		"description": "Subscription-based translation service",
		"payment": gin.H{
			"wallet":      s.config.Payment.Wallet,
			"network":     s.config.Payment.Network,
			"token":       s.config.Payment.Token,
			"facilitator": s.config.Payment.Facilitator,
		},
		"pricing": gin.H{
			"model": "subscription",
			"tiers": s.catalog.Pricing(),
		},
	})
}

func (s *Server) healthCheck(c *gin.Context) {
	checks := gin.H{}
	healthy := true

	if s.redis != nil {
		if err := s.redis.Ping(c.Request.Context()); err != nil {
			s.log.Warn("redis health check failed", zap.Error(err))
			checks["redis"] = false
			healthy = false
		} else {
			checks["redis"] = true
		}
	}

	if s.postgres != nil {
		if err := s.postgres.Ping(c.Request.Context()); err != nil {
			s.log.Warn("database health check failed", zap.Error(err))
			checks["database"] = false
			healthy = false
		} else {
			checks["database"] = true
		}
	}

	status := "healthy"
	statusCode := http.StatusOK
	if !healthy {
		status = "degraded"
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, gin.H{
		"status":    status,
		"service":   "x402-gateway",
		"version":   "1.0.0",
		"timestamp": time.Now().Unix(),
		"checks":    checks,
	})
}

func (s *Server) Run(addr string) error {
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.log.Info("starting gateway",
		zap.String("addr", addr),
		zap.String("environment", s.config.Server.Environment))

	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	// Drain in-flight requests before stopping the audit worker; metered
	// requests completing during the drain still record their entries.
	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}

	if s.auditTrail != nil {
		s.auditTrail.Close()
	}

	return err
}

func (s *Server) Router() *gin.Engine {
	return s.router
}
