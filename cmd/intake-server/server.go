package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/medintake/intake/internal/config"
	"github.com/medintake/intake/internal/domain/intake"
	"github.com/medintake/intake/internal/domain/profile"
	"github.com/medintake/intake/internal/platform/auth"
	"github.com/medintake/intake/internal/platform/db"
	"github.com/medintake/intake/internal/platform/exchange"
	"github.com/medintake/intake/internal/platform/middleware"
	"github.com/medintake/intake/internal/platform/reporting"
	"github.com/medintake/intake/internal/platform/telemetry"
	"github.com/medintake/intake/internal/platform/websocket"
)

// handlers groups everything mounted on the router so tests can build the
// server without a database.
type handlers struct {
	records  *intake.Handler
	profiles *profile.Handler
	exchange *exchange.Handler
	reports  *reporting.Handler
	ws       *websocket.Handler
	dbHealth echo.HandlerFunc
	metrics  *telemetry.Metrics
}

func newLogger(env, level string) zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if env == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return logger.Level(lvl)
}

func authMiddleware(cfg *config.Config) echo.MiddlewareFunc {
	if cfg.IsDev() && cfg.AuthJWTSecret == "" {
		return auth.DevAuthMiddleware()
	}
	return auth.JWTMiddleware(auth.JWTConfig{
		Secret:   []byte(cfg.AuthJWTSecret),
		Issuer:   cfg.AuthIssuer,
		Audience: cfg.AuthAudience,
	})
}

func newEcho(cfg *config.Config, logger zerolog.Logger, h handlers) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	if h.metrics != nil {
		e.Use(h.metrics.Middleware())
	}
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
	}))
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok", "version": version})
	})
	if h.dbHealth != nil {
		e.GET("/health/db", h.dbHealth)
	}
	if h.metrics != nil {
		e.GET("/metrics", h.metrics.Handler())
	}

	authn := authMiddleware(cfg)

	apiV1 := e.Group("/api/v1", authn, middleware.Audit(logger))
	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 || rateLimitCfg.BurstSize <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))

	h.records.RegisterRoutes(apiV1)
	h.profiles.RegisterRoutes(apiV1)
	h.exchange.RegisterRoutes(apiV1)
	h.reports.RegisterRoutes(apiV1)

	// The live feed carries the same patient data as the record reads.
	h.ws.RegisterRoutes(e.Group("", authn, auth.RequireRole(auth.RoleReception, auth.RoleAnalyst)))

	return e
}

func runServer() error {
	logger := newLogger(os.Getenv("ENV"), os.Getenv("LOG_LEVEL"))

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}
	logger = newLogger(cfg.Env, cfg.LogLevel)

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, db.PoolConfig{
		URL:             cfg.DatabaseURL,
		MaxConns:        cfg.DBMaxConns,
		MinConns:        cfg.DBMinConns,
		ApplicationName: "intake-server",
		Schema:          cfg.DBSchema,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	hub := websocket.NewHub(logger)
	metrics := telemetry.NewMetrics()
	metrics.RegisterGauge("intake_ws_clients", "Connected dashboard clients.", func() int64 {
		return int64(hub.ClientCount())
	})
	metrics.RegisterGauge("db_pool_acquired_connections", "Database connections in use.", func() int64 {
		return int64(pool.Stat().AcquiredConns())
	})
	metrics.RegisterGauge("db_pool_idle_connections", "Idle database connections.", func() int64 {
		return int64(pool.Stat().IdleConns())
	})
	events := metrics.WrapPublisher(hub)

	rates := exchange.NewClient(cfg.ExchangeRateURL, cfg.ExchangeRateTTL, cfg.ExchangeRateTimeout, logger)

	recordSvc := intake.NewService(intake.NewRecordRepoPG(pool), rates, events, logger)

	profileRepo := profile.NewProfileRepoPG(pool)
	syncer := profile.NewSyncer(profileRepo, profile.NewAuthUserRepoPG(pool), events, logger)

	e := newEcho(cfg, logger, handlers{
		records:  intake.NewHandler(recordSvc),
		profiles: profile.NewHandler(profile.NewService(profileRepo, syncer)),
		exchange: exchange.NewHandler(rates),
		reports:  reporting.NewHandler(pool),
		ws:       websocket.NewHandler(hub, cfg.CORSOrigins),
		dbHealth: db.HealthHandler(pool),
		metrics:  metrics,
	})

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("version", version).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
