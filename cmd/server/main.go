package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/irfndi/stockdash/internal/api"
	"github.com/irfndi/stockdash/internal/cache"
	"github.com/irfndi/stockdash/internal/config"
	"github.com/irfndi/stockdash/internal/database"
	"github.com/irfndi/stockdash/internal/logging"
	"github.com/irfndi/stockdash/internal/marketdata"
	"github.com/irfndi/stockdash/internal/middleware"
	"github.com/irfndi/stockdash/internal/services"
	"github.com/irfndi/stockdash/internal/simulation"
	"github.com/irfndi/stockdash/internal/telemetry"
	"github.com/sirupsen/logrus"
)

// memoryCacheEntries bounds the in-process response cache used without Redis.
const memoryCacheEntries = 1024

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Application failed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel, cfg.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := telemetry.InitTelemetry(ctx, telemetry.TelemetryConfig{
		Enabled:        cfg.Telemetry.Enabled,
		Exporter:       cfg.Telemetry.Exporter,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: cfg.Telemetry.ServiceVersion,
		Environment:    cfg.Environment,
		SampleRate:     cfg.Telemetry.SampleRate,
	}); err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("Failed to shutdown telemetry")
		}
	}()

	if cfg.Telemetry.Enabled && cfg.Telemetry.LogsEnabled {
		hook, err := logging.NewOTLPHook(logging.OTLPConfig{
			Endpoint:       cfg.Telemetry.OTLPEndpoint,
			ServiceName:    cfg.Telemetry.ServiceName,
			ServiceVersion: cfg.Telemetry.ServiceVersion,
			Environment:    cfg.Environment,
		})
		if err != nil {
			logger.WithError(err).Warn("OTLP log export disabled")
		} else {
			logger.AddHook(hook)
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = hook.Shutdown(shutdownCtx)
			}()
		}
	}

	app, err := newApplication(cfg, logger)
	if err != nil {
		return err
	}
	defer app.close()

	if app.warmer != nil {
		if err := app.warmer.Start(ctx); err != nil {
			return fmt.Errorf("failed to start cache warmer: %w", err)
		}
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           app.router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logging.LogStartup(logger, cfg.Telemetry.ServiceName, cfg.Telemetry.ServiceVersion, cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
		logging.LogShutdown(logger, cfg.Telemetry.ServiceName, "signal received")
	}

	// Give outstanding requests a deadline for completion
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("Server exited gracefully")
	return nil
}

// application is the wired service graph behind the HTTP router.
type application struct {
	router      *gin.Engine
	redis       *database.RedisClient
	breaker     *services.CircuitBreaker
	responses   *cache.CachedGateway
	simulations *simulation.Cache
	dashboard   *services.DashboardService
	warmer      *services.CacheWarmingService
	logger      *logrus.Logger
}

func newApplication(cfg *config.Config, logger *logrus.Logger) (*application, error) {
	app := &application{logger: logger}

	var store cache.Store
	if cfg.Redis.Enabled {
		redis, err := database.NewRedisConnection(cfg.Redis, logger)
		if err != nil {
			return nil, err
		}
		app.redis = redis
		store = cache.NewRedisStore(redis.Client, cfg.MarketData.HistoryCacheTTL)
	} else {
		store = cache.NewMemoryStore(memoryCacheEntries, cfg.MarketData.HistoryCacheTTL)
	}

	yahoo := marketdata.NewYahooClient(&cfg.MarketData, logger)
	app.breaker = services.NewCircuitBreaker("marketdata", services.CircuitBreakerConfig{
		FailureThreshold: cfg.CircuitBreaker.FailureThreshold,
		SuccessThreshold: cfg.CircuitBreaker.SuccessThreshold,
		Timeout:          cfg.CircuitBreaker.Timeout,
	}, logger)
	resilient := services.NewResilientGateway(yahoo, app.breaker,
		services.RetryPolicyFromConfig(cfg.MarketData), cfg.MarketData.Timeout, logger)
	app.responses = cache.NewCachedGateway(resilient, store, logger)

	simulator := simulation.NewSimulator(app.responses, simulation.Config{
		DefaultPaths:  cfg.Simulation.DefaultPaths,
		MaxHorizon:    cfg.Simulation.MaxHorizon,
		HistoryPeriod: cfg.Simulation.HistoryPeriod,
	}, logger)
	app.simulations = simulation.NewCache(simulator, simulation.CacheConfig{
		MaxEntries: cfg.Simulation.Cache.MaxEntries,
		TTL:        cfg.Simulation.Cache.TTL,
		Timeout:    cfg.Simulation.Timeout,
		Paths:      cfg.Simulation.DefaultPaths,
	}, logger)

	riskFree := services.NewRiskFreeRate(app.responses, cfg.MarketData, logger)
	app.dashboard = services.NewDashboardService(app.responses, app.simulations, riskFree,
		services.DashboardConfigFromConfig(cfg), logger)

	if cfg.Simulation.Warm.Enabled {
		app.warmer = services.NewCacheWarmingService(app.simulations, cfg.Simulation.Warm, logger)
	}

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Tracing(cfg.Telemetry.ServiceName))

	if err := api.SetupRoutes(router, api.Dependencies{
		Dashboard:      app.dashboard,
		Simulations:    app.simulations,
		Responses:      app.responses,
		Breaker:        app.breaker,
		Redis:          app.redis,
		MaxHorizon:     cfg.Simulation.MaxHorizon,
		Version:        cfg.Telemetry.ServiceVersion,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Logger:         logger,
	}); err != nil {
		app.close()
		return nil, err
	}
	app.router = router

	return app, nil
}

func (a *application) close() {
	if a.warmer != nil {
		a.warmer.Stop()
	}
	if a.redis != nil {
		a.redis.Close()
	}
}
