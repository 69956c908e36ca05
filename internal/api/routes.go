package api

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/irfndi/stockdash/internal/api/handlers"
	"github.com/irfndi/stockdash/internal/cache"
	"github.com/irfndi/stockdash/internal/database"
	"github.com/irfndi/stockdash/internal/middleware"
	"github.com/irfndi/stockdash/internal/services"
	"github.com/irfndi/stockdash/internal/simulation"
	"github.com/sirupsen/logrus"
)

// Dependencies are the services the routes are served from. Redis,
// Responses and Simulations may be nil when disabled.
type Dependencies struct {
	Dashboard      handlers.DashboardService
	Simulations    *simulation.Cache
	Responses      *cache.CachedGateway
	Breaker        *services.CircuitBreaker
	Redis          *database.RedisClient
	MaxHorizon     int
	Version        string
	AllowedOrigins []string
	Logger         logrus.FieldLogger
}

func SetupRoutes(router *gin.Engine, deps Dependencies) error {
	logger := deps.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	tmpl, err := handlers.LoadTemplates()
	if err != nil {
		return fmt.Errorf("failed to load templates: %w", err)
	}
	router.SetHTMLTemplate(tmpl)

	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.CORS(deps.AllowedOrigins))

	healthHandler := handlers.NewHealthHandler(deps.Redis, deps.Breaker, deps.Simulations, deps.Version)
	dashboardHandler := handlers.NewDashboardHandler(deps.Dashboard, deps.MaxHorizon, logger)
	cacheHandler := handlers.NewCacheHandler(deps.Simulations, deps.Responses, logger)

	router.GET("/health", healthHandler.HealthCheck)
	router.HEAD("/health", healthHandler.HealthCheck)
	router.GET("/live", healthHandler.LivenessCheck)

	// Dashboard page
	router.GET("/", dashboardHandler.Page)
	router.POST("/", dashboardHandler.Page)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/dashboard/:ticker", dashboardHandler.GetDashboard)
		v1.GET("/metrics/:ticker", dashboardHandler.GetMetrics)
		v1.GET("/simulation/:ticker", dashboardHandler.GetSimulation)

		cacheGroup := v1.Group("/cache")
		{
			cacheGroup.GET("/simulations", cacheHandler.GetSimulationCache)
			cacheGroup.DELETE("/simulations", cacheHandler.PurgeSimulationCache)
			cacheGroup.GET("/responses", cacheHandler.GetResponseCache)
			cacheGroup.DELETE("/responses", cacheHandler.ClearResponseCache)
		}
	}

	return nil
}
