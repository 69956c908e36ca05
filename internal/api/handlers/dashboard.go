package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/irfndi/stockdash/internal/middleware"
	"github.com/irfndi/stockdash/internal/models"
	"github.com/irfndi/stockdash/internal/utils"
	"github.com/sirupsen/logrus"
)

// maxSamplePaths bounds the paths returned for plotting.
const maxSamplePaths = 100

// DashboardService is implemented by services.DashboardService.
type DashboardService interface {
	Build(ctx context.Context, req models.DashboardRequest) (*models.Dashboard, error)
	Metrics(ctx context.Context, ticker, period string) (*models.MetricsReport, error)
	Simulation(ctx context.Context, ticker string, horizon, samples int) (*models.SimulationResponse, error)
	Defaults() models.DashboardRequest
}

// DashboardHandler serves the JSON dashboard endpoints and the HTML page.
type DashboardHandler struct {
	service    DashboardService
	maxHorizon int
	logger     logrus.FieldLogger
}

// NewDashboardHandler creates a new dashboard handler.
func NewDashboardHandler(service DashboardService, maxHorizon int, logger logrus.FieldLogger) *DashboardHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &DashboardHandler{
		service:    service,
		maxHorizon: maxHorizon,
		logger:     logger.WithField("component", "dashboard_handler"),
	}
}

// GetDashboard returns the full page model for a ticker.
// GET /api/v1/dashboard/:ticker?compare=&period=&interval=&chart_type=&horizon=
func (h *DashboardHandler) GetDashboard(c *gin.Context) {
	var req models.DashboardRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		respondError(c, h.logger, utils.NewValidationErrorf("invalid query: %v", err))
		return
	}
	req.Ticker = c.Param("ticker")
	middleware.AddSpanAttribute(c, "ticker", req.Ticker)

	dashboard, err := h.service.Build(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    dashboard,
	})
}

// GetMetrics returns the metrics table and buyer consensus.
// GET /api/v1/metrics/:ticker?period=
func (h *DashboardHandler) GetMetrics(c *gin.Context) {
	ticker := c.Param("ticker")
	middleware.AddSpanAttribute(c, "ticker", ticker)

	report, err := h.service.Metrics(c.Request.Context(), ticker, c.Query("period"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    report,
	})
}

// GetSimulation returns the cached Monte Carlo summary, with up to `paths`
// sampled price paths.
// GET /api/v1/simulation/:ticker?horizon=&paths=
func (h *DashboardHandler) GetSimulation(c *gin.Context) {
	ticker := c.Param("ticker")
	horizon, err := intQuery(c, "horizon")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	samples, err := intQuery(c, "paths")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if samples < 0 || samples > maxSamplePaths {
		respondError(c, h.logger, utils.NewValidationErrorf("paths must be between 0 and %d", maxSamplePaths))
		return
	}
	middleware.AddSpanAttribute(c, "ticker", ticker)
	middleware.AddSpanAttribute(c, "simulation.horizon", horizon)

	resp, err := h.service.Simulation(c.Request.Context(), ticker, horizon, samples)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    resp,
	})
}

func intQuery(c *gin.Context, name string) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, utils.NewValidationErrorf("%s must be an integer, got %q", name, raw)
	}
	return v, nil
}
