package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/irfndi/stockdash/internal/cache"
	"github.com/irfndi/stockdash/internal/simulation"
	"github.com/sirupsen/logrus"
)

// CacheHandler exposes the simulation cache and the provider response cache.
type CacheHandler struct {
	simulations *simulation.Cache
	responses   *cache.CachedGateway
	logger      logrus.FieldLogger
}

// NewCacheHandler creates a new cache handler. Either cache may be nil.
func NewCacheHandler(simulations *simulation.Cache, responses *cache.CachedGateway, logger logrus.FieldLogger) *CacheHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &CacheHandler{
		simulations: simulations,
		responses:   responses,
		logger:      logger.WithField("component", "cache_handler"),
	}
}

// SimulationCacheResponse is the body of GET /api/v1/cache/simulations.
type SimulationCacheResponse struct {
	simulation.CacheStats
	Paths int      `json:"paths"`
	Keys  []string `json:"keys"`
}

// GetSimulationCache returns counters and the cached keys, oldest first.
func (h *CacheHandler) GetSimulationCache(c *gin.Context) {
	if h.simulations == nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "simulation cache is disabled"})
		return
	}
	keys := h.simulations.Keys()
	resp := SimulationCacheResponse{
		CacheStats: h.simulations.Stats(),
		Paths:      h.simulations.Paths(),
		Keys:       make([]string, len(keys)),
	}
	for i, k := range keys {
		resp.Keys[i] = k.String()
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    resp,
	})
}

// PurgeSimulationCache drops every cached simulation.
func (h *CacheHandler) PurgeSimulationCache(c *gin.Context) {
	if h.simulations == nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "simulation cache is disabled"})
		return
	}
	purged := h.simulations.Stats().Entries
	h.simulations.Purge()
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Simulation cache purged",
		"purged":  purged,
	})
}

// ResponseCacheResponse is the body of GET /api/v1/cache/responses.
type ResponseCacheResponse struct {
	cache.Stats
	HitRate float64 `json:"hit_rate"`
	Entries int     `json:"entries"`
}

// GetResponseCache returns provider response cache counters.
func (h *CacheHandler) GetResponseCache(c *gin.Context) {
	if h.responses == nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "response cache is disabled"})
		return
	}
	n, err := h.responses.Len(c.Request.Context())
	if err != nil {
		h.logger.WithError(err).Warn("Failed to count response cache entries")
		n = -1
	}
	stats := h.responses.Stats()
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": ResponseCacheResponse{
			Stats:   stats,
			HitRate: stats.HitRate(),
			Entries: n,
		},
	})
}

// ClearResponseCache drops every cached provider response.
func (h *CacheHandler) ClearResponseCache(c *gin.Context) {
	if h.responses == nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "response cache is disabled"})
		return
	}
	if err := h.responses.Clear(c.Request.Context()); err != nil {
		h.logger.WithError(err).Error("Failed to clear response cache")
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "Failed to clear response cache: " + err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Response cache cleared",
	})
}
