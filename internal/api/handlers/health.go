package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/irfndi/stockdash/internal/database"
	"github.com/irfndi/stockdash/internal/services"
	"github.com/irfndi/stockdash/internal/simulation"
	"github.com/shirou/gopsutil/v3/mem"
)

var startTime = time.Now()

const (
	statusHealthy   = "healthy"
	statusDegraded  = "degraded"
	statusUnhealthy = "unhealthy"
)

// HealthHandler reports the state of the provider circuit, Redis, the
// simulation cache and host memory.
type HealthHandler struct {
	redis       *database.RedisClient
	breaker     *services.CircuitBreaker
	simulations *simulation.Cache
	version     string
	memory      func(context.Context) (*mem.VirtualMemoryStat, error)
}

// NewHealthHandler creates a health handler. A nil redis means Redis is not
// configured, which is not a failure.
func NewHealthHandler(redis *database.RedisClient, breaker *services.CircuitBreaker, simulations *simulation.Cache, version string) *HealthHandler {
	return &HealthHandler{
		redis:       redis,
		breaker:     breaker,
		simulations: simulations,
		version:     version,
		memory:      mem.VirtualMemoryWithContext,
	}
}

// MemoryStatus is a host memory snapshot.
type MemoryStatus struct {
	TotalMB     uint64  `json:"total_mb"`
	AvailableMB uint64  `json:"available_mb"`
	UsedPercent float64 `json:"used_percent"`
}

type HealthResponse struct {
	Status          string                        `json:"status"`
	Timestamp       time.Time                     `json:"timestamp"`
	Version         string                        `json:"version"`
	Uptime          string                        `json:"uptime"`
	Services        map[string]string             `json:"services"`
	Circuit         *services.CircuitBreakerStats `json:"circuit_breaker,omitempty"`
	SimulationCache *simulation.CacheStats        `json:"simulation_cache,omitempty"`
	Memory          *MemoryStatus                 `json:"memory,omitempty"`
}

// HealthCheck answers 503 only when a configured dependency is down. An open
// provider circuit reports "degraded" with 200 since the process itself can
// still serve cached simulations.
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	resp := HealthResponse{
		Status:    statusHealthy,
		Timestamp: time.Now().UTC(),
		Version:   h.version,
		Uptime:    time.Since(startTime).Round(time.Second).String(),
		Services:  make(map[string]string),
	}

	if h.redis == nil {
		resp.Services["redis"] = "disabled"
	} else if err := h.redis.HealthCheck(ctx); err != nil {
		resp.Services["redis"] = "unhealthy: " + err.Error()
		resp.Status = statusUnhealthy
	} else {
		resp.Services["redis"] = statusHealthy
	}

	if h.breaker != nil {
		stats := h.breaker.GetStats()
		resp.Circuit = &stats
		if h.breaker.IsOpen() {
			resp.Services["market_data"] = "circuit open"
			if resp.Status == statusHealthy {
				resp.Status = statusDegraded
			}
		} else {
			resp.Services["market_data"] = statusHealthy
		}
	}

	if h.simulations != nil {
		stats := h.simulations.Stats()
		resp.SimulationCache = &stats
	}

	if vm, err := h.memory(ctx); err == nil && vm != nil {
		resp.Memory = &MemoryStatus{
			TotalMB:     vm.Total / 1024 / 1024,
			AvailableMB: vm.Available / 1024 / 1024,
			UsedPercent: vm.UsedPercent,
		}
	}

	status := http.StatusOK
	if resp.Status == statusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, resp)
}

// LivenessCheck only proves the process answers.
func (h *HealthHandler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "alive",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
