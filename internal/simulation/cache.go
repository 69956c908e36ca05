package simulation

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/irfndi/stockdash/internal/logging"
	"github.com/irfndi/stockdash/internal/models"
	"github.com/irfndi/stockdash/internal/utils"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// Key identifies a cached simulation.
type Key struct {
	Ticker  string `json:"ticker"`
	Horizon int    `json:"horizon"`
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%d", k.Ticker, k.Horizon)
}

// NewKey normalizes the ticker to upper case.
func NewKey(ticker string, horizon int) Key {
	return Key{Ticker: strings.ToUpper(strings.TrimSpace(ticker)), Horizon: horizon}
}

// CacheConfig bounds the cache and the shared computations.
type CacheConfig struct {
	// MaxEntries of 0 keeps every entry.
	MaxEntries int
	// TTL of 0 never expires entries.
	TTL time.Duration
	// Timeout bounds one simulation run. 0 means no bound.
	Timeout time.Duration
	Paths   int
}

// CacheStats is a snapshot of cache counters.
type CacheStats struct {
	Hits         int64 `json:"hits"`
	Misses       int64 `json:"misses"`
	Computations int64 `json:"computations"`
	Entries      int   `json:"entries"`
	MaxEntries   int   `json:"max_entries"`
	TTLSeconds   int64 `json:"ttl_seconds"`
}

// Cache memoizes simulations per (ticker, horizon). Concurrent requests for a
// key that is not cached share one run. Failed runs are not stored.
type Cache struct {
	runner Runner
	config CacheConfig
	lru    *expirable.LRU[Key, *models.SimulationResult]
	group  singleflight.Group
	logger logrus.FieldLogger

	hits         atomic.Int64
	misses       atomic.Int64
	computations atomic.Int64
}

// NewCache creates a cache in front of runner.
func NewCache(runner Runner, config CacheConfig, logger logrus.FieldLogger) *Cache {
	if config.Paths <= 0 {
		config.Paths = DefaultPaths
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Cache{
		runner: runner,
		config: config,
		lru:    expirable.NewLRU[Key, *models.SimulationResult](config.MaxEntries, nil, config.TTL),
		logger: logging.WithComponent(logger, "simulation_cache"),
	}
}

// GetOrCompute returns the cached simulation for (ticker, horizon), running
// it first if needed. Repeated calls return the same *SimulationResult until
// the entry is evicted.
//
// The run is detached from ctx so one caller giving up does not fail the
// others waiting on it; ctx only bounds how long this caller waits.
func (c *Cache) GetOrCompute(ctx context.Context, ticker string, horizon int) (*models.SimulationResult, error) {
	if horizon <= 0 {
		return nil, utils.NewValidationErrorf("horizon must be positive, got %d", horizon)
	}
	key := NewKey(ticker, horizon)
	if key.Ticker == "" {
		return nil, utils.NewValidationError("ticker is required")
	}

	start := time.Now()
	if result, ok := c.lru.Get(key); ok {
		c.hits.Add(1)
		logging.LogCacheOperation(c.logger, "get", key.String(), true, time.Since(start).Milliseconds())
		return result, nil
	}
	c.misses.Add(1)
	logging.LogCacheOperation(c.logger, "get", key.String(), false, time.Since(start).Milliseconds())

	ch := c.group.DoChan(key.String(), func() (interface{}, error) {
		// another flight may have stored the key between Get and DoChan
		if result, ok := c.lru.Peek(key); ok {
			return result, nil
		}

		c.computations.Add(1)
		runCtx := context.WithoutCancel(ctx)
		if c.config.Timeout > 0 {
			var cancel context.CancelFunc
			runCtx, cancel = context.WithTimeout(runCtx, c.config.Timeout)
			defer cancel()
		}

		result, err := c.runner.Simulate(runCtx, key.Ticker, key.Horizon, c.config.Paths)
		if err != nil {
			c.logger.WithFields(logrus.Fields{
				"key": key.String(),
			}).WithError(err).Warn("Simulation failed")
			return nil, err
		}
		c.lru.Add(key, result)
		return result, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*models.SimulationResult), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Peek returns a cached simulation without computing or touching recency.
func (c *Cache) Peek(ticker string, horizon int) (*models.SimulationResult, bool) {
	return c.lru.Peek(NewKey(ticker, horizon))
}

// Keys returns the cached keys, oldest first.
func (c *Cache) Keys() []Key {
	return c.lru.Keys()
}

// Purge drops every entry. In-flight runs still complete and store their result.
func (c *Cache) Purge() {
	n := c.lru.Len()
	c.lru.Purge()
	c.logger.WithField("entries", n).Info("Simulation cache purged")
}

// Stats returns the current counters.
func (c *Cache) Stats() CacheStats {
	return CacheStats{
		Hits:         c.hits.Load(),
		Misses:       c.misses.Load(),
		Computations: c.computations.Load(),
		Entries:      c.lru.Len(),
		MaxEntries:   c.config.MaxEntries,
		TTLSeconds:   int64(c.config.TTL / time.Second),
	}
}

// Paths returns the number of paths each cached run uses.
func (c *Cache) Paths() int {
	return c.config.Paths
}
