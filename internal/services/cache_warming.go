package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/irfndi/stockdash/internal/config"
	"github.com/irfndi/stockdash/internal/simulation"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// warmConcurrency bounds simulations run at once by a warming pass.
const warmConcurrency = 2

// WarmReport summarises one warming pass.
type WarmReport struct {
	Warmed   int           `json:"warmed"`
	Failed   int           `json:"failed"`
	Duration time.Duration `json:"duration"`
}

// CacheWarmingService pre-computes simulations for a watchlist on a cron
// schedule so the first dashboard view of a popular ticker is served from
// the cache.
type CacheWarmingService struct {
	cache    *simulation.Cache
	tickers  []string
	horizons []int
	schedule string
	logger   logrus.FieldLogger

	cron    *cron.Cron
	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	running atomic.Bool
}

// NewCacheWarmingService creates a new cache warming service.
func NewCacheWarmingService(cache *simulation.Cache, cfg config.WarmConfig, logger logrus.FieldLogger) *CacheWarmingService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &CacheWarmingService{
		cache:    cache,
		tickers:  cfg.Tickers,
		horizons: cfg.Horizons,
		schedule: cfg.Schedule,
		logger:   logger.WithField("component", "cache_warmer"),
		cron:     cron.New(cron.WithSeconds()),
	}
}

// Start registers the warming job and starts the scheduler. A pass also runs
// immediately in the background.
func (c *CacheWarmingService) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return fmt.Errorf("cache warmer already started")
	}

	c.ctx, c.cancel = context.WithCancel(ctx)
	if _, err := c.cron.AddFunc(c.schedule, c.runScheduled); err != nil {
		c.cancel()
		c.cancel = nil
		return fmt.Errorf("register warm schedule %q: %w", c.schedule, err)
	}
	c.cron.Start()
	go c.runScheduled()

	c.logger.WithFields(logrus.Fields{
		"schedule": c.schedule,
		"tickers":  c.tickers,
		"horizons": c.horizons,
	}).Info("Cache warmer started")
	return nil
}

// Stop cancels any running pass and waits for the scheduler to finish.
func (c *CacheWarmingService) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-c.cron.Stop().Done()
	c.logger.Info("Cache warmer stopped")
}

func (c *CacheWarmingService) runScheduled() {
	// skip a tick while the previous pass is still going
	if !c.running.CompareAndSwap(false, true) {
		c.logger.Debug("Previous warming pass still running, skipping")
		return
	}
	defer c.running.Store(false)

	c.mu.Lock()
	ctx := c.ctx
	c.mu.Unlock()
	c.WarmCache(ctx)
}

// WarmCache computes every ticker/horizon pair of the watchlist that is not
// already cached. Failures are logged and counted, never returned.
func (c *CacheWarmingService) WarmCache(ctx context.Context) WarmReport {
	start := time.Now()
	var warmed, failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(warmConcurrency)

	for _, ticker := range c.tickers {
		for _, horizon := range c.horizons {
			ticker, horizon := ticker, horizon
			if _, ok := c.cache.Peek(ticker, horizon); ok {
				continue
			}
			g.Go(func() error {
				if _, err := c.cache.GetOrCompute(gctx, ticker, horizon); err != nil {
					failed.Add(1)
					c.logger.WithFields(logrus.Fields{
						"ticker":  ticker,
						"horizon": horizon,
					}).WithError(err).Warn("Failed to warm simulation")
					return nil
				}
				warmed.Add(1)
				return nil
			})
		}
	}
	_ = g.Wait()

	report := WarmReport{
		Warmed:   int(warmed.Load()),
		Failed:   int(failed.Load()),
		Duration: time.Since(start),
	}
	c.logger.WithFields(logrus.Fields{
		"warmed":      report.Warmed,
		"failed":      report.Failed,
		"duration_ms": report.Duration.Milliseconds(),
	}).Info("Cache warming completed")
	return report
}
