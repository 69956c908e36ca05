package cache

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/irfndi/stockdash/internal/logging"
	"github.com/irfndi/stockdash/internal/marketdata"
	"github.com/irfndi/stockdash/internal/models"
	"github.com/sirupsen/logrus"
)

// Stats tracks cache performance counters.
type Stats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Sets   int64 `json:"sets"`
	Errors int64 `json:"errors"`
}

// HitRate returns hits as a percentage of lookups.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total) * 100
}

// CachedGateway memoizes history, profile and recommendation lookups of the
// wrapped gateway. Last prices are always fetched live. Errors are never
// cached, and a broken store degrades to a pass-through.
type CachedGateway struct {
	next   marketdata.Gateway
	store  Store
	logger logrus.FieldLogger

	mu    sync.Mutex
	stats Stats
}

// NewCachedGateway wraps next with store.
func NewCachedGateway(next marketdata.Gateway, store Store, logger logrus.FieldLogger) *CachedGateway {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &CachedGateway{
		next:   next,
		store:  store,
		logger: logging.WithComponent(logger, "response_cache"),
	}
}

func (g *CachedGateway) FetchHistory(ctx context.Context, ticker, period, interval string) (*models.PriceSeries, error) {
	key := cacheKey("history", ticker, period, interval)
	var series models.PriceSeries
	if g.lookup(ctx, key, &series) {
		return &series, nil
	}

	fetched, err := g.next.FetchHistory(ctx, ticker, period, interval)
	if err != nil {
		return nil, err
	}
	g.save(ctx, key, fetched)
	return fetched, nil
}

func (g *CachedGateway) FetchLastPrice(ctx context.Context, ticker string) (float64, error) {
	return g.next.FetchLastPrice(ctx, ticker)
}

func (g *CachedGateway) FetchProfile(ctx context.Context, ticker string) (*models.Profile, error) {
	key := cacheKey("profile", ticker)
	var profile models.Profile
	if g.lookup(ctx, key, &profile) {
		return &profile, nil
	}

	fetched, err := g.next.FetchProfile(ctx, ticker)
	if err != nil {
		return nil, err
	}
	g.save(ctx, key, fetched)
	return fetched, nil
}

func (g *CachedGateway) FetchRecommendations(ctx context.Context, ticker string) ([]models.RecommendationTrend, error) {
	key := cacheKey("recommendations", ticker)
	var trends []models.RecommendationTrend
	if g.lookup(ctx, key, &trends) {
		return trends, nil
	}

	fetched, err := g.next.FetchRecommendations(ctx, ticker)
	if err != nil {
		return nil, err
	}
	g.save(ctx, key, fetched)
	return fetched, nil
}

// Stats returns a snapshot of the counters.
func (g *CachedGateway) Stats() Stats {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stats
}

// Clear drops every cached response.
func (g *CachedGateway) Clear(ctx context.Context) error {
	return g.store.Clear(ctx)
}

// Len returns the number of cached responses.
func (g *CachedGateway) Len(ctx context.Context) (int, error) {
	return g.store.Len(ctx)
}

func (g *CachedGateway) lookup(ctx context.Context, key string, dst interface{}) bool {
	start := time.Now()
	data, ok, err := g.store.Get(ctx, key)
	if err == nil && ok {
		if err = json.Unmarshal(data, dst); err == nil {
			g.count(func(s *Stats) { s.Hits++ })
			logging.LogCacheOperation(g.logger, "get", key, true, time.Since(start).Milliseconds())
			return true
		}
	}
	if err != nil {
		g.logger.WithError(err).WithField("key", key).Warn("Response cache read failed")
		g.count(func(s *Stats) { s.Errors++ })
	}
	g.count(func(s *Stats) { s.Misses++ })
	logging.LogCacheOperation(g.logger, "get", key, false, time.Since(start).Milliseconds())
	return false
}

func (g *CachedGateway) save(ctx context.Context, key string, value interface{}) {
	data, err := json.Marshal(value)
	if err == nil {
		err = g.store.Set(ctx, key, data)
	}
	if err != nil {
		g.logger.WithError(err).WithField("key", key).Warn("Response cache write failed")
		g.count(func(s *Stats) { s.Errors++ })
		return
	}
	g.count(func(s *Stats) { s.Sets++ })
}

func (g *CachedGateway) count(update func(*Stats)) {
	g.mu.Lock()
	update(&g.stats)
	g.mu.Unlock()
}

func cacheKey(kind string, parts ...string) string {
	return kind + ":" + strings.ToUpper(strings.Join(parts, ":"))
}

var _ marketdata.Gateway = (*CachedGateway)(nil)
