package services

import (
	"context"
	"sync"
	"time"

	"github.com/irfndi/stockdash/internal/config"
	"github.com/irfndi/stockdash/internal/marketdata"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// RiskFreeRate holds the annual risk-free rate as a fraction, derived from a
// treasury bill yield quoted in percent (^IRX by default). The value is
// fetched lazily and refreshed once it is older than the configured TTL.
type RiskFreeRate struct {
	gateway  marketdata.Gateway
	ticker   string
	ttl      time.Duration
	timeout  time.Duration
	fallback float64
	logger   logrus.FieldLogger
	now      func() time.Time

	group     singleflight.Group
	mu        sync.RWMutex
	value     float64
	fetchedAt time.Time
	valid     bool
}

// NewRiskFreeRate creates a provider. Nothing is fetched until Rate is called.
func NewRiskFreeRate(gateway marketdata.Gateway, cfg config.MarketDataConfig, logger logrus.FieldLogger) *RiskFreeRate {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	ticker := cfg.RiskFreeTicker
	if ticker == "" {
		ticker = "^IRX"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &RiskFreeRate{
		gateway:  gateway,
		ticker:   ticker,
		ttl:      cfg.RiskFreeTTL,
		timeout:  timeout,
		fallback: cfg.RiskFreeDefault,
		logger:   logger.WithField("component", "risk_free_rate"),
		now:      time.Now,
	}
}

// Rate returns the current rate. Provider failures fall back to the last
// known value, or to the configured default when none was ever fetched.
func (r *RiskFreeRate) Rate(ctx context.Context) float64 {
	r.mu.RLock()
	value, fresh := r.value, r.valid && r.now().Sub(r.fetchedAt) < r.ttl
	r.mu.RUnlock()
	if fresh {
		return value
	}

	// the refresh is detached from the caller that started it
	ch := r.group.DoChan(r.ticker, func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()
		return r.refresh(fetchCtx), nil
	})

	select {
	case res := <-ch:
		return res.Val.(float64)
	case <-ctx.Done():
		return r.current()
	}
}

// current returns the last known value, or the default.
func (r *RiskFreeRate) current() float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.valid {
		return r.value
	}
	return r.fallback
}

func (r *RiskFreeRate) refresh(ctx context.Context) float64 {
	quote, err := r.gateway.FetchLastPrice(ctx, r.ticker)
	if err == nil && quote > 0 {
		rate := quote / 100
		r.mu.Lock()
		r.value, r.fetchedAt, r.valid = rate, r.now(), true
		r.mu.Unlock()
		r.logger.WithFields(logrus.Fields{
			"ticker": r.ticker,
			"rate":   rate,
		}).Debug("Risk-free rate refreshed")
		return rate
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	entry := r.logger.WithField("ticker", r.ticker)
	if err != nil {
		entry = entry.WithError(err)
	}
	if r.valid {
		entry.Warn("Risk-free rate refresh failed, keeping stale value")
		return r.value
	}
	entry.WithField("default", r.fallback).Warn("Risk-free rate unavailable, using default")
	return r.fallback
}
