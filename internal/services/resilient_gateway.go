package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/irfndi/stockdash/internal/marketdata"
	"github.com/irfndi/stockdash/internal/models"
	"github.com/irfndi/stockdash/internal/utils"
	"github.com/sirupsen/logrus"
)

// ResilientGateway decorates a gateway with a per-attempt timeout, bounded
// retries of transient failures and a shared circuit breaker.
type ResilientGateway struct {
	next    marketdata.Gateway
	breaker *CircuitBreaker
	policy  RetryPolicy
	timeout time.Duration
	logger  logrus.FieldLogger
}

// NewResilientGateway wraps next. A zero timeout disables the per-attempt bound.
func NewResilientGateway(next marketdata.Gateway, breaker *CircuitBreaker, policy RetryPolicy, timeout time.Duration, logger logrus.FieldLogger) *ResilientGateway {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &ResilientGateway{
		next:    next,
		breaker: breaker,
		policy:  policy,
		timeout: timeout,
		logger:  logger.WithField("component", "gateway"),
	}
}

// Breaker exposes the breaker for health reporting.
func (g *ResilientGateway) Breaker() *CircuitBreaker {
	return g.breaker
}

func (g *ResilientGateway) call(ctx context.Context, operation string, fn func(context.Context) error) error {
	return ExecuteWithRetry(ctx, g.logger, operation, g.policy, func(ctx context.Context) error {
		return g.breaker.Execute(ctx, func(ctx context.Context) error {
			if g.timeout <= 0 {
				return fn(ctx)
			}
			attemptCtx, cancel := context.WithTimeout(ctx, g.timeout)
			defer cancel()
			err := fn(attemptCtx)
			// a slow attempt is transient as long as the caller is still waiting
			if err != nil && ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("attempt timed out after %s: %w: %w", g.timeout, utils.ErrUnavailable, err)
			}
			return err
		})
	})
}

func (g *ResilientGateway) FetchHistory(ctx context.Context, ticker, period, interval string) (series *models.PriceSeries, err error) {
	err = g.call(ctx, "history", func(ctx context.Context) error {
		series, err = g.next.FetchHistory(ctx, ticker, period, interval)
		return err
	})
	if err != nil {
		return nil, err
	}
	return series, nil
}

func (g *ResilientGateway) FetchLastPrice(ctx context.Context, ticker string) (price float64, err error) {
	err = g.call(ctx, "last_price", func(ctx context.Context) error {
		price, err = g.next.FetchLastPrice(ctx, ticker)
		return err
	})
	if err != nil {
		return 0, err
	}
	return price, nil
}

func (g *ResilientGateway) FetchProfile(ctx context.Context, ticker string) (profile *models.Profile, err error) {
	err = g.call(ctx, "profile", func(ctx context.Context) error {
		profile, err = g.next.FetchProfile(ctx, ticker)
		return err
	})
	if err != nil {
		return nil, err
	}
	return profile, nil
}

func (g *ResilientGateway) FetchRecommendations(ctx context.Context, ticker string) (trends []models.RecommendationTrend, err error) {
	err = g.call(ctx, "recommendations", func(ctx context.Context) error {
		trends, err = g.next.FetchRecommendations(ctx, ticker)
		return err
	})
	if err != nil {
		return nil, err
	}
	return trends, nil
}

var _ marketdata.Gateway = (*ResilientGateway)(nil)
