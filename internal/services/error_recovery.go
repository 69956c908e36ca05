package services

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/irfndi/stockdash/internal/config"
	"github.com/irfndi/stockdash/internal/utils"
	"github.com/sirupsen/logrus"
)

// RetryPolicy defines retry behavior for failed operations
type RetryPolicy struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	JitterEnabled bool
}

// RetryPolicyFromConfig builds the provider retry policy.
func RetryPolicyFromConfig(cfg config.MarketDataConfig) RetryPolicy {
	return RetryPolicy{
		MaxRetries:    cfg.MaxRetries,
		InitialDelay:  cfg.InitialBackoff,
		MaxDelay:      cfg.MaxBackoff,
		BackoffFactor: 2.0,
		JitterEnabled: true,
	}
}

// DefaultRetryPolicy is used when no market data settings are available.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:    3,
		InitialDelay:  250 * time.Millisecond,
		MaxDelay:      4 * time.Second,
		BackoffFactor: 2.0,
		JitterEnabled: true,
	}
}

// ExecuteWithRetry runs operation until it succeeds, fails with an error that
// is not retryable, or the policy is exhausted. Only utils.ErrUnavailable is
// retried, and never while the circuit is open.
func ExecuteWithRetry(ctx context.Context, logger logrus.FieldLogger, operationName string, policy RetryPolicy, operation func(context.Context) error) error {
	start := time.Now()
	delay := policy.InitialDelay
	var lastErr error

	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := operation(ctx)
		if err == nil {
			if attempt > 0 {
				logger.WithFields(logrus.Fields{
					"operation": operationName,
					"attempts":  attempt + 1,
					"duration":  time.Since(start),
				}).Info("Operation recovered after retry")
			}
			return nil
		}
		lastErr = err

		if !shouldRetry(err) || attempt == policy.MaxRetries {
			break
		}

		wait := calculateDelay(delay, policy)
		logger.WithFields(logrus.Fields{
			"operation": operationName,
			"attempt":   attempt + 1,
			"error":     err.Error(),
			"delay":     wait,
		}).Warn("Operation failed, retrying")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay = time.Duration(float64(delay) * policy.BackoffFactor)
		if policy.MaxDelay > 0 && delay > policy.MaxDelay {
			delay = policy.MaxDelay
		}
	}

	return lastErr
}

func shouldRetry(err error) bool {
	return utils.IsRetryable(err) && !errors.Is(err, ErrCircuitOpen)
}

// calculateDelay adds up to ±25% jitter when enabled.
func calculateDelay(baseDelay time.Duration, policy RetryPolicy) time.Duration {
	if !policy.JitterEnabled || baseDelay <= 0 {
		return baseDelay
	}
	jitter := time.Duration(float64(baseDelay) * 0.25 * (2*rand.Float64() - 1))
	return baseDelay + jitter
}
