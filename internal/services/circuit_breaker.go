package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/irfndi/stockdash/internal/utils"
	"github.com/sirupsen/logrus"
)

// ErrCircuitOpen is returned without calling the provider while the breaker
// is open. It wraps utils.ErrUnavailable so handlers answer 503.
var ErrCircuitOpen = fmt.Errorf("circuit breaker is open: %w", utils.ErrUnavailable)

// CircuitBreakerState represents the current state of the circuit breaker
type CircuitBreakerState int

const (
	Closed CircuitBreakerState = iota
	Open
	HalfOpen
)

func (s CircuitBreakerState) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig holds configuration for the circuit breaker
type CircuitBreakerConfig struct {
	FailureThreshold int           `json:"failure_threshold"` // consecutive failures before opening
	SuccessThreshold int           `json:"success_threshold"` // probe successes needed to close from half-open
	Timeout          time.Duration `json:"timeout"`           // time spent open before probing
	MaxRequests      int           `json:"max_requests"`      // concurrent probes allowed while half-open
	// IsFailure decides which errors count against the provider. Defaults to
	// transient upstream errors and deadlines; unknown tickers never trip it.
	IsFailure func(error) bool `json:"-"`
}

// CircuitBreakerStats holds statistics for the circuit breaker
type CircuitBreakerStats struct {
	State              string    `json:"state"`
	TotalRequests      int64     `json:"total_requests"`
	SuccessfulRequests int64     `json:"successful_requests"`
	FailedRequests     int64     `json:"failed_requests"`
	RejectedRequests   int64     `json:"rejected_requests"`
	LastFailureTime    time.Time `json:"last_failure_time"`
	LastSuccessTime    time.Time `json:"last_success_time"`
	StateChanges       int64     `json:"state_changes"`
}

// CircuitBreaker stops calling a failing provider for a cool-down period.
type CircuitBreaker struct {
	name   string
	config CircuitBreakerConfig
	logger logrus.FieldLogger
	now    func() time.Time

	mu              sync.Mutex
	state           CircuitBreakerState
	failureCount    int
	successCount    int
	inFlightProbes  int
	lastStateChange time.Time
	stats           CircuitBreakerStats
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(name string, config CircuitBreakerConfig, logger logrus.FieldLogger) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = 2
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.MaxRequests <= 0 {
		config.MaxRequests = 1
	}
	if config.IsFailure == nil {
		config.IsFailure = isProviderFailure
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &CircuitBreaker{
		name:            name,
		config:          config,
		logger:          logger,
		now:             time.Now,
		state:           Closed,
		lastStateChange: time.Now(),
	}
}

func isProviderFailure(err error) bool {
	return utils.IsRetryable(err) || errors.Is(err, context.DeadlineExceeded)
}

// Execute runs fn unless the breaker is open. The lock is not held while fn
// runs, so slow provider calls do not serialize.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	probe, err := cb.acquire()
	if err != nil {
		return err
	}

	start := cb.now()
	err = fn(ctx)
	cb.record(probe, err, cb.now().Sub(start))
	return err
}

func (cb *CircuitBreaker) acquire() (probe bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.stats.TotalRequests++

	switch cb.state {
	case Open:
		if cb.now().Sub(cb.lastStateChange) < cb.config.Timeout {
			cb.stats.RejectedRequests++
			cb.logger.WithFields(logrus.Fields{
				"circuit_breaker": cb.name,
				"state":           cb.state.String(),
				"failure_count":   cb.failureCount,
			}).Debug("Circuit breaker is open, rejecting request")
			return false, ErrCircuitOpen
		}
		cb.setState(HalfOpen)
		cb.successCount = 0
		cb.inFlightProbes = 0
		fallthrough
	case HalfOpen:
		if cb.inFlightProbes >= cb.config.MaxRequests {
			cb.stats.RejectedRequests++
			return false, ErrCircuitOpen
		}
		cb.inFlightProbes++
		return true, nil
	default:
		return false, nil
	}
}

func (cb *CircuitBreaker) record(probe bool, err error, duration time.Duration) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if probe && cb.inFlightProbes > 0 {
		cb.inFlightProbes--
	}

	failed := err != nil && cb.config.IsFailure(err)
	if !failed {
		cb.stats.SuccessfulRequests++
		cb.stats.LastSuccessTime = cb.now()
		switch cb.state {
		case Closed:
			cb.failureCount = 0
		case HalfOpen:
			if probe {
				cb.successCount++
				if cb.successCount >= cb.config.SuccessThreshold {
					cb.setState(Closed)
					cb.failureCount = 0
					cb.successCount = 0
				}
			}
		}
		return
	}

	cb.stats.FailedRequests++
	cb.stats.LastFailureTime = cb.now()

	switch cb.state {
	case Closed:
		cb.failureCount++
		if cb.failureCount >= cb.config.FailureThreshold {
			cb.setState(Open)
		}
	case HalfOpen:
		cb.failureCount++
		cb.successCount = 0
		cb.setState(Open)
	}

	cb.logger.WithFields(logrus.Fields{
		"circuit_breaker": cb.name,
		"state":           cb.state.String(),
		"error":           err.Error(),
		"duration_ms":     duration.Milliseconds(),
		"failure_count":   cb.failureCount,
	}).Warn("Circuit breaker: failed execution")
}

// setState must be called with cb.mu held.
func (cb *CircuitBreaker) setState(newState CircuitBreakerState) {
	if cb.state == newState {
		return
	}
	oldState := cb.state
	cb.state = newState
	cb.lastStateChange = cb.now()
	cb.stats.StateChanges++

	cb.logger.WithFields(logrus.Fields{
		"circuit_breaker": cb.name,
		"old_state":       oldState.String(),
		"new_state":       newState.String(),
		"failure_count":   cb.failureCount,
	}).Info("Circuit breaker state changed")
}

// GetState returns the current state of the circuit breaker
func (cb *CircuitBreaker) GetState() CircuitBreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// GetStats returns the current statistics
func (cb *CircuitBreaker) GetStats() CircuitBreakerStats {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	stats := cb.stats
	stats.State = cb.state.String()
	return stats
}

// IsOpen returns true if the circuit breaker is open
func (cb *CircuitBreaker) IsOpen() bool {
	return cb.GetState() == Open
}

// Reset manually resets the circuit breaker to closed state
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.setState(Closed)
	cb.failureCount = 0
	cb.successCount = 0
	cb.inFlightProbes = 0

	cb.logger.WithField("circuit_breaker", cb.name).Info("Circuit breaker manually reset")
}
