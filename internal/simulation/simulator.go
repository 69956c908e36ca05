// Package simulation runs Monte Carlo price simulations with geometric
// Brownian motion, memoizes them per ticker and horizon, and summarizes the
// terminal price distribution.
package simulation

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/irfndi/stockdash/internal/marketdata"
	"github.com/irfndi/stockdash/internal/models"
	"github.com/irfndi/stockdash/internal/telemetry"
	"github.com/irfndi/stockdash/internal/utils"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// dt is one trading day in years.
const dt = 1.0 / 252

// DefaultPaths is used when Config.DefaultPaths is not set.
const DefaultPaths = 10000

// Config controls the simulator.
type Config struct {
	DefaultPaths  int
	MaxHorizon    int
	HistoryPeriod string
}

// Runner produces a simulation for a ticker. The cache depends on this
// rather than on *Simulator so tests can count and gate runs.
type Runner interface {
	Simulate(ctx context.Context, ticker string, horizon, paths int) (*models.SimulationResult, error)
}

// Simulator estimates drift and volatility from daily log returns and
// projects price paths forward.
type Simulator struct {
	gateway marketdata.Gateway
	config  Config
	logger  logrus.FieldLogger

	seeded bool
	seed   uint64
}

// NewSimulator creates a simulator reading history from gateway.
func NewSimulator(gateway marketdata.Gateway, config Config, logger logrus.FieldLogger) *Simulator {
	if config.DefaultPaths <= 0 {
		config.DefaultPaths = DefaultPaths
	}
	if config.HistoryPeriod == "" {
		config.HistoryPeriod = "5y"
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Simulator{
		gateway: gateway,
		config:  config,
		logger:  logger.WithField("component", "simulator"),
	}
}

// WithSeed makes every run draw the same normal sequence. Used by tests.
func (s *Simulator) WithSeed(seed uint64) *Simulator {
	s.seeded = true
	s.seed = seed
	return s
}

// DefaultPaths returns the configured default number of paths.
func (s *Simulator) DefaultPaths() int {
	return s.config.DefaultPaths
}

// Simulate returns a horizon × paths price matrix. Row 0 holds the anchor
// price (the live last price, or the latest close when that is unavailable)
// and every following row applies one GBM step per path.
func (s *Simulator) Simulate(ctx context.Context, ticker string, horizon, paths int) (result *models.SimulationResult, err error) {
	if horizon <= 0 {
		return nil, utils.NewValidationErrorf("horizon must be positive, got %d", horizon)
	}
	if s.config.MaxHorizon > 0 && horizon > s.config.MaxHorizon {
		return nil, utils.NewValidationErrorf("horizon %d exceeds maximum of %d", horizon, s.config.MaxHorizon)
	}
	if paths <= 0 {
		return nil, utils.NewValidationErrorf("paths must be positive, got %d", paths)
	}
	ticker = strings.ToUpper(strings.TrimSpace(ticker))

	ctx, span := telemetry.StartSimulationSpan(ctx, ticker, horizon, paths)
	defer func() { telemetry.EndSpan(span, err) }()

	start := time.Now()
	history, err := s.gateway.FetchHistory(ctx, ticker, s.config.HistoryPeriod, "1d")
	if err != nil {
		return nil, fmt.Errorf("simulation history for %s: %w", ticker, err)
	}

	closes := history.Closes()
	if len(closes) < 2 {
		return nil, fmt.Errorf("simulation for %s needs at least 2 closes, got %d: %w",
			ticker, len(closes), utils.ErrDataInsufficient)
	}

	logReturns := make([]float64, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		logReturns[i-1] = math.Log(closes[i] / closes[i-1])
	}
	mu := stat.Mean(logReturns, nil)
	sigma := math.NaN()
	if len(logReturns) > 1 {
		sigma = stat.StdDev(logReturns, nil)
	}
	if !finite(mu) || !finite(sigma) {
		return nil, fmt.Errorf("simulation for %s: return statistics are not finite (mu=%v sigma=%v): %w",
			ticker, mu, sigma, utils.ErrDataInsufficient)
	}

	anchor := s.anchorPrice(ctx, ticker, closes[len(closes)-1])

	prices, err := s.paths(ctx, anchor, mu, sigma, horizon, paths)
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"ticker":      ticker,
		"horizon":     horizon,
		"paths":       paths,
		"mu":          mu,
		"sigma":       sigma,
		"anchor":      anchor,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("Simulation completed")

	return &models.SimulationResult{
		ID:          uuid.New(),
		Ticker:      ticker,
		Horizon:     horizon,
		Paths:       paths,
		AnchorPrice: anchor,
		Mu:          mu,
		Sigma:       sigma,
		CreatedAt:   time.Now().UTC(),
		Prices:      prices,
	}, nil
}

func (s *Simulator) anchorPrice(ctx context.Context, ticker string, lastClose float64) float64 {
	price, err := s.gateway.FetchLastPrice(ctx, ticker)
	if err == nil && price > 0 && finite(price) {
		return price
	}
	s.logger.WithFields(logrus.Fields{
		"ticker":     ticker,
		"last_close": lastClose,
	}).WithError(err).Debug("Live price unavailable, anchoring on last close")
	return lastClose
}

func (s *Simulator) paths(ctx context.Context, anchor, mu, sigma float64, horizon, paths int) ([][]float64, error) {
	z := distuv.Normal{Mu: 0, Sigma: 1, Src: s.newSource()}
	drift := (mu - 0.5*sigma*sigma) * dt
	shock := sigma * math.Sqrt(dt)

	prices := make([][]float64, horizon)
	prices[0] = make([]float64, paths)
	for j := range prices[0] {
		prices[0][j] = anchor
	}
	for t := 1; t < horizon; t++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		prev := prices[t-1]
		row := make([]float64, paths)
		for j := range row {
			row[j] = prev[j] * math.Exp(drift+shock*z.Rand())
		}
		prices[t] = row
	}
	return prices, nil
}

func (s *Simulator) newSource() rand.Source {
	if s.seeded {
		return rand.NewPCG(s.seed, s.seed^0x9e3779b97f4a7c15)
	}
	return rand.NewPCG(rand.Uint64(), rand.Uint64())
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

var _ Runner = (*Simulator)(nil)
