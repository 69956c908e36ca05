package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/irfndi/stockdash/internal/analytics"
	"github.com/irfndi/stockdash/internal/config"
	"github.com/irfndi/stockdash/internal/marketdata"
	"github.com/irfndi/stockdash/internal/models"
	"github.com/irfndi/stockdash/internal/simulation"
	"github.com/irfndi/stockdash/internal/utils"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Metric labels, in display order.
const (
	MetricCurrentPrice  = "Current Price"
	MetricMarketCap     = "Market Cap"
	MetricBeta          = "Beta"
	MetricRealizedBeta  = "Realized Beta"
	MetricAlpha         = "Alpha"
	MetricVolatility    = "Volatility"
	Metric52WHigh       = "52W High"
	Metric52WLow        = "52W Low"
	MetricDividendYield = "Dividend Yield"
	MetricMaxDrawdown   = "Max Drawdown"
	MetricAvgVolume     = "Avg Volume"
)

// DashboardConfig holds the defaults applied to incomplete requests.
type DashboardConfig struct {
	BenchmarkTicker  string
	DefaultPeriod    string
	DefaultInterval  string
	DefaultChartType models.ChartType
	DefaultHorizon   int
	MaxHorizon       int
	// SamplePaths is the number of simulated paths returned for plotting.
	SamplePaths int
}

// DashboardConfigFromConfig maps application config to dashboard defaults.
func DashboardConfigFromConfig(cfg *config.Config) DashboardConfig {
	return DashboardConfig{
		BenchmarkTicker:  cfg.MarketData.BenchmarkTicker,
		DefaultPeriod:    cfg.MarketData.DefaultPeriod,
		DefaultInterval:  cfg.MarketData.DefaultInterval,
		DefaultChartType: models.ChartType(cfg.MarketData.DefaultChartType),
		DefaultHorizon:   cfg.Simulation.DefaultHorizon,
		MaxHorizon:       cfg.Simulation.MaxHorizon,
		SamplePaths:      20,
	}
}

// DashboardService assembles the dashboard page model. The price history of
// the requested ticker is required; every other section degrades to "N/A" or
// is omitted with a warning when its data cannot be fetched.
type DashboardService struct {
	gateway     marketdata.Gateway
	simulations *simulation.Cache
	riskFree    *RiskFreeRate
	config      DashboardConfig
	logger      logrus.FieldLogger
}

// NewDashboardService creates a new dashboard service.
func NewDashboardService(gateway marketdata.Gateway, simulations *simulation.Cache, riskFree *RiskFreeRate, cfg DashboardConfig, logger logrus.FieldLogger) *DashboardService {
	if cfg.BenchmarkTicker == "" {
		cfg.BenchmarkTicker = "^GSPC"
	}
	if cfg.DefaultPeriod == "" {
		cfg.DefaultPeriod = "1Y"
	}
	if cfg.DefaultInterval == "" {
		cfg.DefaultInterval = "1M"
	}
	if cfg.DefaultChartType == "" {
		cfg.DefaultChartType = models.ChartLine
	}
	if cfg.DefaultHorizon <= 0 {
		cfg.DefaultHorizon = 30
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &DashboardService{
		gateway:     gateway,
		simulations: simulations,
		riskFree:    riskFree,
		config:      cfg,
		logger:      logger.WithField("component", "dashboard"),
	}
}

// Defaults returns a request populated with the configured defaults. The
// horizon is left at 0 when simulations are disabled.
func (s *DashboardService) Defaults() models.DashboardRequest {
	req := models.DashboardRequest{
		Period:    s.config.DefaultPeriod,
		Interval:  s.config.DefaultInterval,
		ChartType: s.config.DefaultChartType,
	}
	if s.simulations != nil {
		req.Horizon = s.config.DefaultHorizon
	}
	return req
}

// warnings collects degradation messages from concurrent sections.
type warnings struct {
	mu   sync.Mutex
	list []string
}

func (w *warnings) add(format string, args ...interface{}) {
	w.mu.Lock()
	w.list = append(w.list, fmt.Sprintf(format, args...))
	w.mu.Unlock()
}

func (w *warnings) merge(other []string) {
	w.mu.Lock()
	w.list = append(w.list, other...)
	w.mu.Unlock()
}

// Build fetches everything the dashboard shows for req.
func (s *DashboardService) Build(ctx context.Context, req models.DashboardRequest) (*models.Dashboard, error) {
	ticker, err := marketdata.NormalizeTicker(req.Ticker)
	if err != nil {
		return nil, err
	}
	periodCode, period, err := s.period(req.Period)
	if err != nil {
		return nil, err
	}
	intervalCode := strings.ToUpper(req.Interval)
	if intervalCode == "" {
		intervalCode = s.config.DefaultInterval
	}
	interval, err := marketdata.ResolveInterval(intervalCode)
	if err != nil {
		return nil, err
	}
	chartType := req.ChartType
	switch chartType {
	case "":
		chartType = s.config.DefaultChartType
	case models.ChartLine, models.ChartCandle:
	default:
		return nil, utils.NewValidationErrorf("unsupported chart type %q", req.ChartType)
	}
	if req.Horizon < 0 || (s.config.MaxHorizon > 0 && req.Horizon > s.config.MaxHorizon) {
		return nil, utils.NewValidationErrorf("horizon must be between 0 and %d, got %d", s.config.MaxHorizon, req.Horizon)
	}

	var compare string
	var warn warnings
	if strings.TrimSpace(req.Compare) != "" {
		if compare, err = marketdata.NormalizeTicker(req.Compare); err != nil {
			warn.add("comparison ignored: %v", err)
			compare = ""
		}
	}

	dashboard := &models.Dashboard{
		Ticker:        ticker,
		Period:        periodCode,
		Interval:      intervalCode,
		PeriodLabel:   marketdata.LabelDesc[periodCode],
		IntervalLabel: marketdata.LabelDesc[intervalCode],
		ChartType:     chartType,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		history, err := s.gateway.FetchHistory(gctx, ticker, period, interval)
		if err != nil {
			return err
		}
		dashboard.Chart = s.chart(history, ticker, intervalCode, periodCode, chartType)
		return nil
	})

	g.Go(func() error {
		report, err := s.metrics(gctx, ticker, periodCode, period)
		if err != nil {
			return err
		}
		dashboard.Metrics = report.Metrics
		dashboard.Consensus = report.Consensus
		warn.merge(report.Warnings)
		return nil
	})

	if compare != "" {
		g.Go(func() error {
			comparison, err := s.comparison(gctx, ticker, compare, period)
			if err != nil {
				s.degrade(gctx, &warn, err, "comparison with %s unavailable", compare)
				return nil
			}
			dashboard.Comparison = comparison
			return nil
		})
	}

	if req.Horizon > 0 && s.simulations != nil {
		g.Go(func() error {
			resp, err := s.Simulation(gctx, ticker, req.Horizon, s.config.SamplePaths)
			if err != nil {
				s.degrade(gctx, &warn, err, "simulation unavailable")
				return nil
			}
			dashboard.Simulation = resp
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	dashboard.Warnings = warn.list
	dashboard.GeneratedAt = time.Now().UTC()
	return dashboard, nil
}

// Metrics computes the metrics table and buyer consensus for ticker.
func (s *DashboardService) Metrics(ctx context.Context, ticker, periodCode string) (*models.MetricsReport, error) {
	ticker, err := marketdata.NormalizeTicker(ticker)
	if err != nil {
		return nil, err
	}
	code, period, err := s.period(periodCode)
	if err != nil {
		return nil, err
	}
	return s.metrics(ctx, ticker, code, period)
}

// Simulation returns the cached simulation summary for ticker. A zero horizon
// uses the configured default.
func (s *DashboardService) Simulation(ctx context.Context, ticker string, horizon, samples int) (*models.SimulationResponse, error) {
	if s.simulations == nil {
		return nil, fmt.Errorf("simulation disabled: %w", utils.ErrUnavailable)
	}
	ticker, err := marketdata.NormalizeTicker(ticker)
	if err != nil {
		return nil, err
	}
	if horizon == 0 {
		horizon = s.config.DefaultHorizon
	}
	if horizon < 0 || (s.config.MaxHorizon > 0 && horizon > s.config.MaxHorizon) {
		return nil, utils.NewValidationErrorf("horizon must be between 1 and %d, got %d", s.config.MaxHorizon, horizon)
	}

	result, err := s.simulations.GetOrCompute(ctx, ticker, horizon)
	if err != nil {
		return nil, err
	}
	summary, err := simulation.Summarize(result)
	if err != nil {
		return nil, err
	}
	return simulation.NewResponse(result, summary, samples), nil
}

func (s *DashboardService) period(code string) (string, string, error) {
	code = strings.ToUpper(code)
	if code == "" {
		code = s.config.DefaultPeriod
	}
	period, err := marketdata.ResolvePeriod(code)
	return code, period, err
}

func (s *DashboardService) metrics(ctx context.Context, ticker, periodCode, period string) (*models.MetricsReport, error) {
	var (
		warn      warnings
		returns   *models.PriceSeries
		yearly    *models.PriceSeries
		benchmark *models.PriceSeries
		profile   *models.Profile
		trends    []models.RecommendationTrend
		lastPrice float64
		hasLast   bool
		riskFree  float64
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() (err error) {
		returns, err = s.gateway.FetchHistory(gctx, ticker, period, "1d")
		return err
	})
	g.Go(func() (err error) {
		yearly, err = s.gateway.FetchHistory(gctx, ticker, "1y", "1d")
		return err
	})
	g.Go(func() error {
		series, err := s.gateway.FetchHistory(gctx, s.config.BenchmarkTicker, period, "1d")
		if err != nil {
			s.degrade(gctx, &warn, err, "benchmark %s unavailable", s.config.BenchmarkTicker)
			return nil
		}
		benchmark = series
		return nil
	})
	g.Go(func() error {
		p, err := s.gateway.FetchProfile(gctx, ticker)
		if err != nil {
			s.degrade(gctx, &warn, err, "profile unavailable")
			return nil
		}
		profile = p
		return nil
	})
	g.Go(func() error {
		t, err := s.gateway.FetchRecommendations(gctx, ticker)
		if err != nil {
			s.degrade(gctx, &warn, err, "analyst recommendations unavailable")
			return nil
		}
		trends = t
		return nil
	})
	g.Go(func() error {
		price, err := s.gateway.FetchLastPrice(gctx, ticker)
		if err == nil && price > 0 {
			lastPrice, hasLast = price, true
		}
		return nil
	})
	if s.riskFree != nil {
		g.Go(func() error {
			riskFree = s.riskFree.Rate(gctx)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	if profile == nil {
		profile = &models.Profile{Ticker: ticker}
	}
	if !hasLast {
		if bar, ok := yearly.Last(); ok {
			lastPrice, hasLast = bar.Close, true
		}
	}

	stockReturns := analytics.SimpleReturns(returns)
	var realizedBeta, alpha *float64
	if benchmark != nil {
		marketReturns := analytics.SimpleReturns(benchmark)
		if b, err := analytics.Beta(stockReturns, marketReturns); err == nil {
			realizedBeta = &b
			if a, err := analytics.Alpha(stockReturns, marketReturns, b, riskFree); err == nil {
				alpha = &a
			}
		} else {
			warn.add("realized beta unavailable: %v", err)
		}
	}

	var high, low *float64
	if h, l, err := analytics.Range52Week(yearly); err == nil {
		high, low = &h, &l
	}
	avgVolume := analytics.NotAvailable
	if v, err := analytics.AverageVolume(yearly); err == nil {
		avgVolume = analytics.FormatVolume(v)
	}
	volatility := analytics.Volatility(stockReturns.Values)
	drawdown := analytics.MaxDrawdown(yearly.Closes())

	var current *float64
	if hasLast {
		current = &lastPrice
	}

	rows := []models.MetricRow{
		{Label: MetricCurrentPrice, Value: analytics.FormatOptional(current, 2)},
		{Label: MetricMarketCap, Value: analytics.FormatLargeNumber(profile.MarketCap)},
		{Label: MetricBeta, Value: analytics.FormatOptional(profile.Beta, 3)},
		{Label: MetricRealizedBeta, Value: analytics.FormatOptional(realizedBeta, 3)},
		{Label: MetricAlpha, Value: analytics.FormatOptional(alpha, 3)},
		{Label: MetricVolatility, Value: analytics.FormatOptional(&volatility, 3)},
		{Label: Metric52WHigh, Value: analytics.FormatOptional(high, 2)},
		{Label: Metric52WLow, Value: analytics.FormatOptional(low, 2)},
		{Label: MetricDividendYield, Value: analytics.FormatOptional(profile.DividendYield, 2)},
		{Label: MetricMaxDrawdown, Value: analytics.FormatOptional(&drawdown, 2)},
		{Label: MetricAvgVolume, Value: avgVolume},
	}

	return &models.MetricsReport{
		Ticker:    ticker,
		Period:    periodCode,
		Metrics:   rows,
		Consensus: analytics.BuyerConsensus(trends),
		Warnings:  warn.list,
	}, nil
}

func (s *DashboardService) chart(history *models.PriceSeries, ticker, intervalCode, periodCode string, chartType models.ChartType) *models.ChartData {
	closes := history.Closes()
	return &models.ChartData{
		Title: fmt.Sprintf("%s -- %s over %s", ticker, marketdata.LabelDesc[intervalCode], marketdata.LabelDesc[periodCode]),
		Type:  chartType,
		Bars:  history.Bars,
		SMA20: analytics.SMA(closes, 20),
		SMA50: analytics.SMA(closes, 50),
	}
}

func (s *DashboardService) comparison(ctx context.Context, ticker, compare, period string) (*models.ComparisonChart, error) {
	g, gctx := errgroup.WithContext(ctx)
	var a, b *models.PriceSeries
	g.Go(func() (err error) {
		a, err = s.gateway.FetchHistory(gctx, ticker, period, "1d")
		return err
	})
	g.Go(func() (err error) {
		b, err = s.gateway.FetchHistory(gctx, compare, period, "1d")
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	ra, rb := analytics.SimpleReturns(a), analytics.SimpleReturns(b)
	idx := make(map[int64]int, rb.Len())
	for i, ts := range rb.Timestamps {
		idx[ts.Unix()] = i
	}

	chart := &models.ComparisonChart{Ticker: ticker, Compare: compare}
	var xs, ys []float64
	for i, ts := range ra.Timestamps {
		if j, ok := idx[ts.Unix()]; ok {
			chart.Timestamps = append(chart.Timestamps, ts)
			xs = append(xs, ra.Values[i])
			ys = append(ys, rb.Values[j])
		}
	}
	if len(xs) == 0 {
		return nil, fmt.Errorf("%s and %s share no trading days: %w", ticker, compare, utils.ErrDataInsufficient)
	}
	chart.Ticker1 = analytics.CumulativeReturns(xs)
	chart.Ticker2 = analytics.CumulativeReturns(ys)
	return chart, nil
}

// degrade logs an optional section failure and records a warning. Failures
// caused by the request itself being cancelled are not reported.
func (s *DashboardService) degrade(ctx context.Context, warn *warnings, err error, format string, args ...interface{}) {
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return
	}
	msg := fmt.Sprintf(format, args...)
	s.logger.WithError(err).Warn(msg)
	warn.add("%s", msg)
}
