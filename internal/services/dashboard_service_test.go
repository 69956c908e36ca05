package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/irfndi/stockdash/internal/config"
	"github.com/irfndi/stockdash/internal/models"
	"github.com/irfndi/stockdash/internal/simulation"
	"github.com/irfndi/stockdash/internal/testutil"
	"github.com/irfndi/stockdash/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBars = 300

func wave(n int, base, amp, period, drift float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = base + amp*math.Sin(float64(i)/period) + drift*float64(i)
	}
	return out
}

func stockGateway() (*testutil.FakeGateway, []float64) {
	closes := wave(testBars, 100, 10, 7, 0.1)
	gw := testutil.NewFakeGateway().
		SetCloses("AAPL", closes...).
		SetCloses("MSFT", wave(testBars, 300, 20, 9, 0.2)...).
		SetCloses("^GSPC", wave(testBars, 4000, 50, 5, 1)...).
		SetLastPrice("AAPL", 123.456).
		SetProfile(&models.Profile{
			Ticker:        "AAPL",
			Name:          "Apple Inc.",
			MarketCap:     testutil.Float(2.9e12),
			Beta:          testutil.Float(1.28),
			DividendYield: testutil.Float(0.52),
		}).
		SetRecommendations("AAPL", models.RecommendationTrend{Period: "0m", StrongBuy: 10, Buy: 20, Hold: 5, Sell: 1})
	return gw, closes
}

func newTestDashboard(gw *testutil.FakeGateway, withSimulations bool) *DashboardService {
	logger := quietLogger()
	var cache *simulation.Cache
	if withSimulations {
		sim := simulation.NewSimulator(gw, simulation.Config{MaxHorizon: 252}, logger).WithSeed(7)
		cache = simulation.NewCache(sim, simulation.CacheConfig{MaxEntries: 10, Paths: 200}, logger)
	}
	riskFree := NewRiskFreeRate(gw, config.MarketDataConfig{RiskFreeDefault: 0.04}, logger)
	return NewDashboardService(gw, cache, riskFree, DashboardConfig{MaxHorizon: 252, SamplePaths: 20}, logger)
}

func metricValue(t *testing.T, rows []models.MetricRow, label string) string {
	t.Helper()
	report := models.MetricsReport{Metrics: rows}
	v, ok := report.Value(label)
	require.True(t, ok, "missing metric %s", label)
	return v
}

func TestDashboardService_Build(t *testing.T) {
	gw, closes := stockGateway()
	svc := newTestDashboard(gw, true)

	dash, err := svc.Build(context.Background(), models.DashboardRequest{
		Ticker:  "aapl",
		Compare: "msft",
		Horizon: 10,
	})
	require.NoError(t, err)

	assert.Equal(t, "AAPL", dash.Ticker)
	assert.Equal(t, "1Y", dash.Period)
	assert.Equal(t, "1M", dash.Interval)
	assert.Equal(t, models.ChartLine, dash.ChartType)
	assert.Empty(t, dash.Warnings)
	assert.Equal(t, models.ConsensusStrongBuy, dash.Consensus)
	assert.False(t, dash.GeneratedAt.IsZero())

	require.NotNil(t, dash.Chart)
	assert.Equal(t, "AAPL -- 1 Month over 1 Year", dash.Chart.Title)
	assert.Len(t, dash.Chart.Bars, testBars)
	require.Len(t, dash.Chart.SMA20, testBars)
	assert.Nil(t, dash.Chart.SMA20[18])
	assert.NotNil(t, dash.Chart.SMA20[19])
	assert.Nil(t, dash.Chart.SMA50[48])
	assert.NotNil(t, dash.Chart.SMA50[49])

	labels := make([]string, len(dash.Metrics))
	for i, row := range dash.Metrics {
		labels[i] = row.Label
	}
	assert.Equal(t, []string{
		MetricCurrentPrice, MetricMarketCap, MetricBeta, MetricRealizedBeta, MetricAlpha,
		MetricVolatility, Metric52WHigh, Metric52WLow, MetricDividendYield, MetricMaxDrawdown, MetricAvgVolume,
	}, labels)

	high, low := math.Inf(-1), math.Inf(1)
	for _, c := range closes {
		high, low = math.Max(high, c), math.Min(low, c)
	}
	assert.Equal(t, "123.46", metricValue(t, dash.Metrics, MetricCurrentPrice))
	assert.Equal(t, "2.90T", metricValue(t, dash.Metrics, MetricMarketCap))
	assert.Equal(t, "1.280", metricValue(t, dash.Metrics, MetricBeta))
	assert.Equal(t, "0.52", metricValue(t, dash.Metrics, MetricDividendYield))
	assert.Equal(t, fmt.Sprintf("%.2f", high), metricValue(t, dash.Metrics, Metric52WHigh))
	assert.Equal(t, fmt.Sprintf("%.2f", low), metricValue(t, dash.Metrics, Metric52WLow))
	assert.Equal(t, "150,500", metricValue(t, dash.Metrics, MetricAvgVolume))
	for _, label := range []string{MetricRealizedBeta, MetricAlpha, MetricVolatility, MetricMaxDrawdown} {
		assert.NotEqual(t, "N/A", metricValue(t, dash.Metrics, label), label)
	}

	require.NotNil(t, dash.Comparison)
	assert.Equal(t, "AAPL", dash.Comparison.Ticker)
	assert.Equal(t, "MSFT", dash.Comparison.Compare)
	assert.Len(t, dash.Comparison.Timestamps, testBars-1)
	assert.Len(t, dash.Comparison.Ticker1, testBars-1)
	assert.Len(t, dash.Comparison.Ticker2, testBars-1)

	require.NotNil(t, dash.Simulation)
	assert.Equal(t, 10, dash.Simulation.Horizon)
	assert.Equal(t, 200, dash.Simulation.Paths)
	assert.Len(t, dash.Simulation.SamplePaths, 20)
	assert.Equal(t, "123.456", dash.Simulation.AnchorPrice.String())
	assert.LessOrEqual(t, dash.Simulation.Summary.P5, dash.Simulation.Summary.P95)
}

func TestDashboardService_Build_DegradesOptionalSections(t *testing.T) {
	gw := testutil.NewFakeGateway().SetCloses("AAPL", wave(testBars, 100, 10, 7, 0.1)...)
	svc := newTestDashboard(gw, false)

	dash, err := svc.Build(context.Background(), models.DashboardRequest{Ticker: "AAPL", Horizon: 5})
	require.NoError(t, err)

	last := wave(testBars, 100, 10, 7, 0.1)[testBars-1]
	assert.Equal(t, fmt.Sprintf("%.2f", last), metricValue(t, dash.Metrics, MetricCurrentPrice))
	for _, label := range []string{MetricMarketCap, MetricBeta, MetricRealizedBeta, MetricAlpha, MetricDividendYield} {
		assert.Equal(t, "N/A", metricValue(t, dash.Metrics, label), label)
	}
	assert.Equal(t, models.ConsensusNone, dash.Consensus)
	assert.Nil(t, dash.Simulation)
	assert.Contains(t, dash.Warnings, "profile unavailable")
	assert.Contains(t, dash.Warnings, "benchmark ^GSPC unavailable")
}

func TestDashboardService_Build_RecommendationFailureIsWarning(t *testing.T) {
	gw, _ := stockGateway()
	gw.Fail(testutil.OpRecommendations, "AAPL", utils.ErrUnavailable)
	svc := newTestDashboard(gw, false)

	dash, err := svc.Build(context.Background(), models.DashboardRequest{Ticker: "AAPL"})
	require.NoError(t, err)
	assert.Equal(t, models.ConsensusNone, dash.Consensus)
	assert.Equal(t, []string{"analyst recommendations unavailable"}, dash.Warnings)
}

func TestDashboardService_Build_InvalidCompareIsWarning(t *testing.T) {
	gw, _ := stockGateway()
	svc := newTestDashboard(gw, false)

	dash, err := svc.Build(context.Background(), models.DashboardRequest{Ticker: "AAPL", Compare: "not a ticker!"})
	require.NoError(t, err)
	assert.Nil(t, dash.Comparison)
	require.Len(t, dash.Warnings, 1)
	assert.Contains(t, dash.Warnings[0], "comparison ignored")
}

func TestDashboardService_Build_UnknownCompareIsWarning(t *testing.T) {
	gw, _ := stockGateway()
	svc := newTestDashboard(gw, false)

	dash, err := svc.Build(context.Background(), models.DashboardRequest{Ticker: "AAPL", Compare: "NOPE"})
	require.NoError(t, err)
	assert.Nil(t, dash.Comparison)
	assert.Equal(t, []string{"comparison with NOPE unavailable"}, dash.Warnings)
}

func TestDashboardService_Build_Errors(t *testing.T) {
	gw, _ := stockGateway()
	svc := newTestDashboard(gw, true)

	tests := []struct {
		name string
		req  models.DashboardRequest
		want error
	}{
		{"unknown ticker", models.DashboardRequest{Ticker: "ZZZZ"}, utils.ErrInvalidTicker},
		{"empty ticker", models.DashboardRequest{}, utils.ErrInvalidArgument},
		{"bad period", models.DashboardRequest{Ticker: "AAPL", Period: "3Q"}, utils.ErrInvalidArgument},
		{"bad interval", models.DashboardRequest{Ticker: "AAPL", Interval: "1H"}, utils.ErrInvalidArgument},
		{"bad chart type", models.DashboardRequest{Ticker: "AAPL", ChartType: "pie"}, utils.ErrInvalidArgument},
		{"horizon too long", models.DashboardRequest{Ticker: "AAPL", Horizon: 500}, utils.ErrInvalidArgument},
		{"negative horizon", models.DashboardRequest{Ticker: "AAPL", Horizon: -1}, utils.ErrInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Build(context.Background(), tt.req)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestDashboardService_Build_ProviderOutage(t *testing.T) {
	gw, _ := stockGateway()
	gw.Fail(testutil.OpHistory, "AAPL", utils.ErrUnavailable)
	svc := newTestDashboard(gw, false)

	_, err := svc.Build(context.Background(), models.DashboardRequest{Ticker: "AAPL"})
	assert.True(t, errors.Is(err, utils.ErrUnavailable))
}

func TestDashboardService_Metrics(t *testing.T) {
	gw, _ := stockGateway()
	svc := newTestDashboard(gw, false)

	report, err := svc.Metrics(context.Background(), "aapl", "")
	require.NoError(t, err)
	assert.Equal(t, "AAPL", report.Ticker)
	assert.Equal(t, "1Y", report.Period)
	assert.Len(t, report.Metrics, 11)
	assert.Equal(t, models.ConsensusStrongBuy, report.Consensus)

	_, err = svc.Metrics(context.Background(), "AAPL", "2Y")
	assert.True(t, errors.Is(err, utils.ErrInvalidArgument))
}

func TestDashboardService_Simulation(t *testing.T) {
	gw, _ := stockGateway()
	svc := newTestDashboard(gw, true)

	resp, err := svc.Simulation(context.Background(), "aapl", 0, 5)
	require.NoError(t, err)
	assert.Equal(t, "AAPL", resp.Ticker)
	assert.Equal(t, 30, resp.Horizon)
	assert.Len(t, resp.SamplePaths, 5)

	again, err := svc.Simulation(context.Background(), "AAPL", 30, 5)
	require.NoError(t, err)
	assert.Equal(t, resp.ID, again.ID)

	_, err = svc.Simulation(context.Background(), "AAPL", 1000, 5)
	assert.True(t, errors.Is(err, utils.ErrInvalidArgument))

	disabled := newTestDashboard(gw, false)
	_, err = disabled.Simulation(context.Background(), "AAPL", 10, 5)
	assert.True(t, errors.Is(err, utils.ErrUnavailable))
}

func TestDashboardService_Defaults(t *testing.T) {
	svc := newTestDashboard(testutil.NewFakeGateway(), false)

	req := svc.Defaults()
	assert.Equal(t, "1Y", req.Period)
	assert.Equal(t, "1M", req.Interval)
	assert.Equal(t, models.ChartLine, req.ChartType)
	assert.Zero(t, req.Horizon)

	gw, _ := stockGateway()
	assert.Equal(t, 30, newTestDashboard(gw, true).Defaults().Horizon)
}
