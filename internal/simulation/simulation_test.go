package simulation

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/irfndi/stockdash/internal/models"
	"github.com/irfndi/stockdash/internal/testutil"
	"github.com/irfndi/stockdash/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func trendingCloses(n int) []float64 {
	closes := make([]float64, n)
	price := 100.0
	for i := range closes {
		// alternate moves so the sample deviation is non-zero
		if i%2 == 0 {
			price *= 1.012
		} else {
			price *= 0.995
		}
		closes[i] = price
	}
	return closes
}

func TestSimulator_Shape(t *testing.T) {
	gw := testutil.NewFakeGateway().SetCloses("AAPL", trendingCloses(60)...).SetLastPrice("AAPL", 150)
	sim := NewSimulator(gw, Config{MaxHorizon: 365}, nil).WithSeed(7)

	result, err := sim.Simulate(context.Background(), "aapl", 30, 200)
	require.NoError(t, err)

	assert.Equal(t, "AAPL", result.Ticker)
	assert.NotEqual(t, uuid.Nil, result.ID)
	require.Len(t, result.Prices, 30)
	for _, row := range result.Prices {
		require.Len(t, row, 200)
		for _, p := range row {
			assert.Greater(t, p, 0.0)
		}
	}
	for _, p := range result.Prices[0] {
		assert.Equal(t, 150.0, p)
	}
	assert.Equal(t, 150.0, result.AnchorPrice)
	assert.Greater(t, result.Sigma, 0.0)
}

func TestSimulator_EstimatesFromLogReturns(t *testing.T) {
	closes := []float64{100, 110, 99, 105}
	gw := testutil.NewFakeGateway().SetCloses("X", closes...).SetLastPrice("X", 105)
	sim := NewSimulator(gw, Config{}, nil).WithSeed(1)

	result, err := sim.Simulate(context.Background(), "X", 2, 10)
	require.NoError(t, err)

	r := []float64{math.Log(110.0 / 100), math.Log(99.0 / 110), math.Log(105.0 / 99)}
	mean := (r[0] + r[1] + r[2]) / 3
	var ss float64
	for _, v := range r {
		ss += (v - mean) * (v - mean)
	}
	assert.InDelta(t, mean, result.Mu, 1e-12)
	assert.InDelta(t, math.Sqrt(ss/2), result.Sigma, 1e-12)
}

func TestSimulator_AnchorFallsBackToLastClose(t *testing.T) {
	gw := testutil.NewFakeGateway().SetCloses("MSFT", 10, 11, 12)
	sim := NewSimulator(gw, Config{}, nil).WithSeed(3)

	result, err := sim.Simulate(context.Background(), "MSFT", 5, 4)
	require.NoError(t, err)
	assert.Equal(t, 12.0, result.AnchorPrice)
	assert.Equal(t, []float64{12, 12, 12, 12}, result.Prices[0])

	gw.Fail(testutil.OpLastPrice, "MSFT", utils.ErrUnavailable)
	result, err = sim.Simulate(context.Background(), "MSFT", 5, 4)
	require.NoError(t, err)
	assert.Equal(t, 12.0, result.AnchorPrice)
}

func TestSimulator_ConstantPricesStayFlat(t *testing.T) {
	gw := testutil.NewFakeGateway().SetCloses("FLAT", 50, 50, 50, 50).SetLastPrice("FLAT", 50)
	sim := NewSimulator(gw, Config{}, nil)

	result, err := sim.Simulate(context.Background(), "FLAT", 10, 25)
	require.NoError(t, err)
	for _, row := range result.Prices {
		for _, p := range row {
			assert.Equal(t, 50.0, p)
		}
	}
}

func TestSimulator_SeedIsDeterministic(t *testing.T) {
	gw := testutil.NewFakeGateway().SetCloses("AAPL", trendingCloses(40)...).SetLastPrice("AAPL", 100)
	sim := NewSimulator(gw, Config{}, nil).WithSeed(42)

	a, err := sim.Simulate(context.Background(), "AAPL", 10, 50)
	require.NoError(t, err)
	b, err := sim.Simulate(context.Background(), "AAPL", 10, 50)
	require.NoError(t, err)
	assert.Equal(t, a.Prices, b.Prices)
}

func TestSimulator_InvalidArguments(t *testing.T) {
	gw := testutil.NewFakeGateway().SetCloses("AAPL", 1, 2, 3)
	sim := NewSimulator(gw, Config{MaxHorizon: 100}, nil)

	cases := []struct {
		horizon, paths int
	}{
		{0, 10},
		{-1, 10},
		{10, 0},
		{10, -5},
		{101, 10},
	}
	for _, tc := range cases {
		_, err := sim.Simulate(context.Background(), "AAPL", tc.horizon, tc.paths)
		assert.True(t, errors.Is(err, utils.ErrInvalidArgument), "horizon=%d paths=%d", tc.horizon, tc.paths)
	}
	assert.Zero(t, gw.Calls(testutil.OpHistory, "AAPL"), "validation must happen before any fetch")
}

func TestSimulator_InsufficientData(t *testing.T) {
	gw := testutil.NewFakeGateway().SetCloses("NEW", 10).SetCloses("TWO", 10, 11).SetCloses("EMPTY")
	sim := NewSimulator(gw, Config{}, nil)

	for _, ticker := range []string{"NEW", "TWO", "EMPTY"} {
		_, err := sim.Simulate(context.Background(), ticker, 5, 10)
		assert.True(t, errors.Is(err, utils.ErrDataInsufficient), ticker)
	}
}

func TestSimulator_PropagatesGatewayErrors(t *testing.T) {
	sim := NewSimulator(testutil.NewFakeGateway(), Config{}, nil)

	_, err := sim.Simulate(context.Background(), "NOPE", 5, 10)
	assert.True(t, errors.Is(err, utils.ErrInvalidTicker))
}

func TestSummarize(t *testing.T) {
	result := &models.SimulationResult{
		Prices: [][]float64{
			{25, 25, 25, 25, 25},
			{50, 10, 40, 20, 30},
		},
	}

	summary, err := Summarize(result)
	require.NoError(t, err)
	assert.InDelta(t, 30.0, summary.Expected, 1e-12)
	assert.InDelta(t, 12.0, summary.P5, 1e-12)
	assert.InDelta(t, 48.0, summary.P95, 1e-12)
	assert.InDelta(t, 60.0, summary.ProbUp, 1e-12)
	assert.InDelta(t, 60.0, summary.ProbUp5, 1e-12)
}

func TestSummarize_ConstantPaths(t *testing.T) {
	result := &models.SimulationResult{Prices: [][]float64{{100, 100, 100}, {100, 100, 100}}}

	summary, err := Summarize(result)
	require.NoError(t, err)
	assert.Equal(t, 100.0, summary.Expected)
	assert.Equal(t, 100.0, summary.P5)
	assert.Equal(t, 100.0, summary.P95)
	assert.Zero(t, summary.ProbUp)
	assert.Zero(t, summary.ProbUp5)
}

func TestSummarize_Properties(t *testing.T) {
	gw := testutil.NewFakeGateway().SetCloses("AAPL", trendingCloses(120)...).SetLastPrice("AAPL", 100)
	result, err := NewSimulator(gw, Config{}, nil).WithSeed(9).Simulate(context.Background(), "AAPL", 20, 2000)
	require.NoError(t, err)

	summary, err := Summarize(result)
	require.NoError(t, err)
	assert.LessOrEqual(t, summary.P5, summary.Expected)
	assert.LessOrEqual(t, summary.Expected, summary.P95)
	assert.LessOrEqual(t, summary.ProbUp5, summary.ProbUp)
	assert.GreaterOrEqual(t, summary.ProbUp5, 0.0)
	assert.LessOrEqual(t, summary.ProbUp, 100.0)
}

func TestSummarize_Empty(t *testing.T) {
	_, err := Summarize(&models.SimulationResult{})
	assert.True(t, errors.Is(err, utils.ErrDataInsufficient))
}

func TestSamplePathsAndResponse(t *testing.T) {
	result := &models.SimulationResult{
		ID:          uuid.New(),
		Ticker:      "AAPL",
		Horizon:     2,
		Paths:       4,
		AnchorPrice: 101.123456,
		Prices:      [][]float64{{1, 1, 1, 1}, {2, 3, 4, 5}},
	}

	samples := SamplePaths(result, 2)
	require.Len(t, samples, 2)
	assert.Equal(t, []float64{1, 2}, samples[0])
	assert.Equal(t, []float64{1, 4}, samples[1])
	assert.Len(t, SamplePaths(result, 10), 4)
	assert.Nil(t, SamplePaths(result, 0))

	resp := NewResponse(result, models.SimulationSummary{Expected: 3.5}, 0)
	assert.Equal(t, result.ID.String(), resp.ID)
	assert.Equal(t, "101.1235", resp.AnchorPrice.String())
	assert.Empty(t, resp.SamplePaths)
}

// countingRunner records runs and can hold them until released.
type countingRunner struct {
	calls atomic.Int64
	gate  chan struct{}

	mu  sync.Mutex
	err error
}

func (r *countingRunner) Simulate(ctx context.Context, ticker string, horizon, paths int) (*models.SimulationResult, error) {
	r.calls.Add(1)
	if r.gate != nil {
		select {
		case <-r.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	r.mu.Lock()
	err := r.err
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return &models.SimulationResult{
		ID:      uuid.New(),
		Ticker:  ticker,
		Horizon: horizon,
		Paths:   paths,
		Prices:  [][]float64{{1}},
	}, nil
}

func (r *countingRunner) setErr(err error) {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
}

func TestCache_ReturnsSameResult(t *testing.T) {
	runner := &countingRunner{}
	cache := NewCache(runner, CacheConfig{Paths: 10}, nil)

	first, err := cache.GetOrCompute(context.Background(), "aapl", 30)
	require.NoError(t, err)
	second, err := cache.GetOrCompute(context.Background(), "AAPL", 30)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, int64(1), runner.calls.Load())
	assert.Equal(t, 10, first.Paths)

	stats := cache.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(1), stats.Computations)
	assert.Equal(t, 1, stats.Entries)

	peeked, ok := cache.Peek("aapl", 30)
	require.True(t, ok)
	assert.Same(t, first, peeked)
	_, ok = cache.Peek("AAPL", 31)
	assert.False(t, ok)
}

func TestCache_ConcurrentCallersShareOneRun(t *testing.T) {
	runner := &countingRunner{gate: make(chan struct{})}
	cache := NewCache(runner, CacheConfig{}, nil)

	const callers = 20
	results := make([]*models.SimulationResult, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := cache.GetOrCompute(context.Background(), "MSFT", 10)
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}

	require.Eventually(t, func() bool { return runner.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	// give late callers time to join the flight
	time.Sleep(20 * time.Millisecond)
	close(runner.gate)
	wg.Wait()

	assert.Equal(t, int64(1), runner.calls.Load())
	for _, res := range results {
		assert.Same(t, results[0], res)
	}
}

func TestCache_ErrorsAreNotCached(t *testing.T) {
	runner := &countingRunner{}
	runner.setErr(utils.ErrUnavailable)
	cache := NewCache(runner, CacheConfig{}, nil)

	_, err := cache.GetOrCompute(context.Background(), "AAPL", 30)
	assert.True(t, errors.Is(err, utils.ErrUnavailable))
	assert.Zero(t, cache.Stats().Entries)

	runner.setErr(nil)
	res, err := cache.GetOrCompute(context.Background(), "AAPL", 30)
	require.NoError(t, err)
	assert.NotNil(t, res)
	assert.Equal(t, int64(2), runner.calls.Load())
}

func TestCache_InvalidArguments(t *testing.T) {
	runner := &countingRunner{}
	cache := NewCache(runner, CacheConfig{}, nil)

	_, err := cache.GetOrCompute(context.Background(), "AAPL", 0)
	assert.True(t, errors.Is(err, utils.ErrInvalidArgument))
	_, err = cache.GetOrCompute(context.Background(), "  ", 10)
	assert.True(t, errors.Is(err, utils.ErrInvalidArgument))
	assert.Zero(t, runner.calls.Load())
}

func TestCache_LRUEviction(t *testing.T) {
	runner := &countingRunner{}
	cache := NewCache(runner, CacheConfig{MaxEntries: 2}, nil)
	ctx := context.Background()

	_, err := cache.GetOrCompute(ctx, "A", 1)
	require.NoError(t, err)
	_, err = cache.GetOrCompute(ctx, "B", 1)
	require.NoError(t, err)
	// touch A so B becomes least recently used
	_, err = cache.GetOrCompute(ctx, "A", 1)
	require.NoError(t, err)
	_, err = cache.GetOrCompute(ctx, "C", 1)
	require.NoError(t, err)

	_, ok := cache.Peek("B", 1)
	assert.False(t, ok)
	_, ok = cache.Peek("A", 1)
	assert.True(t, ok)
	assert.Equal(t, 2, cache.Stats().Entries)
	assert.ElementsMatch(t, []Key{{"A", 1}, {"C", 1}}, cache.Keys())
}

func TestCache_TTLExpiry(t *testing.T) {
	runner := &countingRunner{}
	cache := NewCache(runner, CacheConfig{TTL: 30 * time.Millisecond}, nil)

	first, err := cache.GetOrCompute(context.Background(), "AAPL", 5)
	require.NoError(t, err)

	time.Sleep(60 * time.Millisecond)
	second, err := cache.GetOrCompute(context.Background(), "AAPL", 5)
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.Equal(t, int64(2), runner.calls.Load())
}

func TestCache_WaiterCancellationDoesNotAbortRun(t *testing.T) {
	runner := &countingRunner{gate: make(chan struct{})}
	cache := NewCache(runner, CacheConfig{Timeout: 5 * time.Second}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := cache.GetOrCompute(ctx, "AAPL", 5)
		errCh <- err
	}()

	require.Eventually(t, func() bool { return runner.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.True(t, errors.Is(<-errCh, context.Canceled))

	close(runner.gate)
	require.Eventually(t, func() bool {
		_, ok := cache.Peek("AAPL", 5)
		return ok
	}, time.Second, 5*time.Millisecond)

	res, err := cache.GetOrCompute(context.Background(), "AAPL", 5)
	require.NoError(t, err)
	assert.NotNil(t, res)
	assert.Equal(t, int64(1), runner.calls.Load())
}

func TestCache_Purge(t *testing.T) {
	runner := &countingRunner{}
	cache := NewCache(runner, CacheConfig{}, nil)

	_, err := cache.GetOrCompute(context.Background(), "AAPL", 5)
	require.NoError(t, err)
	cache.Purge()
	assert.Zero(t, cache.Stats().Entries)

	_, err = cache.GetOrCompute(context.Background(), "AAPL", 5)
	require.NoError(t, err)
	assert.Equal(t, int64(2), runner.calls.Load())
}

func TestCache_EndToEndWithSimulator(t *testing.T) {
	gw := testutil.NewFakeGateway().SetCloses("AAPL", trendingCloses(30)...).SetLastPrice("AAPL", 120)
	sim := NewSimulator(gw, Config{}, nil)
	cache := NewCache(sim, CacheConfig{Paths: 100}, nil)

	first, err := cache.GetOrCompute(context.Background(), "AAPL", 15)
	require.NoError(t, err)
	second, err := cache.GetOrCompute(context.Background(), "aapl", 15)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, gw.Calls(testutil.OpHistory, "AAPL"))
	require.Len(t, first.Prices, 15)
	assert.Len(t, first.Prices[0], 100)
}
