// Package testutil holds fakes shared by package tests.
package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/irfndi/stockdash/internal/models"
	"github.com/irfndi/stockdash/internal/utils"
)

// Gateway operation names used by FakeGateway.Fail and FakeGateway.Calls.
const (
	OpHistory         = "history"
	OpLastPrice       = "last_price"
	OpProfile         = "profile"
	OpRecommendations = "recommendations"
)

// SeriesStart is the timestamp of the first bar built by SeriesFromCloses.
var SeriesStart = time.Date(2024, time.January, 2, 0, 0, 0, 0, time.UTC)

// SeriesFromCloses builds a daily series with the given closes. Open, high
// and low are set around the close so candles are well formed.
func SeriesFromCloses(ticker string, closes ...float64) *models.PriceSeries {
	bars := make([]models.PriceBar, len(closes))
	for i, c := range closes {
		bars[i] = models.PriceBar{
			Timestamp: SeriesStart.AddDate(0, 0, i),
			Open:      c,
			High:      c * 1.01,
			Low:       c * 0.99,
			Close:     c,
			Volume:    float64(1000 * (i + 1)),
		}
	}
	return &models.PriceSeries{Ticker: strings.ToUpper(ticker), Period: "1y", Interval: "1d", Bars: bars}
}

// FakeGateway is an in-memory marketdata.Gateway. Unknown tickers fail with
// utils.ErrInvalidTicker.
type FakeGateway struct {
	mu              sync.Mutex
	history         map[string]*models.PriceSeries
	lastPrices      map[string]float64
	profiles        map[string]*models.Profile
	recommendations map[string][]models.RecommendationTrend
	failures        map[string]error
	calls           map[string]int

	// Gate, when set, blocks FetchHistory until it is closed or the context ends.
	Gate chan struct{}
}

// NewFakeGateway creates an empty fake.
func NewFakeGateway() *FakeGateway {
	return &FakeGateway{
		history:         make(map[string]*models.PriceSeries),
		lastPrices:      make(map[string]float64),
		profiles:        make(map[string]*models.Profile),
		recommendations: make(map[string][]models.RecommendationTrend),
		failures:        make(map[string]error),
		calls:           make(map[string]int),
	}
}

// SetHistory registers the history returned for ticker regardless of period.
func (f *FakeGateway) SetHistory(series *models.PriceSeries) *FakeGateway {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.history[strings.ToUpper(series.Ticker)] = series
	return f
}

// SetCloses is a shorthand for SetHistory(SeriesFromCloses(ticker, closes...)).
func (f *FakeGateway) SetCloses(ticker string, closes ...float64) *FakeGateway {
	return f.SetHistory(SeriesFromCloses(ticker, closes...))
}

func (f *FakeGateway) SetLastPrice(ticker string, price float64) *FakeGateway {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastPrices[strings.ToUpper(ticker)] = price
	return f
}

func (f *FakeGateway) SetProfile(profile *models.Profile) *FakeGateway {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.profiles[strings.ToUpper(profile.Ticker)] = profile
	return f
}

func (f *FakeGateway) SetRecommendations(ticker string, trends ...models.RecommendationTrend) *FakeGateway {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recommendations[strings.ToUpper(ticker)] = trends
	return f
}

// Fail makes op for ticker return err until Recover is called.
func (f *FakeGateway) Fail(op, ticker string, err error) *FakeGateway {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[op+":"+strings.ToUpper(ticker)] = err
	return f
}

// Recover clears a failure registered with Fail.
func (f *FakeGateway) Recover(op, ticker string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.failures, op+":"+strings.ToUpper(ticker))
}

// Calls returns how many times op was invoked for ticker.
func (f *FakeGateway) Calls(op, ticker string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op+":"+strings.ToUpper(ticker)]
}

func (f *FakeGateway) begin(op, ticker string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := op + ":" + strings.ToUpper(ticker)
	f.calls[key]++
	return f.failures[key]
}

func (f *FakeGateway) FetchHistory(ctx context.Context, ticker, period, interval string) (*models.PriceSeries, error) {
	if err := f.begin(OpHistory, ticker); err != nil {
		return nil, err
	}
	if f.Gate != nil {
		select {
		case <-f.Gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	series, ok := f.history[strings.ToUpper(ticker)]
	f.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("history %s: %w", ticker, utils.ErrInvalidTicker)
	}
	out := *series
	out.Period = period
	out.Interval = interval
	return &out, nil
}

// FetchLastPrice returns the registered live price. Tickers with history but
// no live price fail with utils.ErrDataInsufficient.
func (f *FakeGateway) FetchLastPrice(ctx context.Context, ticker string) (float64, error) {
	if err := f.begin(OpLastPrice, ticker); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if price, ok := f.lastPrices[strings.ToUpper(ticker)]; ok {
		return price, nil
	}
	if _, ok := f.history[strings.ToUpper(ticker)]; ok {
		return 0, fmt.Errorf("last price %s: %w", ticker, utils.ErrDataInsufficient)
	}
	return 0, fmt.Errorf("last price %s: %w", ticker, utils.ErrInvalidTicker)
}

func (f *FakeGateway) FetchProfile(ctx context.Context, ticker string) (*models.Profile, error) {
	if err := f.begin(OpProfile, ticker); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.profiles[strings.ToUpper(ticker)]; ok {
		out := *p
		return &out, nil
	}
	return nil, fmt.Errorf("profile %s: %w", ticker, utils.ErrInvalidTicker)
}

func (f *FakeGateway) FetchRecommendations(ctx context.Context, ticker string) ([]models.RecommendationTrend, error) {
	if err := f.begin(OpRecommendations, ticker); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.recommendations[strings.ToUpper(ticker)]; ok {
		return append([]models.RecommendationTrend(nil), r...), nil
	}
	return nil, nil
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}
