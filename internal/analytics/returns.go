// Package analytics computes the descriptive metrics shown on the dashboard.
// Every function is pure and safe for concurrent use.
package analytics

import (
	"fmt"
	"math"
	"time"

	"github.com/irfndi/stockdash/internal/models"
	"github.com/irfndi/stockdash/internal/utils"
	"gonum.org/v1/gonum/stat"
)

// TradingDaysPerYear annualizes daily statistics.
const TradingDaysPerYear = 252

// SimpleReturns returns c[t]/c[t-1] - 1 for consecutive closes.
func SimpleReturns(series *models.PriceSeries) *models.ReturnSeries {
	return returns(series, models.SimpleReturn, func(prev, cur float64) float64 {
		return cur/prev - 1
	})
}

// LogReturns returns ln(c[t]/c[t-1]) for consecutive closes.
func LogReturns(series *models.PriceSeries) *models.ReturnSeries {
	return returns(series, models.LogReturn, func(prev, cur float64) float64 {
		return math.Log(cur / prev)
	})
}

func returns(series *models.PriceSeries, kind models.ReturnKind, fn func(prev, cur float64) float64) *models.ReturnSeries {
	out := &models.ReturnSeries{Kind: kind}
	if series == nil {
		return out
	}
	out.Ticker = series.Ticker
	n := series.Len()
	if n < 2 {
		return out
	}
	out.Timestamps = make([]time.Time, 0, n-1)
	out.Values = make([]float64, 0, n-1)
	for i := 1; i < n; i++ {
		out.Timestamps = append(out.Timestamps, series.Bars[i].Timestamp)
		out.Values = append(out.Values, fn(series.Bars[i-1].Close, series.Bars[i].Close))
	}
	return out
}

// Volatility annualizes the sample standard deviation of daily returns.
// Fewer than two observations give 0.
func Volatility(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	return stat.StdDev(returns, nil) * math.Sqrt(TradingDaysPerYear)
}

// MaxDrawdown returns the most negative close/runningMax - 1 over the closes.
// The result is in [-1, 0]; an empty slice gives 0.
func MaxDrawdown(closes []float64) float64 {
	var peak, worst float64
	for i, c := range closes {
		if i == 0 || c > peak {
			peak = c
		}
		if peak <= 0 {
			continue
		}
		if dd := c/peak - 1; dd < worst {
			worst = dd
		}
	}
	return worst
}

// align returns the values of a and b at the timestamps both series share.
func align(a, b *models.ReturnSeries) ([]float64, []float64) {
	idx := make(map[int64]int, b.Len())
	for i, ts := range b.Timestamps {
		idx[ts.Unix()] = i
	}
	var xs, ys []float64
	for i, ts := range a.Timestamps {
		if j, ok := idx[ts.Unix()]; ok {
			xs = append(xs, a.Values[i])
			ys = append(ys, b.Values[j])
		}
	}
	return xs, ys
}

// Beta is cov(stock, market)/var(market) over the timestamps both return
// series share.
func Beta(stock, market *models.ReturnSeries) (float64, error) {
	if stock == nil || market == nil {
		return 0, fmt.Errorf("beta: missing returns: %w", utils.ErrDataInsufficient)
	}
	xs, ys := align(stock, market)
	if len(xs) < 2 {
		return 0, fmt.Errorf("beta: %d overlapping observations: %w", len(xs), utils.ErrDataInsufficient)
	}
	variance := stat.Variance(ys, nil)
	if variance == 0 || math.IsNaN(variance) {
		return 0, fmt.Errorf("beta: market returns have no variance: %w", utils.ErrDataInsufficient)
	}
	return stat.Covariance(xs, ys, nil) / variance, nil
}

// Alpha is the annualized Jensen's alpha of daily returns given beta and an
// annual risk-free rate expressed as a fraction.
func Alpha(stock, market *models.ReturnSeries, beta, riskFree float64) (float64, error) {
	if stock == nil || market == nil {
		return 0, fmt.Errorf("alpha: missing returns: %w", utils.ErrDataInsufficient)
	}
	xs, ys := align(stock, market)
	if len(xs) == 0 {
		return 0, fmt.Errorf("alpha: no overlapping observations: %w", utils.ErrDataInsufficient)
	}
	rf := riskFree / TradingDaysPerYear
	daily := stat.Mean(xs, nil) - rf - beta*(stat.Mean(ys, nil)-rf)
	return daily * TradingDaysPerYear, nil
}

// Range52Week returns the highest and lowest close within 52 weeks of the
// last bar.
func Range52Week(series *models.PriceSeries) (high, low float64, err error) {
	last, ok := series.Last()
	if !ok {
		return 0, 0, fmt.Errorf("52 week range: empty series: %w", utils.ErrDataInsufficient)
	}
	cutoff := last.Timestamp.AddDate(0, 0, -7*52)
	high, low = math.Inf(-1), math.Inf(1)
	for _, b := range series.Bars {
		if b.Timestamp.Before(cutoff) {
			continue
		}
		high = math.Max(high, b.Close)
		low = math.Min(low, b.Close)
	}
	return high, low, nil
}

// AverageVolume returns the mean traded volume across bars.
func AverageVolume(series *models.PriceSeries) (float64, error) {
	if series.Len() == 0 {
		return 0, fmt.Errorf("average volume: empty series: %w", utils.ErrDataInsufficient)
	}
	volumes := make([]float64, series.Len())
	for i, b := range series.Bars {
		volumes[i] = b.Volume
	}
	return stat.Mean(volumes, nil), nil
}

// CumulativeReturns returns the running compounded return of a simple
// return series, starting from the first return.
func CumulativeReturns(values []float64) []float64 {
	out := make([]float64, len(values))
	acc := 1.0
	for i, r := range values {
		acc *= 1 + r
		out[i] = acc - 1
	}
	return out
}
