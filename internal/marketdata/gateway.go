// Package marketdata defines the market data gateway and its Yahoo Finance
// implementation.
package marketdata

import (
	"context"
	"regexp"
	"strings"

	"github.com/irfndi/stockdash/internal/models"
	"github.com/irfndi/stockdash/internal/utils"
)

// Gateway is the market data provider consumed by the metrics calculator and
// the simulator. Implementations return errors wrapping utils.ErrInvalidTicker
// for unknown symbols and utils.ErrUnavailable for transient failures.
type Gateway interface {
	FetchHistory(ctx context.Context, ticker, period, interval string) (*models.PriceSeries, error)
	FetchLastPrice(ctx context.Context, ticker string) (float64, error)
	FetchProfile(ctx context.Context, ticker string) (*models.Profile, error)
	// FetchRecommendations returns recommendation records, most recent first.
	FetchRecommendations(ctx context.Context, ticker string) ([]models.RecommendationTrend, error)
}

// PeriodMap translates dashboard period codes to provider ranges.
var PeriodMap = map[string]string{
	"1D":  "1d",
	"1W":  "5d",
	"1M":  "1mo",
	"1Y":  "1y",
	"5Y":  "5y",
	"MAX": "max",
	"YTD": "ytd",
}

// IntervalMap translates dashboard bar interval codes to provider intervals.
var IntervalMap = map[string]string{
	"1D": "1d",
	"1W": "1wk",
	"1M": "1mo",
}

// LabelDesc holds the human readable text of period and interval codes.
var LabelDesc = map[string]string{
	"1D":  "1 Day",
	"1W":  "1 Week",
	"1M":  "1 Month",
	"1Y":  "1 Year",
	"5Y":  "5 Years",
	"MAX": "Max",
	"YTD": "Year to Date",
}

var tickerPattern = regexp.MustCompile(`^[A-Z0-9^.=\-]{1,15}$`)

// NormalizeTicker upper-cases and validates a ticker symbol.
func NormalizeTicker(ticker string) (string, error) {
	t := strings.ToUpper(strings.TrimSpace(ticker))
	if t == "" {
		return "", utils.NewValidationError("ticker is required")
	}
	if !tickerPattern.MatchString(t) {
		return "", utils.NewValidationErrorf("ticker %q contains unsupported characters", ticker)
	}
	return t, nil
}

// ResolvePeriod maps a dashboard period code to the provider range.
func ResolvePeriod(code string) (string, error) {
	if p, ok := PeriodMap[strings.ToUpper(code)]; ok {
		return p, nil
	}
	return "", utils.NewValidationErrorf("unsupported period %q", code)
}

// ResolveInterval maps a dashboard interval code to the provider interval.
func ResolveInterval(code string) (string, error) {
	if i, ok := IntervalMap[strings.ToUpper(code)]; ok {
		return i, nil
	}
	return "", utils.NewValidationErrorf("unsupported interval %q", code)
}
