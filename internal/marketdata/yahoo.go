package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/irfndi/stockdash/internal/config"
	"github.com/irfndi/stockdash/internal/models"
	"github.com/irfndi/stockdash/internal/telemetry"
	"github.com/irfndi/stockdash/internal/utils"
	"github.com/sirupsen/logrus"
)

// YahooClient implements Gateway over the public Yahoo Finance endpoints.
type YahooClient struct {
	HTTPClient *http.Client
	baseURL    string
	userAgent  string
	logger     *logrus.Logger
}

// NewYahooClient creates a new Yahoo Finance client.
func NewYahooClient(cfg *config.MarketDataConfig, logger *logrus.Logger) *YahooClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = "Mozilla/5.0"
	}

	return &YahooClient{
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
		baseURL:   strings.TrimSuffix(cfg.BaseURL, "/"),
		userAgent: userAgent,
		logger:    logger,
	}
}

// BaseURL returns the configured base URL.
func (c *YahooClient) BaseURL() string {
	return c.baseURL
}

type yahooError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol             string  `json:"symbol"`
				Currency           string  `json:"currency"`
				RegularMarketPrice float64 `json:"regularMarketPrice"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *yahooError `json:"error"`
	} `json:"chart"`
}

type rawValue struct {
	Raw *float64 `json:"raw"`
}

type quoteSummaryResponse struct {
	QuoteSummary struct {
		Result []struct {
			Price *struct {
				LongName  string   `json:"longName"`
				ShortName string   `json:"shortName"`
				Currency  string   `json:"currency"`
				MarketCap rawValue `json:"marketCap"`
			} `json:"price"`
			SummaryDetail *struct {
				MarketCap     rawValue `json:"marketCap"`
				Beta          rawValue `json:"beta"`
				DividendYield rawValue `json:"dividendYield"`
			} `json:"summaryDetail"`
			RecommendationTrend *struct {
				Trend []struct {
					Period     string `json:"period"`
					StrongBuy  int    `json:"strongBuy"`
					Buy        int    `json:"buy"`
					Hold       int    `json:"hold"`
					Sell       int    `json:"sell"`
					StrongSell int    `json:"strongSell"`
				} `json:"trend"`
			} `json:"recommendationTrend"`
		} `json:"result"`
		Error *yahooError `json:"error"`
	} `json:"quoteSummary"`
}

// FetchHistory retrieves OHLCV bars for a ticker.
func (c *YahooClient) FetchHistory(ctx context.Context, ticker, period, interval string) (series *models.PriceSeries, err error) {
	ctx, span := telemetry.StartGatewaySpan(ctx, "history", ticker)
	defer func() { telemetry.EndSpan(span, err) }()

	chart, err := c.fetchChart(ctx, ticker, period, interval)
	if err != nil {
		return nil, err
	}
	return chartToSeries(ticker, period, interval, chart)
}

// FetchLastPrice returns the latest traded price reported for the ticker.
func (c *YahooClient) FetchLastPrice(ctx context.Context, ticker string) (price float64, err error) {
	ctx, span := telemetry.StartGatewaySpan(ctx, "last_price", ticker)
	defer func() { telemetry.EndSpan(span, err) }()

	chart, err := c.fetchChart(ctx, ticker, "1d", "1d")
	if err != nil {
		return 0, err
	}
	if len(chart.Chart.Result) == 0 {
		return 0, fmt.Errorf("last price for %s: %w", ticker, utils.ErrInvalidTicker)
	}
	price = chart.Chart.Result[0].Meta.RegularMarketPrice
	if price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return 0, fmt.Errorf("last price for %s not reported: %w", ticker, utils.ErrDataInsufficient)
	}
	return price, nil
}

// FetchProfile retrieves market cap, beta and dividend yield.
func (c *YahooClient) FetchProfile(ctx context.Context, ticker string) (profile *models.Profile, err error) {
	ctx, span := telemetry.StartGatewaySpan(ctx, "profile", ticker)
	defer func() { telemetry.EndSpan(span, err) }()

	summary, err := c.fetchQuoteSummary(ctx, ticker, "price,summaryDetail")
	if err != nil {
		return nil, err
	}

	result := summary.QuoteSummary.Result[0]
	profile = &models.Profile{Ticker: ticker}
	if result.Price != nil {
		profile.Name = result.Price.LongName
		if profile.Name == "" {
			profile.Name = result.Price.ShortName
		}
		profile.Currency = result.Price.Currency
		profile.MarketCap = result.Price.MarketCap.Raw
	}
	if result.SummaryDetail != nil {
		if result.SummaryDetail.MarketCap.Raw != nil {
			profile.MarketCap = result.SummaryDetail.MarketCap.Raw
		}
		profile.Beta = result.SummaryDetail.Beta.Raw
		profile.DividendYield = result.SummaryDetail.DividendYield.Raw
	}
	return profile, nil
}

// FetchRecommendations retrieves analyst recommendation counts, most recent first.
func (c *YahooClient) FetchRecommendations(ctx context.Context, ticker string) (trends []models.RecommendationTrend, err error) {
	ctx, span := telemetry.StartGatewaySpan(ctx, "recommendations", ticker)
	defer func() { telemetry.EndSpan(span, err) }()

	summary, err := c.fetchQuoteSummary(ctx, ticker, "recommendationTrend")
	if err != nil {
		return nil, err
	}

	result := summary.QuoteSummary.Result[0]
	if result.RecommendationTrend == nil {
		return nil, nil
	}
	// Yahoo orders trend periods 0m, -1m, -2m, ... which is already most recent first
	for _, t := range result.RecommendationTrend.Trend {
		trends = append(trends, models.RecommendationTrend{
			Period:     t.Period,
			StrongBuy:  t.StrongBuy,
			Buy:        t.Buy,
			Hold:       t.Hold,
			Sell:       t.Sell,
			StrongSell: t.StrongSell,
		})
	}
	return trends, nil
}

func (c *YahooClient) fetchChart(ctx context.Context, ticker, period, interval string) (*chartResponse, error) {
	params := url.Values{}
	params.Set("range", period)
	params.Set("interval", interval)
	path := fmt.Sprintf("/v8/finance/chart/%s?%s", url.PathEscape(ticker), params.Encode())

	var chart chartResponse
	if err := c.makeRequest(ctx, path, &chart); err != nil {
		return nil, fmt.Errorf("chart %s: %w", ticker, err)
	}
	if chart.Chart.Error != nil {
		return nil, fmt.Errorf("chart %s: %s: %w", ticker, chart.Chart.Error.Description, classifyYahooError(chart.Chart.Error))
	}
	return &chart, nil
}

func (c *YahooClient) fetchQuoteSummary(ctx context.Context, ticker, modules string) (*quoteSummaryResponse, error) {
	path := fmt.Sprintf("/v10/finance/quoteSummary/%s?modules=%s", url.PathEscape(ticker), url.QueryEscape(modules))

	var summary quoteSummaryResponse
	if err := c.makeRequest(ctx, path, &summary); err != nil {
		return nil, fmt.Errorf("quote summary %s: %w", ticker, err)
	}
	if summary.QuoteSummary.Error != nil {
		return nil, fmt.Errorf("quote summary %s: %s: %w", ticker, summary.QuoteSummary.Error.Description,
			classifyYahooError(summary.QuoteSummary.Error))
	}
	if len(summary.QuoteSummary.Result) == 0 {
		return nil, fmt.Errorf("quote summary %s: empty result: %w", ticker, utils.ErrInvalidTicker)
	}
	return &summary, nil
}

// makeRequest performs a GET and decodes the JSON body into result. Provider
// error bodies are decoded too so callers can classify them.
func (c *YahooClient) makeRequest(ctx context.Context, path string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("request failed: %v: %w", err, utils.ErrUnavailable)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %v: %w", err, utils.ErrUnavailable)
	}

	if c.logger != nil {
		c.logger.WithFields(logrus.Fields{
			"path":        path,
			"status":      resp.StatusCode,
			"duration_ms": time.Since(start).Milliseconds(),
		}).Debug("Yahoo request completed")
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("status %d: %w", resp.StatusCode, utils.ErrInvalidTicker)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("status %d: %w", resp.StatusCode, utils.ErrUnavailable)
	case resp.StatusCode >= 400:
		return fmt.Errorf("status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func classifyYahooError(e *yahooError) error {
	if e == nil {
		return nil
	}
	if strings.EqualFold(e.Code, "Not Found") || strings.Contains(strings.ToLower(e.Description), "no data found") {
		return utils.ErrInvalidTicker
	}
	if strings.EqualFold(e.Code, "Bad Request") {
		return utils.ErrInvalidArgument
	}
	return utils.ErrUnavailable
}

// chartToSeries converts the chart payload to an ascending, de-duplicated
// series. Bars with a missing close are skipped.
func chartToSeries(ticker, period, interval string, chart *chartResponse) (*models.PriceSeries, error) {
	if len(chart.Chart.Result) == 0 {
		return nil, fmt.Errorf("chart %s: no result: %w", ticker, utils.ErrInvalidTicker)
	}
	result := chart.Chart.Result[0]
	if len(result.Indicators.Quote) == 0 {
		return nil, fmt.Errorf("chart %s: no quotes: %w", ticker, utils.ErrDataInsufficient)
	}
	quote := result.Indicators.Quote[0]

	at := func(values []*float64, i int) float64 {
		if i < len(values) && values[i] != nil {
			return *values[i]
		}
		return math.NaN()
	}

	bars := make([]models.PriceBar, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		closePrice := at(quote.Close, i)
		if math.IsNaN(closePrice) {
			continue
		}
		bar := models.PriceBar{
			Timestamp: time.Unix(ts, 0).UTC(),
			Open:      at(quote.Open, i),
			High:      at(quote.High, i),
			Low:       at(quote.Low, i),
			Close:     closePrice,
			Volume:    at(quote.Volume, i),
		}
		if math.IsNaN(bar.Open) {
			bar.Open = closePrice
		}
		if math.IsNaN(bar.High) {
			bar.High = math.Max(bar.Open, closePrice)
		}
		if math.IsNaN(bar.Low) {
			bar.Low = math.Min(bar.Open, closePrice)
		}
		if math.IsNaN(bar.Volume) {
			bar.Volume = 0
		}
		bars = append(bars, bar)
	}

	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Timestamp.Before(bars[j].Timestamp) })

	// Keep the last bar for any repeated timestamp; Yahoo repeats the live bar.
	deduped := bars[:0]
	for _, b := range bars {
		if n := len(deduped); n > 0 && deduped[n-1].Timestamp.Equal(b.Timestamp) {
			deduped[n-1] = b
			continue
		}
		deduped = append(deduped, b)
	}

	return &models.PriceSeries{
		Ticker:   ticker,
		Period:   period,
		Interval: interval,
		Bars:     deduped,
	}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

var _ Gateway = (*YahooClient)(nil)

