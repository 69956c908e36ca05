package models

import "time"

// ChartType selects how the price chart is drawn by the browser.
type ChartType string

const (
	ChartLine   ChartType = "line"
	ChartCandle ChartType = "candle"
)

// DashboardRequest carries the form parameters of a dashboard page view.
type DashboardRequest struct {
	Ticker    string    `json:"ticker" form:"ticker"`
	Compare   string    `json:"compare" form:"compare"`
	Period    string    `json:"period" form:"period"`
	Interval  string    `json:"interval" form:"interval"`
	ChartType ChartType `json:"chart_type" form:"chart_type"`
	Horizon   int       `json:"horizon" form:"horizon"`
}

// MetricRow is one labelled, already formatted entry of the metrics table.
type MetricRow struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// ChartData is a chart-ready price series with optional moving average
// overlays. Overlay entries are nil until the window is filled.
type ChartData struct {
	Title string     `json:"title"`
	Type  ChartType  `json:"type"`
	Bars  []PriceBar `json:"bars"`
	SMA20 []*float64 `json:"sma20,omitempty"`
	SMA50 []*float64 `json:"sma50,omitempty"`
}

// ComparisonChart holds cumulative simple returns of two tickers over the
// timestamps they share.
type ComparisonChart struct {
	Ticker     string      `json:"ticker"`
	Compare    string      `json:"compare"`
	Timestamps []time.Time `json:"timestamps"`
	Ticker1    []float64   `json:"ticker_cumulative"`
	Ticker2    []float64   `json:"compare_cumulative"`
}

// Dashboard is the full page model for one ticker.
type Dashboard struct {
	Ticker        string              `json:"ticker"`
	Period        string              `json:"period"`
	Interval      string              `json:"interval"`
	PeriodLabel   string              `json:"period_label"`
	IntervalLabel string              `json:"interval_label"`
	ChartType     ChartType           `json:"chart_type"`
	Chart         *ChartData          `json:"chart,omitempty"`
	Comparison    *ComparisonChart    `json:"comparison,omitempty"`
	Metrics       []MetricRow         `json:"metrics"`
	Consensus     ConsensusLabel      `json:"buyer_consensus"`
	Simulation    *SimulationResponse `json:"simulation,omitempty"`
	Warnings      []string            `json:"warnings,omitempty"`
	GeneratedAt   time.Time           `json:"generated_at"`
}

// MetricsReport is the metrics table and consensus for one ticker and period.
type MetricsReport struct {
	Ticker    string         `json:"ticker"`
	Period    string         `json:"period"`
	Metrics   []MetricRow    `json:"metrics"`
	Consensus ConsensusLabel `json:"buyer_consensus"`
	Warnings  []string       `json:"warnings,omitempty"`
}

// Value returns the formatted value of the row with the given label.
func (r *MetricsReport) Value(label string) (string, bool) {
	for _, row := range r.Metrics {
		if row.Label == label {
			return row.Value, true
		}
	}
	return "", false
}
