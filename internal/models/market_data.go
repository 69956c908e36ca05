package models

import (
	"time"
)

// PriceBar is one OHLCV record from the market data provider.
type PriceBar struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// PriceSeries holds the bars of one ticker in ascending timestamp order with
// no duplicate timestamps. It is treated as immutable once fetched.
type PriceSeries struct {
	Ticker   string     `json:"ticker"`
	Period   string     `json:"period"`
	Interval string     `json:"interval"`
	Bars     []PriceBar `json:"bars"`
}

// Len returns the number of bars.
func (s *PriceSeries) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Bars)
}

// Closes returns the close prices in order.
func (s *PriceSeries) Closes() []float64 {
	if s == nil {
		return nil
	}
	closes := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		closes[i] = b.Close
	}
	return closes
}

// Timestamps returns the bar timestamps in order.
func (s *PriceSeries) Timestamps() []time.Time {
	if s == nil {
		return nil
	}
	ts := make([]time.Time, len(s.Bars))
	for i, b := range s.Bars {
		ts[i] = b.Timestamp
	}
	return ts
}

// Last returns the most recent bar.
func (s *PriceSeries) Last() (PriceBar, bool) {
	if s.Len() == 0 {
		return PriceBar{}, false
	}
	return s.Bars[len(s.Bars)-1], true
}

// ReturnKind distinguishes simple from log returns.
type ReturnKind string

const (
	SimpleReturn ReturnKind = "simple"
	LogReturn    ReturnKind = "log"
)

// ReturnSeries holds returns between consecutive closes. Timestamps[i] is the
// timestamp of the later close of pair i, so len(Values) == len(series)-1.
type ReturnSeries struct {
	Ticker     string      `json:"ticker"`
	Kind       ReturnKind  `json:"kind"`
	Timestamps []time.Time `json:"timestamps"`
	Values     []float64   `json:"values"`
}

// Len returns the number of returns.
func (r *ReturnSeries) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Values)
}

// Profile carries the ticker metadata the dashboard shows. Nil pointer fields
// mean the provider did not report the value.
type Profile struct {
	Ticker        string   `json:"ticker"`
	Name          string   `json:"name,omitempty"`
	Currency      string   `json:"currency,omitempty"`
	MarketCap     *float64 `json:"market_cap,omitempty"`
	Beta          *float64 `json:"beta,omitempty"`
	DividendYield *float64 `json:"dividend_yield,omitempty"`
}

// RecommendationTrend is one period of analyst recommendation counts.
type RecommendationTrend struct {
	Period     string `json:"period"`
	StrongBuy  int    `json:"strong_buy"`
	Buy        int    `json:"buy"`
	Hold       int    `json:"hold"`
	Sell       int    `json:"sell"`
	StrongSell int    `json:"strong_sell"`
}

// Total returns the number of recommendations in the record.
func (r RecommendationTrend) Total() int {
	return r.StrongBuy + r.Buy + r.Hold + r.Sell + r.StrongSell
}

// ConsensusLabel summarises analyst recommendations.
type ConsensusLabel string

const (
	ConsensusStrongBuy  ConsensusLabel = "Strong Buy"
	ConsensusBuy        ConsensusLabel = "Buy"
	ConsensusHold       ConsensusLabel = "Hold"
	ConsensusSell       ConsensusLabel = "Sell"
	ConsensusStrongSell ConsensusLabel = "Strong Sell"
	ConsensusNone       ConsensusLabel = "No consensus"
)
