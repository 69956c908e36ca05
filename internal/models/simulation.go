package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SimulationResult is a horizon × paths matrix of simulated prices. Row 0 is
// the anchor price replicated across every path.
type SimulationResult struct {
	ID          uuid.UUID   `json:"id"`
	Ticker      string      `json:"ticker"`
	Horizon     int         `json:"horizon"`
	Paths       int         `json:"paths"`
	AnchorPrice float64     `json:"anchor_price"`
	Mu          float64     `json:"mu"`
	Sigma       float64     `json:"sigma"`
	CreatedAt   time.Time   `json:"created_at"`
	Prices      [][]float64 `json:"-"`
}

// FinalRow returns the simulated prices on the last day of the horizon.
func (r *SimulationResult) FinalRow() []float64 {
	if r == nil || len(r.Prices) == 0 {
		return nil
	}
	return r.Prices[len(r.Prices)-1]
}

// Path returns the price trajectory of a single path.
func (r *SimulationResult) Path(i int) []float64 {
	if r == nil || len(r.Prices) == 0 || i < 0 || i >= len(r.Prices[0]) {
		return nil
	}
	path := make([]float64, len(r.Prices))
	for t, row := range r.Prices {
		path[t] = row[i]
	}
	return path
}

// SimulationSummary holds point estimates over the terminal prices.
// Probabilities are percentages in [0,100].
type SimulationSummary struct {
	Expected float64 `json:"expected"`
	P5       float64 `json:"p5"`
	P95      float64 `json:"p95"`
	ProbUp   float64 `json:"prob_up"`
	ProbUp5  float64 `json:"prob_up5"`
}

// SimulationResponse is the API view of a cached simulation.
type SimulationResponse struct {
	ID          string            `json:"id"`
	Ticker      string            `json:"ticker"`
	Horizon     int               `json:"horizon"`
	Paths       int               `json:"paths"`
	AnchorPrice decimal.Decimal   `json:"anchor_price"`
	Summary     SimulationSummary `json:"summary"`
	SamplePaths [][]float64       `json:"sample_paths,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}
