package simulation

import (
	"fmt"
	"math"
	"sort"

	"github.com/irfndi/stockdash/internal/models"
	"github.com/irfndi/stockdash/internal/utils"
	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"
)

// Summarize reduces the terminal row of a simulation to point estimates.
// Probabilities are percentages of paths ending above the anchor and above
// 105% of the anchor.
func Summarize(result *models.SimulationResult) (models.SimulationSummary, error) {
	final := result.FinalRow()
	if len(final) == 0 || len(result.Prices[0]) == 0 {
		return models.SimulationSummary{}, fmt.Errorf("summarize: empty simulation: %w", utils.ErrDataInsufficient)
	}
	anchor := result.Prices[0][0]

	sorted := append([]float64(nil), final...)
	sort.Float64s(sorted)

	var up, up5 int
	for _, p := range final {
		if p > anchor {
			up++
		}
		if p > anchor*1.05 {
			up5++
		}
	}
	n := float64(len(final))

	return models.SimulationSummary{
		Expected: stat.Mean(final, nil),
		P5:       percentile(sorted, 5),
		P95:      percentile(sorted, 95),
		ProbUp:   float64(up) / n * 100,
		ProbUp5:  float64(up5) / n * 100,
	}, nil
}

// percentile interpolates linearly between the closest ranks of sorted,
// rank = p/100*(n-1).
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

// SamplePaths returns up to n evenly spaced paths of the result.
func SamplePaths(result *models.SimulationResult, n int) [][]float64 {
	if n <= 0 || result == nil || len(result.Prices) == 0 {
		return nil
	}
	total := len(result.Prices[0])
	if n > total {
		n = total
	}
	step := total / n
	out := make([][]float64, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, result.Path(i*step))
	}
	return out
}

// NewResponse builds the API view of a simulation and its summary.
func NewResponse(result *models.SimulationResult, summary models.SimulationSummary, samples int) *models.SimulationResponse {
	return &models.SimulationResponse{
		ID:          result.ID.String(),
		Ticker:      result.Ticker,
		Horizon:     result.Horizon,
		Paths:       result.Paths,
		AnchorPrice: decimal.NewFromFloat(result.AnchorPrice).Round(4),
		Summary:     summary,
		SamplePaths: SamplePaths(result, samples),
		CreatedAt:   result.CreatedAt,
	}
}
