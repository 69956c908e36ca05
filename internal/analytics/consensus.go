package analytics

import "github.com/irfndi/stockdash/internal/models"

// BuyerConsensus labels the most recent recommendation record. Buy and sell
// shares are tested strongest first so the stronger label wins whenever both
// thresholds hold.
func BuyerConsensus(trends []models.RecommendationTrend) models.ConsensusLabel {
	if len(trends) == 0 {
		return models.ConsensusNone
	}

	latest := trends[0]
	total := latest.Total()
	if total <= 0 {
		return models.ConsensusNone
	}

	buys := float64(latest.StrongBuy+latest.Buy) / float64(total)
	sells := float64(latest.Sell+latest.StrongSell) / float64(total)

	switch {
	case buys > 0.70:
		return models.ConsensusStrongBuy
	case buys > 0.55:
		return models.ConsensusBuy
	case sells > 0.65:
		return models.ConsensusStrongSell
	case sells > 0.45:
		return models.ConsensusSell
	default:
		return models.ConsensusHold
	}
}
