package analytics

import (
	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/trend"
)

// SMA returns the simple moving average of closes aligned to the input: entry
// i averages closes[i-period+1..i], and the first period-1 entries are nil.
func SMA(closes []float64, period int) []*float64 {
	out := make([]*float64, len(closes))
	if period <= 0 || len(closes) < period {
		return out
	}

	sma := trend.NewSmaWithPeriod[float64](period)
	values := helper.ChanToSlice(sma.Compute(helper.SliceToChan(closes)))

	offset := len(closes) - len(values)
	for i := range values {
		v := values[i]
		out[offset+i] = &v
	}
	return out
}
