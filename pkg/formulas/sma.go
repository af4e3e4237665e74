package formulas

import (
	"github.com/markcheno/go-talib"
)

// CalculateSMA calculates the simple moving average over the given window.
//
// Args:
//   closes: Array of closing prices
//   window: Number of sessions to average (e.g. 60, 200)
//
// Returns:
//   Current SMA value or nil if insufficient data
func CalculateSMA(closes []float64, window int) *float64 {
	if window <= 0 || len(closes) < window {
		return nil
	}

	sma := talib.Sma(closes, window)
	if len(sma) > 0 && !isNaN(sma[len(sma)-1]) {
		result := sma[len(sma)-1]
		return &result
	}

	return nil
}

// CalculateBias calculates the deviation of price from a moving average as
// a percentage.
//
// Bias Formula:
//   Bias = (Price - MA) / MA × 100
//
// Returns nil when the moving average is zero or missing.
func CalculateBias(price float64, ma *float64) *float64 {
	if ma == nil || *ma == 0 {
		return nil
	}
	bias := (price - *ma) / *ma * 100
	return &bias
}

// BiasSeries computes the bias against an N-session moving average for every
// session where the average exists. The result feeds the percentile ranking
// of the current bias against its own history.
func BiasSeries(closes []float64, window int) []float64 {
	if window <= 0 || len(closes) < window {
		return nil
	}

	sma := talib.Sma(closes, window)
	series := make([]float64, 0, len(closes)-window+1)
	for i := window - 1; i < len(closes); i++ {
		if isNaN(sma[i]) || sma[i] == 0 {
			continue
		}
		series = append(series, (closes[i]-sma[i])/sma[i]*100)
	}
	return series
}
