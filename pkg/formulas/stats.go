package formulas

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Mean calculates the arithmetic mean of a slice of float64 values
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.Mean(data, nil)
}

// StdDev calculates the standard deviation of a slice of float64 values
func StdDev(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.StdDev(data, nil)
}

// AnnualizedVolatility calculates annualized volatility from daily returns
// Formula: Std Dev of Daily Returns × sqrt(252 trading days)
func AnnualizedVolatility(dailyReturns []float64) float64 {
	if len(dailyReturns) == 0 {
		return 0
	}

	stdDev := StdDev(dailyReturns)
	return stdDev * math.Sqrt(252) // 252 trading days per year
}

// CalculateReturns converts prices to percentage returns
// Returns[i] = (Price[i] - Price[i-1]) / Price[i-1]
func CalculateReturns(prices []float64) []float64 {
	if len(prices) < 2 {
		return []float64{}
	}

	returns := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] != 0 {
			returns[i-1] = (prices[i] - prices[i-1]) / prices[i-1]
		}
	}

	return returns
}

// PercentileOfScore ranks value within sample using the empirical CDF.
//
// Returns:
//   Percentile in [0,100] or nil when the sample is empty
func PercentileOfScore(sample []float64, value float64) *float64 {
	if len(sample) == 0 {
		return nil
	}

	sorted := make([]float64, len(sample))
	copy(sorted, sample)
	sort.Float64s(sorted)

	pct := stat.CDF(value, stat.Empirical, sorted, nil) * 100
	return &pct
}

// VolumeRatio compares the most recent volume to the mean of the trailing
// window immediately before it.
//
// Args:
//   volumes: Daily volumes, oldest first
//   window:  Trailing window size (typically 20 sessions)
//
// Returns:
//   lastVolume / mean(trailing window) or nil when history or volume is missing
func VolumeRatio(volumes []float64, window int) *float64 {
	if window <= 0 || len(volumes) < window+1 {
		return nil
	}

	last := volumes[len(volumes)-1]
	trailing := volumes[len(volumes)-1-window : len(volumes)-1]
	avg := Mean(trailing)
	if avg == 0 {
		return nil
	}

	ratio := last / avg
	return &ratio
}
