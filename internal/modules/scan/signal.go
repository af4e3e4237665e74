package scan

import (
	"math"

	"github.com/aristath/folio/internal/domain"
)

// Layer-one thresholds: share of the sample trading below its 60-day mean.
const (
	breadthStrongBullish = 0.10
	breadthBullish       = 0.30
	breadthNeutral       = 0.50
	breadthBearish       = 0.70
)

// Rogue wave gates: a single-session move this large on this much relative
// volume flags the ticker regardless of its signal.
const (
	rogueWaveChangePct   = 8.0
	rogueWaveVolumeRatio = 3.0
)

// MarketStatusFor maps market breadth onto the sentiment scale. A zero
// sample reports UNKNOWN rather than pretending the market is calm.
func MarketStatusFor(below60Pct float64, sampleSize int) domain.MarketStatus {
	if sampleSize == 0 {
		return domain.MarketUnknown
	}
	switch {
	case below60Pct <= breadthStrongBullish:
		return domain.MarketStrongBullish
	case below60Pct <= breadthBullish:
		return domain.MarketBullish
	case below60Pct <= breadthNeutral:
		return domain.MarketNeutral
	case below60Pct <= breadthBearish:
		return domain.MarketBearish
	default:
		return domain.MarketStrongBearish
	}
}

// biasGates returns the per-category bias thresholds: the deep-discount
// level, the entry-zone level, and the overheated level. Growth names swing
// wider than the defensive buckets; bonds barely move at all.
func biasGates(category domain.Category) (deep, entry, hot float64) {
	switch category {
	case domain.CategoryGrowth:
		return -20, -10, 20
	case domain.CategoryBond:
		return -8, -4, 8
	default:
		return -15, -8, 15
	}
}

// DetermineScanSignal derives the per-ticker decision signal. Pure and
// deterministic: first matching rule wins, and a nil input never satisfies
// a gate, so missing data degrades toward NORMAL instead of a false extreme.
//
//	 1. moat deteriorating and price deep below trend  THESIS_BROKEN
//	 2. moat deteriorating                             WEAKENING
//	 3. deep discount + washed-out RSI + bias at
//	    historical lows                                DEEP_VALUE
//	 4. washed-out RSI in the entry zone on heavy
//	    volume                                         OVERSOLD
//	 5. bias at historical lows, soft RSI              CONTRARIAN_BUY
//	 6. entry-zone bias, soft RSI                      APPROACHING_BUY
//	 7. hot bias + hot RSI + bias at historical highs  OVERHEATED
//	 8. hot RSI, stretched above trend                 CAUTION_HIGH
//	 9. otherwise                                      NORMAL
func DetermineScanSignal(category domain.Category, moat domain.MoatStatus, bias, rsi, biasPercentile, volumeRatio *float64) domain.ScanSignal {
	deep, entry, hot := biasGates(category)

	switch {
	case moat == domain.MoatDeteriorating && le(bias, deep):
		return domain.SignalThesisBroken
	case moat == domain.MoatDeteriorating:
		return domain.SignalWeakening
	case le(bias, deep) && le(rsi, 30) && le(biasPercentile, 10):
		return domain.SignalDeepValue
	case le(rsi, 30) && le(bias, entry) && ge(volumeRatio, 1.5):
		return domain.SignalOversold
	case le(biasPercentile, 10) && le(rsi, 40):
		return domain.SignalContrarianBuy
	case le(bias, entry) && le(rsi, 40):
		return domain.SignalApproachingBuy
	case ge(bias, hot) && ge(rsi, 70) && ge(biasPercentile, 90):
		return domain.SignalOverheated
	case ge(rsi, 70) && ge(bias, hot/2):
		return domain.SignalCautionHigh
	default:
		return domain.SignalNormal
	}
}

// RogueWave flags an abnormal one-day move confirmed by volume.
func RogueWave(changePct, volumeRatio *float64) bool {
	return changePct != nil && volumeRatio != nil &&
		math.Abs(*changePct) >= rogueWaveChangePct &&
		*volumeRatio >= rogueWaveVolumeRatio
}

func le(v *float64, limit float64) bool { return v != nil && *v <= limit }

func ge(v *float64, limit float64) bool { return v != nil && *v >= limit }
