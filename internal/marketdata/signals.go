package marketdata

import (
	"time"

	"github.com/aristath/folio/internal/domain"
	"github.com/aristath/folio/pkg/formulas"
)

const (
	// minSignalSessions is the floor below which no indicator is derived.
	minSignalSessions = 60

	longBiasWindow  = 200
	shortBiasWindow = 60
	volumeWindow    = 20

	// minBiasSample is the smallest bias history worth ranking against.
	minBiasSample = 20
)

// BuildSignals derives the per-ticker technical record from daily bars.
// Records built from fewer than 60 sessions carry an error instead of data.
// Bias is measured against the 200-session MA, falling back to the
// 60-session MA for shorter series; its percentile ranks the current bias
// within the series' own bias history.
func BuildSignals(ticker string, bars []domain.Bar, asOf time.Time) *domain.TechnicalSignals {
	sig := &domain.TechnicalSignals{Ticker: ticker, Timestamp: asOf}
	if len(bars) < minSignalSessions {
		sig.Error = "insufficient history"
		return sig
	}

	closes := make([]float64, len(bars))
	volumes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
		volumes[i] = float64(b.Volume)
	}

	last := closes[len(closes)-1]
	prev := closes[len(closes)-2]
	sig.LastClose = &last
	sig.PreviousClose = &prev
	if prev != 0 {
		chg := (last - prev) / prev * 100
		sig.ChangePct = &chg
	}

	sig.RSI14 = formulas.CalculateRSI(closes, 14)
	sig.MA60 = formulas.CalculateSMA(closes, shortBiasWindow)
	sig.MA200 = formulas.CalculateSMA(closes, longBiasWindow)

	biasWindow := longBiasWindow
	ma := sig.MA200
	if ma == nil {
		biasWindow = shortBiasWindow
		ma = sig.MA60
	}
	sig.Bias200 = formulas.CalculateBias(last, ma)
	if sig.Bias200 != nil {
		sample := formulas.BiasSeries(closes, biasWindow)
		if len(sample) >= minBiasSample {
			sig.BiasSample = sample
			sig.BiasPercentile = formulas.PercentileOfScore(sample, *sig.Bias200)
		}
	}

	sig.VolumeRatio = formulas.VolumeRatio(volumes, volumeWindow)
	return sig
}
