package marketdata

import (
	"time"

	"github.com/aristath/folio/internal/domain"
	"github.com/aristath/folio/pkg/formulas"
)

// VIX anchor points: 10 or calmer reads as full greed, 40 or higher as full
// fear; between them the component falls linearly.
const (
	vixGreedAnchor = 10.0
	vixFearAnchor  = 40.0
)

// VIXComponent maps a VIX level onto the 0..100 sentiment scale.
func VIXComponent(vix float64) float64 {
	score := (vixFearAnchor - vix) / (vixFearAnchor - vixGreedAnchor) * 100
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// LevelForScore buckets a composite score.
func LevelForScore(score float64) domain.FearGreedLevel {
	switch {
	case score < 25:
		return domain.FearGreedExtremeFear
	case score < 45:
		return domain.FearGreedFear
	case score <= 55:
		return domain.FearGreedNeutral
	case score <= 75:
		return domain.FearGreedGreed
	default:
		return domain.FearGreedExtremeGreed
	}
}

// ComposeFearGreed builds the composite record from whichever inputs are
// available: the mean of both components, a single component alone, or an
// N/A record when neither source produced a value.
func ComposeFearGreed(vix, external *float64, asOf time.Time) domain.FearGreed {
	fg := domain.FearGreed{
		VIX:           vix,
		ExternalScore: external,
		Level:         domain.FearGreedNA,
		AsOf:          asOf,
	}

	var components []float64
	if vix != nil {
		comp := VIXComponent(*vix)
		fg.VIXComponent = &comp
		components = append(components, comp)
	}
	if external != nil {
		components = append(components, *external)
	}
	if len(components) == 0 {
		return fg
	}

	score := formulas.Mean(components)
	fg.Score = &score
	fg.Level = LevelForScore(score)
	return fg
}
