package marketdata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/folio/internal/domain"
)

func TestVIXComponent(t *testing.T) {
	tests := []struct {
		vix  float64
		want float64
	}{
		{10, 100},
		{40, 0},
		{25, 50},
		{20, 200.0 / 3},
		{5, 100},  // calmer than the greed anchor clamps high
		{60, 0},   // panic clamps low
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, VIXComponent(tt.vix), 1e-9, "vix %.1f", tt.vix)
	}
}

func TestLevelForScore(t *testing.T) {
	tests := []struct {
		score float64
		want  domain.FearGreedLevel
	}{
		{0, domain.FearGreedExtremeFear},
		{24.9, domain.FearGreedExtremeFear},
		{25, domain.FearGreedFear},
		{44.9, domain.FearGreedFear},
		{45, domain.FearGreedNeutral},
		{55, domain.FearGreedNeutral},
		{55.1, domain.FearGreedGreed},
		{75, domain.FearGreedGreed},
		{75.1, domain.FearGreedExtremeGreed},
		{100, domain.FearGreedExtremeGreed},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LevelForScore(tt.score), "score %.1f", tt.score)
	}
}

func TestComposeFearGreedBothSources(t *testing.T) {
	vix, external := 25.0, 80.0

	fg := ComposeFearGreed(&vix, &external, asOf)

	require.NotNil(t, fg.Score)
	assert.InDelta(t, 65.0, *fg.Score, 1e-9)
	assert.Equal(t, domain.FearGreedGreed, fg.Level)
	require.NotNil(t, fg.VIXComponent)
	assert.InDelta(t, 50.0, *fg.VIXComponent, 1e-9)
	assert.Equal(t, asOf, fg.AsOf)
}

func TestComposeFearGreedExternalOnly(t *testing.T) {
	external := 12.0

	fg := ComposeFearGreed(nil, &external, asOf)

	require.NotNil(t, fg.Score)
	assert.InDelta(t, 12.0, *fg.Score, 1e-9)
	assert.Equal(t, domain.FearGreedExtremeFear, fg.Level)
	assert.Nil(t, fg.VIX)
	assert.Nil(t, fg.VIXComponent)
}

func TestComposeFearGreedVIXOnly(t *testing.T) {
	vix := 32.0 // component (40-32)/30*100

	fg := ComposeFearGreed(&vix, nil, asOf)

	require.NotNil(t, fg.Score)
	assert.InDelta(t, 800.0/30, *fg.Score, 1e-9)
	assert.Equal(t, domain.FearGreedFear, fg.Level)
}

func TestComposeFearGreedNoSources(t *testing.T) {
	fg := ComposeFearGreed(nil, nil, asOf)

	assert.Nil(t, fg.Score)
	assert.Equal(t, domain.FearGreedNA, fg.Level)
	assert.Equal(t, asOf, fg.AsOf)
}
