package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInferMarket(t *testing.T) {
	tests := []struct {
		ticker string
		want   Market
	}{
		{"AAPL", MarketUS},
		{"7203.T", MarketJP},
		{"9984.t", MarketJP},
		{"2330.TW", MarketTW},
		{"6488.TWO", MarketTW},
		{"0700.HK", MarketHK},
		{"  SPY ", MarketUS},
		{"BRK.B", MarketUS},
	}

	for _, tt := range tests {
		t.Run(tt.ticker, func(t *testing.T) {
			assert.Equal(t, tt.want, InferMarket(tt.ticker))
		})
	}
}

func TestMarketLocalCurrency(t *testing.T) {
	assert.Equal(t, "JPY", MarketJP.LocalCurrency())
	assert.Equal(t, "TWD", MarketTW.LocalCurrency())
	assert.Equal(t, "HKD", MarketHK.LocalCurrency())
	assert.Equal(t, "USD", MarketUS.LocalCurrency())
}

func TestNewMoatRecord(t *testing.T) {
	f := func(v float64) *float64 { return &v }

	tests := []struct {
		name     string
		current  *float64
		previous *float64
		want     MoatStatus
	}{
		{"deteriorating at threshold", f(38.0), f(40.0), MoatDeteriorating},
		{"deteriorating beyond threshold", f(30.0), f(40.0), MoatDeteriorating},
		{"stable small drop", f(39.5), f(40.0), MoatStable},
		{"stable improving", f(42.0), f(40.0), MoatStable},
		{"missing current", nil, f(40.0), MoatNotAvailable},
		{"missing previous", f(40.0), nil, MoatNotAvailable},
		{"missing both", nil, nil, MoatNotAvailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := NewMoatRecord("NVDA", tt.current, tt.previous, "primary")
			assert.Equal(t, tt.want, rec.Status)
			assert.Equal(t, "NVDA", rec.Ticker)
			assert.Equal(t, "primary", rec.Source)
		})
	}
}

func TestCategoryRules(t *testing.T) {
	assert.True(t, CategoryCash.SkipSignals())
	assert.False(t, CategoryGrowth.SkipSignals())

	assert.True(t, CategoryBond.SkipMoat())
	assert.True(t, CategoryCash.SkipMoat())
	assert.False(t, CategoryMoat.SkipMoat())

	assert.True(t, CategoryTrendSetter.IsValid())
	assert.False(t, Category("Crypto").IsValid())
}

func TestErrorKinds(t *testing.T) {
	err := NotFoundf("stock %s not on the watchlist", "AAPL")
	assert.Equal(t, KindNotFound, KindOf(err))
	assert.Equal(t, "stock AAPL not on the watchlist", DetailOf(err))

	assert.Equal(t, KindConflict, KindOf(Conflictf("scan already running")))
	assert.Equal(t, KindValidationFailed, KindOf(Validationf("quantity must be positive")))

	plain := assert.AnError
	assert.Equal(t, KindInternal, KindOf(plain))
	assert.Equal(t, "internal error", DetailOf(plain))
}

func TestTechnicalSignalsDegraded(t *testing.T) {
	ok := &TechnicalSignals{Ticker: "AAPL"}
	assert.False(t, ok.Degraded())

	bad := &TechnicalSignals{Ticker: "AAPL", Error: "provider unavailable"}
	assert.True(t, bad.Degraded())

	var none *TechnicalSignals
	assert.False(t, none.Degraded())
}
