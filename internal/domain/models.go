// Package domain provides core domain models shared across modules.
package domain

import "time"

// Category classifies a stock or holding by the role it plays in the
// portfolio. Cash rows never receive technical signals; bonds and cash
// never receive moat evaluation.
type Category string

const (
	CategoryTrendSetter Category = "Trend_Setter"
	CategoryMoat        Category = "Moat"
	CategoryGrowth      Category = "Growth"
	CategoryBond        Category = "Bond"
	CategoryCash        Category = "Cash"
)

// ValidCategories lists the accepted category values in display order.
var ValidCategories = []Category{
	CategoryTrendSetter,
	CategoryMoat,
	CategoryGrowth,
	CategoryBond,
	CategoryCash,
}

// IsValid reports whether c is one of the known categories.
func (c Category) IsValid() bool {
	for _, v := range ValidCategories {
		if c == v {
			return true
		}
	}
	return false
}

// SkipSignals reports whether technical signals are skipped for this category.
func (c Category) SkipSignals() bool { return c == CategoryCash }

// SkipMoat reports whether moat evaluation is skipped for this category.
func (c Category) SkipMoat() bool { return c == CategoryBond || c == CategoryCash }

// ScanSignal is the per-ticker outcome of a scan pass.
type ScanSignal string

const (
	SignalThesisBroken   ScanSignal = "THESIS_BROKEN"
	SignalDeepValue      ScanSignal = "DEEP_VALUE"
	SignalOversold       ScanSignal = "OVERSOLD"
	SignalContrarianBuy  ScanSignal = "CONTRARIAN_BUY"
	SignalApproachingBuy ScanSignal = "APPROACHING_BUY"
	SignalOverheated     ScanSignal = "OVERHEATED"
	SignalCautionHigh    ScanSignal = "CAUTION_HIGH"
	SignalWeakening      ScanSignal = "WEAKENING"
	SignalNormal         ScanSignal = "NORMAL"
)

// MarketStatus is the layer-one market sentiment classification.
type MarketStatus string

const (
	MarketStrongBullish MarketStatus = "STRONG_BULLISH"
	MarketBullish       MarketStatus = "BULLISH"
	MarketNeutral       MarketStatus = "NEUTRAL"
	MarketBearish       MarketStatus = "BEARISH"
	MarketStrongBearish MarketStatus = "STRONG_BEARISH"
	MarketUnknown       MarketStatus = "UNKNOWN"
)

// MoatStatus describes the gross-margin trend of a company.
type MoatStatus string

const (
	MoatDeteriorating MoatStatus = "DETERIORATING"
	MoatStable        MoatStatus = "STABLE"
	MoatNotAvailable  MoatStatus = "NOT_AVAILABLE"
)

// Bar is one daily OHLCV row, date formatted as 2006-01-02.
type Bar struct {
	Date   string  `json:"date"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume int64   `json:"volume"`
}

// Quote is a point-in-time price for a ticker.
type Quote struct {
	Ticker        string  `json:"ticker"`
	Price         float64 `json:"price"`
	PreviousClose float64 `json:"previous_close"`
	Currency      string  `json:"currency"`
	AsOf          string  `json:"as_of"`
}

// TechnicalSignals is the per-ticker technical record produced from daily
// history. All pointer fields may be nil when fewer than 60 sessions of
// history exist. Error is set instead of data when the upstream lookup
// degraded; callers must treat such a record as signal-less.
type TechnicalSignals struct {
	Ticker         string    `json:"ticker"`
	LastClose      *float64  `json:"last_close,omitempty"`
	PreviousClose  *float64  `json:"previous_close,omitempty"`
	ChangePct      *float64  `json:"change_pct,omitempty"`
	RSI14          *float64  `json:"rsi_14,omitempty"`
	MA60           *float64  `json:"ma_60,omitempty"`
	MA200          *float64  `json:"ma_200,omitempty"`
	Bias200        *float64  `json:"bias_200,omitempty"`
	BiasPercentile *float64  `json:"bias_percentile,omitempty"`
	VolumeRatio    *float64  `json:"volume_ratio,omitempty"`
	BiasSample     []float64 `json:"bias_sample,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
	Error          string    `json:"error,omitempty"`
}

// Degraded reports whether the record carries an upstream error instead of data.
func (s *TechnicalSignals) Degraded() bool { return s != nil && s.Error != "" }

// MoatRecord captures the year-over-year margin trend for a ticker.
type MoatRecord struct {
	Ticker         string   `json:"ticker"`
	CurrentMargin  *float64 `json:"current_margin,omitempty"`
	PreviousMargin *float64 `json:"previous_margin,omitempty"`
	Status         MoatStatus `json:"status"`
	Source         string   `json:"source"`
}

// moatDeteriorationPP is the year-over-year margin drop, in percentage
// points, at which a moat is considered deteriorating.
const moatDeteriorationPP = 2.0

// NewMoatRecord derives the moat status from the two margin observations.
// Status is DETERIORATING exactly when both margins are present and the
// current one sits at least 2pp below the previous one.
func NewMoatRecord(ticker string, current, previous *float64, source string) MoatRecord {
	rec := MoatRecord{
		Ticker:         ticker,
		CurrentMargin:  current,
		PreviousMargin: previous,
		Status:         MoatNotAvailable,
		Source:         source,
	}
	if current != nil && previous != nil {
		if *current-*previous <= -moatDeteriorationPP {
			rec.Status = MoatDeteriorating
		} else {
			rec.Status = MoatStable
		}
	}
	return rec
}

// FearGreedLevel buckets the composite fear-and-greed score.
type FearGreedLevel string

const (
	FearGreedExtremeFear  FearGreedLevel = "EXTREME_FEAR"
	FearGreedFear         FearGreedLevel = "FEAR"
	FearGreedNeutral      FearGreedLevel = "NEUTRAL"
	FearGreedGreed        FearGreedLevel = "GREED"
	FearGreedExtremeGreed FearGreedLevel = "EXTREME_GREED"
	FearGreedNA           FearGreedLevel = "N/A"
)

// FearGreed is the composite market-mood record. Score is nil when neither
// input source was available.
type FearGreed struct {
	Score         *float64       `json:"score,omitempty"`
	Level         FearGreedLevel `json:"level"`
	VIX           *float64       `json:"vix,omitempty"`
	VIXComponent  *float64       `json:"vix_component,omitempty"`
	ExternalScore *float64       `json:"external_score,omitempty"`
	AsOf          time.Time      `json:"as_of"`
}

// ETFHolding is one constituent row of an ETF.
type ETFHolding struct {
	Symbol    string  `json:"symbol"`
	Name      string  `json:"name"`
	WeightPct float64 `json:"weight_pct"`
}

// EarningsEvent is the next scheduled earnings date for a ticker.
type EarningsEvent struct {
	Ticker string `json:"ticker"`
	Date   string `json:"date"`
}

// InvestorFiling is one 13F submission of a tracked investor.
type InvestorFiling struct {
	AccessionNo string `json:"accession_no"`
	Form        string `json:"form"`
	ReportDate  string `json:"report_date"`
	FiledAt     string `json:"filed_at"`
}

// FilingPosition is one information-table row of a filing. Value is as
// reported by the filer.
type FilingPosition struct {
	Cusip   string  `json:"cusip"`
	Company string  `json:"company"`
	Value   float64 `json:"value"`
	Shares  float64 `json:"shares"`
}

// FilingAction describes how a filing row changed versus the investor's
// previous filing.
type FilingAction string

const (
	ActionNewPosition FilingAction = "NEW_POSITION"
	ActionSoldOut     FilingAction = "SOLD_OUT"
	ActionIncreased   FilingAction = "INCREASED"
	ActionDecreased   FilingAction = "DECREASED"
	ActionUnchanged   FilingAction = "UNCHANGED"
)
