package domain

import "strings"

// Market identifies the exchange region a ticker trades in.
type Market string

const (
	MarketUS Market = "US"
	MarketJP Market = "JP"
	MarketTW Market = "TW"
	MarketHK Market = "HK"
)

// InferMarket maps a ticker suffix to its market. Tokyo listings carry .T,
// Taiwan listings .TW or .TWO, Hong Kong listings .HK; everything else is
// treated as US.
func InferMarket(ticker string) Market {
	t := strings.ToUpper(strings.TrimSpace(ticker))
	switch {
	case strings.HasSuffix(t, ".T"):
		return MarketJP
	case strings.HasSuffix(t, ".TW"), strings.HasSuffix(t, ".TWO"):
		return MarketTW
	case strings.HasSuffix(t, ".HK"):
		return MarketHK
	default:
		return MarketUS
	}
}

// LocalCurrency returns the trading currency for the market.
func (m Market) LocalCurrency() string {
	switch m {
	case MarketJP:
		return "JPY"
	case MarketTW:
		return "TWD"
	case MarketHK:
		return "HKD"
	default:
		return "USD"
	}
}
