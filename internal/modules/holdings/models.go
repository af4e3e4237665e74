// Package holdings manages portfolio positions and cash rows, and values
// them into a per-category breakdown for snapshots and rebalancing.
package holdings

import (
	"github.com/aristath/folio/internal/domain"
)

// Holding is one position lot. Cash rows carry the amount in Quantity and
// the money's currency; Ticker is the fixed cash marker.
type Holding struct {
	ID        int64           `json:"id"`
	Ticker    string          `json:"ticker"`
	Category  domain.Category `json:"category"`
	Quantity  float64         `json:"quantity"`
	CostBasis *float64        `json:"cost_basis,omitempty"`
	Currency  string          `json:"currency"`
	Broker    *string         `json:"broker,omitempty"`
	IsCash    bool            `json:"is_cash"`
	CreatedAt int64           `json:"created_at"`
	UpdatedAt int64           `json:"updated_at"`
}

// CashTicker marks cash rows.
const CashTicker = "CASH"

// PositionValue is one holding valued in the display currency.
type PositionValue struct {
	ID            int64           `json:"id"`
	Ticker        string          `json:"ticker"`
	Category      domain.Category `json:"category"`
	Quantity      float64         `json:"quantity"`
	Currency      string          `json:"currency"`
	LocalPrice    *float64        `json:"local_price,omitempty"`
	LocalValue    *float64        `json:"local_value,omitempty"`
	DisplayValue  *float64        `json:"display_value,omitempty"`
	WeightPct     *float64        `json:"weight_pct,omitempty"`
	GainPct       *float64        `json:"gain_pct,omitempty"`
	Unpriced      bool            `json:"unpriced,omitempty"`
	UnpricedNote  string          `json:"unpriced_note,omitempty"`
}

// RebalanceResult is the portfolio valued in one display currency.
type RebalanceResult struct {
	DisplayCurrency string             `json:"display_currency"`
	TotalValue      float64            `json:"total_value"`
	CategoryValues  map[string]float64 `json:"category_values"`
	CategoryWeights map[string]float64 `json:"category_weights"`
	Positions       []PositionValue    `json:"positions"`
	UnpricedCount   int                `json:"unpriced_count"`
	AsOf            string             `json:"as_of"`
}

// ExportPayload is the portable holdings format.
type ExportPayload struct {
	Version    int             `json:"version"`
	ExportedAt string          `json:"exported_at"`
	Holdings   []ExportHolding `json:"holdings"`
}

// ExportHolding is one holding row in the export format.
type ExportHolding struct {
	Ticker    string          `json:"ticker"`
	Category  domain.Category `json:"category"`
	Quantity  float64         `json:"quantity"`
	CostBasis *float64        `json:"cost_basis,omitempty"`
	Currency  string          `json:"currency"`
	Broker    *string         `json:"broker,omitempty"`
	IsCash    bool            `json:"is_cash"`
}

// ImportResult summarizes one import pass.
type ImportResult struct {
	Added   int `json:"added"`
	Skipped int `json:"skipped"`
}
