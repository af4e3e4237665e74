// Package gurus tracks institutional investors, their quarterly filings,
// and the overlap between their portfolios and the user's watchlist.
package gurus

import (
	"github.com/aristath/folio/internal/domain"
)

// Guru is one tracked institutional investor, identified by its
// fixed-width 10-digit CIK.
type Guru struct {
	CIK       string `json:"cik"`
	Name      string `json:"name"`
	Active    bool   `json:"active"`
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
}

// Filing is one stored 13F submission. Exactly one filing per guru carries
// IsCurrent.
type Filing struct {
	ID          int64   `json:"id"`
	GuruCIK     string  `json:"guru_cik"`
	AccessionNo string  `json:"accession_no"`
	ReportDate  string  `json:"report_date"`
	FiledAt     string  `json:"filed_at"`
	TotalValue  float64 `json:"total_value"`
	IsCurrent   bool    `json:"is_current"`
	CreatedAt   int64   `json:"created_at"`
}

// Holding is one position row of a filing. Action compares it to the
// guru's previous filing; SOLD_OUT rows are synthesized with zero value
// and shares. Ticker is filled when the CUSIP could be mapped.
type Holding struct {
	ID        int64               `json:"id"`
	FilingID  int64               `json:"filing_id"`
	Cusip     string              `json:"cusip"`
	Ticker    *string             `json:"ticker,omitempty"`
	Company   string              `json:"company"`
	Value     float64             `json:"value"`
	Shares    float64             `json:"shares"`
	Action    domain.FilingAction `json:"action"`
	ChangePct *float64            `json:"change_pct,omitempty"`
	WeightPct float64             `json:"weight_pct"`
}

// SyncResult reports one guru's sync pass.
type SyncResult struct {
	CIK            string `json:"cik"`
	Name           string `json:"name"`
	FilingsFetched int    `json:"filings_fetched"`
	FilingsAdded   int    `json:"filings_added"`
	HoldingsAdded  int    `json:"holdings_added"`
	TickersMapped  int    `json:"tickers_mapped"`
	Error          string `json:"error,omitempty"`
}

// QoQReport is the quarter-over-quarter view of one guru: the current
// filing's rows grouped by action.
type QoQReport struct {
	Guru         Guru      `json:"guru"`
	Filing       Filing    `json:"filing"`
	Previous     *Filing   `json:"previous,omitempty"`
	NewPositions []Holding `json:"new_positions"`
	Increased    []Holding `json:"increased"`
	Decreased    []Holding `json:"decreased"`
	SoldOut      []Holding `json:"sold_out"`
	Unchanged    int       `json:"unchanged"`
}

// GrandPosition is one aggregated row of the combined current portfolios.
type GrandPosition struct {
	Cusip      string   `json:"cusip"`
	Ticker     *string  `json:"ticker,omitempty"`
	Company    string   `json:"company"`
	TotalValue float64  `json:"total_value"`
	Holders    int      `json:"holders"`
	Gurus      []string `json:"gurus"`
	WeightPct  float64  `json:"weight_pct"`
}

// ResonanceHolder is one guru's stake in a resonating ticker.
type ResonanceHolder struct {
	CIK       string              `json:"cik"`
	Guru      string              `json:"guru"`
	Action    domain.FilingAction `json:"action"`
	Value     float64             `json:"value"`
	WeightPct float64             `json:"weight_pct"`
}

// ResonanceRow marks one watchlist ticker held by at least one guru.
type ResonanceRow struct {
	Ticker  string            `json:"ticker"`
	Holders []ResonanceHolder `json:"holders"`
}

// Highlight is one standout move for the season summary.
type Highlight struct {
	Guru      string  `json:"guru"`
	Company   string  `json:"company"`
	Ticker    *string `json:"ticker,omitempty"`
	Value     float64 `json:"value"`
	WeightPct float64 `json:"weight_pct"`
}

// SeasonHighlights aggregates notable moves across the current filings.
// Gurus with a single stored filing are excluded: with no baseline their
// whole portfolio would register as new positions.
type SeasonHighlights struct {
	NewPositions []Highlight `json:"new_positions"`
	SoldOut      []Highlight `json:"sold_out"`
}
