// Package watchlist manages the tracked-ticker universe: the stocks the
// scans, prewarm and guru resonance operate on, their investment theses,
// and the price alerts attached to them.
package watchlist

import (
	"github.com/aristath/folio/internal/domain"
)

// Stock is one tracked ticker. Deactivated stocks stay on record so a
// removal can be undone without losing the thesis history.
type Stock struct {
	Ticker          string          `json:"ticker"`
	Name            string          `json:"name"`
	Category        domain.Category `json:"category"`
	IsETF           bool            `json:"is_etf"`
	Active          bool            `json:"active"`
	Thesis          *string         `json:"thesis,omitempty"`
	ThesisUpdatedAt *int64          `json:"thesis_updated_at,omitempty"`
	LastScanSignal  *string         `json:"last_scan_signal,omitempty"`
	CreatedAt       int64           `json:"created_at"`
	UpdatedAt       int64           `json:"updated_at"`
}

// AlertKind says which side of the threshold fires a price alert.
type AlertKind string

const (
	AlertAbove AlertKind = "above"
	AlertBelow AlertKind = "below"
)

// IsValid reports whether k is a known alert kind.
func (k AlertKind) IsValid() bool { return k == AlertAbove || k == AlertBelow }

// PriceAlert fires once when the ticker's last close crosses the threshold,
// then deactivates itself.
type PriceAlert struct {
	ID          int64     `json:"id"`
	Ticker      string    `json:"ticker"`
	Kind        AlertKind `json:"kind"`
	Threshold   float64   `json:"threshold"`
	Active      bool      `json:"active"`
	TriggeredAt *int64    `json:"triggered_at,omitempty"`
	CreatedAt   int64     `json:"created_at"`
}

// ExportPayload is the portable watchlist format. Importing it into an
// empty store reproduces the same ticker set.
type ExportPayload struct {
	Version    int           `json:"version"`
	ExportedAt string        `json:"exported_at"`
	Stocks     []ExportStock `json:"stocks"`
}

// ExportStock is one watchlist row in the export format.
type ExportStock struct {
	Ticker   string          `json:"ticker"`
	Name     string          `json:"name"`
	Category domain.Category `json:"category"`
	IsETF    bool            `json:"is_etf"`
	Active   bool            `json:"active"`
	Thesis   *string         `json:"thesis,omitempty"`
}

// ImportResult summarizes one import pass.
type ImportResult struct {
	Added   int      `json:"added"`
	Skipped int      `json:"skipped"`
	Tickers []string `json:"tickers"`
}
