// Package scan runs the three-layer market scan: breadth-based sentiment,
// the cached fear-and-greed composite, and a bounded-parallel per-ticker
// evaluation that ends in one aggregated notification.
package scan

import (
	"github.com/aristath/folio/internal/domain"
)

// MarketDetails is the layer-one and layer-two context attached to every
// log row of a run.
type MarketDetails struct {
	Below60MAPct   float64               `json:"below_60ma_pct"`
	SampleSize     int                   `json:"sample_size"`
	FearGreedScore *float64              `json:"fear_greed_score,omitempty"`
	FearGreedLevel domain.FearGreedLevel `json:"fear_greed_level"`
}

// TickerResult is the outcome of one per-ticker evaluation.
type TickerResult struct {
	Ticker     string            `json:"ticker"`
	Signal     domain.ScanSignal `json:"signal,omitempty"`
	Previous   *string           `json:"previous,omitempty"`
	Changed    bool              `json:"changed"`
	RogueWave  bool              `json:"rogue_wave,omitempty"`
	LastClose  *float64          `json:"last_close,omitempty"`
	ChangePct  *float64          `json:"change_pct,omitempty"`
	Skipped    bool              `json:"skipped,omitempty"`
	SkipReason string            `json:"skip_reason,omitempty"`
}

// AlertFire records a one-shot price alert that tripped during a run.
type AlertFire struct {
	AlertID   int64   `json:"alert_id"`
	Ticker    string  `json:"ticker"`
	Kind      string  `json:"kind"`
	Threshold float64 `json:"threshold"`
	Price     float64 `json:"price"`
}

// Run summarizes one completed scan.
type Run struct {
	RunID            string              `json:"run_id"`
	StartedAt        int64               `json:"started_at"`
	FinishedAt       int64               `json:"finished_at"`
	MarketStatus     domain.MarketStatus `json:"market_status"`
	Details          MarketDetails       `json:"details"`
	Evaluated        int                 `json:"evaluated"`
	Skipped          int                 `json:"skipped"`
	Changes          []TickerResult      `json:"changes"`
	RogueWaves       []TickerResult      `json:"rogue_waves"`
	AlertsFired      []AlertFire         `json:"alerts_fired"`
	Errors           []string            `json:"errors,omitempty"`
	NotificationSent bool                `json:"notification_sent"`
}

// Status is the live view of the scan service.
type Status struct {
	Running   bool   `json:"running"`
	LastRunID string `json:"last_run_id,omitempty"`
	LastRunAt int64  `json:"last_run_at,omitempty"`
}

// LogRow is one persisted per-ticker scan outcome.
type LogRow struct {
	ID                  int64               `json:"id"`
	RunID               string              `json:"run_id"`
	Ticker              string              `json:"ticker"`
	Signal              domain.ScanSignal   `json:"signal"`
	MarketStatus        domain.MarketStatus `json:"market_status"`
	MarketStatusDetails MarketDetails       `json:"market_status_details"`
	ScannedAt           int64               `json:"scanned_at"`
}
