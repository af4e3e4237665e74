package scan

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/folio/internal/domain"
	"github.com/aristath/folio/internal/modules/gurus"
	"github.com/aristath/folio/internal/modules/holdings"
	"github.com/aristath/folio/internal/modules/snapshots"
	"github.com/aristath/folio/internal/notify"
)

const (
	digestTimeout    = 5 * time.Minute
	digestChartDays  = 30
	digestHighlights = 3
)

// Valuer prices the portfolio. Implemented by the holdings service.
type Valuer interface {
	Rebalance(ctx context.Context, displayCurrency string) (*holdings.RebalanceResult, error)
}

// SnapshotSource supplies the daily value series for the digest chart.
type SnapshotSource interface {
	List(days int, start, end string) ([]snapshots.Snapshot, error)
}

// GuruSource supplies the 13F season summary.
type GuruSource interface {
	SeasonHighlights(limit int) (*gurus.SeasonHighlights, error)
}

// DigestRun summarizes one digest delivery.
type DigestRun struct {
	RunID      string   `json:"run_id"`
	StartedAt  int64    `json:"started_at"`
	FinishedAt int64    `json:"finished_at"`
	WithChart  bool     `json:"with_chart"`
	Sent       bool     `json:"sent"`
	Errors     []string `json:"errors,omitempty"`
}

// Digest assembles and sends the weekly summary: portfolio valuation,
// signal distribution, market mood, 13F season highlights, and a 30-day
// value chart when enough snapshots exist. Serialized by its own mutex,
// independent of the scan mutex.
type Digest struct {
	valuer   Valuer
	stocks   StockSource
	snaps    SnapshotSource
	gurus    GuruSource
	market   MarketData
	gate     Notifier
	currency string
	clock    domain.Clock
	log      zerolog.Logger

	digestMu sync.Mutex
	stateMu  sync.Mutex
	running  bool
	lastRun  *DigestRun
}

// NewDigest creates a digest service. displayCurrency defaults to USD.
func NewDigest(valuer Valuer, stocks StockSource, snaps SnapshotSource, guruSrc GuruSource, market MarketData, gate Notifier, displayCurrency string, clock domain.Clock, log zerolog.Logger) *Digest {
	if displayCurrency == "" {
		displayCurrency = "USD"
	}
	if clock == nil {
		clock = domain.RealClock{}
	}
	return &Digest{
		valuer:   valuer,
		stocks:   stocks,
		snaps:    snaps,
		gurus:    guruSrc,
		market:   market,
		gate:     gate,
		currency: displayCurrency,
		clock:    clock,
		log:      log.With().Str("service", "digest").Logger(),
	}
}

// Start launches a digest in the background and returns its run id.
// Rejects with a conflict while another digest holds the mutex.
func (d *Digest) Start() (string, error) {
	if !d.digestMu.TryLock() {
		return "", domain.Conflictf("a digest is already running")
	}
	runID := uuid.NewString()

	go func() {
		defer d.digestMu.Unlock()
		ctx, cancel := context.WithTimeout(context.Background(), digestTimeout)
		defer cancel()
		d.execute(ctx, runID)
	}()
	return runID, nil
}

// RunNow executes a digest synchronously. Used by the scheduler.
func (d *Digest) RunNow(ctx context.Context) (*DigestRun, error) {
	if !d.digestMu.TryLock() {
		return nil, domain.Conflictf("a digest is already running")
	}
	defer d.digestMu.Unlock()
	return d.execute(ctx, uuid.NewString()), nil
}

// Status reports whether a digest is in flight and the last completed run.
func (d *Digest) Status() Status {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()

	st := Status{Running: d.running}
	if d.lastRun != nil {
		st.LastRunID = d.lastRun.RunID
		st.LastRunAt = d.lastRun.FinishedAt
	}
	return st
}

func (d *Digest) execute(ctx context.Context, runID string) *DigestRun {
	d.stateMu.Lock()
	d.running = true
	d.stateMu.Unlock()

	run := d.run(ctx, runID)

	d.stateMu.Lock()
	d.running = false
	d.lastRun = run
	d.stateMu.Unlock()
	return run
}

func (d *Digest) run(ctx context.Context, runID string) *DigestRun {
	run := &DigestRun{RunID: runID, StartedAt: d.clock.Now().Unix()}
	log := d.log.With().Str("run_id", runID).Logger()
	log.Info().Msg("digest started")

	var b strings.Builder
	b.WriteString("📊 <b>Weekly digest</b>\n")

	snaps, err := d.snaps.List(digestChartDays, "", "")
	if err != nil {
		run.Errors = append(run.Errors, fmt.Sprintf("snapshot read failed: %v", err))
	}

	d.writeValuation(ctx, &b, snaps, run)
	d.writeSignals(&b, run)
	d.writeMood(ctx, &b)
	d.writeSeason(&b, run)

	text := strings.TrimRight(b.String(), "\n")

	if len(snaps) >= 2 {
		png, err := renderValueChart(snaps, d.currency)
		if err != nil {
			run.Errors = append(run.Errors, fmt.Sprintf("chart render failed: %v", err))
		} else {
			run.WithChart = true
			run.Sent = d.gate.NotifyPhoto(ctx, notify.CategoryDigest, png, text)
		}
	}
	if !run.WithChart {
		run.Sent = d.gate.Notify(ctx, notify.CategoryDigest, text)
	}

	run.FinishedAt = d.clock.Now().Unix()
	log.Info().
		Bool("sent", run.Sent).
		Bool("with_chart", run.WithChart).
		Int("errors", len(run.Errors)).
		Msg("digest finished")
	return run
}

func (d *Digest) writeValuation(ctx context.Context, b *strings.Builder, snaps []snapshots.Snapshot, run *DigestRun) {
	valuation, err := d.valuer.Rebalance(ctx, d.currency)
	if err != nil {
		run.Errors = append(run.Errors, fmt.Sprintf("valuation failed: %v", err))
		return
	}

	fmt.Fprintf(b, "\n💼 Portfolio: %.2f %s", valuation.TotalValue, valuation.DisplayCurrency)
	if len(snaps) >= 2 && snaps[0].TotalValue > 0 {
		change := (snaps[len(snaps)-1].TotalValue/snaps[0].TotalValue - 1) * 100
		fmt.Fprintf(b, " (%+.1f%% over %dd)", change, digestChartDays)
	}
	b.WriteString("\n")

	categories := make([]string, 0, len(valuation.CategoryValues))
	for category := range valuation.CategoryValues {
		categories = append(categories, category)
	}
	sort.Strings(categories)
	for _, category := range categories {
		fmt.Fprintf(b, "• %s: %.2f (%.1f%%)\n", category, valuation.CategoryValues[category], valuation.CategoryWeights[category])
	}
	if valuation.UnpricedCount > 0 {
		fmt.Fprintf(b, "• %d position(s) unpriced\n", valuation.UnpricedCount)
	}
}

// writeSignals prints the distribution of last scan signals, NORMAL and
// unscanned tickers folded into one line.
func (d *Digest) writeSignals(b *strings.Builder, run *DigestRun) {
	stocks, err := d.stocks.GetActive()
	if err != nil {
		run.Errors = append(run.Errors, fmt.Sprintf("watchlist read failed: %v", err))
		return
	}
	if len(stocks) == 0 {
		return
	}

	counts := make(map[string]int)
	quiet := 0
	for _, st := range stocks {
		if st.LastScanSignal == nil || *st.LastScanSignal == string(domain.SignalNormal) {
			quiet++
			continue
		}
		counts[*st.LastScanSignal]++
	}

	b.WriteString("\n📡 Signals: ")
	if len(counts) == 0 {
		fmt.Fprintf(b, "all %d quiet\n", quiet)
		return
	}
	signals := make([]string, 0, len(counts))
	for signal := range counts {
		signals = append(signals, signal)
	}
	sort.Strings(signals)
	parts := make([]string, 0, len(signals)+1)
	for _, signal := range signals {
		parts = append(parts, fmt.Sprintf("%d %s", counts[signal], signal))
	}
	if quiet > 0 {
		parts = append(parts, fmt.Sprintf("%d quiet", quiet))
	}
	b.WriteString(strings.Join(parts, ", "))
	b.WriteString("\n")
}

func (d *Digest) writeMood(ctx context.Context, b *strings.Builder) {
	fg := d.market.FearGreed(ctx)
	if fg.Score == nil {
		return
	}
	fmt.Fprintf(b, "\n🌡 Market mood: %s (%.0f)\n", fg.Level, *fg.Score)
}

func (d *Digest) writeSeason(b *strings.Builder, run *DigestRun) {
	highlights, err := d.gurus.SeasonHighlights(digestHighlights)
	if err != nil {
		run.Errors = append(run.Errors, fmt.Sprintf("guru highlights failed: %v", err))
		return
	}
	if len(highlights.NewPositions) == 0 && len(highlights.SoldOut) == 0 {
		return
	}

	b.WriteString("\n🎩 13F season:\n")
	for _, h := range highlights.NewPositions {
		fmt.Fprintf(b, "• %s opened %s (%.1f%% of book)\n", h.Guru, companyLabel(h), h.WeightPct)
	}
	for _, h := range highlights.SoldOut {
		fmt.Fprintf(b, "• %s exited %s\n", h.Guru, companyLabel(h))
	}
}

func companyLabel(h gurus.Highlight) string {
	if h.Ticker != nil {
		return *h.Ticker
	}
	return h.Company
}
