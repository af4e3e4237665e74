// Package prewarm fills the cache fabric for the user's universe in the
// background so the first interactive reads after startup land warm. One
// bulk history call covers signals; everything else walks the sets
// sequentially behind the provider gates.
package prewarm

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/folio/internal/domain"
	"github.com/aristath/folio/internal/modules/gurus"
	"github.com/aristath/folio/internal/modules/holdings"
	"github.com/aristath/folio/internal/modules/watchlist"
)

const warmTimeout = 30 * time.Minute

// MarketData is the slice of the provider router the warmer drives.
type MarketData interface {
	PrewarmSignals(ctx context.Context, tickers []string) (int, error)
	FearGreed(ctx context.Context) domain.FearGreed
	MoatTrend(ctx context.Context, ticker string) *domain.MoatRecord
	ETFHoldings(ctx context.Context, ticker string) []domain.ETFHolding
	Beta(ctx context.Context, ticker string) *float64
	Sector(ctx context.Context, ticker string) string
	ETFSectorWeights(ctx context.Context, ticker string) map[string]float64
}

// StockSource lists the active watchlist.
type StockSource interface {
	GetActive() ([]watchlist.Stock, error)
}

// HoldingSource lists portfolio rows.
type HoldingSource interface {
	GetAll() ([]holdings.Holding, error)
}

// GuruSyncer backfills tracked 13F filers.
type GuruSyncer interface {
	SyncAll(ctx context.Context) ([]gurus.SyncResult, error)
}

// Phase is one warm step's outcome. Items counts entries that resolved to a
// value; sentinel writes still warm the cache but are not counted.
type Phase struct {
	Name       string `json:"name"`
	Items      int    `json:"items"`
	DurationMS int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

// Status is the warm state surfaced on the status endpoint. Ready latches
// true after the first complete pass and stays true through later refreshes.
type Status struct {
	Ready      bool       `json:"ready"`
	Running    bool       `json:"running"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Phases     []Phase    `json:"phases,omitempty"`
}

// Warmer runs the phased warm over watchlist and holdings tickers.
type Warmer struct {
	market MarketData
	stocks StockSource
	lots   HoldingSource
	gurus  GuruSyncer
	clock  domain.Clock
	log    zerolog.Logger

	warmMu  sync.Mutex
	stateMu sync.Mutex
	state   Status
}

// NewWarmer creates the prewarm service.
func NewWarmer(market MarketData, stocks StockSource, lots HoldingSource, guruSvc GuruSyncer, clock domain.Clock, log zerolog.Logger) *Warmer {
	return &Warmer{
		market: market,
		stocks: stocks,
		lots:   lots,
		gurus:  guruSvc,
		clock:  clock,
		log:    log.With().Str("service", "prewarm").Logger(),
	}
}

// Ready reports whether at least one full warm pass has completed.
func (w *Warmer) Ready() bool {
	w.stateMu.Lock()
	defer w.stateMu.Unlock()
	return w.state.Ready
}

// Status returns a copy of the warm state, including phases of a pass still
// in flight.
func (w *Warmer) Status() Status {
	w.stateMu.Lock()
	defer w.stateMu.Unlock()
	st := w.state
	st.Phases = append([]Phase(nil), w.state.Phases...)
	return st
}

// Run executes every warm phase in order and returns the resulting status.
// A second caller while a pass is in flight gets a conflict.
func (w *Warmer) Run(ctx context.Context) (Status, error) {
	if !w.warmMu.TryLock() {
		return Status{}, domain.Conflictf("a prewarm is already running")
	}
	defer w.warmMu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, warmTimeout)
	defer cancel()

	started := w.clock.Now()
	w.stateMu.Lock()
	w.state.Running = true
	w.state.StartedAt = &started
	w.state.FinishedAt = nil
	w.state.Phases = nil
	w.stateMu.Unlock()

	w.warm(ctx)

	finished := w.clock.Now()
	w.stateMu.Lock()
	w.state.Running = false
	w.state.FinishedAt = &finished
	if ctx.Err() == nil {
		w.state.Ready = true
	}
	st := w.state
	st.Phases = append([]Phase(nil), w.state.Phases...)
	w.stateMu.Unlock()

	w.log.Info().
		Bool("ready", st.Ready).
		Int("phases", len(st.Phases)).
		Msg("prewarm finished")
	return st, nil
}

func (w *Warmer) warm(ctx context.Context) {
	uni, err := w.universe()
	if err != nil {
		w.log.Error().Err(err).Msg("universe collection failed")
		w.recordPhase(Phase{Name: "collect universe", Error: err.Error()})
		return
	}

	w.log.Info().
		Int("signals", len(uni.signals)).
		Int("moat", len(uni.moat)).
		Int("etf", len(uni.etf)).
		Int("equity", len(uni.equity)).
		Msg("prewarm started")

	steps := []struct {
		name string
		run  func(context.Context) (int, error)
	}{
		{"bulk signals", func(ctx context.Context) (int, error) {
			return w.market.PrewarmSignals(ctx, uni.signals)
		}},
		{"fear & greed", w.warmFearGreed},
		{"moat trends", w.tickerPhase(uni.moat, w.warmMoat)},
		{"etf holdings", w.tickerPhase(uni.etf, w.warmETFHoldings)},
		{"beta", w.tickerPhase(uni.signals, w.warmBeta)},
		{"guru filings", w.warmGurus},
		{"sectors", w.tickerPhase(uni.equity, w.warmSector)},
		{"etf sector weights", w.tickerPhase(uni.etf, w.warmETFWeights)},
	}

	for _, step := range steps {
		if ctx.Err() != nil {
			return
		}
		w.runPhase(ctx, step.name, step.run)
	}
}

// runPhase executes one warm step. Failures, including panics, become a
// warning on the phase record so later phases still run.
func (w *Warmer) runPhase(ctx context.Context, name string, fn func(context.Context) (int, error)) {
	started := w.clock.Now()
	ph := Phase{Name: name}

	func() {
		defer func() {
			if r := recover(); r != nil {
				ph.Error = fmt.Sprintf("panic: %v", r)
			}
		}()
		items, err := fn(ctx)
		ph.Items = items
		if err != nil {
			ph.Error = err.Error()
		}
	}()

	ph.DurationMS = w.clock.Now().Sub(started).Milliseconds()
	if ph.Error != "" {
		w.log.Warn().Str("phase", name).Str("error", ph.Error).Msg("prewarm phase failed")
	} else {
		w.log.Info().Str("phase", name).Int("items", ph.Items).Int64("ms", ph.DurationMS).Msg("prewarm phase done")
	}
	w.recordPhase(ph)
}

func (w *Warmer) recordPhase(ph Phase) {
	w.stateMu.Lock()
	w.state.Phases = append(w.state.Phases, ph)
	w.stateMu.Unlock()
}

// tickerPhase adapts a per-ticker fetch into a phase that walks its set
// sequentially; the router's gates pace the upstream calls.
func (w *Warmer) tickerPhase(tickers []string, fetch func(context.Context, string) bool) func(context.Context) (int, error) {
	return func(ctx context.Context) (int, error) {
		warmed := 0
		for _, ticker := range tickers {
			if err := ctx.Err(); err != nil {
				return warmed, err
			}
			if fetch(ctx, ticker) {
				warmed++
			}
		}
		return warmed, nil
	}
}

func (w *Warmer) warmFearGreed(ctx context.Context) (int, error) {
	fg := w.market.FearGreed(ctx)
	if fg.Level == domain.FearGreedNA || fg.Score == nil {
		return 0, fmt.Errorf("no sentiment source produced a composite")
	}
	return 1, nil
}

func (w *Warmer) warmGurus(ctx context.Context) (int, error) {
	if w.gurus == nil {
		return 0, nil
	}
	results, err := w.gurus.SyncAll(ctx)
	if err != nil {
		return 0, err
	}
	filings := 0
	for _, res := range results {
		filings += res.FilingsAdded
		if res.Error != "" {
			w.log.Warn().Str("cik", res.CIK).Str("error", res.Error).Msg("guru backfill incomplete")
		}
	}
	return filings, nil
}

func (w *Warmer) warmMoat(ctx context.Context, ticker string) bool {
	rec := w.market.MoatTrend(ctx, ticker)
	return rec != nil && rec.Status != domain.MoatNotAvailable
}

func (w *Warmer) warmETFHoldings(ctx context.Context, ticker string) bool {
	return len(w.market.ETFHoldings(ctx, ticker)) > 0
}

func (w *Warmer) warmBeta(ctx context.Context, ticker string) bool {
	return w.market.Beta(ctx, ticker) != nil
}

func (w *Warmer) warmSector(ctx context.Context, ticker string) bool {
	return w.market.Sector(ctx, ticker) != ""
}

func (w *Warmer) warmETFWeights(ctx context.Context, ticker string) bool {
	return len(w.market.ETFSectorWeights(ctx, ticker)) > 0
}

// universe holds the warm sets. The beta set equals the signals set and the
// weights set equals the etf set, so neither is stored twice.
type universe struct {
	signals []string
	moat    []string
	etf     []string
	equity  []string
}

// universe collects tickers from the watchlist and the portfolio. Watchlist
// rows carry the category and ETF flag; for portfolio-only tickers the
// holding's category stands in and the ETF flag defaults off.
func (w *Warmer) universe() (*universe, error) {
	stocks, err := w.stocks.GetActive()
	if err != nil {
		return nil, fmt.Errorf("failed to load watchlist: %w", err)
	}
	lots, err := w.lots.GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to load holdings: %w", err)
	}

	type member struct {
		category domain.Category
		isETF    bool
	}
	members := make(map[string]member, len(stocks)+len(lots))
	for _, lot := range lots {
		if lot.IsCash {
			continue
		}
		members[lot.Ticker] = member{category: lot.Category}
	}
	for _, st := range stocks {
		members[st.Ticker] = member{category: st.Category, isETF: st.IsETF}
	}

	uni := &universe{}
	for ticker, m := range members {
		if m.category.SkipSignals() {
			continue
		}
		uni.signals = append(uni.signals, ticker)
		if !m.category.SkipMoat() {
			uni.moat = append(uni.moat, ticker)
		}
		if m.isETF {
			uni.etf = append(uni.etf, ticker)
			continue
		}
		if m.category != domain.CategoryBond {
			uni.equity = append(uni.equity, ticker)
		}
	}
	sort.Strings(uni.signals)
	sort.Strings(uni.moat)
	sort.Strings(uni.etf)
	sort.Strings(uni.equity)
	return uni, nil
}
