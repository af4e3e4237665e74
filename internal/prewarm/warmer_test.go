package prewarm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/folio/internal/domain"
	"github.com/aristath/folio/internal/modules/gurus"
	"github.com/aristath/folio/internal/modules/holdings"
	"github.com/aristath/folio/internal/modules/watchlist"
)

// fakeMarket records which tickers each capability was asked for and cans
// the responses.
type fakeMarket struct {
	mu sync.Mutex

	bulkSets   [][]string
	bulkWarmed int
	bulkErr    error

	fg domain.FearGreed

	moatCalls   []string
	moats       map[string]domain.MoatStatus
	etfCalls    []string
	etfRows     map[string]int
	betaCalls   []string
	betaPanics  bool
	sectorCalls []string
	weightCalls []string
}

func (m *fakeMarket) PrewarmSignals(ctx context.Context, tickers []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bulkSets = append(m.bulkSets, append([]string(nil), tickers...))
	if m.bulkErr != nil {
		return 0, m.bulkErr
	}
	return m.bulkWarmed, nil
}

func (m *fakeMarket) FearGreed(ctx context.Context) domain.FearGreed { return m.fg }

func (m *fakeMarket) MoatTrend(ctx context.Context, ticker string) *domain.MoatRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.moatCalls = append(m.moatCalls, ticker)
	status, ok := m.moats[ticker]
	if !ok {
		status = domain.MoatNotAvailable
	}
	return &domain.MoatRecord{Ticker: ticker, Status: status}
}

func (m *fakeMarket) ETFHoldings(ctx context.Context, ticker string) []domain.ETFHolding {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.etfCalls = append(m.etfCalls, ticker)
	rows := make([]domain.ETFHolding, m.etfRows[ticker])
	return rows
}

func (m *fakeMarket) Beta(ctx context.Context, ticker string) *float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.betaPanics {
		panic("beta provider exploded")
	}
	m.betaCalls = append(m.betaCalls, ticker)
	v := 1.1
	return &v
}

func (m *fakeMarket) Sector(ctx context.Context, ticker string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sectorCalls = append(m.sectorCalls, ticker)
	return "Information Technology"
}

func (m *fakeMarket) ETFSectorWeights(ctx context.Context, ticker string) map[string]float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.weightCalls = append(m.weightCalls, ticker)
	return map[string]float64{"Information Technology": 100}
}

type fakeStocks struct {
	stocks []watchlist.Stock
	err    error
}

func (f *fakeStocks) GetActive() ([]watchlist.Stock, error) { return f.stocks, f.err }

type fakeLots struct {
	lots []holdings.Holding
}

func (f *fakeLots) GetAll() ([]holdings.Holding, error) { return f.lots, nil }

type fakeGurus struct {
	results []gurus.SyncResult
	err     error
	calls   int
}

func (f *fakeGurus) SyncAll(ctx context.Context) ([]gurus.SyncResult, error) {
	f.calls++
	return f.results, f.err
}

func stock(ticker string, category domain.Category, isETF bool) watchlist.Stock {
	return watchlist.Stock{Ticker: ticker, Name: ticker, Category: category, IsETF: isETF, Active: true}
}

func newTestWarmer(market *fakeMarket, stocks *fakeStocks, lots *fakeLots, guruSvc GuruSyncer) *Warmer {
	clock := domain.ClockFunc(func() time.Time { return time.Date(2025, 6, 2, 5, 0, 0, 0, time.UTC) })
	return NewWarmer(market, stocks, lots, guruSvc, clock, zerolog.Nop())
}

func TestRunWarmsEveryPhaseInOrder(t *testing.T) {
	fg := 42.0
	market := &fakeMarket{
		bulkWarmed: 5,
		fg:         domain.FearGreed{Score: &fg, Level: domain.FearGreedNeutral},
		moats:      map[string]domain.MoatStatus{"AAPL": domain.MoatStable},
		etfRows:    map[string]int{"VT": 3},
	}
	stocks := &fakeStocks{stocks: []watchlist.Stock{
		stock("AAPL", domain.CategoryMoat, false),
		stock("8035.T", domain.CategoryGrowth, false),
		stock("VT", domain.CategoryTrendSetter, true),
		stock("AGG", domain.CategoryBond, false),
		stock("EURCASH", domain.CategoryCash, false),
	}}
	lots := &fakeLots{lots: []holdings.Holding{
		{Ticker: "NVDA", Category: domain.CategoryGrowth},
		{Ticker: holdings.CashTicker, Category: domain.CategoryCash, IsCash: true},
	}}
	guruSvc := &fakeGurus{results: []gurus.SyncResult{
		{CIK: "0001067983", FilingsAdded: 2},
		{CIK: "0001649339", FilingsAdded: 1, Error: "one quarter deferred"},
	}}

	w := newTestWarmer(market, stocks, lots, guruSvc)
	st, err := w.Run(context.Background())
	require.NoError(t, err)

	// Cash never enters a set; the bond stays out of moat and equity; the
	// ETF stays out of equity; the portfolio-only ticker joins everything.
	require.Len(t, market.bulkSets, 1)
	assert.Equal(t, []string{"8035.T", "AAPL", "AGG", "NVDA", "VT"}, market.bulkSets[0])
	assert.Equal(t, []string{"8035.T", "AAPL", "NVDA", "VT"}, market.moatCalls)
	assert.Equal(t, []string{"VT"}, market.etfCalls)
	assert.Equal(t, []string{"8035.T", "AAPL", "AGG", "NVDA", "VT"}, market.betaCalls)
	assert.Equal(t, []string{"8035.T", "AAPL", "NVDA"}, market.sectorCalls)
	assert.Equal(t, []string{"VT"}, market.weightCalls)
	assert.Equal(t, 1, guruSvc.calls)

	require.Len(t, st.Phases, 8)
	names := make([]string, 0, len(st.Phases))
	for _, ph := range st.Phases {
		names = append(names, ph.Name)
		assert.Empty(t, ph.Error, ph.Name)
	}
	assert.Equal(t, []string{
		"bulk signals", "fear & greed", "moat trends", "etf holdings",
		"beta", "guru filings", "sectors", "etf sector weights",
	}, names)

	assert.Equal(t, 5, st.Phases[0].Items)
	assert.Equal(t, 1, st.Phases[1].Items)
	assert.Equal(t, 1, st.Phases[2].Items, "only AAPL resolved a moat value")
	assert.Equal(t, 1, st.Phases[3].Items)
	assert.Equal(t, 5, st.Phases[4].Items)
	assert.Equal(t, 3, st.Phases[5].Items, "filings added across gurus")
	assert.Equal(t, 3, st.Phases[6].Items)
	assert.Equal(t, 1, st.Phases[7].Items)

	assert.True(t, st.Ready)
	assert.True(t, w.Ready())
	assert.False(t, st.Running)
	require.NotNil(t, st.FinishedAt)
}

func TestRunKeepsGoingWhenAPhaseFails(t *testing.T) {
	market := &fakeMarket{
		bulkErr: errors.New("upstream 502"),
		fg:      domain.FearGreed{Level: domain.FearGreedNA},
	}
	stocks := &fakeStocks{stocks: []watchlist.Stock{stock("AAPL", domain.CategoryMoat, false)}}

	w := newTestWarmer(market, stocks, &fakeLots{}, &fakeGurus{})
	st, err := w.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, st.Phases, 8)
	assert.Equal(t, "upstream 502", st.Phases[0].Error)
	assert.Contains(t, st.Phases[1].Error, "no sentiment source")
	assert.Equal(t, []string{"AAPL"}, market.moatCalls, "later phases still ran")
	assert.True(t, st.Ready, "a degraded pass still counts as warmed")
}

func TestRunRecoversAPanickingPhase(t *testing.T) {
	fg := 55.0
	market := &fakeMarket{
		fg:         domain.FearGreed{Score: &fg, Level: domain.FearGreedNeutral},
		betaPanics: true,
	}
	stocks := &fakeStocks{stocks: []watchlist.Stock{stock("AAPL", domain.CategoryMoat, false)}}

	w := newTestWarmer(market, stocks, &fakeLots{}, &fakeGurus{})
	st, err := w.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, st.Phases, 8)
	assert.Contains(t, st.Phases[4].Error, "panic")
	assert.Contains(t, st.Phases[4].Error, "beta provider exploded")
	assert.Equal(t, []string{"AAPL"}, market.sectorCalls, "phases after the panic still ran")
	assert.True(t, st.Ready)
}

func TestRunBusyRejected(t *testing.T) {
	w := newTestWarmer(&fakeMarket{}, &fakeStocks{}, &fakeLots{}, &fakeGurus{})

	w.warmMu.Lock()
	defer w.warmMu.Unlock()

	_, err := w.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, domain.KindConflict, domain.KindOf(err))
}

func TestRunCancelledContextNeverMarksReady(t *testing.T) {
	market := &fakeMarket{}
	stocks := &fakeStocks{stocks: []watchlist.Stock{stock("AAPL", domain.CategoryMoat, false)}}
	w := newTestWarmer(market, stocks, &fakeLots{}, &fakeGurus{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	st, err := w.Run(ctx)
	require.NoError(t, err)
	assert.Empty(t, st.Phases)
	assert.False(t, st.Ready)
	assert.False(t, w.Ready())
	assert.Empty(t, market.bulkSets)
}

func TestUniverseWatchlistOverridesHoldingCategory(t *testing.T) {
	market := &fakeMarket{fg: domain.FearGreed{Level: domain.FearGreedNA}}
	stocks := &fakeStocks{stocks: []watchlist.Stock{stock("NVDA", domain.CategoryGrowth, false)}}
	lots := &fakeLots{lots: []holdings.Holding{{Ticker: "NVDA", Category: domain.CategoryBond}}}

	w := newTestWarmer(market, stocks, lots, &fakeGurus{})
	_, err := w.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"NVDA"}, market.moatCalls)
	assert.Equal(t, []string{"NVDA"}, market.sectorCalls)
}

func TestStatusReflectsWatchlistFailure(t *testing.T) {
	stocks := &fakeStocks{err: errors.New("disk gone")}
	w := newTestWarmer(&fakeMarket{}, stocks, &fakeLots{}, &fakeGurus{})

	st, err := w.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, st.Phases, 1)
	assert.Equal(t, "collect universe", st.Phases[0].Name)
	assert.Contains(t, st.Phases[0].Error, "disk gone")
	assert.True(t, st.Ready, "ready still latches; the pass ran to its end")
}
