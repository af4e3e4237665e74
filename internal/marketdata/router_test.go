package marketdata

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/folio/internal/cache"
	"github.com/aristath/folio/internal/domain"
	"github.com/aristath/folio/internal/flight"
	"github.com/aristath/folio/internal/ratelimit"
)

// fakePrimary cans responses per capability and counts upstream calls.
type fakePrimary struct {
	mu sync.Mutex

	historyCalls int
	quoteCalls   int
	marginCalls  int
	bulkCalls    int
	weightsCalls int
	sectorCalls  int

	bars        []domain.Bar
	barsErr     error
	historyHold chan struct{}
	quote       *domain.Quote
	quoteErr    error
	vix         *float64
	vixErr      error
	sector      string
	sectorErr   error
	beta        *float64
	betaErr     error
	yield       *float64
	yieldErr    error
	earnings    *domain.EarningsEvent
	earningsErr error
	holdings    []domain.ETFHolding
	holdingsErr error
	weights     map[string]float64
	weightsErr  error
	marginCur   float64
	marginPrev  float64
	marginErr   error
	bulk        map[string][]domain.Bar
	bulkErr     error
}

func (p *fakePrimary) DailyHistory(ctx context.Context, ticker, rng string) ([]domain.Bar, error) {
	p.mu.Lock()
	p.historyCalls++
	hold := p.historyHold
	p.mu.Unlock()
	if hold != nil {
		<-hold
	}
	return p.bars, p.barsErr
}

func (p *fakePrimary) Quote(ctx context.Context, ticker string) (*domain.Quote, error) {
	p.mu.Lock()
	p.quoteCalls++
	p.mu.Unlock()
	return p.quote, p.quoteErr
}

func (p *fakePrimary) BulkDailyCloses(ctx context.Context, tickers []string, rng string) (map[string][]domain.Bar, error) {
	p.mu.Lock()
	p.bulkCalls++
	p.mu.Unlock()
	return p.bulk, p.bulkErr
}

func (p *fakePrimary) FXDailyHistory(ctx context.Context, pair, rng string) ([]domain.Bar, error) {
	return p.bars, p.barsErr
}

func (p *fakePrimary) VIX(ctx context.Context) (*float64, error) { return p.vix, p.vixErr }

func (p *fakePrimary) Sector(ctx context.Context, ticker string) (string, error) {
	p.mu.Lock()
	p.sectorCalls++
	p.mu.Unlock()
	return p.sector, p.sectorErr
}

func (p *fakePrimary) Beta(ctx context.Context, ticker string) (*float64, error) {
	return p.beta, p.betaErr
}

func (p *fakePrimary) DividendYield(ctx context.Context, ticker string) (*float64, error) {
	return p.yield, p.yieldErr
}

func (p *fakePrimary) NextEarnings(ctx context.Context, ticker string) (*domain.EarningsEvent, error) {
	return p.earnings, p.earningsErr
}

func (p *fakePrimary) ETFHoldings(ctx context.Context, ticker string) ([]domain.ETFHolding, error) {
	return p.holdings, p.holdingsErr
}

func (p *fakePrimary) ETFSectorWeights(ctx context.Context, ticker string) (map[string]float64, error) {
	p.mu.Lock()
	p.weightsCalls++
	p.mu.Unlock()
	return p.weights, p.weightsErr
}

func (p *fakePrimary) MarginTrend(ctx context.Context, ticker string) (float64, float64, error) {
	p.mu.Lock()
	p.marginCalls++
	p.mu.Unlock()
	return p.marginCur, p.marginPrev, p.marginErr
}

func (p *fakePrimary) calls(counter *int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return *counter
}

// fakeStatements is a JP/TW statements stub.
type fakeStatements struct {
	mu         sync.Mutex
	calls      int
	configured bool
	current    float64
	previous   float64
	err        error
}

func (s *fakeStatements) IsConfigured() bool { return s.configured }

func (s *fakeStatements) MarginTrend(ctx context.Context, ticker string) (float64, float64, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return s.current, s.previous, s.err
}

func (s *fakeStatements) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// fakeFilings serves canned 13F data.
type fakeFilings struct {
	configured bool
	filings    []domain.InvestorFiling
	positions  []domain.FilingPosition
	err        error
}

func (f *fakeFilings) IsConfigured() bool { return f.configured }

func (f *fakeFilings) Filings13F(ctx context.Context, cik, since string) ([]domain.InvestorFiling, error) {
	return f.filings, f.err
}

func (f *fakeFilings) FilingHoldings(ctx context.Context, cik, accessionNo string) ([]domain.FilingPosition, error) {
	return f.positions, f.err
}

func fastGates() *ratelimit.Registry {
	return ratelimit.NewRegistryWith(map[string]time.Duration{
		ratelimit.Yahoo:     0,
		ratelimit.JPFin:     0,
		ratelimit.TWFin:     0,
		ratelimit.Edgar:     0,
		ratelimit.FearGreed: 0,
		ratelimit.Telegram:  0,
	})
}

func newTestRouter(t *testing.T, primary PrimaryProvider, mutate ...func(*RouterOptions)) *Router {
	t.Helper()

	fab := cache.New(cache.Options{DiskDir: filepath.Join(t.TempDir(), "cache")})
	t.Cleanup(func() { _ = fab.Close() })

	opts := RouterOptions{
		Fabric:  fab,
		Flight:  flight.New(nil),
		Gates:   fastGates(),
		Logger:  zerolog.Nop(),
		Clock:   domain.ClockFunc(func() time.Time { return time.Date(2025, 6, 2, 15, 0, 0, 0, time.UTC) }),
		Primary: primary,
	}
	for _, fn := range mutate {
		fn(&opts)
	}
	return NewRouter(opts)
}

// trendingBars builds n sessions of steadily rising closes with volume.
func trendingBars(n int) []domain.Bar {
	bars := make([]domain.Bar, n)
	day := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range bars {
		price := 100 + float64(i)*0.5
		bars[i] = domain.Bar{
			Date:   day.AddDate(0, 0, i).Format("2006-01-02"),
			Open:   price - 0.2,
			High:   price + 0.5,
			Low:    price - 0.5,
			Close:  price,
			Volume: 1_000_000 + int64(i)*1000,
		}
	}
	return bars
}

func TestSignalsConcurrentCallersShareOneFetch(t *testing.T) {
	primary := &fakePrimary{bars: trendingBars(120), historyHold: make(chan struct{})}
	r := newTestRouter(t, primary)
	ctx := context.Background()

	const callers = 10
	results := make([]*domain.TechnicalSignals, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = r.Signals(ctx, "AAPL")
		}(i)
	}

	// Let every caller reach the shared flight before releasing the fetch.
	time.Sleep(20 * time.Millisecond)
	close(primary.historyHold)
	wg.Wait()

	assert.Equal(t, 1, primary.calls(&primary.historyCalls))
	for _, sig := range results {
		require.NotNil(t, sig)
		assert.Empty(t, sig.Error)
		assert.NotNil(t, sig.RSI14)
		assert.NotNil(t, sig.MA60)
	}
}

func TestSignalsSecondCallServedFromCache(t *testing.T) {
	primary := &fakePrimary{bars: trendingBars(120)}
	r := newTestRouter(t, primary)
	ctx := context.Background()

	first := r.Signals(ctx, "AAPL")
	second := r.Signals(ctx, "AAPL")

	assert.Equal(t, 1, primary.calls(&primary.historyCalls))
	require.NotNil(t, first.LastClose)
	require.NotNil(t, second.LastClose)
	assert.Equal(t, *first.LastClose, *second.LastClose)
}

func TestSignalsShortHistoryCachedNegative(t *testing.T) {
	primary := &fakePrimary{bars: trendingBars(30)}
	r := newTestRouter(t, primary)
	ctx := context.Background()

	first := r.Signals(ctx, "TINY")
	second := r.Signals(ctx, "TINY")

	assert.Equal(t, cache.NSSignals.Sentinel, first.Error)
	assert.Equal(t, cache.NSSignals.Sentinel, second.Error)
	assert.Nil(t, first.RSI14)
	assert.Equal(t, 1, primary.calls(&primary.historyCalls), "negative result should be cached")
}

func TestSignalsUpstreamErrorDegradesWithoutCaching(t *testing.T) {
	primary := &fakePrimary{barsErr: errors.New("connection reset")}
	r := newTestRouter(t, primary)
	ctx := context.Background()

	first := r.Signals(ctx, "AAPL")
	second := r.Signals(ctx, "AAPL")

	assert.Equal(t, "upstream unavailable", first.Error)
	assert.True(t, second.Degraded())
	assert.Equal(t, 2, primary.calls(&primary.historyCalls), "transient failures must not be cached")
}

func TestHistoryReturnsBarsAndCaches(t *testing.T) {
	primary := &fakePrimary{bars: trendingBars(40)}
	r := newTestRouter(t, primary)
	ctx := context.Background()

	bars := r.History(ctx, "AAPL", "3mo")
	require.Len(t, bars, 40)

	r.History(ctx, "AAPL", "3mo")
	assert.Equal(t, 1, primary.calls(&primary.historyCalls))

	// A different range is a distinct cache entry.
	r.History(ctx, "AAPL", "5y")
	assert.Equal(t, 2, primary.calls(&primary.historyCalls))
}

func TestFXRateIdentityPairSkipsUpstream(t *testing.T) {
	primary := &fakePrimary{}
	r := newTestRouter(t, primary)

	rate := r.FXRate(context.Background(), "USD", "usd")
	require.NotNil(t, rate)
	assert.Equal(t, 1.0, *rate)
	assert.Equal(t, 0, primary.calls(&primary.quoteCalls))
}

func TestFXRateFetchesQuoteAndCaches(t *testing.T) {
	primary := &fakePrimary{quote: &domain.Quote{Ticker: "USDJPY=X", Price: 157.23}}
	r := newTestRouter(t, primary)
	ctx := context.Background()

	rate := r.FXRate(ctx, "USD", "JPY")
	require.NotNil(t, rate)
	assert.InDelta(t, 157.23, *rate, 1e-9)

	r.FXRate(ctx, "USD", "JPY")
	assert.Equal(t, 1, primary.calls(&primary.quoteCalls))
}

func TestQuoteIsDedupedButNeverCached(t *testing.T) {
	primary := &fakePrimary{quote: &domain.Quote{Ticker: "AAPL", Price: 231.1}}
	r := newTestRouter(t, primary)
	ctx := context.Background()

	q1, err := r.Quote(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 231.1, q1.Price)

	_, err = r.Quote(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 2, primary.calls(&primary.quoteCalls))
}

func TestSectorIsNormalized(t *testing.T) {
	primary := &fakePrimary{sector: "Consumer Cyclical"}
	r := newTestRouter(t, primary)

	assert.Equal(t, SectorDiscretionary, r.Sector(context.Background(), "AMZN"))
}

func TestETFSectorWeightsNotFoundCachedNegative(t *testing.T) {
	primary := &fakePrimary{weightsErr: domain.NotFoundf("no weights")}
	r := newTestRouter(t, primary)
	ctx := context.Background()

	assert.Nil(t, r.ETFSectorWeights(ctx, "AAPL"))
	assert.Nil(t, r.ETFSectorWeights(ctx, "AAPL"))
	assert.Equal(t, 1, primary.calls(&primary.weightsCalls))
}

func TestETFSectorWeightsMergesAliases(t *testing.T) {
	primary := &fakePrimary{weights: map[string]float64{
		"technology":  30.0,
		"realestate":  2.5,
		"real_estate": 1.5,
	}}
	r := newTestRouter(t, primary)

	weights := r.ETFSectorWeights(context.Background(), "VTI")
	require.NotNil(t, weights)
	assert.InDelta(t, 30.0, weights[SectorTechnology], 1e-9)
	assert.InDelta(t, 4.0, weights[SectorRealEstate], 1e-9)
}

func TestMoatTrendPrimarySource(t *testing.T) {
	primary := &fakePrimary{marginCur: 44.2, marginPrev: 43.1}
	r := newTestRouter(t, primary)

	rec := r.MoatTrend(context.Background(), "AAPL")
	require.NotNil(t, rec)
	assert.Equal(t, domain.MoatStable, rec.Status)
	assert.Equal(t, sourcePrimary, rec.Source)
	require.NotNil(t, rec.CurrentMargin)
	assert.InDelta(t, 44.2, *rec.CurrentMargin, 1e-9)
}

func TestMoatTrendFallsBackToJapaneseStatements(t *testing.T) {
	primary := &fakePrimary{marginErr: domain.NotFoundf("no statements")}
	jp := &fakeStatements{configured: true, current: 38.0, previous: 41.5}
	tw := &fakeStatements{configured: true, current: 99.0, previous: 99.0}
	r := newTestRouter(t, primary, func(o *RouterOptions) {
		o.JPFin = jp
		o.TWFin = tw
	})
	ctx := context.Background()

	rec := r.MoatTrend(ctx, "7203.T")
	require.NotNil(t, rec)
	assert.Equal(t, sourceJPFin, rec.Source)
	assert.Equal(t, domain.MoatDeteriorating, rec.Status)
	assert.Equal(t, 0, tw.callCount(), "market routing must pick the JP provider")

	// The fallback result is cached like any other moat record.
	r.MoatTrend(ctx, "7203.T")
	assert.Equal(t, 1, jp.callCount())
}

func TestMoatTrendUnknownMarketCachedNegative(t *testing.T) {
	primary := &fakePrimary{marginErr: domain.NotFoundf("no statements")}
	r := newTestRouter(t, primary)
	ctx := context.Background()

	rec := r.MoatTrend(ctx, "AAPL")
	require.NotNil(t, rec)
	assert.Equal(t, domain.MoatNotAvailable, rec.Status)

	r.MoatTrend(ctx, "AAPL")
	assert.Equal(t, 1, primary.calls(&primary.marginCalls))
}

func TestMoatTrendUnconfiguredFallbackSkipped(t *testing.T) {
	primary := &fakePrimary{marginErr: domain.NotFoundf("no statements")}
	jp := &fakeStatements{configured: false}
	r := newTestRouter(t, primary, func(o *RouterOptions) { o.JPFin = jp })

	rec := r.MoatTrend(context.Background(), "7203.T")
	assert.Equal(t, domain.MoatNotAvailable, rec.Status)
	assert.Equal(t, 0, jp.callCount())
}

func TestMoatTrendBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	primary := &fakePrimary{marginErr: domain.NotFoundf("no statements")}
	jp := &fakeStatements{configured: true, err: errors.New("upstream 500")}
	r := newTestRouter(t, primary, func(o *RouterOptions) { o.JPFin = jp })
	ctx := context.Background()

	for i, ticker := range []string{"7203.T", "6758.T", "9984.T"} {
		rec := r.MoatTrend(ctx, ticker)
		assert.Equal(t, domain.MoatNotAvailable, rec.Status, "ticker %d", i)
	}
	require.Equal(t, 3, jp.callCount())
	assert.False(t, r.jpBreaker.Available())

	// With the breaker open the fallback is skipped entirely.
	rec := r.MoatTrend(ctx, "8035.T")
	assert.Equal(t, domain.MoatNotAvailable, rec.Status)
	assert.Equal(t, 3, jp.callCount())
}

func TestFearGreedFromVIXAlone(t *testing.T) {
	vix := 25.0
	primary := &fakePrimary{vix: &vix}
	r := newTestRouter(t, primary)

	fg := r.FearGreed(context.Background())
	require.NotNil(t, fg.Score)
	assert.InDelta(t, 50.0, *fg.Score, 1e-9)
	assert.Equal(t, domain.FearGreedNeutral, fg.Level)
	require.NotNil(t, fg.VIX)
	assert.Nil(t, fg.ExternalScore)
}

func TestFearGreedAveragesBothSources(t *testing.T) {
	vix := 25.0 // component 50
	primary := &fakePrimary{vix: &vix}
	external := 80.0
	r := newTestRouter(t, primary, func(o *RouterOptions) {
		o.External = sentimentFunc(func(ctx context.Context) (*float64, error) { return &external, nil })
	})

	fg := r.FearGreed(context.Background())
	require.NotNil(t, fg.Score)
	assert.InDelta(t, 65.0, *fg.Score, 1e-9)
	assert.Equal(t, domain.FearGreedGreed, fg.Level)
}

func TestFearGreedAllSourcesDownDegrades(t *testing.T) {
	primary := &fakePrimary{vixErr: errors.New("down")}
	r := newTestRouter(t, primary, func(o *RouterOptions) {
		o.External = sentimentFunc(func(ctx context.Context) (*float64, error) { return nil, errors.New("down") })
	})

	fg := r.FearGreed(context.Background())
	assert.Equal(t, domain.FearGreedNA, fg.Level)
	assert.Nil(t, fg.Score)
}

type sentimentFunc func(ctx context.Context) (*float64, error)

func (f sentimentFunc) Score(ctx context.Context) (*float64, error) { return f(ctx) }

func TestPrewarmSignalsWarmsLongSeriesOnly(t *testing.T) {
	primary := &fakePrimary{bulk: map[string][]domain.Bar{
		"AAPL":  trendingBars(120),
		"SHORT": trendingBars(10),
	}}
	r := newTestRouter(t, primary)
	ctx := context.Background()

	warmed, err := r.PrewarmSignals(ctx, []string{"AAPL", "SHORT", "MISSING"})
	require.NoError(t, err)
	assert.Equal(t, 1, warmed)
	assert.Equal(t, 1, primary.calls(&primary.bulkCalls))

	// The warmed ticker is served from cache, no per-ticker history call.
	sig := r.Signals(ctx, "AAPL")
	assert.Empty(t, sig.Error)
	assert.Equal(t, 0, primary.calls(&primary.historyCalls))

	// The short one is not negative-cached; a direct fetch still runs.
	r.Signals(ctx, "SHORT")
	assert.Equal(t, 1, primary.calls(&primary.historyCalls))
}

func TestPrewarmSignalsEmptyListIsNoop(t *testing.T) {
	primary := &fakePrimary{}
	r := newTestRouter(t, primary)

	warmed, err := r.PrewarmSignals(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, warmed)
	assert.Equal(t, 0, primary.calls(&primary.bulkCalls))
}

func TestInvalidateTickerForcesRefetch(t *testing.T) {
	primary := &fakePrimary{bars: trendingBars(120)}
	r := newTestRouter(t, primary)
	ctx := context.Background()

	r.Signals(ctx, "AAPL")
	r.History(ctx, "AAPL", "1y")
	require.Equal(t, 2, primary.calls(&primary.historyCalls))

	r.InvalidateTicker("AAPL")

	r.Signals(ctx, "AAPL")
	r.History(ctx, "AAPL", "1y")
	assert.Equal(t, 4, primary.calls(&primary.historyCalls))
}

func TestFilings13FRequiresConfiguredProvider(t *testing.T) {
	primary := &fakePrimary{}
	r := newTestRouter(t, primary, func(o *RouterOptions) {
		o.Filings = &fakeFilings{configured: false}
	})

	_, err := r.Filings13F(context.Background(), "0001067983", "")
	assert.Error(t, err)
}

func TestFilings13FPassesThrough(t *testing.T) {
	filings := []domain.InvestorFiling{{AccessionNo: "0001-24-000001", Form: "13F-HR", FiledAt: "2024-05-15"}}
	primary := &fakePrimary{}
	r := newTestRouter(t, primary, func(o *RouterOptions) {
		o.Filings = &fakeFilings{configured: true, filings: filings}
	})

	got, err := r.Filings13F(context.Background(), "0001067983", "")
	require.NoError(t, err)
	assert.Equal(t, filings, got)
}

func TestBetaNilOnDegradedLookup(t *testing.T) {
	primary := &fakePrimary{betaErr: fmt.Errorf("throttled")}
	r := newTestRouter(t, primary)

	assert.Nil(t, r.Beta(context.Background(), "AAPL"))
}

func TestBetaCachedValueRoundTrips(t *testing.T) {
	b := 1.27
	primary := &fakePrimary{beta: &b}
	r := newTestRouter(t, primary)
	ctx := context.Background()

	got := r.Beta(ctx, "AAPL")
	require.NotNil(t, got)
	assert.InDelta(t, 1.27, *got, 1e-9)

	again := r.Beta(ctx, "AAPL")
	require.NotNil(t, again)
	assert.InDelta(t, 1.27, *again, 1e-9)
}
