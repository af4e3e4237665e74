package snapshots

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/aristath/folio/internal/domain"
	"github.com/aristath/folio/internal/modules/holdings"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(Schema)
	require.NoError(t, err)

	return db
}

// fakeValuer returns whatever valuation the test last configured.
type fakeValuer struct {
	result *holdings.RebalanceResult
	err    error
}

func (v *fakeValuer) Rebalance(_ context.Context, _ string) (*holdings.RebalanceResult, error) {
	return v.result, v.err
}

// fakeMarket serves canned last closes and history bars, counting calls.
type fakeMarket struct {
	prices       map[string]float64
	history      map[string][]domain.Bar
	historyCalls int
	lastRange    string
}

func (m *fakeMarket) Signals(_ context.Context, ticker string) *domain.TechnicalSignals {
	price, ok := m.prices[ticker]
	if !ok {
		return &domain.TechnicalSignals{Ticker: ticker, Error: "no data"}
	}
	return &domain.TechnicalSignals{Ticker: ticker, LastClose: &price}
}

func (m *fakeMarket) History(_ context.Context, ticker, rng string) []domain.Bar {
	m.historyCalls++
	m.lastRange = rng
	return m.history[ticker]
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func valuation(total float64, categories map[string]float64) *holdings.RebalanceResult {
	return &holdings.RebalanceResult{
		DisplayCurrency: "USD",
		TotalValue:      total,
		CategoryValues:  categories,
	}
}

func newTestService(t *testing.T, valuer *fakeValuer, market *fakeMarket, benchmarks []string, now time.Time) (*Service, *Repository) {
	t.Helper()
	db := setupTestDB(t)
	clock := fixedClock{now: now}
	repo := NewRepository(db, clock, zerolog.Nop())
	if valuer == nil {
		valuer = &fakeValuer{result: valuation(0, nil)}
	}
	if market == nil {
		market = &fakeMarket{}
	}
	return NewService(repo, valuer, market, benchmarks, "USD", clock, zerolog.Nop()), repo
}

func TestTakeDailySnapshotUpsertsSameDay(t *testing.T) {
	now := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	valuer := &fakeValuer{result: valuation(10000, map[string]float64{"Moat": 6000, "Cash": 4000})}
	market := &fakeMarket{prices: map[string]float64{"^GSPC": 5300}}
	svc, repo := newTestService(t, valuer, market, []string{"^GSPC"}, now)

	first, err := svc.TakeDailySnapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2025-06-02", first.SnapshotDate)
	assert.Equal(t, 10000.0, first.TotalValue)

	// Second take the same day replaces every field, never adds a row.
	valuer.result = valuation(10500, map[string]float64{"Moat": 6500, "Cash": 4000})
	market.prices["^GSPC"] = 5310

	second, err := svc.TakeDailySnapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 10500.0, second.TotalValue)
	assert.Equal(t, 6500.0, second.CategoryValues["Moat"])
	require.NotNil(t, second.BenchmarkValues["^GSPC"])
	assert.Equal(t, 5310.0, *second.BenchmarkValues["^GSPC"])

	all, err := repo.GetAll()
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestTakeDailySnapshotDegradedBenchmark(t *testing.T) {
	now := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	market := &fakeMarket{prices: map[string]float64{"^GSPC": 5300}}
	svc, _ := newTestService(t, nil, market, []string{"^GSPC", "VT"}, now)

	snapshot, err := svc.TakeDailySnapshot(context.Background())
	require.NoError(t, err)

	// The degraded benchmark is recorded as nil, marking it for backfill.
	require.Contains(t, snapshot.BenchmarkValues, "VT")
	assert.Nil(t, snapshot.BenchmarkValues["VT"])
	require.NotNil(t, snapshot.BenchmarkValues["^GSPC"])
	assert.Equal(t, 5300.0, *snapshot.BenchmarkValues["^GSPC"])
}

func TestBackfillBenchmarksAsOfJoin(t *testing.T) {
	now := time.Date(2025, 6, 10, 10, 0, 0, 0, time.UTC)
	market := &fakeMarket{history: map[string][]domain.Bar{
		"^GSPC": {
			{Date: "2025-06-02", Close: 5300},
			{Date: "2025-06-03", Close: 5310},
			{Date: "2025-06-06", Close: 5320},
		},
	}}
	svc, repo := newTestService(t, nil, market, []string{"^GSPC"}, now)

	// Three deficient snapshots; 2025-06-05 falls on a gap and joins back
	// to the 06-03 close, 06-01 predates all bars and stays nil.
	for _, date := range []string{"2025-06-01", "2025-06-03", "2025-06-05"} {
		require.NoError(t, repo.Upsert(Snapshot{
			SnapshotDate:    date,
			TotalValue:      1000,
			DisplayCurrency: "USD",
		}))
	}

	result, err := svc.BackfillBenchmarks(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, result.Scanned)
	assert.Equal(t, 3, result.Deficient)
	assert.Equal(t, 2, result.Updated)
	assert.Equal(t, 1, result.HistoryCalls, "one history call per benchmark")

	s3, err := repo.GetByDate("2025-06-03")
	require.NoError(t, err)
	require.NotNil(t, s3.BenchmarkValues["^GSPC"])
	assert.Equal(t, 5310.0, *s3.BenchmarkValues["^GSPC"])

	s5, err := repo.GetByDate("2025-06-05")
	require.NoError(t, err)
	require.NotNil(t, s5.BenchmarkValues["^GSPC"])
	assert.Equal(t, 5310.0, *s5.BenchmarkValues["^GSPC"], "gap day joins to most recent close")

	s1, err := repo.GetByDate("2025-06-01")
	require.NoError(t, err)
	assert.Nil(t, s1.BenchmarkValues["^GSPC"], "no close at or before the date")
}

func TestBackfillSkipsCompleteSnapshots(t *testing.T) {
	now := time.Date(2025, 6, 10, 10, 0, 0, 0, time.UTC)
	market := &fakeMarket{history: map[string][]domain.Bar{"^GSPC": {{Date: "2025-06-02", Close: 5300}}}}
	svc, repo := newTestService(t, nil, market, []string{"^GSPC"}, now)

	v := 5290.0
	require.NoError(t, repo.Upsert(Snapshot{
		SnapshotDate:    "2025-06-02",
		TotalValue:      1000,
		DisplayCurrency: "USD",
		BenchmarkValues: map[string]*float64{"^GSPC": &v},
	}))

	result, err := svc.BackfillBenchmarks(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Deficient)
	assert.Equal(t, 0, result.HistoryCalls, "complete history needs no provider calls")

	s, err := repo.GetByDate("2025-06-02")
	require.NoError(t, err)
	assert.Equal(t, 5290.0, *s.BenchmarkValues["^GSPC"], "existing close untouched")
}

func TestBackfillRefreshesLegacyScalar(t *testing.T) {
	now := time.Date(2025, 6, 10, 10, 0, 0, 0, time.UTC)
	market := &fakeMarket{history: map[string][]domain.Bar{
		"^GSPC": {{Date: "2025-06-02", Close: 5300}},
		"VT":    {{Date: "2025-06-02", Close: 120}},
	}}
	svc, repo := newTestService(t, nil, market, []string{"^GSPC", "VT"}, now)

	stale := 5100.0
	require.NoError(t, repo.Upsert(Snapshot{
		SnapshotDate:    "2025-06-02",
		TotalValue:      1000,
		DisplayCurrency: "USD",
		BenchmarkValue:  &stale,
	}))
	require.NoError(t, repo.Upsert(Snapshot{
		SnapshotDate:    "2025-06-03",
		TotalValue:      1000,
		DisplayCurrency: "USD",
	}))

	_, err := svc.BackfillBenchmarks(context.Background())
	require.NoError(t, err)

	// The scalar follows the primary benchmark only where it was already set.
	s2, err := repo.GetByDate("2025-06-02")
	require.NoError(t, err)
	require.NotNil(t, s2.BenchmarkValue)
	assert.Equal(t, 5300.0, *s2.BenchmarkValue)

	s3, err := repo.GetByDate("2025-06-03")
	require.NoError(t, err)
	assert.Nil(t, s3.BenchmarkValue)
}

func TestTWR(t *testing.T) {
	now := time.Date(2025, 6, 10, 10, 0, 0, 0, time.UTC)
	svc, repo := newTestService(t, nil, nil, nil, now)

	for _, row := range []struct {
		date  string
		total float64
	}{
		{"2025-06-02", 1000},
		{"2025-06-03", 1100},
		{"2025-06-04", 990},
	} {
		require.NoError(t, repo.Upsert(Snapshot{
			SnapshotDate:    row.date,
			TotalValue:      row.total,
			DisplayCurrency: "USD",
		}))
	}

	result, err := svc.TWR(0, "2025-06-01", "2025-06-30")
	require.NoError(t, err)
	assert.Equal(t, 3, result.Snapshots)
	assert.Equal(t, "2025-06-02", result.Start)
	assert.Equal(t, "2025-06-04", result.End)
	require.NotNil(t, result.TWR)
	// 1.1 * 0.9 - 1 = -0.01
	assert.InDelta(t, -0.01, *result.TWR, 1e-9)
	assert.InDelta(t, -1.0, *result.TWRPct, 1e-9)
}

func TestTWRTooFewSnapshots(t *testing.T) {
	now := time.Date(2025, 6, 10, 10, 0, 0, 0, time.UTC)
	svc, repo := newTestService(t, nil, nil, nil, now)

	require.NoError(t, repo.Upsert(Snapshot{SnapshotDate: "2025-06-02", TotalValue: 1000, DisplayCurrency: "USD"}))

	result, err := svc.TWR(0, "", "")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Snapshots)
	assert.Nil(t, result.TWR, "a single snapshot has no return")
}

func TestListTrailingWindow(t *testing.T) {
	now := time.Date(2025, 6, 10, 10, 0, 0, 0, time.UTC)
	svc, repo := newTestService(t, nil, nil, nil, now)

	for _, date := range []string{"2025-05-01", "2025-06-05", "2025-06-09"} {
		require.NoError(t, repo.Upsert(Snapshot{SnapshotDate: date, TotalValue: 1000, DisplayCurrency: "USD"}))
	}

	recent, err := svc.List(7, "", "")
	require.NoError(t, err)
	assert.Len(t, recent, 2, "window excludes the May snapshot")

	all, err := svc.List(0, "", "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestHistoryRangeBuckets(t *testing.T) {
	now := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		minDate string
		want    string
	}{
		{"2025-06-01", "3mo"},
		{"2025-01-15", "6mo"},
		{"2024-08-01", "1y"},
		{"2023-09-01", "2y"},
		{"2021-01-01", "5y"},
		{"2018-01-01", "max"},
		{"not-a-date", "max"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, historyRange(tc.minDate, now), tc.minDate)
	}
}
