package watchlist

import (
	"database/sql"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/aristath/folio/internal/domain"
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

// fakeInvalidator records which tickers had their cache dropped.
type fakeInvalidator struct {
	mu      sync.Mutex
	tickers []string
}

func (f *fakeInvalidator) InvalidateTicker(ticker string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tickers = append(f.tickers, ticker)
}

func newTestService(t *testing.T) (*Service, *fakeInvalidator) {
	t.Helper()
	db := setupTestDB(t)
	inv := &fakeInvalidator{}
	svc := NewService(
		NewRepository(db, nil, zerolog.Nop()),
		NewAlertRepository(db, nil, zerolog.Nop()),
		inv,
		nil,
		zerolog.Nop(),
	)
	return svc, inv
}

func TestAddStock(t *testing.T) {
	svc, inv := newTestService(t)

	stock, err := svc.Add(" nvda ", "NVIDIA Corp", domain.CategoryGrowth, false)
	require.NoError(t, err)
	assert.Equal(t, "NVDA", stock.Ticker)
	assert.Equal(t, domain.CategoryGrowth, stock.Category)
	assert.True(t, stock.Active)
	assert.Contains(t, inv.tickers, "NVDA")

	list, err := svc.List()
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestAddDuplicateConflicts(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Add("AAPL", "Apple", domain.CategoryMoat, false)
	require.NoError(t, err)

	_, err = svc.Add("aapl", "Apple again", domain.CategoryMoat, false)
	require.Error(t, err)
	assert.Equal(t, domain.KindConflict, domain.KindOf(err))
}

func TestAddRemovedTickerConflicts(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Add("AAPL", "Apple", domain.CategoryMoat, false)
	require.NoError(t, err)
	require.NoError(t, svc.Deactivate("AAPL"))

	_, err = svc.Add("AAPL", "Apple", domain.CategoryMoat, false)
	require.Error(t, err)
	assert.Equal(t, domain.KindConflict, domain.KindOf(err))
}

func TestAddValidation(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Add("", "", domain.CategoryMoat, false)
	assert.Equal(t, domain.KindValidationFailed, domain.KindOf(err))

	_, err = svc.Add("BAD TICKER", "", domain.CategoryMoat, false)
	assert.Equal(t, domain.KindValidationFailed, domain.KindOf(err))

	_, err = svc.Add("AAPL", "", domain.Category("Junk"), false)
	assert.Equal(t, domain.KindValidationFailed, domain.KindOf(err))
}

func TestMarketSuffixTickersAccepted(t *testing.T) {
	svc, _ := newTestService(t)

	for _, ticker := range []string{"7203.T", "2330.TW", "0700.HK", "BRK-B", "^VIX"} {
		_, err := svc.Add(ticker, "", domain.CategoryTrendSetter, false)
		require.NoError(t, err, "ticker %s should be accepted", ticker)
	}
}

func TestDeactivateReactivateLifecycle(t *testing.T) {
	svc, inv := newTestService(t)

	_, err := svc.Add("MSFT", "Microsoft", domain.CategoryMoat, false)
	require.NoError(t, err)

	require.NoError(t, svc.Deactivate("MSFT"))

	// Second deactivation conflicts.
	err = svc.Deactivate("MSFT")
	assert.Equal(t, domain.KindConflict, domain.KindOf(err))

	// Gone from the active list, present in removed.
	list, err := svc.List()
	require.NoError(t, err)
	assert.Empty(t, list)

	removed, err := svc.Removed()
	require.NoError(t, err)
	require.Len(t, removed, 1)
	assert.Equal(t, "MSFT", removed[0].Ticker)

	stock, err := svc.Reactivate("MSFT")
	require.NoError(t, err)
	assert.True(t, stock.Active)

	_, err = svc.Reactivate("MSFT")
	assert.Equal(t, domain.KindConflict, domain.KindOf(err))

	// Add, deactivate and reactivate each dropped the cached data.
	assert.GreaterOrEqual(t, len(inv.tickers), 3)
}

func TestDeactivateMissingNotFound(t *testing.T) {
	svc, _ := newTestService(t)

	err := svc.Deactivate("GHOST")
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))
}

func TestChangeCategory(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Add("AMZN", "Amazon", domain.CategoryGrowth, false)
	require.NoError(t, err)

	stock, err := svc.ChangeCategory("AMZN", domain.CategoryMoat)
	require.NoError(t, err)
	assert.Equal(t, domain.CategoryMoat, stock.Category)

	_, err = svc.ChangeCategory("AMZN", domain.Category("Junk"))
	assert.Equal(t, domain.KindValidationFailed, domain.KindOf(err))

	_, err = svc.ChangeCategory("GHOST", domain.CategoryMoat)
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))
}

func TestThesisRoundTrip(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Add("TSM", "TSMC", domain.CategoryMoat, false)
	require.NoError(t, err)

	stock, err := svc.SetThesis("TSM", "Fab moat widens every node shrink")
	require.NoError(t, err)
	require.NotNil(t, stock.Thesis)
	assert.Equal(t, "Fab moat widens every node shrink", *stock.Thesis)
	assert.NotNil(t, stock.ThesisUpdatedAt)

	// Empty thesis clears both columns.
	stock, err = svc.SetThesis("TSM", "")
	require.NoError(t, err)
	assert.Nil(t, stock.Thesis)
	assert.Nil(t, stock.ThesisUpdatedAt)
}

func TestExportImportRoundTrip(t *testing.T) {
	src, _ := newTestService(t)

	_, err := src.Add("AAPL", "Apple", domain.CategoryMoat, false)
	require.NoError(t, err)
	_, err = src.Add("VTI", "Vanguard Total", domain.CategoryTrendSetter, true)
	require.NoError(t, err)
	_, err = src.Add("7203.T", "Toyota", domain.CategoryMoat, false)
	require.NoError(t, err)
	_, err = src.SetThesis("AAPL", "Services gross margin story")
	require.NoError(t, err)
	require.NoError(t, src.Deactivate("7203.T"))

	payload, err := src.Export()
	require.NoError(t, err)
	require.Len(t, payload.Stocks, 3)

	// Import into an empty store yields set equality on tickers.
	dst, _ := newTestService(t)
	result, err := dst.Import(*payload)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Added)
	assert.Equal(t, 0, result.Skipped)

	srcAll, err := src.stocks.GetAll()
	require.NoError(t, err)
	dstAll, err := dst.stocks.GetAll()
	require.NoError(t, err)

	srcTickers := tickersOf(srcAll)
	dstTickers := tickersOf(dstAll)
	assert.Equal(t, srcTickers, dstTickers)

	// Flags and thesis survive the trip.
	imported, err := dst.Get("AAPL")
	require.NoError(t, err)
	require.NotNil(t, imported.Thesis)
	assert.Equal(t, "Services gross margin story", *imported.Thesis)

	toyota, err := dst.Get("7203.T")
	require.NoError(t, err)
	assert.False(t, toyota.Active)

	// Re-importing skips everything.
	result, err = dst.Import(*payload)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Added)
	assert.Equal(t, 3, result.Skipped)
}

func TestImportEmptyPayloadRejected(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Import(ExportPayload{Version: 1})
	assert.Equal(t, domain.KindValidationFailed, domain.KindOf(err))
}

func TestPriceAlertLifecycle(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Add("NVDA", "NVIDIA", domain.CategoryGrowth, false)
	require.NoError(t, err)

	alert, err := svc.AddAlert("NVDA", AlertBelow, 90)
	require.NoError(t, err)
	assert.True(t, alert.Active)
	assert.Equal(t, AlertBelow, alert.Kind)

	alerts, err := svc.Alerts("NVDA")
	require.NoError(t, err)
	require.Len(t, alerts, 1)

	require.NoError(t, svc.DeleteAlert(alert.ID))

	err = svc.DeleteAlert(alert.ID)
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))
}

func TestAddAlertValidation(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Add("NVDA", "NVIDIA", domain.CategoryGrowth, false)
	require.NoError(t, err)

	_, err = svc.AddAlert("NVDA", AlertKind("sideways"), 90)
	assert.Equal(t, domain.KindValidationFailed, domain.KindOf(err))

	_, err = svc.AddAlert("NVDA", AlertAbove, 0)
	assert.Equal(t, domain.KindValidationFailed, domain.KindOf(err))

	_, err = svc.AddAlert("GHOST", AlertAbove, 100)
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))
}

func TestMarkTriggeredDeactivates(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAlertRepository(db, nil, zerolog.Nop())

	id, err := repo.Create("NVDA", AlertAbove, 150)
	require.NoError(t, err)

	active, err := repo.GetActive()
	require.NoError(t, err)
	require.Len(t, active, 1)

	require.NoError(t, repo.MarkTriggered(id, time.Date(2025, 6, 2, 15, 0, 0, 0, time.UTC)))

	active, err = repo.GetActive()
	require.NoError(t, err)
	assert.Empty(t, active)

	alert, err := repo.Get(id)
	require.NoError(t, err)
	require.NotNil(t, alert)
	assert.NotNil(t, alert.TriggeredAt)
}

func tickersOf(stocks []Stock) []string {
	out := make([]string, 0, len(stocks))
	for _, s := range stocks {
		out = append(out, s.Ticker)
	}
	sort.Strings(out)
	return out
}
