package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/folio/internal/metrics"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 2, 9, 30, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type testPayload struct {
	Ticker string  `msgpack:"ticker"`
	Price  float64 `msgpack:"price"`
}

func newTestFabric(t *testing.T, clock *fakeClock) *Fabric {
	t.Helper()
	f := New(Options{
		DiskDir: t.TempDir(),
		Clock:   clock,
		Logger:  zerolog.Nop(),
	})
	require.True(t, f.Stats().DiskEnabled, "disk tier should open in temp dir")
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func TestFabricHitMissNegative(t *testing.T) {
	f := newTestFabric(t, newFakeClock())

	var out testPayload
	assert.Equal(t, Miss, f.Get(NSSignals, "AAPL", &out))

	require.NoError(t, f.Put(NSSignals, "AAPL", testPayload{Ticker: "AAPL", Price: 187.5}))
	assert.Equal(t, Hit, f.Get(NSSignals, "AAPL", &out))
	assert.Equal(t, "AAPL", out.Ticker)
	assert.InDelta(t, 187.5, out.Price, 1e-9)

	f.PutNegative(NSETFWeights, "AAPL")
	assert.Equal(t, Negative, f.Get(NSETFWeights, "AAPL", &out))
}

func TestFabricNilDest(t *testing.T) {
	f := newTestFabric(t, newFakeClock())

	require.NoError(t, f.Put(NSSector, "MSFT", "Information Technology"))
	assert.Equal(t, Hit, f.Get(NSSector, "MSFT", nil))
	assert.Equal(t, Miss, f.Get(NSSector, "GOOG", nil))
}

func TestFabricDiskPromotion(t *testing.T) {
	f := newTestFabric(t, newFakeClock())

	require.NoError(t, f.Put(NSHistory, "VT", testPayload{Ticker: "VT", Price: 112.0}))

	// Drop the memory tier to force the read through the disk tier.
	f.l1.clear()
	require.Equal(t, 0, f.l1.len())

	var out testPayload
	assert.Equal(t, Hit, f.Get(NSHistory, "VT", &out))
	assert.Equal(t, "VT", out.Ticker)
	assert.Equal(t, 1, f.l1.len(), "disk hit should be promoted")

	// Second read is served from memory again.
	assert.Equal(t, Hit, f.Get(NSHistory, "VT", &out))
}

func TestFabricMemoryExpiry(t *testing.T) {
	clock := newFakeClock()
	f := New(Options{Clock: clock, Logger: zerolog.Nop()}) // L1-only

	require.NoError(t, f.Put(NSSignals, "AAPL", testPayload{Ticker: "AAPL", Price: 1}))

	var out testPayload
	assert.Equal(t, Hit, f.Get(NSSignals, "AAPL", &out))

	clock.advance(NSSignals.L1TTL + time.Second)
	assert.Equal(t, Miss, f.Get(NSSignals, "AAPL", &out))
}

func TestFabricInvalidate(t *testing.T) {
	f := newTestFabric(t, newFakeClock())

	require.NoError(t, f.Put(NSMoat, "9984.T", testPayload{Ticker: "9984.T", Price: 40}))
	f.Invalidate(NSMoat, "9984.T")

	var out testPayload
	assert.Equal(t, Miss, f.Get(NSMoat, "9984.T", &out))
}

func TestFabricInvalidateNamespace(t *testing.T) {
	f := newTestFabric(t, newFakeClock())

	require.NoError(t, f.Put(NSSignals, "AAPL", testPayload{Ticker: "AAPL"}))
	require.NoError(t, f.Put(NSSignals, "MSFT", testPayload{Ticker: "MSFT"}))
	require.NoError(t, f.Put(NSSector, "AAPL", "Information Technology"))

	removed := f.InvalidateNamespace(NSSignals)
	assert.Equal(t, 4, removed, "two entries across two tiers")

	var out testPayload
	assert.Equal(t, Miss, f.Get(NSSignals, "AAPL", &out))
	assert.Equal(t, Miss, f.Get(NSSignals, "MSFT", &out))

	var sector string
	assert.Equal(t, Hit, f.Get(NSSector, "AAPL", &sector))
	assert.Equal(t, "Information Technology", sector)
}

func TestFabricInvalidateTicker(t *testing.T) {
	f := newTestFabric(t, newFakeClock())

	require.NoError(t, f.Put(NSSignals, "AAPL", testPayload{Ticker: "AAPL"}))
	require.NoError(t, f.Put(NSMoat, "AAPL", testPayload{Ticker: "AAPL"}))
	require.NoError(t, f.Put(NSSignals, "MSFT", testPayload{Ticker: "MSFT"}))

	f.InvalidateTicker("AAPL", NSSignals, NSMoat)

	var out testPayload
	assert.Equal(t, Miss, f.Get(NSSignals, "AAPL", &out))
	assert.Equal(t, Miss, f.Get(NSMoat, "AAPL", &out))
	assert.Equal(t, Hit, f.Get(NSSignals, "MSFT", &out))
}

func TestFabricBulkGet(t *testing.T) {
	f := newTestFabric(t, newFakeClock())

	require.NoError(t, f.Put(NSSignals, "AAPL", testPayload{Ticker: "AAPL", Price: 187.5}))
	f.PutNegative(NSSignals, "DELISTED")

	found := f.BulkGet(NSSignals, []string{"AAPL", "DELISTED", "MSFT"})
	require.Len(t, found, 2)

	require.Contains(t, found, "AAPL")
	assert.False(t, found["AAPL"].Negative())
	var out testPayload
	require.NoError(t, found["AAPL"].Decode(&out))
	assert.Equal(t, "AAPL", out.Ticker)

	require.Contains(t, found, "DELISTED")
	assert.True(t, found["DELISTED"].Negative())
	assert.Equal(t, "NO_SIGNALS", found["DELISTED"].Sentinel)

	assert.NotContains(t, found, "MSFT")
}

func TestFabricBulkGetPromotesFromDisk(t *testing.T) {
	f := newTestFabric(t, newFakeClock())

	require.NoError(t, f.Put(NSHistory, "EWJ", testPayload{Ticker: "EWJ"}))
	require.NoError(t, f.Put(NSHistory, "EWT", testPayload{Ticker: "EWT"}))
	f.l1.clear()

	found := f.BulkGet(NSHistory, []string{"EWJ", "EWT"})
	assert.Len(t, found, 2)
	assert.Equal(t, 2, f.l1.len())
}

func TestFabricClearAndStats(t *testing.T) {
	f := newTestFabric(t, newFakeClock())

	require.NoError(t, f.Put(NSSignals, "AAPL", testPayload{Ticker: "AAPL"}))
	require.NoError(t, f.Put(NSSector, "AAPL", "Information Technology"))

	stats := f.Stats()
	assert.Equal(t, 2, stats.L1Entries)
	assert.True(t, stats.DiskEnabled)

	f.Clear()
	assert.Equal(t, 0, f.Stats().L1Entries)

	var out testPayload
	assert.Equal(t, Miss, f.Get(NSSignals, "AAPL", &out))
}

func TestFabricL1OnlyDegraded(t *testing.T) {
	f := New(Options{Clock: newFakeClock(), Logger: zerolog.Nop()})

	require.NoError(t, f.Put(NSSignals, "AAPL", testPayload{Ticker: "AAPL"}))

	var out testPayload
	assert.Equal(t, Hit, f.Get(NSSignals, "AAPL", &out))
	assert.False(t, f.Stats().DiskEnabled)
	assert.NoError(t, f.Close())
}

func TestFabricSweep(t *testing.T) {
	clock := newFakeClock()
	f := New(Options{Clock: clock, Logger: zerolog.Nop()})

	require.NoError(t, f.Put(NSSignals, "AAPL", testPayload{Ticker: "AAPL"})) // 5m TTL
	require.NoError(t, f.Put(NSSector, "AAPL", "Information Technology"))    // 7d TTL

	clock.advance(10 * time.Minute)
	assert.Equal(t, 1, f.Sweep())
	assert.Equal(t, 1, f.Stats().L1Entries)
}

func TestFabricRecordsMetrics(t *testing.T) {
	m := metrics.New()
	f := New(Options{Clock: newFakeClock(), Metrics: m, Logger: zerolog.Nop()})

	var out testPayload
	f.Get(NSSignals, "AAPL", &out)
	require.NoError(t, f.Put(NSSignals, "AAPL", testPayload{Ticker: "AAPL"}))
	f.Get(NSSignals, "AAPL", &out)
	f.PutNegative(NSSignals, "MSFT")
	f.Get(NSSignals, "MSFT", &out)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheRequests.WithLabelValues("signals", "none", "miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheRequests.WithLabelValues("signals", "l1", "hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheRequests.WithLabelValues("signals", "l1", "negative")))
}

func TestEntryDecodeNegative(t *testing.T) {
	entry := newNegativeEntry("NO_SIGNALS", 0)
	var out testPayload
	assert.Error(t, entry.Decode(&out))
}

func TestNamespaceKeysAreDistinct(t *testing.T) {
	seen := make(map[string]bool)
	for _, ns := range Namespaces {
		assert.False(t, seen[ns.Name], "duplicate namespace %s", ns.Name)
		seen[ns.Name] = true
		assert.NotEmpty(t, ns.Sentinel)
		assert.Less(t, ns.L1TTL, ns.L2TTL, "%s memory TTL must be shorter", ns.Name)
	}
}
