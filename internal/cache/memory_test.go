package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func valueAt(clock *fakeClock) Entry {
	return Entry{Kind: KindValue, Payload: []byte{0xc0}, StoredAt: clock.Now().Unix()}
}

func TestMemoryStoreEvictsExpiredFirst(t *testing.T) {
	clock := newFakeClock()
	m := newMemoryStore(2, clock)

	m.set("signals:OLD", valueAt(clock), time.Minute)
	m.set("signals:KEEP", valueAt(clock), time.Hour)

	// OLD expires, KEEP does not.
	clock.advance(5 * time.Minute)

	m.set("signals:NEW", valueAt(clock), time.Hour)

	_, ok := m.get("signals:OLD")
	assert.False(t, ok)
	_, ok = m.get("signals:KEEP")
	assert.True(t, ok)
	_, ok = m.get("signals:NEW")
	assert.True(t, ok)
}

func TestMemoryStoreEvictsOldestWhenNoneExpired(t *testing.T) {
	clock := newFakeClock()
	m := newMemoryStore(2, clock)

	m.set("signals:FIRST", valueAt(clock), time.Hour)
	clock.advance(time.Second)
	m.set("signals:SECOND", valueAt(clock), time.Hour)
	clock.advance(time.Second)
	m.set("signals:THIRD", valueAt(clock), time.Hour)

	_, ok := m.get("signals:FIRST")
	assert.False(t, ok, "oldest stored entry should be evicted")
	_, ok = m.get("signals:SECOND")
	assert.True(t, ok)
	_, ok = m.get("signals:THIRD")
	assert.True(t, ok)
	assert.Equal(t, 2, m.len())
}

func TestMemoryStoreOverwriteDoesNotEvict(t *testing.T) {
	clock := newFakeClock()
	m := newMemoryStore(2, clock)

	m.set("signals:A", valueAt(clock), time.Hour)
	m.set("signals:B", valueAt(clock), time.Hour)
	m.set("signals:A", valueAt(clock), time.Hour)

	assert.Equal(t, 2, m.len())
	_, ok := m.get("signals:B")
	assert.True(t, ok)
}

func TestMemoryStoreDeletePrefix(t *testing.T) {
	clock := newFakeClock()
	m := newMemoryStore(0, clock)

	m.set("signals:AAPL", valueAt(clock), time.Hour)
	m.set("signals:MSFT", valueAt(clock), time.Hour)
	m.set("sector:AAPL", valueAt(clock), time.Hour)

	require.Equal(t, 2, m.deletePrefix("signals:"))
	assert.Equal(t, 1, m.len())
	_, ok := m.get("sector:AAPL")
	assert.True(t, ok)
}

func TestMemoryStoreSweep(t *testing.T) {
	clock := newFakeClock()
	m := newMemoryStore(0, clock)

	m.set("signals:A", valueAt(clock), time.Minute)
	m.set("sector:B", valueAt(clock), time.Hour)

	clock.advance(2 * time.Minute)

	assert.Equal(t, 1, m.sweep())
	assert.Equal(t, 1, m.len())
}
