package cache

import (
	"strings"
	"sync"
	"time"

	"github.com/aristath/folio/internal/domain"
)

// memoryStore is the bounded in-process tier. A single RWMutex guards the
// map; expiry is checked on read and reclaimed by Sweep or by eviction when
// the store is full.
type memoryStore struct {
	mu         sync.RWMutex
	items      map[string]memoryItem
	maxEntries int
	clock      domain.Clock
}

type memoryItem struct {
	entry     Entry
	expiresAt time.Time
}

func newMemoryStore(maxEntries int, clock domain.Clock) *memoryStore {
	if maxEntries <= 0 {
		maxEntries = 8192
	}
	return &memoryStore{
		items:      make(map[string]memoryItem),
		maxEntries: maxEntries,
		clock:      clock,
	}
}

func (m *memoryStore) get(key string) (Entry, bool) {
	m.mu.RLock()
	item, ok := m.items[key]
	m.mu.RUnlock()

	if !ok || m.clock.Now().After(item.expiresAt) {
		return Entry{}, false
	}
	return item.entry, true
}

func (m *memoryStore) set(key string, entry Entry, ttl time.Duration) {
	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.items[key]; !exists && len(m.items) >= m.maxEntries {
		m.evictLocked(now)
	}

	m.items[key] = memoryItem{entry: entry, expiresAt: now.Add(ttl)}
}

// evictLocked frees one slot: expired items first, otherwise the oldest
// stored entry. Caller holds the write lock.
func (m *memoryStore) evictLocked(now time.Time) {
	removed := false
	for key, item := range m.items {
		if now.After(item.expiresAt) {
			delete(m.items, key)
			removed = true
		}
	}
	if removed {
		return
	}

	var oldestKey string
	var oldestAt int64
	for key, item := range m.items {
		if oldestKey == "" || item.entry.StoredAt < oldestAt {
			oldestKey = key
			oldestAt = item.entry.StoredAt
		}
	}
	if oldestKey != "" {
		delete(m.items, oldestKey)
	}
}

func (m *memoryStore) delete(key string) {
	m.mu.Lock()
	delete(m.items, key)
	m.mu.Unlock()
}

func (m *memoryStore) deletePrefix(prefix string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key := range m.items {
		if strings.HasPrefix(key, prefix) {
			delete(m.items, key)
			removed++
		}
	}
	return removed
}

func (m *memoryStore) clear() {
	m.mu.Lock()
	m.items = make(map[string]memoryItem)
	m.mu.Unlock()
}

// sweep removes every expired item and reports how many were reclaimed.
func (m *memoryStore) sweep() int {
	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key, item := range m.items {
		if now.After(item.expiresAt) {
			delete(m.items, key)
			removed++
		}
	}
	return removed
}

func (m *memoryStore) len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}
