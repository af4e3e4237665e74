// Package cache implements the two-tier cache fabric: a bounded in-process
// L1 with short TTLs in front of a persistent Badger L2 with longer TTLs.
// Negative lookups are first-class entries so repeated misses never reach
// the upstream inside a TTL window.
package cache

import (
	"github.com/rs/zerolog"

	"github.com/aristath/folio/internal/domain"
	"github.com/aristath/folio/internal/metrics"
)

// Lookup is the outcome of a fabric read.
type Lookup int

const (
	// Miss - key absent from both tiers (never looked up, or expired).
	Miss Lookup = iota
	// Hit - a value entry was found and decoded into dest.
	Hit
	// Negative - the upstream was already consulted and had nothing.
	Negative
)

// Options configures the fabric.
type Options struct {
	DiskDir      string // empty disables the disk tier
	MaxL1Entries int
	Clock        domain.Clock
	Metrics      *metrics.Metrics
	Logger       zerolog.Logger
}

// Fabric is the two-tier cache. All methods are safe for concurrent use.
type Fabric struct {
	l1      *memoryStore
	l2      *diskStore // nil when the disk tier is disabled or failed to open
	clock   domain.Clock
	metrics *metrics.Metrics
	log     zerolog.Logger
}

// New builds the fabric. A disk tier that fails to open is logged and
// dropped; the fabric then runs L1-only rather than failing the boot.
func New(opts Options) *Fabric {
	clock := opts.Clock
	if clock == nil {
		clock = domain.RealClock{}
	}

	log := opts.Logger.With().Str("component", "cache_fabric").Logger()

	f := &Fabric{
		l1:      newMemoryStore(opts.MaxL1Entries, clock),
		clock:   clock,
		metrics: opts.Metrics,
		log:     log,
	}

	if opts.DiskDir != "" {
		disk, err := openDiskStore(opts.DiskDir, log)
		if err != nil {
			log.Error().Err(err).Str("dir", opts.DiskDir).Msg("disk tier unavailable, running L1-only")
		} else {
			f.l2 = disk
		}
	}

	return f
}

// Get reads ns:id, L1 first, then the disk tier. Disk hits are promoted to
// L1 with the namespace L1 TTL. On Hit the payload is decoded into dest;
// dest may be nil when the caller only needs the outcome. Undecodable
// entries are dropped and reported as a miss.
func (f *Fabric) Get(ns Namespace, id string, dest interface{}) Lookup {
	key := ns.Key(id)

	if entry, ok := f.l1.get(key); ok {
		if outcome, ok := f.resolve(ns, id, entry, dest); ok {
			f.observe(ns, "l1", outcome)
			return outcome
		}
	}

	if f.l2 != nil {
		if entry, ok := f.l2.get(key); ok {
			if outcome, ok := f.resolve(ns, id, entry, dest); ok {
				f.l1.set(key, entry, ns.L1TTL)
				f.observe(ns, "l2", outcome)
				return outcome
			}
		}
	}

	f.observe(ns, "none", Miss)
	return Miss
}

// resolve maps an entry to a lookup outcome, decoding value payloads.
func (f *Fabric) resolve(ns Namespace, id string, entry Entry, dest interface{}) (Lookup, bool) {
	if entry.Negative() {
		return Negative, true
	}
	if dest == nil {
		return Hit, true
	}
	if err := entry.Decode(dest); err != nil {
		f.log.Warn().Err(err).Str("key", ns.Key(id)).Msg("undecodable cache entry, dropping")
		f.Invalidate(ns, id)
		return Miss, false
	}
	return Hit, true
}

// Put writes a value entry to both tiers.
func (f *Fabric) Put(ns Namespace, id string, value interface{}) error {
	entry, err := newValueEntry(value, f.clock.Now().Unix())
	if err != nil {
		return err
	}
	f.store(ns, id, entry)
	return nil
}

// PutNegative records that the upstream was consulted for ns:id and had
// nothing, using the namespace sentinel label.
func (f *Fabric) PutNegative(ns Namespace, id string) {
	f.store(ns, id, newNegativeEntry(ns.Sentinel, f.clock.Now().Unix()))
}

func (f *Fabric) store(ns Namespace, id string, entry Entry) {
	key := ns.Key(id)
	f.l1.set(key, entry, ns.L1TTL)
	if f.l2 != nil {
		f.l2.set(key, entry, ns.L2TTL)
	}
}

// BulkGet reads many identifiers in one pass and returns the entries that
// were found (value or negative). Missing keys are simply absent from the
// result map.
func (f *Fabric) BulkGet(ns Namespace, ids []string) map[string]Entry {
	found := make(map[string]Entry, len(ids))

	var missing []string
	for _, id := range ids {
		if entry, ok := f.l1.get(ns.Key(id)); ok {
			found[id] = entry
			f.observe(ns, "l1", entryOutcome(entry))
		} else {
			missing = append(missing, id)
		}
	}

	if f.l2 == nil {
		for range missing {
			f.observe(ns, "none", Miss)
		}
		return found
	}

	for _, id := range missing {
		key := ns.Key(id)
		if entry, ok := f.l2.get(key); ok {
			f.l1.set(key, entry, ns.L1TTL)
			found[id] = entry
			f.observe(ns, "l2", entryOutcome(entry))
		} else {
			f.observe(ns, "none", Miss)
		}
	}
	return found
}

// Invalidate removes ns:id from both tiers.
func (f *Fabric) Invalidate(ns Namespace, id string) {
	key := ns.Key(id)
	f.l1.delete(key)
	if f.l2 != nil {
		f.l2.delete(key)
	}
}

// InvalidateNamespace removes every entry of the namespace from both tiers.
func (f *Fabric) InvalidateNamespace(ns Namespace) int {
	prefix := ns.Name + ":"
	removed := f.l1.deletePrefix(prefix)
	if f.l2 != nil {
		removed += f.l2.deletePrefix(prefix)
	}
	return removed
}

// InvalidateTicker removes the per-ticker entries across the given
// namespaces, typically after a watchlist edit.
func (f *Fabric) InvalidateTicker(ticker string, namespaces ...Namespace) {
	for _, ns := range namespaces {
		f.Invalidate(ns, ticker)
	}
}

// InvalidateMatching removes every entry of the namespace whose identifier
// starts with idPrefix. Used for composite identifiers such as
// "AAPL|1y" where the exact suffix set is open-ended.
func (f *Fabric) InvalidateMatching(ns Namespace, idPrefix string) int {
	prefix := ns.Key(idPrefix)
	removed := f.l1.deletePrefix(prefix)
	if f.l2 != nil {
		removed += f.l2.deletePrefix(prefix)
	}
	return removed
}

// Clear empties both tiers.
func (f *Fabric) Clear() {
	f.l1.clear()
	if f.l2 != nil {
		f.l2.clear()
	}
}

// Sweep reclaims expired L1 entries and runs the disk value-log GC. Wired
// to the hourly cache-cleanup job.
func (f *Fabric) Sweep() int {
	removed := f.l1.sweep()
	if f.l2 != nil {
		f.l2.gc()
	}
	return removed
}

// Stats summarizes fabric occupancy for the status endpoint.
type FabricStats struct {
	L1Entries    int   `json:"l1_entries"`
	DiskLSMBytes int64 `json:"disk_lsm_bytes"`
	DiskLogBytes int64 `json:"disk_log_bytes"`
	DiskEnabled  bool  `json:"disk_enabled"`
}

// Stats reports current occupancy.
func (f *Fabric) Stats() FabricStats {
	stats := FabricStats{L1Entries: f.l1.len(), DiskEnabled: f.l2 != nil}
	if f.l2 != nil {
		stats.DiskLSMBytes, stats.DiskLogBytes = f.l2.sizes()
	}
	return stats
}

// Close releases the disk tier.
func (f *Fabric) Close() error {
	if f.l2 != nil {
		return f.l2.close()
	}
	return nil
}

func entryOutcome(entry Entry) Lookup {
	if entry.Negative() {
		return Negative
	}
	return Hit
}

func (f *Fabric) observe(ns Namespace, tier string, outcome Lookup) {
	if f.metrics == nil {
		return
	}
	label := "miss"
	switch outcome {
	case Hit:
		label = "hit"
	case Negative:
		label = "negative"
	}
	f.metrics.CacheRequests.WithLabelValues(ns.Name, tier, label).Inc()
}
