package cache

import "time"

// Namespace fixes the TTL pair and the negative-lookup label for one class
// of cached data. TTLs are set at construction and never vary per entry.
type Namespace struct {
	Name     string
	L1TTL    time.Duration
	L2TTL    time.Duration
	Sentinel string // diagnostic label stored with negative entries
}

// Key builds the fabric key for an identifier within the namespace.
func (ns Namespace) Key(id string) string { return ns.Name + ":" + id }

// Registered namespaces. Grouped by how volatile the underlying data is:
// prices and signals churn intraday, fundamentals move quarterly, sector
// classification almost never changes.
var (
	// Intraday
	NSSignals   = Namespace{Name: "signals", L1TTL: 5 * time.Minute, L2TTL: time.Hour, Sentinel: "NO_SIGNALS"}
	NSHistory   = Namespace{Name: "history", L1TTL: 15 * time.Minute, L2TTL: 2 * time.Hour, Sentinel: "NO_HISTORY"}
	NSFearGreed = Namespace{Name: "fear_greed", L1TTL: 30 * time.Minute, L2TTL: 2 * time.Hour, Sentinel: "NO_FEAR_GREED"}
	NSFXShort   = Namespace{Name: "fx_short", L1TTL: 2 * time.Hour, L2TTL: 4 * time.Hour, Sentinel: "NO_FX"}

	// Daily to quarterly
	NSFXLong      = Namespace{Name: "fx_long", L1TTL: 6 * time.Hour, L2TTL: 24 * time.Hour, Sentinel: "NO_FX"}
	NSMoat        = Namespace{Name: "moat", L1TTL: time.Hour, L2TTL: 24 * time.Hour, Sentinel: "NO_MOAT"}
	NSETFHoldings = Namespace{Name: "etf_holdings", L1TTL: time.Hour, L2TTL: 24 * time.Hour, Sentinel: "NO_HOLDINGS"}
	NSETFWeights  = Namespace{Name: "etf_weights", L1TTL: time.Hour, L2TTL: 24 * time.Hour, Sentinel: "NO_WEIGHTS"}
	NSEarnings    = Namespace{Name: "earnings", L1TTL: 12 * time.Hour, L2TTL: 48 * time.Hour, Sentinel: "NO_EARNINGS"}
	NSDividend    = Namespace{Name: "dividend", L1TTL: 12 * time.Hour, L2TTL: 48 * time.Hour, Sentinel: "NO_DIVIDEND"}
	NSBeta        = Namespace{Name: "beta", L1TTL: 24 * time.Hour, L2TTL: 7 * 24 * time.Hour, Sentinel: "NO_BETA"}

	// Near-static
	NSSector = Namespace{Name: "sector", L1TTL: 7 * 24 * time.Hour, L2TTL: 30 * 24 * time.Hour, Sentinel: "SECTOR_NOT_FOUND"}
)

// Namespaces lists every registered namespace.
var Namespaces = []Namespace{
	NSSignals,
	NSHistory,
	NSFearGreed,
	NSFXShort,
	NSFXLong,
	NSMoat,
	NSETFHoldings,
	NSETFWeights,
	NSEarnings,
	NSDividend,
	NSBeta,
	NSSector,
}
