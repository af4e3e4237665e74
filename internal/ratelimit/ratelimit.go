// Package ratelimit spaces calls to upstream providers. Each provider gets
// a gate enforcing a minimum interval between consecutive requests; callers
// block until their slot comes up.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Provider gate names.
const (
	Yahoo     = "yahoo"
	JPFin     = "jpfin"
	TWFin     = "twfin"
	Edgar     = "edgar"
	FearGreed = "feargreed"
	Telegram  = "telegram"
)

// providerIntervals fixes the minimum spacing per provider. These reflect
// the documented or observed tolerance of each upstream, not our own needs.
var providerIntervals = map[string]time.Duration{
	Yahoo:     200 * time.Millisecond,
	JPFin:     500 * time.Millisecond,
	TWFin:     500 * time.Millisecond,
	Edgar:     150 * time.Millisecond,
	FearGreed: time.Second,
	Telegram:  time.Second,
}

// defaultInterval applies to gates requested under an unregistered name.
const defaultInterval = time.Second

// Gate enforces a minimum interval between calls. Burst is one: the first
// caller passes immediately, each subsequent caller waits out the interval.
type Gate struct {
	limiter *rate.Limiter
}

// NewGate builds a standalone gate with the given spacing.
func NewGate(minInterval time.Duration) *Gate {
	return &Gate{limiter: rate.NewLimiter(rate.Every(minInterval), 1)}
}

// Wait blocks until the caller may proceed or ctx is done.
func (g *Gate) Wait(ctx context.Context) error {
	return g.limiter.Wait(ctx)
}

// Registry holds one gate per provider so every code path spacing calls to
// the same upstream shares the same clock.
type Registry struct {
	mu    sync.Mutex
	gates map[string]*Gate
}

// NewRegistry builds the registry with all known provider gates installed.
func NewRegistry() *Registry {
	return NewRegistryWith(nil)
}

// NewRegistryWith builds the registry with per-provider spacing overrides.
// A zero override disables spacing for that provider.
func NewRegistryWith(overrides map[string]time.Duration) *Registry {
	gates := make(map[string]*Gate, len(providerIntervals))
	for name, interval := range providerIntervals {
		if o, ok := overrides[name]; ok {
			interval = o
		}
		gates[name] = NewGate(interval)
	}
	return &Registry{gates: gates}
}

// Gate returns the shared gate for a provider, creating a conservatively
// spaced one for names registered nowhere.
func (r *Registry) Gate(name string) *Gate {
	r.mu.Lock()
	defer r.mu.Unlock()

	if g, ok := r.gates[name]; ok {
		return g
	}
	g := NewGate(defaultInterval)
	r.gates[name] = g
	return g
}
