// Package flight deduplicates concurrent upstream fetches. When several
// callers want the same key at the same time, one runs the fetcher and the
// rest wait and share its result, so a thundering herd costs one upstream
// call instead of one per caller.
package flight

import (
	"golang.org/x/sync/singleflight"

	"github.com/aristath/folio/internal/metrics"
)

// Group coordinates in-flight fetches. The zero value is not usable; use New.
type Group struct {
	sf      singleflight.Group
	metrics *metrics.Metrics
}

// New creates a dedup group. metrics may be nil.
func New(m *metrics.Metrics) *Group {
	return &Group{metrics: m}
}

// Do runs fn for namespace:id unless a fetch for the same key is already in
// flight, in which case the caller blocks and receives that fetch's value.
// joined reports whether this caller piggybacked on another caller's fetch
// rather than running fn itself. Errors from fn propagate to every caller
// sharing the flight.
func (g *Group) Do(namespace, id string, fn func() (interface{}, error)) (v interface{}, err error, joined bool) {
	ran := false
	v, err, _ = g.sf.Do(namespace+":"+id, func() (interface{}, error) {
		ran = true
		return fn()
	})

	joined = !ran
	if joined && g.metrics != nil {
		g.metrics.FlightShared.WithLabelValues(namespace).Inc()
	}
	return v, err, joined
}

// Forget drops the in-flight slot for namespace:id so the next Do runs the
// fetcher again even if an earlier flight is still completing. Used after
// invalidation to avoid handing out a stale shared result.
func (g *Group) Forget(namespace, id string) {
	g.sf.Forget(namespace + ":" + id)
}
