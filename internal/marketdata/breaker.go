package marketdata

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/aristath/folio/internal/metrics"
)

const (
	breakerTripThreshold = 3
	breakerCooldown      = 30 * time.Minute
)

// Breaker guards a secondary provider. Three consecutive failures open it
// for the cool-down; while open the provider reports itself unavailable and
// callers fall through silently. A single half-open success closes it.
type Breaker struct {
	cb *gobreaker.CircuitBreaker
}

func newBreaker(name string, m *metrics.Metrics, log zerolog.Logger) *Breaker {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1, // one half-open probe
		Timeout:     breakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerTripThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("provider", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state change")
			if m != nil {
				m.BreakerState.WithLabelValues(name).Set(breakerStateValue(to))
			}
		},
	}
	return &Breaker{cb: gobreaker.NewCircuitBreaker(settings)}
}

// Execute runs fn under the breaker. When open it returns
// gobreaker.ErrOpenState without calling fn.
func (b *Breaker) Execute(fn func() (interface{}, error)) (interface{}, error) {
	return b.cb.Execute(fn)
}

// Available reports whether calls may currently reach the provider.
func (b *Breaker) Available() bool {
	return b.cb.State() != gobreaker.StateOpen
}

func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	default:
		return 2
	}
}
