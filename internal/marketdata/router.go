// Package marketdata routes semantic market-data requests: cache fabric
// first, then an in-flight dedup slot, then the provider behind its rate
// gate, normalizing results and writing them (or the namespace sentinel)
// back through the fabric. Upstream failures degrade to structured empty
// results; they never propagate as errors to read paths.
package marketdata

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/aristath/folio/internal/cache"
	"github.com/aristath/folio/internal/domain"
	"github.com/aristath/folio/internal/flight"
	"github.com/aristath/folio/internal/metrics"
	"github.com/aristath/folio/internal/ratelimit"
)

const (
	signalRange = "1y"
	fxLongRange = "1y"

	sourcePrimary = "yahoo"
	sourceJPFin   = "jpfin"
	sourceTWFin   = "twfin"
)

// errNoData marks a resolved lookup with nothing behind it; waiters sharing
// the flight map it to a negative outcome.
var errNoData = errors.New("upstream has no data")

// Router owns provider selection, rate gates, dedup and cache policy.
type Router struct {
	fabric  *cache.Fabric
	flight  *flight.Group
	gates   *ratelimit.Registry
	metrics *metrics.Metrics
	log     zerolog.Logger
	clock   domain.Clock

	primary  PrimaryProvider
	jpfin    StatementsProvider
	twfin    StatementsProvider
	filings  FilingsProvider
	external SentimentProvider

	jpBreaker *Breaker
	twBreaker *Breaker
}

// RouterOptions carries the router's collaborators. Fabric, Flight, Gates
// and Primary are required; the rest may be nil.
type RouterOptions struct {
	Fabric   *cache.Fabric
	Flight   *flight.Group
	Gates    *ratelimit.Registry
	Metrics  *metrics.Metrics
	Logger   zerolog.Logger
	Clock    domain.Clock
	Primary  PrimaryProvider
	JPFin    StatementsProvider
	TWFin    StatementsProvider
	Filings  FilingsProvider
	External SentimentProvider
}

// NewRouter builds the router and the breakers guarding the statement
// fallbacks.
func NewRouter(opts RouterOptions) *Router {
	clock := opts.Clock
	if clock == nil {
		clock = domain.RealClock{}
	}
	log := opts.Logger.With().Str("component", "marketdata").Logger()

	return &Router{
		fabric:    opts.Fabric,
		flight:    opts.Flight,
		gates:     opts.Gates,
		metrics:   opts.Metrics,
		log:       log,
		clock:     clock,
		primary:   opts.Primary,
		jpfin:     opts.JPFin,
		twfin:     opts.TWFin,
		filings:   opts.Filings,
		external:  opts.External,
		jpBreaker: newBreaker(sourceJPFin, opts.Metrics, log),
		twBreaker: newBreaker(sourceTWFin, opts.Metrics, log),
	}
}

// fetchThrough is the shared read path: fabric, then one deduped
// rate-limited fetch, then a fabric write (value or sentinel). The outcome
// is Hit with a value, Negative for a resolved nothing-there, or Miss when
// the upstream degraded and nothing was cached.
func fetchThrough[T any](r *Router, ctx context.Context, ns cache.Namespace, id, gateName, capability string, fetch func(context.Context) (T, error)) (T, cache.Lookup) {
	var cached T
	switch r.fabric.Get(ns, id, &cached) {
	case cache.Hit:
		return cached, cache.Hit
	case cache.Negative:
		var zero T
		return zero, cache.Negative
	}

	v, err, _ := r.flight.Do(ns.Name, id, func() (interface{}, error) {
		if err := r.gates.Gate(gateName).Wait(ctx); err != nil {
			return nil, err
		}
		value, err := fetch(ctx)
		r.observeUpstream(gateName, capability, err)
		if err != nil {
			if domain.KindOf(err) == domain.KindNotFound {
				r.fabric.PutNegative(ns, id)
				return nil, errNoData
			}
			return nil, err
		}
		if err := r.fabric.Put(ns, id, value); err != nil {
			r.log.Warn().Err(err).Str("namespace", ns.Name).Str("id", id).Msg("cache write failed")
		}
		return value, nil
	})

	if err != nil {
		var zero T
		if errors.Is(err, errNoData) {
			return zero, cache.Negative
		}
		r.log.Warn().Err(err).Str("namespace", ns.Name).Str("id", id).Msg("upstream fetch degraded")
		return zero, cache.Miss
	}

	typed, ok := v.(T)
	if !ok {
		var zero T
		return zero, cache.Miss
	}
	return typed, cache.Hit
}

// Signals returns the technical record for a ticker. The result is never
// nil: unknown tickers and too-short series carry the namespace sentinel,
// upstream failures a transient error marker.
func (r *Router) Signals(ctx context.Context, ticker string) *domain.TechnicalSignals {
	sig, outcome := fetchThrough[domain.TechnicalSignals](r, ctx, cache.NSSignals, ticker, ratelimit.Yahoo, "signals",
		func(ctx context.Context) (domain.TechnicalSignals, error) {
			bars, err := r.primary.DailyHistory(ctx, ticker, signalRange)
			if err != nil {
				return domain.TechnicalSignals{}, err
			}
			if len(bars) < minSignalSessions {
				return domain.TechnicalSignals{}, domain.NotFoundf("history too short for %s", ticker)
			}
			return *BuildSignals(ticker, bars, r.clock.Now()), nil
		})

	switch outcome {
	case cache.Hit:
		return &sig
	case cache.Negative:
		return &domain.TechnicalSignals{Ticker: ticker, Error: cache.NSSignals.Sentinel, Timestamp: r.clock.Now()}
	default:
		return &domain.TechnicalSignals{Ticker: ticker, Error: "upstream unavailable", Timestamp: r.clock.Now()}
	}
}

// History returns daily bars for a ticker over a provider range string
// ("3mo", "1y", ...). Degraded lookups return an empty slice.
func (r *Router) History(ctx context.Context, ticker, rng string) []domain.Bar {
	bars, outcome := fetchThrough[[]domain.Bar](r, ctx, cache.NSHistory, historyID(ticker, rng), ratelimit.Yahoo, "history",
		func(ctx context.Context) ([]domain.Bar, error) {
			return r.primary.DailyHistory(ctx, ticker, rng)
		})
	if outcome == cache.Hit {
		return bars
	}
	return nil
}

// FXHistory returns a year of daily bars for a currency pair ("USDJPY").
func (r *Router) FXHistory(ctx context.Context, pair string) []domain.Bar {
	pair = strings.ToUpper(pair)
	bars, outcome := fetchThrough[[]domain.Bar](r, ctx, cache.NSFXLong, pair, ratelimit.Yahoo, "fx_history",
		func(ctx context.Context) ([]domain.Bar, error) {
			return r.primary.FXDailyHistory(ctx, pair, fxLongRange)
		})
	if outcome == cache.Hit {
		return bars
	}
	return nil
}

// FXRate returns the current conversion rate between two currencies, nil
// when unavailable.
func (r *Router) FXRate(ctx context.Context, from, to string) *float64 {
	from, to = strings.ToUpper(from), strings.ToUpper(to)
	if from == to {
		one := 1.0
		return &one
	}

	pair := from + to
	rate, outcome := fetchThrough[float64](r, ctx, cache.NSFXShort, pair, ratelimit.Yahoo, "fx_rate",
		func(ctx context.Context) (float64, error) {
			q, err := r.primary.Quote(ctx, pair+"=X")
			if err != nil {
				return 0, err
			}
			if q.Price == 0 {
				return 0, domain.NotFoundf("no rate for %s", pair)
			}
			return q.Price, nil
		})
	if outcome == cache.Hit {
		return &rate
	}
	return nil
}

// Sector returns the canonical sector label, "" when unknown.
func (r *Router) Sector(ctx context.Context, ticker string) string {
	sector, outcome := fetchThrough[string](r, ctx, cache.NSSector, ticker, ratelimit.Yahoo, "sector",
		func(ctx context.Context) (string, error) {
			label, err := r.primary.Sector(ctx, ticker)
			if err != nil {
				return "", err
			}
			return NormalizeSector(label), nil
		})
	if outcome == cache.Hit {
		return sector
	}
	return ""
}

// Beta returns the ticker's beta, nil when unavailable.
func (r *Router) Beta(ctx context.Context, ticker string) *float64 {
	beta, outcome := fetchThrough[float64](r, ctx, cache.NSBeta, ticker, ratelimit.Yahoo, "beta",
		func(ctx context.Context) (float64, error) {
			v, err := r.primary.Beta(ctx, ticker)
			if err != nil {
				return 0, err
			}
			return *v, nil
		})
	if outcome == cache.Hit {
		return &beta
	}
	return nil
}

// DividendYield returns the trailing yield in percent, nil when unavailable.
func (r *Router) DividendYield(ctx context.Context, ticker string) *float64 {
	y, outcome := fetchThrough[float64](r, ctx, cache.NSDividend, ticker, ratelimit.Yahoo, "dividend",
		func(ctx context.Context) (float64, error) {
			v, err := r.primary.DividendYield(ctx, ticker)
			if err != nil {
				return 0, err
			}
			return *v, nil
		})
	if outcome == cache.Hit {
		return &y
	}
	return nil
}

// NextEarnings returns the next scheduled earnings event, nil when none is
// known.
func (r *Router) NextEarnings(ctx context.Context, ticker string) *domain.EarningsEvent {
	ev, outcome := fetchThrough[domain.EarningsEvent](r, ctx, cache.NSEarnings, ticker, ratelimit.Yahoo, "earnings",
		func(ctx context.Context) (domain.EarningsEvent, error) {
			v, err := r.primary.NextEarnings(ctx, ticker)
			if err != nil {
				return domain.EarningsEvent{}, err
			}
			return *v, nil
		})
	if outcome == cache.Hit {
		return &ev
	}
	return nil
}

// ETFHoldings returns the fund's constituent rows, nil when unavailable.
func (r *Router) ETFHoldings(ctx context.Context, ticker string) []domain.ETFHolding {
	holdings, outcome := fetchThrough[[]domain.ETFHolding](r, ctx, cache.NSETFHoldings, ticker, ratelimit.Yahoo, "etf_holdings",
		func(ctx context.Context) ([]domain.ETFHolding, error) {
			return r.primary.ETFHoldings(ctx, ticker)
		})
	if outcome == cache.Hit {
		return holdings
	}
	return nil
}

// ETFSectorWeights returns the fund's sector allocation keyed by canonical
// sector labels, nil when unavailable.
func (r *Router) ETFSectorWeights(ctx context.Context, ticker string) map[string]float64 {
	weights, outcome := fetchThrough[map[string]float64](r, ctx, cache.NSETFWeights, ticker, ratelimit.Yahoo, "etf_weights",
		func(ctx context.Context) (map[string]float64, error) {
			raw, err := r.primary.ETFSectorWeights(ctx, ticker)
			if err != nil {
				return nil, err
			}
			return NormalizeSectorWeights(raw), nil
		})
	if outcome == cache.Hit {
		return weights
	}
	return nil
}

// marginPair carries a statements-fallback result through the breaker;
// missing marks a healthy provider that simply has no data, which must not
// count as a breaker failure.
type marginPair struct {
	current  float64
	previous float64
	missing  bool
}

// MoatTrend returns the margin-trend record for a ticker. The result is
// never nil; unknown or unreachable data yields NOT_AVAILABLE.
func (r *Router) MoatTrend(ctx context.Context, ticker string) *domain.MoatRecord {
	rec, outcome := fetchThrough[domain.MoatRecord](r, ctx, cache.NSMoat, ticker, ratelimit.Yahoo, "moat",
		func(ctx context.Context) (domain.MoatRecord, error) {
			return r.fetchMoat(ctx, ticker)
		})
	if outcome == cache.Hit {
		return &rec
	}
	return &domain.MoatRecord{Ticker: ticker, Status: domain.MoatNotAvailable}
}

// fetchMoat tries the primary, then the market-specific statements provider
// for JP and TW tickers when it is configured and its breaker is closed.
func (r *Router) fetchMoat(ctx context.Context, ticker string) (domain.MoatRecord, error) {
	current, previous, err := r.primary.MarginTrend(ctx, ticker)
	if err == nil {
		return domain.NewMoatRecord(ticker, &current, &previous, sourcePrimary), nil
	}
	if domain.KindOf(err) != domain.KindNotFound {
		return domain.MoatRecord{}, err
	}

	provider, gateName, breaker, source := r.statementsFallback(ticker)
	if provider == nil || !provider.IsConfigured() || !breaker.Available() {
		return domain.MoatRecord{}, err
	}

	if gerr := r.gates.Gate(gateName).Wait(ctx); gerr != nil {
		return domain.MoatRecord{}, gerr
	}

	v, berr := breaker.Execute(func() (interface{}, error) {
		cur, prev, ferr := provider.MarginTrend(ctx, ticker)
		if ferr != nil {
			if domain.KindOf(ferr) == domain.KindNotFound {
				return marginPair{missing: true}, nil
			}
			return nil, ferr
		}
		return marginPair{current: cur, previous: prev}, nil
	})
	r.observeUpstream(gateName, "moat", berr)

	if berr != nil {
		if errors.Is(berr, gobreaker.ErrOpenState) || errors.Is(berr, gobreaker.ErrTooManyRequests) {
			// Resolved as unavailable; the primary's not-found stands.
			return domain.MoatRecord{}, err
		}
		return domain.MoatRecord{}, berr
	}

	pair := v.(marginPair)
	if pair.missing {
		return domain.MoatRecord{}, err
	}
	return domain.NewMoatRecord(ticker, &pair.current, &pair.previous, source), nil
}

func (r *Router) statementsFallback(ticker string) (StatementsProvider, string, *Breaker, string) {
	switch domain.InferMarket(ticker) {
	case domain.MarketJP:
		if r.jpfin != nil {
			return r.jpfin, ratelimit.JPFin, r.jpBreaker, sourceJPFin
		}
	case domain.MarketTW:
		if r.twfin != nil {
			return r.twfin, ratelimit.TWFin, r.twBreaker, sourceTWFin
		}
	}
	return nil, "", nil, ""
}

// FearGreed returns the composite sentiment record, N/A when neither source
// produced a value.
func (r *Router) FearGreed(ctx context.Context) domain.FearGreed {
	fg, outcome := fetchThrough[domain.FearGreed](r, ctx, cache.NSFearGreed, "composite", ratelimit.FearGreed, "fear_greed",
		func(ctx context.Context) (domain.FearGreed, error) {
			return r.fetchFearGreed(ctx)
		})
	if outcome == cache.Hit {
		return fg
	}
	return domain.FearGreed{Level: domain.FearGreedNA, AsOf: r.clock.Now()}
}

func (r *Router) fetchFearGreed(ctx context.Context) (domain.FearGreed, error) {
	var vix, external *float64

	if err := r.gates.Gate(ratelimit.Yahoo).Wait(ctx); err != nil {
		return domain.FearGreed{}, err
	}
	v, err := r.primary.VIX(ctx)
	r.observeUpstream(ratelimit.Yahoo, "vix", err)
	if err != nil {
		r.log.Warn().Err(err).Msg("vix fetch failed")
	} else {
		vix = v
	}

	if r.external != nil {
		e, eerr := r.external.Score(ctx)
		r.observeUpstream(ratelimit.FearGreed, "external_index", eerr)
		if eerr != nil {
			r.log.Warn().Err(eerr).Msg("external sentiment fetch failed")
		} else {
			external = e
		}
	}

	if vix == nil && external == nil {
		return domain.FearGreed{}, fmt.Errorf("no sentiment sources available")
	}
	return ComposeFearGreed(vix, external, r.clock.Now()), nil
}

// Quote returns a fresh price, deduped but never cached; price alerts need
// the live value.
func (r *Router) Quote(ctx context.Context, ticker string) (*domain.Quote, error) {
	v, err, _ := r.flight.Do("quote", ticker, func() (interface{}, error) {
		if err := r.gates.Gate(ratelimit.Yahoo).Wait(ctx); err != nil {
			return nil, err
		}
		q, qerr := r.primary.Quote(ctx, ticker)
		r.observeUpstream(ratelimit.Yahoo, "quote", qerr)
		if qerr != nil {
			return nil, qerr
		}
		return q, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.Quote), nil
}

// PrewarmSignals warms the signals namespace for many tickers with one bulk
// upstream call. Series shorter than 60 sessions are skipped, not marked
// negative: a per-ticker fetch may still resolve them with full bars.
func (r *Router) PrewarmSignals(ctx context.Context, tickers []string) (int, error) {
	if len(tickers) == 0 {
		return 0, nil
	}
	if err := r.gates.Gate(ratelimit.Yahoo).Wait(ctx); err != nil {
		return 0, err
	}

	series, err := r.primary.BulkDailyCloses(ctx, tickers, signalRange)
	r.observeUpstream(ratelimit.Yahoo, "bulk_history", err)
	if err != nil {
		return 0, err
	}

	warmed := 0
	now := r.clock.Now()
	for _, ticker := range tickers {
		bars, ok := series[ticker]
		if !ok || len(bars) < minSignalSessions {
			continue
		}
		sig := BuildSignals(ticker, bars, now)
		if err := r.fabric.Put(cache.NSSignals, ticker, *sig); err != nil {
			r.log.Warn().Err(err).Str("ticker", ticker).Msg("signal warm write failed")
			continue
		}
		warmed++
	}
	return warmed, nil
}

// Filings13F lists an investor's 13F filings. Unlike read-path lookups this
// returns errors: the sync job reports them.
func (r *Router) Filings13F(ctx context.Context, cik, since string) ([]domain.InvestorFiling, error) {
	if r.filings == nil || !r.filings.IsConfigured() {
		return nil, fmt.Errorf("filings provider not configured")
	}
	if err := r.gates.Gate(ratelimit.Edgar).Wait(ctx); err != nil {
		return nil, err
	}
	filings, err := r.filings.Filings13F(ctx, cik, since)
	r.observeUpstream(ratelimit.Edgar, "filings", err)
	return filings, err
}

// FilingHoldings fetches one filing's information table.
func (r *Router) FilingHoldings(ctx context.Context, cik, accessionNo string) ([]domain.FilingPosition, error) {
	if r.filings == nil || !r.filings.IsConfigured() {
		return nil, fmt.Errorf("filings provider not configured")
	}
	if err := r.gates.Gate(ratelimit.Edgar).Wait(ctx); err != nil {
		return nil, err
	}
	positions, err := r.filings.FilingHoldings(ctx, cik, accessionNo)
	r.observeUpstream(ratelimit.Edgar, "filing_holdings", err)
	return positions, err
}

// InvalidateTicker drops every cached entry for a ticker so the next read
// refetches, typically after a watchlist edit.
func (r *Router) InvalidateTicker(ticker string) {
	r.fabric.InvalidateTicker(ticker,
		cache.NSSignals, cache.NSMoat, cache.NSBeta, cache.NSSector,
		cache.NSEarnings, cache.NSDividend, cache.NSETFHoldings, cache.NSETFWeights)
	r.fabric.InvalidateMatching(cache.NSHistory, ticker+"|")
	r.flight.Forget(cache.NSSignals.Name, ticker)
}

func historyID(ticker, rng string) string { return ticker + "|" + rng }

func (r *Router) observeUpstream(provider, capability string, err error) {
	if r.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		if domain.KindOf(err) == domain.KindNotFound {
			status = "not_found"
		} else {
			status = "error"
		}
	}
	r.metrics.UpstreamCalls.WithLabelValues(provider, capability, status).Inc()
}
