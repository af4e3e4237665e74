package snapshots

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/folio/internal/domain"
	"github.com/aristath/folio/internal/modules/holdings"
	"github.com/aristath/folio/pkg/formulas"
)

// Valuer produces the portfolio valuation a snapshot records. Implemented
// by the holdings service.
type Valuer interface {
	Rebalance(ctx context.Context, displayCurrency string) (*holdings.RebalanceResult, error)
}

// MarketData is the slice of the provider router the engine needs: cached
// last closes for today's benchmark column and daily history for the
// backfill's as-of join.
type MarketData interface {
	Signals(ctx context.Context, ticker string) *domain.TechnicalSignals
	History(ctx context.Context, ticker, rng string) []domain.Bar
}

// Service is the snapshot engine.
type Service struct {
	repo       *Repository
	valuer     Valuer
	market     MarketData
	benchmarks []string
	currency   string
	clock      domain.Clock
	log        zerolog.Logger
}

// NewService creates a snapshot engine. benchmarks is the fixed ticker list
// recorded with every snapshot; the first entry feeds the legacy scalar.
func NewService(repo *Repository, valuer Valuer, market MarketData, benchmarks []string, displayCurrency string, clock domain.Clock, log zerolog.Logger) *Service {
	if clock == nil {
		clock = domain.RealClock{}
	}
	if displayCurrency == "" {
		displayCurrency = "USD"
	}
	return &Service{
		repo:       repo,
		valuer:     valuer,
		market:     market,
		benchmarks: benchmarks,
		currency:   displayCurrency,
		clock:      clock,
		log:        log.With().Str("service", "snapshots").Logger(),
	}
}

// List returns snapshots for either a trailing window of days or an
// explicit [start, end] date range.
func (s *Service) List(days int, start, end string) ([]Snapshot, error) {
	if start == "" && end == "" && days > 0 {
		start = s.clock.Now().UTC().AddDate(0, 0, -days).Format("2006-01-02")
	}
	return s.repo.GetRange(start, end)
}

// TakeDailySnapshot values the portfolio and upserts today's row. Running
// it twice in one day overwrites every field except the date.
func (s *Service) TakeDailySnapshot(ctx context.Context) (*Snapshot, error) {
	valuation, err := s.valuer.Rebalance(ctx, s.currency)
	if err != nil {
		return nil, err
	}

	today := s.clock.Now().UTC().Format("2006-01-02")
	snapshot := Snapshot{
		SnapshotDate:    today,
		TotalValue:      valuation.TotalValue,
		CategoryValues:  valuation.CategoryValues,
		DisplayCurrency: valuation.DisplayCurrency,
		BenchmarkValues: s.benchmarkCloses(ctx),
	}

	if err := s.repo.Upsert(snapshot); err != nil {
		return nil, err
	}
	s.log.Info().
		Str("date", today).
		Float64("total_value", snapshot.TotalValue).
		Int("unpriced", valuation.UnpricedCount).
		Msg("daily snapshot taken")

	return s.repo.GetByDate(today)
}

// benchmarkCloses reads the cached last close for every benchmark. A
// degraded benchmark stays nil and becomes a backfill candidate.
func (s *Service) benchmarkCloses(ctx context.Context) map[string]*float64 {
	closes := make(map[string]*float64, len(s.benchmarks))
	for _, ticker := range s.benchmarks {
		closes[ticker] = nil
		if sig := s.market.Signals(ctx, ticker); sig != nil && !sig.Degraded() && sig.LastClose != nil {
			closes[ticker] = sig.LastClose
		}
	}
	return closes
}

// BackfillBenchmarks fills missing benchmark closes across history with one
// history call per benchmark, independent of snapshot count. Each deficient
// snapshot gets the most recent close at or before its date.
func (s *Service) BackfillBenchmarks(ctx context.Context) (*BackfillResult, error) {
	all, err := s.repo.GetAll()
	if err != nil {
		return nil, err
	}

	result := &BackfillResult{Scanned: len(all), Benchmarks: s.benchmarks}
	deficient := s.deficientSnapshots(all)
	result.Deficient = len(deficient)
	if len(deficient) == 0 {
		return result, nil
	}

	minDate := deficient[0].SnapshotDate
	maxDate := deficient[len(deficient)-1].SnapshotDate
	rng := historyRange(minDate, s.clock.Now().UTC())

	// One call per benchmark covers every deficient snapshot.
	series := make(map[string][]domain.Bar, len(s.benchmarks))
	for _, ticker := range s.benchmarks {
		bars := s.market.History(ctx, ticker, rng)
		result.HistoryCalls++
		if len(bars) == 0 {
			s.log.Warn().Str("benchmark", ticker).Msg("no history for benchmark backfill")
			continue
		}
		series[ticker] = bars
	}

	for _, snapshot := range deficient {
		values := snapshot.BenchmarkValues
		if values == nil {
			values = make(map[string]*float64, len(s.benchmarks))
		}

		changed := false
		for _, ticker := range s.benchmarks {
			if v, ok := values[ticker]; ok && v != nil {
				continue
			}
			if close := asOfClose(series[ticker], snapshot.SnapshotDate); close != nil {
				values[ticker] = close
				changed = true
			}
		}
		if !changed {
			continue
		}

		legacy := snapshot.BenchmarkValue
		if legacy != nil && len(s.benchmarks) > 0 {
			if primary := values[s.benchmarks[0]]; primary != nil {
				legacy = primary
			}
		}

		if err := s.repo.UpdateBenchmarks(snapshot.SnapshotDate, values, legacy); err != nil {
			return nil, err
		}
		result.Updated++
	}

	s.log.Info().
		Int("deficient", result.Deficient).
		Int("updated", result.Updated).
		Str("range", minDate+".."+maxDate).
		Msg("benchmark backfill complete")
	return result, nil
}

// deficientSnapshots returns, in date order, the snapshots missing at least
// one benchmark close.
func (s *Service) deficientSnapshots(all []Snapshot) []Snapshot {
	var out []Snapshot
	for _, snapshot := range all {
		if s.isDeficient(snapshot) {
			out = append(out, snapshot)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SnapshotDate < out[j].SnapshotDate })
	return out
}

func (s *Service) isDeficient(snapshot Snapshot) bool {
	if len(snapshot.BenchmarkValues) == 0 {
		return true
	}
	for _, ticker := range s.benchmarks {
		v, ok := snapshot.BenchmarkValues[ticker]
		if !ok || v == nil {
			return true
		}
	}
	return false
}

// asOfClose returns the close of the most recent bar dated at or before
// date, nil when every bar is later.
func asOfClose(bars []domain.Bar, date string) *float64 {
	var best *float64
	for i := range bars {
		if bars[i].Date > date {
			break
		}
		best = &bars[i].Close
	}
	return best
}

// historyRange picks the provider range string that covers minDate..now.
func historyRange(minDate string, now time.Time) string {
	start, err := time.Parse("2006-01-02", minDate)
	if err != nil {
		return "max"
	}
	days := int(now.Sub(start).Hours()/24) + 1
	switch {
	case days <= 85:
		return "3mo"
	case days <= 175:
		return "6mo"
	case days <= 360:
		return "1y"
	case days <= 720:
		return "2y"
	case days <= 1800:
		return "5y"
	default:
		return "max"
	}
}

// TWR computes the time-weighted return across the snapshots in a range.
// Fewer than two snapshots yield a nil return.
func (s *Service) TWR(days int, start, end string) (*TWRResult, error) {
	snapshots, err := s.List(days, start, end)
	if err != nil {
		return nil, err
	}

	values := make([]float64, 0, len(snapshots))
	for _, snapshot := range snapshots {
		values = append(values, snapshot.TotalValue)
	}

	result := &TWRResult{Snapshots: len(snapshots)}
	if len(snapshots) > 0 {
		result.Start = snapshots[0].SnapshotDate
		result.End = snapshots[len(snapshots)-1].SnapshotDate
	}
	if twr := formulas.LinkedReturn(values); twr != nil {
		result.TWR = twr
		pct := *twr * 100
		result.TWRPct = &pct
	}
	return result, nil
}
