package scan

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/aristath/folio/internal/domain"
	"github.com/aristath/folio/internal/modules/watchlist"
	"github.com/aristath/folio/internal/notify"
)

const (
	evalWorkers = 8
	scanTimeout = 10 * time.Minute
)

// MarketData is the router slice the scan needs. All three calls degrade
// to nil or zero values instead of returning errors.
type MarketData interface {
	Signals(ctx context.Context, ticker string) *domain.TechnicalSignals
	MoatTrend(ctx context.Context, ticker string) *domain.MoatRecord
	FearGreed(ctx context.Context) domain.FearGreed
}

// StockSource supplies the active watchlist and records scan outcomes.
// Implemented by the watchlist repository.
type StockSource interface {
	GetActive() ([]watchlist.Stock, error)
	UpdateLastScanSignal(ticker string, signal domain.ScanSignal) error
}

// AlertSource supplies active one-shot price alerts. Implemented by the
// watchlist alert repository.
type AlertSource interface {
	GetActive() ([]watchlist.PriceAlert, error)
	MarkTriggered(id int64, at time.Time) error
}

// Notifier is the notification gate surface shared by scan and digest.
type Notifier interface {
	Notify(ctx context.Context, category notify.Category, text string) bool
	NotifyPhoto(ctx context.Context, category notify.Category, photo []byte, caption string) bool
}

// Service runs scans. At most one scan is in flight at any instant; the
// mutex is held for the whole run and busy callers are rejected.
type Service struct {
	repo   *Repository
	market MarketData
	stocks StockSource
	alerts AlertSource
	gate   Notifier
	clock  domain.Clock
	log    zerolog.Logger

	scanMu  sync.Mutex
	stateMu sync.Mutex
	running bool
	lastRun *Run
}

// NewService creates a scan service.
func NewService(repo *Repository, market MarketData, stocks StockSource, alerts AlertSource, gate Notifier, clock domain.Clock, log zerolog.Logger) *Service {
	if clock == nil {
		clock = domain.RealClock{}
	}
	return &Service{
		repo:   repo,
		market: market,
		stocks: stocks,
		alerts: alerts,
		gate:   gate,
		clock:  clock,
		log:    log.With().Str("service", "scan").Logger(),
	}
}

// Start launches a scan in the background and returns its run id.
// Rejects with a conflict while another scan holds the mutex.
func (s *Service) Start() (string, error) {
	if !s.scanMu.TryLock() {
		return "", domain.Conflictf("a scan is already running")
	}
	runID := uuid.NewString()

	go func() {
		defer s.scanMu.Unlock()
		ctx, cancel := context.WithTimeout(context.Background(), scanTimeout)
		defer cancel()
		s.execute(ctx, runID)
	}()
	return runID, nil
}

// RunNow executes a scan synchronously. Used by the scheduler; HTTP
// callers go through Start.
func (s *Service) RunNow(ctx context.Context) (*Run, error) {
	if !s.scanMu.TryLock() {
		return nil, domain.Conflictf("a scan is already running")
	}
	defer s.scanMu.Unlock()
	return s.execute(ctx, uuid.NewString()), nil
}

func (s *Service) execute(ctx context.Context, runID string) *Run {
	s.stateMu.Lock()
	s.running = true
	s.stateMu.Unlock()

	run := s.run(ctx, runID)

	s.stateMu.Lock()
	s.running = false
	s.lastRun = run
	s.stateMu.Unlock()
	return run
}

// Status reports whether a scan is in flight and the last completed run.
func (s *Service) Status() Status {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	st := Status{Running: s.running}
	if s.lastRun != nil {
		st.LastRunID = s.lastRun.RunID
		st.LastRunAt = s.lastRun.FinishedAt
	}
	return st
}

// LastRun returns the most recent completed run.
func (s *Service) LastRun() (*Run, error) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	if s.lastRun == nil {
		return nil, domain.NotFoundf("no scan has completed yet")
	}
	run := *s.lastRun
	return &run, nil
}

// History returns a ticker's recent scan log rows.
func (s *Service) History(ticker string, limit int) ([]LogRow, error) {
	ticker = watchlist.NormalizeTicker(ticker)
	if ticker == "" {
		return nil, domain.Validationf("ticker is required")
	}
	return s.repo.LogsByTicker(ticker, limit)
}

func (s *Service) run(ctx context.Context, runID string) *Run {
	run := &Run{RunID: runID, StartedAt: s.clock.Now().Unix()}
	log := s.log.With().Str("run_id", runID).Logger()
	log.Info().Msg("scan started")

	stocks, err := s.stocks.GetActive()
	if err != nil {
		run.Errors = append(run.Errors, fmt.Sprintf("watchlist read failed: %v", err))
		run.MarketStatus = domain.MarketUnknown
		run.FinishedAt = s.clock.Now().Unix()
		return run
	}

	status, details := s.marketSentiment(ctx, stocks)
	run.MarketStatus = status
	run.Details = details

	var scannable []watchlist.Stock
	for _, st := range stocks {
		if st.Category.SkipSignals() {
			continue
		}
		scannable = append(scannable, st)
	}

	results := make([]TickerResult, len(scannable))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(evalWorkers)
	for i, st := range scannable {
		i, st := i, st
		g.Go(func() error {
			results[i] = s.evaluate(gctx, st)
			return nil
		})
	}
	_ = g.Wait()

	now := s.clock.Now().Unix()
	rows := make([]LogRow, 0, len(results))
	for _, res := range results {
		if res.Skipped {
			run.Skipped++
			if res.SkipReason != "" {
				run.Errors = append(run.Errors, fmt.Sprintf("%s: %s", res.Ticker, res.SkipReason))
			}
			continue
		}
		run.Evaluated++
		rows = append(rows, LogRow{
			RunID:               runID,
			Ticker:              res.Ticker,
			Signal:              res.Signal,
			MarketStatus:        status,
			MarketStatusDetails: details,
			ScannedAt:           now,
		})
		if err := s.stocks.UpdateLastScanSignal(res.Ticker, res.Signal); err != nil {
			run.Errors = append(run.Errors, fmt.Sprintf("%s: signal update failed: %v", res.Ticker, err))
		}
		if res.Changed {
			run.Changes = append(run.Changes, res)
		}
		if res.RogueWave {
			run.RogueWaves = append(run.RogueWaves, res)
		}
	}
	if err := s.repo.InsertLogs(rows); err != nil {
		run.Errors = append(run.Errors, fmt.Sprintf("scan log write failed: %v", err))
	}

	run.AlertsFired = s.fireAlerts(results, &run.Errors)

	// One aggregated message, and only when there is news.
	if len(run.Changes) > 0 || len(run.AlertsFired) > 0 {
		run.NotificationSent = s.gate.Notify(ctx, notify.CategoryScan, renderScanMessage(run))
	}

	run.FinishedAt = s.clock.Now().Unix()
	log.Info().
		Str("market", string(status)).
		Int("evaluated", run.Evaluated).
		Int("skipped", run.Skipped).
		Int("changes", len(run.Changes)).
		Int("rogue_waves", len(run.RogueWaves)).
		Int("alerts_fired", len(run.AlertsFired)).
		Bool("notified", run.NotificationSent).
		Msg("scan finished")
	return run
}

// marketSentiment computes layer one (breadth below the 60-day mean) and
// attaches the cached fear-and-greed composite.
func (s *Service) marketSentiment(ctx context.Context, stocks []watchlist.Stock) (domain.MarketStatus, MarketDetails) {
	var total, below int
	for _, st := range breadthSample(stocks) {
		sig := s.market.Signals(ctx, st.Ticker)
		if sig == nil || sig.Degraded() || sig.LastClose == nil || sig.MA60 == nil {
			continue
		}
		total++
		if *sig.LastClose < *sig.MA60 {
			below++
		}
	}

	details := MarketDetails{SampleSize: total}
	if total > 0 {
		details.Below60MAPct = float64(below) / float64(total)
	}

	fg := s.market.FearGreed(ctx)
	details.FearGreedScore = fg.Score
	details.FearGreedLevel = fg.Level

	return MarketStatusFor(details.Below60MAPct, total), details
}

// breadthSample picks the tickers whose breadth stands for the market: the
// non-ETF trend setters, or every non-ETF equity when none are watched.
func breadthSample(stocks []watchlist.Stock) []watchlist.Stock {
	var trendSetters, equities []watchlist.Stock
	for _, st := range stocks {
		if st.IsETF || st.Category.SkipSignals() {
			continue
		}
		equities = append(equities, st)
		if st.Category == domain.CategoryTrendSetter {
			trendSetters = append(trendSetters, st)
		}
	}
	if len(trendSetters) > 0 {
		return trendSetters
	}
	return equities
}

func (s *Service) evaluate(ctx context.Context, stock watchlist.Stock) TickerResult {
	res := TickerResult{Ticker: stock.Ticker}

	sig := s.market.Signals(ctx, stock.Ticker)
	if sig == nil || sig.Degraded() || sig.LastClose == nil {
		res.Skipped = true
		res.SkipReason = "signals unavailable"
		if sig != nil && sig.Error != "" {
			res.SkipReason = sig.Error
		}
		return res
	}

	moat := domain.MoatNotAvailable
	if !stock.Category.SkipMoat() {
		if rec := s.market.MoatTrend(ctx, stock.Ticker); rec != nil {
			moat = rec.Status
		}
	}

	res.Signal = DetermineScanSignal(stock.Category, moat, sig.Bias200, sig.RSI14, sig.BiasPercentile, sig.VolumeRatio)
	res.RogueWave = RogueWave(sig.ChangePct, sig.VolumeRatio)
	res.LastClose = sig.LastClose
	res.ChangePct = sig.ChangePct
	res.Previous = stock.LastScanSignal
	res.Changed = signalChanged(stock.LastScanSignal, res.Signal)
	return res
}

// signalChanged reports whether the new signal is news: different from the
// stored one, or notable on a ticker's first scan.
func signalChanged(previous *string, signal domain.ScanSignal) bool {
	if previous == nil {
		return signal != domain.SignalNormal
	}
	return *previous != string(signal)
}

// fireAlerts trips active one-shot price alerts against the closes the run
// just fetched. Triggered alerts deactivate before they are reported, so a
// failed notification never re-fires one.
func (s *Service) fireAlerts(results []TickerResult, errs *[]string) []AlertFire {
	active, err := s.alerts.GetActive()
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("price alert read failed: %v", err))
		return nil
	}
	if len(active) == 0 {
		return nil
	}

	closes := make(map[string]float64, len(results))
	for _, res := range results {
		if !res.Skipped && res.LastClose != nil {
			closes[res.Ticker] = *res.LastClose
		}
	}

	var fired []AlertFire
	now := s.clock.Now()
	for _, alert := range active {
		price, ok := closes[alert.Ticker]
		if !ok {
			continue
		}
		hit := (alert.Kind == watchlist.AlertAbove && price >= alert.Threshold) ||
			(alert.Kind == watchlist.AlertBelow && price <= alert.Threshold)
		if !hit {
			continue
		}
		if err := s.alerts.MarkTriggered(alert.ID, now); err != nil {
			*errs = append(*errs, fmt.Sprintf("%s: alert %d trigger failed: %v", alert.Ticker, alert.ID, err))
			continue
		}
		fired = append(fired, AlertFire{
			AlertID:   alert.ID,
			Ticker:    alert.Ticker,
			Kind:      string(alert.Kind),
			Threshold: alert.Threshold,
			Price:     price,
		})
	}
	return fired
}

func renderScanMessage(run *Run) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🔍 <b>Market scan</b>: %s", run.MarketStatus)
	if run.Details.FearGreedScore != nil {
		fmt.Fprintf(&b, " · %s (%.0f)", run.Details.FearGreedLevel, *run.Details.FearGreedScore)
	}
	b.WriteString("\n")

	if len(run.Changes) > 0 {
		b.WriteString("\nSignal changes:\n")
		for _, c := range run.Changes {
			prev := "NONE"
			if c.Previous != nil {
				prev = *c.Previous
			}
			fmt.Fprintf(&b, "• %s: %s → %s\n", c.Ticker, prev, c.Signal)
		}
	}
	if len(run.RogueWaves) > 0 {
		b.WriteString("\nRogue waves:\n")
		for _, r := range run.RogueWaves {
			if r.ChangePct != nil {
				fmt.Fprintf(&b, "• %s: %+.1f%% on unusual volume\n", r.Ticker, *r.ChangePct)
			} else {
				fmt.Fprintf(&b, "• %s\n", r.Ticker)
			}
		}
	}
	if len(run.AlertsFired) > 0 {
		b.WriteString("\nPrice alerts:\n")
		for _, a := range run.AlertsFired {
			fmt.Fprintf(&b, "• %s %s %.2f (now %.2f)\n", a.Ticker, a.Kind, a.Threshold, a.Price)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
