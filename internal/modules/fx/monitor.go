package fx

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/folio/internal/domain"
	"github.com/aristath/folio/internal/notify"
)

// epsilon absorbs float noise when comparing today's close to the
// lookback high.
const epsilon = 1e-6

// Parameter bounds. The long FX history covers about a year of sessions,
// which caps how far back a lookback can reach.
const (
	minLookbackDays    = 2
	maxLookbackDays    = 250
	minConsecutiveDays = 2
	maxConsecutiveDays = 30
	minReminderHours   = 1
	maxReminderHours   = 24 * 30
)

// MarketData is the slice of the provider router the monitor needs: long
// daily FX history per pair, empty when degraded.
type MarketData interface {
	FXHistory(ctx context.Context, pair string) []domain.Bar
}

// Notifier is the gate surface alerts go through. The boolean reports
// whether the notification actually went out.
type Notifier interface {
	Notify(ctx context.Context, category notify.Category, text string) bool
}

// Monitor owns fx watches: CRUD, evaluation passes, and alerting with the
// per-watch reminder cool-down.
type Monitor struct {
	repo   *Repository
	market MarketData
	gate   Notifier
	clock  domain.Clock
	log    zerolog.Logger
}

// NewMonitor creates the fx monitor.
func NewMonitor(repo *Repository, market MarketData, gate Notifier, clock domain.Clock, log zerolog.Logger) *Monitor {
	if clock == nil {
		clock = domain.RealClock{}
	}
	return &Monitor{
		repo:   repo,
		market: market,
		gate:   gate,
		clock:  clock,
		log:    log.With().Str("service", "fx_monitor").Logger(),
	}
}

// Watches returns every watch, active first.
func (m *Monitor) Watches() ([]Watch, error) {
	return m.repo.GetAll()
}

// AddWatch validates and stores a new watch. Zero-valued parameters take
// defaults (30-day lookback, 3-session streak, 24 h reminder); one watch
// per pair.
func (m *Monitor) AddWatch(w Watch) (*Watch, error) {
	base, err := normalizeCurrency(w.Base)
	if err != nil {
		return nil, err
	}
	quote, err := normalizeCurrency(w.Quote)
	if err != nil {
		return nil, err
	}
	if base == quote {
		return nil, domain.Validationf("base and quote must differ")
	}
	w.Base, w.Quote = base, quote

	if w.RecentHighDays == 0 {
		w.RecentHighDays = 30
	}
	if w.ConsecutiveDays == 0 {
		w.ConsecutiveDays = 3
	}
	if w.ReminderIntervalHours == 0 {
		w.ReminderIntervalHours = 24
	}
	if err := validateParams(w); err != nil {
		return nil, err
	}

	existing, err := m.repo.GetByPair(base, quote)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, domain.Conflictf("watch for %s already exists", w.Pair())
	}

	id, err := m.repo.Create(w)
	if err != nil {
		return nil, err
	}
	m.log.Info().Str("pair", w.Pair()).Msg("fx watch added")
	return m.repo.Get(id)
}

// WatchPatch carries a partial update; nil fields keep their value.
type WatchPatch struct {
	RecentHighDays        *int  `json:"recent_high_days"`
	ConsecutiveDays       *int  `json:"consecutive_days"`
	AlertOnRecentHigh     *bool `json:"alert_on_recent_high"`
	AlertOnConsecutive    *bool `json:"alert_on_consecutive"`
	ReminderIntervalHours *int  `json:"reminder_interval_hours"`
	IsActive              *bool `json:"is_active"`
}

// UpdateWatch applies a patch to one watch and returns the updated row.
func (m *Monitor) UpdateWatch(id int64, patch WatchPatch) (*Watch, error) {
	w, err := m.repo.Get(id)
	if err != nil {
		return nil, err
	}
	if w == nil {
		return nil, domain.NotFoundf("fx watch %d not found", id)
	}

	if patch.RecentHighDays != nil {
		w.RecentHighDays = *patch.RecentHighDays
	}
	if patch.ConsecutiveDays != nil {
		w.ConsecutiveDays = *patch.ConsecutiveDays
	}
	if patch.AlertOnRecentHigh != nil {
		w.AlertOnRecentHigh = *patch.AlertOnRecentHigh
	}
	if patch.AlertOnConsecutive != nil {
		w.AlertOnConsecutive = *patch.AlertOnConsecutive
	}
	if patch.ReminderIntervalHours != nil {
		w.ReminderIntervalHours = *patch.ReminderIntervalHours
	}
	if patch.IsActive != nil {
		w.IsActive = *patch.IsActive
	}
	if err := validateParams(*w); err != nil {
		return nil, err
	}

	if _, err := m.repo.Update(*w); err != nil {
		return nil, err
	}
	return m.repo.Get(id)
}

// RemoveWatch deletes a watch.
func (m *Monitor) RemoveWatch(id int64) error {
	ok, err := m.repo.Delete(id)
	if err != nil {
		return err
	}
	if !ok {
		return domain.NotFoundf("fx watch %d not found", id)
	}
	return nil
}

// HistoryLong returns the long daily history for a pair, empty when the
// provider is degraded.
func (m *Monitor) HistoryLong(ctx context.Context, base, quote string) ([]domain.Bar, string, error) {
	b, err := normalizeCurrency(base)
	if err != nil {
		return nil, "", err
	}
	q, err := normalizeCurrency(quote)
	if err != nil {
		return nil, "", err
	}
	return m.market.FXHistory(ctx, b+q), b + "/" + q, nil
}

// Evaluate judges one watch against its daily closes. Pure: no clock, no
// I/O, so the same bars always produce the same scenario.
func Evaluate(w Watch, bars []domain.Bar) Evaluation {
	eval := Evaluation{Pair: w.Pair(), Scenario: ScenarioNoSignal, Sessions: len(bars)}
	if len(bars) == 0 {
		return eval
	}

	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	today := closes[len(closes)-1]
	eval.Rate = today

	// Lookback high over the last recent_high_days closes, today excluded.
	prior := closes[:len(closes)-1]
	if len(prior) > w.RecentHighDays {
		prior = prior[len(prior)-w.RecentHighDays:]
	}
	if len(prior) > 0 {
		high := prior[0]
		for _, c := range prior[1:] {
			if c > high {
				high = c
			}
		}
		eval.LookbackHigh = &high
		eval.IsRecentHigh = today >= high-epsilon
	}

	// Streak of strictly increasing closes ending today.
	for i := len(closes) - 1; i > 0 && closes[i] > closes[i-1]; i-- {
		eval.ConsecutiveIncreases++
	}

	highFired := w.AlertOnRecentHigh && eval.IsRecentHigh
	consecFired := w.AlertOnConsecutive && eval.ConsecutiveIncreases >= w.ConsecutiveDays
	switch {
	case highFired && consecFired:
		eval.Scenario = ScenarioBoth
	case highFired:
		eval.Scenario = ScenarioHigh
	case consecFired:
		eval.Scenario = ScenarioConsecutive
	}
	eval.ShouldAlert = highFired || consecFired
	return eval
}

// CheckAll evaluates every active watch and reports the outcomes without
// sending anything.
func (m *Monitor) CheckAll(ctx context.Context) ([]CheckResult, error) {
	watches, err := m.repo.GetActive()
	if err != nil {
		return nil, err
	}

	results := make([]CheckResult, 0, len(watches))
	for _, w := range watches {
		bars := m.market.FXHistory(ctx, w.Base+w.Quote)
		results = append(results, CheckResult{
			Watch:      w,
			Evaluation: Evaluate(w, bars),
			InCoolDown: m.inCoolDown(w),
			Degraded:   len(bars) == 0,
		})
	}
	return results, nil
}

// AlertAll evaluates every active watch and alerts the triggered ones that
// are past their cool-down. The watch is stamped only when the gate
// actually sent, so a suppressed alert retries on the next pass.
func (m *Monitor) AlertAll(ctx context.Context) (*AlertResult, error) {
	watches, err := m.repo.GetActive()
	if err != nil {
		return nil, err
	}

	result := &AlertResult{Checked: len(watches)}
	for _, w := range watches {
		bars := m.market.FXHistory(ctx, w.Base+w.Quote)
		if len(bars) == 0 {
			result.Degraded++
			m.log.Warn().Str("pair", w.Pair()).Msg("no fx history, watch skipped")
			continue
		}

		eval := Evaluate(w, bars)
		if !eval.ShouldAlert {
			continue
		}
		result.Triggered++

		if m.inCoolDown(w) {
			result.CooledDown++
			m.log.Debug().Str("pair", w.Pair()).Msg("fx alert in cool-down")
			continue
		}

		if !m.gate.Notify(ctx, notify.CategoryFXAlert, renderAlert(w, eval)) {
			result.Suppressed++
			continue
		}
		if err := m.repo.StampAlerted(w.ID, m.clock.Now().Unix()); err != nil {
			m.log.Warn().Err(err).Str("pair", w.Pair()).Msg("failed to stamp fx watch")
		}
		result.Sent++
	}

	m.log.Info().
		Int("checked", result.Checked).
		Int("triggered", result.Triggered).
		Int("sent", result.Sent).
		Msg("fx alert pass complete")
	return result, nil
}

// inCoolDown reports whether the watch alerted within its reminder window.
func (m *Monitor) inCoolDown(w Watch) bool {
	if w.LastAlertedAt == nil {
		return false
	}
	window := time.Duration(w.ReminderIntervalHours) * time.Hour
	return m.clock.Now().Sub(time.Unix(*w.LastAlertedAt, 0)) < window
}

func renderAlert(w Watch, eval Evaluation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "💱 <b>%s</b> at %.4f\n", eval.Pair, eval.Rate)
	switch eval.Scenario {
	case ScenarioBoth:
		fmt.Fprintf(&b, "Highest close in %d days and %d sessions rising", w.RecentHighDays, eval.ConsecutiveIncreases)
	case ScenarioHigh:
		fmt.Fprintf(&b, "Highest close in %d days", w.RecentHighDays)
	case ScenarioConsecutive:
		fmt.Fprintf(&b, "%d consecutive daily increases", eval.ConsecutiveIncreases)
	}
	return b.String()
}

func validateParams(w Watch) error {
	if w.RecentHighDays < minLookbackDays || w.RecentHighDays > maxLookbackDays {
		return domain.Validationf("recent_high_days must be between %d and %d", minLookbackDays, maxLookbackDays)
	}
	if w.ConsecutiveDays < minConsecutiveDays || w.ConsecutiveDays > maxConsecutiveDays {
		return domain.Validationf("consecutive_days must be between %d and %d", minConsecutiveDays, maxConsecutiveDays)
	}
	if w.ReminderIntervalHours < minReminderHours || w.ReminderIntervalHours > maxReminderHours {
		return domain.Validationf("reminder_interval_hours must be between %d and %d", minReminderHours, maxReminderHours)
	}
	return nil
}

func normalizeCurrency(c string) (string, error) {
	c = strings.ToUpper(strings.TrimSpace(c))
	if len(c) != 3 {
		return "", domain.Validationf("currency must be a 3-letter code, got %q", c)
	}
	for _, r := range c {
		if r < 'A' || r > 'Z' {
			return "", domain.Validationf("currency must be a 3-letter code, got %q", c)
		}
	}
	return c, nil
}
