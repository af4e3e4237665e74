package holdings

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/folio/internal/domain"
	"github.com/aristath/folio/internal/modules/watchlist"
)

// exportVersion tags the portable holdings format.
const exportVersion = 1

// Pricer is the slice of the provider router the valuation needs: last
// closes and FX conversion. Both degrade to nil instead of erroring.
type Pricer interface {
	Signals(ctx context.Context, ticker string) *domain.TechnicalSignals
	FXRate(ctx context.Context, from, to string) *float64
}

// Service provides holdings operations and the rebalance valuation.
type Service struct {
	repo   *Repository
	pricer Pricer
	clock  domain.Clock
	log    zerolog.Logger
}

// NewService creates a holdings service.
func NewService(repo *Repository, pricer Pricer, clock domain.Clock, log zerolog.Logger) *Service {
	if clock == nil {
		clock = domain.RealClock{}
	}
	return &Service{
		repo:   repo,
		pricer: pricer,
		clock:  clock,
		log:    log.With().Str("service", "holdings").Logger(),
	}
}

// List returns every holding.
func (s *Service) List() ([]Holding, error) {
	return s.repo.GetAll()
}

// Get returns one holding or a not-found error.
func (s *Service) Get(id int64) (*Holding, error) {
	holding, err := s.repo.Get(id)
	if err != nil {
		return nil, err
	}
	if holding == nil {
		return nil, domain.NotFoundf("holding %d does not exist", id)
	}
	return holding, nil
}

// Add validates and inserts a position lot. Currency defaults to the
// ticker's market currency when omitted.
func (s *Service) Add(h Holding) (*Holding, error) {
	h.Ticker = watchlist.NormalizeTicker(h.Ticker)
	h.IsCash = false

	if h.Ticker == "" {
		return nil, domain.Validationf("ticker must not be empty")
	}
	if h.Ticker == CashTicker {
		return nil, domain.Validationf("cash rows go through the cash endpoint")
	}
	if !h.Category.IsValid() || h.Category == domain.CategoryCash {
		return nil, domain.Validationf("category must be one of Trend_Setter, Moat, Growth, Bond")
	}
	if h.Quantity <= 0 {
		return nil, domain.Validationf("quantity must be positive")
	}
	if h.CostBasis != nil && *h.CostBasis < 0 {
		return nil, domain.Validationf("cost basis must not be negative")
	}
	if h.Currency == "" {
		h.Currency = domain.InferMarket(h.Ticker).LocalCurrency()
	}
	currency, err := normalizeCurrency(h.Currency)
	if err != nil {
		return nil, err
	}
	h.Currency = currency

	id, err := s.repo.Create(h)
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("ticker", h.Ticker).Float64("quantity", h.Quantity).Msg("holding added")
	return s.Get(id)
}

// AddCash inserts a cash row. Amount lives in the quantity column.
func (s *Service) AddCash(amount float64, currency string, broker *string) (*Holding, error) {
	if amount <= 0 {
		return nil, domain.Validationf("amount must be positive")
	}
	currency, err := normalizeCurrency(currency)
	if err != nil {
		return nil, err
	}

	id, err := s.repo.Create(Holding{
		Ticker:   CashTicker,
		Category: domain.CategoryCash,
		Quantity: amount,
		Currency: currency,
		Broker:   broker,
		IsCash:   true,
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().Float64("amount", amount).Str("currency", currency).Msg("cash added")
	return s.Get(id)
}

// Update overwrites a holding's mutable fields.
func (s *Service) Update(id int64, h Holding) (*Holding, error) {
	existing, err := s.Get(id)
	if err != nil {
		return nil, err
	}

	if h.Quantity <= 0 {
		return nil, domain.Validationf("quantity must be positive")
	}
	if existing.IsCash {
		// Cash rows keep their identity; only amount, currency and broker move.
		h.Ticker = CashTicker
		h.Category = domain.CategoryCash
		h.IsCash = true
	} else {
		h.Ticker = watchlist.NormalizeTicker(h.Ticker)
		h.IsCash = false
		if h.Ticker == "" {
			return nil, domain.Validationf("ticker must not be empty")
		}
		if !h.Category.IsValid() || h.Category == domain.CategoryCash {
			return nil, domain.Validationf("category must be one of Trend_Setter, Moat, Growth, Bond")
		}
	}
	if h.Currency == "" {
		h.Currency = existing.Currency
	}
	currency, err := normalizeCurrency(h.Currency)
	if err != nil {
		return nil, err
	}
	h.Currency = currency
	if h.CostBasis != nil && *h.CostBasis < 0 {
		return nil, domain.Validationf("cost basis must not be negative")
	}

	if _, err := s.repo.Update(id, h); err != nil {
		return nil, err
	}
	return s.Get(id)
}

// Delete removes a holding.
func (s *Service) Delete(id int64) error {
	ok, err := s.repo.Delete(id)
	if err != nil {
		return err
	}
	if !ok {
		return domain.NotFoundf("holding %d does not exist", id)
	}
	return nil
}

// Tickers returns the distinct non-cash tickers held, for the prewarm and
// scan universes.
func (s *Service) Tickers() ([]string, error) {
	return s.repo.Tickers()
}

// Export renders all holdings in the portable format.
func (s *Service) Export() (*ExportPayload, error) {
	all, err := s.repo.GetAll()
	if err != nil {
		return nil, err
	}

	payload := &ExportPayload{
		Version:    exportVersion,
		ExportedAt: s.clock.Now().UTC().Format(time.RFC3339),
		Holdings:   make([]ExportHolding, 0, len(all)),
	}
	for _, h := range all {
		payload.Holdings = append(payload.Holdings, ExportHolding{
			Ticker:    h.Ticker,
			Category:  h.Category,
			Quantity:  h.Quantity,
			CostBasis: h.CostBasis,
			Currency:  h.Currency,
			Broker:    h.Broker,
			IsCash:    h.IsCash,
		})
	}
	return payload, nil
}

// Import merges an export payload. Rows identical on (ticker, quantity,
// currency, broker, is_cash) are skipped so a re-import does not duplicate
// lots.
func (s *Service) Import(payload ExportPayload) (*ImportResult, error) {
	if len(payload.Holdings) == 0 {
		return nil, domain.Validationf("import payload contains no holdings")
	}

	existing, err := s.repo.GetAll()
	if err != nil {
		return nil, err
	}

	result := &ImportResult{}
	for _, row := range payload.Holdings {
		if !row.Category.IsValid() {
			return nil, domain.Validationf("unknown category %q for ticker %s", string(row.Category), row.Ticker)
		}
		if row.Quantity <= 0 {
			return nil, domain.Validationf("non-positive quantity for ticker %s", row.Ticker)
		}

		h := Holding{
			Ticker:    watchlist.NormalizeTicker(row.Ticker),
			Category:  row.Category,
			Quantity:  row.Quantity,
			CostBasis: row.CostBasis,
			Currency:  row.Currency,
			Broker:    row.Broker,
			IsCash:    row.IsCash,
		}
		if duplicateLot(existing, h) {
			result.Skipped++
			continue
		}
		if _, err := s.repo.Create(h); err != nil {
			return nil, err
		}
		result.Added++
	}

	s.log.Info().Int("added", result.Added).Int("skipped", result.Skipped).Msg("holdings imported")
	return result, nil
}

func duplicateLot(existing []Holding, h Holding) bool {
	for _, e := range existing {
		if e.Ticker == h.Ticker && e.Quantity == h.Quantity && e.Currency == h.Currency &&
			e.IsCash == h.IsCash && equalBroker(e.Broker, h.Broker) {
			return true
		}
	}
	return false
}

func equalBroker(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// Rebalance values every holding in the display currency and breaks the
// total down by category. Positions the router cannot price are reported,
// never dropped silently.
func (s *Service) Rebalance(ctx context.Context, displayCurrency string) (*RebalanceResult, error) {
	if displayCurrency == "" {
		displayCurrency = "USD"
	}
	displayCurrency, err := normalizeCurrency(displayCurrency)
	if err != nil {
		return nil, err
	}

	all, err := s.repo.GetAll()
	if err != nil {
		return nil, err
	}

	result := &RebalanceResult{
		DisplayCurrency: displayCurrency,
		CategoryValues:  make(map[string]float64),
		CategoryWeights: make(map[string]float64),
		Positions:       make([]PositionValue, 0, len(all)),
		AsOf:            s.clock.Now().UTC().Format(time.RFC3339),
	}

	for _, h := range all {
		pos := PositionValue{
			ID:       h.ID,
			Ticker:   h.Ticker,
			Category: h.Category,
			Quantity: h.Quantity,
			Currency: h.Currency,
		}

		localValue, localPrice := s.localValue(ctx, h)
		if localValue == nil {
			pos.Unpriced = true
			pos.UnpricedNote = "no price available"
			result.UnpricedCount++
			result.Positions = append(result.Positions, pos)
			continue
		}
		pos.LocalPrice = localPrice
		pos.LocalValue = localValue

		display := s.convert(ctx, *localValue, h.Currency, displayCurrency)
		if display == nil {
			pos.Unpriced = true
			pos.UnpricedNote = "no fx rate " + h.Currency + "/" + displayCurrency
			result.UnpricedCount++
			result.Positions = append(result.Positions, pos)
			continue
		}
		pos.DisplayValue = display

		if localPrice != nil && h.CostBasis != nil && *h.CostBasis > 0 {
			gain := (*localPrice - *h.CostBasis) / *h.CostBasis * 100
			pos.GainPct = &gain
		}

		result.TotalValue += *display
		result.CategoryValues[string(h.Category)] += *display
		result.Positions = append(result.Positions, pos)
	}

	if result.TotalValue > 0 {
		for category, value := range result.CategoryValues {
			result.CategoryWeights[category] = value / result.TotalValue * 100
		}
		for i := range result.Positions {
			if dv := result.Positions[i].DisplayValue; dv != nil {
				w := *dv / result.TotalValue * 100
				result.Positions[i].WeightPct = &w
			}
		}
	}

	return result, nil
}

// localValue prices one holding in its own currency. Cash is its amount;
// stock lots use the router's cached last close.
func (s *Service) localValue(ctx context.Context, h Holding) (*float64, *float64) {
	if h.IsCash {
		v := h.Quantity
		return &v, nil
	}

	sig := s.pricer.Signals(ctx, h.Ticker)
	if sig == nil || sig.Degraded() || sig.LastClose == nil {
		return nil, nil
	}
	price := *sig.LastClose
	value := h.Quantity * price
	return &value, &price
}

// convert translates an amount between currencies via the router's FX rate.
func (s *Service) convert(ctx context.Context, amount float64, from, to string) *float64 {
	if from == to {
		return &amount
	}
	rate := s.pricer.FXRate(ctx, from, to)
	if rate == nil || *rate <= 0 {
		return nil
	}
	v := amount * *rate
	return &v
}

func normalizeCurrency(currency string) (string, error) {
	c := strings.ToUpper(strings.TrimSpace(currency))
	if len(c) != 3 {
		return "", domain.Validationf("currency must be a 3-letter code")
	}
	for _, r := range c {
		if r < 'A' || r > 'Z' {
			return "", domain.Validationf("currency must be a 3-letter code")
		}
	}
	return c, nil
}
