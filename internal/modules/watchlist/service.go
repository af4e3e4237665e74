package watchlist

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/folio/internal/domain"
)

// exportVersion tags the portable watchlist format.
const exportVersion = 1

// Invalidator drops cached market data for a ticker so the next read after
// a watchlist mutation fetches fresh.
type Invalidator interface {
	InvalidateTicker(ticker string)
}

// Service provides watchlist operations over the repositories.
type Service struct {
	stocks *Repository
	alerts *AlertRepository
	cache  Invalidator // may be nil in tests
	clock  domain.Clock
	log    zerolog.Logger
}

// NewService creates a watchlist service.
func NewService(stocks *Repository, alerts *AlertRepository, cache Invalidator, clock domain.Clock, log zerolog.Logger) *Service {
	if clock == nil {
		clock = domain.RealClock{}
	}
	return &Service{
		stocks: stocks,
		alerts: alerts,
		cache:  cache,
		clock:  clock,
		log:    log.With().Str("service", "watchlist").Logger(),
	}
}

// List returns the active watchlist.
func (s *Service) List() ([]Stock, error) {
	return s.stocks.GetActive()
}

// Removed returns deactivated stocks.
func (s *Service) Removed() ([]Stock, error) {
	return s.stocks.GetRemoved()
}

// Get returns one stock or a not-found error.
func (s *Service) Get(ticker string) (*Stock, error) {
	stock, err := s.stocks.Get(ticker)
	if err != nil {
		return nil, err
	}
	if stock == nil {
		return nil, domain.NotFoundf("ticker %s is not on the watchlist", NormalizeTicker(ticker))
	}
	return stock, nil
}

// Add puts a new ticker on the watchlist. Duplicates conflict; previously
// removed tickers conflict with a pointer at reactivate.
func (s *Service) Add(ticker, name string, category domain.Category, isETF bool) (*Stock, error) {
	ticker = NormalizeTicker(ticker)
	if err := validateTicker(ticker); err != nil {
		return nil, err
	}
	if !category.IsValid() {
		return nil, domain.Validationf("unknown category %q", string(category))
	}

	existing, err := s.stocks.Get(ticker)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if existing.Active {
			return nil, domain.Conflictf("ticker %s is already on the watchlist", ticker)
		}
		return nil, domain.Conflictf("ticker %s was removed earlier; reactivate it instead", ticker)
	}

	stock := Stock{
		Ticker:   ticker,
		Name:     name,
		Category: category,
		IsETF:    isETF,
		Active:   true,
	}
	if err := s.stocks.Create(stock); err != nil {
		return nil, err
	}
	s.invalidate(ticker)
	s.log.Info().Str("ticker", ticker).Str("category", string(category)).Msg("stock added")

	return s.Get(ticker)
}

// ChangeCategory moves a stock to a different category.
func (s *Service) ChangeCategory(ticker string, category domain.Category) (*Stock, error) {
	if !category.IsValid() {
		return nil, domain.Validationf("unknown category %q", string(category))
	}
	ok, err := s.stocks.UpdateCategory(ticker, category)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.NotFoundf("ticker %s is not on the watchlist", NormalizeTicker(ticker))
	}
	return s.Get(ticker)
}

// Deactivate soft-removes a stock from the active watchlist.
func (s *Service) Deactivate(ticker string) error {
	stock, err := s.Get(ticker)
	if err != nil {
		return err
	}
	if !stock.Active {
		return domain.Conflictf("ticker %s is already removed", stock.Ticker)
	}
	if _, err := s.stocks.SetActive(ticker, false); err != nil {
		return err
	}
	s.invalidate(stock.Ticker)
	s.log.Info().Str("ticker", stock.Ticker).Msg("stock deactivated")
	return nil
}

// Reactivate restores a previously removed stock.
func (s *Service) Reactivate(ticker string) (*Stock, error) {
	stock, err := s.Get(ticker)
	if err != nil {
		return nil, err
	}
	if stock.Active {
		return nil, domain.Conflictf("ticker %s is already active", stock.Ticker)
	}
	if _, err := s.stocks.SetActive(ticker, true); err != nil {
		return nil, err
	}
	s.invalidate(stock.Ticker)
	s.log.Info().Str("ticker", stock.Ticker).Msg("stock reactivated")
	return s.Get(ticker)
}

// Thesis returns the stored thesis for a ticker.
func (s *Service) Thesis(ticker string) (*Stock, error) {
	return s.Get(ticker)
}

// SetThesis stores the investment thesis; empty clears it.
func (s *Service) SetThesis(ticker, thesis string) (*Stock, error) {
	ok, err := s.stocks.SetThesis(ticker, thesis)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.NotFoundf("ticker %s is not on the watchlist", NormalizeTicker(ticker))
	}
	return s.Get(ticker)
}

// Export renders the full watchlist (active and removed) in the portable
// format.
func (s *Service) Export() (*ExportPayload, error) {
	stocks, err := s.stocks.GetAll()
	if err != nil {
		return nil, err
	}

	payload := &ExportPayload{
		Version:    exportVersion,
		ExportedAt: s.clock.Now().UTC().Format(time.RFC3339),
		Stocks:     make([]ExportStock, 0, len(stocks)),
	}
	for _, stock := range stocks {
		payload.Stocks = append(payload.Stocks, ExportStock{
			Ticker:   stock.Ticker,
			Name:     stock.Name,
			Category: stock.Category,
			IsETF:    stock.IsETF,
			Active:   stock.Active,
			Thesis:   stock.Thesis,
		})
	}
	return payload, nil
}

// Import merges an export payload into the store. Existing tickers are
// skipped; the result lists what was added.
func (s *Service) Import(payload ExportPayload) (*ImportResult, error) {
	if len(payload.Stocks) == 0 {
		return nil, domain.Validationf("import payload contains no stocks")
	}

	result := &ImportResult{}
	for _, row := range payload.Stocks {
		ticker := NormalizeTicker(row.Ticker)
		if err := validateTicker(ticker); err != nil {
			return nil, domain.Validationf("invalid ticker %q in import payload", row.Ticker)
		}
		if !row.Category.IsValid() {
			return nil, domain.Validationf("unknown category %q for ticker %s", string(row.Category), ticker)
		}

		existing, err := s.stocks.Get(ticker)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			result.Skipped++
			continue
		}

		stock := Stock{
			Ticker:   ticker,
			Name:     row.Name,
			Category: row.Category,
			IsETF:    row.IsETF,
			Active:   row.Active,
			Thesis:   row.Thesis,
		}
		if row.Thesis != nil {
			now := s.clock.Now().Unix()
			stock.ThesisUpdatedAt = &now
		}
		if err := s.stocks.Create(stock); err != nil {
			return nil, err
		}
		result.Added++
		result.Tickers = append(result.Tickers, ticker)
	}

	s.log.Info().Int("added", result.Added).Int("skipped", result.Skipped).Msg("watchlist imported")
	return result, nil
}

// AddAlert attaches a price alert to a watchlist ticker.
func (s *Service) AddAlert(ticker string, kind AlertKind, threshold float64) (*PriceAlert, error) {
	if !kind.IsValid() {
		return nil, domain.Validationf("alert kind must be %q or %q", AlertAbove, AlertBelow)
	}
	if threshold <= 0 {
		return nil, domain.Validationf("alert threshold must be positive")
	}
	stock, err := s.Get(ticker)
	if err != nil {
		return nil, err
	}

	id, err := s.alerts.Create(stock.Ticker, kind, threshold)
	if err != nil {
		return nil, err
	}
	return s.alerts.Get(id)
}

// Alerts returns every alert for a ticker.
func (s *Service) Alerts(ticker string) ([]PriceAlert, error) {
	if _, err := s.Get(ticker); err != nil {
		return nil, err
	}
	return s.alerts.ListByTicker(ticker)
}

// DeleteAlert removes an alert by id.
func (s *Service) DeleteAlert(id int64) error {
	ok, err := s.alerts.Delete(id)
	if err != nil {
		return err
	}
	if !ok {
		return domain.NotFoundf("price alert %d does not exist", id)
	}
	return nil
}

func (s *Service) invalidate(ticker string) {
	if s.cache != nil {
		s.cache.InvalidateTicker(ticker)
	}
}

func validateTicker(ticker string) error {
	if ticker == "" {
		return domain.Validationf("ticker must not be empty")
	}
	if len(ticker) > 15 {
		return domain.Validationf("ticker %q is too long", ticker)
	}
	for _, r := range ticker {
		switch {
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '.' || r == '-' || r == '^' || r == '=':
		default:
			return domain.Validationf("ticker %q contains invalid characters", ticker)
		}
	}
	return nil
}
