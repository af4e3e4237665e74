package marketdata

import (
	"context"

	"github.com/aristath/folio/internal/domain"
)

// PrimaryProvider is the general market-data source serving every
// capability except statement fallbacks and filings.
type PrimaryProvider interface {
	Quote(ctx context.Context, ticker string) (*domain.Quote, error)
	DailyHistory(ctx context.Context, ticker, rng string) ([]domain.Bar, error)
	BulkDailyCloses(ctx context.Context, tickers []string, rng string) (map[string][]domain.Bar, error)
	FXDailyHistory(ctx context.Context, pair, rng string) ([]domain.Bar, error)
	VIX(ctx context.Context) (*float64, error)
	Sector(ctx context.Context, ticker string) (string, error)
	Beta(ctx context.Context, ticker string) (*float64, error)
	DividendYield(ctx context.Context, ticker string) (*float64, error)
	NextEarnings(ctx context.Context, ticker string) (*domain.EarningsEvent, error)
	ETFHoldings(ctx context.Context, ticker string) ([]domain.ETFHolding, error)
	ETFSectorWeights(ctx context.Context, ticker string) (map[string]float64, error)
	MarginTrend(ctx context.Context, ticker string) (current, previous float64, err error)
}

// StatementsProvider is a market-specific financial-statements source used
// as the moat fallback when the primary has no statement history.
type StatementsProvider interface {
	IsConfigured() bool
	MarginTrend(ctx context.Context, ticker string) (current, previous float64, err error)
}

// FilingsProvider serves institutional 13F filings.
type FilingsProvider interface {
	IsConfigured() bool
	Filings13F(ctx context.Context, cik, since string) ([]domain.InvestorFiling, error)
	FilingHoldings(ctx context.Context, cik, accessionNo string) ([]domain.FilingPosition, error)
}

// SentimentProvider serves the external fear & greed index.
type SentimentProvider interface {
	Score(ctx context.Context) (*float64, error)
}
