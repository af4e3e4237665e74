package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/aristath/folio/internal/domain"
)

type summaryResponse struct {
	QuoteSummary struct {
		Result []summaryResult `json:"result"`
		Error  *apiError       `json:"error"`
	} `json:"quoteSummary"`
}

type summaryResult struct {
	AssetProfile *struct {
		Sector string `json:"sector"`
	} `json:"assetProfile"`
	SummaryDetail *struct {
		Beta          rawValue `json:"beta"`
		DividendYield rawValue `json:"dividendYield"`
	} `json:"summaryDetail"`
	DefaultKeyStatistics *struct {
		Beta rawValue `json:"beta"`
	} `json:"defaultKeyStatistics"`
	CalendarEvents *struct {
		Earnings struct {
			EarningsDate []rawValue `json:"earningsDate"`
		} `json:"earnings"`
	} `json:"calendarEvents"`
	TopHoldings *struct {
		Holdings []struct {
			Symbol         string   `json:"symbol"`
			HoldingName    string   `json:"holdingName"`
			HoldingPercent rawValue `json:"holdingPercent"`
		} `json:"holdings"`
		// Served both as a mapping and as a list of single-key mappings
		// depending on the fund, so decode lazily.
		SectorWeightings json.RawMessage `json:"sectorWeightings"`
	} `json:"topHoldings"`
	IncomeStatementHistory *struct {
		Statements []struct {
			EndDate      rawValue `json:"endDate"`
			TotalRevenue rawValue `json:"totalRevenue"`
			GrossProfit  rawValue `json:"grossProfit"`
		} `json:"incomeStatementHistory"`
	} `json:"incomeStatementHistory"`
}

func (c *Client) quoteSummary(ctx context.Context, ticker string, modules string) (*summaryResult, error) {
	var resp summaryResponse
	query := url.Values{"modules": {modules}}
	path := "/v10/finance/quoteSummary/" + url.PathEscape(ticker)
	if err := c.getJSON(ctx, path, query, &resp); err != nil {
		return nil, err
	}

	if resp.QuoteSummary.Error != nil {
		return nil, fmt.Errorf("quoteSummary error: %s: %s",
			resp.QuoteSummary.Error.Code, resp.QuoteSummary.Error.Description)
	}
	if len(resp.QuoteSummary.Result) == 0 {
		return nil, domain.NotFoundf("no summary data for %s", ticker)
	}
	return &resp.QuoteSummary.Result[0], nil
}

// Sector returns the company's sector classification as the provider labels
// it; canonicalization happens in the router.
func (c *Client) Sector(ctx context.Context, ticker string) (string, error) {
	result, err := c.quoteSummary(ctx, ticker, "assetProfile")
	if err != nil {
		return "", err
	}
	if result.AssetProfile == nil || result.AssetProfile.Sector == "" {
		return "", domain.NotFoundf("no sector for %s", ticker)
	}
	return result.AssetProfile.Sector, nil
}

// Beta returns the 5y monthly beta, preferring summaryDetail over
// defaultKeyStatistics.
func (c *Client) Beta(ctx context.Context, ticker string) (*float64, error) {
	result, err := c.quoteSummary(ctx, ticker, "summaryDetail,defaultKeyStatistics")
	if err != nil {
		return nil, err
	}
	if result.SummaryDetail != nil && result.SummaryDetail.Beta.Raw != nil {
		return result.SummaryDetail.Beta.Raw, nil
	}
	if result.DefaultKeyStatistics != nil && result.DefaultKeyStatistics.Beta.Raw != nil {
		return result.DefaultKeyStatistics.Beta.Raw, nil
	}
	return nil, domain.NotFoundf("no beta for %s", ticker)
}

// DividendYield returns the trailing dividend yield in percent.
func (c *Client) DividendYield(ctx context.Context, ticker string) (*float64, error) {
	result, err := c.quoteSummary(ctx, ticker, "summaryDetail")
	if err != nil {
		return nil, err
	}
	if result.SummaryDetail == nil || result.SummaryDetail.DividendYield.Raw == nil {
		return nil, domain.NotFoundf("no dividend yield for %s", ticker)
	}
	pct := *result.SummaryDetail.DividendYield.Raw * 100
	return &pct, nil
}

// NextEarnings returns the next scheduled earnings date.
func (c *Client) NextEarnings(ctx context.Context, ticker string) (*domain.EarningsEvent, error) {
	result, err := c.quoteSummary(ctx, ticker, "calendarEvents")
	if err != nil {
		return nil, err
	}
	if result.CalendarEvents == nil || len(result.CalendarEvents.Earnings.EarningsDate) == 0 {
		return nil, domain.NotFoundf("no earnings date for %s", ticker)
	}
	first := result.CalendarEvents.Earnings.EarningsDate[0]
	if first.Raw == nil {
		return nil, domain.NotFoundf("no earnings date for %s", ticker)
	}
	return &domain.EarningsEvent{
		Ticker: ticker,
		Date:   time.Unix(int64(*first.Raw), 0).UTC().Format("2006-01-02"),
	}, nil
}

// ETFHoldings returns the fund's top constituent rows.
func (c *Client) ETFHoldings(ctx context.Context, ticker string) ([]domain.ETFHolding, error) {
	result, err := c.quoteSummary(ctx, ticker, "topHoldings")
	if err != nil {
		return nil, err
	}
	if result.TopHoldings == nil || len(result.TopHoldings.Holdings) == 0 {
		return nil, domain.NotFoundf("no holdings for %s", ticker)
	}

	holdings := make([]domain.ETFHolding, 0, len(result.TopHoldings.Holdings))
	for _, h := range result.TopHoldings.Holdings {
		row := domain.ETFHolding{Symbol: h.Symbol, Name: h.HoldingName}
		if h.HoldingPercent.Raw != nil {
			row.WeightPct = *h.HoldingPercent.Raw * 100
		}
		holdings = append(holdings, row)
	}
	return holdings, nil
}

// ETFSectorWeights returns the fund's sector allocation in percent, keyed by
// the provider's sector labels. Both payload shapes (mapping, list of
// single-key mappings) are merged into one map.
func (c *Client) ETFSectorWeights(ctx context.Context, ticker string) (map[string]float64, error) {
	result, err := c.quoteSummary(ctx, ticker, "topHoldings")
	if err != nil {
		return nil, err
	}
	if result.TopHoldings == nil || len(result.TopHoldings.SectorWeightings) == 0 {
		return nil, domain.NotFoundf("no sector weights for %s", ticker)
	}

	weights := parseSectorWeightings(result.TopHoldings.SectorWeightings)
	if len(weights) == 0 {
		return nil, domain.NotFoundf("no sector weights for %s", ticker)
	}
	return weights, nil
}

func parseSectorWeightings(raw json.RawMessage) map[string]float64 {
	weights := make(map[string]float64)

	var asList []map[string]rawValue
	if err := json.Unmarshal(raw, &asList); err == nil {
		for _, entry := range asList {
			for key, value := range entry {
				if value.Raw != nil {
					weights[key] += *value.Raw * 100
				}
			}
		}
		return weights
	}

	var asMap map[string]rawValue
	if err := json.Unmarshal(raw, &asMap); err == nil {
		for key, value := range asMap {
			if value.Raw != nil {
				weights[key] += *value.Raw * 100
			}
		}
	}
	return weights
}

// MarginTrend returns the gross margin (percent) of the two most recent
// annual statements. Statements without revenue are skipped.
func (c *Client) MarginTrend(ctx context.Context, ticker string) (current, previous float64, err error) {
	result, err := c.quoteSummary(ctx, ticker, "incomeStatementHistory")
	if err != nil {
		return 0, 0, err
	}
	if result.IncomeStatementHistory == nil {
		return 0, 0, domain.NotFoundf("no income statements for %s", ticker)
	}

	var margins []float64
	for _, s := range result.IncomeStatementHistory.Statements {
		if s.TotalRevenue.Raw == nil || *s.TotalRevenue.Raw == 0 || s.GrossProfit.Raw == nil {
			continue
		}
		margins = append(margins, *s.GrossProfit.Raw / *s.TotalRevenue.Raw*100)
	}
	if len(margins) < 2 {
		return 0, 0, domain.NotFoundf("insufficient statements for %s", ticker)
	}
	// Statements arrive most recent first.
	return margins[0], margins[1], nil
}
