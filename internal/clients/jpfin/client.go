// Package jpfin is the Japanese financial-statements provider, used as the
// moat fallback for .T tickers when the primary source has no statement
// history. It serves quarterly statements keyed by fiscal year and quarter.
package jpfin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/folio/internal/domain"
)

const defaultBaseURL = "https://api.buffett-code.com/api/v3"

// Client talks to the quarterly statements API. Configuration is optional:
// an unset API key disables the provider and the router falls through.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	log        zerolog.Logger
}

// NewClient creates a JP statements client. apiKey may be empty.
func NewClient(apiKey string, log zerolog.Logger) *Client {
	return &Client{
		baseURL:    defaultBaseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		log:        log.With().Str("client", "jpfin").Logger(),
	}
}

// IsConfigured reports whether the provider can be called at all.
func (c *Client) IsConfigured() bool { return c.apiKey != "" }

type quarterRow struct {
	FiscalYear    int      `json:"fiscal_year"`
	FiscalQuarter int      `json:"fiscal_quarter"`
	NetSales      *float64 `json:"net_sales"`
	GrossProfit   *float64 `json:"gross_profit"`
}

type quarterResponse struct {
	Data []quarterRow `json:"data"`
}

// MarginTrend returns the gross margin (percent) of the most recent quarter
// and of the same quarter one fiscal year earlier. Tickers are accepted with
// or without the .T suffix.
func (c *Client) MarginTrend(ctx context.Context, ticker string) (current, previous float64, err error) {
	if !c.IsConfigured() {
		return 0, 0, fmt.Errorf("jpfin provider not configured")
	}

	code := strings.TrimSuffix(strings.ToUpper(strings.TrimSpace(ticker)), ".T")

	var resp quarterResponse
	query := url.Values{"ticker": {code}}
	if err := c.getJSON(ctx, "/quarter", query, &resp); err != nil {
		return 0, 0, err
	}

	rows := make([]quarterRow, 0, len(resp.Data))
	for _, row := range resp.Data {
		if row.NetSales != nil && *row.NetSales > 0 && row.GrossProfit != nil {
			rows = append(rows, row)
		}
	}
	if len(rows) == 0 {
		return 0, 0, domain.NotFoundf("no statements for %s", ticker)
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].FiscalYear != rows[j].FiscalYear {
			return rows[i].FiscalYear > rows[j].FiscalYear
		}
		return rows[i].FiscalQuarter > rows[j].FiscalQuarter
	})

	latest := rows[0]
	for _, row := range rows[1:] {
		if row.FiscalYear == latest.FiscalYear-1 && row.FiscalQuarter == latest.FiscalQuarter {
			return margin(latest), margin(row), nil
		}
	}
	return 0, 0, domain.NotFoundf("no year-earlier statement for %s", ticker)
}

func margin(row quarterRow) float64 {
	return *row.GrossProfit / *row.NetSales * 100
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, dest interface{}) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		io.Copy(io.Discard, resp.Body)
		return domain.NotFoundf("ticker not covered")
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
