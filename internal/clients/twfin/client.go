// Package twfin is the Taiwanese financial-statements provider, the moat
// fallback for .TW and .TWO tickers. The upstream serves statements as long
// rows (one row per date+line-item) rather than one object per period.
package twfin

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

const (
	defaultBaseURL = "https://api.finmindtrade.com/api/v4"

	datasetStatements = "TaiwanStockFinancialStatements"

	itemRevenue     = "Revenue"
	itemGrossProfit = "GrossProfit"
)

// Client talks to the TW statements API. An unset token disables the
// provider and the router falls through.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	log        zerolog.Logger
}

// NewClient creates a TW statements client. token may be empty.
func NewClient(token string, log zerolog.Logger) *Client {
	return &Client{
		baseURL:    defaultBaseURL,
		token:      token,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		log:        log.With().Str("client", "twfin").Logger(),
	}
}

// IsConfigured reports whether the provider can be called at all.
func (c *Client) IsConfigured() bool { return c.token != "" }

type statementRow struct {
	Date  string  `json:"date"`
	Type  string  `json:"type"`
	Value float64 `json:"value"`
}

type statementResponse struct {
	Status int            `json:"status"`
	Msg    string         `json:"msg"`
	Data   []statementRow `json:"data"`
}

// MarginTrend returns the gross margin (percent) of the most recent quarter
// and of the quarter one year earlier. Statement dates are quarter ends, so
// the year-earlier period is the same month and day in the prior year.
func (c *Client) MarginTrend(ctx context.Context, ticker string) (current, previous float64, err error) {
	if !c.IsConfigured() {
		return 0, 0, fmt.Errorf("twfin provider not configured")
	}

	code := strings.ToUpper(strings.TrimSpace(ticker))
	code = strings.TrimSuffix(code, ".TWO")
	code = strings.TrimSuffix(code, ".TW")

	since := time.Now().UTC().AddDate(-2, 0, 0).Format("2006-01-02")
	query := url.Values{
		"dataset":    {datasetStatements},
		"data_id":    {code},
		"start_date": {since},
		"token":      {c.token},
	}

	var resp statementResponse
	if err := c.getJSON(ctx, "/data", query, &resp); err != nil {
		return 0, 0, err
	}
	if resp.Status != 0 && resp.Status != http.StatusOK {
		return 0, 0, fmt.Errorf("upstream status %d: %s", resp.Status, resp.Msg)
	}

	margins := marginsByDate(resp.Data)
	if len(margins) == 0 {
		return 0, 0, domain.NotFoundf("no statements for %s", ticker)
	}

	dates := make([]string, 0, len(margins))
	for date := range margins {
		dates = append(dates, date)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))

	latest := dates[0]
	yearEarlier := priorYear(latest)
	prev, ok := margins[yearEarlier]
	if !ok {
		return 0, 0, domain.NotFoundf("no year-earlier statement for %s", ticker)
	}
	return margins[latest], prev, nil
}

// marginsByDate pairs Revenue and GrossProfit rows per statement date.
func marginsByDate(rows []statementRow) map[string]float64 {
	revenue := make(map[string]float64)
	gross := make(map[string]float64)
	for _, row := range rows {
		switch row.Type {
		case itemRevenue:
			revenue[row.Date] = row.Value
		case itemGrossProfit:
			gross[row.Date] = row.Value
		}
	}

	margins := make(map[string]float64)
	for date, rev := range revenue {
		if rev <= 0 {
			continue
		}
		if gp, ok := gross[date]; ok {
			margins[date] = gp / rev * 100
		}
	}
	return margins
}

// priorYear shifts an ISO date one year back, keeping month and day.
func priorYear(date string) string {
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return ""
	}
	return t.AddDate(-1, 0, 0).Format("2006-01-02")
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
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
