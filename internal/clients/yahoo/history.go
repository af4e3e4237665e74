package yahoo

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aristath/folio/internal/domain"
)

// sparkChunkSize caps symbols per multi-history request.
const sparkChunkSize = 20

type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *apiError     `json:"error"`
	} `json:"chart"`
}

type chartResult struct {
	Meta struct {
		Symbol             string  `json:"symbol"`
		Currency           string  `json:"currency"`
		RegularMarketPrice float64 `json:"regularMarketPrice"`
		ChartPreviousClose float64 `json:"chartPreviousClose"`
		RegularMarketTime  int64   `json:"regularMarketTime"`
	} `json:"meta"`
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Open   []*float64 `json:"open"`
			High   []*float64 `json:"high"`
			Low    []*float64 `json:"low"`
			Close  []*float64 `json:"close"`
			Volume []*int64   `json:"volume"`
		} `json:"quote"`
	} `json:"indicators"`
}

// Quote returns the latest price for a ticker.
func (c *Client) Quote(ctx context.Context, ticker string) (*domain.Quote, error) {
	result, err := c.chart(ctx, ticker, "1d")
	if err != nil {
		return nil, err
	}

	asOf := time.Unix(result.Meta.RegularMarketTime, 0).UTC().Format(time.RFC3339)
	return &domain.Quote{
		Ticker:        result.Meta.Symbol,
		Price:         result.Meta.RegularMarketPrice,
		PreviousClose: result.Meta.ChartPreviousClose,
		Currency:      result.Meta.Currency,
		AsOf:          asOf,
	}, nil
}

// DailyHistory returns daily OHLCV bars for a ticker over a range such as
// "3mo", "1y" or "5y". Sessions with a null close (holidays, halts) are
// dropped.
func (c *Client) DailyHistory(ctx context.Context, ticker, rng string) ([]domain.Bar, error) {
	result, err := c.chart(ctx, ticker, rng)
	if err != nil {
		return nil, err
	}
	return barsFromChart(result), nil
}

// FXDailyHistory returns daily bars for a currency pair given as base+quote,
// e.g. "USDJPY".
func (c *Client) FXDailyHistory(ctx context.Context, pair, rng string) ([]domain.Bar, error) {
	return c.DailyHistory(ctx, pair+"=X", rng)
}

// VIX returns the current CBOE volatility index level.
func (c *Client) VIX(ctx context.Context) (*float64, error) {
	q, err := c.Quote(ctx, "^VIX")
	if err != nil {
		return nil, err
	}
	if q.Price == 0 {
		return nil, domain.NotFoundf("vix unavailable")
	}
	v := q.Price
	return &v, nil
}

// BulkDailyCloses fetches close-only daily history for many tickers at once
// via the multi-symbol spark endpoint. Bars carry Close in every price field
// and zero volume. Symbols the upstream does not know are absent from the
// result; the call fails only when the request itself fails.
func (c *Client) BulkDailyCloses(ctx context.Context, tickers []string, rng string) (map[string][]domain.Bar, error) {
	out := make(map[string][]domain.Bar, len(tickers))

	for start := 0; start < len(tickers); start += sparkChunkSize {
		end := start + sparkChunkSize
		if end > len(tickers) {
			end = len(tickers)
		}
		chunk := tickers[start:end]

		var resp sparkResponse
		query := url.Values{
			"symbols":  {strings.Join(chunk, ",")},
			"range":    {rng},
			"interval": {"1d"},
		}
		if err := c.getJSON(ctx, "/v8/finance/spark", query, &resp); err != nil {
			return nil, fmt.Errorf("bulk history failed: %w", err)
		}

		for _, r := range resp.Spark.Result {
			if len(r.Response) == 0 {
				continue
			}
			series := r.Response[0]
			if len(series.Indicators.Quote) == 0 {
				continue
			}
			closes := series.Indicators.Quote[0].Close

			bars := make([]domain.Bar, 0, len(series.Timestamp))
			for i, ts := range series.Timestamp {
				if i >= len(closes) || closes[i] == nil {
					continue
				}
				cl := *closes[i]
				bars = append(bars, domain.Bar{
					Date:  time.Unix(ts, 0).UTC().Format("2006-01-02"),
					Open:  cl,
					High:  cl,
					Low:   cl,
					Close: cl,
				})
			}
			if len(bars) > 0 {
				out[r.Symbol] = bars
			}
		}
	}

	c.log.Debug().Int("requested", len(tickers)).Int("returned", len(out)).Msg("Bulk history fetched")
	return out, nil
}

type sparkResponse struct {
	Spark struct {
		Result []struct {
			Symbol   string `json:"symbol"`
			Response []struct {
				Timestamp  []int64 `json:"timestamp"`
				Indicators struct {
					Quote []struct {
						Close []*float64 `json:"close"`
					} `json:"quote"`
				} `json:"indicators"`
			} `json:"response"`
		} `json:"result"`
	} `json:"spark"`
}

func (c *Client) chart(ctx context.Context, ticker, rng string) (*chartResult, error) {
	var resp chartResponse
	query := url.Values{"range": {rng}, "interval": {"1d"}}
	if err := c.getJSON(ctx, "/v8/finance/chart/"+url.PathEscape(ticker), query, &resp); err != nil {
		return nil, err
	}

	if resp.Chart.Error != nil {
		if strings.EqualFold(resp.Chart.Error.Code, "Not Found") {
			return nil, domain.NotFoundf("symbol %s not found", ticker)
		}
		return nil, fmt.Errorf("chart error: %s: %s", resp.Chart.Error.Code, resp.Chart.Error.Description)
	}
	if len(resp.Chart.Result) == 0 {
		return nil, domain.NotFoundf("symbol %s not found", ticker)
	}
	return &resp.Chart.Result[0], nil
}

func barsFromChart(result *chartResult) []domain.Bar {
	if len(result.Indicators.Quote) == 0 {
		return nil
	}
	quote := result.Indicators.Quote[0]

	bars := make([]domain.Bar, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		if i >= len(quote.Close) || quote.Close[i] == nil {
			continue
		}
		bar := domain.Bar{
			Date:  time.Unix(ts, 0).UTC().Format("2006-01-02"),
			Close: *quote.Close[i],
		}
		bar.Open, bar.High, bar.Low = bar.Close, bar.Close, bar.Close
		if i < len(quote.Open) && quote.Open[i] != nil {
			bar.Open = *quote.Open[i]
		}
		if i < len(quote.High) && quote.High[i] != nil {
			bar.High = *quote.High[i]
		}
		if i < len(quote.Low) && quote.Low[i] != nil {
			bar.Low = *quote.Low[i]
		}
		if i < len(quote.Volume) && quote.Volume[i] != nil {
			bar.Volume = *quote.Volume[i]
		}
		bars = append(bars, bar)
	}
	return bars
}
