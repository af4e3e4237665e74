// Package yahoo is the primary market-data provider: quotes, daily history
// (single and multi-symbol), sector classification, ETF composition, beta,
// dividend yield, earnings dates, FX pairs and volatility indices.
package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/folio/internal/domain"
)

const (
	defaultBaseURL = "https://query1.finance.yahoo.com"

	// Requests without a browser-ish User-Agent are rejected.
	userAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:120.0) folio/1.0"
)

// Client talks to the public finance endpoints. It performs no caching and
// no rate limiting; both belong to the provider router.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        zerolog.Logger
}

// NewClient creates a Yahoo client.
func NewClient(log zerolog.Logger) *Client {
	return &Client{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		log:        log.With().Str("client", "yahoo").Logger(),
	}
}

// apiError is the error object embedded in chart and quoteSummary envelopes.
type apiError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// rawValue is Yahoo's {raw, fmt} number wrapper. Raw is nil when the field
// is present but empty.
type rawValue struct {
	Raw *float64 `json:"raw"`
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
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		io.Copy(io.Discard, resp.Body)
		return domain.NotFoundf("symbol not found")
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
