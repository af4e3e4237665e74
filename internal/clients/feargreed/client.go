// Package feargreed fetches the external market fear & greed index. It is
// one of the two inputs of the composite sentiment score; the other is the
// VIX from the primary provider.
package feargreed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/folio/internal/domain"
)

const (
	defaultBaseURL = "https://production.dataviz.cnn.io"

	// The endpoint rejects non-browser agents.
	userAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:120.0) folio/1.0"
)

// Client fetches the published index score.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        zerolog.Logger
}

// NewClient creates a fear & greed client.
func NewClient(log zerolog.Logger) *Client {
	return &Client{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		log:        log.With().Str("client", "feargreed").Logger(),
	}
}

type graphDataResponse struct {
	FearAndGreed struct {
		Score  *float64 `json:"score"`
		Rating string   `json:"rating"`
	} `json:"fear_and_greed"`
}

// Score returns the current index value on the 0..100 scale.
func (c *Client) Score(ctx context.Context) (*float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/index/fearandgreed/graphdata", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var out graphDataResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if out.FearAndGreed.Score == nil {
		return nil, domain.NotFoundf("index score missing from response")
	}
	return out.FearAndGreed.Score, nil
}
