package twfin

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/folio/internal/domain"
)

func newTestClient(t *testing.T, body string, wantDataID string) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if wantDataID != "" {
			assert.Equal(t, wantDataID, r.URL.Query().Get("data_id"))
		}
		assert.Equal(t, "test-token", r.URL.Query().Get("token"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	c := NewClient("test-token", zerolog.Nop())
	c.baseURL = srv.URL
	return c
}

func TestMarginTrendPairsRowsByDate(t *testing.T) {
	body := `{"status":200,"msg":"success","data":[
		{"date":"2024-06-30","type":"Revenue","value":1000.0},
		{"date":"2024-06-30","type":"GrossProfit","value":530.0},
		{"date":"2024-06-30","type":"OperatingExpenses","value":120.0},
		{"date":"2023-06-30","type":"Revenue","value":900.0},
		{"date":"2023-06-30","type":"GrossProfit","value":495.0}
	]}`

	c := newTestClient(t, body, "2330")
	current, previous, err := c.MarginTrend(context.Background(), "2330.TW")
	require.NoError(t, err)

	assert.InDelta(t, 53.0, current, 1e-9)
	assert.InDelta(t, 55.0, previous, 1e-9)
}

func TestMarginTrendStripsTWOSuffix(t *testing.T) {
	body := `{"status":200,"msg":"success","data":[
		{"date":"2024-06-30","type":"Revenue","value":200.0},
		{"date":"2024-06-30","type":"GrossProfit","value":50.0},
		{"date":"2023-06-30","type":"Revenue","value":180.0},
		{"date":"2023-06-30","type":"GrossProfit","value":54.0}
	]}`

	c := newTestClient(t, body, "6488")
	current, previous, err := c.MarginTrend(context.Background(), "6488.TWO")
	require.NoError(t, err)

	assert.InDelta(t, 25.0, current, 1e-9)
	assert.InDelta(t, 30.0, previous, 1e-9)
}

func TestMarginTrendMissingYearEarlier(t *testing.T) {
	body := `{"status":200,"msg":"success","data":[
		{"date":"2024-06-30","type":"Revenue","value":1000.0},
		{"date":"2024-06-30","type":"GrossProfit","value":530.0},
		{"date":"2024-03-31","type":"Revenue","value":950.0},
		{"date":"2024-03-31","type":"GrossProfit","value":500.0}
	]}`

	c := newTestClient(t, body, "")
	_, _, err := c.MarginTrend(context.Background(), "2330.TW")
	require.Error(t, err)
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))
}

func TestMarginTrendEmptyData(t *testing.T) {
	c := newTestClient(t, `{"status":200,"msg":"success","data":[]}`, "")
	_, _, err := c.MarginTrend(context.Background(), "2330.TW")
	require.Error(t, err)
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))
}

func TestMarginTrendUnconfigured(t *testing.T) {
	c := NewClient("", zerolog.Nop())
	_, _, err := c.MarginTrend(context.Background(), "2330.TW")
	assert.Error(t, err)
}
