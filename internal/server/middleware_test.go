package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequireAPIKeyRejectsBadKeys(t *testing.T) {
	protected := requireAPIKey("s3cret", zerolog.Nop())(okHandler())

	tests := []struct {
		name string
		key  string
		want int
	}{
		{"missing key", "", http.StatusUnauthorized},
		{"wrong key", "guess", http.StatusUnauthorized},
		{"prefix of the key", "s3cre", http.StatusUnauthorized},
		{"correct key", "s3cret", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/stocks", nil)
			if tt.key != "" {
				req.Header.Set("X-API-Key", tt.key)
			}
			rec := httptest.NewRecorder()

			protected.ServeHTTP(rec, req)

			require.Equal(t, tt.want, rec.Code)
			if tt.want == http.StatusUnauthorized {
				var body map[string]string
				require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
				assert.Equal(t, "unauthorized", body["error_code"])
			}
		})
	}
}

func TestRouteLimiterThrottlesListedRoutes(t *testing.T) {
	limited := newRouteLimiter().middleware(okHandler())

	post := func(path string) int {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader("{}"))
		rec := httptest.NewRecorder()
		limited.ServeHTTP(rec, req)
		return rec.Code
	}

	// Burst capacity is the per-minute quota; the next call trips the limit.
	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusOK, post("/api/snapshots/backfill-benchmarks"), "call %d", i+1)
	}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/snapshots/backfill-benchmarks", nil)
	limited.ServeHTTP(rec, req)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "rate_limited", body["error_code"])
}

func TestRouteLimiterLeavesOtherRoutesAlone(t *testing.T) {
	limited := newRouteLimiter().middleware(okHandler())

	for i := 0; i < 50; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/stocks", nil)
		rec := httptest.NewRecorder()
		limited.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	// GET on a limited POST path is not throttled either.
	req := httptest.NewRequest(http.MethodGet, "/api/scan", nil)
	rec := httptest.NewRecorder()
	limited.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRouteLimiterNormalizesTrailingSlash(t *testing.T) {
	limited := newRouteLimiter().middleware(okHandler())

	// /api/scan/ and /api/scan share one limiter.
	paths := []string{"/api/scan", "/api/scan/"}
	allowed := 0
	for i := 0; i < 10; i++ {
		req := httptest.NewRequest(http.MethodPost, paths[i%2], nil)
		rec := httptest.NewRecorder()
		limited.ServeHTTP(rec, req)
		if rec.Code == http.StatusOK {
			allowed++
		}
	}
	assert.Equal(t, 5, allowed)
}

func TestWebhookRejectsUnknownAction(t *testing.T) {
	h := &SystemHandlers{log: zerolog.Nop()}

	req := httptest.NewRequest(http.MethodPost, "/api/webhook", strings.NewReader(`{"action":"reboot"}`))
	rec := httptest.NewRecorder()
	h.HandleWebhook(rec, req)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "validation_failed", body["error_code"])
	assert.Contains(t, body["detail"], "reboot")
}

func TestWebhookRejectsMalformedBody(t *testing.T) {
	h := &SystemHandlers{log: zerolog.Nop()}

	req := httptest.NewRequest(http.MethodPost, "/api/webhook", strings.NewReader("not json"))
	rec := httptest.NewRecorder()
	h.HandleWebhook(rec, req)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}
