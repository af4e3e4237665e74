package server

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/aristath/folio/internal/domain"
)

// requireAPIKey gates requests on the X-API-Key header. The comparison is
// constant-time so the key cannot be probed byte by byte.
func requireAPIKey(key string, log zerolog.Logger) func(http.Handler) http.Handler {
	expected := []byte(key)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := []byte(r.Header.Get("X-API-Key"))
			if subtle.ConstantTimeCompare(got, expected) != 1 {
				log.Warn().Str("path", r.URL.Path).Msg("rejected request with missing or invalid API key")
				writeErrorBody(w, http.StatusUnauthorized, domain.KindUnauthorized, "missing or invalid API key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// routeLimiter throttles the endpoints that trigger expensive work. Every
// limited route is a fixed path, so a method+path table is enough.
type routeLimiter struct {
	limits map[string]*rate.Limiter
}

func newRouteLimiter() *routeLimiter {
	perMinute := func(n int) *rate.Limiter {
		return rate.NewLimiter(rate.Every(time.Minute/time.Duration(n)), n)
	}
	return &routeLimiter{limits: map[string]*rate.Limiter{
		"POST /api/scan":                          perMinute(5),
		"POST /api/digest":                        perMinute(5),
		"POST /api/webhook":                       perMinute(5),
		"POST /api/snapshots/take":                perMinute(10),
		"POST /api/snapshots/backfill-benchmarks": perMinute(3),
		"POST /api/admin/cache/clear":             perMinute(10),
		"POST /api/settings/telegram/test":        perMinute(3),
	}}
}

func (l *routeLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + strings.TrimSuffix(r.URL.Path, "/")
		if lim, ok := l.limits[key]; ok && !lim.Allow() {
			writeErrorBody(w, http.StatusTooManyRequests, domain.KindRateLimited, "endpoint quota exceeded, retry later")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// writeErrorBody emits the transport error payload without a handler in
// scope. Middleware rejections use it directly.
func writeErrorBody(w http.ResponseWriter, status int, kind domain.ErrorKind, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error_code": string(kind),
		"detail":     detail,
	})
}
