package middleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"

	"github.com/kiranshivaraju/pdfgate/internal/api/response"
	"github.com/kiranshivaraju/pdfgate/internal/cache"
)

const throttleWindow = time.Minute

// Throttle caps requests per principal per minute ahead of the monthly
// quota. With a cache the window is shared across instances; without one
// an in-process sliding window is used. Throttled requests are not billed.
// perMinute <= 0 disables throttling.
func Throttle(c cache.Cache, perMinute int) func(http.Handler) http.Handler {
	if perMinute <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if c == nil {
		return httprate.Limit(perMinute, throttleWindow,
			httprate.WithKeyFuncs(throttleBucket),
			httprate.WithLimitHandler(throttled),
			httprate.WithResponseHeaders(httprate.ResponseHeaders{RetryAfter: "Retry-After"}),
		)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bucket, _ := throttleBucket(r)
			count, err := c.IncrWithExpiry(r.Context(), cache.ThrottleKey(bucket, time.Now()), throttleWindow)
			if err != nil {
				// Fail open on cache errors; the monthly quota still applies.
				slog.Warn("throttle counter unavailable", "error", err)
				next.ServeHTTP(w, r)
				return
			}
			if count > int64(perMinute) {
				throttled(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func throttleBucket(r *http.Request) (string, error) {
	if p, ok := GetPrincipal(r); ok {
		if p.Keyed() {
			return "key:" + p.Identity, nil
		}
		return "ip:" + p.Identity, nil
	}
	return "ip:" + ClientIP(r), nil
}

func throttled(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Retry-After", strconv.Itoa(int(throttleWindow.Seconds())))
	response.Error(w, http.StatusTooManyRequests,
		"RATE_LIMIT_EXCEEDED", "Too many requests, slow down", nil)
}
