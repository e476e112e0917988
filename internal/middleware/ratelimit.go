package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/httprate"
)

// RateLimit limits requests per minute per client IP.
func RateLimit(requestsPerMinute int) func(http.Handler) http.Handler {
	return limit(requestsPerMinute, httprate.KeyByIP)
}

// RateLimitByUser limits per authenticated user, falling back to the client
// IP for anonymous requests. It must run after RequireAuth.
func RateLimitByUser(requestsPerMinute int) func(http.Handler) http.Handler {
	return limit(requestsPerMinute, func(r *http.Request) (string, error) {
		if userID, ok := GetUserID(r.Context()); ok {
			return "user:" + userID.String(), nil
		}
		return httprate.KeyByIP(r)
	})
}

func limit(requestsPerMinute int, key httprate.KeyFunc) func(http.Handler) http.Handler {
	if requestsPerMinute <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(
		requestsPerMinute,
		time.Minute,
		httprate.WithKeyFuncs(key),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]string{
				"error": "rate limit exceeded",
				"code":  "rate_limit",
			})
		}),
	)
}
