package middleware

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"

	"github.com/coldfront-labs/coldfront/internal/ratelimit"
)

// RateLimit returns middleware that rate-limits requests per caller: by the
// authenticated user when one is in the context, otherwise by client IP.
// When the limit is exceeded it responds with 429 and a JSON error body.
func RateLimit(limiter *ratelimit.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := callerKey(r)

			if !limiter.Allow(key) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(map[string]string{
					"error": "rate limit exceeded",
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func callerKey(r *http.Request) string {
	if user := UserFromContext(r.Context()); user != nil {
		return fmt.Sprintf("user:%d", user.ID)
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// RemoteAddr without a port, use it as-is.
		ip = r.RemoteAddr
	}
	return ip
}
