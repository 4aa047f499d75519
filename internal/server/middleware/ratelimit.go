package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"

	"github.com/keypanel/keypanel/internal/model"
)

// RateLimit returns an HTTP middleware that limits requests per client IP to
// the given number per minute. A limit of zero or less disables it.
func RateLimit(requestsPerMinute int) func(http.Handler) http.Handler {
	if requestsPerMinute <= 0 {
		return passthrough
	}
	return httprate.Limit(
		requestsPerMinute,
		time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(limitExceeded),
	)
}

// RateLimitPerApp limits requests per (client IP, X-Owner-ID) pair.
func RateLimitPerApp(requestsPerMinute int) func(http.Handler) http.Handler {
	if requestsPerMinute <= 0 {
		return passthrough
	}
	return httprate.Limit(
		requestsPerMinute,
		time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP, func(r *http.Request) (string, error) {
			return r.Header.Get(HeaderOwnerID), nil
		}),
		httprate.WithLimitHandler(limitExceeded),
	)
}

func passthrough(next http.Handler) http.Handler { return next }

func limitExceeded(w http.ResponseWriter, r *http.Request) {
	writeJSONStatus(w, http.StatusTooManyRequests, model.ErrorResponse{Error: "Too many requests"})
}
