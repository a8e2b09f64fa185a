package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"

	pkghttp "github.com/hanswolff/clubportal/pkg/http"
)

// RateLimitByIP is a coarse per-IP request cap for public endpoints. The
// per-account limiter profiles in internal/ratelimit do the fine-grained
// work; this only blunts scripted floods before they reach a handler.
func RateLimitByIP(requestsPerMinute int) func(next http.Handler) http.Handler {
	return httprate.Limit(
		requestsPerMinute,
		time.Minute,
		httprate.WithKeyByRealIP(),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			pkghttp.WriteTooManyRequests(w, "Too many requests", time.Time{})
		}),
	)
}
