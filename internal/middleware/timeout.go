package middleware

import (
	"context"
	"net/http"
	"time"
)

// DefaultRequestTimeout bounds store I/O for one request. Handlers pass the
// request context into every pgx and Mongo call, so a stalled store turns
// into a surfaced error instead of a hung connection.
const DefaultRequestTimeout = 10 * time.Second

// RequestTimeout attaches a deadline to the request context.
func RequestTimeout(d time.Duration) func(http.Handler) http.Handler {
	if d <= 0 {
		d = DefaultRequestTimeout
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
