package server

import (
	"context"
	"net/http"
	"time"
)

// TimeoutMiddleware bounds the whole turn with one request deadline.
// Cancellation is cooperative: handlers observe ctx.Done(), provider
// calls inherit the deadline.
func TimeoutMiddleware(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
