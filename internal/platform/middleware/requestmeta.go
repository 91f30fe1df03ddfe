package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"reservemint/pkg/requestcontext"
)

// RequestMeta stamps every request with a correlation ID and a pinned
// request time. Services read both through pkg/requestcontext, so all
// ledger mutations within one request observe the same instant.
func RequestMeta(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		ctx = requestcontext.WithRequestID(ctx, requestID)
		ctx = requestcontext.WithTime(ctx, requestTime())

		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
