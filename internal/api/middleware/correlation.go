package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/example/eventvault/internal/eventstore"
)

const (
	IdempotencyKeyHeader = "Idempotency-Key"
	RequestIDHeader      = "X-Request-ID"
)

// Correlation turns the client's Idempotency-Key, or failing that its
// X-Request-ID, into the idempotency id of the request's saves. Handlers
// use it to acknowledge a retry whose first attempt already committed
// instead of applying it twice. The response always carries an X-Request-ID.
func Correlation(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		key := r.Header.Get(IdempotencyKeyHeader)
		if key == "" {
			key = requestID
		}
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, requestID)

		ctx := r.Context()
		if key != "" {
			ctx = eventstore.WithIdempotencyID(ctx, key)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
