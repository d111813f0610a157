package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/example/eventvault/internal/auth"
	"github.com/example/eventvault/internal/eventstore"
)

func TestCorrelation(t *testing.T) {
	tests := []struct {
		name          string
		headers       map[string]string
		wantKey       string
		wantRequestID string
	}{
		{
			name:          "idempotency key wins",
			headers:       map[string]string{IdempotencyKeyHeader: "key-1", RequestIDHeader: "req-1"},
			wantKey:       "key-1",
			wantRequestID: "req-1",
		},
		{
			name:          "request id is the fallback key",
			headers:       map[string]string{RequestIDHeader: "req-2"},
			wantKey:       "req-2",
			wantRequestID: "req-2",
		},
		{
			name: "no headers",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var (
				key   string
				found bool
			)
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				key, found = eventstore.IdempotencyIDFrom(r.Context())
			})

			req := httptest.NewRequest(http.MethodPost, "/counters/c-1/increment", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()

			Correlation(handler).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantKey != "", found)
			assert.Equal(t, tt.wantKey, key)
			if tt.wantRequestID != "" {
				assert.Equal(t, tt.wantRequestID, rec.Header().Get(RequestIDHeader))
			} else {
				assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
			}
		})
	}
}

func TestRateLimiter(t *testing.T) {
	limiter := NewRateLimiter(0.001, 2)
	handler := limiter.Middleware(okHandler())

	send := func(remote string) int {
		req := httptest.NewRequest(http.MethodGet, "/counters/c-1", nil)
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, send("10.0.0.1:1234"))
	assert.Equal(t, http.StatusOK, send("10.0.0.1:1235"))
	assert.Equal(t, http.StatusTooManyRequests, send("10.0.0.1:1236"))
	assert.Equal(t, http.StatusOK, send("10.0.0.2:1234"))
}

func TestRateLimiter_KeysByPrincipal(t *testing.T) {
	limiter := NewRateLimiter(0.001, 1)
	jwtService := auth.NewJWTService("test-secret-key", "eventvault", time.Minute)
	handler := AuthMiddleware(jwtService)(limiter.Middleware(okHandler()))

	send := func(principal string) *httptest.ResponseRecorder {
		token, _, _ := jwtService.GenerateToken(principal, auth.ScopeRead)
		req := httptest.NewRequest(http.MethodGet, "/counters/c-1", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, send("alice").Code)
	limited := send("alice")
	assert.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.NotEmpty(t, limited.Header().Get("Retry-After"))
	assert.Equal(t, http.StatusOK, send("bob").Code)
}
