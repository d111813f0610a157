package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/eventvault/internal/api/middleware"
	"github.com/example/eventvault/internal/auth"
	"github.com/example/eventvault/internal/domain/counter"
	"github.com/example/eventvault/internal/event"
	"github.com/example/eventvault/internal/eventstore"
	"github.com/example/eventvault/internal/infrastructure/store"
)

type testServer struct {
	handler http.Handler
	logs    *store.MemoryLogStore
	engine  *eventstore.Engine[*counter.Counter]
	jwt     *auth.JWTService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	registry := event.NewRegistry()
	counter.RegisterEvents(registry)
	logs := store.NewMemoryLogStore()

	engine, err := eventstore.New(eventstore.Config[*counter.Counter]{
		TypeName:  counter.AggregateType,
		New:       counter.New,
		Logs:      logs,
		Blobs:     store.NewMemoryBlobStore(),
		Cache:     store.NewMemoryCache(100),
		Registry:  registry,
		Validator: eventstore.ValidatorFunc[*counter.Counter](counter.Validate),
	})
	require.NoError(t, err)
	t.Cleanup(engine.Wait)

	jwtService := auth.NewJWTService("test-secret-key", "eventvault", time.Hour)
	return &testServer{
		handler: NewRouter(RouterConfig{
			Handlers:   NewHandlers(engine, nil),
			JWTService: jwtService,
		}),
		logs:   logs,
		engine: engine,
		jwt:    jwtService,
	}
}

func (s *testServer) do(t *testing.T, method, path, body string, scopes []string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if scopes != nil {
		token, _, err := s.jwt.GenerateToken("user-1", scopes...)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

var (
	readWrite = []string{auth.ScopeRead, auth.ScopeWrite}
	admin     = []string{auth.ScopeAdmin}
)

func decodeCounter(t *testing.T, rec *httptest.ResponseRecorder) counterResponse {
	t.Helper()
	var resp counterResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func decodeSave(t *testing.T, rec *httptest.ResponseRecorder) saveResponse {
	t.Helper()
	var resp saveResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/healthz", "", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader))
}

func TestIncrement_CreatesAndUpdates(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/counters/c-1/increment", `{"by":3}`, readWrite, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	saved := decodeSave(t, rec)
	assert.Equal(t, 3, saved.Counter.Value)
	assert.Equal(t, 1, saved.Counter.Version)
	assert.Equal(t, "1", rec.Header().Get("ETag"))

	rec = s.do(t, http.MethodPost, "/counters/c-1/rename", `{"label":"Page Views"}`, readWrite, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/counters/c-1", "", readWrite, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeCounter(t, rec)
	assert.Equal(t, 3, got.Value)
	assert.Equal(t, "Page Views", got.Label)
	assert.Equal(t, "page-views", got.Slug)
	assert.Equal(t, 2, got.Version)
}

func TestGetCounter_Errors(t *testing.T) {
	s := newTestServer(t)

	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/counters/c-1", "", nil, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/counters/c-1", "", readWrite, nil).Code)
	assert.Equal(t, http.StatusForbidden,
		s.do(t, http.MethodPost, "/counters/c-1/increment", `{"by":1}`, []string{auth.ScopeRead}, nil).Code)
}

func TestWrite_BadInput(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name string
		path string
		body string
		want int
	}{
		{"malformed body", "/counters/c-1/increment", `{`, http.StatusBadRequest},
		{"zero increment", "/counters/c-1/increment", `{"by":0}`, http.StatusBadRequest},
		{"empty label", "/counters/c-1/rename", `{"label":"  "}`, http.StatusBadRequest},
		{"label too long", "/counters/c-1/rename", fmt.Sprintf(`{"label":%q}`, strings.Repeat("a", 101)), http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, tt.path, tt.body, readWrite, nil)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestWrite_IdempotencyKeyIsStamped(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/counters/c-1/notes", `{"note":"first"}`, readWrite,
		map[string]string{middleware.IdempotencyKeyHeader: "key-1"})
	require.Equal(t, http.StatusOK, rec.Code)

	row, err := s.logs.Get(context.Background(), "c-1", "Event-0000000001")
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, "key-1", row.IdempotencyID)
	assert.Equal(t, "user-1", row.UserID)
}

func TestWrite_RetryWithSameKeyIsSkipped(t *testing.T) {
	s := newTestServer(t)
	retry := map[string]string{middleware.IdempotencyKeyHeader: "retry-1"}

	rec := s.do(t, http.MethodPost, "/counters/c-1/increment", `{"by":1}`, readWrite, retry)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	first := decodeSave(t, rec)
	assert.False(t, first.Skipped)
	assert.Equal(t, 1, first.Counter.Value)

	rec = s.do(t, http.MethodPost, "/counters/c-1/increment", `{"by":1}`, readWrite, retry)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	second := decodeSave(t, rec)
	assert.True(t, second.Skipped)
	assert.Equal(t, 1, second.Counter.Value)
	assert.Equal(t, 1, second.Counter.Version)
	assert.Equal(t, "1", rec.Header().Get("ETag"))

	rec = s.do(t, http.MethodPost, "/counters/c-1/increment", `{"by":1}`, readWrite,
		map[string]string{middleware.IdempotencyKeyHeader: "retry-2"})
	require.Equal(t, http.StatusOK, rec.Code)
	third := decodeSave(t, rec)
	assert.False(t, third.Skipped)
	assert.Equal(t, 2, third.Counter.Value)
	assert.Equal(t, 2, third.Counter.Version)
}

func TestWrite_IfMatch(t *testing.T) {
	s := newTestServer(t)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/counters/c-1/increment", `{"by":1}`, readWrite, nil).Code)

	rec := s.do(t, http.MethodPost, "/counters/c-1/increment", `{"by":1}`, readWrite, map[string]string{"If-Match": "0"})
	assert.Equal(t, http.StatusPreconditionFailed, rec.Code)

	rec = s.do(t, http.MethodPost, "/counters/c-1/increment", `{"by":1}`, readWrite, map[string]string{"If-Match": "1"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGetCounterAt(t *testing.T) {
	s := newTestServer(t)
	for _, by := range []int{1, 2, 4} {
		rec := s.do(t, http.MethodPost, "/counters/c-1/increment", fmt.Sprintf(`{"by":%d}`, by), readWrite, nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := s.do(t, http.MethodGet, "/counters/c-1/versions/2", "", readWrite, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, decodeCounter(t, rec).Value)

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/counters/c-1/versions/x", "", readWrite, nil).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/counters/c-1/versions/0", "", readWrite, nil).Code)
}

func TestDeleteAndRestore(t *testing.T) {
	s := newTestServer(t)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/counters/c-1/increment", `{"by":5}`, readWrite, nil).Code)

	assert.Equal(t, http.StatusNoContent, s.do(t, http.MethodDelete, "/counters/c-1", "", readWrite, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/counters/c-1", "", readWrite, nil).Code)

	rec := s.do(t, http.MethodGet, "/counters/c-1?deleted=true", "", readWrite, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeCounter(t, rec).IsDeleted)

	rec = s.do(t, http.MethodPost, "/counters/c-1/restore", "", readWrite, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	restored := decodeCounter(t, rec)
	assert.False(t, restored.IsDeleted)
	assert.Equal(t, 5, restored.Value)
	assert.Equal(t, 3, restored.Version)

	assert.Equal(t, http.StatusConflict, s.do(t, http.MethodPost, "/counters/c-1/restore", "", readWrite, nil).Code)
}

func TestPermanentDelete(t *testing.T) {
	s := newTestServer(t)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/counters/c-1/increment", `{"by":5}`, readWrite, nil).Code)

	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodDelete, "/counters/c-1?permanent=true", "", readWrite, nil).Code)
	assert.Equal(t, http.StatusNoContent, s.do(t, http.MethodDelete, "/counters/c-1?permanent=true", "", admin, nil).Code)
	s.engine.Wait()

	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/counters/c-1?deleted=true", "", admin, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodDelete, "/counters/c-1", "", admin, nil).Code)
}

func TestRespondEngineError(t *testing.T) {
	h := NewHandlers(nil, nil)
	tests := []struct {
		err  error
		want int
	}{
		{&eventstore.ConcurrencyError{AggregateID: "c-1"}, http.StatusConflict},
		{eventstore.ErrAggregateNotDeleted, http.StatusConflict},
		{eventstore.ErrAggregateDeleted, http.StatusGone},
		{eventstore.ErrAggregateLocked, http.StatusLocked},
		{fmt.Errorf("save: %w", eventstore.ErrTooManyEvents), http.StatusRequestEntityTooLarge},
		{eventstore.ErrPrincipalRequired, http.StatusUnauthorized},
		{counter.ErrInvalidIncrement, http.StatusBadRequest},
		{context.DeadlineExceeded, http.StatusServiceUnavailable},
		{&eventstore.CommitError{AggregateID: "c-1", Err: errors.New("boom")}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.respondEngineError(rec, httptest.NewRequest(http.MethodGet, "/counters/c-1", nil), tt.err)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}
