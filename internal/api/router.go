package api

import (
	"log/slog"
	"net/http"

	"github.com/example/eventvault/internal/api/middleware"
	"github.com/example/eventvault/internal/auth"
)

type RouterConfig struct {
	Handlers   *Handlers
	JWTService *auth.JWTService
	Limiter    *middleware.RateLimiter
	Logger     *slog.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()
	h := cfg.Handlers

	authn := middleware.AuthMiddleware(cfg.JWTService)
	scoped := func(scope string, fn http.HandlerFunc) http.Handler {
		var handler http.Handler = middleware.RequireScope(scope)(fn)
		if cfg.Limiter != nil {
			handler = cfg.Limiter.Middleware(handler)
		}
		return authn(handler)
	}

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Counters
	mux.Handle("GET /counters/{id}", scoped(auth.ScopeRead, h.GetCounter))
	mux.Handle("GET /counters/{id}/versions/{version}", scoped(auth.ScopeRead, h.GetCounterAt))
	mux.Handle("POST /counters/{id}/increment", scoped(auth.ScopeWrite, h.Increment))
	mux.Handle("POST /counters/{id}/rename", scoped(auth.ScopeWrite, h.Rename))
	mux.Handle("POST /counters/{id}/notes", scoped(auth.ScopeWrite, h.Annotate))
	mux.Handle("POST /counters/{id}/restore", scoped(auth.ScopeWrite, h.RestoreCounter))
	mux.Handle("DELETE /counters/{id}", scoped(auth.ScopeWrite, h.DeleteCounter))

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return middleware.Logging(logger)(middleware.Correlation(mux))
}
