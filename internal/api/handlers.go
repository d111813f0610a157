package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	json "github.com/goccy/go-json"

	"github.com/example/eventvault/internal/api/middleware"
	"github.com/example/eventvault/internal/auth"
	"github.com/example/eventvault/internal/domain/aggregate"
	"github.com/example/eventvault/internal/domain/counter"
	"github.com/example/eventvault/internal/eventstore"
)

type Handlers struct {
	counters *eventstore.Engine[*counter.Counter]
	logger   *slog.Logger
}

func NewHandlers(counters *eventstore.Engine[*counter.Counter], logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{counters: counters, logger: logger}
}

type counterResponse struct {
	ID              string   `json:"id"`
	Value           int      `json:"value"`
	Label           string   `json:"label,omitempty"`
	Slug            string   `json:"slug,omitempty"`
	Notes           []string `json:"notes,omitempty"`
	Version         int      `json:"version"`
	SnapshotVersion int      `json:"snapshot_version"`
	IsDeleted       bool     `json:"is_deleted"`
}

type saveResponse struct {
	Counter counterResponse `json:"counter"`
	Skipped bool            `json:"skipped"`
}

func toResponse(c *counter.Counter) counterResponse {
	return counterResponse{
		ID:              c.ID,
		Value:           c.IncrementValue,
		Label:           c.Label,
		Slug:            c.Slug,
		Notes:           c.Notes,
		Version:         c.CurrentVersion,
		SnapshotVersion: c.SnapshotVersion,
		IsDeleted:       c.IsDeleted,
	}
}

// Read Handlers

func (h *Handlers) GetCounter(w http.ResponseWriter, r *http.Request) {
	var opts []eventstore.Option
	if r.URL.Query().Get("deleted") == "true" {
		opts = append(opts, eventstore.WithDeletedMode(eventstore.DeletedReturn))
	}

	c, err := h.counters.Get(r.Context(), r.PathValue("id"), opts...)
	if err != nil {
		h.respondEngineError(w, r, err)
		return
	}
	if c == nil {
		respondError(w, http.StatusNotFound, "counter not found")
		return
	}
	w.Header().Set("ETag", strconv.Itoa(c.SavedVersion))
	respondJSON(w, http.StatusOK, toResponse(c))
}

func (h *Handlers) GetCounterAt(w http.ResponseWriter, r *http.Request) {
	version, err := strconv.Atoi(r.PathValue("version"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "version must be a number")
		return
	}

	c, err := h.counters.GetAt(r.Context(), r.PathValue("id"), version,
		eventstore.WithDeletedMode(eventstore.DeletedReturn))
	if err != nil {
		h.respondEngineError(w, r, err)
		return
	}
	if c == nil {
		respondError(w, http.StatusNotFound, "counter not found")
		return
	}
	respondJSON(w, http.StatusOK, toResponse(c))
}

// Write Handlers

func (h *Handlers) Increment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		By int `json:"by"`
	}
	if !decode(w, r, &req) {
		return
	}
	h.mutate(w, r, func(c *counter.Counter) error { return c.Increment(req.By) })
}

func (h *Handlers) Rename(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Label string `json:"label"`
	}
	if !decode(w, r, &req) {
		return
	}
	h.mutate(w, r, func(c *counter.Counter) error { return c.Rename(req.Label) })
}

func (h *Handlers) Annotate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Note string `json:"note"`
	}
	if !decode(w, r, &req) {
		return
	}
	h.mutate(w, r, func(c *counter.Counter) error { return c.Annotate(req.Note) })
}

// mutate loads the counter, creating it when absent, applies change and
// saves. An If-Match header must equal the loaded version. A request whose
// idempotency key already wrote the newest event is answered with the
// current state and skipped set.
func (h *Handlers) mutate(w http.ResponseWriter, r *http.Request, change func(*counter.Counter) error) {
	ctx := r.Context()
	c, ok := h.load(w, r)
	if !ok {
		return
	}
	if c == nil {
		c = counter.New(r.PathValue("id"))
	} else if key, ok := eventstore.IdempotencyIDFrom(ctx); ok {
		applied, err := h.counters.LastCommittedWith(ctx, c, key)
		if err != nil {
			h.respondEngineError(w, r, err)
			return
		}
		if applied {
			w.Header().Set("ETag", strconv.Itoa(c.SavedVersion))
			respondJSON(w, http.StatusOK, saveResponse{Counter: toResponse(c), Skipped: true})
			return
		}
	}

	if err := change(c); err != nil {
		h.respondEngineError(w, r, err)
		return
	}

	res, err := h.counters.Save(ctx, c)
	if err != nil {
		h.respondEngineError(w, r, err)
		return
	}
	if !res.Valid() {
		messages := make([]string, len(res.ValidationErrors))
		for i, verr := range res.ValidationErrors {
			messages[i] = verr.Error()
		}
		respondJSON(w, http.StatusUnprocessableEntity, map[string]any{"error": "validation failed", "details": messages})
		return
	}

	w.Header().Set("ETag", strconv.Itoa(c.SavedVersion))
	respondJSON(w, http.StatusOK, saveResponse{Counter: toResponse(c), Skipped: res.Skipped})
}

func (h *Handlers) DeleteCounter(w http.ResponseWriter, r *http.Request) {
	permanent := r.URL.Query().Get("permanent") == "true"
	if permanent && !middleware.HasScope(r.Context(), auth.ScopeAdmin) {
		respondError(w, http.StatusForbidden, "permanent delete requires admin scope")
		return
	}

	c, ok := h.load(w, r)
	if !ok {
		return
	}
	if c == nil {
		respondError(w, http.StatusNotFound, "counter not found")
		return
	}

	var opts []eventstore.Option
	if permanent {
		opts = append(opts, eventstore.Permanently())
	}
	deleted, err := h.counters.Delete(r.Context(), c, opts...)
	if err != nil {
		h.respondEngineError(w, r, err)
		return
	}
	if !deleted {
		respondError(w, http.StatusInternalServerError, "delete failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) RestoreCounter(w http.ResponseWriter, r *http.Request) {
	c, err := h.counters.GetDeleted(r.Context(), r.PathValue("id"))
	if err != nil {
		h.respondEngineError(w, r, err)
		return
	}
	if c == nil {
		respondError(w, http.StatusNotFound, "counter not found")
		return
	}

	if _, err := h.counters.Restore(r.Context(), c); err != nil {
		h.respondEngineError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toResponse(c))
}

// load reads the live counter and checks If-Match. It writes the error
// response itself and reports false when the request must stop.
func (h *Handlers) load(w http.ResponseWriter, r *http.Request) (*counter.Counter, bool) {
	c, err := h.counters.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.respondEngineError(w, r, err)
		return nil, false
	}

	if match := r.Header.Get("If-Match"); match != "" {
		current := 0
		if c != nil {
			current = c.SavedVersion
		}
		if match != strconv.Itoa(current) {
			respondError(w, http.StatusPreconditionFailed, "version mismatch")
			return nil, false
		}
	}
	return c, true
}

// respondEngineError maps engine and domain errors to HTTP status codes.
func (h *Handlers) respondEngineError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, eventstore.ErrConcurrency),
		errors.Is(err, eventstore.ErrAggregateNotDeleted):
		status = http.StatusConflict
	case errors.Is(err, eventstore.ErrAggregateDeleted),
		errors.Is(err, aggregate.ErrDeleted):
		status = http.StatusGone
	case errors.Is(err, eventstore.ErrAggregateLocked),
		errors.Is(err, aggregate.ErrLocked):
		status = http.StatusLocked
	case errors.Is(err, eventstore.ErrTooManyEvents):
		status = http.StatusRequestEntityTooLarge
	case errors.Is(err, eventstore.ErrPrincipalRequired):
		status = http.StatusUnauthorized
	case errors.Is(err, eventstore.ErrInvalidVersion),
		errors.Is(err, counter.ErrInvalidIncrement),
		errors.Is(err, counter.ErrInvalidLabel),
		errors.Is(err, counter.ErrEmptyNote):
		status = http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusServiceUnavailable
	}

	if status >= http.StatusInternalServerError {
		h.logger.Error("[API] request failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()))
		respondError(w, status, "internal error")
		return
	}
	respondError(w, status, err.Error())
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
