package notification

import (
	"context"
	"time"
)

type Kind string

const (
	KindSaved   Kind = "saved"
	KindDeleted Kind = "deleted"
	KindFailed  Kind = "failed"
)

// EventHeader describes one committed event without its payload.
type EventHeader struct {
	Version  int       `json:"version"`
	TypeName string    `json:"type_name"`
	When     time.Time `json:"when"`
}

// Change describes a write against one aggregate.
type Change struct {
	AggregateType string        `json:"aggregate_type"`
	AggregateID   string        `json:"aggregate_id"`
	Version       int           `json:"version"`
	IdempotencyID string        `json:"idempotency_id,omitempty"`
	UserID        string        `json:"user_id,omitempty"`
	IsDeleted     bool          `json:"is_deleted"`
	Permanent     bool          `json:"permanent,omitempty"`
	Events        []EventHeader `json:"events,omitempty"`
}

// Message is the change-feed wire format.
type Message struct {
	Kind        Kind      `json:"kind"`
	Change      Change    `json:"change"`
	Error       string    `json:"error,omitempty"`
	PublishedAt time.Time `json:"published_at"`
}

// Notifier receives lifecycle hooks around saves and deletes. Errors are
// reported by the caller but never undo a committed write.
type Notifier interface {
	BeforeSave(ctx context.Context, c Change) error
	AfterSave(ctx context.Context, c Change) error
	BeforeDelete(ctx context.Context, c Change) error
	AfterDelete(ctx context.Context, c Change) error
	OnFailure(ctx context.Context, c Change, cause error) error
}

// Nop ignores every hook.
type Nop struct{}

func (Nop) BeforeSave(context.Context, Change) error       { return nil }
func (Nop) AfterSave(context.Context, Change) error        { return nil }
func (Nop) BeforeDelete(context.Context, Change) error     { return nil }
func (Nop) AfterDelete(context.Context, Change) error      { return nil }
func (Nop) OnFailure(context.Context, Change, error) error { return nil }
