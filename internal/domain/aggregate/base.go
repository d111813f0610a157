package aggregate

import (
	"errors"

	"github.com/example/eventvault/internal/event"
)

var (
	ErrLocked  = errors.New("aggregate: locked")
	ErrDeleted = errors.New("aggregate: deleted")
)

// Aggregate is implemented by every event-sourced aggregate. ApplyEvent returns
// false when the aggregate does not know how to apply the payload.
type Aggregate interface {
	AggregateBase() *Base
	ApplyEvent(data event.Named) bool
}

// Base carries the version bookkeeping shared by all aggregates. Embed it.
type Base struct {
	ID               string `json:"id"`
	CurrentVersion   int    `json:"currentVersion"`
	SavedVersion     int    `json:"savedVersion"`
	SnapshotVersion  int    `json:"snapshotVersion"`
	IsDeleted        bool   `json:"isDeleted"`
	ConcurrencyToken string `json:"concurrencyToken,omitempty"`
	Locked           bool   `json:"-"`

	unsaved []event.Event
}

func (b *Base) AggregateBase() *Base { return b }

// IsNew reports whether the aggregate was never persisted.
func (b *Base) IsNew() bool { return b.SavedVersion == 0 }

// UnsavedEvents returns a copy of the pending events in version order.
func (b *Base) UnsavedEvents() []event.Event {
	out := make([]event.Event, len(b.unsaved))
	copy(out, b.unsaved)
	return out
}

func (b *Base) HasUnsavedEvents() bool { return len(b.unsaved) > 0 }

// ClearUnsaved drops pending events after a successful save.
func (b *Base) ClearUnsaved() { b.unsaved = nil }

// Checkpoint captures the bookkeeping state and returns a function restoring
// it. Events raised after the checkpoint are discarded on restore; payload
// changes already applied to the embedding aggregate are not undone.
func (b *Base) Checkpoint() func() {
	n := len(b.unsaved)
	version, deleted := b.CurrentVersion, b.IsDeleted
	return func() {
		b.unsaved = b.unsaved[:n]
		b.CurrentVersion = version
		b.IsDeleted = deleted
	}
}

// StampUnsaved sets the idempotency and principal identifiers on every
// pending event.
func (b *Base) StampUnsaved(idempotencyID, userID string) {
	for i := range b.unsaved {
		b.unsaved[i].IdempotencyID = idempotencyID
		b.unsaved[i].UserID = userID
	}
}

// Raise applies data to agg and buffers it as an unsaved event at the next
// version.
func Raise(agg Aggregate, data event.Named) error {
	b := agg.AggregateBase()
	if b.Locked {
		return ErrLocked
	}
	if b.IsDeleted && !event.IsMarker(data) {
		return ErrDeleted
	}

	e := event.New(b.CurrentVersion+1, data)
	apply(agg, data)
	b.CurrentVersion = e.AggregateVersion
	b.unsaved = append(b.unsaved, e)
	return nil
}

// Replay applies a stored event. The version always advances, even when the
// payload is skipped; the return value reports whether it was applied.
func Replay(agg Aggregate, e event.Event) bool {
	applied := apply(agg, e.Data)
	agg.AggregateBase().CurrentVersion = e.AggregateVersion
	return applied
}

func apply(agg Aggregate, data event.Named) bool {
	b := agg.AggregateBase()
	switch data.(type) {
	case event.Deleted:
		b.IsDeleted = true
		return true
	case event.Restored:
		b.IsDeleted = false
		return true
	case event.Unknown, event.LargePointer, nil:
		return false
	}
	return agg.ApplyEvent(data)
}
