package event

import "time"

// Named is implemented by every payload stored in a stream. EventName is the
// logical type persisted next to the payload, so it must stay stable even when
// the Go type is renamed.
type Named interface {
	EventName() string
}

// Event is a single entry of an aggregate stream.
type Event struct {
	AggregateVersion int       `json:"aggregateVersion"`
	When             time.Time `json:"when"`
	IdempotencyID    string    `json:"idempotencyId,omitempty"`
	UserID           string    `json:"userId,omitempty"`
	TypeName         string    `json:"typeName"`
	Data             Named     `json:"-"`
}

// New builds an unsaved event at the given version.
func New(version int, data Named) Event {
	return Event{
		AggregateVersion: version,
		When:             time.Now().UTC(),
		TypeName:         data.EventName(),
		Data:             data,
	}
}
