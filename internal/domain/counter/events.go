package counter

import "github.com/example/eventvault/internal/event"

const (
	EventCounterIncremented = "CounterIncremented"
	EventCounterRenamed     = "CounterRenamed"
	EventCounterAnnotated   = "CounterAnnotated"
)

// CounterIncremented is emitted when the counter value grows
type CounterIncremented struct {
	By int `json:"by"`
}

func (CounterIncremented) EventName() string { return EventCounterIncremented }

// CounterRenamed is emitted when the counter gets a new label
type CounterRenamed struct {
	Label string `json:"label"`
	Slug  string `json:"slug"`
}

func (CounterRenamed) EventName() string { return EventCounterRenamed }

// CounterAnnotated carries free-form notes. Notes may be large enough to be
// stored out of line.
type CounterAnnotated struct {
	Note string `json:"note"`
}

func (CounterAnnotated) EventName() string { return EventCounterAnnotated }

// RegisterEvents adds the counter events to r.
func RegisterEvents(r *event.Registry) {
	event.Register[CounterIncremented](r)
	event.Register[CounterRenamed](r)
	event.Register[CounterAnnotated](r)
}
