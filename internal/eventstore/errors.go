package eventstore

import (
	"errors"
	"fmt"
)

var (
	ErrAggregateDeleted    = errors.New("eventstore: aggregate is deleted")
	ErrAggregateNotDeleted = errors.New("eventstore: aggregate is not deleted")
	ErrAggregateLocked     = errors.New("eventstore: aggregate is locked")
	ErrTooManyEvents       = errors.New("eventstore: too many events in one save")
	ErrPrincipalRequired   = errors.New("eventstore: principal identifier required")
	ErrInvalidVersion      = errors.New("eventstore: version must be positive")
	ErrConcurrency         = errors.New("eventstore: concurrency conflict")
)

// ConcurrencyError reports that another writer changed the stream since the
// aggregate was loaded.
type ConcurrencyError struct {
	AggregateID    string
	IdempotencyID  string
	CurrentVersion int
	SavedVersion   int
}

func (e *ConcurrencyError) Error() string {
	return fmt.Sprintf("eventstore: concurrency conflict on %s (saved version %d, current version %d, idempotency id %s)",
		e.AggregateID, e.SavedVersion, e.CurrentVersion, e.IdempotencyID)
}

func (e *ConcurrencyError) Is(target error) bool { return target == ErrConcurrency }

// CommitError wraps a backend failure of the atomic commit. Whether the batch
// was applied is unknown; retrying with the same idempotency id is safe.
type CommitError struct {
	AggregateID   string
	IdempotencyID string
	Err           error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("eventstore: commit of %s failed: %v", e.AggregateID, e.Err)
}

func (e *CommitError) Unwrap() error { return e.Err }
