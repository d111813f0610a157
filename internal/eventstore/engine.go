// Package eventstore persists event-sourced aggregates: versioned event
// streams, snapshots, idempotent optimistic-concurrency saves, soft and
// permanent deletes. All backend access goes through the store contracts.
package eventstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/example/eventvault/internal/codec"
	"github.com/example/eventvault/internal/domain/aggregate"
	"github.com/example/eventvault/internal/event"
	"github.com/example/eventvault/internal/infrastructure/store"
	"github.com/example/eventvault/internal/notification"
)

// Config wires an Engine. T must be a pointer type; New returns an empty
// aggregate carrying the given id.
type Config[T aggregate.Aggregate] struct {
	TypeName  string
	New       func(id string) T
	Logs      store.LogStore
	Blobs     store.BlobStore
	Cache     store.Cache
	Registry  *event.Registry
	Notifier  notification.Notifier
	Telemetry Telemetry
	Validator Validator[T]
	Fulfiller Fulfiller[T]
	Logger    *slog.Logger
	// Options defaults to DefaultOptions when nil.
	Options *Options
}

// Engine loads and saves aggregates of one type. It holds no per-aggregate
// state and is safe for concurrent use.
type Engine[T aggregate.Aggregate] struct {
	typeName     string
	newAggregate func(id string) T
	logs         store.LogStore
	blobs        store.BlobStore
	cache        store.Cache
	codec        *codec.Codec
	notifier     notification.Notifier
	telemetry    Telemetry
	validator    Validator[T]
	fulfiller    Fulfiller[T]
	logger       *slog.Logger
	opts         Options
	keys         keyspace

	background sync.WaitGroup
}

func New[T aggregate.Aggregate](cfg Config[T]) (*Engine[T], error) {
	var errs []error
	if cfg.TypeName == "" {
		errs = append(errs, errors.New("type name is required"))
	}
	if cfg.New == nil {
		errs = append(errs, errors.New("aggregate factory is required"))
	}
	if cfg.Logs == nil {
		errs = append(errs, errors.New("log store is required"))
	}
	if cfg.Blobs == nil {
		errs = append(errs, errors.New("blob store is required"))
	}
	if cfg.Registry == nil {
		errs = append(errs, errors.New("event registry is required"))
	}
	opts := DefaultOptions()
	if cfg.Options != nil {
		opts = *cfg.Options
	}
	if err := opts.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("eventstore: invalid config: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("aggregate_type", cfg.TypeName))

	e := &Engine[T]{
		typeName:     cfg.TypeName,
		newAggregate: cfg.New,
		logs:         cfg.Logs,
		blobs:        cfg.Blobs,
		cache:        cfg.Cache,
		codec:        codec.New(cfg.Registry),
		notifier:     cfg.Notifier,
		telemetry:    cfg.Telemetry,
		validator:    cfg.Validator,
		fulfiller:    cfg.Fulfiller,
		logger:       logger,
		opts:         opts,
		keys: keyspace{
			typeName:    cfg.TypeName,
			eventPrefix: opts.EventPrefix,
			suffixLen:   opts.EventSuffixLength,
		},
	}
	if e.notifier == nil {
		e.notifier = notification.Nop{}
	}
	if e.telemetry == nil {
		e.telemetry = NewLogTelemetry(logger)
	}
	return e, nil
}

// Options returns a copy of the engine's configuration.
func (e *Engine[T]) Options() Options { return e.opts }

// Wait blocks until background cache evictions have finished.
func (e *Engine[T]) Wait() { e.background.Wait() }

// Get loads the latest state of id. It returns the zero T and no error when
// the aggregate does not exist, or when it is deleted and the deleted mode is
// DeletedAsNil.
func (e *Engine[T]) Get(ctx context.Context, id string, opts ...Option) (T, error) {
	oc := e.opts.operation(opts)
	var zero T

	if agg, ok := e.cacheGet(ctx, id, oc); ok {
		b := agg.AggregateBase()
		if visible, err := deletedPolicy(b.IsDeleted, oc.DeletedMode); !visible {
			return zero, err
		}
		b.ClearUnsaved()
		b.CurrentVersion = b.SavedVersion
		b.Locked = false
		if err := e.fulfill(ctx, agg); err != nil {
			return zero, err
		}
		return agg, nil
	}

	sv, err := e.readStream(ctx, id)
	if err != nil {
		return zero, err
	}
	if sv == nil {
		return zero, nil
	}
	if visible, err := deletedPolicy(sv.IsDeleted, oc.DeletedMode); !visible {
		return zero, err
	}

	agg := e.newAggregate(id)
	if !oc.SkipSnapshot {
		if snap, ok := e.readSnapshot(ctx, id); ok {
			agg = snap
		}
	}

	b := agg.AggregateBase()
	// No upper bound: rows past the stream version are applied as well.
	if err := e.replay(ctx, agg, b.CurrentVersion+1, 0); err != nil {
		return zero, err
	}
	b.SavedVersion = b.CurrentVersion
	b.ConcurrencyToken = sv.Token
	b.IsDeleted = sv.IsDeleted

	e.cachePut(ctx, agg, oc)
	if err := e.fulfill(ctx, agg); err != nil {
		return zero, err
	}
	return agg, nil
}

// GetDeleted loads id whether or not it is soft-deleted.
func (e *Engine[T]) GetDeleted(ctx context.Context, id string, opts ...Option) (T, error) {
	return e.Get(ctx, id, append(opts, WithDeletedMode(DeletedReturn))...)
}

// GetAt rebuilds id as of version by replaying every event up to it. The
// result is locked and cannot be saved.
func (e *Engine[T]) GetAt(ctx context.Context, id string, version int, opts ...Option) (T, error) {
	oc := e.opts.operation(opts)
	var zero T
	if version < 1 {
		return zero, fmt.Errorf("%w: %d", ErrInvalidVersion, version)
	}

	sv, err := e.readStream(ctx, id)
	if err != nil {
		return zero, err
	}
	if sv == nil {
		return zero, nil
	}
	if visible, err := deletedPolicy(sv.IsDeleted, oc.DeletedMode); !visible {
		return zero, err
	}

	agg := e.newAggregate(id)
	if err := e.replay(ctx, agg, 1, version); err != nil {
		return zero, err
	}
	b := agg.AggregateBase()
	b.SavedVersion = b.CurrentVersion
	b.Locked = true

	if err := e.fulfill(ctx, agg); err != nil {
		return zero, err
	}
	return agg, nil
}

// Exists reports whether id has a stream. Deleted aggregates count only in
// DeletedReturn mode.
func (e *Engine[T]) Exists(ctx context.Context, id string, opts ...Option) (bool, error) {
	oc := e.opts.operation(opts)
	sv, err := e.readStream(ctx, id)
	if err != nil || sv == nil {
		return false, err
	}
	if sv.IsDeleted && oc.DeletedMode != DeletedReturn {
		return false, nil
	}
	return true, nil
}

// replay applies stored events from..to onto agg; a non-positive to reads to
// the end of the stream. Events the aggregate cannot apply still advance its
// version.
func (e *Engine[T]) replay(ctx context.Context, agg T, from, to int) error {
	b := agg.AggregateBase()
	lo, hi := e.keys.eventRange(from, to)

	recs, err := e.logs.Query(ctx, b.ID, lo, hi)
	if err != nil {
		return fmt.Errorf("read events of %s: %w", b.ID, err)
	}
	for _, rec := range recs {
		if err := ctx.Err(); err != nil {
			return err
		}
		ev, err := e.decodeRecord(ctx, rec)
		if err != nil {
			return err
		}
		if !aggregate.Replay(agg, ev) {
			e.telemetry.SkippedUnknownEvent(ctx, e.typeName, b.ID, ev.AggregateVersion, ev.TypeName)
		}
	}
	return nil
}

func deletedPolicy(deleted bool, mode DeletedMode) (bool, error) {
	if !deleted {
		return true, nil
	}
	switch mode {
	case DeletedThrow:
		return false, ErrAggregateDeleted
	case DeletedReturn:
		return true, nil
	}
	return false, nil
}

func (e *Engine[T]) fulfill(ctx context.Context, agg T) error {
	if e.fulfiller == nil {
		return nil
	}
	if err := e.fulfiller.Fulfill(ctx, agg); err != nil {
		return fmt.Errorf("fulfill %s: %w", agg.AggregateBase().ID, err)
	}
	return nil
}

func (e *Engine[T]) validate(ctx context.Context, agg T) []error {
	if e.validator == nil {
		return nil
	}
	return e.validator.Validate(ctx, agg)
}
