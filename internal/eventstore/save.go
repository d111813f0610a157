package eventstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/example/eventvault/internal/domain/aggregate"
	"github.com/example/eventvault/internal/event"
	"github.com/example/eventvault/internal/infrastructure/store"
	"github.com/example/eventvault/internal/notification"
)

// Commit batches are laid out as marker, stream row, events.
const markerOpIndex = 0

// Save persists the aggregate's unsaved events in one atomic commit.
//
// Validation failures and locked aggregates in LockedReturnFalse mode are
// reported through SaveResult. A batch already applied under the same
// idempotency id returns Saved and Skipped. A concurrent change returns a
// *ConcurrencyError.
func (e *Engine[T]) Save(ctx context.Context, agg T, opts ...Option) (SaveResult, error) {
	return e.save(ctx, agg, e.opts.operation(opts), nil)
}

// save runs the save pipeline. A non-nil marker is raised after validation
// and rolled back if the save does not go through.
func (e *Engine[T]) save(ctx context.Context, agg T, oc OperationContext, marker event.Named) (SaveResult, error) {
	b := agg.AggregateBase()

	if err := e.fulfill(ctx, agg); err != nil {
		return SaveResult{}, err
	}
	if errs := e.validate(ctx, agg); len(errs) > 0 {
		return SaveResult{ValidationErrors: errs}, nil
	}
	if b.Locked {
		if oc.LockedMode == LockedReturnFalse {
			return SaveResult{}, nil
		}
		return SaveResult{}, ErrAggregateLocked
	}

	if marker == nil {
		return e.commit(ctx, agg, oc)
	}

	rollback := b.Checkpoint()
	if err := aggregate.Raise(agg, marker); err != nil {
		return SaveResult{}, err
	}
	res, err := e.commit(ctx, agg, oc)
	if err != nil || !res.Saved {
		rollback()
	}
	return res, err
}

func (e *Engine[T]) commit(ctx context.Context, agg T, oc OperationContext) (SaveResult, error) {
	b := agg.AggregateBase()
	if !b.HasUnsavedEvents() {
		return SaveResult{Skipped: true}, nil
	}

	idempotencyID, ok := IdempotencyIDFrom(ctx)
	if !ok {
		idempotencyID = uuid.NewString()
	}
	userID, ok := UserIDFrom(ctx)
	if !ok && e.opts.RequiresValidPrincipalIdentifier {
		return SaveResult{}, ErrPrincipalRequired
	}

	pending := b.UnsavedEvents()
	if len(pending) > e.opts.MaxEventCountOnSave {
		return SaveResult{}, fmt.Errorf("%w: %d events, limit %d", ErrTooManyEvents, len(pending), e.opts.MaxEventCountOnSave)
	}

	b.StampUnsaved(idempotencyID, userID)
	events := b.UnsavedEvents()
	versions := make([]int, len(events))
	for i, ev := range events {
		versions[i] = ev.AggregateVersion
	}
	hash := markerHash(idempotencyID, versions)

	if oc.ValidateIdempotencyMarker {
		found, err := e.markerExists(ctx, b.ID, hash)
		if err != nil {
			return SaveResult{}, fmt.Errorf("check idempotency marker of %s: %w", b.ID, err)
		}
		if found {
			return e.alreadyApplied(ctx, agg, idempotencyID), nil
		}
	}

	change := e.change(b, events, idempotencyID, userID)
	deleting := event.ContainsDeleted(events)
	if deleting {
		e.notify(ctx, "BeforeDelete", func() error { return e.notifier.BeforeDelete(ctx, change) })
	} else {
		e.notify(ctx, "BeforeSave", func() error { return e.notifier.BeforeSave(ctx, change) })
	}

	sv, err := e.readStream(ctx, b.ID)
	if err != nil {
		e.failed(ctx, change, err)
		return SaveResult{}, err
	}
	if sv != nil && sv.IsDeleted && !event.ContainsRestored(events) {
		e.failed(ctx, change, ErrAggregateDeleted)
		return SaveResult{}, ErrAggregateDeleted
	}

	now := time.Now().UTC()
	token := uuid.NewString()
	ops := make([]store.Op, 0, len(events)+2)
	ops = append(ops,
		store.Insert(e.markerRecord(b.ID, hash, idempotencyID, userID, now)),
		e.streamOp(b, token, now),
	)
	var overflow []overflowBlob
	for _, ev := range events {
		rec, blob, err := e.eventRecord(b.ID, ev)
		if err != nil {
			return SaveResult{}, err
		}
		ops = append(ops, store.Insert(rec))
		if blob != nil {
			overflow = append(overflow, *blob)
		}
	}

	started := time.Now()
	if err := e.logs.Commit(ctx, ops); err != nil {
		var conflict *store.ConflictError
		if errors.As(err, &conflict) && conflict.Has(markerOpIndex) {
			return e.alreadyApplied(ctx, agg, idempotencyID), nil
		}

		var cause error = &CommitError{AggregateID: b.ID, IdempotencyID: idempotencyID, Err: err}
		if conflict != nil {
			cause = &ConcurrencyError{
				AggregateID:    b.ID,
				IdempotencyID:  idempotencyID,
				CurrentVersion: b.CurrentVersion,
				SavedVersion:   b.SavedVersion,
			}
		}
		e.failed(ctx, change, cause)
		return SaveResult{}, cause
	}
	e.telemetry.Committed(ctx, e.typeName, b.ID, len(events), time.Since(started))

	b.SavedVersion = b.CurrentVersion
	b.ConcurrencyToken = token
	b.ClearUnsaved()

	// The blob writes finish the commit even if the caller has gone away.
	blobCtx := context.WithoutCancel(ctx)
	e.writeOverflow(blobCtx, b.ID, overflow)
	if e.shouldSnapshot(b, events, len(overflow) > 0) {
		e.writeSnapshot(blobCtx, agg)
	}

	if deleting {
		e.notify(ctx, "AfterDelete", func() error { return e.notifier.AfterDelete(ctx, change) })
	} else {
		e.notify(ctx, "AfterSave", func() error { return e.notifier.AfterSave(ctx, change) })
	}
	e.cachePut(ctx, agg, oc)
	return SaveResult{Saved: true}, nil
}

// alreadyApplied handles a batch whose idempotency marker exists. When the
// stream already covers the aggregate's pending events the prior commit is
// adopted.
func (e *Engine[T]) alreadyApplied(ctx context.Context, agg T, idempotencyID string) SaveResult {
	b := agg.AggregateBase()
	e.logger.Info("save already applied",
		slog.String("aggregate_id", b.ID),
		slog.String("idempotency_id", idempotencyID),
		slog.Int("version", b.CurrentVersion),
	)

	sv, err := e.readStream(ctx, b.ID)
	if err != nil {
		e.logger.Warn("failed to refresh stream version", slog.String("aggregate_id", b.ID), slog.String("error", err.Error()))
	} else if sv != nil && sv.Version >= b.CurrentVersion {
		b.SavedVersion = b.CurrentVersion
		b.ConcurrencyToken = sv.Token
		b.ClearUnsaved()
	}
	return SaveResult{Saved: true, Skipped: true}
}

func (e *Engine[T]) change(b *aggregate.Base, events []event.Event, idempotencyID, userID string) notification.Change {
	headers := make([]notification.EventHeader, len(events))
	for i, ev := range events {
		headers[i] = notification.EventHeader{Version: ev.AggregateVersion, TypeName: ev.TypeName, When: ev.When}
	}
	return notification.Change{
		AggregateType: e.typeName,
		AggregateID:   b.ID,
		Version:       b.CurrentVersion,
		IdempotencyID: idempotencyID,
		UserID:        userID,
		IsDeleted:     b.IsDeleted,
		Events:        headers,
	}
}

// notify runs a notifier hook. Errors and panics are logged and swallowed.
func (e *Engine[T]) notify(ctx context.Context, hook string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.ErrorContext(ctx, "notifier panicked", slog.String("hook", hook), slog.Any("panic", r))
		}
	}()
	if err := fn(); err != nil {
		e.logger.WarnContext(ctx, "notifier failed", slog.String("hook", hook), slog.String("error", err.Error()))
	}
}

func (e *Engine[T]) failed(ctx context.Context, change notification.Change, cause error) {
	e.notify(ctx, "OnFailure", func() error { return e.notifier.OnFailure(ctx, change, cause) })
	e.evictDetached(change.AggregateID)
}
