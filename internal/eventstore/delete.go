package eventstore

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/example/eventvault/internal/event"
	"github.com/example/eventvault/internal/infrastructure/store"
	"github.com/example/eventvault/internal/notification"
)

const blobDeleteConcurrency = 8

// Delete soft-deletes agg by saving a delete marker, or erases it when called
// with Permanently. It returns false without error for an aggregate that was
// never saved.
func (e *Engine[T]) Delete(ctx context.Context, agg T, opts ...Option) (bool, error) {
	oc := e.opts.operation(opts)
	b := agg.AggregateBase()
	if b.IsDeleted {
		return false, ErrAggregateDeleted
	}
	if b.IsNew() {
		return false, nil
	}
	if oc.PermanentlyDelete {
		return e.permanentlyDelete(ctx, agg), nil
	}

	res, err := e.save(ctx, agg, oc, event.Deleted{})
	return res.Saved, err
}

// PermanentlyDelete is Delete with Permanently.
func (e *Engine[T]) PermanentlyDelete(ctx context.Context, agg T, opts ...Option) (bool, error) {
	return e.Delete(ctx, agg, append(opts, Permanently())...)
}

// Restore reverses a soft delete by saving a restore marker.
func (e *Engine[T]) Restore(ctx context.Context, agg T, opts ...Option) (bool, error) {
	b := agg.AggregateBase()
	if !b.IsDeleted {
		return false, ErrAggregateNotDeleted
	}

	res, err := e.save(ctx, agg, e.opts.operation(opts), event.Restored{})
	return res.Saved, err
}

// permanentlyDelete erases every row and blob of the aggregate. Failures are
// logged and reported as false.
func (e *Engine[T]) permanentlyDelete(ctx context.Context, agg T) bool {
	b := agg.AggregateBase()
	defer e.evictDetached(b.ID)

	change := notification.Change{
		AggregateType: e.typeName,
		AggregateID:   b.ID,
		Version:       b.CurrentVersion,
		IsDeleted:     true,
		Permanent:     true,
	}
	change.IdempotencyID, _ = IdempotencyIDFrom(ctx)
	change.UserID, _ = UserIDFrom(ctx)

	e.notify(ctx, "BeforeDelete", func() error { return e.notifier.BeforeDelete(ctx, change) })

	if err := e.erase(ctx, b.ID); err != nil {
		e.logger.ErrorContext(ctx, "permanent delete failed",
			slog.String("aggregate_id", b.ID),
			slog.String("error", err.Error()),
		)
		e.notify(ctx, "OnFailure", func() error { return e.notifier.OnFailure(ctx, change, err) })
		return false
	}

	b.IsDeleted = true
	b.Locked = true
	b.ClearUnsaved()

	e.notify(ctx, "AfterDelete", func() error { return e.notifier.AfterDelete(ctx, change) })
	return true
}

// erase removes the partition in chunks, stream row last so an interrupted
// erase leaves the aggregate visible and retryable, then every blob under the
// aggregate's prefix.
func (e *Engine[T]) erase(ctx context.Context, id string) error {
	recs, err := e.logs.Query(ctx, id, "", maxRowKey)
	if err != nil {
		return fmt.Errorf("list rows: %w", err)
	}

	keys := make([]store.Key, 0, len(recs))
	var stream []store.Key
	for _, rec := range recs {
		if rec.Row == StreamRowKey {
			stream = append(stream, rec.Key())
			continue
		}
		keys = append(keys, rec.Key())
	}
	keys = append(keys, stream...)

	for start := 0; start < len(keys); start += e.opts.DeleteBatchSize {
		end := min(start+e.opts.DeleteBatchSize, len(keys))
		if err := e.logs.Delete(ctx, keys[start:end]); err != nil {
			return fmt.Errorf("delete rows %d-%d: %w", start, end, err)
		}
	}

	names, err := e.blobs.List(ctx, e.keys.blobPrefix(id))
	if err != nil {
		return fmt.Errorf("list blobs: %w", err)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(blobDeleteConcurrency)
	for _, name := range names {
		g.Go(func() error {
			if _, err := e.blobs.DeleteIfExists(gctx, name); err != nil {
				return fmt.Errorf("delete blob %s: %w", name, err)
			}
			return nil
		})
	}
	return g.Wait()
}
