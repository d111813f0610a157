package eventstore

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/example/eventvault/internal/domain/aggregate"
	"github.com/example/eventvault/internal/event"
	"github.com/example/eventvault/internal/infrastructure/store"
)

func (e *Engine[T]) shouldSnapshot(b *aggregate.Base, batch []event.Event, forced bool) bool {
	return forced ||
		b.IsDeleted ||
		event.ContainsRestored(batch) ||
		b.CurrentVersion-b.SnapshotVersion >= e.opts.SnapshotInterval
}

// writeSnapshot overwrites the aggregate's snapshot blob. A failed upload
// keeps the previous SnapshotVersion and is only reported.
func (e *Engine[T]) writeSnapshot(ctx context.Context, agg T) {
	b := agg.AggregateBase()
	previous := b.SnapshotVersion
	b.SnapshotVersion = b.CurrentVersion

	data, err := e.codec.EncodeAggregate(agg)
	if err == nil {
		err = e.blobs.Upload(ctx, e.keys.snapshotBlob(b.ID), data, true)
	}
	if err != nil {
		b.SnapshotVersion = previous
		e.telemetry.SnapshotFailure(ctx, e.typeName, b.ID, fmt.Errorf("write snapshot: %w", err))
	}
}

// readSnapshot loads the snapshot of id. Any failure falls back to a full
// replay.
func (e *Engine[T]) readSnapshot(ctx context.Context, id string) (T, bool) {
	var zero T

	body, err := e.blobs.Open(ctx, e.keys.snapshotBlob(id))
	if errors.Is(err, store.ErrBlobNotFound) {
		return zero, false
	}
	if err != nil {
		e.telemetry.SnapshotFailure(ctx, e.typeName, id, err)
		return zero, false
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		e.telemetry.SnapshotFailure(ctx, e.typeName, id, err)
		return zero, false
	}

	agg := e.newAggregate(id)
	if err := e.codec.DecodeAggregate(data, agg); err != nil {
		e.telemetry.SnapshotFailure(ctx, e.typeName, id, fmt.Errorf("decode snapshot: %w", err))
		return zero, false
	}

	b := agg.AggregateBase()
	b.ID = id
	b.CurrentVersion = b.SnapshotVersion
	b.Locked = false
	b.ClearUnsaved()
	return agg, true
}
