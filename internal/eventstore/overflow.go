package eventstore

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/example/eventvault/internal/event"
	"github.com/example/eventvault/internal/infrastructure/store"
)

type overflowBlob struct {
	name    string
	content []byte
}

// eventRecord builds the row for ev. Payloads above LargeEventThreshold are
// replaced by a pointer row and returned as a blob to upload after commit.
func (e *Engine[T]) eventRecord(id string, ev event.Event) (store.Record, *overflowBlob, error) {
	payload, err := e.codec.EncodeEvent(ev.Data)
	if err != nil {
		return store.Record{}, nil, err
	}

	row := e.keys.eventRow(ev.AggregateVersion)
	rec := store.Record{
		Partition:     id,
		Row:           row,
		Version:       ev.AggregateVersion,
		AggregateType: e.typeName,
		EventType:     ev.TypeName,
		IdempotencyID: ev.IdempotencyID,
		UserID:        ev.UserID,
		When:          ev.When,
		Data:          payload,
	}
	if len(payload) <= e.opts.LargeEventThreshold {
		return rec, nil, nil
	}

	envelope, err := e.codec.EncodeEnvelope(ev.TypeName, payload)
	if err != nil {
		return store.Record{}, nil, err
	}
	pointer, err := e.codec.EncodeEvent(event.LargePointer{RealTypeName: ev.TypeName})
	if err != nil {
		return store.Record{}, nil, err
	}
	rec.EventType = event.LargeEventName
	rec.Data = pointer
	return rec, &overflowBlob{name: e.keys.largeEventBlob(id, row), content: envelope}, nil
}

// writeOverflow uploads the payloads of oversized events. The rows are
// already committed, so failures are reported but not returned.
func (e *Engine[T]) writeOverflow(ctx context.Context, id string, blobs []overflowBlob) {
	for _, b := range blobs {
		if err := e.blobs.Upload(ctx, b.name, b.content, true); err != nil {
			e.telemetry.OverflowFailure(ctx, e.typeName, id, fmt.Errorf("upload %s: %w", b.name, err))
		}
	}
}

// decodeRecord turns a stored row back into an event. Unresolvable payloads
// become event.Unknown.
func (e *Engine[T]) decodeRecord(ctx context.Context, rec store.Record) (event.Event, error) {
	ev := event.Event{
		AggregateVersion: rec.Version,
		When:             rec.When,
		IdempotencyID:    rec.IdempotencyID,
		UserID:           rec.UserID,
		TypeName:         rec.EventType,
	}

	data, err := e.codec.DecodeEvent(rec.EventType, rec.Data)
	if err != nil {
		e.logger.Warn("failed to decode event",
			"aggregate_id", rec.Partition,
			"row", rec.Row,
			"error", err.Error(),
		)
	}
	if pointer, ok := data.(event.LargePointer); ok {
		data, err = e.resolveLarge(ctx, rec, pointer)
		if err != nil {
			return event.Event{}, err
		}
	}

	ev.Data = data
	ev.TypeName = data.EventName()
	return ev, nil
}

func (e *Engine[T]) resolveLarge(ctx context.Context, rec store.Record, pointer event.LargePointer) (event.Named, error) {
	missing := event.Unknown{Name: pointer.RealTypeName}
	name := e.keys.largeEventBlob(rec.Partition, rec.Row)

	exists, err := e.blobs.Exists(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("check large event %s: %w", name, err)
	}
	if !exists {
		return missing, nil
	}

	body, err := e.blobs.Open(ctx, name)
	if errors.Is(err, store.ErrBlobNotFound) {
		return missing, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open large event %s: %w", name, err)
	}
	defer body.Close()

	content, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read large event %s: %w", name, err)
	}
	data, err := e.codec.DecodeEnvelope(content)
	if err != nil {
		e.logger.Warn("failed to decode large event", "blob", name, "error", err.Error())
		return missing, nil
	}
	return data, nil
}
