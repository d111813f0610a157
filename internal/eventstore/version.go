package eventstore

import (
	"context"
	"fmt"
	"time"

	"github.com/example/eventvault/internal/domain/aggregate"
	"github.com/example/eventvault/internal/infrastructure/store"
)

// streamVersion is the per-aggregate head row guarding concurrent writers.
type streamVersion struct {
	Version   int
	IsDeleted bool
	Token     string
}

func (e *Engine[T]) readStream(ctx context.Context, id string) (*streamVersion, error) {
	rec, err := e.logs.Get(ctx, id, StreamRowKey)
	if err != nil {
		return nil, fmt.Errorf("read stream version of %s: %w", id, err)
	}
	if rec == nil {
		return nil, nil
	}
	return &streamVersion{Version: rec.Version, IsDeleted: rec.IsDeleted, Token: rec.Token}, nil
}

// streamOp writes the head row for b's current version. The first save
// inserts it; later saves replace it conditioned on the token the aggregate
// was loaded with.
func (e *Engine[T]) streamOp(b *aggregate.Base, newToken string, now time.Time) store.Op {
	rec := store.Record{
		Partition:     b.ID,
		Row:           StreamRowKey,
		Token:         newToken,
		Version:       b.CurrentVersion,
		IsDeleted:     b.IsDeleted,
		AggregateType: e.typeName,
		When:          now,
	}
	if b.IsNew() {
		return store.Insert(rec)
	}
	return store.Replace(rec, b.ConcurrencyToken)
}
