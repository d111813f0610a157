package eventstore

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"slices"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/example/eventvault/internal/infrastructure/store"
)

// markerHash derives the idempotency marker key from the idempotency id and
// the versions of the batch. Version order does not matter.
func markerHash(idempotencyID string, versions []int) string {
	sorted := slices.Clone(versions)
	slices.Sort(sorted)

	h, _ := blake2b.New256(nil)
	h.Write([]byte(idempotencyID))
	h.Write([]byte{0})
	var buf [8]byte
	for _, v := range sorted {
		binary.BigEndian.PutUint64(buf[:], uint64(v))
		h.Write(buf[:])
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (e *Engine[T]) markerRecord(id, hash, idempotencyID, userID string, now time.Time) store.Record {
	return store.Record{
		Partition:     id,
		Row:           e.keys.markerRow(hash),
		AggregateType: e.typeName,
		IdempotencyID: idempotencyID,
		UserID:        userID,
		When:          now,
	}
}

func (e *Engine[T]) markerExists(ctx context.Context, id, hash string) (bool, error) {
	rec, err := e.logs.Get(ctx, id, e.keys.markerRow(hash))
	if err != nil {
		return false, err
	}
	return rec != nil, nil
}

// LastCommittedWith reports whether agg's newest committed event was written
// under idempotencyID, which means a request carrying that id has already
// been applied.
func (e *Engine[T]) LastCommittedWith(ctx context.Context, agg T, idempotencyID string) (bool, error) {
	b := agg.AggregateBase()
	if idempotencyID == "" || b.SavedVersion < 1 {
		return false, nil
	}
	rec, err := e.logs.Get(ctx, b.ID, e.keys.eventRow(b.SavedVersion))
	if err != nil {
		return false, fmt.Errorf("read event %d of %s: %w", b.SavedVersion, b.ID, err)
	}
	return rec != nil && rec.IdempotencyID == idempotencyID, nil
}
