package eventstore

import (
	"context"
	"errors"

	"github.com/example/eventvault/internal/infrastructure/store"
)

func (e *Engine[T]) cacheGet(ctx context.Context, id string, oc OperationContext) (T, bool) {
	var zero T
	if e.cache == nil || oc.SkipCache || !e.opts.CacheMode.reads() {
		return zero, false
	}

	value, err := e.cache.GetString(ctx, e.keys.cacheKey(id))
	if errors.Is(err, store.ErrCacheMiss) {
		return zero, false
	}
	if err != nil {
		e.telemetry.CacheFailure(ctx, "get", id, err)
		return zero, false
	}

	agg := e.newAggregate(id)
	if err := e.codec.DecodeAggregate([]byte(value), agg); err != nil {
		e.telemetry.CacheFailure(ctx, "decode", id, err)
		e.evictDetached(id)
		return zero, false
	}
	return agg, true
}

// cachePut stores agg, or removes it when it is deleted and deleted
// aggregates are not cached.
func (e *Engine[T]) cachePut(ctx context.Context, agg T, oc OperationContext) {
	if e.cache == nil || oc.SkipCache || !e.opts.CacheMode.writes() {
		return
	}

	b := agg.AggregateBase()
	key := e.keys.cacheKey(b.ID)
	if b.IsDeleted && e.opts.RemoveDeletedFromCache {
		if err := e.cache.Remove(ctx, key); err != nil {
			e.telemetry.CacheFailure(ctx, "remove", b.ID, err)
		}
		return
	}

	data, err := e.codec.EncodeAggregate(agg)
	if err != nil {
		e.telemetry.CacheFailure(ctx, "encode", b.ID, err)
		return
	}
	if err := e.cache.SetString(ctx, key, string(data), e.opts.DefaultCacheSlidingDuration); err != nil {
		e.telemetry.CacheFailure(ctx, "set", b.ID, err)
	}
}

// evictDetached removes id from the cache in the background. It is not tied
// to the caller's context, so it still runs when the failing call was
// cancelled.
func (e *Engine[T]) evictDetached(id string) {
	if e.cache == nil {
		return
	}

	e.background.Add(1)
	go func() {
		defer e.background.Done()

		ctx, cancel := context.WithTimeout(context.Background(), e.opts.CacheEvictTimeout)
		defer cancel()

		if err := e.cache.Remove(ctx, e.keys.cacheKey(id)); err != nil {
			e.telemetry.CacheFailure(ctx, "evict", id, err)
		}
	}()
}
