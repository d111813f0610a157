package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRedis struct {
	values  map[string]string
	getExes []time.Duration
	sets    []time.Duration
	err     error
}

func (f *fakeRedis) GetEx(_ context.Context, key string, expiration time.Duration) *redis.StringCmd {
	f.getExes = append(f.getExes, expiration)
	if f.err != nil {
		return redis.NewStringResult("", f.err)
	}
	v, ok := f.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	f.sets = append(f.sets, expiration)
	f.values[key] = value.(string)
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	for _, k := range keys {
		delete(f.values, k)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func TestRedisCache(t *testing.T) {
	ctx := context.Background()
	fake := &fakeRedis{values: make(map[string]string)}
	c := NewRedisCache(fake, "vault:", 10*time.Minute)

	_, err := c.GetString(ctx, "Counter:c-1")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, c.SetString(ctx, "Counter:c-1", `{"id":"c-1"}`, time.Hour))
	assert.Equal(t, `{"id":"c-1"}`, fake.values["vault:Counter:c-1"])
	assert.Equal(t, []time.Duration{time.Hour}, fake.sets)

	got, err := c.GetString(ctx, "Counter:c-1")
	require.NoError(t, err)
	assert.Equal(t, `{"id":"c-1"}`, got)
	assert.Equal(t, 10*time.Minute, fake.getExes[1])

	require.NoError(t, c.Remove(ctx, "Counter:c-1"))
	assert.Empty(t, fake.values)
}

func TestRedisCache_Error(t *testing.T) {
	fake := &fakeRedis{values: make(map[string]string), err: errors.New("connection refused")}
	c := NewRedisCache(fake, "", time.Minute)

	_, err := c.GetString(context.Background(), "k")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCacheMiss)
}
