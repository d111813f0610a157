package eventstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultOptions(t *testing.T) {
	o := DefaultOptions()
	require.NoError(t, o.Validate())
	assert.Equal(t, 1, o.SnapshotInterval)
	assert.Equal(t, 1000, o.MaxEventCountOnSave)
	assert.Equal(t, 32000, o.LargeEventThreshold)
	assert.Equal(t, 20, o.DeleteBatchSize)
	assert.True(t, o.RequiresValidPrincipalIdentifier)

	oc := o.operation(nil)
	assert.Equal(t, DeletedAsNil, oc.DeletedMode)
	assert.Equal(t, LockedThrow, oc.LockedMode)
	assert.False(t, oc.ValidateIdempotencyMarker)
}

func TestOptions_ValidateCollectsAllErrors(t *testing.T) {
	err := Options{}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "snapshot interval")
	assert.Contains(t, err.Error(), "event prefix")
	assert.Contains(t, err.Error(), "delete batch size")
}

func TestOptions_PerCallOverridesDefaults(t *testing.T) {
	o := DefaultOptions()
	o.Defaults.DeletedMode = DeletedThrow

	oc := o.operation([]Option{WithDeletedMode(DeletedReturn), SkipSnapshot(), Permanently()})
	assert.Equal(t, DeletedReturn, oc.DeletedMode)
	assert.True(t, oc.SkipSnapshot)
	assert.True(t, oc.PermanentlyDelete)
	assert.Equal(t, DeletedThrow, o.operation(nil).DeletedMode)
}

func TestParseCacheMode(t *testing.T) {
	for _, m := range []CacheMode{CacheGetAndStore, CacheGetOnly, CacheStoreOnly, CacheNone} {
		got, err := ParseCacheMode(m.String())
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}
	_, err := ParseCacheMode("sometimes")
	assert.Error(t, err)
}

func TestContextIdentifiers(t *testing.T) {
	ctx := context.Background()
	_, ok := IdempotencyIDFrom(ctx)
	assert.False(t, ok)

	ctx = WithIdempotencyID(WithUserID(ctx, "user-1"), "req-1")
	id, ok := IdempotencyIDFrom(ctx)
	assert.True(t, ok)
	assert.Equal(t, "req-1", id)
	user, ok := UserIDFrom(ctx)
	assert.True(t, ok)
	assert.Equal(t, "user-1", user)

	_, ok = UserIDFrom(WithUserID(context.Background(), ""))
	assert.False(t, ok)
}
