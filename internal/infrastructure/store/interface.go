package store

import (
	"context"
	"io"
	"time"
)

// LogStore is an ordered, partitioned row store with atomic conditional
// batches.
type LogStore interface {
	// Get returns nil, nil when the row does not exist.
	Get(ctx context.Context, partition, row string) (*Record, error)
	// Commit applies every op or none. A failed condition returns a
	// *ConflictError.
	Commit(ctx context.Context, ops []Op) error
	// Query returns rows with fromRow <= Row <= toRow in ascending row order.
	Query(ctx context.Context, partition, fromRow, toRow string) ([]Record, error)
	// Delete removes the given rows. Missing rows are ignored.
	Delete(ctx context.Context, keys []Key) error
}

// BlobStore holds named binary objects.
type BlobStore interface {
	Exists(ctx context.Context, name string) (bool, error)
	// Open returns ErrBlobNotFound when the blob does not exist.
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	// Upload returns ErrBlobExists when overwrite is false and the blob exists.
	Upload(ctx context.Context, name string, content []byte, overwrite bool) error
	DeleteIfExists(ctx context.Context, name string) (bool, error)
	List(ctx context.Context, prefix string) ([]string, error)
}

// Cache is a string cache with sliding expiry.
type Cache interface {
	// GetString returns ErrCacheMiss when the key is absent or expired.
	GetString(ctx context.Context, key string) (string, error)
	SetString(ctx context.Context, key, value string, sliding time.Duration) error
	Remove(ctx context.Context, key string) error
}
