package mocks

import (
	"context"
	"io"
	"sync"

	"github.com/example/eventvault/internal/infrastructure/store"
)

// MockBlobStore wraps a BlobStore and can fail uploads or reads.
type MockBlobStore struct {
	mu    sync.Mutex
	inner store.BlobStore

	Uploads []string

	UploadErr error
	OpenErr   error
	ListErr   error
}

// NewMockBlobStore wraps inner. A nil inner uses a fresh MemoryBlobStore.
func NewMockBlobStore(inner store.BlobStore) *MockBlobStore {
	if inner == nil {
		inner = store.NewMemoryBlobStore()
	}
	return &MockBlobStore{inner: inner}
}

func (m *MockBlobStore) Exists(ctx context.Context, name string) (bool, error) {
	return m.inner.Exists(ctx, name)
}

func (m *MockBlobStore) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	m.mu.Lock()
	err := m.OpenErr
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return m.inner.Open(ctx, name)
}

func (m *MockBlobStore) Upload(ctx context.Context, name string, content []byte, overwrite bool) error {
	m.mu.Lock()
	m.Uploads = append(m.Uploads, name)
	err := m.UploadErr
	m.mu.Unlock()
	if err != nil {
		return err
	}
	return m.inner.Upload(ctx, name, content, overwrite)
}

func (m *MockBlobStore) DeleteIfExists(ctx context.Context, name string) (bool, error) {
	return m.inner.DeleteIfExists(ctx, name)
}

func (m *MockBlobStore) List(ctx context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	err := m.ListErr
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return m.inner.List(ctx, prefix)
}
