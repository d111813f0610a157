package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/example/eventvault/internal/infrastructure/store"
)

// MockCache wraps a Cache, recording calls and optionally failing them.
type MockCache struct {
	mu    sync.Mutex
	inner store.Cache

	GetCalls    []string
	SetCalls    []string
	RemoveCalls []string

	GetErr    error
	SetErr    error
	RemoveErr error
}

// NewMockCache wraps inner. A nil inner uses an unbounded MemoryCache.
func NewMockCache(inner store.Cache) *MockCache {
	if inner == nil {
		inner = store.NewMemoryCache(0)
	}
	return &MockCache{inner: inner}
}

func (m *MockCache) GetString(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	m.GetCalls = append(m.GetCalls, key)
	err := m.GetErr
	m.mu.Unlock()
	if err != nil {
		return "", err
	}
	return m.inner.GetString(ctx, key)
}

func (m *MockCache) SetString(ctx context.Context, key, value string, sliding time.Duration) error {
	m.mu.Lock()
	m.SetCalls = append(m.SetCalls, key)
	err := m.SetErr
	m.mu.Unlock()
	if err != nil {
		return err
	}
	return m.inner.SetString(ctx, key, value, sliding)
}

func (m *MockCache) Remove(ctx context.Context, key string) error {
	m.mu.Lock()
	m.RemoveCalls = append(m.RemoveCalls, key)
	err := m.RemoveErr
	m.mu.Unlock()
	if err != nil {
		return err
	}
	return m.inner.Remove(ctx, key)
}

// Removed returns a copy of the keys passed to Remove.
func (m *MockCache) Removed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.RemoveCalls...)
}
