package mocks

import (
	"context"
	"sync"

	"github.com/example/eventvault/internal/infrastructure/store"
)

// MockLogStore wraps a LogStore, recording calls and optionally injecting
// errors.
type MockLogStore struct {
	mu    sync.Mutex
	inner store.LogStore

	GetCalls    int
	CommitCalls [][]store.Op
	QueryCalls  int
	DeleteCalls [][]store.Key

	GetErr    error
	CommitErr error
	QueryErr  error
	DeleteErr error

	// CommitErrAfterApply makes Commit apply the batch and still report
	// this error, as a transport failure after a successful write would.
	CommitErrAfterApply error
}

// NewMockLogStore wraps inner. A nil inner uses a fresh MemoryLogStore.
func NewMockLogStore(inner store.LogStore) *MockLogStore {
	if inner == nil {
		inner = store.NewMemoryLogStore()
	}
	return &MockLogStore{inner: inner}
}

func (m *MockLogStore) Get(ctx context.Context, partition, row string) (*store.Record, error) {
	m.mu.Lock()
	m.GetCalls++
	err := m.GetErr
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return m.inner.Get(ctx, partition, row)
}

func (m *MockLogStore) Commit(ctx context.Context, ops []store.Op) error {
	m.mu.Lock()
	m.CommitCalls = append(m.CommitCalls, ops)
	err, after := m.CommitErr, m.CommitErrAfterApply
	m.CommitErrAfterApply = nil
	m.mu.Unlock()
	if err != nil {
		return err
	}
	if after != nil {
		if err := m.inner.Commit(ctx, ops); err != nil {
			return err
		}
		return after
	}
	return m.inner.Commit(ctx, ops)
}

func (m *MockLogStore) Query(ctx context.Context, partition, fromRow, toRow string) ([]store.Record, error) {
	m.mu.Lock()
	m.QueryCalls++
	err := m.QueryErr
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return m.inner.Query(ctx, partition, fromRow, toRow)
}

func (m *MockLogStore) Delete(ctx context.Context, keys []store.Key) error {
	m.mu.Lock()
	m.DeleteCalls = append(m.DeleteCalls, keys)
	err := m.DeleteErr
	m.mu.Unlock()
	if err != nil {
		return err
	}
	return m.inner.Delete(ctx, keys)
}

// Calls returns the total number of calls of any kind.
func (m *MockLogStore) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.GetCalls + len(m.CommitCalls) + m.QueryCalls + len(m.DeleteCalls)
}
