package mocks

import (
	"context"
	"sync"

	"github.com/example/eventvault/internal/notification"
)

// Call records one notifier hook invocation.
type Call struct {
	Hook   string
	Change notification.Change
	Cause  error
}

// MockNotifier records hook calls. Err is returned from every hook and
// PanicOn makes the named hook panic.
type MockNotifier struct {
	mu    sync.Mutex
	calls []Call

	Err     error
	PanicOn string
}

func NewMockNotifier() *MockNotifier {
	return &MockNotifier{}
}

func (m *MockNotifier) BeforeSave(_ context.Context, c notification.Change) error {
	return m.record("BeforeSave", c, nil)
}

func (m *MockNotifier) AfterSave(_ context.Context, c notification.Change) error {
	return m.record("AfterSave", c, nil)
}

func (m *MockNotifier) BeforeDelete(_ context.Context, c notification.Change) error {
	return m.record("BeforeDelete", c, nil)
}

func (m *MockNotifier) AfterDelete(_ context.Context, c notification.Change) error {
	return m.record("AfterDelete", c, nil)
}

func (m *MockNotifier) OnFailure(_ context.Context, c notification.Change, cause error) error {
	return m.record("OnFailure", c, cause)
}

func (m *MockNotifier) record(hook string, c notification.Change, cause error) error {
	m.mu.Lock()
	m.calls = append(m.calls, Call{Hook: hook, Change: c, Cause: cause})
	panicOn, err := m.PanicOn, m.Err
	m.mu.Unlock()
	if panicOn == hook {
		panic("notifier panic in " + hook)
	}
	return err
}

// Calls returns a copy of the recorded calls.
func (m *MockNotifier) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

// Hooks returns the names of the recorded hooks in call order.
func (m *MockNotifier) Hooks() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	hooks := make([]string, len(m.calls))
	for i, c := range m.calls {
		hooks[i] = c.Hook
	}
	return hooks
}
