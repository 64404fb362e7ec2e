package mocks

import (
	"sync"

	"raftpeer/internal/raft/proto"
	"raftpeer/internal/raft/storage"
)

// MockLogStorage is a storage.LogStorage backed by storage.MemoryLog with per-operation error injection.
type MockLogStorage struct {
	mu  sync.RWMutex
	log *storage.MemoryLog

	// Error injection for testing
	AppendEntryError       error
	AppendEntriesError     error
	GetEntryError          error
	GetEntriesError        error
	GetEntriesFromError    error
	DeleteEntriesFromError error

	// Call counters
	AppendCalls   int
	TruncateCalls int
}

func NewMockLogStorage() *MockLogStorage {
	return &MockLogStorage{
		log: storage.NewMemoryLog(),
	}
}

// SetError injects err into the named operation, e.g. SetError(&m.AppendEntriesError, err).
func (m *MockLogStorage) SetError(field *error, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	*field = err
}

func (m *MockLogStorage) injected(field *error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return *field
}

func (m *MockLogStorage) AppendEntry(entry *proto.LogEntry) error {
	if err := m.injected(&m.AppendEntryError); err != nil {
		return err
	}
	m.mu.Lock()
	m.AppendCalls++
	m.mu.Unlock()
	return m.log.AppendEntry(entry)
}

func (m *MockLogStorage) AppendEntries(entries []*proto.LogEntry) error {
	if err := m.injected(&m.AppendEntriesError); err != nil {
		return err
	}
	m.mu.Lock()
	m.AppendCalls++
	m.mu.Unlock()
	return m.log.AppendEntries(entries)
}

func (m *MockLogStorage) GetEntry(index uint64) (*proto.LogEntry, error) {
	if err := m.injected(&m.GetEntryError); err != nil {
		return nil, err
	}
	return m.log.GetEntry(index)
}

func (m *MockLogStorage) GetEntries(startIndex, endIndex uint64) ([]*proto.LogEntry, error) {
	if err := m.injected(&m.GetEntriesError); err != nil {
		return nil, err
	}
	return m.log.GetEntries(startIndex, endIndex)
}

func (m *MockLogStorage) GetEntriesFrom(startIndex uint64) ([]*proto.LogEntry, error) {
	if err := m.injected(&m.GetEntriesFromError); err != nil {
		return nil, err
	}
	return m.log.GetEntriesFrom(startIndex)
}

func (m *MockLogStorage) DeleteEntriesFrom(index uint64) error {
	if err := m.injected(&m.DeleteEntriesFromError); err != nil {
		return err
	}
	m.mu.Lock()
	m.TruncateCalls++
	m.mu.Unlock()
	return m.log.DeleteEntriesFrom(index)
}

func (m *MockLogStorage) GetLastIndex() uint64 {
	return m.log.GetLastIndex()
}

func (m *MockLogStorage) GetLastTerm() uint64 {
	return m.log.GetLastTerm()
}

func (m *MockLogStorage) GetTerm(index uint64) (uint64, error) {
	if err := m.injected(&m.GetEntryError); err != nil && index > 0 {
		return 0, err
	}
	return m.log.GetTerm(index)
}

// Truncations returns how many times DeleteEntriesFrom reached the underlying log.
func (m *MockLogStorage) Truncations() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.TruncateCalls
}
