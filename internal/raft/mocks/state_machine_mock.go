package mocks

import (
	"sync"

	"raftpeer/internal/raft/proto"
)

// MockStateMachine is a mock implementation of state_machine.StateMachine for testing
type MockStateMachine struct {
	mu             sync.RWMutex
	AppliedLogs    []proto.LogEntry
	ApplyCallCount int
}

func NewMockStateMachine() *MockStateMachine {
	return &MockStateMachine{}
}

func (m *MockStateMachine) Apply(entries []*proto.LogEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, entry := range entries {
		m.AppliedLogs = append(m.AppliedLogs, *entry)
	}
	m.ApplyCallCount++
}

// GetAppliedLogs returns a copy of all applied logs
func (m *MockStateMachine) GetAppliedLogs() []proto.LogEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]proto.LogEntry, len(m.AppliedLogs))
	copy(result, m.AppliedLogs)
	return result
}

// AppliedCommands returns the commands of all applied logs in order.
func (m *MockStateMachine) AppliedCommands() []int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]int64, 0, len(m.AppliedLogs))
	for _, entry := range m.AppliedLogs {
		out = append(out, entry.Command)
	}
	return out
}

func (m *MockStateMachine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.AppliedLogs = nil
	m.ApplyCallCount = 0
}
