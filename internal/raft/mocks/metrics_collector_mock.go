package mocks

import (
	"sync"
	"time"
)

// MockMetricsCollector is a mock implementation of server.MetricsCollector for testing
type MockMetricsCollector struct {
	mu                     sync.RWMutex
	CommitLatencies        []time.Duration
	CommandsCommittedCount int
	AppendEntriesCount     int
	RequestVoteCount       int
	HeartbeatCount         int
	ElectionCount          int
	ElectionDurations      []time.Duration
	StepDownCount          int
}

func NewMockMetricsCollector() *MockMetricsCollector {
	return &MockMetricsCollector{}
}

func (m *MockMetricsCollector) RecordCommitLatency(latency time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CommitLatencies = append(m.CommitLatencies, latency)
}

func (m *MockMetricsCollector) RecordCommandCommitted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CommandsCommittedCount++
}

func (m *MockMetricsCollector) RecordAppendEntries() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AppendEntriesCount++
}

func (m *MockMetricsCollector) RecordRequestVote() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestVoteCount++
}

func (m *MockMetricsCollector) RecordHeartbeat() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.HeartbeatCount++
}

func (m *MockMetricsCollector) RecordElection() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ElectionCount++
}

func (m *MockMetricsCollector) RecordElectionWon(duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ElectionDurations = append(m.ElectionDurations, duration)
}

func (m *MockMetricsCollector) RecordStepDown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.StepDownCount++
}

// Elections returns how many elections were started and how many were won.
func (m *MockMetricsCollector) Elections() (started, won int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ElectionCount, len(m.ElectionDurations)
}

// StepDowns returns how many times a leader stepped down.
func (m *MockMetricsCollector) StepDowns() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.StepDownCount
}

// Committed returns the number of commands recorded as committed.
func (m *MockMetricsCollector) Committed() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.CommandsCommittedCount
}

// Reset clears all recorded metrics
func (m *MockMetricsCollector) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CommitLatencies = nil
	m.CommandsCommittedCount = 0
	m.AppendEntriesCount = 0
	m.RequestVoteCount = 0
	m.HeartbeatCount = 0
	m.ElectionCount = 0
	m.ElectionDurations = nil
	m.StepDownCount = 0
}
