package storage

import (
	"fmt"
	"sync"

	"raftpeer/internal/raft/proto"
)

// MemoryLog is a LogStorage held entirely in memory. State survives deactivation of a peer but not the process.
type MemoryLog struct {
	mu      sync.RWMutex
	entries []*proto.LogEntry
}

func NewMemoryLog() *MemoryLog {
	return &MemoryLog{
		entries: make([]*proto.LogEntry, 0, 64),
	}
}

func (l *MemoryLog) AppendEntry(entry *proto.LogEntry) error {
	return l.AppendEntries([]*proto.LogEntry{entry})
}

func (l *MemoryLog) AppendEntries(entries []*proto.LogEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	next := uint64(len(l.entries)) + 1
	for i, entry := range entries {
		if entry.Index != next+uint64(i) {
			return fmt.Errorf("%w: appending index %d, expected %d", ErrIndexOutOfRange, entry.Index, next+uint64(i))
		}
	}

	// Entries are copied so later mutation by the caller (or a decoded RPC buffer) cannot alter the log.
	for _, entry := range entries {
		e := *entry
		l.entries = append(l.entries, &e)
	}
	return nil
}

func (l *MemoryLog) GetEntry(index uint64) (*proto.LogEntry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if index == 0 || index > uint64(len(l.entries)) {
		return nil, fmt.Errorf("%w: index %d, last index %d", ErrIndexOutOfRange, index, len(l.entries))
	}
	e := *l.entries[index-1]
	return &e, nil
}

func (l *MemoryLog) GetEntries(startIndex, endIndex uint64) ([]*proto.LogEntry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if startIndex == 0 || endIndex > uint64(len(l.entries)) {
		return nil, fmt.Errorf("%w: range [%d, %d], last index %d", ErrIndexOutOfRange, startIndex, endIndex, len(l.entries))
	}
	if startIndex > endIndex {
		return nil, nil
	}
	return l.copyRange(startIndex, endIndex), nil
}

func (l *MemoryLog) GetEntriesFrom(startIndex uint64) ([]*proto.LogEntry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	last := uint64(len(l.entries))
	if startIndex == 0 || startIndex > last+1 {
		return nil, fmt.Errorf("%w: start %d, last index %d", ErrIndexOutOfRange, startIndex, last)
	}
	if startIndex == last+1 {
		return nil, nil
	}
	return l.copyRange(startIndex, last), nil
}

// copyRange must be called with l.mu held.
func (l *MemoryLog) copyRange(startIndex, endIndex uint64) []*proto.LogEntry {
	out := make([]*proto.LogEntry, 0, endIndex-startIndex+1)
	for _, entry := range l.entries[startIndex-1 : endIndex] {
		e := *entry
		out = append(out, &e)
	}
	return out
}

func (l *MemoryLog) DeleteEntriesFrom(index uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if index == 0 || index > uint64(len(l.entries)) {
		return fmt.Errorf("%w: delete from %d, last index %d", ErrIndexOutOfRange, index, len(l.entries))
	}
	for i := index - 1; i < uint64(len(l.entries)); i++ {
		l.entries[i] = nil
	}
	l.entries = l.entries[:index-1]
	return nil
}

func (l *MemoryLog) GetLastIndex() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return uint64(len(l.entries))
}

func (l *MemoryLog) GetLastTerm() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.entries) == 0 {
		return 0
	}
	return l.entries[len(l.entries)-1].Term
}

func (l *MemoryLog) GetTerm(index uint64) (uint64, error) {
	if index == 0 {
		return 0, nil
	}
	entry, err := l.GetEntry(index)
	if err != nil {
		return 0, err
	}
	return entry.Term, nil
}
