package storage

import (
	"errors"

	"raftpeer/internal/raft/proto"
)

// ErrIndexOutOfRange is returned when a log position outside 1..GetLastIndex() is requested, or when an append
// would leave a gap in the log.
var ErrIndexOutOfRange = errors.New("storage: log index out of range")

// LogStorage is the ordered sequence of proto.LogEntry kept by a peer (Section 5.3). Indices are 1-based and
// contiguous: the entry at position k always has Index k+1, and index 0 denotes the empty prefix.
//
// Entries are only removed from the tail, and only to resolve a conflict with the current leader's log. Callers must
// never remove entries at or below the commit index.
type LogStorage interface {
	// AppendEntry appends a single entry. Its index must be GetLastIndex()+1.
	AppendEntry(entry *proto.LogEntry) error

	// AppendEntries appends entries in order. The first index must be GetLastIndex()+1 and the rest contiguous.
	AppendEntries(entries []*proto.LogEntry) error

	// GetEntry returns the entry at index.
	GetEntry(index uint64) (*proto.LogEntry, error)

	// GetEntries returns entries from startIndex to endIndex, both inclusive.
	GetEntries(startIndex, endIndex uint64) ([]*proto.LogEntry, error)

	// GetEntriesFrom returns every entry from startIndex to the end of the log. startIndex may be
	// GetLastIndex()+1, in which case the result is empty.
	GetEntriesFrom(startIndex uint64) ([]*proto.LogEntry, error)

	// DeleteEntriesFrom removes the entry at index and every entry after it.
	DeleteEntriesFrom(index uint64) error

	// GetLastIndex returns the index of the last entry, 0 for an empty log.
	GetLastIndex() uint64

	// GetLastTerm returns the term of the last entry, 0 for an empty log.
	GetLastTerm() uint64

	// GetTerm returns the term stored at index. Index 0 has term 0.
	GetTerm(index uint64) (uint64, error)
}
