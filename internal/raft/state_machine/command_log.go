package state_machine

import (
	"log"
	"sync"

	"raftpeer/internal/raft/proto"
)

// CommandLog is a StateMachine that records every applied integer command by log index.
type CommandLog struct {
	mu      sync.RWMutex
	applied []int64
	id      int // Peer ID for logging
}

func NewCommandLog(peerID int) *CommandLog {
	return &CommandLog{
		applied: make([]int64, 0, 64),
		id:      peerID,
	}
}

// Apply records entries whose index directly follows the last applied one. Entries already applied are ignored, and
// a gap stops the batch since the caller must deliver committed entries in order.
func (c *CommandLog) Apply(entries []*proto.LogEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, entry := range entries {
		next := uint64(len(c.applied)) + 1
		switch {
		case entry.Index < next:
			continue
		case entry.Index > next:
			log.Printf("[SM-%d] Gap in applied entries: got index %d, want %d", c.id, entry.Index, next)
			return
		}
		c.applied = append(c.applied, entry.Command)
	}
}

// Get returns the command applied at index.
func (c *CommandLog) Get(index uint64) (int64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if index == 0 || index > uint64(len(c.applied)) {
		return 0, false
	}
	return c.applied[index-1], true
}

// LastApplied returns the index of the last applied command.
func (c *CommandLog) LastApplied() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return uint64(len(c.applied))
}

// Commands returns a copy of every applied command in index order.
func (c *CommandLog) Commands() []int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]int64, len(c.applied))
	copy(out, c.applied)
	return out
}
