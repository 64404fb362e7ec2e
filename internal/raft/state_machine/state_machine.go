package state_machine

import "raftpeer/internal/raft/proto"

// StateMachine is the replicated state machine of a peer (Section 2 of the
// [Raft paper](https://raft.github.io/raft.pdf)). Committed entries are handed to Apply exactly once, in index order.
type StateMachine interface {
	Apply(entries []*proto.LogEntry)
}
