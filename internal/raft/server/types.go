package server

import (
	"context"
	"time"

	"raftpeer/internal/pubsub"
	"raftpeer/internal/raft/proto"
)

// PeerID is the index of a peer in the cluster, 0..N-1.
type PeerID int

// PeerAddress is the network address of a peer
type PeerAddress string

// A State is a custom type representing the state of a server at any given point: leader, follower, or candidate
type State uint64

// As Golang does not support Enums this is a common pattern for implementing one
const (
	Leader State = iota
	Follower
	Candidate
)

// String returns the string representation of the State
func (s State) String() string {
	switch s {
	case Leader:
		return "Leader"
	case Follower:
		return "Follower"
	case Candidate:
		return "Candidate"
	default:
		return "Unknown"
	}
}

const (
	// PeerDeactivated is sent when the peer is deactivated. The payload is the deactivated PeerID.
	PeerDeactivated pubsub.EventType = iota
	// ElectionTimeoutExpired is sent on every tick of the election timer. The payload is the tick time.
	ElectionTimeoutExpired
	// CommitIndexAdvanced is sent after the commit index moved forward. The payload is the new commit index.
	CommitIndexAdvanced
	// RoleChanged is sent after every role transition. The payload is a RoleChange.
	RoleChanged
)

// RoleChange travels with RoleChanged events.
type RoleChange struct {
	From State
	To   State
	Term uint64
}

// MetricsCollector is an optional interface for collecting performance metrics
type MetricsCollector interface {
	RecordCommitLatency(latency time.Duration)
	RecordCommandCommitted()
	RecordAppendEntries()
	RecordRequestVote()
	RecordHeartbeat()
	RecordElection()
	RecordElectionWon(duration time.Duration)
	RecordStepDown()
}

// Transport is the synchronous "call peer X" primitive used by elections and replication. An error means no
// response was received; the consensus logic treats it as a denied vote or a failed attempt and never changes state
// because of it.
type Transport interface {
	RequestVote(ctx context.Context, peer PeerID, req *proto.RequestVoteRequest) (*proto.RequestVoteResponse, error)
	AppendEntries(ctx context.Context, peer PeerID, req *proto.AppendEntriesRequest) (*proto.AppendEntriesResponse, error)
	Close()
}

type noopMetrics struct{}

func (noopMetrics) RecordCommitLatency(time.Duration) {}
func (noopMetrics) RecordCommandCommitted()           {}
func (noopMetrics) RecordAppendEntries()              {}
func (noopMetrics) RecordRequestVote()                {}
func (noopMetrics) RecordHeartbeat()                  {}
func (noopMetrics) RecordElection()                   {}
func (noopMetrics) RecordElectionWon(time.Duration)   {}
func (noopMetrics) RecordStepDown()                   {}
