// Package proto holds the messages exchanged by Raft peers and the controller, their protobuf wire encoding and
// the RaftService gRPC bindings.
//
// The messages follow the field layout of raft.proto below. They are encoded with protowire directly instead of
// generated code, and the codec is registered with gRPC under the "raftwire" content-subtype.
//
//	message LogEntry              { uint64 index = 1; uint64 term = 2; sint64 command = 3; }
//	message RequestVoteRequest    { uint64 term = 1; uint64 candidate_id = 2; uint64 last_log_index = 3; uint64 last_log_term = 4; }
//	message RequestVoteResponse   { uint64 term = 1; bool vote_granted = 2; }
//	message AppendEntriesRequest  { uint64 term = 1; uint64 leader_id = 2; uint64 prev_log_index = 3; uint64 prev_log_term = 4; repeated LogEntry entries = 5; uint64 leader_commit = 6; }
//	message AppendEntriesResponse { uint64 term = 1; bool success = 2; uint64 ack_length = 3; }
//	message GetCommittedCmdRequest  { uint64 index = 1; }
//	message GetCommittedCmdResponse { sint64 command = 1; }
//	message GetStatusRequest      {}
//	message NewCommandRequest     { sint64 command = 1; }
//	message StatusReport          { uint64 last_log_index = 1; uint64 term = 2; bool is_leader = 3; uint64 call_count = 4; }
package proto

// LogEntry is a single command in the replicated log. Indices are 1-based and contiguous.
type LogEntry struct {
	Index   uint64
	Term    uint64
	Command int64
}

func (x *LogEntry) GetIndex() uint64 {
	if x != nil {
		return x.Index
	}
	return 0
}

func (x *LogEntry) GetTerm() uint64 {
	if x != nil {
		return x.Term
	}
	return 0
}

func (x *LogEntry) GetCommand() int64 {
	if x != nil {
		return x.Command
	}
	return 0
}

// RequestVoteRequest is sent by candidates to gather votes (Section 5.2).
type RequestVoteRequest struct {
	Term         uint64
	CandidateId  uint64
	LastLogIndex uint64
	LastLogTerm  uint64
}

type RequestVoteResponse struct {
	Term        uint64
	VoteGranted bool
}

// AppendEntriesRequest replicates log entries and doubles as the heartbeat when Entries is empty (Section 5.3).
type AppendEntriesRequest struct {
	Term         uint64
	LeaderId     uint64
	PrevLogIndex uint64
	PrevLogTerm  uint64
	Entries      []*LogEntry
	LeaderCommit uint64
}

func (x *AppendEntriesRequest) GetEntries() []*LogEntry {
	if x != nil {
		return x.Entries
	}
	return nil
}

// AppendEntriesResponse carries the follower's term, whether the entries were accepted, and on success the index
// of the last entry the follower now shares with the leader.
type AppendEntriesResponse struct {
	Term      uint64
	Success   bool
	AckLength uint64
}

type GetCommittedCmdRequest struct {
	Index uint64
}

// GetCommittedCmdResponse holds the committed command, or 0 when the index is absent or not yet committed.
type GetCommittedCmdResponse struct {
	Command int64
}

type GetStatusRequest struct{}

type NewCommandRequest struct {
	Command int64
}

// StatusReport is the observable status of a peer, returned by GetStatus and NewCommand.
type StatusReport struct {
	LastLogIndex uint64
	Term         uint64
	IsLeader     bool
	CallCount    uint64
}

func (x *StatusReport) GetIsLeader() bool {
	if x != nil {
		return x.IsLeader
	}
	return false
}

func (x *StatusReport) GetTerm() uint64 {
	if x != nil {
		return x.Term
	}
	return 0
}
