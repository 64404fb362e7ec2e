package server

import (
	"context"
	"fmt"
	"log"

	"raftpeer/internal/raft/proto"
)

// HandleRequestVote implements the receiver side of RequestVote (Figure 2 and Section 5.4.1). A newer term demotes the
// peer even when the vote is denied.
func (s *Server) HandleRequestVote(ctx context.Context, req *proto.RequestVoteRequest) (*proto.RequestVoteResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return nil, ErrPeerInactive
	}
	s.callCount.Add(1)

	candidate := PeerID(req.CandidateId)
	if _, err := s.identity.Address(candidate); err != nil {
		return nil, fmt.Errorf("vote request: %w", err)
	}

	// if one server’s current term is smaller than the other’s, it updates its current term and reverts to
	// follower (Section 5.1)
	if req.Term > s.currentTerm {
		s.stepDownLocked(req.Term, fmt.Sprintf("RequestVote from peer %d", candidate))
	}

	granted := req.Term == s.currentTerm &&
		(s.votedFor == nil || *s.votedFor == candidate) &&
		s.candidateLogUpToDateLocked(req.LastLogIndex, req.LastLogTerm)

	if granted {
		s.votedFor = &candidate
		s.resetElectionTimerLocked()
		log.Printf("[PEER-%d] [TERM-%d] [REQ-%s] Granted vote to peer %d",
			s.ID, s.currentTerm, GetRequestID(ctx), candidate)
	}

	return &proto.RequestVoteResponse{
		Term:        s.currentTerm,
		VoteGranted: granted,
	}, nil
}

// HandleAppendEntries implements the receiver side of AppendEntries (Figure 2, Section 5.3). On success AckLength is
// prevLogIndex+len(entries), the last index the follower is known to share with the leader.
func (s *Server) HandleAppendEntries(ctx context.Context, req *proto.AppendEntriesRequest) (*proto.AppendEntriesResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return nil, ErrPeerInactive
	}
	s.callCount.Add(1)

	// If a server receives a request with a stale term number, it rejects the request. (Section 5.1)
	if req.Term < s.currentTerm {
		return s.rejectAppendLocked(), nil
	}

	// A leader of the current or a newer term exists: candidates and stale leaders yield (Section 5.2).
	if req.Term > s.currentTerm || s.state != Follower {
		s.stepDownLocked(req.Term, fmt.Sprintf("AppendEntries from leader %d", req.LeaderId))
	}
	s.resetElectionTimerLocked()

	if !s.logMatchesLocked(req.PrevLogIndex, req.PrevLogTerm) {
		return s.rejectAppendLocked(), nil
	}

	if err := s.appendFromLeaderLocked(ctx, req); err != nil {
		log.Printf("[PEER-%d] [TERM-%d] [REQ-%s] Failed to store entries from leader %d: %v",
			s.ID, s.currentTerm, GetRequestID(ctx), req.LeaderId, err)
		return s.rejectAppendLocked(), nil
	}

	ack := req.PrevLogIndex + uint64(len(req.GetEntries()))
	// Only the prefix confirmed by this request is known to match the leader, so the commit index never passes it.
	s.setCommitIndexLocked(min(req.LeaderCommit, ack))

	return &proto.AppendEntriesResponse{
		Term:      s.currentTerm,
		Success:   true,
		AckLength: ack,
	}, nil
}

func (s *Server) rejectAppendLocked() *proto.AppendEntriesResponse {
	return &proto.AppendEntriesResponse{
		Term:    s.currentTerm,
		Success: false,
	}
}

// appendFromLeaderLocked merges req.Entries into the log after prevLogIndex. Entries already present with the same
// term are kept; the first conflicting entry and everything after it are removed before appending the rest. An empty
// request never truncates.
func (s *Server) appendFromLeaderLocked(ctx context.Context, req *proto.AppendEntriesRequest) error {
	entries := req.GetEntries()
	lastIndex := s.log.GetLastIndex()

	for i, entry := range entries {
		index := req.PrevLogIndex + 1 + uint64(i)
		if entry.Index != index {
			return fmt.Errorf("entry %d carries index %d", index, entry.Index)
		}

		if index <= lastIndex {
			term, err := s.log.GetTerm(index)
			if err != nil {
				return err
			}
			if term == entry.Term {
				continue
			}
			if index <= s.commitIndex {
				return fmt.Errorf("leader %d conflicts with committed entry %d", req.LeaderId, index)
			}
			if err := s.log.DeleteEntriesFrom(index); err != nil {
				return fmt.Errorf("truncate from %d: %w", index, err)
			}
			log.Printf("[PEER-%d] [TERM-%d] [REQ-%s] Truncated log from index %d (had %d entries) on conflict with leader %d",
				s.ID, s.currentTerm, GetRequestID(ctx), index, lastIndex, req.LeaderId)
		}

		if err := s.log.AppendEntries(entries[i:]); err != nil {
			return fmt.Errorf("append from %d: %w", index, err)
		}
		return nil
	}
	return nil
}
