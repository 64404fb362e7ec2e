package server

import (
	"context"
	"log"

	"raftpeer/internal/raft/proto"
)

// HandleElectionTimeout runs on every tick of the election timer. A heartbeat or a granted vote since the previous
// tick only clears the flag; otherwise the peer starts an election. Leaders ignore the timer.
func (s *Server) HandleElectionTimeout(ctx context.Context) {
	s.mu.Lock()
	if s.heartbeatReceived && s.state != Leader {
		s.heartbeatReceived = false
		s.mu.Unlock()
		return
	}
	req := s.beginElectionLocked(ctx)
	s.mu.Unlock()

	s.solicitVotes(ctx, req)
}

// BeginElection is called when a server does not receive HeartBeat messages from a Leader node over an ElectionTimeout
// period, as per Section 5.2 from the [Raft paper](https://raft.github.io/raft.pdf).
func (s *Server) BeginElection(ctx context.Context) {
	s.mu.Lock()
	req := s.beginElectionLocked(ctx)
	s.mu.Unlock()

	s.solicitVotes(ctx, req)
}

// beginElectionLocked turns the peer into a candidate and returns the vote request to send, or nil when no votes need
// to be solicited.
func (s *Server) beginElectionLocked(ctx context.Context) *proto.RequestVoteRequest {
	if !s.active || ctx.Err() != nil || s.state == Leader {
		return nil
	}

	s.becomeCandidateLocked()
	req := &proto.RequestVoteRequest{
		Term:         s.currentTerm,
		CandidateId:  uint64(s.ID),
		LastLogIndex: s.log.GetLastIndex(),
		LastLogTerm:  s.log.GetLastTerm(),
	}
	log.Printf("[PEER-%d] [TERM-%d] Initiated a new election (last log %d@%d)",
		s.ID, req.Term, req.LastLogIndex, req.LastLogTerm)

	// A cluster of one elects itself.
	if s.grantedVotesTotal >= s.identity.Quorum() {
		s.becomeLeaderLocked()
		return nil
	}
	return req
}

// solicitVotes sends req to every other peer in parallel. Responses are tallied as they arrive.
func (s *Server) solicitVotes(ctx context.Context, req *proto.RequestVoteRequest) {
	if req == nil {
		return
	}
	ctx = SetPeerTerm(ctx, req.Term)
	for _, peer := range s.identity.Others() {
		s.jobs.Add(1)
		go func() {
			defer s.jobs.Done()
			s.requestVote(ctx, peer, req)
		}()
	}
}

// requestVote asks one peer for its vote and tallies the answer. A failed call counts as a denied vote.
func (s *Server) requestVote(ctx context.Context, peer PeerID, req *proto.RequestVoteRequest) {
	resp, err := s.transport.RequestVote(ctx, peer, req)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// The peer may have been deactivated while the call was in flight.
	if !s.active || ctx.Err() != nil {
		return
	}
	if resp.Term > s.currentTerm {
		s.stepDownLocked(resp.Term, "newer term in RequestVote response")
		return
	}
	// Responses for an abandoned candidacy are ignored.
	if s.state != Candidate || s.currentTerm != req.Term || !resp.VoteGranted {
		return
	}

	s.grantedVotesTotal++
	if s.grantedVotesTotal >= s.identity.Quorum() {
		s.becomeLeaderLocked()
	}
}
