package server

import (
	"context"
	"log"
	"time"

	"raftpeer/internal/raft/proto"
)

// buildAppendEntries prepares an AppendEntries for peer from its nextIndex. Heartbeats carry no entries. It returns
// false once the peer is no longer leader of term.
func (s *Server) buildAppendEntries(term uint64, peer PeerID, withEntries bool) (*proto.AppendEntriesRequest, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.active || s.state != Leader || s.currentTerm != term {
		return nil, false
	}

	next := s.nextIndex[peer]
	prevIndex := next - 1
	prevTerm, err := s.log.GetTerm(prevIndex)
	if err != nil {
		log.Printf("[PEER-%d] [TERM-%d] Failed to read term at %d for peer %d: %v", s.ID, term, prevIndex, peer, err)
		return nil, false
	}

	req := &proto.AppendEntriesRequest{
		Term:         term,
		LeaderId:     uint64(s.ID),
		PrevLogIndex: prevIndex,
		PrevLogTerm:  prevTerm,
		LeaderCommit: s.commitIndex,
	}
	if withEntries {
		entries, err := s.log.GetEntriesFrom(next)
		if err != nil {
			log.Printf("[PEER-%d] [TERM-%d] Failed to read entries from %d for peer %d: %v", s.ID, term, next, peer, err)
			return nil, false
		}
		req.Entries = entries
	}
	return req, true
}

// broadcastHeartbeat sends an empty AppendEntries to every follower in parallel.
func (s *Server) broadcastHeartbeat(ctx context.Context, term uint64) {
	for _, peer := range s.identity.Others() {
		req, ok := s.buildAppendEntries(term, peer, false)
		if !ok {
			return
		}

		s.jobs.Add(1)
		go func() {
			defer s.jobs.Done()
			s.sendHeartbeat(ctx, term, peer, req)
		}()
	}
}

// sendHeartbeat delivers one heartbeat. A rejection, or a success from a follower that still lacks entries, wakes
// that follower's replicator.
func (s *Server) sendHeartbeat(ctx context.Context, term uint64, peer PeerID, req *proto.AppendEntriesRequest) {
	resp, err := s.transport.AppendEntries(ctx, peer, req)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if ctx.Err() != nil {
		return
	}
	if resp.Term > s.currentTerm {
		s.stepDownLocked(resp.Term, "newer term in heartbeat response")
		return
	}
	if s.state != Leader || s.currentTerm != term {
		return
	}

	if !resp.Success {
		s.wakeReplicatorLocked(peer)
		return
	}
	s.recordMatchLocked(peer, resp.AckLength)
	s.advanceCommitIndexLocked()
	if s.nextIndex[peer] <= s.log.GetLastIndex() {
		s.wakeReplicatorLocked(peer)
	}
}

// runReplicator is the long-lived catch-up task for one follower. It lives as long as the leadership that started it.
func (s *Server) runReplicator(ctx context.Context, term uint64, peer PeerID, wake <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-wake:
			s.catchUp(ctx, term, peer)
		}
	}
}

// catchUp sends AppendEntries with every entry from nextIndex until the follower acknowledges the leader's last
// index. A mismatch steps nextIndex back by one; a failed call is retried after a backoff.
func (s *Server) catchUp(ctx context.Context, term uint64, peer PeerID) {
	failures := 0
	for {
		req, ok := s.buildAppendEntries(term, peer, true)
		if !ok {
			return
		}

		resp, err := s.transport.AppendEntries(ctx, peer, req)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			failures++
			if failures == 1 || failures%50 == 0 {
				log.Printf("[PEER-%d] [TERM-%d] Replication to peer %d failing (%d attempts): %v",
					s.ID, term, peer, failures, err)
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.cfg.Backoff(failures - 1)):
			}
			continue
		}
		failures = 0

		if done := s.handleCatchUpResponse(ctx, term, peer, req, resp); done {
			return
		}
	}
}

// handleCatchUpResponse applies one catch-up response and reports whether the loop should stop.
func (s *Server) handleCatchUpResponse(ctx context.Context, term uint64, peer PeerID, req *proto.AppendEntriesRequest, resp *proto.AppendEntriesResponse) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ctx.Err() != nil {
		return true
	}
	if resp.Term > s.currentTerm {
		s.stepDownLocked(resp.Term, "newer term in AppendEntries response")
		return true
	}
	if s.state != Leader || s.currentTerm != term {
		return true
	}

	if resp.Success {
		s.recordMatchLocked(peer, resp.AckLength)
		s.advanceCommitIndexLocked()
		return s.nextIndex[peer] > s.log.GetLastIndex()
	}

	s.backOffLocked(peer, req.PrevLogIndex)
	return false
}
