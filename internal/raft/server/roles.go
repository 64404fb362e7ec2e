package server

import (
	"context"
	"log"
	"time"

	"raftpeer/internal/pubsub"
)

// Role transitions of Section 5.2. Every method here expects the caller to hold s.mu for writing.

// stepDownLocked turns the peer into a Follower at term (or its current term if term is older). A Leader stops its
// heartbeat job and replicators; the election timer restarts with a full interval.
func (s *Server) stepDownLocked(term uint64, reason string) {
	termChanged := s.observeTermLocked(term)
	prev := s.state

	if prev == Leader {
		s.stopLeaderLocked()
		s.metrics.RecordStepDown()
		clear(s.pendingCommits)
	}
	s.state = Follower

	if s.electionTicker != nil && s.active {
		s.electionTicker.Reset(s.electionTimeout)
	}

	if prev != Follower || termChanged {
		log.Printf("[PEER-%d] [TERM-%d] %s -> Follower: %s", s.ID, s.currentTerm, prev, reason)
	}
	if prev != Follower {
		s.publishRoleChangeLocked(prev)
	}
}

// becomeCandidateLocked starts a new candidacy: bump the term, vote for self and restart the election timer so a
// stalled election is retried.
func (s *Server) becomeCandidateLocked() {
	prev := s.state
	s.currentTerm++
	self := s.ID
	s.votedFor = &self
	s.state = Candidate
	s.grantedVotesTotal = 1
	s.electionStartedAt = time.Now()
	s.heartbeatReceived = false

	if s.electionTicker != nil {
		s.electionTicker.Reset(s.electionTimeout)
	}
	s.metrics.RecordElection()

	if prev != Candidate {
		s.publishRoleChangeLocked(prev)
	}
}

// becomeLeaderLocked is entered once a candidate holds a majority of votes for its term.
func (s *Server) becomeLeaderLocked() {
	prev := s.state
	s.state = Leader
	s.resetLeaderStateLocked(s.identity.Others())

	if s.electionTicker != nil {
		s.electionTicker.Stop()
	}
	s.metrics.RecordElectionWon(time.Since(s.electionStartedAt))

	log.Printf("[PEER-%d] [TERM-%d] Won election with %d/%d votes, last log index %d",
		s.ID, s.currentTerm, s.grantedVotesTotal, s.identity.ClusterSize, s.log.GetLastIndex())

	s.publishRoleChangeLocked(prev)
	s.startLeaderLocked()
	// A cluster of one commits on its own.
	s.advanceCommitIndexLocked()
}

// startLeaderLocked launches the heartbeat job and one replicator per follower, all bound to a context that
// stopLeaderLocked cancels.
func (s *Server) startLeaderLocked() {
	if s.activeCtx == nil || !s.active {
		return
	}
	ctx, cancel := context.WithCancel(SetPeerTerm(s.activeCtx, s.currentTerm))
	s.leaderCancel = cancel
	term := s.currentTerm

	s.replicators = make(map[PeerID]chan struct{}, s.identity.ClusterSize-1)
	for _, peer := range s.identity.Others() {
		wake := make(chan struct{}, 1)
		s.replicators[peer] = wake

		s.jobs.Add(1)
		go func() {
			defer s.jobs.Done()
			s.runReplicator(ctx, term, peer, wake)
		}()
	}

	s.jobs.Add(1)
	go func() {
		defer s.jobs.Done()
		HeartbeatJob(ctx, s, term, s.cfg.HeartbeatInterval)
	}()
}

func (s *Server) stopLeaderLocked() {
	if s.leaderCancel != nil {
		s.leaderCancel()
		s.leaderCancel = nil
	}
	s.replicators = nil
}

// wakeReplicatorLocked nudges the replicator of peer. Wake-ups coalesce while the replicator is busy.
func (s *Server) wakeReplicatorLocked(peer PeerID) {
	wake, ok := s.replicators[peer]
	if !ok {
		return
	}
	select {
	case wake <- struct{}{}:
	default:
	}
}

// resetElectionTimerLocked records evidence of a live leader or election. The next tick of the timer consumes it.
func (s *Server) resetElectionTimerLocked() {
	s.heartbeatReceived = true
}

func (s *Server) publishRoleChangeLocked(from State) {
	pubsub.Publish(s.pubSub, pubsub.NewEvent(RoleChanged, RoleChange{From: from, To: s.state, Term: s.currentTerm}))
}

// advanceCommitIndexLocked applies the leader commit rule of Section 5.3 and 5.4.2: the largest N with a majority of
// matchIndex >= N (self included) whose entry is from the current term.
func (s *Server) advanceCommitIndexLocked() {
	if s.state != Leader {
		return
	}
	quorum := s.identity.Quorum()

	for n := s.log.GetLastIndex(); n > s.commitIndex; n-- {
		term, err := s.log.GetTerm(n)
		if err != nil {
			log.Printf("[PEER-%d] [TERM-%d] Failed to read term at %d: %v", s.ID, s.currentTerm, n, err)
			return
		}
		// Terms never decrease along the log, so nothing below can be from the current term either.
		if term != s.currentTerm {
			return
		}

		replicas := 1
		for _, peer := range s.identity.Others() {
			if s.matchIndex[peer] >= n {
				replicas++
			}
		}
		if replicas >= quorum {
			s.setCommitIndexLocked(n)
			return
		}
	}
}

// setCommitIndexLocked moves commitIndex forward to n, applies the newly committed entries and notifies subscribers.
// Lower values are ignored.
func (s *Server) setCommitIndexLocked(n uint64) {
	if n <= s.commitIndex {
		return
	}
	prev := s.commitIndex
	s.commitIndex = n

	now := time.Now()
	for i := prev + 1; i <= n; i++ {
		if appended, ok := s.pendingCommits[i]; ok {
			s.metrics.RecordCommitLatency(now.Sub(appended))
			s.metrics.RecordCommandCommitted()
			delete(s.pendingCommits, i)
		}
	}

	s.applyCommittedLocked()
	pubsub.Publish(s.pubSub, pubsub.NewEvent(CommitIndexAdvanced, n))
}

// applyCommittedLocked hands entries in (lastApplied, commitIndex] to the StateMachine.
func (s *Server) applyCommittedLocked() {
	if s.lastApplied >= s.commitIndex {
		return
	}
	entries, err := s.log.GetEntries(s.lastApplied+1, s.commitIndex)
	if err != nil {
		log.Printf("[PEER-%d] [TERM-%d] Failed to read entries %d..%d for apply: %v",
			s.ID, s.currentTerm, s.lastApplied+1, s.commitIndex, err)
		return
	}
	s.StateMachine.Apply(entries)
	s.lastApplied = s.commitIndex
}
