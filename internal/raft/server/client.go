package server

import (
	"context"
	"fmt"
	"log"
	"time"

	"raftpeer/internal/pubsub"
	"raftpeer/internal/raft/proto"
)

// CommittedCmd returns the command at index if it is committed locally, 0 when the index is not committed or absent.
func (s *Server) CommittedCmd(index uint64) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.active {
		return 0, ErrPeerInactive
	}
	if index == 0 || index > s.commitIndex {
		return 0, nil
	}
	entry, err := s.log.GetEntry(index)
	if err != nil {
		return 0, nil
	}
	return entry.Command, nil
}

// Status reports the observable status of the peer.
func (s *Server) Status() (*proto.StatusReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.active {
		return nil, ErrPeerInactive
	}
	return s.statusLocked(), nil
}

func (s *Server) statusLocked() *proto.StatusReport {
	return &proto.StatusReport{
		LastLogIndex: s.log.GetLastIndex(),
		Term:         s.currentTerm,
		IsLeader:     s.state == Leader,
		CallCount:    s.callCount.Load(),
	}
}

// Submit appends command to the log if the peer is Leader and waits until the entry commits, leadership is lost,
// ctx ends or the command timeout elapses, whichever comes first. It then returns the status, whose LastLogIndex is
// the index the command was appended at unless other commands followed. A non-leader returns its status without
// appending.
func (s *Server) Submit(ctx context.Context, command int64) (*proto.StatusReport, error) {
	commits := make(chan *pubsub.Event[uint64], 8)
	roles := make(chan *pubsub.Event[RoleChange], 4)
	stopped := make(chan *pubsub.Event[PeerID], 1)
	commitSub := pubsub.Subscribe(s.pubSub, CommitIndexAdvanced, commits, pubsub.SubscriptionOptions{IsBlocking: false})
	roleSub := pubsub.Subscribe(s.pubSub, RoleChanged, roles, pubsub.SubscriptionOptions{IsBlocking: false})
	stopSub := pubsub.Subscribe(s.pubSub, PeerDeactivated, stopped, pubsub.SubscriptionOptions{IsBlocking: false})
	defer s.pubSub.Unsubscribe(CommitIndexAdvanced, commitSub)
	defer s.pubSub.Unsubscribe(RoleChanged, roleSub)
	defer s.pubSub.Unsubscribe(PeerDeactivated, stopSub)

	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return nil, ErrPeerInactive
	}
	if s.state != Leader {
		report := s.statusLocked()
		s.mu.Unlock()
		return report, nil
	}

	index := s.log.GetLastIndex() + 1
	term := s.currentTerm
	entry := &proto.LogEntry{Index: index, Term: term, Command: command}
	if err := s.log.AppendEntry(entry); err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("append command at %d: %w", index, err)
	}
	s.pendingCommits[index] = time.Now()
	log.Printf("[PEER-%d] [TERM-%d] Appended command %d at index %d", s.ID, term, command, index)

	s.advanceCommitIndexLocked()
	for _, peer := range s.identity.Others() {
		s.wakeReplicatorLocked(peer)
	}
	s.mu.Unlock()

	s.awaitCommit(ctx, index, term, commits, roles, stopped)
	return s.Status()
}

// awaitCommit blocks until index is committed in term, the peer is no longer leader of term, ctx ends, or the
// command timeout elapses.
func (s *Server) awaitCommit(ctx context.Context, index, term uint64, commits <-chan *pubsub.Event[uint64],
	roles <-chan *pubsub.Event[RoleChange], stopped <-chan *pubsub.Event[PeerID]) {
	timer := time.NewTimer(s.cfg.CommandTimeout)
	defer timer.Stop()

	settled := func() bool {
		s.mu.RLock()
		defer s.mu.RUnlock()
		return !s.active || s.commitIndex >= index || s.state != Leader || s.currentTerm != term
	}

	for !settled() {
		select {
		case <-commits:
		case <-roles:
		case <-stopped:
		case <-timer.C:
			return
		case <-ctx.Done():
			return
		}
	}
}
