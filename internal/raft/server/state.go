package server

import (
	"sync"
	"time"

	"raftpeer/internal/raft/storage"
)

// serverState is container for different state variables as defined in Figure 2 from the
// [Raft paper](https://raft.github.io/raft.pdf)
// Every read used to make a protocol decision and every write happens under mu. Getters take the read lock; methods
// with the Locked suffix expect the caller to hold the write lock.
type serverState struct {
	// Protects all fields below
	mu sync.RWMutex

	// The state of the server as per Section 5.1 from the [Raft paper](https://raft.github.io/raft.pdf). When a server
	// initially starts it is a Follower as per Section 5.2 from the paper.
	state State
	// The latest term server has seen. It is a [logical clock](https://dl.acm.org/doi/pdf/10.1145/359545.359563) used
	// by servers to detect obsolete info, such as stale leaders. It increases monotonically, as per Section 5.1.
	currentTerm uint64
	// The peer voted for in currentTerm, nil when no vote was cast. Reset whenever currentTerm increases.
	votedFor *PeerID
	// log holds the replicated entries. It survives deactivation.
	log storage.LogStorage

	// Index of the highest entry known to be committed. Never decreases.
	commitIndex uint64
	// Index of the highest entry applied to the StateMachine.
	lastApplied uint64

	// Leader only. Reinitialized after every election.
	nextIndex  map[PeerID]uint64
	matchIndex map[PeerID]uint64

	// electionTimeout is the interval of the election timer. It is drawn once when the server is created.
	electionTimeout time.Duration
	// heartbeatReceived records that a valid AppendEntries arrived or a vote was granted since the last tick of the
	// election timer. The tick clears it instead of starting an election.
	heartbeatReceived bool
	// grantedVotesTotal counts the votes of the current candidacy, the self vote included.
	grantedVotesTotal int
	// electionStartedAt is the time the current candidacy began.
	electionStartedAt time.Time
}

func newServerState(log storage.LogStorage, electionTimeout time.Duration) serverState {
	return serverState{
		state:           Follower,
		log:             log,
		nextIndex:       make(map[PeerID]uint64),
		matchIndex:      make(map[PeerID]uint64),
		electionTimeout: electionTimeout,
	}
}

func (s *serverState) getState() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *serverState) getCurrentTerm() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentTerm
}

func (s *serverState) getVotedFor() *PeerID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.votedFor == nil {
		return nil
	}
	id := *s.votedFor
	return &id
}

func (s *serverState) getCommitIndex() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.commitIndex
}

func (s *serverState) getLastApplied() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastApplied
}

func (s *serverState) getElectionTimeout() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.electionTimeout
}

func (s *serverState) getNextIndex(peer PeerID) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nextIndex[peer]
}

func (s *serverState) getMatchIndex(peer PeerID) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.matchIndex[peer]
}

// observeTermLocked adopts term if it is newer, clearing the vote. It reports whether the term changed.
func (s *serverState) observeTermLocked(term uint64) bool {
	if term <= s.currentTerm {
		return false
	}
	s.currentTerm = term
	s.votedFor = nil
	return true
}

// resetLeaderStateLocked initializes nextIndex and matchIndex for a new leadership (Figure 2).
func (s *serverState) resetLeaderStateLocked(peers []PeerID) {
	next := s.log.GetLastIndex() + 1
	s.nextIndex = make(map[PeerID]uint64, len(peers))
	s.matchIndex = make(map[PeerID]uint64, len(peers))
	for _, p := range peers {
		s.nextIndex[p] = next
		s.matchIndex[p] = 0
	}
}

// recordMatchLocked applies a successful AppendEntries acknowledgment. matchIndex never moves backwards so stale
// responses are harmless.
func (s *serverState) recordMatchLocked(peer PeerID, ack uint64) {
	if last := s.log.GetLastIndex(); ack > last {
		ack = last
	}
	if ack > s.matchIndex[peer] {
		s.matchIndex[peer] = ack
	}
	if s.matchIndex[peer]+1 > s.nextIndex[peer] {
		s.nextIndex[peer] = s.matchIndex[peer] + 1
	}
}

// backOffLocked steps nextIndex back after a log mismatch, provided nobody moved it since req was built.
func (s *serverState) backOffLocked(peer PeerID, sentPrevIndex uint64) {
	if s.nextIndex[peer] == sentPrevIndex+1 && s.nextIndex[peer] > 1 {
		s.nextIndex[peer]--
	}
}

// candidateLogUpToDateLocked is the election restriction of Section 5.4.1: the candidate's last term must be higher,
// or equal with a last index at least as large.
func (s *serverState) candidateLogUpToDateLocked(lastLogIndex, lastLogTerm uint64) bool {
	myTerm := s.log.GetLastTerm()
	if lastLogTerm != myTerm {
		return lastLogTerm > myTerm
	}
	return lastLogIndex >= s.log.GetLastIndex()
}

// logMatchesLocked is the AppendEntries consistency check: the log holds an entry at prevIndex with prevTerm.
func (s *serverState) logMatchesLocked(prevIndex, prevTerm uint64) bool {
	if prevIndex > s.log.GetLastIndex() {
		return false
	}
	term, err := s.log.GetTerm(prevIndex)
	return err == nil && term == prevTerm
}
