package server

import "errors"

var (
	// ErrPeerInactive is returned by every operation on a deactivated peer.
	ErrPeerInactive = errors.New("raft: peer not active")
	// ErrNotLeader is returned to callers that require leadership.
	ErrNotLeader = errors.New("raft: peer is not the leader")
	// ErrUnknownPeer is returned for peer ids outside 0..N-1.
	ErrUnknownPeer = errors.New("raft: unknown peer")
)
