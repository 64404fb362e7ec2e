package server

import (
	"context"
	"log"
	"time"

	"raftpeer/internal/pubsub"
)

/*
In this file we define all Background jobs that could run in a given Server. Each job exits once its context is
cancelled, which happens when the peer is deactivated or, for leader jobs, when the leadership ends. This prevents
go routine leakage.
See: https://medium.com/@srajsonu/understanding-and-preventing-goroutine-leaks-in-go-623cac542954
*/

// TrackElectionTimeoutJob publishes an ElectionTimeoutExpired event on every tick of the election ticker. It should be
// called as a goroutine. The ticker is owned by the Server, which stops it while Leader and resets it on role changes.
func TrackElectionTimeoutJob(ctx context.Context, ticker *time.Ticker, pubSub *pubsub.PubSubClient) {
	id, _ := GetPeerID(ctx)

	for {
		select {
		case expiredTime := <-ticker.C:
			pubsub.Publish(pubSub, pubsub.NewEvent(ElectionTimeoutExpired, expiredTime))
		case <-ctx.Done():
			log.Printf("[JOB] [PEER-%d] Stopping TrackElectionTimeoutJob (session %s)", id, GetSessionID(ctx))
			return
		}
	}
}

// HeartbeatJob sends heartbeats on behalf of the leader of term, once right away and then every interval, so that
// followers do not start elections (Section 5.2). It should be called as a goroutine.
func HeartbeatJob(ctx context.Context, s *Server, term uint64, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.broadcastHeartbeat(ctx, term)
	for {
		select {
		case <-ticker.C:
			s.broadcastHeartbeat(ctx, term)
		case <-ctx.Done():
			log.Printf("[JOB] [PEER-%d] [TERM-%d] Stopping HeartbeatJob", s.ID, term)
			return
		}
	}
}
