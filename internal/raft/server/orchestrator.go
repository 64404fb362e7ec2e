package server

import (
	"context"
	"time"

	"raftpeer/internal/pubsub"
)

// Orchestrator orchestrates and monitors the behavior of a Server, turning election timer events into elections.
type Orchestrator struct {
	// A channel where a signal is sent once the election timer of a server ticks. This channel is buffered so a slow
	// election drops redundant ticks instead of queueing them.
	electionTimeoutExpiredChan chan *pubsub.Event[time.Time]
	subscription               pubsub.SubscriberID

	pubSub *pubsub.PubSubClient
	// The server that is orchestrated.
	server *Server
}

// Run Runs the Orchestrator for a given Server until ctx is cancelled. It should be executed as a goroutine.
func (o *Orchestrator) Run(ctx context.Context) {
	defer o.pubSub.Unsubscribe(ElectionTimeoutExpired, o.subscription)

	for {
		select {
		case _, ok := <-o.electionTimeoutExpiredChan:
			if !ok {
				return
			}
			o.server.HandleElectionTimeout(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func NewOrchestrator(pubSub *pubsub.PubSubClient, server *Server) *Orchestrator {
	o := &Orchestrator{
		electionTimeoutExpiredChan: make(chan *pubsub.Event[time.Time], 1),
		pubSub:                     pubSub,
		server:                     server,
	}
	o.subscription = pubsub.Subscribe(pubSub, ElectionTimeoutExpired, o.electionTimeoutExpiredChan,
		pubsub.SubscriptionOptions{IsBlocking: false})

	return o
}
