package server

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/backoff"
	"google.golang.org/grpc/credentials/insecure"

	"raftpeer/internal/raft/config"
	"raftpeer/internal/raft/proto"
)

// reconnectParams keep the client redialing a reactivated peer quickly. Section 5.6 asks for broadcast times well
// below the election timeout, and the gRPC default backoff grows to two minutes.
var reconnectParams = grpc.ConnectParams{
	Backoff: backoff.Config{
		BaseDelay:  20 * time.Millisecond,
		Multiplier: 1.6,
		Jitter:     0.2,
		MaxDelay:   200 * time.Millisecond,
	},
	MinConnectTimeout: time.Second,
}

// GRPCTransport reaches the other peers of the cluster over gRPC, one long-lived connection per peer.
type GRPCTransport struct {
	// A map to store the underlying grpc.ClientConn for each peer. It is a map[PeerID]*grpc.ClientConn.
	// sync.Map provides thread-safe access to the map, and is optimized for read operations, reducing the overhead of
	// manual locks
	clientsConnPool *sync.Map
	cfg             config.Config
	// Optional metrics collector
	metrics MetricsCollector
	self    PeerID
}

// NewGRPCTransport opens a connection to every other peer of identity. Connections are lazy, so peers that are not
// listening yet are dialed on first use.
func NewGRPCTransport(identity PeerIdentity, cfg config.Config, metrics MetricsCollector) (*GRPCTransport, error) {
	t := &GRPCTransport{
		clientsConnPool: &sync.Map{},
		cfg:             cfg,
		metrics:         metrics,
		self:            identity.ID,
	}

	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithConnectParams(reconnectParams),
	}
	if cfg.Faults.Enabled {
		opts = append(opts, grpc.WithChainUnaryInterceptor(newFaultInjector(cfg.Faults).unaryClientInterceptor))
	}

	cluster := identity.ClusterKey()
	for _, id := range identity.Others() {
		addr, err := identity.Address(id)
		if err != nil {
			t.Close()
			return nil, err
		}
		RegisterResolverPeer(cluster, id, addr)

		conn, err := grpc.NewClient(resolverTarget(cluster, id), opts...)
		if err != nil {
			t.Close()
			return nil, fmt.Errorf("failed establishing a gRPC channel to peer %d: %w", id, err)
		}
		t.clientsConnPool.Store(id, conn)
	}

	return t, nil
}

// getClient retrieves a client over the pooled grpc.ClientConn of peer
func (t *GRPCTransport) getClient(peer PeerID) (proto.RaftServiceClient, error) {
	clientConn, ok := t.clientsConnPool.Load(peer)
	if !ok {
		return nil, fmt.Errorf("%w: no connection to peer %d", ErrUnknownPeer, peer)
	}

	// We must type assert the value returned by Load, as it is of type `any` by default
	conn, ok := clientConn.(*grpc.ClientConn)
	if !ok {
		return nil, fmt.Errorf("invalid clientConn type for peer %d. Type is %T", peer, clientConn)
	}

	// The RaftServiceClient is just a wrapper around the connection, so it is created on the fly
	return proto.NewRaftServiceClient(conn), nil
}

// RequestVote makes up to RequestVoteRetries attempts, each bounded by RPCTimeout. Retries are bounded by the election
// timeout anyway: a failed election is followed by a new one with a new term.
func (t *GRPCTransport) RequestVote(ctx context.Context, peer PeerID, req *proto.RequestVoteRequest) (*proto.RequestVoteResponse, error) {
	t.metrics.RecordRequestVote()

	client, err := t.getClient(peer)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt < t.cfg.RequestVoteRetries; attempt++ {
		rpcCtx, cancel := context.WithTimeout(ctx, t.cfg.RPCTimeout)
		resp, err := client.RequestVote(rpcCtx, req)
		cancel()

		if err == nil {
			return resp, nil
		}
		lastErr = err

		// Check if parent context is cancelled (e.g., peer deactivated or no longer a candidate)
		if ctx.Err() != nil {
			return nil, fmt.Errorf("RequestVote to peer %d cancelled: %w", peer, ctx.Err())
		}

		// Don't sleep after the last attempt
		if attempt < t.cfg.RequestVoteRetries-1 {
			select {
			case <-time.After(t.cfg.Backoff(attempt)):
			case <-ctx.Done():
				return nil, fmt.Errorf("RequestVote to peer %d cancelled: %w", peer, ctx.Err())
			}
		}
	}

	if t.cfg.RequestVoteRetries > 1 {
		log.Printf("[TRANSPORT] [PEER-%d] RequestVote to peer %d failed after %d attempts: %v",
			t.self, peer, t.cfg.RequestVoteRetries, lastErr)
	}
	return nil, fmt.Errorf("RequestVote to peer %d failed after %d attempts: %w", peer, t.cfg.RequestVoteRetries, lastErr)
}

// AppendEntries makes a single attempt bounded by RPCTimeout. Heartbeats are repeated by the heartbeat job and
// entries by the follower's replicator, so retrying here would only delay them.
func (t *GRPCTransport) AppendEntries(ctx context.Context, peer PeerID, req *proto.AppendEntriesRequest) (*proto.AppendEntriesResponse, error) {
	if len(req.GetEntries()) == 0 {
		t.metrics.RecordHeartbeat()
	} else {
		t.metrics.RecordAppendEntries()
	}

	client, err := t.getClient(peer)
	if err != nil {
		return nil, err
	}

	rpcCtx, cancel := context.WithTimeout(ctx, t.cfg.RPCTimeout)
	defer cancel()

	resp, err := client.AppendEntries(rpcCtx, req)
	if err != nil {
		return nil, fmt.Errorf("AppendEntries to peer %d: %w", peer, err)
	}
	return resp, nil
}

// Close closes all gRPC client connections initiated by the peer
func (t *GRPCTransport) Close() {
	// Range is a thread-safe way to iterate over a sync.Map.
	t.clientsConnPool.Range(func(key, value any) bool {
		if conn, ok := value.(*grpc.ClientConn); ok {
			if err := conn.Close(); err != nil {
				log.Printf("[TRANSPORT] [PEER-%d] Failed to close connection to peer %v: %v", t.self, key, err)
			}
		}
		t.clientsConnPool.Delete(key)
		// Return true to continue the iteration.
		return true
	})
}
