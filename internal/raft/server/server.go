package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"raftpeer/internal/pubsub"
	"raftpeer/internal/raft/config"
	"raftpeer/internal/raft/proto"
	"raftpeer/internal/raft/state_machine"
	"raftpeer/internal/raft/storage"
)

// drawElectionTimeout picks the election interval uniformly from [min, max). ElectionTimeout is the allowed period
// of time for a follower not to hear from a Leader, as defined in Section 5.2 from the
// [Raft paper](https://raft.github.io/raft.pdf).
func drawElectionTimeout(cfg config.Config) time.Duration {
	return cfg.ElectionTimeoutMin + rand.N(cfg.ElectionTimeoutMax-cfg.ElectionTimeoutMin)
}

type Server struct {
	// This makes the Server struct impl the proto.RaftServiceServer interface
	proto.UnimplementedRaftServiceServer

	serverState
	// The ID of the peer in the cluster
	ID       PeerID
	identity PeerIdentity
	cfg      config.Config
	// StateMachine receives committed entries in index order, as per Section 2 from the
	// [Raft paper](https://raft.github.io/raft.pdf)
	StateMachine state_machine.StateMachine
	// Transport is the transport layer used for sending RPC messages
	transport Transport
	metrics   MetricsCollector
	// pubSub is used to send events about the state of the server to subscribed listeners
	pubSub *pubsub.PubSubClient
	// callCount is the number of RequestVote and AppendEntries calls served
	callCount atomic.Uint64

	// The fields below are guarded by serverState.mu.
	active bool
	// activeCtx lives for one activation; every background job derives from it.
	activeCtx    context.Context
	cancelActive context.CancelFunc
	// electionTicker drives the election timer. Stopped while Leader.
	electionTicker *time.Ticker
	// leaderCancel retires the heartbeat job and the replicators of the current leadership.
	leaderCancel context.CancelFunc
	// replicators holds the wake-up channel of each follower's replicator.
	replicators map[PeerID]chan struct{}
	// pendingCommits maps an index appended by NewCommand to its append time.
	pendingCommits map[uint64]time.Time

	// lifecycleMu serializes Activate, Deactivate and Close.
	lifecycleMu sync.Mutex
	grpcServer  *grpc.Server
	// jobs tracks every goroutine started for an activation.
	jobs   sync.WaitGroup
	closed bool
}

// Option customizes NewServer.
type Option func(*Server)

// WithLogStorage replaces the default in-memory log.
func WithLogStorage(l storage.LogStorage) Option {
	return func(s *Server) { s.log = l }
}

func WithStateMachine(sm state_machine.StateMachine) Option {
	return func(s *Server) { s.StateMachine = sm }
}

func WithMetrics(m MetricsCollector) Option {
	return func(s *Server) { s.metrics = m }
}

// WithTransport replaces the gRPC transport, typically with an in-process fake.
func WithTransport(t Transport) Option {
	return func(s *Server) { s.transport = t }
}

// WithElectionTimeout pins the election interval instead of drawing it.
func WithElectionTimeout(d time.Duration) Option {
	return func(s *Server) { s.electionTimeout = d }
}

// NewServer creates peer id of a cluster of clusterSize peers. The peer starts as an inactive Follower at term 0;
// call Activate to let it talk to the others.
func NewServer(id PeerID, clusterSize int, cfg config.Config, opts ...Option) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	identity := PeerIdentity{ID: id, ClusterSize: clusterSize, Host: cfg.Host, BasePort: cfg.BasePort}
	if err := identity.validate(); err != nil {
		return nil, err
	}

	// https://go.dev/doc/effective_go#composite_literals
	s := &Server{
		serverState:    newServerState(storage.NewMemoryLog(), drawElectionTimeout(cfg)),
		ID:             id,
		identity:       identity,
		cfg:            cfg,
		pubSub:         pubsub.NewPubSub(),
		pendingCommits: make(map[uint64]time.Time),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.StateMachine == nil {
		s.StateMachine = state_machine.NewCommandLog(int(id))
	}
	if s.metrics == nil {
		s.metrics = noopMetrics{}
	}
	if s.transport == nil {
		transport, err := NewGRPCTransport(identity, cfg, s.metrics)
		if err != nil {
			s.pubSub.GracefulShutdown()
			return nil, err
		}
		s.transport = transport
	}

	return s, nil
}

// Identity returns where the peer sits in the cluster.
func (s *Server) Identity() PeerIdentity {
	return s.identity
}

// PubSub exposes the event bus. Subscribers observe RoleChanged, CommitIndexAdvanced and PeerDeactivated events.
func (s *Server) PubSub() *pubsub.PubSubClient {
	return s.pubSub
}

// IsActive reports whether the peer currently accepts and makes calls.
func (s *Server) IsActive() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// Activate starts the gRPC listener and the background jobs. The peer resumes with the term, role and log it had when
// it was deactivated; a Leader resumes heartbeating. Activating an active peer is a no-op.
func (s *Server) Activate() error {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	if s.closed {
		return errors.New("raft: server closed")
	}
	if s.IsActive() {
		return nil
	}

	addr, err := s.identity.Self()
	if err != nil {
		return err
	}
	lis, err := net.Listen("tcp", string(addr))
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s.grpcServer = grpc.NewServer(
		grpc.ConnectionTimeout(time.Second*30),
		grpc.ChainUnaryInterceptor(s.requestContextInterceptor),
	)
	proto.RegisterRaftServiceServer(s.grpcServer, s)

	sessionID := uuid.NewString()
	ctx, cancel := context.WithCancel(SetSessionID(SetPeerID(context.Background(), s.ID), sessionID))
	orchestrator := NewOrchestrator(s.pubSub, s)

	s.mu.Lock()
	s.active = true
	s.activeCtx = ctx
	s.cancelActive = cancel
	s.heartbeatReceived = false
	s.electionTicker = time.NewTicker(s.electionTimeout)
	ticker := s.electionTicker
	if s.state == Leader {
		ticker.Stop()
		s.startLeaderLocked()
	}
	term, state := s.currentTerm, s.state
	s.mu.Unlock()

	s.jobs.Add(2)
	go func() {
		defer s.jobs.Done()
		TrackElectionTimeoutJob(ctx, ticker, s.pubSub)
	}()
	go func() {
		defer s.jobs.Done()
		orchestrator.Run(ctx)
	}()

	go func() {
		// Serve returns once Deactivate stops the server.
		if err := s.grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			log.Printf("[PEER-%d] gRPC server stopped: %v", s.ID, err)
		}
	}()

	log.Printf("[PEER-%d] [TERM-%d] Activated on %s as %s (election timeout %v, session %s)",
		s.ID, term, addr, state, s.getElectionTimeout(), sessionID)
	return nil
}

// Deactivate stops the listener and every background job. State is kept so that a later Activate resumes from it.
func (s *Server) Deactivate() {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()
	s.deactivate()
}

func (s *Server) deactivate() {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	s.active = false
	s.stopLeaderLocked()
	s.cancelActive()
	s.electionTicker.Stop()
	term, state := s.currentTerm, s.state
	s.mu.Unlock()

	s.grpcServer.Stop()
	s.jobs.Wait()

	pubsub.Publish(s.pubSub, pubsub.NewEvent(PeerDeactivated, s.ID))
	log.Printf("[PEER-%d] [TERM-%d] Deactivated as %s", s.ID, term, state)
}

// Close deactivates the peer and releases its outbound connections and event bus. A closed peer cannot be
// activated again.
func (s *Server) Close() {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	if s.closed {
		return
	}
	s.deactivate()
	s.closed = true
	s.transport.Close()
	s.pubSub.GracefulShutdown()
}

// requestContextInterceptor tags every inbound call with a request id and the id of the serving peer.
func (s *Server) requestContextInterceptor(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	ctx = SetRequestID(ctx, uuid.NewString())
	ctx = SetPeerID(ctx, s.ID)
	return handler(ctx, req)
}

// toStatusError maps package errors to gRPC status errors at the service boundary.
func toStatusError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrPeerInactive):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, ErrUnknownPeer):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// RequestVote handles the RequestVote RPC call from a peer's client
func (s *Server) RequestVote(ctx context.Context, req *proto.RequestVoteRequest) (*proto.RequestVoteResponse, error) {
	resp, err := s.HandleRequestVote(ctx, req)
	return resp, toStatusError(err)
}

// AppendEntries handles the AppendEntries RPC call from a peer's client
func (s *Server) AppendEntries(ctx context.Context, req *proto.AppendEntriesRequest) (*proto.AppendEntriesResponse, error) {
	resp, err := s.HandleAppendEntries(ctx, req)
	return resp, toStatusError(err)
}

func (s *Server) GetCommittedCmd(_ context.Context, req *proto.GetCommittedCmdRequest) (*proto.GetCommittedCmdResponse, error) {
	cmd, err := s.CommittedCmd(req.Index)
	if err != nil {
		return nil, toStatusError(err)
	}
	return &proto.GetCommittedCmdResponse{Command: cmd}, nil
}

func (s *Server) GetStatus(context.Context, *proto.GetStatusRequest) (*proto.StatusReport, error) {
	report, err := s.Status()
	return report, toStatusError(err)
}

func (s *Server) NewCommand(ctx context.Context, req *proto.NewCommandRequest) (*proto.StatusReport, error) {
	report, err := s.Submit(ctx, req.Command)
	return report, toStatusError(err)
}
