package server

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"raftpeer/internal"
	"raftpeer/internal/raft/config"
	"raftpeer/internal/raft/proto"
)

var errUnreachable = errors.New("fake transport: peer unreachable")

// stubTransport answers every call through the configured functions. Unset functions fail the call.
type stubTransport struct {
	mu       sync.Mutex
	voteFn   func(peer PeerID, req *proto.RequestVoteRequest) (*proto.RequestVoteResponse, error)
	appendFn func(peer PeerID, req *proto.AppendEntriesRequest) (*proto.AppendEntriesResponse, error)
	votes    []*proto.RequestVoteRequest
	appends  map[PeerID][]*proto.AppendEntriesRequest
	isClosed bool
}

func newStubTransport() *stubTransport {
	return &stubTransport{appends: make(map[PeerID][]*proto.AppendEntriesRequest)}
}

func (t *stubTransport) RequestVote(_ context.Context, peer PeerID, req *proto.RequestVoteRequest) (*proto.RequestVoteResponse, error) {
	t.mu.Lock()
	t.votes = append(t.votes, req)
	fn := t.voteFn
	t.mu.Unlock()
	if fn == nil {
		return nil, errUnreachable
	}
	return fn(peer, req)
}

func (t *stubTransport) AppendEntries(_ context.Context, peer PeerID, req *proto.AppendEntriesRequest) (*proto.AppendEntriesResponse, error) {
	t.mu.Lock()
	t.appends[peer] = append(t.appends[peer], req)
	fn := t.appendFn
	t.mu.Unlock()
	if fn == nil {
		return nil, errUnreachable
	}
	return fn(peer, req)
}

func (t *stubTransport) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.isClosed = true
}

func (t *stubTransport) setVote(fn func(PeerID, *proto.RequestVoteRequest) (*proto.RequestVoteResponse, error)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.voteFn = fn
}

func (t *stubTransport) setAppend(fn func(PeerID, *proto.AppendEntriesRequest) (*proto.AppendEntriesResponse, error)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.appendFn = fn
}

func (t *stubTransport) voteRequests() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.votes)
}

func (t *stubTransport) appendRequests(peer PeerID) []*proto.AppendEntriesRequest {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*proto.AppendEntriesRequest(nil), t.appends[peer]...)
}

func grantAll(_ PeerID, req *proto.RequestVoteRequest) (*proto.RequestVoteResponse, error) {
	return &proto.RequestVoteResponse{Term: req.Term, VoteGranted: true}, nil
}

func denyAll(_ PeerID, req *proto.RequestVoteRequest) (*proto.RequestVoteResponse, error) {
	return &proto.RequestVoteResponse{Term: req.Term, VoteGranted: false}, nil
}

func ackAll(_ PeerID, req *proto.AppendEntriesRequest) (*proto.AppendEntriesResponse, error) {
	return &proto.AppendEntriesResponse{
		Term:      req.Term,
		Success:   true,
		AckLength: req.PrevLogIndex + uint64(len(req.Entries)),
	}, nil
}

// testConfig keeps timers slow enough that nothing fires on its own during a unit test.
func testConfig() config.Config {
	cfg := config.Default()
	cfg.ElectionTimeoutMin = time.Hour
	cfg.ElectionTimeoutMax = 2 * time.Hour
	cfg.HeartbeatInterval = 20 * time.Millisecond
	cfg.CommandTimeout = 200 * time.Millisecond
	return cfg
}

// newTestServer builds peer id of a cluster of n peers on top of transport and marks it active without opening a
// listener. Elections only happen when the test triggers them.
func newTestServer(t *testing.T, id PeerID, n int, transport Transport, opts ...Option) *Server {
	t.Helper()

	opts = append([]Option{WithTransport(transport)}, opts...)
	s, err := NewServer(id, n, testConfig(), opts...)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(SetPeerID(context.Background(), id))
	s.mu.Lock()
	s.active = true
	s.activeCtx = ctx
	s.cancelActive = cancel
	s.electionTicker = time.NewTicker(s.electionTimeout)
	s.mu.Unlock()

	t.Cleanup(func() {
		s.mu.Lock()
		s.active = false
		s.stopLeaderLocked()
		s.electionTicker.Stop()
		s.mu.Unlock()
		cancel()
		s.jobs.Wait()
		s.pubSub.GracefulShutdown()
	})
	return s
}

// forceLeader makes s the leader of the next term as if every peer had voted for it.
func forceLeader(t *testing.T, s *Server, transport *stubTransport) {
	t.Helper()
	transport.setVote(grantAll)
	s.BeginElection(context.Background())
	require.Eventually(t, func() bool { return s.getState() == Leader }, time.Second, 5*time.Millisecond)
}

func entry(index, term uint64, cmd int64) *proto.LogEntry {
	return &proto.LogEntry{Index: index, Term: term, Command: cmd}
}

// fakeNetwork routes calls between in-process servers and can cut peers off.
type fakeNetwork struct {
	mu      sync.RWMutex
	servers map[PeerID]*Server
	down    map[PeerID]bool
}

func newFakeNetwork() *fakeNetwork {
	return &fakeNetwork{
		servers: make(map[PeerID]*Server),
		down:    make(map[PeerID]bool),
	}
}

func (n *fakeNetwork) route(from, to PeerID) (*Server, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.down[from] || n.down[to] {
		return nil, errUnreachable
	}
	target, ok := n.servers[to]
	if !ok {
		return nil, errUnreachable
	}
	return target, nil
}

func (n *fakeNetwork) setDown(id PeerID, down bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.down[id] = down
}

type networkTransport struct {
	net  *fakeNetwork
	self PeerID
}

func (t *networkTransport) RequestVote(ctx context.Context, peer PeerID, req *proto.RequestVoteRequest) (*proto.RequestVoteResponse, error) {
	target, err := t.net.route(t.self, peer)
	if err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return target.HandleRequestVote(ctx, req)
}

func (t *networkTransport) AppendEntries(ctx context.Context, peer PeerID, req *proto.AppendEntriesRequest) (*proto.AppendEntriesResponse, error) {
	target, err := t.net.route(t.self, peer)
	if err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return target.HandleAppendEntries(ctx, req)
}

func (t *networkTransport) Close() {}

// localCluster is n activated peers wired through a fakeNetwork. Peers listen on real ports but talk through the
// network.
type localCluster struct {
	net     *fakeNetwork
	servers []*Server
}

func newLocalCluster(t *testing.T, n int) *localCluster {
	t.Helper()

	cfg := config.Default()
	base, err := internal.ReserveBasePort(cfg.Host, n)
	require.NoError(t, err)
	cfg.BasePort = base
	cfg.ElectionTimeoutMin = 150 * time.Millisecond
	cfg.ElectionTimeoutMax = 300 * time.Millisecond
	cfg.HeartbeatInterval = 30 * time.Millisecond
	cfg.CommandTimeout = 500 * time.Millisecond

	c := &localCluster{net: newFakeNetwork()}
	for i := 0; i < n; i++ {
		id := PeerID(i)
		s, err := NewServer(id, n, cfg, WithTransport(&networkTransport{net: c.net, self: id}))
		require.NoError(t, err)
		c.net.mu.Lock()
		c.net.servers[id] = s
		c.net.mu.Unlock()
		c.servers = append(c.servers, s)
	}
	for _, s := range c.servers {
		require.NoError(t, s.Activate())
	}

	t.Cleanup(func() {
		for _, s := range c.servers {
			s.Close()
		}
	})
	return c
}

// leader waits until exactly one connected peer claims leadership of the highest term and returns it.
func (c *localCluster) leader(t *testing.T) *Server {
	t.Helper()
	var leader *Server
	require.Eventually(t, func() bool {
		leader = nil
		var maxTerm uint64
		leaders := make(map[uint64]int)
		for _, s := range c.servers {
			if !s.IsActive() {
				continue
			}
			c.net.mu.RLock()
			down := c.net.down[s.ID]
			c.net.mu.RUnlock()
			if down {
				continue
			}
			st, err := s.Status()
			if err != nil || !st.IsLeader {
				continue
			}
			leaders[st.Term]++
			if st.Term >= maxTerm {
				maxTerm = st.Term
				leader = s
			}
		}
		return leader != nil && leaders[maxTerm] == 1
	}, 5*time.Second, 20*time.Millisecond)
	return leader
}
