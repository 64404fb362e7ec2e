// Package controller drives a cluster of Raft peers over loopback gRPC. It starts every peer on consecutive ports,
// connects and disconnects them, and checks the cluster wide properties a correct Raft implementation keeps.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"raftpeer/internal"
	"raftpeer/internal/raft/config"
	"raftpeer/internal/raft/metrics"
	"raftpeer/internal/raft/proto"
	"raftpeer/internal/raft/server"
)

var (
	// ErrCheckFailed is wrapped by every failed cluster check.
	ErrCheckFailed = errors.New("controller: check failed")
	// ErrTermMoved is returned by Wait once a peer moved past the term the caller started in.
	ErrTermMoved = errors.New("controller: term moved on")
)

const (
	// settleDelay lets a peer's listener come up or go down before the next check.
	settleDelay = 100 * time.Millisecond
	// statusTimeout bounds every query the controller makes.
	statusTimeout = time.Second
	// leaderChecks rounds of checkInterval each are made before CheckOneLeader gives up.
	leaderChecks  = 10
	checkInterval = 500 * time.Millisecond
	// StartCommit keeps trying for commitTimeout overall and waits commitPoll for each attempt to commit.
	commitTimeout = 20 * time.Second
	commitPoll    = 3 * time.Second
)

// Controller owns the peers of one cluster and a client connection to each of them.
type Controller struct {
	cfg     config.Config
	peers   []*server.Server
	metrics []*metrics.Metrics
	conns   []*grpc.ClientConn
	clients []proto.RaftServiceClient

	mu        sync.Mutex
	connected []bool
	// next is the peer StartCommit tries first.
	next int
}

// New starts an n-peer cluster. The ports are drawn at random unless cfg names a base port other than the default.
func New(n int, cfg config.Config) (*Controller, error) {
	if cfg.BasePort == config.DefaultBasePort {
		base, err := internal.ReserveBasePort(cfg.Host, n)
		if err != nil {
			return nil, err
		}
		cfg.BasePort = base
	}

	c := &Controller{
		cfg:       cfg,
		connected: make([]bool, n),
	}

	for i := 0; i < n; i++ {
		m := metrics.NewMetrics()
		peer, err := server.NewServer(server.PeerID(i), n, cfg, server.WithMetrics(m))
		if err != nil {
			c.Cleanup()
			return nil, fmt.Errorf("failed to create peer %d: %w", i, err)
		}
		c.peers = append(c.peers, peer)
		c.metrics = append(c.metrics, m)

		addr, err := peer.Identity().Self()
		if err != nil {
			c.Cleanup()
			return nil, err
		}
		conn, err := grpc.NewClient(string(addr), grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			c.Cleanup()
			return nil, fmt.Errorf("failed to dial peer %d: %w", i, err)
		}
		c.conns = append(c.conns, conn)
		c.clients = append(c.clients, proto.NewRaftServiceClient(conn))
	}

	for i := 0; i < n; i++ {
		if err := c.Connect(i); err != nil {
			c.Cleanup()
			return nil, err
		}
	}
	log.Printf("[CONTROLLER] Started %d peers on %s:%d..%d", n, cfg.Host, cfg.BasePort, cfg.BasePort+n-1)
	return c, nil
}

// Size is the number of peers in the cluster.
func (c *Controller) Size() int {
	return len(c.peers)
}

// Peer gives direct access to peer i.
func (c *Controller) Peer(i int) *server.Server {
	return c.peers[i]
}

// Metrics returns the collector of peer i.
func (c *Controller) Metrics(i int) *metrics.Metrics {
	return c.metrics[i]
}

// Connect activates peer i so the others can reach it again.
func (c *Controller) Connect(i int) error {
	if err := c.peers[i].Activate(); err != nil {
		return fmt.Errorf("failed to connect peer %d: %w", i, err)
	}
	c.mu.Lock()
	c.connected[i] = true
	c.mu.Unlock()

	time.Sleep(settleDelay)
	return nil
}

// Disconnect deactivates peer i. It keeps its state and can be reconnected.
func (c *Controller) Disconnect(i int) {
	c.peers[i].Deactivate()
	c.mu.Lock()
	c.connected[i] = false
	c.mu.Unlock()

	time.Sleep(settleDelay)
}

func (c *Controller) isConnected(i int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected[i]
}

// Status asks peer i for its status over gRPC.
func (c *Controller) Status(i int) (*proto.StatusReport, error) {
	ctx, cancel := context.WithTimeout(context.Background(), statusTimeout)
	defer cancel()
	return c.clients[i].GetStatus(ctx, &proto.GetStatusRequest{})
}

// CheckOneLeader waits until the connected peers agree on exactly one leader and returns it. Two leaders in the
// same term fail the check immediately.
func (c *Controller) CheckOneLeader() (int, error) {
	for round := 0; round < leaderChecks; round++ {
		time.Sleep(checkInterval)

		leaders := make(map[uint64][]int)
		for i := range c.peers {
			if !c.isConnected(i) {
				continue
			}
			report, err := c.Status(i)
			if err != nil {
				continue
			}
			if report.IsLeader {
				leaders[report.Term] = append(leaders[report.Term], i)
			}
		}

		var lastTerm uint64
		for term, ids := range leaders {
			if len(ids) > 1 {
				return -1, fmt.Errorf("%w: term %d has %d leaders %v", ErrCheckFailed, term, len(ids), ids)
			}
			lastTerm = max(lastTerm, term)
		}
		if len(leaders) > 0 {
			return leaders[lastTerm][0], nil
		}
	}
	return -1, fmt.Errorf("%w: expected one leader, got none", ErrCheckFailed)
}

// CheckTerms verifies that every connected peer reports the same term and returns it.
func (c *Controller) CheckTerms() (uint64, error) {
	var term uint64
	seen := false
	for i := range c.peers {
		if !c.isConnected(i) {
			continue
		}
		report, err := c.Status(i)
		if err != nil {
			continue
		}
		if !seen {
			term, seen = report.Term, true
			continue
		}
		if report.Term != term {
			return 0, fmt.Errorf("%w: peers disagree on term (%d vs %d)", ErrCheckFailed, term, report.Term)
		}
	}
	return term, nil
}

// CheckNoLeader verifies that no connected peer believes it is the leader.
func (c *Controller) CheckNoLeader() error {
	for i := range c.peers {
		if !c.isConnected(i) {
			continue
		}
		report, err := c.Status(i)
		if err != nil {
			continue
		}
		if report.IsLeader {
			return fmt.Errorf("%w: peer %d is leader in term %d, expected none", ErrCheckFailed, i, report.Term)
		}
	}
	return nil
}

// CommittedLogIndex reports how many peers have committed index and the command they agree on. Peers that cannot
// be reached are skipped. Two peers committing different commands fail the check.
func (c *Controller) CommittedLogIndex(index uint64) (int, int64, error) {
	count := 0
	var cmd int64
	for i := range c.peers {
		ctx, cancel := context.WithTimeout(context.Background(), statusTimeout)
		resp, err := c.clients[i].GetCommittedCmd(ctx, &proto.GetCommittedCmdRequest{Index: index})
		cancel()
		if err != nil || resp.Command <= 0 {
			continue
		}
		if count > 0 && resp.Command != cmd {
			return count, cmd, fmt.Errorf("%w: committed values do not match at index %d: %d vs %d",
				ErrCheckFailed, index, cmd, resp.Command)
		}
		count++
		cmd = resp.Command
	}
	return count, cmd, nil
}

// IssueCommand submits command to peer i.
func (c *Controller) IssueCommand(i int, command int64) (*proto.StatusReport, error) {
	ctx, cancel := context.WithTimeout(context.Background(), statusTimeout+c.cfg.CommandTimeout)
	defer cancel()
	return c.clients[i].NewCommand(ctx, &proto.NewCommandRequest{Command: command})
}

// StartCommit submits command to whichever peer accepts it as leader and waits until at least expected peers
// committed it. It returns the index the command committed at.
func (c *Controller) StartCommit(command int64, expected int) (uint64, error) {
	deadline := time.Now().Add(commitTimeout)
	for time.Now().Before(deadline) {
		index, ok := c.submitToLeader(command)
		if ok {
			pollUntil := time.Now().Add(commitPoll)
			for time.Now().Before(pollUntil) {
				count, cmd, err := c.CommittedLogIndex(index)
				if err != nil {
					return 0, err
				}
				if count >= expected && cmd == command {
					return index, nil
				}
				time.Sleep(20 * time.Millisecond)
			}
		} else {
			time.Sleep(50 * time.Millisecond)
		}
	}
	return 0, fmt.Errorf("%w: command %d did not reach %d peers", ErrCheckFailed, command, expected)
}

// submitToLeader offers command to every connected peer, round robin, until one accepts it as leader.
func (c *Controller) submitToLeader(command int64) (uint64, bool) {
	for range c.peers {
		c.mu.Lock()
		i := c.next
		c.next = (c.next + 1) % len(c.peers)
		connected := c.connected[i]
		c.mu.Unlock()

		if !connected {
			continue
		}
		report, err := c.IssueCommand(i, command)
		if err != nil || !report.IsLeader {
			continue
		}
		return report.LastLogIndex, true
	}
	return 0, false
}

// Wait polls until at least n peers committed index and returns the command. When startTerm is non-zero and a peer
// moves past it, Wait gives up with ErrTermMoved since the command may never commit.
func (c *Controller) Wait(index uint64, n int, startTerm uint64) (int64, error) {
	pause := 10 * time.Millisecond
	for iter := 0; iter < 30; iter++ {
		count, _, err := c.CommittedLogIndex(index)
		if err != nil {
			return 0, err
		}
		if count >= n {
			break
		}

		time.Sleep(pause)
		if pause < time.Second {
			pause *= 2
		}

		if startTerm > 0 {
			for i := range c.peers {
				report, err := c.Status(i)
				if err == nil && report.Term > startTerm {
					return 0, ErrTermMoved
				}
			}
		}
	}

	count, cmd, err := c.CommittedLogIndex(index)
	if err != nil {
		return 0, err
	}
	if count < n {
		return 0, fmt.Errorf("%w: only %d peers committed index %d, wanted %d", ErrCheckFailed, count, index, n)
	}
	return cmd, nil
}

// CallCount sums the RequestVote and AppendEntries calls served by the reachable peers.
func (c *Controller) CallCount() uint64 {
	var total uint64
	for i := range c.peers {
		report, err := c.Status(i)
		if err != nil {
			continue
		}
		total += report.CallCount
	}
	return total
}

// Cleanup stops every peer and closes the controller's connections.
func (c *Controller) Cleanup() {
	for _, peer := range c.peers {
		peer.Close()
	}
	for i, conn := range c.conns {
		if err := conn.Close(); err != nil {
			log.Printf("[CONTROLLER] Failed to close connection to peer %d: %v", i, err)
		}
	}
	c.mu.Lock()
	clear(c.connected)
	c.mu.Unlock()
}
