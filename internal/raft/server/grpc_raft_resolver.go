package server

import (
	"fmt"
	"strconv"
	"sync"

	"google.golang.org/grpc/resolver"
)

// ---- Simple in-process registry: (cluster, PeerID) -> PeerAddress ----

// resolverKey scopes a PeerID to its cluster so that several clusters can live in one process.
type resolverKey struct {
	cluster string
	id      PeerID
}

type idRegistry struct {
	mu       sync.RWMutex
	records  map[resolverKey]PeerAddress
	watchers map[resolverKey]map[*raftResolver]struct{}
}

var globalIDRegistry = &idRegistry{
	records:  make(map[resolverKey]PeerAddress),
	watchers: make(map[resolverKey]map[*raftResolver]struct{}),
}

// RegisterResolverPeer sets/updates the address of peer id in cluster and notifies any active resolvers.
func RegisterResolverPeer(cluster string, id PeerID, addr PeerAddress) {
	key := resolverKey{cluster: cluster, id: id}

	globalIDRegistry.mu.Lock()
	globalIDRegistry.records[key] = addr
	watchers := make([]*raftResolver, 0, len(globalIDRegistry.watchers[key]))
	for w := range globalIDRegistry.watchers[key] {
		watchers = append(watchers, w)
	}
	globalIDRegistry.mu.Unlock()

	// Notify after unlocking to avoid re-entrancy.
	for _, w := range watchers {
		w.pushCurrent()
	}
}

// resolverTarget is the dial target of peer id in cluster, e.g. "raft://127.0.0.1:7000/2".
func resolverTarget(cluster string, id PeerID) string {
	return fmt.Sprintf("%s://%s/%d", raftScheme, cluster, id)
}

// ---- gRPC name resolver ("raft" scheme) ----

const raftScheme = "raft"

type raftBuilder struct{}

func (raftBuilder) Scheme() string { return raftScheme }

func (raftBuilder) Build(target resolver.Target, cc resolver.ClientConn, _ resolver.BuildOptions) (resolver.Resolver, error) {
	// Accept "raft://cluster/ID". The authority names the cluster.
	endpoint := target.Endpoint()
	if endpoint == "" {
		return nil, fmt.Errorf("raft resolver: empty target endpoint: %+v", target)
	}
	id, err := strconv.Atoi(endpoint)
	if err != nil {
		return nil, fmt.Errorf("raft resolver: endpoint %q is not a peer id: %w", endpoint, err)
	}

	r := &raftResolver{key: resolverKey{cluster: target.URL.Host, id: PeerID(id)}, cc: cc}
	r.subscribe()
	r.pushCurrent()
	return r, nil
}

type raftResolver struct {
	key resolverKey
	cc  resolver.ClientConn
}

func (r *raftResolver) ResolveNow(resolver.ResolveNowOptions) { r.pushCurrent() }

func (r *raftResolver) Close() {
	globalIDRegistry.mu.Lock()
	defer globalIDRegistry.mu.Unlock()
	if set, ok := globalIDRegistry.watchers[r.key]; ok {
		delete(set, r)
		if len(set) == 0 {
			delete(globalIDRegistry.watchers, r.key)
		}
	}
}

func (r *raftResolver) subscribe() {
	globalIDRegistry.mu.Lock()
	defer globalIDRegistry.mu.Unlock()
	set := globalIDRegistry.watchers[r.key]
	if set == nil {
		set = make(map[*raftResolver]struct{})
		globalIDRegistry.watchers[r.key] = set
	}
	set[r] = struct{}{}
}

func (r *raftResolver) pushCurrent() {
	globalIDRegistry.mu.RLock()
	addr, ok := globalIDRegistry.records[r.key]
	globalIDRegistry.mu.RUnlock()

	if !ok || addr == "" {
		_ = r.cc.UpdateState(resolver.State{Addresses: nil}) // no address yet; gRPC will retry
		return
	}

	_ = r.cc.UpdateState(resolver.State{
		Addresses: []resolver.Address{{Addr: string(addr)}},
	})
}

// Register the resolver on init.
func init() {
	resolver.Register(raftBuilder{})
}
