package server

import (
	"fmt"
	"net"
	"strconv"
)

// PeerIdentity locates a peer in a statically sized cluster. Peer i listens on Host:BasePort+i, so every address is
// derivable from the id and the cluster size.
type PeerIdentity struct {
	ID          PeerID
	ClusterSize int
	Host        string
	BasePort    int
}

// Address returns the listen address of peer id.
func (p PeerIdentity) Address(id PeerID) (PeerAddress, error) {
	if int(id) < 0 || int(id) >= p.ClusterSize {
		return "", fmt.Errorf("%w: %d not in [0, %d)", ErrUnknownPeer, id, p.ClusterSize)
	}
	return PeerAddress(net.JoinHostPort(p.Host, strconv.Itoa(p.BasePort+int(id)))), nil
}

// Self returns the listen address of this peer.
func (p PeerIdentity) Self() (PeerAddress, error) {
	return p.Address(p.ID)
}

// Others returns the ids of every other peer in ascending order.
func (p PeerIdentity) Others() []PeerID {
	others := make([]PeerID, 0, p.ClusterSize-1)
	for i := 0; i < p.ClusterSize; i++ {
		if PeerID(i) != p.ID {
			others = append(others, PeerID(i))
		}
	}
	return others
}

// Quorum is the number of peers, self included, that form a strict majority.
func (p PeerIdentity) Quorum() int {
	return p.ClusterSize/2 + 1
}

// ClusterKey names the cluster in resolver targets so several clusters can share one process.
func (p PeerIdentity) ClusterKey() string {
	return net.JoinHostPort(p.Host, strconv.Itoa(p.BasePort))
}

func (p PeerIdentity) validate() error {
	if p.ClusterSize < 1 {
		return fmt.Errorf("cluster size must be positive, got %d", p.ClusterSize)
	}
	if _, err := p.Self(); err != nil {
		return err
	}
	return nil
}
