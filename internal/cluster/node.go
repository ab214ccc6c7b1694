package cluster

import (
	"context"

	"distsys/internal/store"
	"distsys/internal/vclock"

	"github.com/sirupsen/logrus"
)

// Node wires together one replicated KV node's local store, ring,
// membership and coordinator into a single lifecycle. It replaces
// object reflection or a global registry for "every other node" with an
// explicit Directory capability handed to Join (dependency injection
// over global singletons).
type Node struct {
	ID     string
	Addr   string
	Store  *store.Store
	Ring   *Ring
	Member *Membership
	Coord  *Coordinator
	log    *logrus.Entry
}

// New creates a Node for id/addr backed by a store rooted at dataDir,
// wired against a fresh ring and membership table, with quorum replica
// RPCs carried by client and gossip RPCs carried by transport.
func New(id, addr, dataDir string, quorum Quorum, client ReplicaClient, transport Transport) (*Node, error) {
	s, err := store.New(dataDir, id)
	if err != nil {
		return nil, err
	}

	ring := NewRing(DefaultVirtualReplicas)
	membership := NewMembership(id, addr, ring, transport)
	coord := NewCoordinator(id, quorum, ring, membership, s, client)

	return &Node{
		ID:     id,
		Addr:   addr,
		Store:  s,
		Ring:   ring,
		Member: membership,
		Coord:  coord,
		log:    logrus.WithField("component", "node").WithField("node", id),
	}, nil
}

// Directory is the minimal capability a joining node needs from a
// coordinator already in the cluster: the current ring membership and
// their addresses. Seeding through an explicit interface (rather than a
// node iterating some global node registry) keeps package cluster free
// of any notion of "all nodes ever constructed in this process".
type Directory interface {
	// Peers returns every node id currently known, paired with its
	// advertised address.
	Peers(ctx context.Context) (map[string]string, error)
}

// Join seeds this node's ring and membership from an existing cluster
// member's Directory, then starts the background gossip/failure-detect
// loops.
func (n *Node) Join(ctx context.Context, seed Directory) error {
	peers, err := seed.Peers(ctx)
	if err != nil {
		return err
	}
	for id, addr := range peers {
		if id == n.ID {
			continue
		}
		n.Member.Join(id, addr)
	}
	go n.Member.Run()
	return nil
}

// Start begins the background gossip/failure-detection loop without
// seeding from a peer — used by the first node in a cluster.
func (n *Node) Start() {
	go n.Member.Run()
}

// Put is a convenience forward onto the node's coordinator.
func (n *Node) Put(key, data string, causalContext vclock.Clock) (vclock.Clock, error) {
	return n.Coord.Put(key, data, causalContext)
}

// Get is a convenience forward onto the node's coordinator.
func (n *Node) Get(key string) (store.Result, error) {
	return n.Coord.Get(key)
}

// Delete is a convenience forward onto the node's coordinator.
func (n *Node) Delete(key string) error {
	return n.Coord.Delete(key)
}

// Peers implements Directory for callers joining against this node.
func (n *Node) Peers(ctx context.Context) (map[string]string, error) {
	out := make(map[string]string)
	for _, id := range n.Ring.Nodes() {
		if addr, ok := n.Member.Addr(id); ok {
			out[id] = addr
		}
	}
	return out, nil
}

// Stop gracefully tears down the node's background loops and closes its
// store.
func (n *Node) Stop() error {
	n.Member.Stop()
	return n.Store.Close()
}
