package cluster

import (
	"context"
	"sync"
	"testing"

	"distsys/internal/store"
	"distsys/internal/vclock"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeReplicaClient routes ReplicaClient RPCs directly to a map of
// in-process *store.Store instances, simulating a cluster of nodes
// without any real network transport.
type fakeReplicaClient struct {
	mu    sync.Mutex
	peers map[string]*store.Store // addr -> store
	coord map[string]*Coordinator // addr -> coordinator, for ForwardPut
}

func (f *fakeReplicaClient) ReplicatePut(ctx context.Context, addr, key string, siblings []store.VersionedValue) error {
	f.mu.Lock()
	s, ok := f.peers[addr]
	f.mu.Unlock()
	if !ok {
		return errPeerUnreachable
	}
	if !s.ApplyRemote(key, siblings) {
		return errPeerUnreachable
	}
	return nil
}

func (f *fakeReplicaClient) ReplicateGet(ctx context.Context, addr, key string) ([]store.VersionedValue, error) {
	f.mu.Lock()
	s, ok := f.peers[addr]
	f.mu.Unlock()
	if !ok {
		return nil, errPeerUnreachable
	}
	sibs, _ := s.GetRaw(key)
	return sibs, nil
}

func (f *fakeReplicaClient) ReplicateDelete(ctx context.Context, addr, key string) error {
	f.mu.Lock()
	s, ok := f.peers[addr]
	f.mu.Unlock()
	if !ok {
		return errPeerUnreachable
	}
	_, err := s.Delete(key)
	return err
}

var errPeerUnreachable = errPeer{}

type errPeer struct{}

func (errPeer) Error() string { return "peer unreachable" }

func (f *fakeReplicaClient) ForwardPut(ctx context.Context, addr, key, data string, causalContext vclock.Clock) (vclock.Clock, error) {
	f.mu.Lock()
	c := f.coord[addr]
	f.mu.Unlock()
	return c.Put(key, data, causalContext)
}

// threeNodeCluster builds three Coordinators sharing one ring and one
// fakeReplicaClient, each backed by its own in-memory store, so quorum
// behaviour can be exercised without real RPC.
func threeNodeCluster(t *testing.T, quorum Quorum) (map[string]*Coordinator, *fakeReplicaClient) {
	t.Helper()

	ring := NewRing(3)
	ids := []string{"n1", "n2", "n3"}
	for _, id := range ids {
		ring.Add(id)
	}

	client := &fakeReplicaClient{peers: map[string]*store.Store{}, coord: map[string]*Coordinator{}}
	coords := map[string]*Coordinator{}

	for _, id := range ids {
		s, err := store.New(t.TempDir(), id)
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		client.peers[id] = s

		m := NewMembership(id, id, ring, noopTransport{})
		for _, peer := range ids {
			if peer != id {
				m.Join(peer, peer)
			}
		}
		coords[id] = NewCoordinator(id, quorum, ring, m, s, client)
	}
	for _, id := range ids {
		client.coord[id] = coords[id]
	}

	return coords, client
}

func TestCoordinatorPutReplicatesToQuorum(t *testing.T) {
	coords, client := threeNodeCluster(t, Quorum{N: 3, W: 2, R: 2})

	// drive the Put from whichever node the ring assigns first.
	nodes := coords["n1"].ring.Locate("k", 3)
	primary := coords[nodes[0]]

	_, err := primary.Put("k", "v1", nil)
	require.NoError(t, err)

	present := 0
	for _, id := range nodes {
		if sibs, ok := client.peers[id].GetRaw("k"); ok && len(sibs) == 1 && sibs[0].Data == "v1" {
			present++
		}
	}
	assert.GreaterOrEqual(t, present, 2)
}

func TestCoordinatorGetFlattensSiblingsAcrossReplicas(t *testing.T) {
	coords, client := threeNodeCluster(t, Quorum{N: 3, W: 2, R: 2})
	nodes := coords["n1"].ring.Locate("k", 3)
	primary := coords[nodes[0]]

	clock, err := primary.Put("k", "v1", nil)
	require.NoError(t, err)

	// introduce a concurrent sibling directly on one replica, as if a
	// write had landed there without the other replicas seeing it.
	concurrent := store.VersionedValue{Data: "v2", Clock: vclock.Clock{"ghost": 1}}
	require.True(t, client.peers[nodes[1]].ApplyRemote("k", []store.VersionedValue{concurrent}))

	res, err := primary.Get("k")
	require.NoError(t, err)
	assert.True(t, res.Conflict())
	assert.ElementsMatch(t, []string{"v1", "v2"}, res.Values())
	_ = clock
}

func TestCoordinatorForwardsPutWhenNotResponsible(t *testing.T) {
	coords, _ := threeNodeCluster(t, Quorum{N: 2, W: 1, R: 1})

	nodes := coords["n1"].ring.Locate("k", 2)
	var nonResponsible string
	for _, id := range []string{"n1", "n2", "n3"} {
		if id != nodes[0] && id != nodes[1] {
			nonResponsible = id
			break
		}
	}
	require.NotEmpty(t, nonResponsible)

	_, err := coords[nonResponsible].Put("k", "v1", nil)
	require.NoError(t, err)

	res, err := coords[nodes[0]].Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v1", res.Value())
}

func TestCoordinatorPutFailsQuorumWhenPeersUnreachable(t *testing.T) {
	coords, client := threeNodeCluster(t, Quorum{N: 3, W: 3, R: 2})
	nodes := coords["n1"].ring.Locate("k", 3)
	primary := coords[nodes[0]]

	// remove one peer's address so replication to it fails
	delete(client.peers, nodes[1])

	_, err := primary.Put("k", "v1", nil)
	assert.ErrorIs(t, err, ErrQuorumNotReached)
}
