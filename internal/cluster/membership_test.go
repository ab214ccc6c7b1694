package cluster

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type noopTransport struct{}

func (noopTransport) Gossip(addr string, view map[string]uint64, knownFailed []string) (map[string]uint64, []string, error) {
	return nil, nil, nil
}

func TestMembershipJoinAddsToRing(t *testing.T) {
	ring := NewRing(3)
	m := NewMembership("n1", "addr1", ring, noopTransport{})

	m.Join("n2", "addr2")

	assert.True(t, ring.Contains("n2"))
	addr, ok := m.Addr("n2")
	require.True(t, ok)
	assert.Equal(t, "addr2", addr)
	assert.Equal(t, StatusLive, m.Status("n2"))
}

func TestMembershipMergeRevivesStaleNode(t *testing.T) {
	ring := NewRing(3)
	m := NewMembership("n1", "addr1", ring, noopTransport{})
	m.Join("n2", "addr2")

	// force n2 to FAILED
	m.mu.Lock()
	m.members["n2"].status = StatusFailed
	m.members["n2"].lastAdvanced = time.Now().Add(-10 * time.Second)
	m.mu.Unlock()
	ring.Remove("n2")

	m.Merge(map[string]uint64{"n2": 5}, nil)

	assert.Equal(t, StatusLive, m.Status("n2"))
}

func TestMembershipCheckFailuresPromotesSuspectThenFailed(t *testing.T) {
	ring := NewRing(3)
	m := NewMembership("n1", "addr1", ring, noopTransport{})
	m.Join("n2", "addr2")

	m.checkFailures(time.Now().Add(DefaultSuspectAfter + time.Millisecond))
	assert.Equal(t, StatusSuspect, m.Status("n2"))
	assert.True(t, ring.Contains("n2"), "suspect nodes remain on the ring")

	m.checkFailures(time.Now().Add(DefaultFailAfter + time.Millisecond))
	assert.Equal(t, StatusUnknown, m.Status("n2"), "failed nodes are dropped from membership entirely")
	assert.False(t, ring.Contains("n2"), "failed nodes are removed from the ring")
	assert.Contains(t, m.KnownFailed(), "n2")
}

func TestMembershipMergeDoesNotRelearnKnownFailedNode(t *testing.T) {
	ring := NewRing(3)
	m := NewMembership("n1", "addr1", ring, noopTransport{})
	m.Join("n2", "addr2")

	m.checkFailures(time.Now().Add(DefaultFailAfter + time.Millisecond))
	require.Contains(t, m.KnownFailed(), "n2")

	// A stale heartbeat view from some other peer must not resurrect n2.
	m.Merge(map[string]uint64{"n2": 99}, nil)
	assert.Equal(t, StatusUnknown, m.Status("n2"))
	assert.False(t, ring.Contains("n2"))
}

func TestMembershipMergePropagatesKnownFailed(t *testing.T) {
	ringA := NewRing(3)
	a := NewMembership("a", "addrA", ringA, noopTransport{})
	a.Join("c", "addrC")

	ringB := NewRing(3)
	b := NewMembership("b", "addrB", ringB, noopTransport{})
	b.Join("c", "addrC")

	a.checkFailures(time.Now().Add(DefaultFailAfter + time.Millisecond))
	require.Contains(t, a.KnownFailed(), "c")

	b.Merge(a.View(), a.KnownFailed())

	assert.Equal(t, StatusUnknown, b.Status("c"), "c must not be in b's membership")
	assert.False(t, ringB.Contains("c"))
	assert.Contains(t, b.KnownFailed(), "c")
}

func TestMembershipLiveNodesExcludesFailed(t *testing.T) {
	ring := NewRing(3)
	m := NewMembership("n1", "addr1", ring, noopTransport{})
	m.Join("n2", "addr2")
	m.Join("n3", "addr3")

	m.mu.Lock()
	m.members["n3"].status = StatusFailed
	m.mu.Unlock()

	assert.ElementsMatch(t, []string{"n1", "n2"}, m.LiveNodes())
}
