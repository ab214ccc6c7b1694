package store

import (
	"testing"

	"distsys/internal/vclock"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, nodeID string) *Store {
	t.Helper()
	s, err := New(t.TempDir(), nodeID)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPutThenGet(t *testing.T) {
	s := newTestStore(t, "n1")

	clock, err := s.Put("k", "v1", nil)
	require.NoError(t, err)
	assert.Equal(t, vclock.Clock{"n1": 1}, clock)

	res := s.Get("k")
	require.True(t, res.Found)
	assert.False(t, res.Conflict())
	assert.Equal(t, "v1", res.Value())
}

func TestPutCausalOverwriteDropsOldSibling(t *testing.T) {
	s := newTestStore(t, "n1")

	clock, err := s.Put("k", "v1", nil)
	require.NoError(t, err)

	_, err = s.Put("k", "v2", clock)
	require.NoError(t, err)

	res := s.Get("k")
	require.True(t, res.Found)
	assert.False(t, res.Conflict())
	assert.Equal(t, "v2", res.Value())
}

// Concurrent puts with incomparable clocks surface as siblings.
func TestConcurrentPutsProduceSiblings(t *testing.T) {
	s := newTestStore(t, "n1")

	// Two independent writers (simulated by distinct contexts with no
	// shared history) produce concurrent clocks once both increment n1's
	// own counter from an empty base — to force genuine concurrency we
	// apply one as a remote sibling with its own node's clock.
	_, err := s.Put("k", "from-n1", nil)
	require.NoError(t, err)

	remote := VersionedValue{Data: "from-n2", Clock: vclock.Clock{"n2": 1}}
	applied := s.ApplyRemote("k", []VersionedValue{remote})
	require.True(t, applied)

	res := s.Get("k")
	require.True(t, res.Found)
	assert.True(t, res.Conflict())
	assert.ElementsMatch(t, []string{"from-n1", "from-n2"}, res.Values())
}

func TestResolveCollapsesSiblings(t *testing.T) {
	s := newTestStore(t, "n1")

	_, err := s.Put("k", "from-n1", nil)
	require.NoError(t, err)
	remote := VersionedValue{Data: "from-n2", Clock: vclock.Clock{"n2": 1}}
	require.True(t, s.ApplyRemote("k", []VersionedValue{remote}))

	require.True(t, s.Get("k").Conflict())

	mergedClock, err := s.Resolve("k", "resolved")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), mergedClock["n2"])
	assert.Equal(t, uint64(1), mergedClock["n1"])

	res := s.Get("k")
	assert.False(t, res.Conflict())
	assert.Equal(t, "resolved", res.Value())
}

func TestDeleteIsTombstoneFree(t *testing.T) {
	s := newTestStore(t, "n1")

	existed, err := s.Delete("missing")
	require.NoError(t, err)
	assert.False(t, existed)

	_, err = s.Put("k", "v", nil)
	require.NoError(t, err)

	existed, err = s.Delete("k")
	require.NoError(t, err)
	assert.True(t, existed)

	assert.False(t, s.Get("k").Found)
	_, ok := s.GetRaw("k")
	assert.False(t, ok, "tombstone-free delete must remove the key outright")
}

func TestSnapshotAndReplay(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir, "n1")
	require.NoError(t, err)

	_, err = s.Put("k", "v", nil)
	require.NoError(t, err)
	require.NoError(t, s.Snapshot())
	require.NoError(t, s.Close())

	reopened, err := New(dir, "n1")
	require.NoError(t, err)
	defer reopened.Close()

	res := reopened.Get("k")
	require.True(t, res.Found)
	assert.Equal(t, "v", res.Value())
}
