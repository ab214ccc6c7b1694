package feed

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLedger(t *testing.T) *ActionLedger {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return NewActionLedger(rdb)
}

// N consecutive addAction calls produce exactly one row and
// increment the counter exactly once.
func TestAddActionIsIdempotent(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := l.AddAction(ctx, "u1", 42, ActionLike)
		require.NoError(t, err)
	}

	count, err := l.Count(ctx, 42, ActionLike)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRemoveActionDecrementsOnlyWhenPresent(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	removed, err := l.RemoveAction(ctx, "u1", 42, ActionLike)
	require.NoError(t, err)
	assert.False(t, removed)

	_, err = l.AddAction(ctx, "u1", 42, ActionLike)
	require.NoError(t, err)

	removed, err = l.RemoveAction(ctx, "u1", 42, ActionLike)
	require.NoError(t, err)
	assert.True(t, removed)

	count, err := l.Count(ctx, 42, ActionLike)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestHasActionAndActors(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	_, err := l.AddAction(ctx, "u1", 1, ActionComment)
	require.NoError(t, err)
	_, err = l.AddAction(ctx, "u2", 1, ActionComment)
	require.NoError(t, err)

	has, err := l.HasAction(ctx, "u1", 1, ActionComment)
	require.NoError(t, err)
	assert.True(t, has)

	actors, err := l.Actors(ctx, 1, ActionComment)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"u1", "u2"}, actors)
}

func TestRebuildCounterMatchesActionSet(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	for _, u := range []string{"u1", "u2", "u3"} {
		_, err := l.AddAction(ctx, u, 7, ActionShare)
		require.NoError(t, err)
	}

	n, err := l.RebuildCounter(ctx, 7, ActionShare)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestRemovePostSweepsEveryActionKind(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	_, err := l.AddAction(ctx, "u1", 9, ActionLike)
	require.NoError(t, err)
	_, err = l.AddAction(ctx, "u2", 9, ActionComment)
	require.NoError(t, err)
	_, err = l.AddAction(ctx, "u3", 9, ActionShare)
	require.NoError(t, err)

	require.NoError(t, l.RemovePost(ctx, 9))

	for _, kind := range []ActionType{ActionLike, ActionComment, ActionShare} {
		count, err := l.Count(ctx, 9, kind)
		require.NoError(t, err)
		assert.Zero(t, count)

		has, err := l.HasAction(ctx, "u1", 9, kind)
		require.NoError(t, err)
		assert.False(t, has)
	}
}
