package feed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddRelationshipRejectsSelfEdge(t *testing.T) {
	g := NewSocialGraph()
	_, err := g.AddRelationship("u1", "u1", RelationFollow)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestAddRelationshipIsIdempotent(t *testing.T) {
	g := NewSocialGraph()

	changed, err := g.AddRelationship("u1", "u2", RelationFollow)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = g.AddRelationship("u1", "u2", RelationFollow)
	require.NoError(t, err)
	assert.False(t, changed, "re-adding the same edge type is a no-op")

	changed, err = g.AddRelationship("u1", "u2", RelationBlock)
	require.NoError(t, err)
	assert.True(t, changed, "changing the edge type counts as a change")
}

func TestFollowersAndFollowerCount(t *testing.T) {
	g := NewSocialGraph()
	_, _ = g.AddRelationship("u1", "author", RelationFollow)
	_, _ = g.AddRelationship("u2", "author", RelationFollow)
	_, _ = g.AddRelationship("u3", "author", RelationBlock)

	assert.ElementsMatch(t, []string{"u1", "u2"}, g.Followers("author"))
	assert.Equal(t, 2, g.FollowerCount("author"))
}

func TestBlockHonoredInRelationshipType(t *testing.T) {
	g := NewSocialGraph()
	_, _ = g.AddRelationship("follower", "author", RelationBlock)

	kind, ok := g.RelationshipType("follower", "author")
	require.True(t, ok)
	assert.Equal(t, RelationBlock, kind)
}

func TestDeleteRelationship(t *testing.T) {
	g := NewSocialGraph()
	_, _ = g.AddRelationship("u1", "u2", RelationFollow)

	assert.True(t, g.DeleteRelationship("u1", "u2"))
	assert.False(t, g.DeleteRelationship("u1", "u2"), "second delete is a no-op")

	_, ok := g.RelationshipType("u1", "u2")
	assert.False(t, ok)
}
