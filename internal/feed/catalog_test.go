package feed

import (
	"testing"

	"distsys/internal/idgen"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCatalog(t *testing.T) *PostCatalog {
	t.Helper()
	alloc, err := idgen.New(idgen.Config{DatacenterID: 1, MachineID: 1})
	require.NoError(t, err)
	return NewPostCatalog(alloc)
}

func TestInsertAndGetPost(t *testing.T) {
	c := newTestCatalog(t)

	post, err := c.InsertPost("u1", "hello", PostText, nil)
	require.NoError(t, err)
	assert.NotZero(t, post.PostID)

	got, ok := c.GetPost(post.PostID)
	require.True(t, ok)
	assert.Equal(t, "hello", got.Content)
}

func TestDeletePostNoopWhenMissing(t *testing.T) {
	c := newTestCatalog(t)
	assert.False(t, c.DeletePost(9999))
}

func TestGetPostsByAuthorsOrdersNewestFirst(t *testing.T) {
	c := newTestCatalog(t)

	p1, err := c.InsertPost("u1", "first", PostText, nil)
	require.NoError(t, err)
	p2, err := c.InsertPost("u1", "second", PostText, nil)
	require.NoError(t, err)

	posts := c.GetPostsByAuthors([]string{"u1"}, 10, 0)
	require.Len(t, posts, 2)
	assert.Equal(t, p2.PostID, posts[0].PostID)
	assert.Equal(t, p1.PostID, posts[1].PostID)
}

func TestBatchGetPreservesRequestedIDs(t *testing.T) {
	c := newTestCatalog(t)
	p1, _ := c.InsertPost("u1", "a", PostText, nil)
	p2, _ := c.InsertPost("u1", "b", PostText, nil)

	got := c.BatchGet([]uint64{p1.PostID, 404, p2.PostID})
	require.Len(t, got, 2)
}
