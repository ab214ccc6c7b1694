package feed

import (
	"context"
	"testing"

	"distsys/internal/idgen"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) *FeedEngine {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	alloc, err := idgen.New(idgen.Config{DatacenterID: 2, MachineID: 2})
	require.NoError(t, err)

	graph := NewSocialGraph()
	index := NewFeedIndex(rdb, 100)
	catalog := NewPostCatalog(alloc)
	ledger := NewActionLedger(rdb)
	dispatcher := NewFanoutDispatcher(graph, index, 100, 10, 2)
	t.Cleanup(dispatcher.Close)

	return NewFeedEngine(graph, catalog, dispatcher, index, ledger)
}

func TestCreateUserRejectsDuplicateUsername(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.CreateUser("alice", "Alice", "")
	require.NoError(t, err)

	_, err = e.CreateUser("alice", "Alice Again", "")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestPublishAndReadNewsFeed(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	author, err := e.CreateUser("author", "Author", "")
	require.NoError(t, err)
	reader, err := e.CreateUser("reader", "Reader", "")
	require.NoError(t, err)

	_, err = e.Follow(reader.UserID, author.UserID)
	require.NoError(t, err)

	post, err := e.PublishPost(ctx, author.UserID, "hello world", PostText, nil)
	require.NoError(t, err)

	e.Fanout.Close() // drain before reading

	entries, err := e.GetNewsFeed(ctx, reader.UserID, 10, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, post.PostID, entries[0].Post.PostID)
	assert.Equal(t, author.UserID, entries[0].Author.UserID)
}

func TestLikeThenGetNewsFeedReportsLikedByMe(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	author, _ := e.CreateUser("author", "Author", "")
	post, err := e.PublishPost(ctx, author.UserID, "hi", PostText, nil)
	require.NoError(t, err)

	e.Fanout.Close()

	changed, err := e.Like(author.UserID, post.PostID)
	require.NoError(t, err)
	assert.True(t, changed)

	feed, err := e.GetNewsFeed(ctx, author.UserID, 10, 0)
	require.NoError(t, err)
	require.Len(t, feed, 1)
	assert.True(t, feed[0].LikedByMe)
	assert.Equal(t, 1, feed[0].LikeCount)
}

func TestCommentCreatesDerivedPostAndAction(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	author, _ := e.CreateUser("author", "Author", "")
	commenter, _ := e.CreateUser("commenter", "Commenter", "")
	post, err := e.PublishPost(ctx, author.UserID, "original", PostText, nil)
	require.NoError(t, err)

	derived, err := e.Comment(ctx, commenter.UserID, post.PostID, "nice post")
	require.NoError(t, err)
	assert.Equal(t, PostComment, derived.Type)

	has, err := e.Ledger.HasAction(ctx, commenter.UserID, post.PostID, ActionComment)
	require.NoError(t, err)
	assert.True(t, has)
}

func TestPublishPostRejectsUnknownAuthor(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.PublishPost(context.Background(), "ghost", "x", PostText, nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeletePostCascadesToActionRows(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	author, _ := e.CreateUser("author", "Author", "")
	liker, _ := e.CreateUser("liker", "Liker", "")
	post, err := e.PublishPost(ctx, author.UserID, "original", PostText, nil)
	require.NoError(t, err)

	_, err = e.Like(liker.UserID, post.PostID)
	require.NoError(t, err)

	deleted, err := e.DeletePost(ctx, post.PostID)
	require.NoError(t, err)
	assert.True(t, deleted)

	has, err := e.Ledger.HasAction(ctx, liker.UserID, post.PostID, ActionLike)
	require.NoError(t, err)
	assert.False(t, has)

	count, err := e.Ledger.Count(ctx, post.PostID, ActionLike)
	require.NoError(t, err)
	assert.Zero(t, count)
}
