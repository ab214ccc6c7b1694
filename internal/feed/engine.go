package feed

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// FeedEngine is the cluster-singleton façade over the news-feed system:
// SocialGraph, PostCatalog, FanoutDispatcher, FeedIndex and
// ActionLedger, composed one-way (FeedEngine depends on all five;
// FanoutDispatcher depends only on SocialGraph and FeedIndex).
type FeedEngine struct {
	Graph    *SocialGraph
	Catalog  *PostCatalog
	Fanout   *FanoutDispatcher
	Index    *FeedIndex
	Ledger   *ActionLedger

	mu    sync.RWMutex
	users map[string]User

	log *logrus.Entry
}

// NewFeedEngine wires a FeedEngine from its already-constructed parts.
func NewFeedEngine(graph *SocialGraph, catalog *PostCatalog, fanout *FanoutDispatcher, index *FeedIndex, ledger *ActionLedger) *FeedEngine {
	return &FeedEngine{
		Graph:   graph,
		Catalog: catalog,
		Fanout:  fanout,
		Index:   index,
		Ledger:  ledger,
		users:   make(map[string]User),
		log:     logrus.WithField("component", "feed-engine"),
	}
}

// CreateUser registers a new account. username must be non-empty and
// unique.
func (e *FeedEngine) CreateUser(username, displayName, bio string) (User, error) {
	if username == "" {
		return User{}, ErrInvalidArgument
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, u := range e.users {
		if u.Username == username {
			return User{}, fmt.Errorf("%w: username %q already taken", ErrInvalidArgument, username)
		}
	}

	user := User{
		UserID:      uuid.NewString(),
		Username:    username,
		DisplayName: displayName,
		Bio:         bio,
		CreatedAt:   time.Now().UTC(),
	}
	e.users[user.UserID] = user
	return user, nil
}

// GetUser returns a user by id.
func (e *FeedEngine) GetUser(userID string) (User, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	u, ok := e.users[userID]
	return u, ok
}

// PublishPost inserts a post and routes it through fanout.
func (e *FeedEngine) PublishPost(ctx context.Context, authorID, content string, kind PostType, mediaIDs []string) (Post, error) {
	if _, ok := e.GetUser(authorID); !ok {
		return Post{}, ErrNotFound
	}

	post, err := e.Catalog.InsertPost(authorID, content, kind, mediaIDs)
	if err != nil {
		return Post{}, err
	}

	if err := e.Fanout.Enqueue(ctx, authorID, post.PostID, post.CreatedAt); err != nil {
		e.log.WithError(err).WithField("post", post.PostID).Warn("fanout enqueue failed")
	}
	return post, nil
}

// Follow/Unfollow/Block/Unblock are thin wrappers over the graph with
// self-edge validation already enforced by SocialGraph.

func (e *FeedEngine) Follow(user, friend string) (bool, error) {
	return e.Graph.AddRelationship(user, friend, RelationFollow)
}

func (e *FeedEngine) Unfollow(user, friend string) bool {
	return e.Graph.DeleteRelationship(user, friend)
}

func (e *FeedEngine) Block(user, friend string) (bool, error) {
	return e.Graph.AddRelationship(user, friend, RelationBlock)
}

func (e *FeedEngine) Unblock(user, friend string) bool {
	return e.Graph.DeleteRelationship(user, friend)
}

// Like/Unlike/Comment/Share record engagement. Comment and Share also
// create a derived Post of type COMMENT/SHARE linked back to the
// original via the Action row.

func (e *FeedEngine) Like(userID string, postID uint64) (bool, error) {
	return e.Ledger.AddAction(context.Background(), userID, postID, ActionLike)
}

func (e *FeedEngine) Unlike(userID string, postID uint64) (bool, error) {
	return e.Ledger.RemoveAction(context.Background(), userID, postID, ActionLike)
}

func (e *FeedEngine) Comment(ctx context.Context, userID string, postID uint64, content string) (Post, error) {
	if _, ok := e.Catalog.GetPost(postID); !ok {
		return Post{}, ErrNotFound
	}
	if _, err := e.Ledger.AddAction(ctx, userID, postID, ActionComment); err != nil {
		return Post{}, err
	}
	return e.PublishPost(ctx, userID, content, PostComment, nil)
}

func (e *FeedEngine) Share(ctx context.Context, userID string, postID uint64, content string) (Post, error) {
	original, ok := e.Catalog.GetPost(postID)
	if !ok {
		return Post{}, ErrNotFound
	}
	if _, err := e.Ledger.AddAction(ctx, userID, postID, ActionShare); err != nil {
		return Post{}, err
	}
	if content == "" {
		content = original.Content
	}
	return e.PublishPost(ctx, userID, content, PostShare, nil)
}

// GetNewsFeed returns the enriched, paginated feed for userID: the
// materialized push-mode entries merged at read time with the recent
// posts of any followed celebrity author.
func (e *FeedEngine) GetNewsFeed(ctx context.Context, userID string, limit, offset int) ([]EnrichedPost, error) {
	postIDs, err := e.Index.Range(ctx, userID, offset, limit)
	if err != nil {
		return nil, err
	}

	seen := make(map[uint64]bool, len(postIDs))
	for _, id := range postIDs {
		seen[id] = true
	}

	for _, author := range e.Graph.FriendsByType(userID, RelationFollow) {
		isCeleb, err := e.Index.IsCelebrity(ctx, author)
		if err != nil || !isCeleb {
			continue
		}
		celebPosts := e.Catalog.GetPostsByAuthors([]string{author}, limit+offset, 0)
		for _, p := range celebPosts {
			if !seen[p.PostID] {
				postIDs = append(postIDs, p.PostID)
				seen[p.PostID] = true
			}
		}
	}

	posts := e.Catalog.BatchGet(postIDs)
	sort.Slice(posts, func(i, j int) bool { return posts[i].CreatedAt.After(posts[j].CreatedAt) })

	total := limit + offset
	if total > 0 && len(posts) > total {
		posts = posts[:total]
	}

	out := make([]EnrichedPost, 0, len(posts))
	for _, p := range posts {
		author, _ := e.GetUser(p.AuthorUserID)

		likeCount, _ := e.Ledger.Count(ctx, p.PostID, ActionLike)
		commentCount, _ := e.Ledger.Count(ctx, p.PostID, ActionComment)
		shareCount, _ := e.Ledger.Count(ctx, p.PostID, ActionShare)
		likedByMe, _ := e.Ledger.HasAction(ctx, userID, p.PostID, ActionLike)

		out = append(out, EnrichedPost{
			Post:         p,
			Author:       author,
			LikeCount:    likeCount,
			CommentCount: commentCount,
			ShareCount:   shareCount,
			LikedByMe:    likedByMe,
		})
	}
	return out, nil
}

// DeletePost removes a post and cascades cleanup to its feed entries and
// its Action rows (likes, comments, shares).
func (e *FeedEngine) DeletePost(ctx context.Context, postID uint64) (bool, error) {
	if !e.Catalog.DeletePost(postID) {
		return false, nil
	}
	if _, err := e.Index.RemovePostEverywhere(ctx, postID); err != nil {
		return true, err
	}
	if err := e.Ledger.RemovePost(ctx, postID); err != nil {
		return true, err
	}
	return true, nil
}
