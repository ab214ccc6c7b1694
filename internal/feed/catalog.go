package feed

import (
	"sort"
	"sync"
	"time"

	"distsys/internal/idgen"
)

// PostCatalog is the authoritative store of Post records, keyed by a
// time-sortable id minted by idgen.
type PostCatalog struct {
	mu    sync.RWMutex
	posts map[uint64]Post
	ids   *idgen.Allocator
}

// NewPostCatalog creates an empty catalog minting ids from ids.
func NewPostCatalog(ids *idgen.Allocator) *PostCatalog {
	return &PostCatalog{posts: make(map[uint64]Post), ids: ids}
}

// InsertPost allocates a post id and stores the record. Returns the
// stored Post, including its assigned id and creation time.
func (c *PostCatalog) InsertPost(authorID, content string, kind PostType, mediaIDs []string) (Post, error) {
	if authorID == "" {
		return Post{}, ErrInvalidArgument
	}

	id, err := c.ids.Next()
	if err != nil {
		return Post{}, err
	}

	post := Post{
		PostID:       id,
		AuthorUserID: authorID,
		Content:      content,
		Type:         kind,
		MediaIDs:     mediaIDs,
		CreatedAt:    time.Now().UTC(),
	}

	c.mu.Lock()
	c.posts[id] = post
	c.mu.Unlock()

	return post, nil
}

// GetPost returns the post with the given id, if any.
func (c *PostCatalog) GetPost(postID uint64) (Post, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.posts[postID]
	return p, ok
}

// GetPostsByAuthors returns posts by any of the given authors, newest
// first, paginated by offset/limit.
func (c *PostCatalog) GetPostsByAuthors(authorIDs []string, limit, offset int) []Post {
	authors := make(map[string]bool, len(authorIDs))
	for _, id := range authorIDs {
		authors[id] = true
	}

	c.mu.RLock()
	var matched []Post
	for _, p := range c.posts {
		if authors[p.AuthorUserID] {
			matched = append(matched, p)
		}
	}
	c.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	if offset >= len(matched) {
		return nil
	}
	end := offset + limit
	if end > len(matched) || limit <= 0 {
		end = len(matched)
	}
	return matched[offset:end]
}

// DeletePost removes a post. A delete on a nonexistent post is a no-op
// returning false; cascading Action/FeedEntry cleanup is the caller's
// responsibility (FeedEngine orchestrates it).
func (c *PostCatalog) DeletePost(postID uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.posts[postID]; !ok {
		return false
	}
	delete(c.posts, postID)
	return true
}

// BatchGet returns the posts present among postIDs, in the same
// relative order as the input where found.
func (c *PostCatalog) BatchGet(postIDs []uint64) []Post {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Post, 0, len(postIDs))
	for _, id := range postIDs {
		if p, ok := c.posts[id]; ok {
			out = append(out, p)
		}
	}
	return out
}
