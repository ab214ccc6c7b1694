package feed

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// DefaultMaxFeedSize bounds how many entries a single user's feed index
// retains.
const DefaultMaxFeedSize = 1000

// feedKey mirrors the original cache's "feed:{user_id}" sorted-set key.
func feedKey(userID string) string {
	return fmt.Sprintf("feed:%s", userID)
}

// celebrityKey mirrors the original cache's "celebrity:{user_id}" flag.
func celebrityKey(userID string) string {
	return fmt.Sprintf("celebrity:%s", userID)
}

// FeedIndex is a per-user ordered, capped set of post ids backed by a
// Redis sorted set, score = the post's creation time in unix
// milliseconds.
type FeedIndex struct {
	rdb         *redis.Client
	maxFeedSize int64
}

// NewFeedIndex wires a FeedIndex to rdb, capping each user's feed at
// maxFeedSize entries (DefaultMaxFeedSize if <= 0).
func NewFeedIndex(rdb *redis.Client, maxFeedSize int) *FeedIndex {
	if maxFeedSize <= 0 {
		maxFeedSize = DefaultMaxFeedSize
	}
	return &FeedIndex{rdb: rdb, maxFeedSize: int64(maxFeedSize)}
}

// Append upserts postID into userID's feed at the given score, then
// trims the tail so the feed holds at most maxFeedSize entries.
func (f *FeedIndex) Append(ctx context.Context, userID string, postID uint64, score int64) error {
	key := feedKey(userID)
	member := strconv.FormatUint(postID, 10)

	if err := f.rdb.ZAdd(ctx, key, redis.Z{Score: float64(score), Member: member}).Err(); err != nil {
		return fmt.Errorf("feed index append: %w", err)
	}
	return f.rdb.ZRemRangeByRank(ctx, key, 0, -f.maxFeedSize-1).Err()
}

// Range returns postIDs for userID in descending score order, skipping
// offset entries and returning up to limit.
func (f *FeedIndex) Range(ctx context.Context, userID string, offset, limit int) ([]uint64, error) {
	key := feedKey(userID)
	start := int64(offset)
	stop := int64(offset+limit) - 1
	if limit <= 0 {
		stop = -1
	}

	members, err := f.rdb.ZRevRange(ctx, key, start, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("feed index range: %w", err)
	}

	out := make([]uint64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseUint(m, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, id)
	}
	return out, nil
}

// Size returns how many entries userID's feed currently holds.
func (f *FeedIndex) Size(ctx context.Context, userID string) (int64, error) {
	return f.rdb.ZCard(ctx, feedKey(userID)).Result()
}

// RemovePostEverywhere sweeps every known feed key and removes postID.
// Expensive; invoked only on post deletion, and acceptable only for
// small clusters rather than as a scalable production mechanism.
func (f *FeedIndex) RemovePostEverywhere(ctx context.Context, postID uint64) (int, error) {
	member := strconv.FormatUint(postID, 10)

	var cursor uint64
	removed := 0
	for {
		keys, next, err := f.rdb.Scan(ctx, cursor, "feed:*", 100).Result()
		if err != nil {
			return removed, fmt.Errorf("feed index sweep: %w", err)
		}
		for _, key := range keys {
			n, err := f.rdb.ZRem(ctx, key, member).Result()
			if err != nil {
				continue
			}
			removed += int(n)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return removed, nil
}

// MarkCelebrity flags userID as a celebrity author, read at feed time
// to merge their posts in pull mode instead of expecting them in every
// follower's push-mode feed.
func (f *FeedIndex) MarkCelebrity(ctx context.Context, userID string) error {
	return f.rdb.Set(ctx, celebrityKey(userID), "1", 0).Err()
}

// IsCelebrity reports whether userID is currently flagged a celebrity.
func (f *FeedIndex) IsCelebrity(ctx context.Context, userID string) (bool, error) {
	n, err := f.rdb.Exists(ctx, celebrityKey(userID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
