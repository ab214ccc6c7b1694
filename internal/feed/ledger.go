package feed

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// actionKey mirrors the original cache's "action:{post_id}:{type}" set
// of actor ids.
func actionKey(postID uint64, kind ActionType) string {
	return fmt.Sprintf("action:%d:%s", postID, kind)
}

// counterKey mirrors the original cache's "counter:{post_id}:{type}".
func counterKey(postID uint64, kind ActionType) string {
	return fmt.Sprintf("counter:%d:%s", postID, kind)
}

// ActionLedger records idempotent (userID, postID, type) engagement
// rows and maintains an authoritative per-(post, type) counter, backed
// by Redis sets and integer keys.
type ActionLedger struct {
	rdb *redis.Client
}

// NewActionLedger wires an ActionLedger to rdb.
func NewActionLedger(rdb *redis.Client) *ActionLedger {
	return &ActionLedger{rdb: rdb}
}

// AddAction records that userID performed kind on postID. Idempotent:
// repeated calls with the same triple increment the counter exactly
// once; the bool return reports whether this call was the one that
// created the row.
func (l *ActionLedger) AddAction(ctx context.Context, userID string, postID uint64, kind ActionType) (bool, error) {
	added, err := l.rdb.SAdd(ctx, actionKey(postID, kind), userID).Result()
	if err != nil {
		return false, fmt.Errorf("ledger add action: %w", err)
	}
	if added == 0 {
		return false, nil
	}
	if err := l.rdb.Incr(ctx, counterKey(postID, kind)).Err(); err != nil {
		return false, fmt.Errorf("ledger increment counter: %w", err)
	}
	return true, nil
}

// RemoveAction removes the (userID, postID, kind) row if present,
// decrementing the counter only when a row actually existed.
func (l *ActionLedger) RemoveAction(ctx context.Context, userID string, postID uint64, kind ActionType) (bool, error) {
	removed, err := l.rdb.SRem(ctx, actionKey(postID, kind), userID).Result()
	if err != nil {
		return false, fmt.Errorf("ledger remove action: %w", err)
	}
	if removed == 0 {
		return false, nil
	}
	if err := l.rdb.Decr(ctx, counterKey(postID, kind)).Err(); err != nil {
		return false, fmt.Errorf("ledger decrement counter: %w", err)
	}
	return true, nil
}

// Count returns the authoritative counter for (postID, kind).
func (l *ActionLedger) Count(ctx context.Context, postID uint64, kind ActionType) (int, error) {
	v, err := l.rdb.Get(ctx, counterKey(postID, kind)).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("ledger count: %w", err)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("ledger count: %w", err)
	}
	return n, nil
}

// HasAction reports whether userID has performed kind on postID.
func (l *ActionLedger) HasAction(ctx context.Context, userID string, postID uint64, kind ActionType) (bool, error) {
	ok, err := l.rdb.SIsMember(ctx, actionKey(postID, kind), userID).Result()
	if err != nil {
		return false, fmt.Errorf("ledger has action: %w", err)
	}
	return ok, nil
}

// Actors returns the user ids who performed kind on postID.
func (l *ActionLedger) Actors(ctx context.Context, postID uint64, kind ActionType) ([]string, error) {
	members, err := l.rdb.SMembers(ctx, actionKey(postID, kind)).Result()
	if err != nil {
		return nil, fmt.Errorf("ledger actors: %w", err)
	}
	return members, nil
}

// RemovePost sweeps every action set and counter key for postID across
// all action kinds, used when a post is deleted.
func (l *ActionLedger) RemovePost(ctx context.Context, postID uint64) error {
	kinds := []ActionType{ActionLike, ActionComment, ActionShare}
	keys := make([]string, 0, len(kinds)*2)
	for _, kind := range kinds {
		keys = append(keys, actionKey(postID, kind), counterKey(postID, kind))
	}
	if err := l.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("ledger remove post: %w", err)
	}
	return nil
}

// RebuildCounter recomputes counterKey(postID, kind) from the
// authoritative action set, useful after a counter drifts.
func (l *ActionLedger) RebuildCounter(ctx context.Context, postID uint64, kind ActionType) (int, error) {
	n, err := l.rdb.SCard(ctx, actionKey(postID, kind)).Result()
	if err != nil {
		return 0, fmt.Errorf("ledger rebuild: %w", err)
	}
	if err := l.rdb.Set(ctx, counterKey(postID, kind), n, 0).Err(); err != nil {
		return 0, fmt.Errorf("ledger rebuild: %w", err)
	}
	return int(n), nil
}
