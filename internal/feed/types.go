// Package feed implements the news-feed fan-out engine: a SocialGraph,
// PostCatalog, FanoutDispatcher with push/pull celebrity handling, a
// Redis-backed FeedIndex, and an ActionLedger for likes/comments/shares.
package feed

import (
	"errors"
	"time"
)

// ErrInvalidArgument is returned for malformed input, such as a
// self-follow or a missing required field.
var ErrInvalidArgument = errors.New("feed: invalid argument")

// ErrNotFound is returned when a referenced user or post does not exist.
var ErrNotFound = errors.New("feed: not found")

// PostType enumerates the kinds of content a Post can carry.
type PostType int

const (
	PostText PostType = iota
	PostImage
	PostVideo
	PostComment
	PostShare
)

func (t PostType) String() string {
	switch t {
	case PostText:
		return "TEXT"
	case PostImage:
		return "IMAGE"
	case PostVideo:
		return "VIDEO"
	case PostComment:
		return "COMMENT"
	case PostShare:
		return "SHARE"
	default:
		return "UNKNOWN"
	}
}

// RelationshipType enumerates the directed edge types in the social
// graph.
type RelationshipType int

const (
	RelationFollow RelationshipType = iota
	RelationBlock
	RelationMute
	RelationFriend
)

func (t RelationshipType) String() string {
	switch t {
	case RelationFollow:
		return "FOLLOW"
	case RelationBlock:
		return "BLOCK"
	case RelationMute:
		return "MUTE"
	case RelationFriend:
		return "FRIEND"
	default:
		return "UNKNOWN"
	}
}

// ActionType enumerates the kinds of engagement an Action records.
type ActionType int

const (
	ActionLike ActionType = iota
	ActionComment
	ActionShare
)

func (t ActionType) String() string {
	switch t {
	case ActionLike:
		return "LIKE"
	case ActionComment:
		return "COMMENT"
	case ActionShare:
		return "SHARE"
	default:
		return "UNKNOWN"
	}
}

// User is an account in the feed system.
type User struct {
	UserID      string
	Username    string
	DisplayName string
	Bio         string
	CreatedAt   time.Time
}

// Post is one piece of published content.
type Post struct {
	PostID       uint64
	AuthorUserID string
	Content      string
	Type         PostType
	MediaIDs     []string
	CreatedAt    time.Time
}

// Relationship is a directed edge between two users.
type Relationship struct {
	UserID   string
	FriendID string
	Type     RelationshipType
}

// Action is one user's engagement with one post.
type Action struct {
	UserID string
	PostID uint64
	Type   ActionType
}

// FeedEntry is one row of a user's materialized feed.
type FeedEntry struct {
	OwnerUserID string
	PostID      uint64
	Score       int64 // post's CreatedAt in unix milliseconds
}

// EnrichedPost is the read-side payload returned by GetNewsFeed: a post
// plus its author, action counters, and the requester's own like state.
type EnrichedPost struct {
	Post        Post
	Author      User
	LikeCount   int
	CommentCount int
	ShareCount  int
	LikedByMe   bool
}
