// Package forum is the boundary to the forum application proper. The
// payment core only ever needs five operations from it: create a post,
// create or clear a vote, look up a post, list a question's answers, and
// get-or-create a user by public key. Everything else about the forum
// (rendering, moderation, search, badges) lives outside this repository.
//
// Backend is the contract the action dispatcher consumes; Store is a
// GORM-backed reference implementation used by the default wiring and by
// tests.
package forum

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// Post types.
const (
	TypeQuestion = 0
	TypeAnswer   = 1
)

// Vote kinds.
const (
	VoteUpvote = "upvote"
	VoteAccept = "accept"
)

// AnonymousPubKey is the reserved identity unsigned actions resolve to.
const AnonymousPubKey = "anonymous"

// ErrNotFound aliases gorm's sentinel for missing rows.
var ErrNotFound = gorm.ErrRecordNotFound

// Post is a question or answer. VoteCount is the post's own score;
// ThreadScore aggregates activity over the whole thread and lives on the
// root (question) post.
type Post struct {
	ID          int64     `json:"id"        gorm:"primaryKey"`
	Type        int       `json:"type"      gorm:"not null"`
	ParentID    int64     `json:"parent_id" gorm:"index"`
	RootID      int64     `json:"root_id"   gorm:"index"`
	Title       string    `json:"title"     gorm:"type:varchar(255);not null"`
	Content     string    `json:"content"   gorm:"type:text;not null"`
	TagVal      string    `json:"tag_val"   gorm:"type:varchar(255)"`
	AuthorID    int64     `json:"author_id" gorm:"not null;index"`
	VoteCount   int64     `json:"vote_count"   gorm:"not null;default:0"`
	ThreadScore int64     `json:"thread_score" gorm:"not null;default:0"`
	Accepted    bool      `json:"accepted"     gorm:"not null;default:false"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName returns the database table name for Post.
func (Post) TableName() string { return "posts" }

// User is a forum account keyed by a lightning node public key.
type User struct {
	ID         int64     `json:"id"     gorm:"primaryKey"`
	PubKey     string    `json:"pubkey" gorm:"column:pubkey;type:varchar(255);not null;uniqueIndex"`
	Name       string    `json:"name"   gorm:"type:varchar(255);not null"`
	Reputation int64     `json:"reputation" gorm:"not null;default:0"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// Profile is created as an explicit step after user creation, not by a
// side-effect hook.
type Profile struct {
	ID        int64     `json:"id"      gorm:"primaryKey"`
	UserID    int64     `json:"user_id" gorm:"not null;uniqueIndex"`
	About     string    `json:"about"   gorm:"type:text"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for Profile.
func (Profile) TableName() string { return "profiles" }

// Vote records one applied vote, so a later clear knows what to remove.
type Vote struct {
	ID        int64     `json:"id"      gorm:"primaryKey"`
	PostID    int64     `json:"post_id" gorm:"not null;index:idx_votes_post_kind"`
	Kind      string    `json:"kind"    gorm:"type:varchar(16);not null;index:idx_votes_post_kind"`
	Delta     int64     `json:"delta"   gorm:"not null"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for Vote.
func (Vote) TableName() string { return "votes" }

// NewPost carries the fields needed to create a post.
type NewPost struct {
	Type     int
	ParentID int64
	Title    string
	Content  string
	TagVal   string
	AuthorID int64
	// Unixtime, when non-zero, overrides the creation timestamp so that
	// a post reflects when the user composed it, not when the invoice
	// settled.
	Unixtime int64
}

// Backend is the forum surface the action dispatcher depends on.
type Backend interface {
	// GetPost looks up a post by id; ErrNotFound when missing.
	GetPost(ctx context.Context, id int64) (*Post, error)

	// CreatePost inserts a post. For answers, RootID is resolved from the
	// parent.
	CreatePost(ctx context.Context, np NewPost) (*Post, error)

	// ListAnswers returns all answers under a question.
	ListAnswers(ctx context.Context, questionID int64) ([]Post, error)

	// ApplyVote applies delta to the post's vote count, the thread's
	// aggregate score, and the post author's reputation, recording a Vote
	// row. Accept votes additionally flip the post's accepted flag.
	ApplyVote(ctx context.Context, postID int64, kind string, delta int64) error

	// GetOrCreateUser resolves a public key to a user, creating the user
	// and their profile when absent.
	GetOrCreateUser(ctx context.Context, pubkey string) (*User, error)

	// GetUser looks up a user by id without side effects; ErrNotFound
	// when missing.
	GetUser(ctx context.Context, id int64) (*User, error)
}
