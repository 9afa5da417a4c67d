// Package store persists users, posts, comments and push subscriptions.
//
// Every mutation that must not lose concurrent updates (likes, comment links,
// reset-token consumption) is a single conditional update so the backing
// store serializes it; callers never read-modify-write a document.
package store

import (
	"context"

	"socialfeed/apperr"
	"socialfeed/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	// ErrNotFound indicates a requested record is missing.
	ErrNotFound = apperr.New(apperr.CodeNotFound, "record not found")
	// ErrConflict indicates a uniqueness violation.
	ErrConflict = apperr.New(apperr.CodeConflict, "record already exists")
)

// UserStore persists user credentials and reset-token state.
type UserStore interface {
	// CreateUser inserts u, assigning an id when u.ID is zero. Duplicate
	// username or email yields ErrConflict.
	CreateUser(ctx context.Context, u *models.User) error
	GetUserByID(ctx context.Context, id primitive.ObjectID) (models.User, error)
	GetUserByUsername(ctx context.Context, username string) (models.User, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, error)
	GetUserByResetTokenHash(ctx context.Context, hash string) (models.User, error)
	GetUsersByIDs(ctx context.Context, ids []primitive.ObjectID) ([]models.User, error)
	SetResetToken(ctx context.Context, userID primitive.ObjectID, hash string, expiresAt int64) error
	// ClearResetToken removes the pending reset only while hash is still the
	// stored one. Clearing an already-cleared token is not an error.
	ClearResetToken(ctx context.Context, userID primitive.ObjectID, hash string) error
	// ConsumeResetToken replaces the password hash and clears the reset state
	// in one update conditioned on hash. ErrNotFound means the token is spent.
	ConsumeResetToken(ctx context.Context, userID primitive.ObjectID, hash, newPasswordHash string) error
}

// PostStore persists posts and their like/comment references.
type PostStore interface {
	CreatePost(ctx context.Context, p *models.Post) error
	GetPost(ctx context.Context, id primitive.ObjectID) (models.Post, error)
	ListPostsByAuthor(ctx context.Context, authorID primitive.ObjectID) ([]models.Post, error)
	// UpdatePost sets content and, when images is non-nil, replaces images.
	UpdatePost(ctx context.Context, id primitive.ObjectID, content string, images *[]string, updatedAt int64) (models.Post, error)
	DeletePost(ctx context.Context, id primitive.ObjectID) (models.Post, error)
	// AddLike adds userID to likedBy and increments likeCount atomically.
	// It returns false when the user had already liked the post.
	AddLike(ctx context.Context, postID, userID primitive.ObjectID) (bool, error)
	// AppendComment appends commentID to commentIds unless already present.
	AppendComment(ctx context.Context, postID, commentID primitive.ObjectID) error
}

// CommentStore persists comment records.
type CommentStore interface {
	CreateComment(ctx context.Context, c *models.Comment) error
	GetCommentsByIDs(ctx context.Context, ids []primitive.ObjectID) ([]models.Comment, error)
	// DeleteComment removes a comment. Deleting a missing comment is not an error.
	DeleteComment(ctx context.Context, id primitive.ObjectID) error
	// FindUnlinkedComments returns comments created before the given unix time
	// whose post still exists but does not reference them.
	FindUnlinkedComments(ctx context.Context, createdBefore int64, limit int) ([]models.Comment, error)
}

// PushStore persists Web Push subscriptions.
type PushStore interface {
	UpsertPushSubscription(ctx context.Context, sub models.PushSubscription) error
	GetPushSubscription(ctx context.Context, userID primitive.ObjectID) (models.PushSubscription, error)
	DeletePushSubscription(ctx context.Context, userID primitive.ObjectID) error
}
