package models

import "go.mongodb.org/mongo-driver/bson/primitive"

type User struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Username     string             `bson:"username" json:"username"`
	Email        string             `bson:"email" json:"email"`
	PasswordHash string             `bson:"passwordHash" json:"-"`

	// Set only while a password reset is pending.
	PasswordResetTokenHash *string `bson:"passwordResetTokenHash,omitempty" json:"-"`
	PasswordResetExpiresAt *int64  `bson:"passwordResetExpiresAt,omitempty" json:"-"`

	CreatedAt int64 `bson:"createdAt" json:"createdAt"`
}

// HasPendingReset reports whether a reset token hash is stored.
func (u User) HasPendingReset() bool {
	return u.PasswordResetTokenHash != nil && *u.PasswordResetTokenHash != ""
}

// UserSummary is the public projection used when populating references.
type UserSummary struct {
	ID       primitive.ObjectID `bson:"_id" json:"id"`
	Username string             `bson:"username" json:"username"`
}

func (u User) Summary() UserSummary {
	return UserSummary{ID: u.ID, Username: u.Username}
}
