package models

import "go.mongodb.org/mongo-driver/bson/primitive"

// PushSubscription is a browser Web Push endpoint registered by a user.
// One subscription is kept per user; re-subscribing replaces it.
type PushSubscription struct {
	ID       primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID   primitive.ObjectID `bson:"userId" json:"userId"`
	Endpoint string             `bson:"endpoint" json:"endpoint"`
	P256dh   string             `bson:"p256dh" json:"p256dh"`
	Auth     string             `bson:"auth" json:"auth"`
	// UpdatedAt is unix seconds.
	UpdatedAt int64 `bson:"updatedAt" json:"updatedAt"`
}
