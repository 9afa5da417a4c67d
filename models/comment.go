package models

import "go.mongodb.org/mongo-driver/bson/primitive"

type Comment struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	AuthorID  primitive.ObjectID `bson:"authorId" json:"authorId"`
	PostID    primitive.ObjectID `bson:"postId" json:"postId"`
	Body      string             `bson:"body" json:"body"`
	CreatedAt int64              `bson:"createdAt" json:"createdAt"`
}
